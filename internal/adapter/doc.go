// Package adapter implements the built-in scan modules of footprint.
//
// Each module watches a few event types and turns them into new events by
// asking an outside source: DNS, nmap, an SSH handshake or a published
// blocklist. Modules are created fresh for every scan through the factories
// returned by Builtins.
//
// # Modules
//
// dnsresolve resolves names to addresses and addresses back to names. Names
// that belong to the target stay INTERNET_NAME; others become affiliates.
//
// portscan runs nmap against discovered addresses and reports open ports,
// service banners, software and operating systems.
//
// tcpscan is a pure-Go connect scan with banner grabbing, for hosts where
// nmap is not installed. It is disabled by default.
//
// sshhostkey completes an SSH key exchange with open SSH ports and reports
// the host key and server software. No credentials are offered.
//
// blocklist fetches a published list of abusive addresses, caches it, and
// flags addresses and netblocks that appear on it.
//
// # Failures
//
// Outside calls report failures as *module.UpstreamError so the dispatcher
// can count them and disable a module whose source keeps failing.
package adapter
