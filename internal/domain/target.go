package domain

import (
	"fmt"
	"net/netip"
	"strings"
	"sync"
)

// TargetType is the kind of identity a scan is rooted at
type TargetType string

const (
	TargetIPAddress     TargetType = "IP_ADDRESS"
	TargetIPv6Address   TargetType = "IPV6_ADDRESS"
	TargetNetblockOwner TargetType = "NETBLOCK_OWNER"
	TargetInternetName  TargetType = "INTERNET_NAME"
	TargetEmailAddress  TargetType = "EMAILADDR"
	TargetHumanName     TargetType = "HUMAN_NAME"
	TargetBGPASOwner    TargetType = "BGP_AS_OWNER"
	TargetPhoneNumber   TargetType = "PHONE_NUMBER"
	TargetUsername      TargetType = "USERNAME"
)

// TargetTypes lists every supported target kind
var TargetTypes = []TargetType{
	TargetIPAddress,
	TargetIPv6Address,
	TargetNetblockOwner,
	TargetInternetName,
	TargetEmailAddress,
	TargetHumanName,
	TargetBGPASOwner,
	TargetPhoneNumber,
	TargetUsername,
}

// Valid reports whether t is one of the supported target kinds
func (t TargetType) Valid() bool {
	for _, known := range TargetTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Alias is another identity discovered to refer to the same entity as the target
type Alias struct {
	Value string     `json:"value"`
	Type  TargetType `json:"type"`
}

// Target is the root identity of a scan plus the aliases discovered for it.
//
// The value and type are fixed at construction. Aliases are appended by many
// module workers concurrently, so the list is guarded by a mutex; readers get
// a copy and never see a half-written alias.
type Target struct {
	value string
	typ   TargetType

	mu      sync.RWMutex
	aliases []Alias
}

// NewTarget creates a target, failing fast on an unsupported kind
func NewTarget(value string, typ TargetType) (*Target, error) {
	if !typ.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTargetType, typ)
	}
	if strings.TrimSpace(value) == "" {
		return nil, ErrEmptyTarget
	}
	return &Target{value: value, typ: typ}, nil
}

// Value returns the seed value the target was created with
func (t *Target) Value() string {
	return t.value
}

// Type returns the target kind
func (t *Target) Type() TargetType {
	return t.typ
}

// Aliases returns a copy of the alias list in insertion order
func (t *Target) Aliases() []Alias {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Alias, len(t.aliases))
	copy(out, t.aliases)
	return out
}

// SetAlias records value as an alias of the target. Only exact (value, type)
// duplicates are rejected. Returns true when the alias was appended.
func (t *Target) SetAlias(value string, typ TargetType) bool {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" || !typ.Valid() {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, a := range t.aliases {
		if a.Value == value && a.Type == typ {
			return false
		}
	}
	t.aliases = append(t.aliases, Alias{Value: value, Type: typ})
	return true
}

// equivalents returns alias values of the given type
func (t *Target) equivalents(typ TargetType) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []string
	for _, a := range t.aliases {
		if a.Type == typ {
			out = append(out, a.Value)
		}
	}
	return out
}

// Names returns every hostname that identifies the target: the target itself
// when it is a hostname, the domain of an e-mail target, and hostname aliases.
func (t *Target) Names() []string {
	names := t.equivalents(TargetInternetName)
	var own string
	switch t.typ {
	case TargetInternetName:
		own = strings.ToLower(t.value)
	case TargetEmailAddress:
		if at := strings.LastIndex(t.value, "@"); at >= 0 && at < len(t.value)-1 {
			own = strings.ToLower(t.value[at+1:])
		}
	}
	if own != "" && !contains(names, own) {
		names = append(names, own)
	}
	return names
}

// Addresses returns every IP address that identifies the target
func (t *Target) Addresses() []string {
	addrs := t.equivalents(TargetIPAddress)
	addrs = append(addrs, t.equivalents(TargetIPv6Address)...)
	if t.typ == TargetIPAddress || t.typ == TargetIPv6Address {
		own := strings.ToLower(t.value)
		if !contains(addrs, own) {
			addrs = append(addrs, own)
		}
	}
	return addrs
}

// Matches reports whether value belongs to the target's identity.
//
// Exact matches against the target value or any alias always count. IPs are
// compared in canonical form and, for netblock targets, checked for
// containment. Hostnames are compared case-insensitively; includeChildren
// accepts strict subdomains of any target name and includeParents accepts
// strict parent domains, except bare single-label names such as "com".
// Empty or malformed input never matches.
func (t *Target) Matches(value string, includeParents, includeChildren bool) bool {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return false
	}

	if value == strings.ToLower(t.value) {
		return true
	}
	for _, a := range t.Aliases() {
		if a.Value == value {
			return true
		}
	}

	if addr, err := netip.ParseAddr(value); err == nil {
		return t.matchesAddr(addr.Unmap())
	}

	for _, name := range t.Names() {
		if value == name {
			return true
		}
		if includeChildren && strings.HasSuffix(value, "."+name) {
			return true
		}
		if includeParents && strings.Contains(value, ".") && strings.HasSuffix(name, "."+value) {
			return true
		}
	}
	return false
}

func (t *Target) matchesAddr(addr netip.Addr) bool {
	for _, known := range t.Addresses() {
		other, err := netip.ParseAddr(known)
		if err != nil {
			continue
		}
		if other.Unmap() == addr {
			return true
		}
	}
	if t.typ == TargetNetblockOwner {
		prefix, err := netip.ParsePrefix(strings.TrimSpace(t.value))
		if err != nil {
			return false
		}
		return prefix.Masked().Contains(addr)
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
