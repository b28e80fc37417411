package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// seedPatterns classify raw seed input. Order matters: the first match wins,
// so the IPv4 and CIDR forms must be tried before the bare ASN digits.
var seedPatterns = []struct {
	re  *regexp.Regexp
	typ TargetType
}{
	{regexp.MustCompile(`^[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}$`), TargetIPAddress},
	{regexp.MustCompile(`^[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}/\d+$`), TargetNetblockOwner},
	{regexp.MustCompile(`^.*@.*$`), TargetEmailAddress},
	{regexp.MustCompile(`^\+[0-9]+$`), TargetPhoneNumber},
	{regexp.MustCompile(`^".+\s+.+"$`), TargetHumanName},
	{regexp.MustCompile(`^".+"$`), TargetUsername},
	{regexp.MustCompile(`^[0-9]+$`), TargetBGPASOwner},
	{regexp.MustCompile(`(?i)^[0-9a-f:]+$`), TargetIPv6Address},
	{regexp.MustCompile(`(?i)^(([a-z0-9]|[a-z0-9][a-z0-9\-]*[a-z0-9])\.)+([a-z0-9]|[a-z0-9][a-z0-9\-]*[a-z0-9])$`), TargetInternetName},
}

// DetectTargetType returns the target kind implied by a raw seed string
func DetectTargetType(seed string) (TargetType, bool) {
	seed = strings.TrimSpace(seed)
	if seed == "" {
		return "", false
	}
	for _, p := range seedPatterns {
		if p.re.MatchString(seed) {
			return p.typ, true
		}
	}
	return "", false
}

// ParseTarget builds a Target from raw seed input. Quoted human names and
// usernames lose their quotes; hostnames are lowercased.
func ParseTarget(seed string) (*Target, error) {
	seed = strings.TrimSpace(seed)
	typ, ok := DetectTargetType(seed)
	if !ok {
		return nil, fmt.Errorf("%w: cannot classify seed %q", ErrInvalidTargetType, seed)
	}

	value := seed
	switch typ {
	case TargetHumanName, TargetUsername:
		value = strings.Trim(seed, `"`)
	case TargetInternetName, TargetEmailAddress, TargetIPv6Address:
		value = strings.ToLower(seed)
	}
	return NewTarget(value, typ)
}
