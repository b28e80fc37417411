package config

import "time"

// Posture defines how hard modules push on upstream services
type Posture string

const (
	PostureStealth    Posture = "stealth"    // Slow, single attempt, long timeouts
	PostureCautious   Posture = "cautious"   // Conservative, respect rate limits
	PostureBalanced   Posture = "balanced"   // Default
	PostureAggressive Posture = "aggressive" // Fast, tolerates more failures
)

// ParsePosture converts a string to Posture, defaulting to PostureBalanced
func ParsePosture(s string) Posture {
	switch s {
	case "stealth":
		return PostureStealth
	case "cautious":
		return PostureCautious
	case "balanced":
		return PostureBalanced
	case "aggressive":
		return PostureAggressive
	default:
		return PostureBalanced
	}
}

// BehaviorProfile defines timing and failure tolerance for a scan
type BehaviorProfile struct {
	Timeout     time.Duration `yaml:"timeout"`
	Backoff     time.Duration `yaml:"backoff"`
	MaxFailures int           `yaml:"max_failures"`
}

// PostureProfiles maps postures to their default behavior profiles
var PostureProfiles = map[Posture]BehaviorProfile{
	PostureStealth: {
		Timeout:     30 * time.Second,
		Backoff:     10 * time.Second,
		MaxFailures: 1,
	},
	PostureCautious: {
		Timeout:     20 * time.Second,
		Backoff:     5 * time.Second,
		MaxFailures: 1,
	},
	PostureBalanced: {
		Timeout:     15 * time.Second,
		Backoff:     2 * time.Second,
		MaxFailures: 1,
	},
	PostureAggressive: {
		Timeout:     5 * time.Second,
		Backoff:     500 * time.Millisecond,
		MaxFailures: 3,
	},
}

// GetProfile returns the behavior profile for a posture
func (p Posture) GetProfile() BehaviorProfile {
	if profile, ok := PostureProfiles[p]; ok {
		return profile
	}
	return PostureProfiles[PostureBalanced]
}
