package domain

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestNewTarget(t *testing.T) {
	t.Run("rejects unsupported type", func(t *testing.T) {
		_, err := NewTarget("example target value", TargetType("example target type"))
		if !errors.Is(err, ErrInvalidTargetType) {
			t.Fatalf("expected ErrInvalidTargetType, got %v", err)
		}
	})

	t.Run("rejects empty value", func(t *testing.T) {
		_, err := NewTarget("  ", TargetInternetName)
		if !errors.Is(err, ErrEmptyTarget) {
			t.Fatalf("expected ErrEmptyTarget, got %v", err)
		}
	})

	t.Run("accepts every supported type", func(t *testing.T) {
		for _, typ := range TargetTypes {
			target, err := NewTarget("example target value", typ)
			if err != nil {
				t.Fatalf("NewTarget(%s) error: %v", typ, err)
			}
			if target.Type() != typ {
				t.Errorf("Type() = %s, want %s", target.Type(), typ)
			}
			if target.Value() != "example target value" {
				t.Errorf("Value() = %q", target.Value())
			}
			if target.Aliases() == nil || len(target.Aliases()) != 0 {
				t.Errorf("expected empty alias list, got %v", target.Aliases())
			}
		}
	})
}

func TestTargetMatchesReflexive(t *testing.T) {
	values := map[TargetType]string{
		TargetIPAddress:     "192.0.2.10",
		TargetIPv6Address:   "2001:db8::1",
		TargetNetblockOwner: "192.0.2.0/24",
		TargetInternetName:  "example.com",
		TargetEmailAddress:  "admin@example.com",
		TargetHumanName:     "Jane Doe",
		TargetBGPASOwner:    "64500",
		TargetPhoneNumber:   "+15555550100",
		TargetUsername:      "jdoe",
	}

	for typ, value := range values {
		t.Run(string(typ), func(t *testing.T) {
			target, err := NewTarget(value, typ)
			if err != nil {
				t.Fatalf("NewTarget error: %v", err)
			}
			if !target.Matches(value, false, false) {
				t.Errorf("Matches(%q) = false immediately after construction", value)
			}
		})
	}
}

func TestTargetMatchesInternetName(t *testing.T) {
	target, err := NewTarget("example.com", TargetInternetName)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		value    string
		parents  bool
		children bool
		want     bool
	}{
		{"exact", "example.com", false, false, true},
		{"exact case-insensitive", "EXAMPLE.com", false, false, true},
		{"child with children", "sub.example.com", false, true, true},
		{"child without children", "sub.example.com", false, false, false},
		{"deep child", "a.b.example.com", false, true, true},
		{"suffix that is not a child", "badexample.com", false, true, false},
		{"bare tld as parent", "com", true, false, false},
		{"parent disabled", "com", false, false, false},
		{"unrelated", "other.com", true, true, false},
		{"empty", "", true, true, false},
		{"garbage", "::not a host::", true, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := target.Matches(tt.value, tt.parents, tt.children); got != tt.want {
				t.Errorf("Matches(%q, %v, %v) = %v, want %v", tt.value, tt.parents, tt.children, got, tt.want)
			}
		})
	}
}

func TestTargetMatchesParentDomain(t *testing.T) {
	target, err := NewTarget("www.example.com", TargetInternetName)
	if err != nil {
		t.Fatal(err)
	}

	if !target.Matches("example.com", true, false) {
		t.Error("expected strict parent to match with includeParents")
	}
	if target.Matches("example.com", false, true) {
		t.Error("expected parent not to match without includeParents")
	}
}

func TestTargetMatchesNetblock(t *testing.T) {
	target, err := NewTarget("192.0.2.0/24", TargetNetblockOwner)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		value string
		want  bool
	}{
		{"192.0.2.1", true},
		{"192.0.2.254", true},
		{"192.0.3.1", false},
		{"::ffff:192.0.2.7", true},
		{"300.1.1.1", false},
	}
	for _, tt := range tests {
		if got := target.Matches(tt.value, false, false); got != tt.want {
			t.Errorf("Matches(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestTargetMatchesEmailDomain(t *testing.T) {
	target, err := NewTarget("admin@Example.com", TargetEmailAddress)
	if err != nil {
		t.Fatal(err)
	}

	if !target.Matches("example.com", false, false) {
		t.Error("expected e-mail domain to match")
	}
	if !target.Matches("mail.example.com", false, true) {
		t.Error("expected subdomain of e-mail domain to match with includeChildren")
	}
	if target.Matches("other@example.org", false, false) {
		t.Error("unexpected match for unrelated e-mail")
	}
}

func TestTargetAliases(t *testing.T) {
	t.Run("alias matches after being added", func(t *testing.T) {
		target, _ := NewTarget("example.com", TargetInternetName)

		if target.Matches("192.0.2.10", false, false) {
			t.Fatal("alias should not match before it is set")
		}
		if !target.SetAlias("192.0.2.10", TargetIPAddress) {
			t.Fatal("SetAlias returned false for new alias")
		}
		if !target.Matches("192.0.2.10", false, false) {
			t.Error("alias should match after being set")
		}
	})

	t.Run("alias matches regardless of query order", func(t *testing.T) {
		target, _ := NewTarget("example.com", TargetInternetName)
		target.SetAlias("example.net", TargetInternetName)

		if !target.Matches("example.com", false, false) {
			t.Error("original value should still match")
		}
		if !target.Matches("example.net", false, false) {
			t.Error("alias should match")
		}
		if !target.Matches("www.example.net", false, true) {
			t.Error("child of alias should match with includeChildren")
		}
	})

	t.Run("exact duplicates are ignored", func(t *testing.T) {
		target, _ := NewTarget("example.com", TargetInternetName)
		target.SetAlias("192.0.2.10", TargetIPAddress)
		if target.SetAlias("192.0.2.10", TargetIPAddress) {
			t.Error("duplicate alias was appended")
		}
		target.SetAlias("192.0.2.10", TargetIPv6Address)

		aliases := target.Aliases()
		if len(aliases) != 2 {
			t.Fatalf("expected 2 aliases, got %d: %v", len(aliases), aliases)
		}
		if aliases[0].Type != TargetIPAddress || aliases[1].Type != TargetIPv6Address {
			t.Errorf("aliases out of insertion order: %v", aliases)
		}
	})

	t.Run("invalid alias input is ignored", func(t *testing.T) {
		target, _ := NewTarget("example.com", TargetInternetName)
		if target.SetAlias("", TargetIPAddress) {
			t.Error("empty alias accepted")
		}
		if target.SetAlias("x", TargetType("BOGUS")) {
			t.Error("unknown alias type accepted")
		}
	})

	t.Run("concurrent appends are serialized", func(t *testing.T) {
		target, _ := NewTarget("example.com", TargetInternetName)

		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				target.SetAlias(fmt.Sprintf("10.0.0.%d", i), TargetIPAddress)
				target.SetAlias("10.0.0.1", TargetIPAddress)
				_ = target.Matches("10.0.0.1", false, false)
			}(i)
		}
		wg.Wait()

		if got := len(target.Aliases()); got != 50 {
			t.Errorf("expected 50 distinct aliases, got %d", got)
		}
	})
}

func TestTargetNamesAndAddresses(t *testing.T) {
	target, _ := NewTarget("192.0.2.10", TargetIPAddress)
	target.SetAlias("host.example.com", TargetInternetName)
	target.SetAlias("2001:db8::10", TargetIPv6Address)

	if names := target.Names(); len(names) != 1 || names[0] != "host.example.com" {
		t.Errorf("Names() = %v", names)
	}
	addrs := target.Addresses()
	if len(addrs) != 2 {
		t.Fatalf("Addresses() = %v", addrs)
	}
	if !target.Matches("2001:DB8:0:0::10", false, false) {
		t.Error("expected IPv6 alias to match in non-canonical form")
	}
}

func TestDetectTargetType(t *testing.T) {
	tests := []struct {
		seed string
		want TargetType
		ok   bool
	}{
		{"192.0.2.1", TargetIPAddress, true},
		{"192.0.2.0/24", TargetNetblockOwner, true},
		{"admin@example.com", TargetEmailAddress, true},
		{"+15555550100", TargetPhoneNumber, true},
		{`"Jane Doe"`, TargetHumanName, true},
		{`"jdoe"`, TargetUsername, true},
		{"64500", TargetBGPASOwner, true},
		{"2001:db8::1", TargetIPv6Address, true},
		{"www.Example.com", TargetInternetName, true},
		{"not a target", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.seed, func(t *testing.T) {
			got, ok := DetectTargetType(tt.seed)
			if ok != tt.ok || got != tt.want {
				t.Errorf("DetectTargetType(%q) = (%s, %v), want (%s, %v)", tt.seed, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestParseTarget(t *testing.T) {
	target, err := ParseTarget(`"Jane Doe"`)
	if err != nil {
		t.Fatal(err)
	}
	if target.Value() != "Jane Doe" || target.Type() != TargetHumanName {
		t.Errorf("ParseTarget = (%q, %s)", target.Value(), target.Type())
	}

	if _, err := ParseTarget("???"); !errors.Is(err, ErrInvalidTargetType) {
		t.Errorf("expected ErrInvalidTargetType, got %v", err)
	}
}
