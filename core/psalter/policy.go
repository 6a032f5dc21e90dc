package psalter

import (
	"fmt"
	"strings"
)

// EmptyPolicy decides what MaxVerse reports for a psalm whose document
// yielded no verses.
type EmptyPolicy int

const (
	// EmptyFail reports VerseNotFound.
	EmptyFail EmptyPolicy = iota
	// EmptyFallbackOne reports 1, as older versions of the service did.
	EmptyFallbackOne
)

// String returns the configuration spelling of the policy.
func (p EmptyPolicy) String() string {
	switch p {
	case EmptyFallbackOne:
		return "one"
	default:
		return "fail"
	}
}

// ParseEmptyPolicy parses "fail" or "one". The empty string means "fail".
func ParseEmptyPolicy(s string) (EmptyPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fail":
		return EmptyFail, nil
	case "one":
		return EmptyFallbackOne, nil
	default:
		return EmptyFail, fmt.Errorf("unknown empty max policy %q (want \"fail\" or \"one\")", s)
	}
}
