package calibrate

import (
	"fmt"
	"strings"
)

// Policy selects how the calibrator brings an over-budget history back
// under its token budget.
type Policy string

const (
	// PolicyTruncate drops the oldest body message, one per pass.
	PolicyTruncate Policy = "truncate"
	// PolicySummarize replaces the whole body with a model-written summary.
	PolicySummarize Policy = "summarize"
)

// ParsePolicy parses a policy name. "summary" is accepted as an alias of
// "summarize".
func ParsePolicy(name string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case string(PolicyTruncate):
		return PolicyTruncate, nil
	case string(PolicySummarize), "summary":
		return PolicySummarize, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
	}
}

// Valid reports whether p is a known policy.
func (p Policy) Valid() bool {
	return p == PolicyTruncate || p == PolicySummarize
}

func (p Policy) String() string {
	return string(p)
}
