package evolution

import "strings"

// Policy makes the final conflict call on top of an analysis.
type Policy interface {
	Classify(an Analysis) ConflictType
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(Analysis) ConflictType

func (f PolicyFunc) Classify(an Analysis) ConflictType { return f(an) }

// TrustAnalysis keeps whatever the analysis decided.
var TrustAnalysis Policy = PolicyFunc(func(an Analysis) ConflictType { return an.ConflictType })

// Escalating promotes an analysis to hard whenever it names a violated truth,
// a violated metadata field or contradictory truths, whatever conflictType
// it reported.
var Escalating Policy = PolicyFunc(func(an Analysis) ConflictType {
	if strings.TrimSpace(an.ViolatedTruth) != "" ||
		strings.TrimSpace(an.ViolatedMetadataField) != "" ||
		len(an.ContradictoryTruths) > 0 {
		return ConflictHard
	}
	return an.ConflictType
})

// ParsePolicy maps a config name to a Policy.
func ParsePolicy(name string) (Policy, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "trust":
		return TrustAnalysis, true
	case "escalating":
		return Escalating, true
	}
	return nil, false
}
