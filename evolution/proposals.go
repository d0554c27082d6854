package evolution

import (
	"math"
	"strings"

	"github.com/danmt/hub-spoke-cm-sub000/artifact"
)

const (
	// InitialWeight is given to every truth created by an add proposal.
	InitialWeight = 0.3
	// WeightStep is the change applied by strengthen and weaken.
	WeightStep = 0.2
)

// ApplyProposals returns a new truth list with every proposal applied in
// order. Matching is case-insensitive on the trimmed text. Strengthen and
// weaken without a match are ignored, and a truth whose weight drops to 0
// is removed. The input slice is not modified.
func ApplyProposals(truths []artifact.Truth, proposals []Proposal) []artifact.Truth {
	out := append([]artifact.Truth(nil), truths...)
	for _, p := range proposals {
		text := strings.TrimSpace(p.Text)
		if text == "" {
			continue
		}
		i := indexOf(out, text)
		switch p.Action {
		case ActionAdd:
			if i < 0 {
				out = append(out, artifact.Truth{Text: text, Weight: InitialWeight})
			}
		case ActionStrengthen:
			if i >= 0 {
				out[i].Weight = step(out[i].Weight, WeightStep)
			}
		case ActionWeaken:
			if i >= 0 {
				out[i].Weight = step(out[i].Weight, -WeightStep)
				if out[i].Weight <= 0 {
					out = append(out[:i], out[i+1:]...)
				}
			}
		}
	}
	return out
}

func indexOf(ts []artifact.Truth, text string) int {
	for i, t := range ts {
		if strings.EqualFold(strings.TrimSpace(t.Text), text) {
			return i
		}
	}
	return -1
}

// step moves w by delta, clamps to [0,1] and rounds to two decimals so
// repeated steps land on exact values.
func step(w, delta float64) float64 {
	w = math.Round((w+delta)*100) / 100
	return math.Max(0, math.Min(1, w))
}

// dropTruths removes every truth whose text matches one of texts.
func dropTruths(ts []artifact.Truth, texts ...string) []artifact.Truth {
	out := make([]artifact.Truth, 0, len(ts))
	for _, t := range ts {
		keep := true
		for _, x := range texts {
			if x != "" && strings.EqualFold(strings.TrimSpace(t.Text), strings.TrimSpace(x)) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, t)
		}
	}
	return out
}
