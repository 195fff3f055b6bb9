package classifier

import (
	"github.com/mbd888/fraudwatch/internal/synth"
	"github.com/mbd888/fraudwatch/internal/transaction"
)

// Rule thresholds. Evaluated in priority order; first match wins.
const (
	HighValueThreshold     = 40_000
	ModerateValueThreshold = 15_000

	HighValueScore     = 85
	ModerateValueScore = 60
	NormalScore        = 5
)

// Evaluate runs the deterministic rule table. This path is the system's
// liveness guarantee: it always yields an internally consistent verdict
// regardless of remote classifier availability.
func Evaluate(tx *transaction.Transaction) Verdict {
	switch {
	case tx.Amount > HighValueThreshold:
		return Verdict{
			Score:  HighValueScore,
			Level:  transaction.RiskHigh,
			Reason: "High value transaction detected (Rule-based).",
		}
	case tx.Amount > ModerateValueThreshold && tx.Device == synth.DeviceUnknown:
		return Verdict{
			Score:  ModerateValueScore,
			Level:  transaction.RiskMedium,
			Reason: "Moderate value on unknown device.",
		}
	default:
		return Verdict{
			Score:  NormalScore,
			Level:  transaction.RiskLow,
			Reason: "Normal transaction pattern.",
		}
	}
}
