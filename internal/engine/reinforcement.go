package engine

import (
	"errors"
	"math"

	"github.com/scrypster/recall/pkg/types"
)

// ErrInvalidSignal is returned for a signal outside the recognized kinds.
var ErrInvalidSignal = errors.New("invalid reinforcement signal")

// ErrInvalidRange is returned when the prior importance lies outside [0,1].
var ErrInvalidRange = errors.New("importance outside [0,1]")

const (
	// Boost weights per signal kind. An outcome (confirmed result) carries
	// materially more weight than utilization (record was referenced),
	// which carries more than a bare retrieval.
	retrievalWeight   = 0.05
	utilizationWeight = 0.10
	outcomeWeight     = 0.25

	// reinforcementDamping shrinks each additional boost as the retrieval
	// count grows, so heavily-used records converge instead of pinning to
	// the clamp on every signal.
	reinforcementDamping = 0.15
)

// Reinforce computes the updated importance after one feedback signal.
//
// The boost closes a fraction of the remaining headroom (1 - prior), damped
// by how often the record has already been reinforced:
//
//	new = prior + w(signal) * (1 - prior) / (1 + damping * count)
//
// The result is clamped to [0,1]. Pure function: persisting the new value
// and incrementing the stored count is the caller's job.
func Reinforce(prior float64, signal types.Signal, retrievalCount int) (float64, error) {
	if math.IsNaN(prior) || prior < 0 || prior > 1 {
		return 0, ErrInvalidRange
	}
	if retrievalCount < 0 {
		retrievalCount = 0
	}

	var weight float64
	switch signal {
	case types.SignalRetrieval:
		weight = retrievalWeight
	case types.SignalUtilization:
		weight = utilizationWeight
	case types.SignalOutcome:
		weight = outcomeWeight
	default:
		return 0, ErrInvalidSignal
	}

	boost := weight * (1 - prior) / (1 + reinforcementDamping*float64(retrievalCount))
	return math.Min(math.Max(prior+boost, 0), 1), nil
}
