package engine

import (
	"errors"
	"math"
	"testing"

	"github.com/scrypster/recall/pkg/types"
)

var allSignals = []types.Signal{types.SignalRetrieval, types.SignalUtilization, types.SignalOutcome}

func TestReinforce_OutputInRange(t *testing.T) {
	priors := []float64{0.0, 0.1, 0.5, 0.9, 1.0}
	counts := []int{0, 1, 5, 100, 10000}
	for _, p := range priors {
		for _, c := range counts {
			for _, s := range allSignals {
				got, err := Reinforce(p, s, c)
				if err != nil {
					t.Fatalf("Reinforce(%v,%v,%v): %v", p, s, c, err)
				}
				if got < 0 || got > 1 {
					t.Errorf("Reinforce(%v,%v,%v)=%v outside [0,1]", p, s, c, got)
				}
			}
		}
	}
}

func TestReinforce_SignalOrdering(t *testing.T) {
	// outcome >= utilization >= retrieval for identical prior state.
	for _, p := range []float64{0.0, 0.3, 0.7} {
		for _, c := range []int{0, 3, 50} {
			r, _ := Reinforce(p, types.SignalRetrieval, c)
			u, _ := Reinforce(p, types.SignalUtilization, c)
			o, _ := Reinforce(p, types.SignalOutcome, c)
			if !(o >= u && u >= r) {
				t.Errorf("prior=%v count=%v: ordering violated: o=%v u=%v r=%v", p, c, o, u, r)
			}
		}
	}
}

func TestReinforce_NeverDecreases(t *testing.T) {
	for _, p := range []float64{0.0, 0.5, 1.0} {
		for _, s := range allSignals {
			got, _ := Reinforce(p, s, 2)
			if got < p {
				t.Errorf("Reinforce(%v,%v) decreased importance to %v", p, s, got)
			}
		}
	}
}

func TestReinforce_UpperClamp(t *testing.T) {
	for _, s := range allSignals {
		got, err := Reinforce(1.0, s, 0)
		if err != nil {
			t.Fatalf("Reinforce: %v", err)
		}
		if got != 1.0 {
			t.Errorf("prior=1.0 signal=%v: expected 1.0, got %v", s, got)
		}
	}
}

func TestReinforce_LowerClamp(t *testing.T) {
	got, err := Reinforce(0.0, types.SignalRetrieval, 0)
	if err != nil {
		t.Fatalf("Reinforce: %v", err)
	}
	if got < 0.0 {
		t.Errorf("expected non-negative result, got %v", got)
	}
	if got != retrievalWeight {
		t.Errorf("fresh record full boost: expected %v, got %v", retrievalWeight, got)
	}
}

func TestReinforce_Saturates(t *testing.T) {
	// The marginal boost shrinks as retrieval count grows.
	prev := math.Inf(1)
	for _, c := range []int{0, 1, 10, 100, 1000} {
		got, _ := Reinforce(0.5, types.SignalOutcome, c)
		boost := got - 0.5
		if boost >= prev {
			t.Errorf("count=%v: boost %v did not shrink from %v", c, boost, prev)
		}
		prev = boost
	}

	// At very high counts the boost approaches zero rather than diverging.
	got, _ := Reinforce(0.5, types.SignalOutcome, 1_000_000)
	if got-0.5 > 1e-5 {
		t.Errorf("boost should vanish at extreme counts, got %v", got-0.5)
	}
}

func TestReinforce_InvalidSignal(t *testing.T) {
	if _, err := Reinforce(0.5, types.Signal("decay"), 0); !errors.Is(err, ErrInvalidSignal) {
		t.Errorf("expected ErrInvalidSignal, got %v", err)
	}
}

func TestReinforce_InvalidRange(t *testing.T) {
	for _, p := range []float64{-0.1, 1.1, math.NaN()} {
		if _, err := Reinforce(p, types.SignalRetrieval, 0); !errors.Is(err, ErrInvalidRange) {
			t.Errorf("prior=%v: expected ErrInvalidRange, got %v", p, err)
		}
	}
}
