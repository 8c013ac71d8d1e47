// Package energy implements the regenerating action budget and the
// admission gate over it.
package energy

import (
	"github.com/raphaelgruber/pulse/internal/models"
)

// Ledger tracks the single consumable energy resource for one scheduler.
// It owns its state for the duration of a cycle; the scheduler loads the
// persisted singleton into a ledger at Initialize and writes State() back
// out. Invariant: 0 <= Current <= Max at all times.
type Ledger struct {
	state models.EnergyState
}

// NewLedger creates a ledger over a loaded energy state, clamping the
// current value into bounds in case the persisted record was edited.
func NewLedger(state models.EnergyState) *Ledger {
	if state.Current < 0 {
		state.Current = 0
	}
	if state.Current > state.Max {
		state.Current = state.Max
	}
	return &Ledger{state: state}
}

// Regenerate applies the per-cycle regeneration, capped at Max. Called
// exactly once at the start of each heartbeat cycle.
func (l *Ledger) Regenerate() {
	l.state.Current += l.state.BaseRegen
	if l.state.Current > l.state.Max {
		l.state.Current = l.state.Max
	}
}

// TryCharge subtracts cost if the balance covers it and reports whether it
// did. On false the balance is untouched. Negative costs are refused.
func (l *Ledger) TryCharge(cost float64) bool {
	if cost < 0 {
		return false
	}
	if l.state.Current < cost {
		return false
	}
	l.state.Current -= cost
	return true
}

// Available returns the current balance.
func (l *Ledger) Available() float64 {
	return l.state.Current
}

// State returns a copy of the ledger state for persistence.
func (l *Ledger) State() models.EnergyState {
	return l.state
}
