package energy

import (
	"github.com/raphaelgruber/pulse/internal/actions"
	"github.com/raphaelgruber/pulse/internal/models"
)

// Admit applies admission control to an ordered action list. Actions are
// costed against the available budget in proposal order and the admitted
// set is always a prefix: the first action whose cost would push the
// running total past the budget stops iteration, and every later action
// is rejected even if it would fit on its own. An action with an unknown
// kind also stops iteration since its cost cannot be determined.
//
// Admit only plans. Nothing is charged here; the scheduler re-checks each
// admitted action against the live ledger at execution time.
func Admit(proposed []models.ProposedAction, available float64) (admitted, rejected []models.ProposedAction) {
	total := 0.0
	for i, action := range proposed {
		spec, ok := actions.Lookup(action.Kind)
		if !ok {
			rejected = append(rejected, proposed[i:]...)
			return admitted, rejected
		}
		if total+spec.Cost > available {
			rejected = append(rejected, proposed[i:]...)
			return admitted, rejected
		}
		total += spec.Cost
		admitted = append(admitted, action)
	}
	return admitted, rejected
}
