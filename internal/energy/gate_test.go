package energy

import (
	"testing"

	"github.com/raphaelgruber/pulse/internal/actions"
	"github.com/raphaelgruber/pulse/internal/models"
)

func propose(kinds ...string) []models.ProposedAction {
	out := make([]models.ProposedAction, len(kinds))
	for i, k := range kinds {
		out[i] = models.ProposedAction{Kind: k}
	}
	return out
}

func kinds(list []models.ProposedAction) []string {
	out := make([]string, len(list))
	for i, a := range list {
		out[i] = a.Kind
	}
	return out
}

func TestAdmit(t *testing.T) {
	tests := []struct {
		name         string
		available    float64
		proposed     []models.ProposedAction
		wantAdmitted []string
		wantRejected []string
	}{
		{
			// reflect 2 + inquire_shallow 3 + synthesize 4 + connect 1 = 10
			name:         "full budget consumed",
			available:    10,
			proposed:     propose("reflect", "inquire_shallow", "synthesize", "connect"),
			wantAdmitted: []string{"reflect", "inquire_shallow", "synthesize", "connect"},
			wantRejected: nil,
		},
		{
			// inquire_deep 6 fits, synthesize 4 would overrun, and the
			// prefix rule also rejects reach_out_user behind it.
			name:         "first overrun cuts the rest",
			available:    6,
			proposed:     propose("inquire_deep", "synthesize", "reach_out_user"),
			wantAdmitted: []string{"inquire_deep"},
			wantRejected: []string{"synthesize", "reach_out_user"},
		},
		{
			name:         "fitting item behind overrun is still rejected",
			available:    5,
			proposed:     propose("reflect", "synthesize", "connect"),
			wantAdmitted: []string{"reflect"},
			wantRejected: []string{"synthesize", "connect"},
		},
		{
			name:         "free actions admitted on empty budget",
			available:    0,
			proposed:     propose("rest", "observe"),
			wantAdmitted: []string{"rest", "observe"},
			wantRejected: nil,
		},
		{
			name:         "costed action on empty budget",
			available:    0,
			proposed:     propose("observe", "connect"),
			wantAdmitted: []string{"observe"},
			wantRejected: []string{"connect"},
		},
		{
			name:         "exact fit admits",
			available:    4,
			proposed:     propose("synthesize"),
			wantAdmitted: []string{"synthesize"},
			wantRejected: nil,
		},
		{
			name:         "nothing proposed",
			available:    10,
			proposed:     nil,
			wantAdmitted: nil,
			wantRejected: nil,
		},
		{
			name:         "unknown kind stops iteration",
			available:    10,
			proposed:     propose("reflect", "levitate", "rest"),
			wantAdmitted: []string{"reflect"},
			wantRejected: []string{"levitate", "rest"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			admitted, rejected := Admit(tt.proposed, tt.available)
			if got := kinds(admitted); !equalStrings(got, tt.wantAdmitted) {
				t.Errorf("admitted = %v, want %v", got, tt.wantAdmitted)
			}
			if got := kinds(rejected); !equalStrings(got, tt.wantRejected) {
				t.Errorf("rejected = %v, want %v", got, tt.wantRejected)
			}
		})
	}
}

// Admission must always be a prefix of the proposal: admitted followed by
// rejected reproduces the input, and the admitted costs sum within budget.
func TestAdmitIsPrefix(t *testing.T) {
	proposals := [][]models.ProposedAction{
		propose("rest", "reflect", "synthesize", "inquire_deep", "connect"),
		propose("inquire_deep", "inquire_deep", "inquire_deep"),
		propose("reach_out_user", "rest", "observe"),
		propose("connect", "connect", "connect", "connect"),
	}

	for _, proposed := range proposals {
		for budget := 0.0; budget <= 12; budget++ {
			admitted, rejected := Admit(proposed, budget)

			if len(admitted)+len(rejected) != len(proposed) {
				t.Fatalf("Admit() split %d+%d items, want %d", len(admitted), len(rejected), len(proposed))
			}
			recombined := append(kinds(admitted), kinds(rejected)...)
			if !equalStrings(recombined, kinds(proposed)) {
				t.Errorf("Admit() reordered proposal: got %v, want %v", recombined, kinds(proposed))
			}

			total := 0.0
			for _, a := range admitted {
				spec, ok := actions.Lookup(a.Kind)
				if !ok {
					t.Fatalf("admitted unknown kind %q", a.Kind)
				}
				total += spec.Cost
			}
			if total > budget {
				t.Errorf("admitted cost %v exceeds budget %v", total, budget)
			}
		}
	}
}

func TestAdmitPreservesParams(t *testing.T) {
	proposed := []models.ProposedAction{
		{Kind: "remember", Params: map[string]any{"content": "a thought"}},
	}
	admitted, _ := Admit(proposed, 5)
	if len(admitted) != 1 {
		t.Fatalf("admitted = %d items, want 1", len(admitted))
	}
	if got := admitted[0].Params["content"]; got != "a thought" {
		t.Errorf("admitted params content = %v, want %q", got, "a thought")
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
