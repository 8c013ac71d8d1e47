package oracle

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/raphaelgruber/pulse/internal/actions"
	"github.com/raphaelgruber/pulse/internal/models"
)

// wireDecision is the raw response shape before validation.
type wireDecision struct {
	Reasoning   string           `json:"reasoning"`
	Actions     []wireAction     `json:"actions"`
	GoalChanges []wireGoalChange `json:"goal_changes"`
}

type wireAction struct {
	Kind   string         `json:"kind"`
	Params map[string]any `json:"params"`
}

type wireGoalChange struct {
	GoalID   string `json:"goal_id"`
	Change   string `json:"change"`
	Reason   string `json:"reason"`
	Override bool   `json:"override"`
}

// Parse validates a raw model response against the decision schema.
// Unknown action kinds are a schema violation here so they never reach the
// decision gate; goal change tiers are only checked for presence, the
// backlog's transition rules judge them individually later.
func Parse(raw string) (*Decision, error) {
	body := extractJSON(raw)
	if body == "" {
		if looksLikeRefusal(raw) {
			return nil, fmt.Errorf("%w: %s", ErrRefusal, clip(strings.TrimSpace(raw), 120))
		}
		return nil, fmt.Errorf("%w: no JSON object in response", ErrMalformed)
	}

	var wire wireDecision
	if err := json.Unmarshal([]byte(body), &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	decision := &Decision{Reasoning: strings.TrimSpace(wire.Reasoning)}

	for i, a := range wire.Actions {
		kind := strings.TrimSpace(a.Kind)
		if kind == "" {
			return nil, fmt.Errorf("%w: action %d has no kind", ErrMalformed, i)
		}
		if _, ok := actions.Lookup(kind); !ok {
			return nil, fmt.Errorf("%w: unknown action kind %q", ErrMalformed, kind)
		}
		decision.Actions = append(decision.Actions, models.ProposedAction{
			Kind:   kind,
			Params: a.Params,
		})
	}

	for i, gc := range wire.GoalChanges {
		if strings.TrimSpace(gc.GoalID) == "" {
			return nil, fmt.Errorf("%w: goal change %d has no goal_id", ErrMalformed, i)
		}
		if strings.TrimSpace(gc.Change) == "" {
			return nil, fmt.Errorf("%w: goal change %d has no change", ErrMalformed, i)
		}
		decision.GoalChanges = append(decision.GoalChanges, models.GoalChange{
			GoalID:   strings.TrimSpace(gc.GoalID),
			Change:   models.GoalPriority(strings.TrimSpace(gc.Change)),
			Reason:   strings.TrimSpace(gc.Reason),
			Override: gc.Override,
		})
	}

	return decision, nil
}

// extractJSON pulls the outermost JSON object out of a response that may
// wrap it in markdown fences or prose.
func extractJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if idx := strings.Index(s, "```"); idx >= 0 {
		rest := s[idx+3:]
		rest = strings.TrimPrefix(rest, "json")
		if end := strings.Index(rest, "```"); end >= 0 {
			s = rest[:end]
		} else {
			s = rest
		}
		s = strings.TrimSpace(s)
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

var refusalMarkers = []string{
	"i cannot",
	"i can't",
	"i won't",
	"i will not",
	"i'm not able",
	"i am not able",
	"unable to comply",
	"i'm sorry",
	"i am sorry",
	"i must decline",
	"as an ai",
}

// looksLikeRefusal reports whether a structureless response reads as the
// model declining rather than failing.
func looksLikeRefusal(raw string) bool {
	lower := strings.ToLower(raw)
	for _, marker := range refusalMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
