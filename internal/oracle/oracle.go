// Package oracle calls the reasoning model to turn one cycle's context
// into a structured decision: reasoning, an ordered action list and a set
// of goal changes.
//
// Every failure mode maps to one of three sentinel errors so the scheduler
// can pick the right recovery: ErrMalformed substitutes the fallback
// decision, ErrRefusal the minimal one, ErrUnavailable skips the cycle.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/pulse/internal/goals"
	"github.com/raphaelgruber/pulse/internal/models"
)

// Sentinel errors for failed decisions.
// Use errors.Is() to pick the recovery path.
var (
	// ErrMalformed indicates the model responded but the response does not
	// match the decision schema.
	ErrMalformed = errors.New("malformed oracle response")

	// ErrRefusal indicates the model declined to produce a decision.
	ErrRefusal = errors.New("oracle refused to decide")

	// ErrUnavailable indicates the model could not be reached in time.
	ErrUnavailable = errors.New("oracle unavailable")
)

// Decision is the oracle's schema-validated answer. Actions are in the
// oracle's priority order; the decision gate admits a prefix of them.
type Decision struct {
	Reasoning   string                  `json:"reasoning"`
	Actions     []models.ProposedAction `json:"actions"`
	GoalChanges []models.GoalChange     `json:"goal_changes"`
}

// ContextBundle is everything the Decide phase shows the oracle.
type ContextBundle struct {
	Environment     models.EnvironmentSnapshot
	Review          *goals.Review
	ActiveGoals     []models.Goal
	RecentEpisodes  []models.Episode
	ActiveEntities  []string
	IdentitySummary string
	AvailableEnergy float64
	MaxEnergy       float64
	CycleNumber     int64
}

// Reasoner is the model surface the oracle runs on.
type Reasoner interface {
	GenerateWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Oracle wraps the reasoning model with prompt construction, response
// validation and a bounded timeout.
type Oracle struct {
	model   Reasoner
	timeout time.Duration
	logger  *slog.Logger
}

// New creates an oracle. The timeout bounds every Decide call so the
// scheduler's Decide phase can never hang.
func New(model Reasoner, timeout time.Duration, logger *slog.Logger) *Oracle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Oracle{model: model, timeout: timeout, logger: logger}
}

// Decide asks the model for a decision over the given context.
func (o *Oracle) Decide(ctx context.Context, bundle ContextBundle) (*Decision, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	raw, err := o.model.GenerateWithSystem(ctx, decisionSystemPrompt, renderContext(bundle))
	if err != nil {
		// Transport failures, API errors and the deadline all mean the
		// same thing to the cycle: no decision arrived.
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	decision, err := Parse(raw)
	if err != nil {
		o.logger.Warn("oracle response rejected", "error", err, "chars", len(raw))
		return nil, err
	}
	return decision, nil
}

// FallbackDecision is substituted for a malformed oracle response: turn
// inward briefly, then rest.
func FallbackDecision() *Decision {
	return &Decision{
		Reasoning: "fallback",
		Actions: []models.ProposedAction{
			{Kind: "reflect"},
			{Kind: "rest"},
		},
	}
}

// MinimalDecision is substituted for a refusal: observe and remember are
// both free, so this amounts to doing nothing extra this cycle.
func MinimalDecision() *Decision {
	return &Decision{
		Reasoning: "refusal",
		Actions: []models.ProposedAction{
			{Kind: "observe"},
			{Kind: "remember"},
		},
	}
}
