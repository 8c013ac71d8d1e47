package goals

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/pulse/internal/models"
)

const (
	// Active goals untouched longer than this get a stale flag.
	staleAfter = 7 * 24 * time.Hour
	// Minimum relevance gain over the stored baseline before a queued goal
	// becomes a promotion candidate.
	promotionThreshold = 0.1
	// Upper bound on goals examined per tier in one review.
	reviewLimit = 200
)

// FlagKind labels one review observation about a single goal.
type FlagKind string

const (
	FlagBlocked            FlagKind = "blocked"
	FlagStale              FlagKind = "stale"
	FlagContradiction      FlagKind = "contradiction_candidate"
	FlagPromotionCandidate FlagKind = "promotion_candidate"
)

// Suggestion is a backlog-wide observation.
type Suggestion string

const (
	SuggestPromoteFromQueue Suggestion = "promote_from_queue"
	SuggestBrainstorm       Suggestion = "brainstorm_needed"
)

// Flag is one observation attached to a goal. Flags carry no authority;
// they ride into the decision context and the oracle may act on them.
type Flag struct {
	GoalID string   `json:"goal_id"`
	Title  string   `json:"title"`
	Kind   FlagKind `json:"kind"`
	Detail string   `json:"detail,omitempty"`
}

// Review is the outcome of one review pass.
type Review struct {
	Flags       []Flag                      `json:"flags,omitempty"`
	Suggestions []Suggestion                `json:"suggestions,omitempty"`
	Counts      map[models.GoalPriority]int `json:"counts"`
}

// ValidityChecker decides whether an active goal still makes sense against
// the world. Implementations may consult external systems; failures are
// logged and the goal passes unflagged.
type ValidityChecker interface {
	Check(ctx context.Context, goal models.Goal) (bool, error)
}

// RelevanceScorer measures how relevant a queued goal currently is, on the
// same scale the stored baselines use.
type RelevanceScorer interface {
	Score(ctx context.Context, goal models.Goal) (float64, error)
}

// Reviewer runs the per-cycle backlog review. It only ever flags; priority
// never changes here.
type Reviewer struct {
	store  Store
	logger *slog.Logger

	// Optional collaborators; nil disables the corresponding flags.
	Validity  ValidityChecker
	Relevance RelevanceScorer
}

// NewReviewer creates a reviewer over the given store.
func NewReviewer(store Store, logger *slog.Logger) *Reviewer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reviewer{store: store, logger: logger}
}

// Run executes one review pass over the open tiers.
func (r *Reviewer) Run(ctx context.Context) (*Review, error) {
	counts, err := r.store.CountGoalsByPriority(ctx)
	if err != nil {
		return nil, fmt.Errorf("review: %w", err)
	}
	review := &Review{Counts: counts}

	active, err := r.store.ListGoals(ctx, []models.GoalPriority{models.PriorityActive}, reviewLimit)
	if err != nil {
		return nil, fmt.Errorf("review: %w", err)
	}
	now := time.Now()
	for _, goal := range active {
		r.reviewActive(ctx, goal, now, review)
	}

	queued, err := r.store.ListGoals(ctx, []models.GoalPriority{models.PriorityQueued}, reviewLimit)
	if err != nil {
		return nil, fmt.Errorf("review: %w", err)
	}
	for _, goal := range queued {
		r.reviewQueued(ctx, goal, review)
	}

	if counts[models.PriorityActive] == 0 && counts[models.PriorityQueued] > 0 {
		review.Suggestions = append(review.Suggestions, SuggestPromoteFromQueue)
	}
	open := counts[models.PriorityActive] + counts[models.PriorityQueued] + counts[models.PriorityBackburner]
	if open == 0 {
		review.Suggestions = append(review.Suggestions, SuggestBrainstorm)
	}

	return review, nil
}

func (r *Reviewer) reviewActive(ctx context.Context, goal models.Goal, now time.Time, review *Review) {
	id := models.MustRecordIDString(goal.ID)

	if goal.BlockedBy != nil && *goal.BlockedBy != "" {
		resolved, err := r.blockerResolved(ctx, *goal.BlockedBy)
		if err != nil {
			r.logger.Warn("blocker check failed", "goal", id, "blocker", *goal.BlockedBy, "error", err)
		} else if !resolved {
			review.Flags = append(review.Flags, Flag{
				GoalID: id, Title: goal.Title, Kind: FlagBlocked,
				Detail: "blocked by " + *goal.BlockedBy,
			})
		}
	}

	if now.Sub(goal.LastTouched) > staleAfter {
		review.Flags = append(review.Flags, Flag{
			GoalID: id, Title: goal.Title, Kind: FlagStale,
			Detail: fmt.Sprintf("untouched for %d days", int(now.Sub(goal.LastTouched).Hours()/24)),
		})
	}

	if r.Validity != nil {
		valid, err := r.Validity.Check(ctx, goal)
		if err != nil {
			r.logger.Warn("validity check failed", "goal", id, "error", err)
		} else if !valid {
			review.Flags = append(review.Flags, Flag{
				GoalID: id, Title: goal.Title, Kind: FlagContradiction,
			})
		}
	}
}

func (r *Reviewer) reviewQueued(ctx context.Context, goal models.Goal, review *Review) {
	if r.Relevance == nil {
		return
	}
	id := models.MustRecordIDString(goal.ID)

	score, err := r.Relevance.Score(ctx, goal)
	if err != nil {
		r.logger.Warn("relevance score failed", "goal", id, "error", err)
		return
	}

	// First measurement only establishes the baseline.
	if goal.LastRelevance != nil && score-*goal.LastRelevance > promotionThreshold {
		review.Flags = append(review.Flags, Flag{
			GoalID: id, Title: goal.Title, Kind: FlagPromotionCandidate,
			Detail: fmt.Sprintf("relevance %.2f -> %.2f", *goal.LastRelevance, score),
		})
	}

	if err := r.store.SetGoalRelevance(ctx, id, score); err != nil {
		r.logger.Warn("relevance baseline not saved", "goal", id, "error", err)
	}
}

// blockerResolved treats a blocker as resolved only when it names a goal
// that has reached a terminal tier. References we cannot resolve count as
// unresolved.
func (r *Reviewer) blockerResolved(ctx context.Context, blockerID string) (bool, error) {
	blocker, err := r.store.GetGoal(ctx, blockerID)
	if err != nil {
		return false, err
	}
	if blocker == nil {
		return false, nil
	}
	return blocker.Priority.Terminal(), nil
}
