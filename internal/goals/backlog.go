// Package goals implements the goal backlog: creation rules, the lifecycle
// state machine over priority tiers, and the per-cycle review routine.
//
// Priorities move along backburner <-> queued <-> active one step at a
// time; any non-terminal tier can jump to completed or abandoned. Terminal
// tiers are final. All transitions go through Apply so the rules hold no
// matter who asks (oracle goal_changes, the reprioritize action, the CLI).
package goals

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/raphaelgruber/pulse/internal/models"
)

// Sentinel errors for rejected goal operations.
// Use errors.Is() to check for these in calling code.
var (
	// ErrNotFound indicates the referenced goal does not exist.
	ErrNotFound = errors.New("goal not found")

	// ErrInvalidTransition indicates the requested priority change is not
	// allowed from the goal's current tier.
	ErrInvalidTransition = errors.New("invalid goal transition")

	// ErrReasonRequired indicates an abandonment without a reason.
	ErrReasonRequired = errors.New("abandonment reason required")

	// ErrChildrenIncomplete indicates a parent completion while children
	// are still open and no override was given.
	ErrChildrenIncomplete = errors.New("children not all completed")

	// ErrCycle indicates an insert or reparent that would make the
	// parent chain loop back on itself.
	ErrCycle = errors.New("goal parent chain would form a cycle")

	// ErrParentRequired indicates a derived goal without a parent.
	ErrParentRequired = errors.New("derived goal requires a parent")
)

// Store is the persistence surface the backlog drives.
type Store interface {
	CreateGoal(ctx context.Context, id string, g models.Goal) (*models.Goal, error)
	SaveGoal(ctx context.Context, id string, g models.Goal) (*models.Goal, error)
	GetGoal(ctx context.Context, id string) (*models.Goal, error)
	ListGoals(ctx context.Context, priorities []models.GoalPriority, limit int) ([]models.Goal, error)
	ChildGoals(ctx context.Context, parentID string) ([]models.Goal, error)
	CountGoalsByPriority(ctx context.Context) (map[models.GoalPriority]int, error)
	SetGoalRelevance(ctx context.Context, id string, relevance float64) error
}

// Backlog owns goal lifecycle rules on top of a Store.
type Backlog struct {
	store  Store
	logger *slog.Logger
}

// New creates a backlog over the given store.
func New(store Store, logger *slog.Logger) *Backlog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backlog{store: store, logger: logger}
}

// Create inserts a new goal. The initial priority is queued, except
// user_request goals start active and derived goals inherit their parent's
// current priority. The ancestor chain is walked before committing so a
// cycle aborts the insert.
func (b *Backlog) Create(ctx context.Context, in models.GoalInput) (*models.Goal, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, fmt.Errorf("create goal: title required")
	}
	if !in.Source.Valid() {
		return nil, fmt.Errorf("create goal: unknown source %q", in.Source)
	}
	if in.EmotionalValence < -1 || in.EmotionalValence > 1 {
		return nil, fmt.Errorf("create goal: valence %v out of [-1, 1]", in.EmotionalValence)
	}

	priority := models.PriorityQueued
	switch in.Source {
	case models.SourceUserRequest:
		priority = models.PriorityActive
	case models.SourceDerived:
		if in.ParentID == nil || *in.ParentID == "" {
			return nil, fmt.Errorf("create goal: %w", ErrParentRequired)
		}
	}

	if in.ParentID != nil && *in.ParentID != "" {
		parent, err := b.store.GetGoal(ctx, *in.ParentID)
		if err != nil {
			return nil, fmt.Errorf("create goal: %w", err)
		}
		if parent == nil {
			return nil, fmt.Errorf("create goal: parent %s: %w", *in.ParentID, ErrNotFound)
		}
		if in.Source == models.SourceDerived {
			if parent.Priority.Terminal() {
				return nil, fmt.Errorf("create goal: cannot derive from %s parent %s", parent.Priority, *in.ParentID)
			}
			priority = parent.Priority
		}
		if err := b.walkAncestors(ctx, *in.ParentID, ""); err != nil {
			return nil, fmt.Errorf("create goal: %w", err)
		}
	}

	goal := models.Goal{
		Title:            title,
		Description:      in.Description,
		Priority:         priority,
		Source:           in.Source,
		ParentID:         in.ParentID,
		Labels:           in.Labels,
		EmotionalValence: in.EmotionalValence,
	}

	created, err := b.store.CreateGoal(ctx, uuid.New().String(), goal)
	if err != nil {
		return nil, fmt.Errorf("create goal: %w", err)
	}
	b.logger.Info("goal created",
		"goal", models.MustRecordIDString(created.ID),
		"title", created.Title,
		"priority", created.Priority,
		"source", created.Source)
	return created, nil
}

// Apply executes one lifecycle transition. Callers applying a batch treat
// an error here as a dropped change, log it and continue with the rest.
func (b *Backlog) Apply(ctx context.Context, change models.GoalChange) error {
	if !change.Change.Valid() {
		return fmt.Errorf("apply %s: unknown tier %q: %w", change.GoalID, change.Change, ErrInvalidTransition)
	}

	goal, err := b.store.GetGoal(ctx, change.GoalID)
	if err != nil {
		return fmt.Errorf("apply %s: %w", change.GoalID, err)
	}
	if goal == nil {
		return fmt.Errorf("apply %s: %w", change.GoalID, ErrNotFound)
	}

	from, to := goal.Priority, change.Change
	if !transitionAllowed(from, to) {
		return fmt.Errorf("apply %s: %s -> %s: %w", change.GoalID, from, to, ErrInvalidTransition)
	}

	now := time.Now()
	switch to {
	case models.PriorityCompleted:
		if !change.Override {
			open, err := b.openChildren(ctx, change.GoalID)
			if err != nil {
				return fmt.Errorf("apply %s: %w", change.GoalID, err)
			}
			if len(open) > 0 {
				return fmt.Errorf("apply %s: %d open: %w", change.GoalID, len(open), ErrChildrenIncomplete)
			}
		}
		goal.CompletedAt = &now

	case models.PriorityAbandoned:
		reason := strings.TrimSpace(change.Reason)
		if reason == "" {
			return fmt.Errorf("apply %s: %w", change.GoalID, ErrReasonRequired)
		}
		goal.AbandonedAt = &now
		goal.AbandonmentReason = &reason
	}

	goal.Priority = to
	if change.Reason != "" && to != models.PriorityAbandoned {
		goal.Progress = append(goal.Progress, models.ProgressNote{At: now, Text: change.Reason})
	}

	if _, err := b.store.SaveGoal(ctx, change.GoalID, *goal); err != nil {
		return fmt.Errorf("apply %s: %w", change.GoalID, err)
	}
	b.logger.Info("goal transitioned", "goal", change.GoalID, "from", from, "to", to)
	return nil
}

// ApplyAll applies a batch of changes, dropping invalid ones. Returns the
// changes that actually went through.
func (b *Backlog) ApplyAll(ctx context.Context, changes []models.GoalChange) []models.GoalChange {
	applied := make([]models.GoalChange, 0, len(changes))
	for _, change := range changes {
		if err := b.Apply(ctx, change); err != nil {
			b.logger.Warn("goal change dropped",
				"goal", change.GoalID,
				"change", change.Change,
				"error", err)
			continue
		}
		applied = append(applied, change)
	}
	return applied
}

// AddProgress appends a note to a goal's progress log and touches it.
func (b *Backlog) AddProgress(ctx context.Context, goalID, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("progress %s: empty note", goalID)
	}

	goal, err := b.store.GetGoal(ctx, goalID)
	if err != nil {
		return fmt.Errorf("progress %s: %w", goalID, err)
	}
	if goal == nil {
		return fmt.Errorf("progress %s: %w", goalID, ErrNotFound)
	}

	goal.Progress = append(goal.Progress, models.ProgressNote{At: time.Now(), Text: text})
	if _, err := b.store.SaveGoal(ctx, goalID, *goal); err != nil {
		return fmt.Errorf("progress %s: %w", goalID, err)
	}
	return nil
}

// Reparent moves a goal under a new parent, or to the root when newParent
// is empty. The ancestor chain is re-walked from the new parent.
func (b *Backlog) Reparent(ctx context.Context, goalID, newParent string) error {
	goal, err := b.store.GetGoal(ctx, goalID)
	if err != nil {
		return fmt.Errorf("reparent %s: %w", goalID, err)
	}
	if goal == nil {
		return fmt.Errorf("reparent %s: %w", goalID, ErrNotFound)
	}

	if newParent == "" {
		goal.ParentID = nil
	} else {
		if newParent == goalID {
			return fmt.Errorf("reparent %s: %w", goalID, ErrCycle)
		}
		parent, err := b.store.GetGoal(ctx, newParent)
		if err != nil {
			return fmt.Errorf("reparent %s: %w", goalID, err)
		}
		if parent == nil {
			return fmt.Errorf("reparent %s: parent %s: %w", goalID, newParent, ErrNotFound)
		}
		if err := b.walkAncestors(ctx, newParent, goalID); err != nil {
			return fmt.Errorf("reparent %s: %w", goalID, err)
		}
		goal.ParentID = &newParent
	}

	if _, err := b.store.SaveGoal(ctx, goalID, *goal); err != nil {
		return fmt.Errorf("reparent %s: %w", goalID, err)
	}
	return nil
}

// Get returns one goal, ErrNotFound if missing.
func (b *Backlog) Get(ctx context.Context, goalID string) (*models.Goal, error) {
	goal, err := b.store.GetGoal(ctx, goalID)
	if err != nil {
		return nil, err
	}
	if goal == nil {
		return nil, fmt.Errorf("get %s: %w", goalID, ErrNotFound)
	}
	return goal, nil
}

// List returns goals in the given tiers, most recently touched first.
func (b *Backlog) List(ctx context.Context, priorities []models.GoalPriority, limit int) ([]models.Goal, error) {
	return b.store.ListGoals(ctx, priorities, limit)
}

// transitionAllowed encodes the lifecycle state machine. Adjacent moves
// along backburner <-> queued <-> active, plus any open tier to a terminal
// one. Everything else, including no-op self transitions, is rejected.
func transitionAllowed(from, to models.GoalPriority) bool {
	if from.Terminal() {
		return false
	}
	if to.Terminal() {
		return true
	}
	switch from {
	case models.PriorityBackburner:
		return to == models.PriorityQueued
	case models.PriorityQueued:
		return to == models.PriorityBackburner || to == models.PriorityActive
	case models.PriorityActive:
		return to == models.PriorityQueued
	}
	return false
}

// walkAncestors follows the parent chain from startID upward. It errors
// with ErrCycle when the chain revisits a node or reaches forbidden (the
// goal about to be re-attached beneath startID).
func (b *Backlog) walkAncestors(ctx context.Context, startID, forbidden string) error {
	seen := map[string]bool{}
	current := startID
	for current != "" {
		if current == forbidden || seen[current] {
			return ErrCycle
		}
		seen[current] = true

		goal, err := b.store.GetGoal(ctx, current)
		if err != nil {
			return err
		}
		if goal == nil {
			// Dangling parent pointers end the chain; the goal itself
			// may have been archived out from under its children.
			return nil
		}
		if goal.ParentID == nil {
			return nil
		}
		current = *goal.ParentID
	}
	return nil
}

// openChildren returns direct children not yet completed. Abandoned
// children count as open: completing the parent over them still takes an
// explicit override.
func (b *Backlog) openChildren(ctx context.Context, goalID string) ([]models.Goal, error) {
	children, err := b.store.ChildGoals(ctx, goalID)
	if err != nil {
		return nil, err
	}
	open := children[:0]
	for _, child := range children {
		if child.Priority != models.PriorityCompleted {
			open = append(open, child)
		}
	}
	return open, nil
}
