// Package models defines data structures for the pulse cognitive loop.
package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// GoalPriority is the lifecycle tier of a goal.
type GoalPriority string

const (
	PriorityActive     GoalPriority = "active"
	PriorityQueued     GoalPriority = "queued"
	PriorityBackburner GoalPriority = "backburner"
	PriorityCompleted  GoalPriority = "completed"
	PriorityAbandoned  GoalPriority = "abandoned"
)

// Valid reports whether p is a known priority tier.
func (p GoalPriority) Valid() bool {
	switch p {
	case PriorityActive, PriorityQueued, PriorityBackburner, PriorityCompleted, PriorityAbandoned:
		return true
	}
	return false
}

// Terminal reports whether p is a terminal tier.
func (p GoalPriority) Terminal() bool {
	return p == PriorityCompleted || p == PriorityAbandoned
}

// GoalSource indicates how a goal came into existence.
type GoalSource string

const (
	SourceCuriosity   GoalSource = "curiosity"    // Brainstorm action or spontaneous interest
	SourceUserRequest GoalSource = "user_request" // User explicitly asked for it
	SourceIdentity    GoalSource = "identity"     // Derived from identity/values
	SourceDerived     GoalSource = "derived"      // Subgoal split off a parent
	SourceExternal    GoalSource = "external"     // External system or import
)

// Valid reports whether s is a known goal source.
func (s GoalSource) Valid() bool {
	switch s {
	case SourceCuriosity, SourceUserRequest, SourceIdentity, SourceDerived, SourceExternal:
		return true
	}
	return false
}

// ProgressNote is one entry in a goal's ordered progress log.
type ProgressNote struct {
	At   time.Time `json:"at"`
	Text string    `json:"text"`
}

// Goal is a pending intention tracked by the backlog.
type Goal struct {
	ID          surrealmodels.RecordID `json:"id"`
	Title       string                 `json:"title"`
	Description string                 `json:"description,omitempty"`
	Priority    GoalPriority           `json:"priority"`
	Source      GoalSource             `json:"source"`
	ParentID    *string                `json:"parent_id,omitempty"`
	Labels      []string               `json:"labels,omitempty"`
	Progress    []ProgressNote         `json:"progress,omitempty"`
	BlockedBy   *string                `json:"blocked_by,omitempty"`

	// EmotionalValence is how the loop feels about this goal, in [-1, 1].
	EmotionalValence float64 `json:"emotional_valence"`

	// LastRelevance is the relevance score measured at the most recent
	// backlog review, used as the baseline for promotion candidates.
	LastRelevance *float64 `json:"last_relevance,omitempty"`

	CreatedAt         time.Time  `json:"created_at"`
	LastTouched       time.Time  `json:"last_touched"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	AbandonedAt       *time.Time `json:"abandoned_at,omitempty"`
	AbandonmentReason *string    `json:"abandonment_reason,omitempty"`
}

// GoalInput is the input structure for creating goals.
type GoalInput struct {
	Title            string     `json:"title"`
	Description      string     `json:"description,omitempty"`
	Source           GoalSource `json:"source"`
	ParentID         *string    `json:"parent_id,omitempty"`
	Labels           []string   `json:"labels,omitempty"`
	EmotionalValence float64    `json:"emotional_valence,omitempty"`
}

// GoalChange is a single requested lifecycle transition, either proposed by
// the Decision Oracle or issued deterministically (reprioritize, CLI).
type GoalChange struct {
	GoalID string       `json:"goal_id"`
	Change GoalPriority `json:"change"`
	Reason string       `json:"reason,omitempty"`

	// Override permits completing a parent whose children are not all done.
	Override bool `json:"override,omitempty"`
}
