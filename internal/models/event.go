package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// Event is an external happening queued for the scheduler's attention.
// Observe lists unprocessed events into the snapshot; Record marks the
// observed ones processed.
type Event struct {
	ID         surrealmodels.RecordID `json:"id"`
	Kind       string                 `json:"kind"`
	Payload    map[string]any         `json:"payload,omitempty"`
	ReceivedAt time.Time              `json:"received_at"`
	Processed  bool                   `json:"processed"`
}

// Identity is the singleton self-description read during Orient and
// rewritten by the recalibrate action.
type Identity struct {
	Summary   string    `json:"summary"`
	Values    []string  `json:"values,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// OutboxMessage is a queued message to the user, written by the
// reach_out_user action. Delivery belongs to an external surface.
type OutboxMessage struct {
	ID        surrealmodels.RecordID `json:"id"`
	Body      string                 `json:"body"`
	Channel   string                 `json:"channel,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
	Delivered bool                   `json:"delivered"`
}
