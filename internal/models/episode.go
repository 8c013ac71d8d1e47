package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// EpisodeKind distinguishes where a memory entry came from.
type EpisodeKind string

const (
	EpisodeSession   EpisodeKind = "session"   // Interactive user session transcript
	EpisodeHeartbeat EpisodeKind = "heartbeat" // Cycle narrative written by Record
	EpisodeNote      EpisodeKind = "note"      // Remember action or manual note
)

// Episode is one episodic memory entry. Closed episodes without a summary
// are picked up by the background worker's summarization batch; episodes
// that have not had concepts extracted yet feed the extraction batch.
type Episode struct {
	ID                surrealmodels.RecordID `json:"id"`
	Content           string                 `json:"content"`
	Summary           *string                `json:"summary,omitempty"`
	Embedding         []float32              `json:"embedding,omitempty"`
	Kind              EpisodeKind            `json:"kind"`
	Closed            bool                   `json:"closed"`
	ConceptsExtracted bool                   `json:"concepts_extracted"`
	Context           *string                `json:"context,omitempty"`
	Metadata          map[string]any         `json:"metadata,omitempty"`
	Timestamp         time.Time              `json:"timestamp,omitempty"`
	Created           time.Time              `json:"created,omitempty"`
}

// EpisodeInput is the input structure for creating episodes.
type EpisodeInput struct {
	Content  string         `json:"content"`
	Kind     EpisodeKind    `json:"kind"`
	Closed   bool           `json:"closed"`
	Context  *string        `json:"context,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Occurrence places an entity inside an episode's ordered sequence. Rows of
// the appears_in relation; the sequence distance between occurrences drives
// the temporal fusion signal.
type Occurrence struct {
	Entity   surrealmodels.RecordID `json:"in"`
	Episode  surrealmodels.RecordID `json:"out"`
	Sequence int                    `json:"sequence"`
}
