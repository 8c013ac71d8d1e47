package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// Entity is a concept node in the knowledge graph. Entities are created by
// the worker's concept extraction batch and by the connect action; the
// fusion engine treats entities active within the activation window as the
// similarity candidate pool.
type Entity struct {
	ID          surrealmodels.RecordID `json:"id"`
	Name        string                 `json:"name"`
	Kind        string                 `json:"kind,omitempty"`
	Labels      []string               `json:"labels,omitempty"`
	Embedding   []float32              `json:"embedding,omitempty"`
	DecayWeight float64                `json:"decay_weight,omitempty"`
	LastActive  time.Time              `json:"last_active,omitempty"`
	Created     time.Time              `json:"created,omitempty"`
}

// RelationInput is the input structure for creating relation edges.
type RelationInput struct {
	FromID  string  `json:"from_id"`
	ToID    string  `json:"to_id"`
	RelType string  `json:"rel_type"`
	Weight  float64 `json:"weight,omitempty"` // Default 1.0
}

// RelationEdge is one explicit edge of the relation graph, as consumed by
// the structural fusion signal.
type RelationEdge struct {
	In      surrealmodels.RecordID `json:"in"`
	Out     surrealmodels.RecordID `json:"out"`
	RelType string                 `json:"rel_type"`
	Weight  float64                `json:"weight"`
}
