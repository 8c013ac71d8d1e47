package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// MaxNeighbors caps the size of a neighborhood after fusion.
const MaxNeighbors = 20

// Neighbor is one weighted member of a computed neighborhood. Neighborhoods
// are stored as ordered lists (weight descending, id ascending on ties) so
// that recomputation against unchanged inputs is byte-identical.
type Neighbor struct {
	ID     string  `json:"id"`
	Weight float64 `json:"weight"`
}

// NeighborhoodEntry is the derived cache of an entity's fused neighbor set.
// Created lazily the first time the subject is marked stale; recomputed in
// place by the background worker.
type NeighborhoodEntry struct {
	ID         surrealmodels.RecordID `json:"id"`
	Subject    surrealmodels.RecordID `json:"subject"`
	Neighbors  []Neighbor             `json:"neighbors,omitempty"`
	ComputedAt *time.Time             `json:"computed_at,omitempty"`
	Stale      bool                   `json:"stale"`
	CreatedAt  time.Time              `json:"created_at,omitempty"`
}
