package fusion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/raphaelgruber/pulse/internal/db"
	"github.com/raphaelgruber/pulse/internal/models"
)

// Entities must have been active within this window to enter the
// similarity candidate pool.
const activationWindow = 24 * time.Hour

// ErrSubjectNotFound is returned by Load when the subject entity no longer
// exists. Stale neighborhood entries for deleted subjects are pruned by the
// worker's cleanup pass.
var ErrSubjectNotFound = errors.New("fusion: subject entity not found")

// Store is the slice of the database the loader reads from.
type Store interface {
	GetEntity(ctx context.Context, id string) (*models.Entity, error)
	AdjacentEntityIDs(ctx context.Context, entityID string) ([]string, error)
	SimilarActiveEntities(ctx context.Context, subjectID string, embedding []float32, activeSince time.Time, limit int) ([]db.SimilarEntity, error)
	OccurrencesAround(ctx context.Context, subjectID string) ([]models.Occurrence, error)
}

// Loader assembles fusion inputs from the store.
type Loader struct {
	store Store
}

func NewLoader(store Store) *Loader {
	return &Loader{store: store}
}

// Load gathers the structural closure, similarity candidates and occurrence
// rows for one subject. Subjects without an embedding simply contribute no
// similarity candidates.
func (l *Loader) Load(ctx context.Context, subjectID string) (Input, error) {
	subject, err := l.store.GetEntity(ctx, subjectID)
	if err != nil {
		return Input{}, fmt.Errorf("load subject: %w", err)
	}
	if subject == nil {
		return Input{}, ErrSubjectNotFound
	}

	in := Input{SubjectID: subjectID}

	in.OneHop, err = l.store.AdjacentEntityIDs(ctx, subjectID)
	if err != nil {
		return Input{}, fmt.Errorf("one hop: %w", err)
	}

	for _, id := range in.OneHop {
		next, err := l.store.AdjacentEntityIDs(ctx, id)
		if err != nil {
			return Input{}, fmt.Errorf("two hop via %s: %w", id, err)
		}
		in.TwoHop = append(in.TwoHop, next...)
	}

	if len(subject.Embedding) > 0 {
		since := time.Now().Add(-activationWindow)
		similar, err := l.store.SimilarActiveEntities(ctx, subjectID, subject.Embedding, since, similarityTopK)
		if err != nil {
			return Input{}, fmt.Errorf("similarity candidates: %w", err)
		}
		for _, s := range similar {
			id, err := models.RecordIDString(s.ID)
			if err != nil {
				continue
			}
			in.Candidates = append(in.Candidates, Candidate{ID: id, Similarity: s.Similarity})
		}
	}

	rows, err := l.store.OccurrencesAround(ctx, subjectID)
	if err != nil {
		return Input{}, fmt.Errorf("occurrences: %w", err)
	}
	for _, row := range rows {
		entityID, err := models.RecordIDString(row.Entity)
		if err != nil {
			continue
		}
		episodeID, err := models.RecordIDString(row.Episode)
		if err != nil {
			continue
		}
		in.Occurrences = append(in.Occurrences, Occurrence{
			EntityID:  entityID,
			EpisodeID: episodeID,
			Sequence:  row.Sequence,
		})
	}

	return in, nil
}
