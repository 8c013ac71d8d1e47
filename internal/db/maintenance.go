package db

import (
	"context"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"

	"github.com/raphaelgruber/pulse/internal/models"
)

// StaleNeighborhoods returns neighborhood entries awaiting recomputation,
// oldest first for deterministic batch ordering.
func (c *Client) StaleNeighborhoods(ctx context.Context, limit int) ([]models.NeighborhoodEntry, error) {
	results, err := surrealdb.Query[[]models.NeighborhoodEntry](ctx, c.db, `
		SELECT * FROM neighborhood WHERE stale = true ORDER BY created_at ASC LIMIT $limit
	`, map[string]any{"limit": limit})

	if err != nil {
		return nil, fmt.Errorf("stale neighborhoods: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []models.NeighborhoodEntry{}, nil
	}
	return (*results)[0].Result, nil
}

// SaveNeighborhood writes a freshly computed neighbor list and clears the
// stale flag.
func (c *Client) SaveNeighborhood(ctx context.Context, subjectID string, neighbors []models.Neighbor, computedAt time.Time) error {
	if neighbors == nil {
		neighbors = []models.Neighbor{}
	}

	_, err := surrealdb.Query[any](ctx, c.db, `
		UPSERT type::record("neighborhood", $id) SET
			subject = type::record("entity", $id),
			neighbors = $neighbors,
			computed_at = $computed_at,
			stale = false
	`, map[string]any{
		"id":          subjectID,
		"neighbors":   neighbors,
		"computed_at": computedAt,
	})
	if err != nil {
		return fmt.Errorf("save neighborhood: %w", err)
	}
	return nil
}

// GetNeighborhood retrieves the cached neighbor set for an entity.
// Returns nil if the entity has never been marked for fusion.
func (c *Client) GetNeighborhood(ctx context.Context, subjectID string) (*models.NeighborhoodEntry, error) {
	results, err := surrealdb.Query[[]models.NeighborhoodEntry](ctx, c.db, `
		SELECT * FROM type::record("neighborhood", $id)
	`, map[string]any{"id": subjectID})

	if err != nil {
		return nil, fmt.Errorf("get neighborhood: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	return &(*results)[0].Result[0], nil
}

// UnsummarizedEpisodes returns closed session and heartbeat episodes that
// have no summary yet, oldest first.
func (c *Client) UnsummarizedEpisodes(ctx context.Context, limit int) ([]models.Episode, error) {
	results, err := surrealdb.Query[[]models.Episode](ctx, c.db, `
		SELECT * FROM episode
		WHERE closed = true AND summary IS NONE AND kind IN ["session", "heartbeat"]
		ORDER BY timestamp ASC
		LIMIT $limit
	`, map[string]any{"limit": limit})

	if err != nil {
		return nil, fmt.Errorf("unsummarized episodes: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []models.Episode{}, nil
	}
	return (*results)[0].Result, nil
}

// SetEpisodeSummary stores the worker-produced summary for an episode.
func (c *Client) SetEpisodeSummary(ctx context.Context, id, summary string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("episode", $id) SET summary = $summary
	`, map[string]any{"id": id, "summary": summary})
	if err != nil {
		return fmt.Errorf("set episode summary: %w", err)
	}
	return nil
}

// UnlinkedEpisodes returns closed episodes whose concepts have not been
// extracted yet, oldest first.
func (c *Client) UnlinkedEpisodes(ctx context.Context, limit int) ([]models.Episode, error) {
	results, err := surrealdb.Query[[]models.Episode](ctx, c.db, `
		SELECT * FROM episode
		WHERE closed = true AND concepts_extracted = false
		ORDER BY timestamp ASC
		LIMIT $limit
	`, map[string]any{"limit": limit})

	if err != nil {
		return nil, fmt.Errorf("unlinked episodes: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []models.Episode{}, nil
	}
	return (*results)[0].Result, nil
}

// MarkEpisodeExtracted flags an episode as concept-linked.
func (c *Client) MarkEpisodeExtracted(ctx context.Context, id string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("episode", $id) SET concepts_extracted = true
	`, map[string]any{"id": id})
	if err != nil {
		return fmt.Errorf("mark episode extracted: %w", err)
	}
	return nil
}

// CountBacklogs returns the three worker backlog sizes in one round trip:
// stale neighborhoods, unsummarized episodes and unlinked episodes.
func (c *Client) CountBacklogs(ctx context.Context) (stale, unsummarized, unlinked int, err error) {
	type row struct {
		C int `json:"c"`
	}

	sql := `
		SELECT count() AS c FROM neighborhood WHERE stale = true GROUP ALL;
		SELECT count() AS c FROM episode WHERE closed = true AND summary IS NONE AND kind IN ["session", "heartbeat"] GROUP ALL;
		SELECT count() AS c FROM episode WHERE closed = true AND concepts_extracted = false GROUP ALL;
	`

	results, qerr := surrealdb.Query[[]row](ctx, c.db, sql, nil)
	if qerr != nil {
		return 0, 0, 0, fmt.Errorf("count backlogs: %w", qerr)
	}
	if results == nil || len(*results) < 3 {
		return 0, 0, 0, fmt.Errorf("count backlogs: expected 3 results, got %d", len(*results))
	}

	first := func(i int) int {
		if len((*results)[i].Result) == 0 {
			return 0
		}
		return (*results)[i].Result[0].C
	}
	return first(0), first(1), first(2), nil
}

// ApplyDecay reduces decay_weight for entities inactive longer than the
// given number of days. Floor: decay_weight > 0.1 prevents complete decay.
// Returns entities affected with before/after values.
// Uses two-step approach: SELECT to capture old values, then UPDATE.
func (c *Client) ApplyDecay(ctx context.Context, decayDays int, dryRun bool) ([]models.DecayedEntity, error) {
	// Decay factor: multiply by 0.9 (10% reduction each run)
	// Floor at 0.1 to prevent complete decay
	decayFactor := 0.9

	vars := map[string]any{"decay_days": decayDays}

	// Step 1: SELECT entities that would be affected (with computed new values)
	selectSQL := fmt.Sprintf(`
		SELECT
			<string>id AS id,
			name,
			decay_weight AS old_decay_weight,
			math::max(decay_weight * %f, 0.1) AS new_decay_weight
		FROM entity
		WHERE last_active < time::now() - duration::from::days($decay_days)
			AND decay_weight > 0.1
	`, decayFactor)

	results, err := surrealdb.Query[[]models.DecayedEntity](ctx, c.db, selectSQL, vars)
	if err != nil {
		return nil, fmt.Errorf("decay select: %w", err)
	}

	var entities []models.DecayedEntity
	if results != nil && len(*results) > 0 {
		entities = (*results)[0].Result
	}

	// If dry_run, return preview without applying
	if dryRun {
		return entities, nil
	}

	if len(entities) == 0 {
		return []models.DecayedEntity{}, nil
	}

	// Step 2: Apply UPDATE to affected entities
	updateSQL := fmt.Sprintf(`
		UPDATE entity SET
			decay_weight = math::max(decay_weight * %f, 0.1)
		WHERE last_active < time::now() - duration::from::days($decay_days)
			AND decay_weight > 0.1
	`, decayFactor)

	_, err = surrealdb.Query[any](ctx, c.db, updateSQL, vars)
	if err != nil {
		return nil, fmt.Errorf("apply decay: %w", err)
	}

	return entities, nil
}

// RemoveOrphanEntities deletes fully decayed entities with no remaining
// relations or occurrences, along with their neighborhood rows.
// Returns the number of entities removed.
func (c *Client) RemoveOrphanEntities(ctx context.Context) (int, error) {
	sql := `
		DELETE entity
		WHERE decay_weight <= 0.1
			AND array::len(->relates->entity) = 0
			AND array::len(<-relates<-entity) = 0
			AND array::len(->appears_in->episode) = 0
		RETURN BEFORE
	`

	results, err := surrealdb.Query[[]models.Entity](ctx, c.db, sql, nil)
	if err != nil {
		return 0, fmt.Errorf("remove orphans: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return 0, nil
	}
	removed := (*results)[0].Result

	// Drop the matching neighborhood caches
	for _, ent := range removed {
		id, err := models.RecordIDString(ent.ID)
		if err != nil {
			continue
		}
		if _, err := surrealdb.Query[any](ctx, c.db, `
			DELETE type::record("neighborhood", $id)
		`, map[string]any{"id": id}); err != nil {
			return len(removed), fmt.Errorf("remove orphan neighborhood: %w", err)
		}
	}

	return len(removed), nil
}

// DiscardProcessedEvents deletes consumed events received before the cutoff.
// Returns the number discarded.
func (c *Client) DiscardProcessedEvents(ctx context.Context, before time.Time) (int, error) {
	results, err := surrealdb.Query[[]models.Event](ctx, c.db, `
		DELETE event WHERE processed = true AND received_at < $before RETURN BEFORE
	`, map[string]any{"before": before})
	if err != nil {
		return 0, fmt.Errorf("discard events: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return 0, nil
	}
	return len((*results)[0].Result), nil
}
