// Package db provides SurrealDB query functions for the concept graph and
// episodic memory.
package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/raphaelgruber/pulse/internal/models"
)

// SimilarEntity is one row of a cosine similarity scan.
type SimilarEntity struct {
	ID         surrealmodels.RecordID `json:"id"`
	Similarity float64                `json:"similarity"`
}

// UpsertEntity creates or updates a concept entity by ID. Labels merge
// additively via array::union; last_active resets to now and decay_weight
// to 1.0, which puts the entity back into the fusion activation pool. The
// subject's neighborhood is marked stale in the same batch.
// Returns (entity, wasCreated, error).
func (c *Client) UpsertEntity(
	ctx context.Context,
	id string,
	name string,
	kind string,
	labels []string,
	embedding []float32,
) (*models.Entity, bool, error) {
	// Ensure labels is not nil
	if labels == nil {
		labels = []string{}
	}

	// Check if entity exists to determine action
	existsSQL := `SELECT count() AS c FROM type::record("entity", $id)`
	existsResult, err := surrealdb.Query[[]struct{ C int }](ctx, c.db, existsSQL, map[string]any{"id": id})
	if err != nil {
		return nil, false, fmt.Errorf("check entity exists: %w", err)
	}

	wasCreated := true
	if existsResult != nil && len(*existsResult) > 0 && len((*existsResult)[0].Result) > 0 {
		wasCreated = (*existsResult)[0].Result[0].C == 0
	}

	sql := `
		UPSERT type::record("entity", $id) SET
			name = $name,
			kind = $kind,
			labels = array::union(labels ?? [], $labels),
			embedding = $embedding,
			last_active = time::now(),
			decay_weight = 1.0
		RETURN AFTER;

		UPSERT type::record("neighborhood", $id) SET
			subject = type::record("entity", $id),
			stale = true;
	`

	results, err := surrealdb.Query[[]models.Entity](ctx, c.db, sql, map[string]any{
		"id":        id,
		"name":      name,
		"kind":      kind,
		"labels":    labels,
		"embedding": embedding,
	})
	if err != nil {
		return nil, false, fmt.Errorf("upsert entity: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, false, fmt.Errorf("upsert entity: no result returned")
	}

	return &(*results)[0].Result[0], wasCreated, nil
}

// GetEntity retrieves an entity by ID.
// Returns nil if not found.
func (c *Client) GetEntity(ctx context.Context, id string) (*models.Entity, error) {
	results, err := surrealdb.Query[[]models.Entity](ctx, c.db, `
		SELECT * FROM type::record("entity", $id)
	`, map[string]any{"id": id})

	if err != nil {
		return nil, fmt.Errorf("get entity: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	return &(*results)[0].Result[0], nil
}

// CreateRelation creates a relation edge between two entities and marks
// both endpoint neighborhoods stale so the worker recomputes them. The
// unique_key index sorts the endpoints, so one edge per unordered pair and
// rel_type; duplicate edges are treated as success.
// Returns ErrNotFound if either endpoint doesn't exist.
func (c *Client) CreateRelation(ctx context.Context, in models.RelationInput) error {
	weight := in.Weight
	if weight == 0 {
		weight = 1.0
	}

	sql := `
		BEGIN TRANSACTION;

		IF !record::exists(type::record("entity", $from_id)) OR !record::exists(type::record("entity", $to_id)) {
			THROW "entity not found"
		};

		RELATE type::record("entity", $from_id)->relates->type::record("entity", $to_id) SET
			rel_type = $rel_type,
			weight = $weight;

		UPSERT type::record("neighborhood", $from_id) SET
			subject = type::record("entity", $from_id),
			stale = true;
		UPSERT type::record("neighborhood", $to_id) SET
			subject = type::record("entity", $to_id),
			stale = true;

		COMMIT TRANSACTION;
	`

	_, err := surrealdb.Query[any](ctx, c.db, sql, map[string]any{
		"from_id":  in.FromID,
		"to_id":    in.ToID,
		"rel_type": in.RelType,
		"weight":   weight,
	})
	if err != nil {
		wrapped := wrapQueryError(err)
		if errors.Is(wrapped, ErrAlreadyExists) {
			return nil
		}
		return fmt.Errorf("create relation: %w", wrapped)
	}
	return nil
}

// TraverseRelated walks the relates graph from a starting entity in both
// directions up to depth hops and returns the connected entities.
func (c *Client) TraverseRelated(ctx context.Context, entityID string, depth int) ([]models.Entity, error) {
	if depth < 1 {
		depth = 1
	}

	// Depth must be literal (cannot parameterize), so use fmt.Sprintf
	sql := fmt.Sprintf(`
		SELECT ->relates..%d->entity.* AS outbound, <-relates..%d<-entity.* AS inbound
		FROM type::record("entity", $id)
	`, depth, depth)

	type hops struct {
		Outbound []models.Entity `json:"outbound"`
		Inbound  []models.Entity `json:"inbound"`
	}

	results, err := surrealdb.Query[[]hops](ctx, c.db, sql, map[string]any{"id": entityID})
	if err != nil {
		return nil, fmt.Errorf("traverse: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return []models.Entity{}, nil
	}

	// Merge both directions, dropping duplicates and the start entity
	row := (*results)[0].Result[0]
	seen := map[string]bool{entityID: true}
	merged := make([]models.Entity, 0, len(row.Outbound)+len(row.Inbound))
	for _, ent := range append(row.Outbound, row.Inbound...) {
		key, err := models.RecordIDString(ent.ID)
		if err != nil {
			continue
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		merged = append(merged, ent)
	}
	return merged, nil
}

// AdjacentEntityIDs returns the IDs of entities one relation hop away from
// the given entity, in either edge direction.
func (c *Client) AdjacentEntityIDs(ctx context.Context, entityID string) ([]string, error) {
	sql := `
		SELECT array::distinct(array::union(->relates->entity.id, <-relates<-entity.id)) AS ids
		FROM type::record("entity", $id)
	`

	type row struct {
		IDs []surrealmodels.RecordID `json:"ids"`
	}

	results, err := surrealdb.Query[[]row](ctx, c.db, sql, map[string]any{"id": entityID})
	if err != nil {
		return nil, fmt.Errorf("adjacent entities: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return []string{}, nil
	}

	ids := make([]string, 0, len((*results)[0].Result[0].IDs))
	for _, rid := range (*results)[0].Result[0].IDs {
		s, err := models.RecordIDString(rid)
		if err != nil {
			continue
		}
		ids = append(ids, s)
	}
	return ids, nil
}

// SimilarActiveEntities scans entities active since the given cutoff and
// returns the top matches by cosine similarity against the embedding,
// excluding the subject itself.
func (c *Client) SimilarActiveEntities(
	ctx context.Context,
	subjectID string,
	embedding []float32,
	activeSince time.Time,
	limit int,
) ([]SimilarEntity, error) {
	sql := `
		SELECT id, vector::similarity::cosine(embedding, $emb) AS similarity
		FROM entity
		WHERE last_active >= $since AND id != type::record("entity", $subject)
		ORDER BY similarity DESC
		LIMIT $limit
	`

	results, err := surrealdb.Query[[]SimilarEntity](ctx, c.db, sql, map[string]any{
		"emb":     embedding,
		"since":   activeSince,
		"subject": subjectID,
		"limit":   limit,
	})
	if err != nil {
		return nil, fmt.Errorf("similar entities: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []SimilarEntity{}, nil
	}
	return (*results)[0].Result, nil
}

// ActiveEntityNames returns the names of entities active since the cutoff,
// most recently active first. The Orient phase hands these to the oracle
// as topic hints.
func (c *Client) ActiveEntityNames(ctx context.Context, activeSince time.Time, limit int) ([]string, error) {
	type row struct {
		Name string `json:"name"`
	}

	results, err := surrealdb.Query[[]row](ctx, c.db, `
		SELECT name FROM entity
		WHERE last_active >= $since
		ORDER BY last_active DESC
		LIMIT $limit
	`, map[string]any{"since": activeSince, "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("active entity names: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []string{}, nil
	}

	names := make([]string, 0, len((*results)[0].Result))
	for _, r := range (*results)[0].Result {
		names = append(names, r.Name)
	}
	return names, nil
}

// CreateEpisode stores a new episodic memory entry with its embedding.
func (c *Client) CreateEpisode(ctx context.Context, in models.EpisodeInput, embedding []float32) (*models.Episode, error) {
	kind := in.Kind
	if kind == "" {
		kind = models.EpisodeNote
	}
	metadata := in.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	sql := `
		CREATE type::record("episode", $id) SET
			content = $content,
			embedding = $embedding,
			kind = $kind,
			closed = $closed,
			context = $context,
			metadata = $metadata,
			timestamp = time::now()
		RETURN AFTER
	`

	results, err := surrealdb.Query[[]models.Episode](ctx, c.db, sql, map[string]any{
		"id":        uuid.New().String(),
		"content":   in.Content,
		"embedding": embedding,
		"kind":      string(kind),
		"closed":    in.Closed,
		"context":   in.Context,
		"metadata":  metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("create episode: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("create episode: no result returned")
	}

	return &(*results)[0].Result[0], nil
}

// GetEpisode retrieves an episode by ID.
// Returns nil if not found.
func (c *Client) GetEpisode(ctx context.Context, id string) (*models.Episode, error) {
	results, err := surrealdb.Query[[]models.Episode](ctx, c.db, `
		SELECT * FROM type::record("episode", $id)
	`, map[string]any{"id": id})

	if err != nil {
		return nil, fmt.Errorf("get episode: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	return &(*results)[0].Result[0], nil
}

// SearchEpisodes performs RRF fusion of BM25 + vector search over episodes.
// Returns episodes ranked by combined relevance with recency consideration.
func (c *Client) SearchEpisodes(
	ctx context.Context,
	query string,
	embedding []float32,
	limit int,
) ([]models.Episode, error) {
	// RRF fusion query - combines vector (2x limit for variety) with BM25
	// Vector: HNSW with ef=40 for better recall
	// BM25: full-text search analyzer 0
	// RRF k=60 (standard constant for rank fusion)
	sql := fmt.Sprintf(`
		SELECT * FROM search::rrf([
			(SELECT id, content, summary, kind, closed, concepts_extracted, context, metadata, timestamp
			 FROM episode
			 WHERE embedding <|%d,40|> $emb
			 ORDER BY timestamp DESC),
			(SELECT id, content, summary, kind, closed, concepts_extracted, context, metadata, timestamp
			 FROM episode
			 WHERE content @0@ $q
			 ORDER BY timestamp DESC)
		], $limit, 60)
	`, limit*2)

	results, err := surrealdb.Query[[]models.Episode](ctx, c.db, sql, map[string]any{
		"q":     query,
		"emb":   embedding,
		"limit": limit,
	})
	if err != nil {
		return nil, fmt.Errorf("search episodes: %w", err)
	}

	if results != nil && len(*results) > 0 {
		return (*results)[0].Result, nil
	}
	return []models.Episode{}, nil
}

// RecentEpisodes returns the newest episodes by timestamp, embedding omitted.
func (c *Client) RecentEpisodes(ctx context.Context, limit int) ([]models.Episode, error) {
	sql := `
		SELECT id, content, summary, kind, closed, concepts_extracted, context, metadata, timestamp
		FROM episode
		ORDER BY timestamp DESC
		LIMIT $limit
	`

	results, err := surrealdb.Query[[]models.Episode](ctx, c.db, sql, map[string]any{"limit": limit})
	if err != nil {
		return nil, fmt.Errorf("recent episodes: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []models.Episode{}, nil
	}
	return (*results)[0].Result, nil
}

// LinkOccurrence records that an entity appears in an episode at the given
// sequence position and marks the entity's neighborhood stale. Re-linking
// the same position is a no-op.
func (c *Client) LinkOccurrence(ctx context.Context, entityID, episodeID string, sequence int) error {
	sql := `
		RELATE type::record("entity", $entity_id)->appears_in->type::record("episode", $episode_id) SET
			sequence = $sequence;

		UPSERT type::record("neighborhood", $entity_id) SET
			subject = type::record("entity", $entity_id),
			stale = true;
	`

	_, err := surrealdb.Query[any](ctx, c.db, sql, map[string]any{
		"entity_id":  entityID,
		"episode_id": episodeID,
		"sequence":   sequence,
	})
	if err != nil {
		wrapped := wrapQueryError(err)
		if errors.Is(wrapped, ErrAlreadyExists) {
			return nil
		}
		return fmt.Errorf("link occurrence: %w", wrapped)
	}
	return nil
}

// OccurrencesAround returns every appears_in row from episodes the subject
// entity appears in, including the subject's own rows. The fusion loader
// partitions these into subject positions and co-occurring candidates.
func (c *Client) OccurrencesAround(ctx context.Context, subjectID string) ([]models.Occurrence, error) {
	sql := `
		SELECT in, out, sequence FROM appears_in
		WHERE out IN (SELECT VALUE out FROM appears_in WHERE in = type::record("entity", $subject))
	`

	results, err := surrealdb.Query[[]models.Occurrence](ctx, c.db, sql, map[string]any{
		"subject": subjectID,
	})
	if err != nil {
		return nil, fmt.Errorf("occurrences: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []models.Occurrence{}, nil
	}
	return (*results)[0].Result, nil
}
