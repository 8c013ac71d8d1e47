package db

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealdb.go"

	"github.com/raphaelgruber/pulse/internal/models"
)

// AppendHeartbeat writes one completed cycle record, keyed by cycle number.
// The unique number index rejects duplicate writes for the same cycle.
func (c *Client) AppendHeartbeat(ctx context.Context, rec models.HeartbeatRecord) (*models.HeartbeatRecord, error) {
	actions := rec.Actions
	if actions == nil {
		actions = []models.ActionOutcome{}
	}
	goalsModified := rec.GoalsModified
	if goalsModified == nil {
		goalsModified = []models.GoalChange{}
	}

	sql := `
		CREATE type::record("heartbeat", $number) SET
			number = $number,
			started_at = $started_at,
			ended_at = $ended_at,
			energy_start = $energy_start,
			energy_end = $energy_end,
			environment = $environment,
			decision_reasoning = $decision_reasoning,
			actions = $actions,
			goals_modified = $goals_modified,
			narrative = $narrative,
			narrative_memory = $narrative_memory,
			emotional_valence = $emotional_valence
		RETURN AFTER
	`

	results, err := surrealdb.Query[[]models.HeartbeatRecord](ctx, c.db, sql, map[string]any{
		"number":             rec.Number,
		"started_at":         rec.StartedAt,
		"ended_at":           rec.EndedAt,
		"energy_start":       rec.EnergyStart,
		"energy_end":         rec.EnergyEnd,
		"environment":        rec.Environment,
		"decision_reasoning": rec.DecisionReasoning,
		"actions":            actions,
		"goals_modified":     goalsModified,
		"narrative":          rec.Narrative,
		"narrative_memory":   rec.NarrativeMemory,
		"emotional_valence":  rec.EmotionalValence,
	})
	if err != nil {
		return nil, fmt.Errorf("append heartbeat: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("append heartbeat: no result returned")
	}
	return &(*results)[0].Result[0], nil
}

// ListHeartbeats returns the most recent cycle records, newest first.
func (c *Client) ListHeartbeats(ctx context.Context, limit int) ([]models.HeartbeatRecord, error) {
	results, err := surrealdb.Query[[]models.HeartbeatRecord](ctx, c.db, `
		SELECT * FROM heartbeat ORDER BY number DESC LIMIT $limit
	`, map[string]any{"limit": limit})

	if err != nil {
		return nil, fmt.Errorf("list heartbeats: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []models.HeartbeatRecord{}, nil
	}
	return (*results)[0].Result, nil
}

// GetHeartbeat retrieves one cycle record by number.
// Returns nil if no record exists for that cycle (skipped cycles leave gaps).
func (c *Client) GetHeartbeat(ctx context.Context, number int64) (*models.HeartbeatRecord, error) {
	results, err := surrealdb.Query[[]models.HeartbeatRecord](ctx, c.db, `
		SELECT * FROM type::record("heartbeat", $number)
	`, map[string]any{"number": number})

	if err != nil {
		return nil, fmt.Errorf("get heartbeat: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	return &(*results)[0].Result[0], nil
}

// CreateEvent queues an external event for the next cycle's Observe phase.
func (c *Client) CreateEvent(ctx context.Context, kind string, payload map[string]any) (*models.Event, error) {
	if payload == nil {
		payload = map[string]any{}
	}

	results, err := surrealdb.Query[[]models.Event](ctx, c.db, `
		CREATE event SET
			kind = $kind,
			payload = $payload,
			received_at = time::now(),
			processed = false
		RETURN AFTER
	`, map[string]any{
		"kind":    kind,
		"payload": payload,
	})
	if err != nil {
		return nil, fmt.Errorf("create event: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("create event: no result returned")
	}
	return &(*results)[0].Result[0], nil
}

// UnprocessedEvents returns queued events oldest first.
func (c *Client) UnprocessedEvents(ctx context.Context, limit int) ([]models.Event, error) {
	results, err := surrealdb.Query[[]models.Event](ctx, c.db, `
		SELECT * FROM event WHERE processed = false ORDER BY received_at ASC LIMIT $limit
	`, map[string]any{"limit": limit})

	if err != nil {
		return nil, fmt.Errorf("unprocessed events: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []models.Event{}, nil
	}
	return (*results)[0].Result, nil
}

// MarkEventsProcessed flags the given events as consumed by a cycle.
func (c *Client) MarkEventsProcessed(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	recordIDs := make([]any, len(ids))
	for i, id := range ids {
		recordIDs[i] = models.NewRecordID(models.TableEvent, id)
	}

	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE event SET processed = true WHERE id IN $ids
	`, map[string]any{"ids": recordIDs})
	if err != nil {
		return fmt.Errorf("mark events processed: %w", err)
	}
	return nil
}

// CreateOutboxMessage queues a message for delivery to the user.
func (c *Client) CreateOutboxMessage(ctx context.Context, body, channel string) (*models.OutboxMessage, error) {
	if channel == "" {
		channel = "user"
	}

	results, err := surrealdb.Query[[]models.OutboxMessage](ctx, c.db, `
		CREATE outbox SET
			body = $body,
			channel = $channel,
			created_at = time::now(),
			delivered = false
		RETURN AFTER
	`, map[string]any{
		"body":    body,
		"channel": channel,
	})
	if err != nil {
		return nil, fmt.Errorf("create outbox message: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("create outbox message: no result returned")
	}
	return &(*results)[0].Result[0], nil
}

// ListOutbox returns queued messages, newest first. With undeliveredOnly the
// result is limited to messages not yet handed to the user.
func (c *Client) ListOutbox(ctx context.Context, undeliveredOnly bool, limit int) ([]models.OutboxMessage, error) {
	filterClause := ""
	if undeliveredOnly {
		filterClause = "WHERE delivered = false"
	}

	sql := fmt.Sprintf(`
		SELECT * FROM outbox %s ORDER BY created_at DESC LIMIT $limit
	`, filterClause)

	results, err := surrealdb.Query[[]models.OutboxMessage](ctx, c.db, sql, map[string]any{"limit": limit})
	if err != nil {
		return nil, fmt.Errorf("list outbox: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []models.OutboxMessage{}, nil
	}
	return (*results)[0].Result, nil
}

// MarkOutboxDelivered flags a message as shown to the user.
func (c *Client) MarkOutboxDelivered(ctx context.Context, id string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("outbox", $id) SET delivered = true
	`, map[string]any{"id": id})
	if err != nil {
		return fmt.Errorf("mark outbox delivered: %w", err)
	}
	return nil
}
