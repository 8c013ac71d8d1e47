package db

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealdb.go"

	"github.com/raphaelgruber/pulse/internal/models"
)

// PriorityCount represents a goal priority tier with its count.
type PriorityCount struct {
	Priority string `json:"priority"`
	Count    int    `json:"count"`
}

// goalVars flattens a goal into query parameters. The backlog engine does
// read-modify-write on whole goals, so create and save share the field set.
func goalVars(id string, g models.Goal) map[string]any {
	labels := g.Labels
	if labels == nil {
		labels = []string{}
	}
	progress := g.Progress
	if progress == nil {
		progress = []models.ProgressNote{}
	}

	return map[string]any{
		"id":                 id,
		"title":              g.Title,
		"description":        g.Description,
		"priority":           string(g.Priority),
		"source":             string(g.Source),
		"parent_id":          g.ParentID,
		"labels":             labels,
		"progress":           progress,
		"blocked_by":         g.BlockedBy,
		"emotional_valence":  g.EmotionalValence,
		"last_relevance":     g.LastRelevance,
		"completed_at":       g.CompletedAt,
		"abandoned_at":       g.AbandonedAt,
		"abandonment_reason": g.AbandonmentReason,
	}
}

const goalFieldsSQL = `
	title = $title,
	description = $description,
	priority = $priority,
	source = $source,
	parent_id = $parent_id,
	labels = $labels,
	progress = $progress,
	blocked_by = $blocked_by,
	emotional_valence = $emotional_valence,
	last_relevance = $last_relevance,
	last_touched = time::now(),
	completed_at = $completed_at,
	abandoned_at = $abandoned_at,
	abandonment_reason = $abandonment_reason
`

// CreateGoal inserts a new goal record under the given ID.
func (c *Client) CreateGoal(ctx context.Context, id string, g models.Goal) (*models.Goal, error) {
	sql := fmt.Sprintf(`
		CREATE type::record("goal", $id) SET %s
		RETURN AFTER
	`, goalFieldsSQL)

	results, err := surrealdb.Query[[]models.Goal](ctx, c.db, sql, goalVars(id, g))
	if err != nil {
		return nil, fmt.Errorf("create goal: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("create goal: no result returned")
	}
	return &(*results)[0].Result[0], nil
}

// SaveGoal writes back a modified goal, bumping last_touched.
func (c *Client) SaveGoal(ctx context.Context, id string, g models.Goal) (*models.Goal, error) {
	sql := fmt.Sprintf(`
		UPSERT type::record("goal", $id) SET %s
		RETURN AFTER
	`, goalFieldsSQL)

	results, err := surrealdb.Query[[]models.Goal](ctx, c.db, sql, goalVars(id, g))
	if err != nil {
		return nil, fmt.Errorf("save goal: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("save goal: no result returned")
	}
	return &(*results)[0].Result[0], nil
}

// GetGoal retrieves a goal by ID.
// Returns nil if not found.
func (c *Client) GetGoal(ctx context.Context, id string) (*models.Goal, error) {
	results, err := surrealdb.Query[[]models.Goal](ctx, c.db, `
		SELECT * FROM type::record("goal", $id)
	`, map[string]any{"id": id})

	if err != nil {
		return nil, fmt.Errorf("get goal: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	return &(*results)[0].Result[0], nil
}

// ListGoals returns goals filtered to the given priority tiers, most
// recently touched first. An empty filter returns all goals.
func (c *Client) ListGoals(ctx context.Context, priorities []models.GoalPriority, limit int) ([]models.Goal, error) {
	filterClause := ""
	vars := map[string]any{"limit": limit}
	if len(priorities) > 0 {
		filterClause = "WHERE priority IN $priorities"
		strs := make([]string, len(priorities))
		for i, p := range priorities {
			strs[i] = string(p)
		}
		vars["priorities"] = strs
	}

	sql := fmt.Sprintf(`
		SELECT * FROM goal %s ORDER BY last_touched DESC LIMIT $limit
	`, filterClause)

	results, err := surrealdb.Query[[]models.Goal](ctx, c.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []models.Goal{}, nil
	}
	return (*results)[0].Result, nil
}

// ChildGoals returns the direct children of a goal.
func (c *Client) ChildGoals(ctx context.Context, parentID string) ([]models.Goal, error) {
	results, err := surrealdb.Query[[]models.Goal](ctx, c.db, `
		SELECT * FROM goal WHERE parent_id = $parent_id
	`, map[string]any{"parent_id": parentID})

	if err != nil {
		return nil, fmt.Errorf("child goals: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []models.Goal{}, nil
	}
	return (*results)[0].Result, nil
}

// SetGoalRelevance stores the relevance baseline measured by a backlog
// review. last_touched stays as it is so that reviews do not reset
// staleness.
func (c *Client) SetGoalRelevance(ctx context.Context, id string, relevance float64) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("goal", $id) SET last_relevance = $relevance
	`, map[string]any{"id": id, "relevance": relevance})

	if err != nil {
		return fmt.Errorf("set goal relevance: %w", err)
	}
	return nil
}

// CountGoalsByPriority returns goal counts grouped by priority tier.
func (c *Client) CountGoalsByPriority(ctx context.Context) (map[models.GoalPriority]int, error) {
	results, err := surrealdb.Query[[]PriorityCount](ctx, c.db, `
		SELECT priority, count() AS count FROM goal GROUP BY priority
	`, nil)

	if err != nil {
		return nil, fmt.Errorf("count goals: %w", err)
	}

	counts := map[models.GoalPriority]int{}
	if results == nil || len(*results) == 0 {
		return counts, nil
	}
	for _, row := range (*results)[0].Result {
		counts[models.GoalPriority(row.Priority)] = row.Count
	}
	return counts, nil
}
