package actions

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/raphaelgruber/pulse/internal/models"
)

// Store is the persistence surface the executors touch.
type Store interface {
	CreateEpisode(ctx context.Context, in models.EpisodeInput, embedding []float32) (*models.Episode, error)
	SearchEpisodes(ctx context.Context, query string, embedding []float32, limit int) ([]models.Episode, error)
	CreateRelation(ctx context.Context, in models.RelationInput) error
	TraverseRelated(ctx context.Context, entityID string, depth int) ([]models.Entity, error)
	CreateOutboxMessage(ctx context.Context, body, channel string) (*models.OutboxMessage, error)
	GetIdentity(ctx context.Context) (*models.Identity, error)
	PutIdentity(ctx context.Context, identity models.Identity) error
	RecentEpisodes(ctx context.Context, limit int) ([]models.Episode, error)
}

// Reasoner is the text-generation surface (the same model the Decision
// Oracle runs on, reused by oracle-flagged actions).
type Reasoner interface {
	GenerateWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Embedder turns text into a vector for episodic storage and retrieval.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// GoalWriter is the slice of the backlog the goal-category actions use.
type GoalWriter interface {
	Create(ctx context.Context, in models.GoalInput) (*models.Goal, error)
	Apply(ctx context.Context, change models.GoalChange) error
}

// Deps holds shared collaborators for executors.
type Deps struct {
	Store    Store
	Model    Reasoner
	Embedder Embedder
	Goals    GoalWriter
	Logger   *slog.Logger
}

// executorFunc runs one admitted action and returns its result payload.
type executorFunc func(ctx context.Context, params map[string]any) (map[string]any, error)

// Registry maps every catalog kind to its executor.
type Registry struct {
	deps Deps
}

// NewRegistry creates the executor registry over the given collaborators.
func NewRegistry(deps Deps) *Registry {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Registry{deps: deps}
}

// executorFor is the single dispatch point from kind to executor. Every
// catalog kind must have a case here; the registry test walks Kinds() and
// fails on any gap.
func (r *Registry) executorFor(kind Kind) executorFunc {
	switch kind {
	case KindRest:
		return r.rest
	case KindObserve:
		return r.observe
	case KindRemember:
		return r.remember
	case KindConnect:
		return r.connect
	case KindReprioritize:
		return r.reprioritize
	case KindReflect:
		return r.reflect
	case KindRecalibrate:
		return r.recalibrate
	case KindInquireShallow:
		return r.inquireShallow
	case KindBrainstorm:
		return r.brainstorm
	case KindSynthesize:
		return r.synthesize
	case KindReachOutUser:
		return r.reachOutUser
	case KindInquireDeep:
		return r.inquireDeep
	}
	return nil
}

// Execute runs a single proposed action and returns its result payload.
// Unknown kinds are rejected; executor failures come back as errors for the
// caller to fold into the ActionOutcome.
func (r *Registry) Execute(ctx context.Context, action models.ProposedAction) (map[string]any, error) {
	kind := Kind(action.Kind)
	if _, ok := Lookup(action.Kind); !ok {
		return nil, fmt.Errorf("unknown action kind: %s", action.Kind)
	}
	exec := r.executorFor(kind)
	if exec == nil {
		return nil, fmt.Errorf("no executor registered for kind: %s", kind)
	}
	return exec(ctx, action.Params)
}

func (r *Registry) rest(_ context.Context, _ map[string]any) (map[string]any, error) {
	return map[string]any{"status": "rested"}, nil
}

func (r *Registry) observe(_ context.Context, _ map[string]any) (map[string]any, error) {
	// The real observation happened at cycle start; the action variant is
	// the oracle deliberately choosing to do nothing but watch.
	return map[string]any{"status": "observed"}, nil
}

func (r *Registry) remember(ctx context.Context, params map[string]any) (map[string]any, error) {
	content := stringParam(params, "content")
	if content == "" {
		// The minimal decision proposes remember without params; an empty
		// remember succeeds without writing anything.
		return map[string]any{"status": "nothing to remember"}, nil
	}

	embedding, err := r.deps.Embedder.Embed(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("remember: %w", err)
	}

	episode, err := r.deps.Store.CreateEpisode(ctx, models.EpisodeInput{
		Content: content,
		Kind:    models.EpisodeNote,
		Closed:  true,
	}, embedding)
	if err != nil {
		return nil, fmt.Errorf("remember: %w", err)
	}

	return map[string]any{"episode_id": models.MustRecordIDString(episode.ID)}, nil
}

func (r *Registry) connect(ctx context.Context, params map[string]any) (map[string]any, error) {
	from := stringParam(params, "from")
	to := stringParam(params, "to")
	if from == "" || to == "" {
		return nil, fmt.Errorf("connect: from and to params required")
	}
	relType := stringParam(params, "rel_type")
	if relType == "" {
		relType = "relates_to"
	}

	err := r.deps.Store.CreateRelation(ctx, models.RelationInput{
		FromID:  from,
		ToID:    to,
		RelType: relType,
		Weight:  1.0,
	})
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	return map[string]any{"from": from, "to": to, "rel_type": relType}, nil
}

func (r *Registry) reprioritize(ctx context.Context, params map[string]any) (map[string]any, error) {
	changes, ok := params["changes"].([]any)
	if !ok || len(changes) == 0 {
		return nil, fmt.Errorf("reprioritize: changes param required")
	}

	applied, dropped := 0, 0
	for _, raw := range changes {
		m, ok := raw.(map[string]any)
		if !ok {
			dropped++
			continue
		}
		change := models.GoalChange{
			GoalID: stringParam(m, "goal_id"),
			Change: models.GoalPriority(stringParam(m, "change")),
			Reason: stringParam(m, "reason"),
		}
		if err := r.deps.Goals.Apply(ctx, change); err != nil {
			r.deps.Logger.Warn("reprioritize change dropped", "goal", change.GoalID, "change", change.Change, "error", err)
			dropped++
			continue
		}
		applied++
	}

	return map[string]any{"applied": applied, "dropped": dropped}, nil
}

func (r *Registry) reflect(ctx context.Context, params map[string]any) (map[string]any, error) {
	topic := stringParam(params, "topic")

	recent, err := r.deps.Store.RecentEpisodes(ctx, 5)
	if err != nil {
		return nil, fmt.Errorf("reflect: %w", err)
	}

	system := `You are the reflective inner voice of a personal assistant. Consider the recent experiences and produce a short, first-person reflection. Be honest about uncertainty. Keep it under 150 words.`
	user := fmt.Sprintf("Recent experiences:\n%s\n\nTopic to reflect on: %s\n\nReflection:", episodeDigest(recent), topic)

	text, err := r.deps.Model.GenerateWithSystem(ctx, system, user)
	if err != nil {
		return nil, fmt.Errorf("reflect: %w", err)
	}

	embedding, err := r.deps.Embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("reflect: %w", err)
	}

	episode, err := r.deps.Store.CreateEpisode(ctx, models.EpisodeInput{
		Content:  text,
		Kind:     models.EpisodeNote,
		Closed:   true,
		Metadata: map[string]any{"action": "reflect", "topic": topic},
	}, embedding)
	if err != nil {
		return nil, fmt.Errorf("reflect: %w", err)
	}

	return map[string]any{"episode_id": models.MustRecordIDString(episode.ID), "chars": len(text)}, nil
}

func (r *Registry) recalibrate(ctx context.Context, params map[string]any) (map[string]any, error) {
	identity, err := r.deps.Store.GetIdentity(ctx)
	if err != nil {
		return nil, fmt.Errorf("recalibrate: %w", err)
	}
	recent, err := r.deps.Store.RecentEpisodes(ctx, 10)
	if err != nil {
		return nil, fmt.Errorf("recalibrate: %w", err)
	}

	current := ""
	if identity != nil {
		current = identity.Summary
	}

	system := `You maintain the identity summary of a personal assistant. Given the current summary and recent experiences, produce an updated summary. Preserve what still holds, adjust what changed. First person, under 200 words, no preamble.`
	user := fmt.Sprintf("Current summary:\n%s\n\nRecent experiences:\n%s\n\nUpdated summary:", current, episodeDigest(recent))

	text, err := r.deps.Model.GenerateWithSystem(ctx, system, user)
	if err != nil {
		return nil, fmt.Errorf("recalibrate: %w", err)
	}

	updated := models.Identity{Summary: strings.TrimSpace(text)}
	if identity != nil {
		updated.Values = identity.Values
	}
	if err := r.deps.Store.PutIdentity(ctx, updated); err != nil {
		return nil, fmt.Errorf("recalibrate: %w", err)
	}

	return map[string]any{"updated": true, "chars": len(text)}, nil
}

func (r *Registry) inquireShallow(ctx context.Context, params map[string]any) (map[string]any, error) {
	return r.inquire(ctx, params, 5, false)
}

func (r *Registry) inquireDeep(ctx context.Context, params map[string]any) (map[string]any, error) {
	return r.inquire(ctx, params, 10, true)
}

// inquire runs retrieval over episodic memory; the deep variant also
// follows the relation graph out from entities named in params.
func (r *Registry) inquire(ctx context.Context, params map[string]any, limit int, traverse bool) (map[string]any, error) {
	query := stringParam(params, "query")
	if query == "" {
		return nil, fmt.Errorf("inquire: query param required")
	}

	embedding, err := r.deps.Embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("inquire: %w", err)
	}

	episodes, err := r.deps.Store.SearchEpisodes(ctx, query, embedding, limit)
	if err != nil {
		return nil, fmt.Errorf("inquire: %w", err)
	}

	matches := make([]map[string]any, 0, len(episodes))
	for _, ep := range episodes {
		matches = append(matches, map[string]any{
			"id":      models.MustRecordIDString(ep.ID),
			"excerpt": excerpt(ep.Content, 200),
		})
	}
	result := map[string]any{"query": query, "matches": matches}

	if traverse {
		if entityID := stringParam(params, "entity"); entityID != "" {
			related, err := r.deps.Store.TraverseRelated(ctx, entityID, 2)
			if err != nil {
				return nil, fmt.Errorf("inquire: %w", err)
			}
			names := make([]string, 0, len(related))
			for _, e := range related {
				names = append(names, e.Name)
			}
			result["related"] = names
		}
	}

	return result, nil
}

func (r *Registry) brainstorm(ctx context.Context, params map[string]any) (map[string]any, error) {
	theme := stringParam(params, "theme")

	recent, err := r.deps.Store.RecentEpisodes(ctx, 5)
	if err != nil {
		return nil, fmt.Errorf("brainstorm: %w", err)
	}

	system := `You generate candidate goals for a personal assistant based on its recent experiences.

Output format (one per line, at most 3 lines):
GOAL|title|description

Guidelines:
- Titles short and concrete
- Descriptions one sentence
- Only goals genuinely worth pursuing; fewer is fine`
	user := fmt.Sprintf("Recent experiences:\n%s\n\nTheme: %s\n\nCandidate goals:", episodeDigest(recent), theme)

	text, err := r.deps.Model.GenerateWithSystem(ctx, system, user)
	if err != nil {
		return nil, fmt.Errorf("brainstorm: %w", err)
	}

	created := 0
	var titles []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "GOAL|") {
			continue
		}
		parts := strings.SplitN(line, "|", 3)
		if len(parts) < 2 || strings.TrimSpace(parts[1]) == "" {
			continue
		}
		in := models.GoalInput{
			Title:  strings.TrimSpace(parts[1]),
			Source: models.SourceCuriosity,
		}
		if len(parts) == 3 {
			in.Description = strings.TrimSpace(parts[2])
		}
		if _, err := r.deps.Goals.Create(ctx, in); err != nil {
			r.deps.Logger.Warn("brainstormed goal not created", "title", in.Title, "error", err)
			continue
		}
		titles = append(titles, in.Title)
		created++
	}

	return map[string]any{"created": created, "titles": titles}, nil
}

func (r *Registry) synthesize(ctx context.Context, params map[string]any) (map[string]any, error) {
	query := stringParam(params, "query")
	if query == "" {
		return nil, fmt.Errorf("synthesize: query param required")
	}

	embedding, err := r.deps.Embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("synthesize: %w", err)
	}
	episodes, err := r.deps.Store.SearchEpisodes(ctx, query, embedding, 8)
	if err != nil {
		return nil, fmt.Errorf("synthesize: %w", err)
	}

	system := `You synthesize an insight from a personal assistant's memories. Answer based ONLY on the provided memories. If they are insufficient, say so. Be concise.`
	user := fmt.Sprintf("Memories:\n%s\n\nQuestion: %s\n\nInsight:", episodeDigest(episodes), query)

	text, err := r.deps.Model.GenerateWithSystem(ctx, system, user)
	if err != nil {
		return nil, fmt.Errorf("synthesize: %w", err)
	}

	resultEmbedding, err := r.deps.Embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("synthesize: %w", err)
	}
	episode, err := r.deps.Store.CreateEpisode(ctx, models.EpisodeInput{
		Content:  text,
		Kind:     models.EpisodeNote,
		Closed:   true,
		Metadata: map[string]any{"action": "synthesize", "query": query},
	}, resultEmbedding)
	if err != nil {
		return nil, fmt.Errorf("synthesize: %w", err)
	}

	return map[string]any{"episode_id": models.MustRecordIDString(episode.ID)}, nil
}

func (r *Registry) reachOutUser(ctx context.Context, params map[string]any) (map[string]any, error) {
	message := stringParam(params, "message")
	if message == "" {
		return nil, fmt.Errorf("reach_out_user: message param required")
	}
	channel := stringParam(params, "channel")

	msg, err := r.deps.Store.CreateOutboxMessage(ctx, message, channel)
	if err != nil {
		return nil, fmt.Errorf("reach_out_user: %w", err)
	}

	return map[string]any{"outbox_id": models.MustRecordIDString(msg.ID), "channel": msg.Channel}, nil
}

// stringParam reads a string out of an action's params, empty if absent.
func stringParam(params map[string]any, key string) string {
	if params == nil {
		return ""
	}
	s, _ := params[key].(string)
	return s
}

// episodeDigest renders episodes into a compact prompt block, preferring
// summaries over raw content.
func episodeDigest(episodes []models.Episode) string {
	if len(episodes) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for _, ep := range episodes {
		text := ep.Content
		if ep.Summary != nil && *ep.Summary != "" {
			text = *ep.Summary
		}
		fmt.Fprintf(&b, "- %s\n", excerpt(text, 300))
	}
	return b.String()
}

func excerpt(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
