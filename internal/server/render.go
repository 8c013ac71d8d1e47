package server

import (
	"fmt"
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/raphaelgruber/pulse/internal/models"
)

// Wire types for the HTTP surface. Record ids are rendered as plain
// strings so clients never see the store's record id encoding.

// Heartbeat is the wire form of one completed cycle record.
type Heartbeat struct {
	Number            int64                      `json:"number"`
	StartedAt         time.Time                  `json:"started_at"`
	EndedAt           time.Time                  `json:"ended_at"`
	EnergyStart       float64                    `json:"energy_start"`
	EnergyEnd         float64                    `json:"energy_end"`
	Environment       models.EnvironmentSnapshot `json:"environment"`
	DecisionReasoning string                     `json:"decision_reasoning,omitempty"`
	Actions           []models.ActionOutcome     `json:"actions,omitempty"`
	GoalsModified     []models.GoalChange        `json:"goals_modified,omitempty"`
	Narrative         string                     `json:"narrative,omitempty"`
	NarrativeMemory   string                     `json:"narrative_memory,omitempty"`
	EmotionalValence  float64                    `json:"emotional_valence"`
}

// Goal is the wire form of a backlog goal.
type Goal struct {
	ID                string                `json:"id"`
	Title             string                `json:"title"`
	Description       string                `json:"description,omitempty"`
	Priority          models.GoalPriority   `json:"priority"`
	Source            models.GoalSource     `json:"source"`
	ParentID          *string               `json:"parent_id,omitempty"`
	Labels            []string              `json:"labels,omitempty"`
	Progress          []models.ProgressNote `json:"progress,omitempty"`
	BlockedBy         *string               `json:"blocked_by,omitempty"`
	EmotionalValence  float64               `json:"emotional_valence"`
	LastRelevance     *float64              `json:"last_relevance,omitempty"`
	CreatedAt         time.Time             `json:"created_at"`
	LastTouched       time.Time             `json:"last_touched"`
	CompletedAt       *time.Time            `json:"completed_at,omitempty"`
	AbandonedAt       *time.Time            `json:"abandoned_at,omitempty"`
	AbandonmentReason *string               `json:"abandonment_reason,omitempty"`
}

// Event is the wire form of a queued external event.
type Event struct {
	ID         string         `json:"id"`
	Kind       string         `json:"kind"`
	Payload    map[string]any `json:"payload,omitempty"`
	ReceivedAt time.Time      `json:"received_at"`
	Processed  bool           `json:"processed"`
}

// OutboxMessage is the wire form of a queued message to the user.
type OutboxMessage struct {
	ID        string    `json:"id"`
	Body      string    `json:"body"`
	Channel   string    `json:"channel,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Delivered bool      `json:"delivered"`
}

func renderID(id surrealmodels.RecordID) string {
	s, err := models.RecordIDString(id)
	if err != nil {
		return fmt.Sprintf("%v", id.ID)
	}
	return s
}

func renderHeartbeat(rec models.HeartbeatRecord) Heartbeat {
	out := Heartbeat{
		Number:            rec.Number,
		StartedAt:         rec.StartedAt,
		EndedAt:           rec.EndedAt,
		EnergyStart:       rec.EnergyStart,
		EnergyEnd:         rec.EnergyEnd,
		Environment:       rec.Environment,
		DecisionReasoning: rec.DecisionReasoning,
		Actions:           rec.Actions,
		GoalsModified:     rec.GoalsModified,
		Narrative:         rec.Narrative,
		EmotionalValence:  rec.EmotionalValence,
	}
	if rec.NarrativeMemory != nil {
		out.NarrativeMemory = renderID(*rec.NarrativeMemory)
	}
	return out
}

func renderHeartbeats(recs []models.HeartbeatRecord) []Heartbeat {
	out := make([]Heartbeat, 0, len(recs))
	for _, rec := range recs {
		out = append(out, renderHeartbeat(rec))
	}
	return out
}

func renderGoal(g models.Goal) Goal {
	return Goal{
		ID:                renderID(g.ID),
		Title:             g.Title,
		Description:       g.Description,
		Priority:          g.Priority,
		Source:            g.Source,
		ParentID:          g.ParentID,
		Labels:            g.Labels,
		Progress:          g.Progress,
		BlockedBy:         g.BlockedBy,
		EmotionalValence:  g.EmotionalValence,
		LastRelevance:     g.LastRelevance,
		CreatedAt:         g.CreatedAt,
		LastTouched:       g.LastTouched,
		CompletedAt:       g.CompletedAt,
		AbandonedAt:       g.AbandonedAt,
		AbandonmentReason: g.AbandonmentReason,
	}
}

func renderGoals(goals []models.Goal) []Goal {
	out := make([]Goal, 0, len(goals))
	for _, g := range goals {
		out = append(out, renderGoal(g))
	}
	return out
}

func renderEvent(ev models.Event) Event {
	return Event{
		ID:         renderID(ev.ID),
		Kind:       ev.Kind,
		Payload:    ev.Payload,
		ReceivedAt: ev.ReceivedAt,
		Processed:  ev.Processed,
	}
}

func renderEvents(events []models.Event) []Event {
	out := make([]Event, 0, len(events))
	for _, ev := range events {
		out = append(out, renderEvent(ev))
	}
	return out
}

func renderOutbox(messages []models.OutboxMessage) []OutboxMessage {
	out := make([]OutboxMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, OutboxMessage{
			ID:        renderID(m.ID),
			Body:      m.Body,
			Channel:   m.Channel,
			CreatedAt: m.CreatedAt,
			Delivered: m.Delivered,
		})
	}
	return out
}
