package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// EnergyState is the persisted regenerating budget, a singleton record.
// Invariant: 0 <= Current <= Max. Mutated only through the energy ledger.
type EnergyState struct {
	Current   float64   `json:"current"`
	Max       float64   `json:"max"`
	BaseRegen float64   `json:"base_regen"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// SchedulerState is the persisted scheduler bookkeeping, a singleton record.
type SchedulerState struct {
	CycleNumber     int64      `json:"cycle_number"`
	LastCycleAt     *time.Time `json:"last_cycle_at,omitempty"`
	LastUserContact *time.Time `json:"last_user_contact,omitempty"`
}

// ProposedAction is one action the Decision Oracle asked for, in priority
// order, not yet charged or executed.
type ProposedAction struct {
	Kind   string         `json:"kind"`
	Params map[string]any `json:"params,omitempty"`
}

// ActionOutcome records one executed action inside a heartbeat cycle.
// Executor failures land in Result under the "error" key.
type ActionOutcome struct {
	Kind        string         `json:"kind"`
	Params      map[string]any `json:"params,omitempty"`
	CostCharged float64        `json:"cost_charged"`
	Result      map[string]any `json:"result,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// PendingEvent summarizes one unprocessed external event for the snapshot.
type PendingEvent struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
}

// EnvironmentSnapshot is what the Observe phase captured at cycle start.
type EnvironmentSnapshot struct {
	Timestamp       time.Time      `json:"timestamp"`
	SessionActive   bool           `json:"session_active"`
	LastUserContact *time.Time     `json:"last_user_contact,omitempty"`
	PendingEvents   []PendingEvent `json:"pending_events,omitempty"`
}

// HeartbeatRecord is the append-only log entry for one completed cycle.
// Skipped cycles (oracle unavailable) write no record, which leaves a gap
// in the numbering.
type HeartbeatRecord struct {
	ID                surrealmodels.RecordID `json:"id"`
	Number            int64                  `json:"number"`
	StartedAt         time.Time              `json:"started_at"`
	EndedAt           time.Time              `json:"ended_at"`
	EnergyStart       float64                `json:"energy_start"`
	EnergyEnd         float64                `json:"energy_end"`
	Environment       EnvironmentSnapshot    `json:"environment"`
	DecisionReasoning string                 `json:"decision_reasoning,omitempty"`
	Actions           []ActionOutcome        `json:"actions,omitempty"`
	GoalsModified     []GoalChange           `json:"goals_modified,omitempty"`
	Narrative         string                 `json:"narrative,omitempty"`

	// NarrativeMemory links the episode the narrative was persisted as.
	NarrativeMemory *surrealmodels.RecordID `json:"narrative_memory,omitempty"`

	EmotionalValence float64 `json:"emotional_valence"`
}
