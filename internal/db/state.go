package db

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealdb.go"

	"github.com/raphaelgruber/pulse/internal/models"
)

// Singleton record IDs. One scheduler owns one ledger; the fixed IDs make
// restarts find the same rows.
const (
	energyStateID    = "ledger"
	schedulerStateID = "scheduler"
	identityID       = "self"
)

// LoadEnergyState retrieves the persisted energy ledger state.
// Returns nil if no state has been persisted yet.
func (c *Client) LoadEnergyState(ctx context.Context) (*models.EnergyState, error) {
	results, err := surrealdb.Query[[]models.EnergyState](ctx, c.db, `
		SELECT * FROM type::record("energy_state", $id)
	`, map[string]any{"id": energyStateID})

	if err != nil {
		return nil, fmt.Errorf("load energy state: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	return &(*results)[0].Result[0], nil
}

// SaveEnergyState persists the energy ledger state.
func (c *Client) SaveEnergyState(ctx context.Context, state models.EnergyState) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPSERT type::record("energy_state", $id) SET
			current = $current,
			max = $max,
			base_regen = $base_regen,
			updated_at = time::now()
	`, map[string]any{
		"id":         energyStateID,
		"current":    state.Current,
		"max":        state.Max,
		"base_regen": state.BaseRegen,
	})
	if err != nil {
		return fmt.Errorf("save energy state: %w", err)
	}
	return nil
}

// LoadSchedulerState retrieves the persisted scheduler bookkeeping.
// Returns nil if no state has been persisted yet.
func (c *Client) LoadSchedulerState(ctx context.Context) (*models.SchedulerState, error) {
	results, err := surrealdb.Query[[]models.SchedulerState](ctx, c.db, `
		SELECT * FROM type::record("scheduler_state", $id)
	`, map[string]any{"id": schedulerStateID})

	if err != nil {
		return nil, fmt.Errorf("load scheduler state: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	return &(*results)[0].Result[0], nil
}

// SaveSchedulerState persists the scheduler bookkeeping.
func (c *Client) SaveSchedulerState(ctx context.Context, state models.SchedulerState) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPSERT type::record("scheduler_state", $id) SET
			cycle_number = $cycle_number,
			last_cycle_at = $last_cycle_at,
			last_user_contact = $last_user_contact
	`, map[string]any{
		"id":                schedulerStateID,
		"cycle_number":      state.CycleNumber,
		"last_cycle_at":     state.LastCycleAt,
		"last_user_contact": state.LastUserContact,
	})
	if err != nil {
		return fmt.Errorf("save scheduler state: %w", err)
	}
	return nil
}

// GetIdentity retrieves the self-description singleton.
// Returns nil if none has been written yet.
func (c *Client) GetIdentity(ctx context.Context) (*models.Identity, error) {
	results, err := surrealdb.Query[[]models.Identity](ctx, c.db, `
		SELECT * FROM type::record("identity", $id)
	`, map[string]any{"id": identityID})

	if err != nil {
		return nil, fmt.Errorf("get identity: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	return &(*results)[0].Result[0], nil
}

// PutIdentity replaces the self-description singleton.
func (c *Client) PutIdentity(ctx context.Context, identity models.Identity) error {
	values := identity.Values
	if values == nil {
		values = []string{}
	}

	_, err := surrealdb.Query[any](ctx, c.db, `
		UPSERT type::record("identity", $id) SET
			summary = $summary,
			values = $values,
			updated_at = time::now()
	`, map[string]any{
		"id":      identityID,
		"summary": identity.Summary,
		"values":  values,
	})
	if err != nil {
		return fmt.Errorf("put identity: %w", err)
	}
	return nil
}
