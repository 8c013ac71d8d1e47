package models

// DecayedEntity represents an entity whose weight was reduced by the
// worker's periodic cleanup.
type DecayedEntity struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	OldDecayWeight float64 `json:"old_decay_weight"`
	NewDecayWeight float64 `json:"new_decay_weight"`
}

// DecayResult is the result of one decay pass.
type DecayResult struct {
	Affected int             `json:"affected"`
	DryRun   bool            `json:"dry_run"`
	Entities []DecayedEntity `json:"entities"`
}

// CleanupResult summarizes one periodic cleanup run.
type CleanupResult struct {
	Decay           DecayResult `json:"decay"`
	OrphansRemoved  int         `json:"orphans_removed"`
	EventsDiscarded int         `json:"events_discarded"`
}
