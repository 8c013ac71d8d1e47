package models

import (
	"fmt"
	"regexp"
	"strings"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// Table names used across the store layer.
const (
	TableEntity       = "entity"
	TableEpisode      = "episode"
	TableGoal         = "goal"
	TableHeartbeat    = "heartbeat"
	TableNeighborhood = "neighborhood"
	TableEvent        = "event"
	TableOutbox       = "outbox"
)

// NewRecordID builds a table-qualified record id.
func NewRecordID(table, id string) surrealmodels.RecordID {
	return surrealmodels.NewRecordID(table, id)
}

// RecordIDString safely extracts the string ID from a SurrealDB RecordID.
// Returns an error if the ID is not a string type.
func RecordIDString(id surrealmodels.RecordID) (string, error) {
	s, ok := id.ID.(string)
	if !ok {
		return "", fmt.Errorf("unexpected ID type: %T (expected string)", id.ID)
	}
	return s, nil
}

// MustRecordIDString extracts the string ID, panicking if not a string.
// Use only when you're certain the ID is a string (e.g., after DB operations that return strings).
func MustRecordIDString(id surrealmodels.RecordID) string {
	s, err := RecordIDString(id)
	if err != nil {
		panic(err)
	}
	return s
}

var slugPattern = regexp.MustCompile(`[^a-z0-9\-]`)

// Slugify normalizes a name for use in record IDs.
func Slugify(name string) string {
	s := strings.ToLower(name)
	s = strings.ReplaceAll(s, " ", "-")
	s = strings.ReplaceAll(s, "_", "-")
	return slugPattern.ReplaceAllString(s, "")
}

// RecordNumber extracts an integer ID, as used by heartbeat records keyed
// on their cycle number. SurrealDB integers may round-trip as int64 or
// uint64 depending on the codec.
func RecordNumber(id surrealmodels.RecordID) (int64, error) {
	switch n := id.ID.(type) {
	case int64:
		return n, nil
	case uint64:
		return int64(n), nil
	case int:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("unexpected ID type: %T (expected integer)", id.ID)
	}
}
