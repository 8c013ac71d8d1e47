package models

import "testing"

func TestRecordIDString(t *testing.T) {
	tests := []struct {
		name    string
		id      any
		want    string
		wantErr bool
	}{
		{"string id", "goal-123", "goal-123", false},
		{"empty string", "", "", false},
		{"integer id", int64(42), "", true},
		{"nil id", nil, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rid := NewRecordID(TableGoal, "x")
			rid.ID = tt.id
			got, err := RecordIDString(rid)
			if (err != nil) != tt.wantErr {
				t.Fatalf("RecordIDString() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("RecordIDString() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRecordNumber(t *testing.T) {
	tests := []struct {
		name    string
		id      any
		want    int64
		wantErr bool
	}{
		{"int64", int64(7), 7, false},
		{"uint64", uint64(7), 7, false},
		{"int", int(7), 7, false},
		{"string", "7", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rid := NewRecordID(TableHeartbeat, "x")
			rid.ID = tt.id
			got, err := RecordNumber(rid)
			if (err != nil) != tt.wantErr {
				t.Fatalf("RecordNumber() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("RecordNumber() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercase", "hello", "hello"},
		{"uppercase", "Hello World", "hello-world"},
		{"underscores", "auth_service", "auth-service"},
		{"special chars stripped", "Hello, World!", "hello-world"},
		{"empty string", "", ""},
		{"only special chars", "!@#$%", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Slugify(tt.in)
			if got != tt.want {
				t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestGoalPriorityValid(t *testing.T) {
	for _, p := range []GoalPriority{PriorityActive, PriorityQueued, PriorityBackburner, PriorityCompleted, PriorityAbandoned} {
		if !p.Valid() {
			t.Errorf("%q should be valid", p)
		}
	}
	if GoalPriority("urgent").Valid() {
		t.Error("unknown priority should not be valid")
	}
	if PriorityActive.Terminal() || PriorityQueued.Terminal() {
		t.Error("non-terminal priorities reported terminal")
	}
	if !PriorityCompleted.Terminal() || !PriorityAbandoned.Terminal() {
		t.Error("terminal priorities not reported terminal")
	}
}
