package goals

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/raphaelgruber/pulse/internal/models"
)

// memStore mimics the goal slice of the database, including the touch
// semantics: create and save bump last_touched, relevance writes do not.
type memStore struct {
	goals map[string]models.Goal
}

func newMemStore() *memStore {
	return &memStore{goals: map[string]models.Goal{}}
}

func (m *memStore) put(id string, g models.Goal) {
	g.ID = models.NewRecordID(models.TableGoal, id)
	m.goals[id] = g
}

func (m *memStore) CreateGoal(_ context.Context, id string, g models.Goal) (*models.Goal, error) {
	if _, exists := m.goals[id]; exists {
		return nil, fmt.Errorf("goal %s already exists", id)
	}
	g.ID = models.NewRecordID(models.TableGoal, id)
	g.CreatedAt = time.Now()
	g.LastTouched = g.CreatedAt
	m.goals[id] = g
	out := g
	return &out, nil
}

func (m *memStore) SaveGoal(_ context.Context, id string, g models.Goal) (*models.Goal, error) {
	g.ID = models.NewRecordID(models.TableGoal, id)
	g.LastTouched = time.Now()
	m.goals[id] = g
	out := g
	return &out, nil
}

func (m *memStore) GetGoal(_ context.Context, id string) (*models.Goal, error) {
	g, ok := m.goals[id]
	if !ok {
		return nil, nil
	}
	out := g
	return &out, nil
}

func (m *memStore) ListGoals(_ context.Context, priorities []models.GoalPriority, limit int) ([]models.Goal, error) {
	var out []models.Goal
	for _, g := range m.goals {
		if len(priorities) > 0 {
			match := false
			for _, p := range priorities {
				if g.Priority == p {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		out = append(out, g)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) ChildGoals(_ context.Context, parentID string) ([]models.Goal, error) {
	var out []models.Goal
	for _, g := range m.goals {
		if g.ParentID != nil && *g.ParentID == parentID {
			out = append(out, g)
		}
	}
	return out, nil
}

func (m *memStore) CountGoalsByPriority(_ context.Context) (map[models.GoalPriority]int, error) {
	counts := map[models.GoalPriority]int{}
	for _, g := range m.goals {
		counts[g.Priority]++
	}
	return counts, nil
}

func (m *memStore) SetGoalRelevance(_ context.Context, id string, relevance float64) error {
	g, ok := m.goals[id]
	if !ok {
		return fmt.Errorf("goal %s not found", id)
	}
	g.LastRelevance = &relevance
	m.goals[id] = g
	return nil
}

func strPtr(s string) *string { return &s }

func TestCreateInitialPriority(t *testing.T) {
	tests := []struct {
		name    string
		seed    func(*memStore)
		in      models.GoalInput
		want    models.GoalPriority
		wantErr bool
		wantIs  error
	}{
		{
			name: "curiosity starts queued",
			in:   models.GoalInput{Title: "learn more about tides", Source: models.SourceCuriosity},
			want: models.PriorityQueued,
		},
		{
			name: "external starts queued",
			in:   models.GoalInput{Title: "imported goal", Source: models.SourceExternal},
			want: models.PriorityQueued,
		},
		{
			name: "user request starts active",
			in:   models.GoalInput{Title: "answer the question", Source: models.SourceUserRequest},
			want: models.PriorityActive,
		},
		{
			name: "derived inherits active parent",
			seed: func(s *memStore) {
				s.put("p1", models.Goal{Title: "parent", Priority: models.PriorityActive, Source: models.SourceCuriosity})
			},
			in:   models.GoalInput{Title: "subtask", Source: models.SourceDerived, ParentID: strPtr("p1")},
			want: models.PriorityActive,
		},
		{
			name: "derived inherits backburner parent",
			seed: func(s *memStore) {
				s.put("p1", models.Goal{Title: "parent", Priority: models.PriorityBackburner, Source: models.SourceCuriosity})
			},
			in:   models.GoalInput{Title: "subtask", Source: models.SourceDerived, ParentID: strPtr("p1")},
			want: models.PriorityBackburner,
		},
		{
			name:    "derived without parent",
			in:      models.GoalInput{Title: "orphan", Source: models.SourceDerived},
			wantErr: true,
			wantIs:  ErrParentRequired,
		},
		{
			name: "derived from completed parent",
			seed: func(s *memStore) {
				s.put("p1", models.Goal{Title: "done", Priority: models.PriorityCompleted, Source: models.SourceCuriosity})
			},
			in:      models.GoalInput{Title: "late subtask", Source: models.SourceDerived, ParentID: strPtr("p1")},
			wantErr: true,
		},
		{
			name:    "missing parent",
			in:      models.GoalInput{Title: "child", Source: models.SourceCuriosity, ParentID: strPtr("ghost")},
			wantErr: true,
			wantIs:  ErrNotFound,
		},
		{
			name:    "empty title",
			in:      models.GoalInput{Title: "   ", Source: models.SourceCuriosity},
			wantErr: true,
		},
		{
			name:    "unknown source",
			in:      models.GoalInput{Title: "x", Source: "destiny"},
			wantErr: true,
		},
		{
			name:    "valence out of range",
			in:      models.GoalInput{Title: "x", Source: models.SourceCuriosity, EmotionalValence: 1.5},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			if tt.seed != nil {
				tt.seed(store)
			}
			b := New(store, nil)

			goal, err := b.Create(context.Background(), tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if tt.wantIs != nil && !errors.Is(err, tt.wantIs) {
					t.Errorf("error = %v, want %v", err, tt.wantIs)
				}
				return
			}
			if err != nil {
				t.Fatalf("Create() error = %v", err)
			}
			if goal.Priority != tt.want {
				t.Errorf("priority = %s, want %s", goal.Priority, tt.want)
			}
		})
	}
}

func TestCreateDetectsCorruptAncestry(t *testing.T) {
	store := newMemStore()
	// a and b point at each other, which should never happen; creating
	// under either must refuse rather than loop.
	store.put("a", models.Goal{Title: "a", Priority: models.PriorityQueued, Source: models.SourceCuriosity, ParentID: strPtr("b")})
	store.put("b", models.Goal{Title: "b", Priority: models.PriorityQueued, Source: models.SourceCuriosity, ParentID: strPtr("a")})
	b := New(store, nil)

	_, err := b.Create(context.Background(), models.GoalInput{
		Title:    "child",
		Source:   models.SourceCuriosity,
		ParentID: strPtr("a"),
	})
	if !errors.Is(err, ErrCycle) {
		t.Errorf("Create() error = %v, want ErrCycle", err)
	}
}

func TestApplyTransitions(t *testing.T) {
	open := []models.GoalPriority{models.PriorityActive, models.PriorityQueued, models.PriorityBackburner}

	allowed := map[models.GoalPriority][]models.GoalPriority{
		models.PriorityBackburner: {models.PriorityQueued},
		models.PriorityQueued:     {models.PriorityBackburner, models.PriorityActive},
		models.PriorityActive:     {models.PriorityQueued},
	}
	for _, from := range open {
		allowed[from] = append(allowed[from], models.PriorityCompleted, models.PriorityAbandoned)
	}

	all := append(append([]models.GoalPriority{}, open...), models.PriorityCompleted, models.PriorityAbandoned)

	for _, from := range all {
		for _, to := range all {
			t.Run(fmt.Sprintf("%s_to_%s", from, to), func(t *testing.T) {
				store := newMemStore()
				store.put("g1", models.Goal{Title: "g", Priority: from, Source: models.SourceCuriosity})
				b := New(store, nil)

				err := b.Apply(context.Background(), models.GoalChange{
					GoalID: "g1",
					Change: to,
					Reason: "because the situation changed",
				})

				want := false
				for _, ok := range allowed[from] {
					if to == ok {
						want = true
					}
				}

				if want && err != nil {
					t.Errorf("Apply(%s -> %s) error = %v, want success", from, to, err)
				}
				if !want && !errors.Is(err, ErrInvalidTransition) {
					t.Errorf("Apply(%s -> %s) error = %v, want ErrInvalidTransition", from, to, err)
				}

				got, _ := store.GetGoal(context.Background(), "g1")
				if want && got.Priority != to {
					t.Errorf("priority after apply = %s, want %s", got.Priority, to)
				}
				if !want && got.Priority != from {
					t.Errorf("rejected apply mutated priority to %s", got.Priority)
				}
			})
		}
	}
}

func TestApplyAbandonRequiresReason(t *testing.T) {
	store := newMemStore()
	store.put("g1", models.Goal{Title: "g", Priority: models.PriorityActive, Source: models.SourceCuriosity})
	b := New(store, nil)

	err := b.Apply(context.Background(), models.GoalChange{GoalID: "g1", Change: models.PriorityAbandoned})
	if !errors.Is(err, ErrReasonRequired) {
		t.Fatalf("Apply() error = %v, want ErrReasonRequired", err)
	}

	err = b.Apply(context.Background(), models.GoalChange{
		GoalID: "g1",
		Change: models.PriorityAbandoned,
		Reason: "superseded by a better formulation",
	})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	got, _ := store.GetGoal(context.Background(), "g1")
	if got.AbandonedAt == nil || got.AbandonmentReason == nil {
		t.Error("abandonment timestamp or reason not recorded")
	}
}

func TestApplyCompleteSetsTimestamp(t *testing.T) {
	store := newMemStore()
	store.put("g1", models.Goal{Title: "g", Priority: models.PriorityActive, Source: models.SourceCuriosity})
	b := New(store, nil)

	if err := b.Apply(context.Background(), models.GoalChange{GoalID: "g1", Change: models.PriorityCompleted}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	got, _ := store.GetGoal(context.Background(), "g1")
	if got.CompletedAt == nil {
		t.Error("completed_at not set")
	}
}

func TestApplyParentCompletion(t *testing.T) {
	seed := func(childPriority models.GoalPriority) *memStore {
		store := newMemStore()
		store.put("p", models.Goal{Title: "parent", Priority: models.PriorityActive, Source: models.SourceCuriosity})
		store.put("c", models.Goal{Title: "child", Priority: childPriority, Source: models.SourceDerived, ParentID: strPtr("p")})
		return store
	}

	t.Run("open child blocks completion", func(t *testing.T) {
		b := New(seed(models.PriorityQueued), nil)
		err := b.Apply(context.Background(), models.GoalChange{GoalID: "p", Change: models.PriorityCompleted})
		if !errors.Is(err, ErrChildrenIncomplete) {
			t.Errorf("Apply() error = %v, want ErrChildrenIncomplete", err)
		}
	})

	t.Run("abandoned child still blocks", func(t *testing.T) {
		b := New(seed(models.PriorityAbandoned), nil)
		err := b.Apply(context.Background(), models.GoalChange{GoalID: "p", Change: models.PriorityCompleted})
		if !errors.Is(err, ErrChildrenIncomplete) {
			t.Errorf("Apply() error = %v, want ErrChildrenIncomplete", err)
		}
	})

	t.Run("completed child releases parent", func(t *testing.T) {
		b := New(seed(models.PriorityCompleted), nil)
		if err := b.Apply(context.Background(), models.GoalChange{GoalID: "p", Change: models.PriorityCompleted}); err != nil {
			t.Errorf("Apply() error = %v", err)
		}
	})

	t.Run("override wins over open child", func(t *testing.T) {
		b := New(seed(models.PriorityQueued), nil)
		err := b.Apply(context.Background(), models.GoalChange{
			GoalID:   "p",
			Change:   models.PriorityCompleted,
			Override: true,
		})
		if err != nil {
			t.Errorf("Apply() error = %v", err)
		}
	})
}

func TestApplyAllDropsInvalid(t *testing.T) {
	store := newMemStore()
	store.put("g1", models.Goal{Title: "one", Priority: models.PriorityQueued, Source: models.SourceCuriosity})
	store.put("g2", models.Goal{Title: "two", Priority: models.PriorityBackburner, Source: models.SourceCuriosity})
	b := New(store, nil)

	applied := b.ApplyAll(context.Background(), []models.GoalChange{
		{GoalID: "g1", Change: models.PriorityActive},
		{GoalID: "g2", Change: models.PriorityActive}, // backburner cannot jump to active
		{GoalID: "ghost", Change: models.PriorityQueued},
		{GoalID: "g2", Change: models.PriorityQueued},
	})

	if len(applied) != 2 {
		t.Fatalf("applied %d changes, want 2", len(applied))
	}
	g1, _ := store.GetGoal(context.Background(), "g1")
	g2, _ := store.GetGoal(context.Background(), "g2")
	if g1.Priority != models.PriorityActive || g2.Priority != models.PriorityQueued {
		t.Errorf("priorities = %s/%s, want active/queued", g1.Priority, g2.Priority)
	}
}

func TestReparent(t *testing.T) {
	seed := func() *memStore {
		store := newMemStore()
		store.put("a", models.Goal{Title: "a", Priority: models.PriorityActive, Source: models.SourceCuriosity})
		store.put("b", models.Goal{Title: "b", Priority: models.PriorityQueued, Source: models.SourceDerived, ParentID: strPtr("a")})
		store.put("c", models.Goal{Title: "c", Priority: models.PriorityQueued, Source: models.SourceDerived, ParentID: strPtr("b")})
		return store
	}

	t.Run("move to new parent", func(t *testing.T) {
		store := seed()
		b := New(store, nil)
		if err := b.Reparent(context.Background(), "c", "a"); err != nil {
			t.Fatalf("Reparent() error = %v", err)
		}
		got, _ := store.GetGoal(context.Background(), "c")
		if got.ParentID == nil || *got.ParentID != "a" {
			t.Errorf("parent = %v, want a", got.ParentID)
		}
	})

	t.Run("detach to root", func(t *testing.T) {
		store := seed()
		b := New(store, nil)
		if err := b.Reparent(context.Background(), "b", ""); err != nil {
			t.Fatalf("Reparent() error = %v", err)
		}
		got, _ := store.GetGoal(context.Background(), "b")
		if got.ParentID != nil {
			t.Errorf("parent = %v, want nil", got.ParentID)
		}
	})

	t.Run("cycle through descendants", func(t *testing.T) {
		b := New(seed(), nil)
		// a <- b <- c; hanging a under c closes the loop.
		if err := b.Reparent(context.Background(), "a", "c"); !errors.Is(err, ErrCycle) {
			t.Errorf("Reparent() error = %v, want ErrCycle", err)
		}
	})

	t.Run("self parent", func(t *testing.T) {
		b := New(seed(), nil)
		if err := b.Reparent(context.Background(), "a", "a"); !errors.Is(err, ErrCycle) {
			t.Errorf("Reparent() error = %v, want ErrCycle", err)
		}
	})
}

func TestAddProgress(t *testing.T) {
	store := newMemStore()
	store.put("g1", models.Goal{Title: "g", Priority: models.PriorityActive, Source: models.SourceCuriosity})
	b := New(store, nil)

	if err := b.AddProgress(context.Background(), "g1", "made a first pass"); err != nil {
		t.Fatalf("AddProgress() error = %v", err)
	}
	if err := b.AddProgress(context.Background(), "g1", "second pass"); err != nil {
		t.Fatalf("AddProgress() error = %v", err)
	}

	got, _ := store.GetGoal(context.Background(), "g1")
	if len(got.Progress) != 2 {
		t.Fatalf("progress entries = %d, want 2", len(got.Progress))
	}
	if got.Progress[0].Text != "made a first pass" {
		t.Errorf("first note = %q", got.Progress[0].Text)
	}

	if err := b.AddProgress(context.Background(), "ghost", "note"); !errors.Is(err, ErrNotFound) {
		t.Errorf("AddProgress(ghost) error = %v, want ErrNotFound", err)
	}
}
