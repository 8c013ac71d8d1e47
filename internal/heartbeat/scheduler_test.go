package heartbeat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/raphaelgruber/pulse/internal/goals"
	"github.com/raphaelgruber/pulse/internal/models"
	"github.com/raphaelgruber/pulse/internal/oracle"
)

type memStore struct {
	mu          sync.Mutex
	energyState *models.EnergyState
	schedState  *models.SchedulerState
	energySaves []models.EnergyState
	heartbeats  []models.HeartbeatRecord
	events      []models.Event
	processed   []string
	episodes    []models.Episode
	recent      []models.Episode
	topics      []string
	identity    *models.Identity

	episodeErr error
}

func (m *memStore) LoadEnergyState(context.Context) (*models.EnergyState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.energyState == nil {
		return nil, nil
	}
	cp := *m.energyState
	return &cp, nil
}

func (m *memStore) SaveEnergyState(_ context.Context, state models.EnergyState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.energyState = &state
	m.energySaves = append(m.energySaves, state)
	return nil
}

func (m *memStore) LoadSchedulerState(context.Context) (*models.SchedulerState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.schedState == nil {
		return nil, nil
	}
	cp := *m.schedState
	return &cp, nil
}

func (m *memStore) SaveSchedulerState(_ context.Context, state models.SchedulerState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedState = &state
	return nil
}

func (m *memStore) AppendHeartbeat(_ context.Context, rec models.HeartbeatRecord) (*models.HeartbeatRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.ID = models.NewRecordID(models.TableHeartbeat, fmt.Sprint(rec.Number))
	m.heartbeats = append(m.heartbeats, rec)
	return &rec, nil
}

func (m *memStore) UnprocessedEvents(_ context.Context, limit int) ([]models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.events) > limit {
		return m.events[:limit], nil
	}
	return m.events, nil
}

func (m *memStore) MarkEventsProcessed(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processed = append(m.processed, ids...)
	return nil
}

func (m *memStore) GetIdentity(context.Context) (*models.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identity, nil
}

func (m *memStore) RecentEpisodes(context.Context, int) ([]models.Episode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recent, nil
}

func (m *memStore) ActiveEntityNames(context.Context, time.Time, int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.topics, nil
}

func (m *memStore) CreateEpisode(_ context.Context, in models.EpisodeInput, embedding []float32) (*models.Episode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.episodeErr != nil {
		return nil, m.episodeErr
	}
	ep := models.Episode{
		ID:        models.NewRecordID(models.TableEpisode, fmt.Sprintf("ep%d", len(m.episodes))),
		Content:   in.Content,
		Kind:      in.Kind,
		Closed:    in.Closed,
		Embedding: embedding,
		Metadata:  in.Metadata,
	}
	m.episodes = append(m.episodes, ep)
	return &ep, nil
}

func (m *memStore) lastHeartbeat() *models.HeartbeatRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.heartbeats) == 0 {
		return nil
	}
	return &m.heartbeats[len(m.heartbeats)-1]
}

type fakeDecider struct {
	mu        sync.Mutex
	decision  *oracle.Decision
	err       error
	bundle    oracle.ContextBundle
	callCount int
	block     chan struct{}
}

func (f *fakeDecider) Decide(_ context.Context, bundle oracle.ContextBundle) (*oracle.Decision, error) {
	f.mu.Lock()
	f.bundle = bundle
	f.callCount++
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.decision == nil {
		return &oracle.Decision{Reasoning: "idle"}, nil
	}
	return f.decision, nil
}

type fakeExecutor struct {
	mu       sync.Mutex
	executed []string
	failOn   string
}

func (f *fakeExecutor) Execute(_ context.Context, action models.ProposedAction) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executed = append(f.executed, action.Kind)
	if f.failOn != "" && action.Kind == f.failOn {
		return nil, errors.New("executor blew up")
	}
	return map[string]any{"status": "ok"}, nil
}

func (f *fakeExecutor) kinds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.executed...)
}

type fakeGoals struct {
	mu      sync.Mutex
	applied []models.GoalChange
	active  []models.Goal
}

func (f *fakeGoals) ApplyAll(_ context.Context, changes []models.GoalChange) []models.GoalChange {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, changes...)
	return changes
}

func (f *fakeGoals) List(context.Context, []models.GoalPriority, int) ([]models.Goal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active, nil
}

type fakeReviewer struct {
	review *goals.Review
	err    error
}

func (f *fakeReviewer) Run(context.Context) (*goals.Review, error) {
	return f.review, f.err
}

type fakeSummarizer struct {
	out string
	err error
}

func (f *fakeSummarizer) Summarize(context.Context, string) (string, error) {
	return f.out, f.err
}

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2}, nil
}

type fixture struct {
	store      *memStore
	decider    *fakeDecider
	executor   *fakeExecutor
	goals      *fakeGoals
	summarizer *fakeSummarizer
	embedder   *fakeEmbedder
}

func newFixture() *fixture {
	return &fixture{
		store: &memStore{
			energyState: &models.EnergyState{Current: 10, Max: 20, BaseRegen: 5},
		},
		decider:    &fakeDecider{},
		executor:   &fakeExecutor{},
		goals:      &fakeGoals{},
		summarizer: &fakeSummarizer{out: "A quiet hour."},
		embedder:   &fakeEmbedder{},
	}
}

func (f *fixture) scheduler(opts Options) *Scheduler {
	return New(Deps{
		Store:      f.store,
		Oracle:     f.decider,
		Executor:   f.executor,
		Goals:      f.goals,
		Reviewer:   &fakeReviewer{review: &goals.Review{Counts: map[models.GoalPriority]int{}}},
		Summarizer: f.summarizer,
		Embedder:   f.embedder,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, opts)
}

func TestRunCycleFullSuccess(t *testing.T) {
	f := newFixture()
	f.store.events = []models.Event{
		{ID: models.NewRecordID(models.TableEvent, "e1"), Kind: "webhook"},
		{ID: models.NewRecordID(models.TableEvent, "e2"), Kind: "reminder"},
	}
	f.decider.decision = &oracle.Decision{
		Reasoning: "catch up on reading",
		Actions: []models.ProposedAction{
			{Kind: "reflect", Params: map[string]any{"topic": "pacing"}},
			{Kind: "inquire_shallow", Params: map[string]any{"query": "gardens"}},
		},
		GoalChanges: []models.GoalChange{{GoalID: "g1", Change: models.PriorityActive}},
	}

	s := f.scheduler(Options{})
	if err := s.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}

	rec := f.store.lastHeartbeat()
	if rec == nil {
		t.Fatal("no heartbeat record appended")
	}
	if rec.Number != 1 {
		t.Errorf("cycle number = %d, want 1", rec.Number)
	}
	// 10 + 5 regen = 15 start; reflect(2) + inquire_shallow(3) = 10 end.
	if rec.EnergyStart != 15 || rec.EnergyEnd != 10 {
		t.Errorf("energy = %.1f -> %.1f, want 15 -> 10", rec.EnergyStart, rec.EnergyEnd)
	}
	if got := f.executor.kinds(); len(got) != 2 || got[0] != "reflect" || got[1] != "inquire_shallow" {
		t.Errorf("executed = %v", got)
	}
	if len(rec.Actions) != 2 || rec.Actions[0].CostCharged != 2 || rec.Actions[1].CostCharged != 3 {
		t.Errorf("outcomes = %+v", rec.Actions)
	}
	if rec.EmotionalValence != 1 {
		t.Errorf("valence = %v, want 1", rec.EmotionalValence)
	}
	if len(rec.GoalsModified) != 1 || len(f.goals.applied) != 1 {
		t.Errorf("goal changes: record %d, applied %d", len(rec.GoalsModified), len(f.goals.applied))
	}
	if rec.Narrative != "A quiet hour." {
		t.Errorf("narrative = %q", rec.Narrative)
	}
	if rec.NarrativeMemory == nil {
		t.Error("narrative memory link missing")
	}
	if len(f.store.episodes) != 1 || f.store.episodes[0].Kind != models.EpisodeHeartbeat || !f.store.episodes[0].Closed {
		t.Errorf("episodes = %+v", f.store.episodes)
	}
	if len(f.store.processed) != 2 {
		t.Errorf("processed events = %v", f.store.processed)
	}
	if len(rec.Environment.PendingEvents) != 2 {
		t.Errorf("snapshot events = %+v", rec.Environment.PendingEvents)
	}
	if f.store.energyState.Current != 10 {
		t.Errorf("persisted energy = %v, want 10", f.store.energyState.Current)
	}
	if f.decider.bundle.AvailableEnergy != 15 || f.decider.bundle.MaxEnergy != 20 {
		t.Errorf("bundle energy = %v/%v", f.decider.bundle.AvailableEnergy, f.decider.bundle.MaxEnergy)
	}
}

func TestRunCycleFirstRunDefaults(t *testing.T) {
	f := newFixture()
	f.store.energyState = nil
	f.store.schedState = nil

	s := f.scheduler(Options{EnergyMax: 12, EnergyRegen: 3})
	if err := s.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}

	rec := f.store.lastHeartbeat()
	if rec == nil {
		t.Fatal("no record")
	}
	// First run starts full; regeneration has nothing to add.
	if rec.EnergyStart != 12 {
		t.Errorf("energy start = %v, want 12", rec.EnergyStart)
	}
	if f.store.schedState.CycleNumber != 1 {
		t.Errorf("cycle counter = %d, want 1", f.store.schedState.CycleNumber)
	}
}

func TestRunCycleGateAdmitsPrefixOnly(t *testing.T) {
	f := newFixture()
	f.store.energyState = &models.EnergyState{Current: 5, Max: 20, BaseRegen: 0}
	f.decider.decision = &oracle.Decision{
		Reasoning: "ambitious",
		Actions: []models.ProposedAction{
			{Kind: "synthesize"}, // 4, fits
			{Kind: "reflect"},    // 2, total 6 > 5: stops
			{Kind: "rest"},       // 0, would fit alone but is past the stop
		},
	}

	s := f.scheduler(Options{})
	if err := s.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}

	if got := f.executor.kinds(); len(got) != 1 || got[0] != "synthesize" {
		t.Errorf("executed = %v, want [synthesize]", got)
	}
	rec := f.store.lastHeartbeat()
	if rec.EnergyEnd != 1 {
		t.Errorf("energy end = %v, want 1", rec.EnergyEnd)
	}
}

func TestRunCycleMalformedOracleFallsBack(t *testing.T) {
	f := newFixture()
	f.decider.err = fmt.Errorf("%w: gibberish", oracle.ErrMalformed)

	s := f.scheduler(Options{})
	if err := s.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}

	rec := f.store.lastHeartbeat()
	if rec == nil {
		t.Fatal("fallback cycle must still append a record")
	}
	if rec.DecisionReasoning != "fallback" {
		t.Errorf("reasoning = %q", rec.DecisionReasoning)
	}
	if got := f.executor.kinds(); len(got) != 2 || got[0] != "reflect" || got[1] != "rest" {
		t.Errorf("executed = %v, want [reflect rest]", got)
	}
}

func TestRunCycleRefusalRunsMinimalDecision(t *testing.T) {
	f := newFixture()
	f.decider.err = fmt.Errorf("%w: no", oracle.ErrRefusal)

	s := f.scheduler(Options{})
	if err := s.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}

	if got := f.executor.kinds(); len(got) != 2 || got[0] != "observe" || got[1] != "remember" {
		t.Errorf("executed = %v, want [observe remember]", got)
	}
}

func TestRunCycleUnavailableSkipsButKeepsEnergy(t *testing.T) {
	f := newFixture()
	f.decider.err = fmt.Errorf("%w: connection refused", oracle.ErrUnavailable)

	s := f.scheduler(Options{})
	if err := s.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if err := s.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}

	if len(f.store.heartbeats) != 0 {
		t.Fatalf("skipped cycles wrote %d records", len(f.store.heartbeats))
	}
	// Regeneration persisted at Initialize: 10+5=15, then 15+5=20.
	if f.store.energyState.Current != 20 {
		t.Errorf("energy after two skips = %v, want 20", f.store.energyState.Current)
	}

	// Recovery leaves a numbering gap.
	f.decider.err = nil
	if err := s.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	rec := f.store.lastHeartbeat()
	if rec.Number != 3 {
		t.Errorf("recovered cycle number = %d, want 3", rec.Number)
	}
}

func TestRunCycleActionFailureContinues(t *testing.T) {
	f := newFixture()
	f.executor.failOn = "reflect"
	f.decider.decision = &oracle.Decision{
		Actions: []models.ProposedAction{
			{Kind: "reflect"},
			{Kind: "inquire_shallow"},
		},
	}

	s := f.scheduler(Options{})
	if err := s.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}

	rec := f.store.lastHeartbeat()
	if len(rec.Actions) != 2 {
		t.Fatalf("outcomes = %+v, want both recorded", rec.Actions)
	}
	if _, ok := rec.Actions[0].Result["error"]; !ok {
		t.Error("failed action missing error in result")
	}
	if _, ok := rec.Actions[1].Result["error"]; ok {
		t.Error("second action should have succeeded")
	}
	// One success, one failure: (1 - 2) / 2.
	if rec.EmotionalValence != -0.5 {
		t.Errorf("valence = %v, want -0.5", rec.EmotionalValence)
	}
}

func TestRunCycleNarrativeFallsBackToFacts(t *testing.T) {
	f := newFixture()
	f.summarizer.err = errors.New("model down")
	f.decider.decision = &oracle.Decision{Reasoning: "stocktaking"}

	s := f.scheduler(Options{})
	if err := s.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}

	rec := f.store.lastHeartbeat()
	if !strings.Contains(rec.Narrative, "Heartbeat 1") || !strings.Contains(rec.Narrative, "stocktaking") {
		t.Errorf("fallback narrative = %q", rec.Narrative)
	}
}

func TestRunCycleEmbedFailureKeepsRecord(t *testing.T) {
	f := newFixture()
	f.embedder.err = errors.New("embedder down")

	s := f.scheduler(Options{})
	if err := s.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}

	rec := f.store.lastHeartbeat()
	if rec == nil {
		t.Fatal("record must persist without the episode")
	}
	if rec.NarrativeMemory != nil {
		t.Error("narrative memory should be empty when embedding fails")
	}
	if rec.Narrative == "" {
		t.Error("narrative text should survive inline")
	}
	if len(f.store.episodes) != 0 {
		t.Errorf("episodes = %+v, want none", f.store.episodes)
	}
}

func TestTriggerNowRejectsWhileBusy(t *testing.T) {
	f := newFixture()
	f.decider.block = make(chan struct{})

	s := f.scheduler(Options{})
	done := make(chan error, 1)
	go func() { done <- s.RunCycle(context.Background()) }()

	waitFor(t, func() bool { return s.Status().CycleInFlight })
	if err := s.TriggerNow(); !errors.Is(err, ErrCycleInFlight) {
		t.Errorf("TriggerNow() during cycle = %v, want ErrCycleInFlight", err)
	}

	close(f.decider.block)
	if err := <-done; err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}

	if err := s.TriggerNow(); err != nil {
		t.Errorf("TriggerNow() while idle = %v", err)
	}
}

func TestSessionPausesLoop(t *testing.T) {
	f := newFixture()
	s := f.scheduler(Options{})

	s.StartSession()
	if !s.SessionActive() {
		t.Fatal("session not active")
	}
	if err := s.TriggerNow(); !errors.Is(err, ErrSessionActive) {
		t.Errorf("TriggerNow() during session = %v, want ErrSessionActive", err)
	}

	s.EndSession(false)
	if s.SessionActive() {
		t.Error("session still active after end")
	}
	st := s.Status()
	if st.LastUserContact == nil {
		t.Error("session end should record user contact")
	}
}

func TestSignificantSessionEndRunsImmediateCycle(t *testing.T) {
	f := newFixture()
	s := f.scheduler(Options{Interval: time.Hour})

	sub, cancelSub := s.Hub().Subscribe()
	defer cancelSub()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	s.StartSession()
	s.EndSession(true)

	select {
	case rec := <-sub:
		if rec.Number != 1 {
			t.Errorf("immediate cycle number = %d", rec.Number)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no cycle ran after significant session end")
	}

	// The snapshot carries the contact timestamp the session wrote.
	if f.store.lastHeartbeat().Environment.LastUserContact == nil {
		t.Error("snapshot missing last user contact")
	}
}

func TestRunTicksOnInterval(t *testing.T) {
	f := newFixture()
	s := f.scheduler(Options{Interval: 20 * time.Millisecond})

	sub, cancelSub := s.Hub().Subscribe()
	defer cancelSub()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	select {
	case <-sub:
	case <-time.After(2 * time.Second):
		t.Fatal("no tick-driven cycle ran")
	}
}

func TestHubDropsSlowSubscribers(t *testing.T) {
	hub := NewHub()
	sub, cancel := hub.Subscribe()
	defer cancel()

	for i := 0; i < subscriberBuffer+5; i++ {
		hub.Publish(models.HeartbeatRecord{Number: int64(i)})
	}

	// The buffer holds the first records; the overflow was dropped, not
	// blocked on.
	count := 0
	for {
		select {
		case <-sub:
			count++
			continue
		default:
		}
		break
	}
	if count != subscriberBuffer {
		t.Errorf("delivered = %d, want %d", count, subscriberBuffer)
	}
	if hub.Subscribers() != 1 {
		t.Errorf("subscribers = %d", hub.Subscribers())
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never became true")
}
