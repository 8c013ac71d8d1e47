// Package heartbeat runs the periodic cognitive cycle: a strictly
// sequential Observe, Orient, Decide, Gate, Act, Record pipeline over a
// regenerating energy budget. Cycles never overlap; a tick that lands
// while a cycle runs is dropped, and ticking pauses entirely while an
// interactive session is active.
package heartbeat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/raphaelgruber/pulse/internal/actions"
	"github.com/raphaelgruber/pulse/internal/energy"
	"github.com/raphaelgruber/pulse/internal/goals"
	"github.com/raphaelgruber/pulse/internal/metrics"
	"github.com/raphaelgruber/pulse/internal/models"
	"github.com/raphaelgruber/pulse/internal/oracle"
)

const (
	observedEventLimit = 25
	activeTopicLimit   = 12
	activeGoalLimit    = 20

	// topicWindow bounds how far back Orient looks for active entities.
	topicWindow = 24 * time.Hour
)

var (
	// ErrCycleInFlight is returned when a manual trigger hits a running cycle.
	ErrCycleInFlight = errors.New("cycle already in flight")

	// ErrSessionActive is returned when a manual trigger hits a paused loop.
	ErrSessionActive = errors.New("interactive session active")
)

// Store is the persistence surface of one cycle.
type Store interface {
	LoadEnergyState(ctx context.Context) (*models.EnergyState, error)
	SaveEnergyState(ctx context.Context, state models.EnergyState) error
	LoadSchedulerState(ctx context.Context) (*models.SchedulerState, error)
	SaveSchedulerState(ctx context.Context, state models.SchedulerState) error
	AppendHeartbeat(ctx context.Context, rec models.HeartbeatRecord) (*models.HeartbeatRecord, error)
	UnprocessedEvents(ctx context.Context, limit int) ([]models.Event, error)
	MarkEventsProcessed(ctx context.Context, ids []string) error
	GetIdentity(ctx context.Context) (*models.Identity, error)
	RecentEpisodes(ctx context.Context, limit int) ([]models.Episode, error)
	ActiveEntityNames(ctx context.Context, activeSince time.Time, limit int) ([]string, error)
	CreateEpisode(ctx context.Context, in models.EpisodeInput, embedding []float32) (*models.Episode, error)
}

// Decider produces one decision per cycle.
type Decider interface {
	Decide(ctx context.Context, bundle oracle.ContextBundle) (*oracle.Decision, error)
}

// Executor runs one admitted action.
type Executor interface {
	Execute(ctx context.Context, action models.ProposedAction) (map[string]any, error)
}

// GoalManager is the slice of the backlog the scheduler drives.
type GoalManager interface {
	ApplyAll(ctx context.Context, changes []models.GoalChange) []models.GoalChange
	List(ctx context.Context, priorities []models.GoalPriority, limit int) ([]models.Goal, error)
}

// Reviewer runs the pre-decision backlog review.
type Reviewer interface {
	Run(ctx context.Context) (*goals.Review, error)
}

// Summarizer turns the factual cycle account into narrative prose.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// Embedder vectorizes the narrative for episodic storage.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Deps wires the scheduler's collaborators. Store, Oracle, Executor and
// Goals are required; the rest degrade gracefully when nil.
type Deps struct {
	Store      Store
	Oracle     Decider
	Executor   Executor
	Goals      GoalManager
	Reviewer   Reviewer
	Summarizer Summarizer
	Embedder   Embedder
	Hub        *Hub
	Metrics    *metrics.Collector
	Logger     *slog.Logger
}

// Options tunes the loop.
type Options struct {
	Interval       time.Duration
	EnergyMax      float64
	EnergyRegen    float64
	RecentEpisodes int
}

// Scheduler owns the heartbeat loop and its pause state.
type Scheduler struct {
	store      Store
	decider    Decider
	executor   Executor
	backlog    GoalManager
	reviewer   Reviewer
	summarizer Summarizer
	embedder   Embedder
	hub        *Hub
	metrics    *metrics.Collector
	logger     *slog.Logger
	opts       Options

	mu          sync.Mutex
	inFlight    bool
	sessionOn   bool
	lastContact *time.Time

	trigger chan struct{}
}

// New creates a scheduler. Zero option fields fall back to defaults
// (1h interval, 20 max energy, 5 regen, 10 recent episodes).
func New(deps Deps, opts Options) *Scheduler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewCollector()
	}
	if deps.Hub == nil {
		deps.Hub = NewHub()
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Hour
	}
	if opts.EnergyMax <= 0 {
		opts.EnergyMax = 20
	}
	if opts.EnergyRegen <= 0 {
		opts.EnergyRegen = 5
	}
	if opts.RecentEpisodes <= 0 {
		opts.RecentEpisodes = 10
	}

	return &Scheduler{
		store:      deps.Store,
		decider:    deps.Oracle,
		executor:   deps.Executor,
		backlog:    deps.Goals,
		reviewer:   deps.Reviewer,
		summarizer: deps.Summarizer,
		embedder:   deps.Embedder,
		hub:        deps.Hub,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		opts:       opts,
		trigger:    make(chan struct{}, 1),
	}
}

// Hub exposes the live record stream for the status server.
func (s *Scheduler) Hub() *Hub {
	return s.hub
}

// Status is the loop's live condition for the status endpoint.
type Status struct {
	SessionActive   bool       `json:"session_active"`
	CycleInFlight   bool       `json:"cycle_in_flight"`
	LastUserContact *time.Time `json:"last_user_contact,omitempty"`
}

// Status reports whether the loop is paused or mid-cycle.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		SessionActive:   s.sessionOn,
		CycleInFlight:   s.inFlight,
		LastUserContact: s.lastContact,
	}
}

// StartSession pauses ticking while the user is interactively present.
func (s *Scheduler) StartSession() {
	now := time.Now()
	s.mu.Lock()
	s.sessionOn = true
	s.lastContact = &now
	s.mu.Unlock()
	s.logger.Info("session started, heartbeat paused")
}

// EndSession resumes ticking. A significant session requests one immediate
// cycle before the normal interval takes over again.
func (s *Scheduler) EndSession(significant bool) {
	now := time.Now()
	s.mu.Lock()
	s.sessionOn = false
	s.lastContact = &now
	s.mu.Unlock()
	s.logger.Info("session ended, heartbeat resumed", "significant", significant)

	if significant {
		select {
		case s.trigger <- struct{}{}:
		default:
		}
	}
}

// SessionActive reports whether ticking is currently paused.
func (s *Scheduler) SessionActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionOn
}

// TriggerNow requests one immediate cycle. It refuses while a cycle is in
// flight or while a session holds the loop paused.
func (s *Scheduler) TriggerNow() error {
	s.mu.Lock()
	busy, paused := s.inFlight, s.sessionOn
	s.mu.Unlock()

	if paused {
		return ErrSessionActive
	}
	if busy {
		return ErrCycleInFlight
	}
	select {
	case s.trigger <- struct{}{}:
		return nil
	default:
		return ErrCycleInFlight
	}
}

// Run ticks until the context ends.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	s.logger.Info("heartbeat scheduler running", "interval", s.opts.Interval)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if s.SessionActive() {
				s.logger.Debug("tick skipped, session active")
				continue
			}
			s.cycleAndLog(ctx)
			s.drainTick(ticker)
		case <-s.trigger:
			s.cycleAndLog(ctx)
			s.drainTick(ticker)
		}
	}
}

// drainTick discards the one tick that may have accumulated while a cycle
// overran the interval. Dropped, never queued.
func (s *Scheduler) drainTick(ticker *time.Ticker) {
	select {
	case <-ticker.C:
		s.metrics.IncCounter(metrics.CounterTicksDropped)
		s.logger.Debug("tick dropped, cycle overran interval")
	default:
	}
}

func (s *Scheduler) cycleAndLog(ctx context.Context) {
	if err := s.RunCycle(ctx); err != nil {
		s.logger.Error("cycle failed", "error", err)
	}
}

// RunCycle executes one full heartbeat cycle. It returns an error only
// when persistence breaks; oracle trouble is absorbed by substitution
// and an unavailable oracle skips the cycle without error.
func (s *Scheduler) RunCycle(ctx context.Context) error {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return ErrCycleInFlight
	}
	s.inFlight = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.inFlight = false
		s.mu.Unlock()
	}()

	started := time.Now()

	ledger, schedState, err := s.initialize(ctx, started)
	if err != nil {
		return err
	}
	cycleNumber := schedState.CycleNumber
	energyStart := ledger.Available()
	log := s.logger.With("cycle", cycleNumber)
	log.Info("cycle started", "energy", energyStart)

	snapshot, events := s.observe(ctx, started, schedState.LastUserContact)
	review, activeGoals, episodes, topics, identitySummary := s.orient(ctx)

	bundle := oracle.ContextBundle{
		Environment:     snapshot,
		Review:          review,
		ActiveGoals:     activeGoals,
		RecentEpisodes:  episodes,
		ActiveEntities:  topics,
		IdentitySummary: identitySummary,
		AvailableEnergy: ledger.Available(),
		MaxEnergy:       ledger.State().Max,
		CycleNumber:     cycleNumber,
	}

	decideStart := time.Now()
	decision, err := s.decider.Decide(ctx, bundle)
	s.metrics.RecordTiming(metrics.OpOracleDecide, time.Since(decideStart))
	if err != nil {
		switch {
		case errors.Is(err, oracle.ErrMalformed):
			log.Warn("oracle response malformed, substituting fallback decision")
			decision = oracle.FallbackDecision()
			s.metrics.IncCounter(metrics.CounterCyclesFallback)
		case errors.Is(err, oracle.ErrRefusal):
			log.Warn("oracle refused, substituting minimal decision")
			decision = oracle.MinimalDecision()
			s.metrics.IncCounter(metrics.CounterCyclesFallback)
		default:
			log.Warn("oracle unavailable, skipping cycle", "error", err)
			s.metrics.IncCounter(metrics.CounterCyclesSkipped)
			return nil
		}
	}

	admitted, rejected := energy.Admit(decision.Actions, ledger.Available())
	if len(rejected) > 0 {
		log.Info("gate trimmed proposal", "admitted", len(admitted), "rejected", len(rejected))
	}

	outcomes := s.act(ctx, log, ledger, admitted)

	var applied []models.GoalChange
	if len(decision.GoalChanges) > 0 {
		applied = s.backlog.ApplyAll(ctx, decision.GoalChanges)
	}

	rec := models.HeartbeatRecord{
		Number:            cycleNumber,
		StartedAt:         started,
		EndedAt:           time.Now(),
		EnergyStart:       energyStart,
		EnergyEnd:         ledger.Available(),
		Environment:       snapshot,
		DecisionReasoning: decision.Reasoning,
		Actions:           outcomes,
		GoalsModified:     applied,
		EmotionalValence:  valence(outcomes),
	}
	rec.Narrative = s.narrate(ctx, log, rec)
	rec.NarrativeMemory = s.persistNarrative(ctx, log, rec)

	if err := s.store.SaveEnergyState(ctx, ledger.State()); err != nil {
		return fmt.Errorf("persist energy: %w", err)
	}

	stored, err := s.store.AppendHeartbeat(ctx, rec)
	if err != nil {
		return fmt.Errorf("persist heartbeat: %w", err)
	}

	if err := s.store.MarkEventsProcessed(ctx, eventIDs(events)); err != nil {
		log.Warn("marking events processed failed", "error", err)
	}

	s.hub.Publish(*stored)
	s.metrics.IncCounter(metrics.CounterCyclesCompleted)
	log.Info("cycle completed",
		"actions", len(outcomes),
		"goals_modified", len(applied),
		"energy_end", rec.EnergyEnd,
		"valence", rec.EmotionalValence)
	return nil
}

// initialize loads the persisted singletons, applies regeneration and
// advances the cycle counter. Both writes land before any other phase so
// a later skip still leaves a numbering gap and keeps the regenerated
// energy.
func (s *Scheduler) initialize(ctx context.Context, now time.Time) (*energy.Ledger, *models.SchedulerState, error) {
	energyState, err := s.store.LoadEnergyState(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize: %w", err)
	}
	if energyState == nil {
		energyState = &models.EnergyState{
			Current:   s.opts.EnergyMax,
			Max:       s.opts.EnergyMax,
			BaseRegen: s.opts.EnergyRegen,
		}
	}
	ledger := energy.NewLedger(*energyState)
	ledger.Regenerate()

	schedState, err := s.store.LoadSchedulerState(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize: %w", err)
	}
	if schedState == nil {
		schedState = &models.SchedulerState{}
	}
	schedState.CycleNumber++
	schedState.LastCycleAt = &now

	s.mu.Lock()
	if s.lastContact != nil {
		schedState.LastUserContact = s.lastContact
	}
	s.mu.Unlock()

	if err := s.store.SaveSchedulerState(ctx, *schedState); err != nil {
		return nil, nil, fmt.Errorf("initialize: %w", err)
	}
	if err := s.store.SaveEnergyState(ctx, ledger.State()); err != nil {
		return nil, nil, fmt.Errorf("initialize: %w", err)
	}
	return ledger, schedState, nil
}

// observe captures the environment snapshot and the events it is based on.
func (s *Scheduler) observe(ctx context.Context, now time.Time, lastContact *time.Time) (models.EnvironmentSnapshot, []models.Event) {
	snapshot := models.EnvironmentSnapshot{
		Timestamp:       now,
		SessionActive:   s.SessionActive(),
		LastUserContact: lastContact,
	}

	events, err := s.store.UnprocessedEvents(ctx, observedEventLimit)
	if err != nil {
		s.logger.Warn("listing events failed", "error", err)
		return snapshot, nil
	}
	for _, ev := range events {
		id, err := models.RecordIDString(ev.ID)
		if err != nil {
			continue
		}
		snapshot.PendingEvents = append(snapshot.PendingEvents, models.PendingEvent{ID: id, Kind: ev.Kind})
	}
	return snapshot, events
}

// orient gathers the decision context. Every lookup here is best-effort:
// a failing collaborator degrades the bundle instead of aborting the cycle.
func (s *Scheduler) orient(ctx context.Context) (*goals.Review, []models.Goal, []models.Episode, []string, string) {
	var review *goals.Review
	if s.reviewer != nil {
		r, err := s.reviewer.Run(ctx)
		if err != nil {
			s.logger.Warn("backlog review failed", "error", err)
		} else {
			review = r
		}
	}

	activeGoals, err := s.backlog.List(ctx, []models.GoalPriority{models.PriorityActive}, activeGoalLimit)
	if err != nil {
		s.logger.Warn("listing active goals failed", "error", err)
	}

	episodes, err := s.store.RecentEpisodes(ctx, s.opts.RecentEpisodes)
	if err != nil {
		s.logger.Warn("listing recent episodes failed", "error", err)
	}

	topics, err := s.store.ActiveEntityNames(ctx, time.Now().Add(-topicWindow), activeTopicLimit)
	if err != nil {
		s.logger.Warn("listing active topics failed", "error", err)
	}

	summary := ""
	identity, err := s.store.GetIdentity(ctx)
	if err != nil {
		s.logger.Warn("loading identity failed", "error", err)
	} else if identity != nil {
		summary = identity.Summary
	}

	return review, activeGoals, episodes, topics, summary
}

// act executes admitted actions in order, charging each against the live
// ledger. The first failed charge stops the loop; executor failures are
// recorded and execution continues.
func (s *Scheduler) act(ctx context.Context, log *slog.Logger, ledger *energy.Ledger, admitted []models.ProposedAction) []models.ActionOutcome {
	outcomes := make([]models.ActionOutcome, 0, len(admitted))
	for _, action := range admitted {
		spec, ok := actions.Lookup(action.Kind)
		if !ok {
			log.Warn("admitted action has unknown kind", "kind", action.Kind)
			break
		}
		if !ledger.TryCharge(spec.Cost) {
			log.Info("energy exhausted, stopping execution",
				"kind", action.Kind, "cost", spec.Cost, "available", ledger.Available())
			break
		}

		start := time.Now()
		result, err := s.executor.Execute(ctx, action)
		s.metrics.RecordTiming(metrics.OpActionExec, time.Since(start))
		if err != nil {
			log.Warn("action failed", "kind", action.Kind, "error", err)
			result = map[string]any{"error": err.Error()}
		}

		outcomes = append(outcomes, models.ActionOutcome{
			Kind:        action.Kind,
			Params:      action.Params,
			CostCharged: spec.Cost,
			Result:      result,
			Timestamp:   time.Now(),
		})
	}
	return outcomes
}

// narrate produces the cycle story, preferring the summarizer model and
// falling back to the deterministic factual rendering.
func (s *Scheduler) narrate(ctx context.Context, log *slog.Logger, rec models.HeartbeatRecord) string {
	facts := renderFacts(rec)
	if s.summarizer == nil {
		return facts
	}

	start := time.Now()
	narrative, err := s.summarizer.Summarize(ctx, facts)
	s.metrics.RecordTiming(metrics.OpSummarize, time.Since(start))
	if err != nil || strings.TrimSpace(narrative) == "" {
		log.Warn("narrative synthesis failed, using factual rendering", "error", err)
		return facts
	}
	return strings.TrimSpace(narrative)
}

// renderFacts writes the plain factual account of a cycle.
func renderFacts(rec models.HeartbeatRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Heartbeat %d at %s.", rec.Number, rec.StartedAt.Format(time.RFC3339))
	if rec.DecisionReasoning != "" {
		fmt.Fprintf(&b, " Reasoning: %s.", rec.DecisionReasoning)
	}
	if len(rec.Actions) == 0 {
		b.WriteString(" No actions executed.")
	}
	for _, a := range rec.Actions {
		if errMsg, failed := a.Result["error"]; failed {
			fmt.Fprintf(&b, " %s failed (%v).", a.Kind, errMsg)
		} else {
			fmt.Fprintf(&b, " Executed %s.", a.Kind)
		}
	}
	if len(rec.GoalsModified) > 0 {
		fmt.Fprintf(&b, " Adjusted %d goals.", len(rec.GoalsModified))
	}
	fmt.Fprintf(&b, " Energy %.1f to %.1f.", rec.EnergyStart, rec.EnergyEnd)
	return b.String()
}

// persistNarrative stores the narrative as a closed heartbeat episode and
// returns its id. On any failure the record keeps the narrative inline and
// the memory link stays empty.
func (s *Scheduler) persistNarrative(ctx context.Context, log *slog.Logger, rec models.HeartbeatRecord) *surrealmodels.RecordID {
	if rec.Narrative == "" || s.embedder == nil {
		return nil
	}

	start := time.Now()
	emb, err := s.embedder.Embed(ctx, rec.Narrative)
	s.metrics.RecordTiming(metrics.OpEmbedding, time.Since(start))
	if err != nil {
		log.Warn("narrative embedding failed, skipping episode", "error", err)
		return nil
	}

	episode, err := s.store.CreateEpisode(ctx, models.EpisodeInput{
		Content:  rec.Narrative,
		Kind:     models.EpisodeHeartbeat,
		Closed:   true,
		Metadata: map[string]any{"cycle": rec.Number},
	}, emb)
	if err != nil {
		log.Warn("narrative episode write failed", "error", err)
		return nil
	}
	return &episode.ID
}

// valence scores how the cycle went: failures weigh double, result clamped
// to [-1, 1]. No actions means a neutral cycle.
func valence(outcomes []models.ActionOutcome) float64 {
	if len(outcomes) == 0 {
		return 0
	}
	successes, failures := 0, 0
	for _, o := range outcomes {
		if _, failed := o.Result["error"]; failed {
			failures++
		} else {
			successes++
		}
	}
	v := (float64(successes) - 2*float64(failures)) / float64(len(outcomes))
	if v > 1 {
		v = 1
	}
	if v < -1 {
		v = -1
	}
	return v
}

func eventIDs(events []models.Event) []string {
	ids := make([]string, 0, len(events))
	for _, ev := range events {
		id, err := models.RecordIDString(ev.ID)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
