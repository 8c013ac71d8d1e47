// Package worker runs the background maintenance loop: neighborhood
// fusion, episode summarization, concept extraction and periodic decay.
// It is an independent failure domain with no decision authority; its
// store surface exposes neither goals, energy nor the oracle.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/raphaelgruber/pulse/internal/db"
	"github.com/raphaelgruber/pulse/internal/fusion"
	"github.com/raphaelgruber/pulse/internal/llm"
	"github.com/raphaelgruber/pulse/internal/metrics"
	"github.com/raphaelgruber/pulse/internal/models"
	"github.com/raphaelgruber/pulse/internal/parser"
)

const (
	// Entities inactive for longer than this decay on each cleanup pass.
	decayAfterDays = 7

	// Processed events older than this are discarded during cleanup.
	eventRetention = 7 * 24 * time.Hour

	// Entity names offered to the extractor as linking context.
	extractContextWindow = 7 * 24 * time.Hour
	extractContextLimit  = 100

	// Episode text handed to the model is bounded at a sentence boundary.
	llmInputBudget = 6000
)

// Store is the persistence surface of the worker.
type Store interface {
	fusion.Store

	StaleNeighborhoods(ctx context.Context, limit int) ([]models.NeighborhoodEntry, error)
	SaveNeighborhood(ctx context.Context, subjectID string, neighbors []models.Neighbor, computedAt time.Time) error

	UnsummarizedEpisodes(ctx context.Context, limit int) ([]models.Episode, error)
	SetEpisodeSummary(ctx context.Context, id, summary string) error

	UnlinkedEpisodes(ctx context.Context, limit int) ([]models.Episode, error)
	MarkEpisodeExtracted(ctx context.Context, id string) error
	UpsertEntity(ctx context.Context, id, name, kind string, labels []string, embedding []float32) (*models.Entity, bool, error)
	LinkOccurrence(ctx context.Context, entityID, episodeID string, sequence int) error
	CreateRelation(ctx context.Context, in models.RelationInput) error
	ActiveEntityNames(ctx context.Context, activeSince time.Time, limit int) ([]string, error)

	CountBacklogs(ctx context.Context) (stale, unsummarized, unlinked int, err error)
	ApplyDecay(ctx context.Context, decayDays int, dryRun bool) ([]models.DecayedEntity, error)
	RemoveOrphanEntities(ctx context.Context) (int, error)
	DiscardProcessedEvents(ctx context.Context, before time.Time) (int, error)
}

// Summarizer compresses episode content for later recall.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// Extractor pulls entities and relations out of episode text.
type Extractor interface {
	ExtractConcepts(ctx context.Context, text string, existingEntities []string) (string, error)
}

// Embedder vectorizes extracted entities for the similarity signal.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Deps wires the worker's collaborators. Store is required; a nil
// Summarizer or Extractor skips the corresponding batch, a nil Embedder
// stores extracted entities without vectors.
type Deps struct {
	Store      Store
	Summarizer Summarizer
	Extractor  Extractor
	Embedder   Embedder
	Metrics    *metrics.Collector
	Logger     *slog.Logger
}

// Options tunes the loop.
type Options struct {
	Interval          time.Duration
	Backoff           time.Duration
	NeighborhoodBatch int
	SummaryBatch      int
	ExtractBatch      int
	CleanupInterval   time.Duration
}

// Health is a point-in-time view of the worker for the status endpoint.
type Health struct {
	Running             bool       `json:"running"`
	LastCycleAt         *time.Time `json:"last_cycle_at,omitempty"`
	LastError           string     `json:"last_error,omitempty"`
	LastCleanupAt       *time.Time `json:"last_cleanup_at,omitempty"`
	StaleBacklog        int        `json:"stale_backlog"`
	UnsummarizedBacklog int        `json:"unsummarized_backlog"`
	UnlinkedBacklog     int        `json:"unlinked_backlog"`
}

// Worker is the background maintenance loop.
type Worker struct {
	store      Store
	loader     *fusion.Loader
	summarizer Summarizer
	extractor  Extractor
	embedder   Embedder
	metrics    *metrics.Collector
	logger     *slog.Logger
	opts       Options

	mu          sync.Mutex
	health      Health
	lastCleanup time.Time
}

// New creates a worker. Zero option fields fall back to defaults
// (30s interval, 1m backoff, batches 50/5/10, 6h cleanup).
func New(deps Deps, opts Options) *Worker {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewCollector()
	}
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.Backoff <= 0 {
		opts.Backoff = time.Minute
	}
	if opts.NeighborhoodBatch <= 0 {
		opts.NeighborhoodBatch = 50
	}
	if opts.SummaryBatch <= 0 {
		opts.SummaryBatch = 5
	}
	if opts.ExtractBatch <= 0 {
		opts.ExtractBatch = 10
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = 6 * time.Hour
	}

	return &Worker{
		store:      deps.Store,
		loader:     fusion.NewLoader(deps.Store),
		summarizer: deps.Summarizer,
		extractor:  deps.Extractor,
		embedder:   deps.Embedder,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		opts:       opts,
	}
}

// Health returns a thread-safe copy of the worker's state.
func (w *Worker) Health() Health {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.health
}

// Run loops until the context ends. A failed cycle logs, backs off and
// resumes; the loop itself never terminates on error.
func (w *Worker) Run(ctx context.Context) error {
	w.setRunning(true)
	defer w.setRunning(false)

	w.logger.Info("background worker running",
		"interval", w.opts.Interval, "cleanup_interval", w.opts.CleanupInterval)

	for {
		if err := w.RunCycle(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Error("worker cycle failed, backing off", "error", err, "backoff", w.opts.Backoff)
			w.metrics.IncCounter(metrics.CounterWorkerErrors)
			if !sleep(ctx, w.opts.Backoff) {
				return ctx.Err()
			}
			continue
		}
		if !sleep(ctx, w.opts.Interval) {
			return ctx.Err()
		}
	}
}

// RunCycle executes the four batches once. Item failures are logged and
// skipped; an error return means a whole batch listing failed and the
// caller should back off.
func (w *Worker) RunCycle(ctx context.Context) error {
	started := time.Now()

	cycleErr := w.fuseNeighborhoods(ctx)
	if cycleErr == nil {
		cycleErr = w.summarizeEpisodes(ctx)
	}
	if cycleErr == nil {
		cycleErr = w.extractConcepts(ctx)
	}
	if cycleErr == nil && w.cleanupDue(started) {
		cycleErr = w.cleanup(ctx)
	}

	w.updateGauges(ctx)

	w.mu.Lock()
	now := time.Now()
	w.health.LastCycleAt = &now
	if cycleErr != nil {
		w.health.LastError = cycleErr.Error()
	} else {
		w.health.LastError = ""
	}
	w.mu.Unlock()

	if cycleErr != nil {
		return cycleErr
	}
	w.metrics.IncCounter(metrics.CounterWorkerCycles)
	return nil
}

// fuseNeighborhoods recomputes up to one batch of stale neighborhoods.
func (w *Worker) fuseNeighborhoods(ctx context.Context) error {
	entries, err := w.store.StaleNeighborhoods(ctx, w.opts.NeighborhoodBatch)
	if err != nil {
		return fmt.Errorf("list stale neighborhoods: %w", err)
	}
	if len(entries) == 0 {
		return nil
	}

	recomputed := 0
	for _, entry := range entries {
		subjectID, err := models.RecordIDString(entry.Subject)
		if err != nil {
			w.logger.Warn("neighborhood entry has malformed subject", "error", err)
			continue
		}

		start := time.Now()
		input, err := w.loader.Load(ctx, subjectID)
		if err != nil {
			if errors.Is(err, fusion.ErrSubjectNotFound) {
				w.logger.Debug("fusion subject gone, leaving entry for cleanup", "subject", subjectID)
			} else {
				w.logger.Warn("fusion load failed", "subject", subjectID, "error", err)
				w.metrics.IncCounter(metrics.CounterWorkerErrors)
			}
			continue
		}

		neighbors := fusion.Compute(input)
		w.metrics.RecordTiming(metrics.OpFusion, time.Since(start))

		if err := w.store.SaveNeighborhood(ctx, subjectID, neighbors, time.Now()); err != nil {
			w.logger.Warn("saving neighborhood failed", "subject", subjectID, "error", err)
			w.metrics.IncCounter(metrics.CounterWorkerErrors)
			continue
		}
		recomputed++
	}

	w.logger.Debug("neighborhoods recomputed", "count", recomputed, "stale", len(entries))
	return nil
}

// summarizeEpisodes compresses up to one batch of closed episodes.
func (w *Worker) summarizeEpisodes(ctx context.Context) error {
	if w.summarizer == nil {
		return nil
	}

	episodes, err := w.store.UnsummarizedEpisodes(ctx, w.opts.SummaryBatch)
	if err != nil {
		return fmt.Errorf("list unsummarized episodes: %w", err)
	}

	for _, ep := range episodes {
		id, err := models.RecordIDString(ep.ID)
		if err != nil {
			w.logger.Warn("episode has malformed id", "error", err)
			continue
		}

		start := time.Now()
		summary, err := w.summarizer.Summarize(ctx, parser.BoundText(ep.Content, llmInputBudget))
		w.metrics.RecordTiming(metrics.OpSummarize, time.Since(start))
		if err != nil {
			// A fatal provider rejection dooms every remaining item; fail
			// the batch and let the loop back off.
			if errors.Is(err, llm.ErrFatalAPI) {
				return fmt.Errorf("summarize episode %s: %w", id, err)
			}
			w.logger.Warn("summarization failed", "episode", id, "error", err)
			w.metrics.IncCounter(metrics.CounterWorkerErrors)
			continue
		}
		summary = strings.TrimSpace(summary)
		if summary == "" {
			w.logger.Warn("summarizer returned nothing", "episode", id)
			continue
		}

		if err := w.store.SetEpisodeSummary(ctx, id, summary); err != nil {
			w.logger.Warn("saving summary failed", "episode", id, "error", err)
			w.metrics.IncCounter(metrics.CounterWorkerErrors)
		}
	}
	return nil
}

// extractConcepts links up to one batch of episodes into the entity graph.
// An episode is only marked extracted after its lines were applied, so a
// failed extraction is retried on a later cycle.
func (w *Worker) extractConcepts(ctx context.Context) error {
	if w.extractor == nil {
		return nil
	}

	episodes, err := w.store.UnlinkedEpisodes(ctx, w.opts.ExtractBatch)
	if err != nil {
		return fmt.Errorf("list unlinked episodes: %w", err)
	}
	if len(episodes) == 0 {
		return nil
	}

	known, err := w.store.ActiveEntityNames(ctx, time.Now().Add(-extractContextWindow), extractContextLimit)
	if err != nil {
		w.logger.Warn("listing entity names for extraction context failed", "error", err)
	}

	for _, ep := range episodes {
		id, err := models.RecordIDString(ep.ID)
		if err != nil {
			w.logger.Warn("episode has malformed id", "error", err)
			continue
		}

		text := ep.Content
		if ep.Summary != nil && *ep.Summary != "" {
			text = *ep.Summary
		}
		text = parser.BoundText(text, llmInputBudget)

		start := time.Now()
		raw, err := w.extractor.ExtractConcepts(ctx, text, known)
		w.metrics.RecordTiming(metrics.OpExtract, time.Since(start))
		if err != nil {
			if errors.Is(err, llm.ErrFatalAPI) {
				return fmt.Errorf("extract episode %s: %w", id, err)
			}
			w.logger.Warn("concept extraction failed", "episode", id, "error", err)
			w.metrics.IncCounter(metrics.CounterWorkerErrors)
			continue
		}

		w.applyExtraction(ctx, id, raw)

		if err := w.store.MarkEpisodeExtracted(ctx, id); err != nil {
			w.logger.Warn("marking episode extracted failed", "episode", id, "error", err)
			w.metrics.IncCounter(metrics.CounterWorkerErrors)
		}
	}
	return nil
}

// applyExtraction parses the extractor's line format and writes entities,
// occurrences and relations. Malformed lines are skipped; relations whose
// endpoints do not exist are dropped.
func (w *Worker) applyExtraction(ctx context.Context, episodeID, raw string) {
	sequence := 0
	for _, line := range strings.Split(raw, "\n") {
		parts := strings.Split(strings.TrimSpace(line), "|")

		if len(parts) >= 4 && parts[0] == "ENTITY" {
			name := strings.TrimSpace(parts[1])
			kind := strings.TrimSpace(parts[2])
			description := strings.TrimSpace(parts[3])

			entityID := models.Slugify(name)
			if entityID == "" {
				continue
			}

			var embedding []float32
			if w.embedder != nil {
				vecStart := time.Now()
				vec, err := w.embedder.Embed(ctx, name+": "+description)
				w.metrics.RecordTiming(metrics.OpEmbedding, time.Since(vecStart))
				if err != nil {
					w.logger.Warn("embedding extracted entity failed", "entity", entityID, "error", err)
				} else {
					embedding = vec
				}
			}

			if _, _, err := w.store.UpsertEntity(ctx, entityID, name, kind, nil, embedding); err != nil {
				w.logger.Warn("upserting extracted entity failed", "entity", entityID, "error", err)
				w.metrics.IncCounter(metrics.CounterWorkerErrors)
				continue
			}
			if err := w.store.LinkOccurrence(ctx, entityID, episodeID, sequence); err != nil {
				w.logger.Warn("linking occurrence failed", "entity", entityID, "episode", episodeID, "error", err)
			}
			sequence++
			continue
		}

		if len(parts) >= 4 && parts[0] == "RELATION" {
			fromID := models.Slugify(strings.TrimSpace(parts[1]))
			toID := models.Slugify(strings.TrimSpace(parts[2]))
			relType := strings.TrimSpace(parts[3])
			if fromID == "" || toID == "" || relType == "" {
				continue
			}

			err := w.store.CreateRelation(ctx, models.RelationInput{
				FromID:  fromID,
				ToID:    toID,
				RelType: relType,
			})
			if err != nil {
				w.logger.Debug("relation endpoint missing, dropping", "from", fromID, "to", toID, "error", err)
			}
		}
	}
}

// cleanupDue reports whether the periodic cleanup threshold has elapsed.
func (w *Worker) cleanupDue(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return now.Sub(w.lastCleanup) >= w.opts.CleanupInterval
}

// cleanup decays inactive entities, removes fully decayed orphans and
// discards old processed events.
func (w *Worker) cleanup(ctx context.Context) error {
	decayed, err := w.store.ApplyDecay(ctx, decayAfterDays, false)
	if err != nil {
		return fmt.Errorf("apply decay: %w", err)
	}

	removed, err := w.store.RemoveOrphanEntities(ctx)
	if err != nil {
		return fmt.Errorf("remove orphans: %w", err)
	}

	discarded, err := w.store.DiscardProcessedEvents(ctx, time.Now().Add(-eventRetention))
	if err != nil {
		return fmt.Errorf("discard events: %w", err)
	}

	now := time.Now()
	w.mu.Lock()
	w.lastCleanup = now
	w.health.LastCleanupAt = &now
	w.mu.Unlock()

	w.logger.Info("cleanup pass completed",
		"decayed", len(decayed), "orphans_removed", removed, "events_discarded", discarded)
	return nil
}

// updateGauges refreshes the backlog gauges for the status endpoint.
func (w *Worker) updateGauges(ctx context.Context) {
	stale, unsummarized, unlinked, err := w.store.CountBacklogs(ctx)
	if err != nil {
		w.logger.Warn("counting backlogs failed", "error", err)
		return
	}

	w.metrics.SetGauge(metrics.GaugeStaleBacklog, int64(stale))
	w.metrics.SetGauge(metrics.GaugeUnsummarizedBacklog, int64(unsummarized))
	w.metrics.SetGauge(metrics.GaugeUnlinkedBacklog, int64(unlinked))

	w.mu.Lock()
	w.health.StaleBacklog = stale
	w.health.UnsummarizedBacklog = unsummarized
	w.health.UnlinkedBacklog = unlinked
	w.mu.Unlock()
}

func (w *Worker) setRunning(v bool) {
	w.mu.Lock()
	w.health.Running = v
	w.mu.Unlock()
}

// sleep waits for d or the context, reporting false on cancellation.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

var _ Store = (*db.Client)(nil)
