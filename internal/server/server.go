// Package server exposes the daemon's status and control surface over
// HTTP: status and heartbeat queries, goal management, manual cycle
// triggers, session markers, event injection and a websocket stream of
// completed cycles.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/raphaelgruber/pulse/internal/goals"
	"github.com/raphaelgruber/pulse/internal/heartbeat"
	"github.com/raphaelgruber/pulse/internal/metrics"
	"github.com/raphaelgruber/pulse/internal/models"
	"github.com/raphaelgruber/pulse/internal/worker"
)

const (
	defaultListLimit = 20
	maxListLimit     = 200

	// Websocket keepalive. Writes must complete within writeWait; peers
	// must answer pings within pongWait.
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// Store is the read/write surface the HTTP handlers need.
type Store interface {
	ListHeartbeats(ctx context.Context, limit int) ([]models.HeartbeatRecord, error)
	GetHeartbeat(ctx context.Context, number int64) (*models.HeartbeatRecord, error)
	CreateEvent(ctx context.Context, kind string, payload map[string]any) (*models.Event, error)
	UnprocessedEvents(ctx context.Context, limit int) ([]models.Event, error)
	GetIdentity(ctx context.Context) (*models.Identity, error)
	PutIdentity(ctx context.Context, identity models.Identity) error
	ListOutbox(ctx context.Context, undeliveredOnly bool, limit int) ([]models.OutboxMessage, error)
	MarkOutboxDelivered(ctx context.Context, id string) error
}

// Loop is the scheduler surface: live status, manual control and the
// record stream.
type Loop interface {
	Status() heartbeat.Status
	TriggerNow() error
	StartSession()
	EndSession(significant bool)
	Hub() *heartbeat.Hub
}

// GoalService is the backlog surface.
type GoalService interface {
	Create(ctx context.Context, in models.GoalInput) (*models.Goal, error)
	Apply(ctx context.Context, change models.GoalChange) error
	AddProgress(ctx context.Context, goalID, text string) error
	Get(ctx context.Context, goalID string) (*models.Goal, error)
	List(ctx context.Context, priorities []models.GoalPriority, limit int) ([]models.Goal, error)
}

// HealthReporter is the worker surface.
type HealthReporter interface {
	Health() worker.Health
}

// Deps wires the server's collaborators. Loop and Worker may be nil when
// the corresponding daemon loop is disabled.
type Deps struct {
	Store   Store
	Loop    Loop
	Worker  HealthReporter
	Goals   GoalService
	Metrics *metrics.Collector
	Logger  *slog.Logger
}

// Server is the HTTP status and control server.
type Server struct {
	store    Store
	loop     Loop
	worker   HealthReporter
	goals    GoalService
	metrics  *metrics.Collector
	logger   *slog.Logger
	upgrader websocket.Upgrader

	httpServer *http.Server
}

// New creates a server listening on addr.
func New(addr string, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewCollector()
	}

	s := &Server{
		store:   deps.Store,
		loop:    deps.Loop,
		worker:  deps.Worker,
		goals:   deps.Goals,
		metrics: deps.Metrics,
		logger:  deps.Logger,
		upgrader: websocket.Upgrader{
			// Local control surface; the daemon binds loopback by default.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           LoggingMiddleware(deps.Logger)(s.routes()),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /status", s.handleStatus)

	mux.HandleFunc("GET /heartbeats", s.handleListHeartbeats)
	mux.HandleFunc("GET /heartbeats/{number}", s.handleGetHeartbeat)

	mux.HandleFunc("GET /goals", s.handleListGoals)
	mux.HandleFunc("POST /goals", s.handleCreateGoal)
	mux.HandleFunc("GET /goals/{id}", s.handleGetGoal)
	mux.HandleFunc("POST /goals/{id}/change", s.handleChangeGoal)
	mux.HandleFunc("POST /goals/{id}/notes", s.handleAddGoalNote)

	mux.HandleFunc("POST /cycle", s.handleTriggerCycle)
	mux.HandleFunc("POST /session/start", s.handleSessionStart)
	mux.HandleFunc("POST /session/end", s.handleSessionEnd)

	mux.HandleFunc("GET /events", s.handleListEvents)
	mux.HandleFunc("POST /events", s.handleCreateEvent)

	mux.HandleFunc("GET /identity", s.handleGetIdentity)
	mux.HandleFunc("PUT /identity", s.handlePutIdentity)

	mux.HandleFunc("GET /outbox", s.handleListOutbox)
	mux.HandleFunc("POST /outbox/{id}/delivered", s.handleOutboxDelivered)

	mux.HandleFunc("GET /watch", s.handleWatch)

	return mux
}

// Run serves until the context ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("status server listening", "addr", s.httpServer.Addr)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

type statusResponse struct {
	Scheduler *heartbeat.Status `json:"scheduler,omitempty"`
	Worker    *worker.Health    `json:"worker,omitempty"`
	Metrics   metrics.Snapshot  `json:"metrics"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{Metrics: s.metrics.Snapshot()}
	if s.loop != nil {
		st := s.loop.Status()
		resp.Scheduler = &st
	}
	if s.worker != nil {
		h := s.worker.Health()
		resp.Worker = &h
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListHeartbeats(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, defaultListLimit)
	records, err := s.store.ListHeartbeats(r.Context(), limit)
	if err != nil {
		s.internalError(w, "list heartbeats", err)
		return
	}
	writeJSON(w, http.StatusOK, renderHeartbeats(records))
}

func (s *Server) handleGetHeartbeat(w http.ResponseWriter, r *http.Request) {
	number, err := strconv.ParseInt(r.PathValue("number"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "heartbeat number must be an integer")
		return
	}
	rec, err := s.store.GetHeartbeat(r.Context(), number)
	if err != nil {
		s.internalError(w, "get heartbeat", err)
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "no such heartbeat")
		return
	}
	writeJSON(w, http.StatusOK, renderHeartbeat(*rec))
}

func (s *Server) handleListGoals(w http.ResponseWriter, r *http.Request) {
	var priorities []models.GoalPriority
	if raw := r.URL.Query().Get("priority"); raw != "" {
		for _, p := range strings.Split(raw, ",") {
			tier := models.GoalPriority(strings.TrimSpace(p))
			if !tier.Valid() {
				writeError(w, http.StatusBadRequest, "unknown priority "+string(tier))
				return
			}
			priorities = append(priorities, tier)
		}
	}

	list, err := s.goals.List(r.Context(), priorities, queryLimit(r, defaultListLimit))
	if err != nil {
		s.internalError(w, "list goals", err)
		return
	}
	writeJSON(w, http.StatusOK, renderGoals(list))
}

func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request) {
	var in models.GoalInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if in.Source == "" {
		in.Source = models.SourceUserRequest
	}

	goal, err := s.goals.Create(r.Context(), in)
	if err != nil {
		s.goalError(w, "create goal", err)
		return
	}
	writeJSON(w, http.StatusCreated, renderGoal(*goal))
}

func (s *Server) handleGetGoal(w http.ResponseWriter, r *http.Request) {
	goal, err := s.goals.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.goalError(w, "get goal", err)
		return
	}
	writeJSON(w, http.StatusOK, renderGoal(*goal))
}

func (s *Server) handleChangeGoal(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Change string `json:"change"`
		Reason string `json:"reason,omitempty"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	change := models.GoalChange{
		GoalID: r.PathValue("id"),
		Change: models.GoalPriority(body.Change),
		Reason: body.Reason,
	}
	if err := s.goals.Apply(r.Context(), change); err != nil {
		s.goalError(w, "apply goal change", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddGoalNote(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text string `json:"text"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(body.Text) == "" {
		writeError(w, http.StatusBadRequest, "note text required")
		return
	}

	if err := s.goals.AddProgress(r.Context(), r.PathValue("id"), body.Text); err != nil {
		s.goalError(w, "add goal note", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTriggerCycle(w http.ResponseWriter, _ *http.Request) {
	if s.loop == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler disabled")
		return
	}

	switch err := s.loop.TriggerNow(); {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "triggered"})
	case errors.Is(err, heartbeat.ErrCycleInFlight), errors.Is(err, heartbeat.ErrSessionActive):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.internalError(w, "trigger cycle", err)
	}
}

func (s *Server) handleSessionStart(w http.ResponseWriter, _ *http.Request) {
	if s.loop == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler disabled")
		return
	}
	s.loop.StartSession()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSessionEnd(w http.ResponseWriter, r *http.Request) {
	if s.loop == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler disabled")
		return
	}

	var body struct {
		Significant bool `json:"significant"`
	}
	// An empty body means a routine session end.
	if r.Body != nil && r.ContentLength != 0 {
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	s.loop.EndSession(body.Significant)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.store.UnprocessedEvents(r.Context(), queryLimit(r, defaultListLimit))
	if err != nil {
		s.internalError(w, "list events", err)
		return
	}
	writeJSON(w, http.StatusOK, renderEvents(events))
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Kind    string         `json:"kind"`
		Payload map[string]any `json:"payload,omitempty"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(body.Kind) == "" {
		writeError(w, http.StatusBadRequest, "event kind required")
		return
	}

	event, err := s.store.CreateEvent(r.Context(), body.Kind, body.Payload)
	if err != nil {
		s.internalError(w, "create event", err)
		return
	}
	writeJSON(w, http.StatusCreated, renderEvent(*event))
}

func (s *Server) handleGetIdentity(w http.ResponseWriter, r *http.Request) {
	identity, err := s.store.GetIdentity(r.Context())
	if err != nil {
		s.internalError(w, "get identity", err)
		return
	}
	if identity == nil {
		writeError(w, http.StatusNotFound, "identity not initialized")
		return
	}
	writeJSON(w, http.StatusOK, identity)
}

func (s *Server) handlePutIdentity(w http.ResponseWriter, r *http.Request) {
	var identity models.Identity
	if err := decodeBody(r, &identity); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(identity.Summary) == "" {
		writeError(w, http.StatusBadRequest, "identity summary required")
		return
	}

	if err := s.store.PutIdentity(r.Context(), identity); err != nil {
		s.internalError(w, "put identity", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListOutbox(w http.ResponseWriter, r *http.Request) {
	undeliveredOnly := r.URL.Query().Get("undelivered") == "true"
	messages, err := s.store.ListOutbox(r.Context(), undeliveredOnly, queryLimit(r, defaultListLimit))
	if err != nil {
		s.internalError(w, "list outbox", err)
		return
	}
	writeJSON(w, http.StatusOK, renderOutbox(messages))
}

func (s *Server) handleOutboxDelivered(w http.ResponseWriter, r *http.Request) {
	if err := s.store.MarkOutboxDelivered(r.Context(), r.PathValue("id")); err != nil {
		s.internalError(w, "mark outbox delivered", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleWatch upgrades to a websocket and streams completed cycle records
// until the client disconnects.
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	if s.loop == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler disabled")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	records, cancel := s.loop.Hub().Subscribe()
	defer cancel()

	// Reader goroutine: consume control frames, detect disconnect.
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	s.logger.Debug("watch client connected", "remote", conn.RemoteAddr())
	pings := time.NewTicker(pingPeriod)
	defer pings.Stop()

	for {
		select {
		case rec, ok := <-records:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(renderHeartbeat(rec)); err != nil {
				s.logger.Debug("watch client write failed", "error", err)
				return
			}
		case <-pings.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}

// goalError maps backlog sentinels onto HTTP statuses.
func (s *Server) goalError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, goals.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, goals.ErrInvalidTransition),
		errors.Is(err, goals.ErrReasonRequired),
		errors.Is(err, goals.ErrChildrenIncomplete),
		errors.Is(err, goals.ErrCycle),
		errors.Is(err, goals.ErrParentRequired):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.internalError(w, op, err)
	}
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	s.logger.Error(op+" failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func queryLimit(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	if n > maxListLimit {
		return maxListLimit
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
