package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/pulse/internal/goals"
	"github.com/raphaelgruber/pulse/internal/heartbeat"
	"github.com/raphaelgruber/pulse/internal/models"
	"github.com/raphaelgruber/pulse/internal/server"
	"github.com/raphaelgruber/pulse/internal/worker"
)

type fakeStore struct {
	heartbeats []models.HeartbeatRecord
	events     []models.Event
	outbox     []models.OutboxMessage
	identity   *models.Identity
	delivered  []string
}

func (f *fakeStore) ListHeartbeats(_ context.Context, limit int) ([]models.HeartbeatRecord, error) {
	if len(f.heartbeats) > limit {
		return f.heartbeats[:limit], nil
	}
	return f.heartbeats, nil
}

func (f *fakeStore) GetHeartbeat(_ context.Context, number int64) (*models.HeartbeatRecord, error) {
	for i := range f.heartbeats {
		if f.heartbeats[i].Number == number {
			return &f.heartbeats[i], nil
		}
	}
	return nil, nil
}

func (f *fakeStore) CreateEvent(_ context.Context, kind string, payload map[string]any) (*models.Event, error) {
	event := models.Event{
		ID:      models.NewRecordID(models.TableEvent, fmt.Sprint(len(f.events))),
		Kind:    kind,
		Payload: payload,
	}
	f.events = append(f.events, event)
	return &event, nil
}

func (f *fakeStore) UnprocessedEvents(_ context.Context, limit int) ([]models.Event, error) {
	if len(f.events) > limit {
		return f.events[:limit], nil
	}
	return f.events, nil
}

func (f *fakeStore) GetIdentity(context.Context) (*models.Identity, error) {
	return f.identity, nil
}

func (f *fakeStore) PutIdentity(_ context.Context, identity models.Identity) error {
	f.identity = &identity
	return nil
}

func (f *fakeStore) ListOutbox(_ context.Context, undeliveredOnly bool, _ int) ([]models.OutboxMessage, error) {
	if !undeliveredOnly {
		return f.outbox, nil
	}
	var out []models.OutboxMessage
	for _, m := range f.outbox {
		if !m.Delivered {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeStore) MarkOutboxDelivered(_ context.Context, id string) error {
	f.delivered = append(f.delivered, id)
	return nil
}

type fakeLoop struct {
	hub        *heartbeat.Hub
	status     heartbeat.Status
	triggerErr error
	starts     int
	ends       []bool
}

func (f *fakeLoop) Status() heartbeat.Status    { return f.status }
func (f *fakeLoop) TriggerNow() error           { return f.triggerErr }
func (f *fakeLoop) StartSession()               { f.starts++ }
func (f *fakeLoop) EndSession(significant bool) { f.ends = append(f.ends, significant) }
func (f *fakeLoop) Hub() *heartbeat.Hub         { return f.hub }

type fakeGoals struct {
	goals    map[string]*models.Goal
	applyErr error
	applied  []models.GoalChange
	notes    []string
}

func (f *fakeGoals) Create(_ context.Context, in models.GoalInput) (*models.Goal, error) {
	if in.Title == "" {
		return nil, errors.New("title required")
	}
	g := &models.Goal{
		ID:       models.NewRecordID(models.TableGoal, "g1"),
		Title:    in.Title,
		Priority: models.PriorityQueued,
		Source:   in.Source,
	}
	if f.goals == nil {
		f.goals = map[string]*models.Goal{}
	}
	f.goals["g1"] = g
	return g, nil
}

func (f *fakeGoals) Apply(_ context.Context, change models.GoalChange) error {
	if f.applyErr != nil {
		return f.applyErr
	}
	f.applied = append(f.applied, change)
	return nil
}

func (f *fakeGoals) AddProgress(_ context.Context, goalID, text string) error {
	if f.goals[goalID] == nil {
		return goals.ErrNotFound
	}
	f.notes = append(f.notes, text)
	return nil
}

func (f *fakeGoals) Get(_ context.Context, goalID string) (*models.Goal, error) {
	g := f.goals[goalID]
	if g == nil {
		return nil, goals.ErrNotFound
	}
	return g, nil
}

func (f *fakeGoals) List(context.Context, []models.GoalPriority, int) ([]models.Goal, error) {
	var out []models.Goal
	for _, g := range f.goals {
		out = append(out, *g)
	}
	return out, nil
}

type fakeWorker struct {
	health worker.Health
}

func (f *fakeWorker) Health() worker.Health { return f.health }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	store  *fakeStore
	loop   *fakeLoop
	goals  *fakeGoals
	worker *fakeWorker
	srv    *server.Server
}

func newFixture() *fixture {
	f := &fixture{
		store:  &fakeStore{},
		loop:   &fakeLoop{hub: heartbeat.NewHub()},
		goals:  &fakeGoals{goals: map[string]*models.Goal{}},
		worker: &fakeWorker{},
	}
	f.srv = server.New(":0", server.Deps{
		Store:  f.store,
		Loop:   f.loop,
		Worker: f.worker,
		Goals:  f.goals,
		Logger: testLogger(),
	})
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodGet, "/healthz", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestStatusComposesAllSections(t *testing.T) {
	f := newFixture()
	f.loop.status = heartbeat.Status{SessionActive: true}
	f.worker.health = worker.Health{Running: true, StaleBacklog: 3}

	rec := f.do(t, http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Scheduler *heartbeat.Status `json:"scheduler"`
		Worker    *worker.Health    `json:"worker"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotNil(t, body.Scheduler)
	assert.True(t, body.Scheduler.SessionActive)
	require.NotNil(t, body.Worker)
	assert.Equal(t, 3, body.Worker.StaleBacklog)
}

func TestStatusOmitsDisabledLoops(t *testing.T) {
	store := &fakeStore{}
	srv := server.New(":0", server.Deps{Store: store, Logger: testLogger()})

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), `"scheduler"`)
	assert.NotContains(t, rec.Body.String(), `"worker"`)
}

func TestTriggerCycle(t *testing.T) {
	tests := []struct {
		name       string
		triggerErr error
		wantStatus int
	}{
		{"accepted", nil, http.StatusAccepted},
		{"cycle in flight", heartbeat.ErrCycleInFlight, http.StatusConflict},
		{"session active", heartbeat.ErrSessionActive, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.loop.triggerErr = tt.triggerErr

			rec := f.do(t, http.MethodPost, "/cycle", nil)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestTriggerCycleWithoutScheduler(t *testing.T) {
	srv := server.New(":0", server.Deps{Store: &fakeStore{}, Logger: testLogger()})

	req := httptest.NewRequest(http.MethodPost, "/cycle", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHeartbeatLookup(t *testing.T) {
	f := newFixture()
	f.store.heartbeats = []models.HeartbeatRecord{{Number: 7, Narrative: "a quiet hour"}}

	rec := f.do(t, http.MethodGet, "/heartbeats/7", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		Number    int64  `json:"number"`
		Narrative string `json:"narrative"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, int64(7), got.Number)
	assert.Equal(t, "a quiet hour", got.Narrative)

	rec = f.do(t, http.MethodGet, "/heartbeats/99", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/heartbeats/seven", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGoalLifecycle(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodPost, "/goals", map[string]any{"title": "tend the garden"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		Title  string            `json:"title"`
		Source models.GoalSource `json:"source"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "tend the garden", created.Title)
	// Source defaults to a user request when omitted.
	assert.Equal(t, models.SourceUserRequest, created.Source)

	rec = f.do(t, http.MethodPost, "/goals/g1/change", map[string]any{"change": "active"})
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Len(t, f.goals.applied, 1)
	assert.Equal(t, models.PriorityActive, f.goals.applied[0].Change)

	rec = f.do(t, http.MethodPost, "/goals/g1/notes", map[string]any{"text": "watered twice"})
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"watered twice"}, f.goals.notes)
}

func TestGoalChangeConflicts(t *testing.T) {
	f := newFixture()
	f.goals.applyErr = goals.ErrInvalidTransition

	rec := f.do(t, http.MethodPost, "/goals/g1/change", map[string]any{"change": "completed"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	f.goals.applyErr = goals.ErrNotFound
	rec = f.do(t, http.MethodPost, "/goals/missing/change", map[string]any{"change": "active"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListGoalsRejectsUnknownPriority(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodGet, "/goals?priority=sideways", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateEvent(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodPost, "/events", map[string]any{
		"kind":    "webhook",
		"payload": map[string]any{"source": "github"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, f.store.events, 1)
	assert.Equal(t, "webhook", f.store.events[0].Kind)

	rec = f.do(t, http.MethodPost, "/events", map[string]any{"payload": map[string]any{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIdentityRoundTrip(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodGet, "/identity", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPut, "/identity", map[string]any{
		"summary": "I keep a small digital garden.",
		"values":  []string{"curiosity"},
	})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/identity", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "digital garden")

	rec = f.do(t, http.MethodPut, "/identity", map[string]any{"summary": "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionEndCarriesSignificance(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodPost, "/session/start", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1, f.loop.starts)

	rec = f.do(t, http.MethodPost, "/session/end", map[string]any{"significant": true})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodPost, "/session/end", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	assert.Equal(t, []bool{true, false}, f.loop.ends)
}

func TestOutboxDelivery(t *testing.T) {
	f := newFixture()
	f.store.outbox = []models.OutboxMessage{
		{ID: models.NewRecordID(models.TableOutbox, "m1"), Body: "hello", Delivered: false},
		{ID: models.NewRecordID(models.TableOutbox, "m2"), Body: "old", Delivered: true},
	}

	rec := f.do(t, http.MethodGet, "/outbox?undelivered=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var messages []struct {
		Body string `json:"body"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &messages))
	require.Len(t, messages, 1)
	assert.Equal(t, "hello", messages[0].Body)

	rec = f.do(t, http.MethodPost, "/outbox/m1/delivered", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"m1"}, f.store.delivered)
}

func TestWatchStreamsCycleRecords(t *testing.T) {
	f := newFixture()

	ts := httptest.NewServer(f.srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/watch"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err, "websocket dial should succeed")
	defer conn.Close()
	defer resp.Body.Close()

	// Give the handler time to subscribe before publishing.
	time.Sleep(50 * time.Millisecond)
	f.loop.hub.Publish(models.HeartbeatRecord{Number: 42, Narrative: "went well"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got struct {
		Number    int64  `json:"number"`
		Narrative string `json:"narrative"`
	}
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, int64(42), got.Number)
	assert.Equal(t, "went well", got.Narrative)
}
