// Package client provides an HTTP client for the pulse daemon's control API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Client talks to a running pulse daemon.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for the daemon at baseURL.
// If baseURL is empty, uses PULSE_SERVER_URL env var or defaults to localhost:8422.
// Timeout can be configured via PULSE_CLIENT_TIMEOUT env var (default 30s).
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("PULSE_SERVER_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:8422"
	}
	baseURL = strings.TrimRight(baseURL, "/")

	timeout := 30 * time.Second
	if t := os.Getenv("PULSE_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// APIError is a non-2xx response from the daemon.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// IsConflict reports whether err is a 409 response, which the daemon
// returns when a trigger or transition is not currently legal.
func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// =============================================================================
// Wire types. These mirror the daemon's JSON responses; record ids arrive
// as plain strings.
// =============================================================================

// Status is the composite daemon status.
type Status struct {
	Scheduler *SchedulerStatus `json:"scheduler,omitempty"`
	Worker    *WorkerHealth    `json:"worker,omitempty"`
	Metrics   MetricsSnapshot  `json:"metrics"`
}

// SchedulerStatus is the heartbeat loop's live state.
type SchedulerStatus struct {
	SessionActive   bool       `json:"session_active"`
	CycleInFlight   bool       `json:"cycle_in_flight"`
	LastUserContact *time.Time `json:"last_user_contact,omitempty"`
}

// WorkerHealth is the background maintenance loop's live state.
type WorkerHealth struct {
	Running             bool       `json:"running"`
	LastCycleAt         *time.Time `json:"last_cycle_at,omitempty"`
	LastError           string     `json:"last_error,omitempty"`
	LastCleanupAt       *time.Time `json:"last_cleanup_at,omitempty"`
	StaleBacklog        int        `json:"stale_backlog"`
	UnsummarizedBacklog int        `json:"unsummarized_backlog"`
	UnlinkedBacklog     int        `json:"unlinked_backlog"`
}

// OperationStats is aggregated timing for one instrumented operation.
type OperationStats struct {
	Count       int64   `json:"count"`
	TotalTimeMs int64   `json:"total_time_ms"`
	AvgTimeMs   float64 `json:"avg_time_ms"`
	MinTimeMs   int64   `json:"min_time_ms"`
	MaxTimeMs   int64   `json:"max_time_ms"`

	TotalInputTokens  *int64   `json:"total_input_tokens,omitempty"`
	TotalOutputTokens *int64   `json:"total_output_tokens,omitempty"`
	AvgInputTokens    *float64 `json:"avg_input_tokens,omitempty"`
	AvgOutputTokens   *float64 `json:"avg_output_tokens,omitempty"`
}

// MetricsSnapshot is the daemon's runtime statistics.
type MetricsSnapshot struct {
	UptimeSeconds float64 `json:"uptime_seconds"`

	OracleDecide *OperationStats `json:"oracle_decide,omitempty"`
	Summarize    *OperationStats `json:"summarize,omitempty"`
	Extract      *OperationStats `json:"extract,omitempty"`
	Embedding    *OperationStats `json:"embedding,omitempty"`
	DBQuery      *OperationStats `json:"db_query,omitempty"`
	Fusion       *OperationStats `json:"fusion_compute,omitempty"`
	ActionExec   *OperationStats `json:"action_exec,omitempty"`

	Counters map[string]int64 `json:"counters,omitempty"`
	Gauges   map[string]int64 `json:"gauges,omitempty"`
}

// PendingEvent is one unprocessed event as seen at cycle start.
type PendingEvent struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
}

// EnvironmentSnapshot is what a cycle observed when it started.
type EnvironmentSnapshot struct {
	Timestamp       time.Time      `json:"timestamp"`
	SessionActive   bool           `json:"session_active"`
	LastUserContact *time.Time     `json:"last_user_contact,omitempty"`
	PendingEvents   []PendingEvent `json:"pending_events,omitempty"`
}

// ActionOutcome is one executed action inside a cycle.
type ActionOutcome struct {
	Kind        string         `json:"kind"`
	Params      map[string]any `json:"params,omitempty"`
	CostCharged float64        `json:"cost_charged"`
	Result      map[string]any `json:"result,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// GoalChange is one goal transition applied during a cycle.
type GoalChange struct {
	GoalID string `json:"goal_id"`
	Change string `json:"change"`
	Reason string `json:"reason,omitempty"`
}

// Heartbeat is one completed cycle record.
type Heartbeat struct {
	Number            int64               `json:"number"`
	StartedAt         time.Time           `json:"started_at"`
	EndedAt           time.Time           `json:"ended_at"`
	EnergyStart       float64             `json:"energy_start"`
	EnergyEnd         float64             `json:"energy_end"`
	Environment       EnvironmentSnapshot `json:"environment"`
	DecisionReasoning string              `json:"decision_reasoning,omitempty"`
	Actions           []ActionOutcome     `json:"actions,omitempty"`
	GoalsModified     []GoalChange        `json:"goals_modified,omitempty"`
	Narrative         string              `json:"narrative,omitempty"`
	NarrativeMemory   string              `json:"narrative_memory,omitempty"`
	EmotionalValence  float64             `json:"emotional_valence"`
}

// ProgressNote is one entry in a goal's progress log.
type ProgressNote struct {
	At   time.Time `json:"at"`
	Text string    `json:"text"`
}

// Goal is a backlog goal.
type Goal struct {
	ID                string         `json:"id"`
	Title             string         `json:"title"`
	Description       string         `json:"description,omitempty"`
	Priority          string         `json:"priority"`
	Source            string         `json:"source"`
	ParentID          *string        `json:"parent_id,omitempty"`
	Labels            []string       `json:"labels,omitempty"`
	Progress          []ProgressNote `json:"progress,omitempty"`
	BlockedBy         *string        `json:"blocked_by,omitempty"`
	EmotionalValence  float64        `json:"emotional_valence"`
	LastRelevance     *float64       `json:"last_relevance,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	LastTouched       time.Time      `json:"last_touched"`
	CompletedAt       *time.Time     `json:"completed_at,omitempty"`
	AbandonedAt       *time.Time     `json:"abandoned_at,omitempty"`
	AbandonmentReason *string        `json:"abandonment_reason,omitempty"`
}

// GoalInput is the payload for creating a goal.
type GoalInput struct {
	Title            string   `json:"title"`
	Description      string   `json:"description,omitempty"`
	Source           string   `json:"source,omitempty"`
	ParentID         *string  `json:"parent_id,omitempty"`
	Labels           []string `json:"labels,omitempty"`
	EmotionalValence float64  `json:"emotional_valence,omitempty"`
}

// Event is a queued external event.
type Event struct {
	ID         string         `json:"id"`
	Kind       string         `json:"kind"`
	Payload    map[string]any `json:"payload,omitempty"`
	ReceivedAt time.Time      `json:"received_at"`
	Processed  bool           `json:"processed"`
}

// Identity is the daemon's self-description.
type Identity struct {
	Summary   string    `json:"summary"`
	Values    []string  `json:"values,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// OutboxMessage is a queued message to the user.
type OutboxMessage struct {
	ID        string    `json:"id"`
	Body      string    `json:"body"`
	Channel   string    `json:"channel,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Delivered bool      `json:"delivered"`
}

// =============================================================================
// Operations
// =============================================================================

// Ping checks that the daemon is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.get(ctx, "/healthz", nil)
}

// Status fetches the composite daemon status.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var status Status
	if err := c.get(ctx, "/status", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// ListHeartbeats fetches the most recent cycle records, newest first.
func (c *Client) ListHeartbeats(ctx context.Context, limit int) ([]Heartbeat, error) {
	var records []Heartbeat
	if err := c.get(ctx, withLimit("/heartbeats", limit), &records); err != nil {
		return nil, err
	}
	return records, nil
}

// GetHeartbeat fetches one cycle record by number.
func (c *Client) GetHeartbeat(ctx context.Context, number int64) (*Heartbeat, error) {
	var rec Heartbeat
	if err := c.get(ctx, "/heartbeats/"+strconv.FormatInt(number, 10), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListGoals fetches goals, optionally filtered to the given priority tiers.
func (c *Client) ListGoals(ctx context.Context, priorities []string, limit int) ([]Goal, error) {
	q := url.Values{}
	if len(priorities) > 0 {
		q.Set("priority", strings.Join(priorities, ","))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/goals"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var goals []Goal
	if err := c.get(ctx, path, &goals); err != nil {
		return nil, err
	}
	return goals, nil
}

// CreateGoal adds a goal to the backlog.
func (c *Client) CreateGoal(ctx context.Context, in GoalInput) (*Goal, error) {
	var goal Goal
	if err := c.send(ctx, http.MethodPost, "/goals", in, &goal); err != nil {
		return nil, err
	}
	return &goal, nil
}

// GetGoal fetches one goal by id.
func (c *Client) GetGoal(ctx context.Context, id string) (*Goal, error) {
	var goal Goal
	if err := c.get(ctx, "/goals/"+url.PathEscape(id), &goal); err != nil {
		return nil, err
	}
	return &goal, nil
}

// ChangeGoal requests a priority transition for a goal. Abandoning
// requires a reason.
func (c *Client) ChangeGoal(ctx context.Context, id, change, reason string) error {
	body := map[string]string{"change": change}
	if reason != "" {
		body["reason"] = reason
	}
	return c.send(ctx, http.MethodPost, "/goals/"+url.PathEscape(id)+"/change", body, nil)
}

// AddGoalNote appends a progress note to a goal.
func (c *Client) AddGoalNote(ctx context.Context, id, text string) error {
	body := map[string]string{"text": text}
	return c.send(ctx, http.MethodPost, "/goals/"+url.PathEscape(id)+"/notes", body, nil)
}

// TriggerCycle asks the scheduler to run one cycle now. Returns a 409
// APIError when a cycle is already in flight or a session is active;
// check with IsConflict.
func (c *Client) TriggerCycle(ctx context.Context) error {
	return c.send(ctx, http.MethodPost, "/cycle", nil, nil)
}

// StartSession pauses the heartbeat loop for an interactive session.
func (c *Client) StartSession(ctx context.Context) error {
	return c.send(ctx, http.MethodPost, "/session/start", nil, nil)
}

// EndSession resumes the loop. A significant session triggers an
// immediate cycle.
func (c *Client) EndSession(ctx context.Context, significant bool) error {
	body := map[string]bool{"significant": significant}
	return c.send(ctx, http.MethodPost, "/session/end", body, nil)
}

// CreateEvent queues an external event for the scheduler's next cycle.
func (c *Client) CreateEvent(ctx context.Context, kind string, payload map[string]any) (*Event, error) {
	body := map[string]any{"kind": kind}
	if payload != nil {
		body["payload"] = payload
	}
	var event Event
	if err := c.send(ctx, http.MethodPost, "/events", body, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// ListEvents fetches unprocessed events.
func (c *Client) ListEvents(ctx context.Context, limit int) ([]Event, error) {
	var events []Event
	if err := c.get(ctx, withLimit("/events", limit), &events); err != nil {
		return nil, err
	}
	return events, nil
}

// Identity fetches the daemon's self-description. Returns a 404 APIError
// before the first recalibration; check with IsNotFound.
func (c *Client) Identity(ctx context.Context) (*Identity, error) {
	var identity Identity
	if err := c.get(ctx, "/identity", &identity); err != nil {
		return nil, err
	}
	return &identity, nil
}

// SetIdentity replaces the daemon's self-description.
func (c *Client) SetIdentity(ctx context.Context, identity Identity) error {
	return c.send(ctx, http.MethodPut, "/identity", identity, nil)
}

// ListOutbox fetches queued messages to the user.
func (c *Client) ListOutbox(ctx context.Context, undeliveredOnly bool, limit int) ([]OutboxMessage, error) {
	q := url.Values{}
	if undeliveredOnly {
		q.Set("undelivered", "true")
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/outbox"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var messages []OutboxMessage
	if err := c.get(ctx, path, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// MarkOutboxDelivered marks one outbox message as delivered.
func (c *Client) MarkOutboxDelivered(ctx context.Context, id string) error {
	return c.send(ctx, http.MethodPost, "/outbox/"+url.PathEscape(id)+"/delivered", nil, nil)
}

// Watch subscribes to the daemon's cycle stream and invokes onRecord for
// each completed heartbeat. Blocks until the context ends or the
// connection drops. Return an error from onRecord to abort.
func (c *Client) Watch(ctx context.Context, onRecord func(Heartbeat) error) error {
	wsURL := c.baseURL
	wsURL = strings.Replace(wsURL, "http://", "ws://", 1)
	wsURL = strings.Replace(wsURL, "https://", "wss://", 1)

	u, err := url.Parse(wsURL + "/watch")
	if err != nil {
		return fmt.Errorf("parse endpoint: %w", err)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("websocket connect: %w", err)
	}
	defer conn.Close()

	// Close the connection when the context ends so ReadJSON unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		var rec Heartbeat
		if err := conn.ReadJSON(&rec); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read record: %w", err)
		}
		if err := onRecord(rec); err != nil {
			return err
		}
	}
}

// =============================================================================
// HTTP plumbing
// =============================================================================

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) send(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		var body struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(raw))
		if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
			msg = body.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

func withLimit(path string, limit int) string {
	if limit <= 0 {
		return path
	}
	return path + "?limit=" + strconv.Itoa(limit)
}
