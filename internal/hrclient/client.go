// Package hrclient implements the wire protocol between the agent and
// the HR backend: enrollment, heartbeats, the three-step break-log
// lifecycle, shift-info fetch, and replay of the offline buffer.
package hrclient

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	v1 "github.com/gdshr/attendance-agent/pkg/api/v1"

	"github.com/gdshr/attendance-agent/internal/agent/state"
	agenterrors "github.com/gdshr/attendance-agent/internal/common/errors"
	"github.com/gdshr/attendance-agent/internal/common/logger"
	"github.com/gdshr/attendance-agent/internal/offline"
)

const (
	pathEnroll    = "/api/agent/enroll"
	pathHeartbeat = "/api/agent/heartbeat"
	pathBreakLog  = "/api/agent/break-log"
	pathShiftInfo = "/api/agent/shift-info"

	// pendingAnnotation is the custom reason a break record carries until
	// the employee submits one.
	pendingAnnotation = "Waiting for employee to submit reason"

	defaultAttempts = 3
	defaultBackoff  = 2 * time.Second
	requestTimeout  = 15 * time.Second
)

// ErrDeviceRevoked means the server returned 401: the device token is no
// longer valid and the agent must re-enroll. Never retried, never
// buffered.
var ErrDeviceRevoked = stderrors.New("device credentials revoked")

// ErrBuffered means the request failed all its attempts and was appended
// to the offline buffer for later replay.
var ErrBuffered = stderrors.New("request buffered for replay")

// Client talks to the HR backend on behalf of one enrolled device.
type Client struct {
	baseURL string
	empCode string

	deviceID string
	token    string

	httpClient *http.Client
	transport  *http.Transport
	buffer     *offline.Buffer
	log        *logger.Logger

	attempts int
	backoff  time.Duration
}

// Option adjusts client construction.
type Option func(*Client)

// WithRetryPolicy overrides the attempt count and initial backoff.
func WithRetryPolicy(attempts int, backoff time.Duration) Option {
	return func(c *Client) {
		c.attempts = attempts
		c.backoff = backoff
	}
}

// New creates a Client for the given server. Credentials are attached
// later via SetCredentials once enrollment has run.
func New(baseURL, empCode string, buffer *offline.Buffer, log *logger.Logger, opts ...Option) *Client {
	transport := &http.Transport{
		MaxIdleConns:        4,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	c := &Client{
		baseURL:    baseURL,
		empCode:    empCode,
		httpClient: &http.Client{Transport: transport, Timeout: requestTimeout},
		transport:  transport,
		buffer:     buffer,
		log:        log,
		attempts:   defaultAttempts,
		backoff:    defaultBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetCredentials attaches the enrolled device identity to every
// subsequent request.
func (c *Client) SetCredentials(deviceID, token string) {
	c.deviceID = deviceID
	c.token = token
}

// ResetConnectionPool drops idle connections. Called when connectivity
// flaps so stale keep-alive sockets do not masquerade as a live link.
func (c *Client) ResetConnectionPool() {
	c.transport.CloseIdleConnections()
}

// Enroll registers this device and returns its credentials. Not retried
// here; the caller owns the enrollment loop.
func (c *Client) Enroll(ctx context.Context, deviceName string) (*EnrollResponse, error) {
	body := enrollRequest{
		EmpCode:      c.empCode,
		DeviceName:   deviceName,
		AgentVersion: v1.AgentVersion,
	}

	var resp EnrollResponse
	if err := c.do(ctx, http.MethodPost, pathEnroll, body, &resp); err != nil {
		return nil, err
	}
	if resp.DeviceID == "" || resp.DeviceToken == "" {
		return nil, agenterrors.Internal("enrollment response missing credentials", nil)
	}
	return &resp, nil
}

// SendHeartbeat posts one heartbeat. A 401 yields ErrDeviceRevoked;
// transient failures are returned as-is, never retried and never
// buffered. The controller counts consecutive failures itself.
func (c *Client) SendHeartbeat(ctx context.Context, hb Heartbeat) error {
	err := c.do(ctx, http.MethodPost, pathHeartbeat, hb, nil)
	if agenterrors.IsAuthRejected(err) {
		return fmt.Errorf("%w: %s", ErrDeviceRevoked, err)
	}
	return err
}

// BreakOpen creates a break record with a placeholder reason. On
// exhausted retries the request is buffered and ErrBuffered returned.
func (c *Client) BreakOpen(ctx context.Context, startedAt time.Time) error {
	body := breakOpenRequest{
		Reason:       v1.BreakReasonPending,
		CustomReason: pendingAnnotation,
		StartedAt:    wireTime(startedAt),
	}
	return c.breakCall(ctx, http.MethodPost, body)
}

// BreakAnnotate updates the open break record with the employee's
// category and free-text reason.
func (c *Client) BreakAnnotate(ctx context.Context, category, reason string) error {
	body := breakPatchRequest{
		Action:       "update-reason",
		Reason:       category,
		CustomReason: reason,
	}
	return c.breakCall(ctx, http.MethodPatch, body)
}

// BreakClose ends the open break record.
func (c *Client) BreakClose(ctx context.Context, endedAt time.Time) error {
	body := breakPatchRequest{
		Action:  "end-break",
		EndedAt: wireTime(endedAt),
	}
	return c.breakCall(ctx, http.MethodPatch, body)
}

// breakCall runs a break-log request through the retry policy and
// buffers it when every attempt fails.
func (c *Client) breakCall(ctx context.Context, method string, body any) error {
	err := doWithRetry(ctx, c.attempts, c.backoff, func() error {
		return c.do(ctx, method, pathBreakLog, body, nil)
	})
	if err == nil {
		return nil
	}
	if agenterrors.IsAuthRejected(err) {
		return fmt.Errorf("%w: %s", ErrDeviceRevoked, err)
	}

	payload, merr := json.Marshal(body)
	if merr != nil {
		return agenterrors.Internal("marshal break request for buffering", merr)
	}
	if berr := c.buffer.Append(offline.Entry{
		Method:    method,
		URL:       pathBreakLog,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}); berr != nil {
		c.log.Error("failed to buffer break request", zap.Error(berr))
		return err
	}
	return fmt.Errorf("%w: %s", ErrBuffered, err)
}

// FetchShiftWindow returns the employee's shift schedule, or nil when
// the server has none on file (404).
func (c *Client) FetchShiftWindow(ctx context.Context) (*state.ShiftWindow, error) {
	var resp shiftInfoResponse
	err := c.do(ctx, http.MethodGet, pathShiftInfo, nil, &resp)
	if err != nil {
		var notFound *statusError
		if stderrors.As(err, &notFound) && notFound.code == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}

	grace := time.Duration(resp.GraceMinutes) * time.Minute
	window, err := state.ParseShiftWindow(resp.ShiftStart, resp.ShiftEnd, grace)
	if err != nil {
		return nil, agenterrors.Internal("server returned unparseable shift window", err)
	}
	return window, nil
}

// ReplayBuffered resends buffered requests in original order. Every
// entry is attempted; only the ones that still fail are kept, so a
// single rejected request cannot block the entries behind it. Returns
// how many were replayed and how many remain.
func (c *Client) ReplayBuffered(ctx context.Context) (replayed, remaining int, err error) {
	entries, err := c.buffer.Entries()
	if err != nil {
		return 0, 0, err
	}
	if len(entries) == 0 {
		return 0, 0, nil
	}

	var failed []offline.Entry
	var lastErr error
	for _, e := range entries {
		if rerr := c.doRaw(ctx, e.Method, e.URL, e.Payload, nil); rerr != nil {
			failed = append(failed, e)
			lastErr = rerr
			continue
		}
		replayed++
	}

	if werr := c.buffer.Rewrite(failed); werr != nil {
		c.log.Error("failed to compact offline buffer", zap.Error(werr))
	}
	if lastErr != nil {
		return replayed, len(failed), lastErr
	}
	c.log.Info("offline buffer replayed", zap.Int("requests", replayed))
	return replayed, 0, nil
}

// statusError preserves the HTTP status for callers that care about
// specific codes (404 on shift-info).
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.code, e.body)
}

// do marshals body (if any), sends the request, and decodes the reply
// into out (if non-nil).
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return agenterrors.Internal("marshal request", err)
		}
	}
	return c.doRaw(ctx, method, path, payload, out)
}

func (c *Client) doRaw(ctx context.Context, method, path string, payload []byte, out any) error {
	var reader io.Reader
	if len(payload) > 0 {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return agenterrors.Internal("build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.deviceID != "" {
		req.Header.Set("X-Device-ID", c.deviceID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return agenterrors.Transient(fmt.Sprintf("%s %s", method, path), err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return agenterrors.AuthRejected(fmt.Sprintf("%s %s rejected", method, path))
	case resp.StatusCode >= 500:
		return agenterrors.Transient(fmt.Sprintf("%s %s", method, path),
			&statusError{code: resp.StatusCode, body: truncate(raw)})
	case resp.StatusCode >= 400:
		return agenterrors.Internal(fmt.Sprintf("%s %s", method, path),
			&statusError{code: resp.StatusCode, body: truncate(raw)})
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return agenterrors.Internal("decode response", err)
		}
	}
	return nil
}

func truncate(b []byte) string {
	const max = 256
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}

// wireTime formats a timestamp the way the server expects: UTC, second
// precision, trailing Z.
func wireTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}
