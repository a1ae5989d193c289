package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"stagequeue/internal/api"
	"stagequeue/internal/logging"
	"stagequeue/internal/requests"
)

const (
	defaultCallTimeout = 10 * time.Second
	defaultFeedTimeout = 60 * time.Second
	defaultRetryDelay  = 2 * time.Second

	adminPinHeader    = "X-Admin-Pin"
	correlationHeader = "X-Correlation-ID"
)

// Client talks to the stagequeue daemon over HTTP.
type Client struct {
	baseURL     string
	pin         string
	httpClient  *http.Client
	callTimeout time.Duration
	feedTimeout time.Duration
	retryDelay  time.Duration
	logger      *slog.Logger
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithAdminPIN sets the PIN sent on admin calls.
func WithAdminPIN(pin string) Option {
	return func(c *Client) {
		c.pin = strings.TrimSpace(pin)
	}
}

// WithRetryDelay overrides the pause between failed feed polls.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.retryDelay = d
		}
	}
}

// WithLogger routes feed warnings to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logging.NewComponentLogger(logger, "apiclient")
	}
}

// New constructs a client for the daemon at baseURL.
func New(baseURL string, opts ...Option) *Client {
	client := &Client{
		baseURL:     strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient:  &http.Client{},
		callTimeout: defaultCallTimeout,
		feedTimeout: defaultFeedTimeout,
		retryDelay:  defaultRetryDelay,
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Status returns daemon runtime information.
func (c *Client) Status(ctx context.Context) (api.DaemonStatus, error) {
	var out api.DaemonStatus
	err := c.call(ctx, http.MethodGet, "/api/status", nil, nil, &out, false)
	return out, err
}

// Submit files a new request.
func (c *Client) Submit(ctx context.Context, body api.SubmitRequest) (api.Request, error) {
	var out api.RequestResponse
	err := c.call(ctx, http.MethodPost, "/api/requests", nil, body, &out, false)
	return out.Request, err
}

// Get loads one request.
func (c *Client) Get(ctx context.Context, id string) (api.Request, error) {
	var out api.RequestResponse
	err := c.call(ctx, http.MethodGet, "/api/requests/"+url.PathEscape(id), nil, nil, &out, false)
	return out.Request, err
}

// Views returns the one-shot projection for role.
func (c *Client) Views(ctx context.Context, role string, history bool) (api.Views, error) {
	query := url.Values{}
	if role != "" {
		query.Set("role", role)
	}
	if history {
		query.Set("history", "1")
	}
	var out api.Views
	err := c.call(ctx, http.MethodGet, "/api/views", query, nil, &out, false)
	return out, err
}

// Approve queues a pending request with the chosen track.
func (c *Client) Approve(ctx context.Context, id, trackURL string) (api.Request, error) {
	return c.transition(ctx, http.MethodPost, id, "/approve", api.ApproveRequest{YouTubeURL: trackURL})
}

// Reject declines a pending request.
func (c *Client) Reject(ctx context.Context, id string) (api.Request, error) {
	return c.transition(ctx, http.MethodPost, id, "/reject", nil)
}

// Play starts a queued request, demoting whatever was playing.
func (c *Client) Play(ctx context.Context, id string) (api.Request, error) {
	return c.transition(ctx, http.MethodPost, id, "/play", nil)
}

// Done finishes the playing request.
func (c *Client) Done(ctx context.Context, id string) (api.Request, error) {
	return c.transition(ctx, http.MethodPost, id, "/done", nil)
}

// Edit corrects song, artist, or track on a pending or queued request.
func (c *Client) Edit(ctx context.Context, id string, edit api.EditRequest) (api.Request, error) {
	return c.transition(ctx, http.MethodPatch, id, "", edit)
}

// Remove deletes a request outright.
func (c *Client) Remove(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodDelete, "/api/requests/"+url.PathEscape(id), nil, nil, nil, true)
}

func (c *Client) transition(ctx context.Context, method, id, suffix string, body any) (api.Request, error) {
	var out api.RequestResponse
	err := c.call(ctx, method, "/api/requests/"+url.PathEscape(id)+suffix, nil, body, &out, true)
	return out.Request, err
}

// Settings returns the display settings.
func (c *Client) Settings(ctx context.Context) (api.Settings, error) {
	var out api.Settings
	err := c.call(ctx, http.MethodGet, "/api/settings", nil, nil, &out, false)
	return out, err
}

// SetTheme selects the display theme.
func (c *Client) SetTheme(ctx context.Context, theme string) (api.Settings, error) {
	var out api.Settings
	err := c.call(ctx, http.MethodPut, "/api/settings", nil, api.ThemeRequest{Theme: theme}, &out, true)
	return out, err
}

// ArmReset asks the daemon for a reset ticket.
func (c *Client) ArmReset(ctx context.Context) (api.ResetTicket, error) {
	var out api.ResetTicket
	err := c.call(ctx, http.MethodPost, "/api/reset", nil, nil, &out, true)
	return out, err
}

// ConfirmReset records the first confirmation of ticket.
func (c *Client) ConfirmReset(ctx context.Context, ticket string) (api.ResetTicket, error) {
	var out api.ResetTicket
	err := c.call(ctx, http.MethodPost, "/api/reset/"+url.PathEscape(ticket)+"/confirm", nil, nil, &out, true)
	return out, err
}

// ExecuteReset gives the second confirmation and runs the reset. A partial
// failure comes back as a *RemoteError carrying the failed batches and the
// partial result.
func (c *Client) ExecuteReset(ctx context.Context, ticket string) (api.ResetResult, error) {
	var out api.ResetResult
	err := c.call(ctx, http.MethodPost, "/api/reset/"+url.PathEscape(ticket)+"/execute", nil, nil, &out, true)
	return out, err
}

// FeedCursor names the last snapshot a caller holds. Revisions are only
// comparable within one daemon epoch.
type FeedCursor struct {
	Epoch    string
	Revision uint64
}

// RequestFeed fetches one snapshot of view. With wait set the daemon holds
// the call until the revision moves past since or its poll window ends. A
// since from an earlier epoch is answered at once.
func (c *Client) RequestFeed(ctx context.Context, view string, since FeedCursor, wait bool) (api.RequestFeed, error) {
	var out api.RequestFeed
	err := c.poll(ctx, "/api/feed/requests", feedQuery(view, since, wait), &out)
	return out, err
}

// SettingsFeed fetches one snapshot of the settings.
func (c *Client) SettingsFeed(ctx context.Context, since FeedCursor, wait bool) (api.SettingsFeed, error) {
	var out api.SettingsFeed
	err := c.poll(ctx, "/api/feed/settings", feedQuery("", since, wait), &out)
	return out, err
}

func feedQuery(view string, since FeedCursor, wait bool) url.Values {
	query := url.Values{}
	if view != "" {
		query.Set("view", view)
	}
	if since.Epoch != "" {
		query.Set("epoch", since.Epoch)
	}
	query.Set("since", strconv.FormatUint(since.Revision, 10))
	if wait {
		query.Set("wait", "1")
	}
	return query
}

func (c *Client) poll(ctx context.Context, path string, query url.Values, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.feedTimeout)
	defer cancel()
	return c.do(ctx, http.MethodGet, path, query, nil, out, false)
}

func (c *Client) call(ctx context.Context, method, path string, query url.Values, body, out any, admin bool) error {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()
	return c.do(ctx, method, path, query, body, out, admin)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any, admin bool) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s %s: encode body: %w", method, path, err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("%s %s: new request: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if admin && c.pin != "" {
		req.Header.Set(adminPinHeader, c.pin)
	}
	if id, ok := logging.CorrelationIDFromContext(ctx); ok {
		req.Header.Set(correlationHeader, id)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return requests.Unavailable("contact daemon", err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return requests.Unavailable("read daemon response", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		remote := &RemoteError{StatusCode: resp.StatusCode}
		if jsonErr := json.Unmarshal(payload, &remote.Response); jsonErr != nil || remote.Response.Error == "" {
			remote.Response.Error = strings.TrimSpace(string(payload))
		}
		return remote
	}
	if out == nil || len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}

// RemoteError is a non-2xx daemon response.
type RemoteError struct {
	StatusCode int
	Response   api.ErrorResponse
}

func (e *RemoteError) Error() string {
	if e.Response.Error != "" {
		return e.Response.Error
	}
	return fmt.Sprintf("daemon returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// ErrorKind reports the daemon's classification.
func (e *RemoteError) ErrorKind() string {
	if e.Response.Kind != "" {
		return e.Response.Kind
	}
	return requests.KindInternal
}

// Is matches the local sentinels for the remote kind.
func (e *RemoteError) Is(target error) bool {
	switch e.Response.Kind {
	case requests.KindNotFound:
		return errors.Is(requests.ErrNotFound, target)
	case requests.KindUnavailable:
		return errors.Is(requests.ErrUnavailable, target)
	default:
		return false
	}
}
