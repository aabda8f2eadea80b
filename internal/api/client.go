// ABOUTME: Backend HTTP client with base URL resolution and error normalization
// ABOUTME: One shared stateless instance per process; safe for concurrent use

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the local development backend.
	DefaultBaseURL = "http://localhost:8000"

	// DefaultTimeout bounds every backend request.
	DefaultTimeout = 10 * time.Second

	// baseURLEnv overrides the base URL when no explicit value is configured.
	baseURLEnv = "LEADWATCH_BACKEND_URL"
)

// legacyHosts are production hostnames the backend has been deployed under.
// The adapter refuses to pick between them; it only warns when it sees one so
// environment drift is visible in the logs.
var legacyHosts = []string{
	"lead-management-j828",
	"lead-management-staging-backend",
}

// Options configures a Client. The zero value is usable.
type Options struct {
	// BaseURL is the backend root. Empty selects from environment, then the
	// local development default.
	BaseURL string

	// Timeout bounds each request. Zero means DefaultTimeout.
	Timeout time.Duration

	// Header is merged into every request. Extension point for a future
	// Authorization header; the product is pre-auth today.
	Header http.Header

	// Logger for adapter diagnostics. Nil means slog.Default.
	Logger *slog.Logger

	// Metrics receives per-request observations. Nil disables instrumentation.
	Metrics *Metrics

	// HTTPClient overrides the underlying client, mainly for tests.
	HTTPClient *http.Client
}

// Client is the single HTTP surface to the lead-management backend. It is
// stateless aside from its base URL and safe to share across stores.
type Client struct {
	baseURL string
	header  http.Header
	http    *http.Client
	logger  *slog.Logger
	metrics *Metrics
}

// NewClient builds a Client, resolving the base URL once.
func NewClient(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "api")

	base := ResolveBaseURL(opts.BaseURL)
	if host := legacyHost(base); host != "" {
		logger.Warn("base URL matches a legacy production hostname; verify the deployment target",
			"base_url", base,
			"matched", host)
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL: strings.TrimRight(base, "/"),
		header:  opts.Header,
		http:    httpClient,
		logger:  logger,
		metrics: opts.Metrics,
	}
}

// ResolveBaseURL applies the selection order: explicit value, environment
// variable, local development default.
func ResolveBaseURL(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv(baseURLEnv); env != "" {
		return env
	}
	return DefaultBaseURL
}

// BaseURL returns the resolved backend root.
func (c *Client) BaseURL() string { return c.baseURL }

func legacyHost(base string) string {
	u, err := url.Parse(base)
	if err != nil {
		return ""
	}
	for _, h := range legacyHosts {
		if strings.Contains(u.Hostname(), h) {
			return h
		}
	}
	return ""
}

// RecentConversations fetches up to limit recent sessions across all leads.
func (c *Client) RecentConversations(ctx context.Context, limit int) ([]Session, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out RecentConversationsResponse
	if err := c.get(ctx, "recent_conversations", "/api/messages/conversations/recent", q, &out); err != nil {
		return nil, err
	}
	return out.Conversations, nil
}

// LeadMessages fetches the conversation for a lead. sinceTimestamp, when
// non-empty, asks the backend for messages strictly newer than it.
func (c *Client) LeadMessages(ctx context.Context, leadID, sinceTimestamp string, limit int) (*LeadMessagesResponse, error) {
	q := url.Values{}
	if sinceTimestamp != "" {
		q.Set("since_timestamp", sinceTimestamp)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out LeadMessagesResponse
	path := fmt.Sprintf("/api/messages/lead/%s/messages", url.PathEscape(leadID))
	if err := c.get(ctx, "lead_messages", path, q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ActiveSession asks which session, if any, is currently attached to a lead.
func (c *Client) ActiveSession(ctx context.Context, leadID string) (*ActiveSessionResponse, error) {
	var out ActiveSessionResponse
	path := fmt.Sprintf("/api/messages/lead/%s/active-session", url.PathEscape(leadID))
	if err := c.get(ctx, "active_session", path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RouteOwnerMessage sends a business-owner-authored message through the
// backend's routing endpoint.
func (c *Client) RouteOwnerMessage(ctx context.Context, req *RouteMessageRequest) (*StatusResponse, error) {
	var out StatusResponse
	if err := c.post(ctx, "route_message", "/api/messages/route", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SimulateLeadMessage replays a message through the Zapier-compatible ingress
// as if the lead had sent it.
func (c *Client) SimulateLeadMessage(ctx context.Context, req *SimulateMessageRequest) error {
	return c.post(ctx, "simulate_message", "/api/webhooks/zapier/yelp-message-received", req, nil)
}

// Takeover requests human control of a session.
func (c *Client) Takeover(ctx context.Context, sessionID string, req *TakeoverRequest) (*StatusResponse, error) {
	var out StatusResponse
	path := fmt.Sprintf("/api/messages/session/%s/takeover", url.PathEscape(sessionID))
	if err := c.post(ctx, "takeover", path, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Release returns a session to the automated agent.
func (c *Client) Release(ctx context.Context, sessionID string) (*StatusResponse, error) {
	var out StatusResponse
	path := fmt.Sprintf("/api/messages/session/%s/release", url.PathEscape(sessionID))
	if err := c.post(ctx, "release", path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Lead fetches a lead record by id.
func (c *Client) Lead(ctx context.Context, id string) (*Lead, error) {
	var out Lead
	path := fmt.Sprintf("/api/leads/%s", url.PathEscape(id))
	if err := c.get(ctx, "lead", path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) get(ctx context.Context, op, path string, query url.Values, out any) error {
	return c.do(ctx, op, http.MethodGet, path, query, nil, out)
}

func (c *Client) post(ctx context.Context, op, path string, body, out any) error {
	return c.do(ctx, op, http.MethodPost, path, nil, body, out)
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	full := c.baseURL + path
	if len(query) > 0 {
		full += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return &Error{Kind: KindDecode, Op: op, Err: fmt.Errorf("encoding request: %w", err)}
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, full, reader)
	if err != nil {
		return &Error{Kind: KindTransport, Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range c.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	done := c.metrics.begin()
	defer done()

	start := time.Now()
	resp, err := c.http.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		normalized := c.normalizeTransport(op, err)
		c.metrics.observe(op, 0, normalized, elapsed)
		c.logger.Debug("request failed", "operation", op, "error", normalized)
		return normalized
	}
	defer resp.Body.Close()

	c.metrics.observe(op, resp.StatusCode, nil, elapsed)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := readErrorDetail(resp.Body)
		c.logger.Debug("backend error",
			"operation", op,
			"status", resp.StatusCode,
			"detail", detail)
		return &Error{Kind: KindHTTP, Op: op, Status: resp.StatusCode, Message: detail}
	}

	if out == nil {
		// Drain so the connection can be reused.
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Kind: KindDecode, Op: op, Err: err}
	}
	return nil
}

// normalizeTransport maps client errors onto adapter kinds. Timeouts from
// the HTTP client, the transport, and the context all collapse to KindTimeout.
func (c *Client) normalizeTransport(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Op: op, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Op: op, Err: err}
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return &Error{Kind: KindTimeout, Op: op, Err: err}
	}
	return &Error{Kind: KindTransport, Op: op, Err: err}
}

// readErrorDetail pulls a best-effort message out of an error body. The
// backend usually sends {"detail": "..."} but is not consistent.
func readErrorDetail(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(data) == 0 {
		return ""
	}
	var envelope struct {
		Detail  string `json:"detail"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err == nil {
		switch {
		case envelope.Detail != "":
			return envelope.Detail
		case envelope.Message != "":
			return envelope.Message
		case envelope.Error != "":
			return envelope.Error
		}
	}
	s := strings.TrimSpace(string(data))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
