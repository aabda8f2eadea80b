// ABOUTME: Tests for the console command dispatch and preferences
// ABOUTME: Runs commands against a fake backend over httptest

package console

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadwatch/leadwatch/internal/api"
	"github.com/leadwatch/leadwatch/internal/config"
	"github.com/leadwatch/leadwatch/internal/triage"
)

func TestLoadPrefsMissingFile(t *testing.T) {
	prefs, err := LoadPrefs(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultPrefs(), prefs)
}

func TestPrefsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leadwatch", "console.toml")

	want := Prefs{DefaultSort: "priority", Color: false, ListLimit: 5}
	require.NoError(t, SavePrefs(path, want))

	got, err := LoadPrefs(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		input string
		cmd   string
		args  string
	}{
		{"/open 7", "/open", "7"},
		{"/list", "/list", ""},
		{"/search grace hopper", "/search", "grace hopper"},
		{"hello there", "", "hello there"},
	}
	for _, tt := range tests {
		cmd, args := splitCommand(tt.input)
		assert.Equal(t, tt.cmd, cmd, tt.input)
		assert.Equal(t, tt.args, args, tt.input)
	}
}

func TestRenderRowPlain(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = prev }()

	row := triage.Conversation{
		Session: api.Session{
			LeadID:      "7",
			LeadName:    "Grace Hopper",
			AgentName:   "Concierge",
			SessionGoal: "Book an estimate",
		},
		Status:         triage.DisplayStatus("escalated"),
		NeedsAttention: true,
		Priority:       triage.PriorityHigh,
		FormattedTime:  "5m ago",
	}

	var buf bytes.Buffer
	renderRow(&buf, row)
	out := buf.String()

	assert.Contains(t, out, "Grace Hopper")
	assert.Contains(t, out, "Escalated")
	assert.Contains(t, out, "high")
	assert.Contains(t, out, "Book an estimate")
}

type consoleBackend struct {
	mu            sync.Mutex
	simulateCalls int
	routeCalls    int
	takeoverCalls int
	sessionDelay  time.Duration
}

func (f *consoleBackend) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/messages/conversations/recent", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"conversations": []map[string]any{
			{
				"session_id":     "sess-1",
				"lead_id":        "7",
				"lead_name":      "Grace Hopper",
				"agent_name":     "Concierge",
				"session_status": "active",
				"created_at":     "2024-06-15T11:00:00Z",
			},
		}})
	})
	mux.HandleFunc("GET /api/messages/lead/7/messages", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"success": true,
			"lead_id": "7",
			"messages": []map[string]any{
				{"id": "m1", "created_at": "2024-06-15T11:00:00Z", "content": "Anyone there?", "sender_type": "lead"},
			},
		})
	})
	mux.HandleFunc("GET /api/messages/lead/7/active-session", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		delay := f.sessionDelay
		f.mu.Unlock()
		if delay > 0 {
			time.Sleep(delay)
		}
		writeJSON(w, map[string]any{
			"has_active_session": true,
			"session": map[string]any{
				"session_id": "sess-1",
				"agent":      map[string]any{"id": "a1", "name": "Concierge"},
				"lead":       map[string]any{"id": "7", "name": "Grace Hopper"},
			},
		})
	})
	mux.HandleFunc("GET /api/leads/7", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"id": "7", "name": "Grace Hopper", "email": "grace@example.com"})
	})
	mux.HandleFunc("POST /api/webhooks/zapier/yelp-message-received", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.simulateCalls++
		f.mu.Unlock()
		writeJSON(w, map[string]any{"success": true})
	})
	mux.HandleFunc("POST /api/messages/route", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.routeCalls++
		f.mu.Unlock()
		writeJSON(w, map[string]any{"success": true})
	})
	mux.HandleFunc("POST /api/messages/session/sess-1/takeover", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.takeoverCalls++
		f.mu.Unlock()
		writeJSON(w, map[string]any{"success": true})
	})

	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestConsole(t *testing.T) (*Console, *consoleBackend, *bytes.Buffer) {
	t.Helper()

	fake := &consoleBackend{}
	backend := httptest.NewServer(fake.handler())
	t.Cleanup(backend.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := api.NewClient(api.Options{BaseURL: backend.URL, Logger: logger})

	cfg := config.Default()
	cfg.Conversation.PollInterval = -1
	cfg.Triage.PollInterval = -1
	cfg.Triage.AutoRefresh = false

	prefs := DefaultPrefs()
	prefs.Color = false

	c := New(cfg, client, prefs, "", logger)
	t.Cleanup(c.teardown)

	out := &bytes.Buffer{}
	c.out = out
	return c, fake, out
}

func TestConsoleListAndOpen(t *testing.T) {
	c, _, out := newTestConsole(t)
	ctx := context.Background()

	c.dispatch(ctx, "/list")
	assert.Contains(t, out.String(), "Grace Hopper")
	assert.Contains(t, out.String(), "1 conversations")

	out.Reset()
	c.dispatch(ctx, "/open 7")
	body := out.String()
	assert.Contains(t, body, "Session sess-1")
	assert.Contains(t, body, "Anyone there?")

	out.Reset()
	c.dispatch(ctx, "/lead")
	assert.Contains(t, out.String(), "grace@example.com")
}

func TestConsoleSendRoutesByMode(t *testing.T) {
	c, fake, out := newTestConsole(t)
	ctx := context.Background()

	c.dispatch(ctx, "/open 7")

	// No takeover yet: text goes out as a simulated lead message.
	c.dispatch(ctx, "hello")
	assert.Equal(t, 1, fake.simulateCalls)
	assert.Equal(t, 0, fake.routeCalls)

	out.Reset()
	c.dispatch(ctx, "/takeover")
	require.Equal(t, 1, fake.takeoverCalls)
	assert.Contains(t, out.String(), "You now control")

	c.dispatch(ctx, "reply from the business")
	assert.Equal(t, 1, fake.routeCalls)
	assert.Equal(t, 1, fake.simulateCalls)
}

func TestConsoleOpenBindsSessionDespiteSlowActiveSession(t *testing.T) {
	c, fake, out := newTestConsole(t)
	fake.sessionDelay = 150 * time.Millisecond
	ctx := context.Background()

	// /open waits out the active-session fetch, so takeover works right away.
	c.dispatch(ctx, "/open 7")
	assert.Contains(t, out.String(), "Session sess-1")

	out.Reset()
	c.dispatch(ctx, "/takeover")
	assert.Equal(t, 1, fake.takeoverCalls)
	assert.Contains(t, out.String(), "You now control")
}

func TestTruncateRuneSafe(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))

	got := truncate("Ødegård Bådservice", 8)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, "Ødegård…", got)
}

func TestConsoleSendWithoutConversation(t *testing.T) {
	c, fake, out := newTestConsole(t)

	c.dispatch(context.Background(), "hello")
	assert.Contains(t, out.String(), "No conversation open")
	assert.Equal(t, 0, fake.simulateCalls)
}

func TestConsoleSortValidation(t *testing.T) {
	c, _, out := newTestConsole(t)

	c.dispatch(context.Background(), "/sort bogus")
	assert.Contains(t, out.String(), "Unknown sort key")
	assert.Equal(t, triage.SortLatest, c.sortKey)

	out.Reset()
	c.dispatch(context.Background(), "/sort priority")
	assert.Equal(t, triage.SortPriority, c.sortKey)
}
