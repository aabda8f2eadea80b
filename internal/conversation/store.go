// ABOUTME: Per-lead conversation store: ordered append-only messages plus polling
// ABOUTME: The backend is the source of truth; the store is a synchronized view

package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/leadwatch/leadwatch/internal/api"
	"github.com/leadwatch/leadwatch/internal/notify"
)

// User-visible error texts. Views render these verbatim.
const (
	ErrTextLoad = "Failed to load messages"
	ErrTextSend = "Failed to send message"
)

const (
	// DefaultPollInterval is the incremental poll cadence.
	DefaultPollInterval = 5 * time.Second

	// DefaultSendPollDelay is how long after a successful send the store
	// waits before polling, so the routed message and any agent response
	// have landed.
	DefaultSendPollDelay = time.Second

	// requestTimeout bounds store-initiated background requests.
	requestTimeout = 10 * time.Second
)

// Backend is what the store needs from the HTTP adapter.
type Backend interface {
	LeadMessages(ctx context.Context, leadID, sinceTimestamp string, limit int) (*api.LeadMessagesResponse, error)
	ActiveSession(ctx context.Context, leadID string) (*api.ActiveSessionResponse, error)
	RouteOwnerMessage(ctx context.Context, req *api.RouteMessageRequest) (*api.StatusResponse, error)
	SimulateLeadMessage(ctx context.Context, req *api.SimulateMessageRequest) error
}

// Options configures a Store.
type Options struct {
	// PollInterval between incremental polls. Zero means DefaultPollInterval;
	// negative disables the poll loop (tests drive polls manually).
	PollInterval time.Duration

	// DisableAutoScroll turns off the auto-scroll hint surfaced to views.
	// Auto-scroll is on unless a view opts out.
	DisableAutoScroll bool

	// SendPollDelay before the post-send poll. Zero means DefaultSendPollDelay.
	SendPollDelay time.Duration

	Logger *slog.Logger
}

// Snapshot is an immutable view of the store for rendering. Views hold no
// authoritative state; they re-read a snapshot on every change tick.
type Snapshot struct {
	LeadID         string
	LeadExternalID string
	Messages       []api.Message
	// LastMessageTimestamp is the created_at of the newest observed message,
	// or empty when no message has been observed.
	LastMessageTimestamp string
	Loading              bool
	// Err is the user-visible error text, empty when healthy.
	Err         string
	SessionInfo *api.SessionInfo
	Draft       string
	AutoScroll  bool
	// Revision increments on every observable change.
	Revision uint64
}

// Store owns the message sequence for one lead at a time. All mutations are
// guarded by a generation counter: Load, Refresh, lead change, and Close bump
// it, and every continuation that completes after an await re-checks the
// generation it captured before touching state.
type Store struct {
	backend Backend
	logger  *slog.Logger
	hub     *notify.Hub

	pollInterval  time.Duration
	sendPollDelay time.Duration
	autoScroll    bool

	ctx    context.Context
	cancel context.CancelFunc

	mu             sync.Mutex
	gen            uint64
	leadID         string
	leadExternalID string
	messages       []api.Message
	seen           map[string]struct{}
	lastTimestamp  string
	loading        bool
	errText        string
	sessionInfo    *api.SessionInfo
	draft          string
	revision       uint64
	pollGen        uint64 // generation the running poll loop belongs to
}

// NewStore creates a Store. Call Close when the view is torn down.
func NewStore(backend Backend, opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "conversation")

	pollInterval := opts.PollInterval
	if pollInterval == 0 {
		pollInterval = DefaultPollInterval
	}
	sendPollDelay := opts.SendPollDelay
	if sendPollDelay == 0 {
		sendPollDelay = DefaultSendPollDelay
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Store{
		backend:       backend,
		logger:        logger,
		hub:           notify.NewHub(logger),
		pollInterval:  pollInterval,
		sendPollDelay: sendPollDelay,
		autoScroll:    !opts.DisableAutoScroll,
		ctx:           ctx,
		cancel:        cancel,
		seen:          make(map[string]struct{}),
	}
}

// Subscribe registers for change ticks. See notify.Hub.
func (s *Store) Subscribe() (<-chan struct{}, string) { return s.hub.Subscribe() }

// Unsubscribe removes a change-tick subscription.
func (s *Store) Unsubscribe(subID string) { s.hub.Unsubscribe(subID) }

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := make([]api.Message, len(s.messages))
	copy(msgs, s.messages)

	return Snapshot{
		LeadID:               s.leadID,
		LeadExternalID:       s.leadExternalID,
		Messages:             msgs,
		LastMessageTimestamp: s.lastTimestamp,
		Loading:              s.loading,
		Err:                  s.errText,
		SessionInfo:          s.sessionInfo,
		Draft:                s.draft,
		AutoScroll:           s.autoScroll,
		Revision:             s.revision,
	}
}

// SetDraft stores the view's input buffer so it survives a failed send.
func (s *Store) SetDraft(text string) {
	s.mu.Lock()
	s.draft = text
	s.mu.Unlock()
}

// Load fetches the full conversation history for leadID. Switching leads
// resets the store; reloading the same lead replaces the sequence wholesale
// on success and keeps it intact on failure. The poll loop starts after the
// load completes, success or not, so transient errors self-recover.
func (s *Store) Load(ctx context.Context, leadID string) error {
	leadID = strings.TrimSpace(leadID)
	if leadID == "" {
		return fmt.Errorf("lead id is required")
	}

	s.mu.Lock()
	if s.leadID != leadID {
		s.resetLocked()
		s.leadID = leadID
	}
	s.gen++
	gen := s.gen
	s.loading = true
	s.errText = ""
	s.lastTimestamp = ""
	s.touchLocked()
	s.mu.Unlock()

	resp, err := s.backend.LeadMessages(ctx, leadID, "", 0)

	s.mu.Lock()
	if gen != s.gen {
		// The view moved on while we were waiting. Drop silently.
		s.mu.Unlock()
		return nil
	}

	if err != nil {
		s.loading = false
		s.errText = ErrTextLoad
		// Restore the ordering key so polling can resume over prior messages.
		if n := len(s.messages); n > 0 {
			s.lastTimestamp = s.messages[n-1].CreatedAt
		}
		s.touchLocked()
		s.startPollingLocked(gen)
		s.mu.Unlock()
		s.logger.Warn("load failed", "lead_id", leadID, "error", err)
		return err
	}

	s.messages = nil
	s.seen = make(map[string]struct{})
	s.appendNewLocked(resp.Messages)
	if resp.LeadExternalID != "" {
		s.leadExternalID = resp.LeadExternalID
	}
	s.loading = false
	s.touchLocked()
	needSession := s.sessionInfo == nil && resp.LeadID != ""
	s.startPollingLocked(gen)
	s.mu.Unlock()

	s.logger.Debug("conversation loaded",
		"lead_id", leadID,
		"messages", len(resp.Messages))

	if needSession {
		// Views bind the session from the snapshot as soon as Load returns,
		// so the fetch completes before we do. Failures stay non-fatal.
		s.FetchActiveSession(ctx, leadID)
	}
	return nil
}

// PollIncremental fetches messages strictly newer than the last observed
// timestamp and appends them in order. A store with no observed messages
// does nothing; callers should Load first. Failures leave the sequence and
// the ordering key untouched; the next tick retries.
func (s *Store) PollIncremental(ctx context.Context) error {
	s.mu.Lock()
	if s.leadID == "" || s.lastTimestamp == "" {
		s.mu.Unlock()
		return nil
	}
	gen := s.gen
	leadID := s.leadID
	since := s.lastTimestamp
	s.mu.Unlock()

	resp, err := s.backend.LeadMessages(ctx, leadID, since, 0)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return nil
	}
	if err != nil {
		s.logger.Debug("incremental poll failed", "lead_id", leadID, "error", err)
		return err
	}
	if added := s.appendNewLocked(resp.Messages); added > 0 {
		s.touchLocked()
	}
	return nil
}

// Refresh discards incremental tracking and re-runs a full load.
func (s *Store) Refresh(ctx context.Context) error {
	s.mu.Lock()
	leadID := s.leadID
	s.mu.Unlock()
	if leadID == "" {
		return fmt.Errorf("no lead loaded")
	}
	return s.Load(ctx, leadID)
}

// SendOwnerMessage routes a business-owner-authored message through the
// backend. The message is not inserted locally; a poll shortly after the
// send picks it up along with any agent response.
func (s *Store) SendOwnerMessage(ctx context.Context, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return fmt.Errorf("message is empty")
	}

	s.mu.Lock()
	gen := s.gen
	leadID := s.leadID
	s.mu.Unlock()
	if leadID == "" {
		return fmt.Errorf("no lead loaded")
	}

	req := &api.RouteMessageRequest{
		LeadID:      api.ID(leadID).Int(),
		Message:     content,
		MessageType: "text",
		Metadata: map[string]any{
			"sender":   api.SenderBusinessOwner,
			"platform": "web_ui",
		},
	}
	_, err := s.backend.RouteOwnerMessage(ctx, req)

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		s.errText = ErrTextSend
		s.touchLocked()
		s.mu.Unlock()
		s.logger.Warn("send failed", "lead_id", leadID, "error", err)
		return err
	}
	s.draft = ""
	s.errText = ""
	s.touchLocked()
	s.mu.Unlock()

	s.schedulePostSendPoll(gen)
	return nil
}

// SimulateLeadMessage replays content as if the lead had sent it, through
// the webhook ingress. Operators use this to exercise the agent.
func (s *Store) SimulateLeadMessage(ctx context.Context, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return fmt.Errorf("message is empty")
	}

	s.mu.Lock()
	gen := s.gen
	leadID := s.leadID
	externalID := s.leadExternalID
	conversationID := ""
	if s.sessionInfo != nil {
		conversationID = s.sessionInfo.SessionID.String()
	}
	s.mu.Unlock()
	if leadID == "" {
		return fmt.Errorf("no lead loaded")
	}
	if externalID == "" {
		externalID = leadID
	}
	if conversationID == "" {
		conversationID = externalID
	}

	req := &api.SimulateMessageRequest{
		YelpLeadID:     externalID,
		ConversationID: conversationID,
		MessageContent: content,
		Sender:         "customer",
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	}
	err := s.backend.SimulateLeadMessage(ctx, req)

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		s.errText = ErrTextSend
		s.touchLocked()
		s.mu.Unlock()
		s.logger.Warn("simulate failed", "lead_id", leadID, "error", err)
		return err
	}
	s.draft = ""
	s.errText = ""
	s.touchLocked()
	s.mu.Unlock()

	s.schedulePostSendPoll(gen)
	return nil
}

// FetchActiveSession asks which session is attached to leadID and publishes
// the result. Absence of a session is a valid state, so failures are logged
// and never surfaced to the user.
func (s *Store) FetchActiveSession(ctx context.Context, leadID string) {
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()

	resp, err := s.backend.ActiveSession(ctx, leadID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.leadID != leadID {
		return
	}
	if err != nil {
		s.logger.Debug("active session fetch failed", "lead_id", leadID, "error", err)
		return
	}
	if resp.HasActiveSession && resp.Session != nil {
		s.sessionInfo = resp.Session
		if s.leadExternalID == "" && resp.Session.Lead.ExternalID != "" {
			s.leadExternalID = resp.Session.Lead.ExternalID
		}
	} else {
		s.sessionInfo = nil
	}
	s.touchLocked()
}

// ClearError dismisses the current error banner.
func (s *Store) ClearError() {
	s.mu.Lock()
	if s.errText != "" {
		s.errText = ""
		s.touchLocked()
	}
	s.mu.Unlock()
}

// Close tears the store down: the poll loop stops and pending continuations
// become stale.
func (s *Store) Close() {
	s.mu.Lock()
	s.gen++
	s.mu.Unlock()
	s.cancel()
	s.hub.Close()
}

// resetLocked clears all per-lead state. Caller holds the lock.
func (s *Store) resetLocked() {
	s.leadID = ""
	s.leadExternalID = ""
	s.messages = nil
	s.seen = make(map[string]struct{})
	s.lastTimestamp = ""
	s.sessionInfo = nil
	s.draft = ""
	s.errText = ""
}

// touchLocked bumps the revision and ticks subscribers. Caller holds the lock.
func (s *Store) touchLocked() {
	s.revision++
	s.hub.Notify()
}

// appendNewLocked merges candidate messages into the sequence in created_at
// order, dropping duplicates by id and anything at or before the last
// observed timestamp. Returns the number appended. Caller holds the lock.
func (s *Store) appendNewLocked(candidates []api.Message) int {
	if len(candidates) == 0 {
		return 0
	}

	sorted := make([]api.Message, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return compareTimestamps(sorted[i].CreatedAt, sorted[j].CreatedAt) < 0
	})

	added := 0
	for _, msg := range sorted {
		if id := msg.ID.String(); id != "" {
			if _, dup := s.seen[id]; dup {
				continue
			}
		}
		if s.lastTimestamp != "" && compareTimestamps(msg.CreatedAt, s.lastTimestamp) <= 0 {
			continue
		}
		s.messages = append(s.messages, msg)
		if id := msg.ID.String(); id != "" {
			s.seen[id] = struct{}{}
		}
		s.lastTimestamp = msg.CreatedAt
		added++
	}
	return added
}

// startPollingLocked launches the chained poll loop for gen unless one is
// already running for it. Caller holds the lock.
func (s *Store) startPollingLocked(gen uint64) {
	if s.pollInterval <= 0 {
		return
	}
	if s.pollGen == gen {
		return
	}
	s.pollGen = gen
	go s.pollLoop(gen)
}

// pollLoop waits a full interval after each poll completes before the next
// one starts, so polls never overlap. It exits as soon as the store's
// generation moves past the one it was started for.
func (s *Store) pollLoop(gen uint64) {
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-time.After(s.pollInterval):
		}

		s.mu.Lock()
		current := s.gen
		s.mu.Unlock()
		if current != gen {
			return
		}

		ctx, cancel := context.WithTimeout(s.ctx, requestTimeout)
		// Transient failures are already logged; the next tick retries.
		_ = s.PollIncremental(ctx)
		cancel()
	}
}

// schedulePostSendPoll polls once after the send-poll delay so the routed
// message shows up without waiting out a full poll interval.
func (s *Store) schedulePostSendPoll(gen uint64) {
	time.AfterFunc(s.sendPollDelay, func() {
		s.mu.Lock()
		current := s.gen
		s.mu.Unlock()
		if current != gen {
			return
		}
		ctx, cancel := context.WithTimeout(s.ctx, requestTimeout)
		defer cancel()
		_ = s.PollIncremental(ctx)
	})
}

// compareTimestamps orders two created_at values. Both sides normally parse
// as RFC3339; if either does not, fall back to string comparison so a
// malformed backend row cannot wedge the ordering.
func compareTimestamps(a, b string) int {
	ta, errA := time.Parse(time.RFC3339, a)
	tb, errB := time.Parse(time.RFC3339, b)
	if errA == nil && errB == nil {
		switch {
		case ta.Before(tb):
			return -1
		case ta.After(tb):
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(a, b)
}
