// ABOUTME: Conversation list store feeding the triage dashboard
// ABOUTME: Polls recent sessions, classifies rows, and answers list queries

package triage

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/leadwatch/leadwatch/internal/api"
	"github.com/leadwatch/leadwatch/internal/notify"
)

// ErrTextLoad is the user-visible list load failure text.
const ErrTextLoad = "Failed to load conversations"

const (
	// DefaultLimit caps the rows requested from the backend.
	DefaultLimit = 20

	// DefaultPollInterval is the list refresh cadence.
	DefaultPollInterval = 10 * time.Second

	// requestTimeout bounds store-initiated background requests.
	requestTimeout = 10 * time.Second
)

// Sort keys accepted by SortConversations.
const (
	SortLatest   = "latest"
	SortPriority = "priority"
	SortStatus   = "status"
	SortAgent    = "agent"
	SortLead     = "lead"
)

// Backend is what the list store needs from the HTTP adapter.
type Backend interface {
	RecentConversations(ctx context.Context, limit int) ([]api.Session, error)
}

// Conversation is one triage row: the session plus derived classification.
// Derived fields are functions of the row and the wall clock, recomputed on
// every refresh.
type Conversation struct {
	api.Session

	Status         StatusDisplay
	NeedsAttention bool
	Priority       string
	FormattedTime  string
}

// Stats are the aggregate counters shown above the list.
type Stats struct {
	Total          int
	Active         int
	NeedsAttention int
	HighPriority   int
}

// Options configures a Store.
type Options struct {
	// Limit caps rows requested from the backend. Zero means DefaultLimit.
	Limit int

	// PollInterval between refreshes. Zero means DefaultPollInterval;
	// negative disables the loop.
	PollInterval time.Duration

	// DisableAutoRefresh keeps the poll loop from starting after the first
	// Load. Refreshing is on unless a view opts out.
	DisableAutoRefresh bool

	// Now overrides the clock, for tests. Nil means time.Now.
	Now func() time.Time

	Logger *slog.Logger
}

// Snapshot is an immutable view of the list for rendering.
type Snapshot struct {
	Conversations []Conversation
	Stats         Stats
	Loading       bool
	Err           string
	Revision      uint64
}

// Store owns the recent-sessions list. It is independent of any per-lead
// conversation store; the two may poll concurrently without observing each
// other.
type Store struct {
	backend Backend
	logger  *slog.Logger
	hub     *notify.Hub
	now     func() time.Time

	limit        int
	pollInterval time.Duration
	autoRefresh  bool

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	gen           uint64
	conversations []Conversation
	stats         Stats
	loading       bool
	errText       string
	revision      uint64
	pollStarted   bool
}

// NewStore creates a Store. Call Close on teardown.
func NewStore(backend Backend, opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "triage")

	limit := opts.Limit
	if limit == 0 {
		limit = DefaultLimit
	}
	pollInterval := opts.PollInterval
	if pollInterval == 0 {
		pollInterval = DefaultPollInterval
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Store{
		backend:      backend,
		logger:       logger,
		hub:          notify.NewHub(logger),
		now:          now,
		limit:        limit,
		pollInterval: pollInterval,
		autoRefresh:  !opts.DisableAutoRefresh,
		ctx:          ctx,
		cancel:       cancel,
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
	return Snapshot{
		Conversations: copyRows(s.conversations),
		Stats:         s.stats,
		Loading:       s.loading,
		Err:           s.errText,
		Revision:      s.revision,
	}
}

// Load fetches the list, replaces it wholesale, recomputes derived fields
// and stats, and clears the error flag. On failure the previous list stays
// and the error text is exposed. Either way, the poll loop starts after the
// first load when auto-refresh is on.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	gen := s.gen
	s.loading = true
	s.touchLocked()
	s.mu.Unlock()

	sessions, err := s.backend.RecentConversations(ctx, s.limit)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return nil
	}
	s.loading = false
	if err != nil {
		s.errText = ErrTextLoad
		s.touchLocked()
		s.startPollingLocked()
		s.logger.Warn("list load failed", "error", err)
		return err
	}

	now := s.now()
	rows := make([]Conversation, 0, len(sessions))
	for i := range sessions {
		rows = append(rows, classify(sessions[i], now))
	}
	s.conversations = rows
	s.stats = computeStats(rows)
	s.errText = ""
	s.touchLocked()
	s.startPollingLocked()

	s.logger.Debug("list loaded", "rows", len(rows))
	return nil
}

// Refresh re-enters loading and reloads the list.
func (s *Store) Refresh(ctx context.Context) error {
	return s.Load(ctx)
}

// GetConversationsByStatus returns rows whose session status matches.
func (s *Store) GetConversationsByStatus(status string) []Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Conversation
	for _, c := range s.conversations {
		if c.SessionStatus == status {
			out = append(out, c)
		}
	}
	return out
}

// GetConversationsNeedingAttention returns rows flagged for attention.
func (s *Store) GetConversationsNeedingAttention() []Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Conversation
	for _, c := range s.conversations {
		if c.NeedsAttention {
			out = append(out, c)
		}
	}
	return out
}

// GetHighPriorityConversations returns rows classified high priority.
func (s *Store) GetHighPriorityConversations() []Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Conversation
	for _, c := range s.conversations {
		if c.Priority == PriorityHigh {
			out = append(out, c)
		}
	}
	return out
}

// GetConversationByID returns the row for sessionID, or nil.
func (s *Store) GetConversationByID(sessionID string) *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.conversations {
		if s.conversations[i].SessionID.String() == sessionID {
			row := s.conversations[i]
			return &row
		}
	}
	return nil
}

// SortConversations returns a new list ordered by key. The underlying list
// is never mutated; unknown keys return the list in its current order. All
// sorts are stable.
func (s *Store) SortConversations(key string) []Conversation {
	s.mu.Lock()
	rows := copyRows(s.conversations)
	s.mu.Unlock()
	return SortRows(rows, key)
}

// SortRows stably sorts rows in place by key and returns them.
func SortRows(rows []Conversation, key string) []Conversation {
	switch key {
	case SortLatest:
		sort.SliceStable(rows, func(i, j int) bool {
			return rows[i].LastActivity() > rows[j].LastActivity()
		})
	case SortPriority:
		rank := map[string]int{PriorityHigh: 0, PriorityMedium: 1, PriorityLow: 2}
		sort.SliceStable(rows, func(i, j int) bool {
			return rank[rows[i].Priority] < rank[rows[j].Priority]
		})
	case SortStatus:
		sort.SliceStable(rows, func(i, j int) bool {
			return statusRank(rows[i].SessionStatus) < statusRank(rows[j].SessionStatus)
		})
	case SortAgent:
		sort.SliceStable(rows, func(i, j int) bool {
			return strings.ToLower(rows[i].AgentName) < strings.ToLower(rows[j].AgentName)
		})
	case SortLead:
		sort.SliceStable(rows, func(i, j int) bool {
			return strings.ToLower(rows[i].LeadName) < strings.ToLower(rows[j].LeadName)
		})
	}
	return rows
}

func statusRank(status string) int {
	switch status {
	case api.StatusEscalated:
		return 0
	case api.StatusActive:
		return 1
	case api.StatusPaused:
		return 2
	case api.StatusCompleted:
		return 3
	default:
		return 4
	}
}

// SearchConversations returns rows whose lead name, agent name, or session
// goal contains query, case-insensitively. An empty query returns the full
// list.
func (s *Store) SearchConversations(query string) []Conversation {
	s.mu.Lock()
	rows := copyRows(s.conversations)
	s.mu.Unlock()
	return SearchRows(rows, query)
}

// SearchRows filters rows to those whose lead name, agent name, or session
// goal contains query, case-insensitively. An empty query returns rows as-is.
func SearchRows(rows []Conversation, query string) []Conversation {
	query = strings.TrimSpace(strings.ToLower(query))
	if query == "" {
		return rows
	}
	var out []Conversation
	for _, c := range rows {
		if strings.Contains(strings.ToLower(c.LeadName), query) ||
			strings.Contains(strings.ToLower(c.AgentName), query) ||
			strings.Contains(strings.ToLower(c.SessionGoal), query) {
			out = append(out, c)
		}
	}
	return out
}

// FilterRowsByStatus keeps rows whose session status equals status. An empty
// status returns rows as-is.
func FilterRowsByStatus(rows []Conversation, status string) []Conversation {
	if status == "" {
		return rows
	}
	var out []Conversation
	for _, c := range rows {
		if c.SessionStatus == status {
			out = append(out, c)
		}
	}
	return out
}

// UpdateConversation applies a local patch to the matching row and
// recomputes its derived fields. Meant for optimistic updates; the next
// poll overwrites. Returns false when the session is not in the list.
func (s *Store) UpdateConversation(sessionID string, patch func(*api.Session)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.conversations {
		if s.conversations[i].SessionID.String() != sessionID {
			continue
		}
		session := s.conversations[i].Session
		patch(&session)
		s.conversations[i] = classify(session, s.now())
		s.stats = computeStats(s.conversations)
		s.touchLocked()
		return true
	}
	return false
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

// Close stops the poll loop and tears down subscriptions.
func (s *Store) Close() {
	s.mu.Lock()
	s.gen++
	s.mu.Unlock()
	s.cancel()
	s.hub.Close()
}

func (s *Store) touchLocked() {
	s.revision++
	s.hub.Notify()
}

// startPollingLocked launches the chained refresh loop once. Caller holds
// the lock.
func (s *Store) startPollingLocked() {
	if !s.autoRefresh || s.pollInterval <= 0 || s.pollStarted {
		return
	}
	s.pollStarted = true
	go s.pollLoop()
}

// pollLoop is single-shot-chained: the next refresh is scheduled only after
// the previous one completes.
func (s *Store) pollLoop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-time.After(s.pollInterval):
		}

		ctx, cancel := context.WithTimeout(s.ctx, requestTimeout)
		// Failures keep the previous list and are retried next tick.
		_ = s.Load(ctx)
		cancel()
	}
}

func classify(session api.Session, now time.Time) Conversation {
	return Conversation{
		Session:        session,
		Status:         DisplayStatus(session.SessionStatus),
		NeedsAttention: NeedsAttention(&session, now),
		Priority:       Priority(&session, now),
		FormattedTime:  FormatRelativeTime(session.LastActivity(), now),
	}
}

func computeStats(rows []Conversation) Stats {
	stats := Stats{Total: len(rows)}
	for _, c := range rows {
		if c.SessionStatus == api.StatusActive {
			stats.Active++
		}
		if c.NeedsAttention {
			stats.NeedsAttention++
		}
		if c.Priority == PriorityHigh {
			stats.HighPriority++
		}
	}
	return stats
}

func copyRows(rows []Conversation) []Conversation {
	out := make([]Conversation, len(rows))
	copy(out, rows)
	return out
}
