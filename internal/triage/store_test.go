// ABOUTME: Tests for the conversation list store
// ABOUTME: Covers load, stats, queries, sorts, search purity, and polling

package triage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadwatch/leadwatch/internal/api"
)

// mockBackend implements Backend for testing.
type mockBackend struct {
	mu       sync.Mutex
	sessions []api.Session
	err      error
	calls    int
	gotLimit int
}

func (m *mockBackend) RecentConversations(ctx context.Context, limit int) ([]api.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.gotLimit = limit
	if m.err != nil {
		return nil, m.err
	}
	out := make([]api.Session, len(m.sessions))
	copy(out, m.sessions)
	return out, nil
}

func (m *mockBackend) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T, backend Backend) *Store {
	t.Helper()
	s := NewStore(backend, Options{
		PollInterval: -1,
		Now:          func() time.Time { return testNow },
		Logger:       testLogger(),
	})
	t.Cleanup(s.Close)
	return s
}

func fixtureSessions() []api.Session {
	return []api.Session{
		{
			SessionID:     "1",
			SessionStatus: api.StatusEscalated,
			LeadName:      "Ada Lovelace",
			AgentName:     "Concierge",
			SessionGoal:   "Book a consultation",
			CreatedAt:     ts(testNow.Add(-6 * time.Hour)),
			LastMessageAt: ts(testNow.Add(-10 * time.Minute)),
		},
		{
			SessionID:       "2",
			SessionStatus:   api.StatusActive,
			LeadName:        "Grace Hopper",
			AgentName:       "Booker",
			SessionGoal:     "Schedule estimate",
			LastMessageFrom: api.SenderLead,
			CreatedAt:       ts(testNow.Add(-8 * time.Hour)),
			LastMessageAt:   ts(testNow.Add(-3 * time.Hour)),
		},
		{
			SessionID:     "3",
			SessionStatus: api.StatusCompleted,
			LeadName:      "Alan Turing",
			AgentName:     "Concierge",
			SessionGoal:   "Answer pricing questions",
			CreatedAt:     ts(testNow.Add(-48 * time.Hour)),
			LastMessageAt: ts(testNow.Add(-24 * time.Hour)),
		},
	}
}

func TestStore_Load_ClassifiesAndCounts(t *testing.T) {
	backend := &mockBackend{sessions: fixtureSessions()}
	store := newTestStore(t, backend)

	require.NoError(t, store.Load(context.Background()))

	snap := store.Snapshot()
	require.Len(t, snap.Conversations, 3)
	assert.False(t, snap.Loading)
	assert.Empty(t, snap.Err)

	escalated := snap.Conversations[0]
	assert.Equal(t, PriorityHigh, escalated.Priority)
	assert.True(t, escalated.NeedsAttention)
	assert.Equal(t, "Escalated", escalated.Status.Text)

	stale := snap.Conversations[1]
	assert.Equal(t, PriorityMedium, stale.Priority)
	assert.True(t, stale.NeedsAttention)

	assert.Equal(t, Stats{Total: 3, Active: 1, NeedsAttention: 2, HighPriority: 1}, snap.Stats)
}

func TestStore_Load_PassesLimit(t *testing.T) {
	backend := &mockBackend{}
	store := NewStore(backend, Options{Limit: 50, PollInterval: -1, Logger: testLogger()})
	defer store.Close()

	require.NoError(t, store.Load(context.Background()))
	assert.Equal(t, 50, backend.gotLimit)
}

func TestStore_Load_FailureKeepsPreviousList(t *testing.T) {
	backend := &mockBackend{sessions: fixtureSessions()}
	store := newTestStore(t, backend)
	require.NoError(t, store.Load(context.Background()))

	backend.mu.Lock()
	backend.err = fmt.Errorf("boom")
	backend.mu.Unlock()

	err := store.Refresh(context.Background())
	require.Error(t, err)

	snap := store.Snapshot()
	assert.Equal(t, ErrTextLoad, snap.Err)
	assert.Len(t, snap.Conversations, 3, "previous list survives a failed refresh")
	assert.False(t, snap.Loading)
}

func TestStore_Load_RecoveryClearsError(t *testing.T) {
	backend := &mockBackend{err: fmt.Errorf("boom")}
	store := newTestStore(t, backend)
	require.Error(t, store.Load(context.Background()))

	backend.mu.Lock()
	backend.err = nil
	backend.sessions = fixtureSessions()
	backend.mu.Unlock()

	require.NoError(t, store.Load(context.Background()))
	assert.Empty(t, store.Snapshot().Err)
}

func TestStore_GetConversationsByStatus(t *testing.T) {
	backend := &mockBackend{sessions: fixtureSessions()}
	store := newTestStore(t, backend)
	require.NoError(t, store.Load(context.Background()))

	active := store.GetConversationsByStatus(api.StatusActive)
	require.Len(t, active, 1)
	assert.Equal(t, api.ID("2"), active[0].SessionID)

	assert.Empty(t, store.GetConversationsByStatus(api.StatusFailed))
}

func TestStore_GetConversationsNeedingAttention(t *testing.T) {
	backend := &mockBackend{sessions: fixtureSessions()}
	store := newTestStore(t, backend)
	require.NoError(t, store.Load(context.Background()))

	rows := store.GetConversationsNeedingAttention()
	require.Len(t, rows, 2)
}

func TestStore_GetHighPriorityConversations(t *testing.T) {
	backend := &mockBackend{sessions: fixtureSessions()}
	store := newTestStore(t, backend)
	require.NoError(t, store.Load(context.Background()))

	rows := store.GetHighPriorityConversations()
	require.Len(t, rows, 1)
	assert.Equal(t, api.ID("1"), rows[0].SessionID)
}

func TestStore_GetConversationByID(t *testing.T) {
	backend := &mockBackend{sessions: fixtureSessions()}
	store := newTestStore(t, backend)
	require.NoError(t, store.Load(context.Background()))

	row := store.GetConversationByID("2")
	require.NotNil(t, row)
	assert.Equal(t, "Grace Hopper", row.LeadName)

	assert.Nil(t, store.GetConversationByID("404"))
}

func TestStore_SortConversations(t *testing.T) {
	backend := &mockBackend{sessions: fixtureSessions()}
	store := newTestStore(t, backend)
	require.NoError(t, store.Load(context.Background()))

	byLatest := store.SortConversations(SortLatest)
	assert.Equal(t, api.ID("1"), byLatest[0].SessionID)
	assert.Equal(t, api.ID("2"), byLatest[1].SessionID)
	assert.Equal(t, api.ID("3"), byLatest[2].SessionID)

	byPriority := store.SortConversations(SortPriority)
	assert.Equal(t, PriorityHigh, byPriority[0].Priority)
	assert.Equal(t, PriorityMedium, byPriority[1].Priority)
	assert.Equal(t, PriorityLow, byPriority[2].Priority)

	byStatus := store.SortConversations(SortStatus)
	assert.Equal(t, api.StatusEscalated, byStatus[0].SessionStatus)
	assert.Equal(t, api.StatusActive, byStatus[1].SessionStatus)
	assert.Equal(t, api.StatusCompleted, byStatus[2].SessionStatus)

	byAgent := store.SortConversations(SortAgent)
	assert.Equal(t, "Booker", byAgent[0].AgentName)

	byLead := store.SortConversations(SortLead)
	assert.Equal(t, "Ada Lovelace", byLead[0].LeadName)
}

func TestStore_SortConversations_PureAndRepeatable(t *testing.T) {
	backend := &mockBackend{sessions: fixtureSessions()}
	store := newTestStore(t, backend)
	require.NoError(t, store.Load(context.Background()))

	before := store.Snapshot().Conversations

	first := store.SortConversations(SortPriority)
	second := store.SortConversations(SortPriority)
	assert.Equal(t, first, second)

	after := store.Snapshot().Conversations
	assert.Equal(t, before, after, "sorting must not mutate the underlying list")
}

func TestStore_SearchConversations(t *testing.T) {
	backend := &mockBackend{sessions: fixtureSessions()}
	store := newTestStore(t, backend)
	require.NoError(t, store.Load(context.Background()))

	byLead := store.SearchConversations("grace")
	require.Len(t, byLead, 1)
	assert.Equal(t, api.ID("2"), byLead[0].SessionID)

	byAgent := store.SearchConversations("CONCIERGE")
	assert.Len(t, byAgent, 2)

	byGoal := store.SearchConversations("pricing")
	require.Len(t, byGoal, 1)
	assert.Equal(t, api.ID("3"), byGoal[0].SessionID)

	assert.Empty(t, store.SearchConversations("nobody"))
}

func TestStore_SearchConversations_EmptyQueryReturnsAll(t *testing.T) {
	backend := &mockBackend{sessions: fixtureSessions()}
	store := newTestStore(t, backend)
	require.NoError(t, store.Load(context.Background()))

	all := store.SearchConversations("")
	assert.Equal(t, store.Snapshot().Conversations, all)
}

func TestStore_UpdateConversation(t *testing.T) {
	backend := &mockBackend{sessions: fixtureSessions()}
	store := newTestStore(t, backend)
	require.NoError(t, store.Load(context.Background()))

	ok := store.UpdateConversation("2", func(s *api.Session) {
		s.SessionStatus = api.StatusEscalated
	})
	require.True(t, ok)

	row := store.GetConversationByID("2")
	assert.Equal(t, api.StatusEscalated, row.SessionStatus)
	assert.Equal(t, PriorityHigh, row.Priority, "derived fields recomputed after patch")
	assert.Equal(t, 2, store.Snapshot().Stats.HighPriority)

	assert.False(t, store.UpdateConversation("404", func(s *api.Session) {}))
}

func TestStore_PollLoop_StartsAfterLoadAndStopsOnClose(t *testing.T) {
	backend := &mockBackend{sessions: fixtureSessions()}
	// Options zero value leaves auto-refresh on.
	store := NewStore(backend, Options{
		PollInterval: 10 * time.Millisecond,
		Now:          func() time.Time { return testNow },
		Logger:       testLogger(),
	})
	require.NoError(t, store.Load(context.Background()))

	first := backend.callCount()
	require.Eventually(t, func() bool {
		return backend.callCount() > first
	}, time.Second, 5*time.Millisecond)

	store.Close()
	stopped := backend.callCount()
	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, backend.callCount(), stopped+1)
}

func TestStore_PollLoop_StartsEvenAfterLoadFailure(t *testing.T) {
	backend := &mockBackend{err: fmt.Errorf("down")}
	store := NewStore(backend, Options{
		PollInterval: 10 * time.Millisecond,
		Now:          func() time.Time { return testNow },
		Logger:       testLogger(),
	})
	defer store.Close()

	require.Error(t, store.Load(context.Background()))

	backend.mu.Lock()
	backend.err = nil
	backend.sessions = fixtureSessions()
	backend.mu.Unlock()

	require.Eventually(t, func() bool {
		return len(store.Snapshot().Conversations) == 3
	}, time.Second, 5*time.Millisecond, "poll loop should recover after the backend comes back")
}

func TestStore_NoAutoRefreshMeansNoLoop(t *testing.T) {
	backend := &mockBackend{sessions: fixtureSessions()}
	store := NewStore(backend, Options{
		PollInterval:       10 * time.Millisecond,
		DisableAutoRefresh: true,
		Now:                func() time.Time { return testNow },
		Logger:             testLogger(),
	})
	defer store.Close()

	require.NoError(t, store.Load(context.Background()))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, backend.callCount())
}
