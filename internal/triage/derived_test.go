// ABOUTME: Tests for the pure classification functions
// ABOUTME: Covers status display, attention, priority, and relative time

package triage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/leadwatch/leadwatch/internal/api"
)

var testNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func ts(t time.Time) string { return t.Format(time.RFC3339) }

func TestDisplayStatus_KnownStatuses(t *testing.T) {
	cases := []struct {
		status string
		text   string
		color  string
	}{
		{api.StatusActive, "Active", "green"},
		{api.StatusCompleted, "Completed", "blue"},
		{api.StatusEscalated, "Escalated", "orange"},
		{api.StatusPaused, "Paused", "yellow"},
		{api.StatusFailed, "Failed", "red"},
	}
	for _, tc := range cases {
		d := DisplayStatus(tc.status)
		assert.Equal(t, tc.text, d.Text)
		assert.Equal(t, tc.color, d.Color)
		assert.NotEmpty(t, d.Icon)
	}
}

func TestDisplayStatus_UnknownFallsBack(t *testing.T) {
	for _, status := range []string{"", "unknown", "garbage"} {
		d := DisplayStatus(status)
		assert.Equal(t, "Unknown", d.Text)
		assert.Equal(t, "gray", d.Color)
	}
}

func TestNeedsAttention_EscalatedAlways(t *testing.T) {
	s := &api.Session{SessionStatus: api.StatusEscalated}
	assert.True(t, NeedsAttention(s, testNow))
}

func TestNeedsAttention_StaleLeadMessage(t *testing.T) {
	s := &api.Session{
		SessionStatus:   api.StatusActive,
		LastMessageFrom: api.SenderLead,
		LastMessageAt:   ts(testNow.Add(-3 * time.Hour)),
	}
	assert.True(t, NeedsAttention(s, testNow))
}

func TestNeedsAttention_FreshLeadMessage(t *testing.T) {
	s := &api.Session{
		SessionStatus:   api.StatusActive,
		LastMessageFrom: api.SenderLead,
		LastMessageAt:   ts(testNow.Add(-30 * time.Minute)),
	}
	assert.False(t, NeedsAttention(s, testNow))
}

func TestNeedsAttention_AgentSpokeLast(t *testing.T) {
	s := &api.Session{
		SessionStatus:   api.StatusActive,
		LastMessageFrom: api.SenderAgent,
		LastMessageAt:   ts(testNow.Add(-5 * time.Hour)),
	}
	assert.False(t, NeedsAttention(s, testNow))
}

func TestNeedsAttention_PausedNeverByAge(t *testing.T) {
	s := &api.Session{
		SessionStatus:   api.StatusPaused,
		LastMessageFrom: api.SenderLead,
		LastMessageAt:   ts(testNow.Add(-5 * time.Hour)),
	}
	assert.False(t, NeedsAttention(s, testNow))
}

func TestPriority_Ladder(t *testing.T) {
	escalated := &api.Session{SessionStatus: api.StatusEscalated}
	assert.Equal(t, PriorityHigh, Priority(escalated, testNow))

	stale := &api.Session{
		SessionStatus:   api.StatusActive,
		LastMessageFrom: api.SenderLead,
		LastMessageAt:   ts(testNow.Add(-3 * time.Hour)),
	}
	assert.Equal(t, PriorityMedium, Priority(stale, testNow))

	quiet := &api.Session{SessionStatus: api.StatusActive}
	assert.Equal(t, PriorityLow, Priority(quiet, testNow))
}

func TestPriority_HighImpliesAttention(t *testing.T) {
	rows := []*api.Session{
		{SessionStatus: api.StatusEscalated},
		{SessionStatus: api.StatusActive, LastMessageFrom: api.SenderLead, LastMessageAt: ts(testNow.Add(-4 * time.Hour))},
		{SessionStatus: api.StatusCompleted},
	}
	for _, s := range rows {
		if Priority(s, testNow) == PriorityHigh {
			assert.True(t, NeedsAttention(s, testNow), "high priority must imply needs-attention")
		}
	}
}

func TestFormatRelativeTime(t *testing.T) {
	cases := []struct {
		name string
		when time.Time
		want string
	}{
		{"just now", testNow.Add(-30 * time.Second), "Just now"},
		{"minutes", testNow.Add(-5 * time.Minute), "5m ago"},
		{"fifty nine minutes", testNow.Add(-59 * time.Minute), "59m ago"},
		{"hours", testNow.Add(-3 * time.Hour), "3h ago"},
		{"same year date", testNow.Add(-72 * time.Hour), "Jun 12"},
		{"prior year date", time.Date(2023, 12, 30, 0, 0, 0, 0, time.UTC), "Dec 30, 2023"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, FormatRelativeTime(ts(tc.when), testNow))
		})
	}
}

func TestFormatRelativeTime_Unparseable(t *testing.T) {
	assert.Empty(t, FormatRelativeTime("", testNow))
	assert.Empty(t, FormatRelativeTime("yesterday", testNow))
}
