// ABOUTME: Pure classification functions over a session row and a clock
// ABOUTME: Recomputed on every snapshot; never persisted, because they age

package triage

import (
	"strconv"
	"time"

	"github.com/leadwatch/leadwatch/internal/api"
)

// Priority levels, ordered high > medium > low.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// attentionAge is how long an active conversation may sit on a lead's
// message before it needs attention.
const attentionAge = 2 * time.Hour

// StatusDisplay is the fixed presentation triple for a session status.
type StatusDisplay struct {
	Text  string
	Color string
	Icon  string
}

var statusDisplays = map[string]StatusDisplay{
	api.StatusActive:    {Text: "Active", Color: "green", Icon: "🟢"},
	api.StatusCompleted: {Text: "Completed", Color: "blue", Icon: "✅"},
	api.StatusEscalated: {Text: "Escalated", Color: "orange", Icon: "⚠️"},
	api.StatusPaused:    {Text: "Paused", Color: "yellow", Icon: "⏸️"},
	api.StatusFailed:    {Text: "Failed", Color: "red", Icon: "❌"},
}

var unknownDisplay = StatusDisplay{Text: "Unknown", Color: "gray", Icon: "❓"}

// DisplayStatus maps a session status onto its presentation triple.
// Anything unrecognized renders as Unknown.
func DisplayStatus(status string) StatusDisplay {
	if d, ok := statusDisplays[status]; ok {
		return d
	}
	return unknownDisplay
}

// NeedsAttention reports whether a session should be surfaced for human
// involvement: escalated always, or active with the lead's last message
// unanswered for longer than the attention window.
func NeedsAttention(s *api.Session, now time.Time) bool {
	if s.SessionStatus == api.StatusEscalated {
		return true
	}
	if s.SessionStatus != api.StatusActive || s.LastMessageFrom != api.SenderLead {
		return false
	}
	last, err := time.Parse(time.RFC3339, s.LastMessageAt)
	if err != nil {
		return false
	}
	return now.Sub(last) > attentionAge
}

// Priority classifies a session: escalated is high, anything else needing
// attention is medium, the rest is low. high implies needsAttention.
func Priority(s *api.Session, now time.Time) string {
	if s.SessionStatus == api.StatusEscalated {
		return PriorityHigh
	}
	if NeedsAttention(s, now) {
		return PriorityMedium
	}
	return PriorityLow
}

// FormatRelativeTime renders a timestamp relative to now: "Just now" under a
// minute, "{n}m ago" under an hour, "{n}h ago" under a day, then a short date
// with the year attached once the timestamp is from a prior year.
func FormatRelativeTime(ts string, now time.Time) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ""
	}
	elapsed := now.Sub(t)
	switch {
	case elapsed < time.Minute:
		return "Just now"
	case elapsed < time.Hour:
		return formatCount(int(elapsed.Minutes()), "m")
	case elapsed < 24*time.Hour:
		return formatCount(int(elapsed.Hours()), "h")
	case t.Year() == now.Year():
		return t.Format("Jan 2")
	default:
		return t.Format("Jan 2, 2006")
	}
}

func formatCount(n int, unit string) string {
	if n < 1 {
		n = 1
	}
	return strconv.Itoa(n) + unit + " ago"
}
