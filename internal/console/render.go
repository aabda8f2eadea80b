// ABOUTME: Terminal rendering for the console: list rows, stats, messages
// ABOUTME: Colors follow the status display palette from the triage store

package console

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/leadwatch/leadwatch/internal/api"
	"github.com/leadwatch/leadwatch/internal/triage"
)

var statusColors = map[string]*color.Color{
	"green":  color.New(color.FgGreen),
	"blue":   color.New(color.FgBlue),
	"orange": color.New(color.FgHiYellow),
	"yellow": color.New(color.FgYellow),
	"red":    color.New(color.FgRed),
	"gray":   color.New(color.FgHiBlack),
}

var senderColors = map[string]*color.Color{
	api.SenderAgent:         color.New(color.FgCyan),
	api.SenderLead:          color.New(color.FgGreen),
	api.SenderBusinessOwner: color.New(color.FgMagenta),
	api.SenderSystem:        color.New(color.FgHiBlack),
}

func renderStats(w io.Writer, stats triage.Stats) {
	fmt.Fprintf(w, "%d conversations · %d active · %d need attention · %d high priority\n",
		stats.Total, stats.Active, stats.NeedsAttention, stats.HighPriority)
}

func renderRows(w io.Writer, rows []triage.Conversation, limit int) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No recent conversations.")
		return
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	for _, row := range rows {
		renderRow(w, row)
	}
}

func renderRow(w io.Writer, row triage.Conversation) {
	statusText := row.Status.Text
	if c, ok := statusColors[row.Status.Color]; ok {
		statusText = c.Sprint(statusText)
	}

	name := row.LeadName
	if name == "" {
		name = "Lead " + row.LeadID.String()
	}
	attention := "  "
	if row.NeedsAttention {
		attention = color.New(color.FgRed).Sprint("! ")
	}

	fmt.Fprintf(w, "%s%-6s %-10s %-24s %-16s %-8s %s\n",
		attention,
		row.LeadID.String(),
		statusText,
		truncate(name, 24),
		truncate(row.AgentName, 16),
		row.Priority,
		row.FormattedTime)
	if row.SessionGoal != "" {
		fmt.Fprintf(w, "         goal: %s\n", truncate(row.SessionGoal, 70))
	}
}

func renderMessage(w io.Writer, msg api.Message) {
	label := msg.SenderName
	if label == "" {
		label = senderLabel(msg.SenderType)
	}
	if c, ok := senderColors[msg.SenderType]; ok {
		label = c.Sprint(label)
	}

	ts := msg.CreatedAt
	if t, err := time.Parse(time.RFC3339, msg.CreatedAt); err == nil {
		ts = t.Local().Format("15:04")
	}

	suffix := ""
	if msg.DeliveryStatus == api.DeliveryFailed {
		suffix = color.New(color.FgRed).Sprint(" [delivery failed]")
	}
	fmt.Fprintf(w, "[%s] %s: %s%s\n", ts, label, strings.TrimSpace(msg.Content), suffix)
}

func renderLead(w io.Writer, lead *api.Lead) {
	fmt.Fprintf(w, "Lead %s", lead.ID.String())
	if lead.Name != "" {
		fmt.Fprintf(w, " — %s", lead.Name)
	}
	fmt.Fprintln(w)
	if lead.Company != "" {
		fmt.Fprintf(w, "  company: %s\n", lead.Company)
	}
	if lead.Email != "" {
		fmt.Fprintf(w, "  email:   %s\n", lead.Email)
	}
	if lead.Phone != "" {
		fmt.Fprintf(w, "  phone:   %s\n", lead.Phone)
	}
	if lead.ServiceRequested != "" {
		fmt.Fprintf(w, "  service: %s\n", lead.ServiceRequested)
	}
	if lead.Source != "" {
		fmt.Fprintf(w, "  source:  %s\n", lead.Source)
	}
	for _, note := range lead.Notes {
		fmt.Fprintf(w, "  note:    %s\n", truncate(note.Content, 70))
	}
}

func senderLabel(senderType string) string {
	switch senderType {
	case api.SenderAgent:
		return "agent"
	case api.SenderLead:
		return "lead"
	case api.SenderBusinessOwner:
		return "you"
	case api.SenderSystem:
		return "system"
	default:
		return senderType
	}
}

// truncate shortens s to max runes. Slicing on runes keeps multi-byte
// characters in names and goals intact.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 1 {
		return string(runes[:max])
	}
	return string(runes[:max-1]) + "…"
}
