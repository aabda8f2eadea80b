// ABOUTME: Template data shaping and message rendering for the web UI
// ABOUTME: Message content is markdown, converted to HTML with goldmark

package webui

import (
	"bytes"
	"html/template"
	"time"

	"github.com/yuin/goldmark"

	"github.com/leadwatch/leadwatch/internal/api"
	"github.com/leadwatch/leadwatch/internal/triage"
)

// triagePageData drives the dashboard template.
type triagePageData struct {
	Title          string
	RefreshSeconds int
	Err            string
	Stats          triage.Stats
	Conversations  []triage.Conversation
	Sort           string
	StatusFilter   string
	Query          string
	SortKeys       []string
	StatusKeys     []string
}

// conversationPageData drives the conversation template.
type conversationPageData struct {
	Title           string
	RefreshSeconds  int
	LeadID          string
	Err             string
	Loading         bool
	Lead            *api.Lead
	SessionInfo     *api.SessionInfo
	OwnerManaged    bool
	Pending         bool
	Messages        []messageView
	Draft           string
	SendPlaceholder string
}

// messageView is one rendered message bubble.
type messageView struct {
	SenderType     string
	SenderLabel    string
	Timestamp      string
	FailedDelivery bool
	HTML           template.HTML
}

var senderLabels = map[string]string{
	api.SenderAgent:         "Agent",
	api.SenderLead:          "Lead",
	api.SenderSystem:        "System",
	api.SenderBusinessOwner: "You",
}

// renderMessages converts messages into view bubbles, newest last.
func renderMessages(msgs []api.Message) []messageView {
	out := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		label := senderLabels[m.SenderType]
		if m.SenderName != "" {
			label = m.SenderName
		}
		if label == "" {
			label = m.SenderType
		}
		out = append(out, messageView{
			SenderType:     m.SenderType,
			SenderLabel:    label,
			Timestamp:      formatMessageTime(m.CreatedAt),
			FailedDelivery: m.DeliveryStatus == api.DeliveryFailed,
			HTML:           markdownToHTML(m.Content),
		})
	}
	return out
}

// markdownToHTML converts message markdown to HTML. Conversion failures fall
// back to the escaped raw text.
func markdownToHTML(content string) template.HTML {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(content), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(content))
	}
	return template.HTML(buf.String())
}

func formatMessageTime(createdAt string) string {
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return createdAt
	}
	return t.Local().Format("Jan 2 15:04")
}
