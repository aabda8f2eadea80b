// ABOUTME: Wire types shared between the backend and the conversation core
// ABOUTME: Messages, sessions, leads, and the request/response envelopes

package api

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Sender types as the backend reports them.
const (
	SenderAgent         = "agent"
	SenderLead          = "lead"
	SenderSystem        = "system"
	SenderBusinessOwner = "business_owner"
)

// Session statuses as the backend reports them.
const (
	StatusActive    = "active"
	StatusPaused    = "paused"
	StatusEscalated = "escalated"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusUnknown   = "unknown"
)

// Delivery statuses a message may carry.
const (
	DeliveryPending   = "pending"
	DeliverySent      = "sent"
	DeliveryDelivered = "delivered"
	DeliveryFailed    = "failed"
)

// ID is a server-assigned identifier. The backend is inconsistent about
// whether ids arrive as JSON numbers or strings, so ID accepts both and
// normalizes to a string.
type ID string

// UnmarshalJSON accepts a JSON string, a JSON number, or null.
func (id *ID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// String returns the id as a plain string.
func (id ID) String() string { return string(id) }

// Int returns the id as an integer, or 0 if it is not numeric.
func (id ID) Int() int64 {
	n, err := strconv.ParseInt(string(id), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// Message is a single utterance in a conversation. Messages are immutable
// once observed; created_at is the ordering key.
type Message struct {
	ID             ID             `json:"id"`
	CreatedAt      string         `json:"created_at"`
	Content        string         `json:"content"`
	SenderType     string         `json:"sender_type"`
	SenderName     string         `json:"sender_name,omitempty"`
	DeliveryStatus string         `json:"delivery_status,omitempty"`
	ErrorMessage   string         `json:"error_message,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// CreatedTime parses the created_at timestamp. Returns the zero time if the
// backend sent something unparseable.
func (m *Message) CreatedTime() time.Time {
	t, err := time.Parse(time.RFC3339, m.CreatedAt)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Session is the backend's record of an agent-managed conversation with one
// lead. The client observes only; lifecycle is server-controlled.
type Session struct {
	SessionID       ID     `json:"session_id"`
	LeadID          ID     `json:"lead_id"`
	LeadExternalID  string `json:"lead_external_id,omitempty"`
	LeadName        string `json:"lead_name,omitempty"`
	AgentID         ID     `json:"agent_id"`
	AgentName       string `json:"agent_name,omitempty"`
	SessionStatus   string `json:"session_status"`
	SessionGoal     string `json:"session_goal,omitempty"`
	MessageCount    int    `json:"message_count"`
	LastMessageAt   string `json:"last_message_at,omitempty"`
	CreatedAt       string `json:"created_at"`
	LastMessageFrom string `json:"last_message_from,omitempty"`
	TriggerType     string `json:"trigger_type,omitempty"`
}

// LastActivity returns last_message_at, falling back to created_at.
func (s *Session) LastActivity() string {
	if s.LastMessageAt != "" {
		return s.LastMessageAt
	}
	return s.CreatedAt
}

// Lead is the external party on the other side of a conversation.
type Lead struct {
	ID               ID     `json:"id"`
	ExternalID       string `json:"external_id,omitempty"`
	Name             string `json:"name,omitempty"`
	Email            string `json:"email,omitempty"`
	Phone            string `json:"phone,omitempty"`
	Company          string `json:"company,omitempty"`
	ServiceRequested string `json:"service_requested,omitempty"`
	Source           string `json:"source,omitempty"`
	Status           string `json:"status,omitempty"`
	CreatedAt        string `json:"created_at,omitempty"`
	Notes            []Note `json:"notes,omitempty"`
}

// Note is a free-text annotation attached to a lead.
type Note struct {
	Content   string `json:"content"`
	CreatedAt string `json:"created_at,omitempty"`
}

// AgentRef identifies an agent by id and display name.
type AgentRef struct {
	ID   ID     `json:"id"`
	Name string `json:"name,omitempty"`
}

// LeadRef identifies a lead inside an active-session response.
type LeadRef struct {
	ID         ID     `json:"id"`
	ExternalID string `json:"external_id,omitempty"`
	Name       string `json:"name,omitempty"`
}

// SessionInfo is the (session, agent, lead) triple published when a lead has
// an active session.
type SessionInfo struct {
	SessionID ID       `json:"session_id"`
	Agent     AgentRef `json:"agent"`
	Lead      LeadRef  `json:"lead"`
}

// RecentConversationsResponse wraps GET /api/messages/conversations/recent.
type RecentConversationsResponse struct {
	Conversations []Session `json:"conversations"`
}

// LeadMessagesResponse wraps GET /api/messages/lead/{leadId}/messages.
type LeadMessagesResponse struct {
	Success        bool      `json:"success"`
	LeadID         ID        `json:"lead_id"`
	LeadExternalID string    `json:"lead_external_id,omitempty"`
	Messages       []Message `json:"messages"`
}

// ActiveSessionResponse wraps GET /api/messages/lead/{leadId}/active-session.
type ActiveSessionResponse struct {
	HasActiveSession bool         `json:"has_active_session"`
	Session          *SessionInfo `json:"session,omitempty"`
}

// RouteMessageRequest is the body for POST /api/messages/route.
type RouteMessageRequest struct {
	LeadID      int64          `json:"lead_id"`
	Message     string         `json:"message"`
	MessageType string         `json:"message_type"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// SimulateMessageRequest is the body for the Zapier-compatible ingress that
// replays a message as if the lead had sent it.
type SimulateMessageRequest struct {
	YelpLeadID     string `json:"yelp_lead_id"`
	ConversationID string `json:"conversation_id"`
	MessageContent string `json:"message_content"`
	Sender         string `json:"sender"`
	Timestamp      string `json:"timestamp"`
}

// TakeoverRequest is the body for POST /api/messages/session/{id}/takeover.
type TakeoverRequest struct {
	Reason          string `json:"reason"`
	BusinessOwnerID string `json:"business_owner_id"`
}

// StatusResponse is the generic {success, message} envelope the write
// endpoints return.
type StatusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
