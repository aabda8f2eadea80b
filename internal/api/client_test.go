// ABOUTME: Tests for the backend HTTP adapter
// ABOUTME: Covers URL resolution, endpoint shapes, and error normalization

package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Options{BaseURL: srv.URL, Logger: testLogger()})
}

func TestResolveBaseURL_ExplicitWins(t *testing.T) {
	t.Setenv(baseURLEnv, "http://from-env:9000")
	assert.Equal(t, "http://explicit:8000", ResolveBaseURL("http://explicit:8000"))
}

func TestResolveBaseURL_EnvFallback(t *testing.T) {
	t.Setenv(baseURLEnv, "http://from-env:9000")
	assert.Equal(t, "http://from-env:9000", ResolveBaseURL(""))
}

func TestResolveBaseURL_Default(t *testing.T) {
	t.Setenv(baseURLEnv, "")
	assert.Equal(t, DefaultBaseURL, ResolveBaseURL(""))
}

func TestRecentConversations_PassesLimit(t *testing.T) {
	var gotPath, gotLimit string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotLimit = r.URL.Query().Get("limit")
		json.NewEncoder(w).Encode(RecentConversationsResponse{
			Conversations: []Session{{SessionID: "99", SessionStatus: StatusActive}},
		})
	}))

	sessions, err := client.RecentConversations(context.Background(), 20)
	require.NoError(t, err)
	assert.Equal(t, "/api/messages/conversations/recent", gotPath)
	assert.Equal(t, "20", gotLimit)
	require.Len(t, sessions, 1)
	assert.Equal(t, ID("99"), sessions[0].SessionID)
}

func TestLeadMessages_SinceTimestampQuery(t *testing.T) {
	var gotSince string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSince = r.URL.Query().Get("since_timestamp")
		json.NewEncoder(w).Encode(LeadMessagesResponse{
			Success: true,
			LeadID:  "42",
			Messages: []Message{
				{ID: "1", CreatedAt: "2024-01-01T00:00:00Z", Content: "hi", SenderType: SenderLead},
			},
		})
	}))

	resp, err := client.LeadMessages(context.Background(), "42", "2024-01-01T00:00:00Z", 0)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01T00:00:00Z", gotSince)
	assert.Equal(t, ID("42"), resp.LeadID)
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, SenderLead, resp.Messages[0].SenderType)
}

func TestLeadMessages_OmitsEmptySince(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.False(t, r.URL.Query().Has("since_timestamp"))
		json.NewEncoder(w).Encode(LeadMessagesResponse{Success: true})
	}))

	_, err := client.LeadMessages(context.Background(), "42", "", 0)
	require.NoError(t, err)
}

func TestRouteOwnerMessage_Payload(t *testing.T) {
	var got RouteMessageRequest
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/messages/route", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(StatusResponse{Success: true})
	}))

	_, err := client.RouteOwnerMessage(context.Background(), &RouteMessageRequest{
		LeadID:      42,
		Message:     "thanks",
		MessageType: "text",
		Metadata:    map[string]any{"sender": SenderBusinessOwner, "platform": "web_ui"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.LeadID)
	assert.Equal(t, "thanks", got.Message)
	assert.Equal(t, "text", got.MessageType)
	assert.Equal(t, SenderBusinessOwner, got.Metadata["sender"])
}

func TestSimulateLeadMessage_Endpoint(t *testing.T) {
	var gotPath string
	var got SimulateMessageRequest
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))

	err := client.SimulateLeadMessage(context.Background(), &SimulateMessageRequest{
		YelpLeadID:     "ext-1",
		ConversationID: "conv-1",
		MessageContent: "hello",
		Sender:         "customer",
		Timestamp:      "2024-01-01T00:00:00Z",
	})
	require.NoError(t, err)
	assert.Equal(t, "/api/webhooks/zapier/yelp-message-received", gotPath)
	assert.Equal(t, "customer", got.Sender)
	assert.Equal(t, "hello", got.MessageContent)
}

func TestTakeoverAndRelease_Paths(t *testing.T) {
	var paths []string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		json.NewEncoder(w).Encode(StatusResponse{Success: true})
	}))

	_, err := client.Takeover(context.Background(), "99", &TakeoverRequest{
		Reason:          "Manual takeover",
		BusinessOwnerID: "default",
	})
	require.NoError(t, err)

	_, err = client.Release(context.Background(), "99")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"/api/messages/session/99/takeover",
		"/api/messages/session/99/release",
	}, paths)
}

func TestDo_NonOKBecomesHTTPError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"detail": "boom"})
	}))

	_, err := client.RecentConversations(context.Background(), 5)
	require.Error(t, err)

	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, KindHTTP, apiErr.Kind)
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
	assert.Equal(t, "boom", apiErr.Message)
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(err))
}

func TestDo_TimeoutBecomesTimeoutKind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(Options{
		BaseURL: srv.URL,
		Logger:  testLogger(),
		Timeout: 20 * time.Millisecond,
	})

	_, err := client.RecentConversations(context.Background(), 1)
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
}

func TestDo_BadJSONBecomesDecodeKind(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))

	_, err := client.RecentConversations(context.Background(), 1)
	require.Error(t, err)

	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, KindDecode, apiErr.Kind)
}

func TestDo_ConnectionRefusedBecomesTransportKind(t *testing.T) {
	client := NewClient(Options{
		BaseURL: "http://127.0.0.1:1",
		Logger:  testLogger(),
		Timeout: time.Second,
	})

	_, err := client.RecentConversations(context.Background(), 1)
	require.Error(t, err)

	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, KindTransport, apiErr.Kind)
}

func TestID_AcceptsStringAndNumber(t *testing.T) {
	var m Message
	require.NoError(t, json.Unmarshal([]byte(`{"id": 7, "created_at": "2024-01-01T00:00:00Z"}`), &m))
	assert.Equal(t, ID("7"), m.ID)
	assert.Equal(t, int64(7), m.ID.Int())

	require.NoError(t, json.Unmarshal([]byte(`{"id": "abc"}`), &m))
	assert.Equal(t, ID("abc"), m.ID)
	assert.Equal(t, int64(0), m.ID.Int())
}

func TestSession_LastActivityFallback(t *testing.T) {
	s := Session{CreatedAt: "2024-01-01T00:00:00Z"}
	assert.Equal(t, "2024-01-01T00:00:00Z", s.LastActivity())

	s.LastMessageAt = "2024-01-02T00:00:00Z"
	assert.Equal(t, "2024-01-02T00:00:00Z", s.LastActivity())
}
