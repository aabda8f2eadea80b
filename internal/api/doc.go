// Package api is the HTTP adapter for the lead-management backend.
//
// # Overview
//
// Everything above this package talks to the backend exclusively through
// Client. The adapter owns base URL selection, the request timeout, JSON
// shaping, and error normalization; it holds no conversation state.
//
// # Base URL selection
//
// Resolved once at construction, in order:
//
//  1. Explicit value (config backend.base_url)
//  2. LEADWATCH_BACKEND_URL environment variable
//  3. http://localhost:8000 (local development)
//
// The backend has historically been reachable under more than one production
// hostname. The adapter deliberately takes a single configurable value and
// logs a warning when it recognizes one of the legacy hostnames, instead of
// hard-coding per-endpoint hosts.
//
// # Error normalization
//
// All failures surface as *api.Error with a Kind (KindHTTP, KindTimeout,
// KindDecode). Callers match with errors.As and switch on Kind, never on
// message text:
//
//	var apiErr *api.Error
//	if errors.As(err, &apiErr) && apiErr.Kind == api.KindTimeout {
//	    // retry on next poll tick
//	}
//
// # Endpoint surface
//
//   - RecentConversations: GET /api/messages/conversations/recent
//   - LeadMessages:        GET /api/messages/lead/{leadId}/messages
//   - ActiveSession:       GET /api/messages/lead/{leadId}/active-session
//   - RouteOwnerMessage:   POST /api/messages/route
//   - SimulateLeadMessage: POST /api/webhooks/zapier/yelp-message-received
//   - Takeover:            POST /api/messages/session/{id}/takeover
//   - Release:             POST /api/messages/session/{id}/release
//   - Lead:                GET /api/leads/{id}
//
// The adapter is pre-auth: no Authorization header is sent. Token insertion
// is an extension point (Options.Header), not a current feature.
package api
