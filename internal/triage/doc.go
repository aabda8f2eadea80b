// Package triage owns the recent-conversations list behind the dashboard.
//
// # Overview
//
// The Store polls the backend for recent sessions, classifies each row
// client-side, and answers the list queries the views need: filter by
// status, needs-attention, priority, stable sorts, and free-text search.
//
// # Derived fields
//
// Status display, needsAttention, priority, and the relative time string are
// pure functions of a session row and the wall clock. They are recomputed on
// every snapshot rather than stored: two of them age as the clock moves even
// when the row does not change.
//
// Classification rules:
//
//   - needsAttention: escalated, or active with the lead's last message
//     unanswered for over two hours
//   - priority: escalated is high; otherwise needing attention is medium;
//     otherwise low. High always implies needsAttention.
//
// # Polling
//
// Same single-shot-chained discipline as the conversation store: one refresh
// at a time, the next scheduled only after the previous completes. Failures
// keep the previous list and expose an error text.
package triage
