// Package webui serves the browser front-end: a triage dashboard over the
// recent-conversations list and a per-lead conversation page with takeover
// controls.
//
// # Page model
//
// Pages are server-rendered from embedded html/template files and refresh via
// a meta-refresh tag matched to the store poll intervals. Handlers never talk
// to the backend directly for reads; they render snapshots of the stores,
// which keep themselves fresh with their own poll loops. Writes (send,
// takeover, release, refresh) go through the store and controller operations
// and redirect back, so a reload never replays a POST.
//
// # Conversation binding
//
// One lead conversation is open at a time. Navigating to a different lead
// tears down the previous conversation store and takeover controller and
// builds fresh ones, so stale poll continuations from the old lead can never
// touch the new page. The send box is mode-routed: owner-managed sessions
// deliver the text to the lead as the business, any other mode injects it as
// a simulated lead message for exercising the agent.
package webui
