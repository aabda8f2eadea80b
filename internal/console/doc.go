// Package console is the terminal front-end: the triage list and per-lead
// conversations driven by slash commands. It binds to the same stores as the
// web UI, so control-mode routing and error texts behave identically in both.
package console
