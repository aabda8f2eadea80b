// Package conversation owns the live message view for a single lead.
//
// # Overview
//
// A Store presents an ordered, append-only sequence of messages synchronized
// with the backend by polling. The backend owns the data; the store never
// invents or mutates messages, it only observes.
//
//	store := conversation.NewStore(client, conversation.Options{})
//	defer store.Close()
//
//	ch, subID := store.Subscribe()
//	defer store.Unsubscribe(subID)
//
//	if err := store.Load(ctx, leadID); err != nil { ... }
//	for range ch {
//	    render(store.Snapshot())
//	}
//
// # Polling discipline
//
// After Load completes (success or failure) the store runs a poll loop that
// fetches messages strictly newer than the last observed created_at. Polls
// are single-shot-chained: the next tick is scheduled only after the
// previous poll finishes, so requests never overlap. Poll failures are
// silent; messages are only discarded on an explicit Refresh or lead change.
//
// # Generation discipline
//
// Every await (HTTP completion, timer fire) may outlive the view it was
// started for. The store keeps a generation counter, bumped on Load,
// Refresh, lead change, and Close. Continuations capture the generation at
// dispatch and drop their result if it no longer matches. This replaces
// structured cancellation.
package conversation
