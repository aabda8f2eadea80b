// ABOUTME: Takeover controller governing who owns a session's response channel
// ABOUTME: Four-state machine; pending states block further control requests

package takeover

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/leadwatch/leadwatch/internal/api"
	"github.com/leadwatch/leadwatch/internal/notify"
)

// Mode is the control mode of a session as the view understands it. The
// server is the authority; this is the client's mirror of it.
type Mode int

const (
	// AgentManaged: the automated agent is responding to the lead.
	AgentManaged Mode = iota
	// TakeoverPending: a takeover request is in flight.
	TakeoverPending
	// OwnerManaged: the operator owns the response channel.
	OwnerManaged
	// ReleasePending: a release request is in flight.
	ReleasePending
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case AgentManaged:
		return "agent_managed"
	case TakeoverPending:
		return "takeover_pending"
	case OwnerManaged:
		return "owner_managed"
	case ReleasePending:
		return "release_pending"
	default:
		return "unknown"
	}
}

// Pending reports whether a control request is in flight. The view disables
// both affordances while pending.
func (m Mode) Pending() bool {
	return m == TakeoverPending || m == ReleasePending
}

// User-visible error texts. Views render these verbatim.
const (
	ErrTextTakeover = "Failed to take over conversation"
	ErrTextRelease  = "Failed to release conversation back to agent"
)

// Defaults for the takeover request body.
const (
	DefaultReason          = "Manual takeover"
	DefaultBusinessOwnerID = "default"
)

// Backend is what the controller needs from the HTTP adapter.
type Backend interface {
	Takeover(ctx context.Context, sessionID string, req *api.TakeoverRequest) (*api.StatusResponse, error)
	Release(ctx context.Context, sessionID string) (*api.StatusResponse, error)
}

// Snapshot is the controller state for rendering.
type Snapshot struct {
	SessionID string
	Mode      Mode
	// Err is the user-visible error text, empty when healthy. Dismissible.
	Err      string
	Revision uint64
}

// Controller drives the control-mode state machine for one session. All
// transitions are guarded by the current mode, so a double-click while a
// request is pending never issues a second request.
type Controller struct {
	backend Backend
	logger  *slog.Logger
	hub     *notify.Hub

	mu        sync.Mutex
	sessionID string
	mode      Mode
	errText   string
	revision  uint64
}

// NewController creates a controller in AgentManaged with no session bound.
func NewController(backend Backend, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "takeover")
	return &Controller{
		backend: backend,
		logger:  logger,
		hub:     notify.NewHub(logger),
	}
}

// Subscribe registers for change ticks. See notify.Hub.
func (c *Controller) Subscribe() (<-chan struct{}, string) { return c.hub.Subscribe() }

// Unsubscribe removes a change-tick subscription.
func (c *Controller) Unsubscribe(subID string) { c.hub.Unsubscribe(subID) }

// Close shuts down the controller's notification hub.
func (c *Controller) Close() { c.hub.Close() }

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		SessionID: c.sessionID,
		Mode:      c.mode,
		Err:       c.errText,
		Revision:  c.revision,
	}
}

// Mode returns the current control mode.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// SetSession binds the controller to a session. Changing sessions resets the
// machine to AgentManaged; the server's view of a new session starts there.
func (c *Controller) SetSession(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessionID == sessionID {
		return
	}
	c.sessionID = sessionID
	c.mode = AgentManaged
	c.errText = ""
	c.touchLocked()
}

// TakeOver requests human control of the bound session. Only valid from
// AgentManaged; calls in any other mode are ignored without a request being
// issued. On server failure the machine rolls back to AgentManaged and
// exposes the takeover error text.
func (c *Controller) TakeOver(ctx context.Context, reason string) error {
	c.mu.Lock()
	if c.mode != AgentManaged {
		c.mu.Unlock()
		return nil
	}
	sessionID := c.sessionID
	if sessionID == "" {
		c.errText = ErrTextTakeover
		c.touchLocked()
		c.mu.Unlock()
		c.logger.Warn("takeover requested with no session bound")
		return fmt.Errorf("no session id available")
	}
	c.mode = TakeoverPending
	c.errText = ""
	c.touchLocked()
	c.mu.Unlock()

	if reason == "" {
		reason = DefaultReason
	}
	_, err := c.backend.Takeover(ctx, sessionID, &api.TakeoverRequest{
		Reason:          reason,
		BusinessOwnerID: DefaultBusinessOwnerID,
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessionID != sessionID || c.mode != TakeoverPending {
		// Session changed while the request was in flight.
		return nil
	}
	if err != nil {
		c.mode = AgentManaged
		c.errText = ErrTextTakeover
		c.touchLocked()
		c.logger.Warn("takeover failed", "session_id", sessionID, "error", err)
		return err
	}
	c.mode = OwnerManaged
	c.touchLocked()
	c.logger.Info("session taken over", "session_id", sessionID)
	return nil
}

// Release returns the bound session to the automated agent. Only valid from
// OwnerManaged. On server failure the machine stays in OwnerManaged and
// exposes the release error text.
func (c *Controller) Release(ctx context.Context) error {
	c.mu.Lock()
	if c.mode != OwnerManaged {
		c.mu.Unlock()
		return nil
	}
	sessionID := c.sessionID
	if sessionID == "" {
		c.errText = ErrTextRelease
		c.touchLocked()
		c.mu.Unlock()
		c.logger.Warn("release requested with no session bound")
		return fmt.Errorf("no session id available")
	}
	c.mode = ReleasePending
	c.errText = ""
	c.touchLocked()
	c.mu.Unlock()

	_, err := c.backend.Release(ctx, sessionID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessionID != sessionID || c.mode != ReleasePending {
		return nil
	}
	if err != nil {
		c.mode = OwnerManaged
		c.errText = ErrTextRelease
		c.touchLocked()
		c.logger.Warn("release failed", "session_id", sessionID, "error", err)
		return err
	}
	c.mode = AgentManaged
	c.touchLocked()
	c.logger.Info("session released to agent", "session_id", sessionID)
	return nil
}

// ClearError dismisses the current error banner.
func (c *Controller) ClearError() {
	c.mu.Lock()
	if c.errText != "" {
		c.errText = ""
		c.touchLocked()
	}
	c.mu.Unlock()
}

func (c *Controller) touchLocked() {
	c.revision++
	c.hub.Notify()
}
