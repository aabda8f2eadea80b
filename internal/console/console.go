// ABOUTME: Interactive terminal console over the triage and conversation stores
// ABOUTME: Readline-style loop with slash commands and live message echo

package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/leadwatch/leadwatch/internal/api"
	"github.com/leadwatch/leadwatch/internal/config"
	"github.com/leadwatch/leadwatch/internal/conversation"
	"github.com/leadwatch/leadwatch/internal/takeover"
	"github.com/leadwatch/leadwatch/internal/triage"
)

// requestTimeout bounds user-initiated backend work.
const requestTimeout = 15 * time.Second

var sortKeys = []string{
	triage.SortLatest, triage.SortPriority, triage.SortStatus,
	triage.SortAgent, triage.SortLead,
}

// Console binds the stores to an interactive terminal session. One lead
// conversation is open at a time; while one is open, typed text is sent as a
// message and new messages echo as the poll loop observes them.
type Console struct {
	cfg       *config.Config
	client    *api.Client
	logger    *slog.Logger
	prefs     Prefs
	prefsPath string

	in  io.Reader
	out io.Writer

	list    *triage.Store
	sortKey string

	mu      sync.Mutex
	leadID  string
	lead    *api.Lead
	conv    *conversation.Store
	ctrl    *takeover.Controller
	printed int
	lastErr string
}

// New creates a Console reading stdin and writing stdout.
func New(cfg *config.Config, client *api.Client, prefs Prefs, prefsPath string, logger *slog.Logger) *Console {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "console")

	color.NoColor = color.NoColor || !prefs.Color

	sortKey := prefs.DefaultSort
	if !validSortKey(sortKey) {
		sortKey = triage.SortLatest
	}

	return &Console{
		cfg:       cfg,
		client:    client,
		logger:    logger,
		prefs:     prefs,
		prefsPath: prefsPath,
		in:        os.Stdin,
		out:       os.Stdout,
		list: triage.NewStore(client, triage.Options{
			Limit:              cfg.Triage.Limit,
			PollInterval:       cfg.Triage.PollInterval,
			DisableAutoRefresh: !cfg.Triage.AutoRefresh,
			Logger:             logger,
		}),
		sortKey: sortKey,
	}
}

// Run drives the interactive loop until ctx is cancelled or input ends.
func (c *Console) Run(ctx context.Context) error {
	defer c.teardown()

	fmt.Fprintf(c.out, "Connected to %s\n", c.client.BaseURL())
	fmt.Fprintln(c.out, "Type /help for commands. Ctrl+C to quit.")
	fmt.Fprintln(c.out)

	loadCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	err := c.list.Load(loadCtx)
	cancel()
	if err != nil {
		c.printError(c.list.Snapshot().Err)
	} else {
		c.showList("", "")
	}
	fmt.Fprintln(c.out)

	scanner := bufio.NewScanner(c.in)
	for {
		fmt.Fprint(c.out, c.prompt())

		inputCh := make(chan string, 1)
		errCh := make(chan error, 1)
		go func() {
			if scanner.Scan() {
				inputCh <- scanner.Text()
			} else if err := scanner.Err(); err != nil {
				errCh <- err
			} else {
				errCh <- io.EOF
			}
		}()

		var input string
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		case input = <-inputCh:
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if input == "/quit" || input == "/exit" || input == "/q" {
			return nil
		}

		c.dispatch(ctx, input)
		fmt.Fprintln(c.out)
	}
}

func (c *Console) prompt() string {
	c.mu.Lock()
	leadID := c.leadID
	var mode takeover.Mode
	if c.ctrl != nil {
		mode = c.ctrl.Mode()
	}
	c.mu.Unlock()

	if leadID == "" {
		return "> "
	}
	if mode == takeover.OwnerManaged {
		return fmt.Sprintf("[lead %s · yours]> ", leadID)
	}
	return fmt.Sprintf("[lead %s]> ", leadID)
}

func (c *Console) dispatch(ctx context.Context, input string) {
	cmd, args := splitCommand(input)

	switch cmd {
	case "/help":
		c.printHelp()
	case "/list":
		c.refreshList(ctx)
		c.showList("", "")
	case "/sort":
		c.cmdSort(args)
	case "/status":
		c.showList(args, "")
	case "/search":
		c.showList("", args)
	case "/attention":
		c.cmdAttention()
	case "/open":
		c.cmdOpen(ctx, args)
	case "/close":
		c.closeConversation()
		c.showList("", "")
	case "/lead":
		c.cmdLead(ctx)
	case "/takeover":
		c.cmdTakeover(ctx)
	case "/release":
		c.cmdRelease(ctx)
	case "/refresh":
		c.cmdRefresh(ctx)
	default:
		if strings.HasPrefix(cmd, "/") {
			fmt.Fprintf(c.out, "Unknown command %s. Type /help.\n", cmd)
			return
		}
		c.cmdSend(ctx, input)
	}
}

// splitCommand separates a slash command from its argument string. Plain text
// comes back with an empty command.
func splitCommand(input string) (cmd, args string) {
	if !strings.HasPrefix(input, "/") {
		return "", input
	}
	parts := strings.SplitN(input, " ", 2)
	cmd = parts[0]
	if len(parts) == 2 {
		args = strings.TrimSpace(parts[1])
	}
	return cmd, args
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, "Commands:")
	fmt.Fprintln(c.out, "  /list             Refresh and show recent conversations")
	fmt.Fprintln(c.out, "  /sort <key>       Sort the list: latest, priority, status, agent, lead")
	fmt.Fprintln(c.out, "  /status <s>       Show only one status: active, paused, escalated, ...")
	fmt.Fprintln(c.out, "  /search <text>    Filter by lead, agent, or goal")
	fmt.Fprintln(c.out, "  /attention        Show conversations needing attention")
	fmt.Fprintln(c.out, "  /open <lead_id>   Open a lead's conversation")
	fmt.Fprintln(c.out, "  /lead             Show the open lead's details")
	fmt.Fprintln(c.out, "  /takeover         Take control of the open conversation")
	fmt.Fprintln(c.out, "  /release          Hand the conversation back to the agent")
	fmt.Fprintln(c.out, "  /refresh          Reload the open view")
	fmt.Fprintln(c.out, "  /close            Close the conversation, back to the list")
	fmt.Fprintln(c.out, "  /quit             Exit")
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, "With a conversation open, plain text sends a message: as the business")
	fmt.Fprintln(c.out, "when you have taken over, as a simulated lead message otherwise.")
}

func (c *Console) refreshList(ctx context.Context) {
	refreshCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	if err := c.list.Refresh(refreshCtx); err != nil {
		c.printError(c.list.Snapshot().Err)
	}
}

func (c *Console) showList(statusFilter, query string) {
	snap := c.list.Snapshot()
	if snap.Err != "" {
		c.printError(snap.Err)
	}

	rows := triage.FilterRowsByStatus(snap.Conversations, statusFilter)
	rows = triage.SearchRows(rows, query)
	rows = triage.SortRows(rows, c.sortKey)

	renderStats(c.out, snap.Stats)
	renderRows(c.out, rows, c.prefs.ListLimit)
}

func (c *Console) cmdSort(key string) {
	if !validSortKey(key) {
		fmt.Fprintf(c.out, "Unknown sort key %q. Keys: %s\n", key, strings.Join(sortKeys, ", "))
		return
	}
	c.sortKey = key
	c.prefs.DefaultSort = key
	if c.prefsPath != "" {
		if err := SavePrefs(c.prefsPath, c.prefs); err != nil {
			c.logger.Warn("saving preferences failed", "error", err)
		}
	}
	c.showList("", "")
}

func (c *Console) cmdAttention() {
	rows := c.list.GetConversationsNeedingAttention()
	if len(rows) == 0 {
		fmt.Fprintln(c.out, "Nothing needs attention right now.")
		return
	}
	renderRows(c.out, triage.SortRows(rows, c.sortKey), 0)
}

func (c *Console) cmdOpen(ctx context.Context, leadID string) {
	if leadID == "" {
		fmt.Fprintln(c.out, "Usage: /open <lead_id>")
		return
	}
	c.closeConversation()

	conv := conversation.NewStore(c.client, conversation.Options{
		PollInterval:      c.cfg.Conversation.PollInterval,
		DisableAutoScroll: !c.cfg.Conversation.AutoScroll,
		Logger:            c.logger,
	})
	ctrl := takeover.NewController(c.client, c.logger)

	c.mu.Lock()
	c.leadID = leadID
	c.lead = nil
	c.conv = conv
	c.ctrl = ctrl
	c.printed = 0
	c.lastErr = ""
	c.mu.Unlock()

	loadCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	if err := conv.Load(loadCtx, leadID); err != nil {
		c.printError(conv.Snapshot().Err)
		return
	}

	snap := conv.Snapshot()
	if snap.SessionInfo != nil {
		ctrl.SetSession(snap.SessionInfo.SessionID.String())
		fmt.Fprintf(c.out, "Session %s · agent %s\n", snap.SessionInfo.SessionID, snap.SessionInfo.Agent.Name)
	} else {
		fmt.Fprintln(c.out, "No active session for this lead.")
	}

	for _, msg := range snap.Messages {
		renderMessage(c.out, msg)
	}
	c.mu.Lock()
	c.printed = len(snap.Messages)
	c.mu.Unlock()

	// Lead details are enrichment; failures stay silent.
	if lead, err := c.client.Lead(loadCtx, leadID); err == nil {
		c.mu.Lock()
		c.lead = lead
		c.mu.Unlock()
	}

	go c.echoLoop(conv)
}

// echoLoop prints messages the poll loop discovers while the conversation is
// open. It exits when the store closes its hub.
func (c *Console) echoLoop(conv *conversation.Store) {
	ch, subID := conv.Subscribe()
	defer conv.Unsubscribe(subID)

	for range ch {
		c.mu.Lock()
		if c.conv != conv {
			c.mu.Unlock()
			return
		}
		snap := conv.Snapshot()
		fresh := snap.Messages[min(c.printed, len(snap.Messages)):]
		c.printed = len(snap.Messages)
		errText := ""
		if snap.Err != c.lastErr {
			c.lastErr = snap.Err
			errText = snap.Err
		}
		c.mu.Unlock()

		for _, msg := range fresh {
			renderMessage(c.out, msg)
		}
		if errText != "" {
			c.printError(errText)
		}
	}
}

func (c *Console) cmdLead(ctx context.Context) {
	c.mu.Lock()
	leadID := c.leadID
	lead := c.lead
	c.mu.Unlock()

	if leadID == "" {
		fmt.Fprintln(c.out, "No conversation open. Use /open <lead_id>.")
		return
	}
	if lead == nil {
		fetchCtx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()
		fetched, err := c.client.Lead(fetchCtx, leadID)
		if err != nil {
			c.printError("Failed to load lead details")
			return
		}
		c.mu.Lock()
		c.lead = fetched
		c.mu.Unlock()
		lead = fetched
	}
	renderLead(c.out, lead)
}

func (c *Console) cmdTakeover(ctx context.Context) {
	ctrl := c.openController()
	if ctrl == nil {
		return
	}
	opCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	if err := ctrl.TakeOver(opCtx, ""); err != nil {
		c.printError(ctrl.Snapshot().Err)
		return
	}
	if ctrl.Mode() == takeover.OwnerManaged {
		fmt.Fprintln(c.out, "You now control this conversation. The agent is paused; plain text replies to the lead.")
	}
}

func (c *Console) cmdRelease(ctx context.Context) {
	ctrl := c.openController()
	if ctrl == nil {
		return
	}
	opCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	if err := ctrl.Release(opCtx); err != nil {
		c.printError(ctrl.Snapshot().Err)
		return
	}
	if ctrl.Mode() == takeover.AgentManaged {
		fmt.Fprintln(c.out, "Conversation released back to the agent.")
	}
}

func (c *Console) cmdRefresh(ctx context.Context) {
	c.mu.Lock()
	conv := c.conv
	ctrl := c.ctrl
	c.mu.Unlock()

	if conv == nil {
		c.refreshList(ctx)
		c.showList("", "")
		return
	}

	refreshCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	if err := conv.Refresh(refreshCtx); err != nil {
		c.printError(conv.Snapshot().Err)
		return
	}
	snap := conv.Snapshot()
	// A session that started since the open binds here.
	if snap.SessionInfo != nil {
		ctrl.SetSession(snap.SessionInfo.SessionID.String())
	}
	for _, msg := range snap.Messages {
		renderMessage(c.out, msg)
	}
	c.mu.Lock()
	c.printed = len(snap.Messages)
	c.mu.Unlock()
}

// cmdSend routes typed text by control mode: owner-managed sends to the lead
// as the business, anything else injects a simulated lead message.
func (c *Console) cmdSend(ctx context.Context, text string) {
	c.mu.Lock()
	conv := c.conv
	ctrl := c.ctrl
	c.mu.Unlock()

	if conv == nil {
		fmt.Fprintln(c.out, "No conversation open. Use /open <lead_id>, or /help.")
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	if ctrl.Mode() == takeover.OwnerManaged {
		if err := conv.SendOwnerMessage(sendCtx, text); err != nil {
			c.printError(conv.Snapshot().Err)
		}
		return
	}
	if err := conv.SimulateLeadMessage(sendCtx, text); err != nil {
		c.printError(conv.Snapshot().Err)
		return
	}
	fmt.Fprintln(c.out, "(sent as the lead; take over with /takeover to reply as the business)")
}

func (c *Console) openController() *takeover.Controller {
	c.mu.Lock()
	ctrl := c.ctrl
	c.mu.Unlock()
	if ctrl == nil {
		fmt.Fprintln(c.out, "No conversation open. Use /open <lead_id>.")
		return nil
	}
	return ctrl
}

func (c *Console) closeConversation() {
	c.mu.Lock()
	conv, ctrl := c.conv, c.ctrl
	c.conv, c.ctrl = nil, nil
	c.leadID, c.lead = "", nil
	c.printed = 0
	c.lastErr = ""
	c.mu.Unlock()

	if conv != nil {
		conv.Close()
	}
	if ctrl != nil {
		ctrl.Close()
	}
}

func (c *Console) teardown() {
	c.closeConversation()
	c.list.Close()
}

func (c *Console) printError(text string) {
	if text == "" {
		text = "Something went wrong"
	}
	fmt.Fprintln(c.out, color.New(color.FgRed).Sprint(text))
}

func validSortKey(key string) bool {
	for _, k := range sortKeys {
		if k == key {
			return true
		}
	}
	return false
}
