// ABOUTME: Local web UI for triaging and taking over lead conversations
// ABOUTME: Server-rendered pages bound to the list, conversation, and takeover stores

package webui

import (
	"context"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/leadwatch/leadwatch/internal/api"
	"github.com/leadwatch/leadwatch/internal/config"
	"github.com/leadwatch/leadwatch/internal/conversation"
	"github.com/leadwatch/leadwatch/internal/takeover"
	"github.com/leadwatch/leadwatch/internal/triage"
)

// requestTimeout bounds user-initiated backend work inside a handler.
const requestTimeout = 15 * time.Second

// Server renders the triage dashboard and conversation pages. One lead
// conversation is open at a time, mirroring the single detail view; opening
// another lead tears down the previous store and controller.
type Server struct {
	cfg      *config.Config
	client   *api.Client
	list     *triage.Store
	logger   *slog.Logger
	registry *prometheus.Registry

	mu     sync.Mutex
	leadID string
	lead   *api.Lead
	conv   *conversation.Store
	ctrl   *takeover.Controller
}

// New creates a Server around an adapter client. registry may be nil when
// metrics are disabled.
func New(cfg *config.Config, client *api.Client, registry *prometheus.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "webui")

	list := triage.NewStore(client, triage.Options{
		Limit:              cfg.Triage.Limit,
		PollInterval:       cfg.Triage.PollInterval,
		DisableAutoRefresh: !cfg.Triage.AutoRefresh,
		Logger:             logger,
	})

	return &Server{
		cfg:      cfg,
		client:   client,
		list:     list,
		logger:   logger,
		registry: registry,
	}
}

// Close tears down the stores.
func (s *Server) Close() {
	s.mu.Lock()
	conv, ctrl := s.conv, s.ctrl
	s.conv, s.ctrl = nil, nil
	s.leadID, s.lead = "", nil
	s.mu.Unlock()

	if conv != nil {
		conv.Close()
	}
	if ctrl != nil {
		ctrl.Close()
	}
	s.list.Close()
}

// RegisterRoutes registers all UI routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", s.handleDashboard)
	mux.HandleFunc("POST /refresh", s.handleListRefresh)

	mux.HandleFunc("GET /lead/{id}", s.handleConversation)
	mux.HandleFunc("POST /lead/{id}/send", s.handleSend)
	mux.HandleFunc("POST /lead/{id}/refresh", s.handleConversationRefresh)

	mux.HandleFunc("POST /session/{id}/takeover", s.handleTakeover)
	mux.HandleFunc("POST /session/{id}/release", s.handleRelease)

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	if s.cfg.Web.Metrics && s.registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}
}

// Serve runs the HTTP server until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	srv := &http.Server{
		Addr:              s.cfg.Web.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Warm the list before the first page load.
	go func() {
		loadCtx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()
		if err := s.list.Load(loadCtx); err != nil {
			s.logger.Warn("initial conversation list load failed", "error", err)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info("web UI listening", "addr", s.cfg.Web.ListenAddr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		s.Close()
		return nil
	case err := <-errCh:
		s.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sortKey := q.Get("sort")
	if sortKey == "" {
		sortKey = triage.SortLatest
	}
	statusFilter := q.Get("status")
	query := q.Get("q")

	snap := s.list.Snapshot()
	rows := triage.FilterRowsByStatus(snap.Conversations, statusFilter)
	rows = triage.SearchRows(rows, query)
	rows = triage.SortRows(rows, sortKey)

	data := triagePageData{
		Title:          "Triage",
		RefreshSeconds: refreshSeconds(s.cfg.Triage.PollInterval, s.cfg.Triage.AutoRefresh),
		Err:            snap.Err,
		Stats:          snap.Stats,
		Conversations:  rows,
		Sort:           sortKey,
		StatusFilter:   statusFilter,
		Query:          query,
		SortKeys: []string{
			triage.SortLatest, triage.SortPriority, triage.SortStatus,
			triage.SortAgent, triage.SortLead,
		},
		StatusKeys: []string{
			api.StatusActive, api.StatusPaused, api.StatusEscalated,
			api.StatusCompleted, api.StatusFailed,
		},
	}
	s.render(w, "templates/triage.html", data, "templates/partials/conversation_rows.html")
}

func (s *Server) handleListRefresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	if err := s.list.Refresh(ctx); err != nil {
		s.logger.Warn("list refresh failed", "error", err)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	leadID := r.PathValue("id")
	conv, ctrl := s.openConversation(r.Context(), leadID)

	snap := conv.Snapshot()
	if snap.SessionInfo != nil {
		ctrl.SetSession(snap.SessionInfo.SessionID.String())
	}
	tk := ctrl.Snapshot()

	errText := snap.Err
	if errText == "" {
		errText = tk.Err
	}

	ownerManaged := tk.Mode == takeover.OwnerManaged
	placeholder := "Send a message as the lead (test mode)..."
	if ownerManaged {
		placeholder = "Reply to the lead as the business..."
	}

	s.mu.Lock()
	lead := s.lead
	s.mu.Unlock()

	title := "Lead " + leadID
	if lead != nil && lead.Name != "" {
		title = lead.Name
	}

	data := conversationPageData{
		Title:           title,
		RefreshSeconds:  refreshSeconds(s.cfg.Conversation.PollInterval, true),
		LeadID:          leadID,
		Err:             errText,
		Loading:         snap.Loading,
		Lead:            lead,
		SessionInfo:     snap.SessionInfo,
		OwnerManaged:    ownerManaged,
		Pending:         tk.Mode.Pending(),
		Messages:        renderMessages(snap.Messages),
		Draft:           snap.Draft,
		SendPlaceholder: placeholder,
	}
	s.render(w, "templates/conversation.html", data)
}

// handleSend routes the typed message by control mode: when the session is
// owner-managed the text goes to the lead as the business owner, otherwise it
// is injected as a simulated lead message for testing the agent.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	leadID := r.PathValue("id")
	conv, ctrl := s.openConversation(r.Context(), leadID)

	message := r.FormValue("message")
	// Keep the text in the input box until the send succeeds.
	conv.SetDraft(message)

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var err error
	if ctrl.Mode() == takeover.OwnerManaged {
		err = conv.SendOwnerMessage(ctx, message)
	} else {
		err = conv.SimulateLeadMessage(ctx, message)
	}
	if err != nil {
		s.logger.Warn("send failed", "lead_id", leadID, "error", err)
	}
	http.Redirect(w, r, "/lead/"+leadID, http.StatusSeeOther)
}

func (s *Server) handleConversationRefresh(w http.ResponseWriter, r *http.Request) {
	leadID := r.PathValue("id")
	conv, _ := s.openConversation(r.Context(), leadID)

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	if err := conv.Refresh(ctx); err != nil {
		s.logger.Warn("conversation refresh failed", "lead_id", leadID, "error", err)
	}
	http.Redirect(w, r, "/lead/"+leadID, http.StatusSeeOther)
}

func (s *Server) handleTakeover(w http.ResponseWriter, r *http.Request) {
	s.handleModeChange(w, r, func(ctx context.Context, ctrl *takeover.Controller) error {
		return ctrl.TakeOver(ctx, "")
	})
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	s.handleModeChange(w, r, func(ctx context.Context, ctrl *takeover.Controller) error {
		return ctrl.Release(ctx)
	})
}

func (s *Server) handleModeChange(w http.ResponseWriter, r *http.Request, op func(context.Context, *takeover.Controller) error) {
	sessionID := r.PathValue("id")

	s.mu.Lock()
	leadID := s.leadID
	ctrl := s.ctrl
	s.mu.Unlock()

	if ctrl == nil || ctrl.Snapshot().SessionID != sessionID {
		// Stale form post from a page whose conversation is no longer open.
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	if err := op(ctx, ctrl); err != nil {
		s.logger.Warn("control mode change failed", "session_id", sessionID, "error", err)
	}
	http.Redirect(w, r, "/lead/"+leadID, http.StatusSeeOther)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// openConversation returns the store and controller for leadID, creating them
// and loading the history when the lead changes. The previous lead's store is
// torn down first.
func (s *Server) openConversation(ctx context.Context, leadID string) (*conversation.Store, *takeover.Controller) {
	s.mu.Lock()
	if s.leadID == leadID && s.conv != nil {
		conv, ctrl := s.conv, s.ctrl
		s.mu.Unlock()
		return conv, ctrl
	}

	oldConv, oldCtrl := s.conv, s.ctrl
	conv := conversation.NewStore(s.client, conversation.Options{
		PollInterval:      s.cfg.Conversation.PollInterval,
		DisableAutoScroll: !s.cfg.Conversation.AutoScroll,
		Logger:            s.logger,
	})
	ctrl := takeover.NewController(s.client, s.logger)
	s.leadID = leadID
	s.lead = nil
	s.conv = conv
	s.ctrl = ctrl
	s.mu.Unlock()

	if oldConv != nil {
		oldConv.Close()
	}
	if oldCtrl != nil {
		oldCtrl.Close()
	}

	loadCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	if err := conv.Load(loadCtx, leadID); err != nil {
		s.logger.Warn("conversation load failed", "lead_id", leadID, "error", err)
	}
	if snap := conv.Snapshot(); snap.SessionInfo != nil {
		ctrl.SetSession(snap.SessionInfo.SessionID.String())
	}

	// Lead details enrich the header; the page renders without them.
	if lead, err := s.client.Lead(loadCtx, leadID); err == nil {
		s.mu.Lock()
		if s.leadID == leadID {
			s.lead = lead
		}
		s.mu.Unlock()
	}

	return conv, ctrl
}

func (s *Server) render(w http.ResponseWriter, page string, data any, extra ...string) {
	files := append([]string{"templates/base.html", page}, extra...)
	tmpl := template.Must(template.ParseFS(templateFS, files...))
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		s.logger.Error("template render failed", "page", page, "error", err)
	}
}

// refreshSeconds converts a poll interval into the meta-refresh cadence, or 0
// to disable auto refresh.
func refreshSeconds(interval time.Duration, enabled bool) int {
	if !enabled || interval <= 0 {
		return 0
	}
	secs := int(interval.Seconds())
	if secs < 1 {
		secs = 1
	}
	return secs
}
