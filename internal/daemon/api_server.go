package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"stagequeue/internal/api"
	"stagequeue/internal/config"
	"stagequeue/internal/logging"
	"stagequeue/internal/projection"
	"stagequeue/internal/requests"
	"stagequeue/internal/reset"
	"stagequeue/internal/store"
)

const (
	// CorrelationHeader carries the API call identifier in both directions.
	CorrelationHeader = "X-Correlation-ID"

	defaultFeedWait = 25 * time.Second
	maxBodyBytes    = 64 << 10
)

type apiServer struct {
	bind     string
	logger   *slog.Logger
	daemon   *Daemon
	feedWait time.Duration

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:     strings.TrimSpace(cfg.Paths.APIBind),
		logger:   logging.NewComponentLogger(logger, "api-server"),
		daemon:   d,
		feedWait: defaultFeedWait,
	}
	srv.server = &http.Server{
		Handler:           srv.routes(cfg.Admin.PIN),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      defaultFeedWait + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) routes(pin string) http.Handler {
	admin := func(h http.HandlerFunc) http.HandlerFunc { return s.pinMiddleware(pin, h) }

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/requests", s.handleSubmit)
	mux.HandleFunc("GET /api/requests/{id}", s.handleGetRequest)
	mux.HandleFunc("GET /api/views", s.handleViews)
	mux.HandleFunc("GET /api/feed/requests", s.handleRequestFeed)
	mux.HandleFunc("GET /api/feed/settings", s.handleSettingsFeed)
	mux.HandleFunc("POST /api/requests/{id}/approve", admin(s.handleApprove))
	mux.HandleFunc("POST /api/requests/{id}/reject", admin(s.handleReject))
	mux.HandleFunc("POST /api/requests/{id}/play", admin(s.handlePlay))
	mux.HandleFunc("POST /api/requests/{id}/done", admin(s.handleDone))
	mux.HandleFunc("PATCH /api/requests/{id}", admin(s.handleEdit))
	mux.HandleFunc("DELETE /api/requests/{id}", admin(s.handleRemove))
	mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	mux.HandleFunc("PUT /api/settings", admin(s.handlePutSettings))
	mux.HandleFunc("POST /api/reset", admin(s.handleResetArm))
	mux.HandleFunc("POST /api/reset/{ticket}/confirm", admin(s.handleResetConfirm))
	mux.HandleFunc("POST /api/reset/{ticket}/execute", admin(s.handleResetExecute))
	return s.withCorrelation(mux)
}

// withCorrelation tags each call with a correlation id, taken from the client
// when supplied.
func (s *apiServer) withCorrelation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logging.WithCorrelationID(r.Context(), r.Header.Get(CorrelationHeader))
		if id, ok := logging.CorrelationIDFromContext(ctx); ok {
			w.Header().Set(CorrelationHeader, id)
		}
		logging.WithContext(ctx, s.logger).Debug("api call",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *apiServer) start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener
	// Parked long polls end with the daemon rather than holding up shutdown.
	s.server.BaseContext = func(net.Listener) context.Context { return ctx }

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
	if s.listener != nil {
		_ = s.listener.Close()
	}
}

func (s *apiServer) addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.bind
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status(r.Context())
	s.writeJSON(w, http.StatusOK, api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		Bind:         status.Bind,
		DatabasePath: status.DatabasePath,
		LockFilePath: status.LockFilePath,
		Revision:     status.Revision,
		Counts:       api.MergeCounts(status.Counts),
		Database: api.DatabaseHealth{
			Path:           status.Database.DBPath,
			Exists:         status.Database.DatabaseExists,
			Readable:       status.Database.DatabaseReadable,
			IntegrityCheck: status.Database.IntegrityCheck,
			TotalRequests:  status.Database.TotalRequests,
			Error:          status.Database.Error,
		},
		Archive: api.ArchiveStatus{
			Enabled:   status.ArchiveOn,
			Delivered: status.Archive.Delivered,
			Failed:    status.Archive.Failed,
			Dropped:   status.Archive.Dropped,
			Queued:    status.Archive.Queued,
		},
		Player: api.PlayerStatus{
			Command:    status.Player.Command,
			Configured: status.Player.Configured,
			Available:  status.Player.Available,
			Detail:     status.Player.Detail,
		},
	})
}

func (s *apiServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var body api.SubmitRequest
	if !s.decode(w, r, &body) {
		return
	}
	req, err := s.daemon.engine.Submit(r.Context(), requests.Draft{
		SingerName:     body.SingerName,
		IGHandle:       body.IGHandle,
		Song:           body.Song,
		Artist:         body.Artist,
		BackingTrack:   body.BackingTrack,
		TechnicalNeeds: body.TechnicalNeeds,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, api.RequestResponse{Request: api.FromRequest(req)})
}

func (s *apiServer) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	req, err := s.daemon.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if !errors.Is(err, requests.ErrNotFound) {
			err = requests.Unavailable("load request", err)
		}
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.RequestResponse{Request: api.FromRequest(req)})
}

func (s *apiServer) handleViews(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	role, ok := projection.ParseRole(query.Get("role"))
	if !ok {
		s.writeError(w, r, requests.Invalid("role", "must be operator, display, or marketing"))
		return
	}
	withHistory := role == projection.RoleMarketing ||
		(role == projection.RoleOperator && isTruthy(query.Get("history")))

	ctx := r.Context()
	revision := s.daemon.store.Revision()
	filter := store.ActiveFilter()
	if role == projection.RoleDisplay {
		filter = store.DisplayFilter()
	}
	list, err := s.daemon.store.Query(ctx, filter)
	if err == nil && withHistory {
		var history []requests.Request
		history, err = s.daemon.store.Query(ctx, store.HistoryFilter())
		list = append(list, history...)
	}
	if err != nil {
		s.writeError(w, r, requests.Unavailable("load requests", err))
		return
	}
	settings, err := s.daemon.engine.Settings(ctx)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	views := projection.Project(list).ForRole(role)
	s.writeJSON(w, http.StatusOK, api.FromViews(role, views, settings, revision))
}

func (s *apiServer) handleRequestFeed(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	view := strings.ToLower(strings.TrimSpace(query.Get("view")))
	var filter store.Filter
	switch view {
	case "", "active":
		view, filter = "active", store.ActiveFilter()
	case "display":
		filter = store.DisplayFilter()
	case "history":
		filter = store.HistoryFilter()
	default:
		s.writeError(w, r, requests.Invalid("view", "must be active, display, or history"))
		return
	}
	since, err := parseRevision(query.Get("since"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	epoch := s.daemon.store.Epoch()
	revision := s.awaitRevision(r.Context(), query.Get("epoch"), since, isTruthy(query.Get("wait")))
	list, err := s.daemon.store.Query(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, requests.Unavailable("load requests", err))
		return
	}
	s.writeJSON(w, http.StatusOK, api.RequestFeed{View: view, Epoch: epoch, Revision: revision, Requests: api.FromRequests(list)})
}

func (s *apiServer) handleSettingsFeed(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	since, err := parseRevision(query.Get("since"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	epoch := s.daemon.store.Epoch()
	revision := s.awaitRevision(r.Context(), query.Get("epoch"), since, isTruthy(query.Get("wait")))
	settings, err := s.daemon.engine.Settings(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.SettingsFeed{Epoch: epoch, Revision: revision, Settings: api.FromSettings(settings)})
}

// awaitRevision returns the store revision, first waiting up to feedWait for
// one newer than since when wait is set. A since from another epoch, or one
// ahead of the store, means the daemon restarted, so it returns at once.
func (s *apiServer) awaitRevision(ctx context.Context, epoch string, since uint64, wait bool) uint64 {
	current := s.daemon.store.Revision()
	if epoch != "" && epoch != s.daemon.store.Epoch() {
		return current
	}
	if !wait || current != since {
		return current
	}
	waitCtx, cancel := context.WithTimeout(ctx, s.feedWait)
	defer cancel()
	revision, _ := s.daemon.store.WaitRevision(waitCtx, since)
	return revision
}

func (s *apiServer) handleApprove(w http.ResponseWriter, r *http.Request) {
	var body api.ApproveRequest
	if !s.decode(w, r, &body) {
		return
	}
	req, err := s.daemon.engine.Approve(r.Context(), r.PathValue("id"), body.YouTubeURL)
	s.respondRequest(w, r, req, err)
}

func (s *apiServer) handleReject(w http.ResponseWriter, r *http.Request) {
	req, err := s.daemon.engine.Reject(r.Context(), r.PathValue("id"))
	s.respondRequest(w, r, req, err)
}

func (s *apiServer) handlePlay(w http.ResponseWriter, r *http.Request) {
	req, err := s.daemon.engine.Play(r.Context(), r.PathValue("id"))
	s.respondRequest(w, r, req, err)
}

func (s *apiServer) handleDone(w http.ResponseWriter, r *http.Request) {
	req, err := s.daemon.engine.MarkDone(r.Context(), r.PathValue("id"))
	s.respondRequest(w, r, req, err)
}

func (s *apiServer) handleEdit(w http.ResponseWriter, r *http.Request) {
	var body api.EditRequest
	if !s.decode(w, r, &body) {
		return
	}
	req, err := s.daemon.engine.Edit(r.Context(), r.PathValue("id"), requests.Edit{
		Song:       body.Song,
		Artist:     body.Artist,
		YouTubeURL: body.YouTubeURL,
	})
	s.respondRequest(w, r, req, err)
}

func (s *apiServer) handleRemove(w http.ResponseWriter, r *http.Request) {
	if err := s.daemon.engine.Remove(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.daemon.engine.Settings(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromSettings(settings))
}

func (s *apiServer) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var body api.ThemeRequest
	if !s.decode(w, r, &body) {
		return
	}
	settings, err := s.daemon.engine.SetTheme(r.Context(), body.Theme)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromSettings(settings))
}

func (s *apiServer) handleResetArm(w http.ResponseWriter, r *http.Request) {
	ticket := s.daemon.reset.Guard().Arm()
	logging.WithContext(r.Context(), s.logger).Info("reset armed", logging.String("ticket", ticket.ID))
	s.writeJSON(w, http.StatusCreated, api.FromTicket(ticket))
}

func (s *apiServer) handleResetConfirm(w http.ResponseWriter, r *http.Request) {
	ticket, err := s.daemon.reset.Guard().Confirm(r.PathValue("ticket"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromTicket(ticket))
}

func (s *apiServer) handleResetExecute(w http.ResponseWriter, r *http.Request) {
	result, err := s.daemon.reset.Reset(r.Context(), r.PathValue("ticket"))
	if err != nil {
		var partial *reset.PartialBatchFailure
		if errors.As(err, &partial) {
			payload := api.ErrorPayload(err)
			summary := api.FromResetResult(result)
			payload.Result = &summary
			s.writeJSON(w, http.StatusInternalServerError, payload)
			return
		}
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromResetResult(result))
}

func (s *apiServer) respondRequest(w http.ResponseWriter, r *http.Request, req requests.Request, err error) {
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.RequestResponse{Request: api.FromRequest(req)})
}

// decode reads a JSON body into dst, answering 400 itself on failure.
func (s *apiServer) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		s.writeError(w, r, requests.Invalid("body", "is not valid JSON: "+err.Error()))
		return false
	}
	return true
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	logger := logging.WithContext(r.Context(), s.logger)
	if status >= http.StatusInternalServerError {
		logger.Error("api call failed",
			logging.String("path", r.URL.Path),
			logging.String(logging.FieldEventType, "api_call_failed"),
			logging.Error(err))
	} else {
		logger.Debug("api call rejected",
			logging.String("path", r.URL.Path),
			logging.Int("status", status),
			logging.Error(err))
	}
	s.writeJSON(w, status, api.ErrorPayload(err))
}

func statusForError(err error) int {
	switch requests.Kind(err) {
	case requests.KindValidation:
		return http.StatusBadRequest
	case requests.KindPrecondition:
		return http.StatusConflict
	case requests.KindNotFound:
		return http.StatusNotFound
	case requests.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func parseRevision(value string) (uint64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	rev, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, requests.Invalid("since", "must be a non-negative integer")
	}
	return rev, nil
}

func isTruthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
