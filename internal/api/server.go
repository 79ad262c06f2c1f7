package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"reqflow/internal/audit"
	"reqflow/internal/events"
	"reqflow/internal/history"
	"reqflow/internal/logging"
	"reqflow/internal/metrics"
	"reqflow/internal/workflow"
)

const (
	// HeaderUser names the acting user.
	HeaderUser = "X-User-Name"
	// HeaderRequestID carries a caller-supplied correlation id.
	HeaderRequestID = "X-Request-ID"

	maxBodyBytes = 1 << 20
)

// Server serves the workflow over HTTP.
type Server struct {
	engine  *workflow.Engine
	events  *events.Broadcaster
	metrics *metrics.Metrics
	health  func(context.Context) error
	logger  *slog.Logger

	heartbeat time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithBroadcaster enables the SSE endpoint.
func WithBroadcaster(b *events.Broadcaster) Option {
	return func(s *Server) { s.events = b }
}

// WithMetrics serves m on /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithHealthCheck sets the probe behind /health.
func WithHealthCheck(fn func(context.Context) error) Option {
	return func(s *Server) { s.health = fn }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithHeartbeat sets the SSE keep-alive interval.
func WithHeartbeat(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.heartbeat = d
		}
	}
}

// NewServer builds a server around engine.
func NewServer(engine *workflow.Engine, opts ...Option) *Server {
	s := &Server{
		engine:    engine,
		logger:    logging.NewNop(),
		heartbeat: 15 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.NewComponentLogger(s.logger, "api")
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.withOrigin)

	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/refdata", s.handleRefdata)
		r.Get("/events", s.handleEvents)

		r.Route("/requests", func(r chi.Router) {
			r.Get("/", s.handleListRequests)
			r.Post("/", s.handleCreateRequest)
			r.Get("/stats", s.handleStats)
			r.Get("/by-number/{number}", s.handleGetRequestByNumber)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetRequest)
				r.Post("/transition", s.handleTransition)
				r.Post("/route", s.handleRoute)
				r.Post("/finalize", s.handleFinalize)
				r.Post("/return", s.handleReturn)
				r.Post("/finalize-lab", s.handleFinalizeFromLab)
				r.Get("/history", s.handleHistory)
				r.Get("/audit", s.handleRequestAudit)
				r.Post("/actions", s.handleRecordAction)
				r.Get("/needs", s.handleListNeeds)
				r.Post("/needs", s.handleCreateNeed)
			})
		})

		r.Route("/needs/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetNeed)
			r.Patch("/", s.handleUpdateNeed)
			r.Delete("/", s.handleDeleteNeed)
			r.Post("/complete", s.handleCompleteNeed)
			r.Post("/reopen", s.handleReopenNeed)
		})

		r.Get("/audit", s.handleAudit)
		r.Get("/audit/stats", s.handleAuditStats)
	})
	return r
}

// withOrigin attaches the caller's origin and a correlation id to the
// request context.
func (s *Server) withOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
		ctx := audit.WithOrigin(r.Context(), audit.Origin{
			IP:        ip,
			UserAgent: r.UserAgent(),
			Method:    r.Method,
			Path:      r.URL.Path,
		})
		correlation := strings.TrimSpace(r.Header.Get(HeaderRequestID))
		if correlation == "" {
			correlation = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, correlation)
		ctx = logging.WithCorrelationID(ctx, correlation)
		ctx = logging.WithActor(ctx, actor(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func actor(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(HeaderUser))
}

func pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, &queryError{param: "id", err: fmt.Errorf("expected a positive integer, got %q", raw)}
	}
	return id, nil
}

func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return &queryError{param: "body", err: err}
	}
	return nil
}

// statusFor maps a workflow error kind to an HTTP status.
func statusFor(err error) int {
	var qe *queryError
	if errors.As(err, &qe) {
		return http.StatusBadRequest
	}
	switch workflow.Kind(err) {
	case workflow.KindValidation:
		return http.StatusBadRequest
	case workflow.KindNotFound:
		return http.StatusNotFound
	case workflow.KindInvalidTransition,
		workflow.KindAlreadyFinalized,
		workflow.KindAlreadyCompleted,
		workflow.KindNotCompleted,
		workflow.KindCannotDeleteCompleted,
		workflow.KindConflict:
		return http.StatusConflict
	case workflow.KindDependency:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func kindFor(err error) string {
	var qe *queryError
	if errors.As(err, &qe) {
		return workflow.KindValidation
	}
	return workflow.Kind(err)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logging.ErrorWithContext(logging.WithContext(r.Context(), s.logger), "request failed", "api_request_failed",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the daemon log and database health"),
		)
	}
	s.writeJSON(w, status, ErrorResponse{Error: err.Error(), Kind: kindFor(err)})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			s.writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unavailable", Detail: err.Error()})
			return
		}
	}
	s.writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleRefdata(w http.ResponseWriter, _ *http.Request) {
	cat := s.engine.Catalog()
	s.writeJSON(w, http.StatusOK, RefdataResponse{
		Departments: cat.Departments(),
		Statuses:    cat.Statuses(),
		Urgencies:   cat.Urgencies(),
	})
}

func (s *Server) handleListRequests(w http.ResponseWriter, r *http.Request) {
	filter, err := ListFilterFromQuery(r.URL.Query())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	items, err := s.engine.ListRequests(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, RequestListResponse{Items: items})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	filter, err := ListFilterFromQuery(r.URL.Query())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	stats, err := s.engine.Stats(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	var body CreateRequestBody
	if err := decode(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	req, err := s.engine.CreateRequest(r.Context(), workflow.CreateInput{
		Requester:    body.Requester,
		MaterialName: body.MaterialName,
		Lot:          body.Lot,
		Supplier:     body.Supplier,
		ArticleCode:  body.ArticleCode,
		Comments:     body.Comments,
		Destination:  body.Destination,
		Urgency:      body.Urgency,
		Actor:        actor(r),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/requests/"+strconv.FormatInt(req.ID, 10))
	s.writeJSON(w, http.StatusCreated, req)
}

func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	detail, err := s.engine.GetRequest(r.Context(), id, actor(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleGetRequestByNumber(w http.ResponseWriter, r *http.Request) {
	detail, err := s.engine.GetRequestByNumber(r.Context(), chi.URLParam(r, "number"), actor(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, detail)
}

// requestMutation decodes body, runs fn for the path id and writes the
// updated request.
func requestMutation[T any](s *Server, fn func(ctx context.Context, id int64, body T, actor string) (*workflow.Request, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		var body T
		if err := decode(r, &body); err != nil {
			s.writeError(w, r, err)
			return
		}
		req, err := fn(r.Context(), id, body, actor(r))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, req)
	}
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	requestMutation(s, func(ctx context.Context, id int64, body TransitionBody, who string) (*workflow.Request, error) {
		return s.engine.TransitionState(ctx, id, workflow.TransitionInput{
			Status:     body.Status,
			Department: body.Department,
			Comment:    body.Comment,
			Actor:      who,
		})
	})(w, r)
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	requestMutation(s, func(ctx context.Context, id int64, body RouteBody, who string) (*workflow.Request, error) {
		return s.engine.RouteToDepartment(ctx, id, body.Department, body.Comment, who)
	})(w, r)
}

func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	requestMutation(s, func(ctx context.Context, id int64, body CommentBody, who string) (*workflow.Request, error) {
		return s.engine.Finalize(ctx, id, body.Comment, who)
	})(w, r)
}

func (s *Server) handleReturn(w http.ResponseWriter, r *http.Request) {
	requestMutation(s, func(ctx context.Context, id int64, body CommentBody, who string) (*workflow.Request, error) {
		return s.engine.ReturnToWarehouse(ctx, id, body.Comment, who)
	})(w, r)
}

func (s *Server) handleFinalizeFromLab(w http.ResponseWriter, r *http.Request) {
	requestMutation(s, func(ctx context.Context, id int64, body CommentBody, who string) (*workflow.Request, error) {
		return s.engine.FinalizeFromLab(ctx, id, body.Comment, who)
	})(w, r)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	order := history.Chronological
	if strings.EqualFold(r.URL.Query().Get("order"), "desc") {
		order = history.Reverse
	}
	items, err := s.engine.Timeline(r.Context(), id, order)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, TimelineResponse{RequestID: id, Items: items})
}

func (s *Server) handleRequestAudit(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	filter, err := AuditFilterFromQuery(r.URL.Query())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	recs, err := s.engine.AuditForRequest(r.Context(), id, filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, AuditListResponse{Items: FromAuditRecords(recs)})
}

func (s *Server) handleRecordAction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var body ActionBody
	if err := decode(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	rec, err := s.engine.RecordAction(r.Context(), audit.Entry{
		RequestID:   id,
		Actor:       actor(r),
		Action:      audit.Action(body.Action),
		Description: body.Description,
		Metadata:    body.Metadata,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, FromAuditRecord(rec))
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	filter, err := AuditFilterFromQuery(r.URL.Query())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	recs, err := s.engine.AuditTrail(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, AuditListResponse{Items: FromAuditRecords(recs)})
}

func (s *Server) handleAuditStats(w http.ResponseWriter, r *http.Request) {
	filter, err := AuditFilterFromQuery(r.URL.Query())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	stats, err := s.engine.AuditStats(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleListNeeds(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	completed, err := parseBool("completed", r.URL.Query().Get("completed"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	needs, err := s.engine.ListNeeds(r.Context(), workflow.NeedFilter{RequestID: id, Completed: completed})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, NeedListResponse{Items: needs})
}

func (s *Server) handleCreateNeed(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var body NeedBody
	if err := decode(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	need, err := s.engine.CreateNeed(r.Context(), id, workflow.NeedInput{
		Description:    body.Description,
		AnalysisType:   body.AnalysisType,
		RequiredParams: body.RequiredParams,
		Actor:          actor(r),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/needs/"+strconv.FormatInt(need.ID, 10))
	s.writeJSON(w, http.StatusCreated, need)
}

func (s *Server) handleGetNeed(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	need, err := s.engine.GetNeed(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, need)
}

// needMutation decodes body, runs fn for the path id and writes the need.
func needMutation[T any](s *Server, fn func(ctx context.Context, id int64, body T, actor string) (*workflow.Need, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		var body T
		if err := decode(r, &body); err != nil {
			s.writeError(w, r, err)
			return
		}
		need, err := fn(r.Context(), id, body, actor(r))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, need)
	}
}

func (s *Server) handleUpdateNeed(w http.ResponseWriter, r *http.Request) {
	needMutation(s, func(ctx context.Context, id int64, body NeedPatchBody, who string) (*workflow.Need, error) {
		return s.engine.UpdateNeed(ctx, id, workflow.NeedUpdate{
			Description:    body.Description,
			AnalysisType:   body.AnalysisType,
			RequiredParams: body.RequiredParams,
			Observations:   body.Observations,
			Actor:          who,
		})
	})(w, r)
}

func (s *Server) handleCompleteNeed(w http.ResponseWriter, r *http.Request) {
	needMutation(s, func(ctx context.Context, id int64, body CompleteNeedBody, who string) (*workflow.Need, error) {
		return s.engine.CompleteNeed(ctx, id, body.Result, body.Observations, who)
	})(w, r)
}

func (s *Server) handleReopenNeed(w http.ResponseWriter, r *http.Request) {
	needMutation(s, func(ctx context.Context, id int64, body ReopenNeedBody, who string) (*workflow.Need, error) {
		return s.engine.ReopenNeed(ctx, id, body.Reason, who)
	})(w, r)
}

func (s *Server) handleDeleteNeed(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.engine.DeleteNeed(r.Context(), id, actor(r)); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
