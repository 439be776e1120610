package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/straymandu/internal/auth"
	"github.com/dharsanguruparan/straymandu/internal/config"
	"github.com/dharsanguruparan/straymandu/internal/feed"
	"github.com/dharsanguruparan/straymandu/internal/model"
	"github.com/dharsanguruparan/straymandu/internal/notify"
	"github.com/dharsanguruparan/straymandu/internal/workflow"
)

// TeamStore reads organization teams.
type TeamStore interface {
	GetTeam(ctx context.Context, id string) (*model.Team, error)
	ListTeams(ctx context.Context, orgID string) ([]*model.Team, error)
}

// Directory reads profiles and the leaderboard.
type Directory interface {
	Profile(ctx context.Context, id string) (*model.Profile, error)
	Leaderboard(ctx context.Context, period model.LeaderboardPeriod, limit int) ([]*model.Profile, error)
}

// MediaStore persists uploaded photos and returns their public URL.
type MediaStore interface {
	UploadImage(ctx context.Context, objectKey string, r io.Reader, size int64, contentType string) (string, error)
}

// Deps are the collaborators the HTTP layer dispatches to. Media and Broker
// may be nil; the matching endpoints then answer 503.
type Deps struct {
	Workflow      *workflow.Service
	Notifications notify.Store
	Teams         TeamStore
	Directory     Directory
	Broker        feed.Broker
	Media         MediaStore
	Issuer        *auth.Issuer
}

// Server exposes the report workflow over HTTP.
type Server struct {
	cfg     *config.Config
	deps    Deps
	limiter *limiter
	logger  *zap.Logger
	handler http.Handler
	server  *http.Server
	once    sync.Once
}

// New constructs a Server.
func New(cfg *config.Config, deps Deps, logger *zap.Logger) *Server {
	return &Server{
		cfg:     cfg,
		deps:    deps,
		limiter: newLimiter(cfg.SubmitRatePerMinute, cfg.SubmitBurst),
		logger:  logger,
	}
}

// Handler returns the routed handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	if s.handler != nil {
		return s.handler
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("POST /reports", s.handleSubmit)
	mux.HandleFunc("GET /reports", s.handleList)
	mux.HandleFunc("GET /reports/stream", s.handleStream)
	mux.HandleFunc("GET /reports/export.xlsx", s.handleExport)
	mux.HandleFunc("GET /reports/{id}", s.handleGet)
	mux.HandleFunc("POST /reports/{id}/claim", s.handleClaim)
	mux.HandleFunc("POST /reports/{id}/status", s.handleStatus)
	mux.HandleFunc("POST /reports/{id}/team", s.handleAssignTeam)

	mux.HandleFunc("GET /notifications", s.handleNotifications)
	mux.HandleFunc("POST /notifications/read-all", s.handleReadAll)
	mux.HandleFunc("POST /notifications/{id}/read", s.handleRead)

	mux.HandleFunc("GET /teams", s.handleTeams)
	mux.HandleFunc("GET /profiles/{id}", s.handleProfile)
	mux.HandleFunc("GET /leaderboard", s.handleLeaderboard)
	mux.HandleFunc("POST /media", s.handleMedia)

	authn := auth.Middleware(s.deps.Issuer, func(w http.ResponseWriter, err error) {
		s.logger.Debug("token rejected", zap.Error(err))
		respondError(w, http.StatusUnauthorized, "invalid token")
	})
	s.handler = corsMiddleware(s.loggingMiddleware(authn(mux)))
	return s.handler
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.once.Do(func() {
		s.server = &http.Server{
			Addr:              s.cfg.Address,
			Handler:           s.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
	})
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()
	s.logger.Info("api listening", zap.String("address", s.cfg.Address))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// respondJSON encodes before writing the header so an unencodable payload
// becomes a 500 envelope instead of an empty 200.
func (s *Server) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(envelope{Success: true, Data: payload}); err != nil {
		s.logger.Error("encode response", zap.Int("status", status), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to update")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: false, Message: message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return badRequest("malformed JSON body: %v", err)
	}
	return nil
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}
