package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shirou/gopsutil/process"
	"go.uber.org/zap"

	"presencerelay/pkg/interfaces"
	"presencerelay/pkg/types"
)

// EventLister is implemented by journals that can page recent presence changes.
type EventLister interface {
	Recent(ctx context.Context, limit int) ([]types.PresenceChange, error)
}

// MemoryProbe reports the resident set size of the running process.
type MemoryProbe func() (uint64, error)

const (
	defaultEventLimit = 50
	maxEventLimit     = 500
	healthTimeout     = 5 * time.Second
)

// ARCHITECTURAL DISCOVERY: HTTP API layer serves as pure interface between external clients and internal components
// It only reads the directory and the journal; nothing here changes presence
type Server struct {
	directory interfaces.SessionDirectory
	transport interfaces.Transport
	journal   interfaces.Journal
	websocket http.Handler
	memory    MemoryProbe
	now       func() time.Time
	started   time.Time
	log       *zap.Logger
	router    chi.Router
}

type Option func(*Server)

// WithWebSocket mounts the upgrade handler at /ws.
func WithWebSocket(h http.Handler) Option {
	return func(s *Server) { s.websocket = h }
}

// WithJournal enables journal totals, /api/events and the journal health probe.
func WithJournal(j interfaces.Journal) Option {
	return func(s *Server) { s.journal = j }
}

func WithMemoryProbe(probe MemoryProbe) Option {
	return func(s *Server) { s.memory = probe }
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// NewServer builds the chi router serving the read-only API.
func NewServer(directory interfaces.SessionDirectory, transport interfaces.Transport, log *zap.Logger, opts ...Option) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		directory: directory,
		transport: transport,
		memory:    processRSS(),
		now:       time.Now,
		log:       log,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.started = s.now()
	s.setupRoutes()
	return s
}

// ARCHITECTURAL DISCOVERY: Route setup follows REST conventions with proper middleware
func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		s.requestLogger,
		middleware.Recoverer,
	)

	r.Get("/health", s.healthCheck)
	r.Route("/api", func(r chi.Router) {
		r.Use(jsonMiddleware)
		r.Get("/stats", s.stats)
		r.Get("/users", s.users)
		r.Get("/events", s.events)
	})
	if s.websocket != nil {
		r.Handle("/ws", s.websocket)
	}
	s.router = r
}

// FUNCTIONAL DISCOVERY: Implement http.Handler interface for integration with standard HTTP server
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Journal   string    `json:"journal"`
	Timestamp time.Time `json:"timestamp"`
}

type StatsResponse struct {
	OnlineUsers    int                        `json:"onlineUsers"`
	Connections    int                        `json:"connections"`
	UptimeSeconds  int64                      `json:"uptimeSeconds"`
	MemoryRSSBytes uint64                     `json:"memoryRSSBytes"`
	Journal        map[types.PresenceKind]int `json:"journal,omitempty"`
}

type UsersResponse struct {
	Users []types.UserSession `json:"users"`
}

type EventsResponse struct {
	Events []types.PresenceChange `json:"events"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// FUNCTIONAL DISCOVERY: Return 503 if the journal is configured but failing
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	resp := HealthResponse{Status: "ok", Journal: "disabled", Timestamp: s.now()}
	code := http.StatusOK

	if s.journal != nil {
		resp.Journal = "ok"
		if err := s.journal.HealthCheck(ctx); err != nil {
			resp.Status = "unhealthy"
			resp.Journal = fmt.Sprintf("error: %v", err)
			code = http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	s.writeJSON(w, code, resp)
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{
		OnlineUsers:   s.directory.Count(),
		Connections:   s.transport.ConnectionCount(),
		UptimeSeconds: int64(s.now().Sub(s.started).Seconds()),
	}

	if rss, err := s.memory(); err != nil {
		s.log.Debug("memory probe failed", zap.Error(err))
	} else {
		resp.MemoryRSSBytes = rss
	}

	if s.journal != nil {
		totals, err := s.journal.Totals(r.Context())
		if err != nil {
			s.log.Error("failed to read journal totals", zap.Error(err))
			s.sendError(w, "Failed to read journal totals", http.StatusInternalServerError)
			return
		}
		resp.Journal = totals
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) users(w http.ResponseWriter, _ *http.Request) {
	users := s.directory.Snapshot()
	if users == nil {
		users = []types.UserSession{}
	}
	s.writeJSON(w, http.StatusOK, UsersResponse{Users: users})
}

// FUNCTIONAL DISCOVERY: GET /api/events?limit=N pages the journal newest first
func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	lister, ok := s.journal.(EventLister)
	if !ok {
		s.sendError(w, "Presence journal is disabled", http.StatusNotFound)
		return
	}

	limit := defaultEventLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.sendError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxEventLimit)
	}

	changes, err := lister.Recent(r.Context(), limit)
	if err != nil {
		s.log.Error("failed to read journal events", zap.Error(err))
		s.sendError(w, "Failed to read journal events", http.StatusInternalServerError)
		return
	}
	if changes == nil {
		changes = []types.PresenceChange{}
	}
	s.writeJSON(w, http.StatusOK, EventsResponse{Events: changes})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, body any) {
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Debug("failed to write response", zap.Error(err))
	}
}

// FUNCTIONAL DISCOVERY: Consistent error response format
func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	s.writeJSON(w, code, ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// requestLogger replaces chi's stdlib logger with zap.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.log.Debug("http request",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("remote", r.RemoteAddr),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)))
		}()
		next.ServeHTTP(ww, r)
	})
}

// processRSS looks the process up once and reads its RSS on every call.
func processRSS() MemoryProbe {
	var (
		once sync.Once
		proc *process.Process
		err  error
	)
	return func() (uint64, error) {
		once.Do(func() {
			proc, err = process.NewProcess(int32(os.Getpid()))
		})
		if err != nil {
			return 0, err
		}
		info, err := proc.MemoryInfo()
		if err != nil {
			return 0, err
		}
		return info.RSS, nil
	}
}
