package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"ecorelease/core"
	"ecorelease/core/events"
	"ecorelease/indexer"
	"ecorelease/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
	requestIDHeader = "X-Request-Id"
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeRateLimited    = -32020
	codeBusinessState  = -32030
	codeLifecycle      = -32031
	codeHostRejected   = -32032
)

const (
	MethodInstantiate = "eco_instantiate"
	MethodExecute     = "eco_execute"
	MethodQuery       = "eco_query"
	MethodHeight      = "eco_height"
	MethodEvents      = "eco_events"
)

// EventStore lists indexed contract events.
type EventStore interface {
	List(ctx context.Context, filter indexer.Filter) ([]indexer.EventRecord, error)
}

// Config captures the dependencies required to construct the server.
type Config struct {
	Host        *core.Host
	Events      EventStore
	Broadcaster *events.Broadcaster
	Auth        AuthConfig
	RateLimit   RateLimit
	Logger      *slog.Logger
	Metrics     *observability.RPCMetrics
}

// Server serves the JSON-RPC API of a single contract host.
type Server struct {
	host        *core.Host
	events      EventStore
	broadcaster *events.Broadcaster
	auth        *Authenticator
	limiter     *RateLimiter
	logger      *slog.Logger
	metrics     *observability.RPCMetrics

	router http.Handler
}

func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		host:        cfg.Host,
		events:      cfg.Events,
		broadcaster: cfg.Broadcaster,
		auth:        NewAuthenticator(cfg.Auth),
		limiter:     NewRateLimiter(cfg.RateLimit, cfg.Metrics),
		logger:      logger,
		metrics:     cfg.Metrics,
	}
	s.router = s.buildRouter()
	return s
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(assignRequestID)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/ws/events", s.handleEventsWS)
	r.With(s.limiter.Middleware).Post("/", s.handle)

	return otelhttp.NewHandler(r, "ecod.rpc")
}

// assignRequestID stamps every request with a UUID unless the caller already
// supplied one, and echoes it back.
func assignRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(requestIDHeader, id)
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	height, err := s.host.Height()
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"status": "ok", "height": height})
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}

	failed := s.dispatch(w, r, req)
	s.metrics.Observe(methodLabel(req.Method), failed, time.Since(start))
}

func methodLabel(method string) string {
	switch method {
	case MethodInstantiate, MethodExecute, MethodQuery, MethodHeight, MethodEvents:
		return method
	default:
		return "unknown"
	}
}

// dispatch routes req and reports whether it failed.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, req *RPCRequest) bool {
	switch req.Method {
	case MethodInstantiate:
		return s.handleInvoke(w, r, req, s.host.Instantiate)
	case MethodExecute:
		return s.handleInvoke(w, r, req, s.host.Execute)
	case MethodQuery:
		return s.handleQuery(w, r, req)
	case MethodHeight:
		return s.handleHeight(w, req)
	case MethodEvents:
		return s.handleEvents(w, r, req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %q", req.Method), nil)
		return true
	}
}

// writeHostError maps a host or contract failure onto a JSON-RPC error.
func (s *Server) writeHostError(w http.ResponseWriter, id interface{}, err error) {
	kind := core.ErrorKind(err)
	status, code := http.StatusInternalServerError, codeServerError
	switch kind {
	case "validation":
		status, code = http.StatusBadRequest, codeInvalidParams
	case "authorization":
		status, code = http.StatusForbidden, codeUnauthorized
	case "business_state":
		status, code = http.StatusConflict, codeBusinessState
	case "lifecycle":
		status, code = http.StatusConflict, codeLifecycle
	case "host":
		status, code = http.StatusConflict, codeHostRejected
	}
	if code == codeServerError {
		s.logger.Error("rpc: internal failure", slog.String("error", err.Error()))
	}
	writeError(w, status, id, code, err.Error(), map[string]string{"kind": kind})
}
