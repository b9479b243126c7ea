package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/netutil"

	"github.com/knowledge-engine/relay/internal/config"
	"github.com/knowledge-engine/relay/internal/relay"
)

type Server struct {
	Config *config.Config
	Relay  *relay.Relay
	Logger *logrus.Entry
	Router *mux.Router
}

func NewServer(cfg *config.Config, r *relay.Relay, logger *logrus.Entry) *Server {
	s := &Server{
		Config: cfg,
		Relay:  r,
		Logger: logger,
		Router: mux.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.HandleFunc("/api/chat", s.handleChat).Methods(http.MethodPost)
	s.Router.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)

	s.Router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(w, http.StatusNotFound, ErrorResponse{Error: "Not found"})
	})
	s.Router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "Method not allowed"})
	})
}

// Handler returns the router wrapped in the middleware chain
func (s *Server) Handler() http.Handler {
	return s.withMiddleware(s.Router)
}

// Start serves until ctx is cancelled, then drains in-flight requests
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Config.Addr())
	if err != nil {
		return err
	}
	if s.Config.Server.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.Config.Server.MaxConnections)
	}

	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.Logger.Infof("Starting API Server on %s", ln.Addr())
		errCh <- httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.Logger.Info("Shutting down API Server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.Logger.Info("API Server stopped")
	return nil
}

// Requests / Responses

// ChatRequest is the decoded chat body. SessionID is nil when the client
// sent none or sent a non-string value.
type ChatRequest struct {
	Query     string
	SessionID *string
}

type ErrorResponse struct {
	Error string `json:"error"`
	Stack string `json:"stack,omitempty"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

// Handlers

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeChatRequest(w, r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			jsonResponse(w, http.StatusRequestEntityTooLarge, ErrorResponse{Error: "Request entity too large"})
			return
		}
		jsonResponse(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid JSON"})
		return
	}

	resp, err := s.Relay.Handle(r.Context(), req.Query, req.SessionID)
	if err != nil {
		s.writeRelayError(w, err)
		return
	}

	jsonResponse(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// decodeChatRequest only parses JSON bodies; anything else reads as an empty
// request and so fails query validation downstream.
func (s *Server) decodeChatRequest(w http.ResponseWriter, r *http.Request) (*ChatRequest, error) {
	req := &ChatRequest{}
	if !isJSON(r.Header.Get("Content-Type")) {
		return req, nil
	}

	body := http.MaxBytesReader(w, r.Body, s.Config.Server.MaxBodyBytes)
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return req, nil
	}

	// Keys are matched exactly; encoding/json struct decoding would fold case.
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}

	// Wrongly typed fields are dropped rather than rejected.
	var query string
	if raw, ok := payload["query"]; ok && json.Unmarshal(raw, &query) == nil {
		req.Query = query
	}
	var sessionID string
	if raw, ok := payload["sessionId"]; ok && json.Unmarshal(raw, &sessionID) == nil && sessionID != "" {
		req.SessionID = &sessionID
	}
	return req, nil
}

func (s *Server) writeRelayError(w http.ResponseWriter, err error) {
	var relayErr *relay.Error
	if !errors.As(err, &relayErr) {
		jsonResponse(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	switch relayErr.Kind {
	case relay.InvalidInput:
		jsonResponse(w, http.StatusBadRequest, ErrorResponse{Error: relayErr.Message})
	default:
		resp := ErrorResponse{Error: relayErr.Message}
		if s.Config.IsDevelopment() {
			resp.Stack = relayErr.Stack
		}
		jsonResponse(w, http.StatusInternalServerError, resp)
	}
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json"
}

func jsonResponse(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
