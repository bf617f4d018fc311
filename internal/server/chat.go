// Package server exposes the assistant over HTTP: session management, chat
// (plain and streaming), conversation history, and operational endpoints.
package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopclerk/shopclerk/internal/memory"
	"github.com/shopclerk/shopclerk/internal/observability"
	"github.com/shopclerk/shopclerk/internal/pipeline"
	"github.com/shopclerk/shopclerk/internal/vector"
)

// Responder answers one support query.
type Responder interface {
	Answer(ctx context.Context, query string) (*pipeline.Response, error)
	Respond(ctx context.Context, query string) *pipeline.Response
}

// ConversationStore persists per-session history.
type ConversationStore interface {
	Append(ctx context.Context, session, user, assistant string) error
	History(ctx context.Context, session string, limit int) ([]memory.Turn, error)
	Clear(ctx context.Context, session string) (bool, error)
}

// Config holds chat server configuration.
type Config struct {
	ListenAddr string // e.g. ":8080"
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{ListenAddr: ":8080"}
}

// ChatServer is the assistant's HTTP front end.
type ChatServer struct {
	config    *Config
	responder Responder
	store     ConversationStore
	metrics   *observability.ChatMetrics
	audit     *observability.AuditLogger
	server    *http.Server
}

// NewChatServer creates the chat server. metrics and audit may be nil.
func NewChatServer(config *Config, responder Responder, store ConversationStore, metrics *observability.ChatMetrics, audit *observability.AuditLogger) *ChatServer {
	if config == nil {
		config = DefaultConfig()
	}
	s := &ChatServer{
		config:    config,
		responder: responder,
		store:     store,
		metrics:   metrics,
		audit:     audit,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/sessions", s.handleSessions)
	mux.HandleFunc("/api/chat", s.handleChat)
	mux.HandleFunc("/api/chat/stream", s.handleChatStream)
	mux.HandleFunc("/api/history", s.handleHistory)
	if metrics != nil {
		mux.Handle("/metrics", metrics.Handler())
	}

	handler := corsMiddleware(loggingMiddleware(mux))

	s.server = &http.Server{
		Addr:         config.ListenAddr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // streaming responses hold the connection open
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the server's HTTP handler, for tests.
func (s *ChatServer) Handler() http.Handler {
	return s.server.Handler
}

// Start begins serving.
func (s *ChatServer) Start() error {
	slog.Info("Starting chat server", "addr", s.config.ListenAddr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("chat server error: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *ChatServer) Stop(ctx context.Context) error {
	slog.Info("Stopping chat server")
	return s.server.Shutdown(ctx)
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Query     string `json:"query"`
}

type chatResponse struct {
	SessionID    string       `json:"session_id"`
	Answer       string       `json:"answer"`
	Sources      []sourceView `json:"sources"`
	HistorySaved bool         `json:"history_saved"`
}

// sourceView is the citation shape exposed over the API.
type sourceView struct {
	Text     string  `json:"text"`
	Category string  `json:"category"`
	Score    float32 `json:"score"`
}

func sourceViews(results []vector.SearchResult) []sourceView {
	views := make([]sourceView, len(results))
	for i, r := range results {
		views[i] = sourceView{
			Text:     r.Text,
			Category: r.Category("General"),
			Score:    r.Score,
		}
	}
	return views
}

// handleSessions handles POST /api/sessions.
func (s *ChatServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := newSessionID()
	if s.metrics != nil {
		s.metrics.SessionsCreatedTotal.Inc()
	}
	if s.audit != nil {
		s.audit.LogSessionCreate(r.Context(), id)
	}
	respondJSON(w, map[string]string{"session_id": id})
}

// handleChat handles POST /api/chat.
func (s *ChatServer) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, ok := s.decodeChatRequest(w, r)
	if !ok {
		return
	}

	ctx, span := observability.StartChatSpan(r.Context(), req.SessionID)
	defer span.End()

	start := time.Now()
	if s.audit != nil {
		s.audit.LogChatRequest(ctx, req.SessionID, req.Query)
	}

	resp, answerErr := s.answer(ctx, req)
	degraded := answerErr != nil
	saved := s.saveTurn(ctx, req.SessionID, req.Query, resp.Answer)

	if degraded {
		observability.RecordError(span, answerErr)
	} else {
		observability.RecordChatResult(span, len(resp.Sources), time.Since(start))
	}
	if s.metrics != nil {
		s.metrics.RecordChat(time.Since(start), len(resp.Sources), degraded)
	}
	if s.audit != nil && !degraded {
		s.audit.LogChatResponse(ctx, req.SessionID, len(resp.Sources), time.Since(start))
	}

	respondJSON(w, chatResponse{
		SessionID:    req.SessionID,
		Answer:       resp.Answer,
		Sources:      sourceViews(resp.Sources),
		HistorySaved: saved,
	})
}

// handleChatStream handles POST /api/chat/stream with Server-Sent Events.
// The answer is computed in full, then streamed word by word, followed by a
// sources event and a done event.
func (s *ChatServer) handleChatStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, ok := s.decodeChatRequest(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	if s.metrics != nil {
		s.metrics.ActiveStreams.Inc()
		defer s.metrics.ActiveStreams.Dec()
	}

	ctx, span := observability.StartChatSpan(r.Context(), req.SessionID)
	defer span.End()

	start := time.Now()
	if s.audit != nil {
		s.audit.LogChatRequest(ctx, req.SessionID, req.Query)
	}

	resp, answerErr := s.answer(ctx, req)
	degraded := answerErr != nil

	for _, word := range strings.Fields(resp.Answer) {
		if ctx.Err() != nil {
			return
		}
		writeSSE(w, "token", word)
		flusher.Flush()
	}

	sources, _ := json.Marshal(sourceViews(resp.Sources))
	writeSSE(w, "sources", string(sources))

	saved := s.saveTurn(ctx, req.SessionID, req.Query, resp.Answer)
	writeSSE(w, "done", fmt.Sprintf(`{"history_saved":%t}`, saved))
	flusher.Flush()

	if degraded {
		observability.RecordError(span, answerErr)
	} else {
		observability.RecordChatResult(span, len(resp.Sources), time.Since(start))
	}
	if s.metrics != nil {
		s.metrics.RecordChat(time.Since(start), len(resp.Sources), degraded)
	}
	if s.audit != nil && !degraded {
		s.audit.LogChatResponse(ctx, req.SessionID, len(resp.Sources), time.Since(start))
	}
}

// handleHistory handles GET and DELETE on /api/history.
func (s *ChatServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
				limit = parsed
			}
		}
		turns, err := s.store.History(r.Context(), sessionID, limit)
		if err != nil {
			slog.Error("history lookup failed", "session", sessionID, "error", err)
			http.Error(w, "Conversation store unavailable", http.StatusServiceUnavailable)
			return
		}
		respondJSON(w, map[string]any{"session_id": sessionID, "turns": turns})

	case http.MethodDelete:
		cleared, err := s.store.Clear(r.Context(), sessionID)
		if err != nil {
			slog.Error("history clear failed", "session", sessionID, "error", err)
			http.Error(w, "Conversation store unavailable", http.StatusServiceUnavailable)
			return
		}
		if s.audit != nil {
			s.audit.LogSessionClear(r.Context(), sessionID, cleared)
		}
		respondJSON(w, map[string]any{"session_id": sessionID, "cleared": cleared})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *ChatServer) decodeChatRequest(w http.ResponseWriter, r *http.Request) (*chatRequest, bool) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return nil, false
	}
	if strings.TrimSpace(req.Query) == "" {
		http.Error(w, "query is required", http.StatusBadRequest)
		return nil, false
	}
	if req.SessionID == "" {
		req.SessionID = newSessionID()
	}
	return &req, true
}

// answer runs the pipeline. A non-nil error means the returned response is
// the degraded fallback, not a retrieval-backed answer.
func (s *ChatServer) answer(ctx context.Context, req *chatRequest) (*pipeline.Response, error) {
	resp, err := s.responder.Answer(ctx, req.Query)
	if err != nil {
		slog.Error("chat request degraded", "session", req.SessionID, "error", err)
		if s.audit != nil {
			s.audit.LogChatError(ctx, req.SessionID, err)
		}
		return s.responder.Respond(ctx, req.Query), err
	}
	return resp, nil
}

// saveTurn records the exchange; a dead conversation store degrades the
// response instead of failing it.
func (s *ChatServer) saveTurn(ctx context.Context, sessionID, query, answer string) bool {
	if err := s.store.Append(ctx, sessionID, query, answer); err != nil {
		slog.Warn("could not persist conversation turn", "session", sessionID, "error", err)
		return false
	}
	return true
}

func writeSSE(w http.ResponseWriter, event, data string) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}

// respondJSON writes a JSON response.
func respondJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// newSessionID returns a random UUIDv4.
func newSessionID() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	b[6] = (b[6] & 0x0f) | 0x40 // version 4
	b[8] = (b[8] & 0x3f) | 0x80 // variant 10

	var out [36]byte
	hex.Encode(out[0:8], b[0:4])
	out[8] = '-'
	hex.Encode(out[9:13], b[4:6])
	out[13] = '-'
	hex.Encode(out[14:18], b[6:8])
	out[18] = '-'
	hex.Encode(out[19:23], b[8:10])
	out[23] = '-'
	hex.Encode(out[24:36], b[10:16])
	return string(out[:])
}

// corsMiddleware adds CORS headers for local development.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}
