package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/haasonsaas/opsassist/internal/agent"
	"github.com/haasonsaas/opsassist/internal/identity"
	"github.com/haasonsaas/opsassist/internal/observability"
	"github.com/haasonsaas/opsassist/pkg/models"
)

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Message             string        `json:"message"`
	ConversationHistory []models.Turn `json:"conversationHistory"`
}

// ChatResponse is the body of a successful chat reply. The history is the
// input history plus every turn of this exchange, ready to send back on the
// next request.
type ChatResponse struct {
	Message             string           `json:"message"`
	ConversationHistory []models.Turn    `json:"conversationHistory"`
	State               models.LoopState `json:"state"`
	Rounds              int              `json:"rounds"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error     string `json:"error"`
	Details   string `json:"details,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// OperationInfo describes one catalog entry for GET /api/operations.
type OperationInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Mutating    bool            `json:"mutating,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ChatRequest
	body := http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			s.writeError(w, r, http.StatusRequestEntityTooLarge, "request body too large", "")
		case errors.Is(err, io.EOF):
			s.writeError(w, r, http.StatusBadRequest, "request body is required", "")
		default:
			s.writeError(w, r, http.StatusBadRequest, "invalid request body", err.Error())
		}
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		s.writeError(w, r, http.StatusBadRequest, "message is required", "")
		return
	}

	caller, err := s.identity.Resolve(r)
	if err != nil {
		s.writeError(w, r, http.StatusUnauthorized, "invalid credentials", err.Error())
		return
	}
	if ok, wait := s.limiter.Allow(rateLimitKey(r, caller)); !ok {
		s.metrics.RecordError("gateway", "rate_limited")
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
		s.writeError(w, r, http.StatusTooManyRequests, "too many requests", "")
		return
	}
	ctx = identity.WithCaller(ctx, caller)
	ctx = observability.AddUserID(ctx, caller.UserID)
	ctx = observability.AddStoreID(ctx, caller.StoreID)

	outcome, err := s.assistant.Run(ctx, caller, req.ConversationHistory, req.Message)
	if err != nil {
		if errors.Is(err, agent.ErrEmptyMessage) {
			s.writeError(w, r, http.StatusBadRequest, "message is required", "")
			return
		}
		s.logger.ErrorContext(ctx, "chat failed", "error", err)
		s.writeError(w, r, http.StatusInternalServerError, "failed to process chat request", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, ChatResponse{
		Message:             outcome.FinalMessage,
		ConversationHistory: outcome.Conversation,
		State:               outcome.State,
		Rounds:              outcome.Rounds,
	})
}

// rateLimitKey buckets requests by user, then store, then client address.
func rateLimitKey(r *http.Request, caller identity.Caller) string {
	switch {
	case caller.UserID != "":
		return "user:" + caller.UserID
	case caller.StoreID != "":
		return "store:" + caller.StoreID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "addr:" + host
}

func (s *Server) handleOperations(w http.ResponseWriter, _ *http.Request) {
	defs := s.catalog.List()
	out := make([]OperationInfo, len(defs))
	for i, def := range defs {
		out[i] = OperationInfo{
			Name:        def.Name,
			Description: def.Description,
			Mutating:    def.Mutating,
			InputSchema: def.JSONSchema(),
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"operations": out})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, message, details string) {
	writeJSON(w, status, ErrorResponse{
		Error:     message,
		Details:   details,
		RequestID: observability.GetRequestID(r.Context()),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck
}
