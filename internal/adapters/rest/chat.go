package rest

import (
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/ewilliams-labs/moodlist/internal/core/domain"
)

const defaultSessionID = "default"

// maxBodyBytes bounds chat request bodies.
const maxBodyBytes = 64 << 10

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

type chatResponse struct {
	Type              string                        `json:"type"`
	Message           string                        `json:"message"`
	SessionID         string                        `json:"session_id"`
	Recommendations   *domain.RecommendationPayload `json:"recommendations,omitempty"`
	RetryAfterSeconds int                           `json:"retry_after_seconds,omitempty"`
}

type resetRequest struct {
	SessionID string `json:"session_id"`
}

// Chat handles POST /api/chat
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	if !isJSONContentType(r) {
		writeError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	sessionID := sessionOrDefault(req.SessionID)

	reply, err := h.svc.HandleMessage(r.Context(), sessionID, req.Message)
	if err != nil {
		h.writeChatError(w, sessionID, err)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Type:            string(reply.Type),
		Message:         reply.Message,
		SessionID:       sessionID,
		Recommendations: reply.Payload,
	})
}

// ResetChat handles POST /api/chat/reset. An empty body resets the default session.
func (h *Handler) ResetChat(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if r.Body != nil {
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}
	sessionID := sessionOrDefault(req.SessionID)
	h.svc.Reset(sessionID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset", "session_id": sessionID})
}

// ListSessions handles GET /api/chat/sessions
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	ids := h.svc.Sessions()
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"sessions": ids})
}

func (h *Handler) writeChatError(w http.ResponseWriter, sessionID string, err error) {
	status := statusFor(err)
	resp := chatResponse{
		Type:      "error",
		Message:   domain.UserMessage(err),
		SessionID: sessionID,
	}
	if wait := domain.RetryAfterOf(err); wait > 0 && domain.KindOf(err) == domain.KindQuota {
		secs := int(math.Ceil(wait.Seconds()))
		resp.RetryAfterSeconds = secs
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}

	fields := []zap.Field{zap.String("session_id", sessionID), zap.Int("status", status), zap.Error(err)}
	if status >= 500 {
		h.logger.Error("chat request failed", fields...)
	} else {
		h.logger.Info("chat request rejected", fields...)
	}
	writeJSON(w, status, resp)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrEmptyMessage):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrSessionBusy):
		return http.StatusConflict
	}
	switch domain.KindOf(err) {
	case domain.KindQuota:
		return http.StatusTooManyRequests
	case domain.KindTransient, domain.KindUnavailable:
		return http.StatusServiceUnavailable
	case domain.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func sessionOrDefault(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return defaultSessionID
	}
	return id
}
