package chat

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	chatservice "github.com/Miningpickery/knowledge-explorer-frontend-sub001/internal/service/chat"
	"github.com/Miningpickery/knowledge-explorer-frontend-sub001/internal/service/turn"
	"github.com/Miningpickery/knowledge-explorer-frontend-sub001/pkg/utils"
)

// Handler exposes session management and message submission over HTTP.
type Handler struct {
	chatSvc *chatservice.Service
	runner  *turn.Runner
}

// New builds the chat handler. runner may be nil when the AI backend is not
// configured; message submission then answers 503.
func New(chatSvc *chatservice.Service, runner *turn.Runner) *Handler {
	return &Handler{
		chatSvc: chatSvc,
		runner:  runner,
	}
}

// RegisterRoutes mounts the chat endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session", h.handleCreateSession)
	r.Get("/sessions", h.handleListSessions)
	r.Get("/session/{sessionID}/messages", h.handleGetMessages)
	r.Delete("/session/{sessionID}", h.handleDeleteSession)
	r.Post("/messages", h.handleSendMessage)
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.chatSvc.CreateSession(r.Context())
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusCreated, session)
}

func (h *Handler) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.chatSvc.Sessions())
}

func (h *Handler) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	messages, err := h.chatSvc.Visible(sessionID)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, messages)
}

func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if err := h.chatSvc.DeleteSession(r.Context(), sessionID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, chatservice.ErrSessionNotFound) {
			status = http.StatusNotFound
		}
		utils.RespondError(w, status, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handleSendMessage accepts a user turn and returns immediately; the client
// observes progress through the messages endpoint or a watch stream.
func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	if h.runner == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "ai backend unavailable")
		return
	}

	var payload struct {
		SessionID string `json:"sessionId"`
		Text      string `json:"text"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	payload.Text = strings.TrimSpace(payload.Text)
	if payload.SessionID == "" || payload.Text == "" {
		utils.RespondError(w, http.StatusBadRequest, "sessionId and text are required")
		return
	}

	if _, err := h.chatSvc.GetSession(r.Context(), payload.SessionID); err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}

	h.runner.SendMessage(payload.SessionID, payload.Text)
	utils.RespondJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}
