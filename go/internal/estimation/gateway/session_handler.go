package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/mcdev12/pointing/go/internal/estimation"
	"github.com/rs/zerolog/log"
)

var validate = validator.New()

// UserNameUpdate is the body of the rename request
type UserNameUpdate struct {
	UserName *string `json:"userName" validate:"required"`
}

// SessionHandler handles the request-style session operations
type SessionHandler struct {
	session *estimation.Session
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(session *estimation.Session) *SessionHandler {
	return &SessionHandler{
		session: session,
	}
}

// HandleClear handles POST {prefix}/clear
func (h *SessionHandler) HandleClear(w http.ResponseWriter, r *http.Request) {
	h.session.Clear()
	writeJSON(w, http.StatusOK, "cleared")
}

// HandleOpen handles POST {prefix}/open
func (h *SessionHandler) HandleOpen(w http.ResponseWriter, r *http.Request) {
	if h.session.Reveal() {
		writeJSON(w, http.StatusOK, "opened")
		return
	}
	writeJSON(w, http.StatusOK, "not opened")
}

// HandleUserName handles POST {prefix}/participant/{id}/userName
func (h *SessionHandler) HandleUserName(w http.ResponseWriter, r *http.Request) {
	participantID := r.PathValue("id")

	var update UserNameUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		log.Warn().Err(err).Str("participant_id", participantID).Msg("invalid user name update")
		http.Error(w, "invalid JSON body", http.StatusUnprocessableEntity)
		return
	}
	if err := validate.Struct(update); err != nil {
		log.Warn().Err(err).Str("participant_id", participantID).Msg("invalid user name update")
		http.Error(w, "userName is required", http.StatusUnprocessableEntity)
		return
	}

	h.session.Rename(participantID, *update.UserName)
	log.Info().Str("participant_id", participantID).Str("user_name", *update.UserName).Msg("received new user name")
	writeJSON(w, http.StatusOK, "Thanks")
}

// HandleGetState handles GET {prefix}/state
func (h *SessionHandler) HandleGetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.session.Snapshot())
}

// RegisterSessionRoutes registers the session routes under prefix
func (h *SessionHandler) RegisterSessionRoutes(mux *http.ServeMux, prefix string) {
	mux.HandleFunc("POST "+prefix+"/clear", h.HandleClear)
	mux.HandleFunc("POST "+prefix+"/open", h.HandleOpen)
	mux.HandleFunc("POST "+prefix+"/participant/{id}/userName", h.HandleUserName)
	mux.HandleFunc("GET "+prefix+"/state", h.HandleGetState)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
