// Package httpapi exposes the chat subsystem's REST surface: the PIN gate
// endpoints, decrypted conversation history behind the gate, and the
// notification listing. Every route requires the same bearer credential the
// websocket handshake uses.
package httpapi

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/peertutor/tutorchat/internal/common"
	"github.com/peertutor/tutorchat/internal/logging"
	"github.com/peertutor/tutorchat/internal/server/chat"
	"github.com/peertutor/tutorchat/internal/server/pin"
	"github.com/peertutor/tutorchat/internal/server/repositories/repomanager"
)

const defaultHistoryLimit = 50

// Handler serves the chat REST routes.
type Handler struct {
	db           *sql.DB
	repomanager  repomanager.RepositoryManager
	chat         *chat.Service
	gate         *pin.Gate
	jwtSecret    []byte
	historyLimit int
	logger       logging.Logger
}

// NewHandler wires the REST surface to its collaborators. historyLimit is
// the page size for conversation history; zero means the default.
func NewHandler(db *sql.DB, m repomanager.RepositoryManager, chatSvc *chat.Service, gate *pin.Gate, secretKey string, historyLimit int, logger logging.Logger) *Handler {
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	return &Handler{
		db:           db,
		repomanager:  m,
		chat:         chatSvc,
		gate:         gate,
		jwtSecret:    []byte(secretKey),
		historyLimit: historyLimit,
		logger:       logger.With("module", "httpapi"),
	}
}

// Register attaches every route to the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/chat/pin", h.requireAuth(h.setPin))
	mux.HandleFunc("POST /api/chat/pin/verify", h.requireAuth(h.verifyPin))
	mux.HandleFunc("POST /api/chat/pin/lock", h.requireAuth(h.lockPin))
	mux.HandleFunc("DELETE /api/chat/pin", h.requireAuth(h.disablePin))
	mux.HandleFunc("GET /api/chat/pin/status", h.requireAuth(h.pinStatus))
	mux.HandleFunc("GET /api/chat/messages/{userId}", h.requireAuth(h.history))
	mux.HandleFunc("GET /api/chat/notifications", h.requireAuth(h.listNotifications))
	mux.HandleFunc("POST /api/chat/notifications/read", h.requireAuth(h.markNotificationsRead))
}

type pinRequest struct {
	Pin string `json:"pin"`
}

func (h *Handler) setPin(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())

	var req pinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.gate.SetPin(r.Context(), id.UserID, id.SessionID, req.Pin); err != nil {
		h.writePinError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": true})
}

func (h *Handler) verifyPin(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())

	var req pinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.gate.VerifyPin(r.Context(), id.UserID, id.SessionID, req.Pin); err != nil {
		h.writePinError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"verified": true})
}

func (h *Handler) lockPin(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())
	h.gate.Lock(id.SessionID)
	writeJSON(w, http.StatusOK, map[string]bool{"locked": true})
}

func (h *Handler) disablePin(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())

	var req pinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.gate.DisablePin(r.Context(), id.UserID, id.SessionID, req.Pin); err != nil {
		h.writePinError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": false})
}

func (h *Handler) pinStatus(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())

	enabled, err := h.gate.HasPinEnabled(r.Context(), id.UserID)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	verified := h.gate.IsVerified(id.SessionID)

	writeJSON(w, http.StatusOK, map[string]bool{
		"enabled":  enabled,
		"verified": verified,
		"required": enabled && !verified,
	})
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())
	otherID := r.PathValue("userId")

	needsPin, err := h.gate.NeedsPinEntry(r.Context(), id.UserID, id.SessionID)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	if needsPin {
		writeError(w, http.StatusForbidden, "pin_required")
		return
	}

	limit := h.historyLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	msgs, err := h.chat.History(r.Context(), id.UserID, otherID, limit)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		h.internalError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, msgs)
}

func (h *Handler) listNotifications(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())

	items, err := h.repomanager.Notifications(h.db).ListUnread(r.Context(), id.UserID)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) markNotificationsRead(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())

	n, err := h.repomanager.Notifications(h.db).MarkAllRead(r.Context(), id.UserID)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": n})
}

// writePinError maps gate errors to the REST vocabulary.
func (h *Handler) writePinError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, common.ErrorValidation):
		writeError(w, http.StatusBadRequest, "PIN must be exactly 4 digits or is already set")
	case errors.Is(err, common.ErrorIncorrectPin):
		writeError(w, http.StatusForbidden, "incorrect_pin")
	case errors.Is(err, common.ErrorPinNotSet):
		writeError(w, http.StatusBadRequest, "pin_not_set")
	case errors.Is(err, common.ErrorNotFound):
		writeError(w, http.StatusNotFound, "user not found")
	default:
		h.internalError(w, r, err)
	}
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
