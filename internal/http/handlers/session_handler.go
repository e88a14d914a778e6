// Session HTTP handlers.
//
// This file exposes REST endpoints for the caller's own session lifecycle:
//   - POST /session/start  (idle → active; requires a coverable first unit)
//   - POST /session/stop   (active → idle; no-op when already idle)
//   - POST /session/clear  (wipe the latest session's transcript)
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chattalk/backend/internal/domain"
	"github.com/chattalk/backend/internal/services"
)

// SessionResponse is the JSON envelope for a session resource.
type SessionResponse struct {
	Session *domain.ChatSession `json:"session"`
}

// StartSession activates a session for the caller. Starting while already
// active returns the live session rather than an error.
func (h *Handlers) StartSession(c *gin.Context) {
	uid, okUser := requireUser(c)
	if !okUser {
		return
	}

	sess, err := h.sessionSvc.Start(c.Request.Context(), uid)
	if err != nil {
		if errors.Is(err, services.ErrInsufficientFunds) {
			fail(c, http.StatusPaymentRequired, ErrCodeInsufficientFunds, "balance too low to start a session")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, SessionResponse{Session: sess})
}

// StopSession deactivates the caller's session. Stopping while idle succeeds
// with no effect.
func (h *Handlers) StopSession(c *gin.Context) {
	uid, okUser := requireUser(c)
	if !okUser {
		return
	}

	if err := h.sessionSvc.Stop(c.Request.Context(), uid, domain.StopClientRequested); err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	noContent(c)
}

// ClearChat wipes the transcript of the caller's most recent session.
func (h *Handlers) ClearChat(c *gin.Context) {
	uid, okUser := requireUser(c)
	if !okUser {
		return
	}

	if err := h.sessionSvc.Clear(c.Request.Context(), uid); err != nil {
		if errors.Is(err, services.ErrNoSessionHistory) {
			fail(c, http.StatusNotFound, ErrCodeNoSessionHistory, "no session to clear")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	noContent(c)
}
