// Admin HTTP handlers.
//
// This file exposes the operator surface, mounted behind the PIN middleware:
//   - GET  /admin/topups                    (pending review queue)
//   - POST /admin/topups/{id}/approve       (credit the wallet exactly once)
//   - POST /admin/topups/{id}/reject        (record a reason, wallet untouched)
//   - POST /admin/users/{id}/messages       (reply to a user, active or not)
//   - POST /admin/users/{id}/session/stop   (force-stop a user's session)
//   - POST /admin/users/{id}/session/clear  (wipe a user's transcript)
//   - GET  /admin/users/{id}/messages       (read a user's transcript)
//
// Admin routes identify the target user by path, never by header.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/chattalk/backend/internal/domain"
	"github.com/chattalk/backend/internal/services"
)

// ListPendingTopUpsResponse is the operator review queue, oldest first.
type ListPendingTopUpsResponse struct {
	TopUps []domain.TopUpRequest `json:"topups"`
}

// RejectTopUpRequest is the JSON payload for rejecting a funding request.
type RejectTopUpRequest struct {
	// Reason is recorded on the request; a default is used when empty.
	Reason string `json:"reason"`
}

// failTopUpResolveErr maps resolution sentinels to HTTP responses.
func failTopUpResolveErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrTopUpNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "top-up request not found")
	case errors.Is(err, services.ErrAlreadyResolved):
		fail(c, http.StatusConflict, ErrCodeAlreadyResolved, "request already resolved")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

// ListPendingTopUps returns every request still awaiting an operator decision.
func (h *Handlers) ListPendingTopUps(c *gin.Context) {
	items, err := h.topupSvc.ListPending(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, ListPendingTopUpsResponse{TopUps: items})
}

// ApproveTopUp resolves a pending request and credits the wallet.
func (h *Handlers) ApproveTopUp(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "request id must be a UUID")
		return
	}

	t, err := h.topupSvc.Approve(c.Request.Context(), id)
	if err != nil {
		failTopUpResolveErr(c, err)
		return
	}
	ok(c, http.StatusOK, TopUpResponse{TopUp: t})
}

// RejectTopUp resolves a pending request with a reason and no ledger effect.
func (h *Handlers) RejectTopUp(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "request id must be a UUID")
		return
	}

	// Body is optional; a missing or malformed one means "no reason given".
	var req RejectTopUpRequest
	_ = c.ShouldBindJSON(&req)

	t, err := h.topupSvc.Reject(c.Request.Context(), id, req.Reason)
	if err != nil {
		failTopUpResolveErr(c, err)
		return
	}
	ok(c, http.StatusOK, TopUpResponse{TopUp: t})
}

// AdminPostMessage records an operator reply addressed to the target user.
// The reply lands in the user's most recent session, active or not.
func (h *Handlers) AdminPostMessage(c *gin.Context) {
	uid := c.Param("id")
	if uid == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "user id required")
		return
	}

	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		return
	}

	m, err := h.msgSvc.SendFromAdmin(c.Request.Context(), uid, sanitizeContent(req.Content))
	if err != nil {
		failMessageErr(c, err)
		return
	}
	ok(c, http.StatusCreated, PostMessageResponse{Message: m})
}

// AdminStopSession force-stops the target user's session. Idempotent.
func (h *Handlers) AdminStopSession(c *gin.Context) {
	uid := c.Param("id")
	if uid == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "user id required")
		return
	}

	if err := h.sessionSvc.Stop(c.Request.Context(), uid, domain.StopAdminCleared); err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	noContent(c)
}

// AdminClearChat wipes the target user's latest transcript.
func (h *Handlers) AdminClearChat(c *gin.Context) {
	uid := c.Param("id")
	if uid == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "user id required")
		return
	}

	if err := h.sessionSvc.Clear(c.Request.Context(), uid); err != nil {
		if errors.Is(err, services.ErrNoSessionHistory) {
			fail(c, http.StatusNotFound, ErrCodeNoSessionHistory, "user has no session history")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	noContent(c)
}

// AdminListMessages returns a page of the target user's latest transcript.
func (h *Handlers) AdminListMessages(c *gin.Context) {
	uid := c.Param("id")
	if uid == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "user id required")
		return
	}
	page, pageSize := clampPagination(c)

	items, total, err := h.msgSvc.Transcript(c.Request.Context(), uid, page, pageSize)
	if err != nil {
		failMessageErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListMessagesResponse{
		Messages:   items,
		Pagination: paginationFor(page, pageSize, total),
	})
}
