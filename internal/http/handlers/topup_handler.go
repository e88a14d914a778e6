// Top-up HTTP handlers.
//
// This file exposes REST endpoints for the funding request workflow:
//   - POST /topups       (submit a request attested by a payment reference)
//   - GET  /topups       (list the caller's own requests, paginated)
//   - GET  /status       (balance + session snapshot for the caller)
//
// Approval and rejection are operator actions and live in admin_handler.go.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chattalk/backend/internal/domain"
	"github.com/chattalk/backend/internal/services"
)

//
// DTOs
//

// SubmitTopUpRequest is the JSON payload for submitting a funding request.
type SubmitTopUpRequest struct {
	// Amount to credit on approval, in minor currency units. Must meet the
	// configured minimum.
	Amount int64 `json:"amount" binding:"required"`
	// Reference is the external payment reference (e.g. a bank UTR number).
	Reference string `json:"reference" binding:"required"`
	// Note optionally carries free-form text for the operator.
	Note string `json:"note"`
}

// TopUpResponse is the JSON envelope for a single funding request.
type TopUpResponse struct {
	TopUp *domain.TopUpRequest `json:"topup"`
}

// ListTopUpsResponse contains a page of the caller's requests.
type ListTopUpsResponse struct {
	TopUps     []domain.TopUpRequest `json:"topups"`
	Pagination Pagination            `json:"pagination"`
}

// StatusResponse is the caller's account snapshot.
type StatusResponse struct {
	Balance   int64  `json:"balance"`
	Active    bool   `json:"active"`
	SessionID string `json:"session_id,omitempty"`
}

//
// Handlers
//

// SubmitTopUp records a new pending funding request for the caller.
func (h *Handlers) SubmitTopUp(c *gin.Context) {
	uid, okUser := requireUser(c)
	if !okUser {
		return
	}

	var req SubmitTopUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "amount and reference required")
		return
	}

	t, err := h.topupSvc.Submit(c.Request.Context(), uid, req.Amount, req.Reference, req.Note)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrAmountBelowMinimum):
			fail(c, http.StatusBadRequest, ErrCodeAmountBelowMinimum, "amount below the minimum recharge")
		case errors.Is(err, services.ErrReferenceTooShort):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "payment reference too short")
		case errors.Is(err, services.ErrDuplicateReference):
			fail(c, http.StatusConflict, ErrCodeDuplicateReference, "an open request already uses this reference")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	ok(c, http.StatusCreated, TopUpResponse{TopUp: t})
}

// ListTopUps returns a page of the caller's own funding requests, newest first.
func (h *Handlers) ListTopUps(c *gin.Context) {
	uid, okUser := requireUser(c)
	if !okUser {
		return
	}
	page, pageSize := clampPagination(c)

	items, total, err := h.topupSvc.ListForUser(c.Request.Context(), uid, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, ListTopUpsResponse{
		TopUps:     items,
		Pagination: paginationFor(page, pageSize, total),
	})
}

// GetStatus returns the caller's balance and session state in one call.
func (h *Handlers) GetStatus(c *gin.Context) {
	uid, okUser := requireUser(c)
	if !okUser {
		return
	}

	bal, err := h.walletSvc.Balance(c.Request.Context(), uid)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	sid, active := h.sessionSvc.ActiveSession(uid)
	ok(c, http.StatusOK, StatusResponse{Balance: bal, Active: active, SessionID: sid})
}
