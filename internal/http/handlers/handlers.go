// Handler wiring and shared service contracts.
//
// Handlers are transport-thin: they validate and normalize inputs, delegate to
// application services, and translate results (including sentinel errors) into
// HTTP responses. Business rules live in the services package; nothing here
// touches the database directly.
package handlers

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/chattalk/backend/internal/domain"
	"github.com/chattalk/backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// WalletService exposes balance reads consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type WalletService interface {
	// Balance returns the user's current balance, creating the wallet on
	// first contact.
	Balance(ctx context.Context, userID string) (int64, error)
}

// TopUpService defines the funding request lifecycle operations.
type TopUpService interface {
	// Submit records a new pending top-up request.
	Submit(ctx context.Context, userID string, amount int64, reference, note string) (*domain.TopUpRequest, error)
	// Approve resolves a pending request and credits the wallet.
	Approve(ctx context.Context, requestID string) (*domain.TopUpRequest, error)
	// Reject resolves a pending request with a reason, wallet untouched.
	Reject(ctx context.Context, requestID, reason string) (*domain.TopUpRequest, error)
	// ListForUser returns a page of the user's requests plus the total count.
	ListForUser(ctx context.Context, userID string, page, pageSize int) ([]domain.TopUpRequest, int64, error)
	// ListPending returns the operator review queue, oldest first.
	ListPending(ctx context.Context) ([]domain.TopUpRequest, error)
}

// SessionService defines session lifecycle operations.
type SessionService interface {
	// Start transitions the user to active; idempotent.
	Start(ctx context.Context, userID string) (*domain.ChatSession, error)
	// Stop transitions the user to idle; idempotent no-op when already idle.
	Stop(ctx context.Context, userID string, reason domain.StopReason) error
	// Clear wipes the most recent session's transcript.
	Clear(ctx context.Context, userID string) error
	// ActiveSession reports the live session id, if any.
	ActiveSession(userID string) (string, bool)
}

// MessageService defines message routing and transcript retrieval.
type MessageService interface {
	// SendFromClient records a message by the session owner.
	SendFromClient(ctx context.Context, userID, content string) (*domain.Message, error)
	// SendFromAdmin records an operator message addressed to userID.
	SendFromAdmin(ctx context.Context, userID, content string) (*domain.Message, error)
	// Transcript returns a page of the latest session's messages.
	Transcript(ctx context.Context, userID string, page, pageSize int) ([]domain.Message, int64, error)
}

// Handlers groups HTTP endpoints for wallets, top-ups, sessions, and messages.
// It depends on abstract service interfaces to keep transport concerns
// separate from business logic.
type Handlers struct {
	walletSvc  WalletService
	topupSvc   TopUpService
	sessionSvc SessionService
	msgSvc     MessageService
}

// New constructs and returns a Handlers instance bound to the given services.
func New(walletSvc WalletService, topupSvc TopUpService, sessionSvc SessionService, msgSvc MessageService) *Handlers {
	return &Handlers{
		walletSvc:  walletSvc,
		topupSvc:   topupSvc,
		sessionSvc: sessionSvc,
		msgSvc:     msgSvc,
	}
}

// userID extracts the caller's user id from Gin context (set by upstream
// middleware) with a fallback to the "X-User-ID" header. An empty result
// means the caller did not identify itself; handlers reject that case.
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-User-ID")); h != "" {
			return h
		}
	}
	return ""
}

// requireUser resolves the caller's user id or fails the request with 401.
func requireUser(c *gin.Context) (string, bool) {
	uid := userID(c)
	if uid == "" {
		fail(c, 401, ErrCodeUnauthorized, "X-User-ID header required")
		return "", false
	}
	return uid, true
}

//
// DTOs
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// paginationFor derives pagination metadata from a page request and total.
func paginationFor(page, pageSize int, total int64) Pagination {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}
