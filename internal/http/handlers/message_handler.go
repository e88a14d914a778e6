// Message HTTP handlers.
//
// This file exposes REST endpoints for chat messages:
//   - POST /messages   (append a client message to the caller's active session)
//   - GET  /messages   (list the latest session's transcript, paginated)
//
// Handlers normalize content at the edge (line endings, excessive blank
// lines); the service layer owns the emptiness and length rules.
package handlers

import (
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/chattalk/backend/internal/domain"
	"github.com/chattalk/backend/internal/services"
)

//
// DTOs
//

// PostMessageRequest is the JSON payload for sending a message.
type PostMessageRequest struct {
	// Content is the message body. It must be non-empty after trimming.
	Content string `json:"content" binding:"required,min=1"`
}

// PostMessageResponse is the JSON envelope for a newly created message.
type PostMessageResponse struct {
	Message *domain.Message `json:"message"`
}

// ListMessagesResponse contains a page of transcript messages and pagination
// metadata.
type ListMessagesResponse struct {
	Messages   []domain.Message `json:"messages"`
	Pagination Pagination       `json:"pagination"`
}

//
// Helpers
//

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// sanitizeContent normalizes user text for consistent downstream behavior:
//   - converts CRLF/CR to LF,
//   - collapses runs of 3+ LFs to exactly two (paragraph separation),
//   - trims surrounding whitespace.
func sanitizeContent(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// failMessageErr maps message service sentinels to HTTP responses.
func failMessageErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrSessionNotActive):
		fail(c, http.StatusConflict, ErrCodeSessionNotActive, "no active session; start one first")
	case errors.Is(err, services.ErrNoSessionHistory):
		fail(c, http.StatusNotFound, ErrCodeNoSessionHistory, "user has no session history")
	case errors.Is(err, services.ErrEmptyMessage):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
	case errors.Is(err, services.ErrMessageTooLong):
		fail(c, http.StatusBadRequest, ErrCodeMessageTooLong, "message exceeds the maximum length")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

//
// Handlers
//

// PostMessage appends a client message to the caller's active session.
func (h *Handlers) PostMessage(c *gin.Context) {
	uid, okUser := requireUser(c)
	if !okUser {
		return
	}

	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		return
	}

	m, err := h.msgSvc.SendFromClient(c.Request.Context(), uid, sanitizeContent(req.Content))
	if err != nil {
		failMessageErr(c, err)
		return
	}
	ok(c, http.StatusCreated, PostMessageResponse{Message: m})
}

// ListMessages returns a page of the caller's latest session transcript in
// chronological order.
func (h *Handlers) ListMessages(c *gin.Context) {
	uid, okUser := requireUser(c)
	if !okUser {
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
