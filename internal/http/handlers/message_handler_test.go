package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/chattalk/backend/internal/domain"
	"github.com/chattalk/backend/internal/services"
)

func TestSanitizeContent(t *testing.T) {
	cases := []struct{ in, want string }{
		{"hello", "hello"},
		{"  hello  ", "hello"},
		{"a\r\nb\rc", "a\nb\nc"},
		{"a\n\n\n\n\nb", "a\n\nb"},
		{"a\n\nb", "a\n\nb"},
	}
	for _, tc := range cases {
		if got := sanitizeContent(tc.in); got != tc.want {
			t.Fatalf("sanitizeContent(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestPostMessage(t *testing.T) {
	var gotContent string
	messages := &fakeMessages{
		fromClient: func(_ context.Context, userID, content string) (*domain.Message, error) {
			gotContent = content
			return &domain.Message{ID: "m-1", SessionID: "s-1", Sender: domain.SenderClient, Content: content}, nil
		},
	}
	h := New(&fakeWallet{}, &fakeTopUps{}, &fakeSessions{}, messages)
	r := newTestRouter(h)

	w := doJSON(t, r, http.MethodPost, "/messages", "u1", PostMessageRequest{Content: "  hi\r\nthere  "})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (body %s)", w.Code, w.Body.String())
	}
	if gotContent != "hi\nthere" {
		t.Fatalf("service saw %q, want sanitized content", gotContent)
	}
	var resp PostMessageResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.Message == nil || resp.Message.ID != "m-1" {
		t.Fatalf("response = %s (%v)", w.Body.String(), err)
	}
}

func TestPostMessage_MissingContent(t *testing.T) {
	h := New(&fakeWallet{}, &fakeTopUps{}, &fakeSessions{}, &fakeMessages{})
	r := newTestRouter(h)

	w := doJSON(t, r, http.MethodPost, "/messages", "u1", map[string]any{})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestPostMessage_ErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"no active session", services.ErrSessionNotActive, http.StatusConflict, ErrCodeSessionNotActive},
		{"no history", services.ErrNoSessionHistory, http.StatusNotFound, ErrCodeNoSessionHistory},
		{"empty", services.ErrEmptyMessage, http.StatusBadRequest, ErrCodeBadRequest},
		{"too long", services.ErrMessageTooLong, http.StatusBadRequest, ErrCodeMessageTooLong},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			messages := &fakeMessages{
				fromClient: func(context.Context, string, string) (*domain.Message, error) {
					return nil, tc.err
				},
			}
			h := New(&fakeWallet{}, &fakeTopUps{}, &fakeSessions{}, messages)
			r := newTestRouter(h)

			w := doJSON(t, r, http.MethodPost, "/messages", "u1", PostMessageRequest{Content: "x"})
			if w.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tc.wantStatus)
			}
			if resp := decodeErr(t, w); resp.Code != tc.wantCode {
				t.Fatalf("code = %q, want %q", resp.Code, tc.wantCode)
			}
		})
	}
}

func TestListMessages(t *testing.T) {
	messages := &fakeMessages{
		transcript: func(_ context.Context, userID string, page, pageSize int) ([]domain.Message, int64, error) {
			if userID != "u1" || page != 1 || pageSize != 20 {
				t.Fatalf("service saw (%q, %d, %d)", userID, page, pageSize)
			}
			return []domain.Message{{ID: "m-1", Content: "hi"}}, 1, nil
		},
	}
	h := New(&fakeWallet{}, &fakeTopUps{}, &fakeSessions{}, messages)
	r := newTestRouter(h)

	w := doJSON(t, r, http.MethodGet, "/messages", "u1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp ListMessagesResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Messages) != 1 || resp.Pagination.Total != 1 {
		t.Fatalf("response = %+v", resp)
	}
}
