package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/google/uuid"

	"github.com/chattalk/backend/internal/domain"
	"github.com/chattalk/backend/internal/services"
)

func TestListPendingTopUps(t *testing.T) {
	topups := &fakeTopUps{
		listPending: func(context.Context) ([]domain.TopUpRequest, error) {
			return []domain.TopUpRequest{{ID: "t-1"}, {ID: "t-2"}}, nil
		},
	}
	h := New(&fakeWallet{}, topups, &fakeSessions{}, &fakeMessages{})
	r := newTestRouter(h)

	w := doJSON(t, r, http.MethodGet, "/admin/topups", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp ListPendingTopUpsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || len(resp.TopUps) != 2 {
		t.Fatalf("response = %s (%v)", w.Body.String(), err)
	}
}

func TestApproveTopUp(t *testing.T) {
	id := uuid.NewString()
	topups := &fakeTopUps{
		approve: func(_ context.Context, requestID string) (*domain.TopUpRequest, error) {
			if requestID != id {
				t.Fatalf("service saw id %q, want %q", requestID, id)
			}
			return &domain.TopUpRequest{ID: requestID, Status: domain.TopUpApproved}, nil
		},
	}
	h := New(&fakeWallet{}, topups, &fakeSessions{}, &fakeMessages{})
	r := newTestRouter(h)

	w := doJSON(t, r, http.MethodPost, "/admin/topups/"+id+"/approve", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp TopUpResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.TopUp == nil || resp.TopUp.Status != domain.TopUpApproved {
		t.Fatalf("response = %s (%v)", w.Body.String(), err)
	}
}

func TestResolveTopUp_InvalidID(t *testing.T) {
	h := New(&fakeWallet{}, &fakeTopUps{}, &fakeSessions{}, &fakeMessages{})
	r := newTestRouter(h)

	for _, path := range []string{
		"/admin/topups/not-a-uuid/approve",
		"/admin/topups/not-a-uuid/reject",
	} {
		w := doJSON(t, r, http.MethodPost, path, "", nil)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("POST %s = %d, want 400", path, w.Code)
		}
	}
}

func TestResolveTopUp_ErrorMapping(t *testing.T) {
	id := uuid.NewString()
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not found", services.ErrTopUpNotFound, http.StatusNotFound, ErrCodeNotFound},
		{"already resolved", services.ErrAlreadyResolved, http.StatusConflict, ErrCodeAlreadyResolved},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			topups := &fakeTopUps{
				approve: func(context.Context, string) (*domain.TopUpRequest, error) { return nil, tc.err },
			}
			h := New(&fakeWallet{}, topups, &fakeSessions{}, &fakeMessages{})
			r := newTestRouter(h)

			w := doJSON(t, r, http.MethodPost, "/admin/topups/"+id+"/approve", "", nil)
			if w.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tc.wantStatus)
			}
			if resp := decodeErr(t, w); resp.Code != tc.wantCode {
				t.Fatalf("code = %q, want %q", resp.Code, tc.wantCode)
			}
		})
	}
}

func TestRejectTopUp_OptionalBody(t *testing.T) {
	id := uuid.NewString()
	var gotReason string
	topups := &fakeTopUps{
		reject: func(_ context.Context, _ string, reason string) (*domain.TopUpRequest, error) {
			gotReason = reason
			return &domain.TopUpRequest{ID: id, Status: domain.TopUpRejected, Reason: reason}, nil
		},
	}
	h := New(&fakeWallet{}, topups, &fakeSessions{}, &fakeMessages{})
	r := newTestRouter(h)

	// No body at all: the service decides the default reason.
	w := doJSON(t, r, http.MethodPost, "/admin/topups/"+id+"/reject", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if gotReason != "" {
		t.Fatalf("reason = %q, want empty", gotReason)
	}

	w = doJSON(t, r, http.MethodPost, "/admin/topups/"+id+"/reject", "", RejectTopUpRequest{Reason: "unverifiable"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if gotReason != "unverifiable" {
		t.Fatalf("reason = %q, want %q", gotReason, "unverifiable")
	}
}

func TestAdminPostMessage(t *testing.T) {
	var gotUser, gotContent string
	messages := &fakeMessages{
		fromAdmin: func(_ context.Context, userID, content string) (*domain.Message, error) {
			gotUser, gotContent = userID, content
			return &domain.Message{ID: "m-1", Sender: domain.SenderAdmin, Content: content}, nil
		},
	}
	h := New(&fakeWallet{}, &fakeTopUps{}, &fakeSessions{}, messages)
	r := newTestRouter(h)

	w := doJSON(t, r, http.MethodPost, "/admin/users/u1/messages", "", PostMessageRequest{Content: "  hello  "})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", w.Code)
	}
	// The target comes from the path, never from a header.
	if gotUser != "u1" || gotContent != "hello" {
		t.Fatalf("service saw (%q, %q)", gotUser, gotContent)
	}
}

func TestAdminPostMessage_NoHistory(t *testing.T) {
	messages := &fakeMessages{
		fromAdmin: func(context.Context, string, string) (*domain.Message, error) {
			return nil, services.ErrNoSessionHistory
		},
	}
	h := New(&fakeWallet{}, &fakeTopUps{}, &fakeSessions{}, messages)
	r := newTestRouter(h)

	w := doJSON(t, r, http.MethodPost, "/admin/users/u1/messages", "", PostMessageRequest{Content: "hello"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestAdminStopSession(t *testing.T) {
	var gotUser string
	var gotReason domain.StopReason
	sessions := &fakeSessions{
		stop: func(_ context.Context, userID string, reason domain.StopReason) error {
			gotUser, gotReason = userID, reason
			return nil
		},
	}
	h := New(&fakeWallet{}, &fakeTopUps{}, sessions, &fakeMessages{})
	r := newTestRouter(h)

	w := doJSON(t, r, http.MethodPost, "/admin/users/u1/session/stop", "", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	if gotUser != "u1" || gotReason != domain.StopAdminCleared {
		t.Fatalf("service saw (%q, %q)", gotUser, gotReason)
	}
}

func TestAdminClearChat(t *testing.T) {
	var gotUser string
	sessions := &fakeSessions{
		clear: func(_ context.Context, userID string) error {
			gotUser = userID
			return nil
		},
	}
	h := New(&fakeWallet{}, &fakeTopUps{}, sessions, &fakeMessages{})
	r := newTestRouter(h)

	if w := doJSON(t, r, http.MethodPost, "/admin/users/u1/session/clear", "", nil); w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	if gotUser != "u1" {
		t.Fatalf("service saw %q", gotUser)
	}
}

func TestAdminListMessages(t *testing.T) {
	messages := &fakeMessages{
		transcript: func(_ context.Context, userID string, page, pageSize int) ([]domain.Message, int64, error) {
			if userID != "u1" {
				t.Fatalf("service saw %q", userID)
			}
			return []domain.Message{{ID: "m-1"}}, 1, nil
		},
	}
	h := New(&fakeWallet{}, &fakeTopUps{}, &fakeSessions{}, messages)
	r := newTestRouter(h)

	w := doJSON(t, r, http.MethodGet, "/admin/users/u1/messages", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp ListMessagesResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || len(resp.Messages) != 1 {
		t.Fatalf("response = %s (%v)", w.Body.String(), err)
	}
}
