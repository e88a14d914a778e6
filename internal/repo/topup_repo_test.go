package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chattalk/backend/internal/domain"
)

func TestTopUpLifecycle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	if err := EnsureUser(ctx, db, "u1", ""); err != nil {
		t.Fatalf("EnsureUser: %v", err)
	}

	req, err := CreateTopUp(ctx, db, "u1", 500, "UTR123456", "first recharge")
	if err != nil {
		t.Fatalf("CreateTopUp: %v", err)
	}
	if req.Status != domain.TopUpPending || req.Resolved() {
		t.Fatalf("fresh request should be pending, got %q", req.Status)
	}

	got, err := GetTopUp(ctx, db, req.ID)
	if err != nil {
		t.Fatalf("GetTopUp: %v", err)
	}
	if got.Amount != 500 || got.Reference != "UTR123456" || got.Note != "first recharge" {
		t.Fatalf("round-trip mismatch: %+v", got)
	}

	if err := ResolveTopUp(ctx, db, req.ID, domain.TopUpApproved, ""); err != nil {
		t.Fatalf("ResolveTopUp: %v", err)
	}
	got, _ = GetTopUp(ctx, db, req.ID)
	if got.Status != domain.TopUpApproved || !got.Resolved() {
		t.Fatalf("expected approved, got %q", got.Status)
	}
}

func TestResolveTopUp_GuardsTerminalStates(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	_ = EnsureUser(ctx, db, "u1", "")

	req, err := CreateTopUp(ctx, db, "u1", 100, "REF-1", "")
	if err != nil {
		t.Fatalf("CreateTopUp: %v", err)
	}
	if err := ResolveTopUp(ctx, db, req.ID, domain.TopUpRejected, "unverifiable"); err != nil {
		t.Fatalf("ResolveTopUp: %v", err)
	}

	// Second resolution matches no pending row.
	if err := ResolveTopUp(ctx, db, req.ID, domain.TopUpApproved, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on re-resolve, got %v", err)
	}
	got, _ := GetTopUp(ctx, db, req.ID)
	if got.Status != domain.TopUpRejected || got.Reason != "unverifiable" {
		t.Fatalf("terminal state mutated: %+v", got)
	}

	// Unknown id behaves the same.
	if err := ResolveTopUp(ctx, db, "does-not-exist", domain.TopUpApproved, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown id, got %v", err)
	}
}

func TestListTopUps_PaginationAndQueueOrder(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	_ = EnsureUser(ctx, db, "u1", "")
	_ = EnsureUser(ctx, db, "u2", "")

	refs := []string{"A1", "A2", "A3"}
	for _, ref := range refs {
		if _, err := CreateTopUp(ctx, db, "u1", 100, ref, ""); err != nil {
			t.Fatalf("CreateTopUp(%s): %v", ref, err)
		}
		time.Sleep(2 * time.Millisecond) // distinct created_at for ordering
	}
	if _, err := CreateTopUp(ctx, db, "u2", 100, "B1", ""); err != nil {
		t.Fatalf("CreateTopUp(B1): %v", err)
	}

	total, err := CountTopUps(ctx, db, "u1")
	if err != nil || total != 3 {
		t.Fatalf("CountTopUps = (%d, %v), want (3, nil)", total, err)
	}

	// User listing is newest first.
	page, err := ListTopUps(ctx, db, "u1", 0, 2)
	if err != nil {
		t.Fatalf("ListTopUps: %v", err)
	}
	if len(page) != 2 || page[0].Reference != "A3" || page[1].Reference != "A2" {
		t.Fatalf("unexpected page: %+v", page)
	}

	// Operator queue is oldest first across users.
	queue, err := ListTopUpsByStatus(ctx, db, domain.TopUpPending)
	if err != nil {
		t.Fatalf("ListTopUpsByStatus: %v", err)
	}
	if len(queue) != 4 || queue[0].Reference != "A1" {
		t.Fatalf("unexpected queue: %+v", queue)
	}
}

func TestHasOpenReference(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	_ = EnsureUser(ctx, db, "u1", "")
	_ = EnsureUser(ctx, db, "u2", "")

	req, err := CreateTopUp(ctx, db, "u1", 100, "SHARED", "")
	if err != nil {
		t.Fatalf("CreateTopUp: %v", err)
	}

	if dup, _ := HasOpenReference(ctx, db, "u1", "SHARED"); !dup {
		t.Fatalf("pending reference should count as open")
	}
	// Other users may reuse the same reference string.
	if dup, _ := HasOpenReference(ctx, db, "u2", "SHARED"); dup {
		t.Fatalf("reference scoping should be per user")
	}

	// Approved requests still block reuse; rejected ones free the reference.
	if err := ResolveTopUp(ctx, db, req.ID, domain.TopUpApproved, ""); err != nil {
		t.Fatalf("ResolveTopUp: %v", err)
	}
	if dup, _ := HasOpenReference(ctx, db, "u1", "SHARED"); !dup {
		t.Fatalf("approved reference should count as open")
	}

	req2, _ := CreateTopUp(ctx, db, "u1", 100, "GONE", "")
	_ = ResolveTopUp(ctx, db, req2.ID, domain.TopUpRejected, "no")
	if dup, _ := HasOpenReference(ctx, db, "u1", "GONE"); dup {
		t.Fatalf("rejected reference should be reusable")
	}
}
