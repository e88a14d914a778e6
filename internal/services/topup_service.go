// Package services – TopUpService
//
// This file implements the top-up workflow: a client submits a funding
// request attested by an external payment reference, and an operator later
// approves (crediting the wallet exactly once) or rejects it (recording a
// reason, wallet untouched). Requests are terminal once resolved; a second
// resolution attempt is a conflict, never silently accepted.
//
// Concurrency & atomicity:
//   - Resolution runs a status-guarded UPDATE (only rows still pending match)
//     inside one transaction with the wallet credit, so two concurrent
//     resolutions of the same request cannot both take effect.
//   - The whole approval holds the user's wallet lock (shared with
//     WalletService) so the credit is serialized against billing debits.
package services

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/chattalk/backend/internal/domain"
	"github.com/chattalk/backend/internal/events"
	"github.com/chattalk/backend/internal/repo"
)

// defaultRejectReason fills the reason field when an operator rejects without
// giving one.
const defaultRejectReason = "not specified"

// TopUpService implements the funding request lifecycle.
type TopUpService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Hub receives topup_created / topup_resolved / balance_updated events.
	Hub *events.Hub
	// Wallets applies the credit on approval (and lends its per-user lock).
	Wallets *WalletService

	// MinimumRecharge is the smallest accepted top-up amount (minor units).
	MinimumRecharge int64
	// MinReferenceLen is the shortest accepted payment reference.
	MinReferenceLen int
	// RejectReasonMaxLen caps stored rejection reasons by rune length.
	RejectReasonMaxLen int
}

// NewTopUpService constructs a TopUpService with the given limits.
func NewTopUpService(db *gorm.DB, hub *events.Hub, wallets *WalletService, minRecharge int64, minRefLen, reasonMaxLen int) *TopUpService {
	if minRefLen <= 0 {
		minRefLen = 4
	}
	if reasonMaxLen <= 0 {
		reasonMaxLen = 200
	}
	return &TopUpService{
		DB:                 db,
		Hub:                hub,
		Wallets:            wallets,
		MinimumRecharge:    minRecharge,
		MinReferenceLen:    minRefLen,
		RejectReasonMaxLen: reasonMaxLen,
	}
}

// Submit validates and stores a new pending request, then notifies the
// operator audience.
//
// Validation:
//   - amount must be at least MinimumRecharge; otherwise ErrAmountBelowMinimum.
//   - reference must be at least MinReferenceLen runes after trimming;
//     otherwise ErrReferenceTooShort.
//   - a pending or approved request already carrying the same reference for
//     this user yields ErrDuplicateReference.
func (s *TopUpService) Submit(ctx context.Context, userID string, amount int64, reference, note string) (*domain.TopUpRequest, error) {
	tr := otel.Tracer("services/TopUpService")
	ctx, span := tr.Start(ctx, "Submit",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int64("amount", amount),
		),
	)
	defer span.End()

	if amount < s.MinimumRecharge {
		return nil, ErrAmountBelowMinimum
	}
	reference = strings.TrimSpace(reference)
	if utf8.RuneCountInString(reference) < s.MinReferenceLen {
		return nil, ErrReferenceTooShort
	}
	note = strings.TrimSpace(note)

	if err := repo.EnsureUser(ctx, s.DB, userID, ""); err != nil {
		return nil, err
	}
	dup, err := repo.HasOpenReference(ctx, s.DB, userID, reference)
	if err != nil {
		return nil, err
	}
	if dup {
		return nil, ErrDuplicateReference
	}

	req, err := repo.CreateTopUp(ctx, s.DB, userID, amount, reference, note)
	if err != nil {
		return nil, err
	}

	s.Hub.PublishToOperators(events.Event{
		Kind:   events.KindTopUpCreated,
		UserID: userID,
		TopUp: &events.TopUpPayload{
			RequestID: req.ID,
			Amount:    req.Amount,
			Status:    req.Status,
			Reference: req.Reference,
		},
	})
	return req, nil
}

// Approve resolves a pending request and credits the wallet by its amount,
// atomically. A request that is missing yields ErrTopUpNotFound; one that
// already resolved yields ErrAlreadyResolved and leaves the balance alone.
//
// Emits topup_resolved to the owning user and the operator audience, plus a
// balance_updated to the user.
func (s *TopUpService) Approve(ctx context.Context, requestID string) (*domain.TopUpRequest, error) {
	tr := otel.Tracer("services/TopUpService")
	ctx, span := tr.Start(ctx, "Approve",
		trace.WithAttributes(attribute.String("topup.id", requestID)),
	)
	defer span.End()

	req, err := repo.GetTopUp(ctx, s.DB, requestID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrTopUpNotFound
		}
		return nil, err
	}

	// Hold the wallet lock across the whole resolution so the credit is
	// serialized against this user's billing debits.
	unlock := s.Wallets.locks.Lock(req.UserID)
	defer unlock()

	var balance int64
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.ResolveTopUp(ctx, tx, requestID, domain.TopUpApproved, ""); err != nil {
			return err
		}
		b, err := s.Wallets.creditResolved(ctx, tx, req.UserID, req.Amount)
		if err != nil {
			return err
		}
		balance = b
		return nil
	})
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			// The guard matched no row: the request exists but is no longer
			// pending, i.e. a concurrent resolution won.
			return nil, ErrAlreadyResolved
		}
		return nil, err
	}

	req.Status = domain.TopUpApproved
	walletCredits.Inc()

	payload := &events.TopUpPayload{
		RequestID: req.ID,
		Amount:    req.Amount,
		Status:    domain.TopUpApproved,
		Reference: req.Reference,
	}
	s.Hub.PublishToBoth(req.UserID, events.Event{
		Kind:   events.KindTopUpResolved,
		UserID: req.UserID,
		TopUp:  payload,
	})
	s.Wallets.publishBalance(req.UserID, balance, req.Amount)
	return req, nil
}

// Reject resolves a pending request with a reason and no ledger effect.
// The reason is trimmed, truncated to RejectReasonMaxLen runes, and defaulted
// when blank. Missing requests yield ErrTopUpNotFound; already-resolved ones
// yield ErrAlreadyResolved.
//
// Rejection notifies via a transient status event only; no system message is
// persisted.
func (s *TopUpService) Reject(ctx context.Context, requestID, reason string) (*domain.TopUpRequest, error) {
	tr := otel.Tracer("services/TopUpService")
	ctx, span := tr.Start(ctx, "Reject",
		trace.WithAttributes(attribute.String("topup.id", requestID)),
	)
	defer span.End()

	req, err := repo.GetTopUp(ctx, s.DB, requestID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrTopUpNotFound
		}
		return nil, err
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = defaultRejectReason
	}
	if utf8.RuneCountInString(reason) > s.RejectReasonMaxLen {
		reason = string([]rune(reason)[:s.RejectReasonMaxLen])
	}

	if err := repo.ResolveTopUp(ctx, s.DB, requestID, domain.TopUpRejected, reason); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrAlreadyResolved
		}
		return nil, err
	}

	req.Status = domain.TopUpRejected
	req.Reason = reason

	s.Hub.PublishToBoth(req.UserID, events.Event{
		Kind:   events.KindTopUpResolved,
		UserID: req.UserID,
		TopUp: &events.TopUpPayload{
			RequestID: req.ID,
			Amount:    req.Amount,
			Status:    domain.TopUpRejected,
			Reference: req.Reference,
			Reason:    reason,
		},
	})
	return req, nil
}

// ListForUser returns a page of the user's own requests plus the total count.
func (s *TopUpService) ListForUser(ctx context.Context, userID string, page, pageSize int) ([]domain.TopUpRequest, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := repo.CountTopUps(ctx, s.DB, userID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.TopUpRequest{}, 0, nil
	}
	items, err := repo.ListTopUps(ctx, s.DB, userID, offset, pageSize)
	return items, total, err
}

// ListPending returns the operator review queue, oldest first.
func (s *TopUpService) ListPending(ctx context.Context) ([]domain.TopUpRequest, error) {
	return repo.ListTopUpsByStatus(ctx, s.DB, domain.TopUpPending)
}
