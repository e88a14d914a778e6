// Package services – WalletService
//
// This file implements the wallet ledger: per-user balances in integer minor
// currency units, mutated only through Credit and Debit. All mutations on a
// given user's wallet are serialized per user (see userlock.go) so a top-up
// approval and a billing tick can never interleave unsafely; two different
// users' wallets never contend.
//
// The repository layer adds a second line of defense: Debit is a conditional
// UPDATE that cannot take a balance below zero even if a caller bypasses the
// lock.
package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/chattalk/backend/internal/events"
	"github.com/chattalk/backend/internal/repo"
)

// WalletService owns all balance reads and mutations.
type WalletService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Hub receives balance_updated events on every successful mutation.
	Hub *events.Hub

	// locks serializes mutations per user. TopUpService reuses this table so
	// an approval credit and a billing debit on the same user take turns.
	locks *userLocks
}

// NewWalletService constructs a WalletService publishing to hub.
func NewWalletService(db *gorm.DB, hub *events.Hub) *WalletService {
	return &WalletService{DB: db, Hub: hub, locks: newUserLocks()}
}

// Balance returns the current balance for userID, creating the user and a
// zero wallet on first contact.
func (s *WalletService) Balance(ctx context.Context, userID string) (int64, error) {
	if err := repo.EnsureUser(ctx, s.DB, userID, ""); err != nil {
		return 0, err
	}
	return repo.GetBalance(ctx, s.DB, userID)
}

// Credit adds amount to userID's wallet and returns the new balance.
// Emits balance_updated to the user's channel.
func (s *WalletService) Credit(ctx context.Context, userID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	tr := otel.Tracer("services/WalletService")
	ctx, span := tr.Start(ctx, "Credit",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int64("amount", amount),
		),
	)
	defer span.End()

	unlock := s.locks.Lock(userID)
	defer unlock()

	if err := repo.EnsureUser(ctx, s.DB, userID, ""); err != nil {
		return 0, err
	}
	bal, err := repo.CreditWallet(ctx, s.DB, userID, amount)
	if err != nil {
		return 0, err
	}
	walletCredits.Inc()
	s.publishBalance(userID, bal, amount)
	return bal, nil
}

// Debit subtracts amount from userID's wallet and returns the new balance.
// When the wallet cannot cover the amount the balance is left unchanged and
// ErrInsufficientFunds is returned; the billing clock uses that to terminate
// the session.
//
// Emits balance_updated to the user's channel on success only.
func (s *WalletService) Debit(ctx context.Context, userID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	tr := otel.Tracer("services/WalletService")
	ctx, span := tr.Start(ctx, "Debit",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int64("amount", amount),
		),
	)
	defer span.End()

	unlock := s.locks.Lock(userID)
	defer unlock()

	bal, err := repo.DebitWallet(ctx, s.DB, userID, amount)
	if err != nil {
		if errors.Is(err, repo.ErrInsufficientBalance) {
			return 0, ErrInsufficientFunds
		}
		return 0, err
	}
	walletDebits.Inc()
	s.publishBalance(userID, bal, -amount)
	return bal, nil
}

// creditResolved applies the wallet side of a top-up approval: the caller
// holds the user's wallet lock and passes the transaction the status flip
// runs in, so the credit is atomic with the resolution and serialized
// against billing debits.
func (s *WalletService) creditResolved(ctx context.Context, tx *gorm.DB, userID string, amount int64) (int64, error) {
	if err := repo.EnsureUser(ctx, tx, userID, ""); err != nil {
		return 0, err
	}
	return repo.CreditWallet(ctx, tx, userID, amount)
}

// publishBalance emits a balance_updated event to the owning user.
func (s *WalletService) publishBalance(userID string, balance, delta int64) {
	s.Hub.PublishToUser(userID, events.Event{
		Kind:    events.KindBalanceUpdated,
		UserID:  userID,
		Balance: &events.BalancePayload{Balance: balance, Delta: delta},
	})
}
