// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for users and
// wallets.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - DebitWallet returns ErrInsufficientBalance when the conditional update
//     matches no row because the balance would go negative. The balance row
//     is left untouched in that case.
//   - Missing records surface as ErrNotFound (gorm.ErrRecordNotFound).
//   - On other DB errors the raw gorm error is propagated.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/chattalk/backend/internal/domain"
)

// ErrInsufficientBalance is returned by DebitWallet when the debit would
// drive the balance negative. Distinguishable from ErrNotFound so callers
// can trigger session termination rather than treat it as a missing row.
var ErrInsufficientBalance = errors.New("insufficient wallet balance")

// EnsureUser inserts the user and its zero-balance wallet if either is
// missing. Existing rows are left untouched (users are immutable after
// creation).
func EnsureUser(ctx context.Context, db *gorm.DB, userID, name string) error {
	now := time.Now().UTC()
	u := &domain.User{ID: userID, Name: name, CreatedAt: now}
	if err := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(u).Error; err != nil {
		return err
	}
	w := &domain.Wallet{UserID: userID, Balance: 0, CreatedAt: now}
	return db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(w).Error
}

// GetWallet fetches a user's wallet row, or ErrNotFound if the user has
// never been seen.
func GetWallet(ctx context.Context, db *gorm.DB, userID string) (*domain.Wallet, error) {
	var w domain.Wallet
	if err := db.WithContext(ctx).Where("user_id = ?", userID).First(&w).Error; err != nil {
		return nil, err
	}
	return &w, nil
}

// GetBalance returns the wallet balance for userID, or ErrNotFound.
func GetBalance(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	w, err := GetWallet(ctx, db, userID)
	if err != nil {
		return 0, err
	}
	return w.Balance, nil
}

// CreditWallet adds amount to the wallet balance and returns the new balance.
// The update is a single relative UPDATE, so it composes with transactions
// and never loses concurrent increments.
func CreditWallet(ctx context.Context, db *gorm.DB, userID string, amount int64) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Wallet{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"balance":    gorm.Expr("balance + ?", amount),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, ErrNotFound
	}
	return GetBalance(ctx, db, userID)
}

// DebitWallet subtracts amount from the wallet balance and returns the new
// balance. The WHERE clause guards against overdraft: if the balance is below
// amount no row matches, the balance is unchanged, and ErrInsufficientBalance
// is returned. A missing wallet also reports ErrInsufficientBalance; a wallet
// that was never funded cannot cover a debit either way.
func DebitWallet(ctx context.Context, db *gorm.DB, userID string, amount int64) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Wallet{}).
		Where("user_id = ? AND balance >= ?", userID, amount).
		Updates(map[string]any{
			"balance":    gorm.Expr("balance - ?", amount),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, ErrInsufficientBalance
	}
	return GetBalance(ctx, db, userID)
}
