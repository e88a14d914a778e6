// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for top-up
// requests.
//
// Resolution uses a status-guarded UPDATE (status = 'pending' in the WHERE
// clause) so that two concurrent resolutions of the same request cannot both
// succeed: the second one matches no row and the caller maps that to an
// already-resolved conflict.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/chattalk/backend/internal/domain"
)

// CreateTopUp inserts a new pending top-up request and returns it.
func CreateTopUp(ctx context.Context, db *gorm.DB, userID string, amount int64, reference, note string) (*domain.TopUpRequest, error) {
	t := &domain.TopUpRequest{
		ID:        uuid.NewString(),
		UserID:    userID,
		Amount:    amount,
		Reference: reference,
		Note:      note,
		Status:    domain.TopUpPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(t).Error; err != nil {
		return nil, err
	}
	return t, nil
}

// GetTopUp fetches a top-up request by id, or ErrNotFound.
func GetTopUp(ctx context.Context, db *gorm.DB, id string) (*domain.TopUpRequest, error) {
	var t domain.TopUpRequest
	if err := db.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTopUps returns a page of the user's top-up requests, newest first.
func ListTopUps(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.TopUpRequest, error) {
	var out []domain.TopUpRequest
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountTopUps returns the total number of top-up requests owned by userID.
func CountTopUps(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.TopUpRequest{}).
		Where("user_id = ?", userID).
		Count(&total).Error
	return total, err
}

// ListTopUpsByStatus returns all requests in the given status, oldest first,
// so the operator queue is processed in submission order.
func ListTopUpsByStatus(ctx context.Context, db *gorm.DB, status domain.TopUpStatus) ([]domain.TopUpRequest, error) {
	var out []domain.TopUpRequest
	err := db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at asc").
		Find(&out).Error
	return out, err
}

// ResolveTopUp moves a pending request to the given terminal status, setting
// the rejection reason when present. It updates only rows still pending; if
// no row was updated the request is either missing or already resolved, and
// ErrNotFound is returned for the caller to disambiguate via GetTopUp.
func ResolveTopUp(ctx context.Context, db *gorm.DB, id string, status domain.TopUpStatus, reason string) error {
	res := db.WithContext(ctx).
		Model(&domain.TopUpRequest{}).
		Where("id = ? AND status = ?", id, domain.TopUpPending).
		Updates(map[string]any{
			"status":     status,
			"reason":     reason,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// HasOpenReference reports whether the user already has a pending or approved
// request carrying the same payment reference. Used to refuse duplicate
// submissions of the same attestation code.
func HasOpenReference(ctx context.Context, db *gorm.DB, userID, reference string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.TopUpRequest{}).
		Where("user_id = ? AND reference = ? AND status IN ?", userID, reference,
			[]domain.TopUpStatus{domain.TopUpPending, domain.TopUpApproved}).
		Count(&n).Error
	return n > 0, err
}
