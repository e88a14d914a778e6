// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for chat sessions.
//
// Session rows are retained after stop; a fresh start creates a new row and
// never reuses an ended one. The session service is responsible for the
// at-most-one-active invariant; the queries here only read and flip rows.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/chattalk/backend/internal/domain"
)

// CreateSession inserts a new active session for userID and returns it.
func CreateSession(ctx context.Context, db *gorm.DB, userID string) (*domain.ChatSession, error) {
	s := &domain.ChatSession{
		ID:        uuid.NewString(),
		UserID:    userID,
		Active:    true,
		StartedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(s).Error; err != nil {
		return nil, err
	}
	return s, nil
}

// GetSession fetches a session by id, or ErrNotFound.
func GetSession(ctx context.Context, db *gorm.DB, id string) (*domain.ChatSession, error) {
	var s domain.ChatSession
	if err := db.WithContext(ctx).Where("id = ?", id).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// LatestSession returns the most recently started session for userID,
// active or not, or ErrNotFound when the user has no session history.
func LatestSession(ctx context.Context, db *gorm.DB, userID string) (*domain.ChatSession, error) {
	var s domain.ChatSession
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("started_at desc").
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// StopSession marks an active session as stopped with the given reason.
// If no row was updated the session was already stopped; that is reported
// as ErrNotFound and is harmless to the idempotent stop path.
func StopSession(ctx context.Context, db *gorm.DB, id string, reason domain.StopReason) error {
	now := time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.ChatSession{}).
		Where("id = ? AND active = ?", id, true).
		Updates(map[string]any{
			"active":      false,
			"stopped_at":  now,
			"stop_reason": reason,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// AdvanceBillingCursor records one more successfully billed unit on the
// session row.
func AdvanceBillingCursor(ctx context.Context, db *gorm.DB, id string) error {
	return db.WithContext(ctx).
		Model(&domain.ChatSession{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"billed_units":   gorm.Expr("billed_units + 1"),
			"last_billed_at": time.Now().UTC(),
		}).Error
}

// CloseStaleSessions stops every session still marked active, used at boot to
// clean up rows left behind by a previous process. Returns how many rows were
// swept.
func CloseStaleSessions(ctx context.Context, db *gorm.DB) (int64, error) {
	now := time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.ChatSession{}).
		Where("active = ?", true).
		Updates(map[string]any{
			"active":      false,
			"stopped_at":  now,
			"stop_reason": domain.StopServerRestart,
		})
	return res.RowsAffected, res.Error
}
