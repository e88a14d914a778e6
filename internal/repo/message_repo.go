// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for chat messages.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/chattalk/backend/internal/domain"
)

// CreateMessage inserts a message attached to sessionID. The db handle may be
// transaction-bound.
func CreateMessage(db *gorm.DB, sessionID, sender, content string) (*domain.Message, error) {
	m := &domain.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Sender:    sender,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// CountMessages returns the total number of messages within a session.
func CountMessages(db *gorm.DB, sessionID string) (int64, error) {
	var total int64
	err := db.Model(&domain.Message{}).
		Where("session_id = ?", sessionID).
		Count(&total).Error
	return total, err
}

// ListMessagesPage returns a page of messages within a session in
// chronological order (oldest first, transcript order).
func ListMessagesPage(ctx context.Context, db *gorm.DB, sessionID string, offset, limit int) ([]domain.Message, error) {
	var out []domain.Message
	err := db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at asc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// DeleteSessionMessages soft-deletes all messages of a session and returns
// the number of rows affected.
func DeleteSessionMessages(ctx context.Context, db *gorm.DB, sessionID string) (int64, error) {
	res := db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Delete(&domain.Message{})
	return res.RowsAffected, res.Error
}
