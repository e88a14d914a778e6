// Package services – MessageService
//
// This file implements the message router. Client messages are accepted only
// while the sender's session is active and always land in that session;
// admin messages are routed to the user's most recent session whether or not
// it is still active, so operators can answer against history. Both sides
// share the same validation: non-empty after trimming, capped by rune count.
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

// MessageService validates, persists and fans out chat messages.
type MessageService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Hub receives chat_message events.
	Hub *events.Hub
	// Sessions answers "which session does this message belong to".
	Sessions *SessionService

	// MaxRunes caps message content length, counted in runes.
	MaxRunes int
}

// NewMessageService constructs a MessageService. maxRunes falls back to 500
// when non-positive.
func NewMessageService(db *gorm.DB, hub *events.Hub, sessions *SessionService, maxRunes int) *MessageService {
	if maxRunes <= 0 {
		maxRunes = 500
	}
	return &MessageService{DB: db, Hub: hub, Sessions: sessions, MaxRunes: maxRunes}
}

// SendFromClient records a message by the session owner. The user must have
// an active session; otherwise ErrSessionNotActive and nothing is persisted.
//
// Emits chat_message to the owning user and the operator audience.
func (s *MessageService) SendFromClient(ctx context.Context, userID, content string) (*domain.Message, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "SendFromClient",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	content, err := s.validate(content)
	if err != nil {
		return nil, err
	}

	sessionID, ok := s.Sessions.ActiveSession(userID)
	if !ok {
		return nil, ErrSessionNotActive
	}

	msg, err := repo.CreateMessage(s.DB.WithContext(ctx), sessionID, domain.SenderClient, content)
	if err != nil {
		return nil, err
	}
	s.publish(userID, msg)
	return msg, nil
}

// SendFromAdmin records an operator message addressed to userID. It attaches
// to the user's most recent session, active or not; a user with no session
// history yields ErrNoSessionHistory.
//
// Emits chat_message to the owning user and the operator audience.
func (s *MessageService) SendFromAdmin(ctx context.Context, userID, content string) (*domain.Message, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "SendFromAdmin",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	content, err := s.validate(content)
	if err != nil {
		return nil, err
	}

	// Prefer the live session when one exists; fall back to history.
	sessionID, ok := s.Sessions.ActiveSession(userID)
	if !ok {
		sess, err := repo.LatestSession(ctx, s.DB, userID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil, ErrNoSessionHistory
			}
			return nil, err
		}
		sessionID = sess.ID
	}

	msg, err := repo.CreateMessage(s.DB.WithContext(ctx), sessionID, domain.SenderAdmin, content)
	if err != nil {
		return nil, err
	}
	s.publish(userID, msg)
	return msg, nil
}

// Transcript returns a page of the user's most recent session transcript in
// chronological order, plus the total message count. A user with no session
// history yields ErrNoSessionHistory.
func (s *MessageService) Transcript(ctx context.Context, userID string, page, pageSize int) ([]domain.Message, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 50
	}

	sess, err := repo.LatestSession(ctx, s.DB, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, 0, ErrNoSessionHistory
		}
		return nil, 0, err
	}

	total, err := repo.CountMessages(s.DB.WithContext(ctx), sess.ID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Message{}, 0, nil
	}
	items, err := repo.ListMessagesPage(ctx, s.DB, sess.ID, (page-1)*pageSize, pageSize)
	return items, total, err
}

// validate trims content and enforces the emptiness and length rules shared
// by both sender kinds.
func (s *MessageService) validate(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", ErrEmptyMessage
	}
	if utf8.RuneCountInString(content) > s.MaxRunes {
		return "", ErrMessageTooLong
	}
	return content, nil
}

func (s *MessageService) publish(userID string, msg *domain.Message) {
	s.Hub.PublishToBoth(userID, events.Event{
		Kind:   events.KindChatMessage,
		UserID: userID,
		Chat: &events.ChatPayload{
			SessionID: msg.SessionID,
			MessageID: msg.ID,
			Sender:    msg.Sender,
			Content:   msg.Content,
		},
	})
}
