// Package services – SessionService
//
// This file implements the session state machine (idle → active → idle) and
// the billing clock that meters active sessions. Each user has at most one
// active session; each active session has exactly one live billing timer, a
// goroutine owned by this service. Timer creation and teardown happen only
// inside the per-user serialized start/stop transition, so a timer can never
// outlive its session or run beside a twin.
//
// The billing tick and an external stop race safely: the tick takes the same
// per-user lock as stop and re-checks the timer's stop channel before
// debiting, so a tick that loses the race performs no mutation; a tick that
// wins runs to completion before the stop applies. Exhaustion tears the
// timer down from inside the tick itself via the already-locked path, so
// there is no self-deadlock and no further tick after teardown begins.
package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/chattalk/backend/internal/domain"
	"github.com/chattalk/backend/internal/events"
	"github.com/chattalk/backend/internal/repo"
)

// billingTimer is the ephemeral clock for one active session. It exists iff
// its session is active. Only the owning goroutine touches billedUnits.
type billingTimer struct {
	userID    string
	sessionID string
	// stop is closed exactly once, inside stopLocked, to cancel the run loop.
	stop        chan struct{}
	billedUnits int64
}

// SessionService owns session transitions and the per-session billing clocks.
type SessionService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Hub receives session and billing events.
	Hub *events.Hub
	// Wallets is debited one unit per billing period.
	Wallets *WalletService

	// UnitCost is the amount deducted per billing period (minor units).
	UnitCost int64
	// Period is the billing interval (60s in production, shorter in tests).
	Period time.Duration
	// Welcome, when non-empty, is recorded as an admin message against every
	// freshly started session.
	Welcome string

	// locks serializes start/stop per user.
	locks *userLocks
	// mu guards timers; entries are created/removed only while the owning
	// user's session lock is held.
	mu     sync.Mutex
	timers map[string]*billingTimer
}

// NewSessionService constructs a SessionService. period must be positive.
func NewSessionService(db *gorm.DB, hub *events.Hub, wallets *WalletService, unitCost int64, period time.Duration) *SessionService {
	return &SessionService{
		DB:       db,
		Hub:      hub,
		Wallets:  wallets,
		UnitCost: unitCost,
		Period:   period,
		locks:    newUserLocks(),
		timers:   make(map[string]*billingTimer),
	}
}

// ActiveSession returns the live session id for userID, if any. The registry
// of live timers is the authority on activeness within this process.
func (s *SessionService) ActiveSession(userID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.timers[userID]
	if !ok {
		return "", false
	}
	return t.sessionID, true
}

// Start transitions userID from idle to active.
//
// Semantics:
//   - Requires balance ≥ UnitCost; otherwise ErrInsufficientFunds and no
//     session nor timer is created.
//   - Idempotent: if a session is already active its row is returned and no
//     second timer is spawned.
//   - A fresh start always creates a new session row; ended sessions are
//     never reused.
//
// Emits session_started to the owning user and the operator audience.
func (s *SessionService) Start(ctx context.Context, userID string) (*domain.ChatSession, error) {
	tr := otel.Tracer("services/SessionService")
	ctx, span := tr.Start(ctx, "Start",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	unlock := s.locks.Lock(userID)
	defer unlock()

	if t := s.timer(userID); t != nil {
		return repo.GetSession(ctx, s.DB, t.sessionID)
	}

	bal, err := s.Wallets.Balance(ctx, userID)
	if err != nil {
		return nil, err
	}
	if bal < s.UnitCost {
		return nil, ErrInsufficientFunds
	}

	sess, err := repo.CreateSession(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}

	if s.Welcome != "" {
		if _, err := repo.CreateMessage(s.DB.WithContext(ctx), sess.ID, domain.SenderAdmin, s.Welcome); err != nil {
			log.Warn().Err(err).Str("session_id", sess.ID).Msg("welcome message not recorded")
		}
	}

	t := &billingTimer{userID: userID, sessionID: sess.ID, stop: make(chan struct{})}
	s.setTimer(userID, t)
	activeSessions.Inc()
	go s.run(t)

	s.Hub.PublishToBoth(userID, events.Event{
		Kind:    events.KindSessionStarted,
		UserID:  userID,
		Session: &events.SessionPayload{SessionID: sess.ID},
	})
	return sess, nil
}

// Stop transitions userID from active to idle with the given reason. It is
// an idempotent no-op when the user is already idle. The billing timer is
// cancelled before Stop returns: no tick from it will observe or mutate the
// ledger afterwards.
//
// Emits session_stopped (with reason) to the owning user and the operator
// audience.
func (s *SessionService) Stop(ctx context.Context, userID string, reason domain.StopReason) error {
	tr := otel.Tracer("services/SessionService")
	ctx, span := tr.Start(ctx, "Stop",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("reason", string(reason)),
		),
	)
	defer span.End()

	unlock := s.locks.Lock(userID)
	defer unlock()
	return s.stopLocked(ctx, userID, reason)
}

// stopLocked performs the active → idle transition. The caller holds the
// user's session lock; the billing tick calls this directly on exhaustion.
func (s *SessionService) stopLocked(ctx context.Context, userID string, reason domain.StopReason) error {
	t := s.timer(userID)
	if t == nil {
		return nil
	}
	s.clearTimer(userID)
	close(t.stop)
	activeSessions.Dec()

	if err := repo.StopSession(ctx, s.DB, t.sessionID, reason); err != nil && !errors.Is(err, repo.ErrNotFound) {
		// The timer is already gone, so billing has stopped either way; the
		// row is repaired by the boot sweep if this write never lands.
		log.Error().Err(err).Str("session_id", t.sessionID).Msg("session row not marked stopped")
	}

	s.Hub.PublishToBoth(userID, events.Event{
		Kind:    events.KindSessionStopped,
		UserID:  userID,
		Session: &events.SessionPayload{SessionID: t.sessionID, Reason: reason},
	})
	return nil
}

// Clear wipes the transcript of the user's most recent session. Active/idle
// state is untouched. Callable by the owning user or by an operator acting
// on their behalf. Users with no session history get ErrNoSessionHistory.
//
// Emits chat_cleared to the owning user and the operator audience.
func (s *SessionService) Clear(ctx context.Context, userID string) error {
	tr := otel.Tracer("services/SessionService")
	ctx, span := tr.Start(ctx, "Clear",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	sess, err := repo.LatestSession(ctx, s.DB, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrNoSessionHistory
		}
		return err
	}
	if _, err := repo.DeleteSessionMessages(ctx, s.DB, sess.ID); err != nil {
		return err
	}
	s.Hub.PublishToBoth(userID, events.Event{
		Kind:   events.KindChatCleared,
		UserID: userID,
		Chat:   &events.ChatPayload{SessionID: sess.ID},
	})
	return nil
}

// Shutdown stops every live timer, used on graceful process exit. Sessions
// are closed with the server_restart reason so the audit trail distinguishes
// them from client- or billing-driven stops.
func (s *SessionService) Shutdown(ctx context.Context) {
	s.mu.Lock()
	users := make([]string, 0, len(s.timers))
	for uid := range s.timers {
		users = append(users, uid)
	}
	s.mu.Unlock()

	for _, uid := range users {
		_ = s.Stop(ctx, uid, domain.StopServerRestart)
	}
}

// run is the billing clock loop: one goroutine per active session. It exits
// when the stop channel closes, whether from an external stop or from its
// own exhaustion tick.
func (s *SessionService) run(t *billingTimer) {
	ticker := time.NewTicker(s.Period)
	defer ticker.Stop()
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			if !s.tick(t) {
				return
			}
		}
	}
}

// tick performs one billing deduction. It reports whether the timer should
// keep running.
//
// The per-user session lock makes the debit-or-stop decision atomic against
// concurrent stops: after acquiring it, a closed stop channel means a stop
// already won and this tick must not touch the ledger.
func (s *SessionService) tick(t *billingTimer) bool {
	unlock := s.locks.Lock(t.userID)
	defer unlock()

	select {
	case <-t.stop:
		return false
	default:
	}

	ctx := context.Background()
	bal, err := s.Wallets.Debit(ctx, t.userID, s.UnitCost)
	if err != nil {
		if errors.Is(err, ErrInsufficientFunds) {
			billingTicks.WithLabelValues("exhausted").Inc()
			_ = s.stopLocked(ctx, t.userID, domain.StopBalanceExhausted)
			return false
		}
		// Storage failure: leave the session running and retry on the next
		// tick rather than kill the process or the session.
		billingTicks.WithLabelValues("error").Inc()
		log.Warn().Err(err).Str("user_id", t.userID).Msg("billing tick failed; will retry")
		return true
	}

	billingTicks.WithLabelValues("billed").Inc()
	t.billedUnits++
	if err := repo.AdvanceBillingCursor(ctx, s.DB, t.sessionID); err != nil {
		log.Warn().Err(err).Str("session_id", t.sessionID).Msg("billing cursor not advanced")
	}

	s.Hub.PublishToUser(t.userID, events.Event{
		Kind:   events.KindBillingTick,
		UserID: t.userID,
		Billing: &events.BillingPayload{
			SessionID:   t.sessionID,
			UnitCost:    s.UnitCost,
			BilledUnits: t.billedUnits,
			Balance:     bal,
		},
	})
	return true
}

// timer returns the live timer for userID, or nil.
func (s *SessionService) timer(userID string) *billingTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timers[userID]
}

func (s *SessionService) setTimer(userID string, t *billingTimer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timers[userID] = t
}

func (s *SessionService) clearTimer(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.timers, userID)
}
