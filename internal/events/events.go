// Package events defines the broadcast hub and the event variants it carries.
//
// Every state change in the engine (wallet credits and debits, top-up
// lifecycle, session start/stop, chat traffic) is published as an Event to
// one or both of two audiences: the owning user's channel and the shared
// operator channel. Events are a tagged variant: Kind selects which payload
// pointer is populated, and exactly one payload is set per event.
package events

import (
	"time"

	"github.com/chattalk/backend/internal/domain"
)

// Kind tags the payload carried by an Event.
type Kind string

const (
	// KindBalanceUpdated reports a new wallet balance after a credit or debit.
	KindBalanceUpdated Kind = "balance_updated"
	// KindBillingTick reports one successful billing deduction.
	KindBillingTick Kind = "billing_tick"
	// KindSessionStarted reports a session transitioning idle → active.
	KindSessionStarted Kind = "session_started"
	// KindSessionStopped reports a session transitioning active → idle,
	// with the stop reason.
	KindSessionStopped Kind = "session_stopped"
	// KindTopUpCreated reports a newly submitted top-up (operator audience).
	KindTopUpCreated Kind = "topup_created"
	// KindTopUpResolved reports an approval or rejection.
	KindTopUpResolved Kind = "topup_resolved"
	// KindChatMessage carries one chat message.
	KindChatMessage Kind = "chat_message"
	// KindChatCleared reports that a session's transcript was wiped.
	KindChatCleared Kind = "chat_cleared"
)

// Event is the single envelope published through the Hub. Kind determines
// which payload field is non-nil.
type Event struct {
	Kind   Kind      `json:"kind"`
	UserID string    `json:"user_id"`
	At     time.Time `json:"at"`

	Balance *BalancePayload `json:"balance,omitempty"`
	Billing *BillingPayload `json:"billing,omitempty"`
	Session *SessionPayload `json:"session,omitempty"`
	TopUp   *TopUpPayload   `json:"topup,omitempty"`
	Chat    *ChatPayload    `json:"chat,omitempty"`
}

// BalancePayload carries the wallet state after a mutation.
type BalancePayload struct {
	Balance int64 `json:"balance"`
	// Delta is positive for credits, negative for debits.
	Delta int64 `json:"delta"`
}

// BillingPayload carries the cursor state after a successful billing tick.
type BillingPayload struct {
	SessionID   string `json:"session_id"`
	UnitCost    int64  `json:"unit_cost"`
	BilledUnits int64  `json:"billed_units"`
	Balance     int64  `json:"balance"`
}

// SessionPayload carries session transition details. Reason is set only on
// session_stopped.
type SessionPayload struct {
	SessionID string            `json:"session_id"`
	Reason    domain.StopReason `json:"reason,omitempty"`
}

// TopUpPayload carries top-up lifecycle details. Reason is set only on
// rejection.
type TopUpPayload struct {
	RequestID string             `json:"request_id"`
	Amount    int64              `json:"amount"`
	Status    domain.TopUpStatus `json:"status"`
	Reference string             `json:"reference"`
	Reason    string             `json:"reason,omitempty"`
}

// ChatPayload carries one message, or the session whose transcript was
// cleared.
type ChatPayload struct {
	SessionID string `json:"session_id"`
	MessageID string `json:"message_id,omitempty"`
	Sender    string `json:"sender,omitempty"`
	Content   string `json:"content,omitempty"`
}
