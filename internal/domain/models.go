// Package domain defines the persistence models for users, wallets, top-up
// requests, chat sessions, and messages. These types are mapped with GORM and
// form the core data layer of the metered chat backend.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// TopUpStatus enumerates the lifecycle states of a TopUpRequest.
// A request starts as pending and resolves exactly once to approved or
// rejected; resolved requests are terminal.
type TopUpStatus string

const (
	// TopUpPending marks a request awaiting operator review.
	TopUpPending TopUpStatus = "pending"
	// TopUpApproved marks a request whose amount has been credited.
	TopUpApproved TopUpStatus = "approved"
	// TopUpRejected marks a request declined by an operator; Reason is set.
	TopUpRejected TopUpStatus = "rejected"
)

// StopReason enumerates why an active chat session ended. It is persisted on
// the session row for audit and carried in the session_stopped event.
type StopReason string

const (
	// StopClientRequested is set when the owning client ended the session.
	StopClientRequested StopReason = "client_requested"
	// StopAdminCleared is set when an operator force-ended the session.
	StopAdminCleared StopReason = "admin_cleared"
	// StopBalanceExhausted is set when a billing tick found insufficient funds.
	StopBalanceExhausted StopReason = "balance_exhausted"
	// StopServerRestart is set by the boot sweep for rows left active by a
	// previous process. Audit only; no event is emitted for these.
	StopServerRestart StopReason = "server_restart"
)

// Message senders.
const (
	// SenderClient marks a message sent by the paying client.
	SenderClient = "client"
	// SenderAdmin marks a message sent by an operator.
	SenderAdmin = "admin"
)

// User is an identity row. Created on first contact and immutable afterwards;
// the display name is cosmetic. Each user owns exactly one Wallet.
type User struct {
	ID        string    `json:"id"         gorm:"type:varchar(64);primaryKey"`
	Name      string    `json:"name"       gorm:"type:varchar(255);not null;default:''"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Wallet holds a user's balance in integer minor currency units. There is
// exactly one wallet per user (user_id is the primary key). The balance is
// mutated only through the wallet service's credit/debit operations and is
// never allowed to go negative.
type Wallet struct {
	UserID    string    `json:"user_id"   gorm:"type:varchar(64);primaryKey"`
	Balance   int64     `json:"balance"   gorm:"not null;default:0;check:balance >= 0"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// User is the owning identity; wallets are removed with their user.
	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Wallet.
func (Wallet) TableName() string { return "wallets" }

// TopUpRequest is a client-submitted funding request attested by an external
// payment reference (e.g. a UTR code). It resolves at most once: approval
// credits the wallet by Amount, rejection records a reason and leaves the
// wallet untouched.
type TopUpRequest struct {
	ID        string      `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID    string      `json:"user_id"    gorm:"type:varchar(64);not null;index:idx_user_topups"`
	Amount    int64       `json:"amount"     gorm:"not null;check:amount > 0"`
	Reference string      `json:"reference"  gorm:"type:varchar(128);not null"`
	Note      string      `json:"note,omitempty" gorm:"type:varchar(255);not null;default:''"`
	Status    TopUpStatus `json:"status"     gorm:"type:varchar(16);not null;default:'pending';index;check:status IN ('pending','approved','rejected')"`
	Reason    string      `json:"reason,omitempty" gorm:"type:varchar(255);not null;default:''"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`

	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for TopUpRequest.
func (TopUpRequest) TableName() string { return "topup_requests" }

// Resolved reports whether the request has reached a terminal status.
func (t *TopUpRequest) Resolved() bool { return t.Status != TopUpPending }

// ChatSession is one bounded period of metered chat. At most one session per
// user is active at any instant. Rows are retained after stop for history;
// a fresh start always creates a new row.
//
// BilledUnits and LastBilledAt form the billing cursor: how many billing
// units have been deducted for this session and when the last deduction
// happened.
type ChatSession struct {
	ID           string     `json:"id"          gorm:"type:char(36);primaryKey"`
	UserID       string     `json:"user_id"     gorm:"type:varchar(64);not null;index:idx_user_sessions"`
	Active       bool       `json:"active"      gorm:"not null;default:false;index"`
	StartedAt    time.Time  `json:"started_at"`
	StoppedAt    *time.Time `json:"stopped_at,omitempty"`
	StopReason   StopReason `json:"stop_reason,omitempty" gorm:"type:varchar(32);not null;default:''"`
	BilledUnits  int64      `json:"billed_units" gorm:"not null;default:0"`
	LastBilledAt *time.Time `json:"last_billed_at,omitempty"`

	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ChatSession.
func (ChatSession) TableName() string { return "chat_sessions" }

// Message is a single utterance, always attached to a session. Sender is
// either "client" or "admin". Admin messages may be recorded against the most
// recent session even after it has gone idle.
type Message struct {
	ID        string         `json:"id"         gorm:"type:char(36);primaryKey"`
	SessionID string         `json:"session_id" gorm:"type:char(36);not null;index:idx_session_msgs,priority:1"`
	Sender    string         `json:"sender"     gorm:"type:varchar(16);not null;check:sender IN ('client','admin')"`
	Content   string         `json:"content"    gorm:"type:text;not null"`
	CreatedAt time.Time      `json:"created_at" gorm:"index:idx_session_msgs,priority:2"`
	DeletedAt gorm.DeletedAt `json:"-"          gorm:"index"`

	// Session is the parent conversation; messages are cascade-deleted with it.
	Session ChatSession `json:"-" gorm:"foreignKey:SessionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }
