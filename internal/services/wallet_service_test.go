package services

import (
	"context"
	"errors"
	"testing"

	"github.com/chattalk/backend/internal/events"
)

func TestWalletService_BalanceCreatesZeroWallet(t *testing.T) {
	hub := events.NewHub(8)
	defer hub.Close()
	svc := NewWalletService(newTestDB(t), hub)

	bal, err := svc.Balance(context.Background(), "u1")
	if err != nil || bal != 0 {
		t.Fatalf("Balance = (%d, %v), want (0, nil)", bal, err)
	}
}

func TestWalletService_CreditAndDebit(t *testing.T) {
	hub := events.NewHub(8)
	defer hub.Close()
	svc := NewWalletService(newTestDB(t), hub)
	ctx := context.Background()
	sub := hub.SubscribeUser("u1")
	defer sub.Close()

	bal, err := svc.Credit(ctx, "u1", 100)
	if err != nil || bal != 100 {
		t.Fatalf("Credit = (%d, %v), want (100, nil)", bal, err)
	}
	ev := awaitKind(t, sub, events.KindBalanceUpdated)
	if ev.Balance == nil || ev.Balance.Balance != 100 || ev.Balance.Delta != 100 {
		t.Fatalf("credit event payload: %+v", ev.Balance)
	}

	bal, err = svc.Debit(ctx, "u1", 40)
	if err != nil || bal != 60 {
		t.Fatalf("Debit = (%d, %v), want (60, nil)", bal, err)
	}
	ev = awaitKind(t, sub, events.KindBalanceUpdated)
	if ev.Balance == nil || ev.Balance.Balance != 60 || ev.Balance.Delta != -40 {
		t.Fatalf("debit event payload: %+v", ev.Balance)
	}
}

func TestWalletService_RejectsNonPositiveAmounts(t *testing.T) {
	hub := events.NewHub(8)
	defer hub.Close()
	svc := NewWalletService(newTestDB(t), hub)
	ctx := context.Background()

	for _, amount := range []int64{0, -5} {
		if _, err := svc.Credit(ctx, "u1", amount); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("Credit(%d) = %v, want ErrInvalidAmount", amount, err)
		}
		if _, err := svc.Debit(ctx, "u1", amount); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("Debit(%d) = %v, want ErrInvalidAmount", amount, err)
		}
	}
}

func TestWalletService_DebitInsufficient(t *testing.T) {
	hub := events.NewHub(8)
	defer hub.Close()
	svc := NewWalletService(newTestDB(t), hub)
	ctx := context.Background()

	if _, err := svc.Credit(ctx, "u1", 30); err != nil {
		t.Fatalf("Credit: %v", err)
	}
	sub := hub.SubscribeUser("u1")
	defer sub.Close()

	if _, err := svc.Debit(ctx, "u1", 31); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	// Failed debits leave the balance alone and publish nothing.
	expectNoEvent(t, sub)
	bal, err := svc.Balance(ctx, "u1")
	if err != nil || bal != 30 {
		t.Fatalf("Balance after failed debit = (%d, %v), want (30, nil)", bal, err)
	}
}
