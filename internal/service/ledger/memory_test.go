package ledger_test

import (
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/ledger"
)

func newBank(t *testing.T) *ledger.MemoryLedger {
	t.Helper()

	bank := ledger.NewMemoryLedger(nil)
	bank.Deposit("acc-user", 1000)
	bank.Deposit("acc-store", 0)
	return bank
}

func TestMemoryLedger_Pay(t *testing.T) {
	bank := newBank(t)

	tx, err := bank.Pay("order-1", "acc-user", "acc-store", 300)
	if err != nil {
		t.Fatalf("pay failed: %v", err)
	}
	if tx.Status != domain.TransactionStatusSuccess {
		t.Fatalf("unexpected status: %s", tx.Status)
	}
	if tx.Type != domain.TransactionTypePayment {
		t.Fatalf("unexpected type: %s", tx.Type)
	}

	userBalance, _ := bank.Balance("acc-user")
	storeBalance, _ := bank.Balance("acc-store")
	if userBalance != 700 || storeBalance != 300 {
		t.Fatalf("unexpected balances: user=%d store=%d", userBalance, storeBalance)
	}
}

func TestMemoryLedger_PayIdempotent(t *testing.T) {
	bank := newBank(t)

	first, err := bank.Pay("order-1", "acc-user", "acc-store", 300)
	if err != nil {
		t.Fatalf("pay failed: %v", err)
	}
	second, err := bank.Pay("order-1", "acc-user", "acc-store", 300)
	if err != nil {
		t.Fatalf("repeated pay failed: %v", err)
	}
	if first.TransactionID != second.TransactionID {
		t.Fatalf("expected same transaction, got %s and %s", first.TransactionID, second.TransactionID)
	}

	// Баланс списан ровно один раз.
	userBalance, _ := bank.Balance("acc-user")
	if userBalance != 700 {
		t.Fatalf("expected single debit, balance=%d", userBalance)
	}
}

func TestMemoryLedger_PayInsufficientFunds(t *testing.T) {
	bank := newBank(t)

	if _, err := bank.Pay("order-1", "acc-user", "acc-store", 5000); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	userBalance, _ := bank.Balance("acc-user")
	if userBalance != 1000 {
		t.Fatalf("failed payment must not move money, balance=%d", userBalance)
	}
}

func TestMemoryLedger_PayUnknownAccount(t *testing.T) {
	bank := newBank(t)

	if _, err := bank.Pay("order-1", "acc-missing", "acc-store", 100); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestMemoryLedger_Refund(t *testing.T) {
	bank := newBank(t)

	payment, err := bank.Pay("order-1", "acc-user", "acc-store", 300)
	if err != nil {
		t.Fatalf("pay failed: %v", err)
	}

	refund, err := bank.Refund("order-1", payment.TransactionID, 300)
	if err != nil {
		t.Fatalf("refund failed: %v", err)
	}
	if refund.Type != domain.TransactionTypeRefund {
		t.Fatalf("unexpected type: %s", refund.Type)
	}

	userBalance, _ := bank.Balance("acc-user")
	storeBalance, _ := bank.Balance("acc-store")
	if userBalance != 1000 || storeBalance != 0 {
		t.Fatalf("unexpected balances after refund: user=%d store=%d", userBalance, storeBalance)
	}
}

func TestMemoryLedger_RefundIdempotent(t *testing.T) {
	bank := newBank(t)

	payment, err := bank.Pay("order-1", "acc-user", "acc-store", 300)
	if err != nil {
		t.Fatalf("pay failed: %v", err)
	}

	first, err := bank.Refund("order-1", payment.TransactionID, 300)
	if err != nil {
		t.Fatalf("refund failed: %v", err)
	}
	second, err := bank.Refund("order-1", payment.TransactionID, 300)
	if err != nil {
		t.Fatalf("repeated refund failed: %v", err)
	}
	if first.TransactionID != second.TransactionID {
		t.Fatalf("expected same refund transaction, got %s and %s", first.TransactionID, second.TransactionID)
	}

	userBalance, _ := bank.Balance("acc-user")
	if userBalance != 1000 {
		t.Fatalf("expected single credit, balance=%d", userBalance)
	}
}

func TestMemoryLedger_RefundUnknownOriginal(t *testing.T) {
	bank := newBank(t)

	if _, err := bank.Refund("order-1", "tx-missing", 100); !errors.Is(err, domain.ErrRefundFailed) {
		t.Fatalf("expected ErrRefundFailed, got %v", err)
	}
}
