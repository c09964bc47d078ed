// Package ledger contains the bank collaborator: an in-memory implementation
// for local runs and tests, and a REST client for a deployed bank service.
// Both uphold the same invariant: at most one SUCCESS transaction exists per
// (order, transaction type) pair, so repeated Pay/Refund calls are no-ops.
package ledger

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type txKey struct {
	orderID string
	txType  domain.TransactionType
}

// MemoryLedger keeps accounts and transactions in memory.
type MemoryLedger struct {
	logger *log.Entry

	mu           sync.Mutex
	balances     map[string]int64
	transactions map[txKey]domain.LedgerTransaction
	byID         map[string]domain.LedgerTransaction
}

// NewMemoryLedger creates an empty in-memory bank.
func NewMemoryLedger(logger *log.Entry) *MemoryLedger {
	if logger == nil {
		logger = log.New().WithField("component", "ledger")
	}
	return &MemoryLedger{
		logger:       logger,
		balances:     make(map[string]int64),
		transactions: make(map[txKey]domain.LedgerTransaction),
		byID:         make(map[string]domain.LedgerTransaction),
	}
}

// Deposit credits an account, creating it when missing. Used for seeding.
func (l *MemoryLedger) Deposit(accountID string, amountMinor int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[accountID] += amountMinor
}

// Balance returns the current balance of an account.
func (l *MemoryLedger) Balance(accountID string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	balance, ok := l.balances[accountID]
	if !ok {
		return 0, domain.ErrAccountNotFound
	}
	return balance, nil
}

// Pay transfers amountMinor from the buyer to the store account. A repeated
// call for the same order returns the already applied transaction.
func (l *MemoryLedger) Pay(orderID, fromAccount, toAccount string, amountMinor int64) (domain.LedgerTransaction, error) {
	if amountMinor < 0 {
		return domain.LedgerTransaction{}, domain.ErrAmountNegative
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := txKey{orderID: orderID, txType: domain.TransactionTypePayment}
	if existing, ok := l.transactions[key]; ok && existing.Status == domain.TransactionStatusSuccess {
		l.logger.WithField("order_id", orderID).Info("payment already applied, returning existing transaction")
		return existing, nil
	}

	fromBalance, ok := l.balances[fromAccount]
	if !ok {
		return domain.LedgerTransaction{}, domain.ErrAccountNotFound
	}
	if _, ok := l.balances[toAccount]; !ok {
		return domain.LedgerTransaction{}, domain.ErrAccountNotFound
	}
	if fromBalance < amountMinor {
		return domain.LedgerTransaction{}, domain.ErrInsufficientFunds
	}

	l.balances[fromAccount] -= amountMinor
	l.balances[toAccount] += amountMinor

	tx := domain.LedgerTransaction{
		TransactionID: uuid.NewString(),
		FromAccount:   fromAccount,
		ToAccount:     toAccount,
		AmountMinor:   amountMinor,
		Type:          domain.TransactionTypePayment,
		Status:        domain.TransactionStatusSuccess,
		OrderID:       orderID,
		CreatedAt:     time.Now().UTC(),
	}
	l.transactions[key] = tx
	l.byID[tx.TransactionID] = tx

	return tx, nil
}

// Refund reverses a previously applied payment. A repeated call for the same
// order returns the already applied refund.
func (l *MemoryLedger) Refund(orderID, originalTransactionID string, amountMinor int64) (domain.LedgerTransaction, error) {
	if amountMinor < 0 {
		return domain.LedgerTransaction{}, domain.ErrAmountNegative
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := txKey{orderID: orderID, txType: domain.TransactionTypeRefund}
	if existing, ok := l.transactions[key]; ok && existing.Status == domain.TransactionStatusSuccess {
		l.logger.WithField("order_id", orderID).Info("refund already applied, returning existing transaction")
		return existing, nil
	}

	original, ok := l.byID[originalTransactionID]
	if !ok {
		return domain.LedgerTransaction{}, fmt.Errorf("%w: original transaction %s not found", domain.ErrRefundFailed, originalTransactionID)
	}

	storeBalance := l.balances[original.ToAccount]
	if storeBalance < amountMinor {
		return domain.LedgerTransaction{}, fmt.Errorf("%w: store account out of funds", domain.ErrRefundFailed)
	}

	l.balances[original.ToAccount] -= amountMinor
	l.balances[original.FromAccount] += amountMinor

	tx := domain.LedgerTransaction{
		TransactionID: uuid.NewString(),
		FromAccount:   original.ToAccount,
		ToAccount:     original.FromAccount,
		AmountMinor:   amountMinor,
		Type:          domain.TransactionTypeRefund,
		Status:        domain.TransactionStatusSuccess,
		OrderID:       orderID,
		CreatedAt:     time.Now().UTC(),
	}
	l.transactions[key] = tx
	l.byID[tx.TransactionID] = tx

	return tx, nil
}

var _ domain.Ledger = (*MemoryLedger)(nil)
