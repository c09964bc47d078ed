package domain

import "time"

// TransactionType различает списание и возврат средств.
type TransactionType string

const (
	TransactionTypePayment TransactionType = "PAYMENT"
	TransactionTypeRefund  TransactionType = "REFUND"
)

// TransactionStatus описывает состояние банковской транзакции.
type TransactionStatus string

const (
	TransactionStatusPending TransactionStatus = "PENDING"
	TransactionStatusSuccess TransactionStatus = "SUCCESS"
	TransactionStatusFailed  TransactionStatus = "FAILED"
)

// LedgerTransaction — транзакция, которой владеет банковский коллаборатор.
// Ядро потребляет инвариант: существует не более одной SUCCESS-транзакции
// на пару (OrderID, Type); уже существующая SUCCESS трактуется как
// применённая операция и возвращается как есть вместо создания дубликата.
type LedgerTransaction struct {
	TransactionID string
	FromAccount   string
	ToAccount     string
	AmountMinor   int64
	Type          TransactionType
	Status        TransactionStatus
	OrderID       string
	CreatedAt     time.Time
}
