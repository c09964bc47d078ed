package ledger

import "github.com/vladislavdragonenkov/storefront/internal/domain"

// MockService — конфигурируемая заглушка Ledger для тестов.
type MockService struct {
	PayResult    domain.LedgerTransaction
	PayErr       error
	RefundResult domain.LedgerTransaction
	RefundErr    error

	PayCalls    int
	RefundCalls int
}

// NewMockService возвращает mock с успешным сценарием по умолчанию.
func NewMockService() *MockService {
	return &MockService{
		PayResult: domain.LedgerTransaction{
			TransactionID: "tx-pay-1",
			Type:          domain.TransactionTypePayment,
			Status:        domain.TransactionStatusSuccess,
		},
		RefundResult: domain.LedgerTransaction{
			TransactionID: "tx-refund-1",
			Type:          domain.TransactionTypeRefund,
			Status:        domain.TransactionStatusSuccess,
		},
	}
}

// Pay возвращает заранее настроенный результат и считает вызовы.
func (m *MockService) Pay(orderID, fromAccount, toAccount string, amountMinor int64) (domain.LedgerTransaction, error) {
	m.PayCalls++
	if m.PayErr != nil {
		return domain.LedgerTransaction{}, m.PayErr
	}
	result := m.PayResult
	result.OrderID = orderID
	result.FromAccount = fromAccount
	result.ToAccount = toAccount
	result.AmountMinor = amountMinor
	return result, nil
}

// Refund возвращает настроенный результат и считает вызовы.
func (m *MockService) Refund(orderID, originalTransactionID string, amountMinor int64) (domain.LedgerTransaction, error) {
	m.RefundCalls++
	if m.RefundErr != nil {
		return domain.LedgerTransaction{}, m.RefundErr
	}
	result := m.RefundResult
	result.OrderID = orderID
	result.AmountMinor = amountMinor
	return result, nil
}

var _ domain.Ledger = (*MockService)(nil)
