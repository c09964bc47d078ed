package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const defaultRequestTimeout = 5 * time.Second

// Client talks to the bank collaborator over its JSON API.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *log.Entry
}

// NewClient creates a bank client. baseURL has no trailing slash,
// e.g. http://bank:8090.
func NewClient(baseURL string, logger *log.Entry) *Client {
	if logger == nil {
		logger = log.New().WithField("component", "ledger_client")
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: defaultRequestTimeout},
		logger:  logger,
	}
}

type paymentRequest struct {
	OrderID     string `json:"order_id"`
	FromAccount string `json:"from_account"`
	ToAccount   string `json:"to_account"`
	AmountMinor int64  `json:"amount_minor"`
}

type refundRequest struct {
	OrderID               string `json:"order_id"`
	OriginalTransactionID string `json:"original_transaction_id"`
	AmountMinor           int64  `json:"amount_minor"`
}

type transactionResponse struct {
	TransactionID string `json:"transaction_id"`
	FromAccount   string `json:"from_account"`
	ToAccount     string `json:"to_account"`
	AmountMinor   int64  `json:"amount_minor"`
	Type          string `json:"type"`
	Status        string `json:"status"`
	OrderID       string `json:"order_id"`
}

// Pay posts a payment request. The bank applies it at most once per order.
func (c *Client) Pay(orderID, fromAccount, toAccount string, amountMinor int64) (domain.LedgerTransaction, error) {
	req := paymentRequest{
		OrderID:     orderID,
		FromAccount: fromAccount,
		ToAccount:   toAccount,
		AmountMinor: amountMinor,
	}

	tx, err := c.post("/api/v1/payments", req, domain.ErrPaymentFailed)
	if err != nil {
		return domain.LedgerTransaction{}, err
	}
	return tx, nil
}

// Refund posts a refund request referencing the original payment.
func (c *Client) Refund(orderID, originalTransactionID string, amountMinor int64) (domain.LedgerTransaction, error) {
	req := refundRequest{
		OrderID:               orderID,
		OriginalTransactionID: originalTransactionID,
		AmountMinor:           amountMinor,
	}

	tx, err := c.post("/api/v1/refunds", req, domain.ErrRefundFailed)
	if err != nil {
		return domain.LedgerTransaction{}, err
	}
	return tx, nil
}

func (c *Client) post(path string, payload any, opErr error) (domain.LedgerTransaction, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return domain.LedgerTransaction{}, fmt.Errorf("marshal request: %w", err)
	}

	resp, err := c.http.Post(c.baseURL+path, "application/json", bytes.NewReader(body))
	if err != nil {
		c.logger.WithError(err).WithField("path", path).Error("bank request failed")
		return domain.LedgerTransaction{}, fmt.Errorf("%w: %v", opErr, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
	case http.StatusPaymentRequired:
		return domain.LedgerTransaction{}, domain.ErrInsufficientFunds
	case http.StatusNotFound:
		return domain.LedgerTransaction{}, domain.ErrAccountNotFound
	default:
		return domain.LedgerTransaction{}, fmt.Errorf("%w: bank returned status %d", opErr, resp.StatusCode)
	}

	var tr transactionResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return domain.LedgerTransaction{}, fmt.Errorf("decode response: %w", err)
	}

	status := domain.TransactionStatus(tr.Status)
	if status != domain.TransactionStatusSuccess {
		return domain.LedgerTransaction{}, fmt.Errorf("%w: transaction status %s", opErr, tr.Status)
	}

	return domain.LedgerTransaction{
		TransactionID: tr.TransactionID,
		FromAccount:   tr.FromAccount,
		ToAccount:     tr.ToAccount,
		AmountMinor:   tr.AmountMinor,
		Type:          domain.TransactionType(tr.Type),
		Status:        status,
		OrderID:       tr.OrderID,
	}, nil
}

var _ domain.Ledger = (*Client)(nil)
