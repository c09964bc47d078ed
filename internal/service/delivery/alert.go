package delivery

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
)

// AlertSender delivers a request synchronously when the broker path fails.
type AlertSender interface {
	SendDeliveryRequest(req *kafka.DeliveryRequest) error
}

// AlertClient is the REST fallback against the delivery collaborator's
// alerting endpoint. Any non-2xx response or transport error is reported
// as domain.ErrAlertFallbackFailed.
type AlertClient struct {
	baseURL string
	http    *http.Client
	logger  *log.Entry
}

// NewAlertClient creates a fallback client for the given base URL.
func NewAlertClient(baseURL string, logger *log.Entry) *AlertClient {
	if logger == nil {
		logger = log.New().WithField("component", "alert-client")
	}

	return &AlertClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 5 * time.Second},
		logger:  logger,
	}
}

// SendDeliveryRequest posts the delivery request to /api/v1/alerts.
func (c *AlertClient) SendDeliveryRequest(req *kafka.DeliveryRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("%w: marshal alert: %v", domain.ErrAlertFallbackFailed, err)
	}

	resp, err := c.http.Post(c.baseURL+"/api/v1/alerts", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrAlertFallbackFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: alert endpoint returned %d", domain.ErrAlertFallbackFailed, resp.StatusCode)
	}

	c.logger.WithFields(log.Fields{
		"order_id":   req.OrderID,
		"message_id": req.MessageID,
	}).Info("Delivery request sent via REST fallback")

	return nil
}

var _ AlertSender = (*AlertClient)(nil)
