// Package notify отвечает за уведомления пользователей о событиях заказа.
// Уведомления — fire-and-forget: сбой отправки логируется и никогда не
// превращается в ошибку вызывающей операции.
package notify

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// LogSink пишет уведомления в лог. Используется в локальных запусках
// и как запасной sink, когда брокер недоступен.
type LogSink struct {
	logger *log.Entry
}

// NewLogSink создаёт лог-sink.
func NewLogSink(logger *log.Entry) *LogSink {
	if logger == nil {
		logger = log.New().WithField("component", "notify")
	}
	return &LogSink{logger: logger}
}

// Notify логирует уведомление.
func (s *LogSink) Notify(orderID, kind string) error {
	s.logger.WithFields(log.Fields{
		"order_id": orderID,
		"kind":     kind,
	}).Info("user notification")
	return nil
}

// Recorder запоминает уведомления. Только для тестов.
type Recorder struct {
	mu    sync.Mutex
	Calls []RecordedNotification
	Err   error
}

// RecordedNotification — одно зафиксированное уведомление.
type RecordedNotification struct {
	OrderID string
	Kind    string
}

// NewRecorder создаёт пустой recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Notify запоминает вызов и возвращает настроенную ошибку.
func (r *Recorder) Notify(orderID, kind string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls = append(r.Calls, RecordedNotification{OrderID: orderID, Kind: kind})
	return r.Err
}

// Recorded возвращает копию зафиксированных уведомлений.
func (r *Recorder) Recorded() []RecordedNotification {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]RecordedNotification, len(r.Calls))
	copy(result, r.Calls)
	return result
}

var (
	_ domain.NotificationSink = (*LogSink)(nil)
	_ domain.NotificationSink = (*Recorder)(nil)
)
