package notify

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Batcher буферизует уведомления и отправляет их в нижележащий sink
// пакетами. Снимает давление с горячего пути саги: вызов Notify никогда
// не блокируется на брокере.
type Batcher struct {
	sink   domain.NotificationSink
	logger *log.Entry

	batchSize      int
	flushTimeout   time.Duration
	maxParallelOps int

	notifyCh chan RecordedNotification
	stopCh   chan struct{}
	wg       sync.WaitGroup

	batch []RecordedNotification
	mu    sync.Mutex
}

// NewBatcher создаёт батчер поверх sink.
func NewBatcher(sink domain.NotificationSink, logger *log.Entry) *Batcher {
	if logger == nil {
		logger = log.New().WithField("component", "notify-batcher")
	}

	return &Batcher{
		sink:           sink,
		logger:         logger,
		batchSize:      10,
		flushTimeout:   100 * time.Millisecond,
		maxParallelOps: 4,
		notifyCh:       make(chan RecordedNotification, 100),
		stopCh:         make(chan struct{}),
	}
}

// Start запускает фоновую обработку.
func (b *Batcher) Start(ctx context.Context) {
	b.wg.Add(1)
	go b.loop(ctx)
	b.logger.Info("notification batcher started")
}

// Stop останавливает батчер, дожидаясь отправки накопленного.
func (b *Batcher) Stop() {
	close(b.stopCh)
	b.wg.Wait()
	b.logger.Info("notification batcher stopped")
}

// Notify ставит уведомление в очередь. При переполненном канале
// отправка выполняется синхронно, чтобы ничего не потерять.
func (b *Batcher) Notify(orderID, kind string) error {
	select {
	case b.notifyCh <- RecordedNotification{OrderID: orderID, Kind: kind}:
	default:
		b.logger.WithField("order_id", orderID).Warn("notify channel full, sending synchronously")
		b.deliver(RecordedNotification{OrderID: orderID, Kind: kind})
	}
	return nil
}

func (b *Batcher) loop(ctx context.Context) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.flushTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.drain()
			b.flush()
			return
		case <-b.stopCh:
			b.drain()
			b.flush()
			return
		case n := <-b.notifyCh:
			b.mu.Lock()
			b.batch = append(b.batch, n)
			shouldFlush := len(b.batch) >= b.batchSize
			b.mu.Unlock()

			if shouldFlush {
				b.flush()
			}
		case <-ticker.C:
			b.flush()
		}
	}
}

// drain забирает из канала всё, что успело встать в очередь, но ещё
// не попало в batch. Без этого Stop терял бы хвост очереди.
func (b *Batcher) drain() {
	for {
		select {
		case n := <-b.notifyCh:
			b.mu.Lock()
			b.batch = append(b.batch, n)
			b.mu.Unlock()
		default:
			return
		}
	}
}

func (b *Batcher) flush() {
	b.mu.Lock()
	batch := b.batch
	b.batch = nil
	b.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	b.logger.WithField("batch_size", len(batch)).Debug("flushing notification batch")

	limit := b.maxParallelOps
	if limit <= 0 {
		limit = 1
	}
	if limit > len(batch) {
		limit = len(batch)
	}

	semaphore := make(chan struct{}, limit)
	var wg sync.WaitGroup
	for idx := range batch {
		wg.Add(1)
		semaphore <- struct{}{}
		go func(n RecordedNotification) {
			defer wg.Done()
			defer func() { <-semaphore }()
			b.deliver(n)
		}(batch[idx])
	}
	wg.Wait()
}

func (b *Batcher) deliver(n RecordedNotification) {
	if err := b.sink.Notify(n.OrderID, n.Kind); err != nil {
		b.logger.WithError(err).WithFields(log.Fields{
			"order_id": n.OrderID,
			"kind":     n.Kind,
		}).Error("notification delivery failed")
	}
}

var _ domain.NotificationSink = (*Batcher)(nil)
