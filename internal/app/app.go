package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/fsm"
	healthcheck "github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/delivery"
	"github.com/vladislavdragonenkov/storefront/internal/service/idempotency"
	"github.com/vladislavdragonenkov/storefront/internal/service/inventory"
	"github.com/vladislavdragonenkov/storefront/internal/service/ledger"
	"github.com/vladislavdragonenkov/storefront/internal/service/notify"
	"github.com/vladislavdragonenkov/storefront/internal/service/saga"
	"github.com/vladislavdragonenkov/storefront/internal/service/users"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

const pingTimeout = 2 * time.Second

// App — собранный сервис: оркестратор, consumers и операционный HTTP-сервер.
// Транспортный слой (HTTP/RPC для приёма заказов) остаётся за пределами
// модуля; встраивающий код получает Orchestrator и Users для своей обвязки.
type App struct {
	Orchestrator saga.Orchestrator
	Users        *users.Directory
	Inventory    domain.InventoryService
	Stocks       domain.StockRepository

	cfg        Config
	deps       runtimeDependencies
	msg        *messaging
	dispatcher *delivery.Dispatcher
	batcher    *notify.Batcher
	cleanup    *idempotency.CleanupWorker
	health     *healthcheck.Handler
	logger     *log.Entry
}

// New собирает приложение по конфигурации.
func New(ctx context.Context, cfg Config) (*App, error) {
	logger := log.WithField("component", "app")

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	msg, err := initMessaging(cfg, logger)
	if err != nil {
		logger.WithError(err).Warn("kafka unavailable, continuing in degraded mode")
		msg = nil
	}

	sagaMetrics := metrics.NewSagaMetrics()

	var ledgerSvc domain.Ledger
	if cfg.LedgerBaseURL != "" {
		ledgerSvc = ledger.NewClient(cfg.LedgerBaseURL, logger.WithField("component", "ledger"))
	} else {
		ledgerSvc = ledger.NewMemoryLedger(logger.WithField("component", "ledger"))
	}

	directory := users.NewDirectory()
	inventorySvc := inventory.NewEngine(deps.stocks, logger.WithField("component", "inventory"))

	var sink domain.NotificationSink
	if msg != nil {
		sink = notify.NewKafkaSink(msg.events, logger.WithField("component", "notify"))
	} else {
		sink = notify.NewLogSink(logger.WithField("component", "notify"))
	}
	batcher := notify.NewBatcher(sink, logger.WithField("component", "notify-batcher"))

	var confirming *kafka.ConfirmingProducer
	if msg != nil {
		confirming = msg.confirming
	}
	alerts := delivery.NewAlertClient(cfg.AlertBaseURL, logger.WithField("component", "delivery-alert"))
	dispatcher := delivery.NewDispatcher(
		confirming,
		deps.orders,
		deps.timelineRepo,
		alerts,
		sagaMetrics,
		logger.WithField("component", "delivery-dispatcher"),
	)

	orchestrator := saga.NewOrchestrator(
		deps.sagas,
		deps.orders,
		deps.timelineRepo,
		inventorySvc,
		ledgerSvc,
		directory,
		dispatcher,
		batcher,
		cfg.StoreAccountID,
		logger.WithField("component", "saga"),
	)

	if msg != nil {
		if err := registerConsumers(cfg, msg, deps, ledgerSvc, batcher, sagaMetrics, logger); err != nil {
			msg.close(logger)
			if deps.closeFn != nil {
				_ = deps.closeFn()
			}
			return nil, err
		}
	}

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	if deps.storageChecker != nil {
		healthHandler.RegisterChecker("storage", deps.storageChecker)
	}
	if msg != nil {
		healthHandler.RegisterChecker("kafka", healthcheck.NewBrokerChecker("kafka", msg.confirming.Healthy))
	}

	cleanup := idempotency.NewCleanupWorker(
		deps.idempotencyRepo,
		idempotency.WithLogger(logger.WithField("component", "idempotency-cleanup")),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
		idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
	)

	return &App{
		Orchestrator: orchestrator,
		Users:        directory,
		Inventory:    inventorySvc,
		Stocks:       deps.stocks,
		cfg:          cfg,
		deps:         deps,
		msg:          msg,
		dispatcher:   dispatcher,
		batcher:      batcher,
		cleanup:      cleanup,
		health:       healthHandler,
		logger:       logger,
	}, nil
}

// registerConsumers подключает обработчики топиков доставки и их DLQ.
func registerConsumers(
	cfg Config,
	msg *messaging,
	deps runtimeDependencies,
	ledgerSvc domain.Ledger,
	sink domain.NotificationSink,
	sagaMetrics *metrics.SagaMetrics,
	logger *log.Entry,
) error {
	machine := fsm.NewDeliveryStateMachine()

	updateHandler := delivery.NewUpdateHandler(
		deps.orders,
		deps.idempotencyRepo,
		machine,
		ledgerSvc,
		sink,
		deps.timelineRepo,
		sagaMetrics,
		logger.WithField("component", "delivery-update-handler"),
	)
	if err := msg.addConsumer(cfg, []string{kafka.TopicDeliveryUpdate}, updateHandler.Handle, true); err != nil {
		return err
	}

	requestDLQ := delivery.NewRequestDLQHandler(
		sink,
		deps.timelineRepo,
		logger.WithField("component", "delivery-request-dlq"),
	)
	if err := msg.addConsumer(cfg, []string{kafka.TopicDeliveryRequestDLQ}, requestDLQ.Handle, false); err != nil {
		return err
	}

	updateDLQ := delivery.NewUpdateDLQHandler(
		deps.orders,
		machine,
		ledgerSvc,
		sink,
		logger.WithField("component", "delivery-update-dlq"),
	)
	return msg.addConsumer(cfg, []string{kafka.TopicDeliveryUpdateDLQ}, updateDLQ.Handle, false)
}

// Run запускает фоновые контуры и блокируется до отмены контекста.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.batcher.Start(runCtx)
	go a.cleanup.Run(runCtx)

	for _, consumer := range a.consumers() {
		c := consumer
		go func() {
			if err := c.Start(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.WithError(err).Error("kafka consumer stopped with error")
			}
		}()
	}

	metricsSrv := startMetricsServer(runCtx, a.cfg.MetricsAddr, a.logger, a.health)

	<-ctx.Done()
	a.logger.Info("получен сигнал остановки, останавливаем сервис")
	cancel()

	a.shutdown(metricsSrv)
	return ctx.Err()
}

func (a *App) consumers() []*kafka.Consumer {
	if a.msg == nil {
		return nil
	}
	return a.msg.consumers
}

// shutdown останавливает компоненты в порядке, обратном запуску: сначала
// входящие consumers, затем отложенные отправки, затем producer'ы и база.
func (a *App) shutdown(metricsSrv *http.Server) {
	a.msg.close(a.logger)
	a.dispatcher.Wait()
	a.batcher.Stop()
	shutdownHTTP(metricsSrv, a.logger)

	if a.deps.closeFn != nil {
		if err := a.deps.closeFn(); err != nil {
			a.logger.WithError(err).Warn("failed to close storage")
		}
	}
}

// Run — собрать приложение и работать до отмены контекста.
func Run(ctx context.Context, cfg Config) error {
	application, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	return application.Run(ctx)
}
