package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SagaMetrics содержит метрики саги и messaging-слоя.
type SagaMetrics struct {
	// Счётчики операций
	sagaStarted     prometheus.Counter
	sagaCompleted   prometheus.Counter
	sagaCompensated prometheus.Counter
	sagaFailed      prometheus.Counter
	sagaRefunded    prometheus.Counter

	// Результаты компенсирующих шагов
	compensationSteps *prometheus.CounterVec

	// Исходы отправки запросов доставки
	dispatchOutcomes *prometheus.CounterVec

	// Гистограммы времени выполнения
	sagaDuration prometheus.Histogram
	stepDuration *prometheus.HistogramVec

	// Счётчик событий timeline
	timelineEvents prometheus.Counter

	// Gauge для активных саг
	activeSagas prometheus.Gauge
}

// Метки исходов отправки запроса доставки.
const (
	DispatchOutcomeAck      = "ack"
	DispatchOutcomeFallback = "fallback"
	DispatchOutcomeFailed   = "failed"
	DispatchOutcomeSkipped  = "skipped"
)

// NewSagaMetrics создаёт новый экземпляр метрик saga.
func NewSagaMetrics() *SagaMetrics {
	return newSagaMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newSagaMetricsWithRegisterer(registerer prometheus.Registerer) *SagaMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &SagaMetrics{
		sagaStarted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "store_saga_started_total",
			Help: "Total number of order creation sagas started",
		}),
		sagaCompleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "store_saga_completed_total",
			Help: "Total number of sagas completed successfully",
		}),
		sagaCompensated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "store_saga_compensated_total",
			Help: "Total number of sagas fully compensated after failure",
		}),
		sagaFailed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "store_saga_failed_total",
			Help: "Total number of sagas with failed compensation requiring manual fix",
		}),
		sagaRefunded: registerCounter(registerer, prometheus.CounterOpts{
			Name: "store_saga_refunded_total",
			Help: "Total number of orders refunded",
		}),
		compensationSteps: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "store_saga_compensation_steps_total",
			Help: "Compensating actions by step and result",
		}, []string{"step", "result"}),
		dispatchOutcomes: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "store_delivery_dispatch_total",
			Help: "Delivery request dispatch attempts by outcome",
		}, []string{"outcome"}),
		sagaDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "store_saga_duration_seconds",
			Help:    "Duration of order creation sagas in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		stepDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "store_saga_step_duration_seconds",
			Help:    "Duration of individual saga steps in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"step"}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "store_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		activeSagas: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "store_active_sagas",
			Help: "Number of currently active sagas",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// RecordSagaStarted увеличивает счётчик запущенных саг.
func (m *SagaMetrics) RecordSagaStarted() {
	m.sagaStarted.Inc()
	m.RecordSagaInFlightStarted()
}

// RecordSagaCompleted увеличивает счётчик завершённых саг.
func (m *SagaMetrics) RecordSagaCompleted() {
	m.sagaCompleted.Inc()
}

// RecordSagaCompensated увеличивает счётчик компенсированных саг.
func (m *SagaMetrics) RecordSagaCompensated() {
	m.sagaCompensated.Inc()
}

// RecordSagaFailed увеличивает счётчик саг с неудавшейся компенсацией.
func (m *SagaMetrics) RecordSagaFailed() {
	m.sagaFailed.Inc()
}

// RecordSagaRefunded увеличивает счётчик возвратов.
func (m *SagaMetrics) RecordSagaRefunded() {
	m.sagaRefunded.Inc()
}

// RecordCompensationStep фиксирует результат компенсирующего шага.
func (m *SagaMetrics) RecordCompensationStep(step string, success bool) {
	result := "ok"
	if !success {
		result = "error"
	}
	m.compensationSteps.WithLabelValues(step, result).Inc()
}

// RecordDispatchOutcome фиксирует исход отправки запроса доставки.
func (m *SagaMetrics) RecordDispatchOutcome(outcome string) {
	m.dispatchOutcomes.WithLabelValues(outcome).Inc()
}

// RecordSagaInFlightStarted увеличивает количество активных саг.
func (m *SagaMetrics) RecordSagaInFlightStarted() {
	m.activeSagas.Inc()
}

// RecordSagaInFlightFinished уменьшает количество активных саг.
func (m *SagaMetrics) RecordSagaInFlightFinished() {
	m.activeSagas.Dec()
}

// RecordSagaDuration записывает время выполнения саги.
func (m *SagaMetrics) RecordSagaDuration(duration time.Duration) {
	m.sagaDuration.Observe(duration.Seconds())
}

// RecordStepDuration записывает время выполнения шага саги.
func (m *SagaMetrics) RecordStepDuration(step string, duration time.Duration) {
	m.stepDuration.WithLabelValues(step).Observe(duration.Seconds())
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *SagaMetrics) RecordTimelineEvent() {
	m.timelineEvents.Inc()
}
