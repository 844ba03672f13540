package worker

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.uber.org/zap"
)

// Metrics - счетчики и гистограммы пайплайна синтеза.
type Metrics struct {
	TasksProcessed   *prometheus.CounterVec
	ChunkAttempts    *prometheus.CounterVec
	ChunkDuration    *prometheus.HistogramVec
	PipelineDuration prometheus.Histogram
	BillingSettles   *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics регистрирует метрики воркера в отдельном реестре.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		TasksProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tts_worker_tasks_processed_total",
			Help: "Число обработанных задач синтеза по итоговому статусу.",
		}, []string{"outcome"}),
		ChunkAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tts_worker_chunk_attempts_total",
			Help: "Число вызовов провайдера по чанкам (включая повторы).",
		}, []string{"provider", "outcome"}),
		ChunkDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tts_worker_chunk_duration_seconds",
			Help:    "Длительность синтеза одного чанка.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
		PipelineDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tts_worker_pipeline_duration_seconds",
			Help:    "Полная длительность обработки генерации.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		BillingSettles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tts_worker_billing_settles_total",
			Help: "Число списаний кредитов по результату (applied/duplicate/failed).",
		}, []string{"outcome"}),
		registry: reg,
	}

	reg.MustRegister(m.TasksProcessed, m.ChunkAttempts, m.ChunkDuration, m.PipelineDuration, m.BillingSettles)
	return m
}

// Registry возвращает реестр для отдачи через promhttp.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// StartPushLoop периодически пушит метрики в Pushgateway, если он настроен.
// Для долгоживущего воркера push дополняет scrape: метрики доезжают даже
// когда воркер за NAT и не доступен Prometheus-у напрямую.
func (m *Metrics) StartPushLoop(ctx context.Context, gatewayURL, jobName string, interval time.Duration, logger *zap.Logger) {
	if gatewayURL == "" {
		return
	}
	pusher := push.New(gatewayURL, jobName).Gatherer(m.registry)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				// Финальный push, чтобы не потерять последние значения
				if err := pusher.Push(); err != nil {
					logger.Warn("Финальный push метрик не удался", zap.Error(err))
				}
				return
			case <-ticker.C:
				if err := pusher.Push(); err != nil {
					logger.Warn("Push метрик в Pushgateway не удался", zap.Error(err))
				}
			}
		}
	}()
}
