package metric

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP метрики - количество запросов
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Общее количество HTTP запросов",
		},
		[]string{"method", "endpoint", "status"},
	)

	// HTTP метрики - время обработки запросов
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Время обработки HTTP запросов в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)

	// HTTP метрики - количество ошибок
	httpErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Общее количество HTTP ошибок",
		},
		[]string{"method", "endpoint", "status"},
	)

	// WS метрики - количество активных соединений
	wsActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_active_connections",
			Help: "Количество активных WebSocket соединений",
		},
	)

	peerSessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "peer_sessions_active",
			Help: "Количество активных Peer сессий",
		},
	)

	peerSessionTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peer_session_transitions_total",
			Help: "Переходы Peer сессий по состояниям",
		},
		[]string{"state"},
	)

	signalsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signals_sent_total",
			Help: "Отправленные сигнальные сообщения",
		},
		[]string{"type"},
	)

	signalsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signals_received_total",
			Help: "Полученные сигнальные сообщения",
		},
		[]string{"type"},
	)

	signalSendFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "signal_send_failures_total",
			Help: "Потерянные при отправке сигнальные сообщения",
		},
	)

	storeSubscriptionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "store_subscriptions_active",
			Help: "Активные подписки на хранилище",
		},
	)
)

// RecordHTTPMetrics записывает метрики HTTP запроса
func RecordHTTPMetrics(method, endpoint string, status int, duration time.Duration) {
	strStatus := strconv.Itoa(status)

	httpRequestsTotal.WithLabelValues(method, endpoint, strStatus).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint, strStatus).Observe(duration.Seconds())

	// Записываем ошибки (статус >= 400)
	if status >= 400 {
		httpErrorsTotal.WithLabelValues(method, endpoint, strStatus).Inc()
	}
}

func IncrementWSActiveConnections() {
	wsActiveConnections.Inc()
}

func DecrementWSActiveConnections() {
	wsActiveConnections.Dec()
}

func SetPeerSessionsActive(count int) {
	peerSessionsActive.Set(float64(count))
}

func RecordPeerTransition(state string) {
	peerSessionTransitions.WithLabelValues(state).Inc()
}

func RecordSignalSent(signalType string) {
	signalsSent.WithLabelValues(signalType).Inc()
}

func RecordSignalReceived(signalType string) {
	signalsReceived.WithLabelValues(signalType).Inc()
}

func RecordSignalSendFailure() {
	signalSendFailures.Inc()
}

func SetStoreSubscriptionsActive(count int) {
	storeSubscriptionsActive.Set(float64(count))
}
