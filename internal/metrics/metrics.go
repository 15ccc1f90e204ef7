// Package metrics экспортирует счётчики netcode сервера в Prometheus
// и периодически снимает системные показатели процесса.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/annel0/mmo-netcode/internal/logging"
)

// NetcodeMetrics метрики игрового сервера. Нулевой указатель
// безопасен: все методы тогда ничего не делают, сервер без метрик
// остаётся работоспособным.
type NetcodeMetrics struct {
	connects      prometheus.Counter
	reconnects    prometheus.Counter
	disconnects   prometheus.Counter
	timeouts      prometheus.Counter
	inputs        prometheus.Counter
	snapshots     prometheus.Counter
	decodeErrors  prometheus.Counter
	snapshotBytes prometheus.Histogram
	activePlayers prometheus.Gauge
	recentRecords prometheus.Gauge
}

// NewNetcodeMetrics создаёт и регистрирует метрики в дефолтном регистре
func NewNetcodeMetrics() *NetcodeMetrics {
	m := &NetcodeMetrics{
		connects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "netcode",
			Name:      "connects_total",
			Help:      "Число принятых подключений.",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "netcode",
			Name:      "reconnects_total",
			Help:      "Число успешных переподключений.",
		}),
		disconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "netcode",
			Name:      "disconnects_total",
			Help:      "Число явных отключений.",
		}),
		timeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "netcode",
			Name:      "timeouts_total",
			Help:      "Число выселений по таймауту.",
		}),
		inputs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "netcode",
			Name:      "inputs_total",
			Help:      "Число обработанных команд перемещения.",
		}),
		snapshots: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "netcode",
			Name:      "snapshots_sent_total",
			Help:      "Число отправленных снапшотов.",
		}),
		decodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "netcode",
			Name:      "decode_errors_total",
			Help:      "Число датаграмм, не разобранных протоколом.",
		}),
		snapshotBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "netcode",
			Name:      "snapshot_bytes",
			Help:      "Размер закодированного снапшота в байтах.",
			Buckets:   []float64{64, 128, 256, 512, 1024, 2048, 4096},
		}),
		activePlayers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "netcode",
			Name:      "active_players",
			Help:      "Текущее число живых сессий.",
		}),
		recentRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "netcode",
			Name:      "recent_records",
			Help:      "Число записей, ожидающих переподключения.",
		}),
	}

	prometheus.MustRegister(
		m.connects, m.reconnects, m.disconnects, m.timeouts,
		m.inputs, m.snapshots, m.decodeErrors, m.snapshotBytes,
		m.activePlayers, m.recentRecords,
	)
	return m
}

// IncConnect учитывает принятое подключение
func (m *NetcodeMetrics) IncConnect() {
	if m == nil {
		return
	}
	m.connects.Inc()
}

// IncReconnect учитывает успешное переподключение
func (m *NetcodeMetrics) IncReconnect() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

// IncDisconnect учитывает явное отключение
func (m *NetcodeMetrics) IncDisconnect() {
	if m == nil {
		return
	}
	m.disconnects.Inc()
}

// IncTimeout учитывает выселение по таймауту
func (m *NetcodeMetrics) IncTimeout() {
	if m == nil {
		return
	}
	m.timeouts.Inc()
}

// IncInput учитывает обработанную команду перемещения
func (m *NetcodeMetrics) IncInput() {
	if m == nil {
		return
	}
	m.inputs.Inc()
}

// IncSnapshot учитывает отправленный снапшот заданного размера
func (m *NetcodeMetrics) IncSnapshot(bytes int) {
	if m == nil {
		return
	}
	m.snapshots.Inc()
	m.snapshotBytes.Observe(float64(bytes))
}

// IncDecodeError учитывает неразобранную датаграмму
func (m *NetcodeMetrics) IncDecodeError() {
	if m == nil {
		return
	}
	m.decodeErrors.Inc()
}

// SetActivePlayers обновляет число живых сессий
func (m *NetcodeMetrics) SetActivePlayers(n int) {
	if m == nil {
		return
	}
	m.activePlayers.Set(float64(n))
}

// SetRecentRecords обновляет число записей переподключения
func (m *NetcodeMetrics) SetRecentRecords(n int) {
	if m == nil {
		return
	}
	m.recentRecords.Set(float64(n))
}

// StartServer поднимает HTTP endpoint /metrics на указанном порту.
// Останавливается через Shutdown возвращённого сервера.
func StartServer(port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		logging.Info("📈 Prometheus метрики: http://localhost:%d/metrics", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("Ошибка сервера метрик: %v", err)
		}
	}()

	return srv
}
