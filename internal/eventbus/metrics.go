package eventbus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsExporter периодически переносит Stats шины в Prometheus-метрики.
// Экспортер не делает предположений о конкретной реализации шины
// и опирается только на EventBus.Metrics.
type MetricsExporter struct {
	bus      EventBus
	interval time.Duration
	quit     chan struct{}
	done     chan struct{}
	prev     Stats

	published prometheus.Counter
	consumed  prometheus.Counter
	dropped   prometheus.Counter
	inflight  prometheus.Gauge
}

// NewMetricsExporter создаёт экспортер и регистрирует метрики в reg.
// Обновление запускается вызовом Start.
func NewMetricsExporter(bus EventBus, reg prometheus.Registerer) (*MetricsExporter, error) {
	me := &MetricsExporter{
		bus:      bus,
		interval: time.Second,
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		published: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eventbus",
			Name:      "messages_published_total",
			Help:      "Общее число опубликованных сообщений.",
		}),
		consumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eventbus",
			Name:      "messages_consumed_total",
			Help:      "Общее число доставленных сообщений подписчикам.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eventbus",
			Name:      "messages_dropped_total",
			Help:      "Сообщений, отброшенных из-за ошибок или ограничения back-pressure.",
		}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "eventbus",
			Name:      "messages_inflight",
			Help:      "Количество сообщений, находящихся в очереди (не доставленных).",
		}),
	}

	for _, c := range []prometheus.Collector{me.published, me.consumed, me.dropped, me.inflight} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return me, nil
}

// Start запускает фоновое обновление. Метод неблокирующий.
func (m *MetricsExporter) Start() {
	go m.loop()
}

// Stop останавливает обновление метрик и дожидается завершения цикла.
func (m *MetricsExporter) Stop() {
	close(m.quit)
	<-m.done
}

// Collect переносит текущие Stats в метрики. Вызывается из цикла и из тестов.
func (m *MetricsExporter) Collect() {
	stats := m.bus.Metrics()

	// Counter умеет только расти, поэтому прибавляем дельту к прошлому значению.
	if d := stats.Published - m.prev.Published; d > 0 {
		m.published.Add(float64(d))
	}
	if d := stats.Consumed - m.prev.Consumed; d > 0 {
		m.consumed.Add(float64(d))
	}
	if d := stats.Dropped - m.prev.Dropped; d > 0 {
		m.dropped.Add(float64(d))
	}
	m.inflight.Set(float64(stats.InFlight))

	m.prev = stats
}

func (m *MetricsExporter) loop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	defer close(m.done)

	for {
		select {
		case <-ticker.C:
			m.Collect()
		case <-m.quit:
			m.Collect()
			return
		}
	}
}
