package metrics

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/annel0/mmo-netcode/internal/logging"
)

// SystemMonitor периодически снимает показатели процесса
// (CPU, память, горутины) и публикует их в Prometheus.
type SystemMonitor struct {
	startTime time.Time
	interval  time.Duration

	cpuPercent prometheus.Gauge
	heapMB     prometheus.Gauge
	goroutines prometheus.Gauge

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSystemMonitor создаёт монитор с заданным интервалом опроса
func NewSystemMonitor(interval time.Duration) *SystemMonitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}

	m := &SystemMonitor{
		startTime: time.Now(),
		interval:  interval,
		cpuPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "netcode",
			Name:      "process_cpu_percent",
			Help:      "Загрузка CPU процессом сервера.",
		}),
		heapMB: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "netcode",
			Name:      "heap_alloc_mb",
			Help:      "Выделенная куча Go в мегабайтах.",
		}),
		goroutines: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "netcode",
			Name:      "goroutines",
			Help:      "Число горутин процесса.",
		}),
	}

	prometheus.MustRegister(m.cpuPercent, m.heapMB, m.goroutines)
	return m
}

// Start запускает фоновый опрос
func (m *SystemMonitor) Start() {
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.wg.Add(1)
	go m.sampleLoop()
}

// Stop останавливает опрос и ждёт завершения горутины
func (m *SystemMonitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

func (m *SystemMonitor) sampleLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.sample()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.sample()
		}
	}
}

func (m *SystemMonitor) sample() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	m.heapMB.Set(float64(ms.HeapAlloc) / 1024 / 1024)
	m.goroutines.Set(float64(runtime.NumGoroutine()))
	m.cpuPercent.Set(processCPUPercent())
}

// processCPUPercent возвращает загрузку CPU текущим процессом.
// При недоступности статистики процесса берётся общесистемная.
func processCPUPercent() float64 {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err == nil {
		if pct, err := proc.CPUPercent(); err == nil {
			return pct
		}
	}

	percentages, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil || len(percentages) == 0 {
		logging.Debug("Статистика CPU недоступна: %v", err)
		return 0
	}
	return percentages[0]
}

// Uptime возвращает время работы процесса в человекочитаемом виде
func (m *SystemMonitor) Uptime() string {
	uptime := time.Since(m.startTime)

	days := int(uptime.Hours()) / 24
	hours := int(uptime.Hours()) % 24
	minutes := int(uptime.Minutes()) % 60
	seconds := int(uptime.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dд %dч %dм %dс", days, hours, minutes, seconds)
	}
	if hours > 0 {
		return fmt.Sprintf("%dч %dм %dс", hours, minutes, seconds)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dм %dс", minutes, seconds)
	}
	return fmt.Sprintf("%dс", seconds)
}
