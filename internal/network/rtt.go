package network

import (
	"sort"
	"sync"
	"time"
)

// rttWindow число последних измерений RTT в окне статистики
const rttWindow = 1000

// RTTSummary агрегированная статистика круговой задержки
type RTTSummary struct {
	Count int
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
	P50   time.Duration
	P95   time.Duration
	P99   time.Duration
}

// RTTStats накапливает измерения круговой задержки в скользящем окне
type RTTStats struct {
	mu      sync.Mutex
	samples []time.Duration
}

// NewRTTStats создаёт пустую статистику
func NewRTTStats() *RTTStats {
	return &RTTStats{
		samples: make([]time.Duration, 0, rttWindow),
	}
}

// Record добавляет измерение, вытесняя самое старое за пределами окна
func (r *RTTStats) Record(rtt time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.samples = append(r.samples, rtt)
	if len(r.samples) > rttWindow {
		r.samples = r.samples[1:]
	}
}

// Summary возвращает минимум, максимум, среднее и перцентили окна
func (r *RTTStats) Summary() RTTSummary {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.samples) == 0 {
		return RTTSummary{}
	}

	sorted := make([]time.Duration, len(r.samples))
	copy(sorted, r.samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, s := range sorted {
		sum += s
	}

	n := len(sorted)
	return RTTSummary{
		Count: n,
		Min:   sorted[0],
		Max:   sorted[n-1],
		Avg:   sum / time.Duration(n),
		P50:   sorted[n*50/100],
		P95:   sorted[n*95/100],
		P99:   sorted[n*99/100],
	}
}
