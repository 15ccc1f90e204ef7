// Package analysis собирает статистику ошибки предсказания по
// именованным условиям сети и формирует итоговый отчёт.
package analysis

import (
	"fmt"
	"strings"
	"time"
)

// Condition именованные условия сети для одного прогона замеров
type Condition struct {
	Name        string
	LatencyMS   int
	LossPercent float64
}

// StandardConditions возвращает матрицу условий от худших к идеальным
func StandardConditions() []Condition {
	return []Condition{
		{Name: "Very Poor", LatencyMS: 200, LossPercent: 10},
		{Name: "Lossy", LatencyMS: 100, LossPercent: 5},
		{Name: "Poor", LatencyMS: 200, LossPercent: 0},
		{Name: "Average", LatencyMS: 100, LossPercent: 0},
		{Name: "Good", LatencyMS: 50, LossPercent: 0},
		{Name: "Ideal", LatencyMS: 0, LossPercent: 0},
	}
}

// Metrics агрегированная статистика одного условия
type Metrics struct {
	MinError        float64
	AvgError        float64
	MaxError        float64
	Samples         int
	Reconciliations int
	InputLagMS      int // сконфигурированная задержка условия
}

// Result пара условие-метрики в порядке прохождения тестов
type Result struct {
	Condition Condition
	Metrics   Metrics
}

// Analyzer прогоняет матрицу условий по очереди. Вызывающий цикл
// управляет сменой условий: StartNextTest выдаёт очередное условие,
// RecordPredictionError пополняет выборку, IsTestComplete сигналит об
// истечении окна замеров, CompleteCurrentTest фиксирует агрегаты.
type Analyzer struct {
	conditions     []Condition
	sampleDuration time.Duration

	results         []Result
	current         *Condition
	currentIndex    int
	samples         []float64
	reconciliations int
	startedAt       time.Time
}

// NewAnalyzer создаёт анализатор с заданным окном замеров на условие
func NewAnalyzer(sampleDuration time.Duration) *Analyzer {
	if sampleDuration <= 0 {
		sampleDuration = time.Second
	}
	return &Analyzer{
		conditions:     StandardConditions(),
		sampleDuration: sampleDuration,
	}
}

// StartNextTest переходит к следующему условию матрицы.
// Возвращает false, когда условия исчерпаны.
func (a *Analyzer) StartNextTest() (Condition, bool) {
	if a.currentIndex >= len(a.conditions) {
		a.current = nil
		return Condition{}, false
	}

	cond := a.conditions[a.currentIndex]
	a.current = &cond
	a.currentIndex++
	a.samples = a.samples[:0]
	a.reconciliations = 0
	a.startedAt = time.Now()
	return cond, true
}

// RecordPredictionError добавляет замер ошибки в текущую выборку.
// Вне активного теста замеры игнорируются.
func (a *Analyzer) RecordPredictionError(err float64) {
	if a.current == nil {
		return
	}
	a.samples = append(a.samples, err)
}

// RecordReconciliation учитывает одну сверку с сервером в текущем тесте
func (a *Analyzer) RecordReconciliation() {
	if a.current == nil {
		return
	}
	a.reconciliations++
}

// IsTestComplete сообщает, истекло ли окно замеров текущего условия
func (a *Analyzer) IsTestComplete() bool {
	if a.current == nil {
		return false
	}
	return time.Since(a.startedAt) >= a.sampleDuration
}

// CompleteCurrentTest агрегирует выборку текущего условия в результат
func (a *Analyzer) CompleteCurrentTest() {
	if a.current == nil {
		return
	}

	m := Metrics{
		Samples:         len(a.samples),
		Reconciliations: a.reconciliations,
		InputLagMS:      a.current.LatencyMS,
	}
	if len(a.samples) > 0 {
		m.MinError = a.samples[0]
		for _, s := range a.samples {
			m.AvgError += s
			if s < m.MinError {
				m.MinError = s
			}
			if s > m.MaxError {
				m.MaxError = s
			}
		}
		m.AvgError /= float64(len(a.samples))
	}

	a.results = append(a.results, Result{Condition: *a.current, Metrics: m})
}

// Reset возвращает анализатор к началу матрицы и стирает результаты
func (a *Analyzer) Reset() {
	a.currentIndex = 0
	a.current = nil
	a.samples = a.samples[:0]
	a.reconciliations = 0
	a.results = nil
}

// Results возвращает зафиксированные результаты в порядке прохождения
func (a *Analyzer) Results() []Result {
	out := make([]Result, len(a.results))
	copy(out, a.results)
	return out
}

// GenerateReport формирует markdown-таблицу по всем завершённым тестам
func (a *Analyzer) GenerateReport() string {
	var b strings.Builder
	b.WriteString("# Performance Analysis Report\n\n")
	b.WriteString("| Network Condition | Avg Error | Max Error | Input Lag |\n")
	b.WriteString("|------------------|-----------|-----------|----------|\n")

	for _, r := range a.results {
		fmt.Fprintf(&b, "| %-16s | %9.2f | %9.2f | %6d ms |\n",
			r.Condition.Name,
			r.Metrics.AvgError,
			r.Metrics.MaxError,
			r.Metrics.InputLagMS)
	}
	return b.String()
}
