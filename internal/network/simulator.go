package network

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"time"
)

// jitterMS разброс искусственной задержки в миллисекундах в обе
// стороны
const jitterMS = 5

// Conditions искусственные сетевые условия
type Conditions struct {
	Delay       time.Duration // базовая задержка исходящих
	LossPercent float64       // вероятность потери пакета, 0..100
}

// SimulatorStats счётчики симулятора
type SimulatorStats struct {
	Sent     uint64 // передано в транспорт
	Received uint64 // принято из транспорта
	Dropped  uint64 // потеряно симулятором в обе стороны
	Delayed  uint64 // прошло через очередь задержки
}

// Simulator оборачивает транспорт и навязывает ему управляемую
// ненадёжность: вероятностную потерю в обе стороны, задержку с
// джиттером и переупорядочивание пакетов, ставших готовыми вместе.
// Очередь задержки дренируется синхронно при каждой отправке и приёме,
// отдельного таймера нет.
type Simulator struct {
	transport Transport

	mu    sync.Mutex
	cond  Conditions
	queue []delayedPacket

	sent     atomic.Uint64
	received atomic.Uint64
	dropped  atomic.Uint64
	delayed  atomic.Uint64
}

type delayedPacket struct {
	payload  []byte
	enqueued time.Time
	sequence uint32
	delay    time.Duration
}

// NewSimulator создаёт симулятор поверх транспорта
func NewSimulator(t Transport, cond Conditions) *Simulator {
	return &Simulator{
		transport: t,
		cond:      cond,
	}
}

// SetConditions меняет сетевые условия на лету
func (s *Simulator) SetConditions(cond Conditions) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cond.LossPercent < 0 {
		cond.LossPercent = 0
	}
	if cond.LossPercent > 100 {
		cond.LossPercent = 100
	}
	if cond.Delay < 0 {
		cond.Delay = 0
	}
	s.cond = cond
}

// Conditions возвращает текущие сетевые условия
func (s *Simulator) Conditions() Conditions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cond
}

// Stats возвращает снимок счётчиков
func (s *Simulator) Stats() SimulatorStats {
	return SimulatorStats{
		Sent:     s.sent.Load(),
		Received: s.received.Load(),
		Dropped:  s.dropped.Load(),
		Delayed:  s.delayed.Load(),
	}
}

// roll решает судьбу одного пакета при текущем проценте потерь
func roll(lossPercent float64) bool {
	return rand.Float64()*100 < lossPercent
}

// Send отправляет пакет через симулируемую сеть: сначала бросок на
// потерю, затем либо очередь задержки с джиттером, либо прямая
// передача. Номер пакета хранится в очереди для диагностики.
func (s *Simulator) Send(payload []byte, sequence uint32) error {
	s.flushDelayed(time.Now())

	s.mu.Lock()
	cond := s.cond
	if roll(cond.LossPercent) {
		s.mu.Unlock()
		s.dropped.Add(1)
		return nil
	}

	if cond.Delay > 0 {
		jitter := time.Duration(rand.Intn(2*jitterMS+1)-jitterMS) * time.Millisecond
		delay := cond.Delay + jitter
		if delay < 0 {
			delay = 0
		}
		data := make([]byte, len(payload))
		copy(data, payload)
		s.queue = append(s.queue, delayedPacket{
			payload:  data,
			enqueued: time.Now(),
			sequence: sequence,
			delay:    delay,
		})
		s.mu.Unlock()
		s.delayed.Add(1)
		return nil
	}
	s.mu.Unlock()

	s.sent.Add(1)
	return s.transport.Send(payload)
}

// SendDirect отправляет пакет в обход симуляции. Служебные сообщения
// вроде Connect и Ping не искажаются: замер RTT меряет сеть, а не
// симулятор.
func (s *Simulator) SendDirect(payload []byte) error {
	s.sent.Add(1)
	return s.transport.Send(payload)
}

// Receive дренирует очередь задержки и принимает очередную датаграмму.
// Входящая потеря разыгрывается отдельно от исходящей: принятый пакет
// может быть молча выброшен.
func (s *Simulator) Receive() ([]byte, bool) {
	s.flushDelayed(time.Now())

	payload, ok := s.transport.Receive()
	if !ok {
		return nil, false
	}

	s.mu.Lock()
	lost := roll(s.cond.LossPercent)
	s.mu.Unlock()
	if lost {
		s.dropped.Add(1)
		return nil, false
	}

	s.received.Add(1)
	return payload, true
}

// flushDelayed передаёт пакеты с истёкшей задержкой. Очередь
// дренируется с головы: пакет позади недозревшего ждёт вместе с ним.
// Готовая пачка перемешивается, имитируя доставку вне порядка.
func (s *Simulator) flushDelayed(now time.Time) {
	s.mu.Lock()
	var ready [][]byte
	for len(s.queue) > 0 {
		head := s.queue[0]
		if now.Sub(head.enqueued) < head.delay {
			break
		}
		ready = append(ready, head.payload)
		s.queue = s.queue[1:]
	}
	s.mu.Unlock()

	if len(ready) == 0 {
		return
	}
	rand.Shuffle(len(ready), func(i, j int) {
		ready[i], ready[j] = ready[j], ready[i]
	})
	for _, payload := range ready {
		s.sent.Add(1)
		_ = s.transport.Send(payload)
	}
}

// QueueLen возвращает длину очереди задержки
func (s *Simulator) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Close закрывает нижележащий транспорт
func (s *Simulator) Close() error {
	return s.transport.Close()
}
