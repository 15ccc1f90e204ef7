package network

import (
	"errors"
	"sync"
)

// localQueueCap ёмкость очереди локального канала. Переполнение
// роняет датаграмму, как перегруженная сеть.
const localQueueCap = 256

// ErrTransportClosed возвращается при отправке в закрытый канал
var ErrTransportClosed = errors.New("транспорт закрыт")

// LocalTransport конец локальной пары каналов в памяти. Повторяет
// семантику UDP без сокетов: датаграммы теряются при переполнении,
// приём неблокирующий. Используется в тестах и примерах.
type LocalTransport struct {
	in   chan []byte
	peer *LocalTransport

	mu     sync.Mutex
	closed bool
}

// NewLocalPair возвращает два связанных конца канала: отправленное в
// один читается из другого
func NewLocalPair() (*LocalTransport, *LocalTransport) {
	a := &LocalTransport{in: make(chan []byte, localQueueCap)}
	b := &LocalTransport{in: make(chan []byte, localQueueCap)}
	a.peer = b
	b.peer = a
	return a, b
}

// Send передаёт датаграмму на другой конец. При переполнении очереди
// датаграмма молча теряется.
func (t *LocalTransport) Send(payload []byte) error {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return ErrTransportClosed
	}

	data := make([]byte, len(payload))
	copy(data, payload)

	select {
	case t.peer.in <- data:
	default:
		// очередь полна, датаграмма потеряна
	}
	return nil
}

// Receive возвращает очередную датаграмму либо false
func (t *LocalTransport) Receive() ([]byte, bool) {
	select {
	case data := <-t.in:
		return data, true
	default:
		return nil, false
	}
}

// Close помечает канал закрытым
func (t *LocalTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// LocalAddr возвращает фиктивный адрес канала
func (t *LocalTransport) LocalAddr() string {
	return "local"
}
