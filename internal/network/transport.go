// Package network реализует датаграммный транспорт клиента и сервера
// поверх UDP, симулятор неблагоприятных сетевых условий и сетевое
// состояние клиента.
package network

import (
	"fmt"
	"net"
	"time"
)

// ReceiveBufferSize размер приёмного буфера датаграмм. Запас против
// усечения снапшотов с большим числом игроков.
const ReceiveBufferSize = 2048

// Transport абстрагирует ненадёжный датаграммный канал: отправка без
// гарантий доставки, неблокирующий приём. Отсутствие данных не ошибка.
type Transport interface {
	// Send отправляет датаграмму без гарантии доставки
	Send(payload []byte) error

	// Receive возвращает очередную датаграмму либо false, если данных
	// сейчас нет. Никогда не блокирует надолго.
	Receive() ([]byte, bool)

	// Close освобождает ресурсы канала
	Close() error

	// LocalAddr возвращает локальный адрес канала
	LocalAddr() string
}

// UDPTransport клиентский конец UDP канала, привязанный к адресу
// сервера
type UDPTransport struct {
	conn *net.UDPConn
}

// NewUDPTransport открывает UDP сокет и привязывает его к серверу
func NewUDPTransport(serverAddr string) (*UDPTransport, error) {
	raddr, err := net.ResolveUDPAddr("udp", serverAddr)
	if err != nil {
		return nil, fmt.Errorf("разрешение адреса сервера %s: %w", serverAddr, err)
	}

	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("открытие UDP сокета: %w", err)
	}

	return &UDPTransport{conn: conn}, nil
}

// Send отправляет датаграмму серверу
func (t *UDPTransport) Send(payload []byte) error {
	_, err := t.conn.Write(payload)
	return err
}

// Receive забирает датаграмму из буфера сокета, не дожидаясь новых
func (t *UDPTransport) Receive() ([]byte, bool) {
	buf := make([]byte, ReceiveBufferSize)

	// Нулевой дедлайн: уже принятая датаграмма возвращается сразу,
	// ожидание новых не начинается
	_ = t.conn.SetReadDeadline(time.Now())

	n, err := t.conn.Read(buf)
	if err != nil {
		return nil, false
	}
	return buf[:n], true
}

// Close закрывает сокет
func (t *UDPTransport) Close() error {
	return t.conn.Close()
}

// LocalAddr возвращает локальный адрес сокета
func (t *UDPTransport) LocalAddr() string {
	return t.conn.LocalAddr().String()
}
