// Package storage содержит архив сессий: записи отключённых игроков,
// переживающие перезапуск сервера.
package storage

import (
	"context"

	"github.com/google/uuid"

	"github.com/annel0/mmo-netcode/internal/game"
)

// ArchiveRepo определяет интерфейс архива записей отключённых игроков.
// Записи привязаны к идентификатору сессии и позволяют возобновить
// льготный период переподключения после перезапуска сервера.
// Авторитетом остаётся память сервера, архив пишется вслед.
type ArchiveRepo interface {
	// Save сохраняет запись отключённого игрока.
	// Повторное сохранение с тем же идентификатором перезаписывает запись.
	Save(ctx context.Context, rec game.DisconnectedRecord) error

	// Load загружает запись по идентификатору сессии.
	// Возвращает:
	//   game.DisconnectedRecord - запись
	//   bool - true если запись найдена
	//   error - ошибка при загрузке
	Load(ctx context.Context, id uuid.UUID) (game.DisconnectedRecord, bool, error)

	// LoadAll загружает все записи архива. Вызывается при старте
	// сервера для восстановления льготных периодов.
	LoadAll(ctx context.Context) ([]game.DisconnectedRecord, error)

	// Delete удаляет запись после переподключения или истечения
	// льготного периода. Отсутствие записи ошибкой не считается.
	Delete(ctx context.Context, id uuid.UUID) error

	// BatchSave сохраняет несколько записей одной операцией
	// (для периодического сброса).
	BatchSave(ctx context.Context, recs []game.DisconnectedRecord) error

	// Close освобождает ресурсы хранилища.
	Close() error
}
