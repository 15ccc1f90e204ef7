package storage

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/annel0/mmo-netcode/internal/game"
)

// MemoryArchiveRepo реализует ArchiveRepo в памяти.
// Используется как fallback, когда Redis и MariaDB недоступны,
// или для CI/локальной разработки без внешних хранилищ.
// ВНИМАНИЕ: Данные теряются при перезапуске сервера!
type MemoryArchiveRepo struct {
	mu   sync.RWMutex
	data map[uuid.UUID]game.DisconnectedRecord
}

// NewMemoryArchiveRepo создаёт новый архив сессий в памяти
func NewMemoryArchiveRepo() *MemoryArchiveRepo {
	return &MemoryArchiveRepo{
		data: make(map[uuid.UUID]game.DisconnectedRecord),
	}
}

// Save сохраняет запись отключённого игрока в памяти.
func (r *MemoryArchiveRepo) Save(ctx context.Context, rec game.DisconnectedRecord) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.data[rec.ID] = rec
	return nil
}

// Load загружает запись по идентификатору сессии.
func (r *MemoryArchiveRepo) Load(ctx context.Context, id uuid.UUID) (game.DisconnectedRecord, bool, error) {
	select {
	case <-ctx.Done():
		return game.DisconnectedRecord{}, false, ctx.Err()
	default:
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, exists := r.data[id]
	return rec, exists, nil
}

// LoadAll возвращает все сохранённые записи.
func (r *MemoryArchiveRepo) LoadAll(ctx context.Context) ([]game.DisconnectedRecord, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]game.DisconnectedRecord, 0, len(r.data))
	for _, rec := range r.data {
		result = append(result, rec)
	}
	return result, nil
}

// Delete удаляет запись. Отсутствующая запись не считается ошибкой.
func (r *MemoryArchiveRepo) Delete(ctx context.Context, id uuid.UUID) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.data, id)
	return nil
}

// BatchSave сохраняет несколько записей за один проход.
func (r *MemoryArchiveRepo) BatchSave(ctx context.Context, recs []game.DisconnectedRecord) error {
	if len(recs) == 0 {
		return nil // Нечего сохранять
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rec := range recs {
		r.data[rec.ID] = rec
	}
	return nil
}

// Close освобождает ресурсы (для in-memory хранилища ничего не делает).
func (r *MemoryArchiveRepo) Close() error {
	return nil
}

// Count возвращает количество сохранённых записей (для отладки).
func (r *MemoryArchiveRepo) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data)
}

// Clear очищает архив (для тестов).
func (r *MemoryArchiveRepo) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data = make(map[uuid.UUID]game.DisconnectedRecord)
}
