package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/annel0/mmo-netcode/internal/game"
	"github.com/annel0/mmo-netcode/internal/logging"
	"github.com/annel0/mmo-netcode/internal/vec"
)

// RedisArchiveRepo хранит записи отключённых игроков в Redis.
// TTL ключей страхует от накопления записей, которые никто
// не переподключил и не почистил.
type RedisArchiveRepo struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// RedisArchiveConfig содержит настройки подключения к Redis
type RedisArchiveConfig struct {
	Addr      string        // Адрес Redis сервера
	Password  string        // Пароль (пустой если не требуется)
	DB        int           // Номер базы данных
	KeyPrefix string        // Префикс для ключей
	TTL       time.Duration // Время жизни записей
}

// DefaultRedisArchiveConfig возвращает конфигурацию по умолчанию
func DefaultRedisArchiveConfig() *RedisArchiveConfig {
	return &RedisArchiveConfig{
		Addr:      "localhost:6379",
		Password:  "",
		DB:        0,
		KeyPrefix: "netcode:session:",
		TTL:       24 * time.Hour,
	}
}

// archivedRecord сериализуемая форма записи отключённого игрока
type archivedRecord struct {
	PlayerID       string    `json:"player_id"`
	X              int       `json:"x"`
	Y              int       `json:"y"`
	Color          uint32    `json:"color"`
	DisconnectedAt time.Time `json:"disconnected_at"`
}

func toArchived(rec game.DisconnectedRecord) archivedRecord {
	return archivedRecord{
		PlayerID:       rec.ID.String(),
		X:              rec.Pos.X,
		Y:              rec.Pos.Y,
		Color:          rec.Color,
		DisconnectedAt: rec.DisconnectedAt,
	}
}

func fromArchived(ar archivedRecord) (game.DisconnectedRecord, error) {
	id, err := uuid.Parse(ar.PlayerID)
	if err != nil {
		return game.DisconnectedRecord{}, fmt.Errorf("повреждённый идентификатор в архиве: %w", err)
	}
	return game.DisconnectedRecord{
		ID:             id,
		Pos:            vec.Vec2{X: ar.X, Y: ar.Y},
		Color:          ar.Color,
		DisconnectedAt: ar.DisconnectedAt,
	}, nil
}

// NewRedisArchiveRepo создаёт новый Redis архив сессий
func NewRedisArchiveRepo(config *RedisArchiveConfig) (*RedisArchiveRepo, error) {
	if config == nil {
		config = DefaultRedisArchiveConfig()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	// Проверяем подключение
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("не удалось подключиться к Redis: %w", err)
	}

	logging.Info("🔴 Архив сессий: Redis %s", config.Addr)
	return &RedisArchiveRepo{
		client:    client,
		keyPrefix: config.KeyPrefix,
		ttl:       config.TTL,
	}, nil
}

func (r *RedisArchiveRepo) key(id uuid.UUID) string {
	return r.keyPrefix + id.String()
}

// Save сохраняет запись отключённого игрока.
func (r *RedisArchiveRepo) Save(ctx context.Context, rec game.DisconnectedRecord) error {
	data, err := json.Marshal(toArchived(rec))
	if err != nil {
		return fmt.Errorf("ошибка сериализации записи %s: %w", rec.ID, err)
	}

	if err := r.client.Set(ctx, r.key(rec.ID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("ошибка сохранения записи %s: %w", rec.ID, err)
	}
	return nil
}

// Load загружает запись по идентификатору сессии.
func (r *RedisArchiveRepo) Load(ctx context.Context, id uuid.UUID) (game.DisconnectedRecord, bool, error) {
	data, err := r.client.Get(ctx, r.key(id)).Result()
	if err == redis.Nil {
		return game.DisconnectedRecord{}, false, nil
	} else if err != nil {
		return game.DisconnectedRecord{}, false, fmt.Errorf("ошибка загрузки записи %s: %w", id, err)
	}

	var ar archivedRecord
	if err := json.Unmarshal([]byte(data), &ar); err != nil {
		return game.DisconnectedRecord{}, false, fmt.Errorf("ошибка разбора записи %s: %w", id, err)
	}

	rec, err := fromArchived(ar)
	if err != nil {
		return game.DisconnectedRecord{}, false, err
	}
	return rec, true, nil
}

// LoadAll загружает все записи архива через SCAN.
func (r *RedisArchiveRepo) LoadAll(ctx context.Context) ([]game.DisconnectedRecord, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, r.keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("ошибка перечисления записей: %w", err)
	}

	if len(keys) == 0 {
		return []game.DisconnectedRecord{}, nil
	}

	// Читаем значения пайплайном
	pipe := r.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(keys))
	for i, key := range keys {
		cmds[i] = pipe.Get(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("ошибка чтения записей: %w", err)
	}

	result := make([]game.DisconnectedRecord, 0, len(keys))
	for i, cmd := range cmds {
		data, err := cmd.Result()
		if err == redis.Nil {
			continue // Ключ истёк между SCAN и чтением
		} else if err != nil {
			logging.Warn("Не удалось прочитать запись %s: %v", keys[i], err)
			continue
		}

		var ar archivedRecord
		if err := json.Unmarshal([]byte(data), &ar); err != nil {
			logging.Warn("Не удалось разобрать запись %s: %v", keys[i], err)
			continue
		}
		rec, err := fromArchived(ar)
		if err != nil {
			logging.Warn("Пропуск записи %s: %v", keys[i], err)
			continue
		}
		result = append(result, rec)
	}
	return result, nil
}

// Delete удаляет запись. Отсутствующий ключ не считается ошибкой.
func (r *RedisArchiveRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if err := r.client.Del(ctx, r.key(id)).Err(); err != nil {
		return fmt.Errorf("ошибка удаления записи %s: %w", id, err)
	}
	return nil
}

// BatchSave сохраняет несколько записей одним пайплайном.
func (r *RedisArchiveRepo) BatchSave(ctx context.Context, recs []game.DisconnectedRecord) error {
	if len(recs) == 0 {
		return nil
	}

	pipe := r.client.Pipeline()
	for _, rec := range recs {
		data, err := json.Marshal(toArchived(rec))
		if err != nil {
			logging.Warn("Не удалось сериализовать запись %s: %v", rec.ID, err)
			continue
		}
		pipe.Set(ctx, r.key(rec.ID), data, r.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ошибка пакетного сохранения: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis.
func (r *RedisArchiveRepo) Close() error {
	return r.client.Close()
}
