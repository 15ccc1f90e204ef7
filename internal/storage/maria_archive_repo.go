package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"github.com/annel0/mmo-netcode/internal/game"
	"github.com/annel0/mmo-netcode/internal/vec"
)

// MariaArchiveRepo реализует ArchiveRepo для базы данных MariaDB/MySQL.
// Использует таблицу session_archive для хранения записей отключённых
// игроков.
type MariaArchiveRepo struct {
	db *sql.DB
}

// NewMariaArchiveRepo создаёт новый архив сессий в MariaDB.
// Автоматически создаёт таблицу, если она не существует.
//
// Параметры:
//
//	dsn - строка подключения к базе данных (user:pass@tcp(host:port)/dbname)
func NewMariaArchiveRepo(dsn string) (*MariaArchiveRepo, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("не удалось подключиться к MariaDB: %w", err)
	}

	// Проверяем соединение
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось проверить соединение с MariaDB: %w", err)
	}

	repo := &MariaArchiveRepo{db: db}

	if err := repo.createTable(); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось создать таблицу: %w", err)
	}

	return repo, nil
}

// createTable создаёт таблицу session_archive, если она не существует.
func (r *MariaArchiveRepo) createTable() error {
	query := `
		CREATE TABLE IF NOT EXISTS session_archive (
			player_id       CHAR(36)     PRIMARY KEY,
			x               INT          NOT NULL,
			y               INT          NOT NULL,
			color           INT UNSIGNED NOT NULL,
			disconnected_at DATETIME(6)  NOT NULL,
			updated_at      TIMESTAMP    DEFAULT CURRENT_TIMESTAMP
			                ON UPDATE    CURRENT_TIMESTAMP,
			INDEX idx_disconnected_at (disconnected_at)
		) ENGINE=InnoDB
	`

	_, err := r.db.Exec(query)
	if err != nil {
		return fmt.Errorf("ошибка создания таблицы session_archive: %w", err)
	}

	return nil
}

// Save сохраняет запись отключённого игрока.
// Использует INSERT ... ON DUPLICATE KEY UPDATE для перезаписи.
func (r *MariaArchiveRepo) Save(ctx context.Context, rec game.DisconnectedRecord) error {
	query := `
		INSERT INTO session_archive (player_id, x, y, color, disconnected_at)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			x = VALUES(x),
			y = VALUES(y),
			color = VALUES(color),
			disconnected_at = VALUES(disconnected_at),
			updated_at = CURRENT_TIMESTAMP
	`

	_, err := r.db.ExecContext(ctx, query,
		rec.ID.String(), rec.Pos.X, rec.Pos.Y, rec.Color, rec.DisconnectedAt.UTC())
	if err != nil {
		return fmt.Errorf("ошибка сохранения записи %s: %w", rec.ID, err)
	}

	return nil
}

// Load загружает запись по идентификатору сессии.
func (r *MariaArchiveRepo) Load(ctx context.Context, id uuid.UUID) (game.DisconnectedRecord, bool, error) {
	query := `SELECT x, y, color, disconnected_at FROM session_archive WHERE player_id = ?`

	var (
		x, y           int
		color          uint32
		disconnectedAt time.Time
	)
	err := r.db.QueryRowContext(ctx, query, id.String()).
		Scan(&x, &y, &color, &disconnectedAt)

	if err == sql.ErrNoRows {
		return game.DisconnectedRecord{}, false, nil
	}
	if err != nil {
		return game.DisconnectedRecord{}, false, fmt.Errorf("ошибка загрузки записи %s: %w", id, err)
	}

	return game.DisconnectedRecord{
		ID:             id,
		Pos:            vec.Vec2{X: x, Y: y},
		Color:          color,
		DisconnectedAt: disconnectedAt,
	}, true, nil
}

// LoadAll загружает все записи архива.
func (r *MariaArchiveRepo) LoadAll(ctx context.Context) ([]game.DisconnectedRecord, error) {
	query := `SELECT player_id, x, y, color, disconnected_at FROM session_archive`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки архива: %w", err)
	}
	defer rows.Close()

	var result []game.DisconnectedRecord
	for rows.Next() {
		var (
			idStr          string
			x, y           int
			color          uint32
			disconnectedAt time.Time
		)
		if err := rows.Scan(&idStr, &x, &y, &color, &disconnectedAt); err != nil {
			return nil, fmt.Errorf("ошибка чтения строки архива: %w", err)
		}

		id, err := uuid.Parse(idStr)
		if err != nil {
			// Повреждённую строку пропускаем, остальной архив важнее
			continue
		}

		result = append(result, game.DisconnectedRecord{
			ID:             id,
			Pos:            vec.Vec2{X: x, Y: y},
			Color:          color,
			DisconnectedAt: disconnectedAt,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка обхода архива: %w", err)
	}

	return result, nil
}

// Delete удаляет запись. Отсутствующая строка не считается ошибкой.
func (r *MariaArchiveRepo) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM session_archive WHERE player_id = ?`

	if _, err := r.db.ExecContext(ctx, query, id.String()); err != nil {
		return fmt.Errorf("ошибка удаления записи %s: %w", id, err)
	}

	return nil
}

// BatchSave сохраняет несколько записей в одной транзакции.
func (r *MariaArchiveRepo) BatchSave(ctx context.Context, recs []game.DisconnectedRecord) error {
	if len(recs) == 0 {
		return nil // Нечего сохранять
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback() // Откат в случае ошибки

	query := `
		INSERT INTO session_archive (player_id, x, y, color, disconnected_at)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			x = VALUES(x),
			y = VALUES(y),
			color = VALUES(color),
			disconnected_at = VALUES(disconnected_at),
			updated_at = CURRENT_TIMESTAMP
	`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("ошибка подготовки запроса: %w", err)
	}
	defer stmt.Close()

	for _, rec := range recs {
		_, err = stmt.ExecContext(ctx,
			rec.ID.String(), rec.Pos.X, rec.Pos.Y, rec.Color, rec.DisconnectedAt.UTC())
		if err != nil {
			return fmt.Errorf("ошибка сохранения записи %s в batch: %w", rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}

	return nil
}

// Close закрывает соединение с базой данных.
func (r *MariaArchiveRepo) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}
