package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"konsult/internal/models"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

type DB struct {
	*sql.DB

	mu               sync.RWMutex
	consultantsCache map[int64]models.Consultant
	logger           *zerolog.Logger
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	// Создаем директорию для БД, если её нет
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %v", err)
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %v", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %v", err)
	}

	if logger != nil {
		logger.Info().Str("db_path", path).Msg("database initialized")
	}
	return &DB{DB: db, consultantsCache: make(map[int64]models.Consultant), logger: logger}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		// Консультанты
		`CREATE TABLE IF NOT EXISTS consultants (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT UNIQUE NOT NULL,
            timezone TEXT NOT NULL DEFAULT 'UTC',
            increment_minutes INTEGER NOT NULL DEFAULT 30,
            sort_order INTEGER NOT NULL DEFAULT 0,
            is_active BOOLEAN NOT NULL DEFAULT 1,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,

		// Weekly availability template: one row per start time per weekday.
		`CREATE TABLE IF NOT EXISTS consultant_templates (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            consultant_id INTEGER NOT NULL,
            weekday INTEGER NOT NULL,
            start_time TEXT NOT NULL,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            UNIQUE(consultant_id, weekday, start_time),
            FOREIGN KEY (consultant_id) REFERENCES consultants(id)
        )`,

		// Покупки (создаются внешним пайплайном продаж)
		`CREATE TABLE IF NOT EXISTS purchases (
            id TEXT PRIMARY KEY,
            consultant_id INTEGER NOT NULL,
            package_name TEXT NOT NULL,
            duration_minutes INTEGER NOT NULL,
            email TEXT NOT NULL,
            phone TEXT NOT NULL,
            booking_id TEXT,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            FOREIGN KEY (consultant_id) REFERENCES consultants(id)
        )`,

		// Бронирования: ровно одно на оплаченную покупку
		`CREATE TABLE IF NOT EXISTS bookings (
            id TEXT PRIMARY KEY,
            purchase_id TEXT UNIQUE NOT NULL,
            consultant_id INTEGER NOT NULL,
            appointment_start DATETIME NOT NULL,
            appointment_end DATETIME NOT NULL,
            slot_date TEXT NOT NULL,
            slot_time TEXT NOT NULL,
            duration_minutes INTEGER NOT NULL,
            status TEXT NOT NULL DEFAULT 'confirmed',
            reschedule_count INTEGER NOT NULL DEFAULT 0,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            version INTEGER NOT NULL DEFAULT 1,
            FOREIGN KEY (purchase_id) REFERENCES purchases(id),
            FOREIGN KEY (consultant_id) REFERENCES consultants(id)
        )`,

		// Slot claims. The UNIQUE index is the conflict guard: claiming a
		// run means inserting every increment in one transaction, and a
		// duplicate insert fails the whole transaction.
		`CREATE TABLE IF NOT EXISTS slot_claims (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            consultant_id INTEGER NOT NULL,
            slot_date TEXT NOT NULL,
            slot_time TEXT NOT NULL,
            booking_id TEXT NOT NULL,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            UNIQUE(consultant_id, slot_date, slot_time),
            FOREIGN KEY (booking_id) REFERENCES bookings(id)
        )`,

		// Очередь синхронизации для бэк-офиса
		`CREATE TABLE IF NOT EXISTS sync_queue (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            task_type TEXT NOT NULL,
            booking_id TEXT NOT NULL,
            payload TEXT,
            status TEXT NOT NULL DEFAULT 'pending',
            retry_count INTEGER NOT NULL DEFAULT 0,
            last_error TEXT,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            processed_at DATETIME,
            next_retry_at DATETIME
        )`,

		// Индексы
		`CREATE INDEX IF NOT EXISTS idx_templates_consultant ON consultant_templates(consultant_id, weekday)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_consultant ON bookings(consultant_id, slot_date)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(status)`,
		`CREATE INDEX IF NOT EXISTS idx_claims_booking ON slot_claims(booking_id)`,
		`CREATE INDEX IF NOT EXISTS idx_purchases_consultant ON purchases(consultant_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_queue_status ON sync_queue(status)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %v", query, err)
		}
	}
	return nil
}

// RefreshConsultantCache reloads the read-mostly consultant cache.
func (db *DB) RefreshConsultantCache(ctx context.Context) error {
	consultants, err := db.ListConsultants(ctx)
	if err != nil {
		return err
	}

	db.mu.Lock()
	db.consultantsCache = make(map[int64]models.Consultant, len(consultants))
	for _, c := range consultants {
		db.consultantsCache[c.ID] = *c
	}
	db.mu.Unlock()
	return nil
}

func (db *DB) consultantFromCache(id int64) (models.Consultant, bool) {
	db.mu.RLock()
	c, ok := db.consultantsCache[id]
	db.mu.RUnlock()
	return c, ok
}
