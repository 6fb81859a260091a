package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"konsult/internal/models"
)

func (db *DB) CreateConsultant(ctx context.Context, c *models.Consultant) error {
	if c.IncrementMinutes <= 0 {
		c.IncrementMinutes = models.DefaultIncrementMinutes
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}

	query := `INSERT INTO consultants (name, timezone, increment_minutes, sort_order, is_active, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		c.Name, c.Timezone, c.IncrementMinutes, c.SortOrder, c.IsActive, now, now)
	if err != nil {
		return fmt.Errorf("failed to create consultant: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	c.ID = id
	c.CreatedAt = now
	c.UpdatedAt = now
	return nil
}

func (db *DB) GetConsultant(ctx context.Context, id int64) (*models.Consultant, error) {
	if c, ok := db.consultantFromCache(id); ok {
		return &c, nil
	}

	var c models.Consultant
	query := `SELECT id, name, timezone, increment_minutes, sort_order, is_active, created_at, updated_at
              FROM consultants WHERE id = ?`
	err := db.QueryRowContext(ctx, query, id).Scan(
		&c.ID, &c.Name, &c.Timezone, &c.IncrementMinutes, &c.SortOrder, &c.IsActive, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConsultantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get consultant: %w", err)
	}
	return &c, nil
}

func (db *DB) ListConsultants(ctx context.Context) ([]*models.Consultant, error) {
	query := `SELECT id, name, timezone, increment_minutes, sort_order, is_active, created_at, updated_at
              FROM consultants ORDER BY sort_order ASC, id ASC`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list consultants: %w", err)
	}
	defer rows.Close()

	var consultants []*models.Consultant
	for rows.Next() {
		c := &models.Consultant{}
		if err := rows.Scan(&c.ID, &c.Name, &c.Timezone, &c.IncrementMinutes, &c.SortOrder, &c.IsActive, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan consultant: %w", err)
		}
		consultants = append(consultants, c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate consultants: %w", err)
	}
	return consultants, nil
}

func (db *DB) ListActiveConsultants(ctx context.Context) ([]*models.Consultant, error) {
	all, err := db.ListConsultants(ctx)
	if err != nil {
		return nil, err
	}
	active := make([]*models.Consultant, 0, len(all))
	for _, c := range all {
		if c.IsActive {
			active = append(active, c)
		}
	}
	return active, nil
}

// SetTemplate replaces the consultant's weekly template in one transaction.
// Consultant-side edits happen out of band; the scheduler only reads it.
func (db *DB) SetTemplate(ctx context.Context, consultantID int64, entries []models.TemplateEntry) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM consultant_templates WHERE consultant_id = ?`, consultantID); err != nil {
		return fmt.Errorf("failed to clear template: %w", err)
	}

	insert := `INSERT INTO consultant_templates (consultant_id, weekday, start_time) VALUES (?, ?, ?)`
	for _, entry := range entries {
		if entry.Weekday < 0 || entry.Weekday > 6 {
			return fmt.Errorf("invalid weekday %d", entry.Weekday)
		}
		for _, start := range entry.StartTimes {
			if _, err := tx.ExecContext(ctx, insert, consultantID, entry.Weekday, start); err != nil {
				return fmt.Errorf("failed to insert template row: %w", err)
			}
		}
	}

	return tx.Commit()
}

// GetWeeklyTemplate returns weekday -> ordered start times.
func (db *DB) GetWeeklyTemplate(ctx context.Context, consultantID int64) (models.WeeklyTemplate, error) {
	query := `SELECT weekday, start_time FROM consultant_templates
              WHERE consultant_id = ? ORDER BY weekday ASC, start_time ASC`
	rows, err := db.QueryContext(ctx, query, consultantID)
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	defer rows.Close()

	tmpl := make(models.WeeklyTemplate)
	for rows.Next() {
		var weekday int
		var start string
		if err := rows.Scan(&weekday, &start); err != nil {
			return nil, fmt.Errorf("failed to scan template row: %w", err)
		}
		tmpl[weekday] = append(tmpl[weekday], start)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate template rows: %w", err)
	}

	for weekday := range tmpl {
		sort.Strings(tmpl[weekday])
	}
	return tmpl, nil
}

// UpsertConsultantSeed создает или обновляет консультанта и его шаблон из seed-файла
func (db *DB) UpsertConsultantSeed(ctx context.Context, seed *models.ConsultantSeed) error {
	var existingID int64
	err := db.QueryRowContext(ctx, `SELECT id FROM consultants WHERE name = ?`, seed.Name).Scan(&existingID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if err := db.CreateConsultant(ctx, &seed.Consultant); err != nil {
			return err
		}
	case err != nil:
		return fmt.Errorf("failed to look up consultant %q: %w", seed.Name, err)
	default:
		seed.ID = existingID
		query := `UPDATE consultants SET timezone = ?, increment_minutes = ?, sort_order = ?, is_active = ?, updated_at = ? WHERE id = ?`
		if _, err := db.ExecContext(ctx, query,
			seed.Timezone, seed.IncrementMinutes, seed.SortOrder, seed.IsActive, time.Now(), existingID); err != nil {
			return fmt.Errorf("failed to update consultant %q: %w", seed.Name, err)
		}
	}

	return db.SetTemplate(ctx, seed.ID, seed.Template)
}
