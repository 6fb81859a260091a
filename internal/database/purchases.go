package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"konsult/internal/models"

	"github.com/google/uuid"
)

func (db *DB) CreatePurchase(ctx context.Context, p *models.Purchase) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}

	query := `INSERT INTO purchases (id, consultant_id, package_name, duration_minutes, email, phone, created_at)
              VALUES (?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	if _, err := db.ExecContext(ctx, query,
		p.ID, p.ConsultantID, p.PackageName, p.DurationMinutes, p.Email, p.Phone, now); err != nil {
		return fmt.Errorf("failed to create purchase: %w", err)
	}
	p.CreatedAt = now
	return nil
}

func (db *DB) GetPurchase(ctx context.Context, id string) (*models.Purchase, error) {
	var p models.Purchase
	query := `SELECT id, consultant_id, package_name, duration_minutes, email, phone, booking_id, created_at
              FROM purchases WHERE id = ?`
	err := db.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.ConsultantID, &p.PackageName, &p.DurationMinutes, &p.Email, &p.Phone, &p.BookingID, &p.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPurchaseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get purchase: %w", err)
	}
	return &p, nil
}
