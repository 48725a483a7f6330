// Package repository provides PostgreSQL persistence for the completion archive.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/Cembrun/Checkbell-V2/internal/repository/models"
	"github.com/Cembrun/Checkbell-V2/internal/task"
	_ "github.com/lib/pq"
)

type PostgresArchiveRepository struct {
	db *sql.DB
}

const schema = `
	CREATE TABLE IF NOT EXISTS archive_records (
		department   TEXT        NOT NULL,
		task_id      TEXT        NOT NULL,
		instance_id  TEXT,
		template_id  TEXT,
		title        TEXT        NOT NULL,
		description  TEXT        NOT NULL DEFAULT '',
		due_date     TEXT,
		created_at   TIMESTAMPTZ,
		completed_at TIMESTAMPTZ NOT NULL,
		completed_by TEXT,
		archived_at  TIMESTAMPTZ NOT NULL,
		day_key      TEXT        NOT NULL,
		PRIMARY KEY (task_id, archived_at)
	);
	CREATE INDEX IF NOT EXISTS archive_records_department_idx
		ON archive_records (department, archived_at DESC);
`

func NewPostgresArchiveRepository(connectionString string) (*PostgresArchiveRepository, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresArchiveRepository{db: db}, nil
}

func (r *PostgresArchiveRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create archive schema: %w", err)
	}

	return nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (r *PostgresArchiveRepository) SaveRecord(ctx context.Context, department string, rec task.ArchiveRecord) error {
	query := `
		INSERT INTO archive_records (
			department, task_id, instance_id, template_id, title,
			description, due_date, created_at, completed_at,
			completed_by, archived_at, day_key
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (task_id, archived_at) DO UPDATE SET
			completed_at = EXCLUDED.completed_at,
			completed_by = EXCLUDED.completed_by
	`

	var createdAt any
	if !rec.CreatedAt.IsZero() {
		createdAt = rec.CreatedAt
	}

	_, err := r.db.ExecContext(
		ctx,
		query,
		department,
		rec.ID,
		nullString(rec.InstanceID),
		nullString(rec.TemplateID),
		rec.Title,
		rec.Description,
		nullString(rec.DueDate),
		createdAt,
		rec.CompletedAt,
		nullString(rec.CompletedBy),
		rec.ArchivedAt,
		rec.DayKey,
	)

	return err
}

func (r *PostgresArchiveRepository) DeleteRecord(ctx context.Context, department, taskID string, archivedAt time.Time) error {
	query := `
		DELETE FROM archive_records
		WHERE department = $1 AND task_id = $2 AND archived_at = $3
	`
	_, err := r.db.ExecContext(ctx, query, department, taskID, archivedAt)

	return err
}

func (r *PostgresArchiveRepository) GetCompletionStats(ctx context.Context, department string, days int) ([]models.CompletionStats, error) {
	query := `
		SELECT
			COALESCE(template_id, ''), MAX(title), COUNT(*) as count,
			COUNT(DISTINCT completed_by) as completers,
			MAX(completed_at) as last_completed_at
		FROM archive_records
		WHERE department = $1 AND archived_at > NOW() - INTERVAL '1 day' * $2
		GROUP BY template_id
		ORDER BY count DESC
	`
	rows, err := r.db.QueryContext(ctx, query, department, days)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err := rows.Close(); err != nil {
			log.Printf("failed to close rows: %v", err)
		}
	}()

	var stats []models.CompletionStats
	for rows.Next() {
		var s models.CompletionStats
		if err := rows.Scan(
			&s.TemplateID,
			&s.Title,
			&s.Count,
			&s.Completers,
			&s.LastCompletedAt,
		); err != nil {
			return nil, err
		}

		stats = append(stats, s)
	}

	return stats, rows.Err()
}

func (r *PostgresArchiveRepository) GetRecentRecords(ctx context.Context, department string, limit int) ([]models.ArchivedTask, error) {
	query := `
		SELECT
			task_id, COALESCE(instance_id, ''), COALESCE(template_id, ''),
			title, COALESCE(completed_by, ''), completed_at, archived_at, day_key
		FROM archive_records
		WHERE department = $1
		ORDER BY archived_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, department, limit)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err := rows.Close(); err != nil {
			log.Printf("failed to close rows: %v", err)
		}
	}()

	var records []models.ArchivedTask
	for rows.Next() {
		var a models.ArchivedTask
		if err := rows.Scan(
			&a.TaskID,
			&a.InstanceID,
			&a.TemplateID,
			&a.Title,
			&a.CompletedBy,
			&a.CompletedAt,
			&a.ArchivedAt,
			&a.DayKey,
		); err != nil {
			return nil, err
		}

		records = append(records, a)
	}

	return records, rows.Err()
}

func (r *PostgresArchiveRepository) DB() *sql.DB {
	return r.db
}

func (r *PostgresArchiveRepository) Close() error {
	return r.db.Close()
}
