package repository

import (
	"context"
	"time"

	"github.com/Cembrun/Checkbell-V2/internal/repository/models"
	"github.com/Cembrun/Checkbell-V2/internal/task"
)

// ArchiveRepository mirrors the per-department archive into a queryable store.
type ArchiveRepository interface {
	SaveRecord(ctx context.Context, department string, r task.ArchiveRecord) error
	DeleteRecord(ctx context.Context, department, taskID string, archivedAt time.Time) error
	GetCompletionStats(ctx context.Context, department string, days int) ([]models.CompletionStats, error)
	GetRecentRecords(ctx context.Context, department string, limit int) ([]models.ArchivedTask, error)
	Close() error
}
