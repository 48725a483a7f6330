// Package archive keeps the per-department log of completed recurring tasks.
// The log is historical only; nothing reads it back to decide task state.
package archive

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/Cembrun/Checkbell-V2/internal/metrics"
	"github.com/Cembrun/Checkbell-V2/internal/repository"
	"github.com/Cembrun/Checkbell-V2/internal/store"
	"github.com/Cembrun/Checkbell-V2/internal/task"
)

type Archive struct {
	mutator *store.Mutator
	mirror   repository.ArchiveRepository
	now      func() time.Time
	location *time.Location
}

// New returns an archive writing through m. mirror may be nil. Day keys are
// taken in loc, or the local zone when loc is nil.
func New(m *store.Mutator, mirror repository.ArchiveRepository, loc *time.Location) *Archive {
	if loc == nil {
		loc = time.Local
	}
	return &Archive{mutator: m, mirror: mirror, now: time.Now, location: loc}
}

// Append records t as completed in department.
func (a *Archive) Append(ctx context.Context, department string, t task.Task) (task.ArchiveRecord, error) {
	rec := task.NewArchiveRecord(t, department, a.now().In(a.location))

	_, err := store.Update(ctx, a.mutator, task.ArchiveKey(department),
		func(items []task.ArchiveRecord) ([]task.ArchiveRecord, struct{}, error) {
			return append(items, rec), struct{}{}, nil
		})
	if err != nil {
		return task.ArchiveRecord{}, fmt.Errorf("failed to append archive record: %w", err)
	}

	if a.mirror != nil {
		if err := a.mirror.SaveRecord(ctx, department, rec); err != nil {
			log.Printf("[%s] failed to mirror archive record %s: %v", department, rec.ID, err)
			metrics.RecordSideEffectFailure("archive_mirror")
		}
	}

	return rec, nil
}

// RemoveLatest deletes the most recent record matching the instance id, or
// the item id when the instance id is empty or unmatched. It reports whether
// a record was removed; no match is not an error.
func (a *Archive) RemoveLatest(ctx context.Context, department, instanceID, id string) (bool, error) {
	removed, err := store.Update(ctx, a.mutator, task.ArchiveKey(department),
		func(items []task.ArchiveRecord) ([]task.ArchiveRecord, *task.ArchiveRecord, error) {
			for i := len(items) - 1; i >= 0; i-- {
				if items[i].Matches(instanceID, id) {
					rec := items[i]
					return append(items[:i], items[i+1:]...), &rec, nil
				}
			}
			return nil, nil, nil
		})
	if err != nil {
		return false, fmt.Errorf("failed to remove archive record: %w", err)
	}
	if removed == nil {
		return false, nil
	}

	if a.mirror != nil {
		if err := a.mirror.DeleteRecord(ctx, department, removed.ID, removed.ArchivedAt); err != nil {
			log.Printf("[%s] failed to remove mirrored archive record %s: %v", department, removed.ID, err)
			metrics.RecordSideEffectFailure("archive_mirror")
		}
	}

	return true, nil
}

// List returns the department's records, most recently archived first.
func (a *Archive) List(ctx context.Context, department string) ([]task.ArchiveRecord, error) {
	items, err := store.LoadList[task.ArchiveRecord](ctx, a.mutator.Store(), task.ArchiveKey(department))
	if err != nil {
		return nil, err
	}

	out := make([]task.ArchiveRecord, 0, len(items))
	for i := len(items) - 1; i >= 0; i-- {
		out = append(out, items[i])
	}
	return out, nil
}

// CountOn returns how many records were archived on the given day key.
func (a *Archive) CountOn(ctx context.Context, department, dayKey string) (int, error) {
	items, err := store.LoadList[task.ArchiveRecord](ctx, a.mutator.Store(), task.ArchiveKey(department))
	if err != nil {
		return 0, err
	}

	n := 0
	for _, r := range items {
		if r.DayKey == dayKey {
			n++
		}
	}
	return n, nil
}

func (a *Archive) Mirror() repository.ArchiveRepository {
	return a.mirror
}
