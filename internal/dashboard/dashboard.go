// Package dashboard serves per-department figures for the monitoring view.
package dashboard

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/Cembrun/Checkbell-V2/internal/archive"
	"github.com/Cembrun/Checkbell-V2/internal/httputil"
	"github.com/Cembrun/Checkbell-V2/internal/recurring"
	"github.com/Cembrun/Checkbell-V2/internal/repository/models"
	"github.com/Cembrun/Checkbell-V2/internal/store"
	"github.com/Cembrun/Checkbell-V2/internal/task"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
	completionStatsDays = 7
)

type Dashboard struct {
	store    store.Store
	archive  *archive.Archive
	now      func() time.Time
	location *time.Location
}

type CollectionStats struct {
	Total     int `json:"total"`
	Open      int `json:"open"`
	Done      int `json:"done"`
	DoneToday int `json:"done_today"`
	Forwarded int `json:"forwarded"`
}

type Stats struct {
	Department    string                   `json:"department"`
	Tasks         CollectionStats          `json:"tasks"`
	Reports       CollectionStats          `json:"reports"`
	Templates     int                      `json:"templates"`
	RecurringOpen int                      `json:"recurring_open"`
	ArchivedToday int                      `json:"archived_today"`
	TopRecurring  []models.CompletionStats `json:"top_recurring"`
	LastUpdated   time.Time                `json:"last_updated"`
}

func NewDashboard(s store.Store, a *archive.Archive, loc *time.Location) *Dashboard {
	if loc == nil {
		loc = time.Local
	}
	return &Dashboard{
		store:    s,
		archive:  a,
		now:      time.Now,
		location: loc,
	}
}

// Collect reads the department's documents without taking their locks, so
// the figures may trail a concurrent write.
func (d *Dashboard) Collect(ctx context.Context, department string) (Stats, error) {
	now := d.now().In(d.location)
	today := now.Format(task.DayKeyLayout)

	stats := Stats{
		Department:   department,
		TopRecurring: []models.CompletionStats{},
		LastUpdated:  now,
	}

	tasks, err := store.LoadList[task.Task](ctx, d.store, task.Key(department, task.CollectionTasks))
	if err != nil {
		return stats, err
	}
	stats.Tasks = count(tasks, today, d.location)
	for _, t := range tasks {
		if t.FromRecurring && !t.Completed && t.Status != task.StatusDone {
			stats.RecurringOpen++
		}
	}

	reports, err := store.LoadList[task.Task](ctx, d.store, task.Key(department, task.CollectionReports))
	if err != nil {
		return stats, err
	}
	stats.Reports = count(reports, today, d.location)

	templates, err := store.LoadList[recurring.Template](ctx, d.store, task.RecurringKey(department))
	if err != nil {
		return stats, err
	}
	stats.Templates = len(templates)

	if d.archive == nil {
		return stats, nil
	}

	stats.ArchivedToday, err = d.archive.CountOn(ctx, department, today)
	if err != nil {
		return stats, err
	}

	if mirror := d.archive.Mirror(); mirror != nil {
		top, err := mirror.GetCompletionStats(ctx, department, completionStatsDays)
		if err != nil {
			log.Printf("[%s] failed to load completion stats: %v", department, err)
		} else if top != nil {
			stats.TopRecurring = top
		}
	}

	return stats, nil
}

func count(items []task.Task, today string, loc *time.Location) CollectionStats {
	var c CollectionStats
	for _, t := range items {
		t.Normalize()

		c.Total++
		if t.SourceDepartment != "" {
			c.Forwarded++
		}
		if t.Status != task.StatusDone {
			c.Open++
			continue
		}

		c.Done++
		if t.CompletedAt != nil && t.CompletedAt.In(loc).Format(task.DayKeyLayout) == today {
			c.DoneToday++
		}
	}
	return c
}

func (d *Dashboard) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := d.Collect(r.Context(), r.PathValue("department"))
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	httputil.WriteJSON(w, stats, http.StatusOK)
}

// GetHistory lists the most recent archive entries, from the Postgres
// mirror when one is configured.
func (d *Dashboard) GetHistory(w http.ResponseWriter, r *http.Request) {
	department := r.PathValue("department")

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httputil.WriteJSONError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	history, err := d.history(r.Context(), department, limit)
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	httputil.WriteJSON(w, history, http.StatusOK)
}

func (d *Dashboard) history(ctx context.Context, department string, limit int) ([]models.ArchivedTask, error) {
	if d.archive == nil {
		return []models.ArchivedTask{}, nil
	}

	if mirror := d.archive.Mirror(); mirror != nil {
		recent, err := mirror.GetRecentRecords(ctx, department, limit)
		if err == nil {
			if recent == nil {
				recent = []models.ArchivedTask{}
			}
			return recent, nil
		}
		log.Printf("[%s] mirror history unavailable, using archive document: %v", department, err)
	}

	records, err := d.archive.List(ctx, department)
	if err != nil {
		return nil, err
	}

	out := make([]models.ArchivedTask, 0, min(len(records), limit))
	for _, rec := range records {
		if len(out) == limit {
			break
		}
		out = append(out, models.ArchivedTask{
			TaskID:      rec.ID,
			InstanceID:  rec.InstanceID,
			TemplateID:  rec.TemplateID,
			Title:       rec.Title,
			CompletedBy: rec.CompletedBy,
			CompletedAt: rec.CompletedAt,
			ArchivedAt:  rec.ArchivedAt,
			DayKey:      rec.DayKey,
		})
	}
	return out, nil
}
