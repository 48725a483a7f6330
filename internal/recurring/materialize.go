package recurring

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/Cembrun/Checkbell-V2/internal/metrics"
	"github.com/Cembrun/Checkbell-V2/internal/store"
	"github.com/Cembrun/Checkbell-V2/internal/task"
)

// Options control a single materialization run. Force skips the lead-time
// and cooldown gates; recurrence scoping and the one-instance-per-day rule
// still apply.
type Options struct {
	Force bool
}

type Materializer struct {
	mutator  *store.Mutator
	now      func() time.Time
	location *time.Location
}

type Option func(*Materializer)

func WithClock(now func() time.Time) Option {
	return func(m *Materializer) {
		m.now = now
	}
}

// WithLocation sets the zone that day keys and minutes of day are read in.
func WithLocation(loc *time.Location) Option {
	return func(m *Materializer) {
		if loc != nil {
			m.location = loc
		}
	}
}

func NewMaterializer(m *store.Mutator, opts ...Option) *Materializer {
	mz := &Materializer{
		mutator:  m,
		now:      time.Now,
		location: time.Local,
	}
	for _, opt := range opts {
		opt(mz)
	}
	return mz
}

// InstanceID is the key that allows at most one instance per template per day.
func InstanceID(templateID, dayKey string) string {
	return fmt.Sprintf("rec_%s_%s", templateID, dayKey)
}

// Materialize appends today's due instances for every eligible template of
// the department and returns how many were created. The task collection is
// read and written once, under its lock.
func (m *Materializer) Materialize(ctx context.Context, department string, opts Options) (int, error) {
	templates, err := store.LoadList[Template](ctx, m.mutator.Store(), task.RecurringKey(department))
	if err != nil {
		metrics.RecordMaterializeFailed(department)
		return 0, fmt.Errorf("failed to load templates: %w", err)
	}
	if len(templates) == 0 {
		return 0, nil
	}

	created, err := store.Update(ctx, m.mutator, task.Key(department, task.CollectionTasks),
		func(items []task.Task) ([]task.Task, int, error) {
			now := m.now().In(m.location)
			fresh := plan(templates, items, now, opts.Force)
			if len(fresh) == 0 {
				return nil, 0, nil
			}
			return append(items, fresh...), len(fresh), nil
		})
	if err != nil {
		metrics.RecordMaterializeFailed(department)
		return 0, fmt.Errorf("failed to materialize %s: %w", department, err)
	}

	if created > 0 {
		log.Printf("[%s] materialized %d recurring task(s) (force=%t)", department, created, opts.Force)
	}
	metrics.RecordMaterialized(department, created, opts.Force)

	return created, nil
}

// plan decides which instances to create at now. It does not modify tasks.
func plan(templates []Template, tasks []task.Task, now time.Time, force bool) []task.Task {
	today := now.Format(task.DayKeyLayout)
	nowMinutes := now.Hour()*60 + now.Minute()

	existing := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		if t.InstanceID != "" {
			existing[t.InstanceID] = true
		}
	}

	var fresh []task.Task
	for _, tpl := range templates {
		switch tpl.Recurrence {
		case Once:
			if tpl.DueDate != today {
				continue
			}
		case Daily:
		default:
			continue
		}

		if !force {
			allowedFrom := max(0, minutesOfDay(tpl.TimeOfDay)-max(0, tpl.LeadMinutes))
			if nowMinutes < allowedFrom {
				continue
			}

			if tpl.CooldownHours > 0 {
				if last, ok := lastCompletion(tasks, tpl.ID); ok {
					if now.Sub(last).Hours() < float64(tpl.CooldownHours) {
						continue
					}
				}
			}
		}

		id := InstanceID(tpl.ID, today)
		if existing[id] {
			continue
		}
		existing[id] = true

		fresh = append(fresh, newInstance(tpl, id, today, now))
	}

	return fresh
}

func lastCompletion(tasks []task.Task, templateID string) (time.Time, bool) {
	var last time.Time
	found := false
	for _, t := range tasks {
		if t.TemplateID != templateID || !t.Completed || t.CompletedAt == nil {
			continue
		}
		if !found || t.CompletedAt.After(last) {
			last = *t.CompletedAt
			found = true
		}
	}
	return last, found
}

func newInstance(tpl Template, instanceID, today string, now time.Time) task.Task {
	timeOfDay := tpl.TimeOfDay
	if timeOfDay == "" {
		timeOfDay = "00:00"
	}

	return task.Task{
		ID:             task.NewID(),
		InstanceID:     instanceID,
		TemplateID:     tpl.ID,
		FromRecurring:  true,
		Title:          tpl.Title,
		Description:    tpl.Description,
		Category:       task.DefaultCategory,
		Priority:       task.PriorityMedium,
		Status:         task.StatusOpen,
		InstructionURL: tpl.InstructionURL,
		CreatedAt:      now,
		DueDate:        today + " " + timeOfDay,
		Notes:          []task.Note{},
		Attachments:    []task.Attachment{},
	}
}
