package tracker

import (
	"context"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/Cembrun/Checkbell-V2/internal/store"
	"github.com/Cembrun/Checkbell-V2/internal/task"
)

type (
	Day       string
	DateBy    string
	SortOrder string
)

const (
	AnyDay    Day = ""
	Today     Day = "today"
	Yesterday Day = "yesterday"
	Last7Days Day = "last7days"
)

const (
	ByCreated   DateBy = "created"
	ByCompleted DateBy = "completed"
)

const (
	Desc SortOrder = "desc"
	Asc  SortOrder = "asc"
)

type ListOptions struct {
	Status task.Status
	Day    Day
	DateBy DateBy
	Sort   SortOrder
}

// ParseListOptions reads the list query parameters. Empty values fall back
// to no filter, the status-dependent date field and descending order.
func ParseListOptions(status, day, dateBy, order string) (ListOptions, error) {
	var opts ListOptions

	switch task.Status(strings.ToLower(status)) {
	case "":
	case task.StatusOpen:
		opts.Status = task.StatusOpen
	case task.StatusDone:
		opts.Status = task.StatusDone
	default:
		return opts, task.Invalid("status", "must be open or done, got %q", status)
	}

	switch strings.ToLower(day) {
	case "":
	case "today":
		opts.Day = Today
	case "yesterday":
		opts.Day = Yesterday
	case "last7days", "last7":
		opts.Day = Last7Days
	default:
		return opts, task.Invalid("day", "must be today, yesterday or last7days, got %q", day)
	}

	switch DateBy(strings.ToLower(dateBy)) {
	case "":
	case ByCreated:
		opts.DateBy = ByCreated
	case ByCompleted:
		opts.DateBy = ByCompleted
	default:
		return opts, task.Invalid("dateBy", "must be created or completed, got %q", dateBy)
	}

	switch SortOrder(strings.ToLower(order)) {
	case "", Desc:
		opts.Sort = Desc
	case Asc:
		opts.Sort = Asc
	default:
		return opts, task.Invalid("sort", "must be asc or desc, got %q", order)
	}

	return opts, nil
}

func (o ListOptions) dateField() DateBy {
	if o.DateBy != "" {
		return o.DateBy
	}
	if o.Status == task.StatusDone {
		return ByCompleted
	}
	return ByCreated
}

func dateOf(t task.Task, by DateBy) time.Time {
	if by == ByCompleted {
		if t.CompletedAt != nil {
			return *t.CompletedAt
		}
		return t.CreatedAt
	}

	if t.CreatedAt.IsZero() && t.CompletedAt != nil {
		return *t.CompletedAt
	}
	return t.CreatedAt
}

// window returns the half-open interval [from, to) a day filter selects.
func window(d Day, now time.Time) (time.Time, time.Time, bool) {
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	end := start.AddDate(0, 0, 1)

	switch d {
	case Today:
		return start, end, true
	case Yesterday:
		return start.AddDate(0, 0, -1), start, true
	case Last7Days:
		return start.AddDate(0, 0, -6), end, true
	default:
		return time.Time{}, time.Time{}, false
	}
}

// List returns the collection filtered and sorted by opts. Listing tasks
// first creates any recurring instances that are due.
func (s *Service) List(ctx context.Context, department string, c task.Collection, opts ListOptions) ([]task.Task, error) {
	if c == task.CollectionTasks && s.materializer != nil {
		if _, err := s.Materialize(ctx, department, false); err != nil {
			log.Printf("[%s] materialization before listing failed: %v", department, err)
		}
	}

	items, err := store.LoadList[task.Task](ctx, s.mutator.Store(), task.Key(department, c))
	if err != nil {
		return nil, err
	}

	return filter(items, opts, s.now().In(s.location)), nil
}

func filter(items []task.Task, opts ListOptions, now time.Time) []task.Task {
	by := opts.dateField()
	from, to, windowed := window(opts.Day, now)

	out := make([]task.Task, 0, len(items))
	for _, t := range items {
		t.Normalize()

		if opts.Status != "" && t.Status != opts.Status {
			continue
		}
		if windowed {
			d := dateOf(t, by)
			if d.Before(from) || !d.Before(to) {
				continue
			}
		}

		out = append(out, t)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := dateOf(out[i], by), dateOf(out[j], by)
		if opts.Sort == Asc {
			return a.Before(b)
		}
		return a.After(b)
	})

	return out
}
