// Package seed fills departments with demo data and imports template
// definitions from YAML files.
package seed

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Cembrun/Checkbell-V2/internal/recurring"
	"github.com/Cembrun/Checkbell-V2/internal/store"
	"github.com/Cembrun/Checkbell-V2/internal/task"
)

// Author is recorded as creator of everything the seeder writes.
const Author = "Seeder"

const demoItemsPerCollection = 6

type Summary struct {
	Department string `json:"department"`
	Tasks      int    `json:"tasks"`
	Reports    int    `json:"reports"`
	Templates  int    `json:"templates"`
}

type Seeder struct {
	mutator  *store.Mutator
	now      func() time.Time
	location *time.Location
}

func New(m *store.Mutator, loc *time.Location) *Seeder {
	if loc == nil {
		loc = time.Local
	}
	return &Seeder{
		mutator:  m,
		now:      time.Now,
		location: loc,
	}
}

// Department writes demo reports, tasks and templates for department.
// Without reset only empty collections are filled.
func (s *Seeder) Department(ctx context.Context, department string, reset bool) (Summary, error) {
	now := s.now().In(s.location)
	summary := Summary{Department: department}

	var err error
	summary.Tasks, err = fill(ctx, s.mutator, task.Key(department, task.CollectionTasks), reset,
		func() []task.Task { return DemoItems(department, task.CollectionTasks, now) })
	if err != nil {
		return summary, err
	}

	summary.Reports, err = fill(ctx, s.mutator, task.Key(department, task.CollectionReports), reset,
		func() []task.Task { return DemoItems(department, task.CollectionReports, now) })
	if err != nil {
		return summary, err
	}

	summary.Templates, err = fill(ctx, s.mutator, task.RecurringKey(department), reset,
		func() []recurring.Template { return DemoTemplates(department, now) })
	if err != nil {
		return summary, err
	}

	log.Printf("[%s] seeded %d task(s), %d report(s), %d template(s) (reset=%t)",
		department, summary.Tasks, summary.Reports, summary.Templates, reset)

	return summary, nil
}

func (s *Seeder) All(ctx context.Context, departments []string, reset bool) ([]Summary, error) {
	out := make([]Summary, 0, len(departments))
	for _, dep := range departments {
		summary, err := s.Department(ctx, dep, reset)
		if err != nil {
			return out, fmt.Errorf("failed to seed %s: %w", dep, err)
		}
		out = append(out, summary)
	}
	return out, nil
}

func fill[T any](ctx context.Context, m *store.Mutator, key string, reset bool, build func() []T) (int, error) {
	return store.Update(ctx, m, key, func(items []T) ([]T, int, error) {
		if !reset && len(items) > 0 {
			return nil, len(items), nil
		}
		fresh := build()
		return fresh, len(fresh), nil
	})
}

// DemoItems returns sample items spread over the last five days; every
// third one is done.
func DemoItems(department string, c task.Collection, now time.Time) []task.Task {
	categories := []string{"Betrieb", "Technik", "IT"}
	priorities := []task.Priority{task.PriorityHigh, task.PriorityMedium, task.PriorityLow}

	label := "Task"
	if c == task.CollectionReports {
		label = "Meldung"
	}

	out := make([]task.Task, 0, demoItemsPerCollection)
	for i := 0; i < demoItemsPerCollection; i++ {
		created := now.AddDate(0, 0, -(i % 5))

		t := task.NewTask(
			fmt.Sprintf("%s %d - %s", label, i+1, department),
			fmt.Sprintf("Beispiel-%s #%d für %s.", c, i+1, department),
			priorities[i%len(priorities)],
		)
		t.Category = categories[i%len(categories)]
		t.CreatedBy = Author
		t.CreatedAt = created
		if i%3 == 0 {
			t.Complete(Author, created)
		}

		out = append(out, *t)
	}
	return out
}

// DemoTemplates returns a morning and an evening daily template and a
// one-off template due tomorrow.
func DemoTemplates(department string, now time.Time) []recurring.Template {
	tomorrow := now.AddDate(0, 0, 1).Format(task.DayKeyLayout)

	fields := []recurring.Fields{
		{
			Title:         "Tägliche Anlagenrunde",
			Description:   "Standardprüfung am Morgen.",
			TimeOfDay:     "09:00",
			Recurrence:    recurring.Daily,
			LeadMinutes:   480,
			CooldownHours: 8,
			CreatedBy:     Author,
		},
		{
			Title:         "Abend-Checkliste",
			Description:   "Täglicher Abschluss vor Schichtende.",
			TimeOfDay:     "21:00",
			Recurrence:    recurring.Daily,
			LeadMinutes:   480,
			CooldownHours: 8,
			CreatedBy:     Author,
		},
		{
			Title:       "Einmalige Sonderprüfung",
			Description: "Nur morgen fällig.",
			TimeOfDay:   "10:30",
			Recurrence:  recurring.Once,
			DueDate:     tomorrow,
			LeadMinutes: 120,
			CreatedBy:   Author,
		},
	}

	out := make([]recurring.Template, 0, len(fields))
	for _, f := range fields {
		out = append(out, recurring.NewTemplate(department, f, now))
	}
	return out
}

// File is the YAML layout accepted by LoadTemplates:
//
//	templates:
//	  Technik:
//	    - title: Anlagenrunde
//	      timeOfDay: "09:00"
//	      recurrence: daily
type File struct {
	Templates map[string][]recurring.Fields `yaml:"templates"`
}

func LoadTemplates(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open template file: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.Printf("failed to close template file: %v", err)
		}
	}()

	return DecodeTemplates(f)
}

// DecodeTemplates parses and validates a template file. The first invalid
// entry fails the whole file.
func DecodeTemplates(r io.Reader) (*File, error) {
	var file File
	if err := yaml.NewDecoder(r).Decode(&file); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse template file: %w", err)
	}

	for dep, list := range file.Templates {
		for i, f := range list {
			if err := f.Validate(); err != nil {
				return nil, fmt.Errorf("%s template %d: %w", dep, i+1, err)
			}
		}
	}

	return &file, nil
}

func (f *File) Departments() []string {
	deps := make([]string, 0, len(f.Templates))
	for dep := range f.Templates {
		deps = append(deps, dep)
	}
	sort.Strings(deps)
	return deps
}

// Import writes the file's templates. With replace the department's
// existing templates are dropped, otherwise the new ones are added.
func Import(ctx context.Context, templates *recurring.Templates, file *File, replace bool) (int, error) {
	total := 0
	for _, dep := range file.Departments() {
		list := file.Templates[dep]

		if replace {
			now := time.Now()
			built := make([]recurring.Template, 0, len(list))
			for _, f := range list {
				built = append(built, recurring.NewTemplate(dep, f, now))
			}
			if err := templates.Replace(ctx, dep, built); err != nil {
				return total, err
			}
			total += len(built)
			continue
		}

		for _, f := range list {
			if _, err := templates.Create(ctx, dep, f); err != nil {
				return total, err
			}
			total++
		}
	}
	return total, nil
}
