package recurring

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Cembrun/Checkbell-V2/internal/store"
	"github.com/Cembrun/Checkbell-V2/internal/task"
)

// Templates is the per-department template collection. All writes go
// through the mutator on the department's recurring key.
type Templates struct {
	mutator *store.Mutator
	now     func() time.Time
}

func NewTemplates(m *store.Mutator) *Templates {
	return &Templates{mutator: m, now: time.Now}
}

// List returns the department's templates, newest first. Records missing
// creation metadata are normalized and written back.
func (t *Templates) List(ctx context.Context, department string) ([]Template, error) {
	now := t.now()

	list, err := store.Update(ctx, t.mutator, task.RecurringKey(department),
		func(items []Template) ([]Template, []Template, error) {
			changed := false
			for i := range items {
				if items[i].normalize(now) {
					changed = true
				}
			}

			out := append([]Template(nil), items...)
			if !changed {
				return nil, out, nil
			}
			return items, out, nil
		})
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}

	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})

	return list, nil
}

func (t *Templates) Create(ctx context.Context, department string, f Fields) (Template, error) {
	if err := f.Validate(); err != nil {
		return Template{}, err
	}

	tpl := NewTemplate(department, f, t.now())

	_, err := store.Update(ctx, t.mutator, task.RecurringKey(department),
		func(items []Template) ([]Template, struct{}, error) {
			return append(items, tpl), struct{}{}, nil
		})
	if err != nil {
		return Template{}, fmt.Errorf("failed to create template: %w", err)
	}

	return tpl, nil
}

func (t *Templates) Update(ctx context.Context, department, id string, p Patch) (Template, error) {
	if err := p.Validate(); err != nil {
		return Template{}, err
	}

	return store.Update(ctx, t.mutator, task.RecurringKey(department),
		func(items []Template) ([]Template, Template, error) {
			i := indexOf(items, id)
			if i < 0 {
				return nil, Template{}, fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
			}

			next := items[i]
			if err := p.apply(&next); err != nil {
				return nil, Template{}, err
			}

			items[i] = next
			return items, next, nil
		})
}

func (t *Templates) Delete(ctx context.Context, department, id string) error {
	_, err := store.Update(ctx, t.mutator, task.RecurringKey(department),
		func(items []Template) ([]Template, struct{}, error) {
			i := indexOf(items, id)
			if i < 0 {
				return nil, struct{}{}, fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
			}
			return append(items[:i], items[i+1:]...), struct{}{}, nil
		})

	return err
}

// Replace overwrites the whole template collection. Used by seeding.
func (t *Templates) Replace(ctx context.Context, department string, list []Template) error {
	_, err := store.Update(ctx, t.mutator, task.RecurringKey(department),
		func(_ []Template) ([]Template, struct{}, error) {
			if list == nil {
				return []Template{}, struct{}{}, nil
			}
			return list, struct{}{}, nil
		})

	return err
}

func indexOf(items []Template, id string) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}
