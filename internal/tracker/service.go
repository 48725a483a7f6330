// Package tracker implements the operations on a department's reports and
// tasks. Every change is a single locked read-modify-write of one collection;
// archive writes, back-sync to forwarded originals and notifications run
// afterwards and never fail the operation that triggered them.
package tracker

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/Cembrun/Checkbell-V2/internal/archive"
	"github.com/Cembrun/Checkbell-V2/internal/metrics"
	"github.com/Cembrun/Checkbell-V2/internal/notify"
	"github.com/Cembrun/Checkbell-V2/internal/recurring"
	"github.com/Cembrun/Checkbell-V2/internal/store"
	"github.com/Cembrun/Checkbell-V2/internal/task"
)

// SystemAuthor signs notes the service writes itself.
const SystemAuthor = "System"

type Service struct {
	mutator      *store.Mutator
	materializer *recurring.Materializer
	archive      *archive.Archive
	notifier     notify.Notifier
	now          func() time.Time
	location     *time.Location
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.location = loc
		}
	}
}

func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

func NewService(m *store.Mutator, mz *recurring.Materializer, a *archive.Archive, opts ...Option) *Service {
	s := &Service{
		mutator:      m,
		materializer: mz,
		archive:      a,
		notifier:     notify.Nop{},
		now:          time.Now,
		location:     time.Local,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type NewItem struct {
	Title          string            `json:"title"`
	Description    string            `json:"description"`
	Category       string            `json:"category"`
	Priority       task.Priority     `json:"priority"`
	DueDate        string            `json:"dueDate"`
	InstructionURL string            `json:"instructionUrl"`
	CreatedBy      string            `json:"createdBy"`
	Attachments    []task.Attachment `json:"attachments"`
}

// ItemPatch merges the set fields into an item. Attachments are appended.
type ItemPatch struct {
	Title          *string           `json:"title"`
	Description    *string           `json:"description"`
	Category       *string           `json:"category"`
	Priority       *task.Priority    `json:"priority"`
	DueDate        *string           `json:"dueDate"`
	InstructionURL *string           `json:"instructionUrl"`
	Attachments    []task.Attachment `json:"attachments"`
}

func checkPriority(p task.Priority) error {
	if p == "" {
		return nil
	}
	if _, ok := task.ParsePriority(string(p)); !ok {
		return task.Invalid("priority", "must be low, medium or high, got %q", p)
	}
	return nil
}

func (in NewItem) validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return task.Invalid("title", "is required")
	}
	return checkPriority(in.Priority)
}

func (p ItemPatch) validate() error {
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return task.Invalid("title", "must not be empty")
	}
	if p.Priority != nil {
		return checkPriority(*p.Priority)
	}
	return nil
}

func notFound(department string, c task.Collection, idOrIndex string) error {
	return fmt.Errorf("%w: %s in %s", task.ErrNotFound, idOrIndex, task.Key(department, c))
}

// mutate runs fn on the item addressed by idOrIndex under the collection's
// lock and stores the result. fn may reject the change by returning an error.
func (s *Service) mutate(ctx context.Context, department string, c task.Collection, idOrIndex string, fn func(t *task.Task) error) (task.Task, error) {
	return store.Update(ctx, s.mutator, task.Key(department, c),
		func(items []task.Task) ([]task.Task, task.Task, error) {
			i := task.IndexOf(items, idOrIndex)
			if i < 0 {
				return nil, task.Task{}, notFound(department, c, idOrIndex)
			}

			t := items[i]
			t.Normalize()
			if err := fn(&t); err != nil {
				return nil, task.Task{}, err
			}

			items[i] = t
			return items, t.Clone(), nil
		})
}

func (s *Service) Create(ctx context.Context, department string, c task.Collection, in NewItem) (task.Task, error) {
	if err := in.validate(); err != nil {
		return task.Task{}, err
	}

	priority := in.Priority
	if priority == "" {
		priority = task.PriorityMedium
	}

	t := task.NewTask(strings.TrimSpace(in.Title), in.Description, priority)
	t.CreatedAt = s.now()
	t.Category = in.Category
	t.DueDate = in.DueDate
	t.InstructionURL = in.InstructionURL
	t.CreatedBy = in.CreatedBy
	if in.Attachments != nil {
		t.Attachments = append(t.Attachments, in.Attachments...)
	}

	_, err := store.Update(ctx, s.mutator, task.Key(department, c),
		func(items []task.Task) ([]task.Task, struct{}, error) {
			return append(items, *t), struct{}{}, nil
		})
	if err != nil {
		return task.Task{}, fmt.Errorf("failed to create item: %w", err)
	}

	metrics.RecordMutation("create", string(c))
	return *t, nil
}

func (s *Service) Get(ctx context.Context, department string, c task.Collection, idOrIndex string) (task.Task, error) {
	items, err := store.LoadList[task.Task](ctx, s.mutator.Store(), task.Key(department, c))
	if err != nil {
		return task.Task{}, err
	}

	i := task.IndexOf(items, idOrIndex)
	if i < 0 {
		return task.Task{}, notFound(department, c, idOrIndex)
	}

	t := items[i]
	t.Normalize()
	return t, nil
}

func (s *Service) Update(ctx context.Context, department string, c task.Collection, idOrIndex string, p ItemPatch) (task.Task, error) {
	if err := p.validate(); err != nil {
		return task.Task{}, err
	}

	updated, err := s.mutate(ctx, department, c, idOrIndex, func(t *task.Task) error {
		if p.Title != nil {
			t.Title = strings.TrimSpace(*p.Title)
		}
		if p.Description != nil {
			t.Description = *p.Description
		}
		if p.Category != nil {
			t.Category = *p.Category
		}
		if p.Priority != nil {
			t.Priority = *p.Priority
		}
		if p.DueDate != nil {
			t.DueDate = *p.DueDate
		}
		if p.InstructionURL != nil {
			t.InstructionURL = *p.InstructionURL
		}
		t.Attachments = append(t.Attachments, p.Attachments...)
		return nil
	})
	if err != nil {
		return task.Task{}, err
	}

	metrics.RecordMutation("update", string(c))

	if p.Description != nil && updated.IsForwarded() {
		description := updated.Description
		s.syncOrigin(ctx, updated, "description_sync", func(orig *task.Task) {
			orig.Description = description
		})
	}

	return updated, nil
}

func (s *Service) Delete(ctx context.Context, department string, c task.Collection, idOrIndex string) (task.Task, error) {
	removed, err := store.Update(ctx, s.mutator, task.Key(department, c),
		func(items []task.Task) ([]task.Task, task.Task, error) {
			i := task.IndexOf(items, idOrIndex)
			if i < 0 {
				return nil, task.Task{}, notFound(department, c, idOrIndex)
			}

			t := items[i]
			return append(items[:i], items[i+1:]...), t, nil
		})
	if err != nil {
		return task.Task{}, err
	}

	metrics.RecordMutation("delete", string(c))
	return removed, nil
}

// SetCompleted completes or reopens an item. A nil completed toggles the
// current state. actor is recorded as the finisher when completing.
func (s *Service) SetCompleted(ctx context.Context, department string, c task.Collection, idOrIndex string, completed *bool, actor string) (task.Task, error) {
	now := s.now()

	t, err := s.mutate(ctx, department, c, idOrIndex, func(t *task.Task) error {
		next := !t.Completed
		if completed != nil {
			next = *completed
		}

		if next {
			t.Complete(strings.TrimSpace(actor), now)
		} else {
			t.Reopen()
		}
		return nil
	})
	if err != nil {
		return task.Task{}, err
	}

	op := "reopen"
	if t.Completed {
		op = "complete"
	}
	metrics.RecordMutation(op, string(c))

	if c == task.CollectionTasks && t.FromRecurring {
		s.recordArchive(ctx, department, t)
	}

	if t.IsForwarded() {
		status, done, completedAt, completedBy := t.Status, t.Completed, t.CompletedAt, t.CompletedBy
		s.syncOrigin(ctx, t, "completion_sync", func(orig *task.Task) {
			orig.Status = status
			orig.Completed = done
			orig.CompletedAt = completedAt
			orig.CompletedBy = completedBy
		})
	}

	return t, nil
}

func (s *Service) recordArchive(ctx context.Context, department string, t task.Task) {
	if t.Completed {
		if _, err := s.archive.Append(ctx, department, t); err != nil {
			log.Printf("[%s] failed to archive %s: %v", department, t.ID, err)
			metrics.RecordSideEffectFailure("archive")
		}
		return
	}

	if _, err := s.archive.RemoveLatest(ctx, department, t.InstanceID, t.ID); err != nil {
		log.Printf("[%s] failed to remove archive entry for %s: %v", department, t.ID, err)
		metrics.RecordSideEffectFailure("archive")
	}
}

// Forward copies an item into the target department's task collection.
// The copy is written first; the note on the original follows as a separate
// write, so a failure there leaves the original unannotated but intact.
func (s *Service) Forward(ctx context.Context, department string, c task.Collection, idOrIndex, target string) (task.Task, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return task.Task{}, task.Invalid("targetDepartment", "is required")
	}

	source, err := s.Get(ctx, department, c, idOrIndex)
	if err != nil {
		return task.Task{}, err
	}

	now := s.now()
	fwd := source.Clone()
	fwd.ID = task.NewID()
	fwd.InstanceID = ""
	fwd.TemplateID = ""
	fwd.FromRecurring = false
	fwd.Reopen()
	fwd.CompletedBy = ""
	fwd.SourceDepartment = department
	fwd.SourceCollection = c
	fwd.TargetDepartment = ""
	fwd.OriginalID = source.ID
	fwd.CreatedAt = now
	fwd.Notes = append(fwd.Notes, task.Note{
		Author:    SystemAuthor,
		Text:      fmt.Sprintf("Weitergeleitet von %s", department),
		Timestamp: now,
	})

	_, err = store.Update(ctx, s.mutator, task.Key(target, task.CollectionTasks),
		func(items []task.Task) ([]task.Task, struct{}, error) {
			return append(items, fwd), struct{}{}, nil
		})
	if err != nil {
		return task.Task{}, fmt.Errorf("failed to forward item: %w", err)
	}

	metrics.RecordMutation("forward", string(c))

	_, err = s.mutate(ctx, department, c, source.ID, func(t *task.Task) error {
		t.TargetDepartment = target
		t.Notes = append(t.Notes, task.Note{
			Author:    SystemAuthor,
			Text:      fmt.Sprintf("Weitergeleitet an %s", target),
			Timestamp: now,
		})
		return nil
	})
	if err != nil {
		log.Printf("[%s] failed to annotate forwarded item %s: %v", department, source.ID, err)
		metrics.RecordSideEffectFailure("forward_note")
	}

	if err := s.notifier.Forwarded(ctx, department, target, fwd); err != nil {
		log.Printf("[%s] failed to notify about forwarded item %s: %v", target, fwd.ID, err)
		metrics.RecordSideEffectFailure("notify")
	}

	return fwd, nil
}

func (s *Service) AddNote(ctx context.Context, department string, c task.Collection, idOrIndex, author, text string) (task.Task, error) {
	author = strings.TrimSpace(author)
	text = strings.TrimSpace(text)
	if author == "" {
		return task.Task{}, task.Invalid("author", "is required")
	}
	if text == "" {
		return task.Task{}, task.Invalid("text", "is required")
	}

	note := task.Note{Author: author, Text: text, Timestamp: s.now()}

	t, err := s.mutate(ctx, department, c, idOrIndex, func(t *task.Task) error {
		t.Notes = append(t.Notes, note)
		return nil
	})
	if err != nil {
		return task.Task{}, err
	}

	metrics.RecordMutation("note", string(c))

	if t.IsForwarded() {
		s.syncOrigin(ctx, t, "note_sync", func(orig *task.Task) {
			orig.Notes = append(orig.Notes, note)
		})
	}

	return t, nil
}

// syncOrigin applies fn to the item t was forwarded from. A missing original
// is skipped silently; other failures are logged and counted.
func (s *Service) syncOrigin(ctx context.Context, t task.Task, kind string, fn func(orig *task.Task)) {
	key := task.Key(t.SourceDepartment, t.OriginCollection())

	_, err := store.Update(ctx, s.mutator, key,
		func(items []task.Task) ([]task.Task, struct{}, error) {
			i := task.IndexByID(items, t.OriginalID)
			if i < 0 {
				return nil, struct{}{}, nil
			}

			orig := items[i]
			orig.Normalize()
			fn(&orig)
			items[i] = orig
			return items, struct{}{}, nil
		})
	if err != nil {
		log.Printf("[%s] %s of %s to %s failed: %v", t.SourceDepartment, kind, t.ID, key, err)
		metrics.RecordSideEffectFailure(kind)
	}
}

// Materialize runs the recurring engine for department.
func (s *Service) Materialize(ctx context.Context, department string, force bool) (int, error) {
	return s.materializer.Materialize(ctx, department, recurring.Options{Force: force})
}
