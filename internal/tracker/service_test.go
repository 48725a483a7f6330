package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Cembrun/Checkbell-V2/internal/archive"
	"github.com/Cembrun/Checkbell-V2/internal/recurring"
	"github.com/Cembrun/Checkbell-V2/internal/repository"
	"github.com/Cembrun/Checkbell-V2/internal/store"
	"github.com/Cembrun/Checkbell-V2/internal/task"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)

type forwardCall struct {
	From, To string
	Task     task.Task
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []forwardCall
	err   error
}

func (f *fakeNotifier) Forwarded(_ context.Context, from, to string, t task.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, forwardCall{From: from, To: to, Task: t})
	return f.err
}

type testEnv struct {
	svc      *Service
	store    store.Store
	archive  *archive.Archive
	mirror   *repository.MockArchiveRepository
	notifier *fakeNotifier
}

func newEnv(t *testing.T, s store.Store) *testEnv {
	t.Helper()

	clock := func() time.Time { return testNow }
	m := store.NewMutator(s)
	mirror := repository.NewMockArchiveRepository()
	notifier := &fakeNotifier{}
	mz := recurring.NewMaterializer(m, recurring.WithClock(clock), recurring.WithLocation(time.UTC))
	a := archive.New(m, mirror, time.UTC)

	svc := NewService(m, mz, a,
		WithClock(clock),
		WithLocation(time.UTC),
		WithNotifier(notifier),
	)

	return &testEnv{svc: svc, store: s, archive: a, mirror: mirror, notifier: notifier}
}

func setupService(t *testing.T) *testEnv {
	return newEnv(t, store.NewMemoryStore())
}

func (e *testEnv) items(t *testing.T, department string, c task.Collection) []task.Task {
	t.Helper()

	items, err := store.LoadList[task.Task](context.Background(), e.store, task.Key(department, c))
	require.NoError(t, err)
	return items
}

func (e *testEnv) seed(t *testing.T, department string, c task.Collection, items ...task.Task) {
	t.Helper()
	require.NoError(t, store.SaveList(context.Background(), e.store, task.Key(department, c), items))
}

func boolPtr(b bool) *bool { return &b }

func TestCreate(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	created, err := env.svc.Create(ctx, "Leitstand", task.CollectionReports, NewItem{
		Title:       "  Alarm Halle 3  ",
		Description: "Rauchmelder",
		CreatedBy:   "anna",
		Attachments: []task.Attachment{{Name: "foto.jpg", URL: "/uploads/foto.jpg", MimeType: "image/jpeg"}},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Alarm Halle 3", created.Title)
	assert.Equal(t, task.StatusOpen, created.Status)
	assert.False(t, created.Completed)
	assert.Equal(t, task.PriorityMedium, created.Priority)
	assert.Equal(t, testNow, created.CreatedAt)
	assert.Empty(t, created.SourceDepartment)
	assert.Len(t, created.Attachments, 1)

	stored := env.items(t, "Leitstand", task.CollectionReports)
	require.Len(t, stored, 1)
	assert.Equal(t, created.ID, stored[0].ID)
}

func TestCreate_Validation(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	_, err := env.svc.Create(ctx, "Leitstand", task.CollectionReports, NewItem{Title: " "})
	assert.True(t, task.IsValidation(err))

	_, err = env.svc.Create(ctx, "Leitstand", task.CollectionReports, NewItem{Title: "x", Priority: "urgent"})
	assert.True(t, task.IsValidation(err))

	assert.Empty(t, env.items(t, "Leitstand", task.CollectionReports))
}

func TestGet(t *testing.T) {
	env := setupService(t)
	env.seed(t, "Technik", task.CollectionTasks, task.Task{ID: "a", Title: "A"}, task.Task{ID: "b", Title: "B"})
	ctx := context.Background()

	got, err := env.svc.Get(ctx, "Technik", task.CollectionTasks, "b")
	require.NoError(t, err)
	assert.Equal(t, "B", got.Title)
	assert.Equal(t, task.StatusOpen, got.Status, "items are normalized on read")

	got, err = env.svc.Get(ctx, "Technik", task.CollectionTasks, "0")
	require.NoError(t, err)
	assert.Equal(t, "A", got.Title)

	_, err = env.svc.Get(ctx, "Technik", task.CollectionTasks, "7")
	assert.ErrorIs(t, err, task.ErrNotFound)
}

func TestUpdate(t *testing.T) {
	env := setupService(t)
	env.seed(t, "Technik", task.CollectionTasks, task.Task{
		ID:          "a",
		Title:       "Pumpe",
		Attachments: []task.Attachment{{Name: "alt.pdf"}},
	})

	title := "Pumpe 2"
	high := task.PriorityHigh
	updated, err := env.svc.Update(context.Background(), "Technik", task.CollectionTasks, "a", ItemPatch{
		Title:       &title,
		Priority:    &high,
		Attachments: []task.Attachment{{Name: "neu.pdf"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "Pumpe 2", updated.Title)
	assert.Equal(t, task.PriorityHigh, updated.Priority)
	require.Len(t, updated.Attachments, 2)
	assert.Equal(t, "alt.pdf", updated.Attachments[0].Name)
	assert.Equal(t, "neu.pdf", updated.Attachments[1].Name)

	stored := env.items(t, "Technik", task.CollectionTasks)
	assert.Equal(t, "Pumpe 2", stored[0].Title)
}

func TestUpdate_NotFoundAndValidation(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	title := "x"
	_, err := env.svc.Update(ctx, "Technik", task.CollectionTasks, "missing", ItemPatch{Title: &title})
	assert.ErrorIs(t, err, task.ErrNotFound)

	empty := ""
	_, err = env.svc.Update(ctx, "Technik", task.CollectionTasks, "missing", ItemPatch{Title: &empty})
	assert.True(t, task.IsValidation(err))
}

func TestDelete(t *testing.T) {
	env := setupService(t)
	env.seed(t, "Technik", task.CollectionTasks, task.Task{ID: "a"}, task.Task{ID: "b"})
	ctx := context.Background()

	removed, err := env.svc.Delete(ctx, "Technik", task.CollectionTasks, "a")
	require.NoError(t, err)
	assert.Equal(t, "a", removed.ID)

	_, err = env.svc.Delete(ctx, "Technik", task.CollectionTasks, "a")
	assert.ErrorIs(t, err, task.ErrNotFound)

	stored := env.items(t, "Technik", task.CollectionTasks)
	require.Len(t, stored, 1)
	assert.Equal(t, "b", stored[0].ID)
}

func TestSetCompleted(t *testing.T) {
	env := setupService(t)
	env.seed(t, "Technik", task.CollectionTasks, task.Task{ID: "a", Title: "A"})
	ctx := context.Background()

	done, err := env.svc.SetCompleted(ctx, "Technik", task.CollectionTasks, "a", boolPtr(true), "anna")
	require.NoError(t, err)
	assert.True(t, done.Completed)
	assert.Equal(t, task.StatusDone, done.Status)
	require.NotNil(t, done.CompletedAt)
	assert.Equal(t, testNow, *done.CompletedAt)
	assert.Equal(t, "anna", done.CompletedBy)

	reopened, err := env.svc.SetCompleted(ctx, "Technik", task.CollectionTasks, "a", boolPtr(false), "")
	require.NoError(t, err)
	assert.False(t, reopened.Completed)
	assert.Equal(t, task.StatusOpen, reopened.Status)
	assert.Nil(t, reopened.CompletedAt)

	stored := env.items(t, "Technik", task.CollectionTasks)
	assert.Equal(t, task.StatusOpen, stored[0].Status)
}

func TestSetCompleted_TogglesWhenOmitted(t *testing.T) {
	env := setupService(t)
	env.seed(t, "Technik", task.CollectionTasks, task.Task{ID: "a"})
	ctx := context.Background()

	first, err := env.svc.SetCompleted(ctx, "Technik", task.CollectionTasks, "a", nil, "")
	require.NoError(t, err)
	assert.True(t, first.Completed)
	assert.Equal(t, task.UnknownActor, first.CompletedBy)

	second, err := env.svc.SetCompleted(ctx, "Technik", task.CollectionTasks, "a", nil, "")
	require.NoError(t, err)
	assert.False(t, second.Completed)
}

func TestSetCompleted_NotFound(t *testing.T) {
	env := setupService(t)

	_, err := env.svc.SetCompleted(context.Background(), "Technik", task.CollectionTasks, "nope", boolPtr(true), "anna")
	assert.ErrorIs(t, err, task.ErrNotFound)
}

func recurringTask(id, instanceID string) task.Task {
	return task.Task{
		ID:            id,
		InstanceID:    instanceID,
		TemplateID:    "tpl1",
		FromRecurring: true,
		Title:         "Anlagenrunde",
	}
}

func TestSetCompleted_ArchivesRecurringTasks(t *testing.T) {
	env := setupService(t)
	env.seed(t, "Technik", task.CollectionTasks,
		recurringTask("r1", "rec_tpl1_2025-01-02"),
		task.Task{ID: "manual"},
	)
	ctx := context.Background()

	_, err := env.svc.SetCompleted(ctx, "Technik", task.CollectionTasks, "r1", boolPtr(true), "anna")
	require.NoError(t, err)
	_, err = env.svc.SetCompleted(ctx, "Technik", task.CollectionTasks, "manual", boolPtr(true), "anna")
	require.NoError(t, err)

	records, err := env.archive.List(ctx, "Technik")
	require.NoError(t, err)
	require.Len(t, records, 1, "only recurring instances are archived")
	assert.Equal(t, "rec_tpl1_2025-01-02", records[0].InstanceID)
	assert.Equal(t, "anna", records[0].CompletedBy)
	assert.Equal(t, 1, env.mirror.GetSaveRecordCallCount())
}

func TestSetCompleted_ReopenRemovesArchive(t *testing.T) {
	env := setupService(t)
	env.seed(t, "Technik", task.CollectionTasks, recurringTask("r1", "rec_tpl1_2025-01-02"))
	ctx := context.Background()

	_, err := env.svc.SetCompleted(ctx, "Technik", task.CollectionTasks, "r1", boolPtr(true), "anna")
	require.NoError(t, err)
	_, err = env.svc.SetCompleted(ctx, "Technik", task.CollectionTasks, "r1", boolPtr(false), "")
	require.NoError(t, err)

	records, err := env.archive.List(ctx, "Technik")
	require.NoError(t, err)
	for _, r := range records {
		assert.NotEqual(t, "rec_tpl1_2025-01-02", r.InstanceID)
	}
	assert.Empty(t, records)
	assert.Equal(t, 1, env.mirror.GetDeleteRecordCallCount())
}

func TestSetCompleted_ReportsAreNotArchived(t *testing.T) {
	env := setupService(t)
	env.seed(t, "Technik", task.CollectionReports, recurringTask("r1", "rec_tpl1_2025-01-02"))
	ctx := context.Background()

	_, err := env.svc.SetCompleted(ctx, "Technik", task.CollectionReports, "r1", boolPtr(true), "anna")
	require.NoError(t, err)

	records, err := env.archive.List(ctx, "Technik")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestSetCompleted_ArchiveFailureDoesNotFailCompletion(t *testing.T) {
	env := setupService(t)
	env.seed(t, "Technik", task.CollectionTasks, recurringTask("r1", "rec_tpl1_2025-01-02"))
	// A corrupt archive document degrades to empty, and a broken mirror is
	// only logged; neither reaches the caller.
	require.NoError(t, env.store.Set(context.Background(), task.ArchiveKey("Technik"), []byte(`{broken`)))
	env.mirror.SaveRecordError = errors.New("postgres down")

	done, err := env.svc.SetCompleted(context.Background(), "Technik", task.CollectionTasks, "r1", boolPtr(true), "anna")
	require.NoError(t, err)
	assert.True(t, done.Completed)
}

func TestForward_Lineage(t *testing.T) {
	env := setupService(t)
	env.seed(t, "Leitstand", task.CollectionReports, task.Task{
		ID:          "m1",
		Title:       "Leck in Halle 2",
		Description: "Wasser am Boden",
		Priority:    task.PriorityHigh,
		Notes:       []task.Note{{Author: "anna", Text: "gesehen"}},
	})
	ctx := context.Background()

	fwd, err := env.svc.Forward(ctx, "Leitstand", task.CollectionReports, "m1", "Technik")
	require.NoError(t, err)

	assert.NotEqual(t, "m1", fwd.ID)
	assert.Equal(t, "m1", fwd.OriginalID)
	assert.Equal(t, "Leitstand", fwd.SourceDepartment)
	assert.Equal(t, task.CollectionReports, fwd.SourceCollection)
	assert.Equal(t, task.StatusOpen, fwd.Status)
	assert.False(t, fwd.Completed)
	assert.Empty(t, fwd.TargetDepartment)
	assert.Equal(t, "Wasser am Boden", fwd.Description)
	assert.Equal(t, task.PriorityHigh, fwd.Priority)

	target := env.items(t, "Technik", task.CollectionTasks)
	require.Len(t, target, 1)
	assert.Equal(t, fwd.ID, target[0].ID)
	require.Len(t, target[0].Notes, 2)
	assert.Equal(t, SystemAuthor, target[0].Notes[1].Author)
	assert.Contains(t, target[0].Notes[1].Text, "Leitstand")

	source := env.items(t, "Leitstand", task.CollectionReports)
	require.Len(t, source, 1)
	assert.Equal(t, "Technik", source[0].TargetDepartment)
	require.Len(t, source[0].Notes, 2)
	assert.Contains(t, source[0].Notes[1].Text, "Technik")

	require.Len(t, env.notifier.calls, 1)
	assert.Equal(t, "Leitstand", env.notifier.calls[0].From)
	assert.Equal(t, "Technik", env.notifier.calls[0].To)
}

func TestForward_CompletionSyncsBack(t *testing.T) {
	env := setupService(t)
	env.seed(t, "Leitstand", task.CollectionReports, task.Task{ID: "m1", Title: "Leck"})
	ctx := context.Background()

	fwd, err := env.svc.Forward(ctx, "Leitstand", task.CollectionReports, "m1", "Technik")
	require.NoError(t, err)

	_, err = env.svc.SetCompleted(ctx, "Technik", task.CollectionTasks, fwd.ID, boolPtr(true), "ben")
	require.NoError(t, err)

	orig := env.items(t, "Leitstand", task.CollectionReports)[0]
	assert.True(t, orig.Completed)
	assert.Equal(t, task.StatusDone, orig.Status)
	require.NotNil(t, orig.CompletedAt)
	assert.Equal(t, testNow, *orig.CompletedAt)
	assert.Equal(t, "ben", orig.CompletedBy)

	_, err = env.svc.SetCompleted(ctx, "Technik", task.CollectionTasks, fwd.ID, boolPtr(false), "")
	require.NoError(t, err)

	orig = env.items(t, "Leitstand", task.CollectionReports)[0]
	assert.False(t, orig.Completed)
	assert.Equal(t, task.StatusOpen, orig.Status)
	assert.Nil(t, orig.CompletedAt)
}

func TestForward_RecurringInstanceLosesTemplateLink(t *testing.T) {
	env := setupService(t)
	env.seed(t, "Technik", task.CollectionTasks, recurringTask("r1", "rec_tpl1_2025-01-02"))

	fwd, err := env.svc.Forward(context.Background(), "Technik", task.CollectionTasks, "r1", "Logistik")
	require.NoError(t, err)

	assert.Empty(t, fwd.InstanceID)
	assert.Empty(t, fwd.TemplateID)
	assert.False(t, fwd.FromRecurring)
	assert.Equal(t, task.CollectionTasks, fwd.SourceCollection)
}

func TestForward_Errors(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	_, err := env.svc.Forward(ctx, "Leitstand", task.CollectionReports, "m1", " ")
	assert.True(t, task.IsValidation(err))

	_, err = env.svc.Forward(ctx, "Leitstand", task.CollectionReports, "m1", "Technik")
	assert.ErrorIs(t, err, task.ErrNotFound)
	assert.Empty(t, env.items(t, "Technik", task.CollectionTasks))
}

func TestForward_NotifierFailureIsIgnored(t *testing.T) {
	env := setupService(t)
	env.notifier.err = errors.New("sendgrid down")
	env.seed(t, "Leitstand", task.CollectionReports, task.Task{ID: "m1", Title: "Leck"})

	_, err := env.svc.Forward(context.Background(), "Leitstand", task.CollectionReports, "m1", "Technik")
	assert.NoError(t, err)
	assert.Len(t, env.items(t, "Technik", task.CollectionTasks), 1)
}

func TestAddNote(t *testing.T) {
	env := setupService(t)
	env.seed(t, "Technik", task.CollectionTasks, task.Task{ID: "a"})
	ctx := context.Background()

	updated, err := env.svc.AddNote(ctx, "Technik", task.CollectionTasks, "a", "anna", "Ventil getauscht")
	require.NoError(t, err)
	require.Len(t, updated.Notes, 1)
	assert.Equal(t, task.Note{Author: "anna", Text: "Ventil getauscht", Timestamp: testNow}, updated.Notes[0])

	_, err = env.svc.AddNote(ctx, "Technik", task.CollectionTasks, "a", "", "x")
	assert.True(t, task.IsValidation(err))
	_, err = env.svc.AddNote(ctx, "Technik", task.CollectionTasks, "a", "anna", " ")
	assert.True(t, task.IsValidation(err))
	_, err = env.svc.AddNote(ctx, "Technik", task.CollectionTasks, "zzz", "anna", "x")
	assert.ErrorIs(t, err, task.ErrNotFound)
}

func TestAddNote_PropagatesToOriginal(t *testing.T) {
	env := setupService(t)
	env.seed(t, "Leitstand", task.CollectionReports, task.Task{ID: "m1", Title: "Leck"})
	ctx := context.Background()

	fwd, err := env.svc.Forward(ctx, "Leitstand", task.CollectionReports, "m1", "Technik")
	require.NoError(t, err)

	_, err = env.svc.AddNote(ctx, "Technik", task.CollectionTasks, fwd.ID, "ben", "Dichtung bestellt")
	require.NoError(t, err)

	orig := env.items(t, "Leitstand", task.CollectionReports)[0]
	last := orig.Notes[len(orig.Notes)-1]
	assert.Equal(t, "ben", last.Author)
	assert.Equal(t, "Dichtung bestellt", last.Text)
}

func TestAddNote_MissingOriginalIsNotAnError(t *testing.T) {
	env := setupService(t)
	env.seed(t, "Technik", task.CollectionTasks, task.Task{
		ID:               "f1",
		SourceDepartment: "Leitstand",
		OriginalID:       "deleted",
	})

	_, err := env.svc.AddNote(context.Background(), "Technik", task.CollectionTasks, "f1", "ben", "x")
	assert.NoError(t, err)
	assert.Empty(t, env.items(t, "Leitstand", task.CollectionReports), "nothing is written for a missing original")
}

func TestUpdate_DescriptionSyncsBack(t *testing.T) {
	env := setupService(t)
	env.seed(t, "Leitstand", task.CollectionReports, task.Task{ID: "m1", Title: "Leck", Description: "alt"})
	ctx := context.Background()

	fwd, err := env.svc.Forward(ctx, "Leitstand", task.CollectionReports, "m1", "Technik")
	require.NoError(t, err)

	desc := "Ursache gefunden"
	_, err = env.svc.Update(ctx, "Technik", task.CollectionTasks, fwd.ID, ItemPatch{Description: &desc})
	require.NoError(t, err)

	orig := env.items(t, "Leitstand", task.CollectionReports)[0]
	assert.Equal(t, "Ursache gefunden", orig.Description)
}

func runConcurrentCompletions(t *testing.T, env *testEnv, n int) {
	t.Helper()

	items := make([]task.Task, n)
	for i := range items {
		items[i] = task.Task{ID: fmt.Sprintf("t%d", i), Title: fmt.Sprintf("Task %d", i)}
	}
	env.seed(t, "Technik", task.CollectionTasks, items...)

	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := env.svc.SetCompleted(context.Background(), "Technik", task.CollectionTasks, id, boolPtr(true), "anna")
			assert.NoError(t, err)
		}(fmt.Sprintf("t%d", i))
	}
	wg.Wait()

	stored := env.items(t, "Technik", task.CollectionTasks)
	require.Len(t, stored, n)
	for _, it := range stored {
		assert.True(t, it.Completed, "item %s lost its completion", it.ID)
	}
}

func TestSetCompleted_ConcurrentNoLostUpdate(t *testing.T) {
	runConcurrentCompletions(t, setupService(t), 40)
}

func TestSetCompleted_ConcurrentNoLostUpdateRedis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	s, err := store.NewRedisStore(mr.Addr(), "checkbell:")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	runConcurrentCompletions(t, newEnv(t, s), 20)
}

func TestConcurrentMixedOperations(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	env.seed(t, "Technik", task.CollectionTasks, task.Task{ID: "anchor"})

	const n = 20
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, err := env.svc.Create(ctx, "Technik", task.CollectionTasks, NewItem{Title: fmt.Sprintf("neu %d", i)})
			assert.NoError(t, err)
		}(i)
		go func(i int) {
			defer wg.Done()
			_, err := env.svc.AddNote(ctx, "Technik", task.CollectionTasks, "anchor", "anna", fmt.Sprintf("Notiz %d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	stored := env.items(t, "Technik", task.CollectionTasks)
	assert.Len(t, stored, n+1)
	assert.Len(t, stored[0].Notes, n)
}
