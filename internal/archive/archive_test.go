package archive

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Cembrun/Checkbell-V2/internal/repository"
	"github.com/Cembrun/Checkbell-V2/internal/store"
	"github.com/Cembrun/Checkbell-V2/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupArchive(t *testing.T, mirror repository.ArchiveRepository) (*Archive, *store.MemoryStore) {
	t.Helper()

	s := store.NewMemoryStore()
	a := New(store.NewMutator(s), mirror, time.UTC)
	a.now = func() time.Time { return time.Date(2025, 1, 2, 9, 0, 0, 0, time.UTC) }

	return a, s
}

func completedTask(id, instanceID string) task.Task {
	at := time.Date(2025, 1, 2, 8, 59, 0, 0, time.UTC)
	return task.Task{
		ID:            id,
		InstanceID:    instanceID,
		TemplateID:    "tpl1",
		FromRecurring: true,
		Title:         "Anlagenrunde",
		Completed:     true,
		Status:        task.StatusDone,
		CompletedAt:   &at,
		CompletedBy:   "anna",
	}
}

func TestArchive_Append(t *testing.T) {
	mirror := repository.NewMockArchiveRepository()
	a, s := setupArchive(t, mirror)
	ctx := context.Background()

	rec, err := a.Append(ctx, "Technik", completedTask("t1", "rec_tpl1_2025-01-02"))
	require.NoError(t, err)
	assert.Equal(t, "2025-01-02", rec.DayKey)
	assert.Equal(t, "Technik", rec.SourceDepartment)

	stored, err := store.LoadList[task.ArchiveRecord](ctx, s, "Technik_archive")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "rec_tpl1_2025-01-02", stored[0].InstanceID)

	assert.Equal(t, 1, mirror.GetSaveRecordCallCount())
	assert.Equal(t, "Technik", mirror.SaveRecordCalls[0].Department)
}

func TestArchive_AppendWithoutMirror(t *testing.T) {
	a, _ := setupArchive(t, nil)

	_, err := a.Append(context.Background(), "Technik", completedTask("t1", ""))
	assert.NoError(t, err)
	assert.Nil(t, a.Mirror())
}

func TestArchive_MirrorFailureIsNotReturned(t *testing.T) {
	mirror := repository.NewMockArchiveRepository()
	mirror.SaveRecordError = errors.New("postgres down")
	a, _ := setupArchive(t, mirror)

	_, err := a.Append(context.Background(), "Technik", completedTask("t1", ""))
	assert.NoError(t, err)

	records, err := a.List(context.Background(), "Technik")
	require.NoError(t, err)
	assert.Len(t, records, 1, "the document is written regardless of the mirror")
}

func TestArchive_RemoveLatest(t *testing.T) {
	mirror := repository.NewMockArchiveRepository()
	a, _ := setupArchive(t, mirror)
	ctx := context.Background()

	_, err := a.Append(ctx, "Technik", completedTask("t1", "rec_tpl1_2025-01-01"))
	require.NoError(t, err)
	_, err = a.Append(ctx, "Technik", completedTask("t2", "rec_tpl1_2025-01-02"))
	require.NoError(t, err)
	_, err = a.Append(ctx, "Technik", completedTask("t2", "rec_tpl1_2025-01-02"))
	require.NoError(t, err)

	removed, err := a.RemoveLatest(ctx, "Technik", "rec_tpl1_2025-01-02", "t2")
	require.NoError(t, err)
	assert.True(t, removed)

	records, err := a.List(ctx, "Technik")
	require.NoError(t, err)
	require.Len(t, records, 2, "only one record is removed per call")
	assert.Equal(t, 1, mirror.GetDeleteRecordCallCount())

	removed, err = a.RemoveLatest(ctx, "Technik", "rec_tpl1_2025-01-02", "t2")
	require.NoError(t, err)
	assert.True(t, removed)

	records, err = a.List(ctx, "Technik")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "t1", records[0].ID)
}

func TestArchive_RemoveLatestFallsBackToID(t *testing.T) {
	a, _ := setupArchive(t, nil)
	ctx := context.Background()

	_, err := a.Append(ctx, "Technik", completedTask("t1", ""))
	require.NoError(t, err)

	removed, err := a.RemoveLatest(ctx, "Technik", "", "t1")
	require.NoError(t, err)
	assert.True(t, removed)
}

func TestArchive_RemoveLatestNoMatch(t *testing.T) {
	mirror := repository.NewMockArchiveRepository()
	a, s := setupArchive(t, mirror)

	removed, err := a.RemoveLatest(context.Background(), "Technik", "rec_x", "x")
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Empty(t, s.Keys(), "nothing to remove means nothing written")
	assert.Equal(t, 0, mirror.GetDeleteRecordCallCount())
}

func TestArchive_ListNewestFirst(t *testing.T) {
	a, _ := setupArchive(t, nil)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		_, err := a.Append(ctx, "Technik", completedTask(id, ""))
		require.NoError(t, err)
	}

	records, err := a.List(ctx, "Technik")
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "c", records[0].ID)
	assert.Equal(t, "a", records[2].ID)
}

func TestArchive_CountOn(t *testing.T) {
	a, _ := setupArchive(t, nil)
	ctx := context.Background()

	_, err := a.Append(ctx, "Technik", completedTask("a", ""))
	require.NoError(t, err)

	a.now = func() time.Time { return time.Date(2025, 1, 3, 9, 0, 0, 0, time.UTC) }
	_, err = a.Append(ctx, "Technik", completedTask("b", ""))
	require.NoError(t, err)

	n, err := a.CountOn(ctx, "Technik", "2025-01-02")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestArchive_DayKeyUsesLocation(t *testing.T) {
	s := store.NewMemoryStore()
	cet := time.FixedZone("CET", 3600)
	a := New(store.NewMutator(s), nil, cet)
	// 23:30 UTC on the 1st is already the 2nd in CET.
	a.now = func() time.Time { return time.Date(2025, 1, 1, 23, 30, 0, 0, time.UTC) }
	ctx := context.Background()

	rec, err := a.Append(ctx, "Technik", completedTask("t1", ""))
	require.NoError(t, err)
	assert.Equal(t, "2025-01-02", rec.DayKey)

	n, err := a.CountOn(ctx, "Technik", "2025-01-02")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNew_NilLocationFallsBackToLocal(t *testing.T) {
	a := New(store.NewMutator(store.NewMemoryStore()), nil, nil)
	assert.Equal(t, time.Local, a.location)
}
