package repository

import (
	"context"
	"sync"
	"time"

	"github.com/Cembrun/Checkbell-V2/internal/repository/models"
	"github.com/Cembrun/Checkbell-V2/internal/task"
)

type MockArchiveRepository struct {
	mu                      sync.Mutex
	SaveRecordCalls         []SaveRecordCall
	DeleteRecordCalls       []DeleteRecordCall
	Records                 map[string][]task.ArchiveRecord
	Stats                   []models.CompletionStats
	RecentRecords           []models.ArchivedTask
	SaveRecordError         error
	DeleteRecordError       error
	GetCompletionStatsError error
	GetRecentRecordsError   error
	Closed                  bool
}

type SaveRecordCall struct {
	Department string
	Record     task.ArchiveRecord
}

type DeleteRecordCall struct {
	Department string
	TaskID     string
	ArchivedAt time.Time
}

func NewMockArchiveRepository() *MockArchiveRepository {
	return &MockArchiveRepository{
		Records:       make(map[string][]task.ArchiveRecord),
		Stats:         make([]models.CompletionStats, 0),
		RecentRecords: make([]models.ArchivedTask, 0),
	}
}

func (m *MockArchiveRepository) SaveRecord(ctx context.Context, department string, r task.ArchiveRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SaveRecordCalls = append(m.SaveRecordCalls, SaveRecordCall{Department: department, Record: r})

	if m.SaveRecordError != nil {
		return m.SaveRecordError
	}

	m.Records[department] = append(m.Records[department], r)
	return nil
}

func (m *MockArchiveRepository) DeleteRecord(ctx context.Context, department, taskID string, archivedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.DeleteRecordCalls = append(m.DeleteRecordCalls, DeleteRecordCall{
		Department: department,
		TaskID:     taskID,
		ArchivedAt: archivedAt,
	})

	if m.DeleteRecordError != nil {
		return m.DeleteRecordError
	}

	kept := m.Records[department][:0]
	for _, r := range m.Records[department] {
		if r.ID == taskID && r.ArchivedAt.Equal(archivedAt) {
			continue
		}
		kept = append(kept, r)
	}
	m.Records[department] = kept

	return nil
}

func (m *MockArchiveRepository) GetCompletionStats(ctx context.Context, department string, days int) ([]models.CompletionStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.GetCompletionStatsError != nil {
		return nil, m.GetCompletionStatsError
	}

	return m.Stats, nil
}

func (m *MockArchiveRepository) GetRecentRecords(ctx context.Context, department string, limit int) ([]models.ArchivedTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.GetRecentRecordsError != nil {
		return nil, m.GetRecentRecordsError
	}

	if len(m.RecentRecords) > limit {
		return m.RecentRecords[:limit], nil
	}

	return m.RecentRecords, nil
}

func (m *MockArchiveRepository) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Closed = true
	return nil
}

func (m *MockArchiveRepository) GetSaveRecordCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.SaveRecordCalls)
}

func (m *MockArchiveRepository) GetDeleteRecordCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.DeleteRecordCalls)
}

func (m *MockArchiveRepository) RecordsFor(department string) []task.ArchiveRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]task.ArchiveRecord(nil), m.Records[department]...)
}

func (m *MockArchiveRepository) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SaveRecordCalls = nil
	m.DeleteRecordCalls = nil
	m.Records = make(map[string][]task.ArchiveRecord)
}
