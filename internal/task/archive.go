package task

import "time"

// ArchiveRecord is a snapshot of a completed recurring instance. The archive
// is a historical log only; the task collection stays authoritative.
type ArchiveRecord struct {
	ID               string    `json:"id"`
	InstanceID       string    `json:"instanceId,omitempty"`
	TemplateID       string    `json:"templateId,omitempty"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	SourceDepartment string    `json:"sourceDepartment"`
	DueDate          string    `json:"dueDate,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	CompletedAt      time.Time `json:"completedAt"`
	CompletedBy      string    `json:"completedBy,omitempty"`
	ArchivedAt       time.Time `json:"archivedAt"`
	DayKey           string    `json:"dayKey"`
}

const DayKeyLayout = "2006-01-02"

func NewArchiveRecord(t Task, department string, now time.Time) ArchiveRecord {
	source := t.SourceDepartment
	if source == "" {
		source = department
	}

	completedAt := now
	if t.CompletedAt != nil {
		completedAt = *t.CompletedAt
	}

	return ArchiveRecord{
		ID:               t.ID,
		InstanceID:       t.InstanceID,
		TemplateID:       t.TemplateID,
		Title:            t.Title,
		Description:      t.Description,
		SourceDepartment: source,
		DueDate:          t.DueDate,
		CreatedAt:        t.CreatedAt,
		CompletedAt:      completedAt,
		CompletedBy:      t.CompletedBy,
		ArchivedAt:       now,
		DayKey:           now.Format(DayKeyLayout),
	}
}

// Matches reports whether the record belongs to the given instance, or to
// the given item id when no instance id is known.
func (r ArchiveRecord) Matches(instanceID, id string) bool {
	if instanceID != "" && r.InstanceID == instanceID {
		return true
	}
	return id != "" && r.ID == id
}
