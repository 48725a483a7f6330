// Package task defines the CheckBell item model shared by reports ("meldungen")
// and tasks, together with the document keys the collections are stored under.
package task

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

type (
	Status     string
	Priority   string
	Collection string

	Note struct {
		Author    string    `json:"author"`
		Text      string    `json:"text"`
		Timestamp time.Time `json:"timestamp"`
	}

	Attachment struct {
		Name     string `json:"name"`
		URL      string `json:"url"`
		MimeType string `json:"mimeType"`
	}

	Task struct {
		ID               string       `json:"id"`
		InstanceID       string       `json:"instanceId,omitempty"`
		TemplateID       string       `json:"templateId,omitempty"`
		FromRecurring    bool         `json:"fromRecurring"`
		Title            string       `json:"title"`
		Description      string       `json:"description"`
		Category         string       `json:"category,omitempty"`
		Priority         Priority     `json:"priority,omitempty"`
		Status           Status       `json:"status"`
		Completed        bool         `json:"completed"`
		SourceDepartment string       `json:"sourceDepartment,omitempty"`
		SourceCollection Collection   `json:"sourceCollection,omitempty"`
		TargetDepartment string       `json:"targetDepartment,omitempty"`
		OriginalID       string       `json:"originalId,omitempty"`
		InstructionURL   string       `json:"instructionUrl,omitempty"`
		CreatedBy        string       `json:"createdBy,omitempty"`
		CreatedAt        time.Time    `json:"createdAt"`
		CompletedAt      *time.Time   `json:"completedAt,omitempty"`
		CompletedBy      string       `json:"completedBy,omitempty"`
		DueDate          string       `json:"dueDate,omitempty"`
		Notes            []Note       `json:"notes"`
		Attachments      []Attachment `json:"attachments"`
	}
)

const (
	StatusOpen Status = "open"
	StatusDone Status = "done"
)

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

const (
	CollectionTasks   Collection = "tasks"
	CollectionReports Collection = "meldungen"
)

// DefaultCategory is assigned to instances created from recurring templates.
const DefaultCategory = "operations"

// UnknownActor is recorded when nobody can be attributed to a completion.
const UnknownActor = "unknown"

var (
	ErrNotFound          = errors.New("item not found")
	ErrInvalidCollection = errors.New("invalid collection")
)

func NewID() string {
	return uuid.New().String()
}

func NewTask(title, description string, priority Priority) *Task {
	return &Task{
		ID:          NewID(),
		Title:       title,
		Description: description,
		Priority:    priority,
		Status:      StatusOpen,
		Completed:   false,
		CreatedAt:   time.Now(),
		Notes:       []Note{},
		Attachments: []Attachment{},
	}
}

func ParseCollection(s string) (Collection, error) {
	switch Collection(s) {
	case CollectionTasks, CollectionReports:
		return Collection(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidCollection, s)
	}
}

func ParsePriority(s string) (Priority, bool) {
	switch Priority(s) {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return Priority(s), true
	default:
		return "", false
	}
}

// Key is the document key of a department's collection, e.g. "Technik_tasks".
func Key(department string, c Collection) string {
	return department + "_" + string(c)
}

func RecurringKey(department string) string {
	return department + "_recurring"
}

func ArchiveKey(department string) string {
	return department + "_archive"
}

// Normalize fills the list fields and keeps Status in line with Completed.
func (t *Task) Normalize() {
	if t.Notes == nil {
		t.Notes = []Note{}
	}
	if t.Attachments == nil {
		t.Attachments = []Attachment{}
	}
	if t.Completed {
		t.Status = StatusDone
	} else if t.Status != StatusDone {
		t.Status = StatusOpen
	} else {
		t.Completed = true
	}
}

func (t *Task) Complete(actor string, at time.Time) {
	t.Completed = true
	t.Status = StatusDone
	t.CompletedAt = &at

	switch {
	case actor != "":
		t.CompletedBy = actor
	case t.CompletedBy == "":
		t.CompletedBy = UnknownActor
	}
}

func (t *Task) Reopen() {
	t.Completed = false
	t.Status = StatusOpen
	t.CompletedAt = nil
}

// IsForwarded reports whether the item is a copy made by forwarding and
// therefore has an original to keep in sync.
func (t *Task) IsForwarded() bool {
	return t.SourceDepartment != "" && t.OriginalID != ""
}

// OriginCollection is the collection holding the item this one was forwarded from.
func (t *Task) OriginCollection() Collection {
	if t.SourceCollection == "" {
		return CollectionReports
	}
	return t.SourceCollection
}

// Clone returns a copy that shares no slices with t.
func (t Task) Clone() Task {
	c := t
	c.Notes = append([]Note{}, t.Notes...)
	c.Attachments = append([]Attachment{}, t.Attachments...)
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		c.CompletedAt = &at
	}
	return c
}

// IndexOf locates an item by id, falling back to a positional index.
// It returns -1 when neither matches.
func IndexOf(items []Task, idOrIndex string) int {
	if i := IndexByID(items, idOrIndex); i >= 0 {
		return i
	}

	n, err := strconv.Atoi(idOrIndex)
	if err != nil || n < 0 || n >= len(items) {
		return -1
	}
	return n
}

func IndexByID(items []Task, id string) int {
	if id == "" {
		return -1
	}
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}
