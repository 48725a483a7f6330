// Package models contains data structures used by the archive repository layer.
package models

import "time"

// CompletionStats summarizes completions of one template over a period.
type CompletionStats struct {
	TemplateID      string    `json:"template_id"`
	Title           string    `json:"title"`
	Count           int       `json:"count"`
	Completers      int       `json:"completers"`
	LastCompletedAt time.Time `json:"last_completed_at"`
}

type ArchivedTask struct {
	TaskID      string    `json:"task_id"`
	InstanceID  string    `json:"instance_id,omitempty"`
	TemplateID  string    `json:"template_id,omitempty"`
	Title       string    `json:"title"`
	CompletedBy string    `json:"completed_by,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
	ArchivedAt  time.Time `json:"archived_at"`
	DayKey      string    `json:"day_key"`
}
