// Package recurring manages recurring task templates and turns them into
// daily task instances.
package recurring

import (
	"encoding/json"
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Cembrun/Checkbell-V2/internal/task"
)

type Recurrence string

const (
	Daily Recurrence = "daily"
	Once  Recurrence = "once"
)

const (
	MaxLeadMinutes   = 24 * 60
	MaxCooldownHours = 7 * 24
)

var ErrTemplateNotFound = errors.New("template not found")

type Template struct {
	ID             string     `json:"id"`
	Department     string     `json:"department"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	TimeOfDay      string     `json:"timeOfDay"`
	Recurrence     Recurrence `json:"recurrence"`
	DueDate        string     `json:"dueDate,omitempty"`
	LeadMinutes    int        `json:"leadMinutes"`
	CooldownHours  int        `json:"cooldownHours"`
	InstructionURL string     `json:"instructionUrl,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	CreatedBy      string     `json:"createdBy"`

	// legacy marks numeric fields that had to be coerced while decoding.
	legacy bool
}

// UnmarshalJSON decodes leadMinutes and cooldownHours leniently so a single
// malformed template does not make the whole stored list unreadable.
func (t *Template) UnmarshalJSON(data []byte) error {
	type plain Template
	aux := struct {
		*plain
		LeadMinutes   json.RawMessage `json:"leadMinutes"`
		CooldownHours json.RawMessage `json:"cooldownHours"`
	}{plain: (*plain)(t)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var err error
	if t.LeadMinutes, err = t.lenientInt(aux.LeadMinutes, MaxLeadMinutes); err != nil {
		return err
	}
	if t.CooldownHours, err = t.lenientInt(aux.CooldownHours, MaxCooldownHours); err != nil {
		return err
	}
	return nil
}

// lenientInt clamps a raw numeric field and flags the template when the
// stored form was not already the clamped integer.
func (t *Template) lenientInt(raw json.RawMessage, max int) (int, error) {
	if len(raw) == 0 {
		return 0, nil
	}

	var n Number
	if err := n.UnmarshalJSON(raw); err != nil {
		return 0, err
	}

	v := clamp(n, max)
	if stored, err := strconv.Atoi(string(raw)); err != nil || stored != v {
		t.legacy = true
	}
	return v, nil
}

// Number accepts any JSON value for a numeric field. Values that are not
// finite numbers (strings that do not parse, null, booleans, "NaN") decode
// to NaN and are later normalized to 0.
type Number float64

func (n *Number) UnmarshalJSON(data []byte) error {
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*n = Number(f)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			*n = Number(f)
			return nil
		}
	}

	*n = Number(math.NaN())
	return nil
}

// clamp floors v into [0, max]; non-finite input becomes 0.
func clamp(v Number, max int) int {
	f := float64(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}

	f = math.Floor(f)
	if f < 0 {
		return 0
	}
	if f > float64(max) {
		return max
	}
	return int(f)
}

// Fields is the input for creating a template.
type Fields struct {
	Title          string     `json:"title" yaml:"title"`
	Description    string     `json:"description" yaml:"description"`
	TimeOfDay      string     `json:"timeOfDay" yaml:"timeOfDay"`
	Recurrence     Recurrence `json:"recurrence" yaml:"recurrence"`
	DueDate        string     `json:"dueDate" yaml:"dueDate"`
	LeadMinutes    Number     `json:"leadMinutes" yaml:"leadMinutes"`
	CooldownHours  Number     `json:"cooldownHours" yaml:"cooldownHours"`
	InstructionURL string     `json:"instructionUrl" yaml:"instructionUrl"`
	CreatedBy      string     `json:"createdBy" yaml:"createdBy"`
}

// Patch holds a partial template update. Nil fields are left unchanged.
type Patch struct {
	Title          *string     `json:"title"`
	Description    *string     `json:"description"`
	TimeOfDay      *string     `json:"timeOfDay"`
	Recurrence     *Recurrence `json:"recurrence"`
	DueDate        *string     `json:"dueDate"`
	LeadMinutes    *Number     `json:"leadMinutes"`
	CooldownHours  *Number     `json:"cooldownHours"`
	InstructionURL *string     `json:"instructionUrl"`
}

var strictTimeOfDay = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

func validRecurrence(r Recurrence) bool {
	return r == Daily || r == Once
}

func validDate(s string) bool {
	_, err := time.Parse(task.DayKeyLayout, s)
	return err == nil
}

func (f Fields) Validate() error {
	if strings.TrimSpace(f.Title) == "" {
		return task.Invalid("title", "is required")
	}
	if f.TimeOfDay == "" {
		return task.Invalid("timeOfDay", "is required")
	}
	if !strictTimeOfDay.MatchString(f.TimeOfDay) {
		return task.Invalid("timeOfDay", "must be HH:MM, got %q", f.TimeOfDay)
	}
	if f.Recurrence == "" {
		return task.Invalid("recurrence", "is required")
	}
	if !validRecurrence(f.Recurrence) {
		return task.Invalid("recurrence", "must be daily or once, got %q", f.Recurrence)
	}
	if f.Recurrence == Once {
		if f.DueDate == "" {
			return task.Invalid("dueDate", "is required for once templates")
		}
		if !validDate(f.DueDate) {
			return task.Invalid("dueDate", "must be YYYY-MM-DD, got %q", f.DueDate)
		}
	}

	return nil
}

// Validate checks the fields a patch sets. Whether a once template ends up
// with a due date is checked against the merged template.
func (p Patch) Validate() error {
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return task.Invalid("title", "must not be empty")
	}
	if p.TimeOfDay != nil && !strictTimeOfDay.MatchString(*p.TimeOfDay) {
		return task.Invalid("timeOfDay", "must be HH:MM, got %q", *p.TimeOfDay)
	}
	if p.Recurrence != nil && !validRecurrence(*p.Recurrence) {
		return task.Invalid("recurrence", "must be daily or once, got %q", *p.Recurrence)
	}
	if p.DueDate != nil && *p.DueDate != "" && !validDate(*p.DueDate) {
		return task.Invalid("dueDate", "must be YYYY-MM-DD, got %q", *p.DueDate)
	}

	return nil
}

func (p Patch) apply(t *Template) error {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.TimeOfDay != nil {
		t.TimeOfDay = *p.TimeOfDay
	}
	if p.Recurrence != nil {
		t.Recurrence = *p.Recurrence
	}
	if p.DueDate != nil {
		t.DueDate = *p.DueDate
	}
	if p.LeadMinutes != nil {
		t.LeadMinutes = clamp(*p.LeadMinutes, MaxLeadMinutes)
	}
	if p.CooldownHours != nil {
		t.CooldownHours = clamp(*p.CooldownHours, MaxCooldownHours)
	}
	if p.InstructionURL != nil {
		t.InstructionURL = *p.InstructionURL
	}

	if t.Recurrence == Once && t.DueDate == "" {
		return task.Invalid("dueDate", "is required for once templates")
	}
	if t.Recurrence == Daily {
		t.DueDate = ""
	}

	return nil
}

// NewTemplate builds a template from validated fields.
func NewTemplate(department string, f Fields, now time.Time) Template {
	createdBy := f.CreatedBy
	if createdBy == "" {
		createdBy = task.UnknownActor
	}

	t := Template{
		ID:             task.NewID(),
		Department:     department,
		Title:          strings.TrimSpace(f.Title),
		Description:    f.Description,
		TimeOfDay:      f.TimeOfDay,
		Recurrence:     f.Recurrence,
		LeadMinutes:    clamp(f.LeadMinutes, MaxLeadMinutes),
		CooldownHours:  clamp(f.CooldownHours, MaxCooldownHours),
		InstructionURL: f.InstructionURL,
		CreatedAt:      now,
		CreatedBy:      createdBy,
	}
	if f.Recurrence == Once {
		t.DueDate = f.DueDate
	}

	return t
}

// normalize fills fields that older records may lack and reports whether
// anything changed.
func (t *Template) normalize(now time.Time) bool {
	changed := t.legacy
	t.legacy = false
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
		changed = true
	}
	if t.CreatedBy == "" {
		t.CreatedBy = task.UnknownActor
		changed = true
	}
	if lead := clamp(Number(t.LeadMinutes), MaxLeadMinutes); lead != t.LeadMinutes {
		t.LeadMinutes = lead
		changed = true
	}
	if cd := clamp(Number(t.CooldownHours), MaxCooldownHours); cd != t.CooldownHours {
		t.CooldownHours = cd
		changed = true
	}
	return changed
}

var looseTimeOfDay = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)

// minutesOfDay parses "H:MM" or "HH:MM" leniently. Hours and minutes are
// clamped to their ranges; anything unparseable counts as midnight.
func minutesOfDay(s string) int {
	m := looseTimeOfDay.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0
	}

	h, _ := strconv.Atoi(m[1])
	mi, _ := strconv.Atoi(m[2])
	h = min(max(h, 0), 23)
	mi = min(max(mi, 0), 59)

	return h*60 + mi
}
