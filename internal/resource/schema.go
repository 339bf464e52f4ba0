// Package resource validates entity mutations and forwards them to the
// backend, falling back through several delete strategies.
package resource

import (
	"fmt"
	"sort"
	"unicode/utf8"

	"github.com/harrylevesque/hivebff/internal/models"
	"github.com/harrylevesque/hivebff/internal/utils"
)

// MaxTitleLength is the longest accepted title, in characters.
const MaxTitleLength = 256

// Op is a mutation kind.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Condition makes Fields required unless the boolean field Unless is true.
// An absent Unless field counts as false.
type Condition struct {
	Unless string
	Fields []string
}

// Schema describes one backend collection.
type Schema struct {
	// Name is the route and cache name, e.g. "events".
	Name string
	// Singular is used in error messages, e.g. "event".
	Singular string
	// Path is the backend collection path.
	Path string

	CreateRequired []string
	UpdateRequired []string
	DeleteRequired []string
	Conditional    []Condition

	TitleField string
	// SoftDeleteFields are copied from the request into the soft-delete PUT.
	SoftDeleteFields []string
}

var (
	Events = Schema{
		Name:           "events",
		Singular:       "event",
		Path:           "events",
		CreateRequired: []string{"userId", "accountId", "title", "deadlineDateTime"},
		UpdateRequired: []string{"id", "accountId", "userId"},
		DeleteRequired: []string{"id", "accountId", "userId"},
		Conditional: []Condition{
			{Unless: "isAllDay", Fields: []string{"scheduledTime", "scheduledTimeEnd"}},
		},
		TitleField: "title",
		SoftDeleteFields: []string{
			"id", "accountId", "userId", "title", "deadlineDateTime",
			"isAllDay", "scheduledTime", "scheduledTimeEnd", "tileId",
		},
	}

	Tasks = Schema{
		Name:             "tasks",
		Singular:         "task",
		Path:             "tasks",
		CreateRequired:   []string{"userId", "accountId", "title"},
		UpdateRequired:   []string{"id", "accountId", "userId"},
		DeleteRequired:   []string{"id", "accountId", "userId"},
		TitleField:       "title",
		SoftDeleteFields: []string{"id", "accountId", "userId", "title", "status", "dueDate", "tileId"},
	}

	Notes = Schema{
		Name:             "notes",
		Singular:         "note",
		Path:             "notes",
		CreateRequired:   []string{"userId", "accountId", "title"},
		UpdateRequired:   []string{"id", "accountId", "userId"},
		DeleteRequired:   []string{"id", "accountId", "userId"},
		TitleField:       "title",
		SoftDeleteFields: []string{"id", "accountId", "userId", "title", "tileId"},
	}
)

var builtin = map[string]Schema{
	Events.Name: Events,
	Tasks.Name:  Tasks,
	Notes.Name:  Notes,
}

// Lookup returns the built-in schema called name.
func Lookup(name string) (Schema, bool) {
	s, ok := builtin[name]
	return s, ok
}

// Names lists the built-in schema names in order.
func Names() []string {
	names := make([]string, 0, len(builtin))
	for n := range builtin {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Required returns the fields op needs for payload p, conditional ones included.
func (s Schema) Required(op Op, p models.Payload) []string {
	var fields []string
	switch op {
	case OpCreate:
		fields = append(fields, s.CreateRequired...)
		for _, c := range s.Conditional {
			if !p.Bool(c.Unless) {
				fields = append(fields, c.Fields...)
			}
		}
	case OpUpdate:
		fields = append(fields, s.UpdateRequired...)
	case OpDelete:
		fields = append(fields, s.DeleteRequired...)
	}
	return fields
}

// Validate checks p for op. It returns an *utils.HTTPError describing the
// first problem, or nil.
func (s Schema) Validate(op Op, p models.Payload) error {
	var missing []string
	for _, f := range s.Required(op, p) {
		if !p.Present(f) {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return utils.MissingFields(missing)
	}

	if s.TitleField == "" || op == OpDelete {
		return nil
	}
	v, ok := p[s.TitleField]
	if !ok || v == nil {
		return nil
	}
	return checkTitle(s.TitleField, v)
}

func checkTitle(field string, v any) error {
	title, ok := v.(string)
	if !ok {
		return utils.BadRequest("Invalid title", fmt.Sprintf("%s must be a string", field))
	}
	n := utf8.RuneCountInString(title)
	if n < 1 || n > MaxTitleLength {
		return utils.BadRequest("Invalid title",
			fmt.Sprintf("%s must be between 1 and %d characters", field, MaxTitleLength))
	}
	return nil
}
