package models

import "time"

// Searchable is implemented by every DTO that cross-entity search can match.
type Searchable interface {
	SearchID() string
	// SearchFields returns the title-like and body-like text.
	SearchFields() (title, body string)
}

// Timestamped is implemented by DTOs carrying an update time.
type Timestamped interface {
	LastUpdated() time.Time
}

type Event struct {
	ID               string     `json:"id"`
	AccountID        string     `json:"accountId"`
	UserID           string     `json:"userId"`
	Title            string     `json:"title"`
	Description      string     `json:"description,omitempty"`
	DeadlineDateTime string     `json:"deadlineDateTime,omitempty"`
	IsAllDay         bool       `json:"isAllDay"`
	ScheduledTime    string     `json:"scheduledTime,omitempty"`
	ScheduledTimeEnd string     `json:"scheduledTimeEnd,omitempty"`
	TileID           string     `json:"tileId,omitempty"`
	CreatedAt        *time.Time `json:"createdAt,omitempty"`
	UpdatedAt        *time.Time `json:"updatedAt,omitempty"`
}

func (e Event) SearchID() string { return e.ID }
func (e Event) SearchFields() (string, string) { return e.Title, e.Description }
func (e Event) LastUpdated() time.Time { return latest(e.UpdatedAt, e.CreatedAt) }

type Task struct {
	ID          string     `json:"id"`
	AccountID   string     `json:"accountId"`
	UserID      string     `json:"userId"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status,omitempty"`
	DueDate     string     `json:"dueDate,omitempty"`
	AssigneeID  string     `json:"assigneeId,omitempty"`
	TileID      string     `json:"tileId,omitempty"`
	CreatedAt   *time.Time `json:"createdAt,omitempty"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
}

func (t Task) SearchID() string { return t.ID }
func (t Task) SearchFields() (string, string) { return t.Title, t.Description }
func (t Task) LastUpdated() time.Time { return latest(t.UpdatedAt, t.CreatedAt) }

type Note struct {
	ID        string     `json:"id"`
	AccountID string     `json:"accountId"`
	UserID    string     `json:"userId"`
	Title     string     `json:"title"`
	Content   string     `json:"content,omitempty"`
	TileID    string     `json:"tileId,omitempty"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

func (n Note) SearchID() string { return n.ID }
func (n Note) SearchFields() (string, string) { return n.Title, n.Content }
func (n Note) LastUpdated() time.Time { return latest(n.UpdatedAt, n.CreatedAt) }

// Tile is one area or appliance record in the house hive.
type Tile struct {
	ID          string     `json:"id"`
	AccountID   string     `json:"accountId"`
	Name        string     `json:"name"`
	Category    string     `json:"category,omitempty"`
	Description string     `json:"description,omitempty"`
	CreatedAt   *time.Time `json:"createdAt,omitempty"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
}

func (t Tile) SearchID() string { return t.ID }
func (t Tile) SearchFields() (string, string) { return t.Name, t.Category + " " + t.Description }
func (t Tile) LastUpdated() time.Time { return latest(t.UpdatedAt, t.CreatedAt) }

type Document struct {
	ID        string     `json:"id"`
	AccountID string     `json:"accountId"`
	Name      string     `json:"name"`
	MimeType  string     `json:"mimeType,omitempty"`
	URL       string     `json:"url,omitempty"`
	TileID    string     `json:"tileId,omitempty"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

func (d Document) SearchID() string { return d.ID }
func (d Document) SearchFields() (string, string) { return d.Name, d.MimeType }
func (d Document) LastUpdated() time.Time { return latest(d.UpdatedAt, d.CreatedAt) }

// Activity is one entry of the household activity feed.
type Activity struct {
	ID         string    `json:"id"`
	AccountID  string    `json:"accountId"`
	UserID     string    `json:"userId,omitempty"`
	Action     string    `json:"action"`
	EntityType string    `json:"entityType,omitempty"`
	EntityID   string    `json:"entityId,omitempty"`
	Summary    string    `json:"summary,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

func latest(ts ...*time.Time) time.Time {
	var out time.Time
	for _, t := range ts {
		if t != nil && t.After(out) {
			out = *t
		}
	}
	return out
}
