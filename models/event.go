package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Event is one listing aggregated from an external source. The bson keys are the
// ones the ingester writes, so they stay snake_case.
type Event struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Title       string             `bson:"title" json:"title"`
	Date        time.Time          `bson:"date" json:"date"`
	Location    string             `bson:"location" json:"location"`
	Description string             `bson:"description" json:"description"`
	ImageURL    string             `bson:"image_url,omitempty" json:"imageUrl,omitempty"`
	TicketURL   string             `bson:"ticket_url" json:"ticketUrl"`
	Source      string             `bson:"source" json:"source"`
	IsActive    bool               `bson:"is_active" json:"isActive"`
	EventHash   string             `bson:"event_hash,omitempty" json:"eventHash,omitempty"`
	LastUpdated time.Time          `bson:"last_updated" json:"lastUpdated"`
}

// IsPast is computed on demand and never stored.
func (e Event) IsPast(now time.Time) bool {
	return e.Date.Before(now)
}

// EventDraft is the input for creating an event.
type EventDraft struct {
	Title       string    `json:"title" validate:"required,max=200"`
	Date        time.Time `json:"date"`
	Location    string    `json:"location" validate:"required,max=300"`
	Description string    `json:"description" validate:"required,max=2000"`
	ImageURL    string    `json:"imageUrl" validate:"omitempty,httpurl"`
	TicketURL   string    `json:"ticketUrl" validate:"required,httpurl"`
	Source      string    `json:"source" validate:"required"`
	EventHash   string    `json:"eventHash"`
	IsActive    *bool     `json:"isActive"` // nil means active
}

// Normalize trims every text field in place.
func (d *EventDraft) Normalize() {
	d.Title = strings.TrimSpace(d.Title)
	d.Location = strings.TrimSpace(d.Location)
	d.Description = strings.TrimSpace(d.Description)
	d.ImageURL = strings.TrimSpace(d.ImageURL)
	d.TicketURL = strings.TrimSpace(d.TicketURL)
	d.Source = strings.TrimSpace(d.Source)
	d.EventHash = strings.TrimSpace(d.EventHash)
}

// Event builds the record to insert. ID is left for the store.
func (d EventDraft) Event(now time.Time) Event {
	active := true
	if d.IsActive != nil {
		active = *d.IsActive
	}
	return Event{
		Title:       d.Title,
		Date:        d.Date,
		Location:    d.Location,
		Description: d.Description,
		ImageURL:    d.ImageURL,
		TicketURL:   d.TicketURL,
		Source:      d.Source,
		IsActive:    active,
		EventHash:   d.EventHash,
		LastUpdated: now,
	}
}

// EventPatch carries only the fields an update changes.
type EventPatch struct {
	Title       *string    `json:"title" validate:"omitnil,min=1,max=200"`
	Date        *time.Time `json:"date"`
	Location    *string    `json:"location" validate:"omitnil,min=1,max=300"`
	Description *string    `json:"description" validate:"omitnil,min=1,max=2000"`
	ImageURL    *string    `json:"imageUrl" validate:"omitnil,omitempty,httpurl"`
	TicketURL   *string    `json:"ticketUrl" validate:"omitnil,httpurl"`
	Source      *string    `json:"source" validate:"omitnil,min=1"`
	EventHash   *string    `json:"eventHash"`
}

func trimPtr(s *string) {
	if s != nil {
		*s = strings.TrimSpace(*s)
	}
}

func (p *EventPatch) Normalize() {
	trimPtr(p.Title)
	trimPtr(p.Location)
	trimPtr(p.Description)
	trimPtr(p.ImageURL)
	trimPtr(p.TicketURL)
	trimPtr(p.Source)
	trimPtr(p.EventHash)
}

func (p EventPatch) Empty() bool {
	return p.Title == nil && p.Date == nil && p.Location == nil && p.Description == nil &&
		p.ImageURL == nil && p.TicketURL == nil && p.Source == nil && p.EventHash == nil
}

// Apply copies the present fields onto e. Used by in-memory stores; the Mongo
// repository turns the patch into a $set document instead.
func (p EventPatch) Apply(e *Event) {
	if p.Title != nil {
		e.Title = *p.Title
	}
	if p.Date != nil {
		e.Date = *p.Date
	}
	if p.Location != nil {
		e.Location = *p.Location
	}
	if p.Description != nil {
		e.Description = *p.Description
	}
	if p.ImageURL != nil {
		e.ImageURL = *p.ImageURL
	}
	if p.TicketURL != nil {
		e.TicketURL = *p.TicketURL
	}
	if p.Source != nil {
		e.Source = *p.Source
	}
	if p.EventHash != nil {
		e.EventHash = *p.EventHash
	}
}

// EventQuery is the filter every listing is expressed in. Zero value matches all events.
type EventQuery struct {
	ActiveOnly bool
	Source     string
	From       *time.Time // inclusive
	To         *time.Time // inclusive
	Text       string     // case-insensitive substring of title, location or description
}

// Matches reports whether e satisfies q.
func (q EventQuery) Matches(e Event) bool {
	if q.ActiveOnly && !e.IsActive {
		return false
	}
	if q.Source != "" && e.Source != q.Source {
		return false
	}
	if q.From != nil && e.Date.Before(*q.From) {
		return false
	}
	if q.To != nil && e.Date.After(*q.To) {
		return false
	}
	if q.Text != "" {
		needle := strings.ToLower(q.Text)
		if !strings.Contains(strings.ToLower(e.Title), needle) &&
			!strings.Contains(strings.ToLower(e.Location), needle) &&
			!strings.Contains(strings.ToLower(e.Description), needle) {
			return false
		}
	}
	return true
}

// EventStats is the aggregate returned by GET /events/stats.
type EventStats struct {
	Total       int64    `json:"total"`
	Active      int64    `json:"active"`
	Upcoming    int64    `json:"upcoming"`
	Sources     int      `json:"sources"`
	SourcesList []string `json:"sourcesList"`
}

// ParseEventID turns the hex form of an event id into an ObjectID.
func ParseEventID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(strings.TrimSpace(id))
	if err != nil {
		return primitive.NilObjectID, ErrInvalidID
	}
	return oid, nil
}
