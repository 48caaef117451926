package models

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validDraft() EventDraft {
	return EventDraft{
		Title:       "Sydney Festival 2026",
		Date:        time.Date(2026, 1, 15, 8, 0, 0, 0, time.UTC),
		Location:    "Sydney Opera House",
		Description: "Opening night",
		TicketURL:   "https://sydneyfestival.org.au/tickets",
		Source:      "sydneyfestival.org.au",
	}
}

func fieldNames(t *testing.T, err error) []string {
	t.Helper()
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "want *ValidationError, got %v", err)
	names := make([]string, 0, len(verr.Fields))
	for _, f := range verr.Fields {
		names = append(names, f.Field)
	}
	return names
}

func TestEventDraft_Validate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		d := validDraft()
		assert.NoError(t, d.Validate())
	})

	t.Run("empty draft lists every required field", func(t *testing.T) {
		err := EventDraft{}.Validate()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrValidation)
		assert.ElementsMatch(t,
			[]string{"title", "location", "description", "ticketUrl", "source", "date"},
			fieldNames(t, err))
	})

	t.Run("title too long", func(t *testing.T) {
		d := validDraft()
		d.Title = strings.Repeat("x", 201)
		err := d.Validate()
		require.Error(t, err)
		assert.Equal(t, "title cannot exceed 200 characters", err.Error())
	})

	t.Run("ticket url must be http", func(t *testing.T) {
		d := validDraft()
		d.TicketURL = "ftp://tickets.example.com"
		err := d.Validate()
		require.Error(t, err)
		assert.Equal(t, "Invalid ticketUrl format", err.Error())
	})

	t.Run("image url is optional but checked when present", func(t *testing.T) {
		d := validDraft()
		assert.NoError(t, d.Validate())
		d.ImageURL = "not-a-url"
		assert.Equal(t, []string{"imageUrl"}, fieldNames(t, d.Validate()))
	})
}

func TestEventDraft_NormalizeAndEvent(t *testing.T) {
	d := validDraft()
	d.Title = "  Sydney Festival 2026 \n"
	d.Normalize()
	assert.Equal(t, "Sydney Festival 2026", d.Title)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e := d.Event(now)
	assert.True(t, e.IsActive, "a draft without isActive is active")
	assert.Equal(t, now, e.LastUpdated)

	inactive := false
	d.IsActive = &inactive
	assert.False(t, d.Event(now).IsActive)
}

func TestEventPatch_Validate(t *testing.T) {
	assert.NoError(t, EventPatch{}.Validate())

	empty := ""
	err := EventPatch{Title: &empty}.Validate()
	assert.Equal(t, []string{"title"}, fieldNames(t, err))

	// clearing the image is allowed
	assert.NoError(t, EventPatch{ImageURL: &empty}.Validate())

	bad := "mailto:someone"
	assert.Equal(t, []string{"ticketUrl"}, fieldNames(t, EventPatch{TicketURL: &bad}.Validate()))
}

func TestEventPatch_Apply(t *testing.T) {
	e := Event{Title: "Old", Location: "Here"}
	title := "New"
	p := EventPatch{Title: &title}
	assert.False(t, p.Empty())
	p.Apply(&e)
	assert.Equal(t, "New", e.Title)
	assert.Equal(t, "Here", e.Location)
}

func TestEventQuery_Matches(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2026, 5, d, 0, 0, 0, 0, time.UTC) }
	e := Event{
		Title:       "Vivid Sydney",
		Location:    "Circular Quay",
		Description: "Light installations",
		Source:      "vividsydney.com",
		Date:        day(22),
		IsActive:    true,
	}
	from, to := day(22), day(22)
	before, after := day(23), day(21)

	tests := []struct {
		name string
		q    EventQuery
		want bool
	}{
		{"zero query", EventQuery{}, true},
		{"source", EventQuery{Source: "vividsydney.com"}, true},
		{"other source", EventQuery{Source: "swf.org.au"}, false},
		{"inclusive bounds", EventQuery{From: &from, To: &to}, true},
		{"from after date", EventQuery{From: &before}, false},
		{"to before date", EventQuery{To: &after}, false},
		{"text in location, any case", EventQuery{Text: "circular"}, true},
		{"text in description", EventQuery{Text: "LIGHT"}, true},
		{"text nowhere", EventQuery{Text: "comedy"}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.q.Matches(e))
		})
	}

	e.IsActive = false
	assert.False(t, EventQuery{ActiveOnly: true}.Matches(e))
	assert.True(t, EventQuery{}.Matches(e))
}

func TestEvent_IsPast(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	assert.True(t, Event{Date: now.Add(-time.Minute)}.IsPast(now))
	assert.False(t, Event{Date: now}.IsPast(now))
	assert.False(t, Event{Date: now.Add(time.Hour)}.IsPast(now))
}

func TestParseEventID(t *testing.T) {
	_, err := ParseEventID("not-an-id")
	assert.ErrorIs(t, err, ErrInvalidID)

	id, err := ParseEventID(" 65a1f0c2e4b0a1b2c3d4e5f6 ")
	require.NoError(t, err)
	assert.Equal(t, "65a1f0c2e4b0a1b2c3d4e5f6", id.Hex())
}
