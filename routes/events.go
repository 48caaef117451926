package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"eventsapi/middlewares"
	"eventsapi/models"
)

// eventView is an Event as the API returns it, with isPast computed per request.
type eventView struct {
	models.Event
	IsPast bool `json:"isPast"`
}

func views(events []models.Event, now time.Time) []eventView {
	out := make([]eventView, 0, len(events))
	for _, e := range events {
		out = append(out, eventView{Event: e, IsPast: e.IsPast(now)})
	}
	return out
}

// capCacheAtNextPast keeps a cached body from outliving the first isPast flag in it
// that would change.
func capCacheAtNextPast(c *gin.Context, events []models.Event, now time.Time) {
	var next time.Time
	for _, e := range events {
		if !e.IsPast(now) && (next.IsZero() || e.Date.Before(next)) {
			next = e.Date
		}
	}
	if !next.IsZero() {
		middlewares.CapCacheTTL(c, next.Sub(now))
	}
}

func (d *deps) list(c *gin.Context, events []models.Event, extra gin.H) {
	now := d.events.Now()
	capCacheAtNextPast(c, events, now)
	body := gin.H{
		"success": true,
		"count":   len(events),
		"data":    views(events, now),
	}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(http.StatusOK, body)
}

// GET /events
func (d *deps) getEvents(c *gin.Context) {
	events, err := d.events.GetActive(c.Request.Context())
	if err != nil {
		d.fail(c, err)
		return
	}
	d.list(c, events, nil)
}

// GET /events/upcoming
func (d *deps) getUpcomingEvents(c *gin.Context) {
	events, err := d.events.GetUpcoming(c.Request.Context())
	if err != nil {
		d.fail(c, err)
		return
	}
	d.list(c, events, nil)
}

// GET /events/stats
func (d *deps) getEventStats(c *gin.Context) {
	stats, err := d.events.Stats(c.Request.Context())
	if err != nil {
		d.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "stats": stats})
}

// GET /events/search?q=
func (d *deps) searchEvents(c *gin.Context) {
	q := c.Query("q")
	events, err := d.events.Search(c.Request.Context(), q)
	if err != nil {
		d.fail(c, err)
		return
	}
	d.list(c, events, gin.H{"query": strings.TrimSpace(q)})
}

// GET /events/range?start=&end=
func (d *deps) getEventsByDateRange(c *gin.Context) {
	start, end := c.Query("start"), c.Query("end")
	if strings.TrimSpace(start) == "" || strings.TrimSpace(end) == "" {
		d.badRequest(c, "Please provide both start and end dates")
		return
	}
	events, err := d.events.GetByDateRange(c.Request.Context(), start, end)
	if err != nil {
		d.fail(c, err)
		return
	}
	d.list(c, events, gin.H{"dateRange": gin.H{"start": start, "end": end}})
}

// GET /events/source/:source
func (d *deps) getEventsBySource(c *gin.Context) {
	source := c.Param("source")
	events, err := d.events.GetBySource(c.Request.Context(), source)
	if err != nil {
		d.fail(c, err)
		return
	}
	d.list(c, events, gin.H{"source": source})
}

// GET /events/:id
func (d *deps) getEvent(c *gin.Context) {
	event, err := d.events.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		d.fail(c, err)
		return
	}
	// the listing hides inactive events, so a direct lookup does too
	if !event.IsActive {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Event is no longer active"})
		return
	}
	now := d.events.Now()
	capCacheAtNextPast(c, []models.Event{*event}, now)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    eventView{Event: *event, IsPast: event.IsPast(now)},
	})
}
