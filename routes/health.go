package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// GET /health
// Always 200 while the process serves; store reachability is reported, not enforced.
func (d *deps) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	database := "connected"
	if err := d.events.Ping(ctx); err != nil {
		d.log.Warn("Event store ping failed", zap.Error(err))
		database = "disconnected"
	} else if err := d.subs.Ping(ctx); err != nil {
		d.log.Warn("Subscription store ping failed", zap.Error(err))
		database = "disconnected"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      "OK",
		"message":     "Sydney Events Aggregator API is running",
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"environment": d.opts.Environment,
		"database":    database,
	})
}

var endpoints = gin.H{
	"events": gin.H{
		"GET /events":                   "Get all active events",
		"GET /events/upcoming":          "Get upcoming events",
		"GET /events/stats":             "Get event statistics",
		"GET /events/search?q=":         "Search active events by title, location or description",
		"GET /events/range?start=&end=": "Get active events between two dates",
		"GET /events/source/:source":    "Get active events from one source",
		"GET /events/:id":               "Get event by ID",
	},
	"subscriptions": gin.H{
		"POST /subscribe":                      "Subscribe to event notifications",
		"GET /subscribe/stats":                 "Get subscription statistics",
		"GET /subscribe/check?email=&eventId=": "Check whether an email is subscribed to an event",
		"GET /subscribe/event/:eventId":        "List subscriptions for an event",
		"GET /subscribe/user/:email":           "List subscriptions for an email",
	},
	"health": gin.H{
		"GET /health": "Check API health status",
	},
}

// GET /api
func (d *deps) apiIndex(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"message":   "Sydney Events Aggregator API",
		"version":   "1.0.0",
		"endpoints": endpoints,
	})
}

func (d *deps) notFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{
		"success": false,
		"error":   "Not Found - " + c.Request.URL.RequestURI(),
		"message": "The requested resource does not exist",
		"availableEndpoints": gin.H{
			"events":    "/events",
			"subscribe": "/subscribe",
			"health":    "/health",
			"apiInfo":   "/api",
		},
	})
}
