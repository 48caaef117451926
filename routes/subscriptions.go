package routes

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"eventsapi/models"
	"eventsapi/services"
)

type subscribeRequest struct {
	Email   string `json:"email"`
	EventID string `json:"eventId"`
	Consent *bool  `json:"consent"`
}

// decodeStrict decodes a JSON body into v and rejects fields v does not declare.
func decodeStrict(c *gin.Context, v any) error {
	if c.Request.Body == nil {
		return io.EOF
	}
	dec := json.NewDecoder(c.Request.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func subscribeOutcome(err error) string {
	var verr *models.ValidationError
	switch {
	case err == nil:
		return "created"
	case errors.Is(err, models.ErrDuplicateSubscription):
		return "duplicate"
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	case errors.As(err, &verr),
		errors.Is(err, models.ErrMissingField),
		errors.Is(err, models.ErrConsentRequired),
		errors.Is(err, models.ErrInvalidEmail),
		errors.Is(err, models.ErrInvalidID),
		errors.Is(err, models.ErrInactiveEvent):
		return "rejected"
	default:
		return "error"
	}
}

// POST /subscribe
func (d *deps) subscribe(c *gin.Context) {
	var req subscribeRequest
	if err := decodeStrict(c, &req); err != nil {
		d.metrics.ObserveSubscription("rejected")
		d.badRequest(c, "Could not parse request data.")
		return
	}

	res, err := d.subs.Subscribe(c.Request.Context(), services.SubscribeInput{
		Email:     req.Email,
		EventID:   req.EventID,
		Consent:   req.Consent,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	d.metrics.ObserveSubscription(subscribeOutcome(err))
	if err != nil {
		d.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "Email subscription successful",
		"data": gin.H{
			"email":     res.Subscription.Email,
			"event":     res.EventTitle,
			"timestamp": res.Subscription.Timestamp,
		},
	})
}

// GET /subscribe/stats
func (d *deps) getSubscriptionStats(c *gin.Context) {
	stats, err := d.subs.Stats(c.Request.Context())
	if err != nil {
		d.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": stats})
}

// GET /subscribe/check?email=&eventId=
func (d *deps) checkSubscription(c *gin.Context) {
	res, err := d.subs.Check(c.Request.Context(), c.Query("email"), c.Query("eventId"))
	if err != nil {
		d.fail(c, err)
		return
	}

	var sub any
	if res.IsSubscribed {
		sub = gin.H{"timestamp": res.Timestamp, "isRecent": res.IsRecent}
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"isSubscribed": res.IsSubscribed,
		"subscription": sub,
	})
}

// GET /subscribe/event/:eventId
func (d *deps) getSubscriptionsByEvent(c *gin.Context) {
	subs, err := d.subs.ByEvent(c.Request.Context(), c.Param("eventId"))
	if err != nil {
		d.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "count": len(subs), "data": subs})
}

// GET /subscribe/user/:email
func (d *deps) getSubscriptionsByUser(c *gin.Context) {
	email := c.Param("email")
	subs, err := d.subs.ByUser(c.Request.Context(), email)
	if err != nil {
		d.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   len(subs),
		"email":   models.NormalizeEmail(email),
		"data":    subs,
	})
}
