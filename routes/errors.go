package routes

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"eventsapi/models"
)

// client-facing wording for each rejection kind
var badRequests = []struct {
	err     error
	message string
}{
	{models.ErrInvalidID, "Invalid event ID format"},
	{models.ErrInvalidRange, "Invalid date format. Use YYYY-MM-DD"},
	{models.ErrInvalidEmail, "Please provide a valid email address"},
	{models.ErrMissingField, "Email and event ID are required"},
	{models.ErrMissingQuery, "Please provide a search query"},
	{models.ErrConsentRequired, "User consent is required to subscribe"},
	{models.ErrInactiveEvent, "Cannot subscribe to inactive event"},
	{models.ErrDuplicateSubscription, "You are already subscribed to this event"},
	{models.ErrDuplicate, "An event with the same content already exists"},
}

// fail writes the error envelope for err. Anything unclassified is a 500 whose
// detail only shows in debug mode.
func (d *deps) fail(c *gin.Context, err error) {
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": verr.Error(),
			"errors":  verr.Fields,
		})
		return
	}

	for _, br := range badRequests {
		if errors.Is(err, br.err) {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": br.message})
			return
		}
	}

	if errors.Is(err, models.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Event not found"})
		return
	}

	_ = c.Error(err)
	d.log.Error("Request failed",
		zap.String("path", c.Request.URL.Path),
		zap.Error(err))
	body := gin.H{"success": false, "error": "Internal Server Error"}
	if d.opts.Debug {
		body["detail"] = err.Error()
	}
	c.JSON(http.StatusInternalServerError, body)
}

func (d *deps) badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": message})
}
