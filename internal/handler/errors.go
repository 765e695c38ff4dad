package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/flicky/smart-inventory/internal/service"
)

// respondError maps service errors to HTTP responses. Unclassified errors
// are logged and answered with a generic 500.
func respondError(c *gin.Context, log *slog.Logger, err error) {
	var stockErr *service.InsufficientStockError
	switch {
	case errors.As(err, &stockErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":      stockErr.Error(),
			"product_id": stockErr.ProductID,
			"available":  stockErr.Available,
		})
	case errors.Is(err, service.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": userMessage(err)})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": userMessage(err)})
	case errors.Is(err, service.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": userMessage(err)})
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": userMessage(err)})
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
	default:
		log.Error("request failed",
			"method", c.Request.Method, "route", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

// userMessage strips the wrapping added on the way up and returns the
// message of the typed domain error.
func userMessage(err error) string {
	var (
		ve *service.ValidationError
		nf *service.NotFoundError
		ce *service.ConflictError
		ae *service.AuthorizationError
	)
	switch {
	case errors.As(err, &ve):
		return ve.Error()
	case errors.As(err, &nf):
		return nf.Error()
	case errors.As(err, &ce):
		return ce.Error()
	case errors.As(err, &ae):
		return ae.Error()
	}
	return err.Error()
}

func parseID(c *gin.Context, entity string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + entity + " ID"})
		return uuid.Nil, false
	}
	return id, true
}

func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}
