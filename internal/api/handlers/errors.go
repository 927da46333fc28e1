package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/andresuchdata/autopo-py/forecast/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// statusForError maps domain failures onto HTTP status codes.
func statusForError(err error) int {
	var (
		schemaErr *domain.SchemaError
		dataErr   *domain.DataError
		fitErr    *domain.ModelFitError
	)
	switch {
	case errors.As(err, &schemaErr), errors.As(err, &dataErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &fitErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled):
		return 499
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func errorResponse(c *gin.Context, err error, message string) {
	status := statusForError(err)
	event := log.Warn()
	if status >= http.StatusInternalServerError {
		event = log.Error()
	}
	event.Err(err).Str("path", c.Request.URL.Path).Msg(message)
	c.JSON(status, gin.H{"error": message, "detail": err.Error()})
}
