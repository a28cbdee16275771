package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	chargedomain "github.com/smallbiznis/dongi/internal/charge/domain"
	eventdomain "github.com/smallbiznis/dongi/internal/event/domain"
	selectiondomain "github.com/smallbiznis/dongi/internal/selection/domain"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var ErrInvalidRequest = errors.New("invalid_request")

const (
	errTypeValidation = "validation_error"
	errTypeNotFound   = "not_found"
	errTypeConflict   = "conflict"
	errTypeForbidden  = "forbidden"
	errTypeInternal   = "internal_error"
)

var (
	validationErrors = []error{
		ErrInvalidRequest,
		chargedomain.ErrInvalidEventID,
		eventdomain.ErrInvalidEventID,
		eventdomain.ErrInvalidEventState,
		selectiondomain.ErrInvalidSelectionID,
		selectiondomain.ErrInvalidEventID,
		selectiondomain.ErrInvalidParticipant,
		selectiondomain.ErrInvalidActor,
		selectiondomain.ErrInvalidMenuItem,
		selectiondomain.ErrInvalidQuantity,
		selectiondomain.ErrEmptyAllocation,
	}
	notFoundErrors = []error{
		chargedomain.ErrEventNotFound,
		eventdomain.ErrEventNotFound,
		selectiondomain.ErrEventNotFound,
		selectiondomain.ErrSelectionNotFound,
	}
	conflictErrors = []error{
		eventdomain.ErrInvalidTransition,
		eventdomain.ErrPaidLinksExist,
		eventdomain.ErrEventBusy,
		selectiondomain.ErrEventBusy,
		selectiondomain.ErrEventNotOpen,
		selectiondomain.ErrCutoffPassed,
	}
	forbiddenErrors = []error{
		selectiondomain.ErrForbidden,
	}
)

// ErrorHandlingMiddleware renders the last handler error as the JSON envelope.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}
		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case err == nil:
		return http.StatusInternalServerError, errorPayload{Type: errTypeInternal, Message: "internal server error"}
	case isAny(err, validationErrors):
		return http.StatusBadRequest, errorPayload{Type: errTypeValidation, Message: err.Error()}
	case isAny(err, notFoundErrors):
		return http.StatusNotFound, errorPayload{Type: errTypeNotFound, Message: err.Error()}
	case isAny(err, conflictErrors):
		return http.StatusConflict, errorPayload{Type: errTypeConflict, Message: err.Error()}
	case isAny(err, forbiddenErrors):
		return http.StatusForbidden, errorPayload{Type: errTypeForbidden, Message: err.Error()}
	default:
		// storage details stay in the logs
		return http.StatusInternalServerError, errorPayload{Type: errTypeInternal, Message: "internal server error"}
	}
}

func classifyErrorForLog(err error) string {
	_, payload := mapError(err)
	return payload.Type
}

func isAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
