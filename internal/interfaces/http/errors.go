package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/expense-router/internal/application/port"
	"github.com/garyjia/expense-router/internal/application/service"
	"github.com/garyjia/expense-router/internal/domain/routing"
	"github.com/garyjia/expense-router/internal/domain/workflow"
)

// Machine readable error codes of the API
const (
	CodeValidation        = "validation_error"
	CodeInvalidDecision   = "invalid_decision"
	CodeMissingComment    = "missing_comment"
	CodeNotFound          = "not_found"
	CodeNotAssigned       = "not_assigned_approver"
	CodeLevelNotFound     = "level_not_found"
	CodeNoMatchingRule    = "no_matching_rule"
	CodeNoApprover        = "no_approver"
	CodeOutOfSequence     = "out_of_sequence"
	CodeInvalidTransition = "invalid_transition"
	CodeRateLimited       = "rate_limited"
	CodeUnavailable       = "unavailable"
	CodeInternal          = "internal_error"
)

// classify maps an application error to its HTTP status and error code
func classify(err error) (int, string) {
	var (
		validation   *service.ValidationError
		missing      *routing.MissingCommentError
		levelMissing *routing.LevelNotFoundError
		noMatch      *routing.NoMatchingRuleError
		sequence     *routing.OutOfSequenceError
		notAssigned  *routing.NotAssignedApproverError
	)

	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, CodeValidation
	case errors.Is(err, routing.ErrInvalidDecision):
		return http.StatusBadRequest, CodeInvalidDecision
	case errors.As(err, &missing):
		return http.StatusBadRequest, CodeMissingComment
	case errors.As(err, &notAssigned):
		return http.StatusForbidden, CodeNotAssigned
	case errors.As(err, &levelMissing):
		return http.StatusNotFound, CodeLevelNotFound
	case errors.Is(err, port.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.As(err, &noMatch):
		return http.StatusUnprocessableEntity, CodeNoMatchingRule
	case errors.Is(err, service.ErrNoApprover):
		return http.StatusUnprocessableEntity, CodeNoApprover
	case errors.As(err, &sequence):
		return http.StatusConflict, CodeOutOfSequence
	case errors.Is(err, workflow.ErrInvalidTransition):
		return http.StatusConflict, CodeInvalidTransition
	case errors.Is(err, service.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, CodeUnavailable
	}
	return http.StatusInternalServerError, CodeInternal
}

// respondError writes err as a failed Response. Internal errors are logged and their
// details withheld from the client.
func (h *Handlers) respondError(c *gin.Context, op string, err error) {
	status, code := classify(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", "operation", op, "error", err, "path", c.Request.URL.Path)
		_ = c.Error(err)
		message = "internal server error"
	}
	c.JSON(status, Response{
		Success: false,
		Error:   message,
		Code:    code,
	})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, Response{
		Success: false,
		Error:   message,
		Code:    CodeValidation,
	})
}
