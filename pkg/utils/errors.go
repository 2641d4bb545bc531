package utils

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/stitts-dev/cfl-optimizer/internal/optimizer"
)

type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func NewAppError(code string, message string, details ...string) *AppError {
	err := &AppError{
		Code:    code,
		Message: message,
	}
	if len(details) > 0 {
		err.Details = details[0]
	}
	return err
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s - %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Common error codes
const (
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeInternal           = "INTERNAL_ERROR"
	ErrCodeOptimization       = "OPTIMIZATION_ERROR"
	ErrCodeInfeasible         = "INFEASIBLE"
	ErrCodeResidualInfeasible = "RESIDUAL_INFEASIBLE"
	ErrCodeFeedUnavailable    = "FEED_UNAVAILABLE"
)

// StatusForCode returns the HTTP status used for an error code.
func StatusForCode(code string) int {
	switch code {
	case ErrCodeValidation:
		return http.StatusBadRequest
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeInfeasible, ErrCodeResidualInfeasible:
		return http.StatusUnprocessableEntity
	case ErrCodeFeedUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// OptimizationError maps an engine error to its HTTP status and envelope.
func OptimizationError(err error) (int, *AppError) {
	var inf *optimizer.InfeasibleError
	requirement := ""
	if errors.As(err, &inf) {
		requirement = inf.Requirement
	}

	switch {
	case errors.Is(err, optimizer.ErrResidualInfeasible):
		return http.StatusUnprocessableEntity, NewAppError(ErrCodeResidualInfeasible, "Locked players leave no feasible lineup", detail(requirement, err))
	case errors.Is(err, optimizer.ErrInfeasible):
		return http.StatusUnprocessableEntity, NewAppError(ErrCodeInfeasible, "No feasible lineup for the given pool", detail(requirement, err))
	case errors.Is(err, optimizer.ErrInvalidRequirement), errors.Is(err, optimizer.ErrInvalidRequest):
		return http.StatusBadRequest, NewAppError(ErrCodeValidation, "Invalid optimization settings", err.Error())
	default:
		return http.StatusInternalServerError, NewAppError(ErrCodeOptimization, "Optimization failed", err.Error())
	}
}

func detail(requirement string, err error) string {
	if requirement == "" {
		return err.Error()
	}
	return requirement + ": " + err.Error()
}
