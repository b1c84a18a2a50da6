package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/goodcoins/backend/internal/models"
)

// ErrorResponse represents error response structure
type ErrorResponse struct {
	Error   string            `json:"error"`             // Error message
	Details map[string]string `json:"details,omitempty"` // Validation details
}

// ValidationHelper provides shared validation functionality
type ValidationHelper struct {
	validator *validator.Validate
}

// NewValidationHelper creates a new validation helper
func NewValidationHelper() *ValidationHelper {
	v := validator.New()
	v.RegisterValidation("devarea", func(fl validator.FieldLevel) bool {
		return models.DevelopmentArea(fl.Field().String()).Valid()
	})
	return &ValidationHelper{
		validator: v,
	}
}

// ValidateStruct validates a struct and returns validation errors
func (vh *ValidationHelper) ValidateStruct(s any) error {
	return vh.validator.Struct(s)
}

// SendErrorResponse sends a JSON error response
func SendErrorResponse(w http.ResponseWriter, message string, statusCode int, validationErr error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errorResp := ErrorResponse{Error: message}
	var fieldErrs validator.ValidationErrors
	if validationErr != nil && errors.As(validationErr, &fieldErrs) {
		errorResp.Details = make(map[string]string)
		for _, err := range fieldErrs {
			errorResp.Details[err.Field()] = fmt.Sprintf("Field Validation Failed on '%s' tag", err.Tag())
		}
	}

	json.NewEncoder(w).Encode(errorResp)
}

// SendServiceError maps a service error onto its status and message.
// Store failures are logged and reported without internals.
func SendServiceError(w http.ResponseWriter, err error) {
	status := StatusCode(err)
	switch {
	case status == http.StatusInternalServerError:
		log.Printf("[HTTP] Internal error: %v", err)
		SendErrorResponse(w, "An Internal Error Occurred", status, nil)
	case status == http.StatusServiceUnavailable:
		SendErrorResponse(w, "Service temporarily unavailable, nothing was changed", status, nil)
	case errors.Is(err, ErrInvalidInput):
		SendErrorResponse(w, err.Error(), status, err)
	default:
		SendErrorResponse(w, err.Error(), status, nil)
	}
}
