package services

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
)

type TestStruct struct {
	Name  string `validate:"required,min=2"`
	Email string `validate:"required,email"`
	Area  string `validate:"required,devarea"`
}

func TestValidationHelper_ValidateStruct(t *testing.T) {
	vh := NewValidationHelper()

	t.Run("valid struct", func(t *testing.T) {
		valid := TestStruct{
			Name:  "Jane Doe",
			Email: "jane@example.com",
			Area:  "Creativity",
		}

		err := vh.ValidateStruct(&valid)
		assert.NoError(t, err)
	})

	t.Run("invalid struct - multiple fields", func(t *testing.T) {
		invalid := TestStruct{
			Name: "J", // Too short
			// Email missing
			Area: "Knitting",
		}

		err := vh.ValidateStruct(&invalid)
		assert.Error(t, err)

		validationErrors, ok := err.(validator.ValidationErrors)
		assert.True(t, ok)
		assert.Len(t, validationErrors, 3)
	})

	t.Run("development area is case sensitive", func(t *testing.T) {
		invalid := TestStruct{
			Name:  "Jane Doe",
			Email: "jane@example.com",
			Area:  "creativity",
		}

		err := vh.ValidateStruct(&invalid)
		validationErrors, ok := err.(validator.ValidationErrors)
		assert.True(t, ok)
		assert.Len(t, validationErrors, 1)
		assert.Equal(t, "devarea", validationErrors[0].Tag())
	})
}

func TestSendErrorResponse(t *testing.T) {
	t.Run("error without validation details", func(t *testing.T) {
		w := httptest.NewRecorder()
		SendErrorResponse(w, "Test error", http.StatusBadRequest, nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var response ErrorResponse
		err := json.Unmarshal(w.Body.Bytes(), &response)
		assert.NoError(t, err)
		assert.Equal(t, "Test error", response.Error)
		assert.Nil(t, response.Details)
	})

	t.Run("wrapped validation errors produce details", func(t *testing.T) {
		vh := NewValidationHelper()
		validationErr := vh.ValidateStruct(&TestStruct{Name: "J", Email: "jane@example.com", Area: "Learning"})
		wrapped := fmt.Errorf("%w: %w", ErrInvalidInput, validationErr)

		w := httptest.NewRecorder()
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, wrapped)

		var response ErrorResponse
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Contains(t, response.Details["Name"], "min")
	})

	t.Run("non-validation error is ignored", func(t *testing.T) {
		w := httptest.NewRecorder()
		SendErrorResponse(w, "Boom", http.StatusBadRequest, ErrInvalidAmount)

		var response ErrorResponse
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Nil(t, response.Details)
	})
}

func TestSendServiceError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", fmt.Errorf("child x: %w", ErrNotFound), http.StatusNotFound},
		{"forbidden", ErrForbidden, http.StatusForbidden},
		{"invalid amount", ErrInvalidAmount, http.StatusBadRequest},
		{"insufficient balance", ErrInsufficientBalance, http.StatusConflict},
		{"already completed", ErrAlreadyCompleted, http.StatusConflict},
		{"store unavailable", fmt.Errorf("redeem: %w", ErrStoreUnavailable), http.StatusServiceUnavailable},
		{"unknown", fmt.Errorf("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			SendServiceError(w, tt.err)
			assert.Equal(t, tt.status, w.Code)
		})
	}

	t.Run("internal errors hide details", func(t *testing.T) {
		w := httptest.NewRecorder()
		SendServiceError(w, fmt.Errorf("pq: password authentication failed"))

		var response ErrorResponse
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, "An Internal Error Occurred", response.Error)
	})
}
