package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
		want  string
	}{
		{"validation", Validation("duration", "must be positive"), IsValidation, "validation: duration: must be positive"},
		{"not found", NotFound("order", 7), IsNotFound, "order 7 not found"},
		{"conflict", Conflict("appointment", "slot taken"), IsConflict, "appointment conflict: slot taken"},
		{"transition", InvalidTransition("order", 3, "close", "resume"), IsInvalidTransition, `order 3: cannot resume from "close"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("service: %w", tt.err)
			assert.True(t, tt.check(wrapped))
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestErrorKindsDoNotOverlap(t *testing.T) {
	err := NotFound("user", 1)
	assert.False(t, IsConflict(err))
	assert.False(t, IsValidation(err))
	assert.False(t, IsInvalidTransition(err))
}

func TestValidationErrorComparable(t *testing.T) {
	dayFull := ValidationError{Field: "date", Msg: "no free time"}
	err := fmt.Errorf("advance: %w", dayFull)
	assert.True(t, errors.Is(err, dayFull))
	assert.True(t, errors.Is(err, ErrValidation))

	var ve ValidationError
	assert.True(t, errors.As(err, &ve))
	assert.Equal(t, "date", ve.Field)
}
