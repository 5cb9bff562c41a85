package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProviderErrorUnwrap(t *testing.T) {
	err := NewProviderError("massive", "GetLatestTick", ErrTimeout)
	wrapped := Wrap(err, "vix fallback")

	assert.True(t, Is(wrapped, ErrTimeout))

	var pe *ProviderError
	assert.True(t, As(wrapped, &pe))
	assert.Equal(t, "massive", pe.Provider)
	assert.Contains(t, wrapped.Error(), "GetLatestTick")
}

func TestDecodeErrorMessage(t *testing.T) {
	err := NewDecodeError("news", "published_utc", "required", nil)
	assert.Equal(t, "decode error [news] published_utc: required", err.Error())

	inner := fmt.Errorf("unexpected EOF")
	err = NewDecodeError("chain", "", "malformed envelope", inner)
	assert.True(t, Is(err, inner))
}

func TestValidationErrorIsInvalidConfig(t *testing.T) {
	err := NewValidationError("gate.vix_cap", -1.0, "must be positive")
	assert.True(t, Is(err, ErrInvalidConfig))
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, "ignored"))
	assert.Nil(t, Wrapf(nil, "ignored %d", 1))
}
