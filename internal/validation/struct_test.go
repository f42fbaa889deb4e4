package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/printpoints/internal/errs"
)

type sample struct {
	Category string `validate:"required"`
	Message  string `validate:"max=5"`
}

func TestStruct(t *testing.T) {
	require.NoError(t, Struct(sample{Category: "paper", Message: "ok"}))

	err := Struct(sample{Message: "ok"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrValidation))

	var ve *errs.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "category", ve.Field)
	assert.Equal(t, "required", ve.Reason)

	err = Struct(sample{Category: "x", Message: "too long"})
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "max=5", ve.Reason)
}
