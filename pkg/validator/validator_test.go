package validator_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/flagship/pkg/validator"
)

func TestApply(t *testing.T) {
	t.Parallel()

	t.Run("nil when every rule passes", func(t *testing.T) {
		t.Parallel()
		err := validator.Apply(
			validator.RequiredString("metric", "api_calls"),
			validator.MaxLenString("metric", "api_calls", 100),
			validator.RequiredSlice("events", []int{1}),
			validator.MaxLenSlice("events", []int{1, 2}, 2),
		)
		assert.NoError(t, err)
	})

	t.Run("collects all failures", func(t *testing.T) {
		t.Parallel()
		err := validator.Apply(
			validator.RequiredString("metric", "  "),
			validator.MaxLenString("key", strings.Repeat("k", 6), 5),
			validator.RequiredSlice[int]("events", nil),
			validator.MaxLenSlice("tags", []string{"a", "b"}, 1),
		)
		require.Error(t, err)

		verrs := validator.ExtractValidationErrors(err)
		require.Len(t, verrs, 4)
		assert.Equal(t, []string{"metric", "key", "events", "tags"}, verrs.Fields())
		assert.Equal(t, []string{"field is required"}, verrs.Get("metric"))
		assert.Equal(t, "max_length", verrs[1].Code)
		assert.Equal(t, 5, verrs[1].Params["max"])
		assert.True(t, verrs.Has("tags"))
		assert.False(t, verrs.Has("plan"))
	})
}

func TestValidationErrorsError(t *testing.T) {
	t.Parallel()

	var empty validator.ValidationErrors
	assert.Equal(t, "validation failed", empty.Error())

	err := validator.Apply(
		validator.RequiredString("metric", ""),
		validator.MaxLenSlice("events", []int{1, 2}, 1),
	)
	assert.Equal(t, "validation failed: metric: field is required; events: must have at most 1 items", err.Error())
}

func TestExtractValidationErrors(t *testing.T) {
	t.Parallel()

	sentinel := errors.New("invalid batch")
	verr := validator.Apply(validator.RequiredString("metric", ""))

	joined := errors.Join(sentinel, verr)
	assert.True(t, validator.IsValidationError(joined))
	assert.Len(t, validator.ExtractValidationErrors(joined), 1)

	wrapped := fmt.Errorf("ingest: %w", verr)
	assert.True(t, validator.IsValidationError(wrapped))

	assert.Nil(t, validator.ExtractValidationErrors(sentinel))
	assert.Nil(t, validator.ExtractValidationErrors(nil))
	assert.False(t, validator.IsValidationError(nil))
}
