package errors

import (
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderDefaults(t *testing.T) {
	err := Newf("boundary layer %q missing", "Dominica_1").Build()
	assert.Equal(t, CategoryGeneric, err.Category)
	assert.Equal(t, ComponentUnknown, err.Component)
	assert.Equal(t, `boundary layer "Dominica_1" missing`, err.Error())
}

func TestBuilderCategoryAndContext(t *testing.T) {
	err := New(io.ErrUnexpectedEOF).
		Component("geostore").
		Category(CategorySchemaMismatch).
		Context("dataset", "chips_small").
		Context("expected_bands", []string{"Band_1", "Band_2", "Band_3"}).
		Build()

	assert.Equal(t, "schema-mismatch", err.GetCategory())
	ctx := err.GetContext()
	require.NotNil(t, ctx)
	assert.Equal(t, "chips_small", ctx["dataset"])

	// Context copies must not alias the internal map.
	ctx["dataset"] = "mutated"
	assert.Equal(t, "chips_small", err.GetContext()["dataset"])
}

func TestUnwrapAndIs(t *testing.T) {
	base := io.EOF
	wrapped := New(fmt.Errorf("reading chip store: %w", base)).
		Category(CategoryStore).
		Build()

	assert.True(t, Is(wrapped, base))
	assert.True(t, Is(wrapped, &EnhancedError{Category: CategoryStore}))
	assert.False(t, Is(wrapped, &EnhancedError{Category: CategoryProjection}))
}

func TestHasCategory(t *testing.T) {
	inner := Newf("no polygon matches image").Category(CategoryMissingBoundary).Build()
	outer := fmt.Errorf("prepare: %w", inner)

	assert.True(t, HasCategory(outer, CategoryMissingBoundary))
	assert.False(t, HasCategory(outer, CategorySchemaMismatch))
	assert.False(t, HasCategory(nil, CategoryMissingBoundary))
}
