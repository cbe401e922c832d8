package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name   string   `validate:"required"`
	Kind   string   `validate:"oneof=a b"`
	Count  int      `validate:"gte=0"`
	Labels []string `validate:"min=1,dive,oneof=x y"`
}

func TestStruct_Valid(t *testing.T) {
	assert.NoError(t, Struct(sample{Name: "n", Kind: "a", Labels: []string{"x"}}))
}

func TestStruct_CollectsAllFailures(t *testing.T) {
	err := Struct(sample{Kind: "c", Count: -1, Labels: []string{"z"}})
	require.Error(t, err)

	var vErr *Error
	require.True(t, errors.As(err, &vErr))
	tags := make([]string, 0, len(vErr.Fields))
	for _, f := range vErr.Fields {
		tags = append(tags, f.Tag)
	}
	assert.ElementsMatch(t, []string{"required", "oneof", "gte", "oneof"}, tags)
	assert.Contains(t, err.Error(), "sample.Name is required")
	assert.Contains(t, err.Error(), "sample.Kind must be one of: a b")
}

func TestGet_ReturnsSingleton(t *testing.T) {
	assert.Same(t, Get(), Get())
}
