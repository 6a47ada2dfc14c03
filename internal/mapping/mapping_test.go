package mapping

import (
	"errors"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/dropDatabas3/datastreams/internal/domain/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldPathToMappingPath(t *testing.T) {
	cases := map[string]string{
		"@timestamp":      "properties.@timestamp",
		"event.created":   "properties.event.properties.created",
		"a.b.c":           "properties.a.properties.b.properties.c",
		"event_timestamp": "properties.event_timestamp",
	}
	for in, want := range cases {
		got, err := FieldPathToMappingPath(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestFieldPathToMappingPath_EmptySegments(t *testing.T) {
	for _, in := range []string{"", ".a", "a.", "a..b"} {
		_, err := FieldPathToMappingPath(in)
		require.Error(t, err, in)
		assert.True(t, errs.IsInternal(err), "must be an internal assertion, not a user error: %q", in)
		assert.False(t, errors.Is(err, errs.ErrValidation))
	}
}

func sampleMapping() map[string]any {
	return map[string]any{
		"properties": map[string]any{
			"@timestamp": map[string]any{"type": "date"},
			"message":    map[string]any{"type": "text"},
			"event": map[string]any{
				"properties": map[string]any{
					"created": map[string]any{"type": "date_nanos"},
					"kind":    map[string]any{"type": "keyword"},
				},
			},
		},
	}
}

func TestEval(t *testing.T) {
	src := sampleMapping()
	got, ok := Eval("properties.event.properties.created", src)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"type": "date_nanos"}, got)

	_, ok = Eval("properties.missing", src)
	assert.False(t, ok)
	_, ok = Eval("properties.@timestamp.type", src)
	assert.False(t, ok, "leaf values are not objects")
}

func TestNewFieldTypes(t *testing.T) {
	ft := NewFieldTypes(sampleMapping())
	assert.Equal(t, []string{"@timestamp", "event.created", "event.kind", "message"}, ft.Names(), spew.Sdump(ft))
	typ, ok := ft.FieldType("event.kind")
	require.True(t, ok)
	assert.Equal(t, "keyword", typ)
	_, ok = ft.FieldType("event")
	assert.False(t, ok, "plain objects are not leaf fields")
}

func TestValidateTimestampField(t *testing.T) {
	ft := NewFieldTypes(sampleMapping())
	require.NoError(t, ValidateTimestampField("@timestamp", ft))
	require.NoError(t, ValidateTimestampField("event.created", ft))

	err := ValidateTimestampField("event.kind", ft)
	require.ErrorIs(t, err, errs.ErrValidation)
	assert.Equal(t, "expected timestamp field [event.kind] to be of types [date date_nanos], but instead found type [keyword]", err.Error())

	err = ValidateTimestampField("ts", ft)
	require.ErrorIs(t, err, errs.ErrValidation)
	assert.Equal(t, "expected timestamp field [ts], but found no timestamp field", err.Error())
}

func TestMerge(t *testing.T) {
	base := map[string]any{"properties": map[string]any{"a": map[string]any{"type": "keyword"}}}
	over := map[string]any{"properties": map[string]any{"b": map[string]any{"type": "long"}}}
	out := Merge(base, over)
	assert.Equal(t, []string{"a", "b"}, NewFieldTypes(out).Names())
	assert.Len(t, base["properties"], 1, "base must not be mutated")

	assert.Equal(t, base, Normalize(map[string]any{"_doc": base}))
}
