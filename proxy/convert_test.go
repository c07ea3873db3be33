package proxy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pontoon-dev/pontoon/interp"
)

func TestConvertValueModes(t *testing.T) {
	mark := &interp.Markup{Kind: interp.MarkupHTML, Content: "<svg/>"}
	v := &interp.FakeValue{Val: int64(7), Printed: "7", Mark: mark}

	res := convertValue(v, ModeValue)
	assert.Equal(t, int64(7), res.Value)
	assert.Empty(t, res.Printed)
	assert.Nil(t, res.Markup)

	res = convertValue(v, ModePrinted)
	assert.Equal(t, "7", res.Printed)
	assert.Nil(t, res.Value)

	res = convertValue(v, ModeMarkup)
	require.NotNil(t, res.Markup)
	assert.Equal(t, *mark, *res.Markup)

	res = convertValue(v, ModeNone)
	assert.Nil(t, res.Value)
	assert.Empty(t, res.Printed)
	assert.Nil(t, res.Markup)
}

func TestConvertValueMarkupFallback(t *testing.T) {
	// A value that cannot render itself degrades to its text form.
	v := &interp.FakeValue{Printed: "plain"}

	res := convertValue(v, ModeMarkup)
	require.NotNil(t, res.Markup)
	assert.Equal(t, interp.MarkupText, res.Markup.Kind)
	assert.Equal(t, "plain", res.Markup.Content)
}

func TestConvertValueDoesNotRelease(t *testing.T) {
	v := &interp.FakeValue{Val: 1, Printed: "1"}
	convertValue(v, ModeValue)
	assert.False(t, v.Released)
}
