package command

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestSeparator(t *testing.T) {
	cases := []struct {
		in   string
		want byte
	}{
		{"", '\t'},
		{"\\t", '\t'},
		{"\\n", '\n'},
		{",", ','},
		{";", ';'},
	}
	for _, c := range cases {
		assert.Equal(t, separator(c.in), c.want)
	}
}

func TestEnumValueSetRejectsUnknown(t *testing.T) {
	e := &EnumValue{Enum: []string{"debug", "info"}, Default: "info"}
	assert.NilError(t, e.Set("debug"))
	assert.Equal(t, e.String(), "debug")

	err := e.Set("verbose")
	assert.Assert(t, err != nil)
}

func TestEnumValueStringDefaultsWhenUnset(t *testing.T) {
	e := &EnumValue{Enum: []string{"a", "b"}, Default: "a"}
	assert.Equal(t, e.String(), "a")
}
