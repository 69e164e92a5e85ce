package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCoerceValue(t *testing.T) {
	tests := []struct {
		in   string
		want interface{}
	}{
		{"true", true},
		{"false", false},
		{"1", int64(1)},
		{"0", int64(0)},
		{"50", int64(50)},
		{"-3", int64(-3)},
		{"2.5", 2.5},
		{"/data/codify.db", "/data/codify.db"},
		{"asthma", "asthma"},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, coerceValue(tt.in), "coerceValue(%q)", tt.in)
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "exactly10!", truncate("exactly10!", 10))
	assert.Equal(t, "toolong...", truncate("toolong to fit", 10))
}
