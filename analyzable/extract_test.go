package analyzable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trialkit/codify/errors"
)

// fieldMap is a trivial Resolver for tests.
type fieldMap map[string]any

func (f fieldMap) Field(name string) (any, bool) {
	v, ok := f[name]
	return v, ok
}

func TestExtract(t *testing.T) {
	tests := []struct {
		name    string
		root    any
		keypath string
		want    string
	}{
		{
			name:    "single leaf verbatim",
			root:    map[string]any{"summary": "Hello there"},
			keypath: "summary",
			want:    "Hello there",
		},
		{
			name:    "single leaf keeps missing period",
			root:    map[string]any{"summary": "no period"},
			keypath: "summary",
			want:    "no period",
		},
		{
			name:    "list joins into a paragraph",
			root:    map[string]any{"bar": []any{"a", "b"}},
			keypath: "bar",
			want:    "a. b.",
		},
		{
			name:    "terminal punctuation preserved",
			root:    map[string]any{"bar": []any{"Done!", "next", "Sure?"}},
			keypath: "bar",
			want:    "Done! next. Sure?",
		},
		{
			name:    "blank fragments dropped from join",
			root:    map[string]any{"bar": []any{"a", "   ", "b"}},
			keypath: "bar",
			want:    "a. b.",
		},
		{
			name: "textblock substitution on map leaf",
			root: map[string]any{
				"criteria": map[string]any{"textblock": "No pregnant women"},
			},
			keypath: "criteria",
			want:    "No pregnant women",
		},
		{
			name: "nested path",
			root: map[string]any{
				"eligibility": map[string]any{
					"criteria": map[string]any{"textblock": "Age > 18"},
				},
			},
			keypath: "eligibility.criteria",
			want:    "Age > 18",
		},
		{
			name: "fans out across repeated sections",
			root: map[string]any{
				"location": []any{
					map[string]any{"facility": "General Hospital"},
					map[string]any{"facility": "County Clinic"},
				},
			},
			keypath: "location.facility",
			want:    "General Hospital. County Clinic.",
		},
		{
			name:    "string slice leaves",
			root:    map[string]any{"keyword": []string{"asthma", "copd"}},
			keypath: "keyword",
			want:    "asthma. copd.",
		},
		{
			name:    "missing segment yields empty text",
			root:    map[string]any{"summary": "Hello"},
			keypath: "nope.really",
			want:    "",
		},
		{
			name: "candidates missing the segment drop out",
			root: map[string]any{
				"location": []any{
					map[string]any{"facility": "Named"},
					map[string]any{"city": "Anonville"},
				},
			},
			keypath: "location.facility",
			want:    "Named",
		},
		{
			name:    "resolver fields take precedence",
			root:    fieldMap{"summary": "from resolver"},
			keypath: "summary",
			want:    "from resolver",
		},
		{
			name: "resolver nested under map",
			root: map[string]any{
				"trial": fieldMap{"summary": "deep"},
			},
			keypath: "trial.summary",
			want:    "deep",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Extract(tt.root, tt.keypath)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractContentErrors(t *testing.T) {
	tests := []struct {
		name    string
		root    any
		keypath string
	}{
		{
			name:    "numeric leaf",
			root:    map[string]any{"count": float64(42)},
			keypath: "count",
		},
		{
			name:    "map leaf without textblock",
			root:    map[string]any{"criteria": map[string]any{"note": "x"}},
			keypath: "criteria",
		},
		{
			name:    "one bad leaf fails the whole extraction",
			root:    map[string]any{"bar": []any{"fine", true}},
			keypath: "bar",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Extract(tt.root, tt.keypath)
			require.Error(t, err)
			assert.True(t, errors.IsContentError(err))
		})
	}
}

func TestExtractGuards(t *testing.T) {
	_, err := Extract(nil, "summary")
	require.Error(t, err)
	assert.True(t, errors.HasAssertionFailure(err))

	_, err = Extract(map[string]any{}, "")
	require.Error(t, err)
	assert.True(t, errors.HasAssertionFailure(err))
}
