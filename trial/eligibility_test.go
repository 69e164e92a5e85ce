package trial

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trialkit/codify/errors"
	"github.com/trialkit/codify/nlp"
)

// stubEngine keeps the file-drop protocol in memory so tests can
// deposit output by hand between codification passes.
type stubEngine struct {
	name    string
	inputs  map[string]string
	outputs map[string]nlp.CodeSet
}

func newStubEngine(name string) *stubEngine {
	return &stubEngine{
		name:    name,
		inputs:  make(map[string]string),
		outputs: make(map[string]nlp.CodeSet),
	}
}

func (s *stubEngine) Name() string   { return s.name }
func (s *stubEngine) Prepare() error { return nil }

func (s *stubEngine) WriteInput(text, filename string) (bool, error) {
	if text == "" || filename == "" {
		return false, nil
	}
	if _, ok := s.inputs[filename]; ok {
		return false, errors.Wrapf(errors.ErrInputExists, "%s", filename)
	}
	s.inputs[filename] = text
	return true, nil
}

func (s *stubEngine) Run(ctx context.Context) error { return nil }

func (s *stubEngine) ParseOutput(filename string, opt nlp.ParseOptions) (nlp.CodeSet, error) {
	cs, ok := s.outputs[filename]
	if !ok {
		return nil, nil
	}
	return cs, nil
}

// deposit simulates the external engine completing one unit.
func (s *stubEngine) deposit(c *Criterion, cs nlp.CodeSet) {
	s.outputs[c.Filename()] = cs
}

func TestParseGender(t *testing.T) {
	assert.Equal(t, GenderBoth, ParseGender("Both"))
	assert.Equal(t, GenderFemale, ParseGender("Female"))
	assert.Equal(t, GenderMale, ParseGender("Male"))
	assert.Equal(t, GenderMale, ParseGender(""))
	assert.Equal(t, "Both", GenderBoth.String())
	assert.Equal(t, "Female", GenderFemale.String())
}

func TestParseEligibilityAges(t *testing.T) {
	e := ParseEligibility(map[string]any{
		"gender":      "Both",
		"minimum_age": "18 Years",
		"maximum_age": "65 Years",
	})
	assert.Equal(t, 18, e.MinAge)
	assert.Equal(t, 65, e.MaxAge)

	e = ParseEligibility(map[string]any{
		"minimum_age": "N/A",
		"maximum_age": "N/A",
	})
	assert.Equal(t, 0, e.MinAge)
	assert.Equal(t, 0, e.MaxAge)

	e = ParseEligibility(map[string]any{})
	assert.Equal(t, GenderMale, e.Gender)
	assert.Equal(t, "", e.Text)
}

func TestProcessSegmentsCriteria(t *testing.T) {
	e := &EligibilityCriteria{
		Text: "Inclusion Criteria:\n\n- Age > 18\n\nExclusion Criteria:\n\n- Pregnant",
	}
	require.NoError(t, e.Process())

	require.Len(t, e.Criteria, 2)
	assert.Equal(t, "Age > 18", e.Criteria[0].Text)
	assert.True(t, e.Criteria[0].IsInclusion)
	assert.Equal(t, "Pregnant", e.Criteria[1].Text)
	assert.False(t, e.Criteria[1].IsInclusion)
	assert.NotEqual(t, e.Criteria[0].ID, e.Criteria[1].ID)
}

func TestProcessWithoutText(t *testing.T) {
	e := &EligibilityCriteria{}
	require.NoError(t, e.Process())
	assert.Nil(t, e.Criteria)
}

func TestEligibilityCodifyLifecycle(t *testing.T) {
	eng := newStubEngine("ctakes")
	ctx := context.Background()

	e := &EligibilityCriteria{
		Text: "Inclusion Criteria:\n\n- Age > 18\n\nExclusion Criteria:\n\n- Pregnant",
	}

	// First pass segments and submits each criterion.
	require.NoError(t, e.Codify(ctx, []nlp.Engine{eng}, false))
	require.Len(t, e.Criteria, 2)
	assert.True(t, e.WaitingForNLP("ctakes"))
	assert.Len(t, eng.inputs, 2)
	assert.Equal(t, "Pregnant.", eng.inputs[e.Criteria[1].Filename()])
	assert.False(t, e.LastProcessed.IsZero())

	// The engine completes the exclusion criterion only.
	eng.deposit(e.Criteria[1], nlp.CodeSet{nlp.SystemCUI: nlp.Codes("C0032961")})

	require.NoError(t, e.Codify(ctx, []nlp.Engine{eng}, false))
	assert.Equal(t, nlp.Codes("C0032961"), e.Criteria[1].CUIs("ctakes"))
	assert.False(t, e.Criteria[1].Waiting("ctakes"))
	assert.True(t, e.Criteria[0].Waiting("ctakes"))
	assert.True(t, e.WaitingForNLP("ctakes"))

	// The inclusion criterion completes with no findings: attempted,
	// empty, and nothing left waiting.
	eng.deposit(e.Criteria[0], nlp.CodeSet{})
	require.NoError(t, e.Codify(ctx, []nlp.Engine{eng}, false))
	assert.True(t, e.Criteria[0].Attempted("ctakes"))
	assert.False(t, e.WaitingForNLP("ctakes"))
}

func TestCriterionAccessors(t *testing.T) {
	c := NewCriterion("Pregnant or diabetic", false)
	c.MergeResult("ctakes", nlp.CodeSet{
		nlp.SystemSnomed: nlp.Codes("-77386006", "73211009"),
		nlp.SystemCUI:    nlp.Codes("C0032961"),
	})
	c.MergeResult("metamap", nlp.CodeSet{
		nlp.SystemCUI: nlp.Codes("C0011849"),
	})
	c.MergeResult("tagger", nlp.CodeSet{
		nlp.SystemTags: nlp.Codes("pregnant"),
	})

	assert.Equal(t, nlp.Codes("-77386006", "73211009"), c.Snomed())
	assert.Equal(t, nlp.Codes("C0032961"), c.CUIs("ctakes"))
	assert.Equal(t, nlp.Codes("C0011849"), c.CUIs("metamap"))
	assert.Equal(t, nlp.Codes("pregnant"), c.Tags())
	assert.Nil(t, c.RxNorm())
}

func TestExcludeBySnomed(t *testing.T) {
	e := &EligibilityCriteria{Text: "ignored"}
	include := NewCriterion("Age > 18", true)
	include.MergeResult("ctakes", nlp.CodeSet{nlp.SystemSnomed: nlp.Codes("44054006")})
	exclude := NewCriterion("No history of diabetes, pregnant", false)
	exclude.MergeResult("ctakes", nlp.CodeSet{nlp.SystemSnomed: nlp.Codes("-44054006", "77386006")})
	e.Criteria = []*Criterion{include, exclude}

	// Negated codes never exclude; matching inclusion codes never
	// exclude.
	code, excluded := e.ExcludeBySnomed([]string{"44054006"})
	assert.False(t, excluded)
	assert.Equal(t, "", code)

	code, excluded = e.ExcludeBySnomed([]string{"44054006", "77386006"})
	assert.True(t, excluded)
	assert.Equal(t, "77386006", code)

	_, excluded = e.ExcludeBySnomed(nil)
	assert.False(t, excluded)
}

func TestFormatted(t *testing.T) {
	e := &EligibilityCriteria{
		Gender:            GenderFemale,
		MinAge:            18,
		HealthyVolunteers: "No",
		Text:              "raw text",
	}
	got := e.Formatted()
	assert.Contains(t, got, "Gender: Female")
	assert.Contains(t, got, "Age: 18 - ")
	assert.Contains(t, got, "Healthy: No")
	assert.Contains(t, got, "raw text")

	e.Criteria = []*Criterion{
		NewCriterion("Age > 18", true),
		NewCriterion("Pregnant", false),
	}
	got = e.Formatted()
	assert.Contains(t, got, "Inclusion Criteria:\n\tAge > 18")
	assert.Contains(t, got, "Exclusion Criteria:\n\tPregnant")
	assert.NotContains(t, got, "raw text")

	assert.Equal(t, "No eligibility data", (*EligibilityCriteria)(nil).Formatted())
}
