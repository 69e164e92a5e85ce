package trial

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const registryJSON = `{
	"id": "NCT01299818",
	"official_title": "A Phase 2 Study of Something",
	"brief_title": "Something Study",
	"acronym": "SOME",
	"phase": "Phase 1/Phase 2",
	"overall_status": "Recruiting",
	"keyword": ["asthma; copd.", "arthritis, rheumatoid"],
	"condition": ["Asthma"],
	"source": "Example Medical Center",
	"brief_summary": {"textblock": "A short summary."},
	"intervention": [
		{"intervention_type": "Drug", "intervention_name": "Placebo"},
		{"intervention_type": "Drug", "intervention_name": "Verum"}
	],
	"firstreceived_date": {"value": "March 10, 2014"},
	"eligibility": {
		"gender": "Female",
		"minimum_age": "18 Years",
		"maximum_age": "N/A",
		"healthy_volunteers": "No",
		"criteria": {"textblock": "Inclusion Criteria:\n\n- Age > 18\n\nExclusion Criteria:\n\n- Pregnant"}
	}
}`

func decodeRegistryTrial(t *testing.T) *Trial {
	t.Helper()
	tr, err := Decode([]byte(registryJSON))
	require.NoError(t, err)
	return tr
}

func TestDecodeRegistryTrial(t *testing.T) {
	tr := decodeRegistryTrial(t)

	assert.Equal(t, "NCT01299818", tr.NCT)
	assert.Equal(t, "A Phase 2 Study of Something", tr.OfficialTitle)
	assert.Equal(t, "Recruiting", tr.OverallStatus)
	assert.Equal(t, []string{"asthma", "copd", "arthritis, rheumatoid"}, tr.Keywords)

	// Unknown registry fields land in Extra, typed fields do not.
	assert.Contains(t, tr.Extra, "source")
	assert.Contains(t, tr.Extra, "brief_summary")
	assert.Contains(t, tr.Extra, "eligibility")
	assert.NotContains(t, tr.Extra, "brief_title")

	// The raw eligibility section was parsed into the typed record.
	require.NotNil(t, tr.Eligibility)
	assert.Equal(t, GenderFemale, tr.Eligibility.Gender)
	assert.Equal(t, 18, tr.Eligibility.MinAge)
	assert.Equal(t, 0, tr.Eligibility.MaxAge)
	assert.Equal(t, "No", tr.Eligibility.HealthyVolunteers)
	assert.Contains(t, tr.Eligibility.Text, "Inclusion Criteria:")
}

func TestDecodeRejectsMissingID(t *testing.T) {
	_, err := Decode([]byte(`{"brief_title": "No id"}`))
	require.Error(t, err)
}

func TestTrialJSONRoundTrip(t *testing.T) {
	tr := decodeRegistryTrial(t)
	require.NoError(t, tr.Eligibility.Process())

	raw, err := json.Marshal(tr)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Equal(t, "NCT01299818", m["id"])
	assert.Equal(t, "Example Medical Center", m["source"])
	assert.Contains(t, m, "eligibility")
	assert.Contains(t, m, "_eligibility")

	back, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, tr.NCT, back.NCT)
	assert.Equal(t, tr.Keywords, back.Keywords)

	// The processed eligibility record wins over re-parsing the raw
	// section: criteria and their ids survive the round trip.
	require.NotNil(t, back.Eligibility)
	require.Len(t, back.Eligibility.Criteria, 2)
	assert.Equal(t, tr.Eligibility.Criteria[0].ID, back.Eligibility.Criteria[0].ID)
	assert.Equal(t, "Age > 18", back.Eligibility.Criteria[0].Text)
	assert.True(t, back.Eligibility.Criteria[0].IsInclusion)
	assert.False(t, back.Eligibility.Criteria[1].IsInclusion)
}

func TestField(t *testing.T) {
	tr := decodeRegistryTrial(t)

	v, ok := tr.Field("brief_title")
	require.True(t, ok)
	assert.Equal(t, "Something Study", v)

	v, ok = tr.Field("keyword")
	require.True(t, ok)
	assert.Equal(t, []string{"asthma", "copd", "arthritis, rheumatoid"}, v)

	v, ok = tr.Field("brief_summary")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"textblock": "A short summary."}, v)

	_, ok = tr.Field("acronym")
	assert.True(t, ok)
	_, ok = tr.Field("no_such_field")
	assert.False(t, ok)

	empty := &Trial{}
	_, ok = empty.Field("brief_title")
	assert.False(t, ok)
}

func TestTitle(t *testing.T) {
	tests := []struct {
		name  string
		trial Trial
		want  string
	}{
		{
			name:  "acronym prefixes official title",
			trial: Trial{OfficialTitle: "A Study", Acronym: "AS"},
			want:  "AS: A Study",
		},
		{
			name:  "brief title fallback",
			trial: Trial{BriefTitle: "Brief"},
			want:  "Brief",
		},
		{
			name:  "acronym only",
			trial: Trial{Acronym: "AS"},
			want:  "AS",
		},
		{
			name:  "nothing",
			trial: Trial{},
			want:  "Unknown Title",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.trial.Title())
		})
	}
}

func TestPhases(t *testing.T) {
	assert.Equal(t, []string{"Phase 1", "Phase 2"}, (&Trial{Phase: "Phase 1/Phase 2"}).Phases())
	assert.Equal(t, []string{"N/A"}, (&Trial{Phase: "N/A"}).Phases())
	assert.Equal(t, []string{"N/A"}, (&Trial{}).Phases())
}

func TestInterventionTypes(t *testing.T) {
	tr := decodeRegistryTrial(t)
	assert.Equal(t, []string{"Drug"}, tr.InterventionTypes())

	assert.Equal(t, []string{"Observational"}, (&Trial{}).InterventionTypes())
}

func TestCleanKeywords(t *testing.T) {
	got := CleanKeywords([]string{"asthma; copd.", "arthritis, rheumatoid", "plain"})
	assert.Equal(t, []string{"asthma", "copd", "arthritis, rheumatoid", "plain"}, got)

	assert.Empty(t, CleanKeywords(nil))
}

func TestRegistryDate(t *testing.T) {
	ts, ok := (&RegistryDate{Value: "March 10, 2014"}).Time()
	require.True(t, ok)
	assert.Equal(t, time.Date(2014, time.March, 10, 0, 0, 0, 0, time.UTC), ts)

	// Without a day the 28th keeps February parseable.
	ts, ok = (&RegistryDate{Value: "February 2013"}).Time()
	require.True(t, ok)
	assert.Equal(t, time.Date(2013, time.February, 28, 0, 0, 0, 0, time.UTC), ts)

	// Single-digit days are padded.
	ts, ok = (&RegistryDate{Value: "June 3, 2013"}).Time()
	require.True(t, ok)
	assert.Equal(t, 3, ts.Day())

	_, ok = (&RegistryDate{Value: "gibberish"}).Time()
	assert.False(t, ok)
	_, ok = (*RegistryDate)(nil).Time()
	assert.False(t, ok)

	_, ok = (*RegistryDate)(nil).YearsAgo()
	assert.False(t, ok)
	years, ok := (&RegistryDate{Value: "March 10, 2014"}).YearsAgo()
	require.True(t, ok)
	assert.Greater(t, years, 10.0)
}

func TestSummary(t *testing.T) {
	tr := decodeRegistryTrial(t)

	d := tr.Summary("brief_summary")
	assert.Equal(t, "NCT01299818", d["nct"])
	assert.Equal(t, "SOME: A Phase 2 Study of Something", d["title"])
	assert.Contains(t, d, "eligibility")
	assert.Equal(t, map[string]any{"textblock": "A short summary."}, d["brief_summary"])

	elig := d["eligibility"].(map[string]any)
	assert.Equal(t, "Female", elig["gender"])
	assert.Equal(t, 18, elig["min_age"])
}
