package trial

import (
	"encoding/json"
	"math"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/trialkit/codify/analyzable"
	"github.com/trialkit/codify/docstore"
	"github.com/trialkit/codify/errors"
)

// Trial is one registry record. The typed fields cover what the
// toolkit reads and writes; everything else the registry sent rides
// along in Extra so a stored document loses nothing.
type Trial struct {
	NCT                 string               `json:"id"`
	OfficialTitle       string               `json:"official_title,omitempty"`
	BriefTitle          string               `json:"brief_title,omitempty"`
	Acronym             string               `json:"acronym,omitempty"`
	Phase               string               `json:"phase,omitempty"`
	OverallStatus       string               `json:"overall_status,omitempty"`
	Keywords            []string             `json:"keyword,omitempty"`
	Conditions          []string             `json:"condition,omitempty"`
	Interventions       []Intervention       `json:"intervention,omitempty"`
	Locations           []*TrialLocation     `json:"location,omitempty"`
	OverallContact      *Contact             `json:"overall_contact,omitempty"`
	FirstReceived       *RegistryDate        `json:"firstreceived_date,omitempty"`
	LastChanged         *RegistryDate        `json:"lastchanged_date,omitempty"`
	Eligibility         *EligibilityCriteria `json:"_eligibility,omitempty"`
	WaitingForCTakesPMC bool                 `json:"_waiting_ctakes_pmc,omitempty"`

	// Extra carries registry fields with no typed equivalent. The raw
	// "eligibility" section stays here so keypath extraction can still
	// reach it.
	Extra map[string]any `json:"-"`

	keypaths    []string
	analyzables map[string]*analyzable.Analyzable
}

// Intervention is one treatment arm entry.
type Intervention struct {
	Type        string   `json:"intervention_type,omitempty"`
	Name        string   `json:"intervention_name,omitempty"`
	Description string   `json:"description,omitempty"`
	OtherNames  []string `json:"other_name,omitempty"`
}

// trialFields holds the JSON keys bound to typed Trial fields, scanned
// once from the struct tags.
var trialFields = scanJSONFields(reflect.TypeOf(Trial{}))

func scanJSONFields(t reflect.Type) map[string]bool {
	fields := make(map[string]bool, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("json")
		if tag == "" || tag == "-" {
			continue
		}
		if name, _, _ := strings.Cut(tag, ","); name != "" {
			fields[name] = true
		}
	}
	return fields
}

// UnmarshalJSON decodes registry JSON and stored documents alike.
// Unknown keys land in Extra; a raw registry eligibility section is
// parsed into the typed record unless the document already carries a
// processed one.
func (t *Trial) UnmarshalJSON(data []byte) error {
	type alias Trial
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}

	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for name := range all {
		if trialFields[name] {
			delete(all, name)
		}
	}
	a.Extra = all

	*t = Trial(a)
	t.Keywords = CleanKeywords(t.Keywords)

	if t.Eligibility == nil {
		if raw, ok := t.Extra["eligibility"].(map[string]any); ok {
			t.Eligibility = ParseEligibility(raw)
		}
	}
	return nil
}

// MarshalJSON folds the Extra side-mapping back under the typed
// fields. Typed fields win on key collisions.
func (t *Trial) MarshalJSON() ([]byte, error) {
	type alias Trial
	raw, err := json.Marshal((*alias)(t))
	if err != nil {
		return nil, err
	}
	if len(t.Extra) == 0 {
		return raw, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	for k, v := range t.Extra {
		if _, ok := m[k]; !ok {
			m[k] = v
		}
	}
	return json.Marshal(m)
}

// Decode parses one trial document.
func Decode(data []byte) (*Trial, error) {
	var t Trial
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, errors.Wrap(err, "decode trial")
	}
	if t.NCT == "" {
		return nil, errors.NewContentError("trial document has no id")
	}
	return &t, nil
}

// FromStore loads one trial from the document store.
func FromStore(store *docstore.Store, nct string) (*Trial, error) {
	raw, err := store.LoadRaw(nct)
	if err != nil {
		return nil, err
	}
	return Decode(raw)
}

// Field implements analyzable.Resolver. Typed fields answer their
// registry names; anything else comes from the Extra side-mapping.
func (t *Trial) Field(name string) (any, bool) {
	switch name {
	case "id", "nct":
		return t.NCT, t.NCT != ""
	case "official_title":
		return t.OfficialTitle, t.OfficialTitle != ""
	case "brief_title":
		return t.BriefTitle, t.BriefTitle != ""
	case "acronym":
		return t.Acronym, t.Acronym != ""
	case "phase":
		return t.Phase, t.Phase != ""
	case "overall_status":
		return t.OverallStatus, t.OverallStatus != ""
	case "keyword":
		return t.Keywords, len(t.Keywords) > 0
	case "condition":
		return t.Conditions, len(t.Conditions) > 0
	}
	v, ok := t.Extra[name]
	return v, ok
}

// Title assembles the best display title from the registry fields,
// preferring the official title and prefixing the acronym when one
// exists.
func (t *Trial) Title() string {
	title := t.OfficialTitle
	if title == "" {
		title = t.BriefTitle
	}
	if t.Acronym != "" {
		if title != "" {
			title = t.Acronym + ": " + title
		} else {
			title = t.Acronym
		}
	}
	if title == "" {
		return "Unknown Title"
	}
	return title
}

// Phases splits the phase declaration into individual phases. Trials
// without one count as "N/A".
func (t *Trial) Phases() []string {
	if t.Phase == "" || t.Phase == "N/A" {
		return []string{"N/A"}
	}
	return strings.Split(t.Phase, "/")
}

// InterventionTypes returns the distinct intervention types, sorted.
// A trial without any counts as observational.
func (t *Trial) InterventionTypes() []string {
	seen := make(map[string]bool)
	for _, iv := range t.Interventions {
		if iv.Type != "" {
			seen[iv.Type] = true
		}
	}
	if len(seen) == 0 {
		return []string{"Observational"}
	}
	types := make([]string, 0, len(seen))
	for typ := range seen {
		types = append(types, typ)
	}
	sort.Strings(types)
	return types
}

var (
	// Keywords split on semicolons only. Commas stay: some authors tag
	// deliberately with "arthritis, rheumatoid".
	keywordSplitRe = regexp.MustCompile(`;\s*`)
	keywordTrailRe = regexp.MustCompile(`[,\.]+\s*$`)
)

// CleanKeywords splits semicolon-delimited keyword entries and strips
// trailing punctuation.
func CleanKeywords(keywords []string) []string {
	if len(keywords) == 0 {
		return keywords
	}
	better := make([]string, 0, len(keywords))
	for _, keyword := range keywords {
		for _, kw := range keywordSplitRe.Split(keyword, -1) {
			if kw == "" {
				continue
			}
			better = append(better, keywordTrailRe.ReplaceAllString(kw, ""))
		}
	}
	return better
}

// Entered returns how many years ago the trial was registered.
func (t *Trial) Entered() (float64, bool) {
	return t.FirstReceived.YearsAgo()
}

// LastUpdated returns how many years ago the record last changed.
func (t *Trial) LastUpdated() (float64, bool) {
	return t.LastChanged.YearsAgo()
}

// Summary returns the compact JSON-ready representation: nct, title
// and eligibility, plus any requested extra fields resolved through
// Field.
func (t *Trial) Summary(extraFields ...string) map[string]any {
	d := map[string]any{
		"nct":   t.NCT,
		"title": t.Title(),
	}
	if t.Eligibility != nil {
		d["eligibility"] = t.Eligibility.Summary()
	}
	for _, fld := range extraFields {
		if v, ok := t.Field(fld); ok {
			d[fld] = v
		}
	}
	return d
}

// FormattedEligibility renders the eligibility criteria for display.
func (t *Trial) FormattedEligibility() string {
	if t.Eligibility == nil {
		return "No eligibility data"
	}
	return t.Eligibility.Formatted()
}

// FilterSnomed returns the SNOMED code from the given list that would
// exclude this trial, if an exclusion criterion matched one.
func (t *Trial) FilterSnomed(codes []string) (string, bool) {
	if t.Eligibility == nil {
		return "", false
	}
	return t.Eligibility.ExcludeBySnomed(codes)
}

// RegistryDate wraps the registry's verbose date objects, which carry
// values like "March 10, 2014".
type RegistryDate struct {
	Value string `json:"value"`
}

var registryDateRe = regexp.MustCompile(`(\w+)\s+((\d+),\s+)?(\d+)`)

// Time parses the date. A date without a day is pinned to the 28th so
// February stays parseable.
func (d *RegistryDate) Time() (time.Time, bool) {
	if d == nil || d.Value == "" {
		return time.Time{}, false
	}
	m := registryDateRe.FindStringSubmatch(d.Value)
	if m == nil {
		return time.Time{}, false
	}
	month := m[1]
	if len(month) > 3 {
		month = month[:3]
	}
	month = strings.ToUpper(month[:1]) + strings.ToLower(month[1:])

	day := m[3]
	switch len(day) {
	case 0:
		day = "28"
	case 1:
		day = "0" + day
	}

	ts, err := time.Parse("2006-Jan-02", m[4]+"-"+month+"-"+day)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// YearsAgo returns how many years ago the date lies, to one decimal.
func (d *RegistryDate) YearsAgo() (float64, bool) {
	ts, ok := d.Time()
	if !ok {
		return 0, false
	}
	days := time.Since(ts).Hours() / 24
	return math.Round(days/365.25*10) / 10, true
}
