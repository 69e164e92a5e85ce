package trial

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/trialkit/codify/logger"
	"github.com/trialkit/codify/nlp"
)

// Gender encodes the registry's accepted-gender field the way stored
// documents encode it: 0 both, 1 male, 2 female.
type Gender int

const (
	GenderBoth   Gender = 0
	GenderMale   Gender = 1
	GenderFemale Gender = 2
)

func (g Gender) String() string {
	switch g {
	case GenderMale:
		return "Male"
	case GenderFemale:
		return "Female"
	default:
		return "Both"
	}
}

// ParseGender maps the registry's gender strings. Anything that is
// neither "Both" nor "Female" counts as male, missing values included.
func ParseGender(s string) Gender {
	switch s {
	case "Both":
		return GenderBoth
	case "Female":
		return GenderFemale
	default:
		return GenderMale
	}
}

// EligibilityCriteria is the processed form of a trial's eligibility
// section: demographic bounds plus the criteria text, segmented into
// individual statements once Process has run.
type EligibilityCriteria struct {
	Gender            Gender       `json:"gender"`
	MinAge            int          `json:"min_age,omitempty"`
	MaxAge            int          `json:"max_age,omitempty"`
	HealthyVolunteers string       `json:"healthy_volunteers,omitempty"`
	Text              string       `json:"text,omitempty"`
	Criteria          []*Criterion `json:"criteria,omitempty"`
	LastProcessed     time.Time    `json:"last_processed,omitzero"`
}

// ParseEligibility maps the registry's raw eligibility JSON into a
// typed record. Ages arrive as strings like "18 Years"; the first
// number wins, and "N/A" leaves the bound open.
func ParseEligibility(raw map[string]any) *EligibilityCriteria {
	e := &EligibilityCriteria{}

	gender, _ := raw["gender"].(string)
	e.Gender = ParseGender(gender)
	e.MinAge = parseAge(raw["minimum_age"])
	e.MaxAge = parseAge(raw["maximum_age"])
	e.HealthyVolunteers, _ = raw["healthy_volunteers"].(string)

	if crit, ok := raw["criteria"].(map[string]any); ok {
		e.Text, _ = crit["textblock"].(string)
	}
	return e
}

func parseAge(v any) int {
	s, _ := v.(string)
	if s == "" || s == "N/A" {
		return 0
	}
	for _, tok := range strings.Fields(s) {
		if n, err := strconv.Atoi(tok); err == nil && n >= 0 {
			return n
		}
	}
	return 0
}

// Process segments the criteria text into individual inclusion and
// exclusion statements. Without text there is nothing to segment and
// the criteria list stays nil.
func (e *EligibilityCriteria) Process() error {
	if e.Text == "" {
		logger.Infow("no eligibility criteria text found")
		return nil
	}
	inclusion, exclusion, err := nlp.SegmentCriteria(e.Text)
	if err != nil {
		return err
	}

	crit := make([]*Criterion, 0, len(inclusion)+len(exclusion))
	for _, txt := range inclusion {
		crit = append(crit, NewCriterion(txt, true))
	}
	for _, txt := range exclusion {
		crit = append(crit, NewCriterion(txt, false))
	}
	e.Criteria = crit
	return nil
}

// Codify runs every criterion through the state machine, segmenting
// the text first when that has not happened yet.
func (e *EligibilityCriteria) Codify(ctx context.Context, engines []nlp.Engine, force bool) error {
	if e.Criteria == nil {
		if err := e.Process(); err != nil {
			return err
		}
	}
	for _, c := range e.Criteria {
		if _, err := c.Codify(ctx, engines, force); err != nil {
			return err
		}
	}
	e.LastProcessed = time.Now()
	return nil
}

// WaitingForNLP reports whether any criterion still waits on the named
// engine.
func (e *EligibilityCriteria) WaitingForNLP(name string) bool {
	for _, c := range e.Criteria {
		if c.Waiting(name) {
			return true
		}
	}
	return false
}

// ExcludeBySnomed returns the first SNOMED code from an exclusion
// criterion that appears in the given code list. Negated mentions do
// not count: "no history of X" must not exclude on X.
func (e *EligibilityCriteria) ExcludeBySnomed(codes []string) (string, bool) {
	if len(e.Criteria) == 0 || len(codes) == 0 {
		return "", false
	}
	lookup := make(map[string]bool, len(codes))
	for _, c := range codes {
		lookup[c] = true
	}
	for _, crit := range e.Criteria {
		if crit.IsInclusion {
			continue
		}
		for _, code := range crit.Snomed() {
			if !code.Negated && lookup[code.Value] {
				return code.Value, true
			}
		}
	}
	return "", false
}

// Summary returns the compact JSON shape the API and CLI expose.
func (e *EligibilityCriteria) Summary() map[string]any {
	return map[string]any{
		"gender":  e.Gender.String(),
		"min_age": e.MinAge,
		"max_age": e.MaxAge,
		"text":    e.Text,
	}
}

// Formatted renders the criteria for human eyes: a demographic header
// followed by the segmented statements, or the raw text when
// segmentation has not run.
func (e *EligibilityCriteria) Formatted() string {
	if e == nil {
		return "No eligibility data"
	}

	main := e.Text
	if len(e.Criteria) > 0 {
		inc := []string{"Inclusion Criteria:"}
		exc := []string{"Exclusion Criteria:"}
		for _, c := range e.Criteria {
			if c.IsInclusion {
				inc = append(inc, c.Text)
			} else {
				exc = append(exc, c.Text)
			}
		}
		main = strings.Join(inc, "\n\t") + "\n\n" + strings.Join(exc, "\n\t")
	}

	return fmt.Sprintf("Gender: %s\nAge: %s - %s\nHealthy: %s\n\n%s",
		e.Gender, ageString(e.MinAge), ageString(e.MaxAge), e.HealthyVolunteers, main)
}

func ageString(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}
