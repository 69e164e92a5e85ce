package trial

import (
	"context"

	"github.com/google/uuid"

	"github.com/trialkit/codify/analyzable"
	"github.com/trialkit/codify/nlp"
)

// Criterion is one inclusion or exclusion statement segmented out of a
// trial's criteria text, carrying its own codification state. The id
// names the criterion's engine drop files, so it must never change
// once the criterion has been stored.
type Criterion struct {
	ID          uuid.UUID `json:"id"`
	IsInclusion bool      `json:"is_inclusion"`
	Text        string    `json:"text"`
	analyzable.State
}

// NewCriterion mints a criterion with a fresh identifier.
func NewCriterion(text string, isInclusion bool) *Criterion {
	return &Criterion{ID: uuid.New(), IsInclusion: isInclusion, Text: text}
}

// Filename returns the engine drop filename for this criterion.
func (c *Criterion) Filename() string {
	return c.ID.String() + ".txt"
}

// Codify drives the criterion through the state machine against the
// given engines. The criterion's own statement text is what gets
// submitted.
func (c *Criterion) Codify(ctx context.Context, engines []nlp.Engine, force bool) (map[string]*nlp.Result, error) {
	return analyzable.Codify(ctx, &c.State, c.Filename(), func() (string, error) {
		return c.Text, nil
	}, engines, force)
}

// Snomed returns the SNOMED CT codes recorded by the ctakes engine.
func (c *Criterion) Snomed() []nlp.Code {
	return c.Codes(nlp.KindCTakes, nlp.SystemSnomed)
}

// CUIs returns the UMLS concept identifiers recorded by the named
// engine. cTAKES and MetaMap mappings stay separate so they can be
// compared.
func (c *Criterion) CUIs(engine string) []nlp.Code {
	return c.Codes(engine, nlp.SystemCUI)
}

// RxNorm returns the RxNorm codes recorded by the ctakes engine.
func (c *Criterion) RxNorm() []nlp.Code {
	return c.Codes(nlp.KindCTakes, nlp.SystemRxNorm)
}

// Tags returns the fallback tagger's phrase tags.
func (c *Criterion) Tags() []nlp.Code {
	return c.Codes(nlp.KindTagger, nlp.SystemTags)
}
