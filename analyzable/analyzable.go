// Package analyzable implements the codification state machine: the
// per-unit, per-engine bookkeeping that decides when to parse engine
// output, when to submit input, and when a unit is done.
//
// Per engine, a unit moves through three states:
//
//	NOT ATTEMPTED -> WAITING -> CODIFIED
//
// A recorded attempt that found no codes (CODIFIED empty) is distinct
// from no attempt at all and keeps the unit from being resubmitted.
// Inputs are write-once; the waiting set tracks submissions whose
// output has not been harvested yet. All bookkeeping serializes into
// the unit's stored document so state survives process restarts.
package analyzable

import (
	"context"

	"github.com/google/uuid"

	"github.com/trialkit/codify/errors"
	"github.com/trialkit/codify/logger"
	"github.com/trialkit/codify/nlp"
)

// State is the durable codification bookkeeping for one unit. The zero
// value is ready to use.
type State struct {
	// Codified maps engine name to that engine's recorded attempt. A
	// present entry with an empty code set is an attempt that found
	// nothing; a missing key is no attempt at all.
	Codified map[string]*nlp.Result `json:"codified,omitempty"`

	// WaitingFor lists engines whose input was submitted but whose
	// output has not been parsed yet.
	WaitingFor []string `json:"waiting_for_nlp,omitempty"`
}

// Waiting reports whether the unit has an unharvested submission for
// the named engine.
func (s *State) Waiting(name string) bool {
	for _, n := range s.WaitingFor {
		if n == name {
			return true
		}
	}
	return false
}

// SetWaiting records an unharvested submission for the named engine.
func (s *State) SetWaiting(name string) {
	if !s.Waiting(name) {
		s.WaitingFor = append(s.WaitingFor, name)
	}
}

// ClearWaiting removes the named engine from the waiting set.
func (s *State) ClearWaiting(name string) {
	for i, n := range s.WaitingFor {
		if n == name {
			s.WaitingFor = append(s.WaitingFor[:i], s.WaitingFor[i+1:]...)
			return
		}
	}
}

// Attempted reports whether the named engine has a recorded attempt,
// including attempts that found no codes.
func (s *State) Attempted(name string) bool {
	_, ok := s.Codified[name]
	return ok
}

// Result returns the recorded attempt for the named engine, or nil.
func (s *State) Result(name string) *nlp.Result {
	return s.Codified[name]
}

// Codes returns the codes the named engine recorded under one code
// system.
func (s *State) Codes(name, system string) []nlp.Code {
	r := s.Codified[name]
	if r == nil {
		return nil
	}
	return r.Codes[system]
}

// MergeResult folds freshly parsed codes into the engine's recorded
// attempt. Only the code systems present in cs are replaced; systems
// from earlier merges survive and other engines' results are never
// touched. The attempt exists afterwards even when cs is empty.
func (s *State) MergeResult(name string, cs nlp.CodeSet) *nlp.Result {
	if s.Codified == nil {
		s.Codified = make(map[string]*nlp.Result)
	}
	r := s.Codified[name]
	if r == nil {
		r = &nlp.Result{}
		s.Codified[name] = r
	}
	r.Merge(cs)
	return r
}

// TextFunc supplies a unit's text on demand. Empty text means there is
// nothing to submit; an error is a content problem and is treated the
// same way after logging.
type TextFunc func() (string, error)

// Codify drives one unit through the state machine against the given
// engines, in order:
//
//  1. An engine with a recorded attempt is skipped unless force is set.
//  2. Otherwise the engine's output is parsed first. A present result
//     is merged into the unit's codes, the engine leaves the waiting
//     set, and the attempt is recorded even when it found nothing.
//  3. With no output yet, the unit's text is normalized into sentence
//     form and submitted. A successful write, or a write refused
//     because the input already exists, puts the engine in the waiting
//     set. A unit with no text never progresses and never fails.
//
// The returned map holds the attempts newly recorded during this call,
// keyed by engine name. The only errors returned are context
// cancellation and programmer mistakes; per-engine trouble is logged
// and the loop moves on.
func Codify(ctx context.Context, st *State, filename string, text TextFunc, engines []nlp.Engine, force bool) (map[string]*nlp.Result, error) {
	if st == nil {
		return nil, errors.AssertionFailedf("codify needs a state to track")
	}
	if text == nil {
		return nil, errors.AssertionFailedf("codify needs a text source")
	}
	if filename == "" {
		return nil, errors.AssertionFailedf("codify needs a unit filename")
	}

	newly := make(map[string]*nlp.Result)

	for _, eng := range engines {
		if err := ctx.Err(); err != nil {
			return newly, errors.Wrap(err, "codify interrupted")
		}

		name := eng.Name()
		if !force && st.Attempted(name) {
			continue
		}

		cs, err := eng.ParseOutput(filename, nlp.ParseOptions{FilterSources: true})
		if err != nil {
			logger.Warnw("engine output unreadable, leaving unit pending",
				"engine", name,
				"unit", filename,
				"error", err)
			cs = nil
		}
		if cs != nil {
			res := st.MergeResult(name, cs)
			st.ClearWaiting(name)
			newly[name] = res
			logger.Debugw("unit codified",
				"engine", name,
				"unit", filename,
				"codes", res.Codes.Count())
			continue
		}

		raw, err := text()
		if err != nil {
			if errors.HasAssertionFailure(err) {
				return newly, err
			}
			logger.Debugw("cannot resolve unit text, nothing to submit",
				"unit", filename,
				"error", err)
			continue
		}
		unitText := nlp.JoinSentences(raw)
		if unitText == "" {
			logger.Debugw("unit has no text, nothing to submit", "unit", filename)
			continue
		}

		wrote, werr := eng.WriteInput(unitText, filename)
		switch {
		case wrote, errors.Is(werr, errors.ErrInputExists):
			st.SetWaiting(name)
		case werr != nil:
			logger.Errorw("cannot submit unit to engine",
				"engine", name,
				"unit", filename,
				"error", werr)
		}
	}

	return newly, nil
}

// Resolver provides named properties to the extractor. Objects that
// feed analyzables implement it explicitly instead of being reflected
// over.
type Resolver interface {
	Field(name string) (any, bool)
}

// Analyzable binds one property of a source object to its codification
// state. The ID is stable for the unit's whole life and names its
// engine files.
type Analyzable struct {
	ID      uuid.UUID `json:"id"`
	KeyPath string    `json:"keypath"`
	State

	source Resolver
}

// New builds an analyzable for a keypath on source. Both are required.
func New(source Resolver, keypath string) (*Analyzable, error) {
	if source == nil {
		return nil, errors.AssertionFailedf("analyzable needs a source object")
	}
	if keypath == "" {
		return nil, errors.AssertionFailedf("analyzable needs a keypath")
	}
	return &Analyzable{ID: uuid.New(), KeyPath: keypath, source: source}, nil
}

// NewOwned builds an analyzable whose identifier derives from the
// owning entity's id and the keypath. The same owner and keypath
// always map to the same unit, so engine drops written before a
// process restart are found again afterwards.
func NewOwned(owner string, source Resolver, keypath string) (*Analyzable, error) {
	if owner == "" {
		return nil, errors.AssertionFailedf("analyzable needs an owner id")
	}
	a, err := New(source, keypath)
	if err != nil {
		return nil, err
	}
	a.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte(owner+"/"+keypath))
	return a, nil
}

// Bind attaches the source object to an analyzable rehydrated from
// storage. Persisted analyzables carry only ID, keypath and state.
func (a *Analyzable) Bind(source Resolver) {
	a.source = source
}

// Filename returns the engine drop filename for this unit.
func (a *Analyzable) Filename() string {
	return a.ID.String() + ".txt"
}

// Text resolves the unit's text through the property extractor.
func (a *Analyzable) Text() (string, error) {
	if a.source == nil {
		return "", errors.AssertionFailedf("analyzable %s used without a source object", a.ID)
	}
	return Extract(a.source, a.KeyPath)
}

// Codify drives this unit through the state machine.
func (a *Analyzable) Codify(ctx context.Context, engines []nlp.Engine, force bool) (map[string]*nlp.Result, error) {
	return Codify(ctx, &a.State, a.Filename(), a.Text, engines, force)
}
