package trial

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/trialkit/codify/analyzable"
	"github.com/trialkit/codify/docstore"
	"github.com/trialkit/codify/errors"
	"github.com/trialkit/codify/logger"
	"github.com/trialkit/codify/nlp"
)

// Codify drives the trial's eligibility criteria and every registered
// keypath through the state machine. Criteria state persists under
// "_eligibility", keypath results under "_codified.<keypath>.<engine>",
// both as partial updates against the stored document. Passing a nil
// store keeps everything in memory.
func (t *Trial) Codify(ctx context.Context, store *docstore.Store, engines []nlp.Engine, force bool) error {
	if t.Eligibility != nil {
		if err := t.Eligibility.Codify(ctx, engines, force); err != nil {
			return err
		}
		if store != nil {
			if err := store.UpdateSubtree(t.NCT, "_eligibility", t.Eligibility); err != nil {
				return err
			}
		}
	}
	return t.CodifyKeypaths(ctx, store, engines, force)
}

// AnalyzeKeypaths registers keypaths whose text should be codified
// alongside the eligibility criteria. Duplicates are dropped.
func (t *Trial) AnalyzeKeypaths(keypaths ...string) {
	for _, kp := range keypaths {
		if kp != "" && !t.hasKeypath(kp) {
			t.keypaths = append(t.keypaths, kp)
		}
	}
}

func (t *Trial) hasKeypath(kp string) bool {
	for _, k := range t.keypaths {
		if k == kp {
			return true
		}
	}
	return false
}

// CodifyKeypath drives one keypath property through the state machine,
// registering the keypath for later passes.
func (t *Trial) CodifyKeypath(ctx context.Context, store *docstore.Store, keypath string, engines []nlp.Engine, force bool) error {
	if keypath == "" {
		return errors.AssertionFailedf("codify needs a keypath")
	}
	t.AnalyzeKeypaths(keypath)
	return t.codifyKeypath(ctx, store, keypath, engines, force)
}

// CodifyKeypaths runs every registered keypath.
func (t *Trial) CodifyKeypaths(ctx context.Context, store *docstore.Store, engines []nlp.Engine, force bool) error {
	for _, kp := range t.keypaths {
		if err := t.codifyKeypath(ctx, store, kp, engines, force); err != nil {
			return err
		}
	}
	return nil
}

func (t *Trial) codifyKeypath(ctx context.Context, store *docstore.Store, keypath string, engines []nlp.Engine, force bool) error {
	if t.analyzables == nil {
		t.analyzables = make(map[string]*analyzable.Analyzable)
	}

	a := t.analyzables[keypath]
	if a == nil {
		var err error
		a, err = analyzable.NewOwned(t.NCT, t, keypath)
		if err != nil {
			return err
		}
		if store != nil {
			t.hydrateCodified(store, a, keypath)
		}
		t.analyzables[keypath] = a
	}

	newly, err := a.Codify(ctx, engines, force)
	if err != nil {
		return err
	}
	if store == nil {
		return nil
	}
	for name, res := range newly {
		key := "_codified." + keypath + "." + name
		if err := store.UpdateSubtree(t.NCT, key, res); err != nil {
			return err
		}
	}
	return nil
}

// hydrateCodified loads earlier attempts for the keypath from the
// stored document, so cached codes survive process restarts and are
// not resubmitted. Unreadable stored state is logged and recodified.
func (t *Trial) hydrateCodified(store *docstore.Store, a *analyzable.Analyzable, keypath string) {
	doc, err := store.Load(t.NCT)
	if err != nil {
		if !errors.Is(err, errors.ErrNotFound) {
			logger.Warnw("cannot load stored trial, recodifying",
				"nct", t.NCT,
				"error", err)
		}
		return
	}

	node, ok := doc["_codified"]
	if !ok {
		return
	}
	for _, seg := range strings.Split(keypath, ".") {
		m, isMap := node.(map[string]any)
		if !isMap {
			return
		}
		if node, ok = m[seg]; !ok {
			return
		}
	}

	raw, err := json.Marshal(node)
	if err != nil {
		return
	}
	var prior map[string]*nlp.Result
	if err := json.Unmarshal(raw, &prior); err != nil {
		logger.Warnw("stored codes unreadable, recodifying",
			"nct", t.NCT,
			"keypath", keypath,
			"error", err)
		return
	}
	a.Codified = prior
}

// AnalyzableResults reports the codified results of every keypath
// driven so far, keyed by keypath and then engine name.
func (t *Trial) AnalyzableResults() map[string]map[string]*nlp.Result {
	if len(t.analyzables) == 0 {
		return nil
	}
	out := make(map[string]map[string]*nlp.Result, len(t.analyzables))
	for kp, a := range t.analyzables {
		out[kp] = a.Codified
	}
	return out
}

// WaitingForNLP lists the engines, in the given order, that still have
// an unharvested submission for any part of this trial: a criterion, a
// keypath property, or publication text handed to ctakes.
func (t *Trial) WaitingForNLP(engines []nlp.Engine) []string {
	var waiting []string
	for _, eng := range engines {
		name := eng.Name()
		switch {
		case name == nlp.KindCTakes && t.WaitingForCTakesPMC:
			waiting = append(waiting, name)
		case t.Eligibility != nil && t.Eligibility.WaitingForNLP(name):
			waiting = append(waiting, name)
		case t.waitingAnalyzable(name):
			waiting = append(waiting, name)
		}
	}
	return waiting
}

func (t *Trial) waitingAnalyzable(name string) bool {
	for _, a := range t.analyzables {
		if a.Waiting(name) {
			return true
		}
	}
	return false
}
