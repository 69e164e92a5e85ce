package nlp

import (
	"context"
)

// Code system names used as CodeSet keys. Engines only ever report
// codes under one of these systems.
const (
	SystemSnomed = "snomed"
	SystemCUI    = "cui"
	SystemRxNorm = "rxnorm"
	SystemTags   = "tags"
	SystemText   = "text"
)

// Engine kinds understood by the manifest loader. The kind selects the
// adapter implementation; the manifest name is the identity under which
// codes and waiting state are tracked.
const (
	KindCTakes  = "ctakes"
	KindMetaMap = "metamap"
	KindTagger  = "tagger"
)

// ParseOptions adjusts how an engine's raw output is interpreted.
type ParseOptions struct {
	// FilterSources restricts reported codes to curated terminologies
	// (SNOMED CT and the UMLS Metathesaurus) for engines that annotate
	// candidates with their source vocabulary.
	FilterSources bool
}

// Engine is the adapter contract for an NLP engine. Implementations
// wrap one external batch program (or an in-process equivalent) and the
// file-drop directories it reads and writes.
//
// WriteInput persists text for one unit under the engine's input
// directory. It returns true only when a new file was written: empty
// text or filename yield (false, nil), a missing input directory yields
// ErrNoInputDir, and a previously written unit yields ErrInputExists.
// Inputs are write-once and never overwritten.
//
// ParseOutput reads the engine's output for one unit. A (nil, nil)
// return means no output is available yet, which is the expected state
// between submission and a completed engine run. A non-nil empty
// CodeSet records a completed attempt that found no codes; callers must
// preserve that distinction. Malformed output is logged and reported as
// absent so the unit simply stays pending.
type Engine interface {
	Name() string
	Prepare() error
	WriteInput(text, filename string) (bool, error)
	Run(ctx context.Context) error
	ParseOutput(filename string, opt ParseOptions) (CodeSet, error)
}
