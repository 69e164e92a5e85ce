// Package metamap adapts the NLM MetaMap batch pipeline to the
// nlp.Engine contract. MetaMap reads plain-text files from the input
// drop and deposits machine-output XML under the same filename in the
// output drop.
package metamap

import (
	"context"
	"encoding/xml"
	"io"
	"os"

	"github.com/trialkit/codify/errors"
	"github.com/trialkit/codify/logger"
	"github.com/trialkit/codify/nlp"
)

// Engine drives an external MetaMap installation.
type Engine struct {
	*nlp.Pipeline
	command []string
}

// New builds a MetaMap adapter named name. command is the batch
// invocation argv, run with the engine root as working directory.
func New(name, root string, command []string, cleanup bool) *Engine {
	return &Engine{Pipeline: nlp.NewPipeline(name, root, cleanup), command: command}
}

// Run invokes the MetaMap batch pipeline over all inputs currently
// present and blocks until it exits.
func (e *Engine) Run(ctx context.Context) error {
	return nlp.RunBatch(ctx, e.Pipeline, e.command)
}

// ParseOutput reads MetaMap's machine output for one input file.
//
// Only mapping candidates are collected, not the raw candidate section:
// Utterance > Phrase > Mappings > Mapping > MappingCandidates >
// Candidate. Each candidate contributes its CUI, negation-marked when
// the candidate's Negated element is 1. With opt.FilterSources only
// candidates sourced from SNOMEDCT or MTH are kept. A missing output
// file is the normal pending state and yields (nil, nil); malformed
// output is logged and reported the same way.
func (e *Engine) ParseOutput(filename string, opt nlp.ParseOptions) (nlp.CodeSet, error) {
	if filename == "" {
		return nil, nil
	}

	path, ok := e.OutputFile(filename)
	if !ok {
		return nil, nil
	}

	f, err := os.Open(path)
	if err != nil {
		logger.Warnw("cannot open engine output",
			"engine", e.Name(),
			"path", path,
			"error", err)
		return nil, nil
	}

	candidates, err := parseMachineOutput(f)
	f.Close()
	if err != nil {
		logger.Warnw("malformed engine output, leaving unit pending",
			"engine", e.Name(),
			"path", path,
			"error", err)
		return nil, nil
	}

	var cuis []nlp.Code
	for _, c := range candidates {
		if c.CUI == "" {
			continue
		}
		if opt.FilterSources && !c.curatedSource() {
			continue
		}
		cuis = append(cuis, nlp.Code{Value: c.CUI, Negated: c.Negated == "1"})
	}

	cs := nlp.CodeSet{}
	if len(cuis) > 0 {
		cs[nlp.SystemCUI] = cuis
	}

	if e.CleanupEnabled() {
		e.RemovePair(path, filename)
	}
	return cs, nil
}

// candidate is one MappingCandidates > Candidate element.
type candidate struct {
	CUI     string   `xml:"CandidateCUI"`
	Negated string   `xml:"Negated"`
	Sources []string `xml:"Sources>Source"`
}

// curatedSource reports whether the candidate is sourced from SNOMED CT
// or the UMLS Metathesaurus.
func (c candidate) curatedSource() bool {
	for _, s := range c.Sources {
		if s == "SNOMEDCT" || s == "MTH" {
			return true
		}
	}
	return false
}

// parseMachineOutput streams a MetaMap machine-output document and
// collects every candidate nested under MappingCandidates. The phrase
// level Candidates section is skipped.
func parseMachineOutput(r io.Reader) ([]candidate, error) {
	dec := xml.NewDecoder(r)

	var candidates []candidate
	var stack []string

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "decoding machine output")
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "Candidate" && len(stack) > 0 && stack[len(stack)-1] == "MappingCandidates" {
				var c candidate
				if err := dec.DecodeElement(&c, &t); err != nil {
					return nil, errors.Wrap(err, "decoding candidate")
				}
				candidates = append(candidates, c)
				continue
			}
			stack = append(stack, t.Name.Local)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	return candidates, nil
}
