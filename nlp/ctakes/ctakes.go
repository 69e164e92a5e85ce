// Package ctakes adapts the Apache cTAKES clinical pipeline to the
// nlp.Engine contract. cTAKES reads plain-text files from the input
// drop and deposits CAS XMI files named <input>.xmi into the output
// drop.
package ctakes

import (
	"context"
	"encoding/xml"
	"io"
	"os"
	"strings"

	"github.com/trialkit/codify/errors"
	"github.com/trialkit/codify/logger"
	"github.com/trialkit/codify/nlp"
)

// Engine drives an external cTAKES installation.
type Engine struct {
	*nlp.Pipeline
	command []string
}

// New builds a cTAKES adapter named name. command is the batch
// invocation argv, run with the engine root as working directory.
func New(name, root string, command []string, cleanup bool) *Engine {
	return &Engine{Pipeline: nlp.NewPipeline(name, root, cleanup), command: command}
}

// Run invokes the cTAKES batch pipeline over all inputs currently
// present and blocks until it exits.
func (e *Engine) Run(ctx context.Context) error {
	return nlp.RunBatch(ctx, e.Pipeline, e.command)
}

// ParseOutput reads the XMI annotations produced for one input file.
//
// UMLS concept annotations carry SNOMED codes (codingScheme "SNOMED")
// and CUIs. Mention annotations reference their concepts through
// ontologyConceptArr and carry polarity -1 when the mention is negated;
// codes referenced by a negated mention get the negation marker. Codes
// are de-duplicated in first-seen order. A missing output file is the
// normal pending state and yields (nil, nil); malformed output is
// logged and reported the same way so the unit stays pending.
func (e *Engine) ParseOutput(filename string, opt nlp.ParseOptions) (nlp.CodeSet, error) {
	if filename == "" {
		return nil, nil
	}

	path, ok := e.OutputFile(filename + ".xmi")
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

	concepts, negated, err := parseXMI(f)
	f.Close()
	if err != nil {
		logger.Warnw("malformed engine output, leaving unit pending",
			"engine", e.Name(),
			"path", path,
			"error", err)
		return nil, nil
	}

	var snomeds, cuis []nlp.Code
	seen := map[string]map[nlp.Code]bool{
		nlp.SystemSnomed: {},
		nlp.SystemCUI:    {},
	}
	add := func(system string, list []nlp.Code, code nlp.Code) []nlp.Code {
		if seen[system][code] {
			return list
		}
		seen[system][code] = true
		return append(list, code)
	}

	for _, c := range concepts {
		neg := negated[c.id]
		if c.codingScheme == "SNOMED" && c.code != "" {
			snomeds = add(nlp.SystemSnomed, snomeds, nlp.Code{Value: c.code, Negated: neg})
		}
		if c.cui != "" {
			cuis = add(nlp.SystemCUI, cuis, nlp.Code{Value: c.cui, Negated: neg})
		}
	}

	cs := nlp.CodeSet{}
	if len(snomeds) > 0 {
		cs[nlp.SystemSnomed] = snomeds
	}
	if len(cuis) > 0 {
		cs[nlp.SystemCUI] = cuis
	}

	if e.CleanupEnabled() {
		e.RemovePair(path, filename)
	}
	return cs, nil
}

// umlsConcept is one refsem:UmlsConcept annotation from the XMI.
type umlsConcept struct {
	id           string
	cui          string
	code         string
	codingScheme string
}

// parseXMI streams a CAS XMI document, collecting UMLS concept
// annotations and the ids of concepts referenced by negated mentions.
func parseXMI(r io.Reader) ([]umlsConcept, map[string]bool, error) {
	dec := xml.NewDecoder(r)

	var concepts []umlsConcept
	negated := make(map[string]bool)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, errors.Wrap(err, "decoding XMI")
		}

		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		if se.Name.Local == "UmlsConcept" {
			var c umlsConcept
			for _, attr := range se.Attr {
				switch attr.Name.Local {
				case "id":
					c.id = attr.Value
				case "cui":
					c.cui = attr.Value
				case "code":
					c.code = attr.Value
				case "codingScheme":
					c.codingScheme = attr.Value
				}
			}
			concepts = append(concepts, c)
			continue
		}

		// Any mention annotation: the element name varies by semantic
		// group, but all of them reference concepts through
		// ontologyConceptArr and carry the polarity attribute.
		var refs, polarity string
		for _, attr := range se.Attr {
			switch attr.Name.Local {
			case "ontologyConceptArr":
				refs = attr.Value
			case "polarity":
				polarity = attr.Value
			}
		}
		if refs != "" && polarity == "-1" {
			for _, id := range strings.Fields(refs) {
				negated[id] = true
			}
		}
	}

	return concepts, negated, nil
}
