// Package tagger provides the built-in tagging engine, an in-process
// noun-phrase-ish chunker that needs no external software. It speaks
// the same file-drop protocol as the external engines so the
// orchestrator treats every engine uniformly.
package tagger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/trialkit/codify/errors"
	"github.com/trialkit/codify/logger"
	"github.com/trialkit/codify/nlp"
)

// summaryFile aggregates tag frequencies across one batch run.
const summaryFile = "tags.txt"

// Engine tags input files in process.
type Engine struct {
	*nlp.Pipeline
}

// New builds a tagger engine named name rooted at root.
func New(name, root string, cleanup bool) *Engine {
	return &Engine{Pipeline: nlp.NewPipeline(name, root, cleanup)}
}

// Run tags every file in the input drop, one output line per tag. An
// output file is written even when a unit yields no tags at all, so the
// attempt is recorded rather than left pending forever. A tags.txt
// frequency summary is written alongside when any tags were found.
func (e *Engine) Run(ctx context.Context) error {
	entries, err := os.ReadDir(e.InputDir())
	if err != nil {
		return errors.NewConfigurationError("cannot read %s input directory: %v", e.Name(), err)
	}

	counts := make(map[string]int)
	tagged := 0

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return errors.Wrapf(err, "%s interrupted", e.Name())
		}
		if entry.IsDir() {
			continue
		}

		inPath := filepath.Join(e.InputDir(), entry.Name())
		text, err := os.ReadFile(inPath)
		if err != nil {
			logger.Warnw("cannot read engine input",
				"engine", e.Name(),
				"path", inPath,
				"error", err)
			continue
		}

		tags := Chunk(string(text))
		for _, tag := range tags {
			counts[tag]++
		}

		var out strings.Builder
		for _, tag := range tags {
			out.WriteString(tag)
			out.WriteByte('\n')
		}
		outPath := filepath.Join(e.OutputDir(), entry.Name())
		if err := os.WriteFile(outPath, []byte(out.String()), 0o644); err != nil {
			logger.Errorw("cannot write engine output",
				"engine", e.Name(),
				"path", outPath,
				"error", err)
			continue
		}
		tagged++
	}

	if len(counts) > 0 {
		if err := e.writeSummary(counts); err != nil {
			logger.Warnw("cannot write tag summary", "engine", e.Name(), "error", err)
		}
	}

	logger.Infow("tagged input batch", "engine", e.Name(), "files", tagged)
	return nil
}

// writeSummary renders "tag: count" lines, most frequent first.
func (e *Engine) writeSummary(counts map[string]int) error {
	tags := make([]string, 0, len(counts))
	for tag := range counts {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool {
		if counts[tags[i]] != counts[tags[j]] {
			return counts[tags[i]] > counts[tags[j]]
		}
		return tags[i] < tags[j]
	})

	var out strings.Builder
	for _, tag := range tags {
		fmt.Fprintf(&out, "%s: %d\n", tag, counts[tag])
	}
	return os.WriteFile(filepath.Join(e.OutputDir(), summaryFile), []byte(out.String()), 0o644)
}

// ParseOutput reads the tag lines produced for one input file. The
// result always carries the tags system, even when the list is empty,
// so an attempt that found nothing persists as such. A missing output
// file is the normal pending state and yields (nil, nil).
func (e *Engine) ParseOutput(filename string, opt nlp.ParseOptions) (nlp.CodeSet, error) {
	if filename == "" {
		return nil, nil
	}

	path, ok := e.OutputFile(filename)
	if !ok {
		return nil, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		logger.Warnw("cannot read engine output",
			"engine", e.Name(),
			"path", path,
			"error", err)
		return nil, nil
	}

	tags := []nlp.Code{}
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		tags = append(tags, nlp.Code{Value: line})
	}

	if e.CleanupEnabled() {
		e.RemovePair(path, filename)
	}
	return nlp.CodeSet{nlp.SystemTags: tags}, nil
}
