package nlp

import (
	"os"
	"path/filepath"

	"github.com/trialkit/codify/errors"
	"github.com/trialkit/codify/logger"
)

// Pipeline is the shared file-drop base embedded by every engine
// adapter. It owns the root directory layout and the write-once input
// semantics; adapters add Run and ParseOutput on top.
type Pipeline struct {
	name       string
	root       string
	cleanup    bool
	didPrepare bool
}

// NewPipeline builds the file-drop base for an engine named name,
// rooted at root ("." when empty). When cleanup is set, adapters remove
// each input/output pair after a successful parse.
func NewPipeline(name, root string, cleanup bool) *Pipeline {
	if root == "" {
		root = "."
	}
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return &Pipeline{name: name, root: root, cleanup: cleanup}
}

// Name returns the identity codes and waiting state are tracked under.
func (p *Pipeline) Name() string { return p.name }

// Root returns the engine's working directory.
func (p *Pipeline) Root() string { return p.root }

// CleanupEnabled reports whether parsed input/output pairs are removed.
func (p *Pipeline) CleanupEnabled() bool { return p.cleanup }

// InputDir returns <root>/<name>_input.
func (p *Pipeline) InputDir() string { return filepath.Join(p.root, p.name+"_input") }

// OutputDir returns <root>/<name>_output.
func (p *Pipeline) OutputDir() string { return filepath.Join(p.root, p.name+"_output") }

// Prepare creates the root and the input/output directories. It is
// idempotent and must run before inputs are written.
func (p *Pipeline) Prepare() error {
	if p.didPrepare {
		return nil
	}
	for _, dir := range []string{p.root, p.InputDir(), p.OutputDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.NewConfigurationError("cannot create %s directory %s: %v", p.name, dir, err)
		}
	}
	p.didPrepare = true
	return nil
}

// WriteInput writes one unit's text into the input directory verbatim;
// callers submit text already joined into sentence form. Inputs are
// write-once: a unit that was submitted before yields ErrInputExists
// and the file is never touched again. Empty text or an empty filename
// is nothing to submit and yields (false, nil).
func (p *Pipeline) WriteInput(text, filename string) (bool, error) {
	if len(text) == 0 || len(filename) == 0 {
		return false, nil
	}

	inDir := p.InputDir()
	if _, err := os.Stat(inDir); err != nil {
		return false, errors.Wrapf(errors.ErrNoInputDir, "%s at %s", p.name, inDir)
	}

	path := filepath.Join(inDir, filename)
	if _, err := os.Stat(path); err == nil {
		return false, errors.Wrapf(errors.ErrInputExists, "%s", path)
	}

	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return false, errors.Wrapf(err, "writing %s input %s", p.name, filename)
	}
	return true, nil
}

// OutputFile locates the output file named name, returning its path and
// whether it exists yet. A missing output directory is logged at error
// level since it usually means the engine was never prepared; a missing
// file is the normal pending state and stays silent.
func (p *Pipeline) OutputFile(name string) (string, bool) {
	outDir := p.OutputDir()
	if _, err := os.Stat(outDir); err != nil {
		logger.Errorw("engine output directory missing",
			"engine", p.name,
			"dir", outDir)
		return "", false
	}

	path := filepath.Join(outDir, name)
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	return path, true
}

// RemovePair deletes a consumed output file and its matching input.
// Adapters call it after a successful parse when cleanup is enabled.
func (p *Pipeline) RemovePair(outputPath, inputName string) {
	if err := os.Remove(outputPath); err != nil {
		logger.Warnw("cannot remove engine output",
			"engine", p.name,
			"path", outputPath,
			"error", err)
	}

	input := filepath.Join(p.InputDir(), inputName)
	if _, err := os.Stat(input); err == nil {
		if err := os.Remove(input); err != nil {
			logger.Warnw("cannot remove engine input",
				"engine", p.name,
				"path", input,
				"error", err)
		}
	}
}
