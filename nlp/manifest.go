package nlp

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/Masterminds/semver/v3"
	"github.com/kballard/go-shellquote"

	"github.com/trialkit/codify/errors"
	"github.com/trialkit/codify/logger"
)

// AdapterProtocol is the version of the engine adapter contract this
// build implements, matched against each manifest's requires constraint.
const AdapterProtocol = "1.2.0"

var adapterProtocol = semver.MustParse(AdapterProtocol)

// Manifest describes one engine installation, loaded from a TOML file
// in the engine manifest directory:
//
//	name = "ctakes"
//	kind = "ctakes"
//	root = "run"
//	command = "bin/ctakes-clinical-pipeline.sh -i ctakes_input -o ctakes_output"
//	cleanup = true
//	requires = ">= 1.0, < 2"
type Manifest struct {
	// Name is the identity codes and waiting state are tracked under.
	// It also names the engine's input/output directories.
	Name string `toml:"name"`
	// Kind selects the adapter implementation: ctakes, metamap or tagger.
	Kind string `toml:"kind"`
	// Root overrides the working directory for this engine.
	Root string `toml:"root"`
	// Command is the shell-quoted batch invocation for external engines.
	Command string `toml:"command"`
	// Cleanup removes each input/output pair once parsed.
	Cleanup bool `toml:"cleanup"`
	// Requires is a semver constraint on the adapter protocol version.
	Requires string `toml:"requires"`

	path string
}

// Path returns the manifest file this engine was loaded from.
func (m *Manifest) Path() string { return m.path }

// LoadManifest reads and validates a single engine manifest.
func LoadManifest(path string) (*Manifest, error) {
	var m Manifest
	if _, err := toml.DecodeFile(path, &m); err != nil {
		return nil, errors.Wrapf(err, "reading engine manifest %s", path)
	}
	m.path = path

	if m.Name == "" {
		return nil, errors.NewConfigurationError("engine manifest %s has no name", path)
	}
	if m.Kind == "" {
		return nil, errors.NewConfigurationError("engine manifest %s has no kind", path)
	}
	return &m, nil
}

// LoadManifests reads every *.toml manifest in dir in filename order.
// Unreadable manifests are skipped with a warning so one broken file
// does not take down engine discovery; a missing directory yields no
// manifests at all.
func LoadManifests(dir string) ([]*Manifest, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "reading engine manifest directory %s", dir)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".toml" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var manifests []*Manifest
	for _, name := range names {
		path := filepath.Join(dir, name)
		m, err := LoadManifest(path)
		if err != nil {
			logger.Warnw("skipping engine manifest", "path", path, "error", err)
			continue
		}
		manifests = append(manifests, m)
	}
	return manifests, nil
}

// Argv splits the manifest command into an argument vector.
func (m *Manifest) Argv() ([]string, error) {
	if m.Command == "" {
		return nil, nil
	}
	argv, err := shellquote.Split(m.Command)
	if err != nil {
		return nil, errors.Wrapf(err, "engine %s command", m.Name)
	}
	return argv, nil
}

// CheckRequires verifies the manifest's protocol constraint against the
// adapter protocol this build implements. Manifests without a
// constraint always pass.
func (m *Manifest) CheckRequires() error {
	if m.Requires == "" {
		return nil
	}
	c, err := semver.NewConstraint(m.Requires)
	if err != nil {
		return errors.Wrapf(err, "engine %s requires constraint %q", m.Name, m.Requires)
	}
	if !c.Check(adapterProtocol) {
		return errors.NewConfigurationError("engine %s requires adapter protocol %q, this build implements %s",
			m.Name, m.Requires, AdapterProtocol)
	}
	return nil
}
