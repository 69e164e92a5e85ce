// Package engines instantiates configured NLP engines from their
// manifests. It sits above the adapter packages so the core nlp package
// stays free of adapter imports.
package engines

import (
	"github.com/trialkit/codify/errors"
	"github.com/trialkit/codify/logger"
	"github.com/trialkit/codify/nlp"
	"github.com/trialkit/codify/nlp/ctakes"
	"github.com/trialkit/codify/nlp/metamap"
	"github.com/trialkit/codify/nlp/tagger"
)

// Build loads the manifests in dir and instantiates the enabled engines
// in the order given; an empty enabled list means every discovered
// engine. Engines whose manifest is missing, whose kind is unknown, or
// whose requires constraint is unsatisfied are skipped with a warning
// instead of failing the whole set. defaultRoot applies to manifests
// that carry no root of their own.
func Build(dir string, enabled []string, defaultRoot string) ([]nlp.Engine, error) {
	manifests, err := nlp.LoadManifests(dir)
	if err != nil {
		return nil, err
	}

	if len(enabled) == 0 {
		var list []nlp.Engine
		for _, m := range manifests {
			e, err := FromManifest(m, defaultRoot)
			if err != nil {
				logger.Warnw("skipping engine", "engine", m.Name, "error", err)
				continue
			}
			list = append(list, e)
		}
		return list, nil
	}

	byName := make(map[string]*nlp.Manifest, len(manifests))
	for _, m := range manifests {
		byName[m.Name] = m
	}

	var list []nlp.Engine
	for _, name := range enabled {
		m, ok := byName[name]
		if !ok {
			logger.Warnw("no manifest for enabled engine", "engine", name, "dir", dir)
			continue
		}
		e, err := FromManifest(m, defaultRoot)
		if err != nil {
			logger.Warnw("skipping engine", "engine", name, "error", err)
			continue
		}
		list = append(list, e)
	}
	return list, nil
}

// FromManifest instantiates one engine from its manifest.
func FromManifest(m *nlp.Manifest, defaultRoot string) (nlp.Engine, error) {
	if err := m.CheckRequires(); err != nil {
		return nil, err
	}

	root := m.Root
	if root == "" {
		root = defaultRoot
	}

	argv, err := m.Argv()
	if err != nil {
		return nil, err
	}

	switch m.Kind {
	case nlp.KindCTakes:
		return ctakes.New(m.Name, root, argv, m.Cleanup), nil
	case nlp.KindMetaMap:
		return metamap.New(m.Name, root, argv, m.Cleanup), nil
	case nlp.KindTagger:
		return tagger.New(m.Name, root, m.Cleanup), nil
	default:
		return nil, errors.NewConfigurationError("engine %s has unknown kind %q", m.Name, m.Kind)
	}
}
