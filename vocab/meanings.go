package vocab

import (
	"go.uber.org/zap"

	"github.com/trialkit/codify/config"
	"github.com/trialkit/codify/nlp"
)

// Meanings routes code resolution to whichever terminology databases
// could be opened. Codes under a system with no database behind it stay
// unresolved rather than failing, so reports degrade gracefully on
// machines without the imported vocabularies.
type Meanings struct {
	umls   *UMLSLookup
	snomed *SNOMEDLookup
	rxnorm *RxNormLookup
}

// OpenMeanings opens every configured terminology database that exists.
// Missing databases are logged at debug level; CheckDatabases is the
// place that warns about them.
func OpenMeanings(cfg config.VocabConfig, logger *zap.SugaredLogger) *Meanings {
	m := &Meanings{}

	if l, err := NewUMLSLookup(cfg.UMLSPath); err == nil {
		m.umls = l
	} else if logger != nil {
		logger.Debugw("UMLS lookups unavailable", "path", cfg.UMLSPath, "error", err)
	}
	if l, err := NewSNOMEDLookup(cfg.SNOMEDPath); err == nil {
		m.snomed = l
	} else if logger != nil {
		logger.Debugw("SNOMED lookups unavailable", "path", cfg.SNOMEDPath, "error", err)
	}
	if l, err := NewRxNormLookup(cfg.RxNormPath); err == nil {
		m.rxnorm = l
	} else if logger != nil {
		logger.Debugw("RxNorm lookups unavailable", "path", cfg.RxNormPath, "error", err)
	}
	return m
}

// Close releases every opened database handle.
func (m *Meanings) Close() {
	if m.umls != nil {
		m.umls.Close()
	}
	if m.snomed != nil {
		m.snomed.Close()
	}
	if m.rxnorm != nil {
		m.rxnorm.Close()
	}
}

// Resolve returns a human-readable meaning for one code under the given
// code system, or an empty string when no database can answer. Tagger
// codes are their own meaning.
func (m *Meanings) Resolve(system string, code nlp.Code) (string, error) {
	switch system {
	case nlp.SystemSnomed:
		if m.snomed != nil {
			return m.snomed.Meaning(code.Value)
		}
	case nlp.SystemCUI:
		if m.umls != nil {
			return m.umls.Meaning(code.Value, true)
		}
	case nlp.SystemRxNorm:
		if m.rxnorm != nil {
			return m.rxnorm.Meaning(code.Value, true)
		}
	case nlp.SystemTags, nlp.SystemText:
		return code.Value, nil
	}
	return "", nil
}
