// Package vocab resolves concept codes reported by NLP engines into
// human-readable meanings using locally imported terminology databases.
//
// Three SQLite databases are supported: UMLS (a "descriptions" extract
// of MRCONSO), SNOMED CT (a "descriptions" extract of the RF2 release
// files) and RxNorm (the RXNCONSO table). They are produced offline by
// the import scripts under databases/ and are read-only at run time.
// CheckDatabases verifies their presence at run start; lookups against
// a missing database degrade to raw codes instead of failing a run.
package vocab

import (
	"database/sql"
	"os"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/trialkit/codify/config"
	"github.com/trialkit/codify/errors"
)

func openDatabase(path string) (*sql.DB, error) {
	// Opening a missing file would create an empty database, so the
	// existence check comes first.
	if _, err := os.Stat(path); err != nil {
		return nil, errors.NewNotFoundError("terminology database %s does not exist", path)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open terminology database %s", path)
	}
	return db, nil
}

// CheckDatabases verifies that the configured terminology databases are
// in place. A missing database is logged together with the import
// script that produces it; when cfg.Required is set it is a
// configuration error instead.
func CheckDatabases(cfg config.VocabConfig, logger *zap.SugaredLogger) error {
	checks := []struct {
		name   string
		path   string
		script string
	}{
		{"UMLS", cfg.UMLSPath, "databases/umls.sh"},
		{"SNOMED", cfg.SNOMEDPath, "databases/snomed.sh"},
		{"RxNorm", cfg.RxNormPath, "databases/rxnorm.sh"},
	}

	for _, c := range checks {
		if c.path == "" {
			continue
		}
		if _, err := os.Stat(c.path); err == nil {
			continue
		}
		if cfg.Required {
			return errors.NewConfigurationError(
				"the %s database at %s does not exist, run the import script %s",
				c.name, c.path, c.script)
		}
		if logger != nil {
			logger.Warnw("Terminology database missing, codes will not be resolved to names",
				"vocabulary", c.name,
				"path", c.path,
				"import_script", c.script,
			)
		}
	}
	return nil
}
