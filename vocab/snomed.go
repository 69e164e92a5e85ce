package vocab

import (
	"database/sql"
	"strings"

	"github.com/trialkit/codify/errors"
)

// SNOMEDLookup resolves SNOMED CT concept identifiers against the
// descriptions table built from the RF2 release files.
type SNOMEDLookup struct {
	db *sql.DB
}

// NewSNOMEDLookup opens the SNOMED descriptions database at path.
func NewSNOMEDLookup(path string) (*SNOMEDLookup, error) {
	db, err := openDatabase(path)
	if err != nil {
		return nil, err
	}
	return &SNOMEDLookup{db: db}, nil
}

// Close releases the database handle.
func (l *SNOMEDLookup) Close() error {
	return l.db.Close()
}

// Meaning returns every description recorded for the concept on one
// comma-joined line, full names and synonyms alike, or an empty string
// when the concept is unknown.
func (l *SNOMEDLookup) Meaning(code string) (string, error) {
	if code == "" {
		return "", nil
	}

	rows, err := l.db.Query(`SELECT term FROM descriptions WHERE concept_id = ?`, code)
	if err != nil {
		return "", errors.Wrapf(err, "snomed lookup for %s", code)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var term string
		if err := rows.Scan(&term); err != nil {
			return "", errors.Wrapf(err, "snomed lookup for %s", code)
		}
		names = append(names, term)
	}
	if err := rows.Err(); err != nil {
		return "", errors.Wrapf(err, "snomed lookup for %s", code)
	}
	return strings.Join(names, ", "), nil
}
