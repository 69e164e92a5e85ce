package vocab

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/trialkit/codify/errors"
)

// UMLSLookup resolves UMLS concept identifiers (CUIs) against the
// descriptions extract, which is far faster to comb than the full
// MRCONSO table.
type UMLSLookup struct {
	db *sql.DB
}

// NewUMLSLookup opens the UMLS descriptions database at path.
func NewUMLSLookup(path string) (*UMLSLookup, error) {
	db, err := openDatabase(path)
	if err != nil {
		return nil, err
	}
	return &UMLSLookup{db: db}, nil
}

// Close releases the database handle.
func (l *UMLSLookup) Close() error {
	return l.db.Close()
}

// Entry is one name recorded for a concept: the string itself, the
// source vocabulary it came from and its semantic type.
type Entry struct {
	Name         string
	Source       string
	SemanticType string
}

// Lookup returns every name recorded for the CUI. With preferred set,
// only SNOMED CT and Metathesaurus names are reported.
func (l *UMLSLookup) Lookup(cui string, preferred bool) ([]Entry, error) {
	if cui == "" {
		return nil, nil
	}

	query := `SELECT STR, SAB, STY FROM descriptions WHERE CUI = ?`
	if preferred {
		query += ` AND SAB IN ('SNOMEDCT', 'MTH')`
	}

	rows, err := l.db.Query(query, cui)
	if err != nil {
		return nil, errors.Wrapf(err, "umls lookup for %s", cui)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Name, &e.Source, &e.SemanticType); err != nil {
			return nil, errors.Wrapf(err, "umls lookup for %s", cui)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "umls lookup for %s", cui)
	}
	return entries, nil
}

// Meaning renders every name recorded for the CUI on one comma-joined
// line, or an empty string when the concept is unknown.
func (l *UMLSLookup) Meaning(cui string, preferred bool) (string, error) {
	entries, err := l.Lookup(cui, preferred)
	if err != nil {
		return "", err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, fmt.Sprintf("%s (%s)  [%s]", e.Name, e.Source, e.SemanticType))
	}
	return strings.Join(names, ", "), nil
}
