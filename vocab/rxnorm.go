package vocab

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/trialkit/codify/errors"
)

// rxnormTermTypes orders RxNorm term types from most to least useful
// for a one-line drug name: brand names and ingredients first, then
// clinical drug components and full clinical drugs.
var rxnormTermTypes = []string{"BN", "IN", "PIN", "SBDC", "SCDC", "SBD", "SCD", "MIN"}

// RxNormLookup resolves RxNorm concept identifiers (RXCUIs) against the
// RXNCONSO table.
type RxNormLookup struct {
	db *sql.DB
}

// NewRxNormLookup opens the RxNorm database at path.
func NewRxNormLookup(path string) (*RxNormLookup, error) {
	db, err := openDatabase(path)
	if err != nil {
		return nil, err
	}
	return &RxNormLookup{db: db}, nil
}

// Close releases the database handle.
func (l *RxNormLookup) Close() error {
	return l.db.Close()
}

// Meaning returns a name for the RXCUI. With preferred set, the single
// best English name is chosen by term type; without it every English
// name is reported on one comma-joined line. Unknown concepts yield an
// empty string.
func (l *RxNormLookup) Meaning(rxcui string, preferred bool) (string, error) {
	if rxcui == "" {
		return "", nil
	}

	rows, err := l.db.Query(`SELECT STR, TTY FROM RXNCONSO WHERE RXCUI = ? AND LAT = 'ENG'`, rxcui)
	if err != nil {
		return "", errors.Wrapf(err, "rxnorm lookup for %s", rxcui)
	}
	defer rows.Close()

	type rxName struct {
		name string
		tty  string
	}
	var found []rxName
	for rows.Next() {
		var f rxName
		if err := rows.Scan(&f.name, &f.tty); err != nil {
			return "", errors.Wrapf(err, "rxnorm lookup for %s", rxcui)
		}
		found = append(found, f)
	}
	if err := rows.Err(); err != nil {
		return "", errors.Wrapf(err, "rxnorm lookup for %s", rxcui)
	}
	if len(found) == 0 {
		return "", nil
	}

	if preferred {
		for _, tty := range rxnormTermTypes {
			for _, f := range found {
				if f.tty == tty {
					return fmt.Sprintf("%s [%s]", f.name, f.tty), nil
				}
			}
		}
		// Nothing matched the preference list, report the first name.
		f := found[0]
		return fmt.Sprintf("%s [%s]", f.name, f.tty), nil
	}

	names := make([]string, 0, len(found))
	for _, f := range found {
		names = append(names, fmt.Sprintf("%s [%s]", f.name, f.tty))
	}
	return strings.Join(names, ", "), nil
}
