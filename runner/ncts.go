package runner

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/trialkit/codify/config"
	"github.com/trialkit/codify/errors"
)

// NCTEntry is one line of a run's .ncts artifact: a trial identifier
// and, for filtered runs, the reason the trial was excluded.
type NCTEntry struct {
	NCT    string `json:"nct"`
	Reason string `json:"reason,omitempty"`
}

// NCTsPath is where a run writes its trial list.
func NCTsPath(dir, id string) string {
	return filepath.Join(dir, id+".ncts")
}

// WriteNCTs writes the run's trial list as one "NCT:reason" line per
// trial, replacing any previous artifact for the same run.
func WriteNCTs(dir, id string, entries []NCTEntry) error {
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(e.NCT)
		b.WriteString(":")
		b.WriteString(e.Reason)
		b.WriteString("\n")
	}

	path := NCTsPath(dir, id)
	if err := os.WriteFile(path, []byte(b.String()), config.DefaultFilePermissions); err != nil {
		return errors.Wrapf(err, "cannot write trial list %s", path)
	}
	return nil
}

// ReadNCTs loads a run's trial list. Blank lines are skipped; a line
// without a colon is a bare NCT.
func ReadNCTs(dir, id string) ([]NCTEntry, error) {
	path := NCTsPath(dir, id)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(errors.ErrNotFound, "no trial list for run %s", id)
		}
		return nil, errors.Wrapf(err, "cannot open trial list %s", path)
	}
	defer f.Close()

	var entries []NCTEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		nct, reason, _ := strings.Cut(line, ":")
		entries = append(entries, NCTEntry{NCT: nct, Reason: reason})
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrapf(err, "cannot read trial list %s", path)
	}
	return entries, nil
}
