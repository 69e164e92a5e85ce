// Package docstore persists JSON documents in SQLite, one row per
// document id. Partial updates go through the JSON1 functions so a
// writer can set one nested subtree without rewriting, or even
// reading, the rest of the record.
package docstore

import (
	"database/sql"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/trialkit/codify/errors"
)

// Document is a decoded JSON document.
type Document = map[string]any

var tableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Store reads and writes documents in one table. The table needs the
// shape of the trials migration: a TEXT primary key named like the id
// column and a doc column holding JSON.
type Store struct {
	db     *sql.DB
	table  string
	idCol  string
	docCol string
}

// NewStore returns a store over the given table. The caller owns the
// database handle and its lifecycle.
func NewStore(db *sql.DB, table string) (*Store, error) {
	if db == nil {
		return nil, errors.AssertionFailedf("docstore needs a database handle")
	}
	if !tableNameRe.MatchString(table) {
		return nil, errors.NewConfigurationError("invalid document table name %q", table)
	}
	return &Store{db: db, table: table, idCol: "nct", docCol: "doc"}, nil
}

// Load fetches and decodes one document. A missing id yields
// ErrNotFound.
func (s *Store) Load(id string) (Document, error) {
	raw, err := s.LoadRaw(id)
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrapf(err, "decode document %s", id)
	}
	return doc, nil
}

// LoadRaw fetches one document as its stored JSON text.
func (s *Store) LoadRaw(id string) ([]byte, error) {
	var raw []byte
	err := s.db.QueryRow(
		"SELECT "+s.docCol+" FROM "+s.table+" WHERE "+s.idCol+" = ?", id,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(errors.ErrNotFound, "document %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load document %s", id)
	}
	return raw, nil
}

// Save writes the whole document, inserting or replacing as needed.
func (s *Store) Save(id string, doc any) error {
	if id == "" {
		return errors.AssertionFailedf("cannot save a document without an id")
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrapf(err, "encode document %s", id)
	}
	_, err = s.db.Exec(
		"INSERT INTO "+s.table+" ("+s.idCol+", "+s.docCol+") VALUES (?, json(?)) "+
			"ON CONFLICT("+s.idCol+") DO UPDATE SET "+
			s.docCol+" = excluded."+s.docCol+", updated_at = CURRENT_TIMESTAMP",
		id, string(raw),
	)
	if err != nil {
		return errors.Wrapf(err, "save document %s", id)
	}
	return nil
}

// UpdateSubtree sets one nested value addressed by a dotted keypath,
// leaving every other field of the document alone. Missing
// intermediate objects are created on the way down. Each keypath
// segment becomes one nesting level, so "_codified.a.b" writes
// doc._codified.a.b.
func (s *Store) UpdateSubtree(id, keypath string, value any) error {
	if keypath == "" {
		return errors.AssertionFailedf("cannot update a document without a keypath")
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "encode subtree %s of %s", keypath, id)
	}

	segments := strings.Split(keypath, ".")

	// Build nested json_set calls that materialize each missing
	// ancestor object before the leaf is written. json_set alone does
	// not create intermediate levels.
	expr := s.docCol
	args := make([]any, 0, 2*len(segments)+1)
	for i := 1; i < len(segments); i++ {
		p := jsonPath(segments[:i])
		expr = "json_set(" + expr + ", ?, ifnull(json_extract(" + s.docCol + ", ?), json_object()))"
		args = append(args, p, p)
	}
	expr = "json_set(" + expr + ", ?, json(?))"
	args = append(args, jsonPath(segments), string(raw), id)

	res, err := s.db.Exec(
		"UPDATE "+s.table+" SET "+s.docCol+" = "+expr+
			", updated_at = CURRENT_TIMESTAMP WHERE "+s.idCol+" = ?",
		args...,
	)
	if err != nil {
		return errors.Wrapf(err, "update subtree %s of %s", keypath, id)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.Wrapf(errors.ErrNotFound, "document %s", id)
	}
	return nil
}

// UpdateWith merges a JSON tree into the document per RFC 7386: nested
// objects merge recursively, scalars and arrays replace, null values
// remove keys.
func (s *Store) UpdateWith(id string, tree any) error {
	raw, err := json.Marshal(tree)
	if err != nil {
		return errors.Wrapf(err, "encode merge tree for %s", id)
	}
	res, err := s.db.Exec(
		"UPDATE "+s.table+" SET "+s.docCol+" = json_patch("+s.docCol+", json(?))"+
			", updated_at = CURRENT_TIMESTAMP WHERE "+s.idCol+" = ?",
		string(raw), id,
	)
	if err != nil {
		return errors.Wrapf(err, "merge into document %s", id)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.Wrapf(errors.ErrNotFound, "document %s", id)
	}
	return nil
}

// Delete removes one document. Deleting a missing id is not an error.
func (s *Store) Delete(id string) error {
	_, err := s.db.Exec("DELETE FROM "+s.table+" WHERE "+s.idCol+" = ?", id)
	if err != nil {
		return errors.Wrapf(err, "delete document %s", id)
	}
	return nil
}

// IDs lists all document ids in insertion order.
func (s *Store) IDs() ([]string, error) {
	rows, err := s.db.Query("SELECT " + s.idCol + " FROM " + s.table + " ORDER BY rowid")
	if err != nil {
		return nil, errors.Wrap(err, "list documents")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scan document id")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Count returns the number of stored documents.
func (s *Store) Count() (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM " + s.table).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, "count documents")
	}
	return n, nil
}

// jsonPath renders keypath segments as a JSON1 path, quoting each
// segment so property names containing dots or other specials survive.
func jsonPath(segments []string) string {
	var b strings.Builder
	b.WriteString("$")
	for _, seg := range segments {
		b.WriteString(`."`)
		b.WriteString(strings.ReplaceAll(seg, `"`, `\"`))
		b.WriteString(`"`)
	}
	return b.String()
}
