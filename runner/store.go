package runner

import (
	"database/sql"
	"time"

	"github.com/trialkit/codify/errors"
)

// Run is one recorded codification run. Rows are written by the
// coordinator as it narrates progress, so the CLI and the HTTP API can
// report on runs they did not start.
type Run struct {
	ID           string     `json:"id"`
	Condition    string     `json:"condition,omitempty"`
	Term         string     `json:"term,omitempty"`
	Status       string     `json:"status"`
	Strict       bool       `json:"strict,omitempty"`
	TrialCount   int        `json:"trial_count"`
	WaitingCount int        `json:"waiting_count"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// Done reports whether the run reached its terminal narration.
func (r *Run) Done() bool {
	return r.Status == StatusDone
}

// Target names what the run searched for.
func (r *Run) Target() string {
	if r.Condition != "" {
		return r.Condition
	}
	return r.Term
}

// Store persists run rows.
type Store struct {
	db *sql.DB
}

// NewStore creates a run store on an open database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const runColumns = `id, condition, term, status, strict, trial_count, waiting_count, created_at, updated_at, finished_at`

// Record upserts the run's current state and stamps UpdatedAt.
func (s *Store) Record(run *Run) error {
	run.UpdatedAt = time.Now()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = run.UpdatedAt
	}

	query := `
		INSERT INTO runs (` + runColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			strict = excluded.strict,
			trial_count = excluded.trial_count,
			waiting_count = excluded.waiting_count,
			updated_at = excluded.updated_at,
			finished_at = excluded.finished_at
	`

	_, err := s.db.Exec(query,
		run.ID,
		run.Condition,
		run.Term,
		run.Status,
		run.Strict,
		run.TrialCount,
		run.WaitingCount,
		run.CreatedAt,
		run.UpdatedAt,
		run.FinishedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "cannot record run %s", run.ID)
	}
	return nil
}

// Get retrieves one run by id.
func (s *Store) Get(id string) (*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = ?`

	run, err := scanRun(s.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(errors.ErrNotFound, "run %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "cannot load run %s", id)
	}
	return run, nil
}

// List returns the most recent runs, newest first. A non-positive
// limit falls back to 50.
func (s *Store) List(limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + runColumns + ` FROM runs ORDER BY created_at DESC, id LIMIT ?`
	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, errors.Wrap(err, "cannot list runs")
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, errors.Wrap(err, "cannot scan run")
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating runs")
	}
	return runs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var run Run
	var finished sql.NullTime
	err := row.Scan(
		&run.ID,
		&run.Condition,
		&run.Term,
		&run.Status,
		&run.Strict,
		&run.TrialCount,
		&run.WaitingCount,
		&run.CreatedAt,
		&run.UpdatedAt,
		&finished,
	)
	if err != nil {
		return nil, err
	}
	if finished.Valid {
		run.FinishedAt = &finished.Time
	}
	return &run, nil
}
