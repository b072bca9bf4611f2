// Package store persists simulation histories in sqlite, so that runs can be replayed later.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/fumin/qsim"
	"github.com/fumin/qsim/circuit"
	"github.com/fumin/qsim/sim"
)

const (
	tableRuns       = "runs"
	tableSteps      = "steps"
	tableAmplitudes = "amplitudes"
)

// Run is the summary of a stored history.
type Run struct {
	ID      string
	Name    string
	Qubits  int
	Depth   int
	Steps   int
	Created time.Time
}

// Store is a sqlite database of histories.
type Store struct {
	Path string

	db *sql.DB
}

// Open opens, and creates if necessary, the database at dbPath.
func Open(dbPath string) (*Store, error) {
	s := &Store{Path: dbPath}
	var err error
	s.db, err = newDB(dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Save stores h, the history of c, and returns the id of the new run.
func (s *Store) Save(ctx context.Context, name string, c circuit.Circuit, h sim.History) (string, error) {
	id := uuid.New().String()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", errors.Wrap(err, "")
	}
	if err := saveTx(ctx, tx, id, name, c, h); err != nil {
		tx.Rollback()
		return "", errors.Wrap(err, "")
	}
	if err := tx.Commit(); err != nil {
		return "", errors.Wrap(err, "")
	}
	return id, nil
}

func saveTx(ctx context.Context, tx *sql.Tx, id, name string, c circuit.Circuit, h sim.History) error {
	sqlStr := fmt.Sprintf(`INSERT INTO %s (id, name, qubits, depth, created) VALUES (?, ?, ?, ?, ?)`, tableRuns)
	if _, err := tx.ExecContext(ctx, sqlStr, id, name, c.Qubits, c.Depth, time.Now().UnixNano()); err != nil {
		return errors.Wrap(err, "")
	}

	stepSQL := fmt.Sprintf(`INSERT INTO %s (run, idx, description, unapplied) VALUES (?, ?, ?, ?)`, tableSteps)
	ampSQL := fmt.Sprintf(`INSERT INTO %s (run, step, i, re, im) VALUES (?, ?, ?, ?, ?)`, tableAmplitudes)
	for _, step := range h {
		unapplied, err := json.Marshal(step.Unapplied)
		if err != nil {
			return errors.Wrap(err, "")
		}
		if _, err := tx.ExecContext(ctx, stepSQL, id, step.Index, step.Description, string(unapplied)); err != nil {
			return errors.Wrap(err, fmt.Sprintf("step %d", step.Index))
		}

		for i, a := range step.State {
			// Only nonzero amplitudes are stored.
			if a == 0 {
				continue
			}
			if _, err := tx.ExecContext(ctx, ampSQL, id, step.Index, i, real(a), imag(a)); err != nil {
				return errors.Wrap(err, fmt.Sprintf("step %d amplitude %d", step.Index, i))
			}
		}
	}
	return nil
}

// Load returns the history of run id.
func (s *Store) Load(ctx context.Context, id string) (sim.History, error) {
	var qubits int
	sqlStr := fmt.Sprintf(`SELECT qubits FROM %s WHERE id=?`, tableRuns)
	err := s.db.QueryRowContext(ctx, sqlStr, id).Scan(&qubits)
	switch {
	case err == sql.ErrNoRows:
		return nil, errors.Errorf("run %s not found", id)
	case err != nil:
		return nil, errors.Wrap(err, "")
	}

	h, err := s.loadSteps(ctx, id, qubits)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	if err := s.loadAmplitudes(ctx, id, h); err != nil {
		return nil, errors.Wrap(err, "")
	}
	return h, nil
}

func (s *Store) loadSteps(ctx context.Context, id string, qubits int) (sim.History, error) {
	sqlStr := fmt.Sprintf(`SELECT idx, description, unapplied FROM %s WHERE run=? ORDER BY idx`, tableSteps)
	rows, err := s.db.QueryContext(ctx, sqlStr, id)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	defer rows.Close()

	h := make(sim.History, 0)
	for rows.Next() {
		var step sim.Step
		var unapplied string
		if err := rows.Scan(&step.Index, &step.Description, &unapplied); err != nil {
			return nil, errors.Wrap(err, "")
		}
		if err := json.Unmarshal([]byte(unapplied), &step.Unapplied); err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("step %d", step.Index))
		}
		if step.Index != len(h) {
			return nil, errors.Errorf("step %d at position %d", step.Index, len(h))
		}
		step.State = make(qsim.Vector, 1<<qubits)
		h = append(h, step)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "")
	}
	return h, nil
}

func (s *Store) loadAmplitudes(ctx context.Context, id string, h sim.History) error {
	sqlStr := fmt.Sprintf(`SELECT step, i, re, im FROM %s WHERE run=? ORDER BY step, i`, tableAmplitudes)
	rows, err := s.db.QueryContext(ctx, sqlStr, id)
	if err != nil {
		return errors.Wrap(err, "")
	}
	defer rows.Close()

	for rows.Next() {
		var step, i int
		var re, im float64
		if err := rows.Scan(&step, &i, &re, &im); err != nil {
			return errors.Wrap(err, "")
		}
		if step < 0 || step >= len(h) || i < 0 || i >= len(h[step].State) {
			return errors.Errorf("amplitude %d of step %d out of range", i, step)
		}
		h[step].State[i] = complex(re, im)
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

// Runs lists the stored runs, oldest first.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	sqlStr := fmt.Sprintf(`SELECT r.id, r.name, r.qubits, r.depth, r.created, (SELECT count(1) FROM %s s WHERE s.run = r.id) FROM %s r ORDER BY r.created, r.id`, tableSteps, tableRuns)
	rows, err := s.db.QueryContext(ctx, sqlStr)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	defer rows.Close()

	runs := make([]Run, 0)
	for rows.Next() {
		var r Run
		var created int64
		if err := rows.Scan(&r.ID, &r.Name, &r.Qubits, &r.Depth, &created, &r.Steps); err != nil {
			return nil, errors.Wrap(err, "")
		}
		r.Created = time.Unix(0, created)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "")
	}
	return runs, nil
}

// Delete removes run id.
func (s *Store) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "")
	}
	if err := deleteTx(ctx, tx, id); err != nil {
		tx.Rollback()
		return errors.Wrap(err, "")
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

func deleteTx(ctx context.Context, tx *sql.Tx, id string) error {
	for _, t := range []struct{ table, col string }{{tableAmplitudes, "run"}, {tableSteps, "run"}, {tableRuns, "id"}} {
		sqlStr := fmt.Sprintf(`DELETE FROM %s WHERE %s=?`, t.table, t.col)
		if _, err := tx.ExecContext(ctx, sqlStr, id); err != nil {
			return errors.Wrap(err, fmt.Sprintf("%s %s", sqlStr, id))
		}
	}
	return nil
}

func newDB(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", dbPath))
	if err != nil {
		return nil, errors.Wrap(err, "")
	}

	if err := prepareDB(db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "")
	}

	return db, nil
}

func prepareDB(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (id TEXT PRIMARY KEY, name TEXT, qubits INTEGER, depth INTEGER, created INTEGER) STRICT`, tableRuns),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (run TEXT, idx INTEGER, description TEXT, unapplied TEXT, PRIMARY KEY (run, idx)) STRICT`, tableSteps),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (run TEXT, step INTEGER, i INTEGER, re REAL, im REAL, PRIMARY KEY (run, step, i)) STRICT`, tableAmplitudes),
	}
	for _, sqlStr := range stmts {
		if _, err := db.ExecContext(ctx, sqlStr); err != nil {
			return errors.Wrap(err, sqlStr)
		}
	}
	return nil
}
