package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/callchain/internal/ir"
)

// RunStatus is the lifecycle state of a stored run.
type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunOK      RunStatus = "ok"
	RunError   RunStatus = "error"
)

// Run is one stored chain run.
type Run struct {
	ID             string
	Seq            int64 // creation order within the store
	Name           string
	DefinitionHash string
	Definition     ir.IRValue
	Initial        ir.IRValue
	Status         RunStatus
	Result         ir.IRValue
	ResultHash     string
	Error          string
}

// CreateRun inserts a run in the running state and returns its seq.
// Uses ON CONFLICT(id) DO NOTHING; creating the same run twice returns the
// seq assigned the first time.
func (s *Store) CreateRun(ctx context.Context, run Run) (int64, error) {
	def, err := marshalValue(run.Definition)
	if err != nil {
		return 0, fmt.Errorf("create run: %w", err)
	}
	initial, err := marshalValue(run.Initial)
	if err != nil {
		return 0, fmt.Errorf("create run: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, seq, name, definition_hash, definition, initial, status)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM runs), ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, run.ID, run.Name, run.DefinitionHash, def, initial, string(RunRunning))
	if err != nil {
		return 0, fmt.Errorf("create run: %w", err)
	}

	var seq int64
	if err := s.db.QueryRowContext(ctx, `SELECT seq FROM runs WHERE id = ?`, run.ID).Scan(&seq); err != nil {
		return 0, fmt.Errorf("create run: %w", err)
	}
	return seq, nil
}

// FinishRun records the terminal outcome of a run. A non-empty errText
// marks the run as failed and stores a null result.
func (s *Store) FinishRun(ctx context.Context, runID string, result ir.IRValue, errText string) error {
	status := RunOK
	if errText != "" {
		status = RunError
		result = ir.IRNull{}
	}
	resultJSON, err := marshalValue(result)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	hash, err := ir.ValueHash(result)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, result = ?, result_hash = ?, error = ?
		WHERE id = ?
	`, string(status), resultJSON, hash, errText, runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish run %q: %w", runID, sql.ErrNoRows)
	}
	return nil
}

// ReadRun retrieves a run by id.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, seq, name, definition_hash, definition, initial, status, result, result_hash, error
		FROM runs
		WHERE id = ?
	`, id)
	return scanRun(row)
}

// ListRuns returns every run ordered by seq.
// Returns an empty slice (not nil) when the store holds no runs.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	return s.QueryRuns(ctx, RunFilter{})
}

// FindIncompleteRuns returns runs that never recorded an outcome, for
// example because the process stopped while a chain was in flight.
func (s *Store) FindIncompleteRuns(ctx context.Context) ([]Run, error) {
	return s.QueryRuns(ctx, RunFilter{Statuses: []RunStatus{RunRunning}})
}

func (s *Store) queryRuns(ctx context.Context, query string, args ...any) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		run               Run
		def, initial, res string
		status            string
	)
	if err := row.Scan(&run.ID, &run.Seq, &run.Name, &run.DefinitionHash, &def, &initial,
		&status, &res, &run.ResultHash, &run.Error); err != nil {
		if err == sql.ErrNoRows {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	run.Status = RunStatus(status)

	var err error
	if run.Definition, err = unmarshalValue(def); err != nil {
		return Run{}, fmt.Errorf("scan run %q definition: %w", run.ID, err)
	}
	if run.Initial, err = unmarshalValue(initial); err != nil {
		return Run{}, fmt.Errorf("scan run %q initial: %w", run.ID, err)
	}
	if run.Result, err = unmarshalValue(res); err != nil {
		return Run{}, fmt.Errorf("scan run %q result: %w", run.ID, err)
	}
	return run, nil
}
