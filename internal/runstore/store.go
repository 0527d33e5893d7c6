package runstore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hochfrequenz/deep-research-orchestrator/internal/domain"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a run id or version does not exist
var ErrNotFound = errors.New("run not found")

// Store provides SQLite-backed persistence for versioned research runs.
// It is the sole writer of durable state and the source of truth when a
// run is reloaded by id.
type Store struct {
	db *sql.DB
}

// New creates a Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, err
	}

	// Run migrations
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun persists a run's prompt and report for its version and merges
// the version summary into the run's index. latest_version is recomputed
// as the maximum version present.
func (s *Store) SaveRun(run *domain.Run) error {
	usageJSON, err := marshalNullable(run.Usage)
	if err != nil {
		return err
	}
	inputsJSON, err := marshalNullable(run.Inputs)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Topic sticks to the first save unless real inputs arrive later
	_, err = tx.Exec(`
		INSERT INTO runs (run_id, topic, created_at, latest_version)
		VALUES (?, ?, ?, 0)
		ON CONFLICT(run_id) DO UPDATE SET
			topic = CASE WHEN excluded.topic != '' THEN excluded.topic ELSE runs.topic END
	`, run.RunID, run.Topic(), run.CreatedAt)
	if err != nil {
		return err
	}

	var report sql.NullString
	if run.HasReport {
		report = sql.NullString{String: run.ReportText, Valid: true}
	}

	_, err = tx.Exec(`
		INSERT INTO versions (run_id, version, job_id, status, feedback, previous_job_id, usage, inputs, prompt, report, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, version) DO UPDATE SET
			job_id = excluded.job_id,
			status = excluded.status,
			feedback = excluded.feedback,
			previous_job_id = excluded.previous_job_id,
			usage = excluded.usage,
			inputs = excluded.inputs,
			prompt = excluded.prompt,
			report = excluded.report
	`,
		run.RunID,
		run.Version,
		run.JobID,
		string(run.Status),
		run.Feedback,
		run.PreviousJobID,
		usageJSON,
		inputsJSON,
		run.PromptText,
		report,
		run.CreatedAt,
	)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		UPDATE runs SET latest_version = (SELECT MAX(version) FROM versions WHERE run_id = ?)
		WHERE run_id = ?
	`, run.RunID, run.RunID)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// LoadLatest loads the most recent version of a run
func (s *Store) LoadLatest(runID string) (*domain.Run, error) {
	var latest int
	err := s.db.QueryRow(`SELECT latest_version FROM runs WHERE run_id = ?`, runID).Scan(&latest)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.LoadVersion(runID, latest)
}

// LoadVersion loads a specific version of a run. A missing report blob
// yields a run without a report; the run still exists mid-poll.
func (s *Store) LoadVersion(runID string, version int) (*domain.Run, error) {
	row := s.db.QueryRow(`
		SELECT run_id, version, job_id, status, feedback, previous_job_id, usage, inputs, prompt, report, created_at
		FROM versions WHERE run_id = ? AND version = ?
	`, runID, version)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return run, err
}

// LoadMetadata loads the version index for a run id
func (s *Store) LoadMetadata(runID string) (*domain.RunMetadata, error) {
	meta := &domain.RunMetadata{}
	err := s.db.QueryRow(`
		SELECT run_id, topic, created_at, latest_version FROM runs WHERE run_id = ?
	`, runID).Scan(&meta.RunID, &meta.Topic, &meta.CreatedAt, &meta.LatestVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`
		SELECT version, job_id, status, feedback, previous_job_id, usage, inputs, created_at
		FROM versions WHERE run_id = ? ORDER BY version
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var info domain.VersionInfo
		var jobID, feedback, prevJobID sql.NullString
		var usageJSON, inputsJSON sql.NullString
		var status string

		if err := rows.Scan(&info.Version, &jobID, &status, &feedback, &prevJobID, &usageJSON, &inputsJSON, &info.CreatedAt); err != nil {
			return nil, err
		}
		info.JobID = jobID.String
		info.Status = domain.Status(status)
		info.Feedback = feedback.String
		info.PreviousJobID = prevJobID.String
		if err := unmarshalNullable(usageJSON, &info.Usage); err != nil {
			return nil, err
		}
		if err := unmarshalNullable(inputsJSON, &info.Inputs); err != nil {
			return nil, err
		}
		meta.Versions = append(meta.Versions, info)
	}

	return meta, rows.Err()
}

// ListAll returns metadata for every known run, newest first
func (s *Store) ListAll() ([]*domain.RunMetadata, error) {
	rows, err := s.db.Query(`SELECT run_id FROM runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var metas []*domain.RunMetadata
	for _, id := range ids {
		meta, err := s.LoadMetadata(id)
		if err != nil {
			return nil, err
		}
		metas = append(metas, meta)
	}
	return metas, nil
}

// SaveSources stores the extracted source map for a version
func (s *Store) SaveSources(runID string, version int, sources domain.SourceMap) error {
	data, err := json.Marshal(sources)
	if err != nil {
		return err
	}

	res, err := s.db.Exec(`UPDATE versions SET sources = ? WHERE run_id = ? AND version = ?`,
		string(data), runID, version)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// LoadSources loads the source map for a version, or nil when none was saved
func (s *Store) LoadSources(runID string, version int) (domain.SourceMap, error) {
	var data sql.NullString
	err := s.db.QueryRow(`SELECT sources FROM versions WHERE run_id = ? AND version = ?`,
		runID, version).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !data.Valid {
		return nil, nil
	}

	var sources domain.SourceMap
	if err := json.Unmarshal([]byte(data.String), &sources); err != nil {
		return nil, err
	}
	return sources, nil
}

func scanRun(row *sql.Row) (*domain.Run, error) {
	var run domain.Run
	var jobID, feedback, prevJobID, report sql.NullString
	var usageJSON, inputsJSON sql.NullString
	var status string
	var createdAt time.Time

	err := row.Scan(&run.RunID, &run.Version, &jobID, &status, &feedback, &prevJobID,
		&usageJSON, &inputsJSON, &run.PromptText, &report, &createdAt)
	if err != nil {
		return nil, err
	}

	run.JobID = jobID.String
	run.Status = domain.Status(status)
	run.Feedback = feedback.String
	run.PreviousJobID = prevJobID.String
	run.CreatedAt = createdAt
	if report.Valid {
		run.SetReport(report.String)
	}
	if err := unmarshalNullable(usageJSON, &run.Usage); err != nil {
		return nil, err
	}
	if err := unmarshalNullable(inputsJSON, &run.Inputs); err != nil {
		return nil, err
	}

	return &run, nil
}

func marshalNullable[T any](v *T) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func unmarshalNullable[T any](data sql.NullString, out **T) error {
	if !data.Valid || data.String == "" || data.String == "null" {
		return nil
	}
	var v T
	if err := json.Unmarshal([]byte(data.String), &v); err != nil {
		return err
	}
	*out = &v
	return nil
}
