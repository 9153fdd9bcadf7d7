// Package store persists TailoringArtifacts to a local SQLite database so
// a run's full output, including its trace, can be retrieved or audited
// after the fact.
package store

import (
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/harlowdata/tailorcore/pkg/domain"
)

// Store wraps a SQLite connection holding tailoring artifacts.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path, creating parent
// directories as needed, and ensures the schema exists.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create store directory")
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, errors.Wrap(err, "failed to open sqlite database")
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to initialize schema")
	}
	return s, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS artifacts (
		job_id TEXT PRIMARY KEY,
		company_name TEXT NOT NULL,
		role_title TEXT NOT NULL,
		tier TEXT NOT NULL,
		fit_score REAL NOT NULL,
		composite_score REAL NOT NULL,
		pass INTEGER NOT NULL,
		payload_json TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_artifacts_company ON artifacts(company_name);
	CREATE INDEX IF NOT EXISTS idx_artifacts_created ON artifacts(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Save upserts a TailoringArtifact, overwriting any prior run for the
// same JobID.
func (s *Store) Save(artifact domain.TailoringArtifact) error {
	payload, err := json.Marshal(artifact)
	if err != nil {
		return errors.Wrap(err, "failed to marshal artifact")
	}

	createdAt := artifact.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = s.db.Exec(`
		INSERT INTO artifacts (job_id, company_name, role_title, tier, fit_score, composite_score, pass, payload_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET
			company_name = excluded.company_name,
			role_title = excluded.role_title,
			tier = excluded.tier,
			fit_score = excluded.fit_score,
			composite_score = excluded.composite_score,
			pass = excluded.pass,
			payload_json = excluded.payload_json,
			created_at = excluded.created_at
	`,
		artifact.JD.JobID, artifact.JD.CompanyName, artifact.JD.RoleTitle, string(artifact.Tier),
		artifact.JD.FitScore, artifact.Grade.Composite, boolToInt(artifact.Grade.Pass), string(payload), createdAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to upsert artifact")
	}
	return nil
}

// Get retrieves the artifact stored for jobID.
func (s *Store) Get(jobID string) (domain.TailoringArtifact, error) {
	var payload string
	row := s.db.QueryRow(`SELECT payload_json FROM artifacts WHERE job_id = ?`, jobID)
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.TailoringArtifact{}, errors.Errorf("no artifact found for job %s", jobID)
		}
		return domain.TailoringArtifact{}, errors.Wrap(err, "failed to query artifact")
	}

	var artifact domain.TailoringArtifact
	if err := json.Unmarshal([]byte(payload), &artifact); err != nil {
		return domain.TailoringArtifact{}, errors.Wrap(err, "failed to unmarshal artifact")
	}
	return artifact, nil
}

// ListByCompany returns every stored artifact for a given company, most
// recent first.
func (s *Store) ListByCompany(company string) ([]domain.TailoringArtifact, error) {
	rows, err := s.db.Query(`SELECT payload_json FROM artifacts WHERE company_name = ? ORDER BY created_at DESC`, company)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query artifacts by company")
	}
	defer rows.Close()

	var out []domain.TailoringArtifact
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, errors.Wrap(err, "failed to scan artifact row")
		}
		var artifact domain.TailoringArtifact
		if err := json.Unmarshal([]byte(payload), &artifact); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal artifact")
		}
		out = append(out, artifact)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
