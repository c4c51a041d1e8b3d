package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/leadglass/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS qualifications (
	lead_id      TEXT PRIMARY KEY,
	company      TEXT NOT NULL,
	tier         TEXT NOT NULL,
	branch       TEXT NOT NULL DEFAULT '',
	priority     REAL NOT NULL DEFAULT 0,
	data         TEXT NOT NULL,
	qualified_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS outcomes (
	id         TEXT PRIMARY KEY,
	lead_id    TEXT NOT NULL,
	company    TEXT NOT NULL,
	type       TEXT NOT NULL,
	branch     TEXT NOT NULL DEFAULT '',
	coherence  REAL NOT NULL DEFAULT 0,
	data       TEXT NOT NULL,
	outcome_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS graveyard_nutrients (
	id           TEXT PRIMARY KEY,
	lead_id      TEXT NOT NULL,
	category     TEXT NOT NULL,
	severity     TEXT NOT NULL,
	applied      INTEGER NOT NULL DEFAULT 0,
	data         TEXT NOT NULL,
	extracted_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS failure_patterns (
	pattern_type TEXT PRIMARY KEY,
	frequency    INTEGER NOT NULL,
	priority     TEXT NOT NULL,
	data         TEXT NOT NULL,
	detected_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS trials (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	status     TEXT NOT NULL,
	data       TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS trial_results (
	id           TEXT PRIMARY KEY,
	trial_id     TEXT NOT NULL REFERENCES trials(id),
	winner       TEXT NOT NULL,
	data         TEXT NOT NULL,
	evaluated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS current_standard (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	config     TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS standard_history (
	id          TEXT PRIMARY KEY,
	data        TEXT NOT NULL,
	replaced_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_qualifications_tier ON qualifications(tier);
CREATE INDEX IF NOT EXISTS idx_qualifications_branch ON qualifications(branch);
CREATE INDEX IF NOT EXISTS idx_outcomes_lead_id ON outcomes(lead_id);
CREATE INDEX IF NOT EXISTS idx_outcomes_type ON outcomes(type);
CREATE INDEX IF NOT EXISTS idx_outcomes_branch ON outcomes(branch);
CREATE INDEX IF NOT EXISTS idx_nutrients_lead_id ON graveyard_nutrients(lead_id);
CREATE INDEX IF NOT EXISTS idx_nutrients_category ON graveyard_nutrients(category);
CREATE INDEX IF NOT EXISTS idx_trial_results_trial_id ON trial_results(trial_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveQualification(ctx context.Context, q *model.Qualification) error {
	data, err := json.Marshal(q)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal qualification")
	}

	// Requalifying a lead replaces the previous reading.
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO qualifications (lead_id, company, tier, branch, priority, data, qualified_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (lead_id) DO UPDATE SET
		   company = excluded.company, tier = excluded.tier, branch = excluded.branch,
		   priority = excluded.priority, data = excluded.data, qualified_at = excluded.qualified_at`,
		q.LeadID, q.CompanyName, string(q.Tier), q.TrialBranch, q.Priority, string(data), q.QualifiedAt,
	)
	return eris.Wrapf(err, "sqlite: save qualification %s", q.LeadID)
}

func (s *SQLiteStore) ListQualifications(ctx context.Context, filter QualificationFilter) ([]model.Qualification, error) {
	query := `SELECT data FROM qualifications WHERE 1=1`
	var args []any

	if filter.Tier != "" {
		query += ` AND tier = ?`
		args = append(args, string(filter.Tier))
	}
	if filter.Branch != "" {
		query += ` AND branch = ?`
		args = append(args, filter.Branch)
	}
	query += ` ORDER BY priority DESC, qualified_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list qualifications")
	}
	defer rows.Close()

	var quals []model.Qualification
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan qualification")
		}
		var q model.Qualification
		if err := json.Unmarshal([]byte(data), &q); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal qualification")
		}
		quals = append(quals, q)
	}
	return quals, eris.Wrap(rows.Err(), "sqlite: list qualifications iterate")
}

func (s *SQLiteStore) SaveOutcome(ctx context.Context, o *model.Outcome) error {
	data, err := json.Marshal(o)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal outcome")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO outcomes (id, lead_id, company, type, branch, coherence, data, outcome_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), o.LeadID, o.CompanyName, string(o.Type), o.TrialBranch,
		o.CoherenceScore, string(data), o.OutcomeAt,
	)
	return eris.Wrapf(err, "sqlite: save outcome %s", o.LeadID)
}

func (s *SQLiteStore) ListOutcomes(ctx context.Context, branch string) ([]model.Outcome, error) {
	query := `SELECT data FROM outcomes`
	var args []any
	if branch != "" {
		query += ` WHERE branch = ?`
		args = append(args, branch)
	}
	query += ` ORDER BY outcome_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list outcomes")
	}
	defer rows.Close()

	var outcomes []model.Outcome
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan outcome")
		}
		var o model.Outcome
		if err := json.Unmarshal([]byte(data), &o); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal outcome")
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, eris.Wrap(rows.Err(), "sqlite: list outcomes iterate")
}

func (s *SQLiteStore) SaveNutrients(ctx context.Context, nutrients []model.Nutrient) error {
	if len(nutrients) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback()

	for i := range nutrients {
		n := &nutrients[i]
		data, err := json.Marshal(n)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal nutrient")
		}
		applied := 0
		if n.AppliedToStandard {
			applied = 1
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO graveyard_nutrients (id, lead_id, category, severity, applied, data, extracted_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			uuid.New().String(), n.LeadID, string(n.Category), string(n.Severity),
			applied, string(data), n.ExtractedAt,
		); err != nil {
			return eris.Wrapf(err, "sqlite: save nutrient for %s", n.LeadID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit nutrients")
}

func (s *SQLiteStore) ListNutrients(ctx context.Context, category model.NutrientCategory) ([]model.Nutrient, error) {
	query := `SELECT applied, data FROM graveyard_nutrients`
	var args []any
	if category != "" {
		query += ` WHERE category = ?`
		args = append(args, string(category))
	}
	query += ` ORDER BY extracted_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list nutrients")
	}
	defer rows.Close()

	var nutrients []model.Nutrient
	for rows.Next() {
		var applied int
		var data string
		if err := rows.Scan(&applied, &data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan nutrient")
		}
		var n model.Nutrient
		if err := json.Unmarshal([]byte(data), &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal nutrient")
		}
		// The applied column is authoritative; MarkNutrientsApplied
		// updates it without rewriting the JSON blob.
		n.AppliedToStandard = applied != 0
		nutrients = append(nutrients, n)
	}
	return nutrients, eris.Wrap(rows.Err(), "sqlite: list nutrients iterate")
}

func (s *SQLiteStore) MarkNutrientsApplied(ctx context.Context, leadID string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE graveyard_nutrients SET applied = 1 WHERE lead_id = ? AND applied = 0`,
		leadID,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: mark nutrients applied %s", leadID)
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) SavePatterns(ctx context.Context, patterns []model.FailurePattern) error {
	if len(patterns) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback()

	for i := range patterns {
		p := &patterns[i]
		data, err := json.Marshal(p)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal pattern")
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO failure_patterns (pattern_type, frequency, priority, data, detected_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (pattern_type) DO UPDATE SET
			   frequency = excluded.frequency, priority = excluded.priority,
			   data = excluded.data, detected_at = excluded.detected_at`,
			p.Type, p.Frequency, string(p.Priority), string(data), p.DetectedAt,
		); err != nil {
			return eris.Wrapf(err, "sqlite: save pattern %s", p.Type)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit patterns")
}

func (s *SQLiteStore) ListPatterns(ctx context.Context) ([]model.FailurePattern, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM failure_patterns ORDER BY frequency DESC, pattern_type ASC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list patterns")
	}
	defer rows.Close()

	var patterns []model.FailurePattern
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan pattern")
		}
		var p model.FailurePattern
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal pattern")
		}
		patterns = append(patterns, p)
	}
	return patterns, eris.Wrap(rows.Err(), "sqlite: list patterns iterate")
}

func (s *SQLiteStore) SaveTrial(ctx context.Context, t *model.Trial) error {
	data, err := json.Marshal(t)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal trial")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO trials (id, name, status, data, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   name = excluded.name, status = excluded.status,
		   data = excluded.data, updated_at = excluded.updated_at`,
		t.ID, t.Name, string(t.Status), string(data), time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: save trial %s", t.ID)
}

func (s *SQLiteStore) GetTrial(ctx context.Context, trialID string) (*model.Trial, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM trials WHERE id = ?`, trialID,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("trial not found: %s", trialID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get trial %s", trialID)
	}

	var t model.Trial
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal trial")
	}
	return &t, nil
}

func (s *SQLiteStore) ListTrials(ctx context.Context) ([]model.Trial, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM trials ORDER BY updated_at DESC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list trials")
	}
	defer rows.Close()

	var trials []model.Trial
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan trial")
		}
		var t model.Trial
		if err := json.Unmarshal([]byte(data), &t); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal trial")
		}
		trials = append(trials, t)
	}
	return trials, eris.Wrap(rows.Err(), "sqlite: list trials iterate")
}

func (s *SQLiteStore) SaveTrialResult(ctx context.Context, r *model.TrialResult) error {
	data, err := json.Marshal(r)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal trial result")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO trial_results (id, trial_id, winner, data, evaluated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		uuid.New().String(), r.TrialID, r.Winner, string(data), r.EvaluatedAt,
	)
	return eris.Wrapf(err, "sqlite: save trial result %s", r.TrialID)
}

func (s *SQLiteStore) GetStandard(ctx context.Context) (*model.BranchConfig, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT config FROM current_standard WHERE id = 1`,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get standard")
	}

	var cfg model.BranchConfig
	if err := json.Unmarshal([]byte(data), &cfg); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal standard")
	}
	return &cfg, nil
}

func (s *SQLiteStore) SetStandard(ctx context.Context, cfg model.BranchConfig, record *model.StandardRecord) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal standard")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO current_standard (id, config, updated_at) VALUES (1, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET config = excluded.config, updated_at = excluded.updated_at`,
		string(data), time.Now().UTC(),
	); err != nil {
		return eris.Wrap(err, "sqlite: set standard")
	}

	if record != nil {
		recordData, err := json.Marshal(record)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal standard record")
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO standard_history (id, data, replaced_at) VALUES (?, ?, ?)`,
			uuid.New().String(), string(recordData), record.ReplacedAt,
		); err != nil {
			return eris.Wrap(err, "sqlite: save standard record")
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit standard")
}

func (s *SQLiteStore) StandardHistory(ctx context.Context) ([]model.StandardRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM standard_history ORDER BY replaced_at ASC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: standard history")
	}
	defer rows.Close()

	var records []model.StandardRecord
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan standard record")
		}
		var r model.StandardRecord
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal standard record")
		}
		records = append(records, r)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: standard history iterate")
}
