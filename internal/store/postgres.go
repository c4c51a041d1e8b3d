package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/leadglass/internal/db"
	"github.com/sells-group/leadglass/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"upsert_qualification": `INSERT INTO qualifications (lead_id, company, tier, branch, priority, data, qualified_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (lead_id) DO UPDATE SET
		   company = EXCLUDED.company, tier = EXCLUDED.tier, branch = EXCLUDED.branch,
		   priority = EXCLUDED.priority, data = EXCLUDED.data, qualified_at = EXCLUDED.qualified_at`,
	"insert_outcome": `INSERT INTO outcomes (id, lead_id, company, type, branch, coherence, data, outcome_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
	"get_trial": `SELECT data FROM trials WHERE id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need
// direct query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS qualifications (
	lead_id      TEXT PRIMARY KEY,
	company      TEXT NOT NULL,
	tier         TEXT NOT NULL,
	branch       TEXT NOT NULL DEFAULT '',
	priority     DOUBLE PRECISION NOT NULL DEFAULT 0,
	data         JSONB NOT NULL,
	qualified_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS outcomes (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	lead_id    TEXT NOT NULL,
	company    TEXT NOT NULL,
	type       TEXT NOT NULL,
	branch     TEXT NOT NULL DEFAULT '',
	coherence  DOUBLE PRECISION NOT NULL DEFAULT 0,
	data       JSONB NOT NULL,
	outcome_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS graveyard_nutrients (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	lead_id      TEXT NOT NULL,
	category     TEXT NOT NULL,
	severity     TEXT NOT NULL,
	applied      BOOLEAN NOT NULL DEFAULT false,
	data         JSONB NOT NULL,
	extracted_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS failure_patterns (
	pattern_type TEXT PRIMARY KEY,
	frequency    INTEGER NOT NULL,
	priority     TEXT NOT NULL,
	data         JSONB NOT NULL,
	detected_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS trials (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	status     TEXT NOT NULL,
	data       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS trial_results (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	trial_id     TEXT NOT NULL REFERENCES trials(id),
	winner       TEXT NOT NULL,
	data         JSONB NOT NULL,
	evaluated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS current_standard (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	config     JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS standard_history (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	data        JSONB NOT NULL,
	replaced_at TIMESTAMPTZ NOT NULL
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

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveQualification(ctx context.Context, q *model.Qualification) error {
	data, err := json.Marshal(q)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal qualification")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO qualifications (lead_id, company, tier, branch, priority, data, qualified_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (lead_id) DO UPDATE SET
		   company = EXCLUDED.company, tier = EXCLUDED.tier, branch = EXCLUDED.branch,
		   priority = EXCLUDED.priority, data = EXCLUDED.data, qualified_at = EXCLUDED.qualified_at`,
		q.LeadID, q.CompanyName, string(q.Tier), q.TrialBranch, q.Priority, data, q.QualifiedAt,
	)
	return eris.Wrapf(err, "postgres: save qualification %s", q.LeadID)
}

func (s *PostgresStore) ListQualifications(ctx context.Context, filter QualificationFilter) ([]model.Qualification, error) {
	query := `SELECT data FROM qualifications WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Tier != "" {
		query += fmt.Sprintf(` AND tier = $%d`, argIdx)
		args = append(args, string(filter.Tier))
		argIdx++
	}
	if filter.Branch != "" {
		query += fmt.Sprintf(` AND branch = $%d`, argIdx)
		args = append(args, filter.Branch)
		argIdx++
	}
	query += ` ORDER BY priority DESC, qualified_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list qualifications")
	}
	defer rows.Close()

	var quals []model.Qualification
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan qualification")
		}
		var q model.Qualification
		if err := json.Unmarshal(data, &q); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal qualification")
		}
		quals = append(quals, q)
	}
	return quals, eris.Wrap(rows.Err(), "postgres: list qualifications iterate")
}

func (s *PostgresStore) SaveOutcome(ctx context.Context, o *model.Outcome) error {
	data, err := json.Marshal(o)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal outcome")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO outcomes (id, lead_id, company, type, branch, coherence, data, outcome_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.New().String(), o.LeadID, o.CompanyName, string(o.Type), o.TrialBranch,
		o.CoherenceScore, data, o.OutcomeAt,
	)
	return eris.Wrapf(err, "postgres: save outcome %s", o.LeadID)
}

func (s *PostgresStore) ListOutcomes(ctx context.Context, branch string) ([]model.Outcome, error) {
	query := `SELECT data FROM outcomes`
	args := []any{}
	if branch != "" {
		query += ` WHERE branch = $1`
		args = append(args, branch)
	}
	query += ` ORDER BY outcome_at ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list outcomes")
	}
	defer rows.Close()

	var outcomes []model.Outcome
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan outcome")
		}
		var o model.Outcome
		if err := json.Unmarshal(data, &o); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal outcome")
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, eris.Wrap(rows.Err(), "postgres: list outcomes iterate")
}

// SaveNutrients bulk-inserts via COPY; burying one lead can extract
// several nutrients at once.
func (s *PostgresStore) SaveNutrients(ctx context.Context, nutrients []model.Nutrient) error {
	if len(nutrients) == 0 {
		return nil
	}

	columns := []string{"id", "lead_id", "category", "severity", "applied", "data", "extracted_at"}
	rows := make([][]any, 0, len(nutrients))
	for i := range nutrients {
		n := &nutrients[i]
		data, err := json.Marshal(n)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal nutrient")
		}
		rows = append(rows, []any{
			uuid.New().String(), n.LeadID, string(n.Category), string(n.Severity),
			n.AppliedToStandard, data, n.ExtractedAt,
		})
	}

	_, err := db.CopyFrom(ctx, s.pool, "graveyard_nutrients", columns, rows)
	return eris.Wrap(err, "postgres: save nutrients")
}

func (s *PostgresStore) ListNutrients(ctx context.Context, category model.NutrientCategory) ([]model.Nutrient, error) {
	query := `SELECT applied, data FROM graveyard_nutrients`
	args := []any{}
	if category != "" {
		query += ` WHERE category = $1`
		args = append(args, string(category))
	}
	query += ` ORDER BY extracted_at ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list nutrients")
	}
	defer rows.Close()

	var nutrients []model.Nutrient
	for rows.Next() {
		var applied bool
		var data []byte
		if err := rows.Scan(&applied, &data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan nutrient")
		}
		var n model.Nutrient
		if err := json.Unmarshal(data, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal nutrient")
		}
		n.AppliedToStandard = applied
		nutrients = append(nutrients, n)
	}
	return nutrients, eris.Wrap(rows.Err(), "postgres: list nutrients iterate")
}

func (s *PostgresStore) MarkNutrientsApplied(ctx context.Context, leadID string) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE graveyard_nutrients SET applied = true WHERE lead_id = $1 AND applied = false`,
		leadID,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: mark nutrients applied %s", leadID)
	}
	return int(tag.RowsAffected()), nil
}

// SavePatterns upserts keyed on pattern type; each analysis pass
// recomputes frequencies and overwrites the previous detection.
func (s *PostgresStore) SavePatterns(ctx context.Context, patterns []model.FailurePattern) error {
	if len(patterns) == 0 {
		return nil
	}

	cfg := db.UpsertConfig{
		Table:        "failure_patterns",
		Columns:      []string{"pattern_type", "frequency", "priority", "data", "detected_at"},
		ConflictKeys: []string{"pattern_type"},
	}
	rows := make([][]any, 0, len(patterns))
	for i := range patterns {
		p := &patterns[i]
		data, err := json.Marshal(p)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal pattern")
		}
		rows = append(rows, []any{p.Type, p.Frequency, string(p.Priority), data, p.DetectedAt})
	}

	_, err := db.BulkUpsert(ctx, s.pool, cfg, rows)
	return eris.Wrap(err, "postgres: save patterns")
}

func (s *PostgresStore) ListPatterns(ctx context.Context) ([]model.FailurePattern, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT data FROM failure_patterns ORDER BY frequency DESC, pattern_type ASC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list patterns")
	}
	defer rows.Close()

	var patterns []model.FailurePattern
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan pattern")
		}
		var p model.FailurePattern
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal pattern")
		}
		patterns = append(patterns, p)
	}
	return patterns, eris.Wrap(rows.Err(), "postgres: list patterns iterate")
}

func (s *PostgresStore) SaveTrial(ctx context.Context, t *model.Trial) error {
	data, err := json.Marshal(t)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal trial")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO trials (id, name, status, data, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET
		   name = EXCLUDED.name, status = EXCLUDED.status,
		   data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		t.ID, t.Name, string(t.Status), data, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: save trial %s", t.ID)
}

func (s *PostgresStore) GetTrial(ctx context.Context, trialID string) (*model.Trial, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM trials WHERE id = $1`, trialID,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Errorf("trial not found: %s", trialID)
		}
		return nil, eris.Wrapf(err, "postgres: get trial %s", trialID)
	}

	var t model.Trial
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal trial")
	}
	return &t, nil
}

func (s *PostgresStore) ListTrials(ctx context.Context) ([]model.Trial, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT data FROM trials ORDER BY updated_at DESC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list trials")
	}
	defer rows.Close()

	var trials []model.Trial
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan trial")
		}
		var t model.Trial
		if err := json.Unmarshal(data, &t); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal trial")
		}
		trials = append(trials, t)
	}
	return trials, eris.Wrap(rows.Err(), "postgres: list trials iterate")
}

func (s *PostgresStore) SaveTrialResult(ctx context.Context, r *model.TrialResult) error {
	data, err := json.Marshal(r)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal trial result")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO trial_results (id, trial_id, winner, data, evaluated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		uuid.New().String(), r.TrialID, r.Winner, data, r.EvaluatedAt,
	)
	return eris.Wrapf(err, "postgres: save trial result %s", r.TrialID)
}

func (s *PostgresStore) GetStandard(ctx context.Context) (*model.BranchConfig, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT config FROM current_standard WHERE id = 1`,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get standard")
	}

	var cfg model.BranchConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal standard")
	}
	return &cfg, nil
}

func (s *PostgresStore) SetStandard(ctx context.Context, cfg model.BranchConfig, record *model.StandardRecord) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal standard")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO current_standard (id, config, updated_at) VALUES (1, $1, $2)
		 ON CONFLICT (id) DO UPDATE SET config = EXCLUDED.config, updated_at = EXCLUDED.updated_at`,
		data, time.Now().UTC(),
	); err != nil {
		return eris.Wrap(err, "postgres: set standard")
	}

	if record != nil {
		recordData, err := json.Marshal(record)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal standard record")
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO standard_history (id, data, replaced_at) VALUES ($1, $2, $3)`,
			uuid.New().String(), recordData, record.ReplacedAt,
		); err != nil {
			return eris.Wrap(err, "postgres: save standard record")
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit standard")
}

func (s *PostgresStore) StandardHistory(ctx context.Context) ([]model.StandardRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT data FROM standard_history ORDER BY replaced_at ASC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: standard history")
	}
	defer rows.Close()

	var records []model.StandardRecord
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan standard record")
		}
		var r model.StandardRecord
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal standard record")
		}
		records = append(records, r)
	}
	return records, eris.Wrap(rows.Err(), "postgres: standard history iterate")
}
