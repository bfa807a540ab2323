package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/journal-harness/internal/db"
	"github.com/sells-group/journal-harness/internal/model"
	"github.com/sells-group/journal-harness/internal/preset"
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

// preparedStatements are prepared on each new connection. They cover the
// per-call run updates issued while experiments execute.
var preparedStatements = map[string]string{
	"get_run":          `SELECT ` + runColumns + ` FROM experiment_runs WHERE id = $1`,
	"start_run":        `UPDATE experiment_runs SET status = $1, started_at = $2, entries_used = $3 WHERE id = $4 AND status = $5`,
	"update_run_usage": `UPDATE experiment_runs SET input_tokens = $1, output_tokens = $2, tokens_used = $3, estimated_cost = $4 WHERE id = $5 AND status = $6`,
	"finish_run":       `UPDATE experiment_runs SET status = $1, error = $2, completed_at = $3 WHERE id = $4 AND status IN ($5, $6)`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

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

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				// Tables may not exist before the first migrate.
				var pgErr *pgconn.PgError
				if errors.As(err, &pgErr) && pgErr.Code == "42P01" {
					return nil
				}
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

const postgresMigration = `
CREATE TABLE IF NOT EXISTS experiment_runs (
	seq             BIGSERIAL,
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	batch_id        TEXT NOT NULL DEFAULT '',
	provider        TEXT NOT NULL,
	model           TEXT NOT NULL,
	temperature     DOUBLE PRECISION NOT NULL DEFAULT 0,
	prompt_version  TEXT NOT NULL DEFAULT '',
	athlete_id      TEXT NOT NULL,
	persona         TEXT NOT NULL,
	experiment_type TEXT NOT NULL,
	entries_used    INTEGER NOT NULL DEFAULT 0,
	entry_order     TEXT NOT NULL,
	needle_fact     TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL DEFAULT 'pending',
	error           TEXT NOT NULL DEFAULT '',
	input_tokens    INTEGER NOT NULL DEFAULT 0,
	output_tokens   INTEGER NOT NULL DEFAULT 0,
	tokens_used     INTEGER NOT NULL DEFAULT 0,
	estimated_cost  DOUBLE PRECISION NOT NULL DEFAULT 0,
	deleted         BOOLEAN NOT NULL DEFAULT false,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	started_at      TIMESTAMPTZ,
	completed_at    TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS experiment_claims (
	seq             BIGSERIAL,
	id              TEXT PRIMARY KEY,
	run_id          TEXT NOT NULL REFERENCES experiment_runs(id) ON DELETE CASCADE,
	ordinal         INTEGER NOT NULL,
	text            TEXT NOT NULL,
	supported       BOOLEAN NOT NULL DEFAULT false,
	persona         TEXT NOT NULL,
	variant         TEXT NOT NULL DEFAULT 'full',
	claim_type      TEXT NOT NULL DEFAULT '',
	confidence      DOUBLE PRECISION NOT NULL DEFAULT 0,
	referenced_date TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS claim_receipts (
	id         TEXT PRIMARY KEY,
	claim_id   TEXT NOT NULL REFERENCES experiment_claims(id) ON DELETE CASCADE,
	rank       INTEGER NOT NULL,
	entry_id   TEXT NOT NULL,
	field      TEXT NOT NULL,
	snippet    TEXT NOT NULL,
	entry_date TIMESTAMPTZ NOT NULL,
	confidence DOUBLE PRECISION NOT NULL
);

CREATE TABLE IF NOT EXISTS position_tests (
	id          TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL REFERENCES experiment_runs(id) ON DELETE CASCADE,
	position    TEXT NOT NULL,
	needle_fact TEXT NOT NULL,
	found       BOOLEAN NOT NULL DEFAULT false,
	confidence  DOUBLE PRECISION NOT NULL DEFAULT 0,
	snippet     TEXT NOT NULL DEFAULT '',
	UNIQUE (run_id, position)
);

CREATE TABLE IF NOT EXISTS experiment_presets (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL UNIQUE,
	description TEXT NOT NULL DEFAULT '',
	config      JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS journal_entries (
	id                 TEXT PRIMARY KEY,
	athlete_id         TEXT NOT NULL,
	entry_date         TIMESTAMPTZ NOT NULL,
	emotional_state    TEXT NOT NULL DEFAULT '',
	session_reflection TEXT NOT NULL DEFAULT '',
	mental_barriers    TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON experiment_runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_batch ON experiment_runs(batch_id);
CREATE INDEX IF NOT EXISTS idx_runs_athlete ON experiment_runs(athlete_id);
CREATE INDEX IF NOT EXISTS idx_claims_run ON experiment_claims(run_id);
CREATE INDEX IF NOT EXISTS idx_receipts_claim ON claim_receipts(claim_id);
CREATE INDEX IF NOT EXISTS idx_position_tests_run ON position_tests(run_id);
CREATE INDEX IF NOT EXISTS idx_journal_athlete_date ON journal_entries(athlete_id, entry_date DESC);
`

// Ping verifies the connection to the database.
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

func (s *PostgresStore) CreateRun(ctx context.Context, run *model.ExperimentRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	run.Status = model.StatusPending
	run.CreatedAt = time.Now().UTC()
	run.StartedAt, run.CompletedAt = nil, nil

	_, err := s.pool.Exec(ctx,
		`INSERT INTO experiment_runs (id, batch_id, provider, model, temperature, prompt_version, athlete_id,
			persona, experiment_type, entries_used, entry_order, needle_fact, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		run.ID, run.BatchID, run.Provider, run.Model, run.Temperature, run.PromptVersion, run.AthleteID,
		string(run.Persona), string(run.Type), run.EntriesUsed, string(run.EntryOrder), run.NeedleFact,
		string(run.Status), run.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert run %s", run.ID)
}

func (s *PostgresStore) StartRun(ctx context.Context, runID string, entriesUsed int) error {
	tag, err := s.pool.Exec(ctx, preparedStatements["start_run"],
		string(model.StatusRunning), time.Now().UTC(), entriesUsed, runID, string(model.StatusPending))
	if err != nil {
		return eris.Wrapf(err, "postgres: start run %s", runID)
	}
	return s.checkTransition(ctx, tag, runID, model.StatusRunning)
}

func (s *PostgresStore) UpdateRunUsage(ctx context.Context, runID string, usage RunUsage) error {
	tag, err := s.pool.Exec(ctx, preparedStatements["update_run_usage"],
		usage.InputTokens, usage.OutputTokens, usage.InputTokens+usage.OutputTokens, usage.EstimatedCost,
		runID, string(model.StatusRunning))
	if err != nil {
		return eris.Wrapf(err, "postgres: update run usage %s", runID)
	}
	return s.checkTransition(ctx, tag, runID, "usage update")
}

func (s *PostgresStore) FinishRun(ctx context.Context, runID string, status model.ExperimentStatus, errMsg string) error {
	if !status.Terminal() {
		return eris.Wrapf(ErrInvalidTransition, "finish run %s with %s", runID, status)
	}
	tag, err := s.pool.Exec(ctx, preparedStatements["finish_run"],
		string(status), errMsg, time.Now().UTC(), runID, string(model.StatusPending), string(model.StatusRunning))
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	return s.checkTransition(ctx, tag, runID, status)
}

func (s *PostgresStore) checkTransition(ctx context.Context, tag pgconn.CommandTag, runID string, to any) error {
	if tag.RowsAffected() > 0 {
		return nil
	}
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	return eris.Wrapf(ErrInvalidTransition, "run %s is %s, cannot apply %v", runID, run.Status, to)
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.ExperimentRun, error) {
	r, err := scanPgRun(s.pool.QueryRow(ctx, preparedStatements["get_run"], runID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("run", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.ExperimentRun, error) {
	query := `SELECT ` + runColumns + ` FROM experiment_runs WHERE 1=1`
	var args []any
	argN := 1
	add := func(clause string, v any) {
		query += fmt.Sprintf(clause, argN)
		args = append(args, v)
		argN++
	}

	if !filter.IncludeDeleted {
		query += ` AND deleted = false`
	}
	if filter.Status != "" {
		add(` AND status = $%d`, string(filter.Status))
	}
	if filter.Type != "" {
		add(` AND experiment_type = $%d`, string(filter.Type))
	}
	if filter.Provider != "" {
		add(` AND provider = $%d`, filter.Provider)
	}
	if filter.AthleteID != "" {
		add(` AND athlete_id = $%d`, filter.AthleteID)
	}
	if filter.BatchID != "" {
		add(` AND batch_id = $%d ORDER BY created_at ASC, seq ASC`, filter.BatchID)
	} else {
		query += ` ORDER BY created_at DESC, seq DESC`
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	add(` LIMIT $%d`, limit)
	if filter.Offset > 0 {
		add(` OFFSET $%d`, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.ExperimentRun
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) SoftDeleteRun(ctx context.Context, runID string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE experiment_runs SET deleted = true WHERE id = $1`, runID)
	if err != nil {
		return eris.Wrapf(err, "postgres: soft delete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return notFound("run", runID)
	}
	return nil
}

func (s *PostgresStore) DeleteRun(ctx context.Context, runID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM experiment_runs WHERE id = $1`, runID)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return notFound("run", runID)
	}
	return nil
}

func (s *PostgresStore) SaveClaims(ctx context.Context, runID string, claims []model.ClaimWithReceipts) error {
	if len(claims) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin save claims")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	batch := &pgx.Batch{}
	for i := range claims {
		c := &claims[i].Claim
		c.ID = uuid.NewString()
		c.RunID = runID
		batch.Queue(
			`INSERT INTO experiment_claims (id, run_id, ordinal, text, supported, persona, variant, claim_type,
				confidence, referenced_date) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			c.ID, runID, c.Ordinal, c.Text, c.Supported, string(c.Persona), c.Variant, c.ClaimType,
			c.Confidence, c.ReferencedDate,
		)
		for rank := range claims[i].Receipts {
			rc := &claims[i].Receipts[rank]
			rc.ID = uuid.NewString()
			rc.ClaimID = c.ID
			batch.Queue(
				`INSERT INTO claim_receipts (id, claim_id, rank, entry_id, field, snippet, entry_date, confidence)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				rc.ID, c.ID, rank, rc.EntryID, rc.Field, rc.Snippet, rc.EntryDate.UTC(), rc.Confidence,
			)
		}
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return eris.Wrapf(err, "postgres: insert claims for run %s", runID)
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit claims")
}

func (s *PostgresStore) ListClaims(ctx context.Context, runID string) ([]model.ClaimWithReceipts, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, run_id, ordinal, text, supported, persona, variant, claim_type, confidence, referenced_date
		 FROM experiment_claims WHERE run_id = $1 ORDER BY ordinal, seq`, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list claims %s", runID)
	}

	var out []model.ClaimWithReceipts
	index := make(map[string]int)
	for rows.Next() {
		var c model.ExperimentClaim
		if err := rows.Scan(&c.ID, &c.RunID, &c.Ordinal, &c.Text, &c.Supported, &c.Persona, &c.Variant,
			&c.ClaimType, &c.Confidence, &c.ReferencedDate); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "postgres: scan claim")
		}
		index[c.ID] = len(out)
		out = append(out, model.ClaimWithReceipts{Claim: c, Receipts: []model.ClaimReceipt{}})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: list claims iterate")
	}

	rrows, err := s.pool.Query(ctx,
		`SELECT r.id, r.claim_id, r.entry_id, r.field, r.snippet, r.entry_date, r.confidence
		 FROM claim_receipts r JOIN experiment_claims c ON c.id = r.claim_id
		 WHERE c.run_id = $1 ORDER BY r.claim_id, r.rank`, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list receipts %s", runID)
	}
	defer rrows.Close()

	for rrows.Next() {
		var r model.ClaimReceipt
		if err := rrows.Scan(&r.ID, &r.ClaimID, &r.EntryID, &r.Field, &r.Snippet, &r.EntryDate, &r.Confidence); err != nil {
			return nil, eris.Wrap(err, "postgres: scan receipt")
		}
		if i, ok := index[r.ClaimID]; ok {
			out[i].Receipts = append(out[i].Receipts, r)
		}
	}
	return out, eris.Wrap(rrows.Err(), "postgres: list receipts iterate")
}

func (s *PostgresStore) SavePositionTest(ctx context.Context, pt *model.PositionTest) error {
	if pt.ID == "" {
		pt.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO position_tests (id, run_id, position, needle_fact, found, confidence, snippet)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		pt.ID, pt.RunID, string(pt.Position), pt.NeedleFact, pt.Found, pt.Confidence, pt.Snippet,
	)
	return eris.Wrapf(err, "postgres: insert position test for run %s", pt.RunID)
}

func (s *PostgresStore) ListPositionTests(ctx context.Context, runID string) ([]model.PositionTest, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, run_id, position, needle_fact, found, confidence, snippet FROM position_tests
		 WHERE run_id = $1 ORDER BY CASE position WHEN 'start' THEN 0 WHEN 'middle' THEN 1 ELSE 2 END`, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list position tests %s", runID)
	}
	defer rows.Close()

	var out []model.PositionTest
	for rows.Next() {
		var pt model.PositionTest
		if err := rows.Scan(&pt.ID, &pt.RunID, &pt.Position, &pt.NeedleFact, &pt.Found, &pt.Confidence, &pt.Snippet); err != nil {
			return nil, eris.Wrap(err, "postgres: scan position test")
		}
		out = append(out, pt)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list position tests iterate")
}

func (s *PostgresStore) SavePreset(ctx context.Context, p *model.ExperimentPreset) error {
	raw, err := preset.Encode(p.Config)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	saved, err := scanPgPreset(s.pool.QueryRow(ctx,
		`INSERT INTO experiment_presets (id, name, description, config, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)
		 ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description, config = EXCLUDED.config,
			updated_at = EXCLUDED.updated_at
		 RETURNING id, name, description, config, created_at, updated_at`,
		uuid.NewString(), p.Name, p.Description, raw, now,
	))
	if err != nil {
		return eris.Wrapf(err, "postgres: save preset %s", p.Name)
	}
	*p = *saved
	return nil
}

func (s *PostgresStore) GetPreset(ctx context.Context, idOrName string) (*model.ExperimentPreset, error) {
	p, err := scanPgPreset(s.pool.QueryRow(ctx,
		`SELECT id, name, description, config, created_at, updated_at FROM experiment_presets
		 WHERE id = $1 OR name = $1 LIMIT 1`, idOrName))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("preset", idOrName)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get preset %s", idOrName)
	}
	return p, nil
}

func (s *PostgresStore) ListPresets(ctx context.Context) ([]model.ExperimentPreset, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, description, config, created_at, updated_at FROM experiment_presets ORDER BY name`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list presets")
	}
	defer rows.Close()

	var out []model.ExperimentPreset
	for rows.Next() {
		p, err := scanPgPreset(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan preset")
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list presets iterate")
}

func (s *PostgresStore) DeletePreset(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM experiment_presets WHERE id = $1 OR name = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete preset %s", id)
	}
	if tag.RowsAffected() == 0 {
		return notFound("preset", id)
	}
	return nil
}

var journalUpsert = db.UpsertConfig{
	Table:        "journal_entries",
	Columns:      []string{"id", "athlete_id", "entry_date", "emotional_state", "session_reflection", "mental_barriers"},
	ConflictKeys: []string{"id"},
}

func (s *PostgresStore) ImportJournal(ctx context.Context, entries []model.JournalEntry) (int, error) {
	rows := make([][]any, 0, len(entries))
	for _, e := range entries {
		id := e.ID
		if id == "" {
			id = uuid.NewString()
		}
		rows = append(rows, []any{id, e.AthleteID, e.EntryDate.UTC(), e.EmotionalState, e.SessionReflection, e.MentalBarriers})
	}
	n, err := db.BulkUpsert(ctx, s.pool, journalUpsert, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: import journal")
	}
	return int(n), nil
}

func (s *PostgresStore) ListJournal(ctx context.Context, athleteID string) ([]model.JournalEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, athlete_id, entry_date, emotional_state, session_reflection, mental_barriers
		 FROM journal_entries WHERE athlete_id = $1 ORDER BY entry_date DESC, id`, athleteID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list journal %s", athleteID)
	}
	defer rows.Close()

	out := []model.JournalEntry{}
	for rows.Next() {
		var e model.JournalEntry
		if err := rows.Scan(&e.ID, &e.AthleteID, &e.EntryDate, &e.EmotionalState, &e.SessionReflection, &e.MentalBarriers); err != nil {
			return nil, eris.Wrap(err, "postgres: scan journal entry")
		}
		e.EntryDate = e.EntryDate.UTC()
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list journal iterate")
}

func scanPgRun(row pgx.Row) (*model.ExperimentRun, error) {
	var r model.ExperimentRun
	if err := row.Scan(&r.ID, &r.BatchID, &r.Provider, &r.Model, &r.Temperature, &r.PromptVersion, &r.AthleteID,
		&r.Persona, &r.Type, &r.EntriesUsed, &r.EntryOrder, &r.NeedleFact, &r.Status, &r.Error,
		&r.InputTokens, &r.OutputTokens, &r.TokensUsed, &r.EstimatedCost, &r.Deleted, &r.CreatedAt,
		&r.StartedAt, &r.CompletedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

func scanPgPreset(row pgx.Row) (*model.ExperimentPreset, error) {
	var p model.ExperimentPreset
	var raw []byte
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &raw, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Config = preset.Decode(raw)
	return &p, nil
}
