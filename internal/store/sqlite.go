package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/journal-harness/internal/model"
	"github.com/sells-group/journal-harness/internal/preset"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path. Foreign keys, WAL and
// a busy timeout are enabled on every pooled connection through the DSN.
func NewSQLite(path string) (*SQLiteStore, error) {
	dsn := path
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	dsn += sep + "_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	if strings.Contains(path, ":memory:") {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "sqlite: ping")
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS experiment_runs (
	id              TEXT PRIMARY KEY,
	batch_id        TEXT NOT NULL DEFAULT '',
	provider        TEXT NOT NULL,
	model           TEXT NOT NULL,
	temperature     REAL NOT NULL DEFAULT 0,
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
	estimated_cost  REAL NOT NULL DEFAULT 0,
	deleted         INTEGER NOT NULL DEFAULT 0,
	created_at      DATETIME NOT NULL,
	started_at      DATETIME,
	completed_at    DATETIME
);

CREATE TABLE IF NOT EXISTS experiment_claims (
	id              TEXT PRIMARY KEY,
	run_id          TEXT NOT NULL REFERENCES experiment_runs(id) ON DELETE CASCADE,
	ordinal         INTEGER NOT NULL,
	text            TEXT NOT NULL,
	supported       INTEGER NOT NULL DEFAULT 0,
	persona         TEXT NOT NULL,
	variant         TEXT NOT NULL DEFAULT 'full',
	claim_type      TEXT NOT NULL DEFAULT '',
	confidence      REAL NOT NULL DEFAULT 0,
	referenced_date DATETIME
);

CREATE TABLE IF NOT EXISTS claim_receipts (
	id         TEXT PRIMARY KEY,
	claim_id   TEXT NOT NULL REFERENCES experiment_claims(id) ON DELETE CASCADE,
	rank       INTEGER NOT NULL,
	entry_id   TEXT NOT NULL,
	field      TEXT NOT NULL,
	snippet    TEXT NOT NULL,
	entry_date DATETIME NOT NULL,
	confidence REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS position_tests (
	id          TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL REFERENCES experiment_runs(id) ON DELETE CASCADE,
	position    TEXT NOT NULL,
	needle_fact TEXT NOT NULL,
	found       INTEGER NOT NULL DEFAULT 0,
	confidence  REAL NOT NULL DEFAULT 0,
	snippet     TEXT NOT NULL DEFAULT '',
	UNIQUE (run_id, position)
);

CREATE TABLE IF NOT EXISTS experiment_presets (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL UNIQUE,
	description TEXT NOT NULL DEFAULT '',
	config      TEXT NOT NULL,
	created_at  DATETIME NOT NULL,
	updated_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS journal_entries (
	id                 TEXT PRIMARY KEY,
	athlete_id         TEXT NOT NULL,
	entry_date         DATETIME NOT NULL,
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
CREATE INDEX IF NOT EXISTS idx_journal_athlete_date ON journal_entries(athlete_id, entry_date);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const runColumns = `id, batch_id, provider, model, temperature, prompt_version, athlete_id, persona,
	experiment_type, entries_used, entry_order, needle_fact, status, error, input_tokens, output_tokens,
	tokens_used, estimated_cost, deleted, created_at, started_at, completed_at`

func (s *SQLiteStore) CreateRun(ctx context.Context, run *model.ExperimentRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	run.Status = model.StatusPending
	run.CreatedAt = time.Now().UTC()
	run.StartedAt, run.CompletedAt = nil, nil

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO experiment_runs (id, batch_id, provider, model, temperature, prompt_version, athlete_id,
			persona, experiment_type, entries_used, entry_order, needle_fact, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.BatchID, run.Provider, run.Model, run.Temperature, run.PromptVersion, run.AthleteID,
		string(run.Persona), string(run.Type), run.EntriesUsed, string(run.EntryOrder), run.NeedleFact,
		string(run.Status), run.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert run %s", run.ID)
}

func (s *SQLiteStore) StartRun(ctx context.Context, runID string, entriesUsed int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE experiment_runs SET status = ?, started_at = ?, entries_used = ? WHERE id = ? AND status = ?`,
		string(model.StatusRunning), time.Now().UTC(), entriesUsed, runID, string(model.StatusPending),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: start run %s", runID)
	}
	return s.checkTransition(ctx, res, runID, model.StatusRunning)
}

func (s *SQLiteStore) UpdateRunUsage(ctx context.Context, runID string, usage RunUsage) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE experiment_runs SET input_tokens = ?, output_tokens = ?, tokens_used = ?, estimated_cost = ?
		 WHERE id = ? AND status = ?`,
		usage.InputTokens, usage.OutputTokens, usage.InputTokens+usage.OutputTokens, usage.EstimatedCost,
		runID, string(model.StatusRunning),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run usage %s", runID)
	}
	return s.checkTransition(ctx, res, runID, "usage update")
}

func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, status model.ExperimentStatus, errMsg string) error {
	if !status.Terminal() {
		return eris.Wrapf(ErrInvalidTransition, "finish run %s with %s", runID, status)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE experiment_runs SET status = ?, error = ?, completed_at = ? WHERE id = ? AND status IN (?, ?)`,
		string(status), errMsg, time.Now().UTC(), runID, string(model.StatusPending), string(model.StatusRunning),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	return s.checkTransition(ctx, res, runID, status)
}

// checkTransition tells a missing run apart from one in the wrong status.
func (s *SQLiteStore) checkTransition(ctx context.Context, res sql.Result, runID string, to any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n > 0 {
		return nil
	}
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	return eris.Wrapf(ErrInvalidTransition, "run %s is %s, cannot apply %v", runID, run.Status, to)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.ExperimentRun, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM experiment_runs WHERE id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("run", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	return r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.ExperimentRun, error) {
	query := `SELECT ` + runColumns + ` FROM experiment_runs WHERE 1=1`
	var args []any

	if !filter.IncludeDeleted {
		query += ` AND deleted = 0`
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Type != "" {
		query += ` AND experiment_type = ?`
		args = append(args, string(filter.Type))
	}
	if filter.Provider != "" {
		query += ` AND provider = ?`
		args = append(args, filter.Provider)
	}
	if filter.AthleteID != "" {
		query += ` AND athlete_id = ?`
		args = append(args, filter.AthleteID)
	}
	if filter.BatchID != "" {
		// Batch members come back in submission order.
		query += ` AND batch_id = ? ORDER BY created_at ASC, rowid ASC`
		args = append(args, filter.BatchID)
	} else {
		query += ` ORDER BY created_at DESC, rowid DESC`
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += ` LIMIT ?`
	args = append(args, limit)
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.ExperimentRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) SoftDeleteRun(ctx context.Context, runID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE experiment_runs SET deleted = 1 WHERE id = ?`, runID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: soft delete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) DeleteRun(ctx context.Context, runID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM experiment_runs WHERE id = ?`, runID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) SaveClaims(ctx context.Context, runID string, claims []model.ClaimWithReceipts) error {
	if len(claims) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save claims")
	}
	defer tx.Rollback() //nolint:errcheck

	for i := range claims {
		c := &claims[i].Claim
		c.ID = uuid.NewString()
		c.RunID = runID
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO experiment_claims (id, run_id, ordinal, text, supported, persona, variant, claim_type,
				confidence, referenced_date) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, runID, c.Ordinal, c.Text, c.Supported, string(c.Persona), c.Variant, c.ClaimType,
			c.Confidence, nullTime(c.ReferencedDate),
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert claim for run %s", runID)
		}
		for rank := range claims[i].Receipts {
			rc := &claims[i].Receipts[rank]
			rc.ID = uuid.NewString()
			rc.ClaimID = c.ID
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO claim_receipts (id, claim_id, rank, entry_id, field, snippet, entry_date, confidence)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				rc.ID, c.ID, rank, rc.EntryID, rc.Field, rc.Snippet, rc.EntryDate.UTC(), rc.Confidence,
			); err != nil {
				return eris.Wrapf(err, "sqlite: insert receipt for claim %s", c.ID)
			}
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit claims")
}

func (s *SQLiteStore) ListClaims(ctx context.Context, runID string) ([]model.ClaimWithReceipts, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, ordinal, text, supported, persona, variant, claim_type, confidence, referenced_date
		 FROM experiment_claims WHERE run_id = ? ORDER BY ordinal, rowid`, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list claims %s", runID)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.ClaimWithReceipts
	index := make(map[string]int)
	for rows.Next() {
		var c model.ExperimentClaim
		var ref sql.NullTime
		if err := rows.Scan(&c.ID, &c.RunID, &c.Ordinal, &c.Text, &c.Supported, &c.Persona, &c.Variant,
			&c.ClaimType, &c.Confidence, &ref); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan claim")
		}
		if ref.Valid {
			t := ref.Time.UTC()
			c.ReferencedDate = &t
		}
		index[c.ID] = len(out)
		out = append(out, model.ClaimWithReceipts{Claim: c, Receipts: []model.ClaimReceipt{}})
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: list claims iterate")
	}

	rrows, err := s.db.QueryContext(ctx,
		`SELECT r.id, r.claim_id, r.entry_id, r.field, r.snippet, r.entry_date, r.confidence
		 FROM claim_receipts r JOIN experiment_claims c ON c.id = r.claim_id
		 WHERE c.run_id = ? ORDER BY r.claim_id, r.rank`, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list receipts %s", runID)
	}
	defer rrows.Close() //nolint:errcheck

	for rrows.Next() {
		var r model.ClaimReceipt
		if err := rrows.Scan(&r.ID, &r.ClaimID, &r.EntryID, &r.Field, &r.Snippet, &r.EntryDate, &r.Confidence); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan receipt")
		}
		r.EntryDate = r.EntryDate.UTC()
		if i, ok := index[r.ClaimID]; ok {
			out[i].Receipts = append(out[i].Receipts, r)
		}
	}
	return out, eris.Wrap(rrows.Err(), "sqlite: list receipts iterate")
}

func (s *SQLiteStore) SavePositionTest(ctx context.Context, pt *model.PositionTest) error {
	if pt.ID == "" {
		pt.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO position_tests (id, run_id, position, needle_fact, found, confidence, snippet)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		pt.ID, pt.RunID, string(pt.Position), pt.NeedleFact, pt.Found, pt.Confidence, pt.Snippet,
	)
	return eris.Wrapf(err, "sqlite: insert position test for run %s", pt.RunID)
}

func (s *SQLiteStore) ListPositionTests(ctx context.Context, runID string) ([]model.PositionTest, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, position, needle_fact, found, confidence, snippet FROM position_tests
		 WHERE run_id = ? ORDER BY CASE position WHEN 'start' THEN 0 WHEN 'middle' THEN 1 ELSE 2 END`, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list position tests %s", runID)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.PositionTest
	for rows.Next() {
		var pt model.PositionTest
		if err := rows.Scan(&pt.ID, &pt.RunID, &pt.Position, &pt.NeedleFact, &pt.Found, &pt.Confidence, &pt.Snippet); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan position test")
		}
		out = append(out, pt)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list position tests iterate")
}

func (s *SQLiteStore) SavePreset(ctx context.Context, p *model.ExperimentPreset) error {
	raw, err := preset.Encode(p.Config)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO experiment_presets (id, name, description, config, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (name) DO UPDATE SET description = excluded.description, config = excluded.config,
			updated_at = excluded.updated_at`,
		uuid.NewString(), p.Name, p.Description, string(raw), now, now,
	); err != nil {
		return eris.Wrapf(err, "sqlite: save preset %s", p.Name)
	}
	saved, err := s.GetPreset(ctx, p.Name)
	if err != nil {
		return err
	}
	*p = *saved
	return nil
}

func (s *SQLiteStore) GetPreset(ctx context.Context, idOrName string) (*model.ExperimentPreset, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, config, created_at, updated_at FROM experiment_presets
		 WHERE id = ? OR name = ? LIMIT 1`, idOrName, idOrName)
	p, err := scanPreset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("preset", idOrName)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get preset %s", idOrName)
	}
	return p, nil
}

func (s *SQLiteStore) ListPresets(ctx context.Context) ([]model.ExperimentPreset, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, config, created_at, updated_at FROM experiment_presets ORDER BY name`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list presets")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.ExperimentPreset
	for rows.Next() {
		p, err := scanPreset(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan preset")
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list presets iterate")
}

func (s *SQLiteStore) DeletePreset(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM experiment_presets WHERE id = ? OR name = ?`, id, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete preset %s", id)
	}
	return checkRowsAffected(res, "preset", id)
}

func (s *SQLiteStore) ImportJournal(ctx context.Context, entries []model.JournalEntry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin import journal")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, e := range entries {
		id := e.ID
		if id == "" {
			id = uuid.NewString()
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO journal_entries (id, athlete_id, entry_date, emotional_state, session_reflection, mental_barriers)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT (id) DO UPDATE SET athlete_id = excluded.athlete_id, entry_date = excluded.entry_date,
				emotional_state = excluded.emotional_state, session_reflection = excluded.session_reflection,
				mental_barriers = excluded.mental_barriers`,
			id, e.AthleteID, e.EntryDate.UTC(), e.EmotionalState, e.SessionReflection, e.MentalBarriers,
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert journal entry %s", id)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit journal import")
	}
	return len(entries), nil
}

func (s *SQLiteStore) ListJournal(ctx context.Context, athleteID string) ([]model.JournalEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, athlete_id, entry_date, emotional_state, session_reflection, mental_barriers
		 FROM journal_entries WHERE athlete_id = ? ORDER BY entry_date DESC, id`, athleteID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list journal %s", athleteID)
	}
	defer rows.Close() //nolint:errcheck

	out := []model.JournalEntry{}
	for rows.Next() {
		var e model.JournalEntry
		if err := rows.Scan(&e.ID, &e.AthleteID, &e.EntryDate, &e.EmotionalState, &e.SessionReflection, &e.MentalBarriers); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan journal entry")
		}
		e.EntryDate = e.EntryDate.UTC()
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list journal iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return notFound(entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.ExperimentRun, error) {
	var r model.ExperimentRun
	var started, completed sql.NullTime
	if err := row.Scan(&r.ID, &r.BatchID, &r.Provider, &r.Model, &r.Temperature, &r.PromptVersion, &r.AthleteID,
		&r.Persona, &r.Type, &r.EntriesUsed, &r.EntryOrder, &r.NeedleFact, &r.Status, &r.Error,
		&r.InputTokens, &r.OutputTokens, &r.TokensUsed, &r.EstimatedCost, &r.Deleted, &r.CreatedAt,
		&started, &completed); err != nil {
		return nil, err
	}
	r.CreatedAt = r.CreatedAt.UTC()
	r.StartedAt = fromNullTime(started)
	r.CompletedAt = fromNullTime(completed)
	return &r, nil
}

func scanPreset(row scannable) (*model.ExperimentPreset, error) {
	var p model.ExperimentPreset
	var raw string
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &raw, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Config = preset.Decode([]byte(raw))
	return &p, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func fromNullTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
