package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/claims-cli/internal/db"
	"github.com/sells-group/claims-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *db.PoolConfig) (*PostgresStore, error) {
	pool, err := db.Open(ctx, connString, poolCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: open")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS claim_events (
	id         BIGSERIAL PRIMARY KEY,
	event_id   TEXT NOT NULL UNIQUE,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS document_texts (
	id              BIGSERIAL PRIMARY KEY,
	event_id        TEXT NOT NULL REFERENCES claim_events(event_id),
	filename        TEXT NOT NULL,
	category        TEXT NOT NULL,
	ocr_text        TEXT NOT NULL,
	anonymized_text TEXT,
	created_at      TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_document_texts_event ON document_texts(event_id, filename);

CREATE TABLE IF NOT EXISTS analysis_results (
	id           BIGSERIAL PRIMARY KEY,
	event_id     TEXT NOT NULL REFERENCES claim_events(event_id),
	run_id       UUID NOT NULL,
	model        TEXT NOT NULL,
	summary_text TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_analysis_results_event ON analysis_results(event_id);

CREATE TABLE IF NOT EXISTS prompts (
	id         BIGSERIAL PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	version    TEXT NOT NULL DEFAULT '1.0',
	model      TEXT NOT NULL,
	content    TEXT NOT NULL,
	is_active  BOOLEAN NOT NULL DEFAULT false,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_prompts_single_active ON prompts(is_active) WHERE is_active;

CREATE TABLE IF NOT EXISTS prompt_runs (
	id         BIGSERIAL PRIMARY KEY,
	prompt_id  BIGINT REFERENCES prompts(id) ON DELETE SET NULL,
	event_id   TEXT NOT NULL,
	run_id     UUID NOT NULL,
	model      TEXT NOT NULL,
	tokens_in  BIGINT,
	tokens_out BIGINT,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_prompt_runs_event ON prompt_runs(event_id);
`

const (
	pgDocumentColumns = `id, event_id, filename, category, ocr_text, anonymized_text, created_at`
	pgAnalysisColumns = `id, event_id, run_id::text, model, summary_text, created_at`
	pgRunColumns      = `id, prompt_id, event_id, run_id::text, model, tokens_in, tokens_out, created_at`
)

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
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

func (s *PostgresStore) EnsureEvent(ctx context.Context, eventID string) (*model.Event, error) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO claim_events (event_id, created_at) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING`,
		eventID, time.Now().UTC(),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert event %s", eventID)
	}
	return s.GetEvent(ctx, eventID)
}

func (s *PostgresStore) GetEvent(ctx context.Context, eventID string) (*model.Event, error) {
	var ev model.Event
	err := s.pool.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM claim_events WHERE event_id = $1`, eventID,
	).Scan(&ev.ID, &ev.EventID, &ev.CreatedAt)
	if err != nil {
		return nil, pgRowErr(err, "get event "+eventID)
	}
	return &ev, nil
}

func (s *PostgresStore) ListEvents(ctx context.Context) ([]model.Event, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+eventColumns+` FROM claim_events ORDER BY event_id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list events")
	}
	defer rows.Close()

	var out []model.Event
	for rows.Next() {
		var ev model.Event
		if err := rows.Scan(&ev.ID, &ev.EventID, &ev.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan event")
		}
		out = append(out, ev)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate events")
}

func (s *PostgresStore) InsertDocument(ctx context.Context, doc *model.DocumentArtifact) error {
	doc.CreatedAt = time.Now().UTC()
	err := s.pool.QueryRow(ctx,
		`INSERT INTO document_texts (event_id, filename, category, ocr_text, anonymized_text, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		doc.EventID, doc.Filename, string(doc.Category), doc.OCRText, doc.AnonymizedText, doc.CreatedAt,
	).Scan(&doc.ID)
	return eris.Wrapf(err, "postgres: insert document %s/%s", doc.EventID, doc.Filename)
}

func (s *PostgresStore) ListDocuments(ctx context.Context, eventID string) ([]model.DocumentArtifact, error) {
	return s.queryDocuments(ctx,
		`SELECT `+pgDocumentColumns+` FROM document_texts WHERE event_id = $1
		 ORDER BY `+categoryOrder+`, filename, id`, eventID)
}

func (s *PostgresStore) LatestDocuments(ctx context.Context, eventID string) ([]model.DocumentArtifact, error) {
	return s.queryDocuments(ctx,
		`SELECT DISTINCT ON (filename, category) `+pgDocumentColumns+` FROM document_texts
		 WHERE event_id = $1 ORDER BY filename, category, id DESC`, eventID)
}

func (s *PostgresStore) queryDocuments(ctx context.Context, query string, args ...any) ([]model.DocumentArtifact, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list documents")
	}
	defer rows.Close()

	var out []model.DocumentArtifact
	for rows.Next() {
		var doc model.DocumentArtifact
		var category string
		if err := rows.Scan(&doc.ID, &doc.EventID, &doc.Filename, &category, &doc.OCRText, &doc.AnonymizedText, &doc.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan document")
		}
		doc.Category = model.Category(category)
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate documents")
	}
	sortByCategory(out)
	return out, nil
}

func (s *PostgresStore) SaveAnalysis(ctx context.Context, res *model.AnalysisResult, run *model.PromptRun) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin analysis tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	now := time.Now().UTC()
	res.CreatedAt = now
	err = tx.QueryRow(ctx,
		`INSERT INTO analysis_results (event_id, run_id, model, summary_text, created_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		res.EventID, res.RunID, res.Model, res.SummaryText, res.CreatedAt,
	).Scan(&res.ID)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert analysis %s", res.EventID)
	}

	if run != nil {
		run.CreatedAt = now
		err = tx.QueryRow(ctx,
			`INSERT INTO prompt_runs (prompt_id, event_id, run_id, model, tokens_in, tokens_out, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
			run.PromptID, run.EventID, run.RunID, run.Model, run.TokensIn, run.TokensOut, run.CreatedAt,
		).Scan(&run.ID)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert prompt run %s", run.EventID)
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit analysis tx")
}

func (s *PostgresStore) ListAnalyses(ctx context.Context, eventID string) ([]model.AnalysisResult, error) {
	query := `SELECT ` + pgAnalysisColumns + ` FROM analysis_results`
	var args []any
	if eventID != "" {
		query += ` WHERE event_id = $1`
		args = append(args, eventID)
	}
	query += ` ORDER BY id DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list analyses")
	}
	defer rows.Close()

	var out []model.AnalysisResult
	for rows.Next() {
		var a model.AnalysisResult
		if err := rows.Scan(&a.ID, &a.EventID, &a.RunID, &a.Model, &a.SummaryText, &a.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan analysis")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate analyses")
}

func (s *PostgresStore) LatestAnalysis(ctx context.Context, eventID string) (*model.AnalysisResult, error) {
	var a model.AnalysisResult
	err := s.pool.QueryRow(ctx,
		`SELECT `+pgAnalysisColumns+` FROM analysis_results WHERE event_id = $1 ORDER BY id DESC LIMIT 1`, eventID,
	).Scan(&a.ID, &a.EventID, &a.RunID, &a.Model, &a.SummaryText, &a.CreatedAt)
	if err != nil {
		return nil, pgRowErr(err, "latest analysis "+eventID)
	}
	return &a, nil
}

func (s *PostgresStore) ListPromptRuns(ctx context.Context, eventID string) ([]model.PromptRun, error) {
	query := `SELECT ` + pgRunColumns + ` FROM prompt_runs`
	var args []any
	if eventID != "" {
		query += ` WHERE event_id = $1`
		args = append(args, eventID)
	}
	query += ` ORDER BY id DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list prompt runs")
	}
	defer rows.Close()

	var out []model.PromptRun
	for rows.Next() {
		var r model.PromptRun
		var promptID *int64
		if err := rows.Scan(&r.ID, &promptID, &r.EventID, &r.RunID, &r.Model, &r.TokensIn, &r.TokensOut, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan prompt run")
		}
		if promptID != nil {
			r.PromptID = *promptID
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate prompt runs")
}

func (s *PostgresStore) CreatePrompt(ctx context.Context, p *model.PromptTemplate) error {
	now := time.Now().UTC()
	p.IsActive = false
	p.CreatedAt, p.UpdatedAt = now, now
	err := s.pool.QueryRow(ctx,
		`INSERT INTO prompts (name, version, model, content, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, false, $5, $6) RETURNING id`,
		p.Name, p.Version, p.Model, p.Content, p.CreatedAt, p.UpdatedAt,
	).Scan(&p.ID)
	return eris.Wrapf(err, "postgres: insert prompt %s", p.Name)
}

func (s *PostgresStore) UpdatePrompt(ctx context.Context, p *model.PromptTemplate) error {
	p.UpdatedAt = time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE prompts SET name = $1, version = $2, model = $3, content = $4, updated_at = $5 WHERE id = $6`,
		p.Name, p.Version, p.Model, p.Content, p.UpdatedAt, p.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update prompt %d", p.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "prompt %d", p.ID)
	}
	return nil
}

func (s *PostgresStore) GetPrompt(ctx context.Context, id int64) (*model.PromptTemplate, error) {
	p, err := scanPrompt(s.pool.QueryRow(ctx, `SELECT `+promptColumns+` FROM prompts WHERE id = $1`, id))
	if err != nil {
		return nil, pgRowErr(err, "get prompt")
	}
	return p, nil
}

func (s *PostgresStore) GetPromptByName(ctx context.Context, name string) (*model.PromptTemplate, error) {
	p, err := scanPrompt(s.pool.QueryRow(ctx, `SELECT `+promptColumns+` FROM prompts WHERE name = $1`, name))
	if err != nil {
		return nil, pgRowErr(err, "get prompt "+name)
	}
	return p, nil
}

func (s *PostgresStore) ListPrompts(ctx context.Context) ([]model.PromptTemplate, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+promptColumns+` FROM prompts ORDER BY name`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list prompts")
	}
	defer rows.Close()

	var out []model.PromptTemplate
	for rows.Next() {
		p, err := scanPrompt(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan prompt")
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate prompts")
}

func (s *PostgresStore) ActivePrompt(ctx context.Context) (*model.PromptTemplate, error) {
	p, err := scanPrompt(s.pool.QueryRow(ctx,
		`SELECT `+promptColumns+` FROM prompts WHERE is_active ORDER BY updated_at DESC LIMIT 1`))
	if err != nil {
		return nil, pgRowErr(err, "active prompt")
	}
	return p, nil
}

func (s *PostgresStore) ActivatePrompt(ctx context.Context, id int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin activate tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var found int64
	if err := tx.QueryRow(ctx, `SELECT id FROM prompts WHERE id = $1 FOR UPDATE`, id).Scan(&found); err != nil {
		return pgRowErr(err, "activate prompt")
	}
	if _, err := tx.Exec(ctx, `UPDATE prompts SET is_active = false WHERE is_active`); err != nil {
		return eris.Wrap(err, "postgres: deactivate prompts")
	}
	if _, err := tx.Exec(ctx,
		`UPDATE prompts SET is_active = true, updated_at = $1 WHERE id = $2`, time.Now().UTC(), id); err != nil {
		return eris.Wrapf(err, "postgres: activate prompt %d", id)
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit activate tx")
}

func (s *PostgresStore) DeletePrompt(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM prompts WHERE id = $1 AND NOT is_active`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete prompt %d", id)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var active bool
	if err := s.pool.QueryRow(ctx, `SELECT is_active FROM prompts WHERE id = $1`, id).Scan(&active); err != nil {
		return pgRowErr(err, "delete prompt")
	}
	if active {
		return eris.Wrapf(ErrPromptActive, "postgres: delete prompt %d", id)
	}
	return eris.Errorf("postgres: delete prompt %d: no rows removed", id)
}

func (s *PostgresStore) Counts(ctx context.Context) (*model.Counts, error) {
	var c model.Counts
	err := s.pool.QueryRow(ctx, countsQuery).Scan(&c.Events, &c.Documents, &c.Analyses, &c.Prompts, &c.PromptRuns)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: counts")
	}
	return &c, nil
}

func pgRowErr(err error, action string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return eris.Wrapf(ErrNotFound, "postgres: %s", action)
	}
	return eris.Wrapf(err, "postgres: %s", action)
}
