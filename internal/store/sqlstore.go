package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/claims-cli/internal/model"
)

// dialect carries the statements that differ between the database/sql
// backends. Everything else uses portable SQL with ? placeholders.
type dialect struct {
	name        string
	migration   []string
	insertEvent string
}

// SQLStore implements Store on database/sql for SQLite and MySQL.
type SQLStore struct {
	db *sql.DB
	d  dialect
}

const (
	eventColumns    = `id, event_id, created_at`
	documentColumns = `id, event_id, filename, category, ocr_text, anonymized_text, created_at`
	analysisColumns = `id, event_id, run_id, model, summary_text, created_at`
	promptColumns   = `id, name, version, model, content, is_active, created_at, updated_at`
	runColumns      = `id, prompt_id, event_id, run_id, model, tokens_in, tokens_out, created_at`

	categoryOrder = `CASE category WHEN 'sensitive' THEN 0 ELSE 1 END`
)

func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range s.d.migration {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return eris.Wrapf(err, "%s: migrate", s.d.name)
		}
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) EnsureEvent(ctx context.Context, eventID string) (*model.Event, error) {
	if _, err := s.db.ExecContext(ctx, s.d.insertEvent, eventID, time.Now().UTC()); err != nil {
		return nil, eris.Wrapf(err, "%s: insert event %s", s.d.name, eventID)
	}
	return s.GetEvent(ctx, eventID)
}

func (s *SQLStore) GetEvent(ctx context.Context, eventID string) (*model.Event, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM claim_events WHERE event_id = ?`, eventID)
	ev, err := scanEvent(row)
	if err != nil {
		return nil, s.wrapRowErr(err, "get event "+eventID)
	}
	return ev, nil
}

func (s *SQLStore) ListEvents(ctx context.Context) ([]model.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM claim_events ORDER BY event_id`)
	if err != nil {
		return nil, eris.Wrapf(err, "%s: list events", s.d.name)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, eris.Wrapf(err, "%s: scan event", s.d.name)
		}
		out = append(out, *ev)
	}
	return out, eris.Wrapf(rows.Err(), "%s: iterate events", s.d.name)
}

func (s *SQLStore) InsertDocument(ctx context.Context, doc *model.DocumentArtifact) error {
	doc.CreatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO document_texts (event_id, filename, category, ocr_text, anonymized_text, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		doc.EventID, doc.Filename, string(doc.Category), doc.OCRText, doc.AnonymizedText, doc.CreatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "%s: insert document %s/%s", s.d.name, doc.EventID, doc.Filename)
	}
	doc.ID, err = res.LastInsertId()
	return eris.Wrapf(err, "%s: document id", s.d.name)
}

func (s *SQLStore) ListDocuments(ctx context.Context, eventID string) ([]model.DocumentArtifact, error) {
	return s.queryDocuments(ctx,
		`SELECT `+documentColumns+` FROM document_texts WHERE event_id = ?
		 ORDER BY `+categoryOrder+`, filename, id`, eventID)
}

func (s *SQLStore) LatestDocuments(ctx context.Context, eventID string) ([]model.DocumentArtifact, error) {
	return s.queryDocuments(ctx,
		`SELECT `+documentColumns+` FROM document_texts
		 WHERE id IN (SELECT MAX(id) FROM document_texts WHERE event_id = ? GROUP BY filename, category)
		 ORDER BY `+categoryOrder+`, filename`, eventID)
}

func (s *SQLStore) queryDocuments(ctx context.Context, query string, args ...any) ([]model.DocumentArtifact, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "%s: list documents", s.d.name)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.DocumentArtifact
	for rows.Next() {
		var doc model.DocumentArtifact
		var category string
		var anonymized sql.NullString
		if err := rows.Scan(&doc.ID, &doc.EventID, &doc.Filename, &category, &doc.OCRText, &anonymized, &doc.CreatedAt); err != nil {
			return nil, eris.Wrapf(err, "%s: scan document", s.d.name)
		}
		doc.Category = model.Category(category)
		if anonymized.Valid {
			doc.AnonymizedText = &anonymized.String
		}
		out = append(out, doc)
	}
	return out, eris.Wrapf(rows.Err(), "%s: iterate documents", s.d.name)
}

func (s *SQLStore) SaveAnalysis(ctx context.Context, res *model.AnalysisResult, run *model.PromptRun) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrapf(err, "%s: begin analysis tx", s.d.name)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	res.CreatedAt = now
	r, err := tx.ExecContext(ctx,
		`INSERT INTO analysis_results (event_id, run_id, model, summary_text, created_at) VALUES (?, ?, ?, ?, ?)`,
		res.EventID, res.RunID, res.Model, res.SummaryText, res.CreatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "%s: insert analysis %s", s.d.name, res.EventID)
	}
	if res.ID, err = r.LastInsertId(); err != nil {
		return eris.Wrapf(err, "%s: analysis id", s.d.name)
	}

	if run != nil {
		run.CreatedAt = now
		r, err := tx.ExecContext(ctx,
			`INSERT INTO prompt_runs (prompt_id, event_id, run_id, model, tokens_in, tokens_out, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			run.PromptID, run.EventID, run.RunID, run.Model, run.TokensIn, run.TokensOut, run.CreatedAt,
		)
		if err != nil {
			return eris.Wrapf(err, "%s: insert prompt run %s", s.d.name, run.EventID)
		}
		if run.ID, err = r.LastInsertId(); err != nil {
			return eris.Wrapf(err, "%s: prompt run id", s.d.name)
		}
	}

	return eris.Wrapf(tx.Commit(), "%s: commit analysis tx", s.d.name)
}

// ListAnalyses returns analyses for eventID, or for all events when it is
// empty, newest first.
func (s *SQLStore) ListAnalyses(ctx context.Context, eventID string) ([]model.AnalysisResult, error) {
	query := `SELECT ` + analysisColumns + ` FROM analysis_results`
	var args []any
	if eventID != "" {
		query += ` WHERE event_id = ?`
		args = append(args, eventID)
	}
	query += ` ORDER BY id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "%s: list analyses", s.d.name)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.AnalysisResult
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, eris.Wrapf(err, "%s: scan analysis", s.d.name)
		}
		out = append(out, *a)
	}
	return out, eris.Wrapf(rows.Err(), "%s: iterate analyses", s.d.name)
}

func (s *SQLStore) LatestAnalysis(ctx context.Context, eventID string) (*model.AnalysisResult, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+analysisColumns+` FROM analysis_results WHERE event_id = ? ORDER BY id DESC LIMIT 1`, eventID)
	a, err := scanAnalysis(row)
	if err != nil {
		return nil, s.wrapRowErr(err, "latest analysis "+eventID)
	}
	return a, nil
}

// ListPromptRuns returns prompt runs for eventID, or all when it is empty,
// newest first.
func (s *SQLStore) ListPromptRuns(ctx context.Context, eventID string) ([]model.PromptRun, error) {
	query := `SELECT ` + runColumns + ` FROM prompt_runs`
	var args []any
	if eventID != "" {
		query += ` WHERE event_id = ?`
		args = append(args, eventID)
	}
	query += ` ORDER BY id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "%s: list prompt runs", s.d.name)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.PromptRun
	for rows.Next() {
		var r model.PromptRun
		var promptID, in, outTokens sql.NullInt64
		if err := rows.Scan(&r.ID, &promptID, &r.EventID, &r.RunID, &r.Model, &in, &outTokens, &r.CreatedAt); err != nil {
			return nil, eris.Wrapf(err, "%s: scan prompt run", s.d.name)
		}
		r.PromptID = promptID.Int64
		if in.Valid {
			r.TokensIn = &in.Int64
		}
		if outTokens.Valid {
			r.TokensOut = &outTokens.Int64
		}
		out = append(out, r)
	}
	return out, eris.Wrapf(rows.Err(), "%s: iterate prompt runs", s.d.name)
}

func (s *SQLStore) CreatePrompt(ctx context.Context, p *model.PromptTemplate) error {
	now := time.Now().UTC()
	p.IsActive = false
	p.CreatedAt, p.UpdatedAt = now, now
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO prompts (name, version, model, content, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 0, ?, ?)`,
		p.Name, p.Version, p.Model, p.Content, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "%s: insert prompt %s", s.d.name, p.Name)
	}
	p.ID, err = res.LastInsertId()
	return eris.Wrapf(err, "%s: prompt id", s.d.name)
}

func (s *SQLStore) UpdatePrompt(ctx context.Context, p *model.PromptTemplate) error {
	p.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE prompts SET name = ?, version = ?, model = ?, content = ?, updated_at = ? WHERE id = ?`,
		p.Name, p.Version, p.Model, p.Content, p.UpdatedAt, p.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "%s: update prompt %d", s.d.name, p.ID)
	}
	return checkRowsAffected(res, "prompt", p.ID)
}

func (s *SQLStore) GetPrompt(ctx context.Context, id int64) (*model.PromptTemplate, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+promptColumns+` FROM prompts WHERE id = ?`, id)
	p, err := scanPrompt(row)
	if err != nil {
		return nil, s.wrapRowErr(err, "get prompt")
	}
	return p, nil
}

func (s *SQLStore) GetPromptByName(ctx context.Context, name string) (*model.PromptTemplate, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+promptColumns+` FROM prompts WHERE name = ?`, name)
	p, err := scanPrompt(row)
	if err != nil {
		return nil, s.wrapRowErr(err, "get prompt "+name)
	}
	return p, nil
}

func (s *SQLStore) ListPrompts(ctx context.Context) ([]model.PromptTemplate, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+promptColumns+` FROM prompts ORDER BY name`)
	if err != nil {
		return nil, eris.Wrapf(err, "%s: list prompts", s.d.name)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.PromptTemplate
	for rows.Next() {
		p, err := scanPrompt(rows)
		if err != nil {
			return nil, eris.Wrapf(err, "%s: scan prompt", s.d.name)
		}
		out = append(out, *p)
	}
	return out, eris.Wrapf(rows.Err(), "%s: iterate prompts", s.d.name)
}

func (s *SQLStore) ActivePrompt(ctx context.Context) (*model.PromptTemplate, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+promptColumns+` FROM prompts WHERE is_active = 1 ORDER BY updated_at DESC LIMIT 1`)
	p, err := scanPrompt(row)
	if err != nil {
		return nil, s.wrapRowErr(err, "active prompt")
	}
	return p, nil
}

func (s *SQLStore) ActivatePrompt(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrapf(err, "%s: begin activate tx", s.d.name)
	}
	defer tx.Rollback() //nolint:errcheck

	var found int64
	if err := tx.QueryRowContext(ctx, `SELECT id FROM prompts WHERE id = ?`, id).Scan(&found); err != nil {
		return s.wrapRowErr(err, "activate prompt")
	}
	if _, err := tx.ExecContext(ctx, `UPDATE prompts SET is_active = 0 WHERE is_active = 1`); err != nil {
		return eris.Wrapf(err, "%s: deactivate prompts", s.d.name)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE prompts SET is_active = 1, updated_at = ? WHERE id = ?`, time.Now().UTC(), id); err != nil {
		return eris.Wrapf(err, "%s: activate prompt %d", s.d.name, id)
	}
	return eris.Wrapf(tx.Commit(), "%s: commit activate tx", s.d.name)
}

func (s *SQLStore) DeletePrompt(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM prompts WHERE id = ? AND is_active = 0`, id)
	if err != nil {
		return eris.Wrapf(err, "%s: delete prompt %d", s.d.name, id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "%s: rows affected", s.d.name)
	}
	if n > 0 {
		return nil
	}

	var active bool
	err = s.db.QueryRowContext(ctx, `SELECT is_active FROM prompts WHERE id = ?`, id).Scan(&active)
	if err != nil {
		return s.wrapRowErr(err, "delete prompt")
	}
	if active {
		return eris.Wrapf(ErrPromptActive, "%s: delete prompt %d", s.d.name, id)
	}
	return eris.Errorf("%s: delete prompt %d: no rows removed", s.d.name, id)
}

func (s *SQLStore) Counts(ctx context.Context) (*model.Counts, error) {
	var c model.Counts
	err := s.db.QueryRowContext(ctx, countsQuery).Scan(&c.Events, &c.Documents, &c.Analyses, &c.Prompts, &c.PromptRuns)
	if err != nil {
		return nil, eris.Wrapf(err, "%s: counts", s.d.name)
	}
	return &c, nil
}

const countsQuery = `SELECT
	(SELECT COUNT(*) FROM claim_events),
	(SELECT COUNT(*) FROM document_texts),
	(SELECT COUNT(*) FROM analysis_results),
	(SELECT COUNT(*) FROM prompts),
	(SELECT COUNT(*) FROM prompt_runs)`

func (s *SQLStore) wrapRowErr(err error, action string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return eris.Wrapf(ErrNotFound, "%s: %s", s.d.name, action)
	}
	return eris.Wrapf(err, "%s: %s", s.d.name, action)
}

// helpers

func checkRowsAffected(res sql.Result, entity string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %d", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanEvent(row scannable) (*model.Event, error) {
	var ev model.Event
	if err := row.Scan(&ev.ID, &ev.EventID, &ev.CreatedAt); err != nil {
		return nil, err
	}
	return &ev, nil
}

func scanAnalysis(row scannable) (*model.AnalysisResult, error) {
	var a model.AnalysisResult
	if err := row.Scan(&a.ID, &a.EventID, &a.RunID, &a.Model, &a.SummaryText, &a.CreatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func scanPrompt(row scannable) (*model.PromptTemplate, error) {
	var p model.PromptTemplate
	if err := row.Scan(&p.ID, &p.Name, &p.Version, &p.Model, &p.Content, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}
