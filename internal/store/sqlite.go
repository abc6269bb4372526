package store

import (
	"database/sql"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

var sqliteDialect = dialect{
	name:        "sqlite",
	insertEvent: `INSERT INTO claim_events (event_id, created_at) VALUES (?, ?) ON CONFLICT(event_id) DO NOTHING`,
	migration: []string{
		`CREATE TABLE IF NOT EXISTS claim_events (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id   TEXT NOT NULL UNIQUE,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS document_texts (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id        TEXT NOT NULL REFERENCES claim_events(event_id),
			filename        TEXT NOT NULL,
			category        TEXT NOT NULL,
			ocr_text        TEXT NOT NULL,
			anonymized_text TEXT,
			created_at      DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_document_texts_event ON document_texts(event_id, filename)`,
		`CREATE TABLE IF NOT EXISTS analysis_results (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id     TEXT NOT NULL REFERENCES claim_events(event_id),
			run_id       TEXT NOT NULL,
			model        TEXT NOT NULL,
			summary_text TEXT NOT NULL,
			created_at   DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_analysis_results_event ON analysis_results(event_id)`,
		`CREATE TABLE IF NOT EXISTS prompts (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			name       TEXT NOT NULL UNIQUE,
			version    TEXT NOT NULL DEFAULT '1.0',
			model      TEXT NOT NULL,
			content    TEXT NOT NULL,
			is_active  BOOLEAN NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS prompt_runs (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			prompt_id  INTEGER REFERENCES prompts(id) ON DELETE SET NULL,
			event_id   TEXT NOT NULL,
			run_id     TEXT NOT NULL,
			model      TEXT NOT NULL,
			tokens_in  INTEGER,
			tokens_out INTEGER,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_prompt_runs_event ON prompt_runs(event_id)`,
	},
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLStore, error) {
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
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLStore{db: db, d: sqliteDialect}, nil
}
