package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/rotisserie/eris"
)

var mysqlDialect = dialect{
	name:        "mysql",
	insertEvent: `INSERT IGNORE INTO claim_events (event_id, created_at) VALUES (?, ?)`,
	migration: []string{
		`CREATE TABLE IF NOT EXISTS claim_events (
			id         BIGINT AUTO_INCREMENT PRIMARY KEY,
			event_id   VARCHAR(255) NOT NULL UNIQUE,
			created_at DATETIME(6) NOT NULL
		) CHARACTER SET utf8mb4`,
		`CREATE TABLE IF NOT EXISTS document_texts (
			id              BIGINT AUTO_INCREMENT PRIMARY KEY,
			event_id        VARCHAR(255) NOT NULL,
			filename        VARCHAR(512) NOT NULL,
			category        VARCHAR(16) NOT NULL,
			ocr_text        LONGTEXT NOT NULL,
			anonymized_text LONGTEXT NULL,
			created_at      DATETIME(6) NOT NULL,
			INDEX idx_document_texts_event (event_id, filename(191)),
			FOREIGN KEY (event_id) REFERENCES claim_events(event_id)
		) CHARACTER SET utf8mb4`,
		`CREATE TABLE IF NOT EXISTS analysis_results (
			id           BIGINT AUTO_INCREMENT PRIMARY KEY,
			event_id     VARCHAR(255) NOT NULL,
			run_id       CHAR(36) NOT NULL,
			model        VARCHAR(128) NOT NULL,
			summary_text LONGTEXT NOT NULL,
			created_at   DATETIME(6) NOT NULL,
			INDEX idx_analysis_results_event (event_id),
			FOREIGN KEY (event_id) REFERENCES claim_events(event_id)
		) CHARACTER SET utf8mb4`,
		`CREATE TABLE IF NOT EXISTS prompts (
			id         BIGINT AUTO_INCREMENT PRIMARY KEY,
			name       VARCHAR(255) NOT NULL UNIQUE,
			version    VARCHAR(32) NOT NULL DEFAULT '1.0',
			model      VARCHAR(128) NOT NULL,
			content    LONGTEXT NOT NULL,
			is_active  TINYINT(1) NOT NULL DEFAULT 0,
			created_at DATETIME(6) NOT NULL,
			updated_at DATETIME(6) NOT NULL
		) CHARACTER SET utf8mb4`,
		`CREATE TABLE IF NOT EXISTS prompt_runs (
			id         BIGINT AUTO_INCREMENT PRIMARY KEY,
			prompt_id  BIGINT NULL,
			event_id   VARCHAR(255) NOT NULL,
			run_id     CHAR(36) NOT NULL,
			model      VARCHAR(128) NOT NULL,
			tokens_in  BIGINT NULL,
			tokens_out BIGINT NULL,
			created_at DATETIME(6) NOT NULL,
			INDEX idx_prompt_runs_event (event_id),
			FOREIGN KEY (prompt_id) REFERENCES prompts(id) ON DELETE SET NULL
		) CHARACTER SET utf8mb4`,
	},
}

// NewMySQL opens a MySQL database. Timestamps are parsed into time.Time in
// UTC and UPDATE reports matched rather than changed rows.
func NewMySQL(ctx context.Context, dsn string) (*SQLStore, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, eris.Wrap(err, "mysql: parse dsn")
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.ClientFoundRows = true

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, eris.Wrap(err, "mysql: connector")
	}
	db := sql.OpenDB(connector)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxIdleConns(2)
	db.SetMaxOpenConns(10)

	if err := db.PingContext(ctx); err != nil {
		db.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "mysql: ping")
	}
	return &SQLStore{db: db, d: mysqlDialect}, nil
}
