package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/XSAM/otelsql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver wrapped by otelsql
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // pure Go SQLite driver for local runs

	"github.com/patrickwarner/adsimulator/internal/config"
)

// Postgres stores simulation runs and their daily results. The same queries
// run against SQLite through InitSQLite, which is what local CLI runs and
// tests use.
type Postgres struct {
	DB *sqlx.DB
}

// Run is one simulated campaign.
type Run struct {
	ID        string    `db:"id"`
	Campaign  string    `db:"campaign"`
	Industry  string    `db:"industry"`
	Seed      int64     `db:"seed"`
	Days      int       `db:"days"`
	CreatedAt time.Time `db:"created_at"`
}

// DailyResult is the outcome of one keyword on one simulated day.
type DailyResult struct {
	RunID        string  `db:"run_id"`
	Day          int     `db:"day"`
	KeywordID    string  `db:"keyword_id"`
	Impressions  int64   `db:"impressions"`
	Clicks       int64   `db:"clicks"`
	Conversions  int64   `db:"conversions"`
	Cost         float64 `db:"cost"`
	QualityScore float64 `db:"quality_score"`
}

// schemaSQL sets up the necessary tables if they don't exist. It sticks to
// types both Postgres and SQLite accept.
const schemaSQL = `CREATE TABLE IF NOT EXISTS simulation_runs (
    id TEXT PRIMARY KEY,
    campaign TEXT NOT NULL,
    industry TEXT NOT NULL,
    seed BIGINT NOT NULL,
    days INTEGER NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS daily_results (
    run_id TEXT NOT NULL REFERENCES simulation_runs(id) ON DELETE CASCADE,
    day INTEGER NOT NULL,
    keyword_id TEXT NOT NULL,
    impressions BIGINT NOT NULL,
    clicks BIGINT NOT NULL,
    conversions BIGINT NOT NULL,
    cost DOUBLE PRECISION NOT NULL,
    quality_score DOUBLE PRECISION NOT NULL,
    PRIMARY KEY (run_id, day, keyword_id)
);

CREATE INDEX IF NOT EXISTS idx_simulation_runs_campaign ON simulation_runs(campaign);`

// InitPostgres connects to Postgres with OpenTelemetry instrumentation and
// the given pool settings, then makes sure the schema exists.
func InitPostgres(ctx context.Context, dsn string, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) (*Postgres, error) {
	driverName, err := otelsql.Register("postgres",
		otelsql.WithAttributes(
			attribute.String("db.system", "postgresql"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("register otelsql driver: %w", err)
	}

	sqlDB, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	// bind type follows the underlying driver, not the instrumented name
	p := &Postgres{DB: sqlx.NewDb(sqlDB, "postgres")}
	if err := p.ensureSchema(ctx); err != nil {
		return nil, err
	}
	zap.L().Info("Connected to Postgres with connection pooling",
		zap.Int("max_open_conns", maxOpenConns),
		zap.Int("max_idle_conns", maxIdleConns),
		zap.Duration("conn_max_lifetime", connMaxLifetime))
	return p, nil
}

// InitSQLite opens a SQLite database holding the same schema.
func InitSQLite(ctx context.Context, dsn string) (*Postgres, error) {
	sdb, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// a single connection keeps :memory: databases alive and serialises writes
	sdb.SetMaxOpenConns(1)

	if _, err := sdb.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = sdb.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	p := &Postgres{DB: sdb}
	if err := p.ensureSchema(ctx); err != nil {
		_ = sdb.Close()
		return nil, err
	}
	zap.L().Info("Opened SQLite run store", zap.String("dsn", dsn))
	return p, nil
}

// OpenRunStore opens the run store selected by cfg.RunStoreDriver: "sqlite"
// opens cfg.SQLitePath, anything else dials cfg.PostgresDSN.
func OpenRunStore(ctx context.Context, cfg config.Config) (*Postgres, error) {
	if cfg.RunStoreDriver == "sqlite" {
		p, err := InitSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite run store: %w", err)
		}
		return p, nil
	}
	p, err := InitPostgres(ctx, cfg.PostgresDSN, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)
	if err != nil {
		return nil, fmt.Errorf("connect postgres run store: %w", err)
	}
	return p, nil
}

// Close terminates the database connection.
func (p *Postgres) Close() {
	if p != nil && p.DB != nil {
		if err := p.DB.Close(); err != nil {
			zap.L().Error("postgres close", zap.Error(err))
		}
	}
}

// ensureSchema creates the required tables if they do not exist.
func (p *Postgres) ensureSchema(ctx context.Context) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := p.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// InsertRun records a simulation run. CreatedAt defaults to now.
func (p *Postgres) InsertRun(ctx context.Context, run Run) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	query := p.DB.Rebind(`INSERT INTO simulation_runs (id, campaign, industry, seed, days, created_at) VALUES (?, ?, ?, ?, ?, ?)`)
	if _, err := p.DB.ExecContext(ctx, query, run.ID, run.Campaign, run.Industry, run.Seed, run.Days, run.CreatedAt); err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	return nil
}

// InsertDailyResults writes a batch of rows in one transaction.
func (p *Postgres) InsertDailyResults(ctx context.Context, results []DailyResult) error {
	if len(results) == 0 {
		return nil
	}
	tx, err := p.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PreparexContext(ctx, tx.Rebind(`INSERT INTO daily_results
		(run_id, day, keyword_id, impressions, clicks, conversions, cost, quality_score)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("prepare daily results insert: %w", err)
	}
	defer func() {
		_ = stmt.Close()
	}()

	for _, r := range results {
		if _, err := stmt.ExecContext(ctx, r.RunID, r.Day, r.KeywordID, r.Impressions, r.Clicks, r.Conversions, r.Cost, r.QualityScore); err != nil {
			return fmt.Errorf("insert daily result %s/%d/%s: %w", r.RunID, r.Day, r.KeywordID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit daily results: %w", err)
	}
	return nil
}

// LoadDailyResults returns the rows of a run ordered by day then keyword.
func (p *Postgres) LoadDailyResults(ctx context.Context, runID string) ([]DailyResult, error) {
	var results []DailyResult
	query := p.DB.Rebind(`SELECT run_id, day, keyword_id, impressions, clicks, conversions, cost, quality_score
		FROM daily_results WHERE run_id = ? ORDER BY day, keyword_id`)
	if err := p.DB.SelectContext(ctx, &results, query, runID); err != nil {
		return nil, fmt.Errorf("query daily results: %w", err)
	}
	return results, nil
}

// RunIDs lists the runs recorded for a campaign, oldest first.
func (p *Postgres) RunIDs(ctx context.Context, campaign string) ([]string, error) {
	var ids []string
	query := p.DB.Rebind(`SELECT id FROM simulation_runs WHERE campaign = ? ORDER BY created_at, id`)
	if err := p.DB.SelectContext(ctx, &ids, query, campaign); err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	return ids, nil
}
