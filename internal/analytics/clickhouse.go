package analytics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	_ "github.com/ClickHouse/clickhouse-go/v2"

	"github.com/patrickwarner/adsimulator/internal/observability"
)

// Service defines the interface for recording simulation analytics.
// Implementations should handle cases where underlying storage is unavailable
// by returning ErrUnavailable.
type Service interface {
	// RecordSimulationEvent records a single simulation event.
	RecordSimulationEvent(ctx context.Context, event Event) error
	// RecordSimulationEvents records a batch, typically one simulated day.
	RecordSimulationEvents(ctx context.Context, events []Event) error
}

// Event types written by the simulator.
const (
	EventQSUpdate        = "qs_update"
	EventRSAServe        = "rsa_serve"
	EventImpressionShare = "impression_share"
)

var (
	// ErrUnavailable is returned when the analytics DB is not configured.
	ErrUnavailable = errors.New("analytics unavailable")
	// ErrInvalidEvent is returned for events with an unknown type or no run.
	ErrInvalidEvent = errors.New("invalid analytics event")
)

// Event mirrors a row in the simulation_events table. Fields that do not
// apply to an event type are left zero.
type Event struct {
	Timestamp     time.Time `json:"timestamp"`
	EventType     string    `json:"event_type"`
	RunID         string    `json:"run_id"`
	Campaign      string    `json:"campaign"`
	Day           int       `json:"day"`
	KeywordID     string    `json:"keyword_id,omitempty"`
	AdID          string    `json:"ad_id,omitempty"`
	HeadlineID    string    `json:"headline_id,omitempty"`
	DescriptionID string    `json:"description_id,omitempty"`
	Impressions   int64     `json:"impressions"`
	Clicks        int64     `json:"clicks"`
	Conversions   int64     `json:"conversions"`
	Cost          float64   `json:"cost"`
	QualityScore  float64   `json:"quality_score"`
	SearchIS      float64   `json:"search_impression_share"`
}

func (e Event) validate() error {
	switch e.EventType {
	case EventQSUpdate, EventRSAServe, EventImpressionShare:
	default:
		return fmt.Errorf("event type %q: %w", e.EventType, ErrInvalidEvent)
	}
	if e.RunID == "" {
		return fmt.Errorf("%s event without run id: %w", e.EventType, ErrInvalidEvent)
	}
	return nil
}

// Analytics wraps a ClickHouse DB connection.
type Analytics struct {
	DB      *sql.DB
	Metrics observability.MetricsRegistry
}

const createTableSQL = `CREATE TABLE IF NOT EXISTS simulation_events (
       timestamp      DateTime,
       event_type     LowCardinality(String),
       run_id         String,
       campaign       String,
       day            UInt16,
       keyword_id     String,
       ad_id          String,
       headline_id    String,
       description_id String,
       impressions    Int64,
       clicks         Int64,
       conversions    Int64,
       cost           Float64,
       quality_score  Float64,
       search_is      Float64
   ) ENGINE=MergeTree() ORDER BY (run_id, event_type, day)`

const insertSQL = `INSERT INTO simulation_events (timestamp, event_type, run_id, campaign, day, keyword_id, ad_id, headline_id, description_id, impressions, clicks, conversions, cost, quality_score, search_is) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// InitClickHouse connects to ClickHouse and ensures the events table exists.
func InitClickHouse(ctx context.Context, dsn string, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration, metrics observability.MetricsRegistry) (*Analytics, error) {
	db, err := sql.Open("clickhouse", dsn)
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, createTableSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("clickhouse create table: %w", err)
	}

	zap.L().Info("Connected to ClickHouse", zap.Int("max_open_conns", maxOpenConns))
	return &Analytics{DB: db, Metrics: metrics}, nil
}

func (a *Analytics) metrics() observability.MetricsRegistry {
	if a.Metrics == nil {
		return observability.NewNoOpRegistry()
	}
	return a.Metrics
}

// RecordSimulationEvent inserts a single event row.
func (a *Analytics) RecordSimulationEvent(ctx context.Context, event Event) error {
	if a == nil || a.DB == nil {
		return ErrUnavailable
	}
	if err := event.validate(); err != nil {
		return err
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if _, err := a.DB.ExecContext(ctx, insertSQL, row(event)...); err != nil {
		a.metrics().IncrementAnalyticsErrors()
		zap.L().Error("clickhouse insert failed", zap.Error(err), zap.String("event_type", event.EventType))
		return fmt.Errorf("insert %s event: %w", event.EventType, err)
	}
	return nil
}

// RecordSimulationEvents inserts events as one ClickHouse batch. Every event
// is validated before anything is sent.
func (a *Analytics) RecordSimulationEvents(ctx context.Context, events []Event) error {
	if a == nil || a.DB == nil {
		return ErrUnavailable
	}
	for _, ev := range events {
		if err := ev.validate(); err != nil {
			return err
		}
	}
	if len(events) == 0 {
		return nil
	}

	// clickhouse-go turns a prepared insert inside a transaction into a batch
	tx, err := a.DB.BeginTx(ctx, nil)
	if err != nil {
		a.metrics().IncrementAnalyticsErrors()
		return fmt.Errorf("begin batch: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		a.metrics().IncrementAnalyticsErrors()
		return fmt.Errorf("prepare batch: %w", err)
	}
	defer func() {
		_ = stmt.Close()
	}()

	now := time.Now()
	for _, ev := range events {
		if ev.Timestamp.IsZero() {
			ev.Timestamp = now
		}
		if _, err := stmt.ExecContext(ctx, row(ev)...); err != nil {
			a.metrics().IncrementAnalyticsErrors()
			return fmt.Errorf("append %s event: %w", ev.EventType, err)
		}
	}
	if err := tx.Commit(); err != nil {
		a.metrics().IncrementAnalyticsErrors()
		zap.L().Error("clickhouse batch failed", zap.Error(err), zap.Int("events", len(events)))
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

func row(e Event) []any {
	return []any{
		e.Timestamp, e.EventType, e.RunID, e.Campaign, uint16(e.Day),
		e.KeywordID, e.AdID, e.HeadlineID, e.DescriptionID,
		e.Impressions, e.Clicks, e.Conversions,
		e.Cost, e.QualityScore, e.SearchIS,
	}
}

// Close terminates the ClickHouse connection.
func (a *Analytics) Close() {
	if a != nil && a.DB != nil {
		if err := a.DB.Close(); err != nil {
			zap.L().Error("clickhouse close", zap.Error(err))
		}
	}
}

// EventsByRun returns all events of a run ordered by day and timestamp.
func (a *Analytics) EventsByRun(ctx context.Context, runID string) ([]Event, error) {
	if a == nil || a.DB == nil {
		return nil, ErrUnavailable
	}
	query := `SELECT timestamp, event_type, run_id, campaign, day, keyword_id, ad_id, headline_id, description_id, impressions, clicks, conversions, cost, quality_score, search_is FROM simulation_events WHERE run_id=? ORDER BY day, timestamp`
	rows, err := a.DB.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			zap.L().Warn("rows close", zap.Error(err))
		}
	}()

	var events []Event
	for rows.Next() {
		var ev Event
		var day uint16
		if err := rows.Scan(&ev.Timestamp, &ev.EventType, &ev.RunID, &ev.Campaign, &day, &ev.KeywordID, &ev.AdID, &ev.HeadlineID, &ev.DescriptionID, &ev.Impressions, &ev.Clicks, &ev.Conversions, &ev.Cost, &ev.QualityScore, &ev.SearchIS); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Day = int(day)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return events, nil
}
