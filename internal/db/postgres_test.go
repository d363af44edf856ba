package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrickwarner/adsimulator/internal/config"
)

func setupTestStore(t *testing.T) *Postgres {
	t.Helper()
	p, err := InitSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p
}

func TestInsertAndLoadDailyResults(t *testing.T) {
	p := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, p.InsertRun(ctx, Run{ID: "run-1", Campaign: "shoes", Industry: "retail", Seed: 42, Days: 2}))

	rows := []DailyResult{
		{RunID: "run-1", Day: 2, KeywordID: "kw-a", Impressions: 900, Clicks: 30, Conversions: 2, Cost: 45.5, QualityScore: 6.1},
		{RunID: "run-1", Day: 1, KeywordID: "kw-b", Impressions: 500, Clicks: 10, Conversions: 1, Cost: 12.25, QualityScore: 4.9},
		{RunID: "run-1", Day: 1, KeywordID: "kw-a", Impressions: 800, Clicks: 25, Conversions: 0, Cost: 40, QualityScore: 6.0},
	}
	require.NoError(t, p.InsertDailyResults(ctx, rows))

	got, err := p.LoadDailyResults(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, rows[2], got[0])
	assert.Equal(t, rows[1], got[1])
	assert.Equal(t, rows[0], got[2])
}

func TestInsertDailyResultsIsAtomic(t *testing.T) {
	p := setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, p.InsertRun(ctx, Run{ID: "run-1", Campaign: "shoes", Industry: "retail", Days: 1}))

	dup := DailyResult{RunID: "run-1", Day: 1, KeywordID: "kw-a", Impressions: 1}
	err := p.InsertDailyResults(ctx, []DailyResult{dup, dup})
	require.Error(t, err)

	got, err := p.LoadDailyResults(ctx, "run-1")
	require.NoError(t, err)
	assert.Empty(t, got, "failed batch leaves no rows behind")
}

func TestInsertDailyResultsUnknownRun(t *testing.T) {
	p := setupTestStore(t)
	err := p.InsertDailyResults(context.Background(), []DailyResult{{RunID: "missing", Day: 1, KeywordID: "kw"}})
	assert.Error(t, err)
}

func TestInsertDailyResultsEmpty(t *testing.T) {
	p := setupTestStore(t)
	assert.NoError(t, p.InsertDailyResults(context.Background(), nil))
}

func TestRunIDs(t *testing.T) {
	p := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, p.InsertRun(ctx, Run{ID: "b", Campaign: "shoes", Industry: "retail", Days: 1, CreatedAt: base.Add(time.Hour)}))
	require.NoError(t, p.InsertRun(ctx, Run{ID: "a", Campaign: "shoes", Industry: "retail", Days: 1, CreatedAt: base}))
	require.NoError(t, p.InsertRun(ctx, Run{ID: "c", Campaign: "hats", Industry: "retail", Days: 1}))

	ids, err := p.RunIDs(ctx, "shoes")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)

	err = p.InsertRun(ctx, Run{ID: "a", Campaign: "shoes", Industry: "retail", Days: 1})
	assert.Error(t, err, "duplicate run id")
}

func TestOpenRunStoreSQLite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "runs.db")
	cfg := config.Config{RunStoreDriver: "sqlite", SQLitePath: path}

	p, err := OpenRunStore(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, p.InsertRun(ctx, Run{ID: "run-1", Campaign: "shoes", Industry: "retail", Days: 1}))
	p.Close()

	// reopening the file keeps earlier runs
	p, err = OpenRunStore(ctx, cfg)
	require.NoError(t, err)
	defer p.Close()
	ids, err := p.RunIDs(ctx, "shoes")
	require.NoError(t, err)
	assert.Equal(t, []string{"run-1"}, ids)
}
