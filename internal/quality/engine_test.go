package quality

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrickwarner/adsimulator/internal/observability"
)

func newTestEngine() *Engine {
	return NewEngine(DefaultConfig(), nil, nil)
}

func record(t *testing.T, e *Engine, id string, n int, ctr, relevance float64) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, e.RecordPerformance(id, ctr, ExpectedCTR(5), relevance))
	}
}

func TestInitializeKeyword(t *testing.T) {
	e := newTestEngine()
	require.NoError(t, e.InitializeKeyword("k1", 5.0))

	h, err := e.History("k1")
	require.NoError(t, err)
	assert.Equal(t, []float64{5.0}, h.QSHistory())
	assert.Equal(t, 0, h.DataPoints())

	err = e.InitializeKeyword("k1", 7.0)
	assert.True(t, errors.Is(err, ErrKeywordExists))
	qs, _ := e.CurrentQS("k1")
	assert.Equal(t, 5.0, qs, "duplicate initialisation must not reset state")
}

func TestInitializeKeywordRejectsOutOfRange(t *testing.T) {
	e := newTestEngine()
	for _, qs := range []float64{0.5, 10.5, math.NaN()} {
		err := e.InitializeKeyword("bad", qs)
		assert.True(t, errors.Is(err, ErrInvalidQualityScore), "qs=%v", qs)
	}
	assert.Empty(t, e.Keywords())
}

func TestRecordPerformanceUnknownKeyword(t *testing.T) {
	e := newTestEngine()
	err := e.RecordPerformance("missing", 0.05, 0.03, 0.8)
	assert.True(t, errors.Is(err, ErrKeywordNotFound))
}

func TestUpdateQualityScoresInsufficientData(t *testing.T) {
	e := newTestEngine()
	require.NoError(t, e.InitializeKeyword("k1", 5.0))
	record(t, e, "k1", 5, 0.10, 0.9)

	scores := e.UpdateQualityScores(1)
	assert.Equal(t, 5.0, scores["k1"])

	h, _ := e.History("k1")
	assert.Len(t, h.QSHistory(), 1, "no history entry without enough data")
}

func TestUpdateQualityScoresIncreasesForStrongCTR(t *testing.T) {
	e := newTestEngine()
	require.NoError(t, e.InitializeKeyword("k1", 5.0))
	record(t, e, "k1", 15, 0.06, 0.9)

	scores := e.UpdateQualityScores(1)

	// ratio 0.06/0.03 = 2.0 -> +0.03, relevance 0.9 -> +0.015
	assert.Greater(t, scores["k1"], 5.0)
	assert.InDelta(t, 5.045, scores["k1"], 1e-9)
}

func TestUpdateQualityScoresDecreasesForWeakPerformance(t *testing.T) {
	e := newTestEngine()
	require.NoError(t, e.InitializeKeyword("k1", 8.0))
	record(t, e, "k1", 12, 0.005, 0.3)

	scores := e.UpdateQualityScores(1)

	// ratio far below 0.8 -> -0.02, relevance below 0.5 -> -0.015
	assert.InDelta(t, 7.965, scores["k1"], 1e-9)
}

func TestCTRBracketsApplyInPriorityOrder(t *testing.T) {
	tests := []struct {
		name  string
		ratio float64
		want  float64
	}{
		{"excellent", 1.3, 0.03},
		{"good", 1.1, 0.01},
		{"neutral", 0.97, 0},
		{"slightly below", 0.9, -0.01},
		{"poor", 0.5, -0.02},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine()
			require.NoError(t, e.InitializeKeyword("k", 5.0))
			// relevance 0.7 contributes nothing
			record(t, e, "k", 10, tt.ratio*ExpectedCTR(5.0), 0.7)

			scores := e.UpdateQualityScores(1)
			assert.InDelta(t, 5.0+tt.want, scores["k"], 1e-9)
		})
	}
}

func TestConsistencyBonus(t *testing.T) {
	e := newTestEngine()
	require.NoError(t, e.InitializeKeyword("steady", 5.0))
	require.NoError(t, e.InitializeKeyword("short", 5.0))
	record(t, e, "steady", 50, 0.97*ExpectedCTR(5.0), 0.7)
	record(t, e, "short", 49, 0.97*ExpectedCTR(5.0), 0.7)

	scores := e.UpdateQualityScores(1)

	assert.InDelta(t, 5.01, scores["steady"], 1e-9)
	assert.InDelta(t, 5.0, scores["short"], 1e-9)
}

func TestQualityScoreStaysClamped(t *testing.T) {
	e := NewEngine(Config{EvolutionRate: 1.0}, nil, nil)
	require.NoError(t, e.InitializeKeyword("high", 9.9))
	require.NoError(t, e.InitializeKeyword("low", 1.1))

	for day := 0; day < 200; day++ {
		record(t, e, "high", 10, 0.5, 1.0)
		record(t, e, "low", 10, 0.0, 0.0)
		scores := e.UpdateQualityScores(day)
		for id, qs := range scores {
			assert.GreaterOrEqual(t, qs, MinQS, id)
			assert.LessOrEqual(t, qs, MaxQS, id)
		}
	}

	high, _ := e.CurrentQS("high")
	low, _ := e.CurrentQS("low")
	assert.Equal(t, MaxQS, high)
	assert.Equal(t, MinQS, low)
}

func TestHistoryIsBounded(t *testing.T) {
	e := newTestEngine()
	require.NoError(t, e.InitializeKeyword("k", 5.0))
	record(t, e, "k", 150, 0.06, 0.9)

	for day := 0; day < 40; day++ {
		e.UpdateQualityScores(day)
	}

	h, _ := e.History("k")
	assert.Len(t, h.QSHistory(), 30)
	assert.Len(t, h.CTRHistory(), 100)
	assert.Len(t, h.RelevanceHistory(), 50)
}

func TestExpectedCTRTiers(t *testing.T) {
	assert.InDelta(t, 0.01, ExpectedCTR(1), 1e-12)
	assert.InDelta(t, 0.02, ExpectedCTR(3), 1e-12)
	assert.InDelta(t, 0.02, ExpectedCTR(4), 1e-12)
	assert.InDelta(t, 0.04, ExpectedCTR(6), 1e-12)
	assert.InDelta(t, 0.04, ExpectedCTR(7), 1e-12)
	assert.InDelta(t, 0.079, ExpectedCTR(10), 1e-12)
}

func TestVarianceIsPopulation(t *testing.T) {
	assert.Equal(t, 0.0, Variance(nil))
	assert.InDelta(t, 1.25, Variance([]float64{1, 2, 3, 4}), 1e-12)
}

func TestUpdateReportsMetrics(t *testing.T) {
	metrics := observability.NewMockMetricsRegistry()
	e := NewEngine(DefaultConfig(), nil, metrics)
	require.NoError(t, e.InitializeKeyword("k1", 5.0))
	require.NoError(t, e.InitializeKeyword("k2", 5.0))
	record(t, e, "k1", 10, 0.06, 0.9)

	scores := e.UpdateQualityScores(1)

	assert.Equal(t, 1, metrics.Count("qs_updates:adjusted"))
	assert.Equal(t, 1, metrics.Count("qs_updates:insufficient_data"))
	qs, ok := metrics.Gauge("qs:k1")
	assert.True(t, ok)
	assert.Equal(t, scores["k1"], qs)
}

func TestSnapshotRestore(t *testing.T) {
	e := newTestEngine()
	require.NoError(t, e.InitializeKeyword("b", 4.0))
	require.NoError(t, e.InitializeKeyword("a", 6.0))
	record(t, e, "a", 12, 0.06, 0.9)
	e.UpdateQualityScores(1)

	snap := e.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "a", snap[0].KeywordID)

	restored := newTestEngine()
	require.NoError(t, restored.Restore(snap))
	assert.Equal(t, snap, restored.Snapshot())

	qs, err := restored.CurrentQS("a")
	require.NoError(t, err)
	orig, _ := e.CurrentQS("a")
	assert.Equal(t, orig, qs)
}

func TestRestoreRejectsDuplicates(t *testing.T) {
	e := newTestEngine()
	require.NoError(t, e.InitializeKeyword("keep", 5.0))

	err := e.Restore([]KeywordState{
		{KeywordID: "x", CurrentQS: 5},
		{KeywordID: "x", CurrentQS: 6},
	})
	assert.True(t, errors.Is(err, ErrKeywordExists))
	assert.Equal(t, []string{"keep"}, e.Keywords())
}
