package quality

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirection(t *testing.T) {
	tests := []struct {
		name   string
		window []float64
		want   TrendDirection
	}{
		{"too short", []float64{5, 6, 7, 8}, TrendInsufficientData},
		{"rising", []float64{5, 5.1, 5.2, 5.2, 5.3}, TrendImproving},
		{"flat", []float64{5, 5, 5, 5, 5}, TrendImproving},
		{"falling", []float64{6, 5.9, 5.9, 5.8, 5.7}, TrendDeclining},
		{"mixed", []float64{5, 5.2, 5.1, 5.3, 5.0}, TrendStable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, direction(tt.window))
		})
	}
}

func TestQSTrendInsufficientData(t *testing.T) {
	e := newTestEngine()
	require.NoError(t, e.InitializeKeyword("k", 5.0))
	record(t, e, "k", 4, 0.05, 0.8)

	tr, err := e.QSTrend("k")
	require.NoError(t, err)
	assert.Equal(t, TrendInsufficientData, tr.Direction)
	assert.Equal(t, PerformanceInsufficientData, tr.Performance)
	assert.Equal(t, "Need 6 more data points for analysis.", tr.Recommendation)
	assert.Equal(t, 4, tr.DataPoints)
	assert.Equal(t, []float64{5.0}, tr.History)
}

func TestQSTrendImproving(t *testing.T) {
	e := newTestEngine()
	require.NoError(t, e.InitializeKeyword("k", 5.0))
	record(t, e, "k", 20, 0.08, 0.9)
	for day := 1; day <= 6; day++ {
		e.UpdateQualityScores(day)
	}

	tr, err := e.QSTrend("k")
	require.NoError(t, err)
	assert.Equal(t, TrendImproving, tr.Direction)
	assert.Equal(t, PerformanceExcellent, tr.Performance)
	assert.Equal(t, 5.0, tr.InitialQS)
	assert.Greater(t, tr.Change, 0.0)
	assert.Len(t, tr.History, 7)
}

func TestQSTrendDeclining(t *testing.T) {
	e := newTestEngine()
	require.NoError(t, e.InitializeKeyword("k", 8.0))
	record(t, e, "k", 20, 0.005, 0.3)
	for day := 1; day <= 6; day++ {
		e.UpdateQualityScores(day)
	}

	tr, err := e.QSTrend("k")
	require.NoError(t, err)
	assert.Equal(t, TrendDeclining, tr.Direction)
	assert.Equal(t, PerformanceBelowAverage, tr.Performance)
	assert.Less(t, tr.Change, 0.0)
}

func TestQSTrendUnknownKeyword(t *testing.T) {
	_, err := newTestEngine().QSTrend("nope")
	assert.True(t, errors.Is(err, ErrKeywordNotFound))
}

func TestImprovementRecommendations(t *testing.T) {
	t.Run("healthy keyword", func(t *testing.T) {
		e := newTestEngine()
		require.NoError(t, e.InitializeKeyword("k", 7.0))

		recs, err := e.ImprovementRecommendations("k")
		require.NoError(t, err)
		assert.Equal(t, []string{
			"Quality Score is performing well!",
			"Continue current strategy and monitor regularly.",
		}, recs)
	})

	t.Run("low score only", func(t *testing.T) {
		e := newTestEngine()
		require.NoError(t, e.InitializeKeyword("k", 4.0))

		recs, err := e.ImprovementRecommendations("k")
		require.NoError(t, err)
		require.Len(t, recs, 4)
		assert.Equal(t, "Quality Score needs work:", recs[0])
	})

	t.Run("low ctr and relevance", func(t *testing.T) {
		e := newTestEngine()
		require.NoError(t, e.InitializeKeyword("k", 6.0))
		record(t, e, "k", 10, 0.01, 0.5)

		recs, err := e.ImprovementRecommendations("k")
		require.NoError(t, err)
		require.Len(t, recs, 9)
		assert.Equal(t, "CTR is low. Try:", recs[0])
		assert.Equal(t, "Ad relevance is low. Try:", recs[5])
	})

	t.Run("inconsistent ctr", func(t *testing.T) {
		e := newTestEngine()
		require.NoError(t, e.InitializeKeyword("k", 6.0))
		for i := 0; i < 20; i++ {
			ctr := 0.0
			if i%2 == 0 {
				ctr = 0.4
			}
			require.NoError(t, e.RecordPerformance("k", ctr, 0.03, 0.9))
		}

		recs, err := e.ImprovementRecommendations("k")
		require.NoError(t, err)
		assert.Equal(t, []string{
			"Performance is inconsistent:",
			"  • Review ad scheduling",
			"  • Check device performance",
			"  • Analyze by time of day",
		}, recs)
	})

	t.Run("unknown keyword", func(t *testing.T) {
		_, err := newTestEngine().ImprovementRecommendations("missing")
		assert.True(t, errors.Is(err, ErrKeywordNotFound))
	})
}
