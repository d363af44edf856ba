package rsa

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrickwarner/adsimulator/internal/observability"
)

// scriptedSource replays fixed values, repeating the last one.
type scriptedSource struct {
	values []float64
	i      int
}

func (s *scriptedSource) Float64() float64 {
	if s.i >= len(s.values) {
		return s.values[len(s.values)-1]
	}
	v := s.values[s.i]
	s.i++
	return v
}

func texts(prefix string, n, length int) []string {
	out := make([]string, n)
	for i := range out {
		s := fmt.Sprintf("%s %d ", prefix, i)
		out[i] = s + strings.Repeat("x", max(length-len(s), 0))
	}
	return out
}

func TestAdStrengthTiers(t *testing.T) {
	tests := []struct {
		name         string
		headlines    int
		descriptions int
		want         Strength
	}{
		{"empty", 0, 0, StrengthPoor},
		{"minimal", 3, 2, StrengthPoor},
		{"moderate", 10, 3, StrengthAverage},
		{"full", 15, 4, StrengthGood},
	}
	e := NewEngine(DefaultConfig(), nil, nil, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ad := NewAd("", "ag", texts("headline", tt.headlines, 25), texts("description", tt.descriptions, 80))
			assert.Equal(t, tt.want, e.CalculateAdStrength(ad))
		})
	}
}

func TestAdStrengthMaximumScore(t *testing.T) {
	headlines := make([]string, 15)
	for i := range headlines {
		// four unique words each, 60 unique in total
		headlines[i] = fmt.Sprintf("alpha%d beta%d gamma%d delta%d", i, i, i, i)
	}
	ad := NewAd("", "ag", headlines, texts("description", 4, 80))

	b := AdStrengthScore(ad)
	assert.Equal(t, 25, b.HeadlineCount)
	assert.Equal(t, 15, b.DescriptionCount)
	assert.Equal(t, 10, b.HeadlineLength)
	assert.Equal(t, 10, b.DescriptionLen)
	assert.Equal(t, 10, b.Diversity)
	assert.Equal(t, 70, b.Total)
	assert.Equal(t, StrengthGood, strengthRating(b.Total))
	assert.Equal(t, StrengthExcellent, strengthRating(80))
}

func TestAdStrengthLengthBands(t *testing.T) {
	assert.Equal(t, 10, lengthPoints(20, 20, 30, 15, 35))
	assert.Equal(t, 10, lengthPoints(30, 20, 30, 15, 35))
	assert.Equal(t, 5, lengthPoints(15, 20, 30, 15, 35))
	assert.Equal(t, 5, lengthPoints(35, 20, 30, 15, 35))
	assert.Equal(t, 0, lengthPoints(36, 20, 30, 15, 35))
}

func TestAdStrengthIgnoresDisabledAssets(t *testing.T) {
	ad := NewAd("", "ag", texts("headline", 5, 25), texts("description", 2, 80))
	before := AdStrengthScore(ad)

	require.NoError(t, ad.SetStatus(ad.Headlines[0].ID, StatusPaused))
	require.NoError(t, ad.SetStatus(ad.Headlines[1].ID, StatusRemoved))

	after := AdStrengthScore(ad)
	assert.Equal(t, 15, before.HeadlineCount)
	assert.Equal(t, 10, after.HeadlineCount)
}

func TestAdStrengthMonotonicInHeadlineCount(t *testing.T) {
	ad := NewAd("", "ag", nil, texts("description", 4, 80))
	prev := AdStrengthScore(ad).HeadlineCount
	for i := 0; i < 20; i++ {
		ad.AddHeadline(fmt.Sprintf("Headline number %02d here", i))
		cur := AdStrengthScore(ad).HeadlineCount
		assert.GreaterOrEqual(t, cur, prev)
		prev = cur
	}
}

func TestAdStrengthIsPure(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil, nil, nil)
	ad := NewAd("ad-1", "ag", texts("headline", 7, 22), texts("description", 3, 75))
	snapshot, err := json.Marshal(ad)
	require.NoError(t, err)

	first := e.CalculateAdStrength(ad)
	second := e.CalculateAdStrength(ad)
	assert.Equal(t, first, second)

	after, err := json.Marshal(ad)
	require.NoError(t, err)
	assert.JSONEq(t, string(snapshot), string(after))
}

func TestGenerateCombinationNoEligibleAssets(t *testing.T) {
	metrics := observability.NewMockMetricsRegistry()
	e := NewEngine(DefaultConfig(), NewSeededSource(1), nil, metrics)

	ad := NewAd("ad-1", "ag", []string{"Only headline"}, []string{"Only description"})
	require.NoError(t, ad.SetStatus(ad.Descriptions[0].ID, StatusPaused))

	_, err := e.GenerateCombination(ad, RotationOptimize)
	assert.True(t, errors.Is(err, ErrNoEligibleAssets))
	assert.Equal(t, 1, metrics.Count("rsa_serves:optimize:no_assets"))
}

func TestRotateEvenlyIsUniform(t *testing.T) {
	e := NewEngine(DefaultConfig(), NewSeededSource(42), nil, nil)
	ad := NewAd("ad-1", "ag", []string{"H1", "H2"}, []string{"D1", "D2"})

	const draws = 10000
	headlines := map[string]int{}
	descriptions := map[string]int{}
	for i := 0; i < draws; i++ {
		c, err := e.GenerateCombination(ad, RotationRotateEvenly)
		require.NoError(t, err)
		headlines[c.Headline]++
		descriptions[c.Description]++
	}

	for _, name := range []string{"H1", "H2"} {
		assert.InDelta(t, 0.5, float64(headlines[name])/draws, 0.03, name)
	}
	for _, name := range []string{"D1", "D2"} {
		assert.InDelta(t, 0.5, float64(descriptions[name])/draws, 0.03, name)
	}
}

func TestSelectOptimizedWeightedMath(t *testing.T) {
	ad := NewAd("ad-1", "ag", []string{"strong", "weak"}, []string{"d"})
	ad.Headlines[0].PerformanceScore = 3.0
	ad.Headlines[1].PerformanceScore = 1.0

	// zero jitter, weights 3 and 1; r = 4 * x
	tests := []struct {
		x    float64
		want string
	}{
		{0.0, "strong"},
		{0.74, "strong"},
		{0.75, "strong"},
		{0.76, "weak"},
		{0.999, "weak"},
	}
	for _, tt := range tests {
		rng := &scriptedSource{values: []float64{0, 0, tt.x}}
		e := NewEngine(DefaultConfig(), rng, nil, nil)
		got := e.selectOptimized(ad.Headlines)
		assert.Equal(t, tt.want, got.Text, "x=%v", tt.x)
	}
}

func TestSelectOptimizedExploresFreshAssets(t *testing.T) {
	ad := NewAd("ad-1", "ag", []string{"scored", "fresh"}, []string{"d"})
	ad.Headlines[0].PerformanceScore = 0.9

	// weights: 0.9 + 0.1*0.5 = 0.95 and 0.1 + 0.05*0.5 = 0.125
	// r lands past the first weight only when x > 0.95/1.075
	rng := &scriptedSource{values: []float64{0.5, 0.5, 0.9}}
	e := NewEngine(DefaultConfig(), rng, nil, nil)
	assert.Equal(t, "fresh", e.selectOptimized(ad.Headlines).Text)

	rng = &scriptedSource{values: []float64{0.5, 0.5, 0.8}}
	e = NewEngine(DefaultConfig(), rng, nil, nil)
	assert.Equal(t, "scored", e.selectOptimized(ad.Headlines).Text)
}

func TestSelectOptimizedWithoutScoresIsRoughlyEven(t *testing.T) {
	e := NewEngine(DefaultConfig(), NewSeededSource(7), nil, nil)
	ad := NewAd("ad-1", "ag", []string{"A", "B"}, []string{"D"})

	counts := map[string]int{}
	for i := 0; i < 5000; i++ {
		c, err := e.GenerateCombination(ad, RotationOptimize)
		require.NoError(t, err)
		counts[c.Headline]++
	}
	assert.InDelta(t, 0.5, float64(counts["A"])/5000, 0.05)
}

func TestUpdatePerformance(t *testing.T) {
	metrics := observability.NewMockMetricsRegistry()
	e := NewEngine(DefaultConfig(), nil, nil, metrics)
	ad := NewAd("ad-1", "ag", []string{"H1", "H2"}, []string{"D1"})
	h, d := ad.Headlines[0], ad.Descriptions[0]

	require.NoError(t, e.UpdatePerformance(ad, h.ID, d.ID, 10, 200, 2))

	assert.Equal(t, 200, h.Impressions)
	assert.Equal(t, 10, h.Clicks)
	assert.Equal(t, 2, h.Conversions)
	// ctr 0.05 * cvr 0.2 * 100
	assert.InDelta(t, 1.0, h.PerformanceScore, 1e-9)
	assert.InDelta(t, 1.0, d.PerformanceScore, 1e-9)
	assert.Equal(t, 0, ad.Headlines[1].Impressions)
	assert.Equal(t, 1, metrics.Count("rsa_feedback:headline:ok"))
}

func TestUpdatePerformanceConversionsWithoutClicks(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil, nil, nil)
	ad := NewAd("ad-1", "ag", []string{"H"}, []string{"D"})

	require.NoError(t, e.UpdatePerformance(ad, ad.Headlines[0].ID, ad.Descriptions[0].ID, 0, 100, 1))
	assert.Equal(t, 0.0, ad.Headlines[0].PerformanceScore)
	assert.Equal(t, 1.0, ad.Headlines[0].CVR())
}

func TestUpdatePerformanceUnknownAsset(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil, nil, nil)
	ad := NewAd("ad-1", "ag", []string{"H"}, []string{"D"})

	err := e.UpdatePerformance(ad, ad.Headlines[0].ID, "missing", 1, 10, 0)
	assert.True(t, errors.Is(err, ErrAssetNotFound))
	assert.Equal(t, 0, ad.Headlines[0].Impressions, "nothing recorded on partial match")

	// a description ID in the headline slot is rejected
	err = e.UpdatePerformance(ad, ad.Descriptions[0].ID, ad.Descriptions[0].ID, 1, 10, 0)
	assert.True(t, errors.Is(err, ErrAssetNotFound))

	err = e.UpdatePerformance(ad, ad.Headlines[0].ID, ad.Descriptions[0].ID, -1, 10, 0)
	assert.True(t, errors.Is(err, ErrInvalidCounts))
}

func TestUpdatePerformanceByText(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil, nil, nil)
	ad := NewAd("ad-1", "ag", []string{"Same", "Same"}, []string{"D"})

	require.NoError(t, e.UpdatePerformanceByText(ad, "Same", "D", 5, 50, 1))
	assert.Equal(t, 50, ad.Headlines[0].Impressions)
	assert.Equal(t, 0, ad.Headlines[1].Impressions)

	err := e.UpdatePerformanceByText(ad, "Other", "D", 5, 50, 1)
	assert.True(t, errors.Is(err, ErrAssetNotFound))
}

func TestLearningStatusBoundaries(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil, nil, nil)
	tests := []struct {
		impressions int
		want        LearningStatus
	}{
		{0, Learning},
		{999, Learning},
		{1000, Limited},
		{4999, Limited},
		{5000, Optimized},
		{50000, Optimized},
	}
	for _, tt := range tests {
		ad := NewAd("", "ag", []string{"H1", "H2"}, []string{"D"})
		ad.Headlines[0].Impressions = tt.impressions
		assert.Equal(t, tt.want, e.LearningStatus(ad), "impressions=%d", tt.impressions)
	}
}

func TestLearningStatusCountsPausedHeadlines(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil, nil, nil)
	ad := NewAd("", "ag", []string{"H1", "H2"}, []string{"D"})
	ad.Headlines[0].Impressions = 600
	ad.Headlines[1].Impressions = 600
	require.NoError(t, ad.SetStatus(ad.Headlines[1].ID, StatusPaused))

	assert.Equal(t, Limited, e.LearningStatus(ad))
}

func TestLearningStatusAdvancesWithFeedback(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil, nil, nil)
	ad := NewAd("", "ag", []string{"H"}, []string{"D"})
	h, d := ad.Headlines[0].ID, ad.Descriptions[0].ID

	seen := []LearningStatus{ad.LearningStatus}
	for i := 0; i < 12; i++ {
		require.NoError(t, e.UpdatePerformance(ad, h, d, 1, 500, 0))
		if ad.LearningStatus != seen[len(seen)-1] {
			seen = append(seen, ad.LearningStatus)
		}
	}
	assert.Equal(t, []LearningStatus{Learning, Limited, Optimized}, seen)
}

func TestAdJSONRoundTripRebuildsIndex(t *testing.T) {
	ad := NewAd("ad-1", "ag", []string{"H"}, []string{"D"})
	data, err := json.Marshal(ad)
	require.NoError(t, err)

	var decoded Ad
	require.NoError(t, json.Unmarshal(data, &decoded))
	a, ok := decoded.Asset(ad.Headlines[0].ID)
	require.True(t, ok)
	assert.Equal(t, "H", a.Text)
}

func TestSetStatusValidation(t *testing.T) {
	ad := NewAd("", "ag", []string{"H"}, []string{"D"})
	assert.True(t, errors.Is(ad.SetStatus(ad.Headlines[0].ID, "archived"), ErrInvalidStatus))
	assert.True(t, errors.Is(ad.SetStatus("nope", StatusPaused), ErrAssetNotFound))
}

func TestParseRotation(t *testing.T) {
	assert.Equal(t, RotationRotateEvenly, ParseRotation("rotate_evenly"))
	assert.Equal(t, RotationOptimize, ParseRotation(""))
	assert.Equal(t, RotationOptimize, ParseRotation("bogus"))
}
