package rsa

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPerformanceInsights(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil, nil, nil)
	ad := NewAd("ad-1", "ag", []string{"low", "high", "tie", "unserved", "paused"}, []string{"D1", "D2"})
	d := ad.Descriptions[0].ID

	// scores: low 0, high 0.1*0.5*100 = 5, tie 0
	require.NoError(t, e.UpdatePerformance(ad, ad.Headlines[0].ID, d, 2, 200, 0))
	require.NoError(t, e.UpdatePerformance(ad, ad.Headlines[1].ID, d, 20, 200, 10))
	require.NoError(t, e.UpdatePerformance(ad, ad.Headlines[2].ID, d, 3, 300, 0))
	require.NoError(t, e.UpdatePerformance(ad, ad.Headlines[4].ID, d, 5, 50, 5))
	require.NoError(t, ad.SetStatus(ad.Headlines[4].ID, StatusPaused))

	in := e.PerformanceInsights(ad)

	require.Len(t, in.HeadlinePerformance, 3)
	assert.Equal(t, "high", in.HeadlinePerformance[0].Text)
	assert.Equal(t, "low", in.HeadlinePerformance[1].Text, "ties keep pool order")
	assert.Equal(t, "tie", in.HeadlinePerformance[2].Text)
	assert.InDelta(t, 0.1, in.HeadlinePerformance[0].CTR, 1e-12)
	assert.InDelta(t, 0.5, in.HeadlinePerformance[0].CVR, 1e-12)

	require.Len(t, in.DescriptionPerformance, 1)
	assert.Equal(t, 750, in.DescriptionPerformance[0].Impressions)

	assert.Equal(t, 750, in.TotalImpressions)
	assert.Equal(t, Learning, in.LearningStatus)
	assert.Equal(t, e.CalculateAdStrength(ad), in.AdStrength)
	assert.Equal(t, []string{
		"Add 11 more headlines to reach the recommended 15 headlines",
		"Add 2 more descriptions to reach the recommended 4 descriptions",
		"Consider pausing or improving 2 low-performing headlines",
	}, in.Recommendations)
}

func TestRecommendationsForCompleteAd(t *testing.T) {
	ad := NewAd("", "ag", texts("headline", 15, 25), texts("description", 4, 80))
	assert.Empty(t, Recommendations(ad))
}
