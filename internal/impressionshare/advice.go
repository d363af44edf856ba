package impressionshare

import "fmt"

// Recommendations turns a breakdown into ordered guidance. The list always
// ends with a primary-issue attribution comparing budget and rank loss.
func Recommendations(m Metrics) []string {
	var recs []string

	switch {
	case m.SearchImpressionShare < 20:
		recs = append(recs,
			"⚠️ Very low impression share (<20%)",
			"You're missing most of the available traffic.")
	case m.SearchImpressionShare < 50:
		recs = append(recs,
			"📊 Moderate impression share (20-50%)",
			"Good starting point, but room to grow.")
	default:
		recs = append(recs,
			"✅ Strong impression share (50%+)",
			"You're capturing a significant portion of the market.")
	}

	if m.SearchLostISBudget > 20 {
		recs = append(recs,
			"💰 High budget loss (>20%):",
			"  • Increase daily budget",
			"  • Use automated bidding to optimize spend",
			"  • Focus on high-converting keywords",
			"  • Pause low-performing keywords")
	}

	if m.SearchLostISRank > 20 {
		recs = append(recs,
			"📈 High rank loss (>20%):",
			"  • Improve Quality Score",
			"  • Increase bids",
			"  • Add ad extensions",
			"  • Improve ad relevance")
	}

	if m.SearchAbsoluteTopIS < 10 {
		recs = append(recs,
			"🎯 Low absolute top impression share:",
			"  • Rarely appearing in position 1",
			"  • Increase bids for top positions",
			"  • Focus on high-QS keywords")
	}

	if m.SearchLostISBudget > m.SearchLostISRank {
		recs = append(recs,
			"💡 Primary issue: Budget constraints",
			"→ Focus on increasing budget or improving efficiency")
	} else {
		recs = append(recs,
			"💡 Primary issue: Ad Rank",
			"→ Focus on improving bids and Quality Score")
	}
	return recs
}

// Benchmark is a per-industry set of search impression share thresholds.
type Benchmark struct {
	Good    float64 `json:"good"`
	Average float64 `json:"average"`
	Poor    float64 `json:"poor"`
}

// DefaultIndustry is used for unknown industry keys.
const DefaultIndustry = "general"

var benchmarks = map[string]Benchmark{
	"general": {Good: 50, Average: 30, Poor: 15},
	"retail":  {Good: 60, Average: 40, Poor: 20},
	"b2b":     {Good: 50, Average: 30, Poor: 15},
	"finance": {Good: 40, Average: 25, Poor: 10},
	"local":   {Good: 70, Average: 50, Poor: 30},
}

// Industries lists the industries with their own benchmark.
func Industries() []string {
	return []string{"general", "retail", "b2b", "finance", "local"}
}

// Comparison grades a breakdown against an industry benchmark.
type Comparison struct {
	Industry        string  `json:"industry"`
	Performance     string  `json:"performance"`
	Message         string  `json:"message"`
	YourIS          float64 `json:"your_is"`
	IndustryGood    float64 `json:"industry_good"`
	IndustryAverage float64 `json:"industry_average"`
	GapToGood       float64 `json:"gap_to_good"`
}

// CompareToBenchmarks grades m against industry. Unknown industries use the
// general thresholds; the message still names the requested industry.
func CompareToBenchmarks(m Metrics, industry string) Comparison {
	b, ok := benchmarks[industry]
	if !ok {
		b = benchmarks[DefaultIndustry]
	}
	your := m.SearchImpressionShare

	c := Comparison{
		Industry:        industry,
		YourIS:          your,
		IndustryGood:    b.Good,
		IndustryAverage: b.Average,
		GapToGood:       b.Good - your,
	}
	switch {
	case your >= b.Good:
		c.Performance = "excellent"
		c.Message = fmt.Sprintf("Your IS is above the %s industry benchmark!", industry)
	case your >= b.Average:
		c.Performance = "good"
		c.Message = fmt.Sprintf("Your IS is around the %s industry average.", industry)
	case your >= b.Poor:
		c.Performance = "below_average"
		c.Message = fmt.Sprintf("Your IS is below the %s industry average.", industry)
	default:
		c.Performance = "poor"
		c.Message = fmt.Sprintf("Your IS is significantly below the %s industry benchmark.", industry)
	}
	return c
}
