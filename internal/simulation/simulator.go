// Package simulation drives the quality score, responsive search ad,
// targeting and impression share models through a day-by-day campaign run.
// A Simulator owns one set of engines and is used from one goroutine; RunAll
// parallelises across scenarios, never within one.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/patrickwarner/adsimulator/internal/analytics"
	"github.com/patrickwarner/adsimulator/internal/config"
	"github.com/patrickwarner/adsimulator/internal/db"
	"github.com/patrickwarner/adsimulator/internal/impressionshare"
	"github.com/patrickwarner/adsimulator/internal/observability"
	"github.com/patrickwarner/adsimulator/internal/quality"
	"github.com/patrickwarner/adsimulator/internal/rsa"
	"github.com/patrickwarner/adsimulator/internal/targeting"
)

var tracer = observability.Tracer("adsimulator/simulation")

const (
	// competitorQS is the quality score assumed for every competitor.
	competitorQS = 5.0
	// competitorPressure raises the competing ad rank per competitor.
	competitorPressure = 0.1
	// servesPerBatch caps how many RSA combinations one device batch is
	// split into.
	servesPerBatch = 10
)

type device struct {
	name  string
	share float64
}

// traffic split of a keyword's daily searches
var devices = []device{
	{name: "desktop", share: 0.70},
	{name: "mobile", share: 0.20},
	{name: "tablet", share: 0.10},
}

// RunStore records runs and their daily rows.
type RunStore interface {
	InsertRun(ctx context.Context, run db.Run) error
	InsertDailyResults(ctx context.Context, results []db.DailyResult) error
}

// SnapshotStore keeps the final engine state of a run.
type SnapshotStore interface {
	SaveQualityScores(ctx context.Context, runID string, states []quality.KeywordState) error
	SaveAd(ctx context.Context, ad *rsa.Ad) error
}

// Sinks are optional destinations for simulation output. Nil fields are
// skipped.
type Sinks struct {
	Analytics analytics.Service
	Runs      RunStore
	Snapshots SnapshotStore
}

// Options configure a Simulator. The zero value uses the default engine
// calibration and discards logs and metrics.
type Options struct {
	Engines config.Engines
	Logger  *zap.Logger
	Metrics observability.MetricsRegistry
	Sinks   Sinks
	// RunID overrides the generated run identifier.
	RunID string
}

// Simulator runs one scenario.
type Simulator struct {
	scenario Scenario
	runID    string
	seed     uint32
	rng      *rand.Rand

	quality   *quality.Engine
	rsa       *rsa.Engine
	share     *impressionshare.Calculator
	targeting *targeting.Engine

	ads        []*rsa.Ad
	adsByGroup map[string]*rsa.Ad
	appeal     map[string]float64

	sinks   Sinks
	logger  *zap.Logger
	metrics observability.MetricsRegistry
}

// New builds the engines for sc. The scenario is validated first.
func New(sc Scenario, opts Options) (*Simulator, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	if opts.Engines == (config.Engines{}) {
		opts.Engines = config.DefaultEngines()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	seed := sc.DeterministicSeed()
	rng := rand.New(rand.NewSource(int64(seed)))
	s := &Simulator{
		scenario:   sc,
		runID:      runID,
		seed:       seed,
		rng:        rng,
		quality:    quality.NewEngine(opts.Engines.Quality(), logger, metrics),
		rsa:        rsa.NewEngine(opts.Engines.RSA(), rng, logger, metrics),
		share:      impressionshare.NewCalculator(opts.Engines.ImpressionShare(), logger, metrics),
		targeting:  targeting.NewEngine(nil),
		adsByGroup: make(map[string]*rsa.Ad),
		appeal:     make(map[string]float64),
		sinks:      opts.Sinks,
		logger:     logger.With(zap.String("run_id", runID), zap.String("campaign", sc.Campaign.Name)),
		metrics:    metrics,
	}

	for _, kw := range sc.Keywords {
		if err := s.quality.InitializeKeyword(kw.ID, kw.InitialQS); err != nil {
			return nil, fmt.Errorf("keyword %q: %w", kw.ID, err)
		}
	}
	for _, g := range sc.Target.Geo {
		if _, err := s.targeting.AddGeoTarget(g.ID, g.BidModifier); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidScenario, err)
		}
	}
	for _, a := range sc.Target.Segments {
		if _, err := s.targeting.AddAudienceTarget(a.ID, a.BidModifier); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidScenario, err)
		}
	}
	for _, spec := range sc.Ads {
		ad := rsa.NewAd(spec.ID, spec.AdGroupID, spec.Headlines, spec.Descriptions)
		ad.Rotation = rsa.ParseRotation(spec.Rotation)
		for _, text := range spec.Paused {
			if err := pauseAssets(ad, text); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrInvalidScenario, err)
			}
		}
		s.rsa.Refresh(ad)
		// each asset gets a fixed hidden appeal the optimiser has to discover
		for _, a := range append(append([]*rsa.Asset{}, ad.Headlines...), ad.Descriptions...) {
			s.appeal[a.ID] = s.uniform(0.7, 1.3)
		}
		s.ads = append(s.ads, ad)
		if _, ok := s.adsByGroup[ad.AdGroupID]; !ok {
			s.adsByGroup[ad.AdGroupID] = ad
		}
	}
	return s, nil
}

// pauseAssets pauses every headline and description whose text is text.
func pauseAssets(ad *rsa.Ad, text string) error {
	found := false
	for _, t := range []rsa.AssetType{rsa.Headline, rsa.Description} {
		a, ok := ad.FindByText(t, text)
		if !ok {
			continue
		}
		if err := ad.SetStatus(a.ID, rsa.StatusPaused); err != nil {
			return err
		}
		found = true
	}
	if !found {
		return fmt.Errorf("pause %q: %w", text, rsa.ErrAssetNotFound)
	}
	return nil
}

// RunID identifies the run in every sink.
func (s *Simulator) RunID() string { return s.runID }

// Seed is the seed the run's random source was created with.
func (s *Simulator) Seed() uint32 { return s.seed }

// Quality exposes the run's quality score engine.
func (s *Simulator) Quality() *quality.Engine { return s.quality }

// Ads returns the run's ads in scenario order.
func (s *Simulator) Ads() []*rsa.Ad { return s.ads }

func (s *Simulator) uniform(lo, hi float64) float64 {
	return lo + s.rng.Float64()*(hi-lo)
}

// Run simulates every day of the scenario and returns the report. Only
// context cancellation aborts a run; sink failures are logged and counted.
func (s *Simulator) Run(ctx context.Context) (*Report, error) {
	sc := s.scenario
	ctx, span := tracer.Start(ctx, "simulation.run", trace.WithAttributes(
		attribute.String("run.id", s.runID),
		attribute.String("campaign", sc.Campaign.Name),
		attribute.Int("days", sc.Days),
		attribute.Int64("seed", int64(s.seed)),
	))
	defer span.End()

	s.logger.Info("simulation started",
		zap.Uint32("seed", s.seed),
		zap.Int("days", sc.Days),
		zap.Int("keywords", len(sc.Keywords)),
		zap.Int("ads", len(s.ads)))

	report := &Report{
		RunID:    s.runID,
		Campaign: sc.Campaign.Name,
		Industry: sc.Campaign.Industry,
		Seed:     s.seed,
		Days:     sc.Days,
	}

	if s.sinks.Runs != nil {
		run := db.Run{ID: s.runID, Campaign: sc.Campaign.Name, Industry: sc.Campaign.Industry, Seed: int64(s.seed), Days: sc.Days}
		if err := s.sinks.Runs.InsertRun(ctx, run); err != nil {
			s.logger.Warn("run store unavailable, daily rows will not be persisted", zap.Error(err))
			report.SinkErrors++
			s.sinks.Runs = nil
		}
	}

	for day := 1; day <= sc.Days; day++ {
		if err := ctx.Err(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "cancelled")
			return nil, err
		}
		dr, events := s.simulateDay(ctx, day)
		report.Daily = append(report.Daily, dr)
		report.SinkErrors += s.flushDay(ctx, dr, events)
		s.metrics.IncrementSimulationDays(sc.Campaign.Name)
	}

	if err := s.summarise(report); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	report.SinkErrors += s.saveSnapshots(ctx)

	span.SetAttributes(
		attribute.Int64("impressions", report.Totals.Impressions),
		attribute.Int64("clicks", report.Totals.Clicks),
		attribute.Float64("cost", report.Totals.Cost),
	)
	s.logger.Info("simulation finished",
		zap.Int64("impressions", report.Totals.Impressions),
		zap.Int64("clicks", report.Totals.Clicks),
		zap.Float64("cost", report.Totals.Cost),
		zap.Float64("search_impression_share", report.ImpressionShare.SearchImpressionShare))
	return report, nil
}

// batch is the outcome of one keyword on one device for one day.
type batch struct {
	impressions int64
	clicks      int64
	conversions int64
	cost        float64
	position    float64
	limited     bool
}

func (s *Simulator) simulateDay(ctx context.Context, day int) (DayResult, []analytics.Event) {
	_, span := tracer.Start(ctx, "simulation.day", trace.WithAttributes(attribute.Int("day", day)))
	defer span.End()

	sc := s.scenario
	dr := DayResult{Day: day}
	var events []analytics.Event
	var positionSum, qsSum float64

	for _, kw := range sc.Keywords {
		qs, err := s.quality.CurrentQS(kw.ID)
		if err != nil {
			// every scenario keyword is initialised in New
			s.logger.Error("keyword missing from quality engine", zap.String("keyword", kw.ID), zap.Error(err))
			continue
		}
		kd := KeywordDay{KeywordID: kw.ID}
		for _, dev := range devices {
			searches := int(float64(kw.DailySearches) * dev.share)
			if searches == 0 {
				continue
			}
			remaining := sc.Campaign.DailyBudget - dr.Cost
			if remaining <= 0 {
				dr.BudgetLimited = true
				break
			}
			b, serves := s.auction(day, kw, qs, dev.name, searches, remaining)
			events = append(events, serves...)

			kd.Impressions += b.impressions
			kd.Clicks += b.clicks
			kd.Conversions += b.conversions
			kd.Cost += b.cost
			dr.Impressions += b.impressions
			dr.Clicks += b.clicks
			dr.Conversions += b.conversions
			dr.Cost += b.cost
			dr.BudgetLimited = dr.BudgetLimited || b.limited
			positionSum += b.position * float64(b.impressions)
			qsSum += qs * float64(b.impressions)
		}
		kd.CTR = ratio(kd.Clicks, kd.Impressions)
		dr.Keywords = append(dr.Keywords, kd)
	}

	updated := s.quality.UpdateQualityScores(day)
	for i := range dr.Keywords {
		kd := &dr.Keywords[i]
		kd.QualityScore = updated[kd.KeywordID]
		events = append(events, analytics.Event{
			EventType:    analytics.EventQSUpdate,
			KeywordID:    kd.KeywordID,
			Impressions:  kd.Impressions,
			Clicks:       kd.Clicks,
			Conversions:  kd.Conversions,
			Cost:         kd.Cost,
			QualityScore: kd.QualityScore,
		})
	}

	in := impressionshare.Input{
		Impressions:     int(dr.Impressions),
		Budget:          sc.Campaign.DailyBudget,
		Spend:           dr.Cost,
		AvgPosition:     1,
		AvgQualityScore: meanQS(dr.Keywords),
		CompetitorCount: sc.Campaign.CompetitorCount,
	}
	if dr.Impressions > 0 {
		in.AvgPosition = positionSum / float64(dr.Impressions)
		in.AvgQualityScore = qsSum / float64(dr.Impressions)
	}
	dr.AvgPosition = in.AvgPosition
	if m, err := s.share.Calculate(in); err != nil {
		s.logger.Warn("impression share", zap.Int("day", day), zap.Error(err))
	} else {
		dr.ImpressionShare = m
		events = append(events, analytics.Event{
			EventType:   analytics.EventImpressionShare,
			Impressions: dr.Impressions,
			Cost:        dr.Cost,
			SearchIS:    m.SearchImpressionShare,
		})
	}

	for i := range events {
		events[i].RunID = s.runID
		events[i].Campaign = sc.Campaign.Name
		events[i].Day = day
	}
	span.SetAttributes(attribute.Int64("impressions", dr.Impressions), attribute.Float64("cost", dr.Cost))
	s.logger.Debug("simulated day",
		zap.Int("day", day),
		zap.Int64("impressions", dr.Impressions),
		zap.Int64("clicks", dr.Clicks),
		zap.Float64("cost", dr.Cost),
		zap.Bool("budget_limited", dr.BudgetLimited))
	return dr, events
}

// auction simulates the searches of one keyword on one device. Impressions
// come from the ad rank contest, clicks from the served RSA combinations.
func (s *Simulator) auction(day int, kw Keyword, qs float64, deviceType string, searches int, remaining float64) (batch, []analytics.Event) {
	sc := s.scenario
	ctx := targeting.Context{
		Country:    sc.Target.Country,
		DeviceType: deviceType,
		DayOfWeek:  (day - 1) % 7,
		Audiences:  sc.Target.Audiences,
	}
	bid := kw.CPC * s.targeting.CalculateTotalBidModifier(ctx)
	adRank := bid * qs
	competing := kw.CPC * competitorQS * (1 + competitorPressure*float64(sc.Campaign.CompetitorCount)) * s.uniform(0.9, 1.1)

	var b batch
	winRate := 0.0
	if adRank+competing > 0 {
		winRate = adRank / (adRank + competing)
	}
	impressions := int64(math.Round(float64(searches) * winRate))
	b.position = 1 + (1-winRate)*3

	// performance relative to what the keyword's score predicts stays with
	// the keyword, so scores drift towards its true quality
	ctr := clamp01(kw.BaseCTR / quality.ExpectedCTR(kw.InitialQS) * quality.ExpectedCTR(qs) * s.uniform(0.85, 1.15))
	cpc := math.Min(bid, bid*(1.25-0.05*qs))

	if cpc > 0 && ctr > 0 {
		affordable := remaining / cpc
		if float64(impressions)*ctr > affordable {
			impressions = int64(affordable / ctr)
			b.limited = true
		}
	}
	b.impressions = impressions
	if impressions == 0 {
		return b, nil
	}

	var events []analytics.Event
	ad := s.adsByGroup[kw.AdGroupID]
	if ad == nil {
		b.clicks = int64(math.Round(float64(impressions) * ctr))
		b.conversions = s.conversions(b.clicks, kw.ConversionRate)
	} else {
		events = s.serve(ad, kw, impressions, ctr, &b)
	}

	b.cost = math.Min(float64(b.clicks)*cpc, remaining)
	relevance := clamp01(kw.Relevance * s.uniform(0.9, 1.1))
	actualCTR := float64(b.clicks) / float64(impressions)
	if err := s.quality.RecordPerformance(kw.ID, actualCTR, quality.ExpectedCTR(qs), relevance); err != nil {
		s.logger.Error("record performance", zap.String("keyword", kw.ID), zap.Error(err))
	}
	for i := range events {
		events[i].KeywordID = kw.ID
	}
	return b, events
}

// serve splits impressions across RSA combinations and feeds the resulting
// clicks back to the ad.
func (s *Simulator) serve(ad *rsa.Ad, kw Keyword, impressions int64, ctr float64, b *batch) []analytics.Event {
	n := min(impressions, servesPerBatch)
	per := impressions / n
	events := make([]analytics.Event, 0, n)
	for i := int64(0); i < n; i++ {
		shown := per
		if i == n-1 {
			shown = impressions - per*(n-1)
		}
		combo, err := s.rsa.GenerateCombination(ad, ad.Rotation)
		if errors.Is(err, rsa.ErrNoEligibleAssets) {
			clicks := int64(math.Round(float64(shown) * ctr))
			b.clicks += clicks
			b.conversions += s.conversions(clicks, kw.ConversionRate)
			continue
		}
		lift := s.appeal[combo.HeadlineID] * s.appeal[combo.DescriptionID]
		clicks := int64(math.Round(float64(shown) * clamp01(ctr*lift)))
		conversions := s.conversions(clicks, kw.ConversionRate)
		if err := s.rsa.UpdatePerformance(ad, combo.HeadlineID, combo.DescriptionID, int(clicks), int(shown), int(conversions)); err != nil {
			s.logger.Error("rsa feedback", zap.String("ad_id", ad.ID), zap.Error(err))
			continue
		}
		b.clicks += clicks
		b.conversions += conversions
		events = append(events, analytics.Event{
			EventType:     analytics.EventRSAServe,
			AdID:          ad.ID,
			HeadlineID:    combo.HeadlineID,
			DescriptionID: combo.DescriptionID,
			Impressions:   shown,
			Clicks:        clicks,
			Conversions:   conversions,
		})
	}
	return events
}

func (s *Simulator) conversions(clicks int64, rate float64) int64 {
	if clicks == 0 {
		return 0
	}
	c := int64(math.Round(float64(clicks) * clamp01(rate*s.uniform(0.8, 1.2))))
	return min(c, clicks)
}

// flushDay hands a day's output to the configured sinks and returns the
// number of failed writes.
func (s *Simulator) flushDay(ctx context.Context, dr DayResult, events []analytics.Event) int {
	failures := 0
	if s.sinks.Analytics != nil && len(events) > 0 {
		if err := s.sinks.Analytics.RecordSimulationEvents(ctx, events); err != nil && !errors.Is(err, analytics.ErrUnavailable) {
			s.logger.Warn("analytics write failed", zap.Int("day", dr.Day), zap.Error(err))
			failures++
		}
	}
	if s.sinks.Runs != nil {
		rows := make([]db.DailyResult, 0, len(dr.Keywords))
		for _, kd := range dr.Keywords {
			rows = append(rows, db.DailyResult{
				RunID:        s.runID,
				Day:          dr.Day,
				KeywordID:    kd.KeywordID,
				Impressions:  kd.Impressions,
				Clicks:       kd.Clicks,
				Conversions:  kd.Conversions,
				Cost:         kd.Cost,
				QualityScore: kd.QualityScore,
			})
		}
		if err := s.sinks.Runs.InsertDailyResults(ctx, rows); err != nil {
			s.logger.Warn("daily results write failed", zap.Int("day", dr.Day), zap.Error(err))
			failures++
		}
	}
	return failures
}

func (s *Simulator) saveSnapshots(ctx context.Context) int {
	if s.sinks.Snapshots == nil {
		return 0
	}
	failures := 0
	if err := s.sinks.Snapshots.SaveQualityScores(ctx, s.runID, s.quality.Snapshot()); err != nil {
		s.logger.Warn("quality score snapshot failed", zap.Error(err))
		s.metrics.IncrementSnapshotErrors("save_quality_scores")
		failures++
	}
	for _, ad := range s.ads {
		if err := s.sinks.Snapshots.SaveAd(ctx, ad); err != nil {
			s.logger.Warn("ad snapshot failed", zap.String("ad_id", ad.ID), zap.Error(err))
			s.metrics.IncrementSnapshotErrors("save_ad")
			failures++
		}
	}
	return failures
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func ratio(num, den int64) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func meanQS(days []KeywordDay) float64 {
	if len(days) == 0 {
		return quality.MinQS
	}
	var sum float64
	for _, kd := range days {
		sum += kd.QualityScore
	}
	return sum / float64(len(days))
}
