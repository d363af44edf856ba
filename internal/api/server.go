package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/patrickwarner/adsimulator/internal/config"
	"github.com/patrickwarner/adsimulator/internal/geoip"
	"github.com/patrickwarner/adsimulator/internal/impressionshare"
	"github.com/patrickwarner/adsimulator/internal/observability"
	"github.com/patrickwarner/adsimulator/internal/quality"
	"github.com/patrickwarner/adsimulator/internal/ratelimit"
	"github.com/patrickwarner/adsimulator/internal/rsa"
	"github.com/patrickwarner/adsimulator/internal/simulation"
	"github.com/patrickwarner/adsimulator/internal/targeting"
)

// maxBodyBytes bounds request payloads, scenario files included.
const maxBodyBytes = 1 << 20

// SnapshotSaver persists engine state after writes. *db.SnapshotStore
// satisfies it.
type SnapshotSaver interface {
	SaveQualityScores(ctx context.Context, runID string, states []quality.KeywordState) error
	SaveAd(ctx context.Context, ad *rsa.Ad) error
}

// Server groups the engines and dependencies behind the HTTP handlers.
// Engine access is serialised by mu; the engines themselves are not safe
// for concurrent use.
type Server struct {
	Logger  *zap.Logger
	Metrics observability.MetricsRegistry
	Config  config.Config
	// Snapshots is optional. When set, quality updates and ad feedback are
	// persisted after they are applied.
	Snapshots SnapshotSaver
	// Sinks are handed to simulations started through the API.
	Sinks simulation.Sinks
	// SimulationLimiter throttles POST /simulations per client address.
	SimulationLimiter *ratelimit.Limiter

	mu        sync.Mutex
	quality   *quality.Engine
	rsa       *rsa.Engine
	share     *impressionshare.Calculator
	targeting *targeting.Engine
	ads       map[string]*rsa.Ad
}

// NewServer constructs a Server with fresh engines. locator may be nil, in
// which case bid modifier requests must carry an explicit country.
func NewServer(logger *zap.Logger, metrics observability.MetricsRegistry, cfg config.Config, locator *geoip.GeoIP, seed int64) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	engines := cfg.Engines
	if engines == (config.Engines{}) {
		engines = config.DefaultEngines()
	}
	limiter := ratelimit.NewLimiter("simulation", ratelimit.Config{
		Enabled:     cfg.SimulationRateLimitEnabled,
		Capacity:    cfg.SimulationRateBurst,
		RefillRate:  cfg.SimulationRatePerMinute / 60,
		IdleTimeout: 10 * time.Minute,
	}, metrics)
	return &Server{
		Logger:            logger,
		Metrics:           metrics,
		Config:            cfg,
		SimulationLimiter: limiter,
		quality:           quality.NewEngine(engines.Quality(), logger, metrics),
		rsa:               rsa.NewEngine(engines.RSA(), rsa.NewSeededSource(seed), logger, metrics),
		share:             impressionshare.NewCalculator(engines.ImpressionShare(), logger, metrics),
		targeting:         targeting.NewEngine(locator),
		ads:               make(map[string]*rsa.Ad),
	}
}

// Routes registers every handler on r.
func (s *Server) Routes(r *mux.Router) {
	r.HandleFunc("/health", s.HealthHandler).Methods("GET")

	r.HandleFunc("/keywords", s.CreateKeyword).Methods("POST")
	r.HandleFunc("/keywords/{id}/performance", s.RecordKeywordPerformance).Methods("POST")
	r.HandleFunc("/keywords/{id}/trend", s.KeywordTrend).Methods("GET")
	r.HandleFunc("/keywords/{id}/recommendations", s.KeywordRecommendations).Methods("GET")
	r.HandleFunc("/quality/update", s.UpdateQualityScores).Methods("POST")

	r.HandleFunc("/ads", s.CreateAd).Methods("POST")
	r.HandleFunc("/ads/{id}/combination", s.AdCombination).Methods("GET")
	r.HandleFunc("/ads/{id}/performance", s.RecordAdPerformance).Methods("POST")
	r.HandleFunc("/ads/{id}/insights", s.AdInsights).Methods("GET")
	r.HandleFunc("/ads/{id}/assets/{asset_id}/status", s.SetAssetStatus).Methods("POST")

	r.HandleFunc("/impression-share", s.CalculateImpressionShare).Methods("POST")
	r.HandleFunc("/bid-modifier", s.BidModifier).Methods("POST")
	r.HandleFunc("/targets/geo", s.AddGeoTarget).Methods("POST")
	r.HandleFunc("/targets/audiences", s.AddAudienceTarget).Methods("POST")

	r.HandleFunc("/simulations", s.RunSimulation).Methods("POST")
}

// respond writes v with status and records the request.
func (s *Server) respond(w http.ResponseWriter, endpoint, method string, start time.Time, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Logger.Warn("encode response", zap.String("endpoint", endpoint), zap.Error(err))
	}
	s.observe(endpoint, method, status, start)
}

// fail writes a plain text error and records the request.
func (s *Server) fail(w http.ResponseWriter, endpoint, method string, start time.Time, status int, msg string) {
	http.Error(w, msg, status)
	s.observe(endpoint, method, status, start)
}

func (s *Server) observe(endpoint, method string, status int, start time.Time) {
	s.Metrics.IncrementRequests(endpoint, method, strconv.Itoa(status))
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func (s *Server) decode(r *http.Request, v interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	defer func() {
		if closeErr := r.Body.Close(); closeErr != nil {
			s.Logger.Warn("failed to close request body", zap.Error(closeErr))
		}
	}()
	if len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, v)
}

// snapshotQuality persists keyword state under the service name. Failures
// are logged and counted, never returned to the client.
func (s *Server) snapshotQuality(ctx context.Context) {
	if s.Snapshots == nil {
		return
	}
	if err := s.Snapshots.SaveQualityScores(ctx, s.Config.ServiceName, s.quality.Snapshot()); err != nil {
		s.Metrics.IncrementSnapshotErrors("save_quality_scores")
		s.Logger.Warn("failed to snapshot quality scores", zap.Error(err))
	}
}

func (s *Server) snapshotAd(ctx context.Context, ad *rsa.Ad) {
	if s.Snapshots == nil {
		return
	}
	if err := s.Snapshots.SaveAd(ctx, ad); err != nil {
		s.Metrics.IncrementSnapshotErrors("save_ad")
		s.Logger.Warn("failed to snapshot ad", zap.String("ad_id", ad.ID), zap.Error(err))
	}
}
