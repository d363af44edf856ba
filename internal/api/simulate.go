package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/adsimulator/internal/middleware"
	"github.com/patrickwarner/adsimulator/internal/simulation"
)

const defaultSimulationTimeout = 8 * time.Second

// RunSimulation handles POST /simulations. The body is a YAML (or JSON)
// scenario; the run uses its own engines and does not touch the server's.
func (s *Server) RunSimulation(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "simulation"
	const method = "POST"

	if !s.SimulationLimiter.Allow(remoteIP(r)) {
		w.Header().Set("Retry-After", "60")
		s.fail(w, endpoint, method, start, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.fail(w, endpoint, method, start, http.StatusBadRequest, "invalid body")
		return
	}
	defer func() {
		if closeErr := r.Body.Close(); closeErr != nil {
			s.Logger.Warn("failed to close request body", zap.Error(closeErr))
		}
	}()

	sc, err := simulation.ParseScenario(body)
	if err != nil {
		s.fail(w, endpoint, method, start, http.StatusBadRequest, err.Error())
		return
	}

	logger := middleware.LoggerFromRequest(r, s.Logger)
	sim, err := simulation.New(sc, simulation.Options{
		Engines: s.Config.Engines,
		Logger:  logger,
		Metrics: s.Metrics,
		Sinks:   s.Sinks,
	})
	if errors.Is(err, simulation.ErrInvalidScenario) {
		s.fail(w, endpoint, method, start, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		logger.Error("create simulation", zap.Error(err))
		s.fail(w, endpoint, method, start, http.StatusInternalServerError, "internal error")
		return
	}

	timeout := s.Config.SimulationTimeout
	if timeout <= 0 {
		timeout = defaultSimulationTimeout
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	report, err := sim.Run(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		logger.Warn("simulation timed out", zap.String("run_id", sim.RunID()), zap.Duration("timeout", timeout))
		s.fail(w, endpoint, method, start, http.StatusGatewayTimeout, "simulation timed out")
		return
	}
	if err != nil {
		logger.Warn("simulation aborted", zap.String("run_id", sim.RunID()), zap.Error(err))
		s.fail(w, endpoint, method, start, http.StatusServiceUnavailable, "simulation aborted")
		return
	}
	s.respond(w, endpoint, method, start, http.StatusOK, report)
}
