package api

import (
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/patrickwarner/adsimulator/internal/impressionshare"
	"github.com/patrickwarner/adsimulator/internal/targeting"
)

// ImpressionShareRequest is a reporting period plus an optional industry for
// benchmark comparison.
type ImpressionShareRequest struct {
	impressionshare.Input
	Industry string `json:"industry,omitempty"`
}

// BidModifierRequest describes an auction. When UserAgent or IP are set the
// device and country are resolved from them; explicit fields win.
type BidModifierRequest struct {
	UserAgent string   `json:"user_agent,omitempty"`
	IP        string   `json:"ip,omitempty"`
	Country   string   `json:"geo,omitempty"`
	Device    string   `json:"device,omitempty"`
	Audiences []string `json:"user_audiences,omitempty"`
	Hour      int      `json:"hour"`
	DayOfWeek int      `json:"day_of_week"`
}

// TargetRequest activates a geo or audience target.
type TargetRequest struct {
	ID          string  `json:"id"`
	BidModifier float64 `json:"bid_modifier"`
}

// CalculateImpressionShare handles POST /impression-share.
func (s *Server) CalculateImpressionShare(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "impression_share"
	const method = "POST"

	var req ImpressionShareRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, endpoint, method, start, http.StatusBadRequest, "invalid json")
		return
	}

	m, err := s.share.Calculate(req.Input)
	if err != nil {
		s.fail(w, endpoint, method, start, http.StatusBadRequest, err.Error())
		return
	}

	resp := map[string]interface{}{
		"metrics":         m,
		"recommendations": impressionshare.Recommendations(m),
	}
	if req.Industry != "" {
		resp["benchmark"] = impressionshare.CompareToBenchmarks(m, req.Industry)
	}
	s.respond(w, endpoint, method, start, http.StatusOK, resp)
}

// BidModifier handles POST /bid-modifier.
func (s *Server) BidModifier(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "bid_modifier"
	const method = "POST"

	var req BidModifierRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, endpoint, method, start, http.StatusBadRequest, "invalid json")
		return
	}
	ip := req.IP
	if ip == "" && req.UserAgent != "" {
		ip = remoteIP(r)
	}

	s.mu.Lock()
	ctx := s.targeting.ResolveContext(req.UserAgent, ip)
	if req.Country != "" {
		ctx.Country = req.Country
	}
	if req.Device != "" {
		ctx.DeviceType = req.Device
	}
	ctx.Audiences = req.Audiences
	ctx.Hour = req.Hour
	ctx.DayOfWeek = req.DayOfWeek
	modifier := s.targeting.CalculateTotalBidModifier(ctx)
	s.mu.Unlock()

	s.respond(w, endpoint, method, start, http.StatusOK, map[string]interface{}{
		"context":      ctx,
		"bid_modifier": modifier,
	})
}

// AddGeoTarget handles POST /targets/geo.
func (s *Server) AddGeoTarget(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "add_geo_target"
	const method = "POST"

	var req TargetRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, endpoint, method, start, http.StatusBadRequest, "invalid json")
		return
	}
	s.mu.Lock()
	target, err := s.targeting.AddGeoTarget(req.ID, req.BidModifier)
	s.mu.Unlock()
	if err != nil {
		s.fail(w, endpoint, method, start, targetStatus(err), err.Error())
		return
	}
	s.respond(w, endpoint, method, start, http.StatusCreated, target)
}

// AddAudienceTarget handles POST /targets/audiences.
func (s *Server) AddAudienceTarget(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "add_audience_target"
	const method = "POST"

	var req TargetRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, endpoint, method, start, http.StatusBadRequest, "invalid json")
		return
	}
	s.mu.Lock()
	target, err := s.targeting.AddAudienceTarget(req.ID, req.BidModifier)
	s.mu.Unlock()
	if err != nil {
		s.fail(w, endpoint, method, start, targetStatus(err), err.Error())
		return
	}
	s.respond(w, endpoint, method, start, http.StatusCreated, target)
}

func targetStatus(err error) int {
	if errors.Is(err, targeting.ErrUnknownLocation) || errors.Is(err, targeting.ErrUnknownAudience) {
		return http.StatusNotFound
	}
	return http.StatusBadRequest
}

// remoteIP strips the port from the request's remote address.
func remoteIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
