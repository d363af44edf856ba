// Package targeting composes bid modifiers from location, device and
// audience signals, and resolves those signals from a request's User-Agent
// and IP address.
package targeting

import (
	"errors"
	"fmt"
	"net"
	"slices"
	"strings"

	"github.com/avct/uasurfer"

	"github.com/patrickwarner/adsimulator/internal/geoip"
)

const (
	MinBidModifier = 0.1
	MaxBidModifier = 10.0

	nonUSModifier          = 0.9
	mobileModifier         = 0.85
	cartAbandonersModifier = 1.3

	CartAbandoners = "cart_abandoners"
)

var (
	ErrUnknownLocation = errors.New("unknown location")
	ErrUnknownAudience = errors.New("unknown audience")
	ErrInvalidModifier = errors.New("bid modifier must be positive")
)

type location struct {
	name    string
	country string
}

var geoDatabase = map[string]location{
	"2840": {name: "United States", country: "US"},
	"2124": {name: "Canada", country: "CA"},
	"2826": {name: "United Kingdom", country: "GB"},
}

var audienceDatabase = map[string]string{
	"all_visitors": "All Website Visitors",
	CartAbandoners: "Cart Abandoners",
}

// GeoTarget is an active location target.
type GeoTarget struct {
	LocationID   string  `json:"location_id"`
	LocationName string  `json:"location_name"`
	CountryCode  string  `json:"country_code"`
	BidModifier  float64 `json:"bid_modifier"`
}

// AudienceSegment is an active audience target.
type AudienceSegment struct {
	SegmentID   string  `json:"segment_id"`
	SegmentName string  `json:"segment_name"`
	BidModifier float64 `json:"bid_modifier"`
}

// Context is the per-auction signal set a modifier is computed for.
type Context struct {
	Country    string   `json:"geo"`
	Region     string   `json:"region,omitempty"`
	DeviceType string   `json:"device"`
	Hour       int      `json:"hour"`
	DayOfWeek  int      `json:"day_of_week"`
	Audiences  []string `json:"user_audiences"`
	IsBot      bool     `json:"is_bot,omitempty"`
}

// Engine holds active targets. It is not safe for concurrent mutation.
type Engine struct {
	geo       []GeoTarget
	audiences []AudienceSegment
	locator   *geoip.GeoIP
}

// NewEngine creates an engine. locator may be nil, in which case resolved
// contexts carry no country.
func NewEngine(locator *geoip.GeoIP) *Engine {
	return &Engine{locator: locator}
}

// AddGeoTarget activates a location from the built-in location table.
func (e *Engine) AddGeoTarget(locationID string, bidModifier float64) (GeoTarget, error) {
	loc, ok := geoDatabase[locationID]
	if !ok {
		return GeoTarget{}, fmt.Errorf("geo target %q: %w", locationID, ErrUnknownLocation)
	}
	if !(bidModifier > 0) {
		return GeoTarget{}, fmt.Errorf("geo target %q modifier %v: %w", locationID, bidModifier, ErrInvalidModifier)
	}
	t := GeoTarget{
		LocationID:   locationID,
		LocationName: loc.name,
		CountryCode:  loc.country,
		BidModifier:  bidModifier,
	}
	e.geo = append(e.geo, t)
	return t, nil
}

// AddAudienceTarget activates an audience from the built-in segment table.
func (e *Engine) AddAudienceTarget(segmentID string, bidModifier float64) (AudienceSegment, error) {
	name, ok := audienceDatabase[segmentID]
	if !ok {
		return AudienceSegment{}, fmt.Errorf("audience target %q: %w", segmentID, ErrUnknownAudience)
	}
	if !(bidModifier > 0) {
		return AudienceSegment{}, fmt.Errorf("audience target %q modifier %v: %w", segmentID, bidModifier, ErrInvalidModifier)
	}
	s := AudienceSegment{SegmentID: segmentID, SegmentName: name, BidModifier: bidModifier}
	e.audiences = append(e.audiences, s)
	return s, nil
}

// GeoTargets returns the active location targets in insertion order.
func (e *Engine) GeoTargets() []GeoTarget { return slices.Clone(e.geo) }

// AudienceTargets returns the active audience targets in insertion order.
func (e *Engine) AudienceTargets() []AudienceSegment { return slices.Clone(e.audiences) }

// CalculateTotalBidModifier multiplies the built-in adjustments with the
// modifiers of every active target matching ctx, clamped to
// [MinBidModifier, MaxBidModifier]. The product is order independent.
func (e *Engine) CalculateTotalBidModifier(ctx Context) float64 {
	modifier := 1.0
	if !strings.EqualFold(ctx.Country, "US") {
		modifier *= nonUSModifier
	}
	if ctx.DeviceType == "mobile" {
		modifier *= mobileModifier
	}
	if slices.Contains(ctx.Audiences, CartAbandoners) {
		modifier *= cartAbandonersModifier
	}

	for _, g := range e.geo {
		if strings.EqualFold(g.CountryCode, ctx.Country) {
			modifier *= g.BidModifier
		}
	}
	for _, a := range e.audiences {
		if slices.Contains(ctx.Audiences, a.SegmentID) {
			modifier *= a.BidModifier
		}
	}
	return min(MaxBidModifier, max(MinBidModifier, modifier))
}

// ResolveContext derives device and location signals from a User-Agent and
// IP address. Hour, day and audiences are left for the caller.
func (e *Engine) ResolveContext(userAgent, ip string) Context {
	ua := uasurfer.Parse(userAgent)
	ctx := Context{DeviceType: deviceType(ua), IsBot: ua.IsBot()}
	if parsed := net.ParseIP(ip); parsed != nil {
		loc := e.locator.Lookup(parsed)
		ctx.Country = loc.Country
		ctx.Region = loc.Region
	}
	return ctx
}

// DeviceType maps a User-Agent to desktop, mobile, tablet or other.
func DeviceType(userAgent string) string {
	return deviceType(uasurfer.Parse(userAgent))
}

func deviceType(ua *uasurfer.UserAgent) string {
	switch ua.DeviceType {
	case uasurfer.DeviceComputer:
		return "desktop"
	case uasurfer.DevicePhone:
		return "mobile"
	case uasurfer.DeviceTablet:
		return "tablet"
	default:
		return "other"
	}
}
