package targeting

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrickwarner/adsimulator/internal/geoip"
)

const (
	iphoneUA  = "Mozilla/5.0 (iPhone; CPU iPhone OS 15_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/15.0 Mobile/15E148 Safari/605.1.15"
	windowsUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/100.0.4896.75 Safari/537.36"
	ipadUA    = "Mozilla/5.0 (iPad; CPU OS 15_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/15.0 Mobile/15E148 Safari/605.1.15"
	botUA     = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"
)

func TestBuiltInModifiers(t *testing.T) {
	e := NewEngine(nil)
	tests := []struct {
		name string
		ctx  Context
		want float64
	}{
		{"us desktop", Context{Country: "US", DeviceType: "desktop"}, 1.0},
		{"non-us desktop", Context{Country: "CA", DeviceType: "desktop"}, 0.9},
		{"us mobile", Context{Country: "US", DeviceType: "mobile"}, 0.85},
		{"cart abandoner", Context{Country: "US", DeviceType: "desktop", Audiences: []string{"cart_abandoners"}}, 1.3},
		{"all three", Context{Country: "GB", DeviceType: "mobile", Audiences: []string{"all_visitors", "cart_abandoners"}}, 0.9 * 0.85 * 1.3},
		{"unknown country", Context{DeviceType: "tablet"}, 0.9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, e.CalculateTotalBidModifier(tt.ctx), 1e-12)
		})
	}
}

func TestActiveTargetsCompose(t *testing.T) {
	e := NewEngine(nil)
	_, err := e.AddGeoTarget("2124", 1.2)
	require.NoError(t, err)
	_, err = e.AddAudienceTarget("all_visitors", 1.5)
	require.NoError(t, err)

	ctx := Context{Country: "CA", DeviceType: "desktop", Audiences: []string{"all_visitors"}}
	assert.InDelta(t, 0.9*1.2*1.5, e.CalculateTotalBidModifier(ctx), 1e-12)

	// a US visitor does not match the Canada target
	ctx = Context{Country: "US", DeviceType: "desktop", Audiences: []string{"all_visitors"}}
	assert.InDelta(t, 1.5, e.CalculateTotalBidModifier(ctx), 1e-12)
}

func TestModifierOrderIndependent(t *testing.T) {
	a := NewEngine(nil)
	_, _ = a.AddGeoTarget("2840", 1.1)
	_, _ = a.AddAudienceTarget("cart_abandoners", 2.0)

	b := NewEngine(nil)
	_, _ = b.AddAudienceTarget("cart_abandoners", 2.0)
	_, _ = b.AddGeoTarget("2840", 1.1)

	ctx := Context{Country: "US", DeviceType: "mobile", Audiences: []string{"cart_abandoners", "all_visitors"}}
	reversed := Context{Country: "US", DeviceType: "mobile", Audiences: []string{"all_visitors", "cart_abandoners"}}
	assert.InDelta(t, a.CalculateTotalBidModifier(ctx), b.CalculateTotalBidModifier(reversed), 1e-12)
}

func TestModifierClamped(t *testing.T) {
	high := NewEngine(nil)
	for i := 0; i < 5; i++ {
		_, err := high.AddAudienceTarget("cart_abandoners", 3.0)
		require.NoError(t, err)
	}
	assert.Equal(t, MaxBidModifier, high.CalculateTotalBidModifier(Context{Country: "US", Audiences: []string{"cart_abandoners"}}))

	low := NewEngine(nil)
	for i := 0; i < 5; i++ {
		_, err := low.AddGeoTarget("2826", 0.2)
		require.NoError(t, err)
	}
	assert.Equal(t, MinBidModifier, low.CalculateTotalBidModifier(Context{Country: "GB"}))
}

func TestAddTargetErrors(t *testing.T) {
	e := NewEngine(nil)

	_, err := e.AddGeoTarget("9999", 1.0)
	assert.True(t, errors.Is(err, ErrUnknownLocation))

	_, err = e.AddAudienceTarget("vip", 1.0)
	assert.True(t, errors.Is(err, ErrUnknownAudience))

	_, err = e.AddGeoTarget("2840", 0)
	assert.True(t, errors.Is(err, ErrInvalidModifier))

	assert.Empty(t, e.GeoTargets())
	assert.Empty(t, e.AudienceTargets())
}

func TestAddGeoTargetRecord(t *testing.T) {
	e := NewEngine(nil)
	g, err := e.AddGeoTarget("2826", 1.25)
	require.NoError(t, err)

	assert.Equal(t, GeoTarget{LocationID: "2826", LocationName: "United Kingdom", CountryCode: "GB", BidModifier: 1.25}, g)
	assert.Equal(t, []GeoTarget{g}, e.GeoTargets())
}

func TestDeviceType(t *testing.T) {
	assert.Equal(t, "mobile", DeviceType(iphoneUA))
	assert.Equal(t, "desktop", DeviceType(windowsUA))
	assert.Equal(t, "tablet", DeviceType(ipadUA))
	assert.Equal(t, "other", DeviceType(""))
}

func TestResolveContext(t *testing.T) {
	g, err := geoip.Open(filepath.Join("..", "geoip", "testdata", "fallback.json"))
	require.NoError(t, err)
	e := NewEngine(g)

	ctx := e.ResolveContext(iphoneUA, "24.48.3.4")
	assert.Equal(t, "mobile", ctx.DeviceType)
	assert.Equal(t, "CA", ctx.Country)
	assert.Equal(t, "QC", ctx.Region)
	assert.False(t, ctx.IsBot)
	assert.InDelta(t, 0.9*0.85, e.CalculateTotalBidModifier(ctx), 1e-12)

	ctx = e.ResolveContext(botUA, "not-an-ip")
	assert.True(t, ctx.IsBot)
	assert.Equal(t, "", ctx.Country)
}

func TestResolveContextWithoutLocator(t *testing.T) {
	ctx := NewEngine(nil).ResolveContext(windowsUA, "8.8.8.8")
	assert.Equal(t, "desktop", ctx.DeviceType)
	assert.Equal(t, "", ctx.Country)
}
