package geoip

import (
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenJSONFallback(t *testing.T) {
	g, err := Open(filepath.Join("testdata", "fallback.json"))
	require.NoError(t, err)
	defer g.Close()

	assert.Len(t, g.fallback, 3, "malformed cidr skipped")
	assert.Equal(t, Location{Country: "US", Region: "CA"}, g.Lookup(net.ParseIP("8.8.8.8")))
	assert.Equal(t, "CA", g.Country(net.ParseIP("24.48.1.1")))
	assert.Equal(t, "GB", g.Country(net.ParseIP("81.2.69.160")))
	assert.Equal(t, "", g.Country(net.ParseIP("10.0.0.1")))
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.mmdb"))
	assert.Error(t, err)
}

func TestOpenGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage")
	require.NoError(t, os.WriteFile(path, []byte("not a database"), 0o600))

	_, err := Open(path)
	assert.Error(t, err)
}

func TestNilGeoIP(t *testing.T) {
	var g *GeoIP
	assert.Equal(t, Location{}, g.Lookup(net.ParseIP("8.8.8.8")))
	assert.NoError(t, g.Close())
}
