// Package geoip resolves IP addresses to countries for location bid
// modifiers. It reads a MaxMind GeoIP2 database and falls back to a JSON
// list of CIDR ranges when the file is not a MaxMind database, which keeps
// local runs and tests free of licensed data.
package geoip

import (
	"encoding/json"
	"fmt"
	"net"
	"os"

	"github.com/oschwald/geoip2-golang"
)

// Location is the result of a lookup. Empty fields mean unknown.
type Location struct {
	Country string `json:"country"`
	Region  string `json:"region,omitempty"`
}

// GeoIP looks up locations. A nil *GeoIP is valid and resolves nothing.
type GeoIP struct {
	db       *geoip2.Reader
	fallback []cidrRange
}

type cidrRange struct {
	net *net.IPNet
	loc Location
}

// Open loads the database at path. When path is not a MaxMind database it is
// parsed as a JSON array of {"net", "country", "region"} entries; malformed
// CIDRs are skipped.
func Open(path string) (*GeoIP, error) {
	db, err := geoip2.Open(path)
	if err == nil {
		return &GeoIP{db: db}, nil
	}

	data, rerr := os.ReadFile(path)
	if rerr != nil {
		return nil, fmt.Errorf("open geoip database %s: %w", path, err)
	}
	var entries []struct {
		Net     string `json:"net"`
		Country string `json:"country"`
		Region  string `json:"region"`
	}
	if jerr := json.Unmarshal(data, &entries); jerr != nil {
		return nil, fmt.Errorf("geoip database %s is neither mmdb (%v) nor json: %w", path, err, jerr)
	}

	g := &GeoIP{}
	for _, e := range entries {
		if _, n, perr := net.ParseCIDR(e.Net); perr == nil {
			g.fallback = append(g.fallback, cidrRange{net: n, loc: Location{Country: e.Country, Region: e.Region}})
		}
	}
	return g, nil
}

// Lookup resolves ip. Unknown addresses return an empty Location.
func (g *GeoIP) Lookup(ip net.IP) Location {
	if g == nil || ip == nil {
		return Location{}
	}
	if g.db != nil {
		rec, err := g.db.City(ip)
		if err == nil {
			loc := Location{Country: rec.Country.IsoCode}
			if len(rec.Subdivisions) > 0 {
				loc.Region = rec.Subdivisions[0].IsoCode
			}
			return loc
		}
	}
	for _, r := range g.fallback {
		if r.net.Contains(ip) {
			return r.loc
		}
	}
	return Location{}
}

// Country returns the ISO country code for ip, or "".
func (g *GeoIP) Country(ip net.IP) string {
	return g.Lookup(ip).Country
}

// Close releases the underlying database.
func (g *GeoIP) Close() error {
	if g != nil && g.db != nil {
		return g.db.Close()
	}
	return nil
}
