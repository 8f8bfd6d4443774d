// Package device derives coarse client descriptors from request metadata
// for audit enrichment. Nothing here influences an authentication decision.
package device

import (
	"errors"
	"fmt"
	"net"

	"github.com/mssola/useragent"
	"github.com/oschwald/geoip2-golang"
)

var (
	// ErrGeoIPNotConfigured is returned by OpenLocator for an empty path.
	ErrGeoIPNotConfigured = errors.New("geoip database not configured")
	// ErrInvalidIP is returned for addresses that do not parse.
	ErrInvalidIP = errors.New("invalid ip address")
)

// Info is what a User-Agent string says about the client.
type Info struct {
	Browser        string
	BrowserVersion string
	OS             string
	OSVersion      string
	Type           string
}

// Describe parses ua. An empty ua yields an "unknown" type.
func Describe(ua string) Info {
	if ua == "" {
		return Info{Type: "unknown"}
	}
	parsed := useragent.New(ua)
	browser, version := parsed.Browser()
	osInfo := parsed.OSInfo()

	info := Info{
		Browser:        browser,
		BrowserVersion: version,
		OS:             osInfo.Name,
		OSVersion:      osInfo.Version,
		Type:           "desktop",
	}
	switch {
	case parsed.Bot():
		info.Type = "bot"
	case parsed.Mobile():
		info.Type = "mobile"
	}
	return info
}

// Locator maps IP addresses to ISO country codes with a MaxMind database.
type Locator struct {
	db *geoip2.Reader
}

// OpenLocator opens a GeoLite2 Country or City database.
func OpenLocator(path string) (*Locator, error) {
	if path == "" {
		return nil, ErrGeoIPNotConfigured
	}
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("geoip: failed to open database: %w", err)
	}
	return &Locator{db: db}, nil
}

// Country returns the ISO code for ip. A nil Locator returns "".
func (l *Locator) Country(ip string) (string, error) {
	if l == nil || l.db == nil {
		return "", nil
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidIP, ip)
	}
	record, err := l.db.Country(parsed)
	if err != nil {
		return "", fmt.Errorf("geoip: lookup failed: %w", err)
	}
	return record.Country.IsoCode, nil
}

// Close releases the database.
func (l *Locator) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Enricher builds audit metadata from the client IP and User-Agent.
type Enricher struct {
	locator *Locator
}

// NewEnricher creates an Enricher. locator may be nil.
func NewEnricher(locator *Locator) *Enricher {
	return &Enricher{locator: locator}
}

// Metadata returns the descriptor fields that are known. Lookup failures
// leave the country out rather than failing.
func (e *Enricher) Metadata(ip, ua string) map[string]string {
	info := Describe(ua)
	md := map[string]string{"device_type": info.Type}
	if info.Browser != "" {
		md["browser"] = info.Browser
	}
	if info.OS != "" {
		md["os"] = info.OS
	}
	if e != nil && ip != "" {
		if country, err := e.locator.Country(ip); err == nil && country != "" {
			md["country"] = country
		}
	}
	return md
}
