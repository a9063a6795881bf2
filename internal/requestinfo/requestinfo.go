//
//  internal/requestinfo/requestinfo.go
//
//  Per-request client metadata (user-agent fingerprint, client IP,
//  geolocation hint, and timestamp).  The dispatcher attaches an *Info to
//  every plugin RequestContext so handlers never reparse headers.
//
//  These structs are inert.  They contain no pointers to database handles
//  or large buffers, so they are safe to log or JSON-encode.
//
//  Dependencies
//  • github.com/avct/uasurfer          (UA parsing)
//  • github.com/oschwald/geoip2-golang (MaxMind lookup, optional)
//

package requestinfo

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/avct/uasurfer"
	"github.com/oschwald/geoip2-golang"
)

//
//  -----------------------------
//  Struct definitions
//  -----------------------------
//

// UA holds the parsed user-agent properties.
//
// Device will be one of: "Desktop", "Mobile", "Tablet", or "Other".
type UA struct {
	Raw         string `json:"raw"`
	Browser     string `json:"browser"`
	Version     string `json:"version,omitempty"`
	OS          string `json:"os"`
	OSVersion   string `json:"osVersion,omitempty"`
	Device      string `json:"device"`
	Platform    string `json:"platform"`
	IsBot       bool   `json:"isBot"`
	PrimaryLang string `json:"lang,omitempty"`
}

// Geo holds IP-based geolocation hints.  Best-effort; empty when no
// database is configured or the DB has no match.
type Geo struct {
	IP         net.IP `json:"ip,omitempty"`
	CountryISO string `json:"country,omitempty"`
	City       string `json:"city,omitempty"`
}

// Info is what plugin handlers see.
type Info struct {
	UA        UA        `json:"ua"`
	Geo       Geo       `json:"geo"`
	Timestamp time.Time `json:"ts"`
}

//
//  -----------------------------
//  Parser
//  -----------------------------
//

// Parser builds Info values.  The zero value works without GeoIP.
type Parser struct {
	geo *geoip2.Reader
	now func() time.Time
}

// NewParser opens the GeoLite2-City database at geoPath.  An empty path
// disables geolocation.
func NewParser(geoPath string) (*Parser, error) {
	p := &Parser{}
	if geoPath == "" {
		return p, nil
	}
	rdr, err := geoip2.Open(geoPath)
	if err != nil {
		return nil, fmt.Errorf("requestinfo: open GeoIP DB: %w", err)
	}
	p.geo = rdr
	return p, nil
}

// Close releases the GeoIP handle.
func (p *Parser) Close() error {
	if p == nil || p.geo == nil {
		return nil
	}
	return p.geo.Close()
}

// Parse inspects r.  Safe for concurrent use; the reader is read-only.
func (p *Parser) Parse(r *http.Request) *Info {
	now := time.Now
	if p != nil && p.now != nil {
		now = p.now
	}
	ip := ClientIP(r)
	info := &Info{
		UA:        parseUA(r.UserAgent(), r.Header.Get("Accept-Language")),
		Geo:       Geo{IP: ip},
		Timestamp: now().UTC(),
	}
	if p != nil && p.geo != nil && ip != nil {
		if rec, err := p.geo.City(ip); err == nil {
			info.Geo.CountryISO = rec.Country.IsoCode
			info.Geo.City = rec.City.Names["en"]
		}
	}
	return info
}

//
//  -----------------------------
//  Internal helpers
//  -----------------------------
//

// ClientIP extracts the left-most parseable address from X-Forwarded-For
// or X-Real-Ip, falling back to r.RemoteAddr ("ip:port").
func ClientIP(r *http.Request) net.IP {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for _, part := range strings.Split(xff, ",") {
			if ip := net.ParseIP(strings.TrimSpace(part)); ip != nil {
				return ip
			}
		}
	}
	if xrip := r.Header.Get("X-Real-Ip"); xrip != "" {
		if ip := net.ParseIP(strings.TrimSpace(xrip)); ip != nil {
			return ip
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return net.ParseIP(host)
	}
	return net.ParseIP(r.RemoteAddr)
}

// parseUA converts a raw header into our UA struct using uasurfer.
func parseUA(raw, acceptLang string) UA {
	u := uasurfer.Parse(raw)

	out := UA{
		Raw:         raw,
		Browser:     strings.TrimPrefix(u.Browser.Name.String(), "Browser"),
		Version:     versionToString(u.Browser.Version),
		OS:          strings.TrimPrefix(u.OS.Name.String(), "OS"),
		OSVersion:   versionToString(u.OS.Version),
		Platform:    strings.TrimPrefix(u.OS.Platform.String(), "Platform"),
		IsBot:       u.IsBot(),
		PrimaryLang: primaryLang(acceptLang),
	}

	switch u.DeviceType {
	case uasurfer.DeviceComputer:
		out.Device = "Desktop"
	case uasurfer.DeviceTablet:
		out.Device = "Tablet"
	case uasurfer.DevicePhone, uasurfer.DeviceWearable:
		out.Device = "Mobile"
	default:
		out.Device = "Other"
	}
	return out
}

// versionToString renders a version in dotted form while trimming
// trailing zeros, e.g. 17.0.0 → "17", 17.3.0 → "17.3".
func versionToString(v uasurfer.Version) string {
	switch {
	case v.Major == 0 && v.Minor == 0 && v.Patch == 0:
		return ""
	case v.Patch != 0:
		return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	case v.Minor != 0:
		return fmt.Sprintf("%d.%d", v.Major, v.Minor)
	}
	return strconv.Itoa(int(v.Major))
}

// primaryLang extracts the first language subtag before any ";q=" rule.
func primaryLang(al string) string {
	if al == "" {
		return ""
	}
	tag := strings.TrimSpace(strings.Split(al, ",")[0])
	if i := strings.Index(tag, ";"); i != -1 {
		tag = tag[:i]
	}
	return strings.ToLower(tag)
}
