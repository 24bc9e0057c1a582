package templates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"
)

// ErrNoGeo is returned for addresses that cannot be located, such as loopback or private ranges.
var ErrNoGeo = errors.New("no geo location for address")

// Geo is a coarse location derived from the client IP of a signup request.
type Geo struct {
	City     string
	Region   string
	Country  string
	Timezone string
}

// GeoResolver looks up where a request came from.
type GeoResolver interface {
	Lookup(ctx context.Context, ip string) (Geo, error)
}

// FormatGeo renders "City, Region, Country", skipping empty parts.
func FormatGeo(g Geo) string {
	parts := make([]string, 0, 3)
	for _, s := range []string{g.City, g.Region, g.Country} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}

// Location returns the time zone of g, or false when it is unknown.
func (g Geo) Location() (*time.Location, bool) {
	if strings.TrimSpace(g.Timezone) == "" {
		return nil, false
	}
	loc, err := time.LoadLocation(g.Timezone)
	if err != nil {
		return nil, false
	}
	return loc, true
}

const ipAPIBaseURL = "http://ip-api.com/json/"

// IPAPIResolver implements GeoResolver using ip-api.com.
type IPAPIResolver struct {
	Client  *http.Client
	BaseURL string
}

func publicAddr(ip string) (netip.Addr, bool) {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return netip.Addr{}, false
	}
	if addr.IsLoopback() || addr.IsPrivate() || addr.IsUnspecified() || addr.IsLinkLocalUnicast() {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

func (r IPAPIResolver) Lookup(ctx context.Context, ip string) (Geo, error) {
	addr, ok := publicAddr(ip)
	if !ok {
		return Geo{}, fmt.Errorf("%w: %q", ErrNoGeo, ip)
	}
	client := r.Client
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Second}
	}
	base := r.BaseURL
	if base == "" {
		base = ipAPIBaseURL
	}

	url := base + addr.String() + "?fields=status,message,country,regionName,city,timezone"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Geo{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return Geo{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Geo{}, fmt.Errorf("geo lookup: status %d", resp.StatusCode)
	}

	var body struct {
		Status     string `json:"status"`
		Message    string `json:"message"`
		Country    string `json:"country"`
		RegionName string `json:"regionName"`
		City       string `json:"city"`
		Timezone   string `json:"timezone"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Geo{}, err
	}
	if !strings.EqualFold(body.Status, "success") {
		return Geo{}, fmt.Errorf("geo lookup failed: %s", body.Message)
	}
	return Geo{City: body.City, Region: body.RegionName, Country: body.Country, Timezone: body.Timezone}, nil
}

// CachedResolver remembers successful lookups for TTL. A resend usually comes
// from the same address as the signup it follows.
type CachedResolver struct {
	Next GeoResolver
	TTL  time.Duration

	mu      sync.Mutex
	entries map[string]cachedGeo
}

type cachedGeo struct {
	geo     Geo
	expires time.Time
}

func NewCachedResolver(next GeoResolver, ttl time.Duration) *CachedResolver {
	return &CachedResolver{Next: next, TTL: ttl, entries: make(map[string]cachedGeo)}
}

func (r *CachedResolver) Lookup(ctx context.Context, ip string) (Geo, error) {
	now := time.Now()
	r.mu.Lock()
	e, ok := r.entries[ip]
	r.mu.Unlock()
	if ok && now.Before(e.expires) {
		return e.geo, nil
	}

	g, err := r.Next.Lookup(ctx, ip)
	if err != nil {
		return Geo{}, err
	}
	r.mu.Lock()
	r.entries[ip] = cachedGeo{geo: g, expires: now.Add(r.TTL)}
	r.mu.Unlock()
	return g, nil
}
