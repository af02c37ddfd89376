package kivaquery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

const earthRadiusKm = 6371
const kmPerMile = 1.609344

const DefaultGeocodeURL = "https://maps.googleapis.com/maps/api/geocode/json"

type LatLon struct {
	Lat float64
	Lon float64
}

// Geocoder resolves a free text location. found is false when the service knows no such place.
type Geocoder interface {
	Lookup(ctx context.Context, location string) (coords LatLon, found bool, err error)
}

type GoogleGeocoder struct {
	httpClient http.Client
	baseURL    string
	apiKey     string
}

func NewGoogleGeocoder(apiKey string) GoogleGeocoder {
	return GoogleGeocoder{
		httpClient: http.Client{Timeout: 10 * time.Second},
		baseURL:    DefaultGeocodeURL,
		apiKey:     apiKey,
	}
}

func (g *GoogleGeocoder) SetBaseURL(baseURL string) {
	g.baseURL = baseURL
}

type googleGeocodeResponse struct {
	Status  string `json:"status"`
	Results []struct {
		Geometry struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

func (g GoogleGeocoder) Lookup(ctx context.Context, location string) (LatLon, bool, error) {
	q := url.Values{}
	q.Set("address", location)
	q.Set("key", g.apiKey)

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return LatLon{}, false, fmt.Errorf("unable to create geocode request: %w", err)
	}

	response, err := g.httpClient.Do(request)
	if err != nil {
		return LatLon{}, false, fmt.Errorf("unable to execute geocode request: %w", err)
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return LatLon{}, false, fmt.Errorf("unable to read geocode response: %w", err)
	}

	if response.StatusCode != http.StatusOK {
		return LatLon{}, false, fmt.Errorf("geocode request returned status %d", response.StatusCode)
	}

	r := googleGeocodeResponse{}
	if err := json.Unmarshal(body, &r); err != nil {
		return LatLon{}, false, fmt.Errorf("unable to decode geocode response: %w", err)
	}

	if r.Status != "OK" || len(r.Results) == 0 {
		return LatLon{}, false, nil
	}

	loc := r.Results[0].Geometry.Location
	return LatLon{Lat: loc.Lat, Lon: loc.Lng}, true, nil
}

type geoCodeEntry struct {
	Location string  `json:"loc"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"long"`
}

// GeoCodeManager remembers every location it has resolved, including the ones that could not be found
type GeoCodeManager struct {
	geocoder  Geocoder
	cachePath string
	logger    *zap.Logger

	mu      sync.Mutex
	order   []string
	coords  map[string]LatLon
	lookups int
}

func NewGeoCodeManager(geocoder Geocoder, cachePath string, logger *zap.Logger) *GeoCodeManager {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &GeoCodeManager{
		geocoder:  geocoder,
		cachePath: cachePath,
		logger:    logger,
		coords:    map[string]LatLon{},
	}
}

func (m *GeoCodeManager) addGeoCode(location string, coords LatLon) {
	if _, ok := m.coords[location]; !ok {
		m.order = append(m.order, location)
	}
	m.coords[location] = coords
}

func (m *GeoCodeManager) GetGeoCode(ctx context.Context, location string) (LatLon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if coords, ok := m.coords[location]; ok {
		return coords, nil
	}

	return m.lookupAndCache(ctx, location)
}

func (m *GeoCodeManager) lookupAndCache(ctx context.Context, location string) (LatLon, error) {
	m.lookups++

	coords, found, err := m.geocoder.Lookup(ctx, location)
	if err != nil {
		return LatLon{}, fmt.Errorf("unable to geocode \"%s\": %w", location, err)
	}
	if !found {
		m.logger.Info("location not found, caching as 0,0", zap.String("location", location))
		coords = LatLon{}
	}

	m.addGeoCode(location, coords)
	return coords, nil
}

func (m *GeoCodeManager) Load() error {
	data, err := os.ReadFile(m.cachePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("unable to read geocode cache %q: %w", m.cachePath, err)
	}

	var entries []geoCodeEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("unable to decode geocode cache %q: %w", m.cachePath, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.order = nil
	m.coords = map[string]LatLon{}
	for _, e := range entries {
		m.addGeoCode(e.Location, LatLon{Lat: e.Lat, Lon: e.Lon})
	}

	return nil
}

func (m *GeoCodeManager) Save() error {
	m.mu.Lock()
	entries := make([]geoCodeEntry, 0, len(m.order))
	for _, loc := range m.order {
		c := m.coords[loc]
		entries = append(entries, geoCodeEntry{Location: loc, Lat: c.Lat, Lon: c.Lon})
	}
	m.mu.Unlock()

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("unable to encode geocode cache: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(m.cachePath), 0o755); err != nil {
		return fmt.Errorf("unable to create geocode cache dir: %w", err)
	}

	return writeFileAtomic(m.cachePath, data)
}

func (m *GeoCodeManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.order)
}

func (m *GeoCodeManager) Lookups() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.lookups
}

func (m *GeoCodeManager) WriteSummary(w io.Writer, verbose bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	buf := &bytes.Buffer{}
	fmt.Fprintf(buf, "Geocode cache contains %d entries\n", len(m.order))
	fmt.Fprintf(buf, "Required %d lookups for cache misses\n", m.lookups)

	if verbose {
		for _, loc := range m.order {
			c := m.coords[loc]
			fmt.Fprintf(buf, "%s\t%v\t%v\n", loc, c.Lat, c.Lon)
		}
	}

	_, err := buf.WriteTo(w)
	return err
}

func toRadians(degrees float64) float64 {
	return degrees * math.Pi / 180.0
}

func ToMiles(km float64) float64 {
	return km / kmPerMile
}

// DistanceBetween returns the great circle distance in km using the haversine formula
func DistanceBetween(lat1, lon1, lat2, lon2 float64) float64 {
	lat1 = toRadians(lat1)
	lat2 = toRadians(lat2)
	deltaLat := lat2 - lat1
	deltaLon := toRadians(lon2) - toRadians(lon1)

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}
