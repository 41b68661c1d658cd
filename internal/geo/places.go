package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"sort"
	"time"
)

// defaultBaseURL is the Google Places Nearby Search endpoint.
const defaultBaseURL = "https://maps.googleapis.com/maps/api/place/nearbysearch/json"

// PlacesClient implements Searcher against the Google Places API.
type PlacesClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewPlacesClient creates a Places search client.
func NewPlacesClient(apiKey string, timeout time.Duration, logger *slog.Logger) *PlacesClient {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &PlacesClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// NewPlacesClientWithBaseURL creates a client pointed at a custom endpoint.
// Used by tests to target an httptest server.
func NewPlacesClientWithBaseURL(apiKey, baseURL string, timeout time.Duration, logger *slog.Logger) *PlacesClient {
	c := NewPlacesClient(apiKey, timeout, logger)
	c.baseURL = baseURL
	return c
}

type placesResponse struct {
	Results []placeResult `json:"results"`
	Status  string        `json:"status"`
	Error   string        `json:"error_message"`
}

type placeResult struct {
	Name     string        `json:"name"`
	Geometry placeGeometry `json:"geometry"`
}

type placeGeometry struct {
	Location latLng `json:"location"`
}

type latLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Search queries one POI category around a coordinate. Results are filtered
// to the radius and sorted nearest-first; ZERO_RESULTS is not an error.
func (c *PlacesClient) Search(ctx context.Context, lat, lon float64, radiusM int, category Category) ([]Place, error) {
	q := url.Values{}
	q.Set("location", fmt.Sprintf("%f,%f", lat, lon))
	q.Set("radius", fmt.Sprintf("%d", radiusM))
	q.Set("type", string(category))
	q.Set("key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("places request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("places API returned HTTP %d", resp.StatusCode)
	}

	var placesResp placesResponse
	if err := json.NewDecoder(resp.Body).Decode(&placesResp); err != nil {
		return nil, fmt.Errorf("decoding places response: %w", err)
	}

	switch placesResp.Status {
	case "OK":
	case "ZERO_RESULTS":
		return nil, nil
	default:
		return nil, fmt.Errorf("places search failed: status=%s %s", placesResp.Status, placesResp.Error)
	}

	places := make([]Place, 0, len(placesResp.Results))
	for _, r := range placesResp.Results {
		d := HaversineMeters(lat, lon, r.Geometry.Location.Lat, r.Geometry.Location.Lng)
		// The API treats radius as a bias in some modes, so enforce it here.
		if d > float64(radiusM) {
			continue
		}
		places = append(places, Place{Name: r.Name, DistanceM: d})
	}

	sort.Slice(places, func(i, j int) bool {
		return places[i].DistanceM < places[j].DistanceM
	})

	return places, nil
}

// HaversineMeters returns the great-circle distance between two coordinates.
func HaversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusM = 6371000.0

	rad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := rad(lat2 - lat1)
	dLon := rad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)

	return earthRadiusM * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
