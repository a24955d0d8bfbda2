package routing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/ukydev/ambulance-sim/internal/models"
)

// DefaultORSBaseURL is the hosted OpenRouteService API.
const DefaultORSBaseURL = "https://api.openrouteservice.org"

// snapRadiusM bounds how far ORS may look for a road.
const snapRadiusM = 350

// ORSClient talks to the OpenRouteService API.
type ORSClient struct {
	baseURL string
	apiKey  string
	client  HTTPClient
}

// NewORSClient creates an OpenRouteService client.
func NewORSClient(baseURL, apiKey string, client HTTPClient) *ORSClient {
	if baseURL == "" {
		baseURL = DefaultORSBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &ORSClient{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, client: client}
}

func (c *ORSClient) post(ctx context.Context, path string, payload, out interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", c.apiKey)
	}
	return doJSON(c.client, req, out)
}

// Snap uses the snap service.
func (c *ORSClient) Snap(ctx context.Context, p models.Location) (models.Location, error) {
	payload := map[string]interface{}{
		"locations": [][]float64{{p.Lon, p.Lat}},
		"radius":    snapRadiusM,
	}
	var obj struct {
		Locations []*struct {
			Location []float64 `json:"location"`
		} `json:"locations"`
	}
	if err := c.post(ctx, "/v2/snap/driving-car", payload, &obj); err != nil {
		return models.Location{}, err
	}
	if len(obj.Locations) == 0 || obj.Locations[0] == nil || len(obj.Locations[0].Location) < 2 {
		return models.Location{}, fmt.Errorf("%w: no road within %dm", ErrSnapFailed, snapRadiusM)
	}
	loc := obj.Locations[0].Location
	return models.Location{Lat: loc[1], Lon: loc[0]}, nil
}

// Directions uses the geojson directions service. Step timings are spread
// over the way-point range each step covers.
func (c *ORSClient) Directions(ctx context.Context, from, to models.Location) (Path, error) {
	payload := map[string]interface{}{
		"coordinates": [][]float64{{from.Lon, from.Lat}, {to.Lon, to.Lat}},
	}
	var obj struct {
		Features []struct {
			Geometry struct {
				Coordinates [][]float64 `json:"coordinates"`
			} `json:"geometry"`
			Properties struct {
				Segments []struct {
					Steps []struct {
						Distance  float64 `json:"distance"`
						Duration  float64 `json:"duration"`
						WayPoints []int   `json:"way_points"`
					} `json:"steps"`
				} `json:"segments"`
			} `json:"properties"`
		} `json:"features"`
	}
	if err := c.post(ctx, "/v2/directions/driving-car/geojson", payload, &obj); err != nil {
		return Path{}, err
	}
	if len(obj.Features) == 0 {
		return Path{}, fmt.Errorf("%w: ors returned no features", ErrNoRoute)
	}

	f := obj.Features[0]
	pts, clean := lonLatPoints(f.Geometry.Coordinates)
	if len(pts) < 2 {
		return Path{}, fmt.Errorf("%w: ors returned %d points", ErrNoRoute, len(pts))
	}
	if !clean {
		return Path{Points: pts}, nil
	}

	speeds := make([]float64, len(pts)-1)
	hinted := false
	for _, seg := range f.Properties.Segments {
		for _, st := range seg.Steps {
			if st.Duration <= 0 || len(st.WayPoints) < 2 {
				continue
			}
			v := speedKmh(st.Distance, st.Duration)
			for i := st.WayPoints[0]; i < st.WayPoints[1] && i < len(speeds); i++ {
				if i >= 0 {
					speeds[i] = v
					hinted = true
				}
			}
		}
	}
	if !hinted {
		speeds = nil
	}
	return Path{Points: pts, SpeedsKmh: speeds}, nil
}
