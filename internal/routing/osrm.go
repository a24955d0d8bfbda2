package routing

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/ukydev/ambulance-sim/internal/models"
)

// DefaultOSRMBaseURL is the public OSRM demo server.
const DefaultOSRMBaseURL = "https://router.project-osrm.org"

// OSRMClient talks to an OSRM HTTP server.
type OSRMClient struct {
	baseURL string
	client  HTTPClient
}

// NewOSRMClient creates an OSRM client. An empty baseURL selects the public
// demo server.
func NewOSRMClient(baseURL string, client HTTPClient) *OSRMClient {
	if baseURL == "" {
		baseURL = DefaultOSRMBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &OSRMClient{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// Snap uses the nearest service.
func (c *OSRMClient) Snap(ctx context.Context, p models.Location) (models.Location, error) {
	url := fmt.Sprintf("%s/nearest/v1/driving/%.6f,%.6f?number=1", c.baseURL, p.Lon, p.Lat)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.Location{}, err
	}

	var obj struct {
		Code      string `json:"code"`
		Waypoints []struct {
			Location []float64 `json:"location"`
		} `json:"waypoints"`
	}
	if err := doJSON(c.client, req, &obj); err != nil {
		return models.Location{}, err
	}
	if obj.Code != "Ok" || len(obj.Waypoints) == 0 || len(obj.Waypoints[0].Location) < 2 {
		return models.Location{}, fmt.Errorf("%w: osrm code %q", ErrSnapFailed, obj.Code)
	}
	loc := obj.Waypoints[0].Location
	return models.Location{Lat: loc[1], Lon: loc[0]}, nil
}

// Directions uses the route service with per-node annotations so that every
// segment of the geometry carries a speed hint.
func (c *OSRMClient) Directions(ctx context.Context, from, to models.Location) (Path, error) {
	url := fmt.Sprintf("%s/route/v1/driving/%.6f,%.6f;%.6f,%.6f?overview=full&geometries=geojson&annotations=distance,duration",
		c.baseURL, from.Lon, from.Lat, to.Lon, to.Lat)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Path{}, err
	}

	var obj struct {
		Code   string `json:"code"`
		Routes []struct {
			Geometry struct {
				Coordinates [][]float64 `json:"coordinates"`
			} `json:"geometry"`
			Legs []struct {
				Annotation struct {
					Distance []float64 `json:"distance"`
					Duration []float64 `json:"duration"`
				} `json:"annotation"`
			} `json:"legs"`
		} `json:"routes"`
	}
	if err := doJSON(c.client, req, &obj); err != nil {
		return Path{}, err
	}
	if obj.Code != "Ok" || len(obj.Routes) == 0 {
		return Path{}, fmt.Errorf("%w: osrm code %q", ErrNoRoute, obj.Code)
	}

	r := obj.Routes[0]
	pts, clean := lonLatPoints(r.Geometry.Coordinates)
	if len(pts) < 2 {
		return Path{}, fmt.Errorf("%w: osrm returned %d points", ErrNoRoute, len(pts))
	}

	var speeds []float64
	for _, leg := range r.Legs {
		a := leg.Annotation
		if len(a.Distance) != len(a.Duration) {
			speeds = nil
			break
		}
		for i := range a.Distance {
			speeds = append(speeds, speedKmh(a.Distance[i], a.Duration[i]))
		}
	}
	if !clean || len(speeds) != len(pts)-1 {
		speeds = nil
	}
	return Path{Points: pts, SpeedsKmh: speeds}, nil
}
