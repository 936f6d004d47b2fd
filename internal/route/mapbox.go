package route

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/twpayne/go-polyline"
	"github.com/ukydev/cocagne-tracker/internal/models"
)

// ErrUnavailable is returned when the directions provider fails or has no route.
var ErrUnavailable = errors.New("route unavailable")

// MaxWaypoints is the Mapbox driving profile limit.
const MaxWaypoints = 25

// Geometry is the drawable itinerary of a tour.
type Geometry struct {
	Path            []models.Location `json:"path"`
	Instructions    []string          `json:"instructions"`
	DistanceMeters  float64           `json:"distance_meters"`
	DurationSeconds float64           `json:"duration_seconds"`
}

// IsEmpty reports whether there is nothing to draw.
func (g Geometry) IsEmpty() bool {
	return len(g.Path) == 0
}

// Resolver obtains a driving itinerary through ordered waypoints.
type Resolver interface {
	Resolve(ctx context.Context, waypoints []models.Location) (Geometry, error)
}

type httpStatusError struct {
	Code int
	Body string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Code, e.Body)
}

// MapboxResolver implements Resolver with the Mapbox Directions API.
type MapboxResolver struct {
	session  *http.Client
	token    string
	baseURL  string
	profile  string
	language string
}

// MapboxOption configures a MapboxResolver.
type MapboxOption func(*MapboxResolver)

// WithBaseURL points the resolver at another host, e.g. a test server.
func WithBaseURL(u string) MapboxOption {
	return func(m *MapboxResolver) { m.baseURL = strings.TrimRight(u, "/") }
}

func WithProfile(p string) MapboxOption {
	return func(m *MapboxResolver) { m.profile = p }
}

func WithHTTPClient(c *http.Client) MapboxOption {
	return func(m *MapboxResolver) { m.session = c }
}

func WithLanguage(lang string) MapboxOption {
	return func(m *MapboxResolver) { m.language = lang }
}

// NewMapboxResolver creates a resolver authenticated with an access token.
func NewMapboxResolver(token string, opts ...MapboxOption) (*MapboxResolver, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("mapbox access token is empty")
	}
	m := &MapboxResolver{
		session:  &http.Client{Timeout: 10 * time.Second},
		token:    token,
		baseURL:  "https://api.mapbox.com",
		profile:  "mapbox/driving",
		language: "fr",
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

type directionsResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Geometry string  `json:"geometry"`
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
		Legs     []struct {
			Steps []struct {
				Maneuver struct {
					Instruction string `json:"instruction"`
				} `json:"maneuver"`
			} `json:"steps"`
		} `json:"legs"`
	} `json:"routes"`
}

// Resolve requests one itinerary through waypoints. Fewer than two waypoints
// yield an empty geometry without any request. The call is not retried.
func (m *MapboxResolver) Resolve(ctx context.Context, waypoints []models.Location) (Geometry, error) {
	if len(waypoints) < 2 {
		return Geometry{}, nil
	}
	if len(waypoints) > MaxWaypoints {
		return Geometry{}, fmt.Errorf("%w: %d waypoints exceed the limit of %d", ErrUnavailable, len(waypoints), MaxWaypoints)
	}

	start := time.Now()
	req, err := m.newRequest(ctx, waypoints)
	if err != nil {
		return Geometry{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	resp, err := m.do(req)
	if err != nil {
		return Geometry{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	var decoded directionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Geometry{}, fmt.Errorf("%w: decode directions response: %v", ErrUnavailable, err)
	}
	if decoded.Code != "" && decoded.Code != "Ok" {
		return Geometry{}, fmt.Errorf("%w: provider code %s: %s", ErrUnavailable, decoded.Code, decoded.Message)
	}
	if len(decoded.Routes) == 0 {
		return Geometry{}, fmt.Errorf("%w: no route returned", ErrUnavailable)
	}

	r := decoded.Routes[0]
	path, err := DecodePolyline(r.Geometry)
	if err != nil {
		return Geometry{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(path) == 0 {
		return Geometry{}, fmt.Errorf("%w: empty route geometry", ErrUnavailable)
	}

	var instructions []string
	for _, leg := range r.Legs {
		for _, step := range leg.Steps {
			if step.Maneuver.Instruction != "" {
				instructions = append(instructions, step.Maneuver.Instruction)
			}
		}
	}

	log.WithFields(log.Fields{
		"waypoints":    len(waypoints),
		"points":       len(path),
		"instructions": len(instructions),
		"dur_ms":       time.Since(start).Milliseconds(),
	}).Debug("Resolved route")

	return Geometry{
		Path:            path,
		Instructions:    instructions,
		DistanceMeters:  r.Distance,
		DurationSeconds: r.Duration,
	}, nil
}

func (m *MapboxResolver) newRequest(ctx context.Context, waypoints []models.Location) (*http.Request, error) {
	coords := make([]string, 0, len(waypoints))
	for _, w := range waypoints {
		coords = append(coords, fmt.Sprintf("%.6f,%.6f", w.Lon, w.Lat))
	}
	endpoint := fmt.Sprintf("%s/directions/v5/%s/%s", m.baseURL, m.profile, strings.Join(coords, ";"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	q := url.Values{}
	q.Set("access_token", m.token)
	q.Set("geometries", "polyline")
	q.Set("overview", "full")
	q.Set("steps", "true")
	if m.language != "" {
		q.Set("language", m.language)
	}
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (m *MapboxResolver) do(req *http.Request) (*http.Response, error) {
	resp, err := m.session.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &httpStatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	return resp, nil
}

// DecodePolyline decodes a precision-5 encoded polyline.
func DecodePolyline(encoded string) ([]models.Location, error) {
	if encoded == "" {
		return nil, nil
	}
	coords, rest, err := polyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, fmt.Errorf("decode polyline: %w", err)
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("decode polyline: %d trailing bytes", len(rest))
	}
	out := make([]models.Location, 0, len(coords))
	for _, c := range coords {
		out = append(out, models.Location{Lat: c[0], Lon: c[1]})
	}
	return out, nil
}
