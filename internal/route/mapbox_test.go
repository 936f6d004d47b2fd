package route

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-polyline"
	"github.com/ukydev/cocagne-tracker/internal/models"
)

var epinal = []models.Location{
	{Lat: 48.1724, Lon: 6.4496},
	{Lat: 48.1851, Lon: 6.4612},
	{Lat: 48.1930, Lon: 6.4790},
}

func directionsBody(t *testing.T, path [][]float64, legs [][]string) []byte {
	t.Helper()
	type step struct {
		Maneuver struct {
			Instruction string `json:"instruction"`
		} `json:"maneuver"`
	}
	type leg struct {
		Steps []step `json:"steps"`
	}
	var ls []leg
	for _, instructions := range legs {
		var l leg
		for _, in := range instructions {
			var s step
			s.Maneuver.Instruction = in
			l.Steps = append(l.Steps, s)
		}
		ls = append(ls, l)
	}
	body, err := json.Marshal(map[string]interface{}{
		"code": "Ok",
		"routes": []map[string]interface{}{{
			"geometry": string(polyline.EncodeCoords(path)),
			"distance": 5230.4,
			"duration": 611.2,
			"legs":     ls,
		}},
	})
	require.NoError(t, err)
	return body
}

func newTestResolver(t *testing.T, srv *httptest.Server) *MapboxResolver {
	t.Helper()
	r, err := NewMapboxResolver("pk.test", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return r
}

func TestNewMapboxResolver_EmptyToken(t *testing.T) {
	_, err := NewMapboxResolver("  ")
	assert.Error(t, err)
}

func TestMapboxResolver_Resolve(t *testing.T) {
	path := [][]float64{{48.1724, 6.4496}, {48.18, 6.455}, {48.1851, 6.4612}, {48.193, 6.479}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/directions/v5/mapbox/driving/6.449600,48.172400;6.461200,48.185100;6.479000,48.193000", r.URL.Path)
		assert.Equal(t, "pk.test", r.URL.Query().Get("access_token"))
		assert.Equal(t, "polyline", r.URL.Query().Get("geometries"))
		assert.Equal(t, "true", r.URL.Query().Get("steps"))
		w.Header().Set("Content-Type", "application/json")
		w.Write(directionsBody(t, path, [][]string{
			{"Tournez à droite", "Continuez tout droit"},
			{"Au rond-point, prenez la deuxième sortie", "Vous êtes arrivé"},
		}))
	}))
	defer srv.Close()

	geo, err := newTestResolver(t, srv).Resolve(context.Background(), epinal)
	require.NoError(t, err)
	require.Len(t, geo.Path, 4)
	assert.InDelta(t, 48.1724, geo.Path[0].Lat, 1e-5)
	assert.InDelta(t, 6.4496, geo.Path[0].Lon, 1e-5)
	assert.Equal(t, []string{
		"Tournez à droite",
		"Continuez tout droit",
		"Au rond-point, prenez la deuxième sortie",
		"Vous êtes arrivé",
	}, geo.Instructions)
	assert.InDelta(t, 5230.4, geo.DistanceMeters, 1e-9)
	assert.False(t, geo.IsEmpty())
}

func TestMapboxResolver_FewerThanTwoWaypoints(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()
	r := newTestResolver(t, srv)

	for _, wps := range [][]models.Location{nil, epinal[:1]} {
		geo, err := r.Resolve(context.Background(), wps)
		assert.NoError(t, err)
		assert.True(t, geo.IsEmpty())
		assert.Empty(t, geo.Instructions)
	}
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestMapboxResolver_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}},
		{"unauthorized", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"message":"Not Authorized - Invalid Token"}`, http.StatusUnauthorized)
		}},
		{"no route code", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"code":"NoRoute","message":"No route found","routes":[]}`))
		}},
		{"empty routes", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"code":"Ok","routes":[]}`))
		}},
		{"empty geometry", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"code":"Ok","routes":[{"geometry":"","legs":[]}]}`))
		}},
		{"invalid json", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{bad json`))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			geo, err := newTestResolver(t, srv).Resolve(context.Background(), epinal[:2])
			assert.ErrorIs(t, err, ErrUnavailable)
			assert.True(t, geo.IsEmpty())
		})
	}
}

func TestMapboxResolver_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	r := newTestResolver(t, srv)
	srv.Close()

	_, err := r.Resolve(context.Background(), epinal[:2])
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestMapboxResolver_TooManyWaypoints(t *testing.T) {
	r, err := NewMapboxResolver("pk.test")
	require.NoError(t, err)
	wps := make([]models.Location, MaxWaypoints+1)
	_, err = r.Resolve(context.Background(), wps)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.True(t, strings.Contains(err.Error(), "exceed"))
}

func TestDecodePolyline(t *testing.T) {
	path, err := DecodePolyline("_p~iF~ps|U_ulLnnqC_mqNvxq`@")
	require.NoError(t, err)
	require.Len(t, path, 3)
	assert.InDelta(t, 38.5, path[0].Lat, 1e-5)
	assert.InDelta(t, -120.2, path[0].Lon, 1e-5)
	assert.InDelta(t, 43.252, path[2].Lat, 1e-5)
	assert.InDelta(t, -126.453, path[2].Lon, 1e-5)

	empty, err := DecodePolyline("")
	assert.NoError(t, err)
	assert.Empty(t, empty)
}

func TestPathKm(t *testing.T) {
	assert.Equal(t, 0.0, PathKm(nil))
	assert.Equal(t, 0.0, PathKm(epinal[:1]))

	paris := models.Location{Lat: 48.8566, Lon: 2.3522}
	london := models.Location{Lat: 51.5074, Lon: -0.1278}
	assert.InDelta(t, 343.6, PathKm([]models.Location{paris, london}), 1.0)
	assert.InDelta(t, HaversineKm(paris, london), HaversineKm(london, paris), 1e-9)
}
