package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/cocagne-tracker/internal/db"
	"github.com/ukydev/cocagne-tracker/internal/middleware"
	"github.com/ukydev/cocagne-tracker/internal/models"
	"github.com/ukydev/cocagne-tracker/internal/notify"
	"github.com/ukydev/cocagne-tracker/internal/session"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type fakeUploader struct {
	key  string
	body string
	err  error
}

func (u *fakeUploader) UploadFile(ctx context.Context, file io.Reader, objectKey string) (string, error) {
	u.key = objectKey
	b, _ := io.ReadAll(file)
	u.body = string(b)
	if u.err != nil {
		return "", u.err
	}
	return "https://cdn.example.org/" + objectKey, nil
}

type fixture struct {
	tours         *MockTourCollection
	notifications *MockNotificationCollection
	tokens        *MockPushTokenCollection
	proofs        *MockProofCollection
	uploader      *fakeUploader
	manager       *session.Manager
	router        *mux.Router
}

func newFixture(t *testing.T, limit RateLimit) *fixture {
	t.Helper()
	f := &fixture{
		tours:         new(MockTourCollection),
		notifications: new(MockNotificationCollection),
		tokens:        new(MockPushTokenCollection),
		proofs:        new(MockProofCollection),
		uploader:      &fakeUploader{},
	}
	f.manager = session.NewManager(f.tours, nil, notify.NewCompletion(f.tours, nil), session.Options{})
	f.router = NewRouter(Router{
		Tours:         NewTourHandler(f.tours),
		Sessions:      NewSessionHandler(f.manager),
		Photos:        NewPhotoHandler(f.manager, f.uploader, f.proofs),
		Notifications: NewNotificationHandler(f.notifications, f.tokens, notify.NewHub()),
		ScanLimit:     limit,
	})
	return f
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.DeviceHeader, "van-1")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func epinalTour() *models.Tour {
	return &models.Tour{
		ID:   primitive.NewObjectID(),
		City: "Epinal",
		Day:  "mardi",
		Depots: []models.Depot{
			{
				ID:          primitive.NewObjectID(),
				Name:        "Biocoop",
				Address:     "A",
				Coordinates: models.Location{Lat: 48.1724, Lon: 6.4496},
				Baskets:     []models.Basket{{Type: "petit", Quantity: 1}, {Type: "grand", Quantity: 1}},
			},
			{
				ID:          primitive.NewObjectID(),
				Name:        "Mairie",
				Address:     "B",
				Coordinates: models.Location{Lat: 48.1851, Lon: 6.4612},
				Baskets:     []models.Basket{{Type: "petit", Quantity: 1}},
			},
		},
		Status: models.TourStatusPlanned,
	}
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func TestHealth(t *testing.T) {
	f := newFixture(t, RateLimit{})
	w := f.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestTourHandler_List(t *testing.T) {
	f := newFixture(t, RateLimit{})
	tour := epinalTour()
	f.tours.On("FindTours", mock.Anything, mock.MatchedBy(func(filter db.TourFilter) bool {
		return filter.City == "Epinal" && filter.Date.Equal(time.Date(2024, 5, 14, 0, 0, 0, 0, time.UTC))
	})).Return([]models.Tour{*tour}, nil).Once()

	w := f.do(http.MethodGet, "/api/tours?city=Epinal&date=2024-05-14", "")
	require.Equal(t, http.StatusOK, w.Code)

	var out []models.TourSummary
	decodeBody(t, w, &out)
	require.Len(t, out, 1)
	assert.Equal(t, tour.ID.Hex(), out[0].ID)
	assert.Equal(t, 2, out[0].Depots)
	assert.Equal(t, "planned", out[0].Status)
	assert.InDelta(t, 1.6, out[0].DistanceKm, 0.2)
	f.tours.AssertExpectations(t)
}

func TestTourHandler_ListErrors(t *testing.T) {
	f := newFixture(t, RateLimit{})
	w := f.do(http.MethodGet, "/api/tours?date=14/05/2024", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	f.tours.On("FindTours", mock.Anything, db.TourFilter{}).Return(nil, errors.New("db down")).Once()
	w = f.do(http.MethodGet, "/api/tours", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestTourHandler_Get(t *testing.T) {
	f := newFixture(t, RateLimit{})
	tour := epinalTour()
	f.tours.On("FindTourByID", mock.Anything, tour.ID.Hex()).Return(tour, nil).Once()
	f.tours.On("FindTourByID", mock.Anything, "missing").Return(nil, db.ErrTourNotFound).Once()

	w := f.do(http.MethodGet, "/api/tours/"+tour.ID.Hex(), "")
	require.Equal(t, http.StatusOK, w.Code)
	var got models.Tour
	decodeBody(t, w, &got)
	assert.Equal(t, "Epinal", got.City)
	assert.Len(t, got.Depots[0].Baskets, 2)

	w = f.do(http.MethodGet, "/api/tours/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTourHandler_ValidateDepot(t *testing.T) {
	f := newFixture(t, RateLimit{})
	tour := epinalTour()
	tour.Depots[0].DeliveryValidated = true
	f.tours.On("ValidateDepot", mock.Anything, "t1", "d1").Return(tour, nil).Once()
	f.tours.On("ValidateDepot", mock.Anything, "t2", "d1").Return(nil, db.ErrTourNotFound).Once()
	f.tours.On("ValidateDepot", mock.Anything, "t1", "d2").Return(nil, db.ErrDepotNotFound).Once()

	assert.Equal(t, http.StatusOK, f.do(http.MethodPut, "/api/tours/validate/t1/d1", "").Code)
	w := f.do(http.MethodPut, "/api/tours/validate/t2/d1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "Tour not found")
	w = f.do(http.MethodPut, "/api/tours/validate/t1/d2", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "Depot not found")
	// Subrouter method mismatches surface as 404 in gorilla/mux.
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/tours/validate/t1/d1", "").Code)
}

func startSession(t *testing.T, f *fixture, tour *models.Tour) session.View {
	t.Helper()
	f.tours.On("FindTourByCity", mock.Anything, tour.City).Return(tour, nil).Once()
	w := f.do(http.MethodPost, "/api/sessions", `{"city":"`+tour.City+`","device_id":"van-1"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var view session.View
	decodeBody(t, w, &view)
	return view
}

func TestSessionHandler_FullTour(t *testing.T) {
	f := newFixture(t, RateLimit{})
	tour := epinalTour()
	f.tours.On("MarkDelivered", mock.Anything, tour.ID.Hex()).Return(nil).Once()

	view := startSession(t, f, tour)
	assert.NotEmpty(t, view.SessionID)
	assert.Equal(t, "awaiting_depot_scan", view.Phase)
	assert.Equal(t, session.RouteUnavailable, view.Route.Status)

	var last session.ScanResult
	for i := 0; i < 5; i++ {
		w := f.do(http.MethodPost, "/api/sessions/"+view.SessionID+"/scans", `{"payload":"QR-`+string(rune('0'+i))+`"}`)
		require.Equal(t, http.StatusOK, w.Code)
		decodeBody(t, w, &last)
		assert.True(t, last.Accepted)
	}
	assert.True(t, last.View.Completed)
	assert.Equal(t, "completed", last.View.Phase)
	assert.Empty(t, last.Warnings)

	w := f.do(http.MethodPost, "/api/sessions/"+view.SessionID+"/scans", `{"payload":"again"}`)
	require.Equal(t, http.StatusOK, w.Code)
	decodeBody(t, w, &last)
	assert.False(t, last.Accepted)
	f.tours.AssertExpectations(t)
}

func TestSessionHandler_CompletionWarning(t *testing.T) {
	f := newFixture(t, RateLimit{})
	tour := epinalTour()
	tour.Depots = tour.Depots[1:]
	f.tours.On("MarkDelivered", mock.Anything, tour.ID.Hex()).Return(errors.New("write concern error")).Once()

	view := startSession(t, f, tour)
	f.do(http.MethodPost, "/api/sessions/"+view.SessionID+"/scans", `{"payload":"depot"}`)
	w := f.do(http.MethodPost, "/api/sessions/"+view.SessionID+"/scans", `{"payload":"basket"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var res session.ScanResult
	decodeBody(t, w, &res)
	assert.True(t, res.View.Completed)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "write concern error")
}

func TestSessionHandler_StartErrors(t *testing.T) {
	f := newFixture(t, RateLimit{})
	invalid := epinalTour()
	invalid.City = "Invalide"
	invalid.Depots[1].Address = "A"
	delivered := epinalTour()
	delivered.City = "Golbey"
	delivered.Status = models.TourStatusDelivered
	f.tours.On("FindTourByCity", mock.Anything, "Unknown").Return(nil, db.ErrTourNotFound)
	f.tours.On("FindTourByCity", mock.Anything, "Invalide").Return(invalid, nil)
	f.tours.On("FindTourByCity", mock.Anything, "Golbey").Return(delivered, nil)
	f.tours.On("FindTourByCity", mock.Anything, "Broken").Return(nil, errors.New("db down"))

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"unknown city", `{"city":"Unknown","device_id":"d"}`, http.StatusNotFound},
		{"invalid tour", `{"city":"Invalide","device_id":"d"}`, http.StatusUnprocessableEntity},
		{"delivered tour", `{"city":"Golbey","device_id":"d"}`, http.StatusConflict},
		{"store failure", `{"city":"Broken","device_id":"d"}`, http.StatusInternalServerError},
		{"no lookup", `{"device_id":"d"}`, http.StatusBadRequest},
		{"invalid json", `{bad json`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(http.MethodPost, "/api/sessions", tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
	assert.Equal(t, 0, f.manager.Len())
}

func TestSessionHandler_TourTrackedByAnotherDevice(t *testing.T) {
	f := newFixture(t, RateLimit{})
	tour := epinalTour()
	startSession(t, f, tour)
	f.tours.On("FindTourByCity", mock.Anything, tour.City).Return(tour, nil).Once()

	w := f.do(http.MethodPost, "/api/sessions", `{"city":"Epinal","device_id":"van-2"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "another device")
	assert.Equal(t, 1, f.manager.Len())
}

func TestSessionHandler_DeviceFromHeader(t *testing.T) {
	f := newFixture(t, RateLimit{})
	tour := epinalTour()
	f.tours.On("FindTourByID", mock.Anything, tour.ID.Hex()).Return(tour, nil).Once()

	w := f.do(http.MethodPost, "/api/sessions", `{"tour_id":"`+tour.ID.Hex()+`"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var view session.View
	decodeBody(t, w, &view)
	assert.Equal(t, "van-1", view.DeviceID)
}

func TestSessionHandler_ScanErrors(t *testing.T) {
	f := newFixture(t, RateLimit{})
	view := startSession(t, f, epinalTour())

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodPost, "/api/sessions/nope/scans", `{"payload":"x"}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/sessions/"+view.SessionID+"/scans", `{"payload":"  "}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/sessions/"+view.SessionID+"/scans", `nope`).Code)
}

func TestSessionHandler_ScanRateLimit(t *testing.T) {
	f := newFixture(t, RateLimit{Requests: 2, Window: time.Minute})
	view := startSession(t, f, epinalTour())
	path := "/api/sessions/" + view.SessionID + "/scans"

	assert.Equal(t, http.StatusOK, f.do(http.MethodPost, path, `{"payload":"1"}`).Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodPost, path, `{"payload":"2"}`).Code)
	assert.Equal(t, http.StatusTooManyRequests, f.do(http.MethodPost, path, `{"payload":"3"}`).Code)
}

func TestSessionHandler_GetAndClose(t *testing.T) {
	f := newFixture(t, RateLimit{})
	view := startSession(t, f, epinalTour())
	path := "/api/sessions/" + view.SessionID

	w := f.do(http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, w.Code)
	var got session.View
	decodeBody(t, w, &got)
	assert.Equal(t, view.SessionID, got.SessionID)
	assert.Len(t, got.RemainingStops, 2)

	assert.Equal(t, http.StatusNoContent, f.do(http.MethodDelete, path, "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, path, "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodDelete, path, "").Code)
}

func multipartPhoto(t *testing.T, field string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, "proof.jpg")
	require.NoError(t, err)
	_, err = part.Write([]byte("\xff\xd8\xff\xe0fake-jpeg"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestPhotoHandler_Upload(t *testing.T) {
	f := newFixture(t, RateLimit{})
	tour := epinalTour()
	view := startSession(t, f, tour)
	f.proofs.On("InsertProof", mock.Anything, mock.MatchedBy(func(p models.DeliveryProof) bool {
		return p.TourID == tour.ID.Hex() && p.Address == "A" && p.DeviceID == "van-1" && strings.HasPrefix(p.PhotoURL, "https://cdn.example.org/proofs/")
	})).Return(models.DeliveryProof{ID: primitive.NewObjectID(), Address: "A"}, nil).Once()

	body, contentType := multipartPhoto(t, "photo")
	req := httptest.NewRequest(http.MethodPost, "/api/sessions/"+view.SessionID+"/photos", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.True(t, strings.HasPrefix(f.uploader.key, "proofs/"+tour.ID.Hex()+"/a/"), f.uploader.key)
	assert.Equal(t, "\xff\xd8\xff\xe0fake-jpeg", f.uploader.body)
	f.proofs.AssertExpectations(t)
}

func TestPhotoHandler_Errors(t *testing.T) {
	f := newFixture(t, RateLimit{})
	view := startSession(t, f, epinalTour())
	path := "/api/sessions/" + view.SessionID + "/photos"

	body, contentType := multipartPhoto(t, "image")
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	f.uploader.err = errors.New("AccessDenied")
	body, contentType = multipartPhoto(t, "photo")
	req = httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", contentType)
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadGateway, w.Code)

	unconfigured := NewPhotoHandler(f.manager, nil, f.proofs)
	w = httptest.NewRecorder()
	unconfigured.Upload(w, httptest.NewRequest(http.MethodPost, path, nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestNotificationHandler_List(t *testing.T) {
	f := newFixture(t, RateLimit{})
	feed := []models.Notification{{ID: primitive.NewObjectID(), TourID: "t1", City: "Epinal"}}
	f.notifications.On("FindNotifications", mock.Anything, int64(50)).Return(feed, nil).Once()
	f.notifications.On("FindNotifications", mock.Anything, int64(5)).Return([]models.Notification{}, nil).Once()

	w := f.do(http.MethodGet, "/api/notifications", "")
	require.Equal(t, http.StatusOK, w.Code)
	var got []models.Notification
	decodeBody(t, w, &got)
	assert.Len(t, got, 1)

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/notifications?limit=5", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/notifications?limit=-1", "").Code)
	f.notifications.AssertExpectations(t)
}

func TestNotificationHandler_Delete(t *testing.T) {
	f := newFixture(t, RateLimit{})
	f.notifications.On("DeleteNotification", mock.Anything, "n1").Return(nil).Once()
	f.notifications.On("DeleteNotification", mock.Anything, "n2").Return(db.ErrNotificationNotFound).Once()
	f.notifications.On("DeleteAllNotifications", mock.Anything).Return(int64(3), nil).Once()

	assert.Equal(t, http.StatusNoContent, f.do(http.MethodDelete, "/api/notifications/n1", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodDelete, "/api/notifications/n2", "").Code)

	w := f.do(http.MethodDelete, "/api/notifications", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"deleted":3}`, w.Body.String())
}

func TestNotificationHandler_RegisterPushToken(t *testing.T) {
	f := newFixture(t, RateLimit{})
	f.tokens.On("UpsertPushToken", mock.Anything, mock.MatchedBy(func(tok models.PushToken) bool {
		return tok.Token == "ExponentPushToken[xxx]" && tok.DeviceID == "van-1"
	})).Return(nil).Once()

	w := f.do(http.MethodPost, "/api/push-tokens", `{"token":"ExponentPushToken[xxx]","device_id":"van-1"}`)
	assert.Equal(t, http.StatusCreated, w.Code)
	w = f.do(http.MethodPost, "/api/push-tokens", `{"token":"not-a-token"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	f.tokens.AssertExpectations(t)
}
