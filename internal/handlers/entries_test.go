package handlers

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/eventual/internal/media"
	"github.com/ukydev/eventual/internal/middleware"
	"github.com/ukydev/eventual/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MockEntryService is a mock implementation of EntryService
type MockEntryService struct {
	mock.Mock
}

func (m *MockEntryService) Retrieve(ctx context.Context, origin *models.Coordinate) ([]models.Entry, error) {
	args := m.Called(ctx, origin)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Entry), args.Error(1)
}

func (m *MockEntryService) Create(ctx context.Context, req models.CreateRequest, image *media.File) (*models.Entry, error) {
	args := m.Called(ctx, req, image)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Entry), args.Error(1)
}

func (m *MockEntryService) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func sampleEntry(title string) models.Entry {
	return models.Entry{
		ID:        primitive.NewObjectID(),
		Kind:      models.KindEvent,
		Title:     title,
		Location:  models.ResolvedLocation("Puerta del Sol", models.Coordinate{Lat: 40.4169, Lon: -3.7035}),
		Rank:      models.TimestampRank(time.Date(2026, 6, 1, 21, 0, 0, 0, time.UTC)),
		AuthorID:  "ana@example.com",
		CreatedAt: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestEntryHandler_List(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		origin *models.Coordinate
	}{
		{"no origin", "", nil},
		{"origin", "?lat=40.41&lon=-3.70", &models.Coordinate{Lat: 40.41, Lon: -3.70}},
		{"only lat", "?lat=40.41", nil},
		{"malformed lon", "?lat=40.41&lon=west", nil},
		{"not finite", "?lat=NaN&lon=1", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := new(MockEntryService)
			service.On("Retrieve", mock.Anything, tt.origin).Return([]models.Entry{sampleEntry("Concert")}, nil)
			handler := NewEntryHandler(service)

			req := httptest.NewRequest(http.MethodGet, "/entries"+tt.query, nil)
			w := httptest.NewRecorder()
			handler.List(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
			var got []models.Entry
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
			require.Len(t, got, 1)
			assert.Equal(t, "Concert", got[0].Title)
			service.AssertExpectations(t)
		})
	}
}

func TestEntryHandler_ListEmptyIsArray(t *testing.T) {
	service := new(MockEntryService)
	service.On("Retrieve", mock.Anything, (*models.Coordinate)(nil)).Return(nil, nil)

	w := httptest.NewRecorder()
	NewEntryHandler(service).List(w, httptest.NewRequest(http.MethodGet, "/entries", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}

func TestEntryHandler_ListStoreError(t *testing.T) {
	service := new(MockEntryService)
	service.On("Retrieve", mock.Anything, mock.Anything).Return(nil, errors.New("db down"))

	w := httptest.NewRecorder()
	NewEntryHandler(service).List(w, httptest.NewRequest(http.MethodGet, "/entries", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestEntryHandler_CreateJSON(t *testing.T) {
	service := new(MockEntryService)
	created := sampleEntry("Concert")
	service.On("Create", mock.Anything, mock.MatchedBy(func(r models.CreateRequest) bool {
		return r.Title == "Concert" && r.Rank.Kind == models.RankTimestamp && r.AuthorID == "ana@example.com"
	}), (*media.File)(nil)).Return(&created, nil)

	body := `{"title":"Concert","rank":"2026-06-01T21:00","address":"Puerta del Sol","authorId":"ana@example.com"}`
	req := httptest.NewRequest(http.MethodPost, "/entries", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	NewEntryHandler(service).Create(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	var got models.Entry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, created.ID, got.ID)
	service.AssertExpectations(t)
}

func TestEntryHandler_CreateUsesIdentityEmail(t *testing.T) {
	service := new(MockEntryService)
	created := sampleEntry("Tapas")
	service.On("Create", mock.Anything, mock.MatchedBy(func(r models.CreateRequest) bool {
		return r.AuthorID == "luis@example.com"
	}), (*media.File)(nil)).Return(&created, nil)

	body := `{"title":"Tapas","rank":4.5,"address":"Calle Mayor"}`
	req := httptest.NewRequest(http.MethodPost, "/entries", bytes.NewBufferString(body))
	ctx := context.WithValue(req.Context(), middleware.IdentityContextKey, &models.Identity{Email: "luis@example.com"})
	w := httptest.NewRecorder()
	NewEntryHandler(service).Create(w, req.WithContext(ctx))

	assert.Equal(t, http.StatusCreated, w.Code)
	service.AssertExpectations(t)
}

func TestEntryHandler_CreateMultipart(t *testing.T) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("title", "Tapas"))
	require.NoError(t, mw.WriteField("rank", "4"))
	require.NoError(t, mw.WriteField("address", "Calle Mayor"))
	require.NoError(t, mw.WriteField("authorId", "ana@example.com"))
	part, err := mw.CreateFormFile("image", "plate.jpg")
	require.NoError(t, err)
	_, err = part.Write([]byte("jpeg bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	service := new(MockEntryService)
	created := sampleEntry("Tapas")
	service.On("Create", mock.Anything, mock.MatchedBy(func(r models.CreateRequest) bool {
		return r.Title == "Tapas" && r.Rank == models.RatingRank(4)
	}), mock.MatchedBy(func(f *media.File) bool {
		if f == nil || f.Name != "plate.jpg" {
			return false
		}
		data, err := io.ReadAll(f.Body)
		return err == nil && string(data) == "jpeg bytes"
	})).Return(&created, nil)

	req := httptest.NewRequest(http.MethodPost, "/entries", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	NewEntryHandler(service).Create(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	service.AssertExpectations(t)
}

func TestEntryHandler_CreateErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		serviceErr error
		wantStatus int
		wantField  string
	}{
		{"invalid json", "{bad json", nil, http.StatusBadRequest, ""},
		{"bad rank", `{"title":"x","rank":"tomorrow"}`, nil, http.StatusBadRequest, ""},
		{"validation", `{"title":"x","rank":7}`, &models.ValidationError{Field: "rank", Message: "out of range"}, http.StatusBadRequest, "rank"},
		{"media upstream", `{"title":"x","rank":3}`, &models.UpstreamError{Service: "media", Err: errors.New("timeout")}, http.StatusBadGateway, ""},
		{"store failure", `{"title":"x","rank":3}`, errors.New("write conflict"), http.StatusInternalServerError, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := new(MockEntryService)
			if tt.serviceErr != nil {
				service.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil, tt.serviceErr)
			}

			w := httptest.NewRecorder()
			NewEntryHandler(service).Create(w, httptest.NewRequest(http.MethodPost, "/entries", bytes.NewBufferString(tt.body)))

			assert.Equal(t, tt.wantStatus, w.Code)
			var resp models.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Error)
			assert.Equal(t, tt.wantField, resp.Field)
			if tt.serviceErr == nil {
				service.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
			}
		})
	}
}

func TestEntryHandler_Delete(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"deleted", nil, http.StatusOK},
		{"unknown", models.ErrNotFound, http.StatusNotFound},
		{"malformed", &models.ValidationError{Field: "id", Message: "invalid entry id"}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := new(MockEntryService)
			service.On("Delete", mock.Anything, "abc").Return(tt.err)

			req := httptest.NewRequest(http.MethodDelete, "/entries/abc", nil)
			rctx := chi.NewRouteContext()
			rctx.URLParams.Add("id", "abc")
			req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
			w := httptest.NewRecorder()
			NewEntryHandler(service).Delete(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			service.AssertExpectations(t)
		})
	}
}

func TestParseOrigin(t *testing.T) {
	origin, err := parseOrigin("", "")
	assert.NoError(t, err)
	assert.Nil(t, origin)

	origin, err = parseOrigin(" 1.5", "-2")
	require.NoError(t, err)
	assert.Equal(t, &models.Coordinate{Lat: 1.5, Lon: -2}, origin)

	_, err = parseOrigin("1", "+Inf")
	var pe *models.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "lon", pe.Param)
}
