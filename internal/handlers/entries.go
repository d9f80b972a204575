package handlers

import (
	"context"
	"errors"
	"io"
	"math"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/eventual/internal/media"
	"github.com/ukydev/eventual/internal/middleware"
	"github.com/ukydev/eventual/internal/models"
)

// EntryService is what the entry handler needs from the orchestrator.
type EntryService interface {
	Retrieve(ctx context.Context, origin *models.Coordinate) ([]models.Entry, error)
	Create(ctx context.Context, req models.CreateRequest, image *media.File) (*models.Entry, error)
	Delete(ctx context.Context, id string) error
}

// EntryHandler serves the entries resource.
type EntryHandler struct {
	service EntryService
}

// NewEntryHandler creates a new entry handler
func NewEntryHandler(service EntryService) *EntryHandler {
	return &EntryHandler{service: service}
}

// List returns entries newest first, filtered around lat/lon when both are given.
func (h *EntryHandler) List(w http.ResponseWriter, r *http.Request) {
	origin, err := parseOrigin(r.URL.Query().Get("lat"), r.URL.Query().Get("lon"))
	if err != nil {
		middleware.Logger(r.Context()).WithError(err).Debug("Ignoring malformed origin")
	}

	entries, err := h.service.Retrieve(r.Context(), origin)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if entries == nil {
		entries = []models.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// Create publishes a new entry from a JSON or multipart body.
func (h *EntryHandler) Create(w http.ResponseWriter, r *http.Request) {
	req, image, err := decodeCreate(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if image != nil {
		if c, ok := image.Body.(io.Closer); ok {
			defer c.Close()
		}
	}

	if strings.TrimSpace(req.AuthorID) == "" {
		if id, ok := middleware.GetIdentityFromContext(r.Context()); ok {
			req.AuthorID = id.Email
		}
	}

	entry, err := h.service.Create(r.Context(), req, image)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// Delete removes the entry named in the path.
func (h *EntryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.MessageResponse{Message: "Entry deleted"})
}

func (h *EntryHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var ve *models.ValidationError
	var ue *models.UpstreamError
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, ve.Message, ve.Field)
	case errors.Is(err, models.ErrNotFound):
		writeError(w, http.StatusNotFound, "Entry not found", "")
	case errors.As(err, &ue):
		middleware.Logger(r.Context()).WithError(err).WithField("service", ue.Service).Error("Upstream failure")
		writeError(w, http.StatusBadGateway, ue.Service+" unavailable", "")
	default:
		middleware.Logger(r.Context()).WithError(err).Error("Request failed")
		writeError(w, http.StatusInternalServerError, "Internal server error", "")
	}
}

// parseOrigin returns nil unless both values are finite numbers. A
// *models.ParseError reports which one was rejected.
func parseOrigin(lat, lon string) (*models.Coordinate, error) {
	if lat == "" && lon == "" {
		return nil, nil
	}
	la, err := parseFinite("lat", lat)
	if err != nil {
		return nil, err
	}
	lo, err := parseFinite("lon", lon)
	if err != nil {
		return nil, err
	}
	return &models.Coordinate{Lat: la, Lon: lo}, nil
}

func parseFinite(param, value string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, &models.ParseError{Param: param, Value: value}
	}
	return f, nil
}

// decodeCreate reads a create request. Every failure is a
// *models.ValidationError.
func decodeCreate(w http.ResponseWriter, r *http.Request) (models.CreateRequest, *media.File, error) {
	var req models.CreateRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			return req, nil, &models.ValidationError{Message: "failed to read request body"}
		}
		if err := json.Unmarshal(body, &req); err != nil {
			return req, nil, &models.ValidationError{Message: "invalid JSON: " + err.Error()}
		}
		return req, nil, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, media.MaxUploadSize+1<<20)
	if err := r.ParseMultipartForm(media.MaxUploadSize); err != nil {
		return req, nil, &models.ValidationError{Message: "invalid multipart body"}
	}
	rank, err := models.ParseRank(r.FormValue("rank"))
	if err != nil {
		return req, nil, &models.ValidationError{Field: "rank", Message: err.Error()}
	}
	req = models.CreateRequest{
		Title:    r.FormValue("title"),
		Kind:     models.EntryKind(r.FormValue("kind")),
		Rank:     rank,
		Address:  r.FormValue("address"),
		AuthorID: r.FormValue("authorId"),
		MediaURL: r.FormValue("mediaUrl"),
	}

	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return req, nil, nil
	}
	if err != nil {
		return req, nil, &models.ValidationError{Field: "image", Message: "invalid image part"}
	}
	return req, &media.File{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Body:        file,
	}, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message, field string) {
	writeJSON(w, status, models.ErrorResponse{Error: message, Field: field})
}
