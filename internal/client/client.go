// Package client talks to the entries API over HTTP.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/eventual/internal/media"
	"github.com/ukydev/eventual/internal/models"
)

// DefaultTimeout bounds a single API call.
const DefaultTimeout = 10 * time.Second

// Client calls the entries API. It satisfies mapsync.Retriever and
// mapsync.Creator.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a client for the API at baseURL. token, when set, is sent as a
// bearer identity assertion.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
}

// Retrieve lists entries, filtered around origin when it is non-nil.
func (c *Client) Retrieve(ctx context.Context, origin *models.Coordinate) ([]models.Entry, error) {
	endpoint := c.baseURL + "/entries"
	if origin != nil {
		q := url.Values{}
		q.Set("lat", strconv.FormatFloat(origin.Lat, 'f', -1, 64))
		q.Set("lon", strconv.FormatFloat(origin.Lon, 'f', -1, 64))
		endpoint += "?" + q.Encode()
	}

	resp, err := c.do(ctx, http.MethodGet, endpoint, "", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}
	var entries []models.Entry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("failed to decode entries: %w", err)
	}
	return entries, nil
}

// Create publishes req as JSON.
func (c *Client) Create(ctx context.Context, req models.CreateRequest) (*models.Entry, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal entry: %w", err)
	}
	return c.create(ctx, "application/json", bytes.NewReader(data))
}

// CreateWithImage publishes req as a multipart form with image attached.
func (c *Client) CreateWithImage(ctx context.Context, req models.CreateRequest, image media.File) (*models.Entry, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fields := map[string]string{
		"title":    req.Title,
		"kind":     string(req.Kind),
		"rank":     formRank(req.Rank),
		"address":  req.Address,
		"authorId": req.AuthorID,
	}
	for name, value := range fields {
		if value == "" {
			continue
		}
		if err := mw.WriteField(name, value); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", name, err)
		}
	}
	part, err := mw.CreateFormFile("image", image.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to create image part: %w", err)
	}
	if _, err := io.Copy(part, image.Body); err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return c.create(ctx, mw.FormDataContentType(), &buf)
}

// Delete removes the entry with the given id.
func (c *Client) Delete(ctx context.Context, id string) error {
	resp, err := c.do(ctx, http.MethodDelete, c.baseURL+"/entries/"+url.PathEscape(id), "", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	log.WithField("entry_id", id).Info("Deleted entry")
	return nil
}

func (c *Client) create(ctx context.Context, contentType string, body io.Reader) (*models.Entry, error) {
	resp, err := c.do(ctx, http.MethodPost, c.baseURL+"/entries", contentType, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, decodeError(resp)
	}
	var entry models.Entry
	if err := json.NewDecoder(resp.Body).Decode(&entry); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	log.WithFields(log.Fields{
		"entry_id": entry.ID.Hex(),
		"title":    entry.Title,
		"resolved": entry.Location.Resolved,
	}).Info("Created entry")
	return &entry, nil
}

func (c *Client) do(ctx context.Context, method, endpoint, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &models.UpstreamError{Service: "api", Err: err}
	}
	return resp, nil
}

// decodeError maps an API error response back onto the model errors.
func decodeError(resp *http.Response) error {
	var body models.ErrorResponse
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(data, &body); err != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(data))
	}

	switch {
	case resp.StatusCode == http.StatusBadRequest:
		return &models.ValidationError{Field: body.Field, Message: body.Error}
	case resp.StatusCode == http.StatusNotFound:
		return models.ErrNotFound
	case resp.StatusCode >= http.StatusInternalServerError:
		return &models.UpstreamError{Service: "api", Err: fmt.Errorf("status %d: %s", resp.StatusCode, body.Error)}
	default:
		return fmt.Errorf("api returned status %d: %s", resp.StatusCode, body.Error)
	}
}

func formRank(r models.Rank) string {
	switch r.Kind {
	case models.RankTimestamp:
		return r.At.Format(time.RFC3339)
	case models.RankRating:
		return strconv.FormatFloat(r.Score, 'f', -1, 64)
	default:
		return ""
	}
}
