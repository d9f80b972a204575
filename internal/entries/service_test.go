package entries

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/eventual/internal/db"
	"github.com/ukydev/eventual/internal/media"
	"github.com/ukydev/eventual/internal/models"
	"github.com/ukydev/eventual/internal/notify"
)

type MockResolver struct {
	mock.Mock
}

func (m *MockResolver) Resolve(ctx context.Context, address string) (*models.Coordinate, error) {
	args := m.Called(ctx, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Coordinate), args.Error(1)
}

type MockUploader struct {
	mock.Mock
}

func (m *MockUploader) Upload(ctx context.Context, f media.File) (string, error) {
	args := m.Called(ctx, f)
	return args.String(0), args.Error(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, ev notify.Event) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

func (m *MockPublisher) Close() {}

type failingStore struct {
	db.EntryCollection
}

func (failingStore) FindEntries(ctx context.Context) ([]models.Entry, error) {
	return nil, errors.New("connection reset")
}

func concertRequest() models.CreateRequest {
	return models.CreateRequest{
		Title:    "Concert",
		Rank:     models.TimestampRank(time.Date(2026, 6, 1, 21, 0, 0, 0, time.UTC)),
		Address:  "Puerta del Sol, Madrid",
		AuthorID: "ana@example.com",
	}
}

var sol = &models.Coordinate{Lat: 40.4169, Lon: -3.7035}

func TestService_CreateThenRetrieve(t *testing.T) {
	geocoder := new(MockResolver)
	geocoder.On("Resolve", mock.Anything, "Puerta del Sol, Madrid").Return(sol, nil)
	publisher := new(MockPublisher)
	publisher.On("Publish", mock.Anything, mock.MatchedBy(func(ev notify.Event) bool {
		return ev.Type == notify.EventCreated && ev.Entry != nil
	})).Return(nil).Once()

	svc := NewService(db.NewMemoryEntryCollection(), geocoder, WithPublisher(publisher))

	entry, err := svc.Create(context.Background(), concertRequest(), nil)
	require.NoError(t, err)
	assert.True(t, entry.Location.Resolved)
	assert.Equal(t, sol, entry.Location.Coordinate)
	assert.Equal(t, models.KindEvent, entry.Kind)

	got, err := svc.Retrieve(context.Background(), &models.Coordinate{Lat: 40.416775, Lon: -3.703790})
	require.NoError(t, err)
	count := 0
	for _, e := range got {
		if e.ID == entry.ID {
			count++
		}
	}
	assert.Equal(t, 1, count)

	geocoder.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestService_RetrieveWithoutOriginReturnsEverything(t *testing.T) {
	geocoder := new(MockResolver)
	geocoder.On("Resolve", mock.Anything, "Madrid").Return(&models.Coordinate{Lat: 40.4, Lon: -3.7}, nil)
	geocoder.On("Resolve", mock.Anything, "Paris").Return(&models.Coordinate{Lat: 48.85, Lon: 2.35}, nil)
	svc := NewService(db.NewMemoryEntryCollection(), geocoder)

	for _, addr := range []string{"Madrid", "Paris"} {
		req := concertRequest()
		req.Title = addr
		req.Address = addr
		_, err := svc.Create(context.Background(), req, nil)
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}

	all, err := svc.Retrieve(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Paris", all[0].Title)
	assert.Equal(t, "Madrid", all[1].Title)

	near, err := svc.Retrieve(context.Background(), &models.Coordinate{Lat: 40.41, Lon: -3.70})
	require.NoError(t, err)
	require.Len(t, near, 1)
	assert.Equal(t, "Madrid", near[0].Title)
}

func TestService_CreateUsesSentinelWhenAddressNotFound(t *testing.T) {
	geocoder := new(MockResolver)
	geocoder.On("Resolve", mock.Anything, "Puerta del Sol, Madrid").Return(nil, nil)
	svc := NewService(db.NewMemoryEntryCollection(), geocoder)

	entry, err := svc.Create(context.Background(), concertRequest(), nil)
	require.NoError(t, err)
	require.NotNil(t, entry.Location.Coordinate)
	assert.Equal(t, models.SentinelCoordinate, *entry.Location.Coordinate)
	assert.False(t, entry.Location.Resolved)

	// the sentinel makes the entry show up around (0,0)
	near, err := svc.Retrieve(context.Background(), &models.Coordinate{Lat: 0.1, Lon: 0})
	require.NoError(t, err)
	assert.Len(t, near, 1)
}

func TestService_CreateUsesSentinelWhenGeocoderUnreachable(t *testing.T) {
	geocoder := new(MockResolver)
	geocoder.On("Resolve", mock.Anything, mock.Anything).Return(nil, &models.UpstreamError{Service: "geocoder", Err: errors.New("dial tcp: timeout")})
	svc := NewService(db.NewMemoryEntryCollection(), geocoder)

	entry, err := svc.Create(context.Background(), concertRequest(), nil)
	require.NoError(t, err)
	assert.Equal(t, models.SentinelCoordinate, *entry.Location.Coordinate)
	assert.False(t, entry.Location.Resolved)
}

func TestService_CreateValidation(t *testing.T) {
	geocoder := new(MockResolver)
	svc := NewService(db.NewMemoryEntryCollection(), geocoder)

	tests := []struct {
		name   string
		mutate func(*models.CreateRequest)
		field  string
	}{
		{"missing title", func(r *models.CreateRequest) { r.Title = "  " }, "title"},
		{"missing address", func(r *models.CreateRequest) { r.Address = "" }, "address"},
		{"missing author", func(r *models.CreateRequest) { r.AuthorID = "" }, "authorId"},
		{"missing rank", func(r *models.CreateRequest) { r.Rank = models.Rank{} }, "rank"},
		{"rating out of range", func(r *models.CreateRequest) { r.Rank = models.RatingRank(-1) }, "rank"},
		{"kind does not match rank", func(r *models.CreateRequest) { r.Kind = models.KindReview }, "kind"},
		{"bad media url", func(r *models.CreateRequest) { r.MediaURL = "not a url" }, "mediaUrl"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := concertRequest()
			tt.mutate(&req)
			_, err := svc.Create(context.Background(), req, nil)
			var ve *models.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
	geocoder.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything)
}

func TestService_CreateWithImage(t *testing.T) {
	geocoder := new(MockResolver)
	geocoder.On("Resolve", mock.Anything, mock.Anything).Return(sol, nil)
	uploader := new(MockUploader)
	uploader.On("Upload", mock.Anything, mock.MatchedBy(func(f media.File) bool { return f.Name == "poster.jpg" })).
		Return("https://cdn.example.com/media/poster.jpg", nil)
	svc := NewService(db.NewMemoryEntryCollection(), geocoder, WithUploader(uploader))

	entry, err := svc.Create(context.Background(), concertRequest(), &media.File{Name: "poster.jpg", Body: strings.NewReader("x")})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/media/poster.jpg", entry.MediaURL)
	uploader.AssertExpectations(t)
}

func TestService_CreateAbortsWhenUploadFails(t *testing.T) {
	geocoder := new(MockResolver)
	store := db.NewMemoryEntryCollection()
	svc := NewService(store, geocoder)

	_, err := svc.Create(context.Background(), concertRequest(), &media.File{Name: "poster.jpg", Body: strings.NewReader("x")})
	assert.True(t, models.IsUpstream(err))

	all, err := store.FindEntries(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
	geocoder.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything)
}

func TestService_CreateIgnoresPublishFailure(t *testing.T) {
	geocoder := new(MockResolver)
	geocoder.On("Resolve", mock.Anything, mock.Anything).Return(sol, nil)
	publisher := new(MockPublisher)
	publisher.On("Publish", mock.Anything, mock.Anything).Return(errors.New("broker down"))
	svc := NewService(db.NewMemoryEntryCollection(), geocoder, WithPublisher(publisher))

	_, err := svc.Create(context.Background(), concertRequest(), nil)
	assert.NoError(t, err)
}

type stalledPublisher struct{}

func (stalledPublisher) Publish(ctx context.Context, ev notify.Event) error {
	<-ctx.Done()
	return ctx.Err()
}

func (stalledPublisher) Close() {}

func TestService_CreateDoesNotWaitOnStalledPublisher(t *testing.T) {
	geocoder := new(MockResolver)
	geocoder.On("Resolve", mock.Anything, mock.Anything).Return(sol, nil)
	store := db.NewMemoryEntryCollection()
	svc := NewService(store, geocoder, WithPublisher(stalledPublisher{}), WithPublishTimeout(20*time.Millisecond))

	done := make(chan error, 1)
	go func() {
		_, err := svc.Create(context.Background(), concertRequest(), nil)
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Create blocked on the publisher")
	}
	all, err := svc.Retrieve(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestService_Delete(t *testing.T) {
	geocoder := new(MockResolver)
	geocoder.On("Resolve", mock.Anything, mock.Anything).Return(sol, nil)
	publisher := new(MockPublisher)
	publisher.On("Publish", mock.Anything, mock.Anything).Return(nil)
	svc := NewService(db.NewMemoryEntryCollection(), geocoder, WithPublisher(publisher))

	entry, err := svc.Create(context.Background(), concertRequest(), nil)
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Delete(context.Background(), "507f1f77bcf86cd799439011"), models.ErrNotFound)
	require.NoError(t, svc.Delete(context.Background(), entry.ID.Hex()))

	for _, origin := range []*models.Coordinate{nil, sol} {
		got, err := svc.Retrieve(context.Background(), origin)
		require.NoError(t, err)
		assert.Empty(t, got)
	}
	publisher.AssertCalled(t, "Publish", mock.Anything, mock.MatchedBy(func(ev notify.Event) bool {
		return ev.Type == notify.EventDeleted && ev.EntryID == entry.ID.Hex()
	}))
}

func TestService_RetrieveStoreError(t *testing.T) {
	svc := NewService(failingStore{}, new(MockResolver))
	_, err := svc.Retrieve(context.Background(), nil)
	assert.Error(t, err)
}

func TestService_WithRadius(t *testing.T) {
	svc := NewService(db.NewMemoryEntryCollection(), new(MockResolver), WithRadius(1.5))
	assert.Equal(t, 1.5, svc.Radius())

	svc = NewService(db.NewMemoryEntryCollection(), new(MockResolver), WithRadius(-1))
	assert.Equal(t, 0.2, svc.Radius())
}
