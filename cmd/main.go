package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/eventual/internal/auth"
	"github.com/ukydev/eventual/internal/config"
	"github.com/ukydev/eventual/internal/db"
	"github.com/ukydev/eventual/internal/entries"
	"github.com/ukydev/eventual/internal/geocode"
	"github.com/ukydev/eventual/internal/handlers"
	"github.com/ukydev/eventual/internal/media"
	"github.com/ukydev/eventual/internal/notify"
)

// store is the selected backend plus its readiness probe and cleanup.
type store struct {
	entries db.EntryCollection
	ready   func() error
	close   func()
}

func newStore(cfg config.Config) (*store, error) {
	if cfg.StoreBackend == "memory" {
		log.Warn("Using in-memory store, entries are lost on restart")
		return &store{entries: db.NewMemoryEntryCollection(), close: func() {}}, nil
	}

	client, err := db.ConnectMongo(cfg.MongoURI)
	if err != nil {
		return nil, err
	}
	collection := db.NewMongoEntryCollection(client, cfg.MongoDB)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := collection.EnsureIndexes(ctx); err != nil {
		log.WithError(err).Warn("Failed to create entry indexes")
	}
	log.WithField("database", cfg.MongoDB).Info("Connected to MongoDB")

	return &store{
		entries: collection,
		ready: func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return client.Ping(ctx, nil)
		},
		close: func() {
			if err := client.Disconnect(context.Background()); err != nil {
				log.WithError(err).Warn("Failed to disconnect from MongoDB")
			}
		},
	}, nil
}

// newGeocoder returns the Nominatim resolver, behind a Redis cache when
// REDIS_URL is set and reachable.
func newGeocoder(cfg config.Config) geocode.Resolver {
	var resolver geocode.Resolver = geocode.NewNominatimResolver(cfg.GeocoderURL, cfg.GeocoderLanguage, cfg.GeocoderAgent, cfg.GeocoderTimeout)
	if cfg.RedisURL == "" {
		return resolver
	}
	rdb, err := db.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.WithError(err).Warn("Geocode cache disabled")
		return resolver
	}
	log.WithField("ttl", cfg.GeocodeCacheTTL).Info("Geocode cache enabled")
	return geocode.NewCachedResolver(resolver, rdb, cfg.GeocodeCacheTTL, cfg.GeocodeMissTTL)
}

func newUploader(cfg config.Config) media.Uploader {
	if cfg.S3Bucket == "" {
		log.Info("S3_BUCKET not set, image uploads are disabled")
		return media.DisabledUploader{}
	}
	return media.NewS3Uploader(media.S3Config{
		Endpoint:      cfg.S3Endpoint,
		Region:        cfg.S3Region,
		Bucket:        cfg.S3Bucket,
		AccessKey:     cfg.S3AccessKey,
		SecretKey:     cfg.S3SecretKey,
		PublicBaseURL: cfg.S3PublicBaseURL,
	})
}

func newPublisher(cfg config.Config) notify.Publisher {
	if cfg.MQTTBroker == "" {
		return notify.NoopPublisher{}
	}
	publisher, err := notify.NewMQTTPublisher(cfg.MQTTBroker, cfg.MQTTClientID, cfg.MQTTTopicPrefix)
	if err != nil {
		log.WithError(err).Warn("Entry notifications disabled")
		return notify.NoopPublisher{}
	}
	log.WithField("broker", cfg.MQTTBroker).Info("Publishing entry events over MQTT")
	return publisher
}

func newHandler(cfg config.Config, s *store, geocoder geocode.Resolver, uploader media.Uploader, publisher notify.Publisher) http.Handler {
	authService := auth.NewService(cfg.JWTSecret)
	if !authService.Verifies() {
		log.Warn("JWT_SECRET not set, identity assertions are decoded without signature checks")
	}

	service := entries.NewService(s.entries, geocoder,
		entries.WithRadius(cfg.SearchRadius),
		entries.WithUploader(uploader),
		entries.WithPublisher(publisher),
	)
	return handlers.NewRouter(handlers.NewEntryHandler(service), handlers.RouterConfig{
		AuthService:       authService,
		RequireAuth:       cfg.RequireAuth,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
		WriteRateLimit:    cfg.WriteRateLimit,
		WriteRateWindow:   cfg.WriteRateWindow,
		AllowedOrigins:    cfg.CORSOrigins,
		Ready:             s.ready,
	})
}

func main() {
	cfg := config.Load()
	cfg.ConfigureLogging()

	s, err := newStore(cfg)
	if err != nil {
		log.WithError(err).Fatal("Failed to open entry store")
	}
	defer s.close()

	publisher := newPublisher(cfg)
	defer publisher.Close()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newHandler(cfg, s, newGeocoder(cfg), newUploader(cfg), publisher),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithFields(log.Fields{
			"port":   cfg.Port,
			"store":  cfg.StoreBackend,
			"radius": cfg.SearchRadius,
		}).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("HTTP server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Graceful shutdown failed")
	}
}
