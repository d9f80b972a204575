// Package config reads runtime settings from the environment. A .env file in
// the working directory is loaded first when present; real environment
// variables take precedence over it.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// Config holds every setting of the server and the explorer client.
type Config struct {
	Port string

	StoreBackend string // "mongo" or "memory"
	MongoURI     string
	MongoDB      string

	RedisURL         string
	GeocodeCacheTTL  time.Duration
	GeocodeMissTTL   time.Duration
	GeocoderURL      string
	GeocoderLanguage string
	GeocoderAgent    string
	GeocoderTimeout  time.Duration

	S3Endpoint      string
	S3Region        string
	S3Bucket        string
	S3AccessKey     string
	S3SecretKey     string
	S3PublicBaseURL string

	MQTTBroker      string
	MQTTClientID    string
	MQTTTopicPrefix string

	JWTSecret    string
	RequireAuth  bool
	SearchRadius float64

	RateLimitRequests int
	RateLimitWindow   int
	WriteRateLimit    int
	WriteRateWindow   time.Duration
	CORSOrigins       []string

	LogLevel  string
	LogFormat string

	APIBaseURL    string
	APIToken      string
	DefaultCenter [2]float64
}

// Load reads the configuration. Unparseable values fall back to defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Failed to load .env file")
	}

	return Config{
		Port: getString("PORT", "8080"),

		StoreBackend: getString("STORE_BACKEND", "mongo"),
		MongoURI:     getString("MONGO_URI", ""),
		MongoDB:      getString("MONGO_DB", "eventual"),

		RedisURL:         getString("REDIS_URL", ""),
		GeocodeCacheTTL:  getDuration("GEOCODE_CACHE_TTL", 24*time.Hour),
		GeocodeMissTTL:   getDuration("GEOCODE_MISS_TTL", 10*time.Minute),
		GeocoderURL:      getString("GEOCODER_URL", "https://nominatim.openstreetmap.org/search"),
		GeocoderLanguage: getString("GEOCODER_LANGUAGE", "es-ES"),
		GeocoderAgent:    getString("GEOCODER_USER_AGENT", "eventual/1.0"),
		GeocoderTimeout:  getDuration("GEOCODER_TIMEOUT", 10*time.Second),

		S3Endpoint:      getString("S3_ENDPOINT", ""),
		S3Region:        getString("S3_REGION", "us-east-1"),
		S3Bucket:        getString("S3_BUCKET", ""),
		S3AccessKey:     getString("S3_ACCESS_KEY", ""),
		S3SecretKey:     getString("S3_SECRET_KEY", ""),
		S3PublicBaseURL: getString("S3_PUBLIC_BASE_URL", ""),

		MQTTBroker:      getString("MQTT_BROKER", ""),
		MQTTClientID:    getString("MQTT_CLIENT_ID", "eventual-api"),
		MQTTTopicPrefix: getString("MQTT_TOPIC_PREFIX", "eventual"),

		JWTSecret:    getString("JWT_SECRET", ""),
		RequireAuth:  getBool("REQUIRE_AUTH", true),
		SearchRadius: getFloat("SEARCH_RADIUS", 0.2),

		RateLimitRequests: getInt("RATE_LIMIT_REQUESTS", 120),
		RateLimitWindow:   getInt("RATE_LIMIT_WINDOW_SECONDS", 60),
		WriteRateLimit:    getInt("WRITE_RATE_LIMIT_REQUESTS", 30),
		WriteRateWindow:   getDuration("WRITE_RATE_LIMIT_WINDOW", time.Minute),
		CORSOrigins:       getList("CORS_ALLOWED_ORIGINS"),

		LogLevel:  getString("LOG_LEVEL", "info"),
		LogFormat: getString("LOG_FORMAT", "text"),

		APIBaseURL: getString("API_BASE_URL", "http://localhost:8080"),
		APIToken:   getString("API_TOKEN", ""),
		DefaultCenter: [2]float64{
			getFloat("DEFAULT_CENTER_LAT", 40.416775),
			getFloat("DEFAULT_CENTER_LON", -3.703790),
		},
	}
}

// ConfigureLogging applies the log level and format to the standard logrus logger.
func (c Config) ConfigureLogging() {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	if c.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}

func getString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// getList splits a comma separated value, dropping blanks.
func getList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return def
}
