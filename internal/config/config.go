package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Defaults for the upload and retention limits.
const (
	DefaultMaxFileSize   = 50 << 20 // 50 MiB
	DefaultMaxFileCount  = 4
	DefaultExpiryWindow  = 24 * time.Hour
	DefaultSweepInterval = time.Hour
)

// Config holds the environment-driven settings. All keys use the DROPLINK_
// prefix; missing keys fall back to defaults.
type Config struct {
	Addr    string // DROPLINK_ADDR
	BaseURL string // DROPLINK_BASE_URL, used to build absolute download links

	MaxFileSize   int64         // DROPLINK_MAX_FILE_SIZE_MB
	MaxFileCount  int           // DROPLINK_MAX_FILE_COUNT
	ExpiryWindow  time.Duration // DROPLINK_EXPIRY_HOURS
	SweepInterval time.Duration // DROPLINK_SWEEP_INTERVAL_MINUTES
	PruneGroups   bool          // DROPLINK_PRUNE_GROUPS

	StorageDir   string // DROPLINK_STORAGE_DIR
	StoreBackend string // DROPLINK_STORE: "json" (default) or "sqlite"
	StorePath    string // DROPLINK_STORE_PATH

	CORSOrigins []string // DROPLINK_CORS_ORIGINS, comma-separated

	// S3-compatible blob storage, used instead of the local directory when
	// S3Bucket is set.
	S3Endpoint  string // DROPLINK_S3_ENDPOINT
	S3AccessKey string // DROPLINK_S3_ACCESS_KEY
	S3SecretKey string // DROPLINK_S3_SECRET_KEY
	S3Bucket    string // DROPLINK_S3_BUCKET
	S3Prefix    string // DROPLINK_S3_PREFIX
}

// FromEnv builds a Config from the environment.
func FromEnv() Config {
	cfg := Config{
		Addr:          envString("DROPLINK_ADDR", ":8080"),
		BaseURL:       envString("DROPLINK_BASE_URL", "http://localhost:8080"),
		MaxFileSize:   int64(envInt("DROPLINK_MAX_FILE_SIZE_MB", 0)) << 20,
		MaxFileCount:  envInt("DROPLINK_MAX_FILE_COUNT", DefaultMaxFileCount),
		ExpiryWindow:  time.Duration(envInt("DROPLINK_EXPIRY_HOURS", 0)) * time.Hour,
		SweepInterval: time.Duration(envInt("DROPLINK_SWEEP_INTERVAL_MINUTES", 0)) * time.Minute,
		PruneGroups:   envBool("DROPLINK_PRUNE_GROUPS"),
		StorageDir:    envString("DROPLINK_STORAGE_DIR", "./uploads"),
		StoreBackend:  envString("DROPLINK_STORE", "json"),
		StorePath:     os.Getenv("DROPLINK_STORE_PATH"),
		S3Endpoint:    os.Getenv("DROPLINK_S3_ENDPOINT"),
		S3AccessKey:   os.Getenv("DROPLINK_S3_ACCESS_KEY"),
		S3SecretKey:   os.Getenv("DROPLINK_S3_SECRET_KEY"),
		S3Bucket:      os.Getenv("DROPLINK_S3_BUCKET"),
		S3Prefix:      os.Getenv("DROPLINK_S3_PREFIX"),
	}

	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}
	if cfg.MaxFileCount <= 0 {
		cfg.MaxFileCount = DefaultMaxFileCount
	}
	if cfg.ExpiryWindow <= 0 {
		cfg.ExpiryWindow = DefaultExpiryWindow
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if cfg.StorePath == "" {
		if cfg.StoreBackend == "sqlite" {
			cfg.StorePath = "droplink.db"
		} else {
			cfg.StorePath = "groups.json"
		}
	}

	if raw := os.Getenv("DROPLINK_CORS_ORIGINS"); raw != "" {
		for _, origin := range strings.Split(raw, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, origin)
			}
		}
	}

	return cfg
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "true" || v == "1" || v == "yes"
}
