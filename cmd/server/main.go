package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"droplink/internal/api"
	"droplink/internal/config"
	"droplink/internal/logging"
	"droplink/internal/share"
	"droplink/internal/store"
)

func printStats(storage share.Storage, st store.Store) {
	ctx := context.Background()

	objects, err := storage.List(ctx)
	if err != nil {
		logging.Internal.Fatalf("failed to list blobs: %v", err)
	}
	groupIDs, err := st.GroupIDs(ctx)
	if err != nil {
		logging.Internal.Fatalf("failed to list groups: %v", err)
	}

	var totalBytes int64
	var oldest, newest time.Time
	for _, obj := range objects {
		totalBytes += obj.Size
		if oldest.IsZero() || obj.ModTime.Before(oldest) {
			oldest = obj.ModTime
		}
		if obj.ModTime.After(newest) {
			newest = obj.ModTime
		}
	}

	fmt.Println("╔══════════════════════════════════════════╗")
	fmt.Println("║           DropLink Statistics            ║")
	fmt.Println("╠══════════════════════════════════════════╣")
	fmt.Printf("║  Blobs:           %-22d║\n", len(objects))
	fmt.Printf("║  Groups:          %-22d║\n", len(groupIDs))
	fmt.Printf("║  Total Storage:   %-22s║\n", humanize.IBytes(uint64(totalBytes)))
	if !oldest.IsZero() {
		fmt.Printf("║  Oldest Blob:     %-22s║\n", oldest.Format("2006-01-02 15:04"))
		fmt.Printf("║  Newest Blob:     %-22s║\n", newest.Format("2006-01-02 15:04"))
	} else {
		fmt.Println("║  No blobs in storage                     ║")
	}
	fmt.Println("╚══════════════════════════════════════════╝")
}

func main() {
	cfg := config.FromEnv()

	addr := flag.String("addr", cfg.Addr, "HTTP listen address")
	storagePath := flag.String("storage", cfg.StorageDir, "Blob storage directory")
	storePath := flag.String("store", cfg.StorePath, "Retention store path (JSON document or SQLite file)")
	showStats := flag.Bool("stats", false, "Show storage statistics and exit")
	devMode := flag.Bool("dev", false, "Development mode: disables CORS restrictions and rate limiting")
	flag.Parse()

	// Initialize retention store
	var st store.Store
	var err error
	switch cfg.StoreBackend {
	case "sqlite":
		st, err = store.NewSQLiteStore(*storePath)
	case "json", "":
		st, err = store.NewJSONStore(*storePath)
	default:
		logging.Internal.Fatalf("unknown store backend %q (want json or sqlite)", cfg.StoreBackend)
	}
	if err != nil {
		logging.Internal.Fatalf("failed to open retention store: %v", err)
	}
	defer st.Close()

	// Initialize blob storage - use S3 if configured, otherwise local filesystem
	var storage share.Storage
	if cfg.S3Bucket != "" {
		s3Storage, err := share.NewS3Storage(context.Background(), share.S3Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			Prefix:    cfg.S3Prefix,
		})
		if err != nil {
			logging.Internal.Fatalf("failed to initialize S3 storage: %v", err)
		}
		storage = s3Storage
		logging.Internal.Printf("using S3 storage (bucket: %s)", cfg.S3Bucket)
	} else {
		fsStorage, err := share.NewFSStorage(*storagePath)
		if err != nil {
			logging.Internal.Fatalf("failed to initialize storage: %v", err)
		}
		storage = fsStorage
		logging.Internal.Printf("using local filesystem storage (%s)", *storagePath)
	}

	if *showStats {
		printStats(storage, st)
		return
	}

	svc := share.NewService(storage, st, share.Limits{
		MaxFiles:    cfg.MaxFileCount,
		MaxFileSize: cfg.MaxFileSize,
	})
	logging.Internal.Printf("limits: %d files per upload, %s per file",
		cfg.MaxFileCount, humanize.IBytes(uint64(cfg.MaxFileSize)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start expiry sweeper
	sweeper := &share.Sweeper{
		Storage:     storage,
		MaxAge:      cfg.ExpiryWindow,
		Interval:    cfg.SweepInterval,
		Store:       st,
		PruneGroups: cfg.PruneGroups,
	}
	go sweeper.Run(ctx)

	// Setup HTTP handler
	handler := api.NewHandler(svc, cfg.BaseURL)

	mux := http.NewServeMux()
	mux.Handle("/api/", handler)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintln(w, `{"status":"ok"}`)
	})

	// Configure CORS
	var corsConfig api.CORSConfig
	if *devMode {
		logging.Internal.Println("development mode: CORS allowing all origins")
	} else if len(cfg.CORSOrigins) > 0 {
		corsConfig.AllowedOrigins = cfg.CORSOrigins
		logging.Internal.Printf("CORS restricted to origins: %v", cfg.CORSOrigins)
	}

	// Apply middleware (order: Logger -> RequestID -> RateLimit -> CORS -> handler)
	var finalHandler http.Handler = mux
	finalHandler = api.CORS(corsConfig)(finalHandler)
	if !*devMode {
		finalHandler = api.RateLimit(api.DefaultRateLimitConfig())(finalHandler)
		logging.Internal.Println("rate limiting enabled")
	}
	finalHandler = api.RequestID(finalHandler)
	finalHandler = api.Logger(finalHandler)

	server := &http.Server{
		Addr:    *addr,
		Handler: finalHandler,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		logging.Internal.Println("shutting down...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logging.Internal.Printf("shutdown error: %v", err)
		}
	}()

	logging.Internal.Printf("starting server on %s (base URL %s)", *addr, cfg.BaseURL)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logging.Internal.Fatalf("server error: %v", err)
	}
}
