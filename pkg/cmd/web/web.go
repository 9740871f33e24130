package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	iofs "io/fs"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/igolaizola/photobooth/pkg/filestore"
	"github.com/igolaizola/photobooth/pkg/image"
	"github.com/igolaizola/photobooth/pkg/storage"
	"github.com/pkg/browser"
)

type Config struct {
	Debug  bool
	DBType string
	DBConn string
	FSType string
	FSConn string
	Proxy  string

	Addr        string
	Credentials map[string]string
	Open        bool

	Overlays    string
	Prefix      string
	Resampler   string
	MaxWidth    int
	MaxHeight   int
	MaxSize     int
	MaxPixels   int
	Concurrency int
	Timeout     time.Duration
	RateLimit   float64
	RateBurst   int
}

//go:embed static/*
var staticContent embed.FS

// Serve starts the photobooth service.
func Serve(ctx context.Context, cfg *Config) error {
	log.Println("web: server started")
	defer log.Println("web: server ended")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	overlays, err := image.LoadDir(cfg.Overlays)
	if err != nil {
		return fmt.Errorf("web: couldn't load overlays: %w", err)
	}
	if overlays.Len() == 0 {
		return fmt.Errorf("web: no overlays found in %s", cfg.Overlays)
	}
	log.Printf("web: loaded %d overlays from %s\n", overlays.Len(), cfg.Overlays)
	resample, err := image.ParseResampler(cfg.Resampler)
	if err != nil {
		return fmt.Errorf("web: %w", err)
	}
	if _, err := image.NewFilename(cfg.Prefix); err != nil {
		return fmt.Errorf("web: %w", err)
	}
	pipeline := image.New(overlays, image.WithPrefix(cfg.Prefix), image.WithResampler(resample))

	store, err := storage.New(cfg.DBType, cfg.DBConn, cfg.Debug)
	if err != nil {
		return fmt.Errorf("web: couldn't create orm store: %w", err)
	}
	if err := store.Start(ctx); err != nil {
		return fmt.Errorf("web: couldn't start orm store: %w", err)
	}
	defer func() { _ = store.Stop() }()
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("web: couldn't migrate orm store: %w", err)
	}

	fs, err := filestore.New(cfg.FSType, cfg.FSConn, cfg.Proxy, cfg.Debug, store)
	if err != nil {
		return fmt.Errorf("web: couldn't create file storage: %w", err)
	}

	// Create static content
	staticFS, err := iofs.Sub(staticContent, "static")
	if err != nil {
		return fmt.Errorf("web: couldn't load static content: %w", err)
	}

	srv := newServer(pipeline, store, fs, staticFS, serverConfig{
		Limits: image.Limits{
			MaxWidth:     cfg.MaxWidth,
			MaxHeight:    cfg.MaxHeight,
			MaxInputSize: cfg.MaxSize,
			MaxPixels:    cfg.MaxPixels,
		},
		Concurrency: cfg.Concurrency,
		Timeout:     cfg.Timeout,
		RateLimit:   cfg.RateLimit,
		RateBurst:   cfg.RateBurst,
		Credentials: cfg.Credentials,
		Debug:       cfg.Debug,
	})
	go srv.limiter.run(ctx)

	// Create server
	split := strings.Split(cfg.Addr, ":")
	if len(split) != 2 {
		return fmt.Errorf("web: invalid address: %s", cfg.Addr)
	}
	host := split[0]
	port, err := strconv.Atoi(split[1])
	if err != nil {
		return fmt.Errorf("web: invalid port: %s", split[1])
	}
	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", host, port),
		Handler:           srv.router(cfg.Debug),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		note := fmt.Sprintf("http://%s:%d", host, port)
		if host == "" {
			note = fmt.Sprintf("all interfaces http://localhost:%d", port)
		}
		log.Printf("web: starting server on %s\n", note)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("web: failed to start server: %v\n", err)
			cancel()
		}
	}()

	if cfg.Open {
		u := fmt.Sprintf("http://localhost:%d", port)
		if host != "" {
			u = fmt.Sprintf("http://%s:%d", host, port)
		}
		if err := browser.OpenURL(u); err != nil {
			log.Printf("web: couldn't open browser: %v\n", err)
		}
	}

	<-ctx.Done()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("web: couldn't shutdown server: %w", err)
	}
	return nil
}
