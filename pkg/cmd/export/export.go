package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/igolaizola/photobooth/pkg/storage"
)

type Config struct {
	Debug  bool
	DBType string
	DBConn string
	Output string
	User   string
	Limit  int
}

const pageSize = 100

// Run exports image metadata to a csv or json file.
func Run(ctx context.Context, cfg *Config) error {
	log.Println("export: started")
	defer log.Println("export: ended")

	if cfg.Output == "" {
		return errors.New("export: output is required")
	}
	ext := strings.ToLower(filepath.Ext(cfg.Output))
	if ext != ".csv" && ext != ".json" {
		return fmt.Errorf("export: unsupported output extension %q", ext)
	}

	store, err := storage.New(cfg.DBType, cfg.DBConn, cfg.Debug)
	if err != nil {
		return fmt.Errorf("export: couldn't create orm store: %w", err)
	}
	if err := store.Start(ctx); err != nil {
		return fmt.Errorf("export: couldn't start orm store: %w", err)
	}
	defer func() { _ = store.Stop() }()

	var filters []storage.Filter
	if cfg.User != "" {
		filters = append(filters, storage.Where("user_id = ?", cfg.User))
	}

	images := []*storage.Image{}
	for page := 1; ; page++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("export: %w", ctx.Err())
		default:
		}
		vs, err := store.ListImages(ctx, page, pageSize, "created_at asc, id asc", filters...)
		if err != nil {
			return fmt.Errorf("export: %w", err)
		}
		images = append(images, vs...)
		if cfg.Limit > 0 && len(images) >= cfg.Limit {
			images = images[:cfg.Limit]
			break
		}
		if len(vs) < pageSize {
			break
		}
	}

	var data []byte
	switch ext {
	case ".csv":
		data, err = gocsv.MarshalBytes(&images)
	case ".json":
		data, err = json.MarshalIndent(images, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("export: couldn't marshal images: %w", err)
	}
	if err := os.WriteFile(cfg.Output, data, 0644); err != nil {
		return fmt.Errorf("export: couldn't write %s: %w", cfg.Output, err)
	}
	log.Printf("export: %d images written to %s\n", len(images), cfg.Output)
	return nil
}
