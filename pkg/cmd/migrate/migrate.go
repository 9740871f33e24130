package migrate

import (
	"context"
	"fmt"
	"log"

	"github.com/igolaizola/photobooth/pkg/storage"
)

type Config struct {
	Debug  bool
	DBType string
	DBConn string
}

// Run creates or upgrades the image metadata tables.
func Run(ctx context.Context, cfg *Config) error {
	log.Println("migrate: started")
	defer log.Println("migrate: ended")

	store, err := storage.New(cfg.DBType, cfg.DBConn, cfg.Debug)
	if err != nil {
		return fmt.Errorf("migrate: couldn't create: %w", err)
	}
	if err := store.Start(ctx); err != nil {
		return fmt.Errorf("migrate: couldn't start: %w", err)
	}
	defer func() { _ = store.Stop() }()
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: couldn't migrate: %w", err)
	}
	return nil
}
