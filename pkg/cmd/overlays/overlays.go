package overlays

import (
	"context"
	"fmt"
	"io"

	"github.com/igolaizola/photobooth/pkg/image"
)

type Config struct {
	Overlays string
}

// Run prints the overlays found in the configured directory.
func Run(ctx context.Context, w io.Writer, cfg *Config) error {
	r, err := image.LoadDir(cfg.Overlays)
	if err != nil {
		return fmt.Errorf("overlays: %w", err)
	}
	for name := range r.List() {
		o, err := r.Get(name)
		if err != nil {
			return fmt.Errorf("overlays: %w", err)
		}
		fmt.Fprintf(w, "%s\t%dx%d\n", name, o.Width, o.Height)
	}
	return nil
}
