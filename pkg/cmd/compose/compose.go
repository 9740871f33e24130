package compose

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/igolaizola/photobooth/pkg/filestore"
	"github.com/igolaizola/photobooth/pkg/image"
)

type Config struct {
	Debug       bool
	Input       string
	Output      string
	Overlay     string
	Overlays    string
	Prefix      string
	Resampler   string
	MaxWidth    int
	MaxHeight   int
	MaxSize     int
	MaxPixels   int
	Concurrency int
}

var inputExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
}

// Run composes the input file, or every image directly inside the input
// directory, with the configured overlay and writes the results to the
// output directory. Each result is reported to w as "input\tfilename".
func Run(ctx context.Context, w io.Writer, cfg *Config) error {
	log.Println("compose: started")
	defer log.Println("compose: ended")

	debug := func(format string, args ...any) {
		if !cfg.Debug {
			return
		}
		format += "\n"
		log.Printf(format, args...)
	}

	if cfg.Input == "" {
		return errors.New("compose: input is required")
	}
	if cfg.Output == "" {
		return errors.New("compose: output is required")
	}
	if cfg.Overlay == "" {
		return errors.New("compose: overlay is required")
	}

	overlays, err := image.LoadDir(cfg.Overlays)
	if err != nil {
		return fmt.Errorf("compose: %w", err)
	}
	if _, err := overlays.Get(cfg.Overlay); err != nil {
		return fmt.Errorf("compose: %w", err)
	}
	resample, err := image.ParseResampler(cfg.Resampler)
	if err != nil {
		return fmt.Errorf("compose: %w", err)
	}
	pipeline := image.New(overlays, image.WithPrefix(cfg.Prefix), image.WithResampler(resample))
	limits := image.Limits{
		MaxWidth:     cfg.MaxWidth,
		MaxHeight:    cfg.MaxHeight,
		MaxInputSize: cfg.MaxSize,
		MaxPixels:    cfg.MaxPixels,
	}

	out, err := filestore.New("local", cfg.Output, "", cfg.Debug, nil)
	if err != nil {
		return fmt.Errorf("compose: couldn't create output store: %w", err)
	}

	inputs, err := listInputs(cfg.Input)
	if err != nil {
		return fmt.Errorf("compose: %w", err)
	}
	if len(inputs) == 0 {
		return fmt.Errorf("compose: no images found in %s", cfg.Input)
	}

	// Print time stats
	start := time.Now()
	defer func() {
		log.Printf("compose: %d inputs in %s\n", len(inputs), time.Since(start))
	}()

	// Concurrency settings
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	errC := make(chan error, concurrency)
	defer close(errC)
	for i := 0; i < concurrency; i++ {
		errC <- nil
	}
	var wg sync.WaitGroup
	var mu sync.Mutex
	var nErr int

	for _, input := range inputs {
		select {
		case <-ctx.Done():
			wg.Wait()
			return fmt.Errorf("compose: %w", ctx.Err())
		case err := <-errC:
			if err != nil {
				nErr++
			}
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			debug("compose: start %s", input)
			filename, err := composeFile(ctx, pipeline, out, input, cfg.Overlay, limits)
			if err != nil {
				log.Println(err)
			} else {
				mu.Lock()
				fmt.Fprintf(w, "%s\t%s\n", input, filename)
				mu.Unlock()
			}
			debug("compose: end %s", input)
			errC <- err
		}()
	}
	wg.Wait()

	// Collect the results of the last batch
	for i := 0; i < concurrency; i++ {
		if err := <-errC; err != nil {
			nErr++
		}
	}
	if nErr > 0 {
		return fmt.Errorf("compose: %d of %d inputs failed", nErr, len(inputs))
	}
	return nil
}

func composeFile(ctx context.Context, p *image.Pipeline, out *filestore.Store, input, overlay string, limits image.Limits) (string, error) {
	raw, err := os.ReadFile(input)
	if err != nil {
		return "", fmt.Errorf("compose: couldn't read %s: %w", input, err)
	}
	res, err := p.Compose(raw, overlay, limits)
	if err != nil {
		return "", fmt.Errorf("compose: %s: %s: %w", input, image.Message(err), err)
	}
	if err := out.Put(ctx, res.Filename, res.Data); err != nil {
		return "", fmt.Errorf("compose: couldn't write %s: %w", res.Filename, err)
	}
	return res.Filename, nil
}

// listInputs returns path itself if it is a file, or the image files
// directly inside it, sorted by name.
func listInputs(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("couldn't stat input %s: %w", path, err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("couldn't read input dir %s: %w", path, err)
	}
	var inputs []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if !inputExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		inputs = append(inputs, filepath.Join(path, e.Name()))
	}
	sort.Strings(inputs)
	return inputs, nil
}
