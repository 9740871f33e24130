package image

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Source is a validated input buffer along with its sniffed format.
type Source struct {
	Data   []byte
	Format Format
	Size   int
	Width  int
	Height int
}

// Validate checks that data is a supported, structurally valid image no
// larger than maxSize bytes. The format is sniffed from the content itself.
func Validate(data []byte, maxSize int) (*Source, error) {
	return validate(data, maxSize, DefaultMaxPixels)
}

// ValidateLimits is Validate with the input size and pixel ceilings taken
// from l. A MaxInputSize <= 0 falls back to DefaultMaxInputSize and a
// MaxPixels <= 0 disables the pixel ceiling.
func ValidateLimits(data []byte, l Limits) (*Source, error) {
	maxSize := l.MaxInputSize
	if maxSize <= 0 {
		maxSize = DefaultMaxInputSize
	}
	return validate(data, maxSize, l.MaxPixels)
}

func validate(data []byte, maxSize, maxPixels int) (*Source, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrTooLarge)
	}
	if len(data) > maxSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, len(data), maxSize)
	}

	f := sniff(data)
	if f == FormatUnknown {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, mimetype.Detect(data).String())
	}

	_, decodeConfig, err := getDecoder(f)
	if err != nil {
		return nil, err
	}
	cfg, err := decodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptImage, f, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: invalid dimensions %dx%d", ErrCorruptImage, cfg.Width, cfg.Height)
	}
	if maxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrTooLarge, cfg.Width, cfg.Height, maxPixels)
	}
	return &Source{
		Data:   data,
		Format: f,
		Size:   len(data),
		Width:  cfg.Width,
		Height: cfg.Height,
	}, nil
}

func sniff(data []byte) Format {
	// Walk up the hierarchy so subtypes like APNG resolve to their container.
	for m := mimetype.Detect(data); m != nil; m = m.Parent() {
		switch {
		case m.Is("image/jpeg"):
			return FormatJPEG
		case m.Is("image/png"):
			return FormatPNG
		case m.Is("image/gif"):
			return FormatGIF
		}
	}
	return FormatUnknown
}

// ValidateContentType rejects a caller declared content type that doesn't
// match the sniffed format. An empty declared type is accepted.
func ValidateContentType(declared string, src *Source) error {
	declared = strings.ToLower(strings.TrimSpace(declared))
	if i := strings.Index(declared, ";"); i >= 0 {
		declared = strings.TrimSpace(declared[:i])
	}
	if declared == "" || declared == "application/octet-stream" {
		return nil
	}
	switch declared {
	case "image/jpg", "image/pjpeg":
		declared = "image/jpeg"
	}
	if declared != src.Format.MIME() {
		return fmt.Errorf("%w: declared %s but content is %s", ErrUnsupportedFormat, declared, src.Format.MIME())
	}
	return nil
}
