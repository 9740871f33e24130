package image

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"image/jpeg"
	"regexp"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Quality is the JPEG quality used for every output image.
const Quality = 90

// DefaultPrefix is prepended to generated filenames.
const DefaultPrefix = "img_"

// FilenamePattern matches filenames produced by NewFilename.
var FilenamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]*[0-9A-HJKMNP-TV-Z]{26}_[0-9a-f]{32}\.jpg$`)

var prefixPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{0,32}$`)

// Result is an encoded composite ready to be persisted by the caller.
type Result struct {
	Filename string
	Data     []byte
	Width    int
	Height   int
}

// Encode serializes the raster as JPEG, dropping the alpha channel.
func Encode(r *Raster, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, r.NRGBA(), &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncodeFailed, err)
	}
	return buf.Bytes(), nil
}

// NewFilename returns prefix followed by a time ordered ULID and 122 bits of
// crypto random data, with a .jpg extension.
func NewFilename(prefix string) (string, error) {
	if !prefixPattern.MatchString(prefix) {
		return "", fmt.Errorf("image: invalid filename prefix %q", prefix)
	}
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("image: couldn't generate random id: %w", err)
	}
	return fmt.Sprintf("%s%s_%s.jpg", prefix, ulid.Make().String(), hex.EncodeToString(id[:])), nil
}

// ValidFilename reports whether name looks like a generated filename.
func ValidFilename(name string) bool {
	return FilenamePattern.MatchString(name)
}

// Finalize encodes the raster and names the result.
func Finalize(r *Raster, prefix string) (*Result, error) {
	data, err := Encode(r, Quality)
	if err != nil {
		return nil, err
	}
	name, err := NewFilename(prefix)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncodeFailed, err)
	}
	return &Result{
		Filename: name,
		Data:     data,
		Width:    r.Width,
		Height:   r.Height,
	}, nil
}
