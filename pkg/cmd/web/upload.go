package web

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/igolaizola/photobooth/pkg/image"
)

var errInvalidPayload = errors.New("web: invalid payload")

// upload is an image submission after transport decoding.
type upload struct {
	Data             []byte
	ContentType      string
	Overlay          string
	OriginalFilename string
}

type uploadRequest struct {
	ImageData        string `json:"image_data"`
	Overlay          string `json:"overlay"`
	IsWebcam         bool   `json:"is_webcam"`
	OriginalFilename string `json:"original_filename"`
}

var dataURLPrefix = regexp.MustCompile(`(?i)^data:(image/[a-z0-9.+-]+);base64,`)

// decodeDataURL strips an optional data:image/...;base64, prefix and
// decodes the payload. It returns the declared media type if there was one.
func decodeDataURL(s string, maxSize int) ([]byte, string, error) {
	s = strings.TrimSpace(s)
	var declared string
	if m := dataURLPrefix.FindStringSubmatch(s); m != nil {
		declared = strings.ToLower(m[1])
		s = s[len(m[0]):]
	} else if strings.HasPrefix(strings.ToLower(s), "data:") {
		return nil, "", fmt.Errorf("%w: unsupported data url", image.ErrUnsupportedFormat)
	}
	if s == "" {
		return nil, "", fmt.Errorf("%w: no image data provided", errInvalidPayload)
	}
	if base64.StdEncoding.DecodedLen(len(s)) > maxSize+3 {
		return nil, "", fmt.Errorf("%w: encoded payload of %d bytes", image.ErrTooLarge, len(s))
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		// Some clients drop the padding.
		b, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
		if err != nil {
			return nil, "", fmt.Errorf("%w: invalid base64: %v", errInvalidPayload, err)
		}
	}
	return b, declared, nil
}

// readUpload reads a JSON or multipart submission from r. The body must
// already be capped by the caller.
func readUpload(r *http.Request, maxSize int, now time.Time) (*upload, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		var req uploadRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				return nil, fmt.Errorf("%w: %v", image.ErrTooLarge, err)
			}
			return nil, fmt.Errorf("%w: couldn't decode json: %v", errInvalidPayload, err)
		}
		if req.Overlay == "" {
			return nil, fmt.Errorf("%w: no overlay selected", errInvalidPayload)
		}
		data, declared, err := decodeDataURL(req.ImageData, maxSize)
		if err != nil {
			return nil, err
		}
		name := originalFilename(req.OriginalFilename)
		if name == "" || req.IsWebcam {
			name = "webcam_capture_" + now.Format("2006-01-02_15-04-05") + ".jpg"
		}
		return &upload{
			Data:             data,
			ContentType:      declared,
			Overlay:          req.Overlay,
			OriginalFilename: name,
		}, nil
	case "multipart/form-data":
		file, header, err := r.FormFile("image")
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				return nil, fmt.Errorf("%w: %v", image.ErrTooLarge, err)
			}
			return nil, fmt.Errorf("%w: no file uploaded: %v", errInvalidPayload, err)
		}
		defer file.Close()
		overlay := r.FormValue("overlay")
		if overlay == "" {
			return nil, fmt.Errorf("%w: no overlay selected", errInvalidPayload)
		}
		if header.Size > int64(maxSize) {
			return nil, fmt.Errorf("%w: %d bytes (max %d)", image.ErrTooLarge, header.Size, maxSize)
		}
		data, err := io.ReadAll(io.LimitReader(file, int64(maxSize)+1))
		if err != nil {
			return nil, fmt.Errorf("%w: couldn't read file: %v", errInvalidPayload, err)
		}
		return &upload{
			Data:             data,
			ContentType:      header.Header.Get("Content-Type"),
			Overlay:          overlay,
			OriginalFilename: originalFilename(header.Filename),
		}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported content type %q", errInvalidPayload, mediaType)
	}
}

// originalFilename keeps the base name of a client supplied filename for
// display purposes only.
func originalFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" {
		return ""
	}
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, name)
	if len(name) > 255 {
		name = strings.ToValidUTF8(name[:255], "")
	}
	return name
}
