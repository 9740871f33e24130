package image

import "errors"

var (
	ErrTooLarge          = errors.New("image: too large")
	ErrUnsupportedFormat = errors.New("image: unsupported format")
	ErrCorruptImage      = errors.New("image: corrupt image")
	ErrDecodeFailed      = errors.New("image: decode failed")
	ErrOverlayNotFound   = errors.New("image: overlay not found")
	ErrEncodeFailed      = errors.New("image: encode failed")
)

// Message returns a user facing message for err that never includes
// internal details.
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTooLarge):
		return "image too large"
	case errors.Is(err, ErrUnsupportedFormat):
		return "unsupported file type"
	case errors.Is(err, ErrCorruptImage), errors.Is(err, ErrDecodeFailed):
		return "invalid image data"
	case errors.Is(err, ErrOverlayNotFound):
		return "overlay not found"
	case errors.Is(err, ErrEncodeFailed):
		return "could not save image"
	default:
		return "server error occurred"
	}
}

// Kind returns a short stable label for the error kind, used for metrics.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrTooLarge):
		return "too_large"
	case errors.Is(err, ErrUnsupportedFormat):
		return "unsupported_format"
	case errors.Is(err, ErrCorruptImage):
		return "corrupt_image"
	case errors.Is(err, ErrDecodeFailed):
		return "decode_failed"
	case errors.Is(err, ErrOverlayNotFound):
		return "overlay_not_found"
	case errors.Is(err, ErrEncodeFailed):
		return "encode_failed"
	default:
		return "internal"
	}
}
