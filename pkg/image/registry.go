package image

import (
	"fmt"
	"image/png"
	"io/fs"
	"iter"
	"os"
	"path"
	"strings"
)

// OverlayExt is the file extension scanned for overlays. PNG guarantees an
// alpha channel.
const OverlayExt = ".png"

// Overlays is the read-only view of a registry consumed by the pipeline.
type Overlays interface {
	Get(name string) (*Overlay, error)
	List() iter.Seq[string]
}

// Registry is an immutable set of overlays keyed by name. It is safe for
// concurrent use.
type Registry struct {
	names    []string
	overlays map[string]*Overlay
}

// NewRegistry builds a registry from already decoded overlays, keeping their
// order.
func NewRegistry(overlays ...*Overlay) (*Registry, error) {
	r := &Registry{
		overlays: make(map[string]*Overlay, len(overlays)),
	}
	for _, o := range overlays {
		if !validName(o.Name) {
			return nil, fmt.Errorf("image: invalid overlay name %q", o.Name)
		}
		if _, ok := r.overlays[o.Name]; ok {
			return nil, fmt.Errorf("image: duplicate overlay %q", o.Name)
		}
		r.names = append(r.names, o.Name)
		r.overlays[o.Name] = o
	}
	return r, nil
}

// LoadDir loads every PNG file found directly inside dir.
func LoadDir(dir string) (*Registry, error) {
	r, err := Load(os.DirFS(dir))
	if err != nil {
		return nil, fmt.Errorf("image: couldn't load overlays from %s: %w", dir, err)
	}
	return r, nil
}

// Load loads every PNG file at the root of fsys. Subdirectories are ignored.
func Load(fsys fs.FS) (*Registry, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("image: couldn't read overlay directory: %w", err)
	}
	var overlays []*Overlay
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		name := e.Name()
		if !strings.EqualFold(path.Ext(name), OverlayExt) {
			continue
		}
		o, err := loadOverlay(fsys, name)
		if err != nil {
			return nil, err
		}
		overlays = append(overlays, o)
	}
	return NewRegistry(overlays...)
}

func loadOverlay(fsys fs.FS, name string) (*Overlay, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return nil, fmt.Errorf("image: couldn't open overlay %s: %w", name, err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("image: couldn't decode overlay %s: %w", name, err)
	}
	return &Overlay{Name: name, Raster: FromImage(img)}, nil
}

// Get returns the overlay registered under name. The name is only ever used
// as a key.
func (r *Registry) Get(name string) (*Overlay, error) {
	if !validName(name) {
		return nil, fmt.Errorf("%w: invalid name", ErrOverlayNotFound)
	}
	o, ok := r.overlays[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrOverlayNotFound, name)
	}
	return o, nil
}

// List returns the overlay names in load order.
func (r *Registry) List() iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, n := range r.names {
			if !yield(n) {
				return
			}
		}
	}
}

// Names returns a copy of the overlay names in load order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// Len returns the number of overlays.
func (r *Registry) Len() int {
	return len(r.names)
}

func validName(name string) bool {
	if name == "" || name == "." || strings.Contains(name, "..") {
		return false
	}
	return !strings.ContainsAny(name, "/\\\x00")
}
