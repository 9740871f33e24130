package local

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
)

type Store struct {
	root  string
	debug bool
}

func New(root string, debug bool) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("local: empty root directory")
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("local: couldn't create %q: %w", root, err)
	}
	return &Store{root: root, debug: debug}, nil
}

// Put writes data to a temporary file in the same directory and renames it
// into place, so readers never see a partial file.
func (s *Store) Put(ctx context.Context, name string, data []byte) error {
	dst := filepath.Join(s.root, name)
	tmp, err := os.CreateTemp(s.root, ".tmp-"+name+"-*")
	if err != nil {
		return fmt.Errorf("local: couldn't create temp file for %q: %w", name, err)
	}
	tmpName := tmp.Name()
	defer func() {
		// No-op after a successful rename.
		_ = os.Remove(tmpName)
	}()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("local: couldn't write %q: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("local: couldn't sync %q: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("local: couldn't close %q: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return fmt.Errorf("local: couldn't chmod %q: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return fmt.Errorf("local: couldn't rename %q to %q: %w", tmpName, dst, err)
	}
	if s.debug {
		log.Printf("local: put %s (%d bytes)\n", dst, len(data))
	}
	return nil
}

func (s *Store) Get(ctx context.Context, name string) ([]byte, error) {
	src := filepath.Join(s.root, name)
	b, err := os.ReadFile(src)
	if err != nil {
		return nil, fmt.Errorf("local: couldn't read %q: %w", src, err)
	}
	return b, nil
}

func (s *Store) Delete(ctx context.Context, name string) error {
	dst := filepath.Join(s.root, name)
	if err := os.Remove(dst); err != nil {
		return fmt.Errorf("local: couldn't remove %q: %w", dst, err)
	}
	if s.debug {
		log.Printf("local: deleted %s\n", dst)
	}
	return nil
}
