package filestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"

	"github.com/igolaizola/photobooth/pkg/filestore/local"
	"github.com/igolaizola/photobooth/pkg/filestore/s3"
	"github.com/igolaizola/photobooth/pkg/filestore/tgstore"
	"github.com/igolaizola/photobooth/pkg/storage"
)

var (
	ErrNotFound    = errors.New("filestore: not found")
	ErrInvalidName = errors.New("filestore: invalid name")
)

type backend interface {
	Put(ctx context.Context, name string, data []byte) error
	Get(ctx context.Context, name string) ([]byte, error)
	Delete(ctx context.Context, name string) error
}

// Store keeps composed images by name. Names are flat: they can't contain
// path components.
type Store struct {
	backend backend
}

func (s *Store) Put(ctx context.Context, name string, data []byte) error {
	if !validName(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return s.backend.Put(ctx, name, data)
}

func (s *Store) Get(ctx context.Context, name string) ([]byte, error) {
	if !validName(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	b, err := s.backend.Get(ctx, name)
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return b, err
}

// Delete removes name. Deleting a missing name isn't an error.
func (s *Store) Delete(ctx context.Context, name string) error {
	if !validName(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	err := s.backend.Delete(ctx, name)
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	return err
}

func validName(name string) bool {
	if name == "" || strings.HasPrefix(name, ".") {
		return false
	}
	return !strings.ContainsAny(name, "/\\:\x00")
}

func New(typ, conn, proxy string, debug bool, store *storage.Store) (*Store, error) {
	var b backend
	switch typ {
	case "telegram":
		split := strings.Split(conn, "@")
		if len(split) != 2 {
			return nil, fmt.Errorf("filestore: invalid telegram connection string %q", conn)
		}
		token := split[0]
		chat, err := strconv.ParseInt(split[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("filestore: invalid telegram chat id %q: %w", split[1], err)
		}
		if store == nil {
			return nil, errors.New("filestore: telegram requires a database to keep file references")
		}
		candidate, err := tgstore.New(token, chat, proxy, debug, store)
		if err != nil {
			return nil, fmt.Errorf("filestore: %w", err)
		}
		b = candidate
	case "s3":
		split := strings.Split(conn, "@")
		if len(split) != 2 {
			return nil, fmt.Errorf("filestore: invalid s3 connection string %q", conn)
		}
		auth := strings.Split(split[0], ":")
		if len(auth) != 2 {
			return nil, fmt.Errorf("filestore: invalid s3 auth string %q", conn)
		}
		key := auth[0]
		secret := auth[1]
		loc := strings.Split(split[1], ".")
		if len(loc) != 2 {
			return nil, fmt.Errorf("filestore: invalid s3 location string %q", conn)
		}
		bucket := loc[0]
		region := loc[1]
		candidate, err := s3.New(key, secret, region, bucket, debug)
		if err != nil {
			return nil, fmt.Errorf("filestore: %w", err)
		}
		b = candidate
	case "local":
		candidate, err := local.New(conn, debug)
		if err != nil {
			return nil, fmt.Errorf("filestore: %w", err)
		}
		b = candidate
	default:
		return nil, fmt.Errorf("filestore: unknown file storage type %q", typ)
	}
	return &Store{backend: b}, nil
}
