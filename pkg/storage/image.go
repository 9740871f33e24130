package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Image is the metadata of a composed image. The bytes live in the content
// store under Filename.
type Image struct {
	ID        string    `gorm:"primarykey" json:"id" csv:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at" csv:"created_at"`
	UpdatedAt time.Time `json:"-" csv:"-"`

	UserID           string `gorm:"index;not null;default:''" json:"user" csv:"user"`
	Filename         string `gorm:"uniqueIndex;size:128;not null" json:"filename" csv:"filename"`
	OriginalFilename string `gorm:"not null;default:''" json:"original_filename,omitempty" csv:"original_filename"`
	Overlay          string `gorm:"not null;default:''" json:"overlay" csv:"overlay"`

	Width  int `gorm:"not null;default:0" json:"width" csv:"width"`
	Height int `gorm:"not null;default:0" json:"height" csv:"height"`
	Size   int `gorm:"not null;default:0" json:"size" csv:"size"`
}

func (s *Store) GetImage(ctx context.Context, id string) (*Image, error) {
	var v Image
	if err := s.db.WithContext(ctx).First(&v, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage: failed to get image %s: %w", id, err)
	}
	return &v, nil
}

func (s *Store) GetImageByFilename(ctx context.Context, filename string) (*Image, error) {
	var v Image
	if err := s.db.WithContext(ctx).First(&v, "filename = ?", filename).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage: failed to get image by filename %s: %w", filename, err)
	}
	return &v, nil
}

// CreateImage inserts a new image. It fails if the id or the filename is
// already taken.
func (s *Store) CreateImage(ctx context.Context, v *Image) error {
	if err := s.db.WithContext(ctx).Create(v).Error; err != nil {
		return fmt.Errorf("storage: failed to create image %s: %w", v.ID, err)
	}
	return nil
}

func (s *Store) SetImage(ctx context.Context, v *Image) error {
	if err := s.db.WithContext(ctx).Save(v).Error; err != nil {
		return fmt.Errorf("storage: failed to set image %s: %w", v.ID, err)
	}
	return nil
}

func (s *Store) DeleteImage(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Delete(&Image{ID: id}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("storage: failed to delete image %s: %w", id, err)
	}
	return nil
}

func (s *Store) ListImages(ctx context.Context, page, size int, orderBy string, filter ...Filter) ([]*Image, error) {
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * size
	vs := []*Image{}

	q := s.db.WithContext(ctx).Offset(offset).Limit(size)
	for _, f := range filter {
		q = q.Where(f.Query, f.Args...)
	}
	if orderBy != "" {
		q = q.Order(orderBy)
	}
	if err := q.Find(&vs).Error; err != nil {
		return nil, fmt.Errorf("storage: failed to list images: %w", err)
	}
	return vs, nil
}

func (s *Store) CountImages(ctx context.Context, filter ...Filter) (int64, error) {
	q := s.db.WithContext(ctx).Model(&Image{})
	for _, f := range filter {
		q = q.Where(f.Query, f.Args...)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, fmt.Errorf("storage: failed to count images: %w", err)
	}
	return n, nil
}
