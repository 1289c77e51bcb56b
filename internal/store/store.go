package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"masjidbox-bridge/internal/model"
)

var (
	// ErrNotFound is returned when no place matches the lookup.
	ErrNotFound = errors.New("place not found")
	// ErrDuplicate is returned when a place with the same slug or id exists.
	ErrDuplicate = errors.New("place already exists")
)

// Store defines the persistence operations for configured places.
type Store interface {
	CreatePlace(ctx context.Context, place *model.Place) error
	GetPlace(ctx context.Context, id string) (*model.Place, error)
	ListPlaces(ctx context.Context) ([]model.Place, error)
	DeletePlace(ctx context.Context, id string) error
	SlugExists(ctx context.Context, slug string) (bool, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) CreatePlace(ctx context.Context, place *model.Place) error {
	err := s.db.WithContext(ctx).Create(place).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %q", ErrDuplicate, place.Slug)
	}
	if err != nil {
		return fmt.Errorf("failed to create place %q: %w", place.Slug, err)
	}
	return nil
}

func (s *gormStore) GetPlace(ctx context.Context, id string) (*model.Place, error) {
	var place model.Place
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&place).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load place %s: %w", id, err)
	}
	return &place, nil
}

func (s *gormStore) ListPlaces(ctx context.Context) ([]model.Place, error) {
	var places []model.Place
	if err := s.db.WithContext(ctx).Order("slug").Find(&places).Error; err != nil {
		return nil, fmt.Errorf("failed to list places: %w", err)
	}
	return places, nil
}

func (s *gormStore) DeletePlace(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Place{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete place %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *gormStore) SlugExists(ctx context.Context, slug string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.Place{}).Where("slug = ?", slug).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check slug %q: %w", slug, err)
	}
	return count > 0, nil
}
