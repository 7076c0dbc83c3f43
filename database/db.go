// Package database defines the persistence contract shared by the JSON file,
// SQLite and PostgreSQL backends.
package database

import (
	"context"
	"errors"
	"strconv"

	"github.com/GitDonce/TwoGuys/models"
)

var (
	// ErrNotFound indicates a requested record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists indicates a uniqueness-constrained record already exists.
	ErrAlreadyExists = errors.New("record already exists")
)

// ItemStore persists dashboard items.
type ItemStore interface {
	ListItems(ctx context.Context) ([]models.Item, error)
	GetItem(ctx context.Context, id string) (models.Item, error)
	// CreateItem assigns the next item id and stores the item.
	CreateItem(ctx context.Context, item models.Item) (models.Item, error)
	UpdateItem(ctx context.Context, id string, patch models.ItemPatch) (models.Item, error)
	DeleteItem(ctx context.Context, id string) (models.Item, error)
}

// CityStore persists city guides.
type CityStore interface {
	ListCities(ctx context.Context) ([]models.City, error)
	ListCitiesByUser(ctx context.Context, userID string) ([]models.City, error)
	GetCity(ctx context.Context, id string) (models.City, error)
	// CreateCity stores the city, generating an id when none is set.
	CreateCity(ctx context.Context, city models.City) (models.City, error)
	UpdateCity(ctx context.Context, id string, patch models.CityPatch) (models.City, error)
	DeleteCity(ctx context.Context, id string) (models.City, error)
}

// UserStore persists registered accounts. Emails compare case-insensitively.
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
	CreateUser(ctx context.Context, user models.User) (models.User, error)
}

// Store is the full backend used by the HTTP handlers.
type Store interface {
	ItemStore
	CityStore
	UserStore
	// Seed writes the initial items and cities. Without force a collection is
	// seeded at most once over the life of the store, so emptying it later does
	// not bring the seed back. Force replaces both collections.
	Seed(ctx context.Context, data SeedData, force bool) error
	Close() error
}

// ItemHighWater returns the larger of mark and the largest numeric id in items.
// Stores raise their persisted mark with it before ids leave the collection.
func ItemHighWater(items []models.Item, mark int64) int64 {
	for _, item := range items {
		n, err := strconv.ParseInt(item.ID, 10, 64)
		if err != nil {
			continue
		}
		if n > mark {
			mark = n
		}
	}
	return mark
}

// NextItemID returns the id for a new item: one past both the largest numeric
// id in items and highWater, the largest id ever handed out. Non-numeric ids
// are ignored. The returned number is the new high-water mark.
func NextItemID(items []models.Item, highWater int64) (string, int64) {
	next := ItemHighWater(items, highWater) + 1
	return strconv.FormatInt(next, 10), next
}
