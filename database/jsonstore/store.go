// Package jsonstore provides the flat JSON file backend. Every operation reads
// the whole file, mutates the slice and rewrites the file.
package jsonstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/GitDonce/TwoGuys/database"
	"github.com/GitDonce/TwoGuys/models"
)

const (
	itemsFileName  = "items.json"
	citiesFileName = "cities.json"
	usersFileName  = "users.json"
	stateFileName  = "state.json"
)

// storeState holds counters that must outlive the records they describe.
type storeState struct {
	ItemHighWater int64 `json:"itemHighWater"`
}

// Store keeps items, cities and users in three JSON files under one directory.
// Each file has its own lock so a read-modify-write cycle is never interleaved.
type Store struct {
	dir       string
	seedItems []models.Item
	log       *zap.Logger

	itemsMu  sync.Mutex
	citiesMu sync.Mutex
	usersMu  sync.Mutex
}

var _ database.Store = (*Store)(nil)

// Open prepares dir and writes the seed items and cities into any file that
// does not exist yet.
func Open(dir string, seed database.SeedData, logger *zap.Logger) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("data directory is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	dir = filepath.Clean(dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	s := &Store{
		dir:       dir,
		seedItems: seed.Items,
		log:       logger.Named("jsonstore"),
	}
	if err := initRecords(s, itemsFileName, seed.Items); err != nil {
		return nil, err
	}
	if err := initRecords(s, citiesFileName, seed.Cities); err != nil {
		return nil, err
	}
	return s, nil
}

func initRecords[T any](s *Store, name string, records []T) error {
	p := s.path(name)
	if _, err := os.Stat(p); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat %s: %w", name, err)
	}
	if records == nil {
		records = []T{}
	}
	s.log.Info("initialising data file", zap.String("file", p), zap.Int("records", len(records)))
	return writeRecords(p, records)
}

// Close is a no-op; files are not held open between requests.
func (s *Store) Close() error {
	return nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name)
}

// readRecords loads a whole file. A missing file reads as an empty list.
func readRecords[T any](path string) ([]T, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []T{}, nil
		}
		return nil, fmt.Errorf("read file: %w", err)
	}
	var records []T
	if err := json.Unmarshal(b, &records); err != nil {
		return nil, fmt.Errorf("json unmarshal %s: %w", filepath.Base(path), err)
	}
	if records == nil {
		records = []T{}
	}
	return records, nil
}

// writeRecords rewrites a whole file through a temp file and rename, so readers
// never observe a half-written file.
func writeRecords[T any](path string, records []T) error {
	b, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}
	return writeFileAtomic(path, b)
}

func writeFileAtomic(path string, b []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// readItems loads items.json. An unreadable or corrupt file is replaced with
// the seed items.
func (s *Store) readItems() ([]models.Item, error) {
	p := s.path(itemsFileName)
	items, err := readRecords[models.Item](p)
	if err == nil {
		return items, nil
	}
	s.log.Error("error reading items file, restoring seed items", zap.String("file", p), zap.Error(err))
	items = append([]models.Item{}, s.seedItems...)
	if werr := writeRecords(p, items); werr != nil {
		return nil, fmt.Errorf("restore items file: %w", werr)
	}
	return items, nil
}

// readState loads state.json. The caller must hold itemsMu. A missing or
// corrupt file reads as zero counters; NextItemID still stays above every
// stored id in that case.
func (s *Store) readState() storeState {
	var st storeState
	b, err := os.ReadFile(s.path(stateFileName))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.log.Warn("error reading state file", zap.Error(err))
		}
		return st
	}
	if err := json.Unmarshal(b, &st); err != nil {
		s.log.Warn("corrupt state file, resetting counters", zap.Error(err))
		return storeState{}
	}
	return st
}

func (s *Store) writeState(st storeState) error {
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}
	if err := writeFileAtomic(s.path(stateFileName), b); err != nil {
		s.log.Error("error writing state file", zap.Error(err))
		return err
	}
	return nil
}

// raiseItemHighWater records the ids in items before any of them are removed.
// The caller must hold itemsMu.
func (s *Store) raiseItemHighWater(items []models.Item) error {
	st := s.readState()
	mark := database.ItemHighWater(items, st.ItemHighWater)
	if mark == st.ItemHighWater {
		return nil
	}
	st.ItemHighWater = mark
	return s.writeState(st)
}

func (s *Store) writeItems(items []models.Item) error {
	if err := writeRecords(s.path(itemsFileName), items); err != nil {
		s.log.Error("error writing items file", zap.Error(err))
		return err
	}
	return nil
}

func (s *Store) readCities() ([]models.City, error) {
	cities, err := readRecords[models.City](s.path(citiesFileName))
	if err != nil {
		return nil, err
	}
	for i := range cities {
		cities[i].Normalize()
	}
	return cities, nil
}

func (s *Store) writeCities(cities []models.City) error {
	if err := writeRecords(s.path(citiesFileName), cities); err != nil {
		s.log.Error("error writing cities file", zap.Error(err))
		return err
	}
	return nil
}

// ListItems returns every item in file order.
func (s *Store) ListItems(ctx context.Context) ([]models.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.itemsMu.Lock()
	defer s.itemsMu.Unlock()
	return s.readItems()
}

// GetItem returns one item by id.
func (s *Store) GetItem(ctx context.Context, id string) (models.Item, error) {
	if err := ctx.Err(); err != nil {
		return models.Item{}, err
	}
	s.itemsMu.Lock()
	defer s.itemsMu.Unlock()
	items, err := s.readItems()
	if err != nil {
		return models.Item{}, err
	}
	for _, item := range items {
		if item.ID == id {
			return item, nil
		}
	}
	return models.Item{}, database.ErrNotFound
}

// CreateItem appends item with an id that has never been used, even by items
// since deleted.
func (s *Store) CreateItem(ctx context.Context, item models.Item) (models.Item, error) {
	if err := ctx.Err(); err != nil {
		return models.Item{}, err
	}
	s.itemsMu.Lock()
	defer s.itemsMu.Unlock()
	items, err := s.readItems()
	if err != nil {
		return models.Item{}, err
	}
	st := s.readState()
	item.ID, st.ItemHighWater = database.NextItemID(items, st.ItemHighWater)
	items = append(items, item)
	if err := s.writeItems(items); err != nil {
		return models.Item{}, err
	}
	if err := s.writeState(st); err != nil {
		return models.Item{}, err
	}
	return item, nil
}

// UpdateItem merges patch into the stored item.
func (s *Store) UpdateItem(ctx context.Context, id string, patch models.ItemPatch) (models.Item, error) {
	if err := ctx.Err(); err != nil {
		return models.Item{}, err
	}
	s.itemsMu.Lock()
	defer s.itemsMu.Unlock()
	items, err := s.readItems()
	if err != nil {
		return models.Item{}, err
	}
	idx := indexOf(items, func(it models.Item) bool { return it.ID == id })
	if idx == -1 {
		return models.Item{}, database.ErrNotFound
	}
	patch.Apply(&items[idx])
	if err := s.writeItems(items); err != nil {
		return models.Item{}, err
	}
	return items[idx], nil
}

// DeleteItem removes the item and returns it.
func (s *Store) DeleteItem(ctx context.Context, id string) (models.Item, error) {
	if err := ctx.Err(); err != nil {
		return models.Item{}, err
	}
	s.itemsMu.Lock()
	defer s.itemsMu.Unlock()
	items, err := s.readItems()
	if err != nil {
		return models.Item{}, err
	}
	idx := indexOf(items, func(it models.Item) bool { return it.ID == id })
	if idx == -1 {
		return models.Item{}, database.ErrNotFound
	}
	if err := s.raiseItemHighWater(items); err != nil {
		return models.Item{}, err
	}
	deleted := items[idx]
	items = append(items[:idx], items[idx+1:]...)
	if err := s.writeItems(items); err != nil {
		return models.Item{}, err
	}
	return deleted, nil
}

// ListCities returns every city in file order.
func (s *Store) ListCities(ctx context.Context) ([]models.City, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.citiesMu.Lock()
	defer s.citiesMu.Unlock()
	return s.readCities()
}

// ListCitiesByUser returns the cities owned by userID.
func (s *Store) ListCitiesByUser(ctx context.Context, userID string) ([]models.City, error) {
	cities, err := s.ListCities(ctx)
	if err != nil {
		return nil, err
	}
	owned := make([]models.City, 0, len(cities))
	for _, c := range cities {
		if userID != "" && c.UserID == userID {
			owned = append(owned, c)
		}
	}
	return owned, nil
}

// GetCity returns one city by id.
func (s *Store) GetCity(ctx context.Context, id string) (models.City, error) {
	if err := ctx.Err(); err != nil {
		return models.City{}, err
	}
	s.citiesMu.Lock()
	defer s.citiesMu.Unlock()
	cities, err := s.readCities()
	if err != nil {
		return models.City{}, err
	}
	for _, c := range cities {
		if c.ID == id {
			return c, nil
		}
	}
	return models.City{}, database.ErrNotFound
}

// CreateCity appends city, generating an id when it has none.
func (s *Store) CreateCity(ctx context.Context, city models.City) (models.City, error) {
	if err := ctx.Err(); err != nil {
		return models.City{}, err
	}
	s.citiesMu.Lock()
	defer s.citiesMu.Unlock()
	cities, err := s.readCities()
	if err != nil {
		return models.City{}, err
	}
	if city.ID == "" {
		city.ID = uuid.NewString()
	} else if indexOf(cities, func(c models.City) bool { return c.ID == city.ID }) != -1 {
		return models.City{}, database.ErrAlreadyExists
	}
	city.Normalize()
	cities = append(cities, city)
	if err := s.writeCities(cities); err != nil {
		return models.City{}, err
	}
	return city, nil
}

// UpdateCity merges patch into the stored city.
func (s *Store) UpdateCity(ctx context.Context, id string, patch models.CityPatch) (models.City, error) {
	if err := ctx.Err(); err != nil {
		return models.City{}, err
	}
	s.citiesMu.Lock()
	defer s.citiesMu.Unlock()
	cities, err := s.readCities()
	if err != nil {
		return models.City{}, err
	}
	idx := indexOf(cities, func(c models.City) bool { return c.ID == id })
	if idx == -1 {
		return models.City{}, database.ErrNotFound
	}
	patch.Apply(&cities[idx])
	if err := s.writeCities(cities); err != nil {
		return models.City{}, err
	}
	return cities[idx], nil
}

// DeleteCity removes the city and returns it.
func (s *Store) DeleteCity(ctx context.Context, id string) (models.City, error) {
	if err := ctx.Err(); err != nil {
		return models.City{}, err
	}
	s.citiesMu.Lock()
	defer s.citiesMu.Unlock()
	cities, err := s.readCities()
	if err != nil {
		return models.City{}, err
	}
	idx := indexOf(cities, func(c models.City) bool { return c.ID == id })
	if idx == -1 {
		return models.City{}, database.ErrNotFound
	}
	deleted := cities[idx]
	cities = append(cities[:idx], cities[idx+1:]...)
	if err := s.writeCities(cities); err != nil {
		return models.City{}, err
	}
	return deleted, nil
}

// GetUserByEmail finds a user by case-insensitive email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	if err := ctx.Err(); err != nil {
		return models.User{}, err
	}
	s.usersMu.Lock()
	defer s.usersMu.Unlock()
	users, err := readRecords[models.User](s.path(usersFileName))
	if err != nil {
		return models.User{}, err
	}
	idx := indexOf(users, func(u models.User) bool { return strings.EqualFold(u.Email, email) })
	if idx == -1 {
		return models.User{}, database.ErrNotFound
	}
	return users[idx], nil
}

// CreateUser appends user. The email is stored lower-cased and must be unique.
func (s *Store) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	if err := ctx.Err(); err != nil {
		return models.User{}, err
	}
	s.usersMu.Lock()
	defer s.usersMu.Unlock()
	p := s.path(usersFileName)
	users, err := readRecords[models.User](p)
	if err != nil {
		return models.User{}, err
	}
	user.Email = strings.ToLower(user.Email)
	if indexOf(users, func(u models.User) bool { return strings.EqualFold(u.Email, user.Email) }) != -1 {
		return models.User{}, database.ErrAlreadyExists
	}
	if user.ID == "" {
		user.ID = "user-" + uuid.NewString()
	}
	users = append(users, user)
	if err := writeRecords(p, users); err != nil {
		s.log.Error("error writing users file", zap.Error(err))
		return models.User{}, err
	}
	return user, nil
}

// Seed writes data.Items and data.Cities. Without force a file is only written
// when it does not exist; an existing file, even an empty one, is left alone.
func (s *Store) Seed(ctx context.Context, data database.SeedData, force bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.itemsMu.Lock()
	var err error
	if force {
		// Forced seeding drops the current items; keep their ids retired.
		if items, rerr := readRecords[models.Item](s.path(itemsFileName)); rerr == nil {
			err = s.raiseItemHighWater(items)
		}
	}
	if err == nil {
		err = seedFile(s, itemsFileName, data.Items, force)
	}
	s.itemsMu.Unlock()
	if err != nil {
		return fmt.Errorf("seed items: %w", err)
	}

	s.citiesMu.Lock()
	err = seedFile(s, citiesFileName, data.Cities, force)
	s.citiesMu.Unlock()
	if err != nil {
		return fmt.Errorf("seed cities: %w", err)
	}
	return nil
}

func seedFile[T any](s *Store, name string, records []T, force bool) error {
	if !force {
		return initRecords(s, name, records)
	}
	if records == nil {
		records = []T{}
	}
	s.log.Info("replacing data file with seed", zap.String("file", s.path(name)), zap.Int("records", len(records)))
	return writeRecords(s.path(name), records)
}

func indexOf[T any](records []T, match func(T) bool) int {
	for i, r := range records {
		if match(r) {
			return i
		}
	}
	return -1
}
