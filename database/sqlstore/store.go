// Package sqlstore provides SQL-backed storage for SQLite and PostgreSQL. Both
// dialects share the same queries; only placeholders and error codes differ.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/GitDonce/TwoGuys/database"
	"github.com/GitDonce/TwoGuys/database/sqlstore/migrations"
	"github.com/GitDonce/TwoGuys/models"
)

const (
	itemColumns = "id, title, description, completed, created_at"
	cityColumns = "id, name, country, description, population, highlights, icon, path, sections, user_id"
	userColumns = "id, email, password"

	createItemAttempts = 3

	// store_state keys.
	stateItemHighWater = "item_high_water"
	stateSeededPrefix  = "seeded:"
)

type dialect struct {
	name            string
	numbered        bool
	uniqueViolation func(error) bool
}

// rebind rewrites ? placeholders into $1, $2, ... for numbered dialects.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// Store persists items, cities and users in SQL tables.
type Store struct {
	db  *sql.DB
	d   dialect
	log *zap.Logger
}

var _ database.Store = (*Store)(nil)

func newStore(ctx context.Context, db *sql.DB, d dialect, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := applyMigrations(ctx, db, d, migrations.FS, d.name); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db, d: d, log: logger.Named(d.name)}, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func scanItem(row scanner) (models.Item, error) {
	var item models.Item
	if err := row.Scan(&item.ID, &item.Title, &item.Description, &item.Completed, &item.CreatedAt); err != nil {
		return models.Item{}, err
	}
	return item, nil
}

func (s *Store) getItem(ctx context.Context, q queryer, id string) (models.Item, error) {
	row := q.QueryRowContext(ctx, s.d.rebind("SELECT "+itemColumns+" FROM items WHERE id = ?"), id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Item{}, database.ErrNotFound
	}
	if err != nil {
		return models.Item{}, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// ListItems returns every item in insertion order.
func (s *Store) ListItems(ctx context.Context) ([]models.Item, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+itemColumns+" FROM items ORDER BY seq ASC")
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	items := []models.Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return items, nil
}

// GetItem returns one item by id.
func (s *Store) GetItem(ctx context.Context, id string) (models.Item, error) {
	return s.getItem(ctx, s.db, id)
}

// CreateItem inserts item under a numeric id that has never been handed out,
// tracked by the item_high_water row. A concurrent writer claiming the same id
// causes a retry.
func (s *Store) CreateItem(ctx context.Context, item models.Item) (models.Item, error) {
	var lastErr error
	for attempt := 0; attempt < createItemAttempts; attempt++ {
		created, err := s.insertItem(ctx, item)
		if err == nil {
			return created, nil
		}
		if !s.d.uniqueViolation(err) {
			return models.Item{}, fmt.Errorf("create item: %w", err)
		}
		s.log.Debug("item id collision, retrying", zap.Int("attempt", attempt+1))
		lastErr = err
	}
	return models.Item{}, fmt.Errorf("create item: %w", lastErr)
}

func (s *Store) insertItem(ctx context.Context, item models.Item) (models.Item, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := s.itemIDs(ctx, tx)
		if err != nil {
			return err
		}

		highWater, _, err := s.getState(ctx, tx, stateItemHighWater)
		if err != nil {
			return err
		}
		var next int64
		item.ID, next = database.NextItemID(existing, highWater)
		if _, err := tx.ExecContext(ctx,
			s.d.rebind("INSERT INTO items ("+itemColumns+") VALUES (?, ?, ?, ?, ?)"),
			item.ID, item.Title, item.Description, item.Completed, item.CreatedAt,
		); err != nil {
			return err
		}
		return s.setState(ctx, tx, stateItemHighWater, next)
	})
	if err != nil {
		return models.Item{}, err
	}
	return item, nil
}

// UpdateItem merges patch into the stored item.
func (s *Store) UpdateItem(ctx context.Context, id string, patch models.ItemPatch) (models.Item, error) {
	var updated models.Item
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		item, err := s.getItem(ctx, tx, id)
		if err != nil {
			return err
		}
		patch.Apply(&item)
		if _, err := tx.ExecContext(ctx,
			s.d.rebind("UPDATE items SET title = ?, description = ?, completed = ? WHERE id = ?"),
			item.Title, item.Description, item.Completed, id,
		); err != nil {
			return fmt.Errorf("update item: %w", err)
		}
		updated = item
		return nil
	})
	if err != nil {
		return models.Item{}, err
	}
	return updated, nil
}

// DeleteItem removes the item and returns it.
func (s *Store) DeleteItem(ctx context.Context, id string) (models.Item, error) {
	var deleted models.Item
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		item, err := s.getItem(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := s.raiseItemHighWater(ctx, tx); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, s.d.rebind("DELETE FROM items WHERE id = ?"), id); err != nil {
			return fmt.Errorf("delete item: %w", err)
		}
		deleted = item
		return nil
	})
	if err != nil {
		return models.Item{}, err
	}
	return deleted, nil
}

func scanCity(row scanner) (models.City, error) {
	var (
		city       models.City
		highlights string
		sections   string
	)
	if err := row.Scan(
		&city.ID, &city.Name, &city.Country, &city.Description, &city.Population,
		&highlights, &city.Icon, &city.Path, &sections, &city.UserID,
	); err != nil {
		return models.City{}, err
	}
	if err := json.Unmarshal([]byte(highlights), &city.Highlights); err != nil {
		return models.City{}, fmt.Errorf("decode highlights: %w", err)
	}
	if err := json.Unmarshal([]byte(sections), &city.Sections); err != nil {
		return models.City{}, fmt.Errorf("decode sections: %w", err)
	}
	city.Normalize()
	return city, nil
}

func encodeCity(city models.City) (highlights, sections string, err error) {
	city.Normalize()
	h, err := json.Marshal(city.Highlights)
	if err != nil {
		return "", "", fmt.Errorf("encode highlights: %w", err)
	}
	sec, err := json.Marshal(city.Sections)
	if err != nil {
		return "", "", fmt.Errorf("encode sections: %w", err)
	}
	return string(h), string(sec), nil
}

func (s *Store) listCities(ctx context.Context, where string, args ...any) ([]models.City, error) {
	rows, err := s.db.QueryContext(ctx, s.d.rebind("SELECT "+cityColumns+" FROM cities "+where+" ORDER BY seq ASC"), args...)
	if err != nil {
		return nil, fmt.Errorf("list cities: %w", err)
	}
	defer rows.Close()

	cities := []models.City{}
	for rows.Next() {
		city, err := scanCity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan city: %w", err)
		}
		cities = append(cities, city)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cities: %w", err)
	}
	return cities, nil
}

func (s *Store) getCity(ctx context.Context, q queryer, id string) (models.City, error) {
	row := q.QueryRowContext(ctx, s.d.rebind("SELECT "+cityColumns+" FROM cities WHERE id = ?"), id)
	city, err := scanCity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.City{}, database.ErrNotFound
	}
	if err != nil {
		return models.City{}, fmt.Errorf("get city: %w", err)
	}
	return city, nil
}

// ListCities returns every city in insertion order.
func (s *Store) ListCities(ctx context.Context) ([]models.City, error) {
	return s.listCities(ctx, "")
}

// ListCitiesByUser returns the cities owned by userID.
func (s *Store) ListCitiesByUser(ctx context.Context, userID string) ([]models.City, error) {
	if userID == "" {
		return []models.City{}, nil
	}
	return s.listCities(ctx, "WHERE user_id = ?", userID)
}

// GetCity returns one city by id.
func (s *Store) GetCity(ctx context.Context, id string) (models.City, error) {
	return s.getCity(ctx, s.db, id)
}

func (s *Store) insertCity(ctx context.Context, q queryer, city models.City) error {
	highlights, sections, err := encodeCity(city)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx,
		s.d.rebind("INSERT INTO cities ("+cityColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"),
		city.ID, city.Name, city.Country, city.Description, city.Population,
		highlights, city.Icon, city.Path, sections, city.UserID,
	)
	return err
}

// CreateCity inserts city, generating an id when it has none.
func (s *Store) CreateCity(ctx context.Context, city models.City) (models.City, error) {
	if city.ID == "" {
		city.ID = uuid.NewString()
	}
	city.Normalize()
	if err := s.insertCity(ctx, s.db, city); err != nil {
		if s.d.uniqueViolation(err) {
			return models.City{}, database.ErrAlreadyExists
		}
		return models.City{}, fmt.Errorf("create city: %w", err)
	}
	return city, nil
}

// UpdateCity merges patch into the stored city.
func (s *Store) UpdateCity(ctx context.Context, id string, patch models.CityPatch) (models.City, error) {
	var updated models.City
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		city, err := s.getCity(ctx, tx, id)
		if err != nil {
			return err
		}
		patch.Apply(&city)
		highlights, sections, err := encodeCity(city)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			s.d.rebind(`UPDATE cities SET name = ?, country = ?, description = ?, population = ?,
			 highlights = ?, icon = ?, path = ?, sections = ? WHERE id = ?`),
			city.Name, city.Country, city.Description, city.Population,
			highlights, city.Icon, city.Path, sections, id,
		); err != nil {
			return fmt.Errorf("update city: %w", err)
		}
		updated = city
		return nil
	})
	if err != nil {
		return models.City{}, err
	}
	return updated, nil
}

// DeleteCity removes the city and returns it.
func (s *Store) DeleteCity(ctx context.Context, id string) (models.City, error) {
	var deleted models.City
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		city, err := s.getCity(ctx, tx, id)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, s.d.rebind("DELETE FROM cities WHERE id = ?"), id); err != nil {
			return fmt.Errorf("delete city: %w", err)
		}
		deleted = city
		return nil
	})
	if err != nil {
		return models.City{}, err
	}
	return deleted, nil
}

// GetUserByEmail finds a user by case-insensitive email. Emails are stored lower-cased.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	var u models.User
	err := s.db.QueryRowContext(ctx,
		s.d.rebind("SELECT "+userColumns+" FROM users WHERE email = ?"),
		strings.ToLower(email),
	).Scan(&u.ID, &u.Email, &u.Password)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, database.ErrNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// CreateUser inserts user with a lower-cased email.
func (s *Store) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	user.Email = strings.ToLower(user.Email)
	if user.ID == "" {
		user.ID = "user-" + uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		s.d.rebind("INSERT INTO users ("+userColumns+") VALUES (?, ?, ?)"),
		user.ID, user.Email, user.Password,
	)
	if err != nil {
		if s.d.uniqueViolation(err) {
			return models.User{}, database.ErrAlreadyExists
		}
		return models.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// Seed writes data.Items and data.Cities. Without force each table is seeded
// at most once, recorded in store_state; a table that was already holding rows
// when first seen is marked without being touched.
func (s *Store) Seed(ctx context.Context, data database.SeedData, force bool) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		seedItems, err := s.shouldSeed(ctx, tx, "items", force)
		if err != nil {
			return err
		}
		if seedItems {
			for _, item := range data.Items {
				if _, err := tx.ExecContext(ctx,
					s.d.rebind("INSERT INTO items ("+itemColumns+") VALUES (?, ?, ?, ?, ?)"),
					item.ID, item.Title, item.Description, item.Completed, item.CreatedAt,
				); err != nil {
					return fmt.Errorf("seed item %s: %w", item.ID, err)
				}
			}
		}

		seedCities, err := s.shouldSeed(ctx, tx, "cities", force)
		if err != nil {
			return err
		}
		if seedCities {
			for _, city := range data.Cities {
				if city.ID == "" {
					city.ID = uuid.NewString()
				}
				if err := s.insertCity(ctx, tx, city); err != nil {
					return fmt.Errorf("seed city %s: %w", city.ID, err)
				}
			}
		}
		if seedItems || seedCities {
			s.log.Info("seed applied", zap.Bool("items", seedItems), zap.Bool("cities", seedCities))
		}
		return nil
	})
}

// shouldSeed decides whether table gets the seed and marks it as seeded. Forced
// seeding clears the table first.
func (s *Store) shouldSeed(ctx context.Context, tx *sql.Tx, table string, force bool) (bool, error) {
	key := stateSeededPrefix + table
	if force {
		if table == "items" {
			if err := s.raiseItemHighWater(ctx, tx); err != nil {
				return false, err
			}
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return false, fmt.Errorf("clear %s: %w", table, err)
		}
		return true, s.setState(ctx, tx, key, time.Now().UTC().UnixMilli())
	}

	_, seeded, err := s.getState(ctx, tx, key)
	if err != nil || seeded {
		return false, err
	}
	var n int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return false, fmt.Errorf("count %s: %w", table, err)
	}
	if err := s.setState(ctx, tx, key, time.Now().UTC().UnixMilli()); err != nil {
		return false, err
	}
	return n == 0, nil
}

func (s *Store) itemIDs(ctx context.Context, q queryer) ([]models.Item, error) {
	rows, err := q.QueryContext(ctx, "SELECT id FROM items")
	if err != nil {
		return nil, fmt.Errorf("list item ids: %w", err)
	}
	defer rows.Close()
	var items []models.Item
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan item id: %w", err)
		}
		items = append(items, models.Item{ID: id})
	}
	return items, rows.Err()
}

// raiseItemHighWater records every current item id before some leave the table.
func (s *Store) raiseItemHighWater(ctx context.Context, tx *sql.Tx) error {
	mark, _, err := s.getState(ctx, tx, stateItemHighWater)
	if err != nil {
		return err
	}
	ids, err := s.itemIDs(ctx, tx)
	if err != nil {
		return err
	}
	if raised := database.ItemHighWater(ids, mark); raised != mark {
		return s.setState(ctx, tx, stateItemHighWater, raised)
	}
	return nil
}

func (s *Store) getState(ctx context.Context, q queryer, name string) (int64, bool, error) {
	var value int64
	err := q.QueryRowContext(ctx, s.d.rebind("SELECT value FROM store_state WHERE name = ?"), name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read state %s: %w", name, err)
	}
	return value, true, nil
}

func (s *Store) setState(ctx context.Context, q queryer, name string, value int64) error {
	if _, err := q.ExecContext(ctx,
		s.d.rebind("INSERT INTO store_state (name, value) VALUES (?, ?) ON CONFLICT (name) DO UPDATE SET value = excluded.value"),
		name, value,
	); err != nil {
		return fmt.Errorf("write state %s: %w", name, err)
	}
	return nil
}
