package jsonstore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/GitDonce/TwoGuys/database"
	"github.com/GitDonce/TwoGuys/models"
)

func openTempStore(t *testing.T) (*Store, string) {
	t.Helper()
	seed, err := database.DefaultSeed()
	require.NoError(t, err)
	dir := filepath.Join(t.TempDir(), "data")
	store, err := Open(dir, seed, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, dir
}

func TestOpenRequiresDir(t *testing.T) {
	_, err := Open(" ", database.SeedData{}, nil)
	assert.Error(t, err)
}

func TestOpenSeedsMissingFiles(t *testing.T) {
	store, dir := openTempStore(t)
	ctx := context.Background()

	items, err := store.ListItems(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 3)

	cities, err := store.ListCities(ctx)
	require.NoError(t, err)
	assert.Len(t, cities, 2)

	raw, err := os.ReadFile(filepath.Join(dir, itemsFileName))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), "[\n  {\n    \"id\": \"1\""), "expected two-space indented JSON, got %q", raw[:20])

	_, err = os.Stat(filepath.Join(dir, usersFileName))
	assert.True(t, os.IsNotExist(err), "users file should only appear on first registration")
}

func TestOpenKeepsExistingFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, itemsFileName), []byte("[]"), 0o644))

	seed, err := database.DefaultSeed()
	require.NoError(t, err)
	store, err := Open(dir, seed, nil)
	require.NoError(t, err)

	items, err := store.ListItems(context.Background())
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestItemLifecycle(t *testing.T) {
	store, _ := openTempStore(t)
	ctx := context.Background()

	created, err := store.CreateItem(ctx, models.Item{Title: "Register residence", Description: "Visit the migration office", CreatedAt: "2024-02-01T10:00:00.000Z"})
	require.NoError(t, err)
	assert.Equal(t, "4", created.ID)
	assert.False(t, created.Completed)

	got, err := store.GetItem(ctx, "4")
	require.NoError(t, err)
	assert.Equal(t, created, got)

	done := true
	title := "Register residence permit"
	updated, err := store.UpdateItem(ctx, "4", models.ItemPatch{Title: &title, Completed: &done})
	require.NoError(t, err)
	assert.Equal(t, title, updated.Title)
	assert.Equal(t, "Visit the migration office", updated.Description)
	assert.True(t, updated.Completed)

	deleted, err := store.DeleteItem(ctx, "4")
	require.NoError(t, err)
	assert.Equal(t, updated, deleted)

	_, err = store.GetItem(ctx, "4")
	assert.ErrorIs(t, err, database.ErrNotFound)
	_, err = store.DeleteItem(ctx, "4")
	assert.ErrorIs(t, err, database.ErrNotFound)
	_, err = store.UpdateItem(ctx, "4", models.ItemPatch{})
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestCreateItemNeverReusesIDs(t *testing.T) {
	store, _ := openTempStore(t)
	ctx := context.Background()

	_, err := store.DeleteItem(ctx, "2")
	require.NoError(t, err)

	created, err := store.CreateItem(ctx, models.Item{Title: "t", Description: "d"})
	require.NoError(t, err)
	assert.Equal(t, "4", created.ID)

	items, err := store.ListItems(ctx)
	require.NoError(t, err)
	seen := map[string]bool{}
	for _, it := range items {
		assert.False(t, seen[it.ID], "duplicate id %s", it.ID)
		seen[it.ID] = true
	}
}

func TestCreateItemAfterDeletingSeededLargestID(t *testing.T) {
	store, _ := openTempStore(t)
	ctx := context.Background()

	_, err := store.DeleteItem(ctx, "3")
	require.NoError(t, err)

	created, err := store.CreateItem(ctx, models.Item{Title: "t", Description: "d"})
	require.NoError(t, err)
	assert.Equal(t, "4", created.ID)
}

func TestCreateItemAfterDeletingLargestID(t *testing.T) {
	store, dir := openTempStore(t)
	ctx := context.Background()

	created, err := store.CreateItem(ctx, models.Item{Title: "t", Description: "d"})
	require.NoError(t, err)
	require.Equal(t, "4", created.ID)
	_, err = store.DeleteItem(ctx, "4")
	require.NoError(t, err)
	_, err = store.DeleteItem(ctx, "3")
	require.NoError(t, err)

	created, err = store.CreateItem(ctx, models.Item{Title: "t", Description: "d"})
	require.NoError(t, err)
	assert.Equal(t, "5", created.ID)

	for _, id := range []string{"1", "2", "5"} {
		_, err = store.DeleteItem(ctx, id)
		require.NoError(t, err)
	}

	// A fresh handle on the same directory must pick up the persisted mark.
	seed, err := database.DefaultSeed()
	require.NoError(t, err)
	reopened, err := Open(dir, seed, nil)
	require.NoError(t, err)
	created, err = reopened.CreateItem(ctx, models.Item{Title: "t", Description: "d"})
	require.NoError(t, err)
	assert.Equal(t, "6", created.ID)
}

func TestConcurrentCreatesGetDistinctIDs(t *testing.T) {
	store, _ := openTempStore(t)
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.CreateItem(ctx, models.Item{Title: "t", Description: "d"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	items, err := store.ListItems(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 3+n)
	ids := map[string]bool{}
	for _, it := range items {
		ids[it.ID] = true
	}
	assert.Len(t, ids, 3+n)
	next, _ := database.NextItemID(items, 0)
	assert.Equal(t, "24", next)
}

func TestCorruptItemsFileIsRestored(t *testing.T) {
	store, dir := openTempStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, itemsFileName), []byte("{not json"), 0o644))

	items, err := store.ListItems(context.Background())
	require.NoError(t, err)
	assert.Len(t, items, 3)

	raw, err := os.ReadFile(filepath.Join(dir, itemsFileName))
	require.NoError(t, err)
	var onDisk []models.Item
	require.NoError(t, json.Unmarshal(raw, &onDisk))
	assert.Len(t, onDisk, 3)
}

func TestCorruptCitiesFileFails(t *testing.T) {
	store, dir := openTempStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, citiesFileName), []byte("nope"), 0o644))

	_, err := store.ListCities(context.Background())
	assert.Error(t, err)
}

func TestCityLifecycle(t *testing.T) {
	store, _ := openTempStore(t)
	ctx := context.Background()

	created, err := store.CreateCity(ctx, models.City{
		Name:        "Kaunas",
		Country:     "Lithuania",
		Description: "Second largest city",
		Path:        "/kaunas",
		UserID:      "user-1",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.NotNil(t, created.Highlights)
	assert.NotNil(t, created.Sections)

	owned, err := store.ListCitiesByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, created.ID, owned[0].ID)

	none, err := store.ListCitiesByUser(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, none)

	pop := "300,000"
	updated, err := store.UpdateCity(ctx, created.ID, models.CityPatch{Population: &pop, Highlights: []string{"Old Town"}})
	require.NoError(t, err)
	assert.Equal(t, pop, updated.Population)
	assert.Equal(t, []string{"Old Town"}, updated.Highlights)
	assert.Equal(t, "Kaunas", updated.Name)

	deleted, err := store.DeleteCity(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, updated, deleted)

	_, err = store.GetCity(ctx, created.ID)
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestCreateCityRejectsDuplicateID(t *testing.T) {
	store, _ := openTempStore(t)
	_, err := store.CreateCity(context.Background(), models.City{ID: "vilnius", Name: "Vilnius"})
	assert.ErrorIs(t, err, database.ErrAlreadyExists)
}

func TestUsers(t *testing.T) {
	store, _ := openTempStore(t)
	ctx := context.Background()

	_, err := store.GetUserByEmail(ctx, "ana@example.com")
	assert.ErrorIs(t, err, database.ErrNotFound)

	created, err := store.CreateUser(ctx, models.User{Email: "Ana@Example.com", Password: "hash"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(created.ID, "user-"))
	assert.Equal(t, "ana@example.com", created.Email)

	got, err := store.GetUserByEmail(ctx, "ANA@example.COM")
	require.NoError(t, err)
	assert.Equal(t, created, got)

	_, err = store.CreateUser(ctx, models.User{Email: "ana@EXAMPLE.com", Password: "other"})
	assert.ErrorIs(t, err, database.ErrAlreadyExists)
}

func TestSeed(t *testing.T) {
	store, dir := openTempStore(t)
	ctx := context.Background()

	_, err := store.CreateItem(ctx, models.Item{Title: "extra", Description: "d"})
	require.NoError(t, err)

	seed, err := database.DefaultSeed()
	require.NoError(t, err)

	require.NoError(t, store.Seed(ctx, seed, false))
	items, err := store.ListItems(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 4, "non-forced seed keeps existing records")

	require.NoError(t, store.Seed(ctx, seed, true))
	items, err = store.ListItems(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 3)

	require.NoError(t, os.Remove(filepath.Join(dir, citiesFileName)))
	require.NoError(t, store.Seed(ctx, seed, false))
	cities, err := store.ListCities(ctx)
	require.NoError(t, err)
	assert.Len(t, cities, 2, "missing file is seeded")
}

func TestEmptiedCollectionsStayEmpty(t *testing.T) {
	store, dir := openTempStore(t)
	ctx := context.Background()

	for _, id := range []string{"1", "2", "3"} {
		_, err := store.DeleteItem(ctx, id)
		require.NoError(t, err)
	}

	seed, err := database.DefaultSeed()
	require.NoError(t, err)
	require.NoError(t, store.Seed(ctx, seed, false))

	reopened, err := Open(dir, seed, nil)
	require.NoError(t, err)
	items, err := reopened.ListItems(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestCanceledContext(t *testing.T) {
	store, _ := openTempStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.ListItems(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = store.CreateUser(ctx, models.User{Email: "a@b.co"})
	assert.ErrorIs(t, err, context.Canceled)
}
