package storage

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/amazon-label-extractor/internal/models"
)

func product(name string) *models.SubmittedProduct {
	return &models.SubmittedProduct{
		ProductRecord: models.ProductRecord{
			Name:       models.StringPtr(name),
			MRP:        models.StringPtr("₹499"),
			ImageURLs:  []string{"https://m.media-amazon.com/images/I/a.jpg"},
			Confidence: 0.29,
		},
		SourceURL: "https://www.amazon.in/dp/B000TEST",
	}
}

func TestStores(t *testing.T) {
	stores := map[string]func(t *testing.T) ProductStore{
		"memory": func(t *testing.T) ProductStore { return NewMemoryStore() },
		"file": func(t *testing.T) ProductStore {
			fs, err := NewFileStore(filepath.Join(t.TempDir(), "products.json"))
			require.NoError(t, err)
			return fs
		},
	}

	for name, newStore := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t)

			list, err := store.List(ctx)
			require.NoError(t, err)
			assert.Empty(t, list)

			first := product("Tea")
			second := product("Coffee")
			require.NoError(t, store.Add(ctx, first))
			require.NoError(t, store.Add(ctx, second))

			assert.NotEmpty(t, first.ID)
			assert.NotEqual(t, first.ID, second.ID)
			assert.False(t, first.CreatedAt.IsZero())

			list, err = store.List(ctx)
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "Tea", *list[0].Name)
			assert.Equal(t, "Coffee", *list[1].Name)

			got, err := store.Get(ctx, second.ID)
			require.NoError(t, err)
			assert.Equal(t, "Coffee", *got.Name)

			_, err = store.Get(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestMemoryStore_CopiesOnWrite(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	p := product("Tea")
	require.NoError(t, store.Add(ctx, p))
	p.ImageURLs[0] = "changed"

	got, err := store.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://m.media-amazon.com/images/I/a.jpg", got.ImageURLs[0])
}

func TestMemoryStore_Concurrent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, store.Add(ctx, product("Tea")))
			_, err := store.List(ctx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	list, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 50)
}

func TestFileStore_Reload(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "products.json")

	fs, err := NewFileStore(path)
	require.NoError(t, err)
	p := product("Tea")
	require.NoError(t, fs.Add(ctx, p))

	reopened, err := NewFileStore(path)
	require.NoError(t, err)

	got, err := reopened.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Tea", *got.Name)
	assert.Equal(t, "₹499", *got.MRP)
	assert.Equal(t, p.SourceURL, got.SourceURL)
	assert.True(t, p.CreatedAt.Equal(got.CreatedAt))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewFileStore(path)
	assert.Error(t, err)
}

func TestFileStore_FailedSaveKeepsMemory(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		setup func(t *testing.T, fs *FileStore) *models.SubmittedProduct
		want  []string
	}{
		{
			name: "new product",
			setup: func(t *testing.T, fs *FileStore) *models.SubmittedProduct {
				return product("Tea")
			},
			want: nil,
		},
		{
			name: "replacing a stored product",
			setup: func(t *testing.T, fs *FileStore) *models.SubmittedProduct {
				p := product("Tea")
				require.NoError(t, fs.Add(ctx, p))
				return &models.SubmittedProduct{
					ID:            p.ID,
					CreatedAt:     p.CreatedAt,
					ProductRecord: models.ProductRecord{Name: models.StringPtr("Coffee")},
				}
			},
			want: []string{"Tea"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs, err := NewFileStore(filepath.Join(t.TempDir(), "products.json"))
			require.NoError(t, err)
			p := tt.setup(t, fs)

			fs.filename = filepath.Join(t.TempDir(), "missing", "products.json")
			assert.Error(t, fs.Add(ctx, p))

			list, err := fs.List(ctx)
			require.NoError(t, err)
			var names []string
			for _, got := range list {
				names = append(names, *got.Name)
			}
			assert.Equal(t, tt.want, names)
		})
	}
}
