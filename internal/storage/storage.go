package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maltedev/amazon-label-extractor/internal/models"
)

var ErrNotFound = errors.New("product not found")

// ProductStore keeps products submitted through the API.
type ProductStore interface {
	// Add assigns ID and CreatedAt when they are empty and stores p.
	Add(ctx context.Context, p *models.SubmittedProduct) error
	// List returns every stored product, oldest first.
	List(ctx context.Context) ([]models.SubmittedProduct, error)
	Get(ctx context.Context, id string) (*models.SubmittedProduct, error)
}

// Prepare fills in the ID and timestamp of a new product.
func Prepare(p *models.SubmittedProduct) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if p.ImageURLs == nil {
		p.ImageURLs = []string{}
	}
}

// MemoryStore holds products for the life of the process.
type MemoryStore struct {
	mu       sync.RWMutex
	products []models.SubmittedProduct
	index    map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{index: make(map[string]int)}
}

func (s *MemoryStore) Add(_ context.Context, p *models.SubmittedProduct) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	Prepare(p)
	s.put(*p)
	return nil
}

func (s *MemoryStore) put(p models.SubmittedProduct) {
	p.ProductRecord = *p.ProductRecord.Clone()
	if i, ok := s.index[p.ID]; ok {
		s.products[i] = p
		return
	}
	s.index[p.ID] = len(s.products)
	s.products = append(s.products, p)
}

func (s *MemoryStore) List(_ context.Context) ([]models.SubmittedProduct, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.SubmittedProduct, len(s.products))
	copy(out, s.products)
	return out, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*models.SubmittedProduct, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.index[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	p := s.products[i]
	return &p, nil
}

// FileStore is a MemoryStore persisted as a JSON array after every write.
type FileStore struct {
	mem      *MemoryStore
	filename string
}

func NewFileStore(filename string) (*FileStore, error) {
	fs := &FileStore{
		mem:      NewMemoryStore(),
		filename: filename,
	}

	if err := fs.load(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	return fs, nil
}

func (fs *FileStore) Add(_ context.Context, p *models.SubmittedProduct) error {
	fs.mem.mu.Lock()
	defer fs.mem.mu.Unlock()

	Prepare(p)

	// The file is written first so a failed save leaves memory untouched.
	products := append([]models.SubmittedProduct(nil), fs.mem.products...)
	if i, ok := fs.mem.index[p.ID]; ok {
		products[i] = *p
	} else {
		products = append(products, *p)
	}
	if err := fs.save(products); err != nil {
		return err
	}

	fs.mem.put(*p)
	return nil
}

func (fs *FileStore) List(ctx context.Context) ([]models.SubmittedProduct, error) {
	return fs.mem.List(ctx)
}

func (fs *FileStore) Get(ctx context.Context, id string) (*models.SubmittedProduct, error) {
	return fs.mem.Get(ctx, id)
}

// save must be called with the write lock held.
func (fs *FileStore) save(products []models.SubmittedProduct) error {
	data, err := json.MarshalIndent(products, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode products: %w", err)
	}

	// Write to temp file first for atomicity
	tmp, err := os.CreateTemp(filepath.Dir(fs.filename), filepath.Base(fs.filename)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write products: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write products: %w", err)
	}

	return os.Rename(tmp.Name(), fs.filename)
}

func (fs *FileStore) load() error {
	data, err := os.ReadFile(fs.filename)
	if err != nil {
		return err
	}

	var products []models.SubmittedProduct
	if err := json.Unmarshal(data, &products); err != nil {
		return fmt.Errorf("failed to decode %s: %w", fs.filename, err)
	}

	sort.SliceStable(products, func(i, j int) bool {
		return products[i].CreatedAt.Before(products[j].CreatedAt)
	})
	for _, p := range products {
		Prepare(&p)
		fs.mem.put(p)
	}
	return nil
}
