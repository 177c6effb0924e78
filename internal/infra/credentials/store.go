package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

const (
	ProviderGemini = "gemini"
)

// ErrBlankKey is returned by Set when the key is empty after trimming.
var ErrBlankKey = errors.New("credentials: api key is required")

// Store persists a single provider API key. Get reports ok=false when no key
// has been saved.
type Store interface {
	Get(ctx context.Context) (key string, ok bool, err error)
	Set(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// HasKey reports whether the store currently holds a non-blank key.
func HasKey(ctx context.Context, s Store) (bool, error) {
	key, ok, err := s.Get(ctx)
	if err != nil {
		return false, err
	}
	return ok && strings.TrimSpace(key) != "", nil
}

func normalizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", ErrBlankKey
	}
	return key, nil
}

// MemoryStore keeps the key in process memory only.
type MemoryStore struct {
	mu  sync.RWMutex
	key string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Get(ctx context.Context) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.key, m.key != "", nil
}

func (m *MemoryStore) Set(ctx context.Context, key string) error {
	key, err := normalizeKey(key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.key = key
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.key = ""
	m.mu.Unlock()
	return nil
}

// Kind names a store backend.
type Kind string

const (
	KindFile     Kind = "file"
	KindPostgres Kind = "postgres"
	KindMemory   Kind = "memory"
)

// ParseKind validates a configured backend name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindFile, KindPostgres, KindMemory:
		return k, nil
	case "":
		return KindFile, nil
	default:
		return "", fmt.Errorf("credentials: unsupported store %q", s)
	}
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*FileStore)(nil)
	_ Store = (*SQLStore)(nil)
)
