package studio

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"studio/internal/imagegen"
)

var (
	ErrNotFound    = errors.New("studio: surface not found")
	ErrTooManyOpen = errors.New("studio: too many open surfaces")
)

const (
	// DefaultMaxSurfaces bounds how many surfaces may be open at once.
	DefaultMaxSurfaces = 256
	// DefaultIdleTTL is how long an untouched surface survives.
	DefaultIdleTTL = time.Hour
)

// Sessions tracks open surfaces. All surfaces share one preview registry so
// previews can be served by handle alone.
type Sessions struct {
	runner   Runner
	previews *PreviewRegistry
	max      int
	now      func() time.Time

	mu       sync.RWMutex
	surfaces map[string]*Surface
}

func NewSessions(runner Runner, max int) *Sessions {
	if max <= 0 {
		max = DefaultMaxSurfaces
	}
	return &Sessions{
		runner:   runner,
		previews: NewPreviewRegistry(),
		max:      max,
		now:      time.Now,
		surfaces: make(map[string]*Surface),
	}
}

// Previews returns the shared preview registry.
func (s *Sessions) Previews() *PreviewRegistry {
	return s.previews
}

// Open creates a surface for mode.
func (s *Sessions) Open(mode imagegen.Mode) (*Surface, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.surfaces) >= s.max {
		return nil, ErrTooManyOpen
	}
	surface := NewSurface(uuid.NewString(), mode, s.runner, s.previews)
	surface.now = s.now
	surface.touched = s.now()
	s.surfaces[surface.ID()] = surface
	return surface, nil
}

func (s *Sessions) Get(id string) (*Surface, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	surface, ok := s.surfaces[id]
	if !ok {
		return nil, ErrNotFound
	}
	return surface, nil
}

// Close releases the surface and all its previews.
func (s *Sessions) Close(id string) error {
	s.mu.Lock()
	surface, ok := s.surfaces[id]
	delete(s.surfaces, id)
	s.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	surface.Close()
	return nil
}

// CloseAll releases every surface.
func (s *Sessions) CloseAll() {
	s.mu.Lock()
	open := s.surfaces
	s.surfaces = make(map[string]*Surface)
	s.mu.Unlock()
	for _, surface := range open {
		surface.Close()
	}
}

// Len reports the number of open surfaces.
func (s *Sessions) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.surfaces)
}

// EvictIdle closes every surface untouched for longer than ttl and returns
// how many were closed. Surfaces with a run in flight are kept.
func (s *Sessions) EvictIdle(ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	now := s.now()
	var stale []*Surface
	s.mu.Lock()
	for id, surface := range s.surfaces {
		if surface.idleFor(now) > ttl {
			stale = append(stale, surface)
			delete(s.surfaces, id)
		}
	}
	s.mu.Unlock()
	for _, surface := range stale {
		surface.Close()
	}
	return len(stale)
}

// StartJanitor evicts idle surfaces periodically until ctx is cancelled. A
// non-positive ttl disables eviction.
func (s *Sessions) StartJanitor(ctx context.Context, ttl time.Duration, onEvict func(n int)) {
	if ttl <= 0 {
		return
	}
	interval := ttl / 2
	if interval > time.Minute {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.EvictIdle(ttl); n > 0 && onEvict != nil {
					onEvict(n)
				}
			}
		}
	}()
}
