package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// MemoryStore is a bounded in-process LRU cache with per-entry expiry.
type MemoryStore struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	order      *list.List
	items      map[string]*list.Element
	now        func() time.Time
}

type memoryItem struct {
	key     string
	entry   *Entry
	expires time.Time
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMemoryTTL sets how long entries live. Zero disables expiry.
func WithMemoryTTL(ttl time.Duration) MemoryOption {
	return func(s *MemoryStore) {
		s.ttl = ttl
	}
}

// WithMaxEntries bounds the number of cached entries.
func WithMaxEntries(n int) MemoryOption {
	return func(s *MemoryStore) {
		if n > 0 {
			s.maxEntries = n
		}
	}
}

// NewMemoryStore creates an in-memory cache.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		ttl:        defaultTTL,
		maxEntries: defaultMaxEntries,
		order:      list.New(),
		items:      make(map[string]*list.Element),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, key string) (*Entry, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.items[key]
	if !ok {
		return nil, ErrNotFound
	}
	item := el.Value.(*memoryItem)
	if !item.expires.IsZero() && s.now().After(item.expires) {
		s.removeElement(el)
		return nil, ErrNotFound
	}
	s.order.MoveToFront(el)
	return copyEntry(item.entry), nil
}

// Set implements Store.
func (s *MemoryStore) Set(_ context.Context, key string, e *Entry) error {
	if err := validate(key, e); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var expires time.Time
	if s.ttl > 0 {
		expires = s.now().Add(s.ttl)
	}
	item := &memoryItem{key: key, entry: copyEntry(e), expires: expires}

	if el, ok := s.items[key]; ok {
		el.Value = item
		s.order.MoveToFront(el)
		return nil
	}
	s.items[key] = s.order.PushFront(item)
	for s.order.Len() > s.maxEntries {
		s.removeElement(s.order.Back())
	}
	return nil
}

// Len returns the number of entries, including expired ones not yet evicted.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}

func (s *MemoryStore) removeElement(el *list.Element) {
	s.order.Remove(el)
	delete(s.items, el.Value.(*memoryItem).key)
}
