// Package catalog owns the categorized keyword lists that drive spam
// detection. Categories keep the order in which they were first seen and
// keywords keep their insertion order within a category; both orders are
// observable through Flatten and the admin listing.
//
// Every mutation is persisted before it becomes visible: a failed write
// leaves the in-memory catalog exactly as it was.
package catalog

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Well-known category names. Unknown categories loaded from disk are kept
// and listed generically.
const (
	CategoryGambling = "gambling"
	CategoryAdult    = "adult"
	CategoryCrypto   = "crypto"
	CategoryCustom   = "custom"
)

var (
	// ErrEmptyKeyword is returned when a blank keyword is added.
	ErrEmptyKeyword = errors.New("catalog: empty keyword")

	// ErrPersist wraps storage failures during Add and Remove.
	ErrPersist = errors.New("catalog: persist failed")
)

// Persister writes the full catalog to durable storage.
type Persister interface {
	Save(categories Categories) error
}

// Change describes a committed mutation. It is handed to the observer after
// the new state has been persisted and published.
type Change struct {
	Op       string `json:"op"` // "add" or "remove"
	Keyword  string `json:"keyword"`
	Category string `json:"category"`
	Version  uint64 `json:"version"`
	Ts       int64  `json:"ts"`
}

// Snapshot is an immutable view of the catalog. Callers must not modify
// Categories or the slices inside it.
type Snapshot struct {
	Version    uint64
	UpdatedAt  time.Time
	Categories Categories
}

// Flatten returns every keyword in category-then-insertion order.
func (s Snapshot) Flatten() []string {
	out := make([]string, 0, s.Total())
	for _, c := range s.Categories {
		out = append(out, c.Keywords...)
	}
	return out
}

// Total returns the number of keywords across all categories.
func (s Snapshot) Total() int {
	n := 0
	for _, c := range s.Categories {
		n += len(c.Keywords)
	}
	return n
}

// Count returns the number of keywords in the named category.
func (s Snapshot) Count(category string) int {
	if i := s.Categories.index(category); i >= 0 {
		return len(s.Categories[i].Keywords)
	}
	return 0
}

// Catalog is the single owner of keyword state. Readers load the current
// snapshot without locking; writers are serialized by mu, which is held
// across building, persisting and publishing the next snapshot.
type Catalog struct {
	mu       sync.Mutex
	state    atomic.Pointer[Snapshot]
	store    Persister
	now      func() time.Time
	observer func(Change)
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithClock overrides the clock used for UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(c *Catalog) { c.now = now }
}

// WithObserver registers a callback for committed changes. It runs on the
// writer's goroutine after the writer lock is released.
func WithObserver(fn func(Change)) Option {
	return func(c *Catalog) { c.observer = fn }
}

// New creates a Catalog seeded with initial. A nil store keeps the catalog
// in memory only. The seed is not persisted until the first mutation.
func New(store Persister, initial Categories, opts ...Option) *Catalog {
	c := &Catalog{
		store: store,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.state.Store(&Snapshot{
		UpdatedAt:  c.now(),
		Categories: initial.normalize(),
	})
	return c
}

// Snapshot returns the current catalog state.
func (c *Catalog) Snapshot() Snapshot {
	return *c.state.Load()
}

// Flatten returns all keywords in category-then-insertion order.
func (c *Catalog) Flatten() []string {
	return c.Snapshot().Flatten()
}

// Add appends keyword to category (CategoryCustom when empty), creating the
// category if needed. It returns false without writing when the keyword is
// already present verbatim in that category.
func (c *Catalog) Add(keyword, category string) (bool, error) {
	if strings.TrimSpace(keyword) == "" {
		return false, ErrEmptyKeyword
	}
	if category == "" {
		category = CategoryCustom
	}

	c.mu.Lock()
	cur := c.Snapshot()
	next := cur.Categories.clone()
	idx := next.index(category)
	if idx < 0 {
		next = append(next, Category{Name: category})
		idx = len(next) - 1
	}
	if slices.Contains(next[idx].Keywords, keyword) {
		c.mu.Unlock()
		return false, nil
	}
	next[idx].Keywords = append(next[idx].Keywords, keyword)

	change, err := c.commit(cur, next, Change{Op: "add", Keyword: keyword, Category: category})
	c.mu.Unlock()
	if err != nil {
		return false, err
	}
	c.notify(change)
	return true, nil
}

// Remove deletes the first exact occurrence of keyword, scanning categories
// in order. A keyword duplicated across categories is only removed from the
// first one. It returns false when the keyword is absent everywhere.
func (c *Catalog) Remove(keyword string) (bool, error) {
	c.mu.Lock()
	cur := c.Snapshot()
	catIdx, kwIdx := -1, -1
	for i, cat := range cur.Categories {
		if j := slices.Index(cat.Keywords, keyword); j >= 0 {
			catIdx, kwIdx = i, j
			break
		}
	}
	if catIdx < 0 {
		c.mu.Unlock()
		return false, nil
	}

	next := cur.Categories.clone()
	next[catIdx].Keywords = slices.Delete(next[catIdx].Keywords, kwIdx, kwIdx+1)

	change, err := c.commit(cur, next, Change{Op: "remove", Keyword: keyword, Category: next[catIdx].Name})
	c.mu.Unlock()
	if err != nil {
		return false, err
	}
	c.notify(change)
	return true, nil
}

// commit persists next and publishes it. Must be called with mu held.
func (c *Catalog) commit(cur Snapshot, next Categories, change Change) (Change, error) {
	if c.store != nil {
		if err := c.store.Save(next); err != nil {
			return Change{}, fmt.Errorf("%w: %v", ErrPersist, err)
		}
	}

	snap := &Snapshot{
		Version:    cur.Version + 1,
		UpdatedAt:  c.now(),
		Categories: next,
	}
	c.state.Store(snap)

	change.Version = snap.Version
	change.Ts = snap.UpdatedAt.Unix()
	return change, nil
}

func (c *Catalog) notify(change Change) {
	if c.observer != nil {
		c.observer(change)
	}
}
