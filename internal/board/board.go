// Package board keeps each user's in-memory bill list and decides which
// fetch result is allowed to replace it.
package board

import (
	"context"
	"slices"
	"strconv"
	"sync"
	"time"

	"walletwise/internal/cache"
	"walletwise/internal/core"
)

// Fetcher loads the full bill list from the bill store.
type Fetcher func(ctx context.Context) ([]core.Bill, error)

// StaleObserver is told whenever a fetch result arrives too late to be used.
type StaleObserver interface {
	StaleRefresh()
}

// Result describes the outcome of one Refresh.
type Result struct {
	Bills      []core.Bill
	Generation uint64
	// Applied is false when a newer fetch was issued while this one was in flight.
	Applied bool
}

// Board is one user's bill list. The list is only ever replaced wholesale:
// a fetch result is applied only if no newer fetch was issued after it.
type Board struct {
	mu       sync.Mutex
	issued   uint64
	applied  uint64
	bills    []core.Bill
	loadedAt time.Time
	observer StaleObserver
}

func New(observer StaleObserver) *Board {
	return &Board{observer: observer}
}

// Refresh fetches and installs a new list. When the result is stale the
// returned Result carries the list currently installed instead.
func (b *Board) Refresh(ctx context.Context, fetch Fetcher) (Result, error) {
	b.mu.Lock()
	b.issued++
	gen := b.issued
	b.mu.Unlock()

	fetched, err := fetch(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		return Result{Bills: slices.Clone(b.bills), Generation: gen}, err
	}
	if gen != b.issued {
		if b.observer != nil {
			b.observer.StaleRefresh()
		}
		return Result{Bills: slices.Clone(b.bills), Generation: gen}, nil
	}
	b.bills = slices.Clone(fetched)
	b.applied = gen
	b.loadedAt = time.Now()
	return Result{Bills: slices.Clone(b.bills), Generation: gen, Applied: true}, nil
}

// Snapshot returns a copy of the installed list and whether any fetch has
// been applied yet.
func (b *Board) Snapshot() ([]core.Bill, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.bills), b.applied > 0
}

// Find looks a bill up in the installed list.
func (b *Board) Find(id int64) (core.Bill, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, bill := range b.bills {
		if bill.ID == id {
			return bill, true
		}
	}
	return core.Bill{}, false
}

// LoadedAt is the time the installed list was fetched.
func (b *Board) LoadedAt() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loadedAt
}

// Registry hands out one Board per user, dropping idle ones.
type Registry struct {
	boards   *cache.LRUCache[*Board]
	observer StaleObserver
}

func NewRegistry(size int, ttl time.Duration, observer StaleObserver) *Registry {
	return &Registry{
		boards:   cache.NewLRUCache[*Board](size, ttl),
		observer: observer,
	}
}

// For returns the board of userID, creating an empty one when needed.
func (r *Registry) For(userID int64) *Board {
	return r.boards.GetOrCreate(key(userID), func() *Board { return New(r.observer) })
}

// Forget drops the board of userID, e.g. on logout.
func (r *Registry) Forget(userID int64) {
	r.boards.Delete(key(userID))
}

// Cleaner exposes the underlying cache to the cleanup manager.
func (r *Registry) Cleaner() cache.Cleaner {
	return r.boards
}

func key(userID int64) string {
	return strconv.FormatInt(userID, 10)
}
