package resource

import (
	"context"
	"strings"
	"sync"
)

// Source is the per-resource list API a provider reads through. It is backed
// either by the store directly or by a remote client.
type Source[T any] interface {
	List(ctx context.Context, q Query) ([]T, error)
	Count(ctx context.Context, search string) (int, error)
}

// Provider binds a Source to the sort and search state of one table view.
// Row ranges are supplied per call, so concurrent GetRows calls with
// different ranges are independent.
type Provider[T any] struct {
	schema   Schema[T]
	source   Source[T]
	notifier *Notifier

	mu      sync.RWMutex
	sorting Sorting
	search  string
	version uint64
}

// NewProvider creates a provider over source for records described by schema.
func NewProvider[T any](schema Schema[T], source Source[T]) *Provider[T] {
	return &Provider[T]{
		schema:   schema,
		source:   source,
		notifier: NewNotifier(),
	}
}

// Schema returns the record schema the provider serves.
func (p *Provider[T]) Schema() Schema[T] {
	return p.schema
}

// GetRows fetches the rows in r using the current sort and search.
func (p *Provider[T]) GetRows(ctx context.Context, r Range) (Page[T], error) {
	if err := r.Validate(); err != nil {
		return Page[T]{}, err
	}
	p.mu.RLock()
	query := Query{Sort: p.sorting.Clone(), Range: r, Search: p.search}
	p.mu.RUnlock()

	rows, err := p.source.List(ctx, query)
	if err != nil {
		return Page[T]{}, err
	}
	return NewPage(rows, r), nil
}

// RowCount returns the number of rows matching the current search. The count
// is advisory; any failure reports an unknown total.
func (p *Provider[T]) RowCount(ctx context.Context) (int, bool) {
	p.mu.RLock()
	search := p.search
	p.mu.RUnlock()

	count, err := p.source.Count(ctx, search)
	if err != nil || count < 0 {
		return 0, false
	}
	return count, true
}

// SetSorting replaces the sort order. It does not notify subscribers; the
// caller decides when to refetch.
func (p *Provider[T]) SetSorting(sorting Sorting) {
	p.mu.Lock()
	p.sorting = sorting.Clone()
	p.mu.Unlock()
}

// Sorting returns the current sort order.
func (p *Provider[T]) Sorting() Sorting {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sorting.Clone()
}

// SetSearch replaces the trimmed search term and notifies subscribers when it
// changed.
func (p *Provider[T]) SetSearch(search string) {
	search = strings.TrimSpace(search)
	p.mu.Lock()
	if search == p.search {
		p.mu.Unlock()
		return
	}
	p.search = search
	p.version++
	p.mu.Unlock()
	p.notifier.Broadcast()
}

// Search returns the current search term.
func (p *Provider[T]) Search() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.search
}

// Version increases every time the observed filter state changes.
func (p *Provider[T]) Version() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.version
}

// Subscribe observes filter state: the channel is pinged whenever the search
// changes.
func (p *Provider[T]) Subscribe() (<-chan struct{}, func()) {
	return p.notifier.Subscribe()
}
