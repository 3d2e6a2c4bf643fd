package console

import (
	"context"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/relayadmin/internal/resource"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultPageSize = 20

// TableConfig configures a Table.
type TableConfig struct {
	PageSize       int
	SearchDelay    time.Duration
	InitialSorting resource.Sorting
	Reload         *ReloadController
	Logger         *zap.Logger

	after afterFunc
}

// TableSnapshot is a consistent copy of a table's visible state.
type TableSnapshot[T any] struct {
	Rows        []T
	Range       resource.Range
	Requested   resource.Range
	Count       int
	CountKnown  bool
	Sorting     resource.Sorting
	Search      string
	SearchInput string
	Loading     bool
	Err         error
	Generation  uint64
}

// Table keeps one page of a resource in view. Every fetch is tagged with a
// generation; only responses for the latest generation touch visible state.
type Table[T any] struct {
	provider *resource.Provider[T]
	reload   *ReloadController
	logger   *zap.Logger
	search   *debouncer
	changes  *resource.Notifier
	pageSize int

	ctx    context.Context
	cancel context.CancelFunc
	loops  sync.WaitGroup

	mu          sync.Mutex
	idle        *sync.Cond
	inflight    int
	started     bool
	closed      bool
	generation  uint64
	requested   resource.Range
	rows        []T
	effective   resource.Range
	count       int
	countKnown  bool
	loading     bool
	err         error
	searchInput string
}

// NewTable creates a table over provider. The first page is fetched by Start.
func NewTable[T any](provider *resource.Provider[T], cfg TableConfig) *Table[T] {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	reload := cfg.Reload
	if reload == nil {
		reload = NewReloadController()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.InitialSorting != nil {
		provider.SetSorting(cfg.InitialSorting)
	}
	ctx, cancel := context.WithCancel(context.Background())
	table := &Table[T]{
		provider:    provider,
		reload:      reload,
		logger:      logger,
		search:      newDebouncer(cfg.SearchDelay, cfg.after),
		changes:     resource.NewNotifier(),
		pageSize:    pageSize,
		ctx:         ctx,
		cancel:      cancel,
		requested:   resource.Range{Start: 0, End: pageSize},
		rows:        []T{},
		searchInput: provider.Search(),
	}
	table.idle = sync.NewCond(&table.mu)
	return table
}

// Start subscribes to search and reload notifications and loads the first
// page. Calling it again has no effect.
func (t *Table[T]) Start() {
	t.mu.Lock()
	if t.started || t.closed {
		t.mu.Unlock()
		return
	}
	t.started = true
	t.mu.Unlock()

	searchChanges, unsubscribeSearch := t.provider.Subscribe()
	reloads, unsubscribeReload := t.reload.Subscribe()
	t.loops.Add(1)
	go func() {
		defer t.loops.Done()
		defer unsubscribeSearch()
		defer unsubscribeReload()
		for {
			select {
			case <-t.ctx.Done():
				return
			case <-searchChanges:
				t.mu.Lock()
				t.requested = resource.Range{Start: 0, End: t.pageSize}
				t.mu.Unlock()
				t.dispatch()
			case <-reloads:
				t.dispatch()
			}
		}
	}()
	t.dispatch()
}

// Close stops the watch loop, cancels in-flight fetches and waits for them.
func (t *Table[T]) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.mu.Unlock()

	t.search.Stop()
	t.cancel()
	t.loops.Wait()
	t.Wait()
}

// Wait blocks until no fetch is in flight.
func (t *Table[T]) Wait() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for t.inflight > 0 {
		t.idle.Wait()
	}
}

// Changes pings whenever the visible state changed.
func (t *Table[T]) Changes() (<-chan struct{}, func()) {
	return t.changes.Subscribe()
}

// Provider exposes the underlying provider.
func (t *Table[T]) Provider() *resource.Provider[T] {
	return t.provider
}

// SearchInput records typed text. The provider's search is replaced with the
// last value once typing pauses for the search delay.
func (t *Table[T]) SearchInput(text string) {
	t.mu.Lock()
	t.searchInput = text
	t.mu.Unlock()
	t.changes.Broadcast()

	t.search.Trigger(func() {
		t.provider.SetSearch(text)
	})
}

// ClickHeader makes field the primary sort key, toggling its direction when
// it already was sorted. Clicks on non-sortable fields are ignored.
func (t *Table[T]) ClickHeader(field int) {
	if _, ok := t.provider.Schema().SortColumn(field); !ok {
		return
	}
	t.provider.SetSorting(t.provider.Sorting().Promote(field))
	t.dispatch()
}

// SetRange shows the rows in window.
func (t *Table[T]) SetRange(window resource.Range) {
	t.mu.Lock()
	t.requested = window
	t.mu.Unlock()
	t.dispatch()
}

// ShowPage shows the zero-based page index.
func (t *Table[T]) ShowPage(index int) {
	if index < 0 {
		index = 0
	}
	start := index * t.pageSize
	t.SetRange(resource.Range{Start: start, End: start + t.pageSize})
}

// Refresh re-issues the current query.
func (t *Table[T]) Refresh() {
	t.dispatch()
}

// Snapshot returns a copy of the visible state.
func (t *Table[T]) Snapshot() TableSnapshot[T] {
	t.mu.Lock()
	defer t.mu.Unlock()
	return TableSnapshot[T]{
		Rows:        append([]T(nil), t.rows...),
		Range:       t.effective,
		Requested:   t.requested,
		Count:       t.count,
		CountKnown:  t.countKnown,
		Sorting:     t.provider.Sorting(),
		Search:      t.provider.Search(),
		SearchInput: t.searchInput,
		Loading:     t.loading,
		Err:         t.err,
		Generation:  t.generation,
	}
}

func (t *Table[T]) dispatch() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.generation++
	generation := t.generation
	window := t.requested
	t.loading = true
	t.inflight++
	t.mu.Unlock()
	t.changes.Broadcast()

	go func() {
		defer t.finish()
		t.fetch(generation, window)
	}()
}

// fetch loads rows and count concurrently. Neither waits for the other, so a
// slow count never holds back the rows.
func (t *Table[T]) fetch(generation uint64, window resource.Range) {
	var group errgroup.Group
	group.Go(func() error {
		page, err := t.provider.GetRows(t.ctx, window)
		t.applyRows(generation, page, err)
		return nil
	})
	group.Go(func() error {
		count, ok := t.provider.RowCount(t.ctx)
		t.applyCount(generation, count, ok)
		return nil
	})
	_ = group.Wait()
}

func (t *Table[T]) applyRows(generation uint64, page resource.Page[T], err error) {
	t.mu.Lock()
	if generation != t.generation {
		t.mu.Unlock()
		t.logger.Debug("discarding stale rows",
			zap.Uint64("generation", generation),
			zap.Error(err))
		return
	}
	t.loading = false
	if err != nil {
		t.err = err
	} else {
		t.err = nil
		t.rows = page.Rows
		t.effective = page.Range
	}
	t.mu.Unlock()
	if err != nil && t.ctx.Err() == nil {
		t.logger.Warn("failed to load rows", zap.Error(err))
	}
	t.changes.Broadcast()
}

func (t *Table[T]) applyCount(generation uint64, count int, ok bool) {
	t.mu.Lock()
	if generation != t.generation {
		t.mu.Unlock()
		return
	}
	t.count = count
	t.countKnown = ok
	t.mu.Unlock()
	t.changes.Broadcast()
}

func (t *Table[T]) finish() {
	t.mu.Lock()
	t.inflight--
	if t.inflight == 0 {
		t.idle.Broadcast()
	}
	t.mu.Unlock()
}
