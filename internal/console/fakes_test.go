package console

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/relayadmin/internal/aliases"
	"github.com/MarcoPoloResearchLab/relayadmin/internal/resource"
	"github.com/MarcoPoloResearchLab/relayadmin/internal/users"
)

var errBackend = errors.New("backend unavailable")

type fakeTimer struct {
	fn      func()
	stopped bool
}

func (f *fakeTimer) Stop() bool {
	wasActive := !f.stopped
	f.stopped = true
	return wasActive
}

// manualTimers schedules nothing; fireAll runs every callback ever scheduled,
// stopped or not, which is the worst case a real timer can produce.
type manualTimers struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (m *manualTimers) after(_ time.Duration, fn func()) stopper {
	m.mu.Lock()
	defer m.mu.Unlock()
	timer := &fakeTimer{fn: fn}
	m.timers = append(m.timers, timer)
	return timer
}

func (m *manualTimers) scheduled() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

func (m *manualTimers) fireAll() {
	m.mu.Lock()
	timers := append([]*fakeTimer(nil), m.timers...)
	m.mu.Unlock()
	for _, timer := range timers {
		timer.fn()
	}
}

// fakeSource serves rows from memory and records every query.
type fakeSource[T any] struct {
	match func(row T, search string) bool

	mu        sync.Mutex
	rows      []T
	queries   []resource.Query
	searches  []string
	listErr   error
	countErr  error
	gates     map[int]chan struct{}
	countGate chan struct{}
}

func newFakeSource[T any](rows []T, match func(row T, search string) bool) *fakeSource[T] {
	return &fakeSource[T]{rows: rows, match: match, gates: map[int]chan struct{}{}}
}

// block holds List calls starting at start until the returned func runs.
func (s *fakeSource[T]) block(start int) func() {
	gate := make(chan struct{})
	s.mu.Lock()
	s.gates[start] = gate
	s.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

func (s *fakeSource[T]) blockCount() func() {
	gate := make(chan struct{})
	s.mu.Lock()
	s.countGate = gate
	s.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

func (s *fakeSource[T]) List(ctx context.Context, q resource.Query) ([]T, error) {
	s.mu.Lock()
	s.queries = append(s.queries, q)
	gate := s.gates[q.Range.Start]
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	filtered := s.filterLocked(q.Search)
	if q.Range.Start >= len(filtered) {
		return []T{}, nil
	}
	end := q.Range.End
	if end > len(filtered) {
		end = len(filtered)
	}
	return append([]T(nil), filtered[q.Range.Start:end]...), nil
}

func (s *fakeSource[T]) Count(ctx context.Context, search string) (int, error) {
	s.mu.Lock()
	s.searches = append(s.searches, search)
	gate := s.countGate
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.countErr != nil {
		return 0, s.countErr
	}
	return len(s.filterLocked(search)), nil
}

func (s *fakeSource[T]) filterLocked(search string) []T {
	if search == "" || s.match == nil {
		return s.rows
	}
	var filtered []T
	for _, row := range s.rows {
		if s.match(row, search) {
			filtered = append(filtered, row)
		}
	}
	return filtered
}

func (s *fakeSource[T]) queryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queries)
}

func (s *fakeSource[T]) lastQuery() resource.Query {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queries) == 0 {
		return resource.Query{}
	}
	return s.queries[len(s.queries)-1]
}

func makeUsers(n int) []users.User {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := make([]users.User, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, users.User{
			Username:  fmt.Sprintf("user%02d", i),
			Active:    true,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		})
	}
	return rows
}

func matchUsername(row users.User, search string) bool {
	return strings.Contains(row.Username, strings.ToLower(search))
}

type flagsCall struct {
	Username string
	Flags    users.Flags
}

type fakeUsersAPI struct {
	*fakeSource[users.User]

	mutationErr error
	deleteErr   error
	flagsErr    error

	callMu    sync.Mutex
	mutations []users.Mutation
	deletes   []string
	flagCalls []flagsCall
}

func newFakeUsersAPI(rows []users.User) *fakeUsersAPI {
	return &fakeUsersAPI{fakeSource: newFakeSource(rows, matchUsername)}
}

func (f *fakeUsersAPI) CreateOrUpdate(_ context.Context, mutation users.Mutation) (users.User, error) {
	f.callMu.Lock()
	defer f.callMu.Unlock()
	f.mutations = append(f.mutations, mutation)
	if f.mutationErr != nil {
		return users.User{}, f.mutationErr
	}
	return users.User{Username: mutation.Username, Admin: mutation.Admin, Active: mutation.Active}, nil
}

func (f *fakeUsersAPI) Delete(_ context.Context, username string) error {
	f.callMu.Lock()
	defer f.callMu.Unlock()
	f.deletes = append(f.deletes, username)
	return f.deleteErr
}

func (f *fakeUsersAPI) SetFlags(_ context.Context, username string, flags users.Flags) error {
	f.callMu.Lock()
	defer f.callMu.Unlock()
	f.flagCalls = append(f.flagCalls, flagsCall{Username: username, Flags: flags})
	return f.flagsErr
}

type fakeAliasesAPI struct {
	*fakeSource[aliases.Alias]

	callMu      sync.Mutex
	mutations   []aliases.Mutation
	deletes     []string
	activeCalls map[string]bool
}

func newFakeAliasesAPI(rows []aliases.Alias) *fakeAliasesAPI {
	return &fakeAliasesAPI{
		fakeSource: newFakeSource(rows, func(row aliases.Alias, search string) bool {
			return strings.Contains(row.Address, search) || strings.Contains(row.Comment, search)
		}),
		activeCalls: map[string]bool{},
	}
}

func (f *fakeAliasesAPI) CreateOrUpdate(_ context.Context, mutation aliases.Mutation) (aliases.Alias, error) {
	f.callMu.Lock()
	defer f.callMu.Unlock()
	f.mutations = append(f.mutations, mutation)
	return aliases.Alias{Address: mutation.Address, Target: mutation.Target}, nil
}

func (f *fakeAliasesAPI) Delete(_ context.Context, address string) error {
	f.callMu.Lock()
	defer f.callMu.Unlock()
	f.deletes = append(f.deletes, address)
	return nil
}

func (f *fakeAliasesAPI) SetActive(_ context.Context, address string, flag aliases.ActiveFlag) error {
	f.callMu.Lock()
	defer f.callMu.Unlock()
	f.activeCalls[address] = flag.Active
	return nil
}
