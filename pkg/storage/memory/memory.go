// Package memory provides an in-memory implementation of
// transport.AnalysisStore for tests and single-process deployments.
// Analyses are lost when the process restarts. Optional LRU eviction
// bounds memory use.
package memory

import (
	"container/list"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rhuss/tabula/pkg/api"
	"github.com/rhuss/tabula/pkg/storage"
	"github.com/rhuss/tabula/pkg/transport"
)

type entry struct {
	analysis  *api.Analysis
	tenantID  string
	deletedAt *time.Time
	lruElem   *list.Element
}

// Store is an in-memory AnalysisStore with optional LRU eviction.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	lruList *list.List // front = most recently used
	maxSize int        // 0 = unlimited
}

var _ transport.AnalysisStore = (*Store)(nil)

// New creates a store. With maxSize > 0 the least recently used analysis
// is evicted once the limit is reached.
func New(maxSize int) *Store {
	return &Store{
		entries: make(map[string]*entry),
		lruList: list.New(),
		maxSize: maxSize,
	}
}

// SaveAnalysis stores a under the tenant in ctx.
func (s *Store) SaveAnalysis(ctx context.Context, a *api.Analysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[a.ID]; exists {
		return storage.ErrConflict
	}
	if s.maxSize > 0 && len(s.entries) >= s.maxSize {
		s.evictOldest()
	}

	s.entries[a.ID] = &entry{
		analysis: a,
		tenantID: storage.GetTenant(ctx),
		lruElem:  s.lruList.PushFront(a.ID),
	}
	return nil
}

// GetAnalysis returns a live analysis visible to the tenant in ctx and
// marks it as recently used.
func (s *Store) GetAnalysis(ctx context.Context, id string) (*api.Analysis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	s.lruList.MoveToFront(e.lruElem)
	return e.analysis, nil
}

// DeleteAnalysis soft-deletes an analysis. Deleted analyses are invisible
// but still count against maxSize until evicted.
func (s *Store) DeleteAnalysis(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.lookup(ctx, id)
	if err != nil {
		return err
	}
	now := time.Now()
	e.deletedAt = &now
	return nil
}

// lookup must be called with s.mu held.
func (s *Store) lookup(ctx context.Context, id string) (*entry, error) {
	e, ok := s.entries[id]
	if !ok || e.deletedAt != nil || !storage.Visible(ctx, e.tenantID) {
		return nil, storage.ErrNotFound
	}
	return e, nil
}

// ListAnalyses returns live analyses visible to the tenant in ctx, ordered
// by creation time, optionally filtered by tool.
func (s *Store) ListAnalyses(ctx context.Context, opts transport.ListOptions) (*transport.AnalysisList, error) {
	s.mu.Lock()
	var matches []*api.Analysis
	for _, e := range s.entries {
		if e.deletedAt != nil || !storage.Visible(ctx, e.tenantID) {
			continue
		}
		if opts.Tool != "" && e.analysis.Tool != opts.Tool {
			continue
		}
		matches = append(matches, e.analysis)
	}
	s.mu.Unlock()

	asc := opts.Order == "asc"
	sort.Slice(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.CreatedAt != b.CreatedAt {
			return (a.CreatedAt < b.CreatedAt) == asc
		}
		return (a.ID < b.ID) == asc
	})

	matches = applyCursor(matches, opts)

	limit := storage.ListLimit(opts.Limit)
	hasMore := len(matches) > limit
	if hasMore {
		matches = matches[:limit]
	}

	result := &transport.AnalysisList{
		Object:  "list",
		Data:    matches,
		HasMore: hasMore,
	}
	if len(matches) > 0 {
		result.FirstID = matches[0].ID
		result.LastID = matches[len(matches)-1].ID
	}
	if result.Data == nil {
		result.Data = []*api.Analysis{}
	}
	return result, nil
}

// applyCursor keeps the analyses after opts.After or before opts.Before.
// An unknown cursor yields an empty page.
func applyCursor(matches []*api.Analysis, opts transport.ListOptions) []*api.Analysis {
	cursor := opts.After
	if cursor == "" {
		cursor = opts.Before
	}
	if cursor == "" {
		return matches
	}
	idx := -1
	for i, a := range matches {
		if a.ID == cursor {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	if opts.After != "" {
		return matches[idx+1:]
	}
	return matches[:idx]
}

// HealthCheck always returns nil for the in-memory store.
func (s *Store) HealthCheck(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

// Len returns the number of stored analyses, deleted ones included.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// evictOldest must be called with s.mu held.
func (s *Store) evictOldest() {
	back := s.lruList.Back()
	if back == nil {
		return
	}
	id := back.Value.(string)
	s.lruList.Remove(back)
	delete(s.entries, id)
}
