// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"taxonomy/internal/models"
	"taxonomy/internal/taxonomy"
)

// memoryState holds the rows plus the two secondary indexes. The indexes
// are only ever changed together with the rows they describe.
type memoryState struct {
	rows     map[uuid.UUID]models.Category
	slugs    map[string]uuid.UUID
	children map[uuid.UUID]map[uuid.UUID]struct{}
}

func newMemoryState() *memoryState {
	return &memoryState{
		rows:     make(map[uuid.UUID]models.Category),
		slugs:    make(map[string]uuid.UUID),
		children: make(map[uuid.UUID]map[uuid.UUID]struct{}),
	}
}

func (s *memoryState) clone() *memoryState {
	c := &memoryState{
		rows:     maps.Clone(s.rows),
		slugs:    maps.Clone(s.slugs),
		children: make(map[uuid.UUID]map[uuid.UUID]struct{}, len(s.children)),
	}
	for k, v := range s.children {
		c.children[k] = maps.Clone(v)
	}
	return c
}

// rootKey indexes root categories in the children map.
var rootKey = uuid.Nil

func parentKey(p *uuid.UUID) uuid.UUID {
	if p == nil {
		return rootKey
	}
	return *p
}

func (s *memoryState) link(c models.Category) {
	k := parentKey(c.ParentID)
	set, ok := s.children[k]
	if !ok {
		set = make(map[uuid.UUID]struct{})
		s.children[k] = set
	}
	set[c.ID] = struct{}{}
}

func (s *memoryState) unlink(c models.Category) {
	k := parentKey(c.ParentID)
	if set, ok := s.children[k]; ok {
		delete(set, c.ID)
		if len(set) == 0 {
			delete(s.children, k)
		}
	}
}

// MemoryStore is an in-process category store. Transactions are fully
// serialized and run against a copy of the state that replaces the live
// state on commit.
type MemoryStore struct {
	mu    sync.RWMutex
	state *memoryState
	now   func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemoryState(), now: time.Now}
}

// Get implements taxonomy.Reader.
func (m *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return memReader{m.state}.Get(ctx, id)
}

// GetBySlug implements taxonomy.Reader.
func (m *MemoryStore) GetBySlug(ctx context.Context, slug string) (*models.Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return memReader{m.state}.GetBySlug(ctx, slug)
}

// ChildrenOf implements taxonomy.Reader.
func (m *MemoryStore) ChildrenOf(ctx context.Context, parentID *uuid.UUID, activeOnly bool) ([]models.Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return memReader{m.state}.ChildrenOf(ctx, parentID, activeOnly)
}

// Ancestors implements taxonomy.Reader.
func (m *MemoryStore) Ancestors(ctx context.Context, id uuid.UUID, limit int) ([]uuid.UUID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return memReader{m.state}.Ancestors(ctx, id, limit)
}

// Descendants implements taxonomy.Reader.
func (m *MemoryStore) Descendants(ctx context.Context, id uuid.UUID, limit int) ([]uuid.UUID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return memReader{m.state}.Descendants(ctx, id, limit)
}

// ScanAll streams rows ordered by name. The read lock is released before
// fn is called.
func (m *MemoryStore) ScanAll(ctx context.Context, activeOnly bool, fn func(models.Category) error) error {
	m.mu.RLock()
	rows := make([]models.Category, 0, len(m.state.rows))
	for _, c := range m.state.rows {
		if activeOnly && !c.IsActive {
			continue
		}
		rows = append(rows, c)
	}
	m.mu.RUnlock()

	sortRows(rows)
	for _, c := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(c); err != nil {
			return err
		}
	}
	return nil
}

// InTx implements taxonomy.Store.
func (m *MemoryStore) InTx(ctx context.Context, fn func(tx taxonomy.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.state.clone()
	if err := fn(&memTx{memReader: memReader{work}, now: m.now}); err != nil {
		return err
	}
	m.state = work
	return nil
}

// Len returns the number of stored categories.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.state.rows)
}

type memReader struct {
	s *memoryState
}

func (r memReader) Get(_ context.Context, id uuid.UUID) (*models.Category, error) {
	c, ok := r.s.rows[id]
	if !ok {
		return nil, fmt.Errorf("get category %s: %w", id, taxonomy.ErrNotFound)
	}
	return &c, nil
}

func (r memReader) GetBySlug(_ context.Context, slug string) (*models.Category, error) {
	id, ok := r.s.slugs[strings.ToLower(slug)]
	if !ok {
		return nil, fmt.Errorf("get category by slug %q: %w", slug, taxonomy.ErrNotFound)
	}
	c := r.s.rows[id]
	return &c, nil
}

func (r memReader) ChildrenOf(_ context.Context, parentID *uuid.UUID, activeOnly bool) ([]models.Category, error) {
	set := r.s.children[parentKey(parentID)]
	out := make([]models.Category, 0, len(set))
	for id := range set {
		c := r.s.rows[id]
		if activeOnly && !c.IsActive {
			continue
		}
		out = append(out, c)
	}
	sortRows(out)
	return out, nil
}

func (r memReader) Ancestors(_ context.Context, id uuid.UUID, limit int) ([]uuid.UUID, error) {
	c, ok := r.s.rows[id]
	if !ok {
		return nil, fmt.Errorf("ancestors of %s: %w", id, taxonomy.ErrNotFound)
	}
	var chain []uuid.UUID
	for c.ParentID != nil {
		if len(chain) >= limit {
			return nil, fmt.Errorf("ancestors of %s: %w", id, taxonomy.ErrTooDeep)
		}
		parent, ok := r.s.rows[*c.ParentID]
		if !ok {
			break
		}
		chain = append(chain, parent.ID)
		c = parent
	}
	return chain, nil
}

func (r memReader) Descendants(_ context.Context, id uuid.UUID, limit int) ([]uuid.UUID, error) {
	if _, ok := r.s.rows[id]; !ok {
		return nil, fmt.Errorf("descendants of %s: %w", id, taxonomy.ErrNotFound)
	}

	// Breadth-first by level; reversing the levels yields deepest first.
	var levels [][]uuid.UUID
	frontier := []uuid.UUID{id}
	seen := map[uuid.UUID]bool{id: true}
	for len(frontier) > 0 {
		var next []uuid.UUID
		for _, p := range frontier {
			for child := range r.s.children[p] {
				if seen[child] {
					continue
				}
				seen[child] = true
				next = append(next, child)
			}
		}
		if len(next) == 0 {
			break
		}
		if len(levels) >= limit {
			return nil, fmt.Errorf("descendants of %s: %w", id, taxonomy.ErrTooDeep)
		}
		levels = append(levels, next)
		frontier = next
	}

	var out []uuid.UUID
	for i := len(levels) - 1; i >= 0; i-- {
		out = append(out, levels[i]...)
	}
	return out, nil
}

type memTx struct {
	memReader
	now func() time.Time
}

func (t *memTx) Insert(_ context.Context, c *models.Category) error {
	key := strings.ToLower(c.Slug)
	if _, taken := t.s.slugs[key]; taken {
		return fmt.Errorf("insert category %q: %w", c.Slug, taxonomy.ErrDuplicateSlug)
	}
	if _, exists := t.s.rows[c.ID]; exists {
		return fmt.Errorf("insert category %s: id already exists", c.ID)
	}
	if c.ParentID != nil {
		if _, ok := t.s.rows[*c.ParentID]; !ok {
			return fmt.Errorf("insert category %q: parent %s: %w", c.Slug, *c.ParentID, taxonomy.ErrNotFound)
		}
	}

	now := t.now()
	c.CreatedAt, c.UpdatedAt = now, now
	t.s.rows[c.ID] = *c
	t.s.slugs[key] = c.ID
	t.s.link(*c)
	return nil
}

func (t *memTx) Update(_ context.Context, id uuid.UUID, patch models.CategoryPatch) (*models.Category, error) {
	old, ok := t.s.rows[id]
	if !ok {
		return nil, fmt.Errorf("update category %s: %w", id, taxonomy.ErrNotFound)
	}

	updated := old
	patch.Apply(&updated)
	updated.UpdatedAt = t.now()

	oldKey, newKey := strings.ToLower(old.Slug), strings.ToLower(updated.Slug)
	if newKey != oldKey {
		if _, taken := t.s.slugs[newKey]; taken {
			return nil, fmt.Errorf("update category %s slug %q: %w", id, updated.Slug, taxonomy.ErrDuplicateSlug)
		}
	}
	if updated.ParentID != nil {
		if _, ok := t.s.rows[*updated.ParentID]; !ok {
			return nil, fmt.Errorf("update category %s: parent %s: %w", id, *updated.ParentID, taxonomy.ErrNotFound)
		}
	}

	delete(t.s.slugs, oldKey)
	t.s.slugs[newKey] = id
	t.s.unlink(old)
	t.s.link(updated)
	t.s.rows[id] = updated
	return &updated, nil
}

func (t *memTx) Delete(_ context.Context, id uuid.UUID) error {
	c, ok := t.s.rows[id]
	if !ok {
		return fmt.Errorf("delete category %s: %w", id, taxonomy.ErrNotFound)
	}
	t.s.unlink(c)
	delete(t.s.slugs, strings.ToLower(c.Slug))
	delete(t.s.rows, id)
	return nil
}

// Lock is a no-op: the transaction already holds the store exclusively.
func (t *memTx) Lock(context.Context, ...uuid.UUID) error {
	return nil
}

func sortRows(rows []models.Category) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Name != rows[j].Name {
			return rows[i].Name < rows[j].Name
		}
		return rows[i].ID.String() < rows[j].ID.String()
	})
}
