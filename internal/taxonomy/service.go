// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package taxonomy coordinates every change to the category forest. Each
// mutation runs in a single store transaction that re-checks the tree
// invariants (slug uniqueness, parent existence, acyclicity) before commit
// and is retried with backoff when the store reports a serialization
// conflict.
package taxonomy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"golang.org/x/text/language"

	"taxonomy/internal/models"
	"taxonomy/internal/slug"
	"taxonomy/internal/tree"
)

// Defaults for Options fields left at their zero value.
const (
	DefaultMaxRetries     = 5
	DefaultRetryBase      = 20 * time.Millisecond
	DefaultMaxSlugInserts = 8
)

// Options configures a Service.
type Options struct {
	Locale     language.Tag
	MaxDepth   int
	MaxRetries uint64
	RetryBase  time.Duration

	// MaxSlugInserts bounds how often Create resumes slug probing after
	// the store rejected a candidate that the probe thought was free.
	MaxSlugInserts int

	Slugs    *slug.Allocator
	Cache    RowCache
	Observer Observer
}

// Service is the taxonomy's mutation coordinator and read facade.
type Service struct {
	store     Store
	slugs     *slug.Allocator
	assembler *tree.Assembler
	cache     RowCache
	obs       Observer

	maxDepth       int
	maxRetries     uint64
	retryBase      time.Duration
	maxSlugInserts int
}

// NewService returns a Service backed by store.
func NewService(store Store, opts Options) *Service {
	s := &Service{
		store:          store,
		slugs:          opts.Slugs,
		cache:          opts.Cache,
		obs:            opts.Observer,
		maxDepth:       opts.MaxDepth,
		maxRetries:     opts.MaxRetries,
		retryBase:      opts.RetryBase,
		maxSlugInserts: opts.MaxSlugInserts,
	}
	if s.slugs == nil {
		s.slugs = slug.NewAllocator()
	}
	if s.obs == nil {
		s.obs = nopObserver{}
	}
	if s.maxDepth <= 0 {
		s.maxDepth = tree.DefaultMaxDepth
	}
	if s.maxRetries == 0 {
		s.maxRetries = DefaultMaxRetries
	}
	if s.retryBase <= 0 {
		s.retryBase = DefaultRetryBase
	}
	if s.maxSlugInserts <= 0 {
		s.maxSlugInserts = DefaultMaxSlugInserts
	}
	s.assembler = tree.NewAssembler(opts.Locale, s.maxDepth)
	return s
}

// errRollback aborts a transaction without reporting a failure.
var errRollback = errors.New("rollback requested")

// mutate runs fn in a store transaction, retrying on ErrConflict. Once a
// mutation starts it runs to commit or rollback regardless of caller
// cancellation; timeouts belong to the transport.
func (s *Service) mutate(ctx context.Context, op string, fn func(ctx context.Context, tx Tx) error) error {
	ctx = context.WithoutCancel(ctx)
	backoff := retry.WithMaxRetries(s.maxRetries, retry.WithJitterPercent(20, retry.NewExponential(s.retryBase)))

	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := s.store.InTx(ctx, func(tx Tx) error { return fn(ctx, tx) })
		if errors.Is(err, ErrConflict) {
			s.obs.ObserveRetry(op)
			slog.Warn("taxonomy transaction conflict", "op", op, "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return err
	})

	code := Code(err)
	if errors.Is(err, errRollback) {
		code = CodeOK
	}
	s.obs.ObserveMutation(op, code)

	if err == nil {
		if s.cache != nil {
			s.cache.Invalidate(ctx)
		}
		slog.Debug("taxonomy mutation committed", "op", op, "attempts", attempt)
	}
	return err
}

// CreateInput holds the fields accepted by Create.
type CreateInput struct {
	Name          string
	AlternateName string
	ParentID      *uuid.UUID
	ImageRef      string
}

// Create adds a category under ParentID (or as a root). The slug is derived
// from the alternate name when present, otherwise from the name.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Category, error) {
	const op = "create"

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, validationError(op, "name is required")
	}
	alt := strings.TrimSpace(in.AlternateName)
	base := name
	if alt != "" {
		base = alt
	}

	var created *models.Category
	err := s.mutate(ctx, op, func(ctx context.Context, tx Tx) error {
		c := &models.Category{
			ID:            uuid.New(),
			Name:          name,
			AlternateName: alt,
			IsActive:      true,
			ImageRef:      strings.TrimSpace(in.ImageRef),
		}
		if in.ParentID != nil {
			pid := *in.ParentID
			if err := requireParent(ctx, tx, op, pid); err != nil {
				return err
			}
			chain, err := ancestors(ctx, tx, op, pid, s.maxDepth)
			if err != nil {
				return err
			}
			if err := s.checkDepth(op, pid, chain, 0); err != nil {
				return err
			}
			c.ParentID = &pid
		}
		if err := s.insertWithSlug(ctx, tx, op, c, base); err != nil {
			return err
		}
		created = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// insertWithSlug allocates a slug for c and inserts it. A collision at
// insert time means another transaction took the candidate after the
// probe, so probing resumes at the next suffix.
func (s *Service) insertWithSlug(ctx context.Context, tx Tx, op string, c *models.Category, base string) error {
	from := 1
	for i := 0; i < s.maxSlugInserts; i++ {
		candidate, n, err := s.slugs.Allocate(ctx, base, from, slugTaken(tx, uuid.Nil))
		if errors.Is(err, slug.ErrExhausted) {
			return opError(op, c.ID, ErrDuplicateSlug, err.Error())
		}
		if err != nil {
			return err
		}

		c.Slug = candidate
		err = tx.Insert(ctx, c)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrDuplicateSlug) {
			return err
		}
		from = n + 1
	}
	return opError(op, c.ID, ErrConflict, "slug candidates kept colliding")
}

// slugTaken reports a slug as taken when it belongs to anyone but self.
func slugTaken(tx Tx, self uuid.UUID) slug.Lookup {
	return func(ctx context.Context, candidate string) (bool, error) {
		existing, err := tx.GetBySlug(ctx, candidate)
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return existing.ID != self, nil
	}
}

// UpdateInput is a partial update of display fields and the active flag.
// Cascade applies IsActive to the whole subtree.
type UpdateInput struct {
	Name          *string
	AlternateName *string
	ImageRef      *string
	IsActive      *bool
	Cascade       bool
}

// Update applies in to the category. Slug and parent are never touched.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (*models.Category, error) {
	return s.update(ctx, "update", id, in)
}

// Rename changes the name and/or alternate name.
func (s *Service) Rename(ctx context.Context, id uuid.UUID, name, alternateName *string) (*models.Category, error) {
	return s.update(ctx, "rename", id, UpdateInput{Name: name, AlternateName: alternateName})
}

// SetActive toggles is_active on one category, or on its whole subtree when
// cascade is set.
func (s *Service) SetActive(ctx context.Context, id uuid.UUID, active, cascade bool) (*models.Category, error) {
	return s.update(ctx, "set_active", id, UpdateInput{IsActive: &active, Cascade: cascade})
}

func (s *Service) update(ctx context.Context, op string, id uuid.UUID, in UpdateInput) (*models.Category, error) {
	var patch models.CategoryPatch
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, validationError(op, "name must not be empty")
		}
		patch.Name = &name
	}
	if in.AlternateName != nil {
		alt := strings.TrimSpace(*in.AlternateName)
		patch.AlternateName = &alt
	}
	if in.ImageRef != nil {
		ref := strings.TrimSpace(*in.ImageRef)
		patch.ImageRef = &ref
	}
	patch.IsActive = in.IsActive

	var updated *models.Category
	err := s.mutate(ctx, op, func(ctx context.Context, tx Tx) error {
		current, err := tx.Get(ctx, id)
		if err != nil {
			return lookupError(op, id, err)
		}
		if patch.Empty() {
			updated = current
			return nil
		}

		if in.IsActive != nil && in.Cascade {
			below, err := descendants(ctx, tx, op, id, s.maxDepth)
			if err != nil {
				return err
			}
			for _, d := range below {
				if _, err := tx.Update(ctx, d, models.CategoryPatch{IsActive: in.IsActive}); err != nil {
					return err
				}
			}
		}

		updated, err = tx.Update(ctx, id, patch)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Move re-parents a category. A nil newParentID makes it a root.
func (s *Service) Move(ctx context.Context, id uuid.UUID, newParentID *uuid.UUID) (*models.Category, error) {
	const op = "move"

	if newParentID != nil && *newParentID == id {
		return nil, opError(op, id, ErrCycleDetected, "a category cannot be its own parent")
	}

	var moved *models.Category
	err := s.mutate(ctx, op, func(ctx context.Context, tx Tx) error {
		current, err := tx.Get(ctx, id)
		if err != nil {
			return lookupError(op, id, err)
		}

		if newParentID == nil {
			if current.ParentID == nil {
				moved = current
				return nil
			}
			if err := tx.Lock(ctx, id); err != nil {
				return err
			}
			moved, err = tx.Update(ctx, id, models.CategoryPatch{SetParent: true})
			return err
		}

		pid := *newParentID
		if err := requireParent(ctx, tx, op, pid); err != nil {
			return err
		}
		chain, err := ancestors(ctx, tx, op, pid, s.maxDepth)
		if err != nil {
			return err
		}
		if slices.Contains(chain, id) {
			return opError(op, id, ErrCycleDetected, "new parent is a descendant")
		}

		// Lock the moved node and the whole chain above the new parent,
		// then re-read the chain: a concurrent move could have spliced
		// this category above the new parent after the first walk.
		locked := append([]uuid.UUID{id, pid}, chain...)
		if err := tx.Lock(ctx, locked...); err != nil {
			return err
		}
		again, err := ancestors(ctx, tx, op, pid, s.maxDepth)
		if err != nil {
			return err
		}
		if !slices.Equal(chain, again) {
			return opError(op, id, ErrConflict, "ancestor chain changed during move")
		}

		if current.ParentID != nil && *current.ParentID == pid {
			moved = current
			return nil
		}

		height, err := s.subtreeHeight(ctx, tx, op, id)
		if err != nil {
			return err
		}
		if err := s.checkDepth(op, id, chain, height); err != nil {
			return err
		}
		moved, err = tx.Update(ctx, id, models.CategoryPatch{SetParent: true, ParentID: &pid})
		return err
	})
	if err != nil {
		return nil, err
	}
	return moved, nil
}

// RegenerateSlug derives a fresh slug from the current names. It is the only
// operation that changes a slug after creation.
func (s *Service) RegenerateSlug(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	const op = "regenerate_slug"

	var updated *models.Category
	err := s.mutate(ctx, op, func(ctx context.Context, tx Tx) error {
		current, err := tx.Get(ctx, id)
		if err != nil {
			return lookupError(op, id, err)
		}
		base := current.Name
		if current.AlternateName != "" {
			base = current.AlternateName
		}

		candidate, _, err := s.slugs.Allocate(ctx, base, 1, slugTaken(tx, current.ID))
		if errors.Is(err, slug.ErrExhausted) {
			return opError(op, id, ErrDuplicateSlug, err.Error())
		}
		if err != nil {
			return err
		}
		if strings.EqualFold(candidate, current.Slug) {
			updated = current
			return nil
		}

		updated, err = tx.Update(ctx, id, models.CategoryPatch{Slug: &candidate})
		if errors.Is(err, ErrDuplicateSlug) {
			return opError(op, id, ErrConflict, "slug taken concurrently")
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes a category. Without cascade, a category that still has
// children is refused; with cascade the whole subtree goes, deepest first.
// Surviving children are never re-parented implicitly.
func (s *Service) Delete(ctx context.Context, id uuid.UUID, cascade bool) error {
	const op = "delete"

	var removed int
	err := s.mutate(ctx, op, func(ctx context.Context, tx Tx) error {
		if _, err := tx.Get(ctx, id); err != nil {
			return lookupError(op, id, err)
		}
		kids, err := tx.ChildrenOf(ctx, &id, false)
		if err != nil {
			return err
		}
		if len(kids) > 0 && !cascade {
			return opError(op, id, ErrHasActiveChildren,
				fmt.Sprintf("%d direct children; delete with cascade or move them first", len(kids)))
		}

		var doomed []uuid.UUID
		if len(kids) > 0 {
			doomed, err = descendants(ctx, tx, op, id, s.maxDepth)
			if err != nil {
				return err
			}
		}
		doomed = append(doomed, id)

		if err := tx.Lock(ctx, doomed...); err != nil {
			return err
		}
		for _, d := range doomed {
			if err := tx.Delete(ctx, d); err != nil {
				return err
			}
		}
		removed = len(doomed)
		return nil
	})
	if err != nil {
		return err
	}

	slog.Info("category deleted", "id", id, "cascade", cascade, "removed", removed)
	return nil
}

// Get returns one category.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	c, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, lookupError("get", id, err)
	}
	return c, nil
}

// GetBySlug returns the category with the given slug, case-insensitively.
func (s *Service) GetBySlug(ctx context.Context, slugValue string) (*models.Category, error) {
	c, err := s.store.GetBySlug(ctx, slugValue)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, opError("get_by_slug", uuid.Nil, ErrNotFound, slugValue)
		}
		return nil, err
	}
	return c, nil
}

// Children lists the direct children of parentID (roots when nil), sorted
// the same way as the tree views.
func (s *Service) Children(ctx context.Context, parentID *uuid.UUID, activeOnly bool) ([]models.Category, error) {
	if parentID != nil {
		if _, err := s.store.Get(ctx, *parentID); err != nil {
			return nil, lookupError("children", *parentID, err)
		}
	}
	rows, err := s.store.ChildrenOf(ctx, parentID, activeOnly)
	if err != nil {
		return nil, err
	}
	s.assembler.Sort(rows)
	return rows, nil
}

// Forest returns the nested tree. With activeOnly, inactive categories are
// hidden together with their subtrees.
func (s *Service) Forest(ctx context.Context, activeOnly bool) ([]*tree.Node, error) {
	rows, err := s.rows(ctx)
	if err != nil {
		return nil, err
	}
	forest, err := s.assembler.BuildForest(rows)
	if err != nil {
		return nil, err
	}
	if activeOnly {
		forest = tree.ActiveOnly(forest)
	}
	return forest, nil
}

// Flat returns the forest as a pre-order list indented by step per level.
func (s *Service) Flat(ctx context.Context, activeOnly bool, step int) ([]tree.FlatRow, error) {
	forest, err := s.Forest(ctx, activeOnly)
	if err != nil {
		return nil, err
	}
	return tree.Flatten(forest, step), nil
}

// rows returns the full scan, from the cache when possible.
func (s *Service) rows(ctx context.Context) ([]models.Category, error) {
	var gen int64 = -1
	if s.cache != nil {
		rows, g, ok := s.cache.Load(ctx)
		if ok {
			s.obs.ObserveCache(true)
			return rows, nil
		}
		s.obs.ObserveCache(false)
		gen = g
	}

	var rows []models.Category
	err := s.store.ScanAll(ctx, false, func(c models.Category) error {
		rows = append(rows, c)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan categories: %w", err)
	}

	if s.cache != nil {
		s.cache.Save(ctx, gen, rows)
	}
	return rows, nil
}

// checkDepth refuses to hang a subtree of the given height below a parent
// whose ancestor chain is chain. Roots sit at level 0 and the tree views
// reject any node at level maxDepth or deeper.
func (s *Service) checkDepth(op string, id uuid.UUID, chain []uuid.UUID, height int) error {
	deepest := len(chain) + 1 + height
	if deepest >= s.maxDepth {
		return opError(op, id, ErrTooDeep,
			fmt.Sprintf("deepest category would sit at level %d, limit is %d", deepest, s.maxDepth-1))
	}
	return nil
}

// subtreeHeight returns how many levels hang below id; 0 for a leaf.
// Descendants come deepest first, so the first one's ancestor chain
// gives the distance.
func (s *Service) subtreeHeight(ctx context.Context, tx Tx, op string, id uuid.UUID) (int, error) {
	below, err := descendants(ctx, tx, op, id, s.maxDepth)
	if err != nil || len(below) == 0 {
		return 0, err
	}
	up, err := ancestors(ctx, tx, op, below[0], s.maxDepth)
	if err != nil {
		return 0, err
	}
	i := slices.Index(up, id)
	if i < 0 {
		return 0, fmt.Errorf("%s: %s is not an ancestor of its descendant %s", op, id, below[0])
	}
	return i + 1, nil
}

func requireParent(ctx context.Context, tx Tx, op string, id uuid.UUID) error {
	if _, err := tx.Get(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return opError(op, id, ErrParentNotFound, "")
		}
		return err
	}
	return nil
}

func lookupError(op string, id uuid.UUID, err error) error {
	if errors.Is(err, ErrNotFound) {
		return opError(op, id, ErrNotFound, "")
	}
	return err
}

func ancestors(ctx context.Context, tx Tx, op string, id uuid.UUID, limit int) ([]uuid.UUID, error) {
	chain, err := tx.Ancestors(ctx, id, limit)
	if errors.Is(err, ErrTooDeep) {
		return nil, opError(op, id, ErrTooDeep, "ancestor chain")
	}
	return chain, err
}

func descendants(ctx context.Context, tx Tx, op string, id uuid.UUID, limit int) ([]uuid.UUID, error) {
	below, err := tx.Descendants(ctx, id, limit)
	if errors.Is(err, ErrTooDeep) {
		return nil, opError(op, id, ErrTooDeep, "subtree")
	}
	return below, err
}
