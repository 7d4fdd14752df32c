// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package taxonomy

import (
	"context"

	"github.com/google/uuid"

	"taxonomy/internal/models"
)

// Reader is the read side of the category store. Lookups that miss return
// an error wrapping ErrNotFound.
type Reader interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Category, error)
	// GetBySlug matches case-insensitively.
	GetBySlug(ctx context.Context, slug string) (*models.Category, error)
	// ChildrenOf lists direct children; a nil parent lists the roots.
	ChildrenOf(ctx context.Context, parentID *uuid.UUID, activeOnly bool) ([]models.Category, error)
	// Ancestors returns the parent chain of id, nearest first. It fails
	// with ErrTooDeep if the chain is longer than limit.
	Ancestors(ctx context.Context, id uuid.UUID, limit int) ([]uuid.UUID, error)
	// Descendants returns every category below id, deepest first, so the
	// result can be deleted in order. It fails with ErrTooDeep if the
	// subtree nests deeper than limit.
	Descendants(ctx context.Context, id uuid.UUID, limit int) ([]uuid.UUID, error)
}

// Tx is a store transaction. Every mutation of the taxonomy runs inside one.
type Tx interface {
	Reader
	// Insert fails with ErrDuplicateSlug when the slug is taken. A failed
	// insert leaves the transaction usable.
	Insert(ctx context.Context, c *models.Category) error
	// Update applies a partial update and returns the stored row.
	Update(ctx context.Context, id uuid.UUID, patch models.CategoryPatch) (*models.Category, error)
	// Delete removes one row. It does not look at children.
	Delete(ctx context.Context, id uuid.UUID) error
	// Lock takes row locks on ids for the rest of the transaction.
	Lock(ctx context.Context, ids ...uuid.UUID) error
}

// Store persists categories.
type Store interface {
	Reader
	// ScanAll streams every category (or only active ones) to fn.
	ScanAll(ctx context.Context, activeOnly bool, fn func(models.Category) error) error
	// InTx runs fn in a transaction, committing when fn returns nil.
	// Serialization failures surface as ErrConflict.
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// RowCache caches the full category scan between mutations. Load reports
// the cache generation on a miss; Save must drop rows when an Invalidate
// happened after that generation was read.
type RowCache interface {
	Load(ctx context.Context) (rows []models.Category, gen int64, ok bool)
	Save(ctx context.Context, gen int64, rows []models.Category)
	Invalidate(ctx context.Context)
}

// Observer receives mutation outcomes, retries and cache lookups.
type Observer interface {
	ObserveMutation(op, code string)
	ObserveRetry(op string)
	ObserveCache(hit bool)
}

type nopObserver struct{}

func (nopObserver) ObserveMutation(string, string) {}
func (nopObserver) ObserveRetry(string)            {}
func (nopObserver) ObserveCache(bool)              {}
