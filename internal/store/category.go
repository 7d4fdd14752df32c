// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"taxonomy/internal/models"
	"taxonomy/internal/taxonomy"
)

// PostgreSQL error codes the store translates.
const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// CategoryStore manages categories in PostgreSQL.
type CategoryStore struct {
	db *sql.DB
}

// NewCategoryStore returns a new CategoryStore.
func NewCategoryStore(db *sql.DB) *CategoryStore {
	return &CategoryStore{db: db}
}

const categoryColumns = `id, name, alternate_name, slug, parent_id, is_active, image_ref, created_at, updated_at`

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// scanCategory scans a row into a Category struct.
func scanCategory(scanner interface{ Scan(...any) error }) (*models.Category, error) {
	var c models.Category
	err := scanner.Scan(
		&c.ID, &c.Name, &c.AlternateName, &c.Slug, &c.ParentID,
		&c.IsActive, &c.ImageRef, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// translate maps driver errors onto the taxonomy error set.
func translate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%w: %s", taxonomy.ErrDuplicateSlug, pgErr.ConstraintName)
		case pgSerializationFailure, pgDeadlockDetected:
			return fmt.Errorf("%w: %s", taxonomy.ErrConflict, pgErr.Message)
		}
	}
	return err
}

// Get implements taxonomy.Reader.
func (s *CategoryStore) Get(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	return pgReader{s.db}.Get(ctx, id)
}

// GetBySlug implements taxonomy.Reader.
func (s *CategoryStore) GetBySlug(ctx context.Context, slug string) (*models.Category, error) {
	return pgReader{s.db}.GetBySlug(ctx, slug)
}

// ChildrenOf implements taxonomy.Reader.
func (s *CategoryStore) ChildrenOf(ctx context.Context, parentID *uuid.UUID, activeOnly bool) ([]models.Category, error) {
	return pgReader{s.db}.ChildrenOf(ctx, parentID, activeOnly)
}

// Ancestors implements taxonomy.Reader.
func (s *CategoryStore) Ancestors(ctx context.Context, id uuid.UUID, limit int) ([]uuid.UUID, error) {
	return pgReader{s.db}.Ancestors(ctx, id, limit)
}

// Descendants implements taxonomy.Reader.
func (s *CategoryStore) Descendants(ctx context.Context, id uuid.UUID, limit int) ([]uuid.UUID, error) {
	return pgReader{s.db}.Descendants(ctx, id, limit)
}

// ScanAll streams every category ordered by name without buffering the
// result set.
func (s *CategoryStore) ScanAll(ctx context.Context, activeOnly bool, fn func(models.Category) error) error {
	query := `SELECT ` + categoryColumns + ` FROM categories`
	if activeOnly {
		query += ` WHERE is_active = TRUE`
	}
	query += ` ORDER BY name, id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("scan categories: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return fmt.Errorf("scan category: %w", err)
		}
		if err := fn(*c); err != nil {
			return err
		}
	}
	return rows.Err()
}

// InTx runs fn in a SERIALIZABLE transaction. Serialization failures,
// including those raised at commit, are reported as taxonomy.ErrConflict.
func (s *CategoryStore) InTx(ctx context.Context, fn func(tx taxonomy.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin tx: %w", translate(err))
	}
	defer tx.Rollback()

	if err := fn(&pgTx{pgReader: pgReader{tx}}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", translate(err))
	}
	return nil
}

type pgReader struct {
	q querier
}

func (r pgReader) Get(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = $1`, id)
	c, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find category %s: %w", id, taxonomy.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find category by id: %w", translate(err))
	}
	return c, nil
}

func (r pgReader) GetBySlug(ctx context.Context, slug string) (*models.Category, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE lower(slug) = lower($1)`, slug)
	c, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find category by slug %q: %w", slug, taxonomy.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find category by slug: %w", translate(err))
	}
	return c, nil
}

func (r pgReader) ChildrenOf(ctx context.Context, parentID *uuid.UUID, activeOnly bool) ([]models.Category, error) {
	var (
		where []string
		args  []any
	)
	if parentID == nil {
		where = append(where, "parent_id IS NULL")
	} else {
		args = append(args, *parentID)
		where = append(where, fmt.Sprintf("parent_id = $%d", len(args)))
	}
	if activeOnly {
		where = append(where, "is_active = TRUE")
	}

	rows, err := r.q.QueryContext(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE `+strings.Join(where, " AND ")+` ORDER BY name, id`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list children: %w", translate(err))
	}
	defer rows.Close()

	var items []models.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		items = append(items, *c)
	}
	return items, rows.Err()
}

// Ancestors walks parent_id upwards with a recursive CTE. The walk is
// capped one step past limit so that an over-long chain is detected
// without following a corrupt cycle forever.
func (r pgReader) Ancestors(ctx context.Context, id uuid.UUID, limit int) ([]uuid.UUID, error) {
	if _, err := r.Get(ctx, id); err != nil {
		return nil, err
	}

	rows, err := r.q.QueryContext(ctx, `
		WITH RECURSIVE chain(id, parent_id, depth) AS (
			SELECT c.id, c.parent_id, 0
			FROM categories c WHERE c.id = $1
			UNION ALL
			SELECT p.id, p.parent_id, chain.depth + 1
			FROM categories p
			JOIN chain ON p.id = chain.parent_id
			WHERE chain.depth <= $2
		)
		SELECT id FROM chain WHERE depth > 0 ORDER BY depth`,
		id, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ancestors of %s: %w", id, translate(err))
	}
	defer rows.Close()

	chain, err := collectIDs(rows)
	if err != nil {
		return nil, fmt.Errorf("ancestors of %s: %w", id, err)
	}
	if len(chain) > limit {
		return nil, fmt.Errorf("ancestors of %s: %w", id, taxonomy.ErrTooDeep)
	}
	return chain, nil
}

// Descendants walks parent_id downwards and returns the deepest rows first.
func (r pgReader) Descendants(ctx context.Context, id uuid.UUID, limit int) ([]uuid.UUID, error) {
	if _, err := r.Get(ctx, id); err != nil {
		return nil, err
	}

	rows, err := r.q.QueryContext(ctx, `
		WITH RECURSIVE sub(id, depth) AS (
			SELECT c.id, 1
			FROM categories c WHERE c.parent_id = $1
			UNION ALL
			SELECT c.id, sub.depth + 1
			FROM categories c
			JOIN sub ON c.parent_id = sub.id
			WHERE sub.depth <= $2
		)
		SELECT id, depth FROM sub ORDER BY depth DESC, id`,
		id, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("descendants of %s: %w", id, translate(err))
	}
	defer rows.Close()

	var (
		ids      []uuid.UUID
		maxDepth int
	)
	for rows.Next() {
		var (
			d     uuid.UUID
			depth int
		)
		if err := rows.Scan(&d, &depth); err != nil {
			return nil, fmt.Errorf("scan descendant: %w", err)
		}
		if depth > maxDepth {
			maxDepth = depth
		}
		ids = append(ids, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("descendants of %s: %w", id, translate(err))
	}
	if maxDepth > limit {
		return nil, fmt.Errorf("descendants of %s: %w", id, taxonomy.ErrTooDeep)
	}
	return ids, nil
}

func collectIDs(rows *sql.Rows) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, translate(rows.Err())
}

type pgTx struct {
	pgReader
}

// Insert uses ON CONFLICT DO NOTHING so that a taken slug reports
// ErrDuplicateSlug without aborting the surrounding transaction.
func (t *pgTx) Insert(ctx context.Context, c *models.Category) error {
	row := t.q.QueryRowContext(ctx, `
		INSERT INTO categories (id, name, alternate_name, slug, parent_id, is_active, image_ref)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT DO NOTHING
		RETURNING created_at, updated_at`,
		c.ID, c.Name, c.AlternateName, c.Slug, c.ParentID, c.IsActive, c.ImageRef,
	)
	err := row.Scan(&c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("insert category %q: %w", c.Slug, taxonomy.ErrDuplicateSlug)
	}
	if err != nil {
		return fmt.Errorf("insert category: %w", translate(err))
	}
	return nil
}

// Update builds the SET clause from the non-nil patch fields.
func (t *pgTx) Update(ctx context.Context, id uuid.UUID, patch models.CategoryPatch) (*models.Category, error) {
	var (
		sets []string
		args []any
	)
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if patch.Name != nil {
		set("name", *patch.Name)
	}
	if patch.AlternateName != nil {
		set("alternate_name", *patch.AlternateName)
	}
	if patch.Slug != nil {
		set("slug", *patch.Slug)
	}
	if patch.IsActive != nil {
		set("is_active", *patch.IsActive)
	}
	if patch.ImageRef != nil {
		set("image_ref", *patch.ImageRef)
	}
	if patch.SetParent {
		set("parent_id", patch.ParentID)
	}
	if len(sets) == 0 {
		return t.Get(ctx, id)
	}
	sets = append(sets, "updated_at = NOW()")
	args = append(args, id)

	row := t.q.QueryRowContext(ctx,
		`UPDATE categories SET `+strings.Join(sets, ", ")+
			fmt.Sprintf(` WHERE id = $%d RETURNING `, len(args))+categoryColumns,
		args...,
	)
	c, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("update category %s: %w", id, taxonomy.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("update category: %w", translate(err))
	}
	return c, nil
}

// Delete removes a category by ID. The foreign key still refuses to orphan
// children, but the children check itself belongs to the caller.
func (t *pgTx) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := t.q.ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete category: %w", translate(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("delete category %s: %w", id, taxonomy.ErrNotFound)
	}
	return nil
}

// Lock takes FOR UPDATE locks in id order so concurrent movers lock
// overlapping chains in the same order.
func (t *pgTx) Lock(ctx context.Context, ids ...uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}

	rows, err := t.q.QueryContext(ctx,
		`SELECT id FROM categories WHERE id = ANY($1::uuid[]) ORDER BY id FOR UPDATE`,
		keys,
	)
	if err != nil {
		return fmt.Errorf("lock categories: %w", translate(err))
	}
	defer rows.Close()
	for rows.Next() {
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("lock categories: %w", translate(err))
	}
	return nil
}
