// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package taxonomy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"taxonomy/internal/models"
	"taxonomy/internal/slug"
)

// SeedEntry is one category in a seed file. Parent names the parent by
// slug; empty means root.
type SeedEntry struct {
	Name          string `yaml:"name"`
	AlternateName string `yaml:"alternate_name"`
	Slug          string `yaml:"slug"`
	Parent        string `yaml:"parent"`
}

type seedFile struct {
	Categories []SeedEntry `yaml:"categories"`
}

// ParseSeed reads a YAML seed file of the form
//
//	categories:
//	  - name: Women's Products
//	    slug: womens-products
//	  - name: Pearl Necklace
//	    slug: pearl-necklace
//	    parent: womens-products
func ParseSeed(r io.Reader) ([]SeedEntry, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f seedFile
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode seed file: %w", err)
	}
	return f.Categories, nil
}

// SeedOptions controls Seed.
type SeedOptions struct {
	// DryRun computes the report inside a transaction that is rolled back.
	DryRun bool
	// UpdateNames refreshes names of existing slugs and re-activates them.
	UpdateNames bool
}

// SeedReport summarizes what Seed did (or would do).
type SeedReport struct {
	Created        int      `json:"created"`
	Updated        int      `json:"updated"`
	Linked         int      `json:"linked"`
	MissingParents []string `json:"missing_parents,omitempty"`
	DryRun         bool     `json:"dry_run"`
}

// Seed upserts a flat list of categories keyed by slug in one transaction.
// The first pass creates missing slugs (and optionally refreshes names); the
// second links every entry to its parent slug. Entries whose parent cannot
// be found are left where they are and listed in the report.
func (s *Service) Seed(ctx context.Context, entries []SeedEntry, opts SeedOptions) (*SeedReport, error) {
	const op = "seed"

	plan, err := s.normalizeSeed(entries)
	if err != nil {
		return nil, err
	}

	var report *SeedReport
	err = s.mutate(ctx, op, func(ctx context.Context, tx Tx) error {
		r := &SeedReport{DryRun: opts.DryRun}
		bySlug := make(map[string]*models.Category, len(plan))

		for _, e := range plan {
			existing, err := tx.GetBySlug(ctx, e.Slug)
			switch {
			case errors.Is(err, ErrNotFound):
				c := &models.Category{
					ID:            uuid.New(),
					Name:          e.Name,
					AlternateName: e.AlternateName,
					Slug:          e.Slug,
					IsActive:      true,
				}
				if err := tx.Insert(ctx, c); err != nil {
					if errors.Is(err, ErrDuplicateSlug) {
						return opError(op, c.ID, ErrConflict, "slug "+e.Slug+" created concurrently")
					}
					return err
				}
				r.Created++
				bySlug[e.Slug] = c
			case err != nil:
				return err
			default:
				if opts.UpdateNames {
					if patch, changed := refreshPatch(existing, e); changed {
						existing, err = tx.Update(ctx, existing.ID, patch)
						if err != nil {
							return err
						}
						r.Updated++
					}
				}
				bySlug[e.Slug] = existing
			}
		}

		for _, e := range plan {
			child := bySlug[e.Slug]

			var want *uuid.UUID
			var chain []uuid.UUID
			if e.Parent != "" {
				parent, ok := bySlug[e.Parent]
				if !ok {
					found, err := tx.GetBySlug(ctx, e.Parent)
					if errors.Is(err, ErrNotFound) {
						r.MissingParents = append(r.MissingParents, e.Slug+" -> "+e.Parent)
						continue
					}
					if err != nil {
						return err
					}
					parent = found
					bySlug[e.Parent] = found
				}

				pid := parent.ID
				var err error
				chain, err = ancestors(ctx, tx, op, pid, s.maxDepth)
				if err != nil {
					return err
				}
				if pid == child.ID || slices.Contains(chain, child.ID) {
					return opError(op, child.ID, ErrCycleDetected, e.Slug+" under "+e.Parent)
				}
				want = &pid
			}

			if sameParent(child.ParentID, want) {
				continue
			}
			if want != nil {
				height, err := s.subtreeHeight(ctx, tx, op, child.ID)
				if err != nil {
					return err
				}
				if err := s.checkDepth(op, child.ID, chain, height); err != nil {
					return err
				}
			}
			updated, err := tx.Update(ctx, child.ID, models.CategoryPatch{SetParent: true, ParentID: want})
			if err != nil {
				return err
			}
			bySlug[e.Slug] = updated
			r.Linked++
		}

		report = r
		if opts.DryRun {
			return errRollback
		}
		return nil
	})
	if err != nil && !errors.Is(err, errRollback) {
		return nil, err
	}

	slog.Info("category seed applied",
		"dry_run", report.DryRun,
		"created", report.Created,
		"updated", report.Updated,
		"linked", report.Linked,
		"missing_parents", len(report.MissingParents),
	)
	return report, nil
}

// normalizeSeed validates entries and normalizes their slugs.
func (s *Service) normalizeSeed(entries []SeedEntry) ([]SeedEntry, error) {
	const op = "seed"

	plan := make([]SeedEntry, 0, len(entries))
	seen := make(map[string]int, len(entries))
	for i, e := range entries {
		e.Name = strings.TrimSpace(e.Name)
		e.AlternateName = strings.TrimSpace(e.AlternateName)
		if e.Name == "" {
			return nil, validationError(op, fmt.Sprintf("entry %d: name is required", i+1))
		}

		if strings.TrimSpace(e.Slug) == "" {
			base := e.Name
			if e.AlternateName != "" {
				base = e.AlternateName
			}
			e.Slug = s.slugs.Root(base)
		} else {
			e.Slug = slug.Generate(e.Slug)
			if e.Slug == "" {
				return nil, validationError(op, fmt.Sprintf("entry %d: slug normalizes to nothing", i+1))
			}
		}
		if prev, dup := seen[e.Slug]; dup {
			return nil, validationError(op, fmt.Sprintf("entry %d: slug %q already used by entry %d", i+1, e.Slug, prev))
		}
		seen[e.Slug] = i + 1

		if e.Parent != "" {
			e.Parent = slug.Generate(e.Parent)
			if e.Parent == e.Slug {
				return nil, opError(op, uuid.Nil, ErrCycleDetected, e.Slug+" is its own parent")
			}
		}
		plan = append(plan, e)
	}
	return plan, nil
}

// refreshPatch builds the update that brings c in line with e.
func refreshPatch(c *models.Category, e SeedEntry) (models.CategoryPatch, bool) {
	var patch models.CategoryPatch
	if c.Name != e.Name {
		name := e.Name
		patch.Name = &name
	}
	if c.AlternateName != e.AlternateName {
		alt := e.AlternateName
		patch.AlternateName = &alt
	}
	if !c.IsActive {
		active := true
		patch.IsActive = &active
	}
	return patch, !patch.Empty()
}

func sameParent(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
