// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package slug provides URL-friendly slug generation from arbitrary strings
// and allocation of unique slugs against a caller-supplied lookup.
package slug

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	// DefaultFallback replaces a base name that normalizes to nothing
	// (e.g. a name written entirely in a non-Latin script).
	DefaultFallback = "category"

	// MaxLength leaves headroom for a numeric suffix within a 255-char column.
	MaxLength = 240

	// DefaultMaxProbes bounds how many taken candidates Allocate will skip.
	DefaultMaxProbes = 1000
)

var (
	// whitespace matches runs of any Unicode whitespace.
	whitespace = regexp.MustCompile(`\s+`)
	// disallowed matches anything outside the slug alphabet.
	disallowed = regexp.MustCompile(`[^a-z0-9-]`)
	// multipleHyphens collapses consecutive hyphens into one.
	multipleHyphens = regexp.MustCompile(`-{2,}`)
)

// ErrExhausted is returned when every probed candidate is taken.
var ErrExhausted = errors.New("slug candidates exhausted")

// Generate creates a URL-friendly slug from the given string.
// Example: "Café Rings & Bands 2026" → "cafe-rings-bands-2026"
func Generate(s string) string {
	result := strings.ToLower(strings.TrimSpace(transliterate(s)))
	result = whitespace.ReplaceAllString(result, "-")
	result = disallowed.ReplaceAllString(result, "")
	result = multipleHyphens.ReplaceAllString(result, "-")
	result = strings.Trim(result, "-")
	if len(result) > MaxLength {
		result = strings.TrimRight(result[:MaxLength], "-")
	}
	return result
}

// transliterate strips combining marks so accented Latin letters survive
// as their base letter instead of being dropped.
func transliterate(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Candidate returns the n-th candidate for root: root itself for n <= 1,
// root-n otherwise.
func Candidate(root string, n int) string {
	if n <= 1 {
		return root
	}
	return root + "-" + strconv.Itoa(n)
}

// Lookup reports whether a candidate slug is already in use.
type Lookup func(ctx context.Context, candidate string) (bool, error)

// Allocator derives unique slugs. The probe is advisory only: the store's
// unique constraint is the final arbiter, so callers resume at the next
// suffix when an insert still collides.
type Allocator struct {
	Fallback  string
	MaxProbes int
}

// NewAllocator returns an Allocator with the default fallback and probe limit.
func NewAllocator() *Allocator {
	return &Allocator{Fallback: DefaultFallback, MaxProbes: DefaultMaxProbes}
}

// Root normalizes base, substituting the fallback for an empty result.
func (a *Allocator) Root(base string) string {
	root := Generate(base)
	if root == "" {
		root = a.Fallback
		if root == "" {
			root = DefaultFallback
		}
	}
	return root
}

// Allocate returns the first free candidate for base starting at suffix
// from, along with that suffix.
func (a *Allocator) Allocate(ctx context.Context, base string, from int, taken Lookup) (string, int, error) {
	root := a.Root(base)
	if from < 1 {
		from = 1
	}
	limit := a.MaxProbes
	if limit <= 0 {
		limit = DefaultMaxProbes
	}

	for n := from; n < from+limit; n++ {
		candidate := Candidate(root, n)
		used, err := taken(ctx, candidate)
		if err != nil {
			return "", 0, fmt.Errorf("probe slug %q: %w", candidate, err)
		}
		if !used {
			return candidate, n, nil
		}
	}
	return "", 0, fmt.Errorf("%w: %q after %d probes", ErrExhausted, root, limit)
}
