package slug

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// TestGenerate exercises the slug generator with typical category names,
// special characters, unicode, and boundary conditions.
func TestGenerate(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		// --- Normal names ---
		{name: "simple two words", input: "Women's Necklaces", want: "womens-necklaces"},
		{name: "single word", input: "Jewelry", want: "jewelry"},
		{name: "already a slug", input: "evil-eye-bracelet", want: "evil-eye-bracelet"},
		{name: "name with year", input: "Collection 2026", want: "collection-2026"},

		// --- Special characters ---
		{name: "ampersand and at sign", input: "Rock & Roll @ the Arena", want: "rock-roll-the-arena"},
		{name: "parentheses and brackets", input: "Version (2.0) [Beta]", want: "version-20-beta"},
		{name: "slashes and pipes", input: "Rings/Bands | Silver", want: "ringsbands-silver"},
		{name: "plus and equals", input: "1 + 1 = 2", want: "1-1-2"},
		{name: "typographic apostrophe", input: "Women’s Products", want: "womens-products"},

		// --- Unicode ---
		{name: "accented latin transliterated", input: "Café Crème", want: "cafe-creme"},
		{name: "german umlauts transliterated", input: "Über die Brücke", want: "uber-die-brucke"},
		{name: "cjk dropped", input: "日本語 Rings", want: "rings"},
		{name: "persian only", input: "گردنبند زنانه", want: ""},

		// --- Whitespace handling ---
		{name: "leading and trailing spaces", input: "  pearl necklace  ", want: "pearl-necklace"},
		{name: "multiple spaces collapsed", input: "pearl     necklace", want: "pearl-necklace"},
		{name: "tabs become separators", input: "pearl\tnecklace", want: "pearl-necklace"},
		{name: "newlines become separators", input: "pearl\nnecklace", want: "pearl-necklace"},

		// --- Hyphen handling ---
		{name: "leading hyphens", input: "---rings", want: "rings"},
		{name: "trailing hyphens", input: "rings---", want: "rings"},
		{name: "hyphens and spaces mixed", input: "  --chain -- bracelet--  ", want: "chain-bracelet"},

		// --- Edge cases ---
		{name: "empty string", input: "", want: ""},
		{name: "only spaces", input: "     ", want: ""},
		{name: "only special characters", input: "!@#$%^&*()", want: ""},
		{name: "single character", input: "A", want: "a"},
		{name: "date-like string", input: "2026-02-25", want: "2026-02-25"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Generate(tt.input)
			if got != tt.want {
				t.Errorf("Generate(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestGenerate_Truncates(t *testing.T) {
	input := strings.Repeat("ab ", 200)
	got := Generate(input)
	if len(got) > MaxLength {
		t.Fatalf("len = %d, want <= %d", len(got), MaxLength)
	}
	if strings.HasSuffix(got, "-") {
		t.Errorf("truncated slug %q ends with a separator", got)
	}
}

// TestGenerate_Idempotent verifies that generating a slug from an already
// valid slug produces the same result.
func TestGenerate_Idempotent(t *testing.T) {
	for _, s := range []string{"jewelry", "womens-products", "a", "123", "jewelry-2"} {
		t.Run(s, func(t *testing.T) {
			if got := Generate(s); got != s {
				t.Errorf("Generate(%q) = %q, want idempotent result", s, got)
			}
		})
	}
}

func TestCandidate(t *testing.T) {
	tests := []struct {
		n    int
		want string
	}{
		{0, "rings"},
		{1, "rings"},
		{2, "rings-2"},
		{17, "rings-17"},
	}
	for _, tt := range tests {
		if got := Candidate("rings", tt.n); got != tt.want {
			t.Errorf("Candidate(rings, %d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

// takenSet builds a Lookup backed by a fixed set of used slugs.
func takenSet(used ...string) Lookup {
	set := make(map[string]bool, len(used))
	for _, u := range used {
		set[u] = true
	}
	return func(_ context.Context, candidate string) (bool, error) {
		return set[candidate], nil
	}
}

func TestAllocate(t *testing.T) {
	a := NewAllocator()
	ctx := context.Background()

	t.Run("free base is used as is", func(t *testing.T) {
		got, n, err := a.Allocate(ctx, "Jewelry", 1, takenSet())
		if err != nil {
			t.Fatalf("Allocate: %v", err)
		}
		if got != "jewelry" || n != 1 {
			t.Errorf("got (%q, %d), want (jewelry, 1)", got, n)
		}
	})

	t.Run("taken base gets numeric suffix", func(t *testing.T) {
		got, n, err := a.Allocate(ctx, "Jewelry", 1, takenSet("jewelry", "jewelry-2"))
		if err != nil {
			t.Fatalf("Allocate: %v", err)
		}
		if got != "jewelry-3" || n != 3 {
			t.Errorf("got (%q, %d), want (jewelry-3, 3)", got, n)
		}
	})

	t.Run("resumes from given suffix", func(t *testing.T) {
		got, _, err := a.Allocate(ctx, "Jewelry", 4, takenSet())
		if err != nil {
			t.Fatalf("Allocate: %v", err)
		}
		if got != "jewelry-4" {
			t.Errorf("got %q, want jewelry-4", got)
		}
	})

	t.Run("empty normalization uses fallback", func(t *testing.T) {
		got, _, err := a.Allocate(ctx, "گردنبند", 1, takenSet("category"))
		if err != nil {
			t.Fatalf("Allocate: %v", err)
		}
		if got != "category-2" {
			t.Errorf("got %q, want category-2", got)
		}
	})

	t.Run("bounded probing", func(t *testing.T) {
		small := &Allocator{Fallback: DefaultFallback, MaxProbes: 3}
		_, _, err := small.Allocate(ctx, "x", 1, takenSet("x", "x-2", "x-3"))
		if !errors.Is(err, ErrExhausted) {
			t.Errorf("err = %v, want ErrExhausted", err)
		}
	})

	t.Run("lookup errors propagate", func(t *testing.T) {
		boom := errors.New("boom")
		_, _, err := a.Allocate(ctx, "x", 1, func(context.Context, string) (bool, error) {
			return false, boom
		})
		if !errors.Is(err, boom) {
			t.Errorf("err = %v, want boom", err)
		}
	})
}
