package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"taxonomy/internal/models"
	"taxonomy/internal/taxonomy"
)

func TestMemoryStoreReparentMovesChildIndex(t *testing.T) {
	ctx := context.Background()
	f := fixture{store: NewMemoryStore(), prefix: "m-"}
	a := f.insert(t, "A", nil)
	b := f.insert(t, "B", nil)
	c := f.insert(t, "C", a)

	err := f.store.InTx(ctx, func(tx taxonomy.Tx) error {
		pid := b.ID
		_, err := tx.Update(ctx, c.ID, models.CategoryPatch{SetParent: true, ParentID: &pid})
		return err
	})
	if err != nil {
		t.Fatalf("reparent: %v", err)
	}

	underA, _ := f.store.ChildrenOf(ctx, &a.ID, false)
	underB, _ := f.store.ChildrenOf(ctx, &b.ID, false)
	if len(underA) != 0 {
		t.Errorf("A still has %d children", len(underA))
	}
	if len(underB) != 1 || underB[0].ID != c.ID {
		t.Errorf("B children = %v, want [C]", idsOf(underB))
	}
}

func TestMemoryStoreSlugChangeFreesOldSlug(t *testing.T) {
	ctx := context.Background()
	f := fixture{store: NewMemoryStore(), prefix: "m-"}
	a := f.insert(t, "A", nil)

	err := f.store.InTx(ctx, func(tx taxonomy.Tx) error {
		s := "m-renamed"
		_, err := tx.Update(ctx, a.ID, models.CategoryPatch{Slug: &s})
		return err
	})
	if err != nil {
		t.Fatalf("change slug: %v", err)
	}

	if _, err := f.store.GetBySlug(ctx, "m-a"); !errors.Is(err, taxonomy.ErrNotFound) {
		t.Errorf("old slug still resolves: %v", err)
	}
	// The old slug can be reused.
	f.insert(t, "A", nil)
}

func TestMemoryStoreUpdateRejectsTakenSlug(t *testing.T) {
	ctx := context.Background()
	f := fixture{store: NewMemoryStore(), prefix: "m-"}
	f.insert(t, "A", nil)
	b := f.insert(t, "B", nil)

	err := f.store.InTx(ctx, func(tx taxonomy.Tx) error {
		s := "M-A"
		_, err := tx.Update(ctx, b.ID, models.CategoryPatch{Slug: &s})
		return err
	})
	if !errors.Is(err, taxonomy.ErrDuplicateSlug) {
		t.Errorf("err = %v, want ErrDuplicateSlug", err)
	}
}

func TestMemoryStoreInsertRequiresParent(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	missing := uuid.New()
	err := m.InTx(ctx, func(tx taxonomy.Tx) error {
		return tx.Insert(ctx, &models.Category{ID: uuid.New(), Name: "X", Slug: "x", ParentID: &missing, IsActive: true})
	})
	if !errors.Is(err, taxonomy.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if m.Len() != 0 {
		t.Errorf("Len = %d, want 0", m.Len())
	}
}

func TestMemoryStoreConcurrentTransactions(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	const workers = 20
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := m.InTx(ctx, func(tx taxonomy.Tx) error {
				return tx.Insert(ctx, &models.Category{
					ID:       uuid.New(),
					Name:     "Worker",
					Slug:     "worker-" + uuid.NewString(),
					IsActive: i%2 == 0,
				})
			})
			if err != nil {
				t.Errorf("insert: %v", err)
			}
		}()
	}
	wg.Wait()

	if m.Len() != workers {
		t.Errorf("Len = %d, want %d", m.Len(), workers)
	}
}
