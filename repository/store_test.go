package repository

import (
	"testing"

	"github.com/arolang/runtime"
)

func TestManagerReturnsSameRepositoryForSameKey(t *testing.T) {
	m := NewManager()
	a := m.Repository("orders", "message-repository")
	b := m.Repository("orders", "message-repository")
	if a != b {
		t.Fatal("expected the same repository instance for the same (businessActivity, name)")
	}
}

func TestManagerScopesByBusinessActivity(t *testing.T) {
	m := NewManager()
	a := m.Repository("tenantA", "message-repository")
	b := m.Repository("tenantB", "message-repository")
	a.Append(aro.String("only-in-a"))
	if b.Count() != 0 {
		t.Fatal("repositories for different business activities must not share entities")
	}
}

func TestAppendAndRetrieveAllPreservesOrder(t *testing.T) {
	m := NewManager()
	repo := m.Repository("orders", "message-repository")
	repo.Append(aro.String("first"))
	repo.Append(aro.String("second"))

	all := repo.All()
	if len(all) != 2 {
		t.Fatalf("len(All()) = %d, want 2", len(all))
	}
	if all[0].AsString() != "first" || all[1].AsString() != "second" {
		t.Errorf("order not preserved: %v", []string{all[0].AsString(), all[1].AsString()})
	}
}

func TestEmptyRepositoryRetrieveReturnsEmptyNotError(t *testing.T) {
	m := NewManager()
	repo := m.Repository("orders", "empty-repository")
	all := repo.All()
	if all == nil {
		t.Fatal("All() on an empty repository should return an empty slice, not nil")
	}
	if len(all) != 0 {
		t.Errorf("len = %d, want 0", len(all))
	}
	if repo.Count() != 0 {
		t.Errorf("Count() = %d, want 0", repo.Count())
	}
}

func TestWhereFiltersByPredicate(t *testing.T) {
	m := NewManager()
	repo := m.Repository("orders", "message-repository")
	repo.Append(aro.Int(1))
	repo.Append(aro.Int(2))
	repo.Append(aro.Int(3))

	matched := repo.Where(func(v aro.Value) bool { return v.AsInt() > 1 })
	if len(matched) != 2 {
		t.Fatalf("len(matched) = %d, want 2", len(matched))
	}
}

func TestDeleteWhereRemovesMatchingEntities(t *testing.T) {
	m := NewManager()
	repo := m.Repository("orders", "message-repository")
	repo.Append(aro.Int(1))
	repo.Append(aro.Int(2))
	repo.Append(aro.Int(3))

	removed, err := repo.DeleteWhere(func(v aro.Value) bool { return v.AsInt() == 2 })
	if err != nil {
		t.Fatalf("DeleteWhere: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if repo.Count() != 2 {
		t.Errorf("Count() = %d, want 2", repo.Count())
	}
}

func TestAppendDoesNotMutateSourceValueOnFutureMutation(t *testing.T) {
	m := NewManager()
	repo := m.Repository("orders", "message-repository")
	source := aro.NewOrderedMap()
	source.Set("x", aro.Int(1))
	repo.Append(aro.Map(source))

	source.Set("x", aro.Int(999))

	stored := repo.All()[0]
	if v, _ := stored.AsMap().Get("x"); v.AsInt() != 1 {
		t.Errorf("stored entity mutated after Append; x = %d, want 1", v.AsInt())
	}
}
