package repository

import (
	"database/sql"
	"os"
	"testing"

	"github.com/arolang/runtime"
)

// These tests exercise PostgresBackend against a real database. They are
// skipped unless ARO_TEST_POSTGRES_DSN names a reachable Postgres instance,
// matching the environment-guard style used elsewhere in the pack for
// tests that need infrastructure this process can't provide for itself.
func openTestPostgres(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("ARO_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("ARO_TEST_POSTGRES_DSN not set; skipping Postgres repository backend tests")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Skipf("postgres not reachable: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPostgresBackendAppendAndAll(t *testing.T) {
	db := openTestPostgres(t)
	backend, err := NewPostgresBackend(db, "aro_test_repo_append_all")
	if err != nil {
		t.Fatalf("NewPostgresBackend: %v", err)
	}
	defer db.Exec("DROP TABLE aro_test_repo_append_all")

	entry := aro.NewOrderedMap()
	entry.Set("name", aro.String("widget"))
	if err := backend.Append(aro.Map(entry)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	all := backend.All()
	if len(all) != 1 {
		t.Fatalf("len(All()) = %d, want 1", len(all))
	}
	if v, _ := all[0].AsMap().Get("name"); v.AsString() != "widget" {
		t.Errorf("name = %q, want %q", v.AsString(), "widget")
	}
}

func TestPostgresBackendCountAndDeleteWhere(t *testing.T) {
	db := openTestPostgres(t)
	backend, err := NewPostgresBackend(db, "aro_test_repo_count_delete")
	if err != nil {
		t.Fatalf("NewPostgresBackend: %v", err)
	}
	defer db.Exec("DROP TABLE aro_test_repo_count_delete")

	backend.Append(aro.Int(1))
	backend.Append(aro.Int(2))
	backend.Append(aro.Int(3))

	if backend.Count() != 3 {
		t.Fatalf("Count() = %d, want 3", backend.Count())
	}

	removed, err := backend.DeleteWhere(func(v aro.Value) bool { return v.AsInt() == 2 })
	if err != nil {
		t.Fatalf("DeleteWhere: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if backend.Count() != 2 {
		t.Errorf("Count() = %d, want 2", backend.Count())
	}
}
