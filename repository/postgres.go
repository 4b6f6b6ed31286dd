package repository

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/lib/pq"

	"github.com/arolang/runtime"
)

// PostgresBackend persists a single named repository's entities to a
// Postgres table, as an alternative to the in-memory store — grounded on
// contrib/postgres's connection-pool handling. Each entity is stored as a
// JSONB column plus an auto-incrementing ordinal so All()/Where() can
// reconstruct insertion order (spec §3's "ordered sequence of entities").
type PostgresBackend struct {
	db    *sql.DB
	table string
	mu    sync.Mutex
}

// NewPostgresBackend opens (or reuses, via db/sql's own pool) a
// connection and ensures the backing table exists. table must already be
// a valid, trusted identifier — it is interpolated into DDL because
// Postgres does not support parameterized identifiers; callers must never
// pass user-controlled input here.
func NewPostgresBackend(db *sql.DB, table string) (*PostgresBackend, error) {
	b := &PostgresBackend{db: db, table: table}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ordinal BIGSERIAL PRIMARY KEY,
		entity JSONB NOT NULL
	)`, table)
	if _, err := db.Exec(ddl); err != nil {
		return nil, fmt.Errorf("repository/postgres: create table %s: %w", table, err)
	}
	return b, nil
}

var _ aro.Repository = (*PostgresBackend)(nil)

func (b *PostgresBackend) Append(entity aro.Value) error {
	encoded, err := aro.ToJSON(entity)
	if err != nil {
		return err
	}
	_, err = b.db.Exec(fmt.Sprintf(`INSERT INTO %s (entity) VALUES ($1)`, b.table), encoded)
	return err
}

func (b *PostgresBackend) All() []aro.Value {
	rows, err := b.db.Query(fmt.Sprintf(`SELECT entity FROM %s ORDER BY ordinal ASC`, b.table))
	if err != nil {
		return nil
	}
	defer rows.Close()
	return b.scanAll(rows)
}

func (b *PostgresBackend) Where(predicate func(aro.Value) bool) []aro.Value {
	var out []aro.Value
	for _, v := range b.All() {
		if predicate(v) {
			out = append(out, v)
		}
	}
	if out == nil {
		out = []aro.Value{}
	}
	return out
}

func (b *PostgresBackend) DeleteWhere(predicate func(aro.Value) bool) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rows, err := b.db.Query(fmt.Sprintf(`SELECT ordinal, entity FROM %s`, b.table))
	if err != nil {
		return 0, err
	}
	type row struct {
		ordinal int64
		entity  aro.Value
	}
	var candidates []row
	for rows.Next() {
		var ordinal int64
		var raw []byte
		if err := rows.Scan(&ordinal, &raw); err != nil {
			rows.Close()
			return 0, err
		}
		v, err := aro.FromJSON(raw)
		if err != nil {
			continue
		}
		candidates = append(candidates, row{ordinal: ordinal, entity: v})
	}
	rows.Close()

	removed := 0
	for _, c := range candidates {
		if predicate(c.entity) {
			if _, err := b.db.Exec(fmt.Sprintf(`DELETE FROM %s WHERE ordinal = $1`, b.table), c.ordinal); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}

func (b *PostgresBackend) Count() int {
	var count int
	_ = b.db.QueryRow(fmt.Sprintf(`SELECT COUNT(*) FROM %s`, b.table)).Scan(&count)
	return count
}

func (b *PostgresBackend) scanAll(rows *sql.Rows) []aro.Value {
	var out []aro.Value
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			continue
		}
		v, err := aro.FromJSON(raw)
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	if out == nil {
		out = []aro.Value{}
	}
	return out
}
