package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/quill/internal/query"
	"github.com/roach88/quill/internal/querysql"
	"github.com/roach88/quill/internal/schema"
	"github.com/roach88/quill/internal/value"
)

// Store is the SQLite storage collaborator. It compiles query plans to
// parameterized SQL and runs them, returning raw rows for the engine to
// materialize. Uses WAL mode for concurrent read access.
type Store struct {
	db       *sql.DB
	compiler *querysql.Compiler
}

// Open creates or opens a SQLite database at the given path.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// This function is idempotent - safe to call multiple times.
func Open(path string, registry *schema.Registry) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	return &Store{db: db, compiler: querysql.NewCompiler(registry)}, nil
}

// OpenInMemory opens a private in-memory database. Used by tests and the
// CLI's --db=:memory: mode.
func OpenInMemory(registry *schema.Registry) (*Store, error) {
	return Open(":memory:", registry)
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer Store methods when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Compile turns a query plan into an opaque storage plan.
func (s *Store) Compile(plan query.Plan) (any, error) {
	return s.compiler.Compile(plan)
}

// CompileAggregate turns a plan's reduction requests into an opaque
// storage plan.
func (s *Store) CompileAggregate(plan query.Plan) (any, error) {
	return s.compiler.CompileAggregate(plan)
}

// CompileJoin builds the batched child query for a many-to-many load.
func (s *Store) CompileJoin(link schema.Relationship, target query.Plan, parentIDs []value.Value, parentCol string) (any, error) {
	return s.compiler.CompileJoin(link, target, parentIDs, parentCol)
}

// Run executes a compiled storage plan and returns the raw rows as
// column-name → driver-value maps. The caller's context bounds the call.
func (s *Store) Run(ctx context.Context, sp any) ([]map[string]any, error) {
	stmt, ok := sp.(*querysql.Statement)
	if !ok {
		return nil, fmt.Errorf("unexpected storage plan type %T", sp)
	}

	rows, err := s.db.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, fmt.Errorf("run query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	var out []map[string]any
	for rows.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		m := make(map[string]any, len(cols))
		for i, c := range cols {
			m[c] = raw[i]
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// RunAggregate executes a compiled aggregate plan and returns the single
// result row as a name → driver-value map.
func (s *Store) RunAggregate(ctx context.Context, sp any) (map[string]any, error) {
	rows, err := s.Run(ctx, sp)
	if err != nil {
		return nil, err
	}
	if len(rows) != 1 {
		return nil, fmt.Errorf("aggregate returned %d rows, want 1", len(rows))
	}
	return rows[0], nil
}

// Insert adds one row and returns its generated identifier. Column order
// is normalized so the statement text is deterministic.
func (s *Store) Insert(ctx context.Context, table string, values map[string]any) (int64, error) {
	cols := sortedKeys(values)
	placeholders := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		placeholders[i] = "?"
		args[i] = values[c]
	}

	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), strings.Join(placeholders, ", ")),
		args...)
	if err != nil {
		return 0, fmt.Errorf("insert into %s: %w", table, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// Update sets columns on the row identified by (pkCol, id). Returns the
// number of rows affected.
func (s *Store) Update(ctx context.Context, table, pkCol string, id any, values map[string]any) (int64, error) {
	cols := sortedKeys(values)
	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+1)
	for i, c := range cols {
		sets[i] = c + " = ?"
		args = append(args, values[c])
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?", table, strings.Join(sets, ", "), pkCol),
		args...)
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", table, err)
	}
	return res.RowsAffected()
}

// Delete removes the row identified by (pkCol, id). Returns the number of
// rows affected.
func (s *Store) Delete(ctx context.Context, table, pkCol string, id any) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE %s = ?", table, pkCol), id)
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", table, err)
	}
	return res.RowsAffected()
}

func sortedKeys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}
