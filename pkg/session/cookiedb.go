package session

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Chrome keeps the cookie store under the profile's Default directory.
// Newer releases moved it into a Network subdirectory; older profiles
// still carry it at the legacy location.
const (
	modernCookieRelPath = "Default/Network/Cookies"
	legacyCookieRelPath = "Default/Cookies"
)

// CookieStorePath returns the cookie database location inside a slot's
// user data directory, preferring the modern layout. When neither file
// exists yet the modern path is returned so new writes land there.
func CookieStorePath(userDataDir string) string {
	modern := filepath.Join(userDataDir, filepath.FromSlash(modernCookieRelPath))
	if fileExists(modern) {
		return modern
	}
	legacy := filepath.Join(userDataDir, filepath.FromSlash(legacyCookieRelPath))
	if fileExists(legacy) {
		return legacy
	}
	return modern
}

// ExternalCookiePath locates the cookie database of an external profile
// directory (the profile itself, not a user data dir). Returns "" when
// no cookie store is present.
func ExternalCookiePath(profileDir string) string {
	modern := filepath.Join(profileDir, "Network", "Cookies")
	if fileExists(modern) {
		return modern
	}
	legacy := filepath.Join(profileDir, "Cookies")
	if fileExists(legacy) {
		return legacy
	}
	return ""
}

// isCookieLayoutPath reports whether a manifest entry names one of the two
// cookie store locations inside a user data directory.
func isCookieLayoutPath(relativePath string) bool {
	slashed := filepath.ToSlash(relativePath)
	return slashed == modernCookieRelPath || slashed == legacyCookieRelPath
}

// openReadOnly opens a SQLite database without taking any locks. The
// immutable flag tells SQLite to skip locking entirely, which lets us
// read a database a running browser holds open.
func openReadOnly(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro&immutable=1")
	if err != nil {
		return nil, fmt.Errorf("failed to open database read-only: %w", err)
	}
	return db, nil
}

// CountCookies returns the number of rows in the cookies table of the
// database at path, reading without locks.
func CountCookies(ctx context.Context, path string) (int, error) {
	db, err := openReadOnly(path)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM cookies").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count cookies: %w", err)
	}
	return count, nil
}

type schemaObject struct {
	kind string
	name string
	sql  string
}

// CloneLocked rebuilds the SQLite database at src into dst by reading
// src without locks and replaying its schema and rows. It exists for
// cookie stores held open by a running browser, where a plain file copy
// yields a corrupt snapshot. Returns the number of rows copied.
func CloneLocked(ctx context.Context, src, dst string) (int, error) {
	srcDB, err := openReadOnly(src)
	if err != nil {
		return 0, err
	}
	defer srcDB.Close()

	objects, err := readSchema(ctx, srcDB)
	if err != nil {
		return 0, err
	}
	if len(objects) == 0 {
		return 0, fmt.Errorf("source database has no schema: %s", src)
	}

	// Drop any previous snapshot, including journal companions that
	// would otherwise be replayed against the fresh file.
	for _, p := range []string{dst, dst + "-journal", dst + "-wal", dst + "-shm"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return 0, fmt.Errorf("failed to remove stale snapshot file: %w", err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0750); err != nil {
		return 0, fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	dstDB, err := sql.Open("sqlite", dst)
	if err != nil {
		return 0, fmt.Errorf("failed to create snapshot database: %w", err)
	}
	defer dstDB.Close()

	for _, obj := range objects {
		if _, err := dstDB.ExecContext(ctx, obj.sql); err != nil {
			return 0, fmt.Errorf("failed to recreate %s %q: %w", obj.kind, obj.name, err)
		}
	}

	total := 0
	for _, obj := range objects {
		if obj.kind != "table" {
			continue
		}
		copied, err := copyTable(ctx, srcDB, dstDB, obj.name)
		if err != nil {
			return 0, err
		}
		total += copied
	}

	return total, nil
}

// readSchema enumerates user tables and indexes, tables first so index
// creation finds its targets.
func readSchema(ctx context.Context, db *sql.DB) ([]schemaObject, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT type, name, sql FROM sqlite_master
		WHERE type IN ('table', 'index') AND sql IS NOT NULL AND name NOT LIKE 'sqlite_%'
		ORDER BY CASE type WHEN 'table' THEN 0 ELSE 1 END
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema: %w", err)
	}
	defer rows.Close()

	var objects []schemaObject
	for rows.Next() {
		var obj schemaObject
		if err := rows.Scan(&obj.kind, &obj.name, &obj.sql); err != nil {
			return nil, err
		}
		objects = append(objects, obj)
	}
	return objects, rows.Err()
}

// copyTable streams every row of table from src into dst inside a single
// transaction.
func copyTable(ctx context.Context, src, dst *sql.DB, table string) (int, error) {
	rows, err := src.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %q", table))
	if err != nil {
		return 0, fmt.Errorf("failed to read table %q: %w", table, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return 0, err
	}

	placeholders := ""
	for i := range columns {
		if i > 0 {
			placeholders += ", "
		}
		placeholders += "?"
	}

	tx, err := dst.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %q VALUES (%s)", table, placeholders))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert for table %q: %w", table, err)
	}
	defer stmt.Close()

	count := 0
	values := make([]interface{}, len(columns))
	pointers := make([]interface{}, len(columns))
	for i := range values {
		pointers[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(pointers...); err != nil {
			return 0, fmt.Errorf("failed to scan row from table %q: %w", table, err)
		}
		if _, err := stmt.ExecContext(ctx, values...); err != nil {
			return 0, fmt.Errorf("failed to insert row into table %q: %w", table, err)
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit table %q: %w", table, err)
	}
	return count, nil
}
