// Package settings persists hub configuration as a hierarchical key/value
// tree backed by SQLite. Groups are slash-separated paths ("DeviceConfig/<id>/Params");
// each entry stores a typed value that round-trips losslessly through its
// string encoding.
package settings

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/hearth-home/hearth/pkg/models"
	"golang.org/x/mod/semver"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// ErrNewerSchema is returned when the database was created by a newer version
// of Hearth than the currently running binary.
var ErrNewerSchema = fmt.Errorf("database was created by a newer version of Hearth")

// Store is the SQLite-backed settings tree.
type Store struct {
	db *sql.DB
	mu sync.Mutex // Serialize schema setup
}

// Open opens (or creates) the settings database at the given path and applies
// recommended pragmas for WAL mode and performance.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}

	// SQLite performs best with a single write connection. WAL enables concurrent readers.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite %q: %w", path, err)
	}

	// Apply recommended pragmas (modernc.org/sqlite requires SQL statements, not DSN params).
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA cache_size=-20000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec %q: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.ensureSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// DB returns the underlying *sql.DB for direct queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Tx executes fn within a database transaction. The transaction is
// committed if fn returns nil, rolled back otherwise.
func (s *Store) Tx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original: %w)", rbErr, err)
		}
		return err
	}

	return tx.Commit()
}

// SetValue writes one entry, replacing any previous value under the same
// group and key.
func (s *Store) SetValue(ctx context.Context, group, key string, value models.Value) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (grp, key, value_type, value) VALUES (?, ?, ?, ?)
		ON CONFLICT (grp, key) DO UPDATE SET value_type = excluded.value_type, value = excluded.value
	`, group, key, string(value.Type()), value.Encode())
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", group, key, err)
	}
	return nil
}

// SetValueTx is SetValue inside a caller-held transaction.
func (s *Store) SetValueTx(ctx context.Context, tx *sql.Tx, group, key string, value models.Value) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO settings (grp, key, value_type, value) VALUES (?, ?, ?, ?)
		ON CONFLICT (grp, key) DO UPDATE SET value_type = excluded.value_type, value = excluded.value
	`, group, key, string(value.Type()), value.Encode())
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", group, key, err)
	}
	return nil
}

// Value reads one entry. The second return is false when the entry does not
// exist.
func (s *Store) Value(ctx context.Context, group, key string) (models.Value, bool, error) {
	var typ, enc string
	err := s.db.QueryRowContext(ctx,
		"SELECT value_type, value FROM settings WHERE grp = ? AND key = ?",
		group, key,
	).Scan(&typ, &enc)
	if err == sql.ErrNoRows {
		return models.Value{}, false, nil
	}
	if err != nil {
		return models.Value{}, false, fmt.Errorf("get %s/%s: %w", group, key, err)
	}
	v, derr := models.DecodeValue(models.ValueType(typ), enc)
	if derr != nil {
		return models.Value{}, false, fmt.Errorf("decode %s/%s: %w", group, key, derr)
	}
	return v, true, nil
}

// Keys returns the key names stored directly in the given group, sorted.
func (s *Store) Keys(ctx context.Context, group string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT key FROM settings WHERE grp = ? ORDER BY key",
		group,
	)
	if err != nil {
		return nil, fmt.Errorf("keys of %s: %w", group, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// ChildGroups returns the distinct direct child segments below prefix,
// sorted. With prefix "DeviceConfig" and stored groups
// "DeviceConfig/a/Params" and "DeviceConfig/b", it returns ["a", "b"].
func (s *Store) ChildGroups(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT grp FROM settings WHERE grp = ? OR grp LIKE ? ORDER BY grp",
		prefix, prefix+"/%",
	)
	if err != nil {
		return nil, fmt.Errorf("child groups of %s: %w", prefix, err)
	}
	defer rows.Close()

	seen := map[string]bool{}
	var children []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, err
		}
		rest, ok := strings.CutPrefix(g, prefix+"/")
		if !ok {
			continue
		}
		child, _, _ := strings.Cut(rest, "/")
		if child == "" || seen[child] {
			continue
		}
		seen[child] = true
		children = append(children, child)
	}
	return children, rows.Err()
}

// RemoveGroup deletes the group and its entire subtree.
func (s *Store) RemoveGroup(ctx context.Context, prefix string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM settings WHERE grp = ? OR grp LIKE ?",
		prefix, prefix+"/%",
	)
	if err != nil {
		return fmt.Errorf("remove group %s: %w", prefix, err)
	}
	return nil
}

// RemoveGroupTx is RemoveGroup inside a caller-held transaction.
func (s *Store) RemoveGroupTx(ctx context.Context, tx *sql.Tx, prefix string) error {
	_, err := tx.ExecContext(ctx,
		"DELETE FROM settings WHERE grp = ? OR grp LIKE ?",
		prefix, prefix+"/%",
	)
	if err != nil {
		return fmt.Errorf("remove group %s: %w", prefix, err)
	}
	return nil
}

// CheckVersion compares the running binary version against the version stored
// in the database. It prevents an older binary from opening a database created
// by a newer version. The special version "dev" always passes (both as stored
// and as current).
func (s *Store) CheckVersion(ctx context.Context, currentVersion string) error {
	var stored string
	err := s.db.QueryRowContext(ctx,
		"SELECT app_version FROM _schema_meta WHERE id = 1",
	).Scan(&stored)

	if err == sql.ErrNoRows {
		// First run: record the current version.
		_, err = s.db.ExecContext(ctx,
			"INSERT INTO _schema_meta (id, app_version, updated_at) VALUES (1, ?, CURRENT_TIMESTAMP)",
			currentVersion,
		)
		if err != nil {
			return fmt.Errorf("insert schema version: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("query schema version: %w", err)
	}

	// "dev" always passes -- useful for local development.
	if stored == "dev" || currentVersion == "dev" {
		return s.updateVersion(ctx, currentVersion)
	}

	cur := normalizeVersion(currentVersion)
	sto := normalizeVersion(stored)

	if semver.Compare(cur, sto) < 0 {
		return fmt.Errorf("%w: database=%s, binary=%s", ErrNewerSchema, stored, currentVersion)
	}
	if semver.Compare(cur, sto) > 0 {
		return s.updateVersion(ctx, currentVersion)
	}
	return nil
}

func (s *Store) updateVersion(ctx context.Context, version string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE _schema_meta SET app_version = ?, updated_at = CURRENT_TIMESTAMP WHERE id = 1",
		version,
	)
	if err != nil {
		return fmt.Errorf("update schema version: %w", err)
	}
	return nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stmts := []string{`
		CREATE TABLE IF NOT EXISTS settings (
			grp        TEXT NOT NULL,
			key        TEXT NOT NULL,
			value_type TEXT NOT NULL,
			value      TEXT NOT NULL,
			PRIMARY KEY (grp, key)
		)
	`, `
		CREATE TABLE IF NOT EXISTS _schema_meta (
			id           INTEGER  PRIMARY KEY CHECK (id = 1),
			app_version  TEXT     NOT NULL,
			updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// normalizeVersion ensures the version string has a "v" prefix for semver comparison.
func normalizeVersion(v string) string {
	if v != "" && v[0] != 'v' {
		return "v" + v
	}
	return v
}
