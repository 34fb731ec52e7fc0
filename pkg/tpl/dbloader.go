package tpl

import (
	"database/sql"
	"errors"
	"fmt"
	"iter"
)

// DBLoader serves template content from a database table holding
// (path, content) rows. It issues plain database/sql queries and works with
// any registered driver; the stagehand CLI wires it to SQLite. Loads return
// inline content, never file references.
//
// The table name is interpolated into SQL statements and must come from
// trusted configuration, not user input.
type DBLoader struct {
	db    *sql.DB
	table string
}

// NewDBLoader creates a DBLoader reading from the given table.
func NewDBLoader(db *sql.DB, table string) *DBLoader {
	return &DBLoader{db: db, table: table}
}

// SetupSchema creates the template table if it does not exist yet. It is
// safe to call on every startup.
func SetupSchema(db *sql.DB, table string) error {
	_, err := db.Exec(fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %q (
			path    TEXT PRIMARY KEY,
			content TEXT NOT NULL
		);`, table))
	if err != nil {
		return fmt.Errorf("failed to create template table %q: %w", table, err)
	}
	return nil
}

func (l *DBLoader) IterPaths() iter.Seq[string] {
	return func(yield func(string) bool) {
		rows, err := l.db.Query(fmt.Sprintf(`SELECT path FROM %q ORDER BY path`, l.table))
		if err != nil {
			return
		}
		defer func() {
			_ = rows.Close()
		}()
		for rows.Next() {
			var p string
			if err := rows.Scan(&p); err != nil {
				return
			}
			if !yield(p) {
				return
			}
		}
	}
}

func (l *DBLoader) Load(path string) (Source, error) {
	var content string
	err := l.db.QueryRow(fmt.Sprintf(
		`SELECT content FROM %q WHERE path = ?`, l.table), path).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return Source{}, notFound(path)
	}
	if err != nil {
		return Source{}, fmt.Errorf("failed to load %q: %w", path, err)
	}
	return Source{Content: content}, nil
}

func (l *DBLoader) IsValid(path string) bool {
	var one int
	err := l.db.QueryRow(fmt.Sprintf(
		`SELECT 1 FROM %q WHERE path = ?`, l.table), path).Scan(&one)
	return err == nil
}

func (l *DBLoader) Hash(path string) (string, error) {
	src, err := l.Load(path)
	if err != nil {
		return "", err
	}
	return HashSource(src)
}
