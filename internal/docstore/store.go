// Package docstore keeps data source catalogs, pipelines, dictionaries and folders in SQLite.
package docstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/kailas-cloud/fedsearch/internal/domain"
	"github.com/kailas-cloud/fedsearch/internal/domain/docref"
	"github.com/kailas-cloud/fedsearch/internal/domain/field"
	"github.com/kailas-cloud/fedsearch/internal/pipeline"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is the SQLite document store.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies pending migrations.
// Pass ":memory:" for an in-memory database.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create docstore directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open docstore: %w", err)
	}
	// one connection: an in-memory database lives and dies with its connection
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("run docstore migrations: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping docstore: %w", err)
	}
	return nil
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		var version int
		if _, err := fmt.Sscanf(entry.Name(), "%d_", &version); err != nil {
			return fmt.Errorf("parse migration version from %q: %w", entry.Name(), err)
		}

		var applied int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&applied); err != nil {
			return fmt.Errorf("check migration %d: %w", version, err)
		}
		if applied > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", version, err)
		}
	}
	return nil
}

// Catalog returns the field catalog of a data source.
func (s *Store) Catalog(ctx context.Context, ds docref.DocRef) (field.Catalog, error) {
	if err := s.exists(ctx, ds.UUID, docref.TypeDataSource); err != nil {
		return field.Catalog{}, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, type, queryable, doc_ref_type FROM fields
		WHERE data_source = ? ORDER BY position`, ds.UUID)
	if err != nil {
		return field.Catalog{}, fmt.Errorf("query fields of %s: %w", ds.UUID, err)
	}
	defer rows.Close()

	var fields []field.Field
	for rows.Next() {
		var (
			name, typ, refType string
			queryable          bool
		)
		if err := rows.Scan(&name, &typ, &queryable, &refType); err != nil {
			return field.Catalog{}, fmt.Errorf("scan field: %w", err)
		}
		var f field.Field
		if field.Type(typ) == field.DocRef {
			f, err = field.NewDocRef(name, refType, queryable)
		} else {
			f, err = field.New(name, field.Type(typ), queryable)
		}
		if err != nil {
			return field.Catalog{}, fmt.Errorf("data source %s: %w", ds.UUID, err)
		}
		fields = append(fields, f)
	}
	if err := rows.Err(); err != nil {
		return field.Catalog{}, fmt.Errorf("read fields of %s: %w", ds.UUID, err)
	}
	return field.NewCatalog(fields...)
}

// Pipeline returns a stored pipeline definition.
func (s *Store) Pipeline(ctx context.Context, ref docref.DocRef) (pipeline.Definition, error) {
	def := pipeline.Definition{Ref: ref}
	var parser string
	err := s.db.QueryRowContext(ctx, `
		SELECT d.name, p.parser, p.delimiter, p.separator
		FROM pipelines p JOIN docs d ON d.uuid = p.uuid WHERE p.uuid = ?`, ref.UUID,
	).Scan(&def.Ref.Name, &parser, &def.Parser.Delimiter, &def.Parser.Separator)
	if errors.Is(err, sql.ErrNoRows) {
		return pipeline.Definition{}, fmt.Errorf("pipeline %s: %w", ref.UUID, domain.ErrNotFound)
	}
	if err != nil {
		return pipeline.Definition{}, fmt.Errorf("query pipeline %s: %w", ref.UUID, err)
	}
	def.Ref.Type = docref.TypePipeline
	def.Parser.Type = pipeline.ParserType(parser)
	return def, nil
}

// Words returns the lines of a dictionary followed by those of the dictionaries it imports.
// Import cycles are followed once.
func (s *Store) Words(ctx context.Context, dict docref.DocRef) ([]string, error) {
	if err := s.exists(ctx, dict.UUID, docref.TypeDictionary); err != nil {
		return nil, err
	}
	var out []string
	seen := make(map[string]bool)
	var walk func(id string) error
	walk = func(id string) error {
		if seen[id] {
			return nil
		}
		seen[id] = true

		var words string
		err := s.db.QueryRowContext(ctx, "SELECT words FROM dictionaries WHERE uuid = ?", id).Scan(&words)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("query dictionary %s: %w", id, err)
		}
		for _, line := range strings.Split(words, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				out = append(out, line)
			}
		}

		imports, err := s.imports(ctx, id)
		if err != nil {
			return err
		}
		for _, imp := range imports {
			if err := walk(imp); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(dict.UUID); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) imports(ctx context.Context, id string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT imported FROM dictionary_imports WHERE dictionary = ? ORDER BY position", id)
	if err != nil {
		return nil, fmt.Errorf("query imports of %s: %w", id, err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var imp string
		if err := rows.Scan(&imp); err != nil {
			return nil, fmt.Errorf("scan import: %w", err)
		}
		out = append(out, imp)
	}
	return out, rows.Err()
}

// Descendants returns the documents of docType anywhere below folder. An empty docType matches all.
func (s *Store) Descendants(ctx context.Context, folder docref.DocRef, docType string) ([]docref.DocRef, error) {
	if err := s.exists(ctx, folder.UUID, docref.TypeFolder); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		WITH RECURSIVE tree(uuid) AS (
			SELECT uuid FROM docs WHERE parent = ?
			UNION
			SELECT d.uuid FROM docs d JOIN tree t ON d.parent = t.uuid
		)
		SELECT d.uuid, d.type, d.name FROM docs d JOIN tree t ON d.uuid = t.uuid
		WHERE ? = '' OR d.type = ?
		ORDER BY d.name, d.uuid`, folder.UUID, docType, docType)
	if err != nil {
		return nil, fmt.Errorf("query descendants of %s: %w", folder.UUID, err)
	}
	defer rows.Close()

	var out []docref.DocRef
	for rows.Next() {
		var d docref.DocRef
		if err := rows.Scan(&d.UUID, &d.Type, &d.Name); err != nil {
			return nil, fmt.Errorf("scan descendant: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) exists(ctx context.Context, id, docType string) error {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM docs WHERE uuid = ? AND type = ?", id, docType).Scan(&n); err != nil {
		return fmt.Errorf("lookup %s %s: %w", docType, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", docType, id, domain.ErrNotFound)
	}
	return nil
}
