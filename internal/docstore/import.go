package docstore

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/fedsearch/internal/domain/docref"
	"github.com/kailas-cloud/fedsearch/internal/domain/field"
	"github.com/kailas-cloud/fedsearch/internal/pipeline"
)

// File is the YAML import format.
type File struct {
	Folders      []Folder     `yaml:"folders"`
	DataSources  []DataSource `yaml:"dataSources"`
	Pipelines    []Pipeline   `yaml:"pipelines"`
	Dictionaries []Dictionary `yaml:"dictionaries"`
}

// Folder is a node of the document tree.
type Folder struct {
	UUID   string `yaml:"uuid"`
	Name   string `yaml:"name"`
	Parent string `yaml:"parent,omitempty"`
}

// FieldDef describes one data source field.
type FieldDef struct {
	Name       string     `yaml:"name"`
	Type       field.Type `yaml:"type"`
	Queryable  *bool      `yaml:"queryable,omitempty"`
	DocRefType string     `yaml:"docRefType,omitempty"`
}

// DataSource is a searchable source with its field catalog.
type DataSource struct {
	UUID   string     `yaml:"uuid"`
	Name   string     `yaml:"name"`
	Folder string     `yaml:"folder,omitempty"`
	Fields []FieldDef `yaml:"fields"`
}

// Pipeline is an extraction pipeline.
type Pipeline struct {
	UUID   string              `yaml:"uuid"`
	Name   string              `yaml:"name"`
	Folder string              `yaml:"folder,omitempty"`
	Parser pipeline.ParserSpec `yaml:"parser"`
}

// Dictionary is a word list that may import other dictionaries.
type Dictionary struct {
	UUID    string   `yaml:"uuid"`
	Name    string   `yaml:"name"`
	Folder  string   `yaml:"folder,omitempty"`
	Words   []string `yaml:"words"`
	Imports []string `yaml:"imports,omitempty"`
}

// Stats counts imported documents.
type Stats struct {
	Folders      int
	DataSources  int
	Pipelines    int
	Dictionaries int
}

// Decode reads an import file.
func Decode(r io.Reader) (*File, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode import file: %w", err)
	}
	return &f, nil
}

// Validate checks the file before anything is written.
func (f *File) Validate() error {
	for _, fo := range f.Folders {
		if _, err := docref.Parse(docref.TypeFolder, fo.UUID, fo.Name); err != nil {
			return err
		}
	}
	for _, ds := range f.DataSources {
		if _, err := docref.Parse(docref.TypeDataSource, ds.UUID, ds.Name); err != nil {
			return err
		}
		fields := make([]field.Field, 0, len(ds.Fields))
		for _, fd := range ds.Fields {
			fl, err := fd.field()
			if err != nil {
				return fmt.Errorf("data source %q: %w", ds.Name, err)
			}
			fields = append(fields, fl)
		}
		if _, err := field.NewCatalog(fields...); err != nil {
			return fmt.Errorf("data source %q: %w", ds.Name, err)
		}
	}
	for _, p := range f.Pipelines {
		ref, err := docref.Parse(docref.TypePipeline, p.UUID, p.Name)
		if err != nil {
			return err
		}
		if err := (pipeline.Definition{Ref: ref, Parser: p.Parser}).Validate(); err != nil {
			return err
		}
	}
	for _, d := range f.Dictionaries {
		if _, err := docref.Parse(docref.TypeDictionary, d.UUID, d.Name); err != nil {
			return err
		}
	}
	return nil
}

// canonicalize rewrites every uuid reference in its canonical lower-case form.
func (f *File) canonicalize() {
	for i := range f.Folders {
		f.Folders[i].UUID, f.Folders[i].Parent = canon(f.Folders[i].UUID), canon(f.Folders[i].Parent)
	}
	for i := range f.DataSources {
		f.DataSources[i].UUID, f.DataSources[i].Folder = canon(f.DataSources[i].UUID), canon(f.DataSources[i].Folder)
	}
	for i := range f.Pipelines {
		f.Pipelines[i].UUID, f.Pipelines[i].Folder = canon(f.Pipelines[i].UUID), canon(f.Pipelines[i].Folder)
	}
	for i := range f.Dictionaries {
		d := &f.Dictionaries[i]
		d.UUID, d.Folder = canon(d.UUID), canon(d.Folder)
		for j := range d.Imports {
			d.Imports[j] = canon(d.Imports[j])
		}
	}
}

func canon(id string) string {
	u, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return id
	}
	return u.String()
}

func (fd FieldDef) field() (field.Field, error) {
	queryable := fd.Queryable == nil || *fd.Queryable
	if fd.Type == field.DocRef {
		return field.NewDocRef(fd.Name, fd.DocRefType, queryable)
	}
	return field.New(fd.Name, fd.Type, queryable)
}

// Import upserts every document of f in one transaction.
func (s *Store) Import(ctx context.Context, f *File) (Stats, error) {
	if err := f.Validate(); err != nil {
		return Stats{}, err
	}
	f.canonicalize()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Stats{}, fmt.Errorf("begin import: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var st Stats
	for _, fo := range f.Folders {
		if err := putDoc(ctx, tx, fo.UUID, docref.TypeFolder, fo.Name, fo.Parent); err != nil {
			return Stats{}, err
		}
		st.Folders++
	}
	for _, ds := range f.DataSources {
		if err := putDataSource(ctx, tx, ds); err != nil {
			return Stats{}, err
		}
		st.DataSources++
	}
	for _, p := range f.Pipelines {
		if err := putDoc(ctx, tx, p.UUID, docref.TypePipeline, p.Name, p.Folder); err != nil {
			return Stats{}, err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO pipelines (uuid, parser, delimiter, separator) VALUES (?, ?, ?, ?)
			ON CONFLICT(uuid) DO UPDATE SET parser = excluded.parser,
				delimiter = excluded.delimiter, separator = excluded.separator`,
			p.UUID, string(p.Parser.Type), p.Parser.Delimiter, p.Parser.Separator); err != nil {
			return Stats{}, fmt.Errorf("upsert pipeline %s: %w", p.UUID, err)
		}
		st.Pipelines++
	}
	for _, d := range f.Dictionaries {
		if err := putDictionary(ctx, tx, d); err != nil {
			return Stats{}, err
		}
		st.Dictionaries++
	}

	if err := tx.Commit(); err != nil {
		return Stats{}, fmt.Errorf("commit import: %w", err)
	}
	return st, nil
}

func putDoc(ctx context.Context, tx *sql.Tx, id, docType, name, parent string) error {
	var p any
	if parent != "" {
		p = parent
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO docs (uuid, type, name, parent) VALUES (?, ?, ?, ?)
		ON CONFLICT(uuid) DO UPDATE SET type = excluded.type, name = excluded.name, parent = excluded.parent`,
		id, docType, name, p); err != nil {
		return fmt.Errorf("upsert %s %s: %w", docType, id, err)
	}
	return nil
}

func putDataSource(ctx context.Context, tx *sql.Tx, ds DataSource) error {
	if err := putDoc(ctx, tx, ds.UUID, docref.TypeDataSource, ds.Name, ds.Folder); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM fields WHERE data_source = ?", ds.UUID); err != nil {
		return fmt.Errorf("clear fields of %s: %w", ds.UUID, err)
	}
	for i, fd := range ds.Fields {
		queryable := fd.Queryable == nil || *fd.Queryable
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO fields (data_source, position, name, type, queryable, doc_ref_type)
			VALUES (?, ?, ?, ?, ?, ?)`,
			ds.UUID, i, strings.TrimSpace(fd.Name), string(fd.Type), queryable, fd.DocRefType); err != nil {
			return fmt.Errorf("insert field %s of %s: %w", fd.Name, ds.UUID, err)
		}
	}
	return nil
}

func putDictionary(ctx context.Context, tx *sql.Tx, d Dictionary) error {
	if err := putDoc(ctx, tx, d.UUID, docref.TypeDictionary, d.Name, d.Folder); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO dictionaries (uuid, words) VALUES (?, ?)
		ON CONFLICT(uuid) DO UPDATE SET words = excluded.words`,
		d.UUID, strings.Join(d.Words, "\n")); err != nil {
		return fmt.Errorf("upsert dictionary %s: %w", d.UUID, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM dictionary_imports WHERE dictionary = ?", d.UUID); err != nil {
		return fmt.Errorf("clear imports of %s: %w", d.UUID, err)
	}
	for i, imp := range d.Imports {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO dictionary_imports (dictionary, imported, position) VALUES (?, ?, ?)",
			d.UUID, imp, i); err != nil {
			return fmt.Errorf("insert import %s of %s: %w", imp, d.UUID, err)
		}
	}
	return nil
}
