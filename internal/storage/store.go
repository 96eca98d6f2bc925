// Package storage persists tables under the local, shared and
// inter-process roots. Every stored table is a directory pair
// root/<logical path>/<encoding>/{data, schema} where the schema file holds
// the table's DDL on one line.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"ppexec/internal/domain"
	"ppexec/internal/frame"
	"ppexec/internal/table"
)

// Encoding is the physical representation of a stored table. Its value is
// the directory name used on disk.
type Encoding string

// Supported encodings.
const (
	Row      Encoding = "jsonl"
	Columnar Encoding = "parquet"
)

// IndexName names the row index of every table read from storage.
const IndexName = "Index"

// probeOrder is the order ReadAny looks for encodings in.
var probeOrder = []Encoding{Columnar, Row}

// Roots maps the storage kinds to filesystem directories.
type Roots struct {
	Local        string
	Shared       string
	InterProcess string
}

// Path returns the directory of a storage root.
func (r Roots) Path(kind domain.StorageKind) (string, error) {
	var p string
	switch kind {
	case domain.StorageLocal:
		p = r.Local
	case domain.StorageShared:
		p = r.Shared
	case domain.StorageInterProcess:
		p = r.InterProcess
	default:
		return "", fmt.Errorf("unknown storage kind %s", kind)
	}
	if p == "" {
		return "", fmt.Errorf("storage root %s is not configured", kind)
	}
	return p, nil
}

// Layout holds the file names inside an encoding directory.
type Layout struct {
	DataFile   string
	SchemaFile string
}

// DefaultLayout returns the standard data and schema file names.
func DefaultLayout() Layout {
	return Layout{DataFile: "data", SchemaFile: "_SCHEMA"}
}

// Store reads and writes tables under a set of roots.
type Store struct {
	roots  Roots
	layout Layout
	logger *slog.Logger
}

// New creates a Store. Empty layout names fall back to the defaults.
func New(roots Roots, layout Layout, logger *slog.Logger) *Store {
	def := DefaultLayout()
	if layout.DataFile == "" {
		layout.DataFile = def.DataFile
	}
	if layout.SchemaFile == "" {
		layout.SchemaFile = def.SchemaFile
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{roots: roots, layout: layout, logger: logger.With("component", "storage")}
}

// Roots returns the configured roots.
func (s *Store) Roots() Roots { return s.roots }

// Locate resolves the schema and data files of a stored table.
func (s *Store) Locate(kind domain.StorageKind, logicalPath string, enc Encoding) (schemaFile, dataFile string, err error) {
	dir, err := s.dir(kind, logicalPath, enc)
	if err != nil {
		return "", "", err
	}
	return filepath.Join(dir, s.layout.SchemaFile), filepath.Join(dir, s.layout.DataFile), nil
}

func (s *Store) dir(kind domain.StorageKind, logicalPath string, enc Encoding) (string, error) {
	root, err := s.roots.Path(kind)
	if err != nil {
		return "", err
	}
	clean := filepath.Clean(filepath.FromSlash(strings.TrimPrefix(logicalPath, "/")))
	if logicalPath == "" || !filepath.IsLocal(clean) {
		return "", domain.ErrInvalidArgument("storage", "invalid logical path %q", logicalPath)
	}
	return filepath.Join(root, clean, string(enc)), nil
}

// Exists reports whether the encoding directory of a table exists.
func (s *Store) Exists(kind domain.StorageKind, logicalPath string, enc Encoding) bool {
	dir, err := s.dir(kind, logicalPath, enc)
	if err != nil {
		return false
	}
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}

// Write persists t. The schema is derived before anything touches the
// disk; directories are created as needed. The schema file is written
// before the data file and a failed data write leaves the schema behind.
func (s *Store) Write(ctx context.Context, kind domain.StorageKind, logicalPath string, enc Encoding, t *table.Table) error {
	schema, err := t.Schema()
	if err != nil {
		return err
	}
	schemaFile, dataFile, err := s.Locate(kind, logicalPath, enc)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dataFile), 0o755); err != nil {
		return fmt.Errorf("create storage directory: %w", err)
	}
	if err := os.WriteFile(schemaFile, []byte(schema.String()), 0o644); err != nil {
		return fmt.Errorf("write schema file: %w", err)
	}

	switch enc {
	case Row:
		err = writeFileWith(dataFile, func(f *os.File) error { return encodeRows(f, t.Frame(), schema) })
	case Columnar:
		err = writeFileWith(dataFile, func(f *os.File) error { return encodeColumnar(f, t.Frame(), schema) })
	default:
		err = fmt.Errorf("unknown encoding %q", enc)
	}
	if err != nil {
		return fmt.Errorf("write %s data: %w", enc, err)
	}

	s.logger.DebugContext(ctx, "table written",
		"kind", kind.String(), "path", logicalPath, "encoding", string(enc),
		"rows", t.Len(), "ddl", schema.String())
	return nil
}

func writeFileWith(path string, fn func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Read loads a table stored with the given encoding. The table's initial
// schema is seeded with the stored dialect types and its index is named
// Index.
func (s *Store) Read(ctx context.Context, kind domain.StorageKind, logicalPath string, enc Encoding) (*table.Table, error) {
	schemaFile, dataFile, err := s.Locate(kind, logicalPath, enc)
	if err != nil {
		return nil, err
	}
	if !s.Exists(kind, logicalPath, enc) {
		return nil, domain.ErrStorageNotFound(filepath.Dir(dataFile), "no %s table stored", enc)
	}
	raw, err := os.ReadFile(schemaFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ErrStorageNotFound(schemaFile, "schema file missing")
		}
		return nil, fmt.Errorf("read schema file: %w", err)
	}
	ns, err := table.FromDDL(string(raw))
	if err != nil {
		return nil, err
	}

	var f *frame.Frame
	switch enc {
	case Row:
		f, err = decodeRowsFile(dataFile, ns)
	case Columnar:
		f, err = decodeColumnarFile(ctx, dataFile, ns)
	default:
		err = fmt.Errorf("unknown encoding %q", enc)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s data: %w", enc, err)
	}
	f.SetIndexName(IndexName)

	t := table.New(f)
	t.SeedInitialSchema(ns.Dialect)

	s.logger.DebugContext(ctx, "table read",
		"kind", kind.String(), "path", logicalPath, "encoding", string(enc), "rows", f.Len())
	return t, nil
}

// ReadAny loads a table from whichever encoding is present, preferring the
// columnar one. It fails with StorageNotFound when neither exists.
func (s *Store) ReadAny(ctx context.Context, kind domain.StorageKind, logicalPath string) (*table.Table, Encoding, error) {
	if _, err := s.dir(kind, logicalPath, Row); err != nil {
		return nil, "", err
	}
	for _, enc := range probeOrder {
		if s.Exists(kind, logicalPath, enc) {
			t, err := s.Read(ctx, kind, logicalPath, enc)
			return t, enc, err
		}
	}
	root, err := s.roots.Path(kind)
	if err != nil {
		return nil, "", err
	}
	return nil, "", domain.ErrStorageNotFound(filepath.Join(root, logicalPath), "path not found")
}
