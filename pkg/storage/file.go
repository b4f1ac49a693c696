package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/eiademand/pkg/log"
	"github.com/raterudder/eiademand/pkg/types"
)

const fileExt = ".csv"

// FileProvider implements Database with one CSV file per table in a
// directory.
type FileProvider struct {
	dir    string
	layout types.Layout
}

// configuredFile sets up the file provider.
// It registers flags for configuration.
func configuredFile() *FileProvider {
	dir := lflag.String("data-dir", "data", "Directory holding one CSV file per entity table")
	layout := lflag.String("table-layout", "series", "Leading columns of written tables (available: series, calendar)")

	f := &FileProvider{}

	lflag.Do(func() {
		f.dir = *dir
		l, err := types.ParseLayout(*layout)
		if err != nil {
			panic(fmt.Sprintf("invalid table-layout: %v", err))
		}
		f.layout = l
	})

	return f
}

// NewFileProvider returns a file provider rooted at dir.
func NewFileProvider(dir string, layout types.Layout) *FileProvider {
	return &FileProvider{dir: dir, layout: layout}
}

// Validate checks if the provider is properly configured.
func (f *FileProvider) Validate() error {
	if f.dir == "" {
		return errors.New("data-dir is required")
	}
	return nil
}

// Close is a no-op for files.
func (f *FileProvider) Close() error {
	return nil
}

func (f *FileProvider) path(name string) (string, error) {
	if name == "" {
		return "", errors.New("table name cannot be empty")
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid table name: %s", name)
	}
	return filepath.Join(f.dir, name+fileExt), nil
}

// GetTable reads <dir>/<name>.csv.
func (f *FileProvider) GetTable(ctx context.Context, name string, schema types.SchemaVariant) (types.Table, error) {
	p, err := f.path(name)
	if err != nil {
		return types.Table{}, err
	}
	file, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return types.Table{}, fmt.Errorf("%w: %s", ErrTableNotFound, name)
		}
		return types.Table{}, fmt.Errorf("failed to open table %s: %w", name, err)
	}
	defer file.Close()

	table, err := DecodeTable(file, name, schema)
	if err != nil {
		return types.Table{}, fmt.Errorf("failed to decode table %s: %w", name, err)
	}
	log.Ctx(ctx).DebugContext(ctx, "read table", slog.String("name", name), slog.Int("rows", len(table.Rows)))
	return table, nil
}

// PutTable writes the table to a temporary file in the same directory and
// renames it into place.
func (f *FileProvider) PutTable(ctx context.Context, name string, table types.Table) error {
	p, err := f.path(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create data dir %s: %w", f.dir, err)
	}
	tmp, err := os.CreateTemp(f.dir, "."+name+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", name, err)
	}
	// removing after a successful rename fails harmlessly
	defer os.Remove(tmp.Name())

	if err := EncodeTable(tmp, table, f.layout); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode table %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file for %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("failed to move table %s into place: %w", name, err)
	}
	log.Ctx(ctx).DebugContext(ctx, "wrote table", slog.String("name", name), slog.String("path", p), slog.Int("rows", len(table.Rows)))
	return nil
}

// ListTables returns the names of all .csv files in the directory.
func (f *FileProvider) ListTables(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list data dir %s: %w", f.dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") || !strings.HasSuffix(e.Name(), fileExt) {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), fileExt))
	}
	sort.Strings(names)
	return names, nil
}
