package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/raterudder/eiademand/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileProvider(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	f := NewFileProvider(filepath.Join(dir, "data"), types.LayoutSeries)
	require.NoError(t, f.Validate())
	defer f.Close()

	t.Run("ListTables on missing dir", func(t *testing.T) {
		names, err := f.ListTables(ctx)
		require.NoError(t, err)
		assert.Empty(t, names)
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := f.GetTable(ctx, "CISO", types.SchemaBasic)
		assert.True(t, errors.Is(err, ErrTableNotFound))
	})

	t.Run("RoundTrip", func(t *testing.T) {
		require.NoError(t, f.PutTable(ctx, "CISO", sampleTable()))
		got, err := f.GetTable(ctx, "CISO", types.SchemaWithForecast)
		require.NoError(t, err)
		assert.Equal(t, sampleTable(), got)

		b, err := os.ReadFile(filepath.Join(dir, "data", "CISO.csv"))
		require.NoError(t, err)
		assert.Contains(t, string(b), "series_id,time,demand (MW),forecast demand (MW)\n")
	})

	t.Run("Overwrite", func(t *testing.T) {
		table := sampleTable()
		table.Rows = table.Rows[:1]
		require.NoError(t, f.PutTable(ctx, "CISO", table))
		got, err := f.GetTable(ctx, "CISO", types.SchemaWithForecast)
		require.NoError(t, err)
		assert.Len(t, got.Rows, 1)
	})

	t.Run("ListTables", func(t *testing.T) {
		require.NoError(t, f.PutTable(ctx, TableName("CISO", true), sampleTable()))
		require.NoError(t, f.PutTable(ctx, "BANC", sampleTable()))
		// ignored
		require.NoError(t, os.WriteFile(filepath.Join(dir, "data", "notes.txt"), []byte("x"), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "data", ".CAL.partial"), []byte("x"), 0o644))

		names, err := f.ListTables(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"BANC", "CISO", "CISO_mean_impute"}, names)
	})

	t.Run("no temp files left behind", func(t *testing.T) {
		entries, err := os.ReadDir(filepath.Join(dir, "data"))
		require.NoError(t, err)
		for _, e := range entries {
			assert.False(t, strings.HasSuffix(e.Name(), ".tmp"), "unexpected leftover %s", e.Name())
		}
	})

	t.Run("invalid names", func(t *testing.T) {
		for _, name := range []string{"", "..", "a/b", `a\b`} {
			assert.Error(t, f.PutTable(ctx, name, sampleTable()), name)
			_, err := f.GetTable(ctx, name, types.SchemaBasic)
			assert.Error(t, err, name)
		}
	})

	t.Run("calendar layout", func(t *testing.T) {
		cal := NewFileProvider(filepath.Join(dir, "calendar"), types.LayoutCalendar)
		require.NoError(t, cal.PutTable(ctx, "CISO", sampleTable()))
		b, err := os.ReadFile(filepath.Join(dir, "calendar", "CISO.csv"))
		require.NoError(t, err)
		assert.Contains(t, string(b), "time,year,month,day,hour,demand (MW),forecast demand (MW)\n")

		got, err := cal.GetTable(ctx, "CISO", types.SchemaWithForecast)
		require.NoError(t, err)
		assert.Equal(t, sampleTable().Rows, got.Rows)
	})
}

func TestFileProviderValidate(t *testing.T) {
	assert.Error(t, (&FileProvider{}).Validate())
}
