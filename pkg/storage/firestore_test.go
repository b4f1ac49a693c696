package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/raterudder/eiademand/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirestoreProvider(t *testing.T) {
	// These tests run against the Firestore emulator, e.g.
	// FIRESTORE_EMULATOR_HOST=127.0.0.1:8087
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}

	// Use a test project ID
	projectID := "test-project-id"

	// Use a random database for isolation
	randDB := fmt.Sprintf("test-db-%d", time.Now().UnixNano())
	f := &FirestoreProvider{
		projectID:  projectID,
		database:   randDB,
		collection: "tables",
	}

	ctx := context.Background()
	require.NoError(t, f.Init(ctx))
	defer f.Close()

	t.Run("Validate", func(t *testing.T) {
		require.NoError(t, f.Validate())
	})

	t.Run("EmptyName", func(t *testing.T) {
		_, err := f.GetTable(ctx, "", types.SchemaBasic)
		assert.ErrorContains(t, err, "table name cannot be empty")
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := f.GetTable(ctx, "NOPE", types.SchemaBasic)
		assert.True(t, errors.Is(err, ErrTableNotFound))
	})

	t.Run("RoundTrip", func(t *testing.T) {
		table := sampleTable()
		require.NoError(t, f.PutTable(ctx, "CISO", table))

		got, err := f.GetTable(ctx, "CISO", types.SchemaWithForecast)
		require.NoError(t, err)
		assert.Equal(t, table.Rows, got.Rows)

		t.Run("Overwrite", func(t *testing.T) {
			updated := table.Clone()
			updated.Rows[0].Demand = types.Number(99)
			require.NoError(t, f.PutTable(ctx, "CISO", updated))

			got, err := f.GetTable(ctx, "CISO", types.SchemaWithForecast)
			require.NoError(t, err)
			assert.Equal(t, types.Number(99), got.Rows[0].Demand)
		})

		t.Run("SchemaMismatch", func(t *testing.T) {
			_, err := f.GetTable(ctx, "CISO", types.SchemaWithForecastAndCleaned)
			var serr *types.SchemaError
			require.True(t, errors.As(err, &serr))
			assert.Equal(t, string(types.ColumnCleaned), serr.Column)
		})
	})

	t.Run("ListTables", func(t *testing.T) {
		require.NoError(t, f.PutTable(ctx, "BANC", sampleTable()))
		names, err := f.ListTables(ctx)
		require.NoError(t, err)
		assert.Contains(t, names, "BANC")
		assert.Contains(t, names, "CISO")
		assert.IsIncreasing(t, names)
	})
}
