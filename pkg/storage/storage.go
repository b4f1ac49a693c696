// Package storage persists dense demand tables, one table per entity name.
package storage

import (
	"context"
	"errors"

	"github.com/raterudder/eiademand/pkg/types"
)

// ImputedSuffix is appended to an entity name for its mean-imputed table.
const ImputedSuffix = "_mean_impute"

var (
	ErrTableNotFound = errors.New("table not found")
)

// Database defines the interface for reading and writing entity tables.
type Database interface {
	// GetTable loads the table stored under name, reading the value columns of
	// schema. It returns an error wrapping ErrTableNotFound if there is none.
	GetTable(ctx context.Context, name string, schema types.SchemaVariant) (types.Table, error)

	// PutTable replaces the table stored under name. A failed write must not
	// leave a partial table behind.
	PutTable(ctx context.Context, name string, table types.Table) error

	// ListTables returns the names of all stored tables, sorted.
	ListTables(ctx context.Context) ([]string, error)

	// Lifecycle
	Close() error
}

// TableName returns the storage name for an entity's table.
func TableName(entity string, imputed bool) string {
	if imputed {
		return entity + ImputedSuffix
	}
	return entity
}
