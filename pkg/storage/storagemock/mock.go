package storagemock

import (
	"context"

	"github.com/raterudder/eiademand/pkg/storage"
	"github.com/raterudder/eiademand/pkg/types"
	"github.com/stretchr/testify/mock"
)

type MockDatabase struct {
	mock.Mock
}

var _ storage.Database = (*MockDatabase)(nil)

func (m *MockDatabase) GetTable(ctx context.Context, name string, schema types.SchemaVariant) (types.Table, error) {
	args := m.Called(ctx, name, schema)
	// return empty if not specified, or checks args
	if len(args) > 0 {
		return args.Get(0).(types.Table), args.Error(1)
	}
	return types.Table{}, nil
}

func (m *MockDatabase) PutTable(ctx context.Context, name string, table types.Table) error {
	args := m.Called(ctx, name, table)
	return args.Error(0)
}

func (m *MockDatabase) ListTables(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if len(args) > 0 {
		if args.Get(0) == nil {
			return nil, args.Error(1)
		}
		return args.Get(0).([]string), args.Error(1)
	}
	return nil, nil
}

func (m *MockDatabase) Close() error {
	args := m.Called()
	return args.Error(0)
}
