package storage

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/eiademand/pkg/log"
	"github.com/raterudder/eiademand/pkg/types"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreProvider implements Database using Google Cloud Firestore.
// Each table is one document holding the gzipped CSV encoding of the table,
// which keeps multi-year hourly series under the document size limit.
type FirestoreProvider struct {
	client     *firestore.Client
	projectID  string
	database   string
	collection string
}

// configuredFirestore sets up the Firestore provider.
// It registers flags for configuration.
func configuredFirestore() *FirestoreProvider {
	projectID := lflag.String("firestore-project-id", "", "Google Cloud Project ID for Firestore")
	database := lflag.String("firestore-database", "", "Google Cloud Firestore Database")
	collection := lflag.String("firestore-collection", "tables", "Firestore collection holding one document per table")
	emulator := lflag.String("firestore-emulator", "", "Use Firestore emulator")

	f := &FirestoreProvider{}

	lflag.Do(func() {
		f.projectID = *projectID
		f.database = *database
		f.collection = *collection

		// set this because that's how firestore client expects it
		if *emulator != "" {
			os.Setenv("FIRESTORE_EMULATOR_HOST", *emulator)
		}
	})

	return f
}

// Validate checks if the provider is properly configured.
func (f *FirestoreProvider) Validate() error {
	// Project ID may be empty when it can be detected from the environment.
	if f.collection == "" {
		return fmt.Errorf("firestore-collection is required")
	}
	return nil
}

// Init initializes the Firestore client.
// This must be called before using the provider methods.
func (f *FirestoreProvider) Init(ctx context.Context) error {
	projectID := f.projectID
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	database := f.database
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database)
	if err != nil {
		return fmt.Errorf("failed to create firestore client (project=%s, database=%s): %w", projectID, database, err)
	}
	f.client = client
	return nil
}

// Close closes the Firestore client connection.
func (f *FirestoreProvider) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

func (f *FirestoreProvider) getDoc(name string) (*firestore.DocumentRef, error) {
	if name == "" {
		return nil, fmt.Errorf("table name cannot be empty")
	}
	return f.client.Collection(f.collection).Doc(name), nil
}

// GetTable retrieves and decodes the table document.
func (f *FirestoreProvider) GetTable(ctx context.Context, name string, schema types.SchemaVariant) (types.Table, error) {
	ref, err := f.getDoc(name)
	if err != nil {
		return types.Table{}, err
	}
	doc, err := ref.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return types.Table{}, fmt.Errorf("%w: %s", ErrTableNotFound, name)
		}
		return types.Table{}, fmt.Errorf("failed to fetch table doc %s: %w", name, err)
	}

	val, err := doc.DataAt("csv")
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "table doc missing csv", slog.String("name", name))
		return types.Table{}, fmt.Errorf("table document %s missing 'csv' field: %w", name, err)
	}
	compressed, ok := val.([]byte)
	if !ok {
		log.Ctx(ctx).WarnContext(ctx, "table doc csv not bytes", slog.String("name", name))
		return types.Table{}, fmt.Errorf("table document %s 'csv' field is not bytes", name)
	}

	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return types.Table{}, fmt.Errorf("failed to decompress table %s: %w", name, err)
	}
	defer zr.Close()

	table, err := DecodeTable(zr, name, schema)
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to decode table", slog.String("name", name), slog.Any("err", err))
		return types.Table{}, fmt.Errorf("failed to decode table %s: %w", name, err)
	}
	return table, nil
}

// PutTable encodes the table and replaces the document in a single write.
func (f *FirestoreProvider) PutTable(ctx context.Context, name string, table types.Table) error {
	ref, err := f.getDoc(name)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if err := EncodeTable(zw, table, types.LayoutSeries); err != nil {
		return fmt.Errorf("failed to encode table %s: %w", name, err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to compress table %s: %w", name, err)
	}

	_, err = ref.Set(ctx, map[string]interface{}{
		"csv":     buf.Bytes(),
		"schema":  table.Schema.String(),
		"rows":    len(table.Rows),
		"updated": time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to save table %s: %w", name, err)
	}
	log.Ctx(ctx).DebugContext(ctx, "wrote table doc", slog.String("name", name), slog.Int("bytes", buf.Len()))
	return nil
}

// ListTables returns the IDs of every document in the collection.
func (f *FirestoreProvider) ListTables(ctx context.Context) ([]string, error) {
	iter := f.client.Collection(f.collection).DocumentRefs(ctx)

	var names []string
	for {
		ref, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error iterating tables: %w", err)
		}
		names = append(names, ref.ID)
	}
	// document IDs are returned in lexicographic order
	return names, nil
}
