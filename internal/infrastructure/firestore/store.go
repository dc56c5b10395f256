// Package firestore implements the document-store repositories on Cloud
// Firestore. Documents are plain maps on the wire; each repository owns
// the mapping between its model type and document fields.
package firestore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// maxBatchSize is Firestore's limit on operations per committed batch.
// Larger write sets are split into chunks that commit independently.
const maxBatchSize = 500

var storeTracer = otel.Tracer("linka/firestore")

const (
	linksCollection        = "accountLinks"
	accountsCollection     = "accounts"
	transactionsCollection = "transactions"
)

// Store wraps the Firestore client shared by the repositories.
type Store struct {
	client *firestore.Client
	log    zerolog.Logger
}

// New initializes the Firebase app and opens a Firestore client.
// credentialsFile may be empty to use application default credentials.
func New(ctx context.Context, projectID, credentialsFile string, log zerolog.Logger) (*Store, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firestore client: %w", err)
	}
	return &Store{client: client, log: log.With().Str("component", "firestore").Logger()}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

// write is one pending batch operation.
type write struct {
	ref    *firestore.DocumentRef
	data   map[string]any
	delete bool
}

// commitChunked commits writes in chunks of maxBatchSize. Chunks commit
// independently and concurrently; each chunk is atomic, the whole set is
// not.
func (s *Store) commitChunked(ctx context.Context, op string, writes []write) error {
	if len(writes) == 0 {
		return nil
	}
	ctx, span := storeTracer.Start(ctx, op, trace.WithAttributes(
		attribute.Int("firestore.writes", len(writes)),
	))
	defer span.End()

	g, ctx := errgroup.WithContext(ctx)
	for start := 0; start < len(writes); start += maxBatchSize {
		end := start + maxBatchSize
		if end > len(writes) {
			end = len(writes)
		}
		chunk := writes[start:end]
		g.Go(func() error {
			batch := s.client.Batch()
			for _, w := range chunk {
				if w.delete {
					batch.Delete(w.ref)
				} else {
					batch.Set(w.ref, w.data)
				}
			}
			if _, err := batch.Commit(ctx); err != nil {
				return fmt.Errorf("batch commit failed: %w", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return err
	}
	return nil
}

// isNotFound reports whether err is Firestore's missing-document error.
func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}
