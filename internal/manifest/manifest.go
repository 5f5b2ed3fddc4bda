package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/local/docstream/internal/config"
	"github.com/local/docstream/internal/docmodel"
)

// Every manifest record lands in one logical category.
const categoryID = "documents"

// Store persists document manifests: the full document tree as one record
// per document, keyed by the deterministic document ID so re-ingestion
// overwrites instead of duplicating.
type Store struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// Connect opens the document database and pings it once.
func Connect(ctx context.Context, cfg config.ManifestConfig) (*Store, error) {
	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(cctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect document db: %w", err)
	}
	if err := client.Ping(cctx, nil); err != nil {
		return nil, fmt.Errorf("ping document db: %w", err)
	}
	return &Store{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
	}, nil
}

// Close releases the underlying client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// RecordManifest upserts the document tree under its document ID.
func (s *Store) RecordManifest(ctx context.Context, doc *docmodel.DocumentContent) error {
	record, err := documentToRecord(doc)
	if err != nil {
		return err
	}
	_, err = s.collection.ReplaceOne(ctx,
		bson.M{"_id": doc.Metadata.DocumentID},
		record,
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("record manifest %s: %w", doc.Metadata.DocumentID, err)
	}
	log.Info().Str("document_id", doc.Metadata.DocumentID).Msg("manifest recorded")
	return nil
}

// GetManifest loads one manifest back as a raw record.
func (s *Store) GetManifest(ctx context.Context, documentID string) (bson.M, error) {
	var record bson.M
	err := s.collection.FindOne(ctx, bson.M{"_id": documentID}).Decode(&record)
	if err != nil {
		return nil, fmt.Errorf("load manifest %s: %w", documentID, err)
	}
	return record, nil
}

// documentToRecord flattens the document tree through its JSON form so the
// stored record matches document_content.json field for field, then stamps
// the key and the category.
func documentToRecord(doc *docmodel.DocumentContent) (bson.M, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal document %s: %w", doc.Metadata.DocumentID, err)
	}
	var record bson.M
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	record["_id"] = doc.Metadata.DocumentID
	record["categoryId"] = categoryID
	return record, nil
}
