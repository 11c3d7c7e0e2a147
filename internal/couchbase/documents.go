package couchbase

import (
	"context"
	"errors"
	"fmt"

	"github.com/couchbase/gocb/v2"

	"shaneshark.com/portfolio/internal/store"
)

// DocumentManager handles key-value operations on the default collection
type DocumentManager struct {
	col *gocb.Collection
}

// NewDocumentManager creates a new document manager
func NewDocumentManager(bucket *gocb.Bucket) *DocumentManager {
	return &DocumentManager{col: bucket.DefaultCollection()}
}

// mapErr converts gocb sentinel errors into store errors
func mapErr(docID string, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gocb.ErrDocumentNotFound) {
		return store.ErrNotFound
	}
	return fmt.Errorf("failed to %s document %s: %w", op, docID, err)
}

// Get decodes the document into result and returns its CAS
func (dm *DocumentManager) Get(ctx context.Context, docID string, result interface{}) (gocb.Cas, error) {
	res, err := dm.col.Get(docID, &gocb.GetOptions{Context: ctx})
	if err != nil {
		return 0, mapErr(docID, "get", err)
	}
	if err := res.Content(result); err != nil {
		return 0, fmt.Errorf("failed to parse document content: %w", err)
	}
	return res.Cas(), nil
}

// Insert fails with gocb.ErrDocumentExists when the key is taken
func (dm *DocumentManager) Insert(ctx context.Context, docID string, data interface{}) error {
	_, err := dm.col.Insert(docID, data, &gocb.InsertOptions{Context: ctx})
	if err != nil {
		return fmt.Errorf("failed to insert document %s: %w", docID, err)
	}
	return nil
}

// Upsert stores or updates a document
func (dm *DocumentManager) Upsert(ctx context.Context, docID string, data interface{}) error {
	_, err := dm.col.Upsert(docID, data, &gocb.UpsertOptions{Context: ctx})
	if err != nil {
		return fmt.Errorf("failed to upsert document %s: %w", docID, err)
	}
	return nil
}

// Replace overwrites a document only if its CAS still matches
func (dm *DocumentManager) Replace(ctx context.Context, docID string, data interface{}, cas gocb.Cas) error {
	_, err := dm.col.Replace(docID, data, &gocb.ReplaceOptions{Context: ctx, Cas: cas})
	return mapErr(docID, "replace", err)
}

// Remove deletes a document
func (dm *DocumentManager) Remove(ctx context.Context, docID string) error {
	_, err := dm.col.Remove(docID, &gocb.RemoveOptions{Context: ctx})
	return mapErr(docID, "delete", err)
}

// MutateIn applies sub-document operations server side
func (dm *DocumentManager) MutateIn(ctx context.Context, docID string, specs []gocb.MutateInSpec) error {
	_, err := dm.col.MutateIn(docID, specs, &gocb.MutateInOptions{Context: ctx})
	return mapErr(docID, "mutate", err)
}
