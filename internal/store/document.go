package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// Document is implemented by every stored model.
type Document interface {
	DocumentID() string
	DocumentVersion() int64
	SetDocumentVersion(v int64)
}

// documentPtr constrains a type parameter to *T implementing Document.
type documentPtr[T any] interface {
	*T
	Document
}

// Insert marshals doc and creates it, recording the assigned version on doc.
func Insert(ctx context.Context, s Store, c Collection, doc Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s document: %w", c, err)
	}
	version, err := s.Create(ctx, c, doc.DocumentID(), data)
	if err != nil {
		return err
	}
	doc.SetDocumentVersion(version)
	return nil
}

// Fetch reads and decodes one document.
func Fetch[T any, PT documentPtr[T]](ctx context.Context, s Store, c Collection, id string) (PT, error) {
	rec, err := s.Get(ctx, c, id)
	if err != nil {
		return nil, err
	}
	return decode[T, PT](c, rec)
}

// Find queries and decodes every matching document.
func Find[T any, PT documentPtr[T]](ctx context.Context, s Store, c Collection, filter ...Condition) ([]PT, error) {
	recs, err := s.Query(ctx, c, filter...)
	if err != nil {
		return nil, err
	}
	out := make([]PT, 0, len(recs))
	for _, rec := range recs {
		doc, err := decode[T, PT](c, rec)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

// FindOne returns the first matching document or ErrNotFound.
func FindOne[T any, PT documentPtr[T]](ctx context.Context, s Store, c Collection, filter ...Condition) (PT, error) {
	docs, err := Find[T, PT](ctx, s, c, filter...)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	return docs[0], nil
}

// Save replaces doc guarded by the version it was read at, then records the
// new version on doc.
func Save(ctx context.Context, s Store, c Collection, doc Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s document: %w", c, err)
	}
	version, err := s.Replace(ctx, c, doc.DocumentID(), data, doc.DocumentVersion())
	if err != nil {
		return err
	}
	doc.SetDocumentVersion(version)
	return nil
}

// Remove deletes doc guarded by the version it was read at.
func Remove(ctx context.Context, s Store, c Collection, doc Document) error {
	return s.DeleteVersion(ctx, c, doc.DocumentID(), doc.DocumentVersion())
}

func decode[T any, PT documentPtr[T]](c Collection, rec *Record) (PT, error) {
	doc := PT(new(T))
	if err := json.Unmarshal(rec.Data, doc); err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", c, rec.ID, err)
	}
	// The backend's version column is authoritative over the stored copy.
	doc.SetDocumentVersion(rec.Version)
	return doc, nil
}
