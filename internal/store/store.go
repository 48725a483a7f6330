// Package store persists CheckBell documents. Every logical key maps to one
// JSON document that is always read and replaced as a whole.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/Cembrun/Checkbell-V2/internal/metrics"
)

var ErrInvalidKey = errors.New("invalid document key")

// Store is a key-value document store with whole-document replacement.
// Get returns a nil document and no error when the key was never written.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, doc []byte) error
	Close() error
}

func validateKey(key string) error {
	if key == "" || strings.ContainsAny(key, `/\`) || strings.Contains(key, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	return nil
}

// LoadList reads the document at key as a JSON array. A missing document
// yields an empty list; a document that cannot be decoded is logged and
// also yields an empty list. Backend errors are returned.
func LoadList[T any](ctx context.Context, s Store, key string) ([]T, error) {
	data, err := s.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}

	items := []T{}
	if len(data) == 0 {
		return items, nil
	}

	if err := json.Unmarshal(data, &items); err != nil {
		log.Printf("[store] document %s is unreadable, treating as empty: %v", key, err)
		metrics.RecordStorageDegraded()
		return []T{}, nil
	}
	if items == nil {
		items = []T{}
	}

	return items, nil
}

func SaveList[T any](ctx context.Context, s Store, key string, items []T) error {
	if items == nil {
		items = []T{}
	}

	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}

	if err := s.Set(ctx, key, data); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}

	return nil
}
