// Package store persists client-side session state (auth tokens, wizard
// progress) as namespaced JSON documents.
package store

import (
	"context"
	"time"
)

// Namespaces used by the client.
const (
	NamespaceAuth   = "auth"
	NamespaceWizard = "wizard"
)

// Entry is one stored document.
type Entry struct {
	Namespace string    `json:"namespace"`
	Key       string    `json:"key"`
	Value     []byte    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is a namespaced JSON key/value store. Writes are last-write-wins.
type Store interface {
	// Get decodes the document at (namespace, key) into dst. It reports
	// false with a nil error when the key is absent.
	Get(ctx context.Context, namespace, key string, dst any) (bool, error)
	// Put encodes v as JSON and stores it, replacing any previous value.
	Put(ctx context.Context, namespace, key string, v any) error
	// Delete removes the document. Deleting a missing key is not an error.
	Delete(ctx context.Context, namespace, key string) error
	// List returns every document in namespace ordered by key.
	List(ctx context.Context, namespace string) ([]Entry, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
