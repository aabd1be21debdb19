// Package store abstracts the key/value document store backing the
// registry and the metrics aggregator. All coordination between
// concurrent requests happens through the conditional put; the package
// makes no multi-key atomicity promises unless the backend also
// implements Transactor.
package store

import (
	"context"
	"errors"
)

var ErrKeyNotFound = errors.New("key not found")
var ErrKeyExists = errors.New("key already exists")

// Record is a stored document. Doc is a JSON payload owned by the
// caller; the store never inspects it.
type Record struct {
	Key string
	Doc []byte
}

type Store interface {
	// Get returns the record at key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) (Record, error)

	// PutIfAbsent inserts the document only when the key is free.
	// Returns ErrKeyExists when another record already owns the key.
	PutIfAbsent(ctx context.Context, key string, doc []byte) error

	// Delete removes the record at key. Deleting an absent key is not
	// an error.
	Delete(ctx context.Context, key string) error

	// ScanPrefix returns every record whose key starts with prefix.
	ScanPrefix(ctx context.Context, prefix string) ([]Record, error)
}

type OpKind int

const (
	OpPutIfAbsent OpKind = iota
	OpDelete
)

// Op is a single step of a multi-key transaction.
type Op struct {
	Kind OpKind
	Key  string
	Doc  []byte
}

// Transactor is implemented by backends that can apply several ops
// atomically. A failed put-if-absent condition rolls back the whole
// batch and surfaces as ErrKeyExists with zero partial writes.
type Transactor interface {
	RunTransaction(ctx context.Context, ops []Op) error
}
