// Package store provides the transactional document store the ledger runs
// on: keyed JSON documents with read-modify-write transactions and conflict
// detection. Two backends exist, Postgres for deployments and an in-memory
// optimistic store for tests and local development.
package store

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	// ErrConflict means the store detected a conflicting concurrent write
	// and discarded every write of the transaction. Always retryable.
	ErrConflict = errors.New("transaction conflict")

	// ErrNotFound means the requested document does not exist.
	ErrNotFound = errors.New("document not found")
)

// Tx is the read/write surface inside a transaction body. Reads observe a
// consistent snapshot; writes are buffered and commit all-or-nothing.
type Tx interface {
	// Get decodes the document at key into dest, or returns ErrNotFound.
	Get(key string, dest any) error

	// Set stages doc as the new value at key.
	Set(key string, doc any) error
}

// Document is a raw keyed document, as returned by List.
type Document struct {
	Key string
	Raw json.RawMessage
}

// Store is the capability contract of the document store. RunTransaction is
// the only synchronization primitive the ledger depends on.
//
// A caller that abandons the context mid-transaction cannot assume the
// transaction did not commit; it may resolve either way.
type Store interface {
	// RunTransaction executes fn and commits its writes atomically iff no
	// conflicting write touched any key fn read. On contention it returns
	// ErrConflict with no effects applied. Errors returned by fn abort the
	// transaction and pass through unchanged.
	RunTransaction(ctx context.Context, fn func(tx Tx) error) error

	// Get reads a single document outside any transaction.
	Get(ctx context.Context, key string, dest any) error

	// Put writes a single document outside any transaction. The write is
	// atomic for the one document but participates in no read validation.
	Put(ctx context.Context, key string, doc any) error

	// List returns all documents whose key starts with prefix.
	List(ctx context.Context, prefix string) ([]Document, error)

	Close()
}
