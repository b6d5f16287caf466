package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// Memory is an in-process Store with optimistic transactions: reads record
// the version they observed, writes are buffered, and commit fails with
// ErrConflict if any read key changed in the meantime. It backs tests and
// local development where no database is configured.
type Memory struct {
	mu   sync.Mutex
	docs map[string]memDoc
}

type memDoc struct {
	raw     json.RawMessage
	version uint64
}

func NewMemory() *Memory {
	return &Memory{docs: make(map[string]memDoc)}
}

type memTx struct {
	s      *Memory
	reads  map[string]uint64 // version observed per key; 0 means absent
	writes map[string]json.RawMessage
}

func (t *memTx) Get(key string, dest any) error {
	if raw, ok := t.writes[key]; ok {
		return json.Unmarshal(raw, dest)
	}

	t.s.mu.Lock()
	d, ok := t.s.docs[key]
	t.s.mu.Unlock()

	if _, seen := t.reads[key]; !seen {
		if ok {
			t.reads[key] = d.version
		} else {
			t.reads[key] = 0
		}
	}
	if !ok {
		return ErrNotFound
	}
	return json.Unmarshal(d.raw, dest)
}

func (t *memTx) Set(key string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	t.writes[key] = raw
	return nil
}

func (s *Memory) RunTransaction(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memTx{s: s, reads: make(map[string]uint64), writes: make(map[string]json.RawMessage)}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, version := range tx.reads {
		current := uint64(0)
		if d, ok := s.docs[key]; ok {
			current = d.version
		}
		if current != version {
			return ErrConflict
		}
	}
	for key, raw := range tx.writes {
		s.docs[key] = memDoc{raw: raw, version: s.docs[key].version + 1}
	}
	return nil
}

func (s *Memory) Get(ctx context.Context, key string, dest any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	d, ok := s.docs[key]
	s.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	return json.Unmarshal(d.raw, dest)
}

func (s *Memory) Put(ctx context.Context, key string, doc any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	s.mu.Lock()
	s.docs[key] = memDoc{raw: raw, version: s.docs[key].version + 1}
	s.mu.Unlock()
	return nil
}

func (s *Memory) List(ctx context.Context, prefix string) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Document
	for key, d := range s.docs {
		if strings.HasPrefix(key, prefix) {
			raw := make(json.RawMessage, len(d.raw))
			copy(raw, d.raw)
			out = append(out, Document{Key: key, Raw: raw})
		}
	}
	return out, nil
}

func (s *Memory) Close() {}
