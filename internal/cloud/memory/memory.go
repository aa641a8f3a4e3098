// Package memory is an in-process cloud.Backend. Reads can be configured to
// lag behind writes, like an eventually consistent remote index.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"

	"moneta/internal/cloud"
)

type Store struct {
	mu      sync.Mutex
	records map[cloud.RecordType]map[string]cloud.Record
	assets  map[string][]byte

	// readLag is how many QueryAll calls after a write still see the
	// snapshot taken before that write.
	readLag    int
	stale      map[cloud.RecordType][]cloud.Record
	staleReads map[cloud.RecordType]int

	queryErrs []error
	writeErrs map[string]error

	queries int
	writes  int
}

var _ cloud.Backend = (*Store)(nil)

func New() *Store {
	return &Store{
		records:    make(map[cloud.RecordType]map[string]cloud.Record),
		assets:     make(map[string][]byte),
		stale:      make(map[cloud.RecordType][]cloud.Record),
		staleReads: make(map[cloud.RecordType]int),
		writeErrs:  make(map[string]error),
	}
}

// SetReadLag makes the next n queries after each write return the
// pre-write snapshot.
func (s *Store) SetReadLag(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readLag = n
}

// Settle ends any lag in progress so the next queries see current contents.
func (s *Store) Settle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.staleReads)
}

// FailQueries makes the next len(errs) QueryAll calls fail in order.
func (s *Store) FailQueries(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queryErrs = append(s.queryErrs, errs...)
}

// FailWrites makes every write to the record id fail with err until cleared
// with a nil err.
func (s *Store) FailWrites(id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.writeErrs, id)
		return
	}
	s.writeErrs[id] = err
}

// Put stores a record directly, bypassing lag and failure injection.
func (s *Store) Put(rt cloud.RecordType, rec cloud.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.table(rt)[rec.ID] = cloneRecord(rec)
}

func (s *Store) PutAsset(ref string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assets[ref] = bytes.Clone(data)
}

// Records returns the current, non-lagged contents sorted by id.
func (s *Store) Records(rt cloud.RecordType) []cloud.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(rt)
}

// Counts returns how many queries and successful writes were served.
func (s *Store) Counts() (queries, writes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queries, s.writes
}

func (s *Store) QueryAll(ctx context.Context, rt cloud.RecordType) ([]cloud.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, cloud.NewError("query", cloud.KindNetwork, rt, "", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.queries++
	if len(s.queryErrs) > 0 {
		err := s.queryErrs[0]
		s.queryErrs = s.queryErrs[1:]
		return nil, err
	}
	if s.staleReads[rt] > 0 {
		s.staleReads[rt]--
		out := make([]cloud.Record, len(s.stale[rt]))
		for i, rec := range s.stale[rt] {
			out[i] = cloneRecord(rec)
		}
		return out, nil
	}
	return s.snapshot(rt), nil
}

func (s *Store) Create(ctx context.Context, rt cloud.RecordType, rec cloud.Record) error {
	if err := ctx.Err(); err != nil {
		return cloud.NewError("create", cloud.KindNetwork, rt, rec.ID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writeErrs[rec.ID]; err != nil {
		return err
	}
	if _, exists := s.table(rt)[rec.ID]; exists {
		return fmt.Errorf("create %s %s: record already exists", rt, rec.ID)
	}
	s.beforeWrite(rt)
	s.table(rt)[rec.ID] = cloneRecord(rec)
	s.writes++
	return nil
}

func (s *Store) Update(ctx context.Context, rt cloud.RecordType, id string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return cloud.NewError("update", cloud.KindNetwork, rt, id, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writeErrs[id]; err != nil {
		return err
	}
	rec, ok := s.table(rt)[id]
	if !ok {
		return cloud.NewError("update", cloud.KindNotFound, rt, id, nil)
	}
	s.beforeWrite(rt)
	rec = cloneRecord(rec)
	for k, v := range fields {
		rec.Fields[k] = cloneValue(v)
	}
	s.table(rt)[id] = rec
	s.writes++
	return nil
}

func (s *Store) FetchAsset(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, cloud.NewError("fetch asset", cloud.KindNetwork, "", ref, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.assets[ref]
	if !ok {
		return nil, cloud.NewError("fetch asset", cloud.KindNotFound, "", ref, nil)
	}
	return bytes.Clone(b), nil
}

func (s *Store) table(rt cloud.RecordType) map[string]cloud.Record {
	t, ok := s.records[rt]
	if !ok {
		t = make(map[string]cloud.Record)
		s.records[rt] = t
	}
	return t
}

// beforeWrite freezes the current snapshot for lagged readers. A snapshot
// still being served is kept so lag never hides more than one write burst.
func (s *Store) beforeWrite(rt cloud.RecordType) {
	if s.readLag <= 0 {
		return
	}
	if s.staleReads[rt] == 0 {
		s.stale[rt] = s.snapshot(rt)
	}
	s.staleReads[rt] = s.readLag
}

func (s *Store) snapshot(rt cloud.RecordType) []cloud.Record {
	t := s.records[rt]
	ids := make([]string, 0, len(t))
	for id := range t {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]cloud.Record, len(ids))
	for i, id := range ids {
		out[i] = cloneRecord(t[id])
	}
	return out
}

func cloneRecord(rec cloud.Record) cloud.Record {
	fields := make(map[string]any, len(rec.Fields))
	for k, v := range rec.Fields {
		fields[k] = cloneValue(v)
	}
	return cloud.Record{ID: rec.ID, Fields: fields}
}

func cloneValue(v any) any {
	if b, ok := v.([]byte); ok {
		return bytes.Clone(b)
	}
	return v
}
