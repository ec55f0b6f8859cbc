// Package memstore keeps remote records in process memory. It backs tests
// and `crewclock serve --memory`.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/balkashynov/crewclock/internal/remote"
)

// Store is an in-memory remote.Backend
type Store struct {
	mu    sync.Mutex
	zones map[string]zone
	now   func() time.Time
}

type zone map[string]remote.Record

var _ remote.Backend = (*Store)(nil)

// New returns an empty store with no zones
func New() *Store {
	return &Store{zones: make(map[string]zone), now: time.Now}
}

func (s *Store) FetchZone(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.zones[name]; !ok {
		return fmt.Errorf("zone %s: %w", name, remote.ErrNamespaceMissing)
	}
	return nil
}

func (s *Store) CreateZone(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.zones[name]; !ok {
		s.zones[name] = make(zone)
	}
	return nil
}

func (s *Store) DeleteZone(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.zones[name]; !ok {
		return fmt.Errorf("zone %s: %w", name, remote.ErrNamespaceMissing)
	}
	delete(s.zones, name)
	return nil
}

func (s *Store) Lookup(ctx context.Context, name string, ids []string) ([]remote.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	z, ok := s.zones[name]
	if !ok {
		return nil, fmt.Errorf("zone %s: %w", name, remote.ErrNamespaceMissing)
	}
	out := make([]remote.Record, 0, len(ids))
	for _, id := range ids {
		rec, ok := z[id]
		if !ok {
			return nil, fmt.Errorf("%s: %w", id, remote.ErrRecordNotFound)
		}
		out = append(out, rec.Clone())
	}
	return out, nil
}

// Modify applies the request to a copy of the zone and swaps it in unless
// an atomic request was rejected
func (s *Store) Modify(ctx context.Context, name string, req remote.ModifyRequest) (remote.ModifyResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	z, ok := s.zones[name]
	if !ok {
		return remote.ModifyResult{}, fmt.Errorf("zone %s: %w", name, remote.ErrNamespaceMissing)
	}

	work := make(zone, len(z))
	for id, rec := range z {
		work[id] = rec
	}
	res, err := remote.ApplyModify(work, req, s.now().UTC())
	if err != nil && !errors.Is(err, remote.ErrPartialBatch) {
		return remote.ModifyResult{}, err
	}
	s.zones[name] = work
	return res, err
}

func (s *Store) Query(ctx context.Context, name string, q remote.Query) ([]remote.Record, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	z, ok := s.zones[name]
	if !ok {
		return nil, fmt.Errorf("zone %s: %w", name, remote.ErrNamespaceMissing)
	}
	candidates := make([]remote.Record, 0)
	for _, rec := range z {
		if rec.Type == q.Type {
			candidates = append(candidates, rec.Clone())
		}
	}
	return q.Apply(candidates), nil
}

// Len returns the number of records in a zone
func (s *Store) Len(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.zones[name])
}

func (z zone) Get(id string) (remote.Record, bool, error) {
	rec, ok := z[id]
	return rec, ok, nil
}

func (z zone) Put(rec remote.Record) error {
	z[rec.ID] = rec
	return nil
}

func (z zone) Remove(id string) error {
	delete(z, id)
	return nil
}

func (z zone) Children(id string) ([]string, error) {
	var out []string
	for childID, rec := range z {
		for _, parent := range rec.Parents() {
			if parent == id {
				out = append(out, childID)
				break
			}
		}
	}
	return out, nil
}
