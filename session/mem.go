// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"sync"
)

var _ Store = (*MemStore)(nil)

// MemStore keeps the record in memory. It exists for tests and for
// throwaway sessions that should not outlive the process.
type MemStore struct {
	mu     sync.Mutex
	record *Record

	// SaveCount counts Save calls, so tests can assert on
	// persistence cadence.
	saveCount int
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{}
}

func (s *MemStore) Load(ctx context.Context) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.record == nil {
		return nil, ErrNotFound
	}
	return s.record.Clone(), nil
}

func (s *MemStore) Save(ctx context.Context, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record = record.Clone()
	s.saveCount++
	return nil
}

func (s *MemStore) Delete(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record = nil
	return nil
}

// SaveCount reports how many times Save has been called.
func (s *MemStore) SaveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveCount
}
