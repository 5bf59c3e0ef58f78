// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

// Package memstore is an in-memory store.Store realization, used for
// tests and for the kbs-policy CLI's offline dry-run mode.
package memstore

import (
	"context"
	"sync"

	"github.com/sage-x-project/kbs/store"
)

// Store implements store.Store with mutex-guarded maps. Every
// read/write deep-copies so callers can never mutate state out from
// under the store.
type Store struct {
	mu             sync.RWMutex
	policies       map[string]*store.Policy
	secrets        map[string]*store.Secret
	keysets        map[string]*store.Keyset
	resources      map[string]*store.Resource
	reportKeypairs map[string]*store.ReportKeypair
	bundles        map[string]*store.ConnectionBundle
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		policies:       make(map[string]*store.Policy),
		secrets:        make(map[string]*store.Secret),
		keysets:        make(map[string]*store.Keyset),
		resources:      make(map[string]*store.Resource),
		reportKeypairs: make(map[string]*store.ReportKeypair),
		bundles:        make(map[string]*store.ConnectionBundle),
	}
}

// Put* implement store.Store's provisioning half, also used directly
// by tests and kbs-policy's offline mode to load
// default_policy.json-derived records without a real database.

func (s *Store) PutPolicy(ctx context.Context, p *store.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.policies[p.ID] = &cp
	return nil
}

func (s *Store) PutSecret(ctx context.Context, sec *store.Secret) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sec
	cp.Value = append([]byte(nil), sec.Value...)
	s.secrets[sec.ID] = &cp
	return nil
}

func (s *Store) PutKeyset(ctx context.Context, ks *store.Keyset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *ks
	cp.SecretIDs = append([]string(nil), ks.SecretIDs...)
	s.keysets[ks.ID] = &cp
	return nil
}

func (s *Store) PutResource(ctx context.Context, r *store.Resource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.resources[r.ID] = &cp
	return nil
}

func (s *Store) PutReportKeypair(ctx context.Context, k *store.ReportKeypair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *k
	cp.PEM = append([]byte(nil), k.PEM...)
	s.reportKeypairs[k.ID] = &cp
	return nil
}

func (s *Store) GetPolicy(ctx context.Context, id string) (*store.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.policies[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *Store) ListPolicies(ctx context.Context, ids []string) ([]*store.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*store.Policy, 0, len(ids))
	for _, id := range ids {
		p, ok := s.policies[id]
		if !ok {
			return nil, store.ErrNotFound
		}
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) GetSecret(ctx context.Context, id string) (*store.Secret, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sec, ok := s.secrets[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *sec
	cp.Value = append([]byte(nil), sec.Value...)
	return &cp, nil
}

func (s *Store) ListSecrets(ctx context.Context, ids []string) ([]*store.Secret, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*store.Secret, 0, len(ids))
	for _, id := range ids {
		sec, ok := s.secrets[id]
		if !ok {
			return nil, store.ErrNotFound
		}
		cp := *sec
		cp.Value = append([]byte(nil), sec.Value...)
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) GetKeyset(ctx context.Context, id string) (*store.Keyset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ks, ok := s.keysets[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *ks
	cp.SecretIDs = append([]string(nil), ks.SecretIDs...)
	return &cp, nil
}

func (s *Store) GetResource(ctx context.Context, id string) (*store.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.resources[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *Store) GetReportKeypair(ctx context.Context, id string) (*store.ReportKeypair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.reportKeypairs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *k
	cp.PEM = append([]byte(nil), k.PEM...)
	return &cp, nil
}

func (s *Store) PutConnectionBundle(ctx context.Context, b *store.ConnectionBundle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *b
	s.bundles[b.ID] = &cp
	return nil
}

func (s *Store) TakeConnectionBundle(ctx context.Context, id string) (*store.ConnectionBundle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bundles[id]
	if !ok {
		return nil, store.ErrAlreadyTaken
	}
	delete(s.bundles, id)
	cp := *b
	return &cp, nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error { return nil }

// Ping always succeeds for the in-memory store.
func (s *Store) Ping(ctx context.Context) error { return nil }

// Clear removes all data. Test helper only.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies = make(map[string]*store.Policy)
	s.secrets = make(map[string]*store.Secret)
	s.keysets = make(map[string]*store.Keyset)
	s.resources = make(map[string]*store.Resource)
	s.reportKeypairs = make(map[string]*store.ReportKeypair)
	s.bundles = make(map[string]*store.ConnectionBundle)
}
