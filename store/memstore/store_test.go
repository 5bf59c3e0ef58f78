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

package memstore

import (
	"context"
	"testing"

	"github.com/sage-x-project/kbs/store"
	"github.com/stretchr/testify/require"
)

func TestStore_TakeConnectionBundleIsOneShot(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	require.NoError(t, s.PutConnectionBundle(ctx, &store.ConnectionBundle{ID: "g1"}))

	b, err := s.TakeConnectionBundle(ctx, "g1")
	require.NoError(t, err)
	require.Equal(t, "g1", b.ID)

	_, err = s.TakeConnectionBundle(ctx, "g1")
	require.ErrorIs(t, err, store.ErrAlreadyTaken)
}

func TestStore_GetSecretNotFound(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	_, err := s.GetSecret(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_SecretCopyIsolation(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	require.NoError(t, s.PutSecret(ctx, &store.Secret{ID: "foo", Value: []byte{0xDE, 0xAD}}))

	got, err := s.GetSecret(ctx, "foo")
	require.NoError(t, err)
	got.Value[0] = 0x00

	got2, err := s.GetSecret(ctx, "foo")
	require.NoError(t, err)
	require.Equal(t, byte(0xDE), got2.Value[0])
}

func TestStore_ListPoliciesAllOrNone(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	require.NoError(t, s.PutPolicy(ctx, &store.Policy{ID: "p1", Valid: true}))

	_, err := s.ListPolicies(ctx, []string{"p1", "missing"})
	require.ErrorIs(t, err, store.ErrNotFound)

	got, err := s.ListPolicies(ctx, []string{"p1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
}
