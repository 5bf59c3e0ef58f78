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

package session

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func generatePDH(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	require.NoError(t, err)
	return priv
}

func TestEstablish_ProducesUsableLaunchBlob(t *testing.T) {
	pdhPriv := generatePDH(t)

	result, err := Establish(&pdhPriv.PublicKey)
	require.NoError(t, err)
	require.NotEmpty(t, result.GODH.PublicKey)
	require.NotZero(t, result.Keys.TIK)
	require.NotZero(t, result.Keys.TEK)

	// The platform side recomputes the shared secret using its PDH
	// private key and the guest owner's ephemeral public key, then
	// re-derives KEK/KIK to unwrap the blob.
	goPub, err := ecdh.P384().NewPublicKey(result.GODH.PublicKey)
	require.NoError(t, err)

	pdhECDH, err := pdhPriv.ECDH()
	require.NoError(t, err)

	z, err := pdhECDH.ECDH(goPub)
	require.NoError(t, err)

	master, err := deriveHKDF(z, []byte("sev-master-secret"), 32)
	require.NoError(t, err)
	kek, err := deriveHKDF(master, []byte("sev-kek"), 16)
	require.NoError(t, err)
	kik, err := deriveHKDF(master, []byte("sev-kik"), 16)
	require.NoError(t, err)

	keys, err := Unwrap(kek, kik, result.Blob)
	require.NoError(t, err)
	require.Equal(t, result.Keys.TIK, keys.TIK)
	require.Equal(t, result.Keys.TEK, keys.TEK)
}

func TestUnwrap_RejectsTamperedCiphertext(t *testing.T) {
	pdhPriv := generatePDH(t)
	result, err := Establish(&pdhPriv.PublicKey)
	require.NoError(t, err)

	goPub, err := ecdh.P384().NewPublicKey(result.GODH.PublicKey)
	require.NoError(t, err)
	pdhECDH, err := pdhPriv.ECDH()
	require.NoError(t, err)
	z, err := pdhECDH.ECDH(goPub)
	require.NoError(t, err)
	master, _ := deriveHKDF(z, []byte("sev-master-secret"), 32)
	kek, _ := deriveHKDF(master, []byte("sev-kek"), 16)
	kik, _ := deriveHKDF(master, []byte("sev-kik"), 16)

	tampered := result.Blob
	tampered.Ciphertext = append([]byte(nil), tampered.Ciphertext...)
	tampered.Ciphertext[0] ^= 0xFF

	_, err = Unwrap(kek, kik, tampered)
	require.Error(t, err)
}

func TestCache_TakeIsAtMostOnce(t *testing.T) {
	c := NewCache()
	c.Put("guid-1", Keys{})

	_, ok := c.Take("guid-1")
	require.True(t, ok)

	_, ok = c.Take("guid-1")
	require.False(t, ok)
}

func TestCache_Evict(t *testing.T) {
	c := NewCache()
	c.Put("guid-1", Keys{})
	require.Equal(t, 1, c.Len())

	c.Evict("guid-1")
	require.Equal(t, 0, c.Len())

	_, ok := c.Take("guid-1")
	require.False(t, ok)
}
