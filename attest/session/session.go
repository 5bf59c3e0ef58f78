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

package session

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"io"

	"github.com/sage-x-project/kbs/attest/errs"
	"golang.org/x/crypto/hkdf"
)

// Establish performs the guest-owner side of the ECDH exchange against
// the verified platform PDH key, derives the master/KEK/KIK secrets,
// generates fresh TIK/TEK keys, and wraps them into a launch blob.
//
// Derivation mirrors the SEV launch-secret protocol:
//
//	Z      = ECDH(goPriv, pdhPub)
//	master = HKDF(Z, "sev-master-secret")
//	KEK    = HKDF(master, "sev-kek")
//	KIK    = HKDF(master, "sev-kik")
func Establish(pdhPub *ecdsa.PublicKey) (*EstablishResult, error) {
	goPriv, err := ecdh.P384().GenerateKey(rand.Reader)
	if err != nil {
		return nil, errs.Internal(err)
	}

	pdhECDH, err := toECDHPublicKey(pdhPub)
	if err != nil {
		return nil, errs.InvalidArgument("platform PDH key is not a valid P-384 point")
	}

	z, err := goPriv.ECDH(pdhECDH)
	if err != nil {
		return nil, errs.Internal(err)
	}

	master, err := deriveHKDF(z, []byte("sev-master-secret"), 32)
	if err != nil {
		return nil, errs.Internal(err)
	}
	kek, err := deriveHKDF(master, []byte("sev-kek"), 16)
	if err != nil {
		return nil, errs.Internal(err)
	}
	kik, err := deriveHKDF(master, []byte("sev-kik"), 16)
	if err != nil {
		return nil, errs.Internal(err)
	}

	var keys Keys
	if _, err := io.ReadFull(rand.Reader, keys.TIK[:]); err != nil {
		return nil, errs.Internal(err)
	}
	if _, err := io.ReadFull(rand.Reader, keys.TEK[:]); err != nil {
		return nil, errs.Internal(err)
	}

	var nonce [16]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, errs.Internal(err)
	}

	blob, err := wrap(kek, kik, keys)
	if err != nil {
		return nil, err
	}

	return &EstablishResult{
		GODH:  GODHCert{PublicKey: goPriv.PublicKey().Bytes()},
		Blob:  *blob,
		Keys:  keys,
		Nonce: nonce,
	}, nil
}

// wrap encrypts TIK||TEK under KEK with AES-128-CTR and authenticates
// the ciphertext with HMAC-SHA256 under KIK.
func wrap(kek, kik []byte, keys Keys) (*LaunchBlob, error) {
	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, errs.Internal(err)
	}

	var blob LaunchBlob
	if _, err := io.ReadFull(rand.Reader, blob.IV[:]); err != nil {
		return nil, errs.Internal(err)
	}

	plaintext := make([]byte, 0, tikLen+tekLen)
	plaintext = append(plaintext, keys.TIK[:]...)
	plaintext = append(plaintext, keys.TEK[:]...)

	ciphertext := make([]byte, len(plaintext))
	stream := cipher.NewCTR(block, blob.IV[:])
	stream.XORKeyStream(ciphertext, plaintext)
	blob.Ciphertext = ciphertext

	mac := hmac.New(sha256.New, kik)
	mac.Write(blob.IV[:])
	mac.Write(ciphertext)
	copy(blob.MAC[:], mac.Sum(nil))

	return &blob, nil
}

// Unwrap reverses wrap, verifying the MAC in constant time before
// decrypting. Used by tests and by any offline tooling that needs to
// recover keys from a recorded launch blob.
func Unwrap(kek, kik []byte, blob LaunchBlob) (*Keys, error) {
	mac := hmac.New(sha256.New, kik)
	mac.Write(blob.IV[:])
	mac.Write(blob.Ciphertext)
	expected := mac.Sum(nil)
	if !hmac.Equal(expected, blob.MAC[:]) {
		return nil, errs.InvalidArgument("launch blob authentication failed")
	}

	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, errs.Internal(err)
	}
	plaintext := make([]byte, len(blob.Ciphertext))
	stream := cipher.NewCTR(block, blob.IV[:])
	stream.XORKeyStream(plaintext, blob.Ciphertext)

	if len(plaintext) != tikLen+tekLen {
		return nil, errs.InvalidArgument("unexpected launch blob length")
	}

	var keys Keys
	copy(keys.TIK[:], plaintext[:tikLen])
	copy(keys.TEK[:], plaintext[tikLen:])
	return &keys, nil
}

func deriveHKDF(secret, info []byte, length int) ([]byte, error) {
	h := hkdf.New(sha256.New, secret, nil, info)
	out := make([]byte, length)
	if _, err := io.ReadFull(h, out); err != nil {
		return nil, err
	}
	return out, nil
}

// toECDHPublicKey converts a verified P-384 ECDSA key (as produced by
// certchain.Verifier.Verify) into the form crypto/ecdh needs to compute
// the shared secret.
func toECDHPublicKey(pub *ecdsa.PublicKey) (*ecdh.PublicKey, error) {
	return ecdh.P384().NewPublicKey(elliptic.Marshal(pub.Curve, pub.X, pub.Y))
}
