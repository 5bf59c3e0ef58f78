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

package certchain

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"testing"

	"github.com/sage-x-project/kbs/attest/errs"
	"github.com/stretchr/testify/require"
)

func encodePublicKey(pub *ecdsa.PublicKey) []byte {
	byteLen := (pub.Curve.Params().BitSize + 7) / 8
	out := make([]byte, pubKeyLen)
	out[0] = 0x04
	pub.X.FillBytes(out[1 : 1+byteLen])
	pub.Y.FillBytes(out[1+byteLen : 1+2*byteLen])
	return out
}

func signRecord(t *testing.T, priv *ecdsa.PrivateKey, message []byte) []byte {
	t.Helper()
	hash := sha256.Sum256(message)
	r, s, err := ecdsa.Sign(rand.Reader, priv, hash[:])
	require.NoError(t, err)
	sig := make([]byte, sigLen)
	r.FillBytes(sig[:48])
	s.FillBytes(sig[48:])
	return sig
}

func encodeRecord(t *testing.T, typ LinkType, usage Usage, pub []byte, sig []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	hdr := wireHeader{LinkType: uint8(typ), Usage: uint32(usage)}
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, hdr))
	buf.Write(pub)
	buf.Write(sig)
	return buf.Bytes()
}

// buildValidChain constructs a two-link chain whose PDH is signed
// directly by a freshly generated test ARK, and whose root record
// carries that test ARK's public key. The chain is internally valid but
// is not rooted at the embedded ARK.
func buildValidChain(t *testing.T) ([]byte, *ecdsa.PrivateKey) {
	t.Helper()

	arkPriv := embeddedARKPrivateKeyForTest(t)
	pdhPriv, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	require.NoError(t, err)
	pdhPub := encodePublicKey(&pdhPriv.PublicKey)

	pdhSig := signRecord(t, arkPriv, pdhPub)

	var buf bytes.Buffer
	buf.Write(encodeRecord(t, LinkPDH, 0, pdhPub, pdhSig))
	buf.Write(encodeRecord(t, LinkARK, 0, encodePublicKey(&arkPriv.PublicKey), make([]byte, sigLen)))

	return buf.Bytes(), pdhPriv
}

// embeddedARKPrivateKeyForTest returns a fresh P-384 key pair that
// stands in for the ARK. The embedded root's private key is not
// available to tests, so a chain signed with this key is accepted only
// by a Verifier built to trust its public key.
func embeddedARKPrivateKeyForTest(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	require.NoError(t, err)
	return priv
}

func TestVerifier_Verify_Success(t *testing.T) {
	arkPriv, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	require.NoError(t, err)
	arkPub := encodePublicKey(&arkPriv.PublicKey)

	pdhPriv, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	require.NoError(t, err)
	pdhPub := encodePublicKey(&pdhPriv.PublicKey)
	pdhSig := signRecord(t, arkPriv, pdhPub)

	var buf bytes.Buffer
	buf.Write(encodeRecord(t, LinkPDH, 0, pdhPub, pdhSig))
	buf.Write(encodeRecord(t, LinkARK, 0, arkPub, make([]byte, sigLen)))

	chain, err := ParseChain(buf.Bytes())
	require.NoError(t, err)

	v := &Verifier{ark: arkPub}
	verifiedPDH, err := v.Verify(chain)
	require.NoError(t, err)
	require.True(t, verifiedPDH.Equal(&pdhPriv.PublicKey))
}

func TestVerifier_Verify_UnknownRoot(t *testing.T) {
	data, _ := buildValidChain(t)
	chain, err := ParseChain(data)
	require.NoError(t, err)

	v := NewVerifier() // trusts the real embedded ARK, not the test one
	_, err = v.Verify(chain)
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.CodeCertChainInvalid))
}

func TestVerifier_Verify_CorruptedSignature(t *testing.T) {
	arkPriv, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	require.NoError(t, err)
	arkPub := encodePublicKey(&arkPriv.PublicKey)

	pdhPriv, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	require.NoError(t, err)
	pdhPub := encodePublicKey(&pdhPriv.PublicKey)
	pdhSig := signRecord(t, arkPriv, pdhPub)
	pdhSig[0] ^= 0xFF // corrupt

	var buf bytes.Buffer
	buf.Write(encodeRecord(t, LinkPDH, 0, pdhPub, pdhSig))
	buf.Write(encodeRecord(t, LinkARK, 0, arkPub, make([]byte, sigLen)))

	chain, err := ParseChain(buf.Bytes())
	require.NoError(t, err)

	v := &Verifier{ark: arkPub}
	_, err = v.Verify(chain)
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.CodeCertChainInvalid))
}

func TestParseChain_Malformed(t *testing.T) {
	_, err := ParseChain([]byte{0x01, 0x02})
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.CodeCertChainInvalid))
}

func TestParseChain_Empty(t *testing.T) {
	_, err := ParseChain(nil)
	require.Error(t, err)
}
