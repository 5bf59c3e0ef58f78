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

package kbsserver

import (
	"bytes"
	"context"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/sage-x-project/kbs/attest/certchain"
	"github.com/sage-x-project/kbs/attest/errs"
	"github.com/sage-x-project/kbs/attest/evaluate"
	"github.com/sage-x-project/kbs/attest/secretpacket"
	"github.com/sage-x-project/kbs/attest/session"
	"github.com/sage-x-project/kbs/internal/logger"
	"github.com/sage-x-project/kbs/kbspb"
	"github.com/sage-x-project/kbs/store"
	"github.com/sage-x-project/kbs/store/memstore"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/hkdf"
)

// testGUIDText is a valid UUID string used as the caller-supplied
// entry GUID in secret requests.
const testGUIDText = "e6f5a162-d67f-4750-a67c-5d065f2a9910"

// efiGUIDBytes independently reproduces the OVMF/EFI_GUID wire-byte
// reversal secretpacket applies to a caller-supplied GUID string, so
// end-to-end tests can assert on decoded entry GUIDs without reaching
// into secretpacket's unexported internals.
func efiGUIDBytes(t *testing.T, s string) [16]byte {
	t.Helper()
	id, err := uuid.Parse(s)
	require.NoError(t, err)
	var g [16]byte
	g[0], g[1], g[2], g[3] = id[3], id[2], id[1], id[0]
	g[4], g[5] = id[5], id[4]
	g[6], g[7] = id[7], id[6]
	copy(g[8:], id[8:])
	return g
}

// Wire-format constants mirrored from attest/certchain (unexported
// there); a chain built with these must parse under certchain.ParseChain.
const (
	testPubKeyLen = 97
	testSigLen    = 96
)

func testLogger() logger.Logger {
	return logger.NewLogger(io.Discard, logger.ErrorLevel)
}

func encodeTestPublicKey(pub *ecdsa.PublicKey) []byte {
	byteLen := (pub.Curve.Params().BitSize + 7) / 8
	out := make([]byte, testPubKeyLen)
	out[0] = 0x04
	pub.X.FillBytes(out[1 : 1+byteLen])
	pub.Y.FillBytes(out[1+byteLen : 1+2*byteLen])
	return out
}

func signTestRecord(t *testing.T, priv *ecdsa.PrivateKey, message []byte) []byte {
	t.Helper()
	hash := sha256.Sum256(message)
	r, s, err := ecdsa.Sign(rand.Reader, priv, hash[:])
	require.NoError(t, err)
	sig := make([]byte, testSigLen)
	r.FillBytes(sig[:48])
	s.FillBytes(sig[48:])
	return sig
}

func encodeTestRecord(t *testing.T, typ certchain.LinkType, usage certchain.Usage, pub, sig []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint8(typ)))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(usage)))
	buf.Write([]byte{0, 0, 0}) // wireHeader alignment padding
	buf.Write(pub)
	buf.Write(sig)
	return buf.Bytes()
}

// buildTestChain returns a two-link PDH<-ARK certificate chain plus the
// PDH private key and the ARK public key the chain is rooted at.
func buildTestChain(t *testing.T) (chain []byte, pdhPriv *ecdsa.PrivateKey, arkPub []byte) {
	t.Helper()

	arkPriv, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	require.NoError(t, err)
	arkPub = encodeTestPublicKey(&arkPriv.PublicKey)

	pdhPriv, err = ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	require.NoError(t, err)
	pdhPub := encodeTestPublicKey(&pdhPriv.PublicKey)
	pdhSig := signTestRecord(t, arkPriv, pdhPub)

	var buf bytes.Buffer
	buf.Write(encodeTestRecord(t, certchain.LinkPDH, 0, pdhPub, pdhSig))
	buf.Write(encodeTestRecord(t, certchain.LinkARK, 0, arkPub, make([]byte, testSigLen)))

	return buf.Bytes(), pdhPriv, arkPub
}

func newTestServer(t *testing.T, arkPub []byte) (*Server, store.Store) {
	t.Helper()
	st := memstore.NewStore()
	return &Server{
		store:    st,
		verifier: certchain.NewVerifierWithARK(arkPub),
		sessions: session.NewCache(),
		log:      testLogger(),
	}, st
}

// establishBundle drives GetBundle and recovers the session's TIK and
// TEK by completing the platform (PDH) side of the ECDH exchange
// against the returned GODH public key and unwrapping the launch blob,
// as the platform firmware would.
func establishBundle(t *testing.T, srv *Server, pdhPriv *ecdsa.PrivateKey, chain []byte, policy uint32) (guid string, keys session.Keys) {
	t.Helper()
	ctx := context.Background()

	reply, err := srv.GetBundle(ctx, &kbspb.GetBundleRequest{CertificateChain: chain, Policy: policy})
	require.NoError(t, err)

	godhPub, err := ecdh.P384().NewPublicKey(reply.GODHCert)
	require.NoError(t, err)

	pdhECDH, err := pdhPriv.ECDH()
	require.NoError(t, err)
	z, err := pdhECDH.ECDH(godhPub)
	require.NoError(t, err)

	master := hkdfDerive(t, z, []byte("sev-master-secret"), 32)
	kek := hkdfDerive(t, master, []byte("sev-kek"), 16)
	kik := hkdfDerive(t, master, []byte("sev-kik"), 16)

	blob, err := session.DecodeBlob(reply.LaunchBlob)
	require.NoError(t, err)
	k, err := session.Unwrap(kek, kik, blob)
	require.NoError(t, err)

	return reply.GUID, *k
}

func hkdfDerive(t *testing.T, secret, info []byte, length int) []byte {
	t.Helper()
	// Mirrors attest/session.deriveHKDF, unexported there.
	h := hkdf.New(sha256.New, secret, nil, info)
	out := make([]byte, length)
	_, err := io.ReadFull(h, out)
	require.NoError(t, err)
	return out
}

func validMeasurement(keys session.Keys, m evaluate.Measurement) []byte {
	tag := evaluate.Expected(keys.TIK[:], m)
	out := make([]byte, 0, 48)
	out = append(out, tag[:]...)
	out = append(out, m.MNonce[:]...)
	return out
}

func seedPolicy(t *testing.T, st store.Store, p *store.Policy) {
	t.Helper()
	require.NoError(t, st.PutPolicy(context.Background(), p))
}

func seedSecret(t *testing.T, st store.Store, s *store.Secret) {
	t.Helper()
	require.NoError(t, st.PutSecret(context.Background(), s))
}

func TestGetBundle_GetSecret_PermissiveDefaultRawSecret(t *testing.T) {
	chain, pdhPriv, arkPub := buildTestChain(t)
	srv, st := newTestServer(t, arkPub)

	seedPolicy(t, st, &store.Policy{ID: "permissive", Valid: true})
	seedSecret(t, st, &store.Secret{ID: "db-password", Value: []byte("hunter2"), PolID: "permissive"})

	guid, keys := establishBundle(t, srv, pdhPriv, chain, 0x01)

	digest := sha256.Sum256([]byte("firmware measurement"))
	m := evaluate.Measurement{APIMajor: 1, APIMinor: 0, BuildID: 1, Policy: 0x01, Digest: digest, MNonce: [16]byte{1, 2, 3}}

	reply, err := srv.GetSecret(context.Background(), &kbspb.GetSecretRequest{
		GUID:              guid,
		LaunchMeasurement: validMeasurement(keys, m),
		Policy:            0x01,
		APIMajor:          1,
		APIMinor:          0,
		BuildID:           1,
		FWDigest:          digest[:],
		SecretRequests:    []kbspb.SecretRequestEntry{{Type: kbspb.SecretRaw, ID: "db-password", GUID: testGUIDText}},
	})
	require.NoError(t, err)
	require.NotEmpty(t, reply.LaunchSecretHeader)
	require.NotEmpty(t, reply.LaunchSecretData)

	plaintext, err := secretpacket.Open(keys.TEK[:], reply.LaunchSecretHeader, reply.LaunchSecretData)
	require.NoError(t, err)
	entries, err := secretpacket.DecodeTable(plaintext)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, []byte("hunter2"), entries[0].Payload)
	wantGUID := efiGUIDBytes(t, testGUIDText)
	require.Equal(t, wantGUID[:], entries[0].GUID[:], "Raw entry GUID must be the caller-supplied GUID")
}

func TestGetSecret_MeasurementMismatch(t *testing.T) {
	chain, pdhPriv, arkPub := buildTestChain(t)
	srv, st := newTestServer(t, arkPub)
	seedPolicy(t, st, &store.Policy{ID: "permissive", Valid: true})
	seedSecret(t, st, &store.Secret{ID: "s1", Value: []byte("v"), PolID: "permissive"})

	guid, _ := establishBundle(t, srv, pdhPriv, chain, 0x01)

	digest := sha256.Sum256([]byte("firmware measurement"))
	bogus := make([]byte, 48) // all-zero tag, will not match the real TIK-derived tag

	_, err := srv.GetSecret(context.Background(), &kbspb.GetSecretRequest{
		GUID:              guid,
		LaunchMeasurement: bogus,
		Policy:            0x01,
		FWDigest:          digest[:],
		SecretRequests:    []kbspb.SecretRequestEntry{{Type: kbspb.SecretRaw, ID: "s1", GUID: testGUIDText}},
	})
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.CodeMeasurementMismatch))
}

func TestGetSecret_ReplayIsUnknownConnection(t *testing.T) {
	chain, pdhPriv, arkPub := buildTestChain(t)
	srv, st := newTestServer(t, arkPub)
	seedPolicy(t, st, &store.Policy{ID: "permissive", Valid: true})
	seedSecret(t, st, &store.Secret{ID: "s1", Value: []byte("v"), PolID: "permissive"})

	guid, keys := establishBundle(t, srv, pdhPriv, chain, 0x01)
	digest := sha256.Sum256([]byte("firmware measurement"))
	m := evaluate.Measurement{Policy: 0x01, Digest: digest, MNonce: [16]byte{9}}
	req := &kbspb.GetSecretRequest{
		GUID:              guid,
		LaunchMeasurement: validMeasurement(keys, m),
		Policy:            0x01,
		FWDigest:          digest[:],
		SecretRequests:    []kbspb.SecretRequestEntry{{Type: kbspb.SecretRaw, ID: "s1", GUID: testGUIDText}},
	}

	_, err := srv.GetSecret(context.Background(), req)
	require.NoError(t, err)

	_, err = srv.GetSecret(context.Background(), req)
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.CodeUnknownConnection))
}

func TestGetSecret_PolicyDeniedOnDigestMismatch(t *testing.T) {
	chain, pdhPriv, arkPub := buildTestChain(t)
	srv, st := newTestServer(t, arkPub)

	allowed := sha256.Sum256([]byte("allowed digest"))
	seedPolicy(t, st, &store.Policy{ID: "strict", Valid: true, AllowedDigests: [][32]byte{allowed}})
	seedSecret(t, st, &store.Secret{ID: "s1", Value: []byte("v"), PolID: "strict"})

	guid, keys := establishBundle(t, srv, pdhPriv, chain, 0x01)

	wrongDigest := sha256.Sum256([]byte("unexpected digest"))
	m := evaluate.Measurement{Policy: 0x01, Digest: wrongDigest, MNonce: [16]byte{5}}

	_, err := srv.GetSecret(context.Background(), &kbspb.GetSecretRequest{
		GUID:              guid,
		LaunchMeasurement: validMeasurement(keys, m),
		Policy:            0x01,
		FWDigest:          wrongDigest[:],
		SecretRequests:    []kbspb.SecretRequestEntry{{Type: kbspb.SecretRaw, ID: "s1", GUID: testGUIDText}},
	})
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.CodePolicyDenied))
}

// TestGetSecret_KeysetConflictingPolicies covers a keyset whose two
// constituent secrets sit under policies with different minimum
// firmware API versions: the conjunction must satisfy both, so a
// request between the two thresholds is denied and one above both
// succeeds with both secrets released in request order.
func TestGetSecret_KeysetConflictingPolicies(t *testing.T) {
	seedKeyset := func(t *testing.T, st store.Store) {
		t.Helper()
		seedPolicy(t, st, &store.Policy{ID: "p1", Valid: true, MinFWAPIMajor: 1, MinFWAPIMinor: 40})
		seedPolicy(t, st, &store.Policy{ID: "p2", Valid: true, MinFWAPIMajor: 1, MinFWAPIMinor: 50})
		seedPolicy(t, st, &store.Policy{ID: "ks-self", Valid: true})
		seedSecret(t, st, &store.Secret{ID: "s1", Value: []byte("va"), PolID: "p1"})
		seedSecret(t, st, &store.Secret{ID: "s2", Value: []byte("vb"), PolID: "p2"})
		require.NoError(t, st.PutKeyset(context.Background(), &store.Keyset{ID: "ks1", SecretIDs: []string{"s1", "s2"}, PolID: "ks-self"}))
	}

	t.Run("between thresholds is denied", func(t *testing.T) {
		chain, pdhPriv, arkPub := buildTestChain(t)
		srv, st := newTestServer(t, arkPub)
		seedKeyset(t, st)

		guid, keys := establishBundle(t, srv, pdhPriv, chain, 0x01)
		digest := sha256.Sum256([]byte("keyset digest"))
		m := evaluate.Measurement{APIMajor: 1, APIMinor: 45, Policy: 0x01, Digest: digest, MNonce: [16]byte{7}}

		_, err := srv.GetSecret(context.Background(), &kbspb.GetSecretRequest{
			GUID:              guid,
			LaunchMeasurement: validMeasurement(keys, m),
			Policy:            0x01,
			APIMajor:          1,
			APIMinor:          45,
			FWDigest:          digest[:],
			SecretRequests:    []kbspb.SecretRequestEntry{{Type: kbspb.SecretKeyset, ID: "ks1", GUID: testGUIDText}},
		})
		require.Error(t, err)
		require.True(t, errs.Is(err, errs.CodePolicyDenied))
	})

	t.Run("above both thresholds succeeds", func(t *testing.T) {
		chain, pdhPriv, arkPub := buildTestChain(t)
		srv, st := newTestServer(t, arkPub)
		seedKeyset(t, st)

		guid, keys := establishBundle(t, srv, pdhPriv, chain, 0x01)
		digest := sha256.Sum256([]byte("keyset digest"))
		m := evaluate.Measurement{APIMajor: 1, APIMinor: 51, Policy: 0x01, Digest: digest, MNonce: [16]byte{7}}

		reply, err := srv.GetSecret(context.Background(), &kbspb.GetSecretRequest{
			GUID:              guid,
			LaunchMeasurement: validMeasurement(keys, m),
			Policy:            0x01,
			APIMajor:          1,
			APIMinor:          51,
			FWDigest:          digest[:],
			SecretRequests:    []kbspb.SecretRequestEntry{{Type: kbspb.SecretKeyset, ID: "ks1", GUID: testGUIDText}},
		})
		require.NoError(t, err)
		require.NotEmpty(t, reply.LaunchSecretData)

		plaintext, err := secretpacket.Open(keys.TEK[:], reply.LaunchSecretHeader, reply.LaunchSecretData)
		require.NoError(t, err)
		entries, err := secretpacket.DecodeTable(plaintext)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		require.Equal(t, []byte("va"), entries[0].Payload)
		require.Equal(t, []byte("vb"), entries[1].Payload)
		require.NotEqual(t, entries[0].GUID[:], entries[1].GUID[:], "each keyset constituent must get its own entry GUID")
	})
}

func TestGetBundle_InvalidChainRejected(t *testing.T) {
	_, _, arkPub := buildTestChain(t)
	srv, _ := newTestServer(t, arkPub)

	otherArk, _, _ := buildTestChain(t) // signed by an unrelated, untrusted ARK

	_, err := srv.GetBundle(context.Background(), &kbspb.GetBundleRequest{CertificateChain: otherArk, Policy: 0})
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.CodeCertChainInvalid))
}
