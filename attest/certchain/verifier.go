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

package certchain

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"math/big"

	"github.com/sage-x-project/kbs/attest/errs"
)

const (
	pubKeyLen = 97 // 0x04 || X(48) || Y(48), SEC1 uncompressed P-384 point
	sigLen    = 96 // r(48) || s(48), zero-padded
)

// wireHeader is the fixed-size portion of one certificate-chain record,
// little-endian per the SEV firmware ABI.
type wireHeader struct {
	LinkType uint8
	Usage    uint32
	_        [3]byte // alignment padding
}

// Verifier validates SEV platform certificate chains against the
// embedded AMD root key.
type Verifier struct {
	ark []byte
}

// NewVerifier constructs a Verifier trusting the embedded ARK.
func NewVerifier() *Verifier {
	return &Verifier{ark: EmbeddedARK()}
}

// NewVerifierWithARK constructs a Verifier trusting an explicit root
// key instead of the embedded one, for deployments pinning a
// non-default ARK and for tests exercising the chain-verification path
// without the real AMD root.
func NewVerifierWithARK(ark []byte) *Verifier {
	return &Verifier{ark: ark}
}

// ParseChain decodes the little-endian binary certificate chain into an
// ordered sequence of records (PDH first, ARK last).
func ParseChain(data []byte) (*Chain, error) {
	r := bytes.NewReader(data)
	var chain Chain

	for r.Len() > 0 {
		var hdr wireHeader
		if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
			return nil, errs.CertChainInvalid("malformed", "truncated record header")
		}
		if hdr.LinkType > uint8(LinkARK) {
			return nil, errs.CertChainInvalid("malformed", "unknown link type")
		}

		pub := make([]byte, pubKeyLen)
		if _, err := io.ReadFull(r, pub); err != nil {
			return nil, errs.CertChainInvalid("malformed", "truncated public key")
		}

		sig := make([]byte, sigLen)
		if _, err := io.ReadFull(r, sig); err != nil {
			return nil, errs.CertChainInvalid("malformed", "truncated signature")
		}

		chain.Records = append(chain.Records, Record{
			Type:      LinkType(hdr.LinkType),
			Usage:     Usage(hdr.Usage),
			PublicKey: pub,
			Signature: sig,
		})
	}

	if len(chain.Records) == 0 {
		return nil, errs.CertChainInvalid("malformed", "empty certificate chain")
	}

	return &chain, nil
}

// Verify walks the chain from PDH to ARK, confirming each link's
// signature was produced by the next link's key, then checks the final
// (ARK) key against the embedded trust root. It returns the verified
// PDH public key ready for ECDH.
func (v *Verifier) Verify(chain *Chain) (*ecdsa.PublicKey, error) {
	if chain == nil || len(chain.Records) < 2 {
		return nil, errs.CertChainInvalid("malformed", "chain too short")
	}

	for i := 0; i < len(chain.Records)-1; i++ {
		link := chain.Records[i]
		signer := chain.Records[i+1]

		if link.Type == LinkPDH && signer.Usage&UsageExchange == 0 && signer.Usage != 0 {
			return nil, errs.CertChainInvalid(link.Type.String(), "signer key usage does not permit this role")
		}

		signerPub, err := parsePublicKey(signer.PublicKey)
		if err != nil {
			return nil, errs.CertChainInvalid(signer.Type.String(), "unsupported curve")
		}

		if !verifySignature(signerPub, link.PublicKey, link.Signature) {
			return nil, errs.CertChainInvalid(link.Type.String(), "signature verification failed")
		}
	}

	root := chain.Records[len(chain.Records)-1]
	if root.Type != LinkARK {
		return nil, errs.CertChainInvalid("ark", "chain does not terminate at ARK")
	}
	if !bytes.Equal(root.PublicKey, v.ark) {
		return nil, errs.CertChainInvalid("ark", "unknown root key")
	}

	pdhPub, err := parsePublicKey(chain.PDH().PublicKey)
	if err != nil {
		return nil, errs.CertChainInvalid("pdh", "unsupported curve")
	}

	return pdhPub, nil
}

func parsePublicKey(raw []byte) (*ecdsa.PublicKey, error) {
	if len(raw) != pubKeyLen || raw[0] != 0x04 {
		return nil, fmt.Errorf("invalid public key encoding")
	}
	curve := elliptic.P384()
	byteLen := (curve.Params().BitSize + 7) / 8
	x := new(big.Int).SetBytes(raw[1 : 1+byteLen])
	y := new(big.Int).SetBytes(raw[1+byteLen : 1+2*byteLen])
	if !curve.IsOnCurve(x, y) {
		return nil, fmt.Errorf("point not on curve")
	}
	return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}, nil
}

func verifySignature(pub *ecdsa.PublicKey, message, sig []byte) bool {
	if len(sig) != sigLen {
		return false
	}
	r := new(big.Int).SetBytes(sig[:48])
	s := new(big.Int).SetBytes(sig[48:])
	hash := sha256.Sum256(message)
	return ecdsa.Verify(pub, hash[:], r, s)
}
