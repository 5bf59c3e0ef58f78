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

package secretpacket

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"

	"github.com/sage-x-project/kbs/attest/errs"
)

// SecretLookup resolves the store-backed entities a request may name.
// kbsserver supplies the concrete implementation backed by store.Store.
type SecretLookup interface {
	Secret(id string) ([]byte, error)
	Keyset(id string) ([]string, error)
	Resource(id string) (body []byte, resourceType string, err error)
	ReportKeypair(id string) (*ecdsa.PrivateKey, error)
}

// Builder assembles the OVMF secret table for a resolved set of
// requests and encrypts it under the session's transport-encryption
// key.
type Builder struct {
	lookup SecretLookup
}

// NewBuilder constructs a Builder backed by lookup.
func NewBuilder(lookup SecretLookup) *Builder {
	return &Builder{lookup: lookup}
}

// bundlePayload is the JSON shape written for Bundle-format entries,
// mirroring simple-kbs's bundled connection-secret JSON.
type bundlePayload struct {
	SecretID string `json:"secret_id"`
	Secret   []byte `json:"secret"`
}

// Build resolves every request into one or more OVMF entries, encodes
// the table, and seals it with AES-128-GCM under tek. header carries
// the random nonce needed to open data.
func (b *Builder) Build(tek []byte, reqs []Request) (header, data []byte, err error) {
	var entries []Entry

	for _, req := range reqs {
		resolved, rerr := b.resolve(req)
		if rerr != nil {
			return nil, nil, rerr
		}
		entries = append(entries, resolved...)
	}

	table, err := encodeTable(entries)
	if err != nil {
		return nil, nil, errs.Internal(err)
	}

	return seal(tek, table)
}

func (b *Builder) resolve(req Request) ([]Entry, error) {
	switch req.Type {
	case Raw:
		secret, err := b.lookup.Secret(req.ID)
		if err != nil {
			return nil, errs.SecretNotFound(req.ID)
		}
		guid, gerr := parseGUIDString(req.GUID)
		if gerr != nil {
			return nil, gerr
		}
		return []Entry{{GUID: guid, Payload: secret}}, nil

	case Bundle:
		secret, err := b.lookup.Secret(req.ID)
		if err != nil {
			return nil, errs.SecretNotFound(req.ID)
		}
		payload, jerr := json.Marshal(bundlePayload{SecretID: req.ID, Secret: secret})
		if jerr != nil {
			return nil, errs.Internal(jerr)
		}
		return []Entry{{GUID: guidFor(Bundle), Payload: payload}}, nil

	case Keyset:
		ids, err := b.lookup.Keyset(req.ID)
		if err != nil {
			return nil, errs.SecretNotFound(req.ID)
		}
		base, gerr := parseGUIDString(req.GUID)
		if gerr != nil {
			return nil, gerr
		}
		var out []Entry
		for _, id := range ids {
			secret, serr := b.lookup.Secret(id)
			if serr != nil {
				return nil, errs.SecretNotFound(id)
			}
			out = append(out, Entry{GUID: derivePerSecretGUID(base, id), Payload: secret})
		}
		return out, nil

	case Resource:
		body, resourceType, err := b.lookup.Resource(req.ID)
		if err != nil {
			return nil, errs.SecretNotFound(req.ID)
		}
		return []Entry{{GUID: guidForResourceType(resourceType), Payload: body}}, nil

	case ReportData:
		priv, err := b.lookup.ReportKeypair(req.ID)
		if err != nil {
			return nil, errs.SecretNotFound(req.ID)
		}
		sig, serr := signReportData(priv, req.Payload)
		if serr != nil {
			return nil, errs.Internal(serr)
		}
		return []Entry{{GUID: guidFor(ReportData), Payload: sig}}, nil

	default:
		return nil, errs.InvalidArgument("unknown secret request type")
	}
}

// entryHeader is the fixed prefix of an encoded OVMF entry.
type entryHeader struct {
	GUID   guidLE
	Length uint32 // total entry size, GUID+Length field+Payload
}

func encodeTable(entries []Entry) ([]byte, error) {
	var buf bytes.Buffer
	for _, e := range entries {
		hdr := entryHeader{GUID: e.GUID, Length: uint32(16+4+len(e.Payload))}
		if err := binary.Write(&buf, binary.LittleEndian, hdr); err != nil {
			return nil, err
		}
		buf.Write(e.Payload)
	}
	return buf.Bytes(), nil
}

func signReportData(priv *ecdsa.PrivateKey, nonce []byte) ([]byte, error) {
	hash := sha256.Sum256(nonce)
	r, s, err := ecdsa.Sign(rand.Reader, priv, hash[:])
	if err != nil {
		return nil, err
	}
	byteLen := (priv.Curve.Params().BitSize + 7) / 8
	sig := make([]byte, 2*byteLen)
	r.FillBytes(sig[:byteLen])
	s.FillBytes(sig[byteLen:])
	return sig, nil
}

// seal encrypts table under tek with AES-128-GCM, returning the random
// nonce as the header and the ciphertext (tag included) as data.
func seal(tek, table []byte) (header, data []byte, err error) {
	block, err := aes.NewCipher(tek)
	if err != nil {
		return nil, nil, errs.Internal(err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, errs.Internal(err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, errs.Internal(err)
	}
	ciphertext := gcm.Seal(nil, nonce, table, nil)
	return nonce, ciphertext, nil
}

// DecodeTable parses an assembled OVMF table back into entries, for
// tests and offline inspection tooling.
func DecodeTable(table []byte) ([]Entry, error) {
	r := bytes.NewReader(table)
	var entries []Entry
	for r.Len() > 0 {
		var hdr entryHeader
		if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
			return nil, errs.InvalidArgument("truncated entry header")
		}
		payloadLen := int(hdr.Length) - 16 - 4
		if payloadLen < 0 || payloadLen > r.Len() {
			return nil, errs.InvalidArgument("invalid entry length")
		}
		payload := make([]byte, payloadLen)
		if _, err := r.Read(payload); err != nil {
			return nil, errs.InvalidArgument("truncated entry payload")
		}
		entries = append(entries, Entry{GUID: hdr.GUID, Payload: payload})
	}
	return entries, nil
}

// Open reverses seal, for tests and offline inspection tooling.
func Open(tek, header, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(tek)
	if err != nil {
		return nil, errs.Internal(err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errs.Internal(err)
	}
	plaintext, err := gcm.Open(nil, header, data, nil)
	if err != nil {
		return nil, errs.InvalidArgument("launch secret authentication failed")
	}
	return plaintext, nil
}
