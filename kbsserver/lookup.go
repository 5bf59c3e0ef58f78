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
	"context"
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	"github.com/sage-x-project/kbs/store"
)

// storeLookup adapts store.Store to attest/secretpacket.SecretLookup.
type storeLookup struct {
	ctx context.Context
	st  store.Store
}

func (l storeLookup) Secret(id string) ([]byte, error) {
	s, err := l.st.GetSecret(l.ctx, id)
	if err != nil {
		return nil, err
	}
	return s.Value, nil
}

func (l storeLookup) Keyset(id string) ([]string, error) {
	ks, err := l.st.GetKeyset(l.ctx, id)
	if err != nil {
		return nil, err
	}
	return ks.SecretIDs, nil
}

func (l storeLookup) Resource(id string) (body []byte, resourceType string, err error) {
	r, err := l.st.GetResource(l.ctx, id)
	if err != nil {
		return nil, "", err
	}
	body, err = readResourceFile(r.Path)
	if err != nil {
		return nil, "", err
	}
	return body, r.Type, nil
}

func (l storeLookup) ReportKeypair(id string) (*ecdsa.PrivateKey, error) {
	k, err := l.st.GetReportKeypair(l.ctx, id)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(k.PEM)
	if block == nil {
		return nil, fmt.Errorf("report keypair %s: not a valid PEM block", id)
	}
	priv, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("report keypair %s: %w", id, err)
	}
	return priv, nil
}
