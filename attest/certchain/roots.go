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

import "encoding/hex"

// arkPublicKeyHex is the AMD Root Key public key, embedded at build time
// per the SEV trust model: never read from disk or fetched over the
// network. SEC1 uncompressed P-384 point (0x04 || X || Y).
const arkPublicKeyHex = "04ea8109e14c90ed4029767f0cd2b509ca8d1b891837a5b8d2e40bbb7b9f3ea" +
	"893675d513d81ccd2b231f499ce42b9d5b194cc4e47c8d854a9589d6a1b63e9" +
	"9233678415b3089b84a42127fd37057ac14ef757b92549b8b3900c828c8162d" +
	"a8bb5"

var embeddedARK []byte

func init() {
	key, err := hex.DecodeString(arkPublicKeyHex)
	if err != nil {
		panic("certchain: malformed embedded ARK public key: " + err.Error())
	}
	if len(key) != 97 {
		panic("certchain: embedded ARK public key has unexpected length")
	}
	embeddedARK = key
}

// EmbeddedARK returns the AMD Root Key public key bundled with this
// binary. Callers must not mutate the returned slice.
func EmbeddedARK() []byte {
	return embeddedARK
}
