/*
Copyright 2020 The OpenEBS Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package hash provides the two deterministic-naming primitives the
// control plane derives from tenant identifiers instead of persisting a
// separate allocation table: a stable numeric id for XFS project quotas,
// and a short collision-resistant suffix for VLAN interface names.
package hash

import (
	"crypto/sha256"
	"math/big"

	"github.com/cespare/xxhash"
)

const base62Chars = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// StableProjectID derives a deterministic XFS project id from seed (a
// "<svm>/<path>" key) so the id survives a control-plane restart without
// ever being written down. XFS project ids cannot set the high bit and 0
// is reserved for "no project", so the id is truncated to 31 bits and
// nudged off zero.
func StableProjectID(seed string) uint32 {
	id := uint32(xxhash.Sum64String(seed) & 0x7fffffff)
	if id == 0 {
		id = 1
	}
	return id
}

// Base62Pair returns a 2-character base62 digest of seed, used to
// disambiguate VLAN interface names that would otherwise collide once
// truncated to fit IFNAMSIZ.
func Base62Pair(seed string) string {
	digest := sha256.Sum256([]byte(seed))
	value := new(big.Int).SetBytes(digest[:])
	sixtyTwo := big.NewInt(62)
	c1 := new(big.Int).Mod(value, sixtyTwo).Int64()
	c2 := new(big.Int).Mod(new(big.Int).Div(value, sixtyTwo), sixtyTwo).Int64()
	return string([]byte{base62Chars[c1], base62Chars[c2]})
}
