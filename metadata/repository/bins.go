// Copyright 2024 The Python Package Index Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License
//
// SPDX-License-Identifier: Apache-2.0
//

package repository

import (
	"fmt"
	"strconv"

	"golang.org/x/crypto/blake2b"

	"github.com/pypi/warehouse-sub006/metadata"
)

// Hash-bin partitioning splits the target-path space into a fixed set of
// delegated leaf roles so that adding one artifact only re-signs one small
// document instead of a manifest of every artifact on the index.

// Bins returns the fixed intermediate delegator role.
func Bins() metadata.RoleName {
	return metadata.Delegated(BinsRole)
}

// BinRole returns the leaf role responsible for bin index i.
func BinRole(i int) metadata.RoleName {
	return metadata.Delegated(fmt.Sprintf("bin-%d", i))
}

// BinForTargetPath returns the leaf role responsible for the given target
// path: the path's blake2b-256 digest is truncated to the bin prefix length
// and divided among the bins.
func (r *Repository) BinForTargetPath(targetPath string) metadata.RoleName {
	digest := blake2b.Sum256([]byte(targetPath))
	prefixLen := r.config.binPrefixLen()
	// each hex digit carries 4 bits of the digest
	var value int
	for i := 0; i < prefixLen; i++ {
		nibble := digest[i/2]
		if i%2 == 0 {
			nibble >>= 4
		}
		value = value<<4 | int(nibble&0x0f)
	}
	return BinRole(value / r.config.binSize())
}

// BinHashPrefixes returns the hex path-hash prefixes covered by bin index i,
// zero padded to the bin prefix length.
func (r *Repository) BinHashPrefixes(i int) []string {
	prefixLen := r.config.binPrefixLen()
	size := r.config.binSize()
	prefixes := make([]string, 0, size)
	for p := i * size; p < (i+1)*size; p++ {
		prefix := strconv.FormatInt(int64(p), 16)
		for len(prefix) < prefixLen {
			prefix = "0" + prefix
		}
		prefixes = append(prefixes, prefix)
	}
	return prefixes
}
