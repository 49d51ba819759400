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

package metadata

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/json"
	"fmt"
	"hash"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/exp/slices"
)

// Supported target-hash algorithm names. The package index digests artifacts
// with blake2b-256.
const (
	HashAlgorithmSHA256     = "sha256"
	HashAlgorithmSHA512     = "sha512"
	HashAlgorithmBLAKE2b256 = "blake2b-256"
)

// hasherFor returns a fresh hasher for a supported algorithm name.
func hasherFor(algorithm string) (hash.Hash, error) {
	switch algorithm {
	case HashAlgorithmSHA256:
		return sha256.New(), nil
	case HashAlgorithmSHA512:
		return sha512.New(), nil
	case HashAlgorithmBLAKE2b256:
		hasher, err := blake2b.New256(nil)
		if err != nil {
			return nil, err
		}
		return hasher, nil
	default:
		return nil, ErrValue{Msg: fmt.Sprintf("unsupported hashing algorithm - %s", algorithm)}
	}
}

// checkUniqueSignatures verifies that signature key IDs are unique.
func checkUniqueSignatures(signatures []Signature) error {
	seen := []string{}
	for _, sig := range signatures {
		if slices.Contains(seen, sig.KeyID) {
			return ErrValue{Msg: fmt.Sprintf("multiple signatures found for key ID %s", sig.KeyID)}
		}
		seen = append(seen, sig.KeyID)
	}
	return nil
}

// checkType verifies that the generic type used to decode a document matches
// the _type declared inside it.
func checkType[T Roles](data []byte) error {
	var m struct {
		Signed struct {
			Type string `json:"_type"`
		} `json:"signed"`
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	var want string
	switch any(new(T)).(type) {
	case *RootType:
		want = ROOT
	case *SnapshotType:
		want = SNAPSHOT
	case *TimestampType:
		want = TIMESTAMP
	case *TargetsType:
		want = TARGETS
	default:
		return ErrType{Msg: fmt.Sprintf("unrecognized metadata type - %s", m.Signed.Type)}
	}
	if m.Signed.Type != want {
		return ErrValue{Msg: fmt.Sprintf("expected metadata type %s, got - %s", want, m.Signed.Type)}
	}
	return nil
}

func contains(haystack []string, needle string) bool {
	return slices.Contains(haystack, needle)
}
