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
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/secure-systems-lab/go-securesystemslib/cjson"
	"github.com/sigstore/sigstore/pkg/signature"
)

// Root returns a new metadata instance of type Root. All four top-level
// roles start with a threshold of 1 and no keys; the repository layer fills
// both in from its configuration.
func Root(expires time.Time) *Metadata[RootType] {
	roles := map[string]*Role{}
	for _, r := range []string{ROOT, SNAPSHOT, TARGETS, TIMESTAMP} {
		roles[r] = &Role{
			KeyIDs:    []string{},
			Threshold: 1,
		}
	}
	log.Info("Created metadata", "type", ROOT, "expires", expires)
	return &Metadata[RootType]{
		Signed: RootType{
			Type:               ROOT,
			SpecVersion:        SPECIFICATION_VERSION,
			Version:            1,
			Expires:            expires,
			Keys:               map[string]*Key{},
			Roles:              roles,
			ConsistentSnapshot: true,
		},
		Signatures: []Signature{},
	}
}

// Snapshot returns a new metadata instance of type Snapshot, pre-seeded with
// a version 1 reference to targets.json.
func Snapshot(expires time.Time) *Metadata[SnapshotType] {
	log.Info("Created metadata", "type", SNAPSHOT, "expires", expires)
	return &Metadata[SnapshotType]{
		Signed: SnapshotType{
			Type:        SNAPSHOT,
			SpecVersion: SPECIFICATION_VERSION,
			Version:     1,
			Expires:     expires,
			Meta: map[string]MetaFiles{
				RoleTargets.MetaName(): {
					Version: 1,
				},
			},
		},
		Signatures: []Signature{},
	}
}

// Timestamp returns a new metadata instance of type Timestamp, pointing at
// snapshot version 1.
func Timestamp(expires time.Time) *Metadata[TimestampType] {
	log.Info("Created metadata", "type", TIMESTAMP, "expires", expires)
	return &Metadata[TimestampType]{
		Signed: TimestampType{
			Type:        TIMESTAMP,
			SpecVersion: SPECIFICATION_VERSION,
			Version:     1,
			Expires:     expires,
			Meta: map[string]MetaFiles{
				RoleSnapshot.MetaName(): {
					Version: 1,
				},
			},
		},
		Signatures: []Signature{},
	}
}

// Targets returns a new metadata instance of type Targets with an empty
// target set. Delegated targets roles share this shape.
func Targets(expires time.Time) *Metadata[TargetsType] {
	log.Info("Created metadata", "type", TARGETS, "expires", expires)
	return &Metadata[TargetsType]{
		Signed: TargetsType{
			Type:        TARGETS,
			SpecVersion: SPECIFICATION_VERSION,
			Version:     1,
			Expires:     expires,
			Targets:     map[string]*TargetFiles{},
		},
		Signatures: []Signature{},
	}
}

// MetaFile returns a manifest entry for the given role version.
func MetaFile(version int64) *MetaFiles {
	if version < 1 {
		log.Info("Attempted to set incorrect version for MetaFile", "version", version)
		version = 1
	}
	return &MetaFiles{
		Version: version,
	}
}

// Version returns the version of the signed payload.
func (meta *Metadata[T]) Version() int64 {
	switch s := any(&meta.Signed).(type) {
	case *RootType:
		return s.Version
	case *SnapshotType:
		return s.Version
	case *TimestampType:
		return s.Version
	case *TargetsType:
		return s.Version
	default:
		panic("unrecognized metadata type")
	}
}

// Expires returns the expiration of the signed payload.
func (meta *Metadata[T]) Expires() time.Time {
	switch s := any(&meta.Signed).(type) {
	case *RootType:
		return s.Expires
	case *SnapshotType:
		return s.Expires
	case *TimestampType:
		return s.Expires
	case *TargetsType:
		return s.Expires
	default:
		panic("unrecognized metadata type")
	}
}

// Bump increments the payload version by one and replaces its expiration,
// returning the new version. Existing signatures are left in place; they no
// longer match the payload, so callers are expected to re-sign.
func (meta *Metadata[T]) Bump(expires time.Time) int64 {
	switch s := any(&meta.Signed).(type) {
	case *RootType:
		s.Version++
		s.Expires = expires
		return s.Version
	case *SnapshotType:
		s.Version++
		s.Expires = expires
		return s.Version
	case *TimestampType:
		s.Version++
		s.Expires = expires
		return s.Version
	case *TargetsType:
		s.Version++
		s.Expires = expires
		return s.Version
	default:
		panic("unrecognized metadata type")
	}
}

// SetSpecVersion overrides the specification version string written into the
// payload.
func (meta *Metadata[T]) SetSpecVersion(version string) {
	switch s := any(&meta.Signed).(type) {
	case *RootType:
		s.SpecVersion = version
	case *SnapshotType:
		s.SpecVersion = version
	case *TimestampType:
		s.SpecVersion = version
	case *TargetsType:
		s.SpecVersion = version
	}
}

// Sign creates a signature over Signed and appends it to Signatures.
func (meta *Metadata[T]) Sign(signer signature.Signer) (*Signature, error) {
	// encode the Signed part to canonical JSON so signatures are consistent
	payload, err := cjson.EncodeCanonical(meta.Signed)
	if err != nil {
		return nil, err
	}
	sb, err := signer.SignMessage(bytes.NewReader(payload))
	if err != nil {
		return nil, ErrUnsignedMetadata{Msg: "problem signing metadata"}
	}
	publ, err := signer.PublicKey()
	if err != nil {
		return nil, err
	}
	// convert to TUF Key type to get the key ID
	key, err := KeyFromPublicKey(publ)
	if err != nil {
		return nil, err
	}
	sig := &Signature{
		KeyID:     key.ID(),
		Signature: sb,
	}
	meta.Signatures = append(meta.Signatures, *sig)
	log.Info("Signed metadata", "keyID", key.ID())
	return sig, nil
}

// ClearSignatures empties Signatures, typically right before re-signing a
// bumped payload.
func (meta *Metadata[T]) ClearSignatures() {
	meta.Signatures = []Signature{}
}

// ToBytes serializes metadata to bytes.
func (meta *Metadata[T]) ToBytes(pretty bool) ([]byte, error) {
	if pretty {
		return json.MarshalIndent(*meta, "", " ")
	}
	return json.Marshal(*meta)
}

// FromBytes deserializes metadata of the given role type from bytes, checking
// that the document's declared type matches T and that signature key IDs are
// unique.
func FromBytes[T Roles](data []byte) (*Metadata[T], error) {
	if err := checkType[T](data); err != nil {
		return nil, err
	}
	meta := &Metadata[T]{}
	if err := json.Unmarshal(data, meta); err != nil {
		return nil, err
	}
	if err := checkUniqueSignatures(meta.Signatures); err != nil {
		return nil, err
	}
	return meta, nil
}

// TargetFileFromBytes generates a TargetFiles entry for the artifact at path,
// hashed with the given algorithms (blake2b-256 if none are given).
func TargetFileFromBytes(path string, data []byte, algorithms ...string) (*TargetFiles, error) {
	if len(algorithms) == 0 {
		algorithms = []string{HashAlgorithmBLAKE2b256}
	}
	targetFile := &TargetFiles{
		Length: int64(len(data)),
		Hashes: Hashes{},
		Path:   path,
	}
	for _, algo := range algorithms {
		hasher, err := hasherFor(algo)
		if err != nil {
			return nil, err
		}
		if _, err := hasher.Write(data); err != nil {
			return nil, err
		}
		targetFile.Hashes[algo] = hasher.Sum(nil)
	}
	return targetFile, nil
}

func (b *HexBytes) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || len(data)%2 != 0 || data[0] != '"' || data[len(data)-1] != '"' {
		return errors.New("tuf: invalid JSON hex bytes")
	}
	res := make([]byte, hex.DecodedLen(len(data)-2))
	_, err := hex.Decode(res, data[1:len(data)-1])
	if err != nil {
		return err
	}
	*b = res
	return nil
}

func (b HexBytes) MarshalJSON() ([]byte, error) {
	res := make([]byte, hex.EncodedLen(len(b))+2)
	res[0] = '"'
	res[len(res)-1] = '"'
	hex.Encode(res[1:], b)
	return res, nil
}

func (b HexBytes) String() string {
	return hex.EncodeToString(b)
}

// AddKey registers a signing key for "role" and records its public material.
func (signed *RootType) AddKey(key *Key, role string) error {
	if _, ok := signed.Roles[role]; !ok {
		return ErrValue{Msg: fmt.Sprintf("role %s doesn't exist", role)}
	}
	if !contains(signed.Roles[role].KeyIDs, key.ID()) {
		signed.Roles[role].KeyIDs = append(signed.Roles[role].KeyIDs, key.ID())
	}
	signed.Keys[key.ID()] = key
	return nil
}
