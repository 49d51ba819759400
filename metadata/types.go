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
	"encoding/json"
	"sync"
	"time"
)

// Roles is the generic constraint over the four signed payload types.
type Roles interface {
	RootType | SnapshotType | TimestampType | TargetsType
}

// SPECIFICATION_VERSION is the default TUF specification version written
// into new metadata. It can be overridden through the repository config.
const SPECIFICATION_VERSION = "1.0.31"

// Top level role names as they appear on the wire.
const (
	ROOT      = "root"
	SNAPSHOT  = "snapshot"
	TARGETS   = "targets"
	TIMESTAMP = "timestamp"
)

// Metadata is the signed envelope for a role's payload.
type Metadata[T Roles] struct {
	Signed     T           `json:"signed"`
	Signatures []Signature `json:"signatures"`
}

type Signature struct {
	KeyID     string   `json:"keyid"`
	Signature HexBytes `json:"sig"`
}

type RootType struct {
	Type               string           `json:"_type"`
	SpecVersion        string           `json:"spec_version"`
	ConsistentSnapshot bool             `json:"consistent_snapshot"`
	Version            int64            `json:"version"`
	Expires            time.Time        `json:"expires"`
	Keys               map[string]*Key  `json:"keys"`
	Roles              map[string]*Role `json:"roles"`
	Custom             json.RawMessage  `json:"custom,omitempty"`
}

type SnapshotType struct {
	Type        string               `json:"_type"`
	SpecVersion string               `json:"spec_version"`
	Version     int64                `json:"version"`
	Expires     time.Time            `json:"expires"`
	Meta        map[string]MetaFiles `json:"meta"`
	Custom      json.RawMessage      `json:"custom,omitempty"`
}

type TimestampType struct {
	Type        string               `json:"_type"`
	SpecVersion string               `json:"spec_version"`
	Version     int64                `json:"version"`
	Expires     time.Time            `json:"expires"`
	Meta        map[string]MetaFiles `json:"meta"`
	Custom      json.RawMessage      `json:"custom,omitempty"`
}

type TargetsType struct {
	Type        string                  `json:"_type"`
	SpecVersion string                  `json:"spec_version"`
	Version     int64                   `json:"version"`
	Expires     time.Time               `json:"expires"`
	Targets     map[string]*TargetFiles `json:"targets"`
	Delegations *Delegations            `json:"delegations,omitempty"`
	Custom      json.RawMessage         `json:"custom,omitempty"`
}

// Key is public key material plus the TUF keytype/scheme pair.
type Key struct {
	Type   string          `json:"keytype"`
	Scheme string          `json:"scheme"`
	Value  KeyVal          `json:"keyval"`
	Custom json.RawMessage `json:"custom,omitempty"`
	id     string
	idOnce sync.Once
}

type KeyVal struct {
	PublicKey string `json:"public"`
}

// Role pairs the authorized key IDs for a role with its signature threshold.
type Role struct {
	KeyIDs    []string `json:"keyids"`
	Threshold int      `json:"threshold"`
}

type HexBytes []byte

type Hashes map[string]HexBytes

// MetaFiles is a snapshot/timestamp manifest entry.
type MetaFiles struct {
	Length  int64           `json:"length,omitempty"`
	Hashes  Hashes          `json:"hashes,omitempty"`
	Version int64           `json:"version"`
	Custom  json.RawMessage `json:"custom,omitempty"`
}

// TargetFiles describes a single target artifact by length and hashes. The
// target path is carried out of band (it is the map key on the wire).
type TargetFiles struct {
	Length int64           `json:"length"`
	Hashes Hashes          `json:"hashes"`
	Custom json.RawMessage `json:"custom,omitempty"`
	Path   string          `json:"-"`
}

type Delegations struct {
	Keys  map[string]*Key `json:"keys"`
	Roles []DelegatedRole `json:"roles"`
}

type DelegatedRole struct {
	Name             string   `json:"name"`
	KeyIDs           []string `json:"keyids"`
	Threshold        int      `json:"threshold"`
	Terminating      bool     `json:"terminating"`
	PathHashPrefixes []string `json:"path_hash_prefixes,omitempty"`
	Paths            []string `json:"paths,omitempty"`
}
