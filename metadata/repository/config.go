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
	"math/bits"
	"strings"
	"time"

	"github.com/pypi/warehouse-sub006/metadata"
)

// Role names used for configuration lookups of the hash-bin tiers. "bins" is
// the fixed intermediate delegator, "bin-n" stands for every hash-bin leaf.
const (
	BinsRole = "bins"
	BinNRole = "bin-n"
)

// Config carries the repository's policy knobs: per-role signature
// thresholds and TTLs, the hash-bin fan-out, target hashing and the spec
// version string written into documents.
type Config struct {
	SpecVersion string
	// Thresholds and Expirations are keyed by role name; delegated hash-bin
	// leaves fall back to the "bin-n" entry.
	Thresholds  map[string]int
	Expirations map[string]time.Duration
	// NumberOfBins must be a power of two so bins map onto fixed-length hex
	// prefixes of the target path digest.
	NumberOfBins int
	KeyType      string
	// TargetHashAlgorithm digests artifact paths into bins and new target
	// entries.
	TargetHashAlgorithm string
}

// DefaultConfig mirrors the production index settings: two-tier hash-bin
// delegation with 16384 leaves, blake2b-256 artifact digests, single-key
// thresholds, long-lived root/targets and short-lived snapshot/timestamp.
func DefaultConfig() *Config {
	day := 24 * time.Hour
	return &Config{
		SpecVersion: metadata.SPECIFICATION_VERSION,
		Thresholds: map[string]int{
			metadata.ROOT:      1,
			metadata.TARGETS:   1,
			metadata.SNAPSHOT:  1,
			metadata.TIMESTAMP: 1,
			BinsRole:           1,
			BinNRole:           1,
		},
		Expirations: map[string]time.Duration{
			metadata.ROOT:      365 * day,
			metadata.TARGETS:   365 * day,
			metadata.SNAPSHOT:  1 * day,
			metadata.TIMESTAMP: 1 * day,
			BinsRole:           365 * day,
			BinNRole:           7 * day,
		},
		NumberOfBins:        16384,
		KeyType:             metadata.KeyTypeEd25519,
		TargetHashAlgorithm: metadata.HashAlgorithmBLAKE2b256,
	}
}

// Threshold returns the configured signature threshold for a role,
// defaulting to 1 when the role has no entry.
func (c *Config) Threshold(role metadata.RoleName) int {
	if t, ok := c.Thresholds[c.configKey(role)]; ok {
		return t
	}
	return 1
}

// Expiration returns the configured TTL for a role, defaulting to the
// "bin-n" TTL for unknown delegated roles and one day otherwise.
func (c *Config) Expiration(role metadata.RoleName) time.Duration {
	if e, ok := c.Expirations[c.configKey(role)]; ok {
		return e
	}
	return 24 * time.Hour
}

func (c *Config) configKey(role metadata.RoleName) string {
	name := role.String()
	if _, ok := c.Thresholds[name]; ok {
		return name
	}
	if !role.IsTopLevel() && strings.HasPrefix(name, "bin-") {
		return BinNRole
	}
	return name
}

// binPrefixLen returns the number of hex digits needed to address every bin.
func (c *Config) binPrefixLen() int {
	bitLen := bits.Len(uint(c.NumberOfBins)) - 1
	return (bitLen + 3) / 4
}

// binSize returns how many hex prefixes of binPrefixLen digits each bin
// covers.
func (c *Config) binSize() int {
	prefixCount := 1 << (4 * c.binPrefixLen())
	return prefixCount / c.NumberOfBins
}

// validate rejects a bin count that cannot be mapped onto hex prefixes.
func (c *Config) validate() error {
	if c.NumberOfBins < 2 || bits.OnesCount(uint(c.NumberOfBins)) != 1 {
		return metadata.ErrValue{Msg: "number of bins must be a power of two, 2 or greater"}
	}
	return nil
}
