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

import "fmt"

// roleKind discriminates the closed set of role categories. Adding a new
// top-level role requires updating every switch over roleKind.
type roleKind int

const (
	kindRoot roleKind = iota
	kindTimestamp
	kindSnapshot
	kindTargets
	kindDelegated
)

// RoleName identifies a metadata role: one of the four top-level roles, or a
// delegated targets role such as "bins" or "bin-7". The role name doubles as
// the stable storage key for its documents.
type RoleName struct {
	kind roleKind
	name string
}

var (
	RoleRoot      = RoleName{kindRoot, ROOT}
	RoleTimestamp = RoleName{kindTimestamp, TIMESTAMP}
	RoleSnapshot  = RoleName{kindSnapshot, SNAPSHOT}
	RoleTargets   = RoleName{kindTargets, TARGETS}
)

// Delegated returns the RoleName for a delegated targets role.
func Delegated(name string) RoleName {
	return RoleName{kindDelegated, name}
}

// ParseRole maps a wire role name onto a RoleName. Names outside the four
// top-level roles are delegated targets roles.
func ParseRole(name string) RoleName {
	switch name {
	case ROOT:
		return RoleRoot
	case TIMESTAMP:
		return RoleTimestamp
	case SNAPSHOT:
		return RoleSnapshot
	case TARGETS:
		return RoleTargets
	default:
		return Delegated(name)
	}
}

func (r RoleName) String() string {
	return r.name
}

// IsTopLevel reports whether the role is one of root, timestamp, snapshot or
// targets.
func (r RoleName) IsTopLevel() bool {
	return r.kind != kindDelegated
}

// TopLevelRoles lists the top-level roles in the order they are built during
// repository initialization: root last, since it collects every other role's
// keys.
func TopLevelRoles() []RoleName {
	return []RoleName{RoleTargets, RoleSnapshot, RoleTimestamp, RoleRoot}
}

// Filename returns the storage name of a role document at the given version.
// Timestamp is the only role written without a version component, so clients
// always have a fixed entry point.
func (r RoleName) Filename(version int64) string {
	switch r.kind {
	case kindTimestamp:
		return r.name + ".json"
	case kindRoot, kindSnapshot, kindTargets, kindDelegated:
		return fmt.Sprintf("%d.%s.json", version, r.name)
	default:
		panic(fmt.Sprintf("unhandled role kind %d", r.kind))
	}
}

// MetaName returns the key under which the role is tracked in snapshot (or
// timestamp) metadata.
func (r RoleName) MetaName() string {
	return r.name + ".json"
}
