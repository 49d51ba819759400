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
	"github.com/pypi/warehouse-sub006/metadata"
)

// SnapshotUpdate carries a dirty snapshot document through a batch of
// targets-role mutations. Its manifest references the batch's new role
// versions, but the snapshot itself is not yet bumped, signed or persisted;
// Publish is the only way to finish the two-phase commit, and a published
// update cannot be reused. Threading one update through several AddTargets
// calls amortizes a single snapshot/timestamp bump across the whole batch.
type SnapshotUpdate struct {
	snapshot  *metadata.Metadata[metadata.SnapshotType]
	published bool
}

// Snapshot exposes the in-progress snapshot document.
func (u *SnapshotUpdate) Snapshot() *metadata.Metadata[metadata.SnapshotType] {
	return u.snapshot
}

// SetMeta records a role's version in the in-progress snapshot manifest.
func (u *SnapshotUpdate) SetMeta(role metadata.RoleName, version int64) {
	u.snapshot.Signed.Meta[role.MetaName()] = *metadata.MetaFile(version)
}

// BeginSnapshotUpdate starts a batch against the latest persisted snapshot.
func (r *Repository) BeginSnapshotUpdate() (*SnapshotUpdate, error) {
	snapshot, err := r.LoadSnapshot()
	if err != nil {
		return nil, err
	}
	return &SnapshotUpdate{snapshot: snapshot}, nil
}

// ensureUpdate starts a batch when update is nil and rejects already
// published updates.
func (r *Repository) ensureUpdate(update *SnapshotUpdate) (*SnapshotUpdate, error) {
	if update == nil {
		return r.BeginSnapshotUpdate()
	}
	if update.published {
		return nil, metadata.ErrValue{Msg: "snapshot update has already been published"}
	}
	return update, nil
}

// Publish finishes a batch: the snapshot is bumped, signed and persisted,
// then the timestamp is bumped to point at the new snapshot version. Only
// after Publish returns is the batch durable for clients.
func (r *Repository) Publish(update *SnapshotUpdate) error {
	if update == nil {
		return metadata.ErrValue{Msg: "nil snapshot update"}
	}
	if update.published {
		return metadata.ErrValue{Msg: "snapshot update has already been published"}
	}
	snapshot, err := r.BumpSnapshot(update.snapshot, true)
	if err != nil {
		return err
	}
	if _, err := r.BumpTimestamp(snapshot.Version(), true); err != nil {
		return err
	}
	update.published = true
	metadata.GetLogger().Info("Published snapshot update", "snapshotVersion", snapshot.Version())
	return nil
}
