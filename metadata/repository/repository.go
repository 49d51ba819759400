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

// Package repository implements the metadata repository: construction,
// signing, versioning and hash-bin delegation of TUF role documents, read
// and written through an injected storage backend and key service.
//
// The repository never retries and never locks; callers that mutate
// metadata concurrently must serialize through the tasks package.
package repository

import (
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sigstore/sigstore/pkg/signature"
	"golang.org/x/exp/slices"

	"github.com/pypi/warehouse-sub006/metadata"
	"github.com/pypi/warehouse-sub006/metadata/keyservice"
	"github.com/pypi/warehouse-sub006/metadata/storage"
)

// Repository owns the construction, signing and persistence of all role
// metadata.
type Repository struct {
	storage storage.Backend
	keys    keyservice.KeyService
	config  *Config
	clock   clockwork.Clock
}

// Option configures a Repository.
type Option func(*Repository)

// WithConfig replaces the default configuration.
func WithConfig(config *Config) Option {
	return func(r *Repository) {
		r.config = config
	}
}

// WithClock replaces the wall clock used to compute expirations.
func WithClock(clock clockwork.Clock) Option {
	return func(r *Repository) {
		r.clock = clock
	}
}

// New returns a repository over the given storage backend and key service.
func New(store storage.Backend, keys keyservice.KeyService, opts ...Option) (*Repository, error) {
	r := &Repository{
		storage: store,
		keys:    keys,
		config:  DefaultConfig(),
		clock:   clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.config.validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Config returns the repository configuration.
func (r *Repository) Config() *Config {
	return r.config
}

// TopLevelSet holds one document for each top-level role, as produced by
// Initialize.
type TopLevelSet struct {
	Root      *metadata.Metadata[metadata.RootType]
	Snapshot  *metadata.Metadata[metadata.SnapshotType]
	Timestamp *metadata.Metadata[metadata.TimestampType]
	Targets   *metadata.Metadata[metadata.TargetsType]
}

// Expiration computes a fresh expiry for a role: wall-clock now, truncated
// to whole seconds, plus the role's TTL. Never derived from the previous
// expiry, so a refreshed role always gets its full TTL back.
func (r *Repository) Expiration(role metadata.RoleName) time.Time {
	return r.clock.Now().UTC().Truncate(time.Second).Add(r.config.Expiration(role))
}

// IsInitialized reports whether any top-level role document exists in
// storage. A not-found from the backend means "not initialized"; any other
// storage failure is propagated rather than being mistaken for a fresh
// install.
func (r *Repository) IsInitialized() (bool, error) {
	for _, role := range metadata.TopLevelRoles() {
		_, err := r.storage.GetLatest(role)
		if err == nil {
			return true, nil
		}
		if !storage.IsNotFound(err) {
			return false, err
		}
	}
	return false, nil
}

// Initialize creates the whole top-level role set at version 1: targets,
// snapshot, timestamp and finally root, which records every role's key IDs
// and threshold. Each role is signed with every supplied key. Initialization
// is all or nothing: it fails before signing or persisting anything if the
// repository already exists or if any role has fewer keys than its
// configured threshold.
func (r *Repository) Initialize(keysByRole map[metadata.RoleName][]signature.Signer, persist bool) (*TopLevelSet, error) {
	initialized, err := r.IsInitialized()
	if err != nil {
		return nil, err
	}
	if initialized {
		return nil, metadata.ErrAlreadyInitialized{Msg: "top-level role metadata already exists in storage"}
	}
	// every role's threshold must be satisfiable before any role is signed
	for _, role := range metadata.TopLevelRoles() {
		threshold := r.config.Threshold(role)
		if len(keysByRole[role]) < threshold {
			return nil, metadata.ErrInsufficientKeys{Role: role.String(), Threshold: threshold, Got: len(keysByRole[role])}
		}
	}

	set := &TopLevelSet{
		Targets:   metadata.Targets(r.Expiration(metadata.RoleTargets)),
		Snapshot:  metadata.Snapshot(r.Expiration(metadata.RoleSnapshot)),
		Timestamp: metadata.Timestamp(r.Expiration(metadata.RoleTimestamp)),
		Root:      metadata.Root(r.Expiration(metadata.RoleRoot)),
	}
	set.Targets.SetSpecVersion(r.config.SpecVersion)
	set.Snapshot.SetSpecVersion(r.config.SpecVersion)
	set.Timestamp.SetSpecVersion(r.config.SpecVersion)
	set.Root.SetSpecVersion(r.config.SpecVersion)

	// root is the authoritative mapping of role name to keys and threshold
	for _, role := range metadata.TopLevelRoles() {
		set.Root.Signed.Roles[role.String()].Threshold = r.config.Threshold(role)
		for _, signer := range keysByRole[role] {
			pub, err := signer.PublicKey()
			if err != nil {
				return nil, err
			}
			key, err := metadata.KeyFromPublicKey(pub)
			if err != nil {
				return nil, err
			}
			if err := set.Root.Signed.AddKey(key, role.String()); err != nil {
				return nil, err
			}
		}
	}

	if err := signWith(set.Targets, keysByRole[metadata.RoleTargets]); err != nil {
		return nil, err
	}
	if err := signWith(set.Snapshot, keysByRole[metadata.RoleSnapshot]); err != nil {
		return nil, err
	}
	if err := signWith(set.Timestamp, keysByRole[metadata.RoleTimestamp]); err != nil {
		return nil, err
	}
	if err := signWith(set.Root, keysByRole[metadata.RoleRoot]); err != nil {
		return nil, err
	}

	if persist {
		if err := persistRole(r, metadata.RoleTargets, set.Targets); err != nil {
			return nil, err
		}
		if err := persistRole(r, metadata.RoleSnapshot, set.Snapshot); err != nil {
			return nil, err
		}
		if err := persistRole(r, metadata.RoleTimestamp, set.Timestamp); err != nil {
			return nil, err
		}
		if err := persistRole(r, metadata.RoleRoot, set.Root); err != nil {
			return nil, err
		}
	}
	metadata.GetLogger().Info("Initialized repository", "persist", persist)
	return set, nil
}

// LoadRole reads the latest version of a targets-shaped role (the top-level
// targets role or any delegated role). Storage not-found errors propagate
// untouched so callers decide how to interpret them.
func (r *Repository) LoadRole(role metadata.RoleName) (*metadata.Metadata[metadata.TargetsType], error) {
	switch role {
	case metadata.RoleRoot, metadata.RoleSnapshot, metadata.RoleTimestamp:
		return nil, metadata.ErrType{Msg: fmt.Sprintf("role %s is not targets-shaped, use its typed loader", role)}
	default:
		return loadRole[metadata.TargetsType](r, role)
	}
}

// LoadRoot reads the latest root document.
func (r *Repository) LoadRoot() (*metadata.Metadata[metadata.RootType], error) {
	return loadRole[metadata.RootType](r, metadata.RoleRoot)
}

// LoadSnapshot reads the latest snapshot document.
func (r *Repository) LoadSnapshot() (*metadata.Metadata[metadata.SnapshotType], error) {
	return loadRole[metadata.SnapshotType](r, metadata.RoleSnapshot)
}

// LoadTimestamp reads the current timestamp document.
func (r *Repository) LoadTimestamp() (*metadata.Metadata[metadata.TimestampType], error) {
	return loadRole[metadata.TimestampType](r, metadata.RoleTimestamp)
}

// BumpRoleVersion increments the document's version, gives it a fresh
// expiry, and re-signs it with every key the key service currently holds for
// signingRole. Thresholds are not re-validated here: root fixed them at
// initialization and operational bumps trust the key service to return the
// authorized set. signingRole differs from role for delegated roles signed
// by their delegator's key group.
func BumpRoleVersion[T metadata.Roles](r *Repository, role metadata.RoleName, md *metadata.Metadata[T], expires time.Time, signingRole metadata.RoleName, persist bool) (*metadata.Metadata[T], error) {
	version := md.Bump(expires)
	signers, err := r.keys.Get(signingRole)
	if err != nil {
		return nil, err
	}
	if err := signWith(md, signers); err != nil {
		return nil, err
	}
	if persist {
		if err := persistRole(r, role, md); err != nil {
			return nil, err
		}
	}
	metadata.GetLogger().Info("Bumped role version", "role", role.String(), "version", version, "signedBy", signingRole.String())
	return md, nil
}

// BumpSnapshot bumps the snapshot role (loading the latest document when
// snapshot is nil), always signed with snapshot's own key group.
func (r *Repository) BumpSnapshot(snapshot *metadata.Metadata[metadata.SnapshotType], persist bool) (*metadata.Metadata[metadata.SnapshotType], error) {
	if snapshot == nil {
		var err error
		snapshot, err = r.LoadSnapshot()
		if err != nil {
			return nil, err
		}
	}
	return BumpRoleVersion(r, metadata.RoleSnapshot, snapshot, r.Expiration(metadata.RoleSnapshot), metadata.RoleSnapshot, persist)
}

// BumpTimestamp bumps the timestamp role and points it at the given snapshot
// version.
func (r *Repository) BumpTimestamp(snapshotVersion int64, persist bool) (*metadata.Metadata[metadata.TimestampType], error) {
	timestamp, err := r.LoadTimestamp()
	if err != nil {
		return nil, err
	}
	timestamp.Signed.Meta[metadata.RoleSnapshot.MetaName()] = *metadata.MetaFile(snapshotVersion)
	return BumpRoleVersion(r, metadata.RoleTimestamp, timestamp, r.Expiration(metadata.RoleTimestamp), metadata.RoleTimestamp, persist)
}

// SnapshotUpdateMeta records a role's new version in the snapshot manifest
// without bumping the snapshot's own version, so a batch of role updates can
// amortize a single snapshot bump. The snapshot is loaded when nil.
func (r *Repository) SnapshotUpdateMeta(role metadata.RoleName, version int64, snapshot *metadata.Metadata[metadata.SnapshotType]) (*metadata.Metadata[metadata.SnapshotType], error) {
	if snapshot == nil {
		var err error
		snapshot, err = r.LoadSnapshot()
		if err != nil {
			return nil, err
		}
	}
	snapshot.Signed.Meta[role.MetaName()] = *metadata.MetaFile(version)
	return snapshot, nil
}

// AddTargets merges artifacts into each named targets role (ordinarily
// hash-bin leaves), bumps and persists those roles signed with signingRole's
// keys, and records their new versions in the returned snapshot update. The
// batch only becomes visible to clients once the update is passed to
// Publish.
func (r *Repository) AddTargets(targets map[metadata.RoleName][]*metadata.TargetFiles, signingRole metadata.RoleName, update *SnapshotUpdate) (*SnapshotUpdate, error) {
	update, err := r.ensureUpdate(update)
	if err != nil {
		return nil, err
	}
	for role, files := range targets {
		md, err := r.LoadRole(role)
		if err != nil {
			return nil, err
		}
		for _, file := range files {
			md.Signed.Targets[file.Path] = file
		}
		md, err = BumpRoleVersion(r, role, md, r.Expiration(role), signingRole, true)
		if err != nil {
			return nil, err
		}
		update.SetMeta(role, md.Version())
	}
	return update, nil
}

// DelegateeSpec describes one delegated role to create: its name, signing
// keys, threshold and the paths or path-hash prefixes it is responsible
// for. A zero Expires means the role's configured TTL.
type DelegateeSpec struct {
	Name             metadata.RoleName
	Keys             []signature.Signer
	Threshold        int
	Paths            []string
	PathHashPrefixes []string
	Terminating      bool
	Expires          time.Time
}

// DelegateTargetsRoles creates fresh version 1 documents for every
// delegatee, registers them in their delegator's delegations (overwriting an
// existing entry of the same name), signs each delegatee with its supplied
// keys and persists it, then bumps each delegator with its own key group.
// All new versions are recorded in the returned snapshot update, which the
// caller must Publish.
func (r *Repository) DelegateTargetsRoles(payload map[metadata.RoleName][]DelegateeSpec, update *SnapshotUpdate) (*SnapshotUpdate, error) {
	update, err := r.ensureUpdate(update)
	if err != nil {
		return nil, err
	}
	for delegator, specs := range payload {
		md, err := r.LoadRole(delegator)
		if err != nil {
			return nil, err
		}
		if md.Signed.Delegations == nil {
			md.Signed.Delegations = &metadata.Delegations{
				Keys:  map[string]*metadata.Key{},
				Roles: []metadata.DelegatedRole{},
			}
		}
		for _, spec := range specs {
			expires := spec.Expires
			if expires.IsZero() {
				expires = r.Expiration(spec.Name)
			}
			delegatee := metadata.Targets(expires)
			delegatee.SetSpecVersion(r.config.SpecVersion)

			entry := metadata.DelegatedRole{
				Name:             spec.Name.String(),
				KeyIDs:           []string{},
				Threshold:        spec.Threshold,
				Terminating:      spec.Terminating,
				Paths:            spec.Paths,
				PathHashPrefixes: spec.PathHashPrefixes,
			}
			for _, signer := range spec.Keys {
				pub, err := signer.PublicKey()
				if err != nil {
					return nil, err
				}
				key, err := metadata.KeyFromPublicKey(pub)
				if err != nil {
					return nil, err
				}
				if !slices.Contains(entry.KeyIDs, key.ID()) {
					entry.KeyIDs = append(entry.KeyIDs, key.ID())
				}
				md.Signed.Delegations.Keys[key.ID()] = key
			}
			replaced := false
			for i := range md.Signed.Delegations.Roles {
				if md.Signed.Delegations.Roles[i].Name == entry.Name {
					md.Signed.Delegations.Roles[i] = entry
					replaced = true
					break
				}
			}
			if !replaced {
				md.Signed.Delegations.Roles = append(md.Signed.Delegations.Roles, entry)
			}

			if err := signWith(delegatee, spec.Keys); err != nil {
				return nil, err
			}
			if err := persistRole(r, spec.Name, delegatee); err != nil {
				return nil, err
			}
			update.SetMeta(spec.Name, delegatee.Version())
			metadata.GetLogger().Info("Delegated targets role", "delegator", delegator.String(), "delegatee", spec.Name.String())
		}
		md, err = BumpRoleVersion(r, delegator, md, r.Expiration(delegator), delegator, true)
		if err != nil {
			return nil, err
		}
		update.SetMeta(delegator, md.Version())
	}
	return update, nil
}

// signWith clears existing signatures and signs with every supplied key, in
// order.
func signWith[T metadata.Roles](md *metadata.Metadata[T], signers []signature.Signer) error {
	md.ClearSignatures()
	for _, signer := range signers {
		if _, err := md.Sign(signer); err != nil {
			return err
		}
	}
	return nil
}

// persistRole writes the document under its deterministic filename.
func persistRole[T metadata.Roles](r *Repository, role metadata.RoleName, md *metadata.Metadata[T]) error {
	data, err := md.ToBytes(true)
	if err != nil {
		return err
	}
	return r.storage.Put(role.Filename(md.Version()), data)
}

// loadRole reads and decodes the latest version of a role document.
func loadRole[T metadata.Roles](r *Repository, role metadata.RoleName) (*metadata.Metadata[T], error) {
	data, err := r.storage.GetLatest(role)
	if err != nil {
		return nil, err
	}
	return metadata.FromBytes[T](data)
}
