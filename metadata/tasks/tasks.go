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

// Package tasks hosts the background jobs that mutate repository metadata.
// TUF metadata mutation is not safe under concurrent writers (two snapshot
// bumps race on load-increment-store), so every job body runs under one
// named distributed lock. Jobs are fire and forget: failures propagate to
// the task system, whose retry policy is responsible for running them
// again.
package tasks

import (
	"context"

	"github.com/sigstore/sigstore/pkg/signature"
	"github.com/sirupsen/logrus"

	"github.com/pypi/warehouse-sub006/metadata"
	"github.com/pypi/warehouse-sub006/metadata/repository"
)

// LockName is the single lock serializing all metadata mutations.
const LockName = "tuf-repository"

// Runner executes repository jobs under the mutation lock.
type Runner struct {
	repo   *repository.Repository
	locker Locker
	log    logrus.FieldLogger
}

func NewRunner(repo *repository.Repository, locker Locker, log logrus.FieldLogger) *Runner {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Runner{repo: repo, locker: locker, log: log}
}

// withLock runs fn while holding the repository lock, releasing it on every
// path. Failing to acquire the lock fails the job.
func (r *Runner) withLock(ctx context.Context, job string, fn func() error) error {
	log := r.log.WithField("job", job)
	release, err := r.locker.Acquire(ctx, LockName)
	if err != nil {
		log.WithError(err).Error("failed to acquire repository lock")
		return err
	}
	defer release()
	if err := fn(); err != nil {
		log.WithError(err).Error("job failed")
		return err
	}
	log.Info("job finished")
	return nil
}

// InitRepository bootstraps the top-level role set. It is the only job that
// runs without the lock: it must run exactly once, before concurrent
// producers exist, and refuses to run against an initialized repository.
func (r *Runner) InitRepository(ctx context.Context, keysByRole map[metadata.RoleName][]signature.Signer) error {
	_, err := r.repo.Initialize(keysByRole, true)
	if err != nil {
		r.log.WithField("job", "init_repository").WithError(err).Error("job failed")
		return err
	}
	r.log.WithField("job", "init_repository").Info("job finished")
	return nil
}

// BumpSnapshot refreshes the snapshot role and re-points the timestamp at
// the new version.
func (r *Runner) BumpSnapshot(ctx context.Context) error {
	return r.withLock(ctx, "bump_snapshot", func() error {
		snapshot, err := r.repo.BumpSnapshot(nil, true)
		if err != nil {
			return err
		}
		_, err = r.repo.BumpTimestamp(snapshot.Version(), true)
		return err
	})
}

// BumpBinNRoles refreshes every hash-bin leaf role with a fresh expiry,
// then publishes one snapshot/timestamp bump covering them all.
func (r *Runner) BumpBinNRoles(ctx context.Context) error {
	return r.withLock(ctx, "bump_bin_n_roles", func() error {
		update, err := r.repo.BeginSnapshotUpdate()
		if err != nil {
			return err
		}
		for i := 0; i < r.repo.Config().NumberOfBins; i++ {
			role := repository.BinRole(i)
			md, err := r.repo.LoadRole(role)
			if err != nil {
				return err
			}
			md, err = repository.BumpRoleVersion(r.repo, role, md, r.repo.Expiration(role), repository.Bins(), true)
			if err != nil {
				return err
			}
			update.SetMeta(role, md.Version())
		}
		return r.repo.Publish(update)
	})
}

// InitTargetsDelegation builds the two-tier hash-bin delegation: targets
// delegates every path to bins, and bins delegates the hashed path space to
// the bin-n leaves.
func (r *Runner) InitTargetsDelegation(ctx context.Context, binsKeys, binNKeys []signature.Signer) error {
	return r.withLock(ctx, "init_targets_delegation", func() error {
		cfg := r.repo.Config()
		update, err := r.repo.DelegateTargetsRoles(map[metadata.RoleName][]repository.DelegateeSpec{
			metadata.RoleTargets: {
				{
					Name:      repository.Bins(),
					Keys:      binsKeys,
					Threshold: cfg.Threshold(repository.Bins()),
					Paths:     []string{"*/*"},
				},
			},
		}, nil)
		if err != nil {
			return err
		}
		leaves := make([]repository.DelegateeSpec, 0, cfg.NumberOfBins)
		for i := 0; i < cfg.NumberOfBins; i++ {
			leaves = append(leaves, repository.DelegateeSpec{
				Name:             repository.BinRole(i),
				Keys:             binNKeys,
				Threshold:        cfg.Threshold(repository.BinRole(i)),
				PathHashPrefixes: r.repo.BinHashPrefixes(i),
			})
		}
		update, err = r.repo.DelegateTargetsRoles(map[metadata.RoleName][]repository.DelegateeSpec{
			repository.Bins(): leaves,
		}, update)
		if err != nil {
			return err
		}
		return r.repo.Publish(update)
	})
}

// AddHashedTargets distributes pre-hashed artifacts into their hash-bin
// leaf roles and publishes one snapshot/timestamp bump for the whole batch.
func (r *Runner) AddHashedTargets(ctx context.Context, files []*metadata.TargetFiles) error {
	return r.withLock(ctx, "add_hashed_targets", func() error {
		byRole := map[metadata.RoleName][]*metadata.TargetFiles{}
		for _, file := range files {
			role := r.repo.BinForTargetPath(file.Path)
			byRole[role] = append(byRole[role], file)
		}
		update, err := r.repo.AddTargets(byRole, repository.Bins(), nil)
		if err != nil {
			return err
		}
		return r.repo.Publish(update)
	})
}
