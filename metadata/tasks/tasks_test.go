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

package tasks

import (
	"context"
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/sigstore/sigstore/pkg/signature"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pypi/warehouse-sub006/metadata"
	"github.com/pypi/warehouse-sub006/metadata/keyservice"
	"github.com/pypi/warehouse-sub006/metadata/repository"
	"github.com/pypi/warehouse-sub006/metadata/storage"
)

type runnerEnv struct {
	repo     *repository.Repository
	runner   *Runner
	keys     *keyservice.Static
	initKeys map[metadata.RoleName][]signature.Signer
}

func newSigner(t *testing.T) signature.Signer {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := signature.LoadSigner(priv, crypto.Hash(0))
	require.NoError(t, err)
	return signer
}

func quietLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// newRunnerEnv builds an initialized, fully delegated repository with four
// hash bins over in-memory storage, driven by a Runner with an in-process
// lock.
func newRunnerEnv(t *testing.T) *runnerEnv {
	t.Helper()
	env := &runnerEnv{
		keys:     keyservice.NewStatic(),
		initKeys: map[metadata.RoleName][]signature.Signer{},
	}
	for _, role := range metadata.TopLevelRoles() {
		signer := newSigner(t)
		env.keys.Add(role, signer)
		env.initKeys[role] = []signature.Signer{signer}
	}
	binsSigner := newSigner(t)
	env.keys.Add(repository.Bins(), binsSigner)

	config := repository.DefaultConfig()
	config.NumberOfBins = 4
	repo, err := repository.New(storage.NewMemoryBackend(), env.keys, repository.WithConfig(config))
	require.NoError(t, err)
	env.repo = repo
	env.runner = NewRunner(repo, NewMutexLocker(), quietLogger())

	ctx := context.Background()
	require.NoError(t, env.runner.InitRepository(ctx, env.initKeys))
	binsKeys, err := env.keys.Get(repository.Bins())
	require.NoError(t, err)
	require.NoError(t, env.runner.InitTargetsDelegation(ctx, binsKeys, binsKeys))
	return env
}

func TestInitRepositoryRefusesReinit(t *testing.T) {
	env := newRunnerEnv(t)
	err := env.runner.InitRepository(context.Background(), env.initKeys)
	assert.ErrorAs(t, err, &metadata.ErrAlreadyInitialized{})
}

func TestInitTargetsDelegation(t *testing.T) {
	env := newRunnerEnv(t)

	targets, err := env.repo.LoadRole(metadata.RoleTargets)
	require.NoError(t, err)
	require.NotNil(t, targets.Signed.Delegations)
	require.Len(t, targets.Signed.Delegations.Roles, 1)
	assert.Equal(t, "bins", targets.Signed.Delegations.Roles[0].Name)

	bins, err := env.repo.LoadRole(repository.Bins())
	require.NoError(t, err)
	assert.Len(t, bins.Signed.Delegations.Roles, 4)

	// one publish covers the whole delegation batch
	snapshot, err := env.repo.LoadSnapshot()
	require.NoError(t, err)
	assert.Equal(t, int64(2), snapshot.Signed.Version)
}

func TestBumpSnapshotJob(t *testing.T) {
	env := newRunnerEnv(t)

	require.NoError(t, env.runner.BumpSnapshot(context.Background()))

	snapshot, err := env.repo.LoadSnapshot()
	require.NoError(t, err)
	assert.Equal(t, int64(3), snapshot.Signed.Version)
	timestamp, err := env.repo.LoadTimestamp()
	require.NoError(t, err)
	assert.Equal(t, snapshot.Signed.Version, timestamp.Signed.Meta["snapshot.json"].Version)
}

func TestBumpBinNRolesJob(t *testing.T) {
	env := newRunnerEnv(t)

	require.NoError(t, env.runner.BumpBinNRoles(context.Background()))

	snapshot, err := env.repo.LoadSnapshot()
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		role := repository.BinRole(i)
		leaf, err := env.repo.LoadRole(role)
		require.NoError(t, err)
		assert.Equal(t, int64(2), leaf.Signed.Version)
		assert.Equal(t, int64(2), snapshot.Signed.Meta[role.MetaName()].Version)
	}
	// all four leaves amortize one snapshot bump
	assert.Equal(t, int64(3), snapshot.Signed.Version)
}

func TestAddHashedTargetsJob(t *testing.T) {
	env := newRunnerEnv(t)

	files := make([]*metadata.TargetFiles, 0, 8)
	for i := 0; i < 8; i++ {
		path := fmt.Sprintf("py/project-%d.tar.gz", i)
		file, err := metadata.TargetFileFromBytes(path, []byte(path))
		require.NoError(t, err)
		files = append(files, file)
	}
	require.NoError(t, env.runner.AddHashedTargets(context.Background(), files))

	for _, file := range files {
		leaf, err := env.repo.LoadRole(env.repo.BinForTargetPath(file.Path))
		require.NoError(t, err)
		assert.Contains(t, leaf.Signed.Targets, file.Path)
	}
	snapshot, err := env.repo.LoadSnapshot()
	require.NoError(t, err)
	assert.Equal(t, int64(3), snapshot.Signed.Version)
}

func TestUnlockedWritersLoseUpdates(t *testing.T) {
	env := newRunnerEnv(t)

	// two artifacts landing in the same bin leaf
	first, err := metadata.TargetFileFromBytes("race/a", []byte("one"))
	require.NoError(t, err)
	bin := env.repo.BinForTargetPath(first.Path)
	var second *metadata.TargetFiles
	for i := 0; second == nil; i++ {
		path := fmt.Sprintf("race/%d", i)
		if env.repo.BinForTargetPath(path) == bin {
			second, err = metadata.TargetFileFromBytes(path, []byte("two"))
			require.NoError(t, err)
		}
	}

	// interleaved load-then-write without the lock: both producers read the
	// same leaf version, so the second persist silently discards the first
	// producer's artifact. This is the lost update the Locker prevents.
	md1, err := env.repo.LoadRole(bin)
	require.NoError(t, err)
	md2, err := env.repo.LoadRole(bin)
	require.NoError(t, err)

	md1.Signed.Targets[first.Path] = first
	_, err = repository.BumpRoleVersion(env.repo, bin, md1, env.repo.Expiration(bin), repository.Bins(), true)
	require.NoError(t, err)

	md2.Signed.Targets[second.Path] = second
	_, err = repository.BumpRoleVersion(env.repo, bin, md2, env.repo.Expiration(bin), repository.Bins(), true)
	require.NoError(t, err)

	final, err := env.repo.LoadRole(bin)
	require.NoError(t, err)
	assert.Contains(t, final.Signed.Targets, second.Path)
	assert.NotContains(t, final.Signed.Targets, first.Path)
}

func TestAddHashedTargetsSerialized(t *testing.T) {
	env := newRunnerEnv(t)

	// concurrent producers must serialize on the lock; every batch has to
	// survive into the final metadata with no lost updates
	const producers = 8
	var wg sync.WaitGroup
	errs := make([]error, producers)
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			path := fmt.Sprintf("py/concurrent-%d.tar.gz", i)
			file, err := metadata.TargetFileFromBytes(path, []byte(path))
			if err != nil {
				errs[i] = err
				return
			}
			errs[i] = env.runner.AddHashedTargets(context.Background(), []*metadata.TargetFiles{file})
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		require.NoError(t, err, "producer %d", i)
	}

	total := 0
	for i := 0; i < 4; i++ {
		leaf, err := env.repo.LoadRole(repository.BinRole(i))
		require.NoError(t, err)
		total += len(leaf.Signed.Targets)
	}
	assert.Equal(t, producers, total)

	// one snapshot bump per batch, none lost
	snapshot, err := env.repo.LoadSnapshot()
	require.NoError(t, err)
	assert.Equal(t, int64(2+producers), snapshot.Signed.Version)
}

type failLocker struct{}

func (failLocker) Acquire(context.Context, string) (func(), error) {
	return nil, errors.New("lock backend down")
}

func TestLockFailureFailsJob(t *testing.T) {
	env := newRunnerEnv(t)
	runner := NewRunner(env.repo, failLocker{}, quietLogger())

	err := runner.BumpSnapshot(context.Background())
	assert.ErrorContains(t, err, "lock backend down")

	// the job must not have touched the repository
	snapshot, err := env.repo.LoadSnapshot()
	require.NoError(t, err)
	assert.Equal(t, int64(2), snapshot.Signed.Version)
}

func TestMutexLocker(t *testing.T) {
	locker := NewMutexLocker()
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "a")
	require.NoError(t, err)

	// an unrelated name is an independent lock
	releaseB, err := locker.Acquire(ctx, "b")
	require.NoError(t, err)
	releaseB()

	acquired := make(chan struct{})
	go func() {
		release, err := locker.Acquire(ctx, "a")
		assert.NoError(t, err)
		release()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("lock acquired while still held")
	default:
	}
	release()
	<-acquired
}

func TestMutexLockerHonorsContext(t *testing.T) {
	locker := NewMutexLocker()
	release, err := locker.Acquire(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = locker.Acquire(ctx, "a")
	assert.ErrorIs(t, err, context.Canceled)

	// the abandoned acquisition must not wedge the lock
	release()
	release, err = locker.Acquire(context.Background(), "a")
	require.NoError(t, err)
	release()
}
