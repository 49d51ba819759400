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
	"sync"
)

// Locker serializes metadata mutations across worker processes. Acquire
// blocks until the named lock is held or ctx is done, and returns the
// release function. Lock backend failures must be propagated, never
// swallowed: running a mutation unlocked risks lost updates.
type Locker interface {
	Acquire(ctx context.Context, name string) (release func(), err error)
}

// MutexLocker serializes within a single process. Suitable for tests and
// single-worker deployments.
type MutexLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

var _ Locker = &MutexLocker{}

func NewMutexLocker() *MutexLocker {
	return &MutexLocker{locks: map[string]*sync.Mutex{}}
}

func (l *MutexLocker) Acquire(ctx context.Context, name string) (func(), error) {
	l.mu.Lock()
	lock, ok := l.locks[name]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[name] = lock
	}
	l.mu.Unlock()
	acquired := make(chan struct{})
	go func() {
		lock.Lock()
		close(acquired)
	}()
	select {
	case <-acquired:
		return lock.Unlock, nil
	case <-ctx.Done():
		// the pending acquisition must not wedge the lock once it lands
		go func() {
			<-acquired
			lock.Unlock()
		}()
		return nil, ctx.Err()
	}
}
