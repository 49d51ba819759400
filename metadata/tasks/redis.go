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
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/go-redis/redis/v9"
	"github.com/sirupsen/logrus"
)

// releaseScript deletes the lock key only when it still holds our token, so
// a lock that expired and was re-acquired by another worker is never
// released by us.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// RedisLocker implements the single named distributed lock on redis with
// SET NX plus a token-checked release. The TTL bounds how long a crashed
// worker can wedge the pipeline.
type RedisLocker struct {
	client    redis.UniversalClient
	ttl       time.Duration
	pollDelay time.Duration
}

var _ Locker = &RedisLocker{}

// RedisLockerOption configures a RedisLocker.
type RedisLockerOption func(*RedisLocker)

// WithLockTTL sets how long a held lock survives a crashed worker.
func WithLockTTL(ttl time.Duration) RedisLockerOption {
	return func(l *RedisLocker) {
		l.ttl = ttl
	}
}

// WithAcquirePollDelay sets the wait between acquisition attempts on a
// contended lock.
func WithAcquirePollDelay(delay time.Duration) RedisLockerOption {
	return func(l *RedisLocker) {
		l.pollDelay = delay
	}
}

func NewRedisLocker(client redis.UniversalClient, opts ...RedisLockerOption) *RedisLocker {
	l := &RedisLocker{
		client:    client,
		ttl:       5 * time.Minute,
		pollDelay: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *RedisLocker) Acquire(ctx context.Context, name string) (func(), error) {
	token := make([]byte, 16)
	if _, err := rand.Read(token); err != nil {
		return nil, err
	}
	value := hex.EncodeToString(token)
	key := "lock:" + name
	for {
		ok, err := l.client.SetNX(ctx, key, value, l.ttl).Result()
		if err != nil {
			// lock backend unavailable is fatal to the job
			return nil, err
		}
		if ok {
			return func() { l.release(key, value) }, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.pollDelay):
		}
	}
}

// release runs the token-checked delete. A failed release leaves the lock
// held until its TTL expires, so it is logged rather than swallowed.
func (l *RedisLocker) release(key, value string) {
	if err := releaseScript.Run(context.Background(), l.client, []string{key}, value).Err(); err != nil {
		logrus.WithError(err).WithField("key", key).Warn("failed to release repository lock, held until TTL expiry")
	}
}
