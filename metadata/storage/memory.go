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

package storage

import (
	"strconv"
	"strings"
	"sync"

	"github.com/pypi/warehouse-sub006/metadata"
)

// MemoryBackend keeps documents in a map. Useful for tests and single
// process setups.
type MemoryBackend struct {
	mu    sync.RWMutex
	files map[string][]byte
}

var _ Backend = &MemoryBackend{}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{files: map[string][]byte{}}
}

func (b *MemoryBackend) GetVersion(role metadata.RoleName, version int64) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	data, ok := b.files[role.Filename(version)]
	if !ok {
		return nil, ErrNotFound{Name: role.Filename(version)}
	}
	return data, nil
}

func (b *MemoryBackend) GetLatest(role metadata.RoleName) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if role == metadata.RoleTimestamp {
		data, ok := b.files[role.Filename(1)]
		if !ok {
			return nil, ErrNotFound{Name: role.String()}
		}
		return data, nil
	}
	suffix := "." + role.String() + ".json"
	var latest int64
	found := false
	for name := range b.files {
		if !strings.HasSuffix(name, suffix) {
			continue
		}
		version, err := strconv.ParseInt(strings.TrimSuffix(name, suffix), 10, 64)
		if err != nil {
			continue
		}
		if version > latest {
			latest = version
			found = true
		}
	}
	if !found {
		return nil, ErrNotFound{Name: role.String()}
	}
	return b.files[role.Filename(latest)], nil
}

func (b *MemoryBackend) Put(filename string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.files[filename] = data
	return nil
}

// Len returns the number of stored documents.
func (b *MemoryBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.files)
}
