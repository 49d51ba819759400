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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pypi/warehouse-sub006/metadata"
)

func testBackend(t *testing.T, backend Backend) {
	t.Helper()

	// nothing stored yet
	_, err := backend.GetLatest(metadata.RoleSnapshot)
	assert.True(t, IsNotFound(err))
	_, err = backend.GetVersion(metadata.RoleSnapshot, 1)
	assert.True(t, IsNotFound(err))
	_, err = backend.GetLatest(metadata.RoleTimestamp)
	assert.True(t, IsNotFound(err))

	require.NoError(t, backend.Put("1.snapshot.json", []byte("s1")))
	require.NoError(t, backend.Put("2.snapshot.json", []byte("s2")))
	require.NoError(t, backend.Put("10.snapshot.json", []byte("s10")))
	require.NoError(t, backend.Put("timestamp.json", []byte("t")))

	// latest picks the highest version numerically, not lexically
	data, err := backend.GetLatest(metadata.RoleSnapshot)
	require.NoError(t, err)
	assert.Equal(t, []byte("s10"), data)

	data, err = backend.GetVersion(metadata.RoleSnapshot, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte("s2"), data)

	_, err = backend.GetVersion(metadata.RoleSnapshot, 3)
	assert.True(t, IsNotFound(err))

	data, err = backend.GetLatest(metadata.RoleTimestamp)
	require.NoError(t, err)
	assert.Equal(t, []byte("t"), data)

	// delegated roles with a shared prefix must not shadow each other
	require.NoError(t, backend.Put("1.bin-7.json", []byte("b7")))
	require.NoError(t, backend.Put("5.bin-77.json", []byte("b77")))
	data, err = backend.GetLatest(metadata.Delegated("bin-7"))
	require.NoError(t, err)
	assert.Equal(t, []byte("b7"), data)
}

func TestMemoryBackend(t *testing.T) {
	backend := NewMemoryBackend()
	testBackend(t, backend)
	assert.Equal(t, 6, backend.Len())
}

func TestFilesystemBackend(t *testing.T) {
	backend, err := NewFilesystemBackend(t.TempDir())
	require.NoError(t, err)
	testBackend(t, backend)
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(ErrNotFound{Name: "snapshot"}))
	assert.False(t, IsNotFound(nil))
	assert.False(t, IsNotFound(assert.AnError))
}
