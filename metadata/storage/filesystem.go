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
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pypi/warehouse-sub006/metadata"
)

// FilesystemBackend stores every role document as a file in a single
// directory using the repository naming rule ({version}.{role}.json, and
// timestamp.json for timestamp).
type FilesystemBackend struct {
	dir string
}

var _ Backend = &FilesystemBackend{}

// NewFilesystemBackend creates the directory if needed and returns a backend
// rooted at it.
func NewFilesystemBackend(dir string) (*FilesystemBackend, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &FilesystemBackend{dir: dir}, nil
}

func (b *FilesystemBackend) GetVersion(role metadata.RoleName, version int64) ([]byte, error) {
	return b.read(role.Filename(version))
}

func (b *FilesystemBackend) GetLatest(role metadata.RoleName) ([]byte, error) {
	version, found, err := b.latestVersion(role)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound{Name: role.String()}
	}
	return b.read(role.Filename(version))
}

func (b *FilesystemBackend) Put(filename string, data []byte) error {
	return os.WriteFile(filepath.Join(b.dir, filename), data, 0644)
}

func (b *FilesystemBackend) read(filename string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(b.dir, filename))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound{Name: filename}
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// latestVersion scans the directory for the highest version prefix of the
// role's documents. Timestamp has a single unversioned document.
func (b *FilesystemBackend) latestVersion(role metadata.RoleName) (int64, bool, error) {
	if role == metadata.RoleTimestamp {
		_, err := os.Stat(filepath.Join(b.dir, role.Filename(1)))
		if errors.Is(err, fs.ErrNotExist) {
			return 0, false, nil
		}
		if err != nil {
			return 0, false, err
		}
		return 1, true, nil
	}
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return 0, false, err
	}
	suffix := "." + role.String() + ".json"
	var latest int64
	found := false
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, suffix) {
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
	return latest, found, nil
}
