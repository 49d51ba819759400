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

package keyservice

import (
	"crypto"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/sigstore/sigstore/pkg/cryptoutils"
	"github.com/sigstore/sigstore/pkg/signature"

	"github.com/pypi/warehouse-sub006/metadata"
)

// LocalDir loads signing keys from PEM files in a directory. A role's keys
// are the files matching "<role>.pem" and "<role>.<n>.pem", ordered by
// filename.
type LocalDir struct {
	dir string
}

var _ KeyService = &LocalDir{}

func NewLocalDir(dir string) *LocalDir {
	return &LocalDir{dir: dir}
}

func (l *LocalDir) Get(role metadata.RoleName) ([]signature.Signer, error) {
	// only "<role>.pem" and "<role>.<n>.pem"; a bare prefix glob would leak
	// bin-10's keys into bin-1
	matches, err := filepath.Glob(filepath.Join(l.dir, role.String()+".*.pem"))
	if err != nil {
		return nil, err
	}
	single := filepath.Join(l.dir, role.String()+".pem")
	if _, err := os.Stat(single); err == nil {
		matches = append(matches, single)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no signing keys found for role %s in %s", role, l.dir)
	}
	sort.Strings(matches)
	signers := make([]signature.Signer, 0, len(matches))
	for _, path := range matches {
		pemBytes, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		priv, err := cryptoutils.UnmarshalPEMToPrivateKey(pemBytes, cryptoutils.SkipPassword)
		if err != nil {
			return nil, fmt.Errorf("loading signing key %s: %w", path, err)
		}
		signer, err := signature.LoadSigner(priv, crypto.SHA256)
		if err != nil {
			return nil, err
		}
		signers = append(signers, signer)
	}
	return signers, nil
}
