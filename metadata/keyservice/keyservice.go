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

// Package keyservice defines the capability that resolves a role name to
// its ordered set of signing keys. Key generation and HSM integration live
// behind this interface and are not part of this repository.
package keyservice

import (
	"fmt"

	"github.com/sigstore/sigstore/pkg/signature"

	"github.com/pypi/warehouse-sub006/metadata"
)

// KeyService returns the ordered signing keys authorized for a role.
type KeyService interface {
	Get(role metadata.RoleName) ([]signature.Signer, error)
}

// Static is a fixed in-memory key service.
type Static struct {
	signers map[metadata.RoleName][]signature.Signer
}

var _ KeyService = &Static{}

func NewStatic() *Static {
	return &Static{signers: map[metadata.RoleName][]signature.Signer{}}
}

// Add appends signers to the role's key group, preserving order.
func (s *Static) Add(role metadata.RoleName, signers ...signature.Signer) {
	s.signers[role] = append(s.signers[role], signers...)
}

func (s *Static) Get(role metadata.RoleName) ([]signature.Signer, error) {
	signers, ok := s.signers[role]
	if !ok {
		return nil, fmt.Errorf("no signing keys configured for role %s", role)
	}
	out := make([]signature.Signer, len(signers))
	copy(out, signers)
	return out, nil
}
