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

// Package storage defines the backend capability the metadata repository
// persists role documents through, plus filesystem and in-memory
// implementations.
package storage

import (
	"errors"
	"fmt"

	"github.com/pypi/warehouse-sub006/metadata"
)

// Backend persists and retrieves named metadata documents. A missing
// document must be reported with ErrNotFound so that callers can tell a
// fresh repository apart from a storage outage.
type Backend interface {
	// GetLatest returns the raw bytes of the most recent version of the
	// role's document.
	GetLatest(role metadata.RoleName) ([]byte, error)
	// GetVersion returns the raw bytes of a specific version of the role's
	// document.
	GetVersion(role metadata.RoleName, version int64) ([]byte, error)
	// Put stores the document bytes under the given filename.
	Put(filename string, data []byte) error
}

// ErrNotFound - the requested role document does not exist in the backend.
type ErrNotFound struct {
	Name string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("storage not found error: %s", e.Name)
}

// IsNotFound reports whether err is a storage not-found condition.
func IsNotFound(err error) bool {
	var notFound ErrNotFound
	return errors.As(err, &notFound)
}
