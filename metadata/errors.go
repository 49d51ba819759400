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

package metadata

import "fmt"

// Error types follow the naming convention of starting with 'Err'.

// ErrAlreadyInitialized - attempting to initialize a repository whose
// top-level roles already exist in storage. Not retryable.
type ErrAlreadyInitialized struct {
	Msg string
}

func (e ErrAlreadyInitialized) Error() string {
	return fmt.Sprintf("already initialized error: %s", e.Msg)
}

// ErrInsufficientKeys - fewer signing keys were supplied for a role than its
// configured signature threshold requires. A configuration bug, not
// retryable.
type ErrInsufficientKeys struct {
	Role      string
	Threshold int
	Got       int
}

func (e ErrInsufficientKeys) Error() string {
	return fmt.Sprintf("insufficient keys error: role %s requires a threshold of %d signing keys, got %d", e.Role, e.Threshold, e.Got)
}

// ErrUnsignedMetadata - a problem producing a signature over metadata
type ErrUnsignedMetadata struct {
	Msg string
}

func (e ErrUnsignedMetadata) Error() string {
	return fmt.Sprintf("unsigned metadata error: %s", e.Msg)
}

// ValueError
type ErrValue struct {
	Msg string
}

func (e ErrValue) Error() string {
	return fmt.Sprintf("value error: %s", e.Msg)
}

// TypeError
type ErrType struct {
	Msg string
}

func (e ErrType) Error() string {
	return fmt.Sprintf("type error: %s", e.Msg)
}
