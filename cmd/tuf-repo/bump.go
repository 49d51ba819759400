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

package main

import (
	"context"

	"github.com/spf13/cobra"
)

var bumpSnapshotCmd = &cobra.Command{
	Use:   "bump-snapshot",
	Short: "Refresh the snapshot role and re-point the timestamp at it",
	RunE: func(cmd *cobra.Command, args []string) error {
		runner, err := newRunner()
		if err != nil {
			return err
		}
		return runner.BumpSnapshot(context.Background())
	},
}

var bumpBinsCmd = &cobra.Command{
	Use:   "bump-bins",
	Short: "Refresh every hash-bin leaf role under one snapshot bump",
	RunE: func(cmd *cobra.Command, args []string) error {
		runner, err := newRunner()
		if err != nil {
			return err
		}
		return runner.BumpBinNRoles(context.Background())
	},
}

func init() {
	rootCmd.AddCommand(bumpSnapshotCmd)
	rootCmd.AddCommand(bumpBinsCmd)
}
