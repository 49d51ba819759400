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

	"github.com/pypi/warehouse-sub006/metadata"
	"github.com/pypi/warehouse-sub006/metadata/keyservice"
	"github.com/pypi/warehouse-sub006/metadata/repository"
)

var delegateBinsCmd = &cobra.Command{
	Use:   "delegate-bins",
	Short: "Build the bins/bin-n hash-bin delegation on an initialized repository",
	RunE: func(cmd *cobra.Command, args []string) error {
		runner, err := newRunner()
		if err != nil {
			return err
		}
		keys := keyservice.NewLocalDir(keysDir)
		binsKeys, err := keys.Get(repository.Bins())
		if err != nil {
			return err
		}
		binNKeys, err := keys.Get(metadata.Delegated(repository.BinNRole))
		if err != nil {
			return err
		}
		return runner.InitTargetsDelegation(context.Background(), binsKeys, binNKeys)
	},
}

func init() {
	rootCmd.AddCommand(delegateBinsCmd)
}
