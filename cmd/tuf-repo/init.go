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

	"github.com/sigstore/sigstore/pkg/signature"
	"github.com/spf13/cobra"

	"github.com/pypi/warehouse-sub006/metadata"
	"github.com/pypi/warehouse-sub006/metadata/keyservice"
	"github.com/pypi/warehouse-sub006/metadata/repository"
)

var withDelegation bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Bootstrap the top-level role metadata (runs once)",
	RunE: func(cmd *cobra.Command, args []string) error {
		runner, err := newRunner()
		if err != nil {
			return err
		}
		keys := keyservice.NewLocalDir(keysDir)
		keysByRole := map[metadata.RoleName][]signature.Signer{}
		for _, role := range metadata.TopLevelRoles() {
			signers, err := keys.Get(role)
			if err != nil {
				return err
			}
			keysByRole[role] = signers
		}
		if err := runner.InitRepository(context.Background(), keysByRole); err != nil {
			return err
		}
		if !withDelegation {
			return nil
		}
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
	initCmd.Flags().BoolVar(&withDelegation, "delegate", true, "also build the bins/bin-n hash-bin delegation")
	rootCmd.AddCommand(initCmd)
}
