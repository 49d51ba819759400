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

// tuf-repo is the repository-side CLI for maintaining the package index's
// TUF metadata: bootstrap, hash-bin delegation, role refreshes and target
// additions.
package main

import (
	stdlog "log"
	"os"

	"github.com/go-logr/stdr"
	"github.com/go-redis/redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pypi/warehouse-sub006/metadata"
	"github.com/pypi/warehouse-sub006/metadata/keyservice"
	"github.com/pypi/warehouse-sub006/metadata/repository"
	"github.com/pypi/warehouse-sub006/metadata/storage"
	"github.com/pypi/warehouse-sub006/metadata/tasks"
)

var (
	metadataDir string
	keysDir     string
	redisAddr   string
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "tuf-repo",
	Short: "tuf-repo - maintain the package index's TUF metadata repository",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			stdr.SetVerbosity(4)
			metadata.SetLogger(stdr.New(stdlog.New(os.Stderr, "tuf-repo", stdlog.LstdFlags)))
			logrus.SetLevel(logrus.DebugLevel)
		}
	},
}

func newRepository() (*repository.Repository, error) {
	store, err := storage.NewFilesystemBackend(metadataDir)
	if err != nil {
		return nil, err
	}
	return repository.New(store, keyservice.NewLocalDir(keysDir))
}

func newRunner() (*tasks.Runner, error) {
	repo, err := newRepository()
	if err != nil {
		return nil, err
	}
	var locker tasks.Locker
	if redisAddr != "" {
		locker = tasks.NewRedisLocker(redis.NewClient(&redis.Options{Addr: redisAddr}))
	} else {
		locker = tasks.NewMutexLocker()
	}
	return tasks.NewRunner(repo, locker, logrus.StandardLogger()), nil
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&metadataDir, "metadata-dir", "m", "metadata.staged", "directory holding the role metadata documents")
	rootCmd.PersistentFlags().StringVarP(&keysDir, "keys-dir", "k", "keys", "directory holding PEM signing keys, one or more per role")
	rootCmd.PersistentFlags().StringVar(&redisAddr, "redis", "", "redis address for the repository lock (in-process lock when empty)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
