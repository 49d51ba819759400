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
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pypi/warehouse-sub006/metadata"
	"github.com/pypi/warehouse-sub006/metadata/updateservice"
)

var updateServiceURL string

// targetsPayload is the JSON shape accepted by add-targets: one entry per
// artifact with its path, length and hex digests.
type targetsPayload struct {
	Targets []struct {
		Path   string            `json:"path"`
		Length int64             `json:"length"`
		Hashes map[string]string `json:"hashes"`
	} `json:"targets"`
}

var addTargetsCmd = &cobra.Command{
	Use:   "add-targets <payload.json>",
	Short: "Add artifacts to their hash-bin roles and publish the batch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		var payload targetsPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return err
		}

		if updateServiceURL != "" {
			// hand the batch to the remote update service and wait for it
			client := updateservice.NewClient(updateServiceURL)
			artifacts := make([]updateservice.Artifact, 0, len(payload.Targets))
			for _, t := range payload.Targets {
				artifacts = append(artifacts, updateservice.Artifact{
					Path:       t.Path,
					Length:     t.Length,
					BLAKE2b256: t.Hashes[metadata.HashAlgorithmBLAKE2b256],
				})
			}
			taskID, err := client.PostArtifacts(artifacts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "submitted task %s\n", taskID)
			return client.WaitForSuccess(taskID)
		}

		runner, err := newRunner()
		if err != nil {
			return err
		}
		files := make([]*metadata.TargetFiles, 0, len(payload.Targets))
		for _, t := range payload.Targets {
			file := &metadata.TargetFiles{
				Path:   t.Path,
				Length: t.Length,
				Hashes: metadata.Hashes{},
			}
			for algo, digest := range t.Hashes {
				var raw metadata.HexBytes
				if err := raw.UnmarshalJSON([]byte(`"` + digest + `"`)); err != nil {
					return fmt.Errorf("invalid %s digest for %s: %w", algo, t.Path, err)
				}
				file.Hashes[algo] = raw
			}
			files = append(files, file)
		}
		return runner.AddHashedTargets(context.Background(), files)
	},
}

func init() {
	addTargetsCmd.Flags().StringVar(&updateServiceURL, "update-service", "", "base URL of the remote update service (signs locally when empty)")
	rootCmd.AddCommand(addTargetsCmd)
}
