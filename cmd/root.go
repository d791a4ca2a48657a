// Copyright 2025 The respd Authors
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
// limitations under the License.

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/respd/respd/common"
)

var rootCmd = &cobra.Command{
	Use:   common.App,
	Short: "A RESP protocol server core",
	Long: `respd accepts RESP2/RESP3 client connections, reassembles frames
from the byte stream and dispatches typed messages to the upper layer.`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		info := common.GetBuildInfo()
		if info.Version == "" {
			info.Version = common.Version
		}
		fmt.Printf("%s %s (hash=%s buildTime=%s)\n", common.App, info.Version, info.GitHash, info.Time)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
