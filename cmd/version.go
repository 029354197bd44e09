////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Handles command-line version functionality

package cmd

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Change this value to set the version for this build
const currentVersion = "0.1.0"

// Version returns the version and the dependency list of the binary.
func Version() string {
	out := fmt.Sprintf("zkLogin client v%s\n\n", currentVersion)
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return out
	}
	out += "Dependencies:\n\n"
	for _, dep := range info.Deps {
		out += fmt.Sprintf("%s %s\n", dep.Path, dep.Version)
	}
	return out
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version and dependency information for the binary",
	Long:  `Print the version and dependency information for the binary`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Print(Version())
	},
}
