////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package cmd initializes the CLI and config parsers as well as the logger.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/profile"
	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/spf13/viper"
)

// envPrefix prefixes the environment variables overriding flags, such as
// ZKLOGIN_CLIENT_ID.
const envPrefix = "ZKLOGIN"

// profiler is the running CPU profile, if one was requested.
var profiler interface{ Stop() }

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main(). It only needs to
// happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "zklogin",
	Short: "Logs in to the Sui ledger with an OAuth identity and sends a transfer",
	Args:  cobra.NoArgs,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if dir := viper.GetString(profileCpuFlag); dir != "" {
			profiler = profile.Start(profile.CPUProfile,
				profile.ProfilePath(dir), profile.NoShutdownHook)
		}
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if profiler != nil {
			profiler.Stop()
		}
	},
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

// init is the initialization function for Cobra which defines commands
// and flags.
func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().UintP(logLevelFlag, "v", 0,
		"Verbose mode for debugging")
	bindPersistentFlagHelper(logLevelFlag, rootCmd)

	rootCmd.PersistentFlags().StringP(logFlag, "l", "-",
		"Path to the log output path (- is stdout)")
	bindPersistentFlagHelper(logFlag, rootCmd)

	rootCmd.PersistentFlags().StringP(sessionFlag, "s", "",
		"Directory of the session-scoped storage holding the ephemeral "+
			"key, randomness, token and proof. Kept in memory when empty")
	bindPersistentFlagHelper(sessionFlag, rootCmd)

	defaultStorage := ".zklogin"
	if home, err := os.UserHomeDir(); err == nil {
		defaultStorage = filepath.Join(home, ".zklogin")
	}
	rootCmd.PersistentFlags().String(storageFlag, defaultStorage,
		"Directory of the durable storage holding the expiry epoch and salt")
	bindPersistentFlagHelper(storageFlag, rootCmd)

	rootCmd.PersistentFlags().StringP(passwordFlag, "p", "",
		"Password encrypting both storages")
	bindPersistentFlagHelper(passwordFlag, rootCmd)

	rootCmd.PersistentFlags().String(configFlag, "",
		"YAML config file providing values for any flag")
	bindPersistentFlagHelper(configFlag, rootCmd)

	rootCmd.PersistentFlags().String(paramsFileFlag, "",
		"JSON file of client params; flags override it")
	bindPersistentFlagHelper(paramsFileFlag, rootCmd)

	rootCmd.PersistentFlags().String(profileCpuFlag, "",
		"Enables CPU profiling and writes the profile to this directory")
	bindPersistentFlagHelper(profileCpuFlag, rootCmd)

	rootCmd.PersistentFlags().String(fullnodeFlag, "",
		"Fullnode JSON-RPC URL")
	bindPersistentFlagHelper(fullnodeFlag, rootCmd)

	rootCmd.PersistentFlags().String(faucetFlag, "", "Faucet URL")
	bindPersistentFlagHelper(faucetFlag, rootCmd)

	rootCmd.PersistentFlags().String(proverFlag, "", "Prover URL")
	bindPersistentFlagHelper(proverFlag, rootCmd)

	rootCmd.PersistentFlags().String(authorizeURLFlag, "",
		"OAuth authorize endpoint")
	bindPersistentFlagHelper(authorizeURLFlag, rootCmd)

	rootCmd.PersistentFlags().String(tokenURLFlag, "",
		"OAuth token endpoint")
	bindPersistentFlagHelper(tokenURLFlag, rootCmd)

	rootCmd.PersistentFlags().String(clientIDFlag, "",
		"OAuth client ID registered with the identity provider")
	bindPersistentFlagHelper(clientIDFlag, rootCmd)

	rootCmd.PersistentFlags().String(redirectURIFlag, "",
		"OAuth redirect URI; login listens on it")
	bindPersistentFlagHelper(redirectURIFlag, rootCmd)

	rootCmd.PersistentFlags().Duration(timeoutFlag, 30*time.Second,
		"Timeout of each HTTP request")
	bindPersistentFlagHelper(timeoutFlag, rootCmd)

	rootCmd.PersistentFlags().String(recipientFlag, "",
		"Recipient address of the transfer")
	bindPersistentFlagHelper(recipientFlag, rootCmd)

	rootCmd.PersistentFlags().Uint64(amountFlag, 0,
		"Amount of the transfer in MIST")
	bindPersistentFlagHelper(amountFlag, rootCmd)

	rootCmd.PersistentFlags().Uint64(gasBudgetFlag, 0,
		"Gas budget of the transfer in MIST")
	bindPersistentFlagHelper(gasBudgetFlag, rootCmd)
}

// initConfig reads in the .env file, config file and ENV variables if set.
func initConfig() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		jww.WARN.Printf("Failed to load .env file: %+v", err)
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if cfgFile := viper.GetString(configFlag); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			jww.FATAL.Panicf("Failed to read config file %s: %+v", cfgFile,
				err)
		}
		jww.DEBUG.Printf("Using config file %s", viper.ConfigFileUsed())
	}
}
