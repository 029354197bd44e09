////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package cmd

import (
	"context"
	"fmt"
	"io/ioutil"
	"log"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/spf13/viper"
	"gitlab.com/elixxir/zklogin/storage"
	"gitlab.com/elixxir/zklogin/zklogin"
)

// bindFlagHelper binds the key to a pflag.Flag used by Cobra and prints an
// error if one occurs.
func bindFlagHelper(key string, command *cobra.Command) {
	err := viper.BindPFlag(key, command.Flags().Lookup(key))
	if err != nil {
		jww.ERROR.Printf("viper.BindPFlag failed for %q: %+v", key, err)
	}
}

// bindPersistentFlagHelper binds the key to a persistent pflag.Flag used by
// Cobra and prints an error if one occurs.
func bindPersistentFlagHelper(key string, command *cobra.Command) {
	err := viper.BindPFlag(key, command.PersistentFlags().Lookup(key))
	if err != nil {
		jww.ERROR.Printf("viper.BindPFlag failed for %q: %+v", key, err)
	}
}

func initLog(threshold uint, logPath string) {
	if logPath != "-" && logPath != "" {
		// Disable stdout output
		jww.SetStdoutOutput(ioutil.Discard)
		// Use log file
		logOutput, err := os.OpenFile(logPath,
			os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			panic(err.Error())
		}
		jww.SetLogOutput(logOutput)
	}

	if threshold > 1 {
		jww.INFO.Printf("log level set to: TRACE")
		jww.SetStdoutThreshold(jww.LevelTrace)
		jww.SetLogThreshold(jww.LevelTrace)
		jww.SetFlags(log.LstdFlags | log.Lmicroseconds)
	} else if threshold == 1 {
		jww.INFO.Printf("log level set to: DEBUG")
		jww.SetStdoutThreshold(jww.LevelDebug)
		jww.SetLogThreshold(jww.LevelDebug)
		jww.SetFlags(log.LstdFlags | log.Lmicroseconds)
	} else {
		jww.INFO.Printf("log level set to: INFO")
		jww.SetStdoutThreshold(jww.LevelInfo)
		jww.SetLogThreshold(jww.LevelInfo)
	}
}

// loadParams builds the Params from the optional params file and the
// flags, which take precedence.
func loadParams() zklogin.Params {
	var paramsJSON []byte
	if path := viper.GetString(paramsFileFlag); path != "" {
		var err error
		paramsJSON, err = os.ReadFile(path)
		if err != nil {
			jww.FATAL.Panicf("Failed to read params file %s: %+v", path, err)
		}
	}
	p, err := zklogin.ParseParams(string(paramsJSON))
	if err != nil {
		jww.FATAL.Panicf("Failed to parse params: %+v", err)
	}

	setString := func(flag string, dst *string) {
		if viper.IsSet(flag) {
			*dst = viper.GetString(flag)
		}
	}
	setString(fullnodeFlag, &p.FullnodeURL)
	setString(faucetFlag, &p.FaucetURL)
	setString(proverFlag, &p.ProverURL)
	setString(authorizeURLFlag, &p.AuthorizeURL)
	setString(tokenURLFlag, &p.TokenURL)
	setString(clientIDFlag, &p.ClientID)
	setString(redirectURIFlag, &p.RedirectURI)
	setString(recipientFlag, &p.Recipient)
	if viper.IsSet(timeoutFlag) {
		p.HTTPTimeout = viper.GetDuration(timeoutFlag)
	}
	if viper.IsSet(pollIntervalFlag) {
		p.BalancePollInterval = viper.GetDuration(pollIntervalFlag)
	}
	if viper.IsSet(amountFlag) {
		p.TransferAmount = viper.GetUint64(amountFlag)
	}
	if viper.IsSet(gasBudgetFlag) {
		p.GasBudget = viper.GetUint64(gasBudgetFlag)
	}
	return p
}

// initClient opens storage and connects to the services. The returned
// function releases everything.
func initClient(ctx context.Context) (*zklogin.Client, func()) {
	initLog(viper.GetUint(logLevelFlag), viper.GetString(logFlag))

	params := loadParams()
	storeDir := viper.GetString(storageFlag)
	if storeDir == "" {
		jww.FATAL.Panicf("--%s must name a directory", storageFlag)
	}
	store, err := storage.Open(viper.GetString(sessionFlag), storeDir,
		viper.GetString(passwordFlag))
	if err != nil {
		jww.FATAL.Panicf("%+v", err)
	}
	if store.SessionInMemory() {
		jww.INFO.Printf("Session storage is in memory; pass --%s to "+
			"resume this session in a later command", sessionFlag)
	}

	client, node, err := zklogin.Connect(ctx, params, store,
		prometheus.DefaultRegisterer)
	if err != nil {
		jww.FATAL.Panicf("%+v", err)
	}
	return client, func() {
		client.Close()
		node.Close()
	}
}

// printStep prints a completed step on stdout and to the log.
func printStep(format string, a ...interface{}) {
	jww.INFO.Printf(format, a...)
	fmt.Printf(format+"\n", a...)
}
