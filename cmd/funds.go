////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package cmd

import (
	"context"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/spf13/viper"
	"gitlab.com/elixxir/zklogin/ledger"
)

// balanceCmd prints the balance of the derived address.
var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Prints the SUI balance of the derived address",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		client, closeFn := initClient(ctx)
		defer closeFn()

		if !viper.GetBool(watchFlag) {
			balance, err := client.Balance(ctx)
			if err != nil {
				jww.FATAL.Panicf("Balance query failed: %v", err)
			}
			printStep("Balance: %s SUI", ledger.FormatSUI(balance))
			return
		}

		err := client.StartBalancePolling(func(balance *big.Int, err error) {
			if err != nil {
				jww.WARN.Printf("Balance query failed: %v", err)
				return
			}
			printStep("%s Balance: %s SUI",
				time.Now().Format(time.RFC3339), ledger.FormatSUI(balance))
		})
		if err != nil {
			jww.FATAL.Panicf("%+v", err)
		}

		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		<-c
		client.StopBalancePolling()
	},
}

// faucetCmd requests test funds for the derived address.
var faucetCmd = &cobra.Command{
	Use:   "faucet",
	Short: "Requests faucet funds for the derived address",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		client, closeFn := initClient(ctx)
		defer closeFn()
		requestFaucet(ctx, client)
	},
}

// transferCmd sends the transfer.
var transferCmd = &cobra.Command{
	Use:   "transfer",
	Short: "Signs and submits a transfer from the derived address",
	Long: "Builds, signs and submits the transfer. The session must hold " +
		"the ephemeral key, identity token and a proof, so run login with " +
		"the same --session first.",
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		client, closeFn := initClient(ctx)
		defer closeFn()
		transfer(ctx, client)
	},
}

func init() {
	balanceCmd.Flags().BoolP(watchFlag, "w", false,
		"Keep polling the balance until interrupted")
	bindFlagHelper(watchFlag, balanceCmd)

	balanceCmd.Flags().Duration(pollIntervalFlag, ledger.DefaultPollInterval,
		"Interval between balance queries with --watch")
	bindFlagHelper(pollIntervalFlag, balanceCmd)

	rootCmd.AddCommand(balanceCmd)
	rootCmd.AddCommand(faucetCmd)
	rootCmd.AddCommand(transferCmd)
}
