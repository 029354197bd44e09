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
	"time"

	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/spf13/viper"
	"gitlab.com/elixxir/zklogin/ledger"
	"gitlab.com/elixxir/zklogin/oauth"
	"gitlab.com/elixxir/zklogin/zklogin"
)

// loginCmd runs the whole login pipeline.
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Logs in with the identity provider and fetches a proof",
	Long: "Starts a session, resolves the expiry epoch, prints the " +
		"provider URL to open, waits for the redirect, derives the address " +
		"and fetches the proof. --faucet and --transfer continue with " +
		"funding and the transfer.",
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		client, closeFn := initClient(ctx)
		defer closeFn()

		if client.Params().ClientID == "" {
			jww.FATAL.Panicf("--%s is required to log in", clientIDFlag)
		}

		if err := client.Start(); err != nil {
			jww.FATAL.Panicf("%+v", err)
		}
		expiry, err := client.ResolveEpoch(ctx)
		if err != nil {
			jww.FATAL.Panicf("Failed to resolve expiry epoch: %v", err)
		}
		printStep("Expiry epoch: %d", expiry)

		listener, err := oauth.ListenForCallback(client.Params().RedirectURI)
		if err != nil {
			jww.FATAL.Panicf("%+v", err)
		}
		defer listener.Close()

		authURL, err := client.AuthorizationURL()
		if err != nil {
			jww.FATAL.Panicf("%+v", err)
		}
		printStep("Open this URL to log in:\n%s", authURL)

		waitCtx, cancel := context.WithTimeout(ctx,
			viper.GetDuration(loginWaitFlag))
		redirect, err := listener.Wait(waitCtx)
		cancel()
		if err != nil {
			jww.FATAL.Panicf("No redirect received: %+v", err)
		}

		claims, err := client.CompleteLogin(ctx, redirect)
		if err != nil {
			jww.FATAL.Panicf("Login failed: %v", err)
		}
		printStep("Logged in as %s (%s)", claims.Subject, claims.Issuer)

		if _, err = client.EnsureSalt(); err != nil {
			jww.FATAL.Panicf("%+v", err)
		}
		address, err := client.Address()
		if err != nil {
			jww.FATAL.Panicf("%+v", err)
		}
		printStep("Address: %s", address)

		if _, err = client.FetchProof(ctx); err != nil {
			jww.FATAL.Panicf("Proof request failed: %v", err)
		}
		printStep("Proof received")

		if viper.GetBool(loginFaucetFlag) {
			requestFaucet(ctx, client)
		}
		if viper.GetBool(loginTransferFlag) {
			transfer(ctx, client)
		}
	},
}

func requestFaucet(ctx context.Context, client *zklogin.Client) {
	amount, err := client.RequestFaucet(ctx)
	if err != nil {
		jww.FATAL.Panicf("Faucet request failed: %v", err)
	}
	printStep("Faucet sent %s SUI",
		ledger.FormatSUI(new(big.Int).SetUint64(amount)))
}

func transfer(ctx context.Context, client *zklogin.Client) {
	p := client.Params()
	printStep("Sending %s SUI to %s",
		ledger.FormatSUI(new(big.Int).SetUint64(p.TransferAmount)),
		p.Recipient)
	result, err := client.Transfer(ctx)
	if err != nil {
		jww.FATAL.Panicf("Transfer failed in state %s: %v",
			client.TransactionState(), err)
	}
	printStep("Transaction digest: %s", result.Digest)
}

func init() {
	loginCmd.Flags().Bool(loginFaucetFlag, false,
		"Request faucet funds after logging in")
	bindFlagHelper(loginFaucetFlag, loginCmd)

	loginCmd.Flags().Bool(loginTransferFlag, false,
		"Send the transfer after logging in")
	bindFlagHelper(loginTransferFlag, loginCmd)

	loginCmd.Flags().Duration(loginWaitFlag, 5*time.Minute,
		"How long to wait for the provider redirect")
	bindFlagHelper(loginWaitFlag, loginCmd)

	rootCmd.AddCommand(loginCmd)
}
