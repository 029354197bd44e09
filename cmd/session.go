////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package cmd

import (
	"context"

	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
)

// startCmd begins a new session without logging in.
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Generates a new ephemeral key and resolves the expiry epoch",
	Long: "Generates a new ephemeral key pair and randomness, resolves " +
		"the expiry epoch and prints the nonce and provider URL. Use " +
		"--session so later commands see the same key.",
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		client, closeFn := initClient(ctx)
		defer closeFn()

		if err := client.Start(); err != nil {
			jww.FATAL.Panicf("%+v", err)
		}
		expiry, err := client.ResolveEpoch(ctx)
		if err != nil {
			jww.FATAL.Panicf("Failed to resolve expiry epoch: %v", err)
		}
		nonce, err := client.Nonce()
		if err != nil {
			jww.FATAL.Panicf("%+v", err)
		}
		printStep("Expiry epoch: %d", expiry)
		printStep("Nonce: %s", nonce)

		if client.Params().ClientID != "" {
			authURL, err := client.AuthorizationURL()
			if err != nil {
				jww.FATAL.Panicf("%+v", err)
			}
			printStep("Login URL: %s", authURL)
		}
	},
}

// resetCmd clears both storages.
var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clears the session and durable storage",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		client, closeFn := initClient(context.Background())
		defer closeFn()

		if err := client.Reset(); err != nil {
			jww.FATAL.Panicf("%+v", err)
		}
		printStep("Session and durable storage cleared")
	},
}

// addressCmd prints the derived address and the progress of the session.
var addressCmd = &cobra.Command{
	Use:   "address",
	Short: "Prints the derived address and session progress",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		client, closeFn := initClient(context.Background())
		defer closeFn()

		s := client.Status()
		printStep("Ephemeral key: %s", orNone(s.KeyPair))
		printStep("Randomness:    %t", s.Randomness)
		printStep("Expiry epoch:  %d", s.MaxEpoch)
		printStep("Nonce:         %s", orNone(s.Nonce))
		if s.Claims != nil {
			printStep("Subject:       %s (%s)", s.Claims.Subject,
				s.Claims.Issuer)
		}
		printStep("Salt:          %t", s.Salt)
		printStep("Address:       %s", orNone(s.Address))
		printStep("Proof:         %t", s.Proof)
	},
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

func init() {
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(addressCmd)
}
