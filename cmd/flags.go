////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package cmd

// This is a comprehensive list of CLI flag name constants. Organized by
// subcommand, with root level CLI flags at the top of the list. Pulling
// flags using Viper should use the constants defined here.
const (
	//////////////// Root flags ///////////////////////////////////////////////

	// Log flags
	logLevelFlag = "logLevel"
	logFlag      = "log"

	// Storage flags
	sessionFlag  = "session"
	storageFlag  = "storage"
	passwordFlag = "password"

	// Config flags
	configFlag     = "config"
	paramsFileFlag = "params"
	profileCpuFlag = "profile-cpu"

	// Service flags
	fullnodeFlag     = "fullnode"
	faucetFlag       = "faucet-url"
	proverFlag       = "prover"
	authorizeURLFlag = "authorize-url"
	tokenURLFlag     = "token-url"
	clientIDFlag     = "client-id"
	redirectURIFlag  = "redirect-uri"
	timeoutFlag      = "timeout"

	///////////////// Login subcommand flags //////////////////////////////////
	loginFaucetFlag   = "faucet"
	loginTransferFlag = "transfer"
	loginWaitFlag     = "wait"

	///////////////// Balance subcommand flags ////////////////////////////////
	watchFlag        = "watch"
	pollIntervalFlag = "interval"

	///////////////// Transfer subcommand flags ///////////////////////////////
	recipientFlag = "recipient"
	amountFlag    = "amount"
	gasBudgetFlag = "gas-budget"
)
