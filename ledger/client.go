////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package ledger talks to the Sui fullnode over JSON-RPC and to the devnet
// faucet. It reads the current epoch and balances, asks the node to build
// transfer transactions and submits signed ones.
package ledger

import (
	"context"
	"encoding/base64"
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

// DefaultFullnodeURL is the devnet fullnode.
const DefaultFullnodeURL = "https://fullnode.devnet.sui.io"

// SuiCoinType is the type tag of the native coin.
const SuiCoinType = "0x2::sui::SUI"

// JSON-RPC methods.
const (
	methodSystemState = "suix_getLatestSuiSystemState"
	methodBalance     = "suix_getBalance"
	methodCoins       = "suix_getCoins"
	methodTransferSui = "unsafe_transferSui"
	methodExecute     = "sui_executeTransactionBlock"

	waitForLocalExecution = "WaitForLocalExecution"
	digestSize            = 32
	coinsPageLimit        = 50
)

// Error messages.
const (
	dialErr         = "failed to dial fullnode %s"
	callErr         = "%s failed"
	parseNumberErr  = "%s %q is not a number"
	txBytesErr      = "transfer transaction bytes are not base64"
	digestErr       = "transaction digest %q is malformed"
	insufficientErr = "no single coin holds %d MIST (amount %d + gas budget %d)"
	executionErr    = "transaction %s failed: %s"
)

var (
	// ErrInsufficientFunds is returned when no coin of the sender can pay
	// both the amount and the gas budget.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrExecutionFailed is returned when the node executed a transaction
	// but its effects report failure.
	ErrExecutionFailed = errors.New("transaction execution failed")

	// ErrMalformedResponse is returned when a node reply is missing fields
	// or has the wrong shape.
	ErrMalformedResponse = errors.New("malformed ledger response")
)

// Coin is an owned coin object.
type Coin struct {
	CoinType     string `json:"coinType"`
	CoinObjectID string `json:"coinObjectId"`
	Version      string `json:"version"`
	Digest       string `json:"digest"`
	Balance      string `json:"balance"`
}

// ExecutionResult is the outcome of a submitted transaction.
type ExecutionResult struct {
	Digest string
	Status string
}

type systemState struct {
	Epoch string `json:"epoch"`
}

type balanceResponse struct {
	CoinType        string `json:"coinType"`
	CoinObjectCount int    `json:"coinObjectCount"`
	TotalBalance    string `json:"totalBalance"`
}

type coinPage struct {
	Data        []Coin  `json:"data"`
	NextCursor  *string `json:"nextCursor"`
	HasNextPage bool    `json:"hasNextPage"`
}

type transactionBytes struct {
	TxBytes string `json:"txBytes"`
}

type executeOptions struct {
	ShowEffects bool `json:"showEffects"`
}

type executeResponse struct {
	Digest  string `json:"digest"`
	Effects *struct {
		Status struct {
			Status string `json:"status"`
			Error  string `json:"error"`
		} `json:"status"`
	} `json:"effects"`
}

// Client is a JSON-RPC client of a Sui fullnode.
type Client struct {
	url string
	rpc *rpc.Client
}

// Dial connects to the fullnode at url. A nil httpClient selects
// http.DefaultClient.
func Dial(ctx context.Context, url string, httpClient *http.Client) (
	*Client, error) {
	if url == "" {
		url = DefaultFullnodeURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	c, err := rpc.DialOptions(ctx, url, rpc.WithHTTPClient(httpClient))
	if err != nil {
		return nil, errors.Wrapf(err, dialErr, url)
	}
	jww.DEBUG.Printf("Dialed fullnode %s", url)
	return &Client{url: url, rpc: c}, nil
}

// URL returns the fullnode URL.
func (c *Client) URL() string {
	return c.url
}

// Close closes the underlying connection.
func (c *Client) Close() {
	c.rpc.Close()
}

// CurrentEpoch returns the epoch the network is currently in.
func (c *Client) CurrentEpoch(ctx context.Context) (uint64, error) {
	var state systemState
	if err := c.call(ctx, &state, methodSystemState); err != nil {
		return 0, err
	}
	epoch, err := strconv.ParseUint(state.Epoch, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(ErrMalformedResponse, parseNumberErr, "epoch",
			state.Epoch)
	}
	jww.TRACE.Printf("Current epoch is %d", epoch)
	return epoch, nil
}

// Balance returns the total SUI balance of owner in MIST.
func (c *Client) Balance(ctx context.Context, owner string) (*big.Int, error) {
	var resp balanceResponse
	if err := c.call(ctx, &resp, methodBalance, owner, SuiCoinType); err != nil {
		return nil, err
	}
	total, ok := new(big.Int).SetString(resp.TotalBalance, 10)
	if !ok {
		return nil, errors.Wrapf(ErrMalformedResponse, parseNumberErr,
			"totalBalance", resp.TotalBalance)
	}
	return total, nil
}

// Coins returns every SUI coin owned by owner.
func (c *Client) Coins(ctx context.Context, owner string) ([]Coin, error) {
	var (
		coins  []Coin
		cursor *string
	)
	for {
		var page coinPage
		err := c.call(ctx, &page, methodCoins, owner, SuiCoinType, cursor,
			coinsPageLimit)
		if err != nil {
			return nil, err
		}
		coins = append(coins, page.Data...)
		if !page.HasNextPage || page.NextCursor == nil {
			return coins, nil
		}
		cursor = page.NextCursor
	}
}

// BuildTransfer has the node build the bytes of a transaction sending amount
// MIST from sender to recipient. The amount and gas are taken from a single
// coin of the sender, which must hold amount+gasBudget.
func (c *Client) BuildTransfer(ctx context.Context, sender, recipient string,
	amount, gasBudget uint64) ([]byte, error) {
	coins, err := c.Coins(ctx, sender)
	if err != nil {
		return nil, err
	}

	need := new(big.Int).Add(new(big.Int).SetUint64(amount),
		new(big.Int).SetUint64(gasBudget))
	coin, err := pickCoin(coins, need)
	if err != nil {
		return nil, errors.WithMessagef(err, insufficientErr, need, amount,
			gasBudget)
	}
	jww.DEBUG.Printf("Paying transfer of %d MIST from coin %s",
		amount, coin.CoinObjectID)

	var tx transactionBytes
	err = c.call(ctx, &tx, methodTransferSui, sender, coin.CoinObjectID,
		strconv.FormatUint(gasBudget, 10), recipient,
		strconv.FormatUint(amount, 10))
	if err != nil {
		return nil, err
	}
	txBytes, err := base64.StdEncoding.DecodeString(tx.TxBytes)
	if err != nil || len(txBytes) == 0 {
		return nil, errors.Wrap(ErrMalformedResponse, txBytesErr)
	}
	return txBytes, nil
}

// Execute submits txBytes with its serialized signature and waits for local
// execution. A transaction whose effects report failure returns
// ErrExecutionFailed.
func (c *Client) Execute(ctx context.Context, txBytes []byte,
	signature string) (*ExecutionResult, error) {
	var resp executeResponse
	err := c.call(ctx, &resp, methodExecute,
		base64.StdEncoding.EncodeToString(txBytes), []string{signature},
		executeOptions{ShowEffects: true}, waitForLocalExecution)
	if err != nil {
		return nil, err
	}

	if err = ValidateDigest(resp.Digest); err != nil {
		return nil, err
	}
	result := &ExecutionResult{Digest: resp.Digest}
	if resp.Effects != nil {
		result.Status = resp.Effects.Status.Status
		if result.Status == "failure" {
			return result, errors.Wrapf(ErrExecutionFailed, executionErr,
				resp.Digest, resp.Effects.Status.Error)
		}
	}
	jww.INFO.Printf("Transaction %s executed", resp.Digest)
	return result, nil
}

// ValidateDigest checks that digest is the base58 encoding of 32 bytes.
func ValidateDigest(digest string) error {
	raw, err := base58.Decode(digest)
	if err != nil || len(raw) != digestSize {
		return errors.Wrapf(ErrMalformedResponse, digestErr, digest)
	}
	return nil
}

// pickCoin returns the coin with the largest balance if it covers need.
func pickCoin(coins []Coin, need *big.Int) (Coin, error) {
	var (
		best    Coin
		bestBal *big.Int
	)
	for _, coin := range coins {
		bal, ok := new(big.Int).SetString(coin.Balance, 10)
		if !ok {
			continue
		}
		if bestBal == nil || bal.Cmp(bestBal) > 0 {
			best, bestBal = coin, bal
		}
	}
	if bestBal == nil || bestBal.Cmp(need) < 0 {
		return Coin{}, ErrInsufficientFunds
	}
	return best, nil
}

func (c *Client) call(ctx context.Context, result interface{}, method string,
	args ...interface{}) error {
	jww.TRACE.Printf("Calling %s on %s", method, c.url)
	if err := c.rpc.CallContext(ctx, result, method, args...); err != nil {
		return errors.WithMessagef(classify(err), callErr, method)
	}
	return nil
}

// classify turns transport failures into a RemoteError carrying the node's
// message.
func classify(err error) error {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return &RemoteError{Code: rpcErr.ErrorCode(), Message: rpcErr.Error()}
	}
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return handleError(httpErr.StatusCode, httpErr.Body)
	}
	return err
}
