////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package zklogin

import (
	"context"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/elixxir/zklogin/ledger"
	"gitlab.com/elixxir/zklogin/transaction"
)

// RequestFaucet asks the faucet to fund the session address and returns the
// amount it reports in MIST.
func (c *Client) RequestFaucet(ctx context.Context) (uint64, error) {
	address, err := c.Address()
	if err != nil {
		return 0, err
	}
	gen, done, err := c.begin(callFaucet)
	if err != nil {
		return 0, err
	}
	defer done()

	start := time.Now()
	amount, err := c.faucet.Request(ctx, address)
	if err == nil {
		err = c.applyIfCurrent(gen, func() error { return nil })
	}
	c.metrics.observe(callFaucet, start, err)
	if err != nil {
		return 0, classify(callFaucet, err)
	}
	return amount, nil
}

// Balance queries the balance of the session address in MIST.
func (c *Client) Balance(ctx context.Context) (*big.Int, error) {
	address, err := c.Address()
	if err != nil {
		return nil, err
	}
	gen, done, err := c.begin(callBalance)
	if err != nil {
		return nil, err
	}
	defer done()

	start := time.Now()
	balance, err := c.ledger.Balance(ctx, address)
	if err == nil {
		err = c.applyIfCurrent(gen, func() error {
			c.balance = balance
			return nil
		})
	}
	c.metrics.observe(callBalance, start, err)
	if err != nil {
		return nil, classify(callBalance, err)
	}
	return balance, nil
}

// StartBalancePolling refreshes the balance of the session address at the
// configured interval and hands each result to cb. Polling stops on
// StopBalancePolling, Start or Reset, and results from an earlier session
// are dropped.
func (c *Client) StartBalancePolling(cb ledger.BalanceCallback) error {
	address, err := c.Address()
	if err != nil {
		return err
	}
	c.StopBalancePolling()

	c.mux.Lock()
	defer c.mux.Unlock()
	c.polling = c.poller.Start(address, c.pollCallback(c.generation, cb))
	jww.DEBUG.Printf("Polling balance of %s every %s", address,
		c.params.BalancePollInterval)
	return nil
}

// pollCallback hands poll results of session gen to cb. Balances and
// errors of an earlier session are dropped alike.
func (c *Client) pollCallback(gen uuid.UUID,
	cb ledger.BalanceCallback) ledger.BalanceCallback {
	return func(balance *big.Int, err error) {
		applyErr := c.applyIfCurrent(gen, func() error {
			if err == nil {
				c.balance = balance
			}
			return nil
		})
		if applyErr != nil {
			return
		}
		if err != nil {
			cb(nil, classify(callBalance, err))
			return
		}
		cb(balance, nil)
	}
}

// StopBalancePolling stops polling if it is running.
func (c *Client) StopBalancePolling() {
	c.mux.Lock()
	polling := c.polling
	c.polling = nil
	c.mux.Unlock()

	if polling != nil {
		if err := polling.Close(); err != nil {
			jww.DEBUG.Printf("Balance poller already stopped: %+v", err)
		}
	}
}

// transferInputs gathers the inputs of the transfer. Absent ones are left
// empty so the flow can report them.
func (c *Client) transferInputs() (transaction.Inputs, error) {
	in := transaction.Inputs{
		Recipient: c.params.Recipient,
		Amount:    c.params.TransferAmount,
		GasBudget: c.params.GasBudget,
	}

	var err error
	if in.KeyPair, err = c.keys.Restore(); err != nil {
		return in, err
	}
	if in.Proof, err = c.Proof(); err != nil {
		return in, err
	}
	if in.Claims, err = c.Claims(); err != nil {
		return in, err
	}
	if err = c.checkTokenBinding(in.Claims); err != nil {
		return in, err
	}
	if in.Salt, _, err = c.salt(); err != nil {
		return in, err
	}
	if in.MaxEpoch, _, err = c.epochs.Stored(); err != nil {
		return in, err
	}
	if in.Claims != nil && in.Salt != "" {
		if in.Sender, err = c.Address(); err != nil {
			return in, err
		}
	}
	return in, nil
}

// Transfer builds, signs and submits the transfer of the configured amount
// to the configured recipient. Nothing is sent unless the key pair, proof,
// claims and salt are all present. A failed transfer is not retried.
func (c *Client) Transfer(ctx context.Context) (*transaction.Result, error) {
	in, err := c.transferInputs()
	if err != nil {
		return nil, err
	}

	gen := c.currentGeneration()
	start := time.Now()
	result, err := c.flow.Run(ctx, in)
	if errors.Is(err, transaction.ErrNotReady) {
		return nil, &PreconditionError{Op: "transfer", Missing: in.Missing()}
	}
	if err == nil {
		err = c.applyIfCurrent(gen, func() error {
			c.lastDigest = result.Digest
			return nil
		})
	}
	c.metrics.observe(callTransfer, start, err)
	if err != nil {
		return result, classify(callTransfer, err)
	}
	return result, nil
}

// TransactionState returns the stage of the last transfer.
func (c *Client) TransactionState() transaction.State {
	return c.flow.State()
}
