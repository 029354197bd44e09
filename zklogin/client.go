////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package zklogin ties the login pipeline together: ephemeral key,
// expiry epoch, nonce, identity token, salt, address, proof and the signed
// transfer. Each operation checks its inputs up front and each remote result
// is applied only if the session it was started in is still current.
package zklogin

import (
	"context"
	"io"
	"math/big"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/elixxir/zklogin/ephemeral"
	"gitlab.com/elixxir/zklogin/epoch"
	"gitlab.com/elixxir/zklogin/ledger"
	"gitlab.com/elixxir/zklogin/prover"
	"gitlab.com/elixxir/zklogin/stoppable"
	"gitlab.com/elixxir/zklogin/storage"
	"gitlab.com/elixxir/zklogin/transaction"
	"gitlab.com/elixxir/zklogin/zkcrypto"
)

// Error messages.
const (
	missingCollaboratorErr = "missing collaborator %s"
	startErr               = "failed to start session"
	resetErr               = "failed to reset session"
	clearTokenErr          = "failed to clear token material"
)

// Ledger is the part of the fullnode client the pipeline uses.
type Ledger interface {
	CurrentEpoch(ctx context.Context) (uint64, error)
	Balance(ctx context.Context, owner string) (*big.Int, error)
	BuildTransfer(ctx context.Context, sender, recipient string,
		amount, gasBudget uint64) ([]byte, error)
	Execute(ctx context.Context, txBytes []byte,
		signature string) (*ledger.ExecutionResult, error)
}

// Prover fetches proofs and caches the last one.
type Prover interface {
	RequestProof(ctx context.Context, req prover.Request) (
		*zkcrypto.ZkProof, error)
	Cached(req prover.Request) (*zkcrypto.ZkProof, bool)
	Forget()
}

// TokenExchanger talks to the identity provider.
type TokenExchanger interface {
	AuthorizationURL(nonce string) (string, error)
	ExchangeCodeForToken(ctx context.Context, code string) (string, error)
}

// Faucet funds an address with test coins.
type Faucet interface {
	Request(ctx context.Context, recipient string) (uint64, error)
}

// Collaborators are the remote services a Client talks to.
type Collaborators struct {
	Ledger Ledger
	Prover Prover
	Tokens TokenExchanger
	Faucet Faucet
}

// Client is one login session.
type Client struct {
	params Params
	store  *storage.Session
	keys   *ephemeral.Manager
	epochs *epoch.Resolver
	rng    io.Reader

	ledger  Ledger
	prover  Prover
	tokens  TokenExchanger
	faucet  Faucet
	flow    *transaction.Flow
	poller  *ledger.BalancePoller
	metrics *metrics

	mux        sync.Mutex
	generation uuid.UUID
	busy       map[string]bool
	balance    *big.Int
	polling    *stoppable.Single
	lastDigest string
}

// NewClient builds a Client over store with the given collaborators. rng is
// the entropy source for keys, randomness and salt. Metrics are registered
// with reg; a nil reg uses a private registry.
func NewClient(params Params, store *storage.Session, collab Collaborators,
	rng io.Reader, reg prometheus.Registerer) (*Client, error) {
	switch {
	case collab.Ledger == nil:
		return nil, errors.Errorf(missingCollaboratorErr, "ledger")
	case collab.Prover == nil:
		return nil, errors.Errorf(missingCollaboratorErr, "prover")
	case collab.Tokens == nil:
		return nil, errors.Errorf(missingCollaboratorErr, "token exchanger")
	case collab.Faucet == nil:
		return nil, errors.Errorf(missingCollaboratorErr, "faucet")
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Client{
		params:     params,
		store:      store,
		keys:       ephemeral.NewManager(store, rng),
		epochs:     epoch.NewResolver(collab.Ledger, store, params.EpochMargin),
		rng:        rng,
		ledger:     collab.Ledger,
		prover:     collab.Prover,
		tokens:     collab.Tokens,
		faucet:     collab.Faucet,
		flow:       transaction.NewFlow(collab.Ledger),
		poller:     ledger.NewBalancePoller(collab.Ledger, params.BalancePollInterval),
		metrics:    newMetrics(reg),
		generation: uuid.New(),
		busy:       make(map[string]bool),
	}, nil
}

// Params returns the parameters the Client was built with.
func (c *Client) Params() Params {
	return c.params
}

// Start begins a new session: a fresh ephemeral key pair and randomness.
// Token material of the previous session is dropped and its outstanding
// calls become stale. The durable salt and expiry epoch are kept.
func (c *Client) Start() error {
	c.StopBalancePolling()

	c.mux.Lock()
	defer c.mux.Unlock()

	kp, err := c.keys.Generate()
	if err != nil {
		return errors.WithMessage(err, startErr)
	}
	if _, err = c.keys.GenerateRandomness(); err != nil {
		return errors.WithMessage(err, startErr)
	}
	if err = c.clearTokenMaterial(); err != nil {
		return errors.WithMessage(err, startErr)
	}
	c.rotate()
	jww.INFO.Printf("Started session %s with ephemeral key %s",
		c.generation, kp.PublicKeyBase64())
	return nil
}

// Reset clears both storage scopes and all in-memory state. It is the only
// recovery from a protocol invariant error.
func (c *Client) Reset() error {
	c.StopBalancePolling()

	c.mux.Lock()
	defer c.mux.Unlock()

	if err := c.store.Reset(); err != nil {
		return errors.WithMessage(err, resetErr)
	}
	c.prover.Forget()
	c.flow.Reset()
	c.rotate()
	jww.INFO.Printf("Reset session; new session %s", c.generation)
	return nil
}

// Close stops background threads.
func (c *Client) Close() {
	c.StopBalancePolling()
}

// rotate invalidates every outstanding call. Must be called with the lock
// held.
func (c *Client) rotate() {
	c.generation = uuid.New()
	c.balance = nil
	c.lastDigest = ""
	c.metrics.resets.Inc()
}

// clearTokenMaterial drops the token and proof bound to the previous key.
// Must be called with the lock held.
func (c *Client) clearTokenMaterial() error {
	for _, key := range []string{storage.IDTokenKey, storage.ProofKey} {
		if err := c.store.Delete(storage.SessionScope, key); err != nil {
			return errors.WithMessage(err, clearTokenErr)
		}
	}
	c.prover.Forget()
	c.flow.Reset()
	return nil
}

// begin marks a call of the given kind outstanding and returns the current
// session generation. The returned function ends the call.
func (c *Client) begin(call string) (uuid.UUID, func(), error) {
	c.mux.Lock()
	defer c.mux.Unlock()
	if c.busy[call] {
		return uuid.Nil, nil, errors.Wrap(ErrBusy, call)
	}
	c.busy[call] = true
	return c.generation, func() {
		c.mux.Lock()
		delete(c.busy, call)
		c.mux.Unlock()
	}, nil
}

func (c *Client) currentGeneration() uuid.UUID {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.generation
}

// applyIfCurrent runs apply with the lock held if gen is still the current
// generation and returns ErrStaleResult otherwise.
func (c *Client) applyIfCurrent(gen uuid.UUID, apply func() error) error {
	c.mux.Lock()
	defer c.mux.Unlock()
	if gen != c.generation {
		jww.WARN.Printf("Discarding result of session %s; current "+
			"session is %s", gen, c.generation)
		return ErrStaleResult
	}
	return apply()
}
