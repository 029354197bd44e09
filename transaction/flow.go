////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package transaction builds, signs and submits a zkLogin transfer as a
// strictly ordered state machine.
package transaction

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/elixxir/zklogin/ledger"
	"gitlab.com/elixxir/zklogin/oauth"
	"gitlab.com/elixxir/zklogin/zkcrypto"
)

var (
	// ErrNotReady is returned, with no ledger call made, when an input of
	// the flow is missing.
	ErrNotReady = errors.New("transaction inputs not ready")

	// ErrInFlight is returned when a run is already in progress.
	ErrInFlight = errors.New("a transaction is already in flight")

	// ErrEpochExpired is returned when the network has moved past the
	// expiry epoch of the ephemeral key, so the ledger would reject the
	// signature.
	ErrEpochExpired = errors.New("ephemeral key expired")
)

// Error messages.
const (
	missingErr     = "missing %s"
	buildErr       = "failed to build transaction"
	signErr        = "failed to sign transaction"
	seedErr        = "failed to compute address seed"
	composeErr     = "failed to compose zkLogin signature"
	epochErr       = "failed to check current epoch"
	expiredErr     = "current epoch %d is past expiry epoch %d"
	submitErr      = "failed to submit transaction"
	keyMismatchErr = "signature does not verify with the ephemeral key"
)

// Ledger is the part of the ledger client used by a Flow.
type Ledger interface {
	CurrentEpoch(ctx context.Context) (uint64, error)
	BuildTransfer(ctx context.Context, sender, recipient string,
		amount, gasBudget uint64) ([]byte, error)
	Execute(ctx context.Context, txBytes []byte,
		signature string) (*ledger.ExecutionResult, error)
}

// Inputs are everything a transfer needs. KeyPair, Proof, Claims and Salt
// are the gated inputs; a run with any of them absent does nothing.
type Inputs struct {
	KeyPair  *zkcrypto.KeyPair
	Proof    *zkcrypto.ZkProof
	Claims   *oauth.Claims
	Salt     string
	MaxEpoch uint64

	Sender    string
	Recipient string
	Amount    uint64
	GasBudget uint64
}

// Missing lists the names of the absent gated inputs.
func (in Inputs) Missing() []string {
	var missing []string
	if in.KeyPair == nil {
		missing = append(missing, "ephemeral key pair")
	}
	if in.Proof == nil {
		missing = append(missing, "proof")
	}
	if in.Claims == nil {
		missing = append(missing, "claims")
	}
	if in.Salt == "" {
		missing = append(missing, "salt")
	}
	if in.MaxEpoch == 0 {
		missing = append(missing, "expiry epoch")
	}
	if in.Sender == "" {
		missing = append(missing, "sender")
	}
	if in.Recipient == "" {
		missing = append(missing, "recipient")
	}
	return missing
}

// Result holds the artefacts of each completed stage.
type Result struct {
	TxBytes          []byte
	UserSignature    string
	ZkLoginSignature string
	Digest           string
}

// Flow runs transfers one at a time.
type Flow struct {
	ledger Ledger

	mux      sync.Mutex
	state    State
	inFlight bool
	result   *Result
	err      error
}

// NewFlow returns an idle Flow.
func NewFlow(l Ledger) *Flow {
	return &Flow{ledger: l}
}

// State returns the current stage.
func (f *Flow) State() State {
	f.mux.Lock()
	defer f.mux.Unlock()
	return f.state
}

// Result returns the artefacts of the last finished run and its error, if
// any. It is nil while a run is in flight.
func (f *Flow) Result() (*Result, error) {
	f.mux.Lock()
	defer f.mux.Unlock()
	return f.result, f.err
}

// InFlight reports whether a run is in progress.
func (f *Flow) InFlight() bool {
	f.mux.Lock()
	defer f.mux.Unlock()
	return f.inFlight
}

// Reset returns a finished flow to Idle. It has no effect while a run is in
// flight.
func (f *Flow) Reset() {
	f.mux.Lock()
	defer f.mux.Unlock()
	if f.inFlight {
		return
	}
	f.state, f.result, f.err = Idle, nil, nil
}

// Run builds, signs, composes and submits the transfer. When a gated input
// is missing it returns ErrNotReady and leaves the flow untouched. A failed
// stage leaves the flow Failed; nothing is retried.
func (f *Flow) Run(ctx context.Context, in Inputs) (*Result, error) {
	if missing := in.Missing(); len(missing) > 0 {
		return nil, errors.Wrapf(ErrNotReady, missingErr,
			strings.Join(missing, ", "))
	}

	f.mux.Lock()
	if f.inFlight {
		f.mux.Unlock()
		return nil, ErrInFlight
	}
	f.inFlight = true
	f.state, f.result, f.err = Idle, nil, nil
	f.mux.Unlock()

	result, err := f.run(ctx, in)

	f.mux.Lock()
	defer f.mux.Unlock()
	f.inFlight = false
	f.result, f.err = result, err
	if err != nil {
		f.state = Failed
		jww.ERROR.Printf("Transaction failed: %+v", err)
		return result, err
	}
	f.state = Confirmed
	return result, nil
}

// run fills a result private to the call; Run publishes it once finished.
func (f *Flow) run(ctx context.Context, in Inputs) (*Result, error) {
	result := &Result{}

	// Build
	txBytes, err := f.ledger.BuildTransfer(ctx, in.Sender, in.Recipient,
		in.Amount, in.GasBudget)
	if err != nil {
		return result, errors.WithMessage(err, buildErr)
	}
	result.TxBytes = txBytes
	f.advance(Built)

	// Sign
	userSig, err := zkcrypto.SignTransaction(in.KeyPair, txBytes)
	if err != nil {
		return result, errors.WithMessage(err, signErr)
	}
	pub, err := zkcrypto.VerifyUserSignature(userSig, txBytes)
	if err != nil || !pub.Equal(in.KeyPair.PublicKey()) {
		return result, errors.New(keyMismatchErr)
	}
	result.UserSignature = userSig
	f.advance(Signed)

	// Compose
	seed, err := zkcrypto.GenAddressSeed(in.Salt, zkcrypto.KeyClaimName,
		in.Claims.Subject, in.Claims.Audience)
	if err != nil {
		return result, errors.WithMessage(err, seedErr)
	}
	zkSig, err := zkcrypto.ZkLoginSignature(zkcrypto.ZkLoginInputs{
		ZkProof:     *in.Proof,
		AddressSeed: seed.String(),
	}, in.MaxEpoch, userSig)
	if err != nil {
		return result, errors.WithMessage(err, composeErr)
	}
	result.ZkLoginSignature = zkSig
	f.advance(CompositeSigned)

	// Submit, unless the key has expired
	current, err := f.ledger.CurrentEpoch(ctx)
	if err != nil {
		return result, errors.WithMessage(err, epochErr)
	}
	if current > in.MaxEpoch {
		return result, errors.Wrapf(ErrEpochExpired, expiredErr, current,
			in.MaxEpoch)
	}

	f.advance(Submitted)
	exec, err := f.ledger.Execute(ctx, txBytes, zkSig)
	if err != nil {
		return result, errors.WithMessage(err, submitErr)
	}
	result.Digest = exec.Digest
	jww.INFO.Printf("Transfer of %d MIST to %s confirmed in %s", in.Amount,
		in.Recipient, exec.Digest)
	return result, nil
}

func (f *Flow) advance(s State) {
	f.mux.Lock()
	f.state = s
	f.mux.Unlock()
	jww.DEBUG.Printf("Transaction flow is %s", s)
}
