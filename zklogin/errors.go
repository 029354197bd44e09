////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package zklogin

import (
	"strings"

	"github.com/pkg/errors"
	"gitlab.com/elixxir/zklogin/ledger"
	"gitlab.com/elixxir/zklogin/oauth"
	"gitlab.com/elixxir/zklogin/prover"
	"gitlab.com/elixxir/zklogin/transaction"
	"gitlab.com/elixxir/zklogin/zkcrypto"
)

var (
	// ErrStaleResult is returned when the session was started anew or reset
	// while a remote call was outstanding. The call's result is discarded.
	ErrStaleResult = errors.New("session changed while the call was " +
		"outstanding; result discarded")

	// ErrBusy is returned when a call of the same kind is outstanding.
	ErrBusy = errors.New("a call of this kind is already outstanding")

	// ErrNonceMismatch is returned when the identity token does not carry
	// the nonce of the current session.
	ErrNonceMismatch = errors.New("identity token nonce does not match " +
		"the session nonce")
)

// NetworkError is a failed remote call. It is transient; retrying is an
// explicit user action.
type NetworkError struct {
	// Call names the remote operation.
	Call string

	// Message is the server-supplied message, if any.
	Message string

	Err error
}

// Error returns the server-supplied message verbatim when there is one and
// the raw error otherwise.
func (e *NetworkError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

func (e *NetworkError) Unwrap() error { return e.Err }

// DecodeError is a malformed token, claim set or remote reply. The current
// flow cannot continue without logging in again.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return e.Err.Error() }

func (e *DecodeError) Unwrap() error { return e.Err }

// PreconditionError is an operation invoked before its inputs exist.
type PreconditionError struct {
	Op      string
	Missing []string
}

func (e *PreconditionError) Error() string {
	return "cannot " + e.Op + ": missing " + strings.Join(e.Missing, ", ")
}

// ProtocolInvariantError is a broken protocol binding such as a nonce
// mismatch or an expired key at submission. Only a full reset recovers.
type ProtocolInvariantError struct {
	Err error
}

func (e *ProtocolInvariantError) Error() string { return e.Err.Error() }

func (e *ProtocolInvariantError) Unwrap() error { return e.Err }

// classify maps an error from a pipeline stage onto the error taxonomy.
func classify(call string, err error) error {
	if err == nil {
		return nil
	}

	var (
		pe *PreconditionError
		de *DecodeError
		ie *ProtocolInvariantError
		ne *NetworkError
	)
	switch {
	case errors.As(err, &pe), errors.As(err, &de), errors.As(err, &ie),
		errors.As(err, &ne), errors.Is(err, ErrStaleResult),
		errors.Is(err, ErrBusy), errors.Is(err, prover.ErrInFlight),
		errors.Is(err, transaction.ErrInFlight):
		return err
	case errors.Is(err, transaction.ErrEpochExpired),
		errors.Is(err, ErrNonceMismatch):
		return &ProtocolInvariantError{Err: err}
	case errors.Is(err, oauth.ErrDecode),
		errors.Is(err, ledger.ErrMalformedResponse),
		errors.Is(err, prover.ErrMalformedProof),
		errors.Is(err, zkcrypto.ErrMalformedSecret):
		return &DecodeError{Err: err}
	}

	ne = &NetworkError{Call: call, Err: err}
	var serverErr *prover.ServerError
	var remoteErr *ledger.RemoteError
	if errors.As(err, &serverErr) {
		ne.Message = serverErr.Message
	} else if errors.As(err, &remoteErr) {
		ne.Message = remoteErr.Message
	}
	return ne
}
