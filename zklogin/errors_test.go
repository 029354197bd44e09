////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package zklogin

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"gitlab.com/elixxir/zklogin/ledger"
	"gitlab.com/elixxir/zklogin/oauth"
	"gitlab.com/elixxir/zklogin/transaction"
)

// Tests that stage errors land in the right part of the taxonomy.
func TestClassify(t *testing.T) {
	require.Nil(t, classify(callEpoch, nil))

	var ie *ProtocolInvariantError
	require.True(t, errors.As(classify(callTransfer,
		errors.Wrap(transaction.ErrEpochExpired, "late")), &ie))

	var de *DecodeError
	require.True(t, errors.As(classify(callExchange,
		errors.Wrap(oauth.ErrDecode, "bad")), &de))
	require.True(t, errors.As(classify(callBalance,
		errors.Wrap(ledger.ErrMalformedResponse, "bad")), &de))

	var ne *NetworkError
	err := classify(callFaucet, errors.WithMessage(
		&ledger.RemoteError{StatusCode: 429, Message: "Too many requests"},
		"faucet"))
	require.True(t, errors.As(err, &ne))
	require.Equal(t, "Too many requests", err.Error())

	raw := errors.New("connection refused")
	err = classify(callEpoch, raw)
	require.Equal(t, "connection refused", err.Error())
	require.ErrorIs(t, err, raw)

	pe := &PreconditionError{Op: "transfer", Missing: []string{"claims"}}
	require.Equal(t, pe, classify(callTransfer, pe))
	require.Equal(t, "cannot transfer: missing claims", pe.Error())
}
