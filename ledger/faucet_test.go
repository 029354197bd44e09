////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// Tests the faucet request body and the summed amount.
func TestFaucetClient_Request(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			var body map[string]map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			require.Equal(t, "0xabc", body["FixedAmountRequest"]["recipient"])
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"transferredGasObjects": [
				{"amount": 1000000000, "id": "0x1"},
				{"amount": 500, "id": "0x2"}], "error": null}`))
		}))
	defer ts.Close()

	amount, err := NewFaucetClient(ts.URL, nil).Request(
		context.Background(), "0xabc")
	require.NoError(t, err)
	require.EqualValues(t, 1000000500, amount)
}

// Tests that faucet errors keep the faucet's message.
func TestFaucetClient_Request_Errors(t *testing.T) {
	tests := []struct {
		status  int
		body    string
		message string
	}{
		{http.StatusTooManyRequests, `{"error": "Too many requests"}`,
			"Too many requests"},
		{http.StatusOK, `{"transferredGasObjects": [], "error": "empty"}`,
			"empty"},
		{http.StatusBadGateway, `bad gateway`, ""},
	}

	for i, tt := range tests {
		ts := httptest.NewServer(http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))

		_, err := NewFaucetClient(ts.URL, nil).Request(
			context.Background(), "0xabc")
		ts.Close()

		var remote *RemoteError
		if !errors.As(err, &remote) {
			t.Errorf("Test %d: expected RemoteError, received %v", i, err)
			continue
		}
		if remote.Message != tt.message {
			t.Errorf("Test %d: unexpected message."+
				"\nexpected: %q\nreceived: %q", i, tt.message, remote.Message)
		}
	}
}

// Tests that an empty recipient is rejected without a request.
func TestFaucetClient_Request_NoRecipient(t *testing.T) {
	_, err := NewFaucetClient("http://127.0.0.1:1", nil).Request(
		context.Background(), "")
	require.ErrorIs(t, err, ErrMissingRecipient)
}
