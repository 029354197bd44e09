////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

// DefaultFaucetURL is the devnet faucet.
const DefaultFaucetURL = "https://faucet.devnet.sui.io/gas"

// ErrMissingRecipient is returned when no address is given to the faucet.
var ErrMissingRecipient = errors.New("faucet recipient missing")

type faucetRequest struct {
	FixedAmountRequest struct {
		Recipient string `json:"recipient"`
	} `json:"FixedAmountRequest"`
}

type faucetResponse struct {
	TransferredGasObjects []struct {
		Amount uint64 `json:"amount"`
		ID     string `json:"id"`
	} `json:"transferredGasObjects"`
	Error *string `json:"error"`
}

// FaucetClient requests test funds.
type FaucetClient struct {
	url        string
	httpClient *http.Client
}

// NewFaucetClient returns a FaucetClient. Empty url and nil httpClient
// select the defaults.
func NewFaucetClient(url string, httpClient *http.Client) *FaucetClient {
	if url == "" {
		url = DefaultFaucetURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &FaucetClient{url: url, httpClient: httpClient}
}

// Request asks the faucet to fund recipient and returns the amount of MIST
// it reports transferring.
func (f *FaucetClient) Request(ctx context.Context, recipient string) (
	uint64, error) {
	if recipient == "" {
		return 0, ErrMissingRecipient
	}
	var reqBody faucetRequest
	reqBody.FixedAmountRequest.Recipient = recipient
	body, err := json.Marshal(reqBody)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url,
		bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	jww.INFO.Printf("Requesting faucet funds for %s", recipient)
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, handleError(resp.StatusCode, data)
	}

	var fr faucetResponse
	if err = json.Unmarshal(data, &fr); err != nil {
		return 0, errors.Wrap(ErrMalformedResponse, err.Error())
	}
	if fr.Error != nil && *fr.Error != "" {
		return 0, &RemoteError{StatusCode: resp.StatusCode, Message: *fr.Error}
	}
	var total uint64
	for _, obj := range fr.TransferredGasObjects {
		total += obj.Amount
	}
	jww.DEBUG.Printf("Faucet transferred %d MIST in %d objects", total,
		len(fr.TransferredGasObjects))
	return total, nil
}
