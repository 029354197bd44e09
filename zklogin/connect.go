////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package zklogin

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"gitlab.com/elixxir/zklogin/ledger"
	"gitlab.com/elixxir/zklogin/oauth"
	"gitlab.com/elixxir/zklogin/prover"
	"gitlab.com/elixxir/zklogin/storage"
	"gitlab.com/xx_network/crypto/csprng"
)

// Connect builds a Client talking to the services named in params, with
// system entropy. Close the returned ledger client when done.
func Connect(ctx context.Context, params Params, store *storage.Session,
	reg prometheus.Registerer) (*Client, *ledger.Client, error) {
	httpClient := &http.Client{Timeout: params.HTTPTimeout}

	node, err := ledger.Dial(ctx, params.FullnodeURL, httpClient)
	if err != nil {
		return nil, nil, err
	}

	collab := Collaborators{
		Ledger: node,
		Prover: prover.NewClient(params.ProverURL, httpClient),
		Tokens: oauth.NewClient(oauth.Config{
			ClientID:     params.ClientID,
			RedirectURI:  params.RedirectURI,
			AuthorizeURL: params.AuthorizeURL,
			TokenURL:     params.TokenURL,
		}, httpClient),
		Faucet: ledger.NewFaucetClient(params.FaucetURL, httpClient),
	}

	c, err := NewClient(params, store, collab, csprng.NewSystemRNG(), reg)
	if err != nil {
		node.Close()
		return nil, nil, errors.WithMessage(err, "failed to build client")
	}
	return c, node, nil
}
