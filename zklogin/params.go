////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package zklogin

import (
	"encoding/json"
	"time"

	"gitlab.com/elixxir/zklogin/epoch"
	"gitlab.com/elixxir/zklogin/ledger"
	"gitlab.com/elixxir/zklogin/oauth"
	"gitlab.com/elixxir/zklogin/prover"
)

// DefaultRecipient receives the demo transfer.
const DefaultRecipient = "0xc2e1c711e827f27dea0a065b2767eb64296c95dffa152efbd834a3b6306a33f8"

// Params contains the parameters of a Client.
type Params struct {
	// Remote endpoints
	FullnodeURL  string
	FaucetURL    string
	ProverURL    string
	AuthorizeURL string
	TokenURL     string

	// OAuth application registered with the identity provider
	ClientID    string
	RedirectURI string

	// Recipient and amount, in MIST, of the transfer
	Recipient      string
	TransferAmount uint64

	// Gas budget of the transfer in MIST
	GasBudget uint64

	// Number of epochs past the current one the ephemeral key stays valid
	EpochMargin uint64

	// Interval between balance refreshes
	BalancePollInterval time.Duration

	// Timeout of every HTTP request. Proof requests can take several
	// seconds.
	HTTPTimeout time.Duration
}

// paramsDisk will be the marshal-able and umarshal-able object.
type paramsDisk struct {
	FullnodeURL         string
	FaucetURL           string
	ProverURL           string
	AuthorizeURL        string
	TokenURL            string
	ClientID            string
	RedirectURI         string
	Recipient           string
	TransferAmount      uint64
	GasBudget           uint64
	EpochMargin         uint64
	BalancePollInterval time.Duration
	HTTPTimeout         time.Duration
}

// GetDefaultParams returns a default set of Params. ClientID has no default
// and must be set before logging in.
func GetDefaultParams() Params {
	return Params{
		FullnodeURL:         ledger.DefaultFullnodeURL,
		FaucetURL:           ledger.DefaultFaucetURL,
		ProverURL:           prover.DefaultURL,
		AuthorizeURL:        oauth.DefaultAuthorizeURL,
		TokenURL:            oauth.DefaultTokenURL,
		RedirectURI:         "http://localhost:3001",
		Recipient:           DefaultRecipient,
		TransferAmount:      ledger.MistPerSui,
		GasBudget:           10_000_000,
		EpochMargin:         epoch.DefaultMargin,
		BalancePollInterval: ledger.DefaultPollInterval,
		HTTPTimeout:         30 * time.Second,
	}
}

// ParseParams returns the default Params, overridden by any field set in
// the given JSON.
func ParseParams(paramsJSON string) (Params, error) {
	p := GetDefaultParams()
	if len(paramsJSON) > 0 {
		err := json.Unmarshal([]byte(paramsJSON), &p)
		if err != nil {
			return Params{}, err
		}
	}
	return p, nil
}

// MarshalJSON adheres to the json.Marshaler interface.
func (p Params) MarshalJSON() ([]byte, error) {
	return json.Marshal(paramsDisk(p))
}

// UnmarshalJSON adheres to the json.Unmarshaler interface. Fields absent
// from data keep their current value.
func (p *Params) UnmarshalJSON(data []byte) error {
	pDisk := paramsDisk(*p)
	if err := json.Unmarshal(data, &pDisk); err != nil {
		return err
	}
	*p = Params(pDisk)
	return nil
}
