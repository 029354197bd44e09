////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package prover requests zero-knowledge proofs from the remote proving
// service.
package prover

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/elixxir/zklogin/zkcrypto"
	"golang.org/x/crypto/blake2b"
)

// DefaultURL is the development proving service.
const DefaultURL = "https://prover-dev.mystenlabs.com/v1"

var (
	// ErrMissingInput is returned, without any request being sent, when one
	// of the five proof inputs is empty.
	ErrMissingInput = errors.New("proof request input missing")

	// ErrInFlight is returned when a proof request is already outstanding.
	ErrInFlight = errors.New("a proof request is already in flight")

	// ErrMalformedProof is returned when the prover's reply is not a
	// complete proof.
	ErrMalformedProof = errors.New("malformed proof response")
)

// Request holds the inputs of a proof. All of them must be identical to the
// ones committed in the nonce for the proof to be usable.
type Request struct {
	JWT                        string
	ExtendedEphemeralPublicKey string
	MaxEpoch                   uint64
	Randomness                 string
	Salt                       string
}

// Missing lists the names of the empty inputs.
func (r Request) Missing() []string {
	var missing []string
	if r.JWT == "" {
		missing = append(missing, "jwt")
	}
	if r.ExtendedEphemeralPublicKey == "" {
		missing = append(missing, "extendedEphemeralPublicKey")
	}
	if r.MaxEpoch == 0 {
		missing = append(missing, "maxEpoch")
	}
	if r.Randomness == "" {
		missing = append(missing, "jwtRandomness")
	}
	if r.Salt == "" {
		missing = append(missing, "salt")
	}
	return missing
}

// Fingerprint identifies the input tuple. Two requests share a proof only if
// their fingerprints match.
func (r Request) Fingerprint() string {
	h, _ := blake2b.New256(nil)
	for _, part := range []string{r.JWT, r.ExtendedEphemeralPublicKey,
		strconv.FormatUint(r.MaxEpoch, 10), r.Randomness, r.Salt} {
		h.Write([]byte(strconv.Itoa(len(part))))
		h.Write([]byte{':'})
		h.Write([]byte(part))
	}
	return hex.EncodeToString(h.Sum(nil))
}

type requestBody struct {
	JWT                        string `json:"jwt"`
	ExtendedEphemeralPublicKey string `json:"extendedEphemeralPublicKey"`
	MaxEpoch                   string `json:"maxEpoch"`
	JWTRandomness              string `json:"jwtRandomness"`
	Salt                       string `json:"salt"`
	KeyClaimName               string `json:"keyClaimName"`
}

// Client sends proof requests. At most one request is outstanding at a
// time.
type Client struct {
	url        string
	httpClient *http.Client

	mux         sync.Mutex
	inFlight    bool
	fingerprint string
	proof       *zkcrypto.ZkProof
}

// NewClient returns a Client for the prover at url. A nil httpClient
// selects http.DefaultClient.
func NewClient(url string, httpClient *http.Client) *Client {
	if url == "" {
		url = DefaultURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{url: url, httpClient: httpClient}
}

// RequestProof posts the request to the prover and returns its proof. When
// the prover answers with an error carrying a message, that message is the
// returned error's text.
func (c *Client) RequestProof(ctx context.Context, req Request) (
	*zkcrypto.ZkProof, error) {
	if missing := req.Missing(); len(missing) > 0 {
		return nil, errors.Wrapf(ErrMissingInput, "missing %s",
			strings.Join(missing, ", "))
	}

	c.mux.Lock()
	if c.inFlight {
		c.mux.Unlock()
		return nil, ErrInFlight
	}
	c.inFlight = true
	c.mux.Unlock()
	defer func() {
		c.mux.Lock()
		c.inFlight = false
		c.mux.Unlock()
	}()

	proof, err := c.send(ctx, req)
	if err != nil {
		return nil, err
	}

	c.mux.Lock()
	c.fingerprint = req.Fingerprint()
	c.proof = proof
	c.mux.Unlock()
	return proof, nil
}

// Cached returns the last fetched proof if it was fetched for exactly the
// same inputs.
func (c *Client) Cached(req Request) (*zkcrypto.ZkProof, bool) {
	c.mux.Lock()
	defer c.mux.Unlock()
	if c.proof == nil || c.fingerprint != req.Fingerprint() {
		return nil, false
	}
	return c.proof, true
}

// Forget drops the cached proof.
func (c *Client) Forget() {
	c.mux.Lock()
	defer c.mux.Unlock()
	c.proof = nil
	c.fingerprint = ""
}

// InFlight reports whether a request is outstanding.
func (c *Client) InFlight() bool {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.inFlight
}

func (c *Client) send(ctx context.Context, req Request) (
	*zkcrypto.ZkProof, error) {
	body, err := json.Marshal(requestBody{
		JWT:                        req.JWT,
		ExtendedEphemeralPublicKey: req.ExtendedEphemeralPublicKey,
		MaxEpoch:                   strconv.FormatUint(req.MaxEpoch, 10),
		JWTRandomness:              req.Randomness,
		Salt:                       req.Salt,
		KeyClaimName:               zkcrypto.KeyClaimName,
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url,
		bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	jww.INFO.Printf("Requesting proof from %s", c.url)
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, handleError(resp.StatusCode, data)
	}

	proof := &zkcrypto.ZkProof{}
	if err = json.Unmarshal(data, proof); err != nil {
		return nil, errors.Wrap(ErrMalformedProof, err.Error())
	}
	if err = proof.Validate(); err != nil {
		return nil, errors.Wrap(ErrMalformedProof, err.Error())
	}
	jww.INFO.Printf("Received proof")
	return proof, nil
}
