////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package zklogin

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/elixxir/zklogin/prover"
	"gitlab.com/elixxir/zklogin/storage"
	"gitlab.com/elixxir/zklogin/zkcrypto"
)

// Error messages.
const (
	storeProofErr = "failed to store proof"
	loadProofErr  = "stored proof is malformed"
)

// storedProof is a proof with the fingerprint of the inputs it was issued
// for.
type storedProof struct {
	Fingerprint string
	Proof       *zkcrypto.ZkProof
}

// proofRequest gathers the five proof inputs of the session. Absent inputs
// are left empty.
func (c *Client) proofRequest() (prover.Request, error) {
	var req prover.Request

	token, _, err := c.store.GetString(storage.SessionScope,
		storage.IDTokenKey)
	if err != nil {
		return req, errors.WithMessagef(err, loadErr, "identity token")
	}
	req.JWT = token

	kp, err := c.keys.Restore()
	if err != nil {
		return req, err
	}
	if kp != nil {
		req.ExtendedEphemeralPublicKey, err =
			zkcrypto.ExtendedPublicKey(kp.PublicKey())
		if err != nil {
			return req, err
		}
	}

	if req.MaxEpoch, _, err = c.epochs.Stored(); err != nil {
		return req, err
	}
	if req.Randomness, _, err = c.keys.RestoreRandomness(); err != nil {
		return req, err
	}
	req.Salt, _, err = c.salt()
	return req, err
}

// FetchProof returns a proof for the current inputs. A proof fetched
// earlier for the identical inputs is reused; any change to them requires
// a new request.
func (c *Client) FetchProof(ctx context.Context) (*zkcrypto.ZkProof, error) {
	req, err := c.proofRequest()
	if err != nil {
		return nil, err
	}
	if missing := req.Missing(); len(missing) > 0 {
		return nil, &PreconditionError{Op: "request proof", Missing: missing}
	}
	claims, err := c.Claims()
	if err != nil {
		return nil, err
	}
	if err = c.checkTokenBinding(claims); err != nil {
		return nil, err
	}

	if proof, err := c.Proof(); err != nil || proof != nil {
		return proof, err
	}

	gen := c.currentGeneration()
	start := time.Now()
	proof, err := c.prover.RequestProof(ctx, req)
	if err == nil {
		err = c.applyIfCurrent(gen, func() error {
			return c.saveProof(req, proof)
		})
	}
	c.metrics.observe(callProof, start, err)
	if err != nil {
		return nil, classify(callProof, err)
	}
	return proof, nil
}

// Proof returns the proof for the current inputs without fetching. It is
// nil when none has been fetched or the inputs changed since.
func (c *Client) Proof() (*zkcrypto.ZkProof, error) {
	req, err := c.proofRequest()
	if err != nil || len(req.Missing()) > 0 {
		return nil, err
	}
	if proof, ok := c.prover.Cached(req); ok {
		return proof, nil
	}

	data, ok, err := c.store.GetString(storage.SessionScope,
		storage.ProofKey)
	if err != nil || !ok {
		return nil, err
	}
	var sp storedProof
	if err = json.Unmarshal([]byte(data), &sp); err != nil {
		return nil, &DecodeError{Err: errors.WithMessage(err, loadProofErr)}
	}
	if sp.Proof == nil || sp.Fingerprint != req.Fingerprint() {
		jww.DEBUG.Printf("Stored proof was issued for other inputs")
		return nil, nil
	}
	return sp.Proof, nil
}

// saveProof must be called with the lock held.
func (c *Client) saveProof(req prover.Request, proof *zkcrypto.ZkProof) error {
	data, err := json.Marshal(storedProof{
		Fingerprint: req.Fingerprint(),
		Proof:       proof,
	})
	if err != nil {
		return errors.WithMessage(err, storeProofErr)
	}
	err = c.store.SetString(storage.SessionScope, storage.ProofKey,
		string(data))
	return errors.WithMessage(err, storeProofErr)
}
