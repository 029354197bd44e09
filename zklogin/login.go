////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package zklogin

import (
	"context"
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/elixxir/zklogin/oauth"
	"gitlab.com/elixxir/zklogin/storage"
	"gitlab.com/elixxir/zklogin/zkcrypto"
)

// Error messages.
const (
	loadErr       = "failed to load %s"
	storeTokenErr = "failed to store identity token"
	storeSaltErr  = "failed to store salt"
	nonceErr      = "token nonce %q, session nonce %q"
)

// ResolveEpoch asks the ledger for the current epoch and persists the
// expiry epoch current+margin. A failure leaves any earlier value in place.
func (c *Client) ResolveEpoch(ctx context.Context) (uint64, error) {
	gen, done, err := c.begin(callEpoch)
	if err != nil {
		return 0, err
	}
	defer done()

	start := time.Now()
	expiry, err := c.epochs.Query(ctx)
	if err == nil {
		err = c.applyIfCurrent(gen, func() error {
			return c.moveExpiry(expiry)
		})
	}
	c.metrics.observe(callEpoch, start, err)
	if err != nil {
		return 0, classify(callEpoch, err)
	}
	return expiry, nil
}

// moveExpiry persists expiry. A token bound to a different expiry epoch is
// dropped with its proof, since its nonce no longer matches. Must be called
// with the lock held.
func (c *Client) moveExpiry(expiry uint64) error {
	stored, ok, err := c.epochs.Stored()
	if err != nil {
		return err
	}
	if ok && stored != expiry {
		if err = c.clearTokenMaterial(); err != nil {
			return err
		}
		jww.INFO.Printf("Expiry epoch moved from %d to %d; log in again",
			stored, expiry)
	}
	return c.epochs.Persist(expiry)
}

// Nonce computes the nonce binding the ephemeral key, expiry epoch and
// randomness of the session.
func (c *Client) Nonce() (string, error) {
	kp, err := c.keys.Restore()
	if err != nil {
		return "", err
	}
	randomness, hasRandomness, err := c.keys.RestoreRandomness()
	if err != nil {
		return "", err
	}
	maxEpoch, hasEpoch, err := c.epochs.Stored()
	if err != nil {
		return "", err
	}

	var missing []string
	if kp == nil {
		missing = append(missing, "ephemeral key pair")
	}
	if !hasEpoch {
		missing = append(missing, "expiry epoch")
	}
	if !hasRandomness {
		missing = append(missing, "randomness")
	}
	if len(missing) > 0 {
		return "", &PreconditionError{Op: "compute nonce", Missing: missing}
	}
	return zkcrypto.ComputeNonce(kp.PublicKey(), maxEpoch, randomness)
}

// AuthorizationURL returns the provider URL the user logs in at, carrying
// the session nonce.
func (c *Client) AuthorizationURL() (string, error) {
	nonce, err := c.Nonce()
	if err != nil {
		return "", err
	}
	return c.tokens.AuthorizationURL(nonce)
}

// CompleteLogin consumes the provider's redirect. An authorization code is
// exchanged for the identity token; a token in the fragment is used as is.
// The token must carry the session nonce.
func (c *Client) CompleteLogin(ctx context.Context, redirectURL string) (
	*oauth.Claims, error) {
	redirect, err := oauth.ParseRedirect(redirectURL)
	if err != nil {
		return nil, classify(callExchange, err)
	}

	// The session is captured before the nonce so a Start in between
	// makes the token stale instead of binding it to the new key.
	gen, done, err := c.begin(callExchange)
	if err != nil {
		return nil, err
	}
	defer done()
	expected, err := c.Nonce()
	if err != nil {
		return nil, err
	}

	token := redirect.IDToken
	if token == "" {
		start := time.Now()
		token, err = c.tokens.ExchangeCodeForToken(ctx, redirect.Code)
		c.metrics.observe(callExchange, start, err)
		if err != nil {
			return nil, classify(callExchange, err)
		}
	}

	claims, err := oauth.Decode(token)
	if err != nil {
		return nil, classify(callExchange, err)
	}
	if claims.Nonce != expected {
		return nil, &ProtocolInvariantError{Err: errors.Wrapf(
			ErrNonceMismatch, nonceErr, claims.Nonce, expected)}
	}

	err = c.applyIfCurrent(gen, func() error {
		if err := c.clearTokenMaterial(); err != nil {
			return err
		}
		err := c.store.SetString(storage.SessionScope, storage.IDTokenKey,
			token)
		return errors.WithMessage(err, storeTokenErr)
	})
	if err != nil {
		return nil, err
	}
	jww.INFO.Printf("Logged in as %s at %s", claims.Subject, claims.Issuer)
	return &claims, nil
}

// checkTokenBinding fails with a protocol invariant error when the token
// claims do not carry the nonce of the current key, expiry epoch and
// randomness. Missing nonce inputs are left for the caller to report.
func (c *Client) checkTokenBinding(claims *oauth.Claims) error {
	if claims == nil {
		return nil
	}
	nonce, err := c.Nonce()
	if err != nil {
		var pe *PreconditionError
		if errors.As(err, &pe) {
			return nil
		}
		return err
	}
	if claims.Nonce != nonce {
		return &ProtocolInvariantError{Err: errors.Wrapf(ErrNonceMismatch,
			nonceErr, claims.Nonce, nonce)}
	}
	return nil
}

// Claims returns the claims of the stored identity token, or nil when
// there is none.
func (c *Client) Claims() (*oauth.Claims, error) {
	token, ok, err := c.store.GetString(storage.SessionScope,
		storage.IDTokenKey)
	if err != nil {
		return nil, errors.WithMessagef(err, loadErr, "identity token")
	}
	if !ok {
		return nil, nil
	}
	claims, err := oauth.Decode(token)
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	return &claims, nil
}

// EnsureSalt returns the durable user salt, generating and persisting it
// the first time. The salt keeps the address stable across sessions.
func (c *Client) EnsureSalt() (string, error) {
	c.mux.Lock()
	defer c.mux.Unlock()

	salt, ok, err := c.salt()
	if err != nil || ok {
		return salt, err
	}
	salt, err = zkcrypto.GenerateRandomness(c.rng)
	if err != nil {
		return "", err
	}
	err = c.store.SetString(storage.DurableScope, storage.UserSaltKey, salt)
	if err != nil {
		return "", errors.WithMessage(err, storeSaltErr)
	}
	jww.INFO.Printf("Generated user salt")
	return salt, nil
}

func (c *Client) salt() (string, bool, error) {
	salt, ok, err := c.store.GetString(storage.DurableScope,
		storage.UserSaltKey)
	if err != nil {
		return "", false, errors.WithMessagef(err, loadErr, "salt")
	}
	return salt, ok, nil
}

// Address derives the ledger address of the logged-in user. It needs the
// identity token claims and the salt.
func (c *Client) Address() (string, error) {
	claims, err := c.Claims()
	if err != nil {
		return "", err
	}
	salt, hasSalt, err := c.salt()
	if err != nil {
		return "", err
	}

	var missing []string
	if claims == nil {
		missing = append(missing, "claims")
	}
	if !hasSalt {
		missing = append(missing, "salt")
	}
	if len(missing) > 0 {
		return "", &PreconditionError{Op: "derive address", Missing: missing}
	}
	return zkcrypto.DeriveAddress(claims.Issuer, claims.Audience,
		claims.Subject, salt)
}

// Status summarises which steps of the pipeline are complete.
type Status struct {
	Session       string
	KeyPair       string
	Randomness    bool
	MaxEpoch      uint64
	Nonce         string
	Claims        *oauth.Claims
	Salt          bool
	Address       string
	Proof         bool
	Balance       string
	Transaction   string
	LastDigest    string
	SessionMemory bool
}

// Status reports the progress of the session. Steps whose inputs are
// missing are left empty.
func (c *Client) Status() Status {
	s := Status{SessionMemory: c.store.SessionInMemory()}

	if kp, err := c.keys.Restore(); err == nil && kp != nil {
		s.KeyPair = kp.PublicKeyBase64()
	}
	_, s.Randomness, _ = c.keys.RestoreRandomness()
	s.MaxEpoch, _, _ = c.epochs.Stored()
	s.Nonce, _ = c.Nonce()
	s.Claims, _ = c.Claims()
	_, s.Salt, _ = c.salt()
	s.Address, _ = c.Address()
	if proof, _ := c.Proof(); proof != nil {
		s.Proof = true
	}
	s.Transaction = c.flow.State().String()

	c.mux.Lock()
	s.Session = c.generation.String()
	if c.balance != nil {
		s.Balance = c.balance.String()
	}
	s.LastDigest = c.lastDigest
	c.mux.Unlock()
	return s
}
