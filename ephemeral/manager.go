////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package ephemeral manages the short-lived signing key pair and the
// randomness of a login session. Both live in session-scoped storage.
package ephemeral

import (
	"io"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/elixxir/zklogin/storage"
	"gitlab.com/elixxir/zklogin/zkcrypto"
)

// Error messages.
const (
	storeKeyErr        = "failed to store ephemeral key pair"
	loadKeyErr         = "failed to load ephemeral key pair"
	restoreKeyErr      = "stored ephemeral key pair is malformed"
	storeRandomnessErr = "failed to store randomness"
	loadRandomnessErr  = "failed to load randomness"
	badRandomnessErr   = "stored randomness %q is malformed"
)

// Manager generates and restores the session's ephemeral key pair and
// randomness.
type Manager struct {
	store *storage.Session
	rng   io.Reader
}

// NewManager returns a Manager persisting into store and drawing entropy
// from rng.
func NewManager(store *storage.Session, rng io.Reader) *Manager {
	return &Manager{store: store, rng: rng}
}

// Generate creates a fresh key pair and persists it, overwriting any key of
// a previous start.
func (m *Manager) Generate() (*zkcrypto.KeyPair, error) {
	kp, err := zkcrypto.GenerateKeyPair(m.rng)
	if err != nil {
		return nil, err
	}
	err = m.store.SetString(storage.SessionScope, storage.KeyPairKey,
		kp.ExportSecret())
	if err != nil {
		return nil, errors.WithMessage(err, storeKeyErr)
	}
	jww.DEBUG.Printf("Generated ephemeral key pair %s",
		kp.PublicKeyBase64())
	return kp, nil
}

// Restore reads back the stored key pair. It returns nil and no error when
// nothing is stored; malformed stored material is an error.
func (m *Manager) Restore() (*zkcrypto.KeyPair, error) {
	secret, ok, err := m.store.GetString(storage.SessionScope,
		storage.KeyPairKey)
	if err != nil {
		return nil, errors.WithMessage(err, loadKeyErr)
	}
	if !ok {
		return nil, nil
	}
	kp, err := zkcrypto.KeyPairFromSecret(secret)
	if err != nil {
		return nil, errors.WithMessage(err, restoreKeyErr)
	}
	return kp, nil
}

// GenerateRandomness creates fresh randomness and persists it.
func (m *Manager) GenerateRandomness() (string, error) {
	r, err := zkcrypto.GenerateRandomness(m.rng)
	if err != nil {
		return "", err
	}
	err = m.store.SetString(storage.SessionScope, storage.RandomnessKey, r)
	if err != nil {
		return "", errors.WithMessage(err, storeRandomnessErr)
	}
	return r, nil
}

// RestoreRandomness reads back the stored randomness. The boolean is false
// when nothing is stored.
func (m *Manager) RestoreRandomness() (string, bool, error) {
	r, ok, err := m.store.GetString(storage.SessionScope,
		storage.RandomnessKey)
	if err != nil {
		return "", false, errors.WithMessage(err, loadRandomnessErr)
	}
	if !ok {
		return "", false, nil
	}
	if r == "" || !isDecimal(r) {
		return "", false, errors.Errorf(badRandomnessErr, r)
	}
	return r, true, nil
}

func isDecimal(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
