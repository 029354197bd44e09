///////////////////////////////////////////////////////////////////////////////
// Copyright © 2020 xx network SEZC                                          //
//                                                                           //
// Use of this source code is governed by a license that can be found in the //
// LICENSE file                                                              //
///////////////////////////////////////////////////////////////////////////////

// Session object definition

package storage

import (
	"sync"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/elixxir/ekv"
	"gitlab.com/elixxir/zklogin/storage/versioned"
)

// Storage layout. Key names match the ones the browser demo used so a
// session exported from it reads the same.
const (
	KeyPairKey    = "demo_ephemeral_key_pair"
	RandomnessKey = "demo_randomness_key_pair"
	MaxEpochKey   = "demo_max_epoch_key_pair"
	UserSaltKey   = "demo_user_salt_key_pair"

	// The identity token and its proof are kept for the session so later
	// steps can resume from a session directory.
	IDTokenKey = "zklogin_id_token"
	ProofKey   = "zklogin_proof"

	currentValueVersion = 0
)

// Error messages.
const (
	unknownKeyErr   = "key %q is not part of the %s storage layout"
	sessionStoreErr = "failed to open session-scoped store in %s"
	durableStoreErr = "failed to open durable store in %s"
	resetErr        = "failed to delete %s key %q"
)

// Scope selects which of the two storages a value lives in.
type Scope uint8

const (
	// SessionScope holds short-lived secrets: the ephemeral private key, the
	// randomness and the token material bound to them. It does not outlive
	// the login session.
	SessionScope Scope = iota

	// DurableScope holds values which must survive across sessions to keep
	// the derived address stable: the expiry epoch and the user salt.
	DurableScope
)

// String returns a human-readable name for the scope.
func (s Scope) String() string {
	switch s {
	case SessionScope:
		return "session"
	case DurableScope:
		return "durable"
	default:
		return "unknown"
	}
}

var layout = map[Scope][]string{
	SessionScope: {KeyPairKey, RandomnessKey, IDTokenKey, ProofKey},
	DurableScope: {MaxEpochKey, UserSaltKey},
}

// Session is the persistence layer of the login flow. It is backed by two
// independent key/value stores with different lifetimes.
type Session struct {
	session *versioned.KV
	durable *versioned.KV

	mux sync.RWMutex
}

// New builds a Session over the given session-scoped and durable stores.
func New(session, durable ekv.KeyValue) *Session {
	return &Session{
		session: versioned.NewKV(session),
		durable: versioned.NewKV(durable),
	}
}

// Open builds a Session backed by encrypted filestores. An empty sessionDir
// keeps the session scope in memory so it ends with the process.
func Open(sessionDir, durableDir, password string) (*Session, error) {
	var sessionKV ekv.KeyValue
	if sessionDir == "" {
		sessionKV = ekv.MakeMemstore()
	} else {
		fs, err := ekv.NewFilestore(sessionDir, password)
		if err != nil {
			return nil, errors.WithMessagef(err, sessionStoreErr,
				sessionDir)
		}
		sessionKV = fs
	}

	durableKV, err := ekv.NewFilestore(durableDir, password)
	if err != nil {
		return nil, errors.WithMessagef(err, durableStoreErr, durableDir)
	}

	jww.DEBUG.Printf("Opened storage (session in memory: %t, durable: %s)",
		sessionDir == "", durableDir)
	return New(sessionKV, durableKV), nil
}

// SetString stores value under key in the given scope.
func (s *Session) SetString(scope Scope, key, value string) error {
	kv, err := s.kvFor(scope, key)
	if err != nil {
		return err
	}

	s.mux.Lock()
	defer s.mux.Unlock()
	return kv.Set(key, versioned.NewObject(currentValueVersion, []byte(value)))
}

// GetString loads the value stored under key. The boolean is false when no
// value has been stored; this is not an error.
func (s *Session) GetString(scope Scope, key string) (string, bool, error) {
	kv, err := s.kvFor(scope, key)
	if err != nil {
		return "", false, err
	}

	s.mux.RLock()
	defer s.mux.RUnlock()
	obj, err := kv.Get(key, currentValueVersion)
	if err != nil {
		if !kv.Exists(err) {
			return "", false, nil
		}
		return "", false, err
	}
	return string(obj.Data), true, nil
}

// Delete removes key from the given scope.
func (s *Session) Delete(scope Scope, key string) error {
	kv, err := s.kvFor(scope, key)
	if err != nil {
		return err
	}

	s.mux.Lock()
	defer s.mux.Unlock()
	return kv.Delete(key, currentValueVersion)
}

// Reset clears both scopes entirely. It is the only recovery action after
// an unrecoverable protocol error.
func (s *Session) Reset() error {
	s.mux.Lock()
	defer s.mux.Unlock()

	for _, scope := range []Scope{SessionScope, DurableScope} {
		kv := s.scopeKV(scope)
		for _, key := range layout[scope] {
			if err := kv.Delete(key, currentValueVersion); err != nil {
				return errors.WithMessagef(err, resetErr, scope, key)
			}
		}
	}
	jww.INFO.Printf("Cleared session and durable storage")
	return nil
}

// SessionInMemory reports whether the session scope ends with the process.
func (s *Session) SessionInMemory() bool {
	return s.session.IsMemStore()
}

func (s *Session) kvFor(scope Scope, key string) (*versioned.KV, error) {
	for _, k := range layout[scope] {
		if k == key {
			return s.scopeKV(scope), nil
		}
	}
	return nil, errors.Errorf(unknownKeyErr, key, scope)
}

func (s *Session) scopeKV(scope Scope) *versioned.KV {
	if scope == DurableScope {
		return s.durable
	}
	return s.session
}
