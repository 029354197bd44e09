////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package zkcrypto contains the pure primitives of the zkLogin protocol:
// ephemeral key encoding, randomness, the OAuth nonce commitment, the address
// seed and address derivation, and the signature encodings the ledger
// accepts. Nothing in this package performs I/O other than reading from a
// caller-supplied random source.
package zkcrypto

import (
	"bytes"
	"encoding/base64"
	"io"
	"math/big"

	"github.com/cloudflare/circl/sign/ed25519"
	"github.com/pkg/errors"
)

// Error messages.
const (
	keyGenErr       = "failed to generate ephemeral key pair"
	secretEncodeErr = "ephemeral secret is not valid base64"
	secretLengthErr = "ephemeral secret has length %d; expected %d or %d"
	publicLengthErr = "public key has length %d; expected %d"
)

// ErrMalformedSecret is returned when stored key material cannot be turned
// back into a key pair.
var ErrMalformedSecret = errors.New("malformed ephemeral secret")

// KeyPair is an Ed25519 signing key pair used for a single login session.
type KeyPair struct {
	private ed25519.PrivateKey
	public  ed25519.PublicKey
}

// GenerateKeyPair creates a fresh key pair from rng.
func GenerateKeyPair(rng io.Reader) (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rng)
	if err != nil {
		return nil, errors.WithMessage(err, keyGenErr)
	}
	return &KeyPair{private: priv, public: pub}, nil
}

// KeyPairFromSecret rebuilds a key pair from the output of ExportSecret. A
// full 64-byte private key is also accepted.
func KeyPairFromSecret(encoded string) (*KeyPair, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errors.Wrap(ErrMalformedSecret, secretEncodeErr)
	}

	var priv ed25519.PrivateKey
	switch len(raw) {
	case ed25519.SeedSize:
		priv = ed25519.NewKeyFromSeed(raw)
	case ed25519.PrivateKeySize:
		priv = ed25519.NewKeyFromSeed(raw[:ed25519.SeedSize])
		if !bytes.Equal(priv, raw) {
			return nil, errors.Wrap(ErrMalformedSecret,
				"private key does not match its seed")
		}
	default:
		return nil, errors.Wrapf(ErrMalformedSecret, secretLengthErr,
			len(raw), ed25519.SeedSize, ed25519.PrivateKeySize)
	}

	pub := make(ed25519.PublicKey, ed25519.PublicKeySize)
	copy(pub, priv[ed25519.SeedSize:])
	return &KeyPair{private: priv, public: pub}, nil
}

// ExportSecret returns the base64 encoded 32-byte seed.
func (k *KeyPair) ExportSecret() string {
	return base64.StdEncoding.EncodeToString(k.private.Seed())
}

// PublicKey returns a copy of the public key.
func (k *KeyPair) PublicKey() ed25519.PublicKey {
	return append(ed25519.PublicKey(nil), k.public...)
}

// PublicKeyBase64 returns the standard base64 form of the public key.
func (k *KeyPair) PublicKeyBase64() string {
	return base64.StdEncoding.EncodeToString(k.public)
}

// Sign signs msg with the private key.
func (k *KeyPair) Sign(msg []byte) []byte {
	return ed25519.Sign(k.private, msg)
}

// Equal reports whether both key pairs hold the same private key.
func (k *KeyPair) Equal(other *KeyPair) bool {
	if k == nil || other == nil {
		return k == other
	}
	return bytes.Equal(k.private, other.private)
}

// ExtendedPublicKey is the encoding of the ephemeral public key sent to the
// prover: the key read as a big-endian integer, in decimal.
func ExtendedPublicKey(pub ed25519.PublicKey) (string, error) {
	if len(pub) != ed25519.PublicKeySize {
		return "", errors.Errorf(publicLengthErr, len(pub),
			ed25519.PublicKeySize)
	}
	return new(big.Int).SetBytes(pub).String(), nil
}
