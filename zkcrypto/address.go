////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package zkcrypto

import (
	"encoding/hex"
	"math/big"

	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
)

// Claim-length bounds of the proving circuit.
const (
	MaxKeyClaimNameLength  = 32
	MaxKeyClaimValueLength = 115
	MaxAudValueLength      = 145
	maxIssuerLength        = 255
)

// KeyClaimName is the token claim the address is bound to.
const KeyClaimName = "sub"

// ErrMissingAddressInput is returned when a claim or the salt is empty.
var ErrMissingAddressInput = errors.New("address derivation input missing")

// GenAddressSeed computes the address seed from the salt and the key claim
// of the identity token.
func GenAddressSeed(salt, name, value, aud string) (*big.Int, error) {
	if salt == "" || name == "" || value == "" || aud == "" {
		return nil, ErrMissingAddressInput
	}
	s, err := parseFieldElement("salt", salt)
	if err != nil {
		return nil, err
	}
	hashedSalt, err := poseidonHash(s)
	if err != nil {
		return nil, err
	}
	hashedName, err := hashASCIIToField(name, MaxKeyClaimNameLength)
	if err != nil {
		return nil, errors.WithMessage(err, "key claim name")
	}
	hashedValue, err := hashASCIIToField(value, MaxKeyClaimValueLength)
	if err != nil {
		return nil, errors.WithMessage(err, "key claim value")
	}
	hashedAud, err := hashASCIIToField(aud, MaxAudValueLength)
	if err != nil {
		return nil, errors.WithMessage(err, "audience")
	}
	return poseidonHash(hashedName, hashedValue, hashedAud, hashedSalt)
}

// ComputeAddress returns the on-chain address for an issuer and address
// seed: blake2b-256 over the zkLogin flag, the length-prefixed issuer and the
// 32-byte big-endian seed.
func ComputeAddress(iss string, seed *big.Int) (string, error) {
	iss = NormalizeIssuer(iss)
	if iss == "" || seed == nil {
		return "", ErrMissingAddressInput
	}
	if len(iss) > maxIssuerLength {
		return "", errors.Errorf("issuer of length %d is too long", len(iss))
	}
	if seed.Sign() < 0 || seed.Cmp(fieldModulus) >= 0 {
		return "", errors.Wrap(ErrNotFieldElement, "address seed")
	}

	h, _ := blake2b.New256(nil)
	h.Write([]byte{SignatureSchemeZkLogin, byte(len(iss))})
	h.Write([]byte(iss))
	var buf [fieldElementSize]byte
	seed.FillBytes(buf[:])
	h.Write(buf[:])
	return "0x" + hex.EncodeToString(h.Sum(nil)), nil
}

// DeriveAddress is the deterministic address of the (issuer, audience,
// subject, salt) tuple.
func DeriveAddress(iss, aud, sub, salt string) (string, error) {
	seed, err := GenAddressSeed(salt, KeyClaimName, sub, aud)
	if err != nil {
		return "", err
	}
	return ComputeAddress(iss, seed)
}

// NormalizeIssuer maps the legacy Google issuer to its URL form so both
// spellings derive the same address.
func NormalizeIssuer(iss string) string {
	if iss == "accounts.google.com" {
		return "https://accounts.google.com"
	}
	return iss
}
