////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package zkcrypto

import (
	"encoding/base64"
	"io"
	"math/big"

	"github.com/cloudflare/circl/sign/ed25519"
	"github.com/pkg/errors"
)

const (
	// RandomnessLength is the number of random bytes behind a randomness
	// or salt value.
	RandomnessLength = 16

	// NonceLength is the number of bytes of the commitment kept in the
	// nonce. Its base64url form is 27 characters.
	NonceLength = 20

	shortReadErr = "short read generating randomness: %d != %d"
)

// GenerateRandomness reads RandomnessLength bytes from rng and returns them
// as a decimal integer string. The same format is used for the user salt.
func GenerateRandomness(rng io.Reader) (string, error) {
	b := make([]byte, RandomnessLength)
	n, err := io.ReadFull(rng, b)
	if err != nil {
		if n != RandomnessLength {
			return "", errors.WithMessagef(err, shortReadErr, n,
				RandomnessLength)
		}
		return "", err
	}
	return new(big.Int).SetBytes(b).String(), nil
}

// ComputeNonce derives the OAuth nonce committing to the ephemeral public
// key, the expiry epoch and the randomness. It is pure: the same triple
// always yields the same nonce.
func ComputeNonce(pub ed25519.PublicKey, maxEpoch uint64,
	randomness string) (string, error) {
	if len(pub) != ed25519.PublicKeySize {
		return "", errors.Errorf(publicLengthErr, len(pub),
			ed25519.PublicKeySize)
	}
	r, err := parseFieldElement("randomness", randomness)
	if err != nil {
		return "", err
	}

	// The 256-bit key does not fit in the field, so it is committed as two
	// 128-bit halves.
	pk := new(big.Int).SetBytes(pub)
	hi := new(big.Int).Rsh(pk, 128)
	lo := new(big.Int).And(pk,
		new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1)))

	z, err := poseidonHash(hi, lo, new(big.Int).SetUint64(maxEpoch), r)
	if err != nil {
		return "", err
	}

	var full [fieldElementSize]byte
	z.FillBytes(full[:])
	return base64.RawURLEncoding.EncodeToString(
		full[fieldElementSize-NonceLength:]), nil
}
