////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package zkcrypto

import (
	"math/big"

	"github.com/iden3/go-iden3-crypto/constants"
	"github.com/iden3/go-iden3-crypto/poseidon"
	"github.com/pkg/errors"
)

const (
	fieldElementSize = 32

	// packWidth is the number of string bytes packed into one field
	// element.
	packWidth = 31

	// poseidonWidth is the most inputs a single Poseidon call takes.
	poseidonWidth = 16
)

// fieldModulus is the order of the BN254 scalar field the proving circuit
// operates in.
var fieldModulus = constants.Q

// ErrNotFieldElement is returned when a value does not fit in the field.
var ErrNotFieldElement = errors.New("value is not a field element")

// poseidonHash hashes up to 32 field elements. More than 16 inputs are
// hashed as two halves whose digests are hashed again.
func poseidonHash(inputs ...*big.Int) (*big.Int, error) {
	for i, in := range inputs {
		if in == nil || in.Sign() < 0 || in.Cmp(fieldModulus) >= 0 {
			return nil, errors.Wrapf(ErrNotFieldElement, "input %d", i)
		}
	}

	switch {
	case len(inputs) == 0:
		return nil, errors.New("no inputs to hash")
	case len(inputs) <= poseidonWidth:
		return poseidon.Hash(inputs)
	case len(inputs) <= 2*poseidonWidth:
		first, err := poseidon.Hash(inputs[:poseidonWidth])
		if err != nil {
			return nil, err
		}
		second, err := poseidon.Hash(inputs[poseidonWidth:])
		if err != nil {
			return nil, err
		}
		return poseidon.Hash([]*big.Int{first, second})
	}
	return nil, errors.Errorf("cannot hash %d inputs", len(inputs))
}

// hashASCIIToField hashes an ASCII string of at most maxLen bytes into a
// field element. The string is zero padded to maxLen and packed by
// packASCII.
func hashASCIIToField(s string, maxLen int) (*big.Int, error) {
	chunks, err := packASCII(s, maxLen)
	if err != nil {
		return nil, err
	}
	return poseidonHash(chunks...)
}

// packASCII zero pads s to maxLen bytes and splits it into big-endian
// chunks of packWidth bytes counted from the end, so only the first chunk
// may be short.
func packASCII(s string, maxLen int) ([]*big.Int, error) {
	if len(s) > maxLen {
		return nil, errors.Errorf("string of length %d exceeds the "+
			"maximum of %d", len(s), maxLen)
	}
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return nil, errors.Errorf("string %q is not ASCII", s)
		}
	}

	padded := make([]byte, maxLen)
	copy(padded, s)

	chunks := make([]*big.Int, (maxLen+packWidth-1)/packWidth)
	end := maxLen
	for i := len(chunks) - 1; i >= 0; i-- {
		start := end - packWidth
		if start < 0 {
			start = 0
		}
		chunks[i] = new(big.Int).SetBytes(padded[start:end])
		end = start
	}
	return chunks, nil
}

// parseFieldElement parses a decimal string into a field element.
func parseFieldElement(name, s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, errors.Errorf("%s %q is not a decimal integer", name, s)
	}
	if v.Sign() < 0 || v.Cmp(fieldModulus) >= 0 {
		return nil, errors.Wrap(ErrNotFieldElement, name)
	}
	return v, nil
}
