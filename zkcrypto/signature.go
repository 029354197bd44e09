////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package zkcrypto

import (
	"encoding/base64"

	"github.com/cloudflare/circl/sign/ed25519"
	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
)

// Signature scheme flags prefixed to serialized signatures.
const (
	SignatureSchemeEd25519 byte = 0x00
	SignatureSchemeZkLogin byte = 0x05
)

// transactionIntent is the intent prefix of a transaction signing request:
// scope TransactionData, version V0, app id Sui.
var transactionIntent = []byte{0, 0, 0}

// Error messages.
const (
	emptyTxErr         = "cannot sign empty transaction bytes"
	userSigEncodingErr = "user signature is not valid base64"
	userSigLengthErr   = "user signature has length %d; expected %d"
	userSigSchemeErr   = "user signature has scheme flag %#x; expected %#x"
)

// ErrBadUserSignature is returned when a serialized user signature does not
// verify.
var ErrBadUserSignature = errors.New("user signature does not verify")

// IntentDigest is the message actually signed for a transaction.
func IntentDigest(txBytes []byte) [blake2b.Size256]byte {
	msg := make([]byte, 0, len(transactionIntent)+len(txBytes))
	msg = append(msg, transactionIntent...)
	msg = append(msg, txBytes...)
	return blake2b.Sum256(msg)
}

// SignTransaction signs the transaction bytes with the ephemeral key and
// returns the serialized user signature: base64(flag || sig || public key).
func SignTransaction(kp *KeyPair, txBytes []byte) (string, error) {
	if len(txBytes) == 0 {
		return "", errors.New(emptyTxErr)
	}
	digest := IntentDigest(txBytes)
	sig := kp.Sign(digest[:])

	out := make([]byte, 0, 1+ed25519.SignatureSize+ed25519.PublicKeySize)
	out = append(out, SignatureSchemeEd25519)
	out = append(out, sig...)
	out = append(out, kp.public...)
	return base64.StdEncoding.EncodeToString(out), nil
}

// VerifyUserSignature checks a serialized user signature over txBytes and
// returns the public key it was made with.
func VerifyUserSignature(serialized string, txBytes []byte) (
	ed25519.PublicKey, error) {
	raw, err := base64.StdEncoding.DecodeString(serialized)
	if err != nil {
		return nil, errors.Wrap(ErrBadUserSignature, userSigEncodingErr)
	}
	expected := 1 + ed25519.SignatureSize + ed25519.PublicKeySize
	if len(raw) != expected {
		return nil, errors.Wrapf(ErrBadUserSignature, userSigLengthErr,
			len(raw), expected)
	}
	if raw[0] != SignatureSchemeEd25519 {
		return nil, errors.Wrapf(ErrBadUserSignature, userSigSchemeErr,
			raw[0], SignatureSchemeEd25519)
	}
	sig := raw[1 : 1+ed25519.SignatureSize]
	pub := ed25519.PublicKey(raw[1+ed25519.SignatureSize:])
	digest := IntentDigest(txBytes)
	if !ed25519.Verify(pub, digest[:], sig) {
		return nil, ErrBadUserSignature
	}
	return pub, nil
}
