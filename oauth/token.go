////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package oauth

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// ErrDecode is the kind of every token decoding failure.
var ErrDecode = errors.New("malformed identity token")

// Claims are the identity token claims the protocol needs.
type Claims struct {
	Issuer   string
	Audience string
	Subject  string
	Nonce    string
}

type idTokenClaims struct {
	jwt.RegisteredClaims
	Nonce string `json:"nonce,omitempty"`
}

// Decode parses the payload of an identity token. The signature is not
// verified here; the prover and the ledger check it.
func Decode(token string) (Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, errors.Wrap(ErrDecode, "token is empty")
	}

	var parsed idTokenClaims
	_, _, err := jwt.NewParser().ParseUnverified(token, &parsed)
	if err != nil {
		return Claims{}, errors.Wrap(ErrDecode, err.Error())
	}

	var missing []string
	if parsed.Issuer == "" {
		missing = append(missing, "iss")
	}
	if len(parsed.Audience) == 0 || parsed.Audience[0] == "" {
		missing = append(missing, "aud")
	}
	if parsed.Subject == "" {
		missing = append(missing, "sub")
	}
	if len(missing) > 0 {
		return Claims{}, errors.Wrapf(ErrDecode, "missing claims: %s",
			strings.Join(missing, ", "))
	}
	if len(parsed.Audience) > 1 {
		return Claims{}, errors.Wrapf(ErrDecode,
			"expected a single audience, got %d", len(parsed.Audience))
	}

	return Claims{
		Issuer:   parsed.Issuer,
		Audience: parsed.Audience[0],
		Subject:  parsed.Subject,
		Nonce:    parsed.Nonce,
	}, nil
}
