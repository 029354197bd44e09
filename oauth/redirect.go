////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package oauth

import (
	"net/url"

	"github.com/pkg/errors"
)

// Redirect is what the provider sent back to the redirect URI. Depending on
// the flow it carries an authorization code in the query or the identity
// token itself in the fragment.
type Redirect struct {
	Code    string
	IDToken string
}

// ParseRedirect extracts the code or identity token from an inbound redirect
// URL. Provider errors in the redirect are returned as errors.
func ParseRedirect(raw string) (Redirect, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Redirect{}, errors.Wrapf(ErrDecode, "invalid redirect URL: %v",
			err)
	}

	query := u.Query()
	fragment, err := url.ParseQuery(u.Fragment)
	if err != nil {
		return Redirect{}, errors.Wrapf(ErrDecode,
			"invalid redirect fragment: %v", err)
	}

	for _, values := range []url.Values{query, fragment} {
		if e := values.Get("error"); e != "" {
			return Redirect{}, errors.Errorf("provider returned %s: %s", e,
				values.Get("error_description"))
		}
	}

	r := Redirect{Code: query.Get("code"), IDToken: fragment.Get("id_token")}
	if r.Code == "" && r.IDToken == "" {
		return Redirect{}, errors.Wrap(ErrDecode, "redirect carries "+
			"neither a code nor an id_token")
	}
	return r, nil
}
