////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package oauth talks to the OpenID identity provider: it builds the
// authorization URL carrying the session nonce, exchanges the returned code
// for an identity token and decodes that token's claims.
package oauth

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

// Default endpoints of the identity provider the demo targets.
const (
	DefaultAuthorizeURL = "https://kauth.kakao.com/oauth/authorize"
	DefaultTokenURL     = "https://kauth.kakao.com/oauth/token"
)

// ErrExchange is the kind of every token exchange failure.
var ErrExchange = errors.New("token exchange failed")

// Error messages.
const (
	emptyNonceErr    = "cannot build an authorization URL without a nonce"
	emptyCodeErr     = "authorization code is empty"
	badStatusErr     = "token endpoint returned %s: %s"
	missingTokenErr  = "token response has no id_token"
	maxErrorBodySize = 512
)

// Config describes the provider and this client's registration with it.
type Config struct {
	ClientID     string
	RedirectURI  string
	AuthorizeURL string
	TokenURL     string
}

// Client exchanges authorization codes with the provider.
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient returns a Client. A nil httpClient selects http.DefaultClient.
func NewClient(config Config, httpClient *http.Client) *Client {
	if config.AuthorizeURL == "" {
		config.AuthorizeURL = DefaultAuthorizeURL
	}
	if config.TokenURL == "" {
		config.TokenURL = DefaultTokenURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{config: config, httpClient: httpClient}
}

// AuthorizationURL builds the outbound login URL committing to nonce.
func (c *Client) AuthorizationURL(nonce string) (string, error) {
	if nonce == "" {
		return "", errors.New(emptyNonceErr)
	}
	u, err := url.Parse(c.config.AuthorizeURL)
	if err != nil {
		return "", errors.WithMessage(err, "invalid authorize URL")
	}
	query := url.Values{}
	query.Set("client_id", c.config.ClientID)
	query.Set("redirect_uri", c.config.RedirectURI)
	query.Set("response_type", "code")
	query.Set("scope", "openid")
	query.Set("nonce", nonce)
	u.RawQuery = query.Encode()
	return u.String(), nil
}

// tokenResponse is the subset of the token endpoint's reply this client
// reads.
type tokenResponse struct {
	IDToken     string `json:"id_token"`
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// ExchangeCodeForToken posts the authorization code to the token endpoint
// and returns the raw identity token. Every failure wraps ErrExchange.
func (c *Client) ExchangeCodeForToken(ctx context.Context, code string) (
	string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", errors.Wrap(ErrExchange, emptyCodeErr)
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", c.config.ClientID)
	form.Set("redirect_uri", c.config.RedirectURI)
	form.Set("code", code)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.config.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", errors.Wrap(ErrExchange, err.Error())
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrap(ErrExchange, err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(ErrExchange, err.Error())
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(body) > maxErrorBodySize {
			body = body[:maxErrorBodySize]
		}
		return "", errors.Wrapf(ErrExchange, badStatusErr, resp.Status,
			strings.TrimSpace(string(body)))
	}

	var payload tokenResponse
	if err = json.Unmarshal(body, &payload); err != nil {
		return "", errors.Wrap(ErrExchange, err.Error())
	}
	if payload.IDToken == "" {
		return "", errors.Wrap(ErrExchange, missingTokenErr)
	}
	jww.DEBUG.Printf("Received identity token of %d bytes",
		len(payload.IDToken))
	return payload.IDToken, nil
}
