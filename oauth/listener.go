////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package oauth

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

const listenerShutdownTimeout = 2 * time.Second

// CallbackListener serves the redirect URI on the local machine and hands
// back the first redirect it receives.
type CallbackListener struct {
	redirectURI *url.URL
	listener    net.Listener
	server      *http.Server
	received    chan string
}

// ListenForCallback starts a listener on the host and port of redirectURI.
func ListenForCallback(redirectURI string) (*CallbackListener, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return nil, errors.WithMessage(err, "invalid redirect URI")
	}
	if u.Scheme != "http" {
		return nil, errors.Errorf("can only listen on http redirect "+
			"URIs, got %q", u.Scheme)
	}
	host := u.Host
	if u.Port() == "" {
		host = net.JoinHostPort(u.Hostname(), "80")
	}

	l, err := net.Listen("tcp", host)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to listen on %s", host)
	}

	cl := &CallbackListener{
		redirectURI: u,
		listener:    l,
		received:    make(chan string, 1),
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	mux := http.NewServeMux()
	mux.HandleFunc(path, cl.handle)
	cl.server = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := cl.server.Serve(l); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			jww.ERROR.Printf("Redirect listener stopped: %+v", err)
		}
	}()
	jww.INFO.Printf("Listening for the login redirect on %s", l.Addr())
	return cl, nil
}

// Addr returns the address the listener is bound to.
func (cl *CallbackListener) Addr() net.Addr {
	return cl.listener.Addr()
}

func (cl *CallbackListener) handle(w http.ResponseWriter, r *http.Request) {
	full := *cl.redirectURI
	full.RawQuery = r.URL.RawQuery
	select {
	case cl.received <- full.String():
		fmt.Fprintln(w, "Login received, you can return to the terminal.")
	default:
		http.Error(w, "login already received", http.StatusConflict)
	}
}

// Wait blocks until a redirect arrives or ctx is done, then shuts the
// listener down.
func (cl *CallbackListener) Wait(ctx context.Context) (string, error) {
	defer cl.Close()
	select {
	case raw := <-cl.received:
		return raw, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Close stops the listener.
func (cl *CallbackListener) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(),
		listenerShutdownTimeout)
	defer cancel()
	return cl.server.Shutdown(ctx)
}
