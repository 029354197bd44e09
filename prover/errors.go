////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package prover

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/thedevsaddam/gojsonq"
)

// ServerError is a non-2xx reply from the prover.
type ServerError struct {
	StatusCode int

	// Message is the server-supplied message, if the body had one.
	Message string

	// Body is the raw reply, used when there is no message.
	Body string
}

// Error returns the server's message verbatim when there is one.
func (e *ServerError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("prover returned %d %s: %s", e.StatusCode,
		http.StatusText(e.StatusCode), e.Body)
}

// handleError converts an error reply into a ServerError, pulling the
// message out of a JSON body when present.
func handleError(status int, body []byte) error {
	e := &ServerError{StatusCode: status, Body: strings.TrimSpace(string(body))}
	jq := gojsonq.New().FromString(e.Body)
	if jq.Error() != nil {
		return e
	}
	if msg, ok := jq.Find("message").(string); ok {
		e.Message = msg
	}
	return e
}
