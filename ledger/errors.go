////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package ledger

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/thedevsaddam/gojsonq"
)

// RemoteError is a failure reported by the fullnode or the faucet. It holds
// either a JSON-RPC error code or an HTTP status.
type RemoteError struct {
	StatusCode int
	Code       int

	// Message is the server-supplied message, if there was one.
	Message string

	// Body is the raw reply, used when there is no message.
	Body string
}

// Error returns the server's message verbatim when there is one.
func (e *RemoteError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%d %s: %s", e.StatusCode,
			http.StatusText(e.StatusCode), e.Body)
	}
	return fmt.Sprintf("remote error code %d", e.Code)
}

// handleError converts an HTTP error reply into a RemoteError. Faucet replies
// carry their message in "error", fullnode replies in "message" or
// "error.message".
func handleError(status int, body []byte) error {
	e := &RemoteError{StatusCode: status,
		Body: strings.TrimSpace(string(body))}
	for _, path := range []string{"error.message", "error", "message"} {
		jq := gojsonq.New().FromString(e.Body)
		if jq.Error() != nil {
			return e
		}
		if msg, ok := jq.Find(path).(string); ok && msg != "" {
			e.Message = msg
			break
		}
	}
	return e
}
