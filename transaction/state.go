////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package transaction

import "strconv"

// State is a stage of the signing and submission flow.
type State uint8

const (
	Idle State = iota
	Built
	Signed
	CompositeSigned
	Submitted
	Confirmed
	Failed
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Built:
		return "built"
	case Signed:
		return "signed"
	case CompositeSigned:
		return "composite-signed"
	case Submitted:
		return "submitted"
	case Confirmed:
		return "confirmed"
	case Failed:
		return "failed"
	default:
		return "INVALID STATE " + strconv.Itoa(int(s))
	}
}

// Terminal reports whether the flow has finished.
func (s State) Terminal() bool {
	return s == Confirmed || s == Failed
}
