////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package ledger

import "math/big"

// MistPerSui is the number of MIST in one SUI.
const MistPerSui = 1_000_000_000

const displayDecimals = 6

// FormatSUI renders a MIST amount as SUI with six decimals. A nil amount is
// rendered as zero.
func FormatSUI(mist *big.Int) string {
	if mist == nil {
		mist = new(big.Int)
	}
	r := new(big.Rat).SetFrac(mist, big.NewInt(MistPerSui))
	return r.FloatString(displayDecimals)
}
