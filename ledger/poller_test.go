////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package ledger

import (
	"context"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
)

type countingSource struct {
	calls int64
	fail  bool
}

func (s *countingSource) Balance(context.Context, string) (*big.Int, error) {
	n := atomic.AddInt64(&s.calls, 1)
	if s.fail {
		return nil, errors.New("unreachable")
	}
	return big.NewInt(n), nil
}

// Tests that the poller delivers results repeatedly and stops on Close.
func TestBalancePoller(t *testing.T) {
	source := &countingSource{}
	results := make(chan *big.Int, 16)
	stop := NewBalancePoller(source, 10*time.Millisecond).Start("0xabc",
		func(balance *big.Int, err error) {
			if err != nil {
				t.Errorf("Unexpected error: %+v", err)
			}
			results <- balance
		})

	for i := int64(1); i <= 3; i++ {
		select {
		case b := <-results:
			if b.Int64() != i {
				t.Errorf("Unexpected balance.\nexpected: %d\nreceived: %d",
					i, b.Int64())
			}
		case <-time.After(time.Second):
			t.Fatalf("Timed out waiting for poll %d.", i)
		}
	}

	if err := stop.Close(); err != nil {
		t.Fatalf("Close returned an error: %+v", err)
	}
	select {
	case <-stop.Done():
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for the poller to stop.")
	}
}

// Tests that poll errors reach the callback and polling continues.
func TestBalancePoller_Errors(t *testing.T) {
	source := &countingSource{fail: true}
	errs := make(chan error, 16)
	stop := NewBalancePoller(source, 10*time.Millisecond).Start("0xabc",
		func(_ *big.Int, err error) { errs <- err })
	defer stop.Close()

	for i := 0; i < 2; i++ {
		select {
		case err := <-errs:
			if err == nil {
				t.Error("Expected an error from the callback.")
			}
		case <-time.After(time.Second):
			t.Fatalf("Timed out waiting for poll %d.", i)
		}
	}
}
