////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package epoch

import (
	"context"
	"math"
	"testing"

	"github.com/pkg/errors"
	"gitlab.com/elixxir/ekv"
	"gitlab.com/elixxir/zklogin/storage"
)

type mockSource struct {
	epoch uint64
	err   error
	calls int
}

func (m *mockSource) CurrentEpoch(context.Context) (uint64, error) {
	m.calls++
	return m.epoch, m.err
}

func newTestResolver(src Source) (*Resolver, *storage.Session) {
	store := storage.New(ekv.MakeMemstore(), ekv.MakeMemstore())
	return NewResolver(src, store, 0), store
}

// Tests that network epoch 100 resolves to expiry 110 and is persisted.
func TestResolver_ResolveExpiryEpoch(t *testing.T) {
	src := &mockSource{epoch: 100}
	r, _ := newTestResolver(src)

	expiry, err := r.ResolveExpiryEpoch(context.Background())
	if err != nil {
		t.Fatalf("ResolveExpiryEpoch returned an error: %+v", err)
	}
	if expiry != 110 {
		t.Errorf("Unexpected expiry epoch.\nexpected: %d\nreceived: %d",
			110, expiry)
	}

	stored, ok, err := r.Stored()
	if err != nil || !ok {
		t.Fatalf("Stored did not return the expiry: %t, %+v", ok, err)
	}
	if stored != expiry {
		t.Errorf("Unexpected stored expiry.\nexpected: %d\nreceived: %d",
			expiry, stored)
	}
}

// Tests that a failed query leaves the previously stored value intact.
func TestResolver_FailureKeepsPrior(t *testing.T) {
	src := &mockSource{epoch: 100}
	r, _ := newTestResolver(src)
	if _, err := r.ResolveExpiryEpoch(context.Background()); err != nil {
		t.Fatal(err)
	}

	src.err = errors.New("connection refused")
	src.epoch = 500
	if _, err := r.ResolveExpiryEpoch(context.Background()); err == nil {
		t.Error("ResolveExpiryEpoch should fail when the query fails")
	}

	stored, ok, err := r.Stored()
	if err != nil || !ok || stored != 110 {
		t.Errorf("Prior expiry not kept: %d, %t, %+v", stored, ok, err)
	}
}

// Tests that resolving again only depends on the current network epoch.
func TestResolver_Idempotent(t *testing.T) {
	src := &mockSource{epoch: 100}
	r, _ := newTestResolver(src)
	first, _ := r.ResolveExpiryEpoch(context.Background())
	second, _ := r.ResolveExpiryEpoch(context.Background())
	if first != second || src.calls != 2 {
		t.Errorf("Expected identical results from two queries: %d, %d "+
			"(%d calls)", first, second, src.calls)
	}
}

// Tests Stored before any resolution and with malformed data.
func TestResolver_Stored(t *testing.T) {
	r, store := newTestResolver(&mockSource{})
	if _, ok, err := r.Stored(); ok || err != nil {
		t.Errorf("Expected absence, got %t, %+v", ok, err)
	}

	if err := store.SetString(storage.DurableScope, storage.MaxEpochKey,
		"abc"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := r.Stored(); err == nil {
		t.Error("Expected an error for a malformed expiry epoch")
	}
}

// Tests the overflow guard and the default margin.
func TestResolver_Overflow(t *testing.T) {
	r, _ := newTestResolver(&mockSource{epoch: math.MaxUint64})
	if r.Margin() != DefaultMargin {
		t.Errorf("Unexpected margin.\nexpected: %d\nreceived: %d",
			DefaultMargin, r.Margin())
	}
	if _, err := r.ResolveExpiryEpoch(context.Background()); err == nil {
		t.Error("Expected an overflow error")
	}
}
