////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package epoch resolves the expiry epoch bounding how long an ephemeral key
// and its proof stay valid.
package epoch

import (
	"context"
	"strconv"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/elixxir/zklogin/storage"
)

// DefaultMargin is the number of epochs an ephemeral key stays valid past the
// epoch it was created in.
const DefaultMargin = 10

// Error messages.
const (
	queryErr     = "failed to query current epoch"
	storeErr     = "failed to store expiry epoch"
	loadErr      = "failed to load expiry epoch"
	malformedErr = "stored expiry epoch %q is malformed"
	overflowErr  = "epoch %d plus margin %d overflows"
)

// Source reports the ledger's current epoch.
type Source interface {
	CurrentEpoch(ctx context.Context) (uint64, error)
}

// Resolver computes and persists the expiry epoch.
type Resolver struct {
	source Source
	store  *storage.Session
	margin uint64
}

// NewResolver returns a Resolver. A zero margin selects DefaultMargin.
func NewResolver(source Source, store *storage.Session, margin uint64) *Resolver {
	if margin == 0 {
		margin = DefaultMargin
	}
	return &Resolver{source: source, store: store, margin: margin}
}

// ResolveExpiryEpoch queries the current epoch, persists current+margin and
// returns it. On failure nothing is written, so a previously stored value
// remains usable. The call is safe to retry.
func (r *Resolver) ResolveExpiryEpoch(ctx context.Context) (uint64, error) {
	expiry, err := r.Query(ctx)
	if err != nil {
		return 0, err
	}
	if err = r.Persist(expiry); err != nil {
		return 0, err
	}
	return expiry, nil
}

// Query returns current+margin without persisting it.
func (r *Resolver) Query(ctx context.Context) (uint64, error) {
	current, err := r.source.CurrentEpoch(ctx)
	if err != nil {
		return 0, errors.WithMessage(err, queryErr)
	}
	expiry := current + r.margin
	if expiry < current {
		return 0, errors.Errorf(overflowErr, current, r.margin)
	}
	jww.INFO.Printf("Current epoch %d, expiry epoch %d", current, expiry)
	return expiry, nil
}

// Persist stores expiry as the expiry epoch.
func (r *Resolver) Persist(expiry uint64) error {
	err := r.store.SetString(storage.DurableScope, storage.MaxEpochKey,
		strconv.FormatUint(expiry, 10))
	if err != nil {
		return errors.WithMessage(err, storeErr)
	}
	return nil
}

// Stored returns the persisted expiry epoch. The boolean is false when none
// has been resolved yet.
func (r *Resolver) Stored() (uint64, bool, error) {
	s, ok, err := r.store.GetString(storage.DurableScope, storage.MaxEpochKey)
	if err != nil {
		return 0, false, errors.WithMessage(err, loadErr)
	}
	if !ok {
		return 0, false, nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, false, errors.Errorf(malformedErr, s)
	}
	return v, true, nil
}

// Margin returns the configured margin.
func (r *Resolver) Margin() uint64 {
	return r.margin
}
