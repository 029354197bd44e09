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
	"time"

	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/elixxir/zklogin/stoppable"
	"go.uber.org/ratelimit"
)

// DefaultPollInterval is the pace of balance refreshes.
const DefaultPollInterval = 1500 * time.Millisecond

const pollerStoppableName = "BalancePoller"

// BalanceSource reports the balance of an address in MIST.
type BalanceSource interface {
	Balance(ctx context.Context, owner string) (*big.Int, error)
}

// BalanceCallback receives every poll result. err is set when the poll
// failed; polling continues regardless.
type BalanceCallback func(balance *big.Int, err error)

// BalancePoller refreshes a balance at a fixed interval until stopped.
type BalancePoller struct {
	source   BalanceSource
	interval time.Duration
}

// NewBalancePoller returns a poller. A non-positive interval selects
// DefaultPollInterval.
func NewBalancePoller(source BalanceSource,
	interval time.Duration) *BalancePoller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &BalancePoller{source: source, interval: interval}
}

// Start polls the balance of owner, the first time immediately, and hands
// each result to cb. Closing the returned stoppable ends the thread and
// drops any result still in flight.
func (p *BalancePoller) Start(owner string,
	cb BalanceCallback) *stoppable.Single {
	stop := stoppable.NewSingle(pollerStoppableName)
	go p.pollThread(owner, cb, stop)
	return stop
}

func (p *BalancePoller) pollThread(owner string, cb BalanceCallback,
	stop *stoppable.Single) {
	rl := ratelimit.New(1, ratelimit.Per(p.interval), ratelimit.WithoutSlack)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-stop.Quit():
			cancel()
		case <-ctx.Done():
		}
	}()
	defer cancel()

	for {
		rl.Take()
		select {
		case <-stop.Quit():
			jww.DEBUG.Printf("Stopping balance poller for %s", owner)
			stop.ToStopped()
			return
		default:
		}

		balance, err := p.source.Balance(ctx, owner)
		if !stop.IsRunning() {
			stop.ToStopped()
			return
		}
		if err != nil {
			jww.WARN.Printf("Failed to poll balance of %s: %+v", owner, err)
		}
		cb(balance, err)
	}
}
