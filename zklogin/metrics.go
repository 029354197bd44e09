////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package zklogin

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Remote call names used as metric labels.
const (
	callEpoch    = "epoch"
	callExchange = "exchange"
	callProof    = "proof"
	callFaucet   = "faucet"
	callBalance  = "balance"
	callTransfer = "transfer"
)

const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
	outcomeStale   = "stale"
)

// metrics counts remote call outcomes and their latency.
type metrics struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	resets   prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zklogin",
			Name:      "remote_calls_total",
			Help:      "Remote calls by call and outcome.",
		}, []string{"call", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "zklogin",
			Name:      "remote_call_duration_seconds",
			Help:      "Latency of remote calls.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"call"}),
		resets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "zklogin",
			Name:      "session_resets_total",
			Help:      "Sessions started anew or reset.",
		}),
	}
	reg.MustRegister(m.calls, m.duration, m.resets)
	return m
}

// observe records one call that started at start.
func (m *metrics) observe(call string, start time.Time, err error) {
	m.duration.WithLabelValues(call).Observe(time.Since(start).Seconds())
	outcome := outcomeSuccess
	switch {
	case err == ErrStaleResult:
		outcome = outcomeStale
	case err != nil:
		outcome = outcomeFailure
	}
	m.calls.WithLabelValues(call, outcome).Inc()
}
