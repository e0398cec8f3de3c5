/*
 * Copyright 2021 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */

package twt

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	commands           *prometheus.CounterVec
	sessionsAdded      prometheus.Counter
	sessionsReset      prometheus.Counter
	capacityRejections prometheus.Counter
	lookupFailures     *prometheus.CounterVec
}

func newMetrics() *metrics {
	return &metrics{
		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "twt_commands_total",
				Help: "Number of commands recorded in flight, by command.",
			},
			[]string{"cmd"}),
		sessionsAdded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "twt_sessions_added_total",
				Help: "Number of session slots claimed.",
			}),
		sessionsReset: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "twt_sessions_reset_total",
				Help: "Number of occupied session slots freed.",
			}),
		capacityRejections: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "twt_capacity_rejections_total",
				Help: "Number of sessions refused for lack of a slot.",
			}),
		lookupFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "twt_lookup_failures_total",
				Help: "Number of unresolved object lookups, by object.",
			},
			[]string{"object"}),
	}
}

func (m *metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.commands,
		m.sessionsAdded,
		m.sessionsReset,
		m.capacityRejections,
		m.lookupFailures,
	}
}
