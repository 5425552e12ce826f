// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package xfsrepair

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"git.lukeshu.com/xfs-progs-ng/lib/xfs/xfsprim"
)

// metrics are registered with Options.Registry.  A nil registry
// still gets working, unregistered collectors.
type metrics struct {
	examined  *prometheus.CounterVec
	live      *prometheus.CounterVec
	outcomes  *prometheus.CounterVec
	upgrades  prometheus.Counter
	agSeconds prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) *metrics {
	return &metrics{
		examined: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "xfsrepair_phase7_inode_slots_examined_total",
				Help: "Inode slots walked by phase 7, counted a whole chunk at a time",
			},
			[]string{"ag"},
		),
		live: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "xfsrepair_phase7_live_inodes_total",
				Help: "Allocated inodes whose link count phase 7 checked",
			},
			[]string{"ag"},
		),
		outcomes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "xfsrepair_phase7_link_count_mismatches_total",
				Help: "Link count mismatches, by what phase 7 did about them",
			},
			[]string{"outcome"},
		),
		upgrades: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "xfsrepair_phase7_inode_version_upgrades_total",
				Help: "Version 1 inodes rewritten as version 2 to hold a larger link count",
			},
		),
		agSeconds: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "xfsrepair_phase7_ag_duration_seconds",
				Help:    "Time to walk one allocation group",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
			},
		),
	}
}

func agLabel(ag xfsprim.AgNumber) string {
	return strconv.FormatUint(uint64(ag), 10)
}
