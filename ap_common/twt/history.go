/*
 * Copyright 2021 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */

package twt

import (
	"net"
	"sort"
	"sync/atomic"
	"time"

	"github.com/bluele/gcache"
)

// HistoryEntry describes a session slot at the moment it was freed
type HistoryEntry struct {
	Seq       uint64       `json:"seq"`
	MAC       string       `json:"mac"`
	Dialog    DialogID     `json:"dialog"`
	SetupDone bool         `json:"setup_done"`
	State     SessionState `json:"state"`
	LastCmd   Command      `json:"last_cmd"`
	Freed     time.Time    `json:"freed"`
}

// history keeps the most recently freed sessions.  Entries are keyed by a
// sequence number and never read back individually, so the LRU evicts the
// oldest first.
type history struct {
	seq   uint64
	cache gcache.Cache
}

func newHistory(size int) *history {
	if size < 1 {
		size = 1
	}
	return &history{
		cache: gcache.New(size).LRU().Build(),
	}
}

func (h *history) add(mac net.HardwareAddr, s sessionInfo) {
	seq := atomic.AddUint64(&h.seq, 1)
	h.cache.Set(seq, HistoryEntry{
		Seq:       seq,
		MAC:       mac.String(),
		Dialog:    s.dialogID,
		SetupDone: s.setupDone,
		State:     s.state,
		LastCmd:   s.activeCmd,
		Freed:     time.Now(),
	})
}

func (h *history) entries() []HistoryEntry {
	all := h.cache.GetALL(false)

	rval := make([]HistoryEntry, 0, len(all))
	for _, v := range all {
		rval = append(rval, v.(HistoryEntry))
	}
	sort.Slice(rval, func(i, j int) bool {
		return rval[i].Seq > rval[j].Seq
	})
	return rval
}

// History returns the most recently freed sessions, newest first
func (l *Ledger) History() []HistoryEntry {
	return l.history.entries()
}
