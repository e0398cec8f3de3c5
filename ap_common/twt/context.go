/*
 * Copyright 2021 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */

package twt

import (
	"sync"

	"github.com/tevino/abool"
)

type sessionInfo struct {
	dialogID  DialogID
	setupDone bool
	state     SessionState
	activeCmd Command
}

func (s *sessionInfo) empty() bool {
	return s.dialogID == AllSessions
}

func (s *sessionInfo) clear() {
	*s = sessionInfo{dialogID: AllSessions}
}

// selects reports whether an operation addressed to dialog applies to this
// slot.  The wildcard dialog selects every occupied slot.
func (s *sessionInfo) selects(dialog DialogID) bool {
	if s.empty() {
		return false
	}
	return dialog == AllSessions || s.dialogID == dialog
}

// PeerContext is the TWT state attached to every peer
type PeerContext struct {
	sessions    [MaxSessionsPerPeer]sessionInfo
	numSessions int
	caps        Capability

	sync.Mutex
}

// reset frees every slot addressed by dialog and returns copies of the slots
// which had been occupied.  The session limit becomes max, but never drops
// below the number of sessions still held after the reset.
func (c *PeerContext) reset(dialog DialogID, max int) []sessionInfo {
	var freed []sessionInfo

	for i := range c.sessions {
		s := &c.sessions[i]
		if dialog != AllSessions && s.dialogID != dialog {
			continue
		}
		if !s.empty() {
			freed = append(freed, *s)
		}
		s.clear()
	}

	c.numSessions = max
	if held := c.occupied(AllSessions); held > max {
		c.numSessions = held
	}
	return freed
}

// occupied counts the occupied slots, other than the one holding dialog
func (c *PeerContext) occupied(dialog DialogID) int {
	n := 0
	for i := range c.sessions {
		s := &c.sessions[i]
		if !s.empty() && s.dialogID != dialog {
			n++
		}
	}
	return n
}

func (c *PeerContext) find(dialog DialogID) *sessionInfo {
	if dialog == AllSessions {
		return nil
	}
	for i := range c.sessions {
		if c.sessions[i].dialogID == dialog {
			return &c.sessions[i]
		}
	}
	return nil
}

// VdevContext is the TWT state attached to every vdev
type VdevContext struct {
	waitForNotify *abool.AtomicBool
}

func newVdevContext() *VdevContext {
	return &VdevContext{waitForNotify: abool.New()}
}
