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

	"bgwlan/ap_common/objmgr"
)

// SessionSnapshot is a copy of one occupied session slot
type SessionSnapshot struct {
	Dialog    DialogID     `json:"dialog"`
	SetupDone bool         `json:"setup_done"`
	State     SessionState `json:"state"`
	ActiveCmd Command      `json:"active_cmd"`
}

// PeerSnapshot is a copy of a peer's TWT state
type PeerSnapshot struct {
	MAC          string            `json:"mac"`
	Capabilities Capability        `json:"capabilities"`
	MaxSessions  int               `json:"max_sessions"`
	Sessions     []SessionSnapshot `json:"sessions"`
}

// VdevSnapshot is a copy of the TWT state of a vdev and all of its peers
type VdevSnapshot struct {
	ID            uint8          `json:"id"`
	MAC           string         `json:"mac"`
	Mode          string         `json:"mode"`
	WaitForNotify bool           `json:"wait_for_notify"`
	Peers         []PeerSnapshot `json:"peers"`
}

func snapshotPeer(mac net.HardwareAddr, ctx *PeerContext) PeerSnapshot {
	ps := PeerSnapshot{
		MAC:          mac.String(),
		Capabilities: ctx.caps,
		MaxSessions:  ctx.numSessions,
		Sessions:     make([]SessionSnapshot, 0),
	}
	for _, s := range ctx.sessions {
		if s.empty() {
			continue
		}
		ps.Sessions = append(ps.Sessions, SessionSnapshot{
			Dialog:    s.dialogID,
			SetupDone: s.setupDone,
			State:     s.state,
			ActiveCmd: s.activeCmd,
		})
	}
	return ps
}

// PeerSnapshot returns a copy of a single peer's TWT state
func (l *Ledger) PeerSnapshot(mac net.HardwareAddr) (PeerSnapshot, error) {
	var ps PeerSnapshot

	err := l.withPeer(mac, "snapshot", func(p *objmgr.Peer, ctx *PeerContext) {
		ps = snapshotPeer(p.MAC(), ctx)
	})
	return ps, err
}

// Snapshot returns a copy of the TWT state of a vdev and its peers, in the
// vdev's peer order.
func (l *Ledger) Snapshot(vdevID uint8) (VdevSnapshot, error) {
	var vs VdevSnapshot

	err := l.withVdev(vdevID, "snapshot",
		func(v *objmgr.Vdev, ctx *VdevContext) {
			vs = VdevSnapshot{
				ID:            v.ID(),
				MAC:           v.MAC().String(),
				Mode:          v.Mode().String(),
				WaitForNotify: ctx.waitForNotify.IsSet(),
				Peers:         make([]PeerSnapshot, 0),
			}
		})
	if err != nil {
		return vs, err
	}

	err = l.forEachPeer(vdevID, "snapshot",
		func(p *objmgr.Peer, ctx *PeerContext) bool {
			vs.Peers = append(vs.Peers, snapshotPeer(p.MAC(), ctx))
			return true
		})
	return vs, err
}
