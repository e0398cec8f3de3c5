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
	"bgwlan/common/zaperr"
)

// InitContext frees every session slot holding dialog, or every slot if dialog
// is AllSessions, and restores the peer's session limit to the configured
// maximum.  It is used on disconnect and to clean up after a teardown.
func (l *Ledger) InitContext(mac net.HardwareAddr, dialog DialogID) error {
	var freed []sessionInfo

	err := l.withPeer(mac, "init_context",
		func(_ *objmgr.Peer, ctx *PeerContext) {
			freed = ctx.reset(dialog, l.maxSessions())
		})
	if err == nil {
		l.recordFreed(mac, freed)
	}
	return err
}

// InitAllPeersContext applies InitContext to every peer of a vdev.
func (l *Ledger) InitAllPeersContext(vdevID uint8, dialog DialogID) error {
	max := l.maxSessions()

	return l.forEachPeer(vdevID, "init_all_peers",
		func(peer *objmgr.Peer, ctx *PeerContext) bool {
			l.recordFreed(peer.MAC(), ctx.reset(dialog, max))
			return true
		})
}

func (l *Ledger) recordFreed(mac net.HardwareAddr, freed []sessionInfo) {
	for _, s := range freed {
		l.metrics.sessionsReset.Inc()
		l.history.add(mac, s)
		l.slog.Debugf("%s dialog %d freed (state %v, cmd %v)", mac,
			s.dialogID, s.state, s.activeCmd)
	}
}

// AddSession claims a free slot for dialog.  Adding a dialog the peer already
// holds is a no-op.  If the peer has no free slot, or is already at its
// session limit, nothing changes and ErrNoCapacity is returned.  Callers
// normally check IsMaxSessionsReached first.
func (l *Ledger) AddSession(mac net.HardwareAddr, dialog DialogID) error {
	if dialog == AllSessions {
		return zaperr.Wrapw(ErrInvalidDialog, "add session",
			"mac", mac.String(), "dialog", dialog)
	}

	var added, full bool
	err := l.withPeer(mac, "add_session",
		func(_ *objmgr.Peer, ctx *PeerContext) {
			if ctx.find(dialog) != nil {
				return
			}
			if ctx.occupied(dialog) >= ctx.numSessions {
				full = true
				return
			}
			for i := range ctx.sessions {
				if s := &ctx.sessions[i]; s.empty() {
					s.dialogID = dialog
					added = true
					return
				}
			}
			full = true
		})

	if err != nil {
		return err
	}
	if full {
		l.metrics.capacityRejections.Inc()
		return zaperr.Wrapw(ErrNoCapacity, "add session",
			"mac", mac.String(), "dialog", dialog)
	}
	if added {
		l.metrics.sessionsAdded.Inc()
		l.slog.Debugf("%s dialog %d added", mac, dialog)
	}
	return nil
}

// IsMaxSessionsReached reports whether the peer's other sessions, those not
// using dialog, already fill its session limit.  Re-negotiating an existing
// dialog is therefore allowed on a full peer.  An unknown peer is never full.
func (l *Ledger) IsMaxSessionsReached(mac net.HardwareAddr, dialog DialogID) bool {
	var reached bool

	l.withPeer(mac, "max_sessions", func(_ *objmgr.Peer, ctx *PeerContext) {
		reached = ctx.occupied(dialog) >= ctx.numSessions
	})
	return reached
}

// SetSetupDone records whether negotiation of dialog has completed.
func (l *Ledger) SetSetupDone(mac net.HardwareAddr, dialog DialogID, isSet bool) {
	l.withPeer(mac, "set_setup_done", func(_ *objmgr.Peer, ctx *PeerContext) {
		for i := range ctx.sessions {
			if s := &ctx.sessions[i]; s.selects(dialog) {
				s.setupDone = isSet
				if dialog != AllSessions {
					break
				}
			}
		}
	})
}

// IsSetupDone reports whether negotiation of dialog has completed.  For
// AllSessions, it reports whether any session of the peer has.
func (l *Ledger) IsSetupDone(mac net.HardwareAddr, dialog DialogID) bool {
	var done bool

	l.withPeer(mac, "is_setup_done", func(_ *objmgr.Peer, ctx *PeerContext) {
		for i := range ctx.sessions {
			if s := &ctx.sessions[i]; s.selects(dialog) && s.setupDone {
				done = true
				return
			}
		}
	})
	return done
}

// SetSessionState changes the state of dialog, or of every session for
// AllSessions.
func (l *Ledger) SetSessionState(mac net.HardwareAddr, dialog DialogID,
	state SessionState) {

	l.withPeer(mac, "set_state", func(_ *objmgr.Peer, ctx *PeerContext) {
		for i := range ctx.sessions {
			if s := &ctx.sessions[i]; s.selects(dialog) {
				s.state = state
				if dialog != AllSessions {
					break
				}
			}
		}
	})
}

// GetSessionState returns the state of a specific dialog.  NotEstablished is
// returned when the peer or dialog is unknown, or for AllSessions.
func (l *Ledger) GetSessionState(mac net.HardwareAddr, dialog DialogID) SessionState {
	state := NotEstablished

	l.withPeer(mac, "get_state", func(_ *objmgr.Peer, ctx *PeerContext) {
		if s := ctx.find(dialog); s != nil {
			state = s.state
		}
	})
	return state
}
