/*
 * Copyright 2021 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */

package twt

import (
	"bytes"
	"net"

	"bgwlan/ap_common/objmgr"
	"bgwlan/common/zaperr"
)

// IsSetupInProgress reports whether a setup of dialog has been started but
// not completed.
func (l *Ledger) IsSetupInProgress(mac net.HardwareAddr, dialog DialogID) bool {
	var inProgress bool

	l.withPeer(mac, "setup_in_progress",
		func(_ *objmgr.Peer, ctx *PeerContext) {
			if s := ctx.find(dialog); s != nil {
				inProgress = !s.setupDone
			}
		})
	return inProgress
}

func (l *Ledger) setCommand(ctx *PeerContext, dialog DialogID, cmd Command) {
	for i := range ctx.sessions {
		if s := &ctx.sessions[i]; s.selects(dialog) {
			s.activeCmd = cmd
			if cmd != None {
				l.metrics.commands.WithLabelValues(cmd.String()).Inc()
			}
			if dialog != AllSessions {
				break
			}
		}
	}
}

func validCommand(cmd Command) bool {
	return cmd >= None && cmd < Any
}

// SetCommandInProgress records cmd as the command outstanding on dialog, or
// on every session of the peer for AllSessions.  Setting None clears it.
func (l *Ledger) SetCommandInProgress(mac net.HardwareAddr, dialog DialogID,
	cmd Command) error {

	if !validCommand(cmd) {
		return zaperr.Wrapw(ErrInvalidCommand, "set command",
			"mac", mac.String(), "cmd", cmd.String())
	}

	return l.withPeer(mac, "set_command",
		func(_ *objmgr.Peer, ctx *PeerContext) {
			l.setCommand(ctx, dialog, cmd)
		})
}

// commandInProgress scans a peer's sessions for cmd.  It returns the last
// active command it examined, along with whether it found a match.
func commandInProgress(ctx *PeerContext, dialog DialogID,
	cmd Command) (Command, bool) {

	active := None
	for i := range ctx.sessions {
		s := &ctx.sessions[i]
		if dialog == AllSessions {
			active = s.activeCmd
			if active.matches(cmd) {
				return active, true
			}
		} else if s.dialogID == dialog {
			active = s.activeCmd
			return active, active.matches(cmd)
		}
	}
	return active, false
}

// IsCommandInProgress reports whether cmd is outstanding on dialog, or on any
// session of the peer for AllSessions.  Passing Any matches every command but
// None.  The command actually observed is returned alongside, for diagnostics;
// when nothing matched it is simply the last one examined.
func (l *Ledger) IsCommandInProgress(mac net.HardwareAddr, dialog DialogID,
	cmd Command) (Command, bool) {

	var active Command
	var found bool

	l.withPeer(mac, "cmd_in_progress", func(_ *objmgr.Peer, ctx *PeerContext) {
		active, found = commandInProgress(ctx, dialog, cmd)
	})
	return active, found
}

// peerCommandInProgress is the responder's view: a slot not yet bound to a
// dialog matches any dialog, since an AP may start a command before the slot
// is assigned.
func peerCommandInProgress(ctx *PeerContext, dialog DialogID, cmd Command) bool {
	for i := range ctx.sessions {
		s := &ctx.sessions[i]
		if s.dialogID == dialog || s.empty() || dialog == AllSessions {
			if s.activeCmd.matches(cmd) {
				return true
			}
		}
	}
	return false
}

// PeerIsCommandInProgress is IsCommandInProgress as seen by a SAP vdev.
func (l *Ledger) PeerIsCommandInProgress(mac net.HardwareAddr, dialog DialogID,
	cmd Command) bool {

	var found bool

	l.withPeer(mac, "peer_cmd_in_progress",
		func(_ *objmgr.Peer, ctx *PeerContext) {
			found = peerCommandInProgress(ctx, dialog, cmd)
		})
	return found
}

// VdevAnyPeerCommandInProgress reports whether cmd is outstanding on dialog
// for any peer of the vdev.  The walk stops at the first match.
func (l *Ledger) VdevAnyPeerCommandInProgress(vdevID uint8, dialog DialogID,
	cmd Command) bool {

	var found bool

	l.forEachPeer(vdevID, "vdev_cmd_in_progress",
		func(_ *objmgr.Peer, ctx *PeerContext) bool {
			_, found = commandInProgress(ctx, dialog, cmd)
			return !found
		})
	return found
}

// VdevSetAllPeersCommandInProgress applies SetCommandInProgress to every peer
// of the vdev.
func (l *Ledger) VdevSetAllPeersCommandInProgress(vdevID uint8, dialog DialogID,
	cmd Command) error {

	if !validCommand(cmd) {
		return zaperr.Wrapw(ErrInvalidCommand, "set vdev command",
			"vdev", vdevID, "cmd", cmd.String())
	}

	return l.forEachPeer(vdevID, "vdev_set_command",
		func(_ *objmgr.Peer, ctx *PeerContext) bool {
			l.setCommand(ctx, dialog, cmd)
			return true
		})
}

// SapSetCommandInProgress records a command issued by a SAP vdev.  The
// broadcast address applies it to every peer of the vdev; otherwise the named
// peer must be attached to the vdev.
func (l *Ledger) SapSetCommandInProgress(vdevID uint8, mac net.HardwareAddr,
	dialog DialogID, cmd Command) error {

	if bytes.Equal(mac, objmgr.BroadcastMAC) {
		return l.VdevSetAllPeersCommandInProgress(vdevID, dialog, cmd)
	}

	if !validCommand(cmd) {
		return zaperr.Wrapw(ErrInvalidCommand, "sap set command",
			"mac", mac.String(), "cmd", cmd.String())
	}

	var wrongVdev bool
	err := l.withPeer(mac, "sap_set_command",
		func(peer *objmgr.Peer, ctx *PeerContext) {
			if peer.Vdev().ID() != vdevID {
				wrongVdev = true
				return
			}
			l.setCommand(ctx, dialog, cmd)
		})
	if err == nil && wrongVdev {
		err = zaperr.Wrapw(ErrNotFound, "sap set command",
			"vdev", vdevID, "mac", mac.String())
		l.lookupFailed("peer", "sap_set_command", err)
	}
	return err
}
