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

// CapabilitiesFromIE derives a capability set from a peer's HE capability and
// operation elements.
func CapabilitiesFromIE(heCap HECap, heOp HEOp) Capability {
	var c Capability

	if heCap.TwtRequest {
		c |= CapRequestor
	}
	if heCap.TwtResponder {
		c |= CapResponder
	}
	if heCap.BroadcastTwt {
		c |= CapBroadcast
	}
	if heCap.FlexTwtSched {
		c |= CapFlexible
	}
	if heOp.TwtRequired {
		c |= CapRequired
	}
	return c
}

// SetPeerCapabilities replaces the peer's cached capabilities with those
// advertised in its HE elements.
func (l *Ledger) SetPeerCapabilities(mac net.HardwareAddr, heCap HECap,
	heOp HEOp) error {

	caps := CapabilitiesFromIE(heCap, heOp)
	return l.withPeer(mac, "set_caps", func(_ *objmgr.Peer, ctx *PeerContext) {
		ctx.caps = caps
		l.slog.Debugf("%s twt capabilities: %v", mac, caps)
	})
}

// GetPeerCapabilities returns the peer's cached capabilities.  An unknown peer
// has none.
func (l *Ledger) GetPeerCapabilities(mac net.HardwareAddr) Capability {
	var caps Capability

	l.withPeer(mac, "get_caps", func(_ *objmgr.Peer, ctx *PeerContext) {
		caps = ctx.caps
	})
	return caps
}
