/*
 * Copyright 2021 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */

package objmgr

import (
	"net"

	"bgwlan/common/zaperr"

	"github.com/pkg/errors"
)

// Vdev is a virtual interface hosted by a psoc.  It owns an ordered list of
// peers.
type Vdev struct {
	id    uint8
	mac   net.HardwareAddr
	mode  Mode
	psoc  *Psoc
	state objState
	refs  refCount
	priv  [maxComponent]interface{}

	// Peers stay on this list until they are destroyed, not just deleted,
	// so an iterator holding a reference can always find its place.
	peers []*Peer
}

// ID returns the vdev's id
func (v *Vdev) ID() uint8 { return v.id }

// MAC returns the vdev's own mac address
func (v *Vdev) MAC() net.HardwareAddr { return v.mac }

// Mode returns the vdev's operating mode
func (v *Vdev) Mode() Mode { return v.mode }

// Psoc returns the psoc hosting this vdev
func (v *Vdev) Psoc() *Psoc { return v.psoc }

// Priv returns a component's private data, or nil
func (v *Vdev) Priv(c Component) interface{} {
	v.psoc.Lock()
	defer v.psoc.Unlock()
	return v.priv[c]
}

// SetPriv attaches a component's private data to the vdev
func (v *Vdev) SetPriv(c Component, data interface{}) {
	v.psoc.Lock()
	v.priv[c] = data
	v.psoc.Unlock()
}

// RefCount returns the number of references held on the vdev
func (v *Vdev) RefCount() int {
	v.psoc.Lock()
	defer v.psoc.Unlock()
	return v.refs.total
}

// NumPeers returns the number of active peers attached to the vdev
func (v *Vdev) NumPeers() int {
	v.psoc.Lock()
	defer v.psoc.Unlock()

	n := 0
	for _, peer := range v.peers {
		if peer.state == objActive {
			n++
		}
	}
	return n
}

// CreatePeer attaches a new peer to the vdev, and runs every component's
// create handler against it.  Broadcast and multicast addresses can't name a
// peer.
func (v *Vdev) CreatePeer(mac net.HardwareAddr) (*Peer, error) {
	if len(mac) != len(BroadcastMAC) || mac[0]&0x01 != 0 {
		return nil, zaperr.Wrapw(ErrBadAddr, "peer create",
			"vdev", v.id, "mac", mac.String())
	}

	p := v.psoc
	peer := &Peer{
		mac:  mac,
		vdev: v,
		psoc: p,
	}

	p.Lock()
	_, exists := p.peers[mac.String()]
	deleted := v.state != objActive
	create := p.handlers.peerCreate
	p.Unlock()

	if deleted {
		return nil, zaperr.Wrapw(ErrNotFound, "peer create",
			"vdev", v.id, "mac", mac.String())
	}
	if exists {
		return nil, zaperr.Wrapw(ErrExists, "peer create",
			"mac", mac.String())
	}

	for c, fn := range create {
		if fn == nil {
			continue
		}
		if err := fn(peer); err != nil {
			return nil, errors.Wrapf(err, "component %d peer create", c)
		}
	}

	p.Lock()
	defer p.Unlock()
	if _, exists = p.peers[mac.String()]; exists || v.state != objActive {
		return nil, zaperr.Wrapw(ErrExists, "peer create",
			"mac", mac.String())
	}

	p.getPeerLocked(peer, RefObjMgr)
	p.getVdevLocked(v, RefObjMgr)
	p.peers[mac.String()] = peer
	v.peers = append(v.peers, peer)
	p.slog.Debugf("peer %s attached to vdev %d", mac, v.id)

	return peer, nil
}

func (v *Vdev) removePeerLocked(peer *Peer) {
	for i, x := range v.peers {
		if x == peer {
			v.peers = append(v.peers[:i], v.peers[i+1:]...)
			return
		}
	}
}

// PeekActiveHead returns a reference to the first active peer on the vdev, or
// nil if there isn't one.
func (v *Vdev) PeekActiveHead(ref RefID) *PeerRef {
	p := v.psoc
	p.Lock()
	defer p.Unlock()

	return v.nextActiveLocked(0, ref)
}

// NextActivePeer returns a reference to the active peer following cur, or nil
// at the end of the list.  The caller still owns its reference on cur.
func (v *Vdev) NextActivePeer(cur *PeerRef, ref RefID) *PeerRef {
	p := v.psoc
	p.Lock()
	defer p.Unlock()

	for i, peer := range v.peers {
		if peer == cur.peer {
			return v.nextActiveLocked(i+1, ref)
		}
	}
	return nil
}

func (v *Vdev) nextActiveLocked(start int, ref RefID) *PeerRef {
	for _, peer := range v.peers[start:] {
		if peer.state == objActive {
			v.psoc.getPeerLocked(peer, ref)
			return newPeerRef(peer, ref)
		}
	}
	return nil
}

// ForEachPeer invokes fn on each active peer of the vdev, holding a reference
// on the peer for the duration of the call.  Iteration stops early if fn
// returns false.  Peers may be added or deleted while the walk is underway.
func (v *Vdev) ForEachPeer(ref RefID, fn func(*Peer) bool) {
	cur := v.PeekActiveHead(ref)
	for cur != nil {
		if !fn(cur.peer) {
			cur.Release()
			return
		}
		next := v.NextActivePeer(cur, ref)
		cur.Release()
		cur = next
	}
}
