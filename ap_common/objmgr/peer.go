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

	"github.com/tevino/abool"
)

// Peer is a single link-layer neighbor of a vdev
type Peer struct {
	mac   net.HardwareAddr
	vdev  *Vdev
	psoc  *Psoc
	state objState
	refs  refCount
	priv  [maxComponent]interface{}
}

// MAC returns the peer's mac address
func (p *Peer) MAC() net.HardwareAddr { return p.mac }

// Vdev returns the vdev the peer is attached to
func (p *Peer) Vdev() *Vdev { return p.vdev }

// Priv returns a component's private data, or nil
func (p *Peer) Priv(c Component) interface{} {
	p.psoc.Lock()
	defer p.psoc.Unlock()
	return p.priv[c]
}

// SetPriv attaches a component's private data to the peer
func (p *Peer) SetPriv(c Component, data interface{}) {
	p.psoc.Lock()
	p.priv[c] = data
	p.psoc.Unlock()
}

// RefCount returns the number of references held on the peer
func (p *Peer) RefCount() int {
	p.psoc.Lock()
	defer p.psoc.Unlock()
	return p.refs.total
}

// PeerRef is a counted reference to a peer.  Release may be called any number
// of times, but only the first call drops the reference, so the usual pattern
// is:
//
//	ref, err := psoc.GetPeerByMAC(mac, objmgr.RefTWT)
//	if err != nil {
//		return err
//	}
//	defer ref.Release()
type PeerRef struct {
	peer     *Peer
	id       RefID
	released *abool.AtomicBool
}

func newPeerRef(peer *Peer, id RefID) *PeerRef {
	return &PeerRef{
		peer:     peer,
		id:       id,
		released: abool.New(),
	}
}

// Peer returns the referenced peer
func (r *PeerRef) Peer() *Peer { return r.peer }

// Release drops the reference.  It is safe to call on a nil handle.
func (r *PeerRef) Release() {
	if r == nil || !r.released.SetToIf(false, true) {
		return
	}
	r.peer.psoc.releasePeer(r.peer, r.id)
}

// VdevRef is a counted reference to a vdev, with the same Release semantics as
// PeerRef.
type VdevRef struct {
	vdev     *Vdev
	id       RefID
	released *abool.AtomicBool
}

func newVdevRef(v *Vdev, id RefID) *VdevRef {
	return &VdevRef{
		vdev:     v,
		id:       id,
		released: abool.New(),
	}
}

// Vdev returns the referenced vdev
func (r *VdevRef) Vdev() *Vdev { return r.vdev }

// Release drops the reference.  It is safe to call on a nil handle.
func (r *VdevRef) Release() {
	if r == nil || !r.released.SetToIf(false, true) {
		return
	}
	r.vdev.psoc.releaseVdev(r.vdev, r.id)
}
