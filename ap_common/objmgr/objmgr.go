/*
 * Copyright 2021 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */

// Package objmgr manages the lifetime of the wireless objects a radio hosts:
// the psoc (the radio itself), its vdevs (virtual interfaces), and the peers
// attached to each vdev.  Objects are reference counted.  Every lookup returns
// a handle holding one reference, which the caller must Release().  A deleted
// object disappears from lookups immediately, but is only destroyed once its
// last reference has been released.
//
// Components hang their own state off an object as private data, allocated by
// the create handlers they register and torn down by their destroy handlers.
package objmgr

import (
	"net"
	"sort"
	"sync"

	"bgwlan/common/zaperr"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// RefID identifies the component holding a reference.  Outstanding references
// are tracked per RefID, so a leak can be attributed to its owner.
type RefID int

// Reference holders
const (
	RefObjMgr RefID = iota // creation references held by the manager itself
	RefMLME
	RefTWT
	RefHost
	maxRefID
)

var refNames = [maxRefID]string{"objmgr", "mlme", "twt", "host"}

func (id RefID) String() string {
	if id < 0 || id >= maxRefID {
		return "unknown"
	}
	return refNames[id]
}

// Component identifies a private-data slot on a vdev or peer
type Component int

// Private data owners
const (
	CompMLME Component = iota
	CompTWT
	maxComponent
)

// Mode is the role a vdev plays
type Mode int

// Vdev operating modes
const (
	ModeSTA Mode = iota
	ModeSAP
)

func (m Mode) String() string {
	if m == ModeSAP {
		return "sap"
	}
	return "sta"
}

// ParseMode converts "sta" or "sap" to a Mode
func ParseMode(s string) (Mode, error) {
	switch s {
	case "sta", "":
		return ModeSTA, nil
	case "sap", "ap":
		return ModeSAP, nil
	}
	return ModeSTA, errors.Errorf("unknown vdev mode: %s", s)
}

// Errors returned by the object manager
var (
	ErrNotFound = errors.New("object not found")
	ErrExists   = errors.New("object already exists")
	ErrBadAddr  = errors.New("not a unicast peer address")
)

// BroadcastMAC addresses every peer of a vdev
var BroadcastMAC = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

type objState int

const (
	objActive objState = iota
	objDeleted
)

type refCount struct {
	total int
	byID  [maxRefID]int
}

func (r *refCount) get(id RefID) {
	r.total++
	r.byID[id]++
}

// put drops a reference and reports whether it was the last one
func (r *refCount) put(id RefID) bool {
	r.total--
	r.byID[id]--
	return r.total == 0
}

// PeerHandler is invoked when a peer is created or destroyed
type PeerHandler func(*Peer) error

// VdevHandler is invoked when a vdev is created or destroyed
type VdevHandler func(*Vdev) error

type handlers struct {
	peerCreate  [maxComponent]PeerHandler
	peerDestroy [maxComponent]PeerHandler
	vdevCreate  [maxComponent]VdevHandler
	vdevDestroy [maxComponent]VdevHandler
}

// Psoc is the root of the object tree for a single radio
type Psoc struct {
	vdevs       map[uint8]*Vdev
	peers       map[string]*Peer // active peers, by mac address
	outstanding [maxRefID]int
	handlers    handlers
	slog        *zap.SugaredLogger

	sync.Mutex
}

// NewPsoc returns an empty psoc
func NewPsoc(slog *zap.SugaredLogger) *Psoc {
	return &Psoc{
		vdevs: make(map[uint8]*Vdev),
		peers: make(map[string]*Peer),
		slog:  slog,
	}
}

// RegisterPeerHandlers installs a component's peer create/destroy handlers.
// Either may be nil.
func (p *Psoc) RegisterPeerHandlers(c Component, create, destroy PeerHandler) {
	p.Lock()
	p.handlers.peerCreate[c] = create
	p.handlers.peerDestroy[c] = destroy
	p.Unlock()
}

// RegisterVdevHandlers installs a component's vdev create/destroy handlers.
// Either may be nil.
func (p *Psoc) RegisterVdevHandlers(c Component, create, destroy VdevHandler) {
	p.Lock()
	p.handlers.vdevCreate[c] = create
	p.handlers.vdevDestroy[c] = destroy
	p.Unlock()
}

// Outstanding returns the number of references currently held by the given
// owner, across every vdev and peer of the psoc.
func (p *Psoc) Outstanding(id RefID) int {
	p.Lock()
	defer p.Unlock()
	return p.outstanding[id]
}

// VdevIDs returns the ids of all active vdevs, in ascending order
func (p *Psoc) VdevIDs() []uint8 {
	p.Lock()
	ids := make([]uint8, 0, len(p.vdevs))
	for id := range p.vdevs {
		ids = append(ids, id)
	}
	p.Unlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// GetVdevByID looks up an active vdev and takes a reference on it
func (p *Psoc) GetVdevByID(id uint8, ref RefID) (*VdevRef, error) {
	p.Lock()
	defer p.Unlock()

	v, ok := p.vdevs[id]
	if !ok || v.state != objActive {
		return nil, zaperr.Wrapw(ErrNotFound, "vdev lookup",
			"vdev", id, "ref", ref.String())
	}

	p.getVdevLocked(v, ref)
	return newVdevRef(v, ref), nil
}

// GetPeerByMAC looks up an active peer and takes a reference on it
func (p *Psoc) GetPeerByMAC(mac net.HardwareAddr, ref RefID) (*PeerRef, error) {
	p.Lock()
	defer p.Unlock()

	peer, ok := p.peers[mac.String()]
	if !ok || peer.state != objActive {
		return nil, zaperr.Wrapw(ErrNotFound, "peer lookup",
			"mac", mac.String(), "ref", ref.String())
	}

	p.getPeerLocked(peer, ref)
	return newPeerRef(peer, ref), nil
}

// CreateVdev instantiates a new vdev and runs every component's create
// handler against it.
func (p *Psoc) CreateVdev(id uint8, mac net.HardwareAddr, mode Mode) (*Vdev, error) {
	v := &Vdev{
		id:   id,
		mac:  mac,
		mode: mode,
		psoc: p,
	}

	p.Lock()
	_, exists := p.vdevs[id]
	create := p.handlers.vdevCreate
	p.Unlock()
	if exists {
		return nil, zaperr.Wrapw(ErrExists, "vdev create", "vdev", id)
	}

	for c, fn := range create {
		if fn == nil {
			continue
		}
		if err := fn(v); err != nil {
			return nil, errors.Wrapf(err, "component %d vdev create", c)
		}
	}

	p.Lock()
	defer p.Unlock()
	if _, exists = p.vdevs[id]; exists {
		return nil, zaperr.Wrapw(ErrExists, "vdev create", "vdev", id)
	}
	p.getVdevLocked(v, RefObjMgr)
	p.vdevs[id] = v
	p.slog.Debugf("vdev %d (%s, %s) created", id, mac, mode)

	return v, nil
}

// DeleteVdev removes a vdev, and all of its peers, from the psoc.  The objects
// are destroyed once their last references are released.
func (p *Psoc) DeleteVdev(id uint8) error {
	p.Lock()
	v, ok := p.vdevs[id]
	if !ok {
		p.Unlock()
		return zaperr.Wrapw(ErrNotFound, "vdev delete", "vdev", id)
	}
	v.state = objDeleted
	delete(p.vdevs, id)

	peers := make([]*Peer, 0, len(v.peers))
	for _, peer := range v.peers {
		if peer.state == objActive {
			peer.state = objDeleted
			delete(p.peers, peer.mac.String())
			peers = append(peers, peer)
		}
	}
	p.Unlock()

	for _, peer := range peers {
		p.releasePeer(peer, RefObjMgr)
	}
	p.releaseVdev(v, RefObjMgr)
	return nil
}

// DeletePeer removes a peer from its vdev.  The peer is destroyed once its
// last reference is released.
func (p *Psoc) DeletePeer(mac net.HardwareAddr) error {
	p.Lock()
	peer, ok := p.peers[mac.String()]
	if !ok {
		p.Unlock()
		return zaperr.Wrapw(ErrNotFound, "peer delete", "mac", mac.String())
	}
	peer.state = objDeleted
	delete(p.peers, mac.String())
	p.Unlock()

	p.releasePeer(peer, RefObjMgr)
	return nil
}

func (p *Psoc) getVdevLocked(v *Vdev, ref RefID) {
	v.refs.get(ref)
	p.outstanding[ref]++
}

func (p *Psoc) getPeerLocked(peer *Peer, ref RefID) {
	peer.refs.get(ref)
	p.outstanding[ref]++
}

func (p *Psoc) releaseVdev(v *Vdev, ref RefID) {
	p.Lock()
	p.outstanding[ref]--
	if !v.refs.put(ref) {
		p.Unlock()
		return
	}
	destroy := p.handlers.vdevDestroy
	p.Unlock()

	for c, fn := range destroy {
		if fn == nil {
			continue
		}
		if err := fn(v); err != nil {
			p.slog.Warnf("component %d vdev %d destroy: %v", c,
				v.id, err)
		}
	}
	p.slog.Debugf("vdev %d destroyed", v.id)
}

func (p *Psoc) releasePeer(peer *Peer, ref RefID) {
	p.Lock()
	p.outstanding[ref]--
	if !peer.refs.put(ref) {
		p.Unlock()
		return
	}
	peer.vdev.removePeerLocked(peer)
	destroy := p.handlers.peerDestroy
	p.Unlock()

	for c, fn := range destroy {
		if fn == nil {
			continue
		}
		if err := fn(peer); err != nil {
			p.slog.Warnf("component %d peer %s destroy: %v", c,
				peer.mac, err)
		}
	}
	p.slog.Debugf("peer %s destroyed", peer.mac)

	// Each peer pins its vdev until it is gone
	p.releaseVdev(peer.vdev, RefObjMgr)
}
