/*
 * Copyright 2021 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */

// Package twt keeps the host's view of Target Wake Time sessions: which
// dialogs each peer has negotiated, how far each negotiation has progressed,
// and which command, if any, is outstanding against each dialog.  The TWT
// negotiation logic consults the ledger before issuing a firmware command and
// updates it afterwards.  The ledger does not judge whether a command is
// legal; it only records what is in flight.
//
// State lives on the objmgr peer and vdev objects as private data.  Every
// operation resolves its object through the object manager, holds a single
// reference for the duration of the call, and serializes access to a peer's
// sessions with a per-peer lock.
package twt

import (
	"net"

	"bgwlan/ap_common/objmgr"
	"bgwlan/common/zaperr"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Errors returned by the ledger
var (
	ErrNotFound       = objmgr.ErrNotFound
	ErrNoCapacity     = errors.New("no free twt session slot")
	ErrInvalidDialog  = errors.New("invalid twt dialog")
	ErrInvalidCommand = errors.New("invalid twt command")
)

// Config supplies the ledger's tunables
type Config interface {
	GetTwtMaxSessions() int
	GetTwtHistorySize() int
}

// Ledger tracks TWT sessions for every peer of a psoc
type Ledger struct {
	psoc    *objmgr.Psoc
	cfg     Config
	slog    *zap.SugaredLogger
	history *history
	metrics *metrics
}

// NewLedger attaches a ledger to a psoc.  From here on, every vdev and peer
// created on the psoc carries TWT state.
func NewLedger(psoc *objmgr.Psoc, cfg Config, slog *zap.SugaredLogger) *Ledger {
	l := &Ledger{
		psoc:    psoc,
		cfg:     cfg,
		slog:    slog,
		history: newHistory(cfg.GetTwtHistorySize()),
		metrics: newMetrics(),
	}

	psoc.RegisterPeerHandlers(objmgr.CompTWT, l.peerCreated, l.peerDestroyed)
	psoc.RegisterVdevHandlers(objmgr.CompTWT, l.vdevCreated, nil)
	return l
}

// Collectors returns the ledger's prometheus metrics, for registration
func (l *Ledger) Collectors() []prometheus.Collector {
	return l.metrics.collectors()
}

func (l *Ledger) maxSessions() int {
	n := l.cfg.GetTwtMaxSessions()
	if n < 1 {
		n = 1
	} else if n > MaxSessionsPerPeer {
		n = MaxSessionsPerPeer
	}
	return n
}

func (l *Ledger) peerCreated(peer *objmgr.Peer) error {
	ctx := &PeerContext{}
	ctx.reset(AllSessions, l.maxSessions())
	peer.SetPriv(objmgr.CompTWT, ctx)
	return nil
}

// Anything still negotiated when a peer goes away ends up in the history.
func (l *Ledger) peerDestroyed(peer *objmgr.Peer) error {
	ctx, ok := peer.Priv(objmgr.CompTWT).(*PeerContext)
	if !ok {
		return nil
	}

	ctx.Lock()
	freed := ctx.reset(AllSessions, ctx.numSessions)
	ctx.Unlock()

	l.recordFreed(peer.MAC(), freed)
	peer.SetPriv(objmgr.CompTWT, nil)
	return nil
}

func (l *Ledger) vdevCreated(v *objmgr.Vdev) error {
	v.SetPriv(objmgr.CompTWT, newVdevContext())
	return nil
}

func (l *Ledger) lookupFailed(object, op string, err error) {
	l.metrics.lookupFailures.WithLabelValues(object).Inc()
	l.slog.Debugw("twt lookup failed", "op", op, "error", err)
}

// withPeer resolves a peer by mac address and runs fn with the peer's TWT
// context locked.  The reference taken on the peer is dropped before
// returning, on every path.
func (l *Ledger) withPeer(mac net.HardwareAddr, op string,
	fn func(*objmgr.Peer, *PeerContext)) error {

	ref, err := l.psoc.GetPeerByMAC(mac, objmgr.RefTWT)
	if err != nil {
		l.lookupFailed("peer", op, err)
		return err
	}
	defer ref.Release()

	return l.lockPeer(ref.Peer(), op, fn)
}

// lockPeer runs fn with the TWT context of an already referenced peer locked
func (l *Ledger) lockPeer(peer *objmgr.Peer, op string,
	fn func(*objmgr.Peer, *PeerContext)) error {

	ctx, ok := peer.Priv(objmgr.CompTWT).(*PeerContext)
	if !ok || ctx == nil {
		err := zaperr.Wrapw(ErrNotFound, "twt peer context",
			"mac", peer.MAC().String())
		l.lookupFailed("peer_priv", op, err)
		return err
	}

	ctx.Lock()
	defer ctx.Unlock()
	fn(peer, ctx)
	return nil
}

// withVdev resolves a vdev by id and runs fn against it, holding a reference
// for the duration of the call.
func (l *Ledger) withVdev(vdevID uint8, op string,
	fn func(*objmgr.Vdev, *VdevContext)) error {

	ref, err := l.psoc.GetVdevByID(vdevID, objmgr.RefTWT)
	if err != nil {
		l.lookupFailed("vdev", op, err)
		return err
	}
	defer ref.Release()

	v := ref.Vdev()
	ctx, ok := v.Priv(objmgr.CompTWT).(*VdevContext)
	if !ok || ctx == nil {
		err = zaperr.Wrapw(ErrNotFound, "twt vdev context",
			"vdev", vdevID)
		l.lookupFailed("vdev_priv", op, err)
		return err
	}

	fn(v, ctx)
	return nil
}

// forEachPeer runs fn, with the peer's context locked, against every peer of
// a vdev until fn returns false.
func (l *Ledger) forEachPeer(vdevID uint8, op string,
	fn func(*objmgr.Peer, *PeerContext) bool) error {

	return l.withVdev(vdevID, op, func(v *objmgr.Vdev, _ *VdevContext) {
		v.ForEachPeer(objmgr.RefTWT, func(peer *objmgr.Peer) bool {
			more := true
			l.lockPeer(peer, op, func(p *objmgr.Peer, ctx *PeerContext) {
				more = fn(p, ctx)
			})
			return more
		})
	})
}
