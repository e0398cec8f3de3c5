/*
 * Copyright 2021 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */

package main

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bgwlan/ap_common/apcfg"
	"bgwlan/ap_common/objmgr"
	"bgwlan/ap_common/twt"
	"bgwlan/common/zaperr"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Request and response bodies
type (
	vdevRequest struct {
		MAC  string `json:"mac"`
		Mode string `json:"mode"`
	}

	cmdRequest struct {
		Cmd twt.Command `json:"cmd"`
	}

	stateRequest struct {
		State twt.SessionState `json:"state"`
	}

	setupRequest struct {
		Done bool `json:"done"`
	}

	capsRequest struct {
		HECap twt.HECap `json:"he_cap"`
		HEOp  twt.HEOp  `json:"he_op"`
	}

	notifyRequest struct {
		Wait bool `json:"wait"`
	}

	settingRequest struct {
		Value string `json:"value"`
	}

	sessionStatus struct {
		Dialog          twt.DialogID     `json:"dialog"`
		SetupDone       bool             `json:"setup_done"`
		SetupInProgress bool             `json:"setup_in_progress"`
		State           twt.SessionState `json:"state"`
		ActiveCmd       twt.Command      `json:"active_cmd"`
		CmdInProgress   bool             `json:"cmd_in_progress"`
		MaxReached      bool             `json:"max_sessions_reached"`
	}

	cmdStatus struct {
		Cmd        twt.Command `json:"cmd"`
		InProgress bool        `json:"in_progress"`
	}

	settingValue struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	}

	errorResponse struct {
		Error string `json:"error"`
	}
)

func errStatus(err error) int {
	switch errors.Cause(err) {
	case objmgr.ErrNotFound, apcfg.ErrNoSetting:
		return http.StatusNotFound
	case objmgr.ErrExists, twt.ErrNoCapacity:
		return http.StatusConflict
	case apcfg.ErrStatic:
		return http.StatusForbidden
	}
	return http.StatusBadRequest
}

func (d *daemon) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		d.slog.Warnf("failed to write response: %v", err)
	}
}

func (d *daemon) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := errStatus(err)
	if ze, ok := err.(zaperr.ZapError); ok {
		d.slog.Debugw("request failed", "url", r.URL.Path, "error", ze)
	} else {
		d.slog.Debugf("%s %s failed: %v", r.Method, r.URL.Path, err)
	}
	d.writeJSON(w, code, errorResponse{Error: err.Error()})
}

func readJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Wrap(err, "bad request body")
	}
	return nil
}

func vdevArg(r *http.Request) (uint8, error) {
	s := mux.Vars(r)["vdev"]
	id, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, errors.Errorf("bad vdev id: %s", s)
	}
	return uint8(id), nil
}

func macArg(r *http.Request) (net.HardwareAddr, error) {
	s := mux.Vars(r)["mac"]
	mac, err := net.ParseMAC(s)
	if err != nil {
		return nil, errors.Errorf("bad mac address: %s", s)
	}
	return mac, nil
}

// dialogArg accepts a dialog number, or "all" for every session
func dialogArg(r *http.Request) (twt.DialogID, error) {
	s := mux.Vars(r)["dialog"]
	if strings.ToLower(s) == "all" {
		return twt.AllSessions, nil
	}
	id, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, errors.Errorf("bad dialog id: %s", s)
	}
	return twt.DialogID(id), nil
}

func cmdArg(r *http.Request) (twt.Command, error) {
	var cmd twt.Command

	err := cmd.UnmarshalText([]byte(mux.Vars(r)["cmd"]))
	return cmd, err
}

// peerArgs extracts the vdev and peer named by a request, and verifies that
// the peer is attached to that vdev.
func (d *daemon) peerArgs(r *http.Request) (uint8, net.HardwareAddr, error) {
	vdevID, err := vdevArg(r)
	if err != nil {
		return 0, nil, err
	}
	mac, err := macArg(r)
	if err != nil {
		return 0, nil, err
	}

	ref, err := d.psoc.GetPeerByMAC(mac, objmgr.RefHost)
	if err != nil {
		return 0, nil, err
	}
	defer ref.Release()

	if ref.Peer().Vdev().ID() != vdevID {
		return 0, nil, zaperr.Wrapw(objmgr.ErrNotFound, "peer not on vdev",
			"vdev", vdevID, "mac", mac.String())
	}
	return vdevID, mac, nil
}

// peerSessionArgs is peerArgs plus the dialog
func (d *daemon) peerSessionArgs(r *http.Request) (uint8, net.HardwareAddr,
	twt.DialogID, error) {

	vdevID, mac, err := d.peerArgs(r)
	if err != nil {
		return 0, nil, 0, err
	}
	dialog, err := dialogArg(r)
	return vdevID, mac, dialog, err
}

func (d *daemon) getVdevs(w http.ResponseWriter, r *http.Request) {
	rval := make([]twt.VdevSnapshot, 0)

	for _, id := range d.psoc.VdevIDs() {
		vs, err := d.ledger.Snapshot(id)
		if err != nil {
			// Deleted since we listed it
			continue
		}
		rval = append(rval, vs)
	}
	d.writeJSON(w, http.StatusOK, rval)
}

func (d *daemon) getVdev(w http.ResponseWriter, r *http.Request) {
	vdevID, err := vdevArg(r)
	if err == nil {
		var vs twt.VdevSnapshot
		if vs, err = d.ledger.Snapshot(vdevID); err == nil {
			d.writeJSON(w, http.StatusOK, vs)
			return
		}
	}
	d.writeError(w, r, err)
}

func (d *daemon) postVdev(w http.ResponseWriter, r *http.Request) {
	var req vdevRequest

	vdevID, err := vdevArg(r)
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	if err = readJSON(r, &req); err != nil {
		d.writeError(w, r, err)
		return
	}

	mac, err := net.ParseMAC(req.MAC)
	if err != nil {
		d.writeError(w, r, errors.Errorf("bad mac address: %s", req.MAC))
		return
	}
	mode, err := objmgr.ParseMode(req.Mode)
	if err != nil {
		d.writeError(w, r, err)
		return
	}

	if _, err = d.psoc.CreateVdev(vdevID, mac, mode); err != nil {
		d.writeError(w, r, err)
		return
	}
	d.slog.Infof("created %v vdev %d (%s)", mode, vdevID, mac)
	d.getVdev(w, r)
}

func (d *daemon) deleteVdev(w http.ResponseWriter, r *http.Request) {
	vdevID, err := vdevArg(r)
	if err == nil {
		err = d.psoc.DeleteVdev(vdevID)
	}
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	d.slog.Infof("deleted vdev %d", vdevID)
	w.WriteHeader(http.StatusNoContent)
}

func (d *daemon) postPeer(w http.ResponseWriter, r *http.Request) {
	vdevID, err := vdevArg(r)
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	mac, err := macArg(r)
	if err != nil {
		d.writeError(w, r, err)
		return
	}

	ref, err := d.psoc.GetVdevByID(vdevID, objmgr.RefHost)
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	_, err = ref.Vdev().CreatePeer(mac)
	ref.Release()
	if err != nil {
		d.writeError(w, r, err)
		return
	}

	d.slog.Infof("vdev %d: peer %s associated", vdevID, mac)
	d.getPeer(w, r)
}

func (d *daemon) getPeer(w http.ResponseWriter, r *http.Request) {
	_, mac, err := d.peerArgs(r)
	if err == nil {
		var ps twt.PeerSnapshot
		if ps, err = d.ledger.PeerSnapshot(mac); err == nil {
			d.writeJSON(w, http.StatusOK, ps)
			return
		}
	}
	d.writeError(w, r, err)
}

func (d *daemon) deletePeer(w http.ResponseWriter, r *http.Request) {
	vdevID, mac, err := d.peerArgs(r)
	if err == nil {
		err = d.psoc.DeletePeer(mac)
	}
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	d.slog.Infof("vdev %d: peer %s disassociated", vdevID, mac)
	w.WriteHeader(http.StatusNoContent)
}

func (d *daemon) putCaps(w http.ResponseWriter, r *http.Request) {
	var req capsRequest

	_, mac, err := d.peerArgs(r)
	if err == nil {
		err = readJSON(r, &req)
	}
	if err == nil {
		err = d.ledger.SetPeerCapabilities(mac, req.HECap, req.HEOp)
	}
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	d.getPeer(w, r)
}

func (d *daemon) sessionStatus(mac net.HardwareAddr,
	dialog twt.DialogID) sessionStatus {

	active, inProgress := d.ledger.IsCommandInProgress(mac, dialog, twt.Any)
	return sessionStatus{
		Dialog:          dialog,
		SetupDone:       d.ledger.IsSetupDone(mac, dialog),
		SetupInProgress: d.ledger.IsSetupInProgress(mac, dialog),
		State:           d.ledger.GetSessionState(mac, dialog),
		ActiveCmd:       active,
		CmdInProgress:   inProgress,
		MaxReached:      d.ledger.IsMaxSessionsReached(mac, dialog),
	}
}

func (d *daemon) getSession(w http.ResponseWriter, r *http.Request) {
	_, mac, dialog, err := d.peerSessionArgs(r)
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	d.writeJSON(w, http.StatusOK, d.sessionStatus(mac, dialog))
}

func (d *daemon) postSession(w http.ResponseWriter, r *http.Request) {
	_, mac, dialog, err := d.peerSessionArgs(r)
	if err == nil {
		err = d.ledger.AddSession(mac, dialog)
	}
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	d.writeJSON(w, http.StatusCreated, d.sessionStatus(mac, dialog))
}

func (d *daemon) deleteSession(w http.ResponseWriter, r *http.Request) {
	_, mac, dialog, err := d.peerSessionArgs(r)
	if err == nil {
		err = d.ledger.InitContext(mac, dialog)
	}
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (d *daemon) deleteVdevSessions(w http.ResponseWriter, r *http.Request) {
	vdevID, err := vdevArg(r)
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	dialog, err := dialogArg(r)
	if err == nil {
		err = d.ledger.InitAllPeersContext(vdevID, dialog)
	}
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// putCmd records a command against a peer.  The broadcast address applies it
// to every peer of the vdev.
func (d *daemon) putCmd(w http.ResponseWriter, r *http.Request) {
	var req cmdRequest
	var mac net.HardwareAddr
	var dialog twt.DialogID

	vdevID, err := vdevArg(r)
	if err == nil {
		mac, err = macArg(r)
	}
	if err == nil {
		dialog, err = dialogArg(r)
	}
	if err == nil {
		err = readJSON(r, &req)
	}
	if err == nil {
		err = d.ledger.SapSetCommandInProgress(vdevID, mac, dialog, req.Cmd)
	}
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (d *daemon) getPeerCmd(w http.ResponseWriter, r *http.Request) {
	_, mac, dialog, err := d.peerSessionArgs(r)
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	cmd, err := cmdArg(r)
	if err != nil {
		d.writeError(w, r, err)
		return
	}

	d.writeJSON(w, http.StatusOK, cmdStatus{
		Cmd:        cmd,
		InProgress: d.ledger.PeerIsCommandInProgress(mac, dialog, cmd),
	})
}

func (d *daemon) getVdevCmd(w http.ResponseWriter, r *http.Request) {
	var dialog twt.DialogID
	var cmd twt.Command

	vdevID, err := vdevArg(r)
	if err == nil {
		dialog, err = dialogArg(r)
	}
	if err == nil {
		cmd, err = cmdArg(r)
	}
	if err != nil {
		d.writeError(w, r, err)
		return
	}

	d.writeJSON(w, http.StatusOK, cmdStatus{
		Cmd:        cmd,
		InProgress: d.ledger.VdevAnyPeerCommandInProgress(vdevID, dialog, cmd),
	})
}

func (d *daemon) putState(w http.ResponseWriter, r *http.Request) {
	var req stateRequest

	_, mac, dialog, err := d.peerSessionArgs(r)
	if err == nil {
		err = readJSON(r, &req)
	}
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	d.ledger.SetSessionState(mac, dialog, req.State)
	d.writeJSON(w, http.StatusOK, d.sessionStatus(mac, dialog))
}

func (d *daemon) putSetup(w http.ResponseWriter, r *http.Request) {
	var req setupRequest

	_, mac, dialog, err := d.peerSessionArgs(r)
	if err == nil {
		err = readJSON(r, &req)
	}
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	d.ledger.SetSetupDone(mac, dialog, req.Done)
	d.writeJSON(w, http.StatusOK, d.sessionStatus(mac, dialog))
}

func (d *daemon) putNotify(w http.ResponseWriter, r *http.Request) {
	var req notifyRequest

	vdevID, err := vdevArg(r)
	if err == nil {
		err = readJSON(r, &req)
	}
	if err == nil {
		err = d.ledger.SetWaitForNotify(vdevID, req.Wait)
	}
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	d.getVdev(w, r)
}

func (d *daemon) getHistory(w http.ResponseWriter, r *http.Request) {
	d.writeJSON(w, http.StatusOK, d.ledger.History())
}

func (d *daemon) getSettings(w http.ResponseWriter, r *http.Request) {
	d.writeJSON(w, http.StatusOK, d.cfg.Settings().Describe())
}

func (d *daemon) getSetting(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	val, err := d.cfg.Settings().Get(name)
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	d.writeJSON(w, http.StatusOK, settingValue{Name: name, Value: val})
}

func (d *daemon) putSetting(w http.ResponseWriter, r *http.Request) {
	var req settingRequest

	name := mux.Vars(r)["name"]
	err := readJSON(r, &req)
	if err == nil {
		err = d.cfg.Settings().UpdateSetting(name, req.Value)
	}
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	d.getSetting(w, r)
}

func (d *daemon) deleteSetting(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	if err := d.cfg.Settings().ResetSetting(name); err != nil {
		d.writeError(w, r, err)
		return
	}
	d.getSetting(w, r)
}

// timed records the handling time of each request against its route template
func (d *daemon) timed(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)

		route := "unknown"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tmpl, err := cur.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		d.latencies.WithLabelValues(route).Observe(
			time.Since(start).Seconds())
	})
}

func (d *daemon) router(withMetrics bool) *mux.Router {
	const (
		vdev    = "/api/vdevs/{vdev:[0-9]+}"
		peer    = vdev + "/peers/{mac}"
		session = peer + "/sessions/{dialog}"
	)

	r := mux.NewRouter()
	r.Use(d.timed)

	r.HandleFunc("/api/vdevs", d.getVdevs).Methods("GET")
	r.HandleFunc(vdev, d.getVdev).Methods("GET")
	r.HandleFunc(vdev, d.postVdev).Methods("POST")
	r.HandleFunc(vdev, d.deleteVdev).Methods("DELETE")
	r.HandleFunc(vdev+"/notify", d.putNotify).Methods("PUT")
	r.HandleFunc(vdev+"/sessions/{dialog}", d.deleteVdevSessions).
		Methods("DELETE")
	r.HandleFunc(vdev+"/sessions/{dialog}/cmd/{cmd}", d.getVdevCmd).
		Methods("GET")

	r.HandleFunc(peer, d.getPeer).Methods("GET")
	r.HandleFunc(peer, d.postPeer).Methods("POST")
	r.HandleFunc(peer, d.deletePeer).Methods("DELETE")
	r.HandleFunc(peer+"/caps", d.putCaps).Methods("PUT")

	r.HandleFunc(session, d.getSession).Methods("GET")
	r.HandleFunc(session, d.postSession).Methods("POST")
	r.HandleFunc(session, d.deleteSession).Methods("DELETE")
	r.HandleFunc(session+"/cmd", d.putCmd).Methods("PUT")
	r.HandleFunc(session+"/cmd/{cmd}", d.getPeerCmd).Methods("GET")
	r.HandleFunc(session+"/state", d.putState).Methods("PUT")
	r.HandleFunc(session+"/setup", d.putSetup).Methods("PUT")

	r.HandleFunc("/api/history", d.getHistory).Methods("GET")
	r.HandleFunc("/api/settings", d.getSettings).Methods("GET")
	r.HandleFunc("/api/settings/{name}", d.getSetting).Methods("GET")
	r.HandleFunc("/api/settings/{name}", d.putSetting).Methods("PUT")
	r.HandleFunc("/api/settings/{name}", d.deleteSetting).Methods("DELETE")

	if withMetrics {
		r.Handle("/metrics", promhttp.Handler())
	}
	return r
}
