/*
 * Copyright 2021 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */

package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"bgwlan/ap_common/apcfg"
	"bgwlan/ap_common/objmgr"
	"bgwlan/ap_common/twt"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	apMAC   = "02:00:00:00:01:00"
	ap2MAC  = "02:00:00:00:02:00"
	staMAC  = "02:00:00:00:00:01"
	sta2MAC = "02:00:00:00:00:02"
	bcast   = "ff:ff:ff:ff:ff:ff"
)

type testDaemon struct {
	*daemon
	t      *testing.T
	api    http.Handler
}

func newTestDaemon(t *testing.T) *testDaemon {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/twtd.yaml",
		[]byte("twt_max_sessions_per_peer: 2\n"), 0644)

	d, err := newDaemon(zaptest.NewLogger(t).Sugar(), fs, "/twtd.yaml")
	require.NoError(t, err)
	return &testDaemon{daemon: d, t: t, api: d.router(false)}
}

func (td *testDaemon) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer

	if body != nil {
		require.NoError(td.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	td.api.ServeHTTP(rec, req)
	return rec
}

func (td *testDaemon) expect(code int, method, path string, body,
	out interface{}) {

	rec := td.do(method, path, body)
	require.Equal(td.t, code, rec.Code, "%s %s: %s", method, path,
		rec.Body.String())
	if out != nil {
		require.NoError(td.t, json.Unmarshal(rec.Body.Bytes(), out))
	}
}

func (td *testDaemon) addVdev(id, mac string) {
	td.expect(http.StatusOK, "POST", "/api/vdevs/"+id,
		vdevRequest{MAC: mac, Mode: "sap"}, nil)
}

func (td *testDaemon) addPeer(vdev, mac string) {
	td.expect(http.StatusOK, "POST", "/api/vdevs/"+vdev+"/peers/"+mac,
		nil, nil)
}

func (td *testDaemon) checkRefs() {
	require.Zero(td.t, td.psoc.Outstanding(objmgr.RefHost))
	require.Zero(td.t, td.psoc.Outstanding(objmgr.RefTWT))
}

func TestVdevLifecycle(t *testing.T) {
	assert := require.New(t)
	td := newTestDaemon(t)

	var vs twt.VdevSnapshot
	td.expect(http.StatusOK, "POST", "/api/vdevs/0",
		vdevRequest{MAC: apMAC, Mode: "ap"}, &vs)
	assert.Equal("sap", vs.Mode)
	assert.Equal(apMAC, vs.MAC)
	assert.Empty(vs.Peers)

	td.expect(http.StatusConflict, "POST", "/api/vdevs/0",
		vdevRequest{MAC: apMAC, Mode: "sap"}, nil)
	td.expect(http.StatusBadRequest, "POST", "/api/vdevs/1",
		vdevRequest{MAC: apMAC, Mode: "mesh"}, nil)
	td.expect(http.StatusBadRequest, "POST", "/api/vdevs/1",
		vdevRequest{MAC: "not-a-mac"}, nil)
	td.expect(http.StatusBadRequest, "POST", "/api/vdevs/300",
		vdevRequest{MAC: apMAC}, nil)

	var all []twt.VdevSnapshot
	td.expect(http.StatusOK, "GET", "/api/vdevs", nil, &all)
	assert.Len(all, 1)

	td.expect(http.StatusNoContent, "DELETE", "/api/vdevs/0", nil, nil)
	td.expect(http.StatusNotFound, "GET", "/api/vdevs/0", nil, nil)
	td.expect(http.StatusNotFound, "DELETE", "/api/vdevs/0", nil, nil)
	td.checkRefs()
}

func TestSessionFlow(t *testing.T) {
	assert := require.New(t)
	td := newTestDaemon(t)
	td.addVdev("0", apMAC)
	td.addPeer("0", staMAC)

	session := "/api/vdevs/0/peers/" + staMAC + "/sessions/"

	var st sessionStatus
	td.expect(http.StatusCreated, "POST", session+"5", nil, &st)
	assert.True(st.SetupInProgress)
	assert.False(st.MaxReached)
	td.expect(http.StatusCreated, "POST", session+"9", nil, nil)

	// Limited to two sessions by the settings file
	td.expect(http.StatusOK, "GET", session+"7", nil, &st)
	assert.True(st.MaxReached)
	td.expect(http.StatusConflict, "POST", session+"7", nil, nil)

	td.expect(http.StatusNoContent, "PUT", session+"5/cmd",
		cmdRequest{Cmd: twt.Setup}, nil)
	td.expect(http.StatusOK, "GET", session+"5", nil, &st)
	assert.True(st.CmdInProgress)
	assert.Equal(twt.Setup, st.ActiveCmd)

	var cs cmdStatus
	td.expect(http.StatusOK, "GET", session+"5/cmd/setup", nil, &cs)
	assert.True(cs.InProgress)
	td.expect(http.StatusOK, "GET", "/api/vdevs/0/sessions/5/cmd/setup",
		nil, &cs)
	assert.True(cs.InProgress)
	td.expect(http.StatusOK, "GET", "/api/vdevs/0/sessions/9/cmd/any",
		nil, &cs)
	assert.False(cs.InProgress)

	td.expect(http.StatusOK, "PUT", session+"5/setup",
		setupRequest{Done: true}, &st)
	assert.True(st.SetupDone)
	assert.False(st.SetupInProgress)

	td.expect(http.StatusOK, "PUT", session+"5/state",
		stateRequest{State: twt.Active}, &st)
	assert.Equal(twt.Active, st.State)

	td.expect(http.StatusNoContent, "PUT", session+"5/cmd",
		cmdRequest{Cmd: twt.None}, nil)

	td.expect(http.StatusNoContent, "DELETE", session+"all", nil, nil)

	var ps twt.PeerSnapshot
	td.expect(http.StatusOK, "GET", "/api/vdevs/0/peers/"+staMAC, nil, &ps)
	assert.Empty(ps.Sessions)
	assert.Equal(2, ps.MaxSessions)

	var h []twt.HistoryEntry
	td.expect(http.StatusOK, "GET", "/api/history", nil, &h)
	assert.Len(h, 2)
	td.checkRefs()
}

func TestVdevSessions(t *testing.T) {
	assert := require.New(t)
	td := newTestDaemon(t)
	td.addVdev("0", apMAC)
	td.addPeer("0", staMAC)
	td.addPeer("0", sta2MAC)

	for _, mac := range []string{staMAC, sta2MAC} {
		td.expect(http.StatusCreated, "POST",
			"/api/vdevs/0/peers/"+mac+"/sessions/1", nil, nil)
	}

	td.expect(http.StatusNoContent, "PUT",
		"/api/vdevs/0/peers/"+bcast+"/sessions/all/cmd",
		cmdRequest{Cmd: twt.Teardown}, nil)

	var vs twt.VdevSnapshot
	td.expect(http.StatusOK, "GET", "/api/vdevs/0", nil, &vs)
	assert.Len(vs.Peers, 2)
	for _, p := range vs.Peers {
		assert.Len(p.Sessions, 1)
		assert.Equal(twt.Teardown, p.Sessions[0].ActiveCmd)
	}

	td.expect(http.StatusNoContent, "DELETE", "/api/vdevs/0/sessions/1",
		nil, nil)
	td.expect(http.StatusOK, "GET", "/api/vdevs/0", nil, &vs)
	for _, p := range vs.Peers {
		assert.Empty(p.Sessions)
	}
	td.checkRefs()
}

func TestPeerWrongVdev(t *testing.T) {
	td := newTestDaemon(t)
	td.addVdev("0", apMAC)
	td.addVdev("1", ap2MAC)
	td.addPeer("1", staMAC)

	td.expect(http.StatusNotFound, "GET", "/api/vdevs/0/peers/"+staMAC,
		nil, nil)
	td.expect(http.StatusNotFound, "POST",
		"/api/vdevs/0/peers/"+staMAC+"/sessions/1", nil, nil)
	td.expect(http.StatusNotFound, "PUT",
		"/api/vdevs/0/peers/"+staMAC+"/sessions/1/cmd",
		cmdRequest{Cmd: twt.Setup}, nil)
	td.expect(http.StatusNotFound, "DELETE", "/api/vdevs/0/peers/"+staMAC,
		nil, nil)

	// Already associated
	td.expect(http.StatusConflict, "POST", "/api/vdevs/0/peers/"+staMAC,
		nil, nil)
	td.expect(http.StatusNotFound, "POST", "/api/vdevs/4/peers/"+sta2MAC,
		nil, nil)

	td.expect(http.StatusNoContent, "DELETE", "/api/vdevs/1/peers/"+staMAC,
		nil, nil)
	td.checkRefs()
}

func TestCapsAndNotify(t *testing.T) {
	assert := require.New(t)
	td := newTestDaemon(t)
	td.addVdev("0", apMAC)
	td.addPeer("0", staMAC)

	var ps twt.PeerSnapshot
	td.expect(http.StatusOK, "PUT", "/api/vdevs/0/peers/"+staMAC+"/caps",
		capsRequest{
			HECap: twt.HECap{TwtRequest: true, BroadcastTwt: true},
			HEOp:  twt.HEOp{TwtRequired: true},
		}, &ps)
	assert.Equal(twt.CapRequestor|twt.CapBroadcast|twt.CapRequired,
		ps.Capabilities)

	var vs twt.VdevSnapshot
	td.expect(http.StatusOK, "PUT", "/api/vdevs/0/notify",
		notifyRequest{Wait: true}, &vs)
	assert.True(vs.WaitForNotify)
	td.expect(http.StatusNotFound, "PUT", "/api/vdevs/3/notify",
		notifyRequest{Wait: true}, nil)
	td.checkRefs()
}

func TestBadArguments(t *testing.T) {
	td := newTestDaemon(t)
	td.addVdev("0", apMAC)
	td.addPeer("0", staMAC)

	session := "/api/vdevs/0/peers/" + staMAC + "/sessions/"

	td.expect(http.StatusBadRequest, "GET", "/api/vdevs/0/peers/bogus",
		nil, nil)
	td.expect(http.StatusBadRequest, "POST", session+"256", nil, nil)
	td.expect(http.StatusBadRequest, "POST", session+"all", nil, nil)
	td.expect(http.StatusBadRequest, "GET", session+"1/cmd/reboot",
		nil, nil)
	td.expect(http.StatusBadRequest, "PUT", session+"1/cmd",
		map[string]string{"cmd": "any"}, nil)
	td.expect(http.StatusBadRequest, "PUT", session+"1/state",
		map[string]string{"state": "dozing"}, nil)
	td.expect(http.StatusNotFound, "GET", "/api/nothing", nil, nil)
	td.checkRefs()
}

func TestSettingsAPI(t *testing.T) {
	assert := require.New(t)
	td := newTestDaemon(t)

	var info []apcfg.Info
	td.expect(http.StatusOK, "GET", "/api/settings", nil, &info)
	assert.Len(info, 10)

	var sv settingValue
	td.expect(http.StatusOK, "GET", "/api/settings/twt_max_sessions_per_peer",
		nil, &sv)
	assert.Equal("2", sv.Value)

	td.expect(http.StatusOK, "PUT", "/api/settings/twt_max_sessions_per_peer",
		settingRequest{Value: "3"}, &sv)
	assert.Equal("3", sv.Value)
	assert.Equal(3, td.cfg.GetTwtMaxSessions())

	td.expect(http.StatusBadRequest, "PUT",
		"/api/settings/twt_max_sessions_per_peer",
		settingRequest{Value: "12"}, nil)
	td.expect(http.StatusForbidden, "PUT", "/api/settings/twt_history_size",
		settingRequest{Value: "5"}, nil)
	td.expect(http.StatusNotFound, "PUT", "/api/settings/twt_colour",
		settingRequest{Value: "blue"}, nil)

	td.expect(http.StatusOK, "DELETE",
		"/api/settings/twt_max_sessions_per_peer", nil, &sv)
	assert.Equal("8", sv.Value)
}

func TestMiddleware(t *testing.T) {
	assert := require.New(t)
	td := newTestDaemon(t)

	var log bytes.Buffer
	h := td.handler(&log)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/vdevs", nil))
	assert.Equal(http.StatusOK, rec.Code)
	assert.Equal("DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal("nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Contains(log.String(), "GET /api/vdevs")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(http.StatusOK, rec.Code)
}
