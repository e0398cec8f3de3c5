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
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bgwlan/ap_common/apcfg"
	"bgwlan/ap_common/twt"

	"github.com/fatih/color"
	"github.com/stretchr/testify/require"
)

type reply struct {
	code int
	body interface{}
}

type request struct {
	method string
	path   string
	body   string
}

type fakeTwtd struct {
	replies  map[string]reply
	requests []request
}

func (f *fakeTwtd) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := ioutil.ReadAll(r.Body)
	f.requests = append(f.requests, request{
		method: r.Method,
		path:   r.URL.Path,
		body:   strings.TrimSpace(string(body)),
	})

	rep, ok := f.replies[r.Method+" "+r.URL.Path]
	if !ok {
		rep = reply{http.StatusNoContent, nil}
	}
	if rep.body == nil {
		w.WriteHeader(rep.code)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rep.code)
	json.NewEncoder(w).Encode(rep.body)
}

func runCtl(t *testing.T, replies map[string]reply,
	args ...string) (*fakeTwtd, string, error) {

	color.NoColor = true

	fake := &fakeTwtd{replies: replies}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOutput(&out)
	root.SetArgs(append([]string{"--server", srv.URL}, args...))
	err := root.Execute()
	return fake, out.String(), err
}

var testVdev = twt.VdevSnapshot{
	ID:   0,
	MAC:  "02:00:00:00:01:00",
	Mode: "sap",
	Peers: []twt.PeerSnapshot{
		{
			MAC:          "02:00:00:00:00:01",
			Capabilities: twt.CapRequestor | twt.CapBroadcast,
			MaxSessions:  8,
			Sessions: []twt.SessionSnapshot{
				{Dialog: 5, State: twt.Active, ActiveCmd: twt.Setup},
				{Dialog: 9, SetupDone: true, State: twt.Suspended},
			},
		},
		{
			MAC:         "02:00:00:00:00:02",
			MaxSessions: 8,
			Sessions:    []twt.SessionSnapshot{},
		},
	},
}

func TestStatus(t *testing.T) {
	assert := require.New(t)

	fake, out, err := runCtl(t, map[string]reply{
		"GET /api/vdevs": {http.StatusOK, []twt.VdevSnapshot{testVdev}},
	}, "status")
	assert.NoError(err)
	assert.Len(fake.requests, 1)

	assert.Contains(out, "vdev 0  02:00:00:00:01:00  sap")
	assert.Contains(out, "requestor|broadcast")
	assert.Contains(out, "setup")
	assert.Contains(out, "suspended")
	assert.Contains(out, "02:00:00:00:00:02")

	_, out, err = runCtl(t, map[string]reply{
		"GET /api/vdevs": {http.StatusOK, []twt.VdevSnapshot{}},
	}, "status")
	assert.NoError(err)
	assert.Equal("no vdevs\n", out)
}

func TestSessionCommands(t *testing.T) {
	assert := require.New(t)

	fake, _, err := runCtl(t, nil,
		"session", "cmd", "0", "broadcast", "all", "teardown")
	assert.NoError(err)
	assert.Equal(request{
		method: "PUT",
		path:   "/api/vdevs/0/peers/ff:ff:ff:ff:ff:ff/sessions/all/cmd",
		body:   `{"cmd":"teardown"}`,
	}, fake.requests[0])

	fake, _, err = runCtl(t, nil, "session", "reset", "2", "all", "7")
	assert.NoError(err)
	assert.Equal("DELETE", fake.requests[0].method)
	assert.Equal("/api/vdevs/2/sessions/7", fake.requests[0].path)

	fake, _, err = runCtl(t, nil,
		"session", "reset", "0", "02:00:00:00:00:01", "all")
	assert.NoError(err)
	assert.Equal("/api/vdevs/0/peers/02:00:00:00:00:01/sessions/all",
		fake.requests[0].path)

	status := sessionStatus{Dialog: 3, State: twt.Active}
	fake, out, err := runCtl(t, map[string]reply{
		"PUT /api/vdevs/0/peers/02:00:00:00:00:01/sessions/3/state": {
			http.StatusOK, status},
	}, "session", "state", "0", "02:00:00:00:00:01", "3", "Active")
	assert.NoError(err)
	assert.Equal(`{"state":"active"}`, fake.requests[0].body)
	assert.Contains(out, "peer 02:00:00:00:00:01 dialog 3")
}

func TestBadArguments(t *testing.T) {
	testCases := [][]string{
		{"session", "add", "0", "nonsense", "1"},
		{"session", "add", "0", "02:00:00:00:00:01", "300"},
		{"session", "cmd", "0", "02:00:00:00:00:01", "1", "reboot"},
		{"session", "setup", "0", "02:00:00:00:00:01", "1", "maybe"},
		{"vdev", "del", "vdev0"},
		{"notify", "0", "sometimes"},
		{"peer", "add", "0"},
	}

	for _, args := range testCases {
		fake, _, err := runCtl(t, nil, args...)
		require.Error(t, err, "%v", args)
		require.Empty(t, fake.requests, "%v", args)
	}
}

func TestServerError(t *testing.T) {
	path := "/api/vdevs/0/peers/02:00:00:00:00:01/sessions/4"
	_, _, err := runCtl(t, map[string]reply{
		"POST " + path: {http.StatusConflict,
			map[string]string{"error": "no free twt session slot"}},
	}, "session", "add", "0", "02:00:00:00:00:01", "4")

	require.Error(t, err)
	ae, ok := err.(apiError)
	require.True(t, ok)
	require.Equal(t, http.StatusConflict, ae.Code)
	require.Equal(t, "no free twt session slot", ae.Msg)
}

func TestCaps(t *testing.T) {
	assert := require.New(t)

	fake, _, err := runCtl(t, map[string]reply{
		"PUT /api/vdevs/1/peers/02:00:00:00:00:01/caps": {
			http.StatusOK, testVdev.Peers[0]},
	}, "caps", "--requestor", "--required", "1", "02:00:00:00:00:01")
	assert.NoError(err)

	var req struct {
		HECap twt.HECap `json:"he_cap"`
		HEOp  twt.HEOp  `json:"he_op"`
	}
	assert.NoError(json.Unmarshal([]byte(fake.requests[0].body), &req))
	assert.Equal(twt.HECap{TwtRequest: true}, req.HECap)
	assert.Equal(twt.HEOp{TwtRequired: true}, req.HEOp)
}

func TestSettings(t *testing.T) {
	assert := require.New(t)

	fake, out, err := runCtl(t, map[string]reply{
		"DELETE /api/settings/log_level": {http.StatusOK,
			map[string]string{"name": "log_level", "value": "info"}},
	}, "settings", "--reset", "log_level")
	assert.NoError(err)
	assert.Equal("DELETE", fake.requests[0].method)
	assert.Equal("log_level: info\n", out)

	fake, _, err = runCtl(t, map[string]reply{
		"PUT /api/settings/twt_max_sessions_per_peer": {http.StatusOK,
			map[string]string{"name": "twt_max_sessions_per_peer",
				"value": "4"}},
	}, "settings", "twt_max_sessions_per_peer", "4")
	assert.NoError(err)
	assert.Equal(`{"value":"4"}`, fake.requests[0].body)

	_, out, err = runCtl(t, map[string]reply{
		"GET /api/settings": {http.StatusOK, []apcfg.Info{
			{Name: "enable_twt", Type: "bool", Value: "true",
				Default: "true", Dynamic: true},
		}},
	}, "settings")
	assert.NoError(err)
	assert.Contains(out, "enable_twt")
}

func TestFormatHistory(t *testing.T) {
	color.NoColor = true

	out := formatHistory([]twt.HistoryEntry{
		{Seq: 2, MAC: "02:00:00:00:00:01", Dialog: twt.AllSessions,
			State: twt.Terminated, LastCmd: twt.Teardown,
			Freed: time.Now()},
	})
	require.Contains(t, out, "all")
	require.Contains(t, out, "terminated")
	require.Contains(t, out, "teardown")
}
