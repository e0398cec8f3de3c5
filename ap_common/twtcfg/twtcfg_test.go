/*
 * Copyright 2021 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */

package twtcfg

import (
	"os"
	"testing"
	"time"

	"bgwlan/ap_common/apcfg"
	"bgwlan/ap_common/twt"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// Config must satisfy the ledger's view of it
var _ twt.Config = (*Config)(nil)

func TestDefaults(t *testing.T) {
	assert := require.New(t)
	c := New(zaptest.NewLogger(t).Sugar())

	assert.True(c.GetTwtEnable())
	assert.True(c.GetTwtRequestor())
	assert.False(c.GetTwtResponder())
	assert.True(c.GetBcastTwtRequestor())
	assert.False(c.GetBcastTwtResponder())
	assert.True(c.GetTwt24GHzEnable())
	assert.Equal(100*time.Millisecond, c.GetTwtCongestionTimeout())
	assert.Equal(twt.MaxSessionsPerPeer, c.GetTwtMaxSessions())
	assert.Equal(DefaultHistorySize, c.GetTwtHistorySize())
	assert.Len(c.Settings().Describe(), 10)
}

func TestSetters(t *testing.T) {
	assert := require.New(t)
	c := New(zaptest.NewLogger(t).Sugar())

	assert.NoError(c.SetTwtEnable(false))
	assert.False(c.GetTwtEnable())
	assert.NoError(c.SetTwtRequestor(false))
	assert.False(c.GetTwtRequestor())
	assert.NoError(c.SetTwtResponder(true))
	assert.True(c.GetTwtResponder())
	assert.NoError(c.SetBcastTwtRequestor(false))
	assert.False(c.GetBcastTwtRequestor())
	assert.NoError(c.SetBcastTwtResponder(true))
	assert.True(c.GetBcastTwtResponder())
	assert.NoError(c.SetTwt24GHzEnable(false))
	assert.False(c.GetTwt24GHzEnable())
	assert.NoError(c.SetTwtCongestionTimeout(2 * time.Second))
	assert.Equal(2*time.Second, c.GetTwtCongestionTimeout())

	assert.NoError(c.SetTwtMaxSessions(3))
	assert.Equal(3, c.GetTwtMaxSessions())
	assert.Error(c.SetTwtMaxSessions(0))
	assert.Error(c.SetTwtMaxSessions(twt.MaxSessionsPerPeer + 1))
	assert.Equal(3, c.GetTwtMaxSessions())
}

func TestLoad(t *testing.T) {
	assert := require.New(t)
	c := New(zaptest.NewLogger(t).Sugar())

	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/etc/twtd.yaml", []byte(
		"twt_responder: true\n"+
			"twt_max_sessions_per_peer: 4\n"+
			"twt_history_size: 10\n"+
			"twt_congestion_timeout: 250ms\n"), 0644)

	os.Setenv("B10E_TWT_MAX_SESSIONS", "2")
	defer os.Unsetenv("B10E_TWT_MAX_SESSIONS")

	assert.NoError(c.Load(fs, "/etc/twtd.yaml"))
	assert.True(c.GetTwtResponder())
	assert.Equal(2, c.GetTwtMaxSessions())
	assert.Equal(10, c.GetTwtHistorySize())
	assert.Equal(250*time.Millisecond, c.GetTwtCongestionTimeout())

	// Sealed: the history size is fixed, the rest can still change
	err := c.Settings().UpdateSetting(HistorySize, "20")
	assert.Equal(apcfg.ErrStatic, errors.Cause(err))
	assert.NoError(c.SetTwtMaxSessions(5))
}

func TestLoadBadEnv(t *testing.T) {
	c := New(zaptest.NewLogger(t).Sugar())

	os.Setenv("B10E_TWT_ENABLE", "sometimes")
	defer os.Unsetenv("B10E_TWT_ENABLE")

	require.Error(t, c.Load(afero.NewMemMapFs(), "/missing.yaml"))
	require.True(t, c.GetTwtEnable())
}

func TestLoadBadFile(t *testing.T) {
	c := New(zaptest.NewLogger(t).Sugar())

	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/twtd.yaml", []byte("twt_colour: blue\n"), 0644)

	err := c.Load(fs, "/twtd.yaml")
	require.Equal(t, apcfg.ErrNoSetting, errors.Cause(err))
}
