/*
 * Copyright 2021 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */

package apcfg

import (
	"fmt"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestSettings(t *testing.T) *Settings {
	return NewSettings(zaptest.NewLogger(t).Sugar())
}

func TestDefaults(t *testing.T) {
	assert := require.New(t)
	s := newTestSettings(t)

	b := s.Bool("enabled", true, false, nil)
	i := s.Int("count", 3, true, nil)
	str := s.String("name", "twt", true, nil)
	d := s.Duration("timeout", 100*time.Millisecond, true, nil)

	assert.True(b.Get())
	assert.Equal(3, i.Get())
	assert.Equal("twt", str.Get())
	assert.Equal(100*time.Millisecond, d.Get())

	info := s.Describe()
	assert.Len(info, 4)
	assert.Equal("count", info[0].Name)
	assert.Equal("int", info[0].Type)
	assert.Equal("timeout", info[3].Name)
	assert.Equal("100ms", info[3].Default)
}

func TestUpdate(t *testing.T) {
	assert := require.New(t)
	s := newTestSettings(t)

	i := s.Int("count", 3, true, nil)
	assert.NoError(s.UpdateSetting("count", "7"))
	assert.Equal(7, i.Get())

	assert.Error(s.UpdateSetting("count", "seven"))
	assert.Equal(7, i.Get())

	err := s.UpdateSetting("nosuch", "1")
	assert.Equal(ErrNoSetting, errors.Cause(err))

	assert.NoError(s.ResetSetting("count"))
	assert.Equal(3, i.Get())

	val, err := s.Get("count")
	assert.NoError(err)
	assert.Equal("3", val)
}

func TestCallbackRejects(t *testing.T) {
	assert := require.New(t)
	s := newTestSettings(t)

	var seen string
	i := s.Int("max", 4, true, func(name, val string) error {
		seen = val
		if val == "0" {
			return fmt.Errorf("%s must be positive", name)
		}
		return nil
	})

	assert.Error(s.UpdateSetting("max", "0"))
	assert.Equal("0", seen)
	assert.Equal(4, i.Get())

	assert.NoError(s.UpdateSetting("max", "2"))
	assert.Equal(2, i.Get())
}

func TestResetCallback(t *testing.T) {
	assert := require.New(t)
	s := newTestSettings(t)

	var calls []string
	veto := false
	i := s.Int("max", 4, true, func(name, val string) error {
		calls = append(calls, val)
		if veto {
			return fmt.Errorf("%s is locked", name)
		}
		return nil
	})

	assert.NoError(s.UpdateSetting("max", "2"))
	veto = true
	err := s.ResetSetting("max")
	assert.Error(err)
	assert.Contains(err.Error(), "max is locked")
	assert.Equal(2, i.Get())

	veto = false
	assert.NoError(s.ResetSetting("max"))
	assert.Equal(4, i.Get())
	assert.Equal([]string{"2", "4", "4"}, calls)
}

func TestSealed(t *testing.T) {
	assert := require.New(t)
	s := newTestSettings(t)

	b := s.Bool("static", false, false, nil)
	s.Bool("dynamic", false, true, nil)

	assert.NoError(s.UpdateSetting("static", "true"))
	assert.True(b.Get())

	s.Seal()
	err := s.UpdateSetting("static", "false")
	assert.Equal(ErrStatic, errors.Cause(err))
	assert.True(b.Get())
	assert.Equal(ErrStatic, errors.Cause(s.ResetSetting("static")))

	assert.NoError(s.UpdateSetting("dynamic", "true"))
}

func TestDuplicatePanics(t *testing.T) {
	s := newTestSettings(t)
	s.Bool("dup", false, false, nil)
	require.Panics(t, func() { s.Int("dup", 1, false, nil) })
}

func TestLoadFile(t *testing.T) {
	assert := require.New(t)
	s := newTestSettings(t)
	fs := afero.NewMemMapFs()

	b := s.Bool("enabled", false, false, nil)
	d := s.Duration("timeout", time.Second, false, nil)
	i := s.Int("count", 1, false, nil)

	// A missing file leaves the defaults alone
	assert.NoError(s.LoadFile(fs, "/etc/missing.yaml"))
	assert.False(b.Get())

	conf := "enabled: true\ntimeout: 250ms\ncount: 5\n"
	assert.NoError(afero.WriteFile(fs, "/etc/twt.yaml", []byte(conf), 0644))
	assert.NoError(s.LoadFile(fs, "/etc/twt.yaml"))
	assert.True(b.Get())
	assert.Equal(250*time.Millisecond, d.Get())
	assert.Equal(5, i.Get())

	bad := "enabled: true\nbogus: 1\n"
	assert.NoError(afero.WriteFile(fs, "/etc/bad.yaml", []byte(bad), 0644))
	assert.Error(s.LoadFile(fs, "/etc/bad.yaml"))

	assert.NoError(afero.WriteFile(fs, "/etc/junk.yaml", []byte("[:"), 0644))
	assert.Error(s.LoadFile(fs, "/etc/junk.yaml"))
}
