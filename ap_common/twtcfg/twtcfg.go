/*
 * Copyright 2021 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */

// Package twtcfg holds the TWT tunables of an access point: which TWT roles
// the radio may take, and the limits the session ledger enforces.
package twtcfg

import (
	"strconv"
	"time"

	"bgwlan/ap_common/apcfg"
	"bgwlan/ap_common/aputil"
	"bgwlan/ap_common/twt"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/tomazk/envcfg"
	"go.uber.org/zap"
)

// Setting names
const (
	Enable            = "enable_twt"
	Requestor         = "twt_requestor"
	Responder         = "twt_responder"
	BcastRequestor    = "twt_bcast_requestor"
	BcastResponder    = "twt_bcast_responder"
	Enable24GHz       = "twt_24ghz_enable"
	CongestionTimeout = "twt_congestion_timeout"
	MaxSessions       = "twt_max_sessions_per_peer"
	HistorySize       = "twt_history_size"
	LogLevel          = "log_level"
)

// Defaults
const (
	DefaultCongestionTimeout = 100 * time.Millisecond
	DefaultMaxSessions       = twt.MaxSessionsPerPeer
	DefaultHistorySize       = 64
)

// Values taken from the environment override those in the settings file.
// Empty means unset.
type environ struct {
	Enable            string `envcfg:"B10E_TWT_ENABLE"`
	Requestor         string `envcfg:"B10E_TWT_REQUESTOR"`
	Responder         string `envcfg:"B10E_TWT_RESPONDER"`
	BcastRequestor    string `envcfg:"B10E_TWT_BCAST_REQUESTOR"`
	BcastResponder    string `envcfg:"B10E_TWT_BCAST_RESPONDER"`
	Enable24GHz       string `envcfg:"B10E_TWT_24GHZ_ENABLE"`
	CongestionTimeout string `envcfg:"B10E_TWT_CONGESTION_TIMEOUT"`
	MaxSessions       string `envcfg:"B10E_TWT_MAX_SESSIONS"`
	HistorySize       string `envcfg:"B10E_TWT_HISTORY_SIZE"`
	LogLevel          string `envcfg:"B10E_TWT_LOG_LEVEL"`
}

// Config is the TWT configuration of a single daemon
type Config struct {
	settings *apcfg.Settings

	enable      *apcfg.BoolSetting
	requestor   *apcfg.BoolSetting
	responder   *apcfg.BoolSetting
	bcastReq    *apcfg.BoolSetting
	bcastResp   *apcfg.BoolSetting
	band24      *apcfg.BoolSetting
	congestion  *apcfg.DurationSetting
	maxSessions *apcfg.IntSetting
	historySize *apcfg.IntSetting
	logLevel    *apcfg.StringSetting
}

func checkMaxSessions(name, val string) error {
	n, err := strconv.Atoi(val)
	if err != nil {
		return err
	}
	if n < 1 || n > twt.MaxSessionsPerPeer {
		return errors.Errorf("%s must be between 1 and %d", name,
			twt.MaxSessionsPerPeer)
	}
	return nil
}

func checkPositive(name, val string) error {
	n, err := strconv.Atoi(val)
	if err == nil && n < 1 {
		err = errors.Errorf("%s must be positive", name)
	}
	return err
}

// New registers the TWT settings, at their defaults, in a new registry
func New(slog *zap.SugaredLogger) *Config {
	s := apcfg.NewSettings(slog)

	return &Config{
		settings:    s,
		enable:      s.Bool(Enable, true, true, nil),
		requestor:   s.Bool(Requestor, true, true, nil),
		responder:   s.Bool(Responder, false, true, nil),
		bcastReq:    s.Bool(BcastRequestor, true, true, nil),
		bcastResp:   s.Bool(BcastResponder, false, true, nil),
		band24:      s.Bool(Enable24GHz, true, true, nil),
		congestion:  s.Duration(CongestionTimeout, DefaultCongestionTimeout, true, nil),
		maxSessions: s.Int(MaxSessions, DefaultMaxSessions, true, checkMaxSessions),
		historySize: s.Int(HistorySize, DefaultHistorySize, false, checkPositive),
		logLevel:    s.String(LogLevel, "info", true, aputil.LogSetLevel),
	}
}

// Settings returns the registry backing the configuration
func (c *Config) Settings() *apcfg.Settings {
	return c.settings
}

// Load applies the settings file, if there is one, and then any overrides
// found in the environment.  The registry is sealed afterwards, so static
// settings keep their loaded values for the life of the daemon.
func (c *Config) Load(fs afero.Fs, path string) error {
	if path != "" {
		if err := c.settings.LoadFile(fs, path); err != nil {
			return err
		}
	}
	if err := c.LoadEnv(); err != nil {
		return err
	}
	c.settings.Seal()
	return nil
}

// LoadEnv applies the B10E_TWT_* environment variables
func (c *Config) LoadEnv() error {
	var env environ

	if err := envcfg.Unmarshal(&env); err != nil {
		return errors.Wrap(err, "reading environment")
	}

	overrides := []struct {
		name string
		val  string
	}{
		{Enable, env.Enable},
		{Requestor, env.Requestor},
		{Responder, env.Responder},
		{BcastRequestor, env.BcastRequestor},
		{BcastResponder, env.BcastResponder},
		{Enable24GHz, env.Enable24GHz},
		{CongestionTimeout, env.CongestionTimeout},
		{MaxSessions, env.MaxSessions},
		{HistorySize, env.HistorySize},
		{LogLevel, env.LogLevel},
	}
	for _, o := range overrides {
		if o.val == "" {
			continue
		}
		if err := c.settings.UpdateSetting(o.name, o.val); err != nil {
			return errors.Wrap(err, "environment")
		}
	}
	return nil
}

func (c *Config) setBool(name string, val bool) error {
	return c.settings.UpdateSetting(name, strconv.FormatBool(val))
}

// GetTwtEnable reports whether TWT is enabled at all
func (c *Config) GetTwtEnable() bool { return c.enable.Get() }

// SetTwtEnable enables or disables TWT
func (c *Config) SetTwtEnable(val bool) error { return c.setBool(Enable, val) }

// GetTwtRequestor reports whether the radio may act as an individual TWT
// requestor
func (c *Config) GetTwtRequestor() bool { return c.requestor.Get() }

// SetTwtRequestor sets the individual TWT requestor role
func (c *Config) SetTwtRequestor(val bool) error {
	return c.setBool(Requestor, val)
}

// GetTwtResponder reports whether the radio may act as an individual TWT
// responder
func (c *Config) GetTwtResponder() bool { return c.responder.Get() }

// SetTwtResponder sets the individual TWT responder role
func (c *Config) SetTwtResponder(val bool) error {
	return c.setBool(Responder, val)
}

// GetBcastTwtRequestor reports whether the radio may request broadcast TWT
func (c *Config) GetBcastTwtRequestor() bool { return c.bcastReq.Get() }

// SetBcastTwtRequestor sets the broadcast TWT requestor role
func (c *Config) SetBcastTwtRequestor(val bool) error {
	return c.setBool(BcastRequestor, val)
}

// GetBcastTwtResponder reports whether the radio may schedule broadcast TWT
func (c *Config) GetBcastTwtResponder() bool { return c.bcastResp.Get() }

// SetBcastTwtResponder sets the broadcast TWT responder role
func (c *Config) SetBcastTwtResponder(val bool) error {
	return c.setBool(BcastResponder, val)
}

// GetTwt24GHzEnable reports whether TWT is allowed on 2.4GHz
func (c *Config) GetTwt24GHzEnable() bool { return c.band24.Get() }

// SetTwt24GHzEnable allows or forbids TWT on 2.4GHz
func (c *Config) SetTwt24GHzEnable(val bool) error {
	return c.setBool(Enable24GHz, val)
}

// GetTwtCongestionTimeout returns how long the medium must be congested before
// TWT sessions are torn down
func (c *Config) GetTwtCongestionTimeout() time.Duration {
	return c.congestion.Get()
}

// SetTwtCongestionTimeout sets the congestion timeout
func (c *Config) SetTwtCongestionTimeout(val time.Duration) error {
	return c.settings.UpdateSetting(CongestionTimeout, val.String())
}

// GetTwtMaxSessions returns the per-peer session limit
func (c *Config) GetTwtMaxSessions() int {
	n := c.maxSessions.Get()
	if n < 1 {
		n = 1
	} else if n > twt.MaxSessionsPerPeer {
		n = twt.MaxSessionsPerPeer
	}
	return n
}

// SetTwtMaxSessions sets the per-peer session limit.  Peers pick up a new
// limit the next time their context is initialized.
func (c *Config) SetTwtMaxSessions(val int) error {
	return c.settings.UpdateSetting(MaxSessions, strconv.Itoa(val))
}

// GetTwtHistorySize returns the number of freed sessions to remember
func (c *Config) GetTwtHistorySize() int { return c.historySize.Get() }
