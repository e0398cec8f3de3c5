/*
 * Copyright 2021 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */

// Package apcfg maintains a daemon's tunable settings.  Each setting has a
// name, a type, a default value, and an optional callback which is invoked
// before a new value is accepted.  Static settings may only be changed until
// the registry is sealed; dynamic settings may change at any time.
package apcfg

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

// CallbackFn is invoked with the setting's name and proposed value before the
// value is changed.  Returning an error rejects the change.  Callbacks run
// with the registry locked, so they must not read other settings.
type CallbackFn func(name, val string) error

// Errors returned when a setting can't be changed
var (
	ErrNoSetting = errors.New("unrecognized setting")
	ErrStatic    = errors.New("static setting can't be changed at runtime")
)

type settingType interface {
	set(string) error
	String() string
	Type() string
	reset()
}

type setting struct {
	name     string
	val      settingType
	defval   string
	dynamic  bool
	callback CallbackFn
}

// Settings is a registry of named settings.
type Settings struct {
	settings map[string]*setting
	sealed   bool
	slog     *zap.SugaredLogger

	sync.RWMutex
}

// Info describes a single setting, for display.
type Info struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Value   string `json:"value"`
	Default string `json:"default"`
	Dynamic bool   `json:"dynamic"`
}

// BoolSetting is a boolean setting
type BoolSetting struct {
	reg    *Settings
	val    bool
	defval bool
}

func (b *BoolSetting) set(val string) error {
	x, err := strconv.ParseBool(val)
	if err == nil {
		b.val = x
	}
	return err
}

func (b *BoolSetting) String() string { return strconv.FormatBool(b.val) }
func (b *BoolSetting) Type() string   { return "bool" }
func (b *BoolSetting) reset()         { b.val = b.defval }

// Get returns the current value of the setting
func (b *BoolSetting) Get() bool {
	b.reg.RLock()
	defer b.reg.RUnlock()
	return b.val
}

// IntSetting is an integer setting
type IntSetting struct {
	reg    *Settings
	val    int
	defval int
}

func (i *IntSetting) set(val string) error {
	x, err := strconv.Atoi(val)
	if err == nil {
		i.val = x
	}
	return err
}

func (i *IntSetting) String() string { return strconv.Itoa(i.val) }
func (i *IntSetting) Type() string   { return "int" }
func (i *IntSetting) reset()         { i.val = i.defval }

// Get returns the current value of the setting
func (i *IntSetting) Get() int {
	i.reg.RLock()
	defer i.reg.RUnlock()
	return i.val
}

// StringSetting is a string setting
type StringSetting struct {
	reg    *Settings
	val    string
	defval string
}

func (s *StringSetting) set(val string) error {
	s.val = val
	return nil
}

func (s *StringSetting) String() string { return s.val }
func (s *StringSetting) Type() string   { return "string" }
func (s *StringSetting) reset()         { s.val = s.defval }

// Get returns the current value of the setting
func (s *StringSetting) Get() string {
	s.reg.RLock()
	defer s.reg.RUnlock()
	return s.val
}

// DurationSetting is a time.Duration setting
type DurationSetting struct {
	reg    *Settings
	val    time.Duration
	defval time.Duration
}

func (d *DurationSetting) set(val string) error {
	x, err := time.ParseDuration(val)
	if err == nil {
		d.val = x
	}
	return err
}

func (d *DurationSetting) String() string { return d.val.String() }
func (d *DurationSetting) Type() string   { return "duration" }
func (d *DurationSetting) reset()         { d.val = d.defval }

// Get returns the current value of the setting
func (d *DurationSetting) Get() time.Duration {
	d.reg.RLock()
	defer d.reg.RUnlock()
	return d.val
}

// NewSettings returns an empty settings registry
func NewSettings(slog *zap.SugaredLogger) *Settings {
	return &Settings{
		settings: make(map[string]*setting),
		slog:     slog,
	}
}

func (s *Settings) register(name string, v settingType, dynamic bool,
	cb CallbackFn) {

	s.Lock()
	defer s.Unlock()

	if _, ok := s.settings[name]; ok {
		s.slog.Panicf("duplicate setting: %s", name)
	}

	s.settings[name] = &setting{
		name:     name,
		val:      v,
		defval:   v.String(),
		dynamic:  dynamic,
		callback: cb,
	}
}

// Bool allocates and registers a boolean setting
func (s *Settings) Bool(name string, defval, dynamic bool,
	cb CallbackFn) *BoolSetting {

	b := &BoolSetting{reg: s, val: defval, defval: defval}
	s.register(name, b, dynamic, cb)
	return b
}

// Int allocates and registers an integer setting
func (s *Settings) Int(name string, defval int, dynamic bool,
	cb CallbackFn) *IntSetting {

	i := &IntSetting{reg: s, val: defval, defval: defval}
	s.register(name, i, dynamic, cb)
	return i
}

// String allocates and registers a string setting
func (s *Settings) String(name, defval string, dynamic bool,
	cb CallbackFn) *StringSetting {

	x := &StringSetting{reg: s, val: defval, defval: defval}
	s.register(name, x, dynamic, cb)
	return x
}

// Duration allocates and registers a time.Duration setting
func (s *Settings) Duration(name string, defval time.Duration, dynamic bool,
	cb CallbackFn) *DurationSetting {

	d := &DurationSetting{reg: s, val: defval, defval: defval}
	s.register(name, d, dynamic, cb)
	return d
}

// Seal marks the end of daemon initialization.  From here on, only dynamic
// settings may be changed.
func (s *Settings) Seal() {
	s.Lock()
	s.sealed = true
	s.Unlock()
}

// UpdateSetting will change the value of a setting, and invoke any associated
// callback.
func (s *Settings) UpdateSetting(name, val string) error {
	s.Lock()
	defer s.Unlock()

	x, ok := s.settings[name]
	if !ok {
		return errors.Wrap(ErrNoSetting, name)
	}
	if s.sealed && !x.dynamic {
		return errors.Wrap(ErrStatic, name)
	}

	var err error
	if x.callback != nil {
		err = x.callback(x.name, val)
	}
	if err == nil {
		err = x.val.set(val)
	}

	if err != nil {
		s.slog.Warnf("Can't change %s to %s: %v", name, val, err)
		return errors.Wrapf(err, "setting %s", name)
	}
	s.slog.Infof("Changing setting %s to %v", name, val)
	return nil
}

// ResetSetting restores a setting to its default value.
func (s *Settings) ResetSetting(name string) error {
	s.Lock()
	defer s.Unlock()

	x, ok := s.settings[name]
	if !ok {
		return errors.Wrap(ErrNoSetting, name)
	}
	if s.sealed && !x.dynamic {
		return errors.Wrap(ErrStatic, name)
	}

	if x.callback != nil {
		if err := x.callback(x.name, x.defval); err != nil {
			s.slog.Warnf("Can't reset %s to %s: %v", name, x.defval, err)
			return errors.Wrapf(err, "setting %s", name)
		}
	}
	x.val.reset()
	s.slog.Infof("Resetting setting %s to %v", name, x.defval)
	return nil
}

// Get returns the current value of a setting, formatted as a string
func (s *Settings) Get(name string) (string, error) {
	s.RLock()
	defer s.RUnlock()

	x, ok := s.settings[name]
	if !ok {
		return "", errors.Wrap(ErrNoSetting, name)
	}
	return x.val.String(), nil
}

// Describe returns every registered setting, sorted by name
func (s *Settings) Describe() []Info {
	s.RLock()
	defer s.RUnlock()

	rval := make([]Info, 0, len(s.settings))
	for _, x := range s.settings {
		rval = append(rval, Info{
			Name:    x.name,
			Type:    x.val.Type(),
			Value:   x.val.String(),
			Default: x.defval,
			Dynamic: x.dynamic,
		})
	}
	sort.Slice(rval, func(i, j int) bool {
		return rval[i].Name < rval[j].Name
	})
	return rval
}

// LoadFile reads a YAML file of "name: value" pairs and applies each of them.
// A missing file is not an error.
func (s *Settings) LoadFile(fs afero.Fs, path string) error {
	if ok, _ := afero.Exists(fs, path); !ok {
		s.slog.Debugf("no settings file at %s", path)
		return nil
	}

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return errors.Wrapf(err, "reading %s", path)
	}

	vals := make(map[string]interface{})
	if err = yaml.Unmarshal(data, &vals); err != nil {
		return errors.Wrapf(err, "parsing %s", path)
	}

	names := make([]string, 0, len(vals))
	for name := range vals {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		val := fmt.Sprintf("%v", vals[name])
		if err = s.UpdateSetting(name, val); err != nil {
			return errors.Wrapf(err, "%s", path)
		}
	}
	return nil
}
