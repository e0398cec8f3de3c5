/*
 * Copyright 2021 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */

package twt

import (
	"strings"

	"github.com/pkg/errors"
)

// DialogID names one TWT negotiation between a vdev and a peer.
type DialogID uint8

// AllSessions is the wildcard dialog.  Passed to an operation, it means "every
// session of the peer".  Stored in a slot, it marks the slot as free.
const AllSessions DialogID = 255

// MaxSessionsPerPeer is the number of session slots each peer carries.
const MaxSessionsPerPeer = 8

// SessionState tracks where a negotiated session is in its lifecycle.
type SessionState int

// Session states
const (
	NotEstablished SessionState = iota
	Active
	Suspended
	Terminated
)

var stateNames = []string{"not_established", "active", "suspended",
	"terminated"}

func (s SessionState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// MarshalText implements encoding.TextMarshaler
func (s SessionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *SessionState) UnmarshalText(text []byte) error {
	name := strings.ToLower(string(text))
	for i, n := range stateNames {
		if n == name {
			*s = SessionState(i)
			return nil
		}
	}
	return errors.Errorf("unknown session state: %s", text)
}

// Command is an operation the host has asked firmware to perform on a
// session.  None means nothing is outstanding.  Any is only meaningful in a
// query, where it matches every command other than None.
type Command int

// TWT commands
const (
	None Command = iota
	Setup
	Teardown
	Suspend
	Resume
	Nudge
	Statistics
	ClearStatistics
	SetupReadyNotify
	Any
)

var cmdNames = []string{"none", "setup", "teardown", "suspend", "resume",
	"nudge", "statistics", "clear_statistics", "setup_ready_notify", "any"}

func (c Command) String() string {
	if c < 0 || int(c) >= len(cmdNames) {
		return "unknown"
	}
	return cmdNames[c]
}

// MarshalText implements encoding.TextMarshaler
func (c Command) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (c *Command) UnmarshalText(text []byte) error {
	name := strings.ToLower(string(text))
	for i, n := range cmdNames {
		if n == name {
			*c = Command(i)
			return nil
		}
	}
	return errors.Errorf("unknown twt command: %s", text)
}

// matches reports whether an active command satisfies a query for want
func (c Command) matches(want Command) bool {
	if want == Any {
		return c != None
	}
	return c == want
}

// Capability is the set of TWT roles a peer advertised
type Capability uint8

// Capability bits
const (
	CapRequestor Capability = 1 << iota
	CapResponder
	CapBroadcast
	CapFlexible
	CapRequired
)

var capNames = []struct {
	bit  Capability
	name string
}{
	{CapRequestor, "requestor"},
	{CapResponder, "responder"},
	{CapBroadcast, "broadcast"},
	{CapFlexible, "flexible"},
	{CapRequired, "required"},
}

// Has reports whether every bit of x is set in c
func (c Capability) Has(x Capability) bool {
	return c&x == x
}

func (c Capability) String() string {
	if c == 0 {
		return "none"
	}

	names := make([]string, 0, len(capNames))
	for _, cn := range capNames {
		if c.Has(cn.bit) {
			names = append(names, cn.name)
		}
	}
	return strings.Join(names, "|")
}

// MarshalText implements encoding.TextMarshaler
func (c Capability) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (c *Capability) UnmarshalText(text []byte) error {
	var rval Capability

	s := strings.ToLower(string(text))
	if s != "none" && s != "" {
	outer:
		for _, name := range strings.Split(s, "|") {
			for _, cn := range capNames {
				if cn.name == name {
					rval |= cn.bit
					continue outer
				}
			}
			return errors.Errorf("unknown twt capability: %s", name)
		}
	}
	*c = rval
	return nil
}

// HECap carries the TWT fields of a peer's HE capabilities element
type HECap struct {
	TwtRequest   bool `json:"twt_request"`
	TwtResponder bool `json:"twt_responder"`
	BroadcastTwt bool `json:"broadcast_twt"`
	FlexTwtSched bool `json:"flex_twt_sched"`
}

// HEOp carries the TWT fields of a peer's HE operation element
type HEOp struct {
	TwtRequired bool `json:"twt_required"`
}
