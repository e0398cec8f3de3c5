/*
 * Copyright 2021 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */

package main

import (
	"fmt"
	"strconv"
	"strings"

	"bgwlan/ap_common/apcfg"
	"bgwlan/ap_common/twt"

	"github.com/fatih/color"
	"github.com/tatsushid/go-prettytable"
)

const timeFormat = "2006/01/02 15:04:05"

// Mirrors the session status returned by ap.twtd
type sessionStatus struct {
	Dialog          twt.DialogID     `json:"dialog"`
	SetupDone       bool             `json:"setup_done"`
	SetupInProgress bool             `json:"setup_in_progress"`
	State           twt.SessionState `json:"state"`
	ActiveCmd       twt.Command      `json:"active_cmd"`
	CmdInProgress   bool             `json:"cmd_in_progress"`
	MaxReached      bool             `json:"max_sessions_reached"`
}

func newTable(headers ...string) *prettytable.Table {
	cols := make([]prettytable.Column, len(headers))
	for i, h := range headers {
		cols[i] = prettytable.Column{Header: h}
	}

	table, _ := prettytable.NewTable(cols...)
	table.Separator = "  "
	return table
}

func dialogString(d twt.DialogID) string {
	if d == twt.AllSessions {
		return "all"
	}
	return strconv.Itoa(int(d))
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// In-flight commands stand out
func cmdString(c twt.Command) string {
	if c == twt.None {
		return "-"
	}
	return color.YellowString(c.String())
}

func stateString(s twt.SessionState) string {
	switch s {
	case twt.Active:
		return color.GreenString(s.String())
	case twt.Suspended:
		return color.CyanString(s.String())
	case twt.Terminated:
		return color.RedString(s.String())
	}
	return s.String()
}

func formatVdev(vs twt.VdevSnapshot) string {
	var b strings.Builder

	fmt.Fprintf(&b, "vdev %d  %s  %s  waiting for notify: %s\n", vs.ID,
		vs.MAC, vs.Mode, yesNo(vs.WaitForNotify))
	if len(vs.Peers) == 0 {
		b.WriteString("  no peers\n")
		return b.String()
	}

	table := newTable("Peer", "Capabilities", "Max", "Dialog", "Setup",
		"State", "Command")
	for _, p := range vs.Peers {
		addPeerRows(table, p)
	}
	b.WriteString(table.String())
	return b.String()
}

func addPeerRows(table *prettytable.Table, p twt.PeerSnapshot) {
	if len(p.Sessions) == 0 {
		table.AddRow(p.MAC, p.Capabilities.String(), p.MaxSessions,
			"-", "-", "-", "-")
		return
	}
	for i, s := range p.Sessions {
		mac, caps, max := "", "", ""
		if i == 0 {
			mac = p.MAC
			caps = p.Capabilities.String()
			max = strconv.Itoa(p.MaxSessions)
		}
		table.AddRow(mac, caps, max, dialogString(s.Dialog),
			yesNo(s.SetupDone), stateString(s.State),
			cmdString(s.ActiveCmd))
	}
}

func formatPeer(p twt.PeerSnapshot) string {
	table := newTable("Peer", "Capabilities", "Max", "Dialog", "Setup",
		"State", "Command")
	addPeerRows(table, p)
	return table.String()
}

func formatSession(mac string, s sessionStatus) string {
	var b strings.Builder

	fmt.Fprintf(&b, "peer %s dialog %s\n", mac, dialogString(s.Dialog))
	fmt.Fprintf(&b, "  state:               %s\n", stateString(s.State))
	fmt.Fprintf(&b, "  setup done:          %s\n", yesNo(s.SetupDone))
	fmt.Fprintf(&b, "  setup in progress:   %s\n", yesNo(s.SetupInProgress))
	fmt.Fprintf(&b, "  command:             %s\n", cmdString(s.ActiveCmd))
	fmt.Fprintf(&b, "  max sessions in use: %s\n", yesNo(s.MaxReached))
	return b.String()
}

func formatHistory(h []twt.HistoryEntry) string {
	table := newTable("Seq", "Freed", "Peer", "Dialog", "Setup", "State",
		"Last Command")
	for _, e := range h {
		table.AddRow(e.Seq, e.Freed.Local().Format(timeFormat), e.MAC,
			dialogString(e.Dialog), yesNo(e.SetupDone),
			stateString(e.State), cmdString(e.LastCmd))
	}
	return table.String()
}

func formatSettings(info []apcfg.Info) string {
	table := newTable("Setting", "Type", "Value", "Default", "Dynamic")
	for _, i := range info {
		val := i.Value
		if val != i.Default {
			val = color.New(color.Bold).Sprint(val)
		}
		table.AddRow(i.Name, i.Type, val, i.Default, yesNo(i.Dynamic))
	}
	return table.String()
}
