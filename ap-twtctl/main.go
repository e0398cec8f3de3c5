/*
 * Copyright 2021 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */

// ap-twtctl inspects and drives the TWT session ledger kept by ap.twtd.
package main

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"bgwlan/ap_common/apcfg"
	"bgwlan/ap_common/twt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const broadcast = "ff:ff:ff:ff:ff:ff"

func silenceUsage(cmd *cobra.Command, args []string) {
	// Set here, after argument validation, so that only validation
	// failures print the usage message.
	cmd.SilenceUsage = true
}

func addServerFlags(fs *pflag.FlagSet) {
	fs.StringP("server", "s", "localhost:7090", "ap.twtd control address")
	fs.Duration("timeout", 5*time.Second, "request timeout")
}

func clientFor(cmd *cobra.Command) *twtdClient {
	server, _ := cmd.Flags().GetString("server")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	return newClient(server, timeout)
}

func vdevPath(arg string) (string, error) {
	id, err := strconv.ParseUint(arg, 10, 8)
	if err != nil {
		return "", errors.Errorf("bad vdev id: %s", arg)
	}
	return "/api/vdevs/" + strconv.Itoa(int(id)), nil
}

// peerPath accepts "broadcast" as shorthand for the broadcast address
func peerPath(vdevArg, macArg string) (string, error) {
	vp, err := vdevPath(vdevArg)
	if err != nil {
		return "", err
	}
	if strings.ToLower(macArg) == "broadcast" {
		macArg = broadcast
	}
	mac, err := net.ParseMAC(macArg)
	if err != nil {
		return "", errors.Errorf("bad mac address: %s", macArg)
	}
	return vp + "/peers/" + mac.String(), nil
}

func dialogArg(arg string) (string, error) {
	if strings.ToLower(arg) == "all" {
		return "all", nil
	}
	if _, err := strconv.ParseUint(arg, 10, 8); err != nil {
		return "", errors.Errorf("bad dialog id: %s", arg)
	}
	return arg, nil
}

func sessionPath(args []string) (string, error) {
	pp, err := peerPath(args[0], args[1])
	if err != nil {
		return "", err
	}
	dialog, err := dialogArg(args[2])
	if err != nil {
		return "", err
	}
	return pp + "/sessions/" + dialog, nil
}

func showStatus(cmd *cobra.Command, args []string) error {
	c := clientFor(cmd)
	out := cmd.OutOrStdout()

	if len(args) == 1 {
		path, err := vdevPath(args[0])
		if err != nil {
			return err
		}
		var vs twt.VdevSnapshot
		if err = c.call("GET", path, nil, &vs); err != nil {
			return err
		}
		fmt.Fprint(out, formatVdev(vs))
		return nil
	}

	var all []twt.VdevSnapshot
	if err := c.call("GET", "/api/vdevs", nil, &all); err != nil {
		return err
	}
	if len(all) == 0 {
		fmt.Fprintln(out, "no vdevs")
	}
	for i, vs := range all {
		if i > 0 {
			fmt.Fprintln(out)
		}
		fmt.Fprint(out, formatVdev(vs))
	}
	return nil
}

func addVdev(cmd *cobra.Command, args []string) error {
	path, err := vdevPath(args[0])
	if err != nil {
		return err
	}
	mode, _ := cmd.Flags().GetString("mode")

	var vs twt.VdevSnapshot
	req := map[string]string{"mac": args[1], "mode": mode}
	if err = clientFor(cmd).call("POST", path, req, &vs); err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), formatVdev(vs))
	return nil
}

func delVdev(cmd *cobra.Command, args []string) error {
	path, err := vdevPath(args[0])
	if err == nil {
		err = clientFor(cmd).call("DELETE", path, nil, nil)
	}
	return err
}

func addPeer(cmd *cobra.Command, args []string) error {
	path, err := peerPath(args[0], args[1])
	if err != nil {
		return err
	}

	var ps twt.PeerSnapshot
	if err = clientFor(cmd).call("POST", path, nil, &ps); err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), formatPeer(ps))
	return nil
}

func showPeer(cmd *cobra.Command, args []string) error {
	path, err := peerPath(args[0], args[1])
	if err != nil {
		return err
	}

	var ps twt.PeerSnapshot
	if err = clientFor(cmd).call("GET", path, nil, &ps); err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), formatPeer(ps))
	return nil
}

func delPeer(cmd *cobra.Command, args []string) error {
	path, err := peerPath(args[0], args[1])
	if err == nil {
		err = clientFor(cmd).call("DELETE", path, nil, nil)
	}
	return err
}

func sessionCall(cmd *cobra.Command, args []string, method, suffix string,
	body interface{}) error {

	path, err := sessionPath(args)
	if err != nil {
		return err
	}

	c := clientFor(cmd)
	if method == "DELETE" {
		return c.call(method, path+suffix, body, nil)
	}

	var st sessionStatus
	if err = c.call(method, path+suffix, body, &st); err != nil {
		return err
	}
	mac, _ := net.ParseMAC(args[1])
	fmt.Fprint(cmd.OutOrStdout(), formatSession(mac.String(), st))
	return nil
}

func showSession(cmd *cobra.Command, args []string) error {
	return sessionCall(cmd, args, "GET", "", nil)
}

func addSession(cmd *cobra.Command, args []string) error {
	return sessionCall(cmd, args, "POST", "", nil)
}

// resetSession frees a session.  "all" in place of the peer resets the
// session on every peer of the vdev.
func resetSession(cmd *cobra.Command, args []string) error {
	if strings.ToLower(args[1]) != "all" {
		return sessionCall(cmd, args, "DELETE", "", nil)
	}

	vp, err := vdevPath(args[0])
	if err != nil {
		return err
	}
	dialog, err := dialogArg(args[2])
	if err != nil {
		return err
	}
	return clientFor(cmd).call("DELETE", vp+"/sessions/"+dialog, nil, nil)
}

func setSessionCmd(cmd *cobra.Command, args []string) error {
	var c twt.Command
	if err := c.UnmarshalText([]byte(args[3])); err != nil {
		return err
	}

	path, err := sessionPath(args)
	if err != nil {
		return err
	}
	return clientFor(cmd).call("PUT", path+"/cmd",
		map[string]twt.Command{"cmd": c}, nil)
}

func setSessionState(cmd *cobra.Command, args []string) error {
	var s twt.SessionState
	if err := s.UnmarshalText([]byte(args[3])); err != nil {
		return err
	}
	return sessionCall(cmd, args, "PUT", "/state",
		map[string]twt.SessionState{"state": s})
}

func setSessionSetup(cmd *cobra.Command, args []string) error {
	done, err := strconv.ParseBool(args[3])
	if err != nil {
		return errors.Errorf("bad setup state: %s", args[3])
	}
	return sessionCall(cmd, args, "PUT", "/setup",
		map[string]bool{"done": done})
}

func vdevBusy(cmd *cobra.Command, args []string) error {
	vp, err := vdevPath(args[0])
	if err != nil {
		return err
	}
	dialog, err := dialogArg(args[1])
	if err != nil {
		return err
	}
	var c twt.Command
	if err = c.UnmarshalText([]byte(args[2])); err != nil {
		return err
	}

	var rval struct {
		InProgress bool `json:"in_progress"`
	}
	path := vp + "/sessions/" + dialog + "/cmd/" + c.String()
	if err = clientFor(cmd).call("GET", path, nil, &rval); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s in progress on dialog %s: %s\n",
		c, dialog, yesNo(rval.InProgress))
	return nil
}

func setCaps(cmd *cobra.Command, args []string) error {
	path, err := peerPath(args[0], args[1])
	if err != nil {
		return err
	}

	flag := func(name string) bool {
		v, _ := cmd.Flags().GetBool(name)
		return v
	}
	req := struct {
		HECap twt.HECap `json:"he_cap"`
		HEOp  twt.HEOp  `json:"he_op"`
	}{
		HECap: twt.HECap{
			TwtRequest:   flag("requestor"),
			TwtResponder: flag("responder"),
			BroadcastTwt: flag("broadcast"),
			FlexTwtSched: flag("flexible"),
		},
		HEOp: twt.HEOp{TwtRequired: flag("required")},
	}

	var ps twt.PeerSnapshot
	if err = clientFor(cmd).call("PUT", path+"/caps", req, &ps); err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), formatPeer(ps))
	return nil
}

func setNotify(cmd *cobra.Command, args []string) error {
	path, err := vdevPath(args[0])
	if err != nil {
		return err
	}

	var wait bool
	switch strings.ToLower(args[1]) {
	case "on", "true", "yes":
		wait = true
	case "off", "false", "no":
	default:
		return errors.Errorf("expected on or off, not %s", args[1])
	}

	var vs twt.VdevSnapshot
	err = clientFor(cmd).call("PUT", path+"/notify",
		map[string]bool{"wait": wait}, &vs)
	if err == nil {
		fmt.Fprint(cmd.OutOrStdout(), formatVdev(vs))
	}
	return err
}

func showHistory(cmd *cobra.Command, args []string) error {
	var h []twt.HistoryEntry

	if err := clientFor(cmd).call("GET", "/api/history", nil, &h); err != nil {
		return err
	}
	if len(h) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no sessions freed")
		return nil
	}
	fmt.Fprint(cmd.OutOrStdout(), formatHistory(h))
	return nil
}

// settings lists every setting, shows one, or changes one
func settings(cmd *cobra.Command, args []string) error {
	c := clientFor(cmd)
	out := cmd.OutOrStdout()
	reset, _ := cmd.Flags().GetBool("reset")

	if len(args) == 0 {
		var info []apcfg.Info
		if err := c.call("GET", "/api/settings", nil, &info); err != nil {
			return err
		}
		fmt.Fprint(out, formatSettings(info))
		return nil
	}

	path := "/api/settings/" + url.PathEscape(args[0])
	var sv struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	}

	var err error
	switch {
	case reset:
		err = c.call("DELETE", path, nil, &sv)
	case len(args) == 2:
		err = c.call("PUT", path, map[string]string{"value": args[1]},
			&sv)
	default:
		err = c.call("GET", path, nil, &sv)
	}
	if err == nil {
		fmt.Fprintf(out, "%s: %s\n", sv.Name, sv.Value)
	}
	return err
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:              "ap-twtctl",
		Short:            "Inspect and drive the ap.twtd TWT session ledger",
		PersistentPreRun: silenceUsage,
	}
	addServerFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(&cobra.Command{
		Use:   "status [vdev]",
		Short: "Show the sessions of one or every vdev",
		Args:  cobra.MaximumNArgs(1),
		RunE:  showStatus,
	})

	vdevCmd := &cobra.Command{
		Use:   "vdev <subcmd> [args]",
		Short: "Add and remove vdevs",
		Args:  cobra.NoArgs,
	}
	addVdevCmd := &cobra.Command{
		Use:   "add [flags] <vdev> <mac>",
		Short: "Create a vdev",
		Args:  cobra.ExactArgs(2),
		RunE:  addVdev,
	}
	addVdevCmd.Flags().String("mode", "sap", "vdev mode (sap or sta)")
	vdevCmd.AddCommand(addVdevCmd)
	vdevCmd.AddCommand(&cobra.Command{
		Use:   "del <vdev>",
		Short: "Delete a vdev and its peers",
		Args:  cobra.ExactArgs(1),
		RunE:  delVdev,
	})
	vdevCmd.AddCommand(&cobra.Command{
		Use:   "busy <vdev> <dialog|all> <cmd>",
		Short: "Report whether any peer has a command in flight",
		Args:  cobra.ExactArgs(3),
		RunE:  vdevBusy,
	})
	rootCmd.AddCommand(vdevCmd)

	peerCmd := &cobra.Command{
		Use:   "peer <subcmd> [args]",
		Short: "Associate and disassociate peers",
		Args:  cobra.NoArgs,
	}
	peerCmd.AddCommand(&cobra.Command{
		Use:   "add <vdev> <mac>",
		Short: "Attach a peer to a vdev",
		Args:  cobra.ExactArgs(2),
		RunE:  addPeer,
	})
	peerCmd.AddCommand(&cobra.Command{
		Use:   "show <vdev> <mac>",
		Short: "Show a peer's sessions",
		Args:  cobra.ExactArgs(2),
		RunE:  showPeer,
	})
	peerCmd.AddCommand(&cobra.Command{
		Use:   "del <vdev> <mac>",
		Short: "Remove a peer",
		Args:  cobra.ExactArgs(2),
		RunE:  delPeer,
	})
	rootCmd.AddCommand(peerCmd)

	sessionCmd := &cobra.Command{
		Use:   "session <subcmd> [args]",
		Short: "Manage a peer's TWT sessions",
		Args:  cobra.NoArgs,
	}
	sessionCmd.AddCommand(&cobra.Command{
		Use:   "show <vdev> <mac> <dialog|all>",
		Short: "Show a session",
		Args:  cobra.ExactArgs(3),
		RunE:  showSession,
	})
	sessionCmd.AddCommand(&cobra.Command{
		Use:   "add <vdev> <mac> <dialog>",
		Short: "Claim a session slot",
		Args:  cobra.ExactArgs(3),
		RunE:  addSession,
	})
	sessionCmd.AddCommand(&cobra.Command{
		Use:   "reset <vdev> <mac|all> <dialog|all>",
		Short: "Free session slots",
		Args:  cobra.ExactArgs(3),
		RunE:  resetSession,
	})
	sessionCmd.AddCommand(&cobra.Command{
		Use:   "cmd <vdev> <mac|broadcast> <dialog|all> <cmd>",
		Short: "Record the command in flight",
		Args:  cobra.ExactArgs(4),
		RunE:  setSessionCmd,
	})
	sessionCmd.AddCommand(&cobra.Command{
		Use:   "state <vdev> <mac> <dialog|all> <state>",
		Short: "Set a session's state",
		Args:  cobra.ExactArgs(4),
		RunE:  setSessionState,
	})
	sessionCmd.AddCommand(&cobra.Command{
		Use:   "setup <vdev> <mac> <dialog|all> <true|false>",
		Short: "Mark a session's setup as complete",
		Args:  cobra.ExactArgs(4),
		RunE:  setSessionSetup,
	})
	rootCmd.AddCommand(sessionCmd)

	capsCmd := &cobra.Command{
		Use:   "caps [flags] <vdev> <mac>",
		Short: "Replace a peer's TWT capabilities",
		Args:  cobra.ExactArgs(2),
		RunE:  setCaps,
	}
	capsCmd.Flags().Bool("requestor", false, "peer is a TWT requestor")
	capsCmd.Flags().Bool("responder", false, "peer is a TWT responder")
	capsCmd.Flags().Bool("broadcast", false, "peer supports broadcast TWT")
	capsCmd.Flags().Bool("flexible", false, "peer supports flexible TWT")
	capsCmd.Flags().Bool("required", false, "peer requires TWT")
	rootCmd.AddCommand(capsCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "notify <vdev> <on|off>",
		Short: "Mark a vdev as waiting for a TWT notification",
		Args:  cobra.ExactArgs(2),
		RunE:  setNotify,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "history",
		Short: "List recently freed sessions",
		Args:  cobra.NoArgs,
		RunE:  showHistory,
	})

	settingsCmd := &cobra.Command{
		Use:   "settings [flags] [name [value]]",
		Short: "Show or change ap.twtd settings",
		Args:  cobra.MaximumNArgs(2),
		RunE:  settings,
	}
	settingsCmd.Flags().Bool("reset", false, "restore the default value")
	rootCmd.AddCommand(settingsCmd)

	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
