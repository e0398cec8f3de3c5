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
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

type twtdClient struct {
	base   string
	client *http.Client
}

type apiError struct {
	Code int
	Msg  string
}

func (e apiError) Error() string {
	return e.Msg
}

func newClient(server string, timeout time.Duration) *twtdClient {
	if !strings.Contains(server, "://") {
		server = "http://" + server
	}
	return &twtdClient{
		base:   strings.TrimRight(server, "/"),
		client: &http.Client{Timeout: timeout},
	}
}

// call issues a request to ap.twtd.  A non-nil in is sent as the JSON body,
// and a successful response is decoded into out if it is non-nil.
func (c *twtdClient) call(method, path string, in, out interface{}) error {
	var body io.Reader

	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "encoding request")
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequest(method, c.base+path, body)
	if err != nil {
		return errors.Wrap(err, "building request")
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "contacting ap.twtd")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&e) != nil || e.Error == "" {
			e.Error = resp.Status
		}
		return apiError{Code: resp.StatusCode, Msg: e.Error}
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err = json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.Wrap(err, "decoding response")
		}
	}
	return nil
}
