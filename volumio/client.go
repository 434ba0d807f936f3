// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package volumio reads the playback state of a Volumio player.
//
// The state is available once through the REST API (State) or pushed on
// every change through Volumio's socket.io endpoint (Watch).
package volumio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/GermanBionicSystems/volumio-lcd/nowplaying"
)

// DefaultURL is where Volumio listens on the device it runs on.
const DefaultURL = "http://localhost:3000"

// StatePath is the REST endpoint returning the player state.
const StatePath = "/api/v1/getState"

const requestTimeout = 10 * time.Second

// Client talks to one Volumio instance.
type Client struct {
	base   *url.URL
	http   *http.Client
	dialer *websocket.Dialer
	clock  clockwork.Clock
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the client used for REST requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithClock sets the clock driving pings and reconnection delays.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Client) {
		c.clock = clock
	}
}

// NewClient returns a Client for the Volumio instance at baseURL, for
// example "http://volumio.local:3000".
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("volumio: invalid url %q: %w", baseURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("volumio: invalid url %q: need http(s)://host[:port]", baseURL)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	c := &Client{
		base:   u,
		http:   &http.Client{Timeout: requestTimeout},
		dialer: &websocket.Dialer{HandshakeTimeout: requestTimeout},
		clock:  clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// String returns the base URL.
func (c *Client) String() string {
	return c.base.String()
}

// State fetches the current player state.
func (c *Client) State(ctx context.Context) (nowplaying.Snapshot, error) {
	u := *c.base
	u.Path += StatePath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return nowplaying.Snapshot{}, fmt.Errorf("volumio: failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nowplaying.Snapshot{}, fmt.Errorf("volumio: failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return nowplaying.Snapshot{}, fmt.Errorf("volumio: %s returned %s", StatePath, resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nowplaying.Snapshot{}, fmt.Errorf("volumio: failed to read response body: %w", err)
	}
	return decodeState(body)
}

// decodeState decodes a state document. Fields of the wrong type are left
// at their zero value.
func decodeState(data []byte) (nowplaying.Snapshot, error) {
	var s nowplaying.Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		var typeErr *json.UnmarshalTypeError
		if !errors.As(err, &typeErr) {
			return nowplaying.Snapshot{}, fmt.Errorf("volumio: failed to decode state: %w", err)
		}
		log.Debug().Err(err).Msg("ignoring state field")
	}
	return s, nil
}
