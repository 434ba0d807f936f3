// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package volumio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/GermanBionicSystems/volumio-lcd/internal/syncutil"
	"github.com/GermanBionicSystems/volumio-lcd/nowplaying"
)

// SocketPath is Volumio's socket.io endpoint.
const SocketPath = "/socket.io/"

// Engine.IO v3 packet types, socket.io packet types follow the 4.
const (
	packetOpen    = '0'
	packetClose   = '1'
	packetPing    = '2'
	packetPong    = '3'
	packetMessage = '4'

	socketConnect    = '0'
	socketDisconnect = '1'
	socketEvent      = '2'
)

const (
	eventGetState  = "getState"
	eventPushState = "pushState"

	defaultPingInterval = 25 * time.Second
	defaultPingTimeout  = 60 * time.Second
)

var (
	errHandshake    = errors.New("volumio: bad socket.io handshake")
	errDisconnected = errors.New("volumio: disconnected by server")
)

// handshake is the payload of the Engine.IO open packet.
type handshake struct {
	SID          string `json:"sid"`
	PingInterval int    `json:"pingInterval"`
	PingTimeout  int    `json:"pingTimeout"`
}

// Watch calls fn with the player state each time Volumio pushes it, starting
// with the state at connection time. Lost connections are reestablished with
// exponential backoff. Watch blocks until ctx is done and returns ctx.Err().
// fn is never called concurrently.
func (c *Client) Watch(ctx context.Context, fn func(nowplaying.Snapshot)) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	for {
		connected, err := c.session(ctx, fn)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			b.Reset()
		}
		wait := b.NextBackOff()
		if wait == backoff.Stop {
			wait = b.MaxInterval
		}
		log.Warn().Err(err).Msgf("volumio connection lost, retrying in %s", wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.clock.After(wait):
		}
	}
}

func (c *Client) socketURL() string {
	u := *c.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path += SocketPath
	u.RawQuery = "EIO=3&transport=websocket"
	return u.String()
}

// session runs one socket.io connection until it fails or ctx is done.
// connected reports whether the handshake completed.
func (c *Client) session(ctx context.Context, fn func(nowplaying.Snapshot)) (connected bool, err error) {
	conn, _, err := c.dialer.DialContext(ctx, c.socketURL(), nil)
	if err != nil {
		return false, fmt.Errorf("volumio: %w", err)
	}
	s := &socket{conn: conn}
	g, gctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(gctx, func() {
		_ = conn.Close()
	})
	defer func() {
		stop()
		_ = conn.Close()
	}()

	hs, err := s.open()
	if err != nil {
		return false, err
	}
	log.Info().Msgf("connected to volumio at %s", c.base)

	interval := time.Duration(hs.PingInterval) * time.Millisecond
	if interval <= 0 {
		interval = defaultPingInterval
	}
	timeout := time.Duration(hs.PingTimeout) * time.Millisecond
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}

	g.Go(func() error {
		ticker := c.clock.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.Chan():
				if err := s.write(string(packetPing)); err != nil {
					return err
				}
			}
		}
	})
	g.Go(func() error {
		return s.read(interval+timeout, fn)
	})
	err = g.Wait()
	if ctx.Err() != nil {
		return true, ctx.Err()
	}
	return true, err
}

// socket is one Engine.IO connection. Writes may come from the ping loop
// and the reader, so they are serialized.
type socket struct {
	conn *websocket.Conn
	mu   syncutil.Mutex
}

func (s *socket) write(msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		return fmt.Errorf("volumio: %w", err)
	}
	return nil
}

// open reads the Engine.IO open packet.
func (s *socket) open() (handshake, error) {
	var hs handshake
	_, msg, err := s.conn.ReadMessage()
	if err != nil {
		return hs, fmt.Errorf("volumio: %w", err)
	}
	if len(msg) == 0 || msg[0] != packetOpen {
		return hs, fmt.Errorf("%w: %q", errHandshake, msg)
	}
	if err := json.Unmarshal(msg[1:], &hs); err != nil {
		return hs, fmt.Errorf("%w: %w", errHandshake, err)
	}
	return hs, nil
}

// read handles incoming packets until the connection fails. The server must
// send something, pongs included, within deadline.
func (s *socket) read(deadline time.Duration, fn func(nowplaying.Snapshot)) error {
	for {
		if err := s.conn.SetReadDeadline(time.Now().Add(deadline)); err != nil {
			return fmt.Errorf("volumio: %w", err)
		}
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("volumio: %w", err)
		}
		if len(msg) == 0 {
			continue
		}
		switch msg[0] {
		case packetPing:
			if err := s.write(string(packetPong) + string(msg[1:])); err != nil {
				return err
			}
		case packetPong:
		case packetClose:
			return errDisconnected
		case packetMessage:
			if err := s.message(msg[1:], fn); err != nil {
				return err
			}
		default:
			log.Debug().Msgf("ignoring engine.io packet %q", msg)
		}
	}
}

// message handles a socket.io packet on the default namespace.
func (s *socket) message(msg []byte, fn func(nowplaying.Snapshot)) error {
	if len(msg) == 0 {
		return nil
	}
	switch msg[0] {
	case socketConnect:
		return s.write(`42["` + eventGetState + `"]`)
	case socketDisconnect:
		return errDisconnected
	case socketEvent:
		name, payload, err := parseEvent(msg[1:])
		if err != nil {
			log.Debug().Err(err).Msgf("ignoring socket.io event %q", msg)
			return nil
		}
		if name != eventPushState {
			return nil
		}
		state, err := decodeState(payload)
		if err != nil {
			log.Warn().Err(err).Msg("ignoring pushState")
			return nil
		}
		fn(state)
	}
	return nil
}

// parseEvent splits an event packet body, ["name", payload], in its parts.
// Acknowledgement ids before the array are skipped.
func parseEvent(body []byte) (string, json.RawMessage, error) {
	if i := strings.IndexByte(string(body), '['); i > 0 {
		body = body[i:]
	}
	var parts []json.RawMessage
	if err := json.Unmarshal(body, &parts); err != nil {
		return "", nil, err
	}
	if len(parts) == 0 {
		return "", nil, errors.New("empty event")
	}
	var name string
	if err := json.Unmarshal(parts[0], &name); err != nil {
		return "", nil, err
	}
	if len(parts) < 2 {
		return name, json.RawMessage("null"), nil
	}
	return name, parts[1], nil
}
