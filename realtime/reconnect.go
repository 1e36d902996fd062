// Copyright (c) 2025 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package realtime

import (
	"context"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"github.com/chatpay/chatpay-go/metrics"
	"github.com/chatpay/chatpay-go/types/events"
)

// Backoff selects how the delay between reconnect attempts grows.
type Backoff string

const (
	BackoffFixed       Backoff = "fixed"
	BackoffExponential Backoff = "exponential"
)

// ReconnectPolicy controls automatic reconnection after the connection drops.
type ReconnectPolicy struct {
	// MaxAttempts is the number of reconnect attempts before giving up. Zero disables
	// automatic reconnection.
	MaxAttempts int
	// Delay is the wait before the first attempt and between attempts.
	Delay time.Duration
	// MaxDelay caps the delay when Backoff is exponential.
	MaxDelay time.Duration
	Backoff  Backoff
	// JitterFactor randomizes each delay by up to the given fraction.
	JitterFactor float64
}

// DefaultReconnectPolicy makes 5 attempts 3 seconds apart.
var DefaultReconnectPolicy = ReconnectPolicy{
	MaxAttempts: 5,
	Delay:       3 * time.Second,
	MaxDelay:    30 * time.Second,
	Backoff:     BackoffFixed,
}

func (rp ReconnectPolicy) build() retrypolicy.RetryPolicy[any] {
	builder := retrypolicy.NewBuilder[any]().
		WithMaxRetries(rp.MaxAttempts - 1)
	if rp.Backoff == BackoffExponential && rp.MaxDelay > rp.Delay && rp.Delay > 0 {
		builder = builder.WithBackoff(rp.Delay, rp.MaxDelay)
	} else if rp.Delay > 0 {
		builder = builder.WithDelay(rp.Delay)
	}
	if rp.JitterFactor > 0 {
		builder = builder.WithJitterFactor(rp.JitterFactor)
	}
	return builder.Build()
}

func sleepCtx(ctx context.Context, dur time.Duration) bool {
	if dur <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(dur)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Conn) reconnectLoop(ctx context.Context) {
	policy := c.Policy
	if policy.MaxAttempts <= 0 {
		c.log.Debugf("Automatic reconnection is disabled")
		return
	}
	c.lock.Lock()
	token := c.token
	c.lock.Unlock()
	if !sleepCtx(ctx, policy.Delay) {
		return
	}

	var attempts int
	var lastErr error
	_, err := failsafe.With[any](policy.build()).WithContext(ctx).Get(func() (any, error) {
		attempts++
		c.log.Infof("Reconnecting realtime channel (attempt %d/%d)", attempts, policy.MaxAttempts)
		metrics.RecordReconnect("attempt")
		c.dispatchEvent(&events.Reconnecting{Attempt: attempts})
		sock, err := c.dial(ctx, token)
		if err != nil {
			c.log.Warnf("Reconnect attempt %d failed: %v", attempts, err)
			lastErr = err
			return nil, err
		}
		return nil, c.attachReconnected(ctx, sock)
	})
	if ctx.Err() != nil {
		return
	} else if err != nil {
		if lastErr == nil {
			lastErr = err
		}
		c.log.Errorf("Giving up reconnecting realtime channel after %d attempts: %v", attempts, lastErr)
		metrics.RecordReconnect("gave_up")
		c.dispatchEvent(&events.ReconnectFailed{Attempts: attempts, Err: lastErr})
		return
	}
	metrics.RecordReconnect("success")
}

func (c *Conn) attachReconnected(ctx context.Context, sock Socket) error {
	c.lock.Lock()
	if ctx.Err() != nil || c.sock != nil {
		c.lock.Unlock()
		_ = sock.Close()
		return ctx.Err()
	}
	c.sock = sock
	rooms := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		rooms = append(rooms, room)
	}
	c.lock.Unlock()

	c.log.Infof("Realtime channel reconnected")
	metrics.SetRealtimeConnected(true)
	go c.readPump(ctx, sock)
	for _, room := range rooms {
		if err := c.Send(ctx, EventJoinChat, chatPayload{ChatID: room}); err != nil {
			c.log.Warnf("Failed to rejoin %s after reconnect: %v", room, err)
		}
	}
	c.dispatchEvent(&events.Connected{})
	return nil
}
