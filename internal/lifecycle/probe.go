// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

// ErrProbeTimeout is returned when the port does not accept connections
// before the timeout.
var ErrProbeTimeout = errors.New("port probe timeout")

// PortProbe polls a local TCP port with exponential backoff.
type PortProbe struct {
	addr            string
	dialTimeout     time.Duration
	initialInterval time.Duration
	maxInterval     time.Duration
	multiplier      float64
}

// ProbeResult contains the result of a probe attempt.
type ProbeResult struct {
	Success bool
	Latency time.Duration
	Error   error
}

// NewPortProbe creates a probe for port on the loopback interface.
// Default backoff: 50ms initial, 2x multiplier, 1s max interval.
func NewPortProbe(port uint16) *PortProbe {
	return &PortProbe{
		addr:            net.JoinHostPort("127.0.0.1", strconv.Itoa(int(port))),
		dialTimeout:     time.Second,
		initialInterval: 50 * time.Millisecond,
		maxInterval:     1 * time.Second,
		multiplier:      2.0,
	}
}

// WithBackoff configures custom backoff parameters.
func (p *PortProbe) WithBackoff(initial, max time.Duration, multiplier float64) *PortProbe {
	p.initialInterval = initial
	p.maxInterval = max
	p.multiplier = multiplier
	return p
}

// Addr returns the probed address.
func (p *PortProbe) Addr() string {
	return p.addr
}

// Check performs a single connection attempt.
func (p *PortProbe) Check(ctx context.Context) *ProbeResult {
	start := time.Now()

	dialer := net.Dialer{Timeout: p.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", p.addr)
	latency := time.Since(start)
	if err != nil {
		return &ProbeResult{
			Success: false,
			Latency: latency,
			Error:   fmt.Errorf("dial %s: %w", p.addr, err),
		}
	}
	conn.Close()

	return &ProbeResult{
		Success: true,
		Latency: latency,
	}
}

// WaitUntilListening polls the port until it accepts a connection, the
// timeout is reached or ctx is cancelled.
func (p *PortProbe) WaitUntilListening(ctx context.Context, timeout time.Duration) error {
	_, err := p.WaitUntilListeningWithCallback(ctx, timeout, nil)
	return err
}

// WaitUntilListeningWithCallback is like WaitUntilListening but calls a
// callback for each attempt and reports how many attempts were made.
func (p *PortProbe) WaitUntilListeningWithCallback(ctx context.Context, timeout time.Duration, callback func(*ProbeResult, int)) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	interval := p.initialInterval
	attempts := 0

	for {
		attempts++
		result := p.Check(ctx)

		if callback != nil {
			callback(result, attempts)
		}

		if result.Success {
			return attempts, nil
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return attempts, fmt.Errorf("%w after %d attempts: %v", ErrProbeTimeout, attempts, result.Error)
			}
			return attempts, ctx.Err()
		case <-timer.C:
		}

		// Increase interval for next attempt
		interval = time.Duration(float64(interval) * p.multiplier)
		if interval > p.maxInterval {
			interval = p.maxInterval
		}
	}
}
