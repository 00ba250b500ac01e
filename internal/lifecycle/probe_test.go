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
	"net"
	"testing"
	"time"
)

// listen opens a loopback listener and returns it with its port.
func listen(t *testing.T) (net.Listener, uint16) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	return ln, uint16(ln.Addr().(*net.TCPAddr).Port)
}

// freePort returns a port nothing is listening on.
func freePort(t *testing.T) uint16 {
	t.Helper()
	ln, port := listen(t)
	ln.Close()
	return port
}

func TestPortProbe_Check(t *testing.T) {
	t.Run("succeeds for listening port", func(t *testing.T) {
		ln, port := listen(t)
		defer ln.Close()

		result := NewPortProbe(port).Check(context.Background())
		if !result.Success {
			t.Errorf("Check() success = false, want true (error: %v)", result.Error)
		}
		if result.Latency <= 0 {
			t.Error("Check() latency should be positive")
		}
	})

	t.Run("fails for closed port", func(t *testing.T) {
		result := NewPortProbe(freePort(t)).Check(context.Background())
		if result.Success {
			t.Error("Check() success = true, want false")
		}
		if result.Error == nil {
			t.Error("Check() error = nil, want dial error")
		}
	})
}

func TestPortProbe_WaitUntilListening(t *testing.T) {
	t.Run("returns once port opens", func(t *testing.T) {
		port := freePort(t)
		addr := NewPortProbe(port).Addr()

		opened := make(chan net.Listener, 1)
		go func() {
			time.Sleep(200 * time.Millisecond)
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				close(opened)
				return
			}
			opened <- ln
		}()

		probe := NewPortProbe(port).WithBackoff(10*time.Millisecond, 50*time.Millisecond, 2)
		attempts, err := probe.WaitUntilListeningWithCallback(context.Background(), 5*time.Second, nil)

		ln, ok := <-opened
		if !ok {
			t.Skip("port was taken before the test could listen on it")
		}
		defer ln.Close()

		if err != nil {
			t.Fatalf("WaitUntilListening() error = %v", err)
		}
		if attempts < 2 {
			t.Errorf("attempts = %d, want retries before success", attempts)
		}
	})

	t.Run("times out for closed port", func(t *testing.T) {
		probe := NewPortProbe(freePort(t)).WithBackoff(10*time.Millisecond, 50*time.Millisecond, 2)

		var calls int
		_, err := probe.WaitUntilListeningWithCallback(context.Background(), 200*time.Millisecond, func(r *ProbeResult, attempt int) {
			calls = attempt
		})
		if !errors.Is(err, ErrProbeTimeout) {
			t.Errorf("WaitUntilListening() error = %v, want ErrProbeTimeout", err)
		}
		if calls == 0 {
			t.Error("callback never invoked")
		}
	})

	t.Run("stops when context is cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(100 * time.Millisecond)
			cancel()
		}()

		err := NewPortProbe(freePort(t)).WaitUntilListening(ctx, 10*time.Second)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("WaitUntilListening() error = %v, want context.Canceled", err)
		}
	})
}
