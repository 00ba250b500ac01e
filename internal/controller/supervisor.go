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

package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tombee/hostagent/internal/config"
	"github.com/tombee/hostagent/internal/contract"
	"github.com/tombee/hostagent/internal/controller/metrics"
	"github.com/tombee/hostagent/internal/lifecycle"
	"github.com/tombee/hostagent/internal/log"
)

// ErrControllerMissing is reported when the controller path does not name
// an executable file.
var ErrControllerMissing = errors.New("controller executable not found")

const (
	lockFileName      = "controller.lock"
	logDirName        = "log"
	controllerLogName = "agent-ctl.log"
	eventLogName      = "lifecycle.log"
	dataDirEnv        = "HOSTAGENT_DATA_DIR"
	tracerName        = "github.com/tombee/hostagent/internal/controller"
)

// Options configures a Supervisor. Zero values take the defaults noted
// on each field.
type Options struct {
	// DataDir holds the lock file and the controller and lifecycle logs.
	// Without it there is no cross-process lock and no log files.
	DataDir string

	// ServicePath locates the controller for Kill and Status when Start
	// has not been called in this process.
	ServicePath string

	// Port is the controller's listen port. Default: contract.Port
	Port uint16

	// Args are passed to the controller. Default: contract.ControllerArgs
	Args []string

	// StopTimeout bounds the graceful exit. Default: 10s
	StopTimeout time.Duration

	// KillTimeout bounds the wait after the forceful kill. Default: 5s
	KillTimeout time.Duration

	// ReadyTimeout, when positive, makes Start wait for the port to accept
	// connections.
	ReadyTimeout time.Duration

	// LockTimeout bounds the wait for the cross-process lock. Default: 5s
	LockTimeout time.Duration

	Discoverer lifecycle.Discoverer
	Spawner    *lifecycle.Spawner
	Events     *lifecycle.EventLog
	Logger     *slog.Logger
}

// OptionsFromConfig maps the loaded configuration onto supervisor options.
func OptionsFromConfig(cfg *config.Config) Options {
	c := cfg.System.Controller
	return Options{
		DataDir:      cfg.System.DataDir,
		ServicePath:  cfg.System.ServicePath,
		StopTimeout:  c.StopTimeout,
		KillTimeout:  c.KillTimeout,
		ReadyTimeout: c.ReadyTimeout,
		LockTimeout:  c.LockTimeout,
	}
}

func (o *Options) applyDefaults() {
	if o.Port == 0 {
		o.Port = contract.Port
	}
	if o.Args == nil {
		o.Args = contract.ControllerArgs
	}
	if o.StopTimeout <= 0 {
		o.StopTimeout = 10 * time.Second
	}
	if o.KillTimeout <= 0 {
		o.KillTimeout = 5 * time.Second
	}
	if o.LockTimeout <= 0 {
		o.LockTimeout = 5 * time.Second
	}
	if o.Discoverer == nil {
		o.Discoverer = lifecycle.NewDiscoverer()
	}
	if o.Spawner == nil {
		o.Spawner = newControllerSpawner(o.DataDir)
	}
	if o.Events == nil && o.DataDir != "" {
		o.Events = lifecycle.NewEventLog(filepath.Join(o.DataDir, logDirName, eventLogName))
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// newControllerSpawner starts controllers inside the data directory with
// HOSTAGENT_DATA_DIR pointing at it, which is where the controller looks
// for the legacy pull marker.
func newControllerSpawner(dataDir string) *lifecycle.Spawner {
	sp := lifecycle.NewSpawner()
	if dataDir == "" {
		return sp
	}
	env := append(os.Environ(), dataDirEnv+"="+dataDir)
	return sp.WithEnv(env).WithDir(dataDir)
}

// Status describes the controller as seen by a supervisor.
type Status struct {
	State   State  `json:"state"`
	PID     int    `json:"pid,omitempty"`
	Path    string `json:"path,omitempty"`
	Tracked bool   `json:"tracked"`

	// Command is the controller's command line as the process table
	// reports it.
	Command string `json:"cmdline,omitempty"`
}

// Supervisor owns the controller process lifecycle. Transitions are
// serialized by a mutex and, when a data directory is configured, by a
// lock file shared with other host agent processes.
type Supervisor struct {
	opts   Options
	logger *slog.Logger
	tracer trace.Tracer
	lock   *lifecycle.Lock

	mu    sync.Mutex
	state State
	proc  *lifecycle.Process
	path  string
}

// NewSupervisor creates a supervisor in the NotRunning state.
func NewSupervisor(opts Options) *Supervisor {
	opts.applyDefaults()

	s := &Supervisor{
		opts:   opts,
		logger: log.WithComponent(opts.Logger, "controller"),
		tracer: otel.Tracer(tracerName),
		state:  NotRunning,
	}
	if opts.DataDir != "" {
		s.lock = lifecycle.NewLock(filepath.Join(opts.DataDir, lockFileName))
	}
	metrics.SetState(NotRunning.String(), stateNames)
	return s
}

// State returns the current state without probing the process table.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start makes sure one controller is running for the service at
// servicePath. It returns true when a controller is running afterwards,
// whether it was already tracked, found running or spawned now.
// ctx carries tracing values only; Start is not cancellable.
func (s *Supervisor) Start(ctx context.Context, servicePath string) bool {
	ctx, span := s.tracer.Start(context.WithoutCancel(ctx), "controller.start",
		trace.WithAttributes(attribute.String("hostagent.service_path", servicePath)))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.reapLocked()

	if s.proc != nil {
		s.logger.Debug("controller already running", log.PIDKey, s.proc.PID)
		s.opts.Events.LogAlreadyRunning(s.proc.PID)
		metrics.RecordStart(metrics.OutcomeAlreadyRunning)
		endSpan(span, metrics.OutcomeAlreadyRunning, s.proc.PID, nil)
		return true
	}

	path := GetController(servicePath)
	if !lifecycle.IsExecutable(path) {
		s.failStart(span, path, metrics.OutcomeMissing, fmt.Errorf("%w: %q", ErrControllerMissing, path))
		return false
	}
	s.path = path
	logger := log.WithController(s.logger, path, 0)

	if err := s.acquire(); err != nil {
		s.failStart(span, path, metrics.OutcomeFailed, err)
		return false
	}
	defer s.release()

	s.setState(Starting)

	if found := s.discover(path); len(found) > 0 {
		s.proc = found[0]
		s.setState(Running)
		logger.Info("attached to running controller", log.PIDKey, s.proc.PID)
		s.opts.Events.LogAttach(s.proc.PID, path)
		metrics.RecordStart(metrics.OutcomeAttached)
		endSpan(span, metrics.OutcomeAttached, s.proc.PID, nil)
		return true
	}

	logger.Info("starting controller", "args", s.opts.Args)
	s.opts.Events.LogStart(path)
	begin := time.Now()

	proc, err := s.opts.Spawner.Spawn(path, s.opts.Args, s.controllerLog())
	if err != nil {
		s.failStart(span, path, metrics.OutcomeFailed, err)
		return false
	}

	if s.opts.ReadyTimeout > 0 {
		if err := s.waitReady(ctx, proc); err != nil {
			if stopErr := lifecycle.Stop(proc, s.opts.StopTimeout, s.opts.KillTimeout); stopErr != nil && !errors.Is(stopErr, lifecycle.ErrProcessNotRunning) {
				logger.Error("failed to stop controller that never became ready", log.PIDKey, proc.PID, log.Error(stopErr))
			}
			s.failStart(span, path, metrics.OutcomeFailed, fmt.Errorf("controller not ready: %w", err))
			return false
		}
	}

	s.proc = proc
	s.setState(Running)
	go s.monitor(proc)

	elapsed := time.Since(begin)
	logger.Info("controller started", log.PIDKey, proc.PID, log.DurationKey, elapsed.Milliseconds())
	s.opts.Events.LogStartSuccess(proc.PID, path, elapsed)
	metrics.RecordStart(metrics.OutcomeSpawned)
	endSpan(span, metrics.OutcomeSpawned, proc.PID, nil)
	return true
}

// Kill stops every controller instance the supervisor can locate: the
// tracked one, or else those found by executable path or by port. It
// returns true when no controller is left running, including when none
// was running to begin with. Kill blocks until exit is confirmed or the
// stop and kill timeouts have elapsed.
func (s *Supervisor) Kill(ctx context.Context) bool {
	_, span := s.tracer.Start(context.WithoutCancel(ctx), "controller.kill")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.reapLocked()

	if err := s.acquire(); err != nil {
		s.logger.Error("failed to stop controller", log.Error(err))
		metrics.RecordStop(metrics.OutcomeFailed, 0)
		endSpan(span, metrics.OutcomeFailed, 0, err)
		return false
	}
	defer s.release()

	targets := s.locateLocked()
	if len(targets) == 0 {
		s.logger.Debug("no controller running")
		s.proc = nil
		s.setState(NotRunning)
		metrics.RecordStop(metrics.OutcomeNotFound, 0)
		endSpan(span, metrics.OutcomeNotFound, 0, nil)
		return true
	}

	s.setState(Stopping)
	begin := time.Now()

	survivors := s.stopAll(targets)
	elapsed := time.Since(begin)

	if len(survivors) > 0 {
		s.proc = survivors[0]
		s.setState(Running)
		err := fmt.Errorf("%d controller process(es) still running after kill", len(survivors))
		metrics.RecordStop(metrics.OutcomeFailed, elapsed)
		endSpan(span, metrics.OutcomeFailed, survivors[0].PID, err)
		return false
	}

	s.proc = nil
	s.setState(NotRunning)
	metrics.RecordStop(metrics.OutcomeStopped, elapsed)
	endSpan(span, metrics.OutcomeStopped, targets[0].PID, nil)
	return true
}

// Status reports the tracked controller, or one found by discovery when
// nothing is tracked. Discovery does not adopt the process.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reapLocked()

	if s.proc != nil {
		return withCommand(Status{State: s.state, PID: s.proc.PID, Path: s.proc.Path, Tracked: true})
	}

	if found := s.discover(s.knownPath()); len(found) > 0 {
		return withCommand(Status{State: Running, PID: found[0].PID, Path: found[0].Path})
	}

	return Status{State: s.state}
}

func withCommand(st Status) Status {
	if info, err := lifecycle.GetProcessInfo(st.PID); err == nil && info.Running {
		st.Command = info.Command
	}
	return st
}

// stopAll stops targets concurrently so the total wait stays within one
// stop and kill timeout. It returns the processes that survived.
func (s *Supervisor) stopAll(targets []*lifecycle.Process) []*lifecycle.Process {
	errs := make([]error, len(targets))

	var wg sync.WaitGroup
	for i, p := range targets {
		wg.Add(1)
		go func() {
			defer wg.Done()

			logger := log.WithController(s.logger, p.Path, p.PID)
			logger.Info("stopping controller", "tracked", p.Spawned())
			s.opts.Events.LogStop(p.PID)
			begin := time.Now()

			err := lifecycle.Stop(p, s.opts.StopTimeout, s.opts.KillTimeout)
			if err != nil && !errors.Is(err, lifecycle.ErrProcessNotRunning) {
				logger.Error("failed to stop controller", log.Error(err))
				s.opts.Events.LogStopFailure(p.PID, err)
				errs[i] = err
				return
			}

			elapsed := time.Since(begin)
			logger.Info("controller stopped", log.DurationKey, elapsed.Milliseconds())
			s.opts.Events.LogStopSuccess(p.PID, elapsed)
		}()
	}
	wg.Wait()

	var survivors []*lifecycle.Process
	for i, err := range errs {
		if err != nil {
			survivors = append(survivors, targets[i])
		}
	}
	return survivors
}

// monitor clears the tracked handle when a spawned controller exits on
// its own.
func (s *Supervisor) monitor(proc *lifecycle.Process) {
	<-proc.Exited()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.forgetLocked(proc)
}

// reapLocked drops a tracked handle whose process is gone.
func (s *Supervisor) reapLocked() {
	if s.proc != nil && !s.proc.Alive() {
		s.forgetLocked(s.proc)
	}
}

func (s *Supervisor) forgetLocked(proc *lifecycle.Process) {
	if s.proc != proc {
		return
	}
	log.WithController(s.logger, proc.Path, proc.PID).Warn("controller exited", log.Error(proc.ExitError()))
	s.opts.Events.LogExited(proc.PID, proc.ExitError())
	s.proc = nil
	s.setState(NotRunning)
}

func (s *Supervisor) locateLocked() []*lifecycle.Process {
	if s.proc != nil {
		return []*lifecycle.Process{s.proc}
	}
	return s.discover(s.knownPath())
}

// knownPath is the controller path from the last Start, or the one
// derived from the configured service path.
func (s *Supervisor) knownPath() string {
	if s.path != "" {
		return s.path
	}
	return GetController(s.opts.ServicePath)
}

// discover finds running controllers by executable path first and by
// port owner second. A port owner only counts when its executable is the
// controller. The host agent itself is never returned.
func (s *Supervisor) discover(path string) []*lifecycle.Process {
	self := os.Getpid()
	seen := make(map[int]bool)
	var found []*lifecycle.Process

	add := func(pid int, image string) {
		if pid == self || seen[pid] {
			return
		}
		seen[pid] = true
		found = append(found, lifecycle.Adopt(pid, image))
	}

	if path != "" {
		pids, err := s.opts.Discoverer.FindByExecutable(path)
		if err != nil {
			s.discoveryFailed("executable", err)
		}
		for _, pid := range pids {
			add(pid, path)
		}
		if len(found) > 0 {
			return found
		}
	}

	pids, err := s.opts.Discoverer.FindByPort(s.opts.Port)
	if err != nil {
		s.discoveryFailed("port", err)
	}
	for _, pid := range pids {
		exe, err := s.opts.Discoverer.Executable(pid)
		if err != nil {
			log.Trace(s.logger, "skipping port owner", slog.Int(log.PIDKey, pid), log.Error(err))
			continue
		}
		if !isControllerImage(path, exe) {
			log.Trace(s.logger, "port owner is not the controller", slog.Int(log.PIDKey, pid), slog.String("exe", exe))
			continue
		}
		add(pid, exe)
	}

	return found
}

func (s *Supervisor) discoveryFailed(by string, err error) {
	if errors.Is(err, lifecycle.ErrDiscoveryUnsupported) {
		s.logger.Debug("controller discovery unavailable", "by", by)
		return
	}
	s.logger.Warn("controller discovery failed", "by", by, log.Error(err))
}

func isControllerImage(path, exe string) bool {
	if path != "" {
		return lifecycle.MatchesExecutable(path, exe, nil)
	}
	return strings.EqualFold(filepath.Base(exe), ControllerName(runtime.GOOS))
}

// waitReady polls the controller port until it accepts connections. It
// gives up early when the process exits.
func (s *Supervisor) waitReady(ctx context.Context, proc *lifecycle.Process) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-proc.Exited():
			cancel()
		case <-ctx.Done():
		}
	}()

	probe := lifecycle.NewPortProbe(s.opts.Port)
	attempts, err := probe.WaitUntilListeningWithCallback(ctx, s.opts.ReadyTimeout, func(r *lifecycle.ProbeResult, attempt int) {
		log.Trace(s.logger, "probing controller port", slog.Int("attempt", attempt), slog.Bool("success", r.Success))
	})
	if err != nil {
		if !proc.Alive() {
			return fmt.Errorf("controller exited during startup: %v", proc.ExitError())
		}
		return err
	}

	s.logger.Debug("controller port ready", "addr", probe.Addr(), "attempts", attempts)
	return nil
}

func (s *Supervisor) failStart(span trace.Span, path, outcome string, err error) {
	log.WithController(s.logger, path, 0).Warn("controller not started", log.Error(err))
	s.opts.Events.LogStartFailure(path, err)
	metrics.RecordStart(outcome)
	endSpan(span, outcome, 0, err)
	s.setState(NotRunning)
}

func (s *Supervisor) setState(state State) {
	if s.state != state {
		s.logger.Debug("controller state changed", "from", s.state.String(), log.StateKey, state.String())
	}
	s.state = state
	metrics.SetState(state.String(), stateNames)
}

func (s *Supervisor) acquire() error {
	if s.lock == nil {
		return nil
	}
	return s.lock.Acquire(s.opts.LockTimeout)
}

func (s *Supervisor) release() {
	if s.lock == nil {
		return
	}
	if err := s.lock.Release(); err != nil {
		s.logger.Warn("failed to release lifecycle lock", log.Error(err))
	}
}

func (s *Supervisor) controllerLog() string {
	if s.opts.DataDir == "" {
		return ""
	}
	return filepath.Join(s.opts.DataDir, logDirName, controllerLogName)
}

func endSpan(span trace.Span, outcome string, pid int, err error) {
	span.SetAttributes(attribute.String("hostagent.controller.outcome", outcome))
	if pid > 0 {
		span.SetAttributes(attribute.Int("hostagent.controller.pid", pid))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
