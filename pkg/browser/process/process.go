package process

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/entrhq/webpilot/pkg/logging"
	"github.com/entrhq/webpilot/pkg/metrics"
)

// State is the liveness of a managed process.
type State int

const (
	Starting State = iota
	Ready
	Exited
	Killed
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Ready:
		return "ready"
	case Exited:
		return "exited"
	case Killed:
		return "killed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ManagedProcess is a subprocess spawned by a Launcher. Only the launcher
// terminates it; Stop is idempotent.
type ManagedProcess struct {
	name   string
	port   int
	cmd    *exec.Cmd
	logs   *ringBuffer
	logger *logging.Logger

	mu       sync.Mutex
	state    State
	exitCode int
	stopping bool

	done     chan struct{}
	stopOnce sync.Once
	stopErr  error
}

// Name returns the process name used in logs and metrics.
func (p *ManagedProcess) Name() string { return p.name }

// Port returns the port the process was told to listen on.
func (p *ManagedProcess) Port() int { return p.port }

// PID returns the operating system process id.
func (p *ManagedProcess) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// State returns the current state and, once Exited, the exit code.
func (p *ManagedProcess) State() (State, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state, p.exitCode
}

// Done is closed once the process has exited for any reason.
func (p *ManagedProcess) Done() <-chan struct{} { return p.done }

// Unexpected reports whether the process exited without being stopped.
func (p *ManagedProcess) Unexpected() bool {
	select {
	case <-p.done:
	default:
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == Exited
}

// Logs returns the tail of the process's combined output.
func (p *ManagedProcess) Logs() string { return p.logs.String() }

// ExitError describes an unexpected exit.
func (p *ManagedProcess) ExitError() error {
	state, code := p.State()
	if state != Exited {
		return nil
	}
	if tail := lastLines(p.Logs(), 5); tail != "" {
		return fmt.Errorf("%s (pid %d) exited with code %d: %s", p.name, p.PID(), code, tail)
	}
	return fmt.Errorf("%s (pid %d) exited with code %d", p.name, p.PID(), code)
}

func (p *ManagedProcess) markReady() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == Starting {
		p.state = Ready
	}
}

// wait runs on its own goroutine for the lifetime of the process.
func (p *ManagedProcess) wait() {
	_ = p.cmd.Wait()

	p.mu.Lock()
	expected := p.stopping
	if expected {
		p.state = Killed
	} else {
		p.state = Exited
	}
	p.exitCode = p.cmd.ProcessState.ExitCode()
	p.mu.Unlock()

	if expected {
		p.logger.Debugf("%s (pid %d) stopped", p.name, p.PID())
	} else {
		p.logger.Warnf("%s (pid %d) exited unexpectedly with code %d", p.name, p.PID(), p.exitCode)
	}
	metrics.ProcessExits.WithLabelValues(p.name, fmt.Sprint(expected)).Inc()
	close(p.done)
}

// Stop terminates the process group, first gracefully and then forcefully
// once grace has elapsed or ctx is done. Calling Stop again returns the
// first result.
func (p *ManagedProcess) Stop(ctx context.Context, grace time.Duration) error {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.stopping = true
		p.mu.Unlock()

		select {
		case <-p.done:
			return
		default:
		}

		if err := terminate(p.cmd); err != nil {
			p.logger.Debugf("graceful stop of %s failed: %v", p.name, err)
		}

		timer := time.NewTimer(grace)
		defer timer.Stop()
		select {
		case <-p.done:
			return
		case <-timer.C:
		case <-ctx.Done():
		}

		p.logger.Warnf("%s (pid %d) did not exit after %s, killing", p.name, p.PID(), grace)
		if err := kill(p.cmd); err != nil {
			p.stopErr = fmt.Errorf("failed to kill %s: %w", p.name, err)
			return
		}
		<-p.done
	})
	return p.stopErr
}
