// Package process launches and supervises the driver and browser
// subprocesses. Every process is started in its own process group, its output
// is kept in a bounded buffer for diagnostics, and its readiness is decided by
// probing the port it was told to listen on.
package process

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"

	"github.com/entrhq/webpilot/pkg/browser"
	"github.com/entrhq/webpilot/pkg/logging"
)

const (
	defaultReadyTimeout = 30 * time.Second
	defaultGrace        = 3 * time.Second
	outputBufferSize    = 64 * 1024
)

var errExited = errors.New("process exited")

// ReadyFunc reports whether a started process is accepting work on port.
type ReadyFunc func(ctx context.Context, port int) error

// Spec describes a process to launch.
type Spec struct {
	// Name identifies the process in logs and metrics, e.g. "chromedriver".
	Name string
	Path string
	// Args builds the argument list once the port is known.
	Args func(port int) []string
	Env  []string

	// Port is an explicit port. Zero means probe upward from DefaultPort.
	Port        int
	DefaultPort int

	ReadyTimeout time.Duration
	// Ready overrides the default TCP probe.
	Ready ReadyFunc
}

// Launcher starts processes and stops every process it started.
type Launcher struct {
	logger *logging.Logger
	grace  time.Duration

	mu    sync.Mutex
	procs []*ManagedProcess
}

// NewLauncher creates a launcher. A nil logger discards output.
func NewLauncher(logger *logging.Logger) *Launcher {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Launcher{logger: logger, grace: defaultGrace}
}

// SetGrace sets how long Stop waits between the graceful and forceful steps.
func (l *Launcher) SetGrace(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.grace = d
}

func (l *Launcher) graceful() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.grace
}

// Start spawns spec and blocks until it is ready, exits, or the ready timeout
// elapses. On failure the process is stopped and the error wraps
// browser.ErrLaunchTimeout.
func (l *Launcher) Start(ctx context.Context, spec Spec) (*ManagedProcess, error) {
	const op = "launch"

	port, err := AllocatePort(spec.Port, spec.DefaultPort)
	if err != nil {
		return nil, browser.NewError(browser.ErrLaunchTimeout, op, fmt.Errorf("%s: %w", spec.Name, err))
	}

	var args []string
	if spec.Args != nil {
		args = spec.Args(port)
	}

	// The process must outlive ctx; only Stop ends it.
	cmd := exec.Command(spec.Path, args...)
	cmd.Env = append(os.Environ(), spec.Env...)
	setProcessGroup(cmd)

	logs := newRingBuffer(outputBufferSize)
	cmd.Stdout = logs
	cmd.Stderr = logs

	if err := cmd.Start(); err != nil {
		return nil, browser.NewError(browser.ErrLaunchTimeout, op, fmt.Errorf("failed to start %s: %w", spec.Name, err))
	}

	p := &ManagedProcess{
		name:   spec.Name,
		port:   port,
		cmd:    cmd,
		logs:   logs,
		logger: l.logger,
		state:  Starting,
		done:   make(chan struct{}),
	}
	go p.wait()

	l.mu.Lock()
	l.procs = append(l.procs, p)
	l.mu.Unlock()

	l.logger.Infof("started %s (pid %d) on port %d", spec.Name, p.PID(), port)

	if err := l.awaitReady(ctx, p, spec); err != nil {
		if stopErr := l.Stop(context.Background(), p); stopErr != nil {
			l.logger.Warnf("failed to stop %s after launch failure: %v", spec.Name, stopErr)
		}
		return nil, browser.NewError(browser.ErrLaunchTimeout, op, err)
	}

	p.markReady()
	l.logger.Infof("%s ready on port %d", spec.Name, port)
	return p, nil
}

func (l *Launcher) awaitReady(ctx context.Context, p *ManagedProcess, spec Spec) error {
	timeout := spec.ReadyTimeout
	if timeout <= 0 {
		timeout = defaultReadyTimeout
	}
	ready := spec.Ready
	if ready == nil {
		ready = dialReady
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = time.Second

	var lastErr error
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		select {
		case <-p.Done():
			return struct{}{}, backoff.Permanent(errExited)
		default:
		}
		probeCtx, probeCancel := context.WithTimeout(ctx, time.Second)
		defer probeCancel()
		if err := ready(probeCtx, p.Port()); err != nil {
			lastErr = err
			return struct{}{}, err
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(b), backoff.WithMaxElapsedTime(timeout))
	if err == nil {
		return nil
	}

	// An exit racing the last probe is reported as the exit.
	select {
	case <-p.Done():
		if exitErr := p.ExitError(); exitErr != nil {
			return exitErr
		}
		return fmt.Errorf("%s stopped before becoming ready", p.name)
	default:
	}

	msg := fmt.Sprintf("%s not ready on port %d after %s", p.name, p.port, timeout)
	if lastErr != nil {
		msg += ": " + lastErr.Error()
	}
	if tail := lastLines(p.Logs(), 5); tail != "" {
		msg += " (output: " + tail + ")"
	}
	return errors.New(msg)
}

// dialReady succeeds once something accepts TCP connections on the port.
func dialReady(ctx context.Context, port int) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", loopback(port))
	if err != nil {
		return err
	}
	return conn.Close()
}

// Stop stops p and forgets it.
func (l *Launcher) Stop(ctx context.Context, p *ManagedProcess) error {
	err := p.Stop(ctx, l.graceful())
	l.mu.Lock()
	for i, q := range l.procs {
		if q == p {
			l.procs = append(l.procs[:i], l.procs[i+1:]...)
			break
		}
	}
	l.mu.Unlock()
	return err
}

// Running returns the processes started and not yet stopped.
func (l *Launcher) Running() []*ManagedProcess {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*ManagedProcess, len(l.procs))
	copy(out, l.procs)
	return out
}

// Shutdown stops every process the launcher started, in parallel.
func (l *Launcher) Shutdown(ctx context.Context) error {
	procs := l.Running()
	if len(procs) == 0 {
		return nil
	}
	l.logger.Infof("stopping %d managed process(es)", len(procs))

	var g errgroup.Group
	for _, p := range procs {
		g.Go(func() error {
			return l.Stop(ctx, p)
		})
	}
	return g.Wait()
}
