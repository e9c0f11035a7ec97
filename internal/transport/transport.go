// Package transport exposes a child process's stdio as a serial-like line channel.
package transport

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	ferrors "git.home.luguber.info/inful/stepd-host/internal/foundation/errors"
	"git.home.luguber.info/inful/stepd-host/internal/logbridge"
	"git.home.luguber.info/inful/stepd-host/internal/logfields"
)

// maxQueuedLines caps unread stdout lines; the oldest are dropped beyond it, as a UART would.
const maxQueuedLines = 8192

// DefaultWriteTimeout bounds a single Write when LaunchSpec.WriteTimeout is unset.
const DefaultWriteTimeout = 5 * time.Second

// LaunchSpec describes the daemon process.
type LaunchSpec struct {
	Path string
	Args []string
	Dir  string
	Env  []string // appended to the current environment

	WriteTimeout time.Duration
}

// PipeTransport owns a running daemon process and its three pipes.
type PipeTransport struct {
	cmd          *exec.Cmd
	stdin        *os.File
	writeTimeout time.Duration
	logger       *slog.Logger

	mu      sync.Mutex
	queue   []string
	avail   chan struct{} // closed and replaced whenever queue or eof changes
	eof     bool
	dropped int

	writeMu sync.Mutex

	closed    atomic.Bool
	closing   chan struct{}
	closeOnce sync.Once

	readerDone chan struct{}
	done       chan struct{}
	exitErr    error
	startedAt  time.Time
}

// Start spawns the daemon with redirected stdin, stdout and stderr. Stderr is drained into
// logger under source "stepd"; when the process exits the remaining handles are released.
func Start(spec LaunchSpec, logger *slog.Logger) (*PipeTransport, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}

	// The write end stays in the runtime poller so Write can carry a deadline.
	stdinR, stdin, err := os.Pipe()
	if err != nil {
		return nil, spawnError(spec, err)
	}
	cmd.Stdin = stdinR
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		closePipe(stdinR, stdin)
		return nil, spawnError(spec, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		closePipe(stdinR, stdin)
		return nil, spawnError(spec, err)
	}
	if err := cmd.Start(); err != nil {
		closePipe(stdinR, stdin)
		return nil, spawnError(spec, err)
	}
	_ = stdinR.Close()

	writeTimeout := spec.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	t := &PipeTransport{
		cmd:          cmd,
		stdin:        stdin,
		writeTimeout: writeTimeout,
		logger:       logger.With(logfields.PID(cmd.Process.Pid)),
		avail:        make(chan struct{}),
		closing:      make(chan struct{}),
		readerDone:   make(chan struct{}),
		done:         make(chan struct{}),
		startedAt:    time.Now(),
	}
	t.logger.Info("Service started", logfields.Path(spec.Path))

	go t.readStdout(stdout)
	logbridge.New(t.logger, "stepd").Run(stderr, t.teardown)
	return t, nil
}

func closePipe(files ...*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}

func spawnError(spec LaunchSpec, err error) error {
	return ferrors.ProcessError("failed to start step daemon").
		WithCause(err).
		WithContext("path", spec.Path).
		Build()
}

func (t *PipeTransport) readStdout(r io.Reader) {
	defer close(t.readerDone)
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			t.push(trimEOL(line))
		}
		if err != nil {
			t.mu.Lock()
			t.eof = true
			t.signalLocked()
			t.mu.Unlock()
			return
		}
	}
}

func (t *PipeTransport) push(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed.Load() {
		return
	}
	if len(t.queue) >= maxQueuedLines {
		t.queue = t.queue[1:]
		t.dropped++
		if t.dropped == 1 || t.dropped%1000 == 0 {
			t.logger.Warn("Dropping unread daemon output", slog.Int("dropped", t.dropped))
		}
	}
	t.queue = append(t.queue, line)
	t.signalLocked()
}

func (t *PipeTransport) signalLocked() {
	close(t.avail)
	t.avail = make(chan struct{})
}

// teardown runs once stderr reaches EOF: it waits for stdout to drain, reaps the
// process, and releases stdin.
func (t *PipeTransport) teardown() {
	<-t.readerDone
	err := t.cmd.Wait()
	_ = t.stdin.Close()
	t.exitErr = err

	attrs := []any{slog.Bool("requested", t.closed.Load())}
	if ps := t.cmd.ProcessState; ps != nil {
		attrs = append(attrs, logfields.ExitCode(ps.ExitCode()))
	}
	if err != nil && !t.closed.Load() {
		attrs = append(attrs, logfields.Error(err))
	}
	t.logger.Info("Service terminated", attrs...)
	close(t.done)
}

// ReadLine returns the next stdout line without its terminator. It fails with ErrTimeout
// when nothing arrives within timeout (timeout <= 0 polls), io.EOF once the daemon's
// stdout ended and every line was read, and ErrClosed after Close.
func (t *PipeTransport) ReadLine(timeout time.Duration) (string, error) {
	timer := time.NewTimer(max(timeout, 0))
	defer timer.Stop()
	for {
		t.mu.Lock()
		if t.closed.Load() {
			t.mu.Unlock()
			return "", ErrClosed
		}
		if len(t.queue) > 0 {
			line := t.queue[0]
			t.queue = t.queue[1:]
			t.mu.Unlock()
			return line, nil
		}
		if t.eof {
			t.mu.Unlock()
			return "", io.EOF
		}
		avail := t.avail
		t.mu.Unlock()

		select {
		case <-avail:
		case <-t.closing:
			return "", ErrClosed
		case <-timer.C:
			return "", ErrTimeout
		}
	}
}

// Write sends data to the daemon's stdin. It fails with ErrTimeout when the daemon does
// not take the whole buffer within the write timeout; n reports how much was sent.
func (t *PipeTransport) Write(data []byte) (int, error) {
	if t.closed.Load() {
		return 0, ErrClosed
	}
	select {
	case <-t.done:
		return 0, t.brokenPipe(nil)
	default:
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := t.stdin.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
		return 0, t.brokenPipe(err)
	}
	n, err := t.stdin.Write(data)
	switch {
	case err == nil:
		return n, nil
	case t.closed.Load():
		return n, ErrClosed
	case errors.Is(err, os.ErrDeadlineExceeded):
		t.logger.Warn("Daemon is not reading stdin", slog.Int("written", n), slog.Int("size", len(data)), logfields.Duration(t.writeTimeout))
		return n, ErrTimeout
	default:
		return n, t.brokenPipe(err)
	}
}

func (t *PipeTransport) brokenPipe(cause error) error {
	b := ferrors.ProcessError("step daemon is not accepting input").WithCause(ErrBrokenPipe)
	if cause != nil {
		b = b.WithContext("write_error", cause.Error())
	}
	return b.Build()
}

// Close kills the daemon and wakes blocked readers. It does not wait for the process
// to be reaped; use Done for that. Calling Close more than once is safe.
func (t *PipeTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closed.Store(true)
		t.queue = nil
		t.mu.Unlock()
		close(t.closing)

		if kerr := t.cmd.Process.Kill(); kerr != nil && !errors.Is(kerr, os.ErrProcessDone) {
			err = ferrors.ProcessError("failed to kill step daemon").WithCause(kerr).Build()
		}
	})
	return err
}

// Done is closed after the daemon exited and its pipes were released.
func (t *PipeTransport) Done() <-chan struct{} { return t.done }

// Closed reports whether Close was called, i.e. whether an exit was requested.
func (t *PipeTransport) Closed() bool { return t.closed.Load() }

// ExitErr returns the wait error once Done is closed.
func (t *PipeTransport) ExitErr() error {
	select {
	case <-t.done:
		return t.exitErr
	default:
		return nil
	}
}

// PID returns the daemon's process id.
func (t *PipeTransport) PID() int { return t.cmd.Process.Pid }

// StartedAt returns the spawn time.
func (t *PipeTransport) StartedAt() time.Time { return t.startedAt }

// String identifies the transport in logs.
func (t *PipeTransport) String() string {
	return fmt.Sprintf("stepd[%d]", t.PID())
}

func trimEOL(s string) string {
	if n := len(s); n > 0 && s[n-1] == '\n' {
		s = s[:n-1]
	}
	if n := len(s); n > 0 && s[n-1] == '\r' {
		s = s[:n-1]
	}
	return s
}
