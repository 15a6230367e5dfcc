package daemon

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/hpungsan/minutes/internal/errors"
	"github.com/hpungsan/minutes/internal/ipc"
)

const (
	// StartupTimeout bounds how long Launch waits for the daemon to come up.
	StartupTimeout = 2 * time.Second
	pollInterval   = 100 * time.Millisecond
)

// OutputFileName receives the background daemon's stdout and stderr.
const OutputFileName = "minutesd.out"

// Launcher starts the daemon as a detached background process.
type Launcher struct {
	// Command and Args run the daemon in the foreground,
	// e.g. minutes daemon start --foreground.
	Command string
	Args    []string

	PIDPath    string
	SocketPath string
	// OutputPath receives the child's stdout and stderr; empty discards them.
	OutputPath string

	Timeout  time.Duration
	Interval time.Duration
}

// Running reports whether a live daemon owns the PID file.
func (l *Launcher) Running() (int, bool) {
	pid, err := ReadPID(l.PIDPath)
	if err != nil || !ProcessAlive(pid) {
		return 0, false
	}
	return pid, true
}

// Launch spawns the daemon, writes its PID file and waits until both the
// PID file and the socket exist. A child that exits first is reported with
// its exit status. A child that misses the deadline is stopped and its PID
// file removed.
func (l *Launcher) Launch() (int, error) {
	timeout, interval := l.Timeout, l.Interval
	if timeout <= 0 {
		timeout = StartupTimeout
	}
	if interval <= 0 {
		interval = pollInterval
	}

	if err := os.MkdirAll(filepath.Dir(l.PIDPath), 0700); err != nil {
		return 0, fmt.Errorf("create runtime dir: %w", err)
	}

	cmd := exec.Command(l.Command, l.Args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	var out *os.File
	if l.OutputPath != "" {
		if err := os.MkdirAll(filepath.Dir(l.OutputPath), 0700); err != nil {
			return 0, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(l.OutputPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return 0, fmt.Errorf("open daemon output: %w", err)
		}
		defer f.Close()
		out = f
		cmd.Stdout = f
		cmd.Stderr = f
	}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("spawn daemon: %w", err)
	}
	pid := cmd.Process.Pid

	if err := WritePID(l.PIDPath, pid); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return 0, err
	}

	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case err := <-exited:
			_ = os.Remove(l.PIDPath)
			return 0, childExitError(err, out)
		case <-ticker.C:
			if fileExists(l.PIDPath) && fileExists(l.SocketPath) {
				return pid, nil
			}
		case <-deadline.C:
			abandon(cmd.Process, exited)
			_ = os.Remove(l.PIDPath)
			return 0, errors.NewStartupTimeout(fmt.Sprintf("daemon (pid %d) did not create %s within %s; it was stopped", pid, l.SocketPath, timeout))
		}
	}
}

// abandonGrace is how long a child that missed its startup deadline gets to
// exit after an interrupt before it is killed.
const abandonGrace = time.Second

// abandon interrupts a child that never became ready, kills it if it lingers
// and reaps it.
func abandon(p *os.Process, exited <-chan error) {
	_ = p.Signal(os.Interrupt)
	select {
	case <-exited:
		return
	case <-time.After(abandonGrace):
	}
	_ = p.Kill()
	<-exited
}

func childExitError(err error, out *os.File) error {
	status := "exit status 0"
	if err != nil {
		status = err.Error()
	}
	msg := "daemon exited during startup (" + status + ")"
	if out != nil {
		if tail := tailOf(out.Name()); tail != "" {
			msg += ": " + tail
		}
	}
	return errors.NewInternal(stderrors.New(msg))
}

// tailOf returns the last non-empty line of a file.
func tailOf(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	data = bytes.TrimSpace(data)
	if i := bytes.LastIndexByte(data, '\n'); i >= 0 {
		data = data[i+1:]
	}
	return string(data)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Stop asks the daemon to shut down and waits for its PID to exit. A PID
// file left behind by a dead daemon is removed.
func Stop(ctx context.Context, client *ipc.Client, pidPath string, timeout time.Duration) error {
	pid, pidErr := ReadPID(pidPath)

	if _, err := client.Call(ctx, ipc.Request{Type: ipc.ReqShutdown}); err != nil {
		if errors.Is(err, errors.ErrDaemonNotRunning) && (pidErr != nil || !ProcessAlive(pid)) {
			_ = os.Remove(pidPath)
		}
		return err
	}
	if pidErr != nil {
		return nil
	}

	if timeout <= 0 {
		timeout = StartupTimeout
	}
	deadline := time.Now().Add(timeout)
	for ProcessAlive(pid) {
		if time.Now().After(deadline) {
			return errors.NewStartupTimeout(fmt.Sprintf("daemon (pid %d) still running after %s", pid, timeout))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
	_ = os.Remove(pidPath)
	return nil
}
