package capture

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// startupGrace is how long a recorder must survive to count as started.
	startupGrace = 250 * time.Millisecond
	// stopTimeout bounds the wait after the interrupt before killing.
	stopTimeout = 2 * time.Second
)

// recorderProcess is one running recorder subprocess writing a WAV file.
type recorderProcess struct {
	name    string
	path    string
	cmd     *exec.Cmd
	stderr  *bytes.Buffer
	done    chan struct{}
	exitErr error // valid once done is closed
	logger  *zap.SugaredLogger

	stopOnce sync.Once
	stopErr  error
}

// startRecorder launches command with args and waits briefly so a recorder
// that dies on a bad target or device is reported as a start failure.
func startRecorder(name, path, command string, args []string, logger *zap.SugaredLogger) (*recorderProcess, error) {
	cmd := exec.Command(command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", command, err)
	}

	p := &recorderProcess{
		name:   name,
		path:   path,
		cmd:    cmd,
		stderr: &stderr,
		done:   make(chan struct{}),
		logger: logger,
	}
	go func() {
		p.exitErr = cmd.Wait()
		close(p.done)
	}()

	select {
	case <-p.done:
		if p.exitErr != nil {
			return nil, fmt.Errorf("%s exited before capture started: %w: %s", command, p.exitErr, strings.TrimSpace(stderr.String()))
		}
		return nil, fmt.Errorf("%s exited before capture started", command)
	case <-time.After(startupGrace):
	}

	logger.Debugw("recorder started", "recorder", name, "pid", cmd.Process.Pid, "path", path)
	return p, nil
}

// Stop interrupts the recorder so it can finalize the WAV header, then
// waits up to stopTimeout before killing it. Exit statuses are logged and
// not returned.
func (p *recorderProcess) Stop() error {
	p.stopOnce.Do(func() {
		_ = p.cmd.Process.Signal(os.Interrupt)

		select {
		case <-p.done:
		case <-time.After(stopTimeout):
			p.logger.Warnw("recorder did not exit after interrupt, killing", "recorder", p.name)
			_ = p.cmd.Process.Kill()
			<-p.done
		}

		err := p.exitErr
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			p.logger.Warnw("recorder exited with status", "recorder", p.name,
				"status", exitErr.String(), "stderr", strings.TrimSpace(p.stderr.String()))
			return
		}
		p.stopErr = err
	})
	return p.stopErr
}

// Running reports whether the process has not exited yet.
func (p *recorderProcess) Running() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}
