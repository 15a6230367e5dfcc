package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/hpungsan/minutes/internal/errors"
)

// Runtime owns the PID file for the lifetime of a daemon process. The
// socket file is owned by ipc.Server; Release removes it too so a crashed
// listener never leaves one behind.
type Runtime struct {
	PIDPath    string
	SocketPath string

	once sync.Once
}

// Acquire writes the current pid to pidPath. It fails if the file names a
// different process that is still alive.
func Acquire(pidPath, socketPath string) (*Runtime, error) {
	if pid, err := ReadPID(pidPath); err == nil && pid != os.Getpid() && ProcessAlive(pid) {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("daemon already running (pid %d)", pid))
	}

	if err := os.MkdirAll(filepath.Dir(pidPath), 0700); err != nil {
		return nil, fmt.Errorf("create runtime dir: %w", err)
	}
	if err := WritePID(pidPath, os.Getpid()); err != nil {
		return nil, err
	}
	return &Runtime{PIDPath: pidPath, SocketPath: socketPath}, nil
}

// Release removes the PID and socket files. Safe to call more than once.
func (r *Runtime) Release() {
	r.once.Do(func() {
		_ = os.Remove(r.PIDPath)
		_ = os.Remove(r.SocketPath)
	})
}

// WritePID writes pid as plain text.
func WritePID(path string, pid int) error {
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0600); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	return nil
}

// ReadPID parses the pid stored at path.
func ReadPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid file %s", path)
	}
	return pid, nil
}

// ProcessAlive reports whether a process with pid exists.
func ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || err == syscall.EPERM
}
