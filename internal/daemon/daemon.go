// Package daemon runs the recording daemon: a single command consumer that
// owns the recording state, the IPC server in front of it and a background
// transcription worker.
package daemon

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hpungsan/minutes/internal/ipc"
)

// Options wires the daemon's collaborators.
type Options struct {
	DB       *sql.DB
	AudioDir string

	SocketPath string
	PIDPath    string

	NewBackend  BackendFactory
	Transcriber Transcriber
	// Compressor may be nil to keep WAV files after transcription.
	Compressor   Compressor
	PollInterval time.Duration

	Logger *zap.SugaredLogger
}

// Run starts the daemon and blocks until a shutdown request or ctx is
// cancelled. Failing to write the PID file or bind the socket is fatal.
func Run(ctx context.Context, opts Options) error {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	rt, err := Acquire(opts.PIDPath, opts.SocketPath)
	if err != nil {
		return err
	}
	defer rt.Release()

	h := NewHandler(opts.DB, opts.AudioDir, opts.NewBackend, logger)

	srv, err := ipc.Listen(opts.SocketPath, h, logger)
	if err != nil {
		return err
	}
	defer srv.Close()

	worker := NewWorker(h, opts.DB, opts.Transcriber, opts.Compressor, opts.PollInterval, logger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// A shutdown request ends the handler; take the others down with it.
		defer cancel()
		return h.Run(gctx)
	})
	g.Go(func() error {
		return srv.Serve(gctx)
	})
	g.Go(func() error {
		return worker.Run(gctx)
	})

	logger.Infow("daemon started", "socket", opts.SocketPath, "pid_file", opts.PIDPath)
	err = g.Wait()
	logger.Info("daemon stopped")
	return err
}
