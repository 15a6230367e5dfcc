package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/hpungsan/minutes/internal/capture"
	"github.com/hpungsan/minutes/internal/config"
	"github.com/hpungsan/minutes/internal/daemon"
	"github.com/hpungsan/minutes/internal/errors"
	"github.com/hpungsan/minutes/internal/logging"
	"github.com/hpungsan/minutes/internal/ogg"
	"github.com/hpungsan/minutes/internal/ogg/libopus"
	"github.com/hpungsan/minutes/internal/transcribe"
	"github.com/hpungsan/minutes/internal/web"
)

const stopTimeout = 5 * time.Second

// daemonCmd creates the daemon command group.
func daemonCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "daemon",
		Usage: "Manage the background recording daemon",
		Subcommands: []*cli.Command{
			{
				Name:  "start",
				Usage: "Start the daemon",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "foreground", Aliases: []string{"f"}, Usage: "Run in the foreground and log to stderr"},
				},
				Action: func(c *cli.Context) error {
					if c.Bool("foreground") {
						if err := runDaemon(c.Context, env); err != nil {
							return outputError(err)
						}
						return nil
					}
					pid, err := launchDaemon(env)
					if err != nil {
						return outputError(err)
					}
					fmt.Printf("Daemon started (pid %d)\n", pid)
					return nil
				},
			},
			{
				Name:  "stop",
				Usage: "Stop the daemon; an active recording is saved first",
				Action: func(c *cli.Context) error {
					if err := daemon.Stop(c.Context, env.client(), env.cfg.Daemon.PIDPath, stopTimeout); err != nil {
						return outputError(err)
					}
					fmt.Println("Daemon stopped")
					return nil
				},
			},
			{
				Name:  "restart",
				Usage: "Stop the daemon if it is running, then start it",
				Action: func(c *cli.Context) error {
					err := daemon.Stop(c.Context, env.client(), env.cfg.Daemon.PIDPath, stopTimeout)
					if err != nil && !errors.Is(err, errors.ErrDaemonNotRunning) {
						return outputError(err)
					}
					pid, err := launchDaemon(env)
					if err != nil {
						return outputError(err)
					}
					fmt.Printf("Daemon restarted (pid %d)\n", pid)
					return nil
				},
			},
			{
				Name:  "status",
				Usage: "Report whether the daemon is running",
				Action: func(c *cli.Context) error {
					if err := env.client().Ping(c.Context); err != nil {
						if errors.Is(err, errors.ErrDaemonNotRunning) {
							fmt.Println("Daemon is not running")
							return nil
						}
						return outputError(err)
					}
					if pid, err := daemon.ReadPID(env.cfg.Daemon.PIDPath); err == nil {
						fmt.Printf("Daemon is running (pid %d)\n", pid)
						return nil
					}
					fmt.Println("Daemon is running")
					return nil
				},
			},
		},
	}
}

// launchDaemon re-executes this binary as a detached foreground daemon.
func launchDaemon(env *appEnv) (int, error) {
	exe, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("locate executable: %w", err)
	}

	l := &daemon.Launcher{
		Command:    exe,
		Args:       []string{"daemon", "start", "--foreground"},
		PIDPath:    env.cfg.Daemon.PIDPath,
		SocketPath: env.cfg.Daemon.SocketPath,
		OutputPath: filepath.Join(filepath.Dir(logging.Path(env.baseDir)), daemon.OutputFileName),
	}
	if pid, ok := l.Running(); ok {
		return 0, errors.NewInvalidRequest(fmt.Sprintf("daemon already running (pid %d)", pid))
	}
	return l.Launch()
}

// runDaemon runs the daemon in this process until SIGINT, SIGTERM or a
// shutdown request.
func runDaemon(ctx context.Context, env *appEnv) error {
	cfg := env.cfg

	logger, err := logging.New(env.baseDir, cfg.LogLevel, isCharDevice(os.Stderr))
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := daemonOptions(env, logger)

	logger.Infow("daemon starting",
		"version", Version,
		"socket", opts.SocketPath,
		"backend", cfg.Audio.Backend,
		"compress", opts.Compressor != nil,
	)
	err = daemon.Run(ctx, opts)
	if err != nil {
		logger.Errorw("daemon exited", "error", err)
		return err
	}
	logger.Infow("daemon stopped")
	return nil
}

// daemonOptions builds the daemon's collaborators from config.
func daemonOptions(env *appEnv, logger *zap.SugaredLogger) daemon.Options {
	cfg := env.cfg

	resolver := capture.NewResolver(nil, logger)
	captureOpts := capture.OptionsFromConfig(cfg.Audio)

	engine := transcribe.NewWhisperCLI(cfg)
	if err := engine.Check(); err != nil {
		// Recordings still work; they stay pending until whisper is fixed.
		logger.Warnw("transcription unavailable", "error", err)
	}

	opts := daemon.Options{
		DB:         env.db,
		AudioDir:   env.audioDir(),
		SocketPath: cfg.Daemon.SocketPath,
		PIDPath:    cfg.Daemon.PIDPath,
		NewBackend: func() (capture.Backend, error) {
			return capture.New(captureOpts, resolver, logger)
		},
		Transcriber:  transcribe.NewPipeline(engine, transcribe.OptionsFromConfig(cfg), logger),
		PollInterval: time.Duration(cfg.Daemon.PollIntervalSecs) * time.Second,
		Logger:       logger,
	}
	if config.Enabled(cfg.Audio.CompressToOGG, true) {
		opts.Compressor = ogg.NewEncoder(cfg.Audio.OGGBitrate, libopus.New, logger)
	}
	return opts
}

// webCmd creates the web command.
func webCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "web",
		Usage: "Run the browser UI",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "Listen port (default from config, 8790)"},
			&cli.StringFlag{Name: "bind", Usage: "Listen address (default from config, 127.0.0.1)"},
		},
		Action: func(c *cli.Context) error {
			port := env.cfg.Web.Port
			if c.IsSet("port") {
				port = c.Int("port")
			}
			bind := env.cfg.Web.Bind
			if c.IsSet("bind") {
				bind = c.String("bind")
			}

			logger, err := logging.New(env.baseDir, env.cfg.LogLevel, true)
			if err != nil {
				return outputError(err)
			}
			defer func() { _ = logger.Sync() }()

			srv, err := web.NewServer(env.db, env.audioDir(), Version, bind, port, logger)
			if err != nil {
				return outputError(err)
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := web.Run(ctx, srv, logger); err != nil {
				return outputError(err)
			}
			return nil
		},
	}
}

// isCharDevice reports whether f is a terminal.
func isCharDevice(f *os.File) bool {
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}
