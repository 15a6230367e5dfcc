package main

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/hpungsan/minutes/internal/capture"
	"github.com/hpungsan/minutes/internal/config"
	"github.com/hpungsan/minutes/internal/db"
	"github.com/hpungsan/minutes/internal/errors"
	"github.com/hpungsan/minutes/internal/ipc"
	"github.com/hpungsan/minutes/internal/ops"
	"github.com/hpungsan/minutes/internal/recording"
	"github.com/hpungsan/minutes/internal/summarize"
)

// appEnv is what every command needs: the data directory, the open
// database and the loaded config.
type appEnv struct {
	baseDir string
	db      *sql.DB
	cfg     *config.Config
}

func (e *appEnv) client() *ipc.Client {
	return ipc.NewClient(e.cfg.Daemon.SocketPath)
}

func (e *appEnv) audioDir() string {
	return db.AudioDir(e.baseDir)
}

// newCLIApp creates the CLI application with all commands.
func newCLIApp(env *appEnv) *cli.App {
	app := &cli.App{
		Name:    "minutes",
		Usage:   "Local meeting recorder and transcriber",
		Version: Version,
		Commands: []*cli.Command{
			startCmd(env),
			stopCmd(env),
			statusCmd(env),
			transcribeCmd(env),
			listCmd(env),
			showCmd(env),
			searchCmd(env),
			exportCmd(env),
			summarizeCmd(env),
			deleteCmd(env),
			statsCmd(env),
			daemonCmd(env),
			configCmd(env),
			doctorCmd(env),
			mcpCmd(env),
			webCmd(env),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// startCmd creates the start command.
func startCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "start",
		Usage: "Start recording a meeting",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "Recording title (default: Meeting <date> <time>)"},
		},
		Action: func(c *cli.Context) error {
			title := strings.TrimSpace(c.String("title"))
			if title == "" {
				title = recording.DefaultTitle(time.Now())
			}

			resp, err := env.client().Call(c.Context, ipc.Request{Type: ipc.ReqStartRecording, Title: title})
			if err != nil {
				return outputError(err)
			}

			fmt.Printf("Recording started: %s (%s)\n", title, recording.ShortID(resp.ID))
			return nil
		},
	}
}

// stopCmd creates the stop command.
func stopCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "stop",
		Usage: "Stop the current recording and queue it for transcription",
		Action: func(c *cli.Context) error {
			resp, err := env.client().Call(c.Context, ipc.Request{Type: ipc.ReqStopRecording})
			if err != nil {
				return outputError(err)
			}

			var secs int64
			if resp.DurationSecs != nil {
				secs = *resp.DurationSecs
			}
			fmt.Printf("Recording stopped: %s (duration: %s)\n", recording.ShortID(resp.ID), recording.FormatDuration(secs))
			fmt.Println("Transcription queued...")
			return nil
		},
	}
}

// statusCmd creates the status command.
func statusCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show what the daemon is doing",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "Print the raw status as JSON"},
		},
		Action: func(c *cli.Context) error {
			st, err := env.client().Status(c.Context)
			if errors.Is(err, errors.ErrDaemonNotRunning) {
				if c.Bool("json") {
					return outputJSON(map[string]any{"running": false})
				}
				fmt.Println("Daemon is not running")
				return nil
			}
			if err != nil {
				return outputError(err)
			}

			if c.Bool("json") {
				return outputJSON(st)
			}
			printStatus(st, time.Now())
			return nil
		},
	}
}

func printStatus(st *ipc.Status, now time.Time) {
	switch st.State {
	case ipc.StateRecording:
		fmt.Println("Status: Recording")
		fmt.Printf("  Title: %s\n", st.Title)
		fmt.Printf("  ID: %s\n", recording.ShortID(st.RecordingID))
		fmt.Printf("  Duration: %s\n", recording.FormatDuration(max(now.Unix()-st.StartedAt, 0)))
		if st.Backend != "" {
			fmt.Printf("  Backend: %s\n", st.Backend)
		}
		fmt.Printf("  Level: %.0f%%\n", st.AudioLevel*100)
	case ipc.StateTranscribing:
		fmt.Println("Status: Transcribing")
		fmt.Printf("  ID: %s\n", recording.ShortID(st.RecordingID))
		fmt.Printf("  Progress: %.0f%%\n", st.Progress*100)
	default:
		fmt.Println("Status: Idle (not recording)")
	}
}

// transcribeCmd creates the transcribe command.
func transcribeCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "transcribe",
		Usage:     "Queue a recording for (re)transcription",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			id, err := requireArg(c, "recording ID")
			if err != nil {
				return outputError(err)
			}

			if _, err := env.client().Call(c.Context, ipc.Request{Type: ipc.ReqTranscribe, ID: id}); err != nil {
				return outputError(err)
			}
			fmt.Printf("Queued %s for transcription\n", id)
			return nil
		},
	}
}

// listCmd creates the list command.
func listCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List recordings, newest first",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultListLimit, Usage: "Max results"},
			&cli.IntFlag{Name: "offset", Value: 0, Usage: "Skip N results"},
			&cli.StringFlag{Name: "search", Aliases: []string{"s"}, Usage: "Filter by title"},
			&cli.StringFlag{Name: "state", Usage: "Filter by state: recording|pending|transcribing|completed|failed"},
			&cli.BoolFlag{Name: "json", Usage: "Print JSON"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.List(env.db, ops.ListInput{
				Limit:  c.Int("limit"),
				Offset: c.Int("offset"),
				Search: c.String("search"),
				State:  c.String("state"),
			})
			if err != nil {
				return outputError(err)
			}

			if c.Bool("json") {
				return outputJSON(output)
			}

			if len(output.Items) == 0 {
				fmt.Println("No recordings found")
				return nil
			}

			fmt.Printf("%-10s %-30s %-12s %-10s %s\n", "ID", "Title", "Date", "Duration", "State")
			fmt.Println(strings.Repeat("-", 76))
			for _, item := range output.Items {
				dur := "-"
				if item.DurationSecs != nil {
					dur = recording.FormatDuration(*item.DurationSecs)
				}
				fmt.Printf("%-10s %-30s %-12s %-10s %s\n",
					item.ShortID,
					truncate(item.Title, 28),
					time.Unix(item.CreatedAt, 0).Format("2006-01-02"),
					dur,
					item.State,
				)
			}
			if output.Pagination.HasMore {
				fmt.Printf("\nMore results: --offset %d\n", output.Pagination.Offset+output.Pagination.Limit)
			}
			return nil
		},
	}
}

// showCmd creates the show command.
func showCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "show",
		Aliases:   []string{"view"},
		Usage:     "Show a recording's notes and transcript",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "Print JSON"},
		},
		Action: func(c *cli.Context) error {
			id, err := requireArg(c, "recording ID")
			if err != nil {
				return outputError(err)
			}

			output, err := ops.Show(env.db, id)
			if err != nil {
				return outputError(err)
			}

			if c.Bool("json") {
				return outputJSON(output)
			}

			fmt.Printf("Title: %s\n", output.Title)
			fmt.Printf("ID: %s\n", output.ID)
			fmt.Printf("Date: %s (%s)\n", time.Unix(output.CreatedAt, 0).Format("2006-01-02 15:04"), humanize.Time(time.Unix(output.CreatedAt, 0)))
			if output.DurationSecs != nil {
				fmt.Printf("Duration: %s\n", recording.FormatDuration(*output.DurationSecs))
			}
			fmt.Printf("State: %s\n", output.State)

			if output.Notes != nil && strings.TrimSpace(*output.Notes) != "" {
				fmt.Println()
				fmt.Println("Summary:")
				fmt.Println(strings.TrimSpace(*output.Notes))
			}
			fmt.Println()

			if len(output.Segments) == 0 {
				fmt.Println("(No transcript available yet)")
				return nil
			}
			fmt.Println("Transcript:")
			for _, seg := range output.Segments {
				if seg.Speaker != nil && *seg.Speaker != "" {
					fmt.Printf("[%s] %s: %s\n", recording.FormatTimestamp(seg.StartTime), *seg.Speaker, seg.Text)
					continue
				}
				fmt.Printf("[%s] %s\n", recording.FormatTimestamp(seg.StartTime), seg.Text)
			}
			return nil
		},
	}
}

// searchCmd creates the search command.
func searchCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Full-text search across transcripts",
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultSearchLimit, Usage: "Max results"},
			&cli.BoolFlag{Name: "json", Usage: "Print JSON"},
		},
		Action: func(c *cli.Context) error {
			query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
			if query == "" {
				return outputError(errors.NewInvalidRequest("search query is required"))
			}

			output, err := ops.Search(env.db, ops.SearchInput{Query: query, Limit: c.Int("limit")})
			if err != nil {
				return outputError(err)
			}

			if c.Bool("json") {
				return outputJSON(output)
			}

			if len(output.Items) == 0 {
				fmt.Printf("No results found for: %s\n", query)
				return nil
			}

			fmt.Printf("Found %d results for: %s\n", len(output.Items), query)
			current := ""
			for _, item := range output.Items {
				if item.RecordingID != current {
					current = item.RecordingID
					fmt.Println()
					fmt.Printf("%s (%s, %s)\n", item.Title, item.ShortID, time.Unix(item.CreatedAt, 0).Format("2006-01-02"))
				}
				fmt.Printf("  [%s] %s\n", item.Timestamp, item.Text)
			}
			return nil
		},
	}
}

// exportCmd creates the export command.
func exportCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "Export a transcript (prints to stdout unless --output is set)",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: ops.FormatText, Usage: "Format: " + strings.Join(ops.Formats, "|")},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Output file or directory"},
		},
		Action: func(c *cli.Context) error {
			id, err := requireArg(c, "recording ID")
			if err != nil {
				return outputError(err)
			}

			output, err := ops.Export(env.db, ops.ExportInput{
				ID:     id,
				Format: c.String("format"),
				Path:   c.String("output"),
			})
			if err != nil {
				return outputError(err)
			}

			if output.Path == "" {
				fmt.Print(output.Content)
				if !strings.HasSuffix(output.Content, "\n") {
					fmt.Println()
				}
				return nil
			}
			fmt.Printf("Exported to: %s (%s)\n", output.Path, humanize.IBytes(uint64(output.Bytes)))
			return nil
		},
	}
}

// summarizeCmd creates the summarize command.
func summarizeCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "summarize",
		Usage:     "Generate meeting notes with the configured LLM",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			id, err := requireArg(c, "recording ID")
			if err != nil {
				return outputError(err)
			}

			client, err := newSummarizer(c.Context, env.cfg)
			if err != nil {
				return outputError(err)
			}

			output, err := ops.Summarize(c.Context, env.db, client, id)
			if err != nil {
				return outputError(err)
			}

			fmt.Printf("Summary saved for %s (%s):\n\n", recording.ShortID(output.ID), output.Provider)
			fmt.Println(strings.TrimSpace(output.Notes))
			return nil
		},
	}
}

// newSummarizer is replaced in tests.
var newSummarizer = summarize.New

// deleteCmd creates the delete command.
func deleteCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete a recording, its transcript and its audio file",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			id, err := requireArg(c, "recording ID")
			if err != nil {
				return outputError(err)
			}

			output, err := ops.Delete(env.db, id)
			if err != nil {
				return outputError(err)
			}

			fmt.Printf("Deleted %s\n", recording.ShortID(output.ID))
			if output.AudioRemoved {
				fmt.Println("Audio file removed")
			}
			return nil
		},
	}
}

// statsCmd creates the stats command.
func statsCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show library statistics",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "Print JSON"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Stats(env.db, env.audioDir())
			if err != nil {
				return outputError(err)
			}

			if c.Bool("json") {
				return outputJSON(output)
			}

			fmt.Printf("Recordings: %s\n", humanize.Comma(int64(output.Recordings)))
			for _, state := range []recording.State{
				recording.StateCompleted,
				recording.StatePending,
				recording.StateTranscribing,
				recording.StateRecording,
				recording.StateFailed,
			} {
				if n := output.ByState[string(state)]; n > 0 {
					fmt.Printf("  %-13s %d\n", state, n)
				}
			}
			fmt.Printf("Recorded time: %s\n", recording.FormatDuration(output.TotalDurationSecs))
			fmt.Printf("Transcript segments: %s\n", humanize.Comma(int64(output.Segments)))
			fmt.Printf("Audio: %d files, %s\n", output.AudioFiles, humanize.IBytes(uint64(max(output.AudioBytes, 0))))
			return nil
		},
	}
}

// configCmd creates the config command group.
func configCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Show or initialize configuration",
		Subcommands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Print the effective configuration (API key redacted)",
				Action: func(c *cli.Context) error {
					return outputJSON(env.cfg.Redacted())
				},
			},
			{
				Name:  "path",
				Usage: "Print the config file location",
				Action: func(c *cli.Context) error {
					fmt.Println(config.Path(env.baseDir))
					return nil
				},
			},
			{
				Name:  "init",
				Usage: "Write a default config file",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "force", Usage: "Overwrite an existing config file"},
				},
				Action: func(c *cli.Context) error {
					path := config.Path(env.baseDir)
					if _, err := os.Stat(path); err == nil && !c.Bool("force") {
						return outputError(errors.NewInvalidRequest(fmt.Sprintf("config already exists at %s (use --force to overwrite)", path)))
					}
					if err := config.Save(env.baseDir, config.DefaultConfig()); err != nil {
						return outputError(err)
					}
					fmt.Printf("Configuration initialized at: %s\n", path)
					return nil
				},
			},
		},
	}
}

// doctorCmd creates the doctor command.
func doctorCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "doctor",
		Usage: "Check external tools, the whisper model and capture targets",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "Print JSON"},
		},
		Action: func(c *cli.Context) error {
			report := ops.Doctor(c.Context, env.cfg, newResolver())

			if c.Bool("json") {
				return outputJSON(report)
			}
			printDoctor(env.cfg, report)
			return nil
		},
	}
}

// newResolver is replaced in tests.
var newResolver = func() *capture.Resolver {
	return capture.NewResolver(nil, nil)
}

func printDoctor(cfg *config.Config, report *ops.DoctorOutput) {
	fmt.Println("minutes doctor")
	fmt.Printf("backend: %s\n", cfg.Audio.Backend)
	fmt.Printf("capture: system=%t microphone=%t\n",
		config.Enabled(cfg.Audio.CaptureSystem, true),
		config.Enabled(cfg.Audio.CaptureMicrophone, true))
	fmt.Println()

	for _, check := range report.Checks {
		status := "ok"
		switch {
		case !check.OK && check.Required:
			status = "missing"
		case !check.OK:
			status = "warn"
		}
		fmt.Printf("%-12s %-8s %s\n", check.Name, status, check.Detail)
	}

	if len(report.Targets) > 0 {
		fmt.Println()
		fmt.Println("PipeWire target resolution:")
		for _, target := range report.Targets {
			fmt.Printf("  - %s target: %s (%s)\n", target.Kind, target.Target, target.Method)
		}
	}

	if len(report.Warnings) > 0 {
		fmt.Println()
		for _, w := range report.Warnings {
			fmt.Printf("warning: %s\n", w)
		}
	}
}

// mcpCmd creates the mcp command.
func mcpCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Run the MCP server on stdio",
		Action: func(c *cli.Context) error {
			return runMCP(env)
		},
	}
}

// Helper functions

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	var mErr *errors.MinutesError
	if stderrors.As(err, &mErr) {
		msg := fmt.Sprintf("[%s] %s", mErr.Code, mErr.Message)
		if mErr.Code == errors.ErrDaemonNotRunning {
			msg += " (start it with: minutes daemon start)"
		}
		return cli.Exit(msg, 1)
	}
	if stderrors.Is(err, context.Canceled) {
		return cli.Exit("interrupted", 130)
	}
	return cli.Exit(err.Error(), 1)
}

// requireArg returns the first positional argument.
func requireArg(c *cli.Context, what string) (string, error) {
	arg := strings.TrimSpace(c.Args().First())
	if arg == "" {
		return "", errors.NewInvalidRequest(what + " is required")
	}
	return arg, nil
}

// truncate shortens s to n runes, marking the cut with "...".
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
