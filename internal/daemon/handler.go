package daemon

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hpungsan/minutes/internal/capture"
	"github.com/hpungsan/minutes/internal/db"
	"github.com/hpungsan/minutes/internal/errors"
	"github.com/hpungsan/minutes/internal/ipc"
	"github.com/hpungsan/minutes/internal/recording"
)

// BackendFactory builds a capture backend for a new recording.
type BackendFactory func() (capture.Backend, error)

const (
	commandQueueSize = 32
	levelInterval    = 250 * time.Millisecond
)

type commandKind int

const (
	cmdRequest commandKind = iota
	cmdBeginTranscription
	cmdEndTranscription
)

type command struct {
	kind        commandKind
	req         ipc.Request
	recordingID string
	reply       chan ipc.Response
}

// Progress is a transcription progress event.
type Progress struct {
	RecordingID string
	Value       float32
}

// Handler is the single consumer of daemon commands. All state changes and
// all storage writes for a recording session happen on the goroutine
// running Run, in the order commands arrive.
type Handler struct {
	db         *sql.DB
	audioDir   string
	newBackend BackendFactory
	logger     *zap.SugaredLogger

	state    stateStore
	cmds     chan command
	progress chan Progress
	done     chan struct{}

	// Owned by Run.
	backend capture.Backend
}

// NewHandler creates a Handler. Call Run to start processing commands.
func NewHandler(database *sql.DB, audioDir string, newBackend BackendFactory, logger *zap.SugaredLogger) *Handler {
	h := &Handler{
		db:         database,
		audioDir:   audioDir,
		newBackend: newBackend,
		logger:     logger,
		cmds:       make(chan command, commandQueueSize),
		progress:   make(chan Progress, commandQueueSize),
		done:       make(chan struct{}),
	}
	h.state.set(idle())
	return h
}

// Snapshot returns the current state without going through the queue.
func (h *Handler) Snapshot() State {
	return h.state.get()
}

// Done is closed once Run has returned.
func (h *Handler) Done() <-chan struct{} {
	return h.done
}

// Handle implements ipc.Handler. Status and ping are answered from the
// snapshot; everything else is queued for Run.
func (h *Handler) Handle(ctx context.Context, req ipc.Request) ipc.Response {
	switch req.Type {
	case ipc.ReqPing:
		return ipc.Pong()
	case ipc.ReqGetStatus:
		return ipc.StatusResponse(h.Snapshot().Status())
	}
	return h.submit(ctx, command{kind: cmdRequest, req: req})
}

func (h *Handler) submit(ctx context.Context, cmd command) ipc.Response {
	cmd.reply = make(chan ipc.Response, 1)
	select {
	case h.cmds <- cmd:
	case <-ctx.Done():
		return ipc.ErrorResponse(errors.NewInternal(ctx.Err()))
	case <-h.done:
		return ipc.ErrorResponse(errors.NewInvalidRequest("daemon is shutting down"))
	}

	select {
	case resp := <-cmd.reply:
		return resp
	case <-ctx.Done():
		return ipc.ErrorResponse(errors.NewInternal(ctx.Err()))
	case <-h.done:
		// Run may have answered just before exiting.
		select {
		case resp := <-cmd.reply:
			return resp
		default:
			return ipc.ErrorResponse(errors.NewInvalidRequest("daemon is shutting down"))
		}
	}
}

// Run processes commands until a shutdown request or ctx cancellation.
// A recording still running at that point is stopped and saved as pending.
func (h *Handler) Run(ctx context.Context) error {
	defer close(h.done)
	defer h.abandonRecording()

	ticker := time.NewTicker(levelInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case cmd := <-h.cmds:
			resp := h.dispatch(ctx, cmd)
			cmd.reply <- resp
			if cmd.kind == cmdRequest && cmd.req.Type == ipc.ReqShutdown {
				h.logger.Info("shutdown requested")
				return nil
			}

		case p := <-h.progress:
			h.state.update(func(s *State) {
				if s.Kind == ipc.StateTranscribing && s.TranscribingID == p.RecordingID {
					s.Progress = p.Value
				}
			})

		case <-ticker.C:
			h.refreshLevel()
		}
	}
}

func (h *Handler) dispatch(ctx context.Context, cmd command) ipc.Response {
	switch cmd.kind {
	case cmdBeginTranscription:
		return h.beginTranscription(cmd.recordingID)
	case cmdEndTranscription:
		return h.endTranscription(cmd.recordingID)
	}

	switch cmd.req.Type {
	case ipc.ReqStartRecording:
		return h.startRecording(ctx, cmd.req.Title)
	case ipc.ReqStopRecording:
		return h.stopRecording()
	case ipc.ReqTranscribe:
		return h.requeue(cmd.req.ID)
	case ipc.ReqShutdown:
		return ipc.OK()
	case ipc.ReqPing:
		return ipc.Pong()
	case ipc.ReqGetStatus:
		return ipc.StatusResponse(h.Snapshot().Status())
	default:
		return ipc.ErrorResponse(errors.NewIPC("unknown request type: "+string(cmd.req.Type), nil))
	}
}

func (h *Handler) startRecording(ctx context.Context, title string) ipc.Response {
	if st := h.state.get(); st.Kind != ipc.StateIdle {
		return ipc.ErrorResponse(errors.NewAlreadyRecording(string(st.Kind)))
	}

	title = strings.TrimSpace(title)
	if title == "" {
		title = recording.DefaultTitle(time.Now())
	}
	rec := recording.New(title)
	path := filepath.Join(h.audioDir, rec.ID+".wav")

	backend, err := h.newBackend()
	if err != nil {
		return ipc.ErrorResponse(err)
	}
	if err := backend.Start(ctx, path); err != nil {
		_ = os.Remove(path)
		if !errors.Is(err, errors.ErrAudio) {
			err = errors.NewAudio("failed to start capture", err)
		}
		return ipc.ErrorResponse(err)
	}
	startedAt := time.Now()

	rec.AudioPath = &path
	if err := db.InsertRecording(h.db, rec); err != nil {
		if stopErr := backend.Stop(); stopErr != nil {
			h.logger.Warnw("stop capture after failed insert", "error", stopErr)
		}
		_ = os.Remove(path)
		return ipc.ErrorResponse(err)
	}

	h.backend = backend
	h.state.set(State{
		Kind:      ipc.StateRecording,
		Recording: rec,
		AudioPath: path,
		StartedAt: startedAt,
		Backend:   backend.Name(),
	})
	h.logger.Infow("recording started", "id", rec.ID, "title", rec.Title, "backend", backend.Name(), "path", path)
	return ipc.Started(rec.ID)
}

func (h *Handler) stopRecording() ipc.Response {
	st := h.state.get()
	if st.Kind != ipc.StateRecording {
		return ipc.ErrorResponse(errors.NewNotRecording())
	}

	rec := h.finishRecording(st)
	return ipc.Stopped(rec.ID, *rec.DurationSecs)
}

// finishRecording stops capture and stores the session as pending. Capture
// and storage failures are logged; the audio file may still be usable.
func (h *Handler) finishRecording(st State) *recording.Recording {
	duration := int64(time.Since(st.StartedAt).Seconds())

	if h.backend != nil {
		if err := h.backend.Stop(); err != nil {
			h.logger.Warnw("capture stop reported an error", "id", st.Recording.ID, "error", err)
		}
		h.backend = nil
	}

	rec := *st.Recording
	path := st.AudioPath
	rec.AudioPath = &path
	rec.DurationSecs = &duration
	rec.State = recording.StatePending
	if err := db.UpdateRecording(h.db, &rec); err != nil {
		h.logger.Errorw("failed to save stopped recording", "id", rec.ID, "error", err)
	}

	h.state.set(idle())
	h.logger.Infow("recording stopped", "id", rec.ID, "duration_secs", duration)
	return &rec
}

func (h *Handler) abandonRecording() {
	if st := h.state.get(); st.Kind == ipc.StateRecording {
		h.logger.Warnw("daemon exiting while recording, saving session", "id", st.Recording.ID)
		h.finishRecording(st)
	}
}

func (h *Handler) requeue(id string) ipc.Response {
	rec, err := db.FindRecording(h.db, id)
	if err != nil {
		return ipc.ErrorResponse(err)
	}

	st := h.state.get()
	if st.Kind == ipc.StateRecording && st.Recording.ID == rec.ID {
		return ipc.ErrorResponse(errors.NewInvalidRequest("recording is still in progress"))
	}
	if st.Kind == ipc.StateTranscribing && st.TranscribingID == rec.ID {
		return ipc.ErrorResponse(errors.NewInvalidRequest("recording is already being transcribed"))
	}

	if err := db.UpdateState(h.db, rec.ID, recording.StatePending); err != nil {
		return ipc.ErrorResponse(err)
	}
	h.logger.Infow("recording queued for transcription", "id", rec.ID)
	return ipc.OK()
}

func (h *Handler) beginTranscription(id string) ipc.Response {
	if st := h.state.get(); st.Kind != ipc.StateIdle {
		return ipc.ErrorResponse(errors.NewAlreadyRecording(string(st.Kind)))
	}
	h.state.set(State{Kind: ipc.StateTranscribing, TranscribingID: id})
	return ipc.OK()
}

func (h *Handler) endTranscription(id string) ipc.Response {
	if st := h.state.get(); st.Kind == ipc.StateTranscribing && st.TranscribingID == id {
		h.state.set(idle())
	}
	return ipc.OK()
}

func (h *Handler) refreshLevel() {
	if h.backend == nil {
		return
	}
	lv, ok := h.backend.(capture.Leveler)
	if !ok {
		return
	}
	level := lv.Level()
	h.state.update(func(s *State) {
		if s.Kind == ipc.StateRecording {
			s.AudioLevel = level
		}
	})
}

// BeginTranscription asks the command loop to enter the transcribing state.
// It fails unless the daemon is idle.
func (h *Handler) BeginTranscription(ctx context.Context, id string) error {
	resp := h.submit(ctx, command{kind: cmdBeginTranscription, recordingID: id})
	return resp.Err()
}

// EndTranscription returns the daemon to idle if it is transcribing id.
func (h *Handler) EndTranscription(ctx context.Context, id string) {
	h.submit(ctx, command{kind: cmdEndTranscription, recordingID: id})
}

// ReportProgress forwards a progress value to the command loop.
func (h *Handler) ReportProgress(ctx context.Context, id string, value float32) {
	select {
	case h.progress <- Progress{RecordingID: id, Value: value}:
	case <-ctx.Done():
	case <-h.done:
	}
}
