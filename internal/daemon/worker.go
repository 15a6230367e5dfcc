package daemon

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hpungsan/minutes/internal/db"
	"github.com/hpungsan/minutes/internal/errors"
	"github.com/hpungsan/minutes/internal/ipc"
	"github.com/hpungsan/minutes/internal/recording"
)

// Transcriber turns an audio file into transcript segments.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string, progress chan<- float32) ([]recording.Segment, error)
}

// Compressor replaces a WAV file with a compressed copy and returns its path.
type Compressor interface {
	EncodeAndCleanup(wavPath string) (string, error)
}

// DefaultPollInterval is how often the worker looks for pending recordings.
const DefaultPollInterval = 5 * time.Second

// Worker transcribes pending recordings while the daemon is idle.
type Worker struct {
	h           *Handler
	db          *sql.DB
	transcriber Transcriber
	compressor  Compressor
	interval    time.Duration
	logger      *zap.SugaredLogger
}

// NewWorker creates a Worker. compressor may be nil to keep WAV files.
func NewWorker(h *Handler, database *sql.DB, transcriber Transcriber, compressor Compressor, interval time.Duration, logger *zap.SugaredLogger) *Worker {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Worker{
		h:           h,
		db:          database,
		transcriber: transcriber,
		compressor:  compressor,
		interval:    interval,
		logger:      logger,
	}
}

// Run polls until ctx is cancelled or the handler exits.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.h.Done():
			return nil
		case <-ticker.C:
			w.Poll(ctx)
		}
	}
}

// Poll processes every pending recording, oldest first. It stops early when
// the daemon leaves the idle state.
func (w *Worker) Poll(ctx context.Context) {
	if w.h.Snapshot().Kind != ipc.StateIdle {
		return
	}

	pending, err := db.ListPending(w.db)
	if err != nil {
		w.logger.Errorw("failed to list pending recordings", "error", err)
		return
	}

	for _, rec := range pending {
		if ctx.Err() != nil {
			return
		}
		if !w.process(ctx, rec) {
			return
		}
	}
}

// process transcribes one recording. It returns false if the daemon refused
// to enter the transcribing state.
func (w *Worker) process(ctx context.Context, rec *recording.Recording) bool {
	if err := w.h.BeginTranscription(ctx, rec.ID); err != nil {
		w.logger.Debugw("transcription deferred", "id", rec.ID, "reason", err)
		return false
	}
	defer w.h.EndTranscription(context.WithoutCancel(ctx), rec.ID)

	if err := w.transcribe(ctx, rec); err != nil {
		if ctx.Err() != nil {
			// Shutdown mid-run: leave it for the next start.
			_ = db.UpdateState(w.db, rec.ID, recording.StatePending)
			return false
		}
		w.logger.Errorw("transcription failed", "id", rec.ID, "error", err)
		if uerr := db.UpdateState(w.db, rec.ID, recording.StateFailed); uerr != nil {
			w.logger.Errorw("failed to mark recording failed", "id", rec.ID, "error", uerr)
		}
	}
	return true
}

func (w *Worker) transcribe(ctx context.Context, rec *recording.Recording) error {
	if err := db.UpdateState(w.db, rec.ID, recording.StateTranscribing); err != nil {
		return err
	}
	if rec.AudioPath == nil || *rec.AudioPath == "" {
		return errors.NewTranscription("recording has no audio file", nil)
	}
	path := *rec.AudioPath

	w.logger.Infow("transcription started", "id", rec.ID, "path", path)
	started := time.Now()

	progress := make(chan float32, 8)
	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		for v := range progress {
			w.h.ReportProgress(ctx, rec.ID, v)
		}
	}()

	segments, err := w.transcriber.Transcribe(ctx, path, progress)
	close(progress)
	<-forwarded
	if err != nil {
		return err
	}

	for i := range segments {
		segments[i].RecordingID = rec.ID
	}
	if err := db.InsertSegments(w.db, rec.ID, segments); err != nil {
		return err
	}
	if err := db.UpdateState(w.db, rec.ID, recording.StateCompleted); err != nil {
		return err
	}
	w.logger.Infow("transcription completed", "id", rec.ID, "segments", len(segments), "elapsed", time.Since(started).Round(time.Millisecond))

	w.compress(rec.ID, path)
	return nil
}

// compress swaps the stored WAV for an Ogg file. Failures keep the WAV.
func (w *Worker) compress(id, path string) {
	if w.compressor == nil || !strings.EqualFold(filepath.Ext(path), ".wav") {
		return
	}
	oggPath, err := w.compressor.EncodeAndCleanup(path)
	if err != nil {
		w.logger.Warnw("compression failed, keeping wav", "id", id, "error", err)
		return
	}
	if err := db.UpdateAudioPath(w.db, id, oggPath); err != nil {
		w.logger.Errorw("failed to store compressed path", "id", id, "error", err)
	}
}
