package capture

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hpungsan/minutes/internal/audio"
	"github.com/hpungsan/minutes/internal/config"
	"github.com/hpungsan/minutes/internal/errors"
)

// fakeRecorder copies a fixture WAV to its output path (the last argument)
// and then idles until interrupted. Output paths ending in .mic.wav take
// MIC_FIXTURE, all others SYS_FIXTURE. FAIL_MIC=1 makes microphone
// recorders exit immediately.
const fakeRecorder = `#!/bin/sh
for a in "$@"; do out="$a"; done
echo "$@" >> "$ARGS_LOG"
case "$out" in
  *.mic.wav)
    [ "$FAIL_MIC" = "1" ] && { echo "no such target" >&2; exit 1; }
    src="$MIC_FIXTURE" ;;
  *) src="$SYS_FIXTURE" ;;
esac
[ -n "$src" ] && cp "$src" "$out"
trap 'exit 0' INT TERM
while :; do sleep 0.05; done
`

type recorderEnv struct {
	dir     string
	script  string
	argsLog string
}

func setupRecorder(t *testing.T, sys, mic []int16) *recorderEnv {
	t.Helper()
	dir := t.TempDir()
	env := &recorderEnv{
		dir:     dir,
		script:  filepath.Join(dir, "fake-recorder"),
		argsLog: filepath.Join(dir, "args.log"),
	}
	require.NoError(t, os.WriteFile(env.script, []byte(fakeRecorder), 0755))
	t.Setenv("ARGS_LOG", env.argsLog)
	t.Setenv("FAIL_MIC", "")

	t.Setenv("SYS_FIXTURE", "")
	if sys != nil {
		p := filepath.Join(dir, "sys-fixture.wav")
		require.NoError(t, audio.WriteWAV16(p, sys, 16000, 1))
		t.Setenv("SYS_FIXTURE", p)
	}
	t.Setenv("MIC_FIXTURE", "")
	if mic != nil {
		p := filepath.Join(dir, "mic-fixture.wav")
		require.NoError(t, audio.WriteWAV16(p, mic, 16000, 1))
		t.Setenv("MIC_FIXTURE", p)
	}
	return env
}

func (e *recorderEnv) args(t *testing.T) []string {
	t.Helper()
	data, err := os.ReadFile(e.argsLog)
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func newTestPipeWire(env *recorderEnv, system, mic bool) *PipeWire {
	return NewPipeWire(Options{
		PipeWireCommand:   env.script,
		SampleRate:        16000,
		Channels:          1,
		CaptureSystem:     system,
		CaptureMicrophone: mic,
		MicBoost:          1.0,
	}, NewResolver(&fakeRunner{outputs: map[string]string{"status -n": statusWithDefaults}}, nil), zap.NewNop().Sugar())
}

func TestPipeWire_DualCaptureMixesAndRemovesMicTrack(t *testing.T) {
	env := setupRecorder(t, []int16{1000, 1000, 1000, 1000}, []int16{2000, 2000})
	out := filepath.Join(env.dir, "rec.wav")
	pw := newTestPipeWire(env, true, true)

	require.NoError(t, pw.Start(context.Background(), out))
	assert.True(t, pw.IsRecording())
	assert.Len(t, pw.Targets(), 2)

	require.NoError(t, pw.Stop())
	assert.False(t, pw.IsRecording())

	pcm, err := audio.ReadWAV16(out)
	require.NoError(t, err)
	require.Len(t, pcm.Samples, 4)
	assert.InDelta(t, 3000, int(pcm.Samples[0]), 2)
	assert.InDelta(t, 1000, int(pcm.Samples[3]), 2)

	_, err = os.Stat(MicPath(out))
	assert.True(t, os.IsNotExist(err), "mic track should be removed after mixing")

	args := env.args(t)
	require.Len(t, args, 2)
	assert.Equal(t, "--target 61 --rate 16000 --channels 1 --format s16 "+out, args[0])
	assert.Equal(t, "--target 62 --rate 16000 --channels 1 --format s16 "+MicPath(out), args[1])
}

func TestPipeWire_EmptyMicTrackKeepsSystemAudio(t *testing.T) {
	env := setupRecorder(t, []int16{1000, -1000, 500, -500}, []int16{})
	out := filepath.Join(env.dir, "rec.wav")
	pw := newTestPipeWire(env, true, true)

	require.NoError(t, pw.Start(context.Background(), out))
	require.NoError(t, pw.Stop())

	pcm, err := audio.ReadWAV16(out)
	require.NoError(t, err)
	assert.Equal(t, []int16{1000, -1000, 500, -500}, pcm.Samples)
	_, err = os.Stat(MicPath(out))
	assert.True(t, os.IsNotExist(err))
}

func TestPipeWire_MicFailureDegradesToSystemOnly(t *testing.T) {
	env := setupRecorder(t, []int16{1000, -1000}, []int16{5000})
	t.Setenv("FAIL_MIC", "1")
	out := filepath.Join(env.dir, "rec.wav")
	pw := newTestPipeWire(env, true, true)

	require.NoError(t, pw.Start(context.Background(), out))
	assert.True(t, pw.IsRecording())
	require.NoError(t, pw.Stop())

	pcm, err := audio.ReadWAV16(out)
	require.NoError(t, err)
	assert.Equal(t, []int16{1000, -1000}, pcm.Samples)
}

func TestPipeWire_MicrophoneOnlyRecordsToOutput(t *testing.T) {
	env := setupRecorder(t, []int16{42, 42}, nil)
	out := filepath.Join(env.dir, "rec.wav")
	pw := newTestPipeWire(env, false, true)

	require.NoError(t, pw.Start(context.Background(), out))
	require.NoError(t, pw.Stop())

	args := env.args(t)
	require.Len(t, args, 1)
	assert.True(t, strings.HasSuffix(args[0], " "+out))
	assert.Contains(t, args[0], "--target 62")
}

func TestPipeWire_StartErrors(t *testing.T) {
	env := setupRecorder(t, []int16{1}, nil)
	out := filepath.Join(env.dir, "rec.wav")

	none := newTestPipeWire(env, false, false)
	err := none.Start(context.Background(), out)
	assert.True(t, errors.Is(err, errors.ErrAudio), "got %v", err)

	missing := newTestPipeWire(env, true, false)
	missing.opts.PipeWireCommand = filepath.Join(env.dir, "does-not-exist")
	err = missing.Start(context.Background(), out)
	assert.True(t, errors.Is(err, errors.ErrAudio), "got %v", err)
	assert.False(t, missing.IsRecording())

	pw := newTestPipeWire(env, true, false)
	require.NoError(t, pw.Start(context.Background(), out))
	defer pw.Stop()
	err = pw.Start(context.Background(), out)
	assert.True(t, errors.Is(err, errors.ErrAudio), "got %v", err)
}

func TestPipeWire_StopWhenIdle(t *testing.T) {
	env := setupRecorder(t, nil, nil)
	err := newTestPipeWire(env, true, true).Stop()
	assert.True(t, errors.Is(err, errors.ErrNotRecording), "got %v", err)
}

func TestPipeWire_Level(t *testing.T) {
	loud := make([]int16, 3200)
	for i := range loud {
		loud[i] = 16384
	}
	env := setupRecorder(t, make([]int16, 3200), loud)
	out := filepath.Join(env.dir, "rec.wav")
	pw := newTestPipeWire(env, true, true)

	assert.Equal(t, float32(0), pw.Level())
	require.NoError(t, pw.Start(context.Background(), out))
	defer pw.Stop()
	assert.InDelta(t, 0.5, pw.Level(), 1e-3)
}

func TestFallback_RecordsWithArecord(t *testing.T) {
	env := setupRecorder(t, []int16{7, 8, 9}, nil)
	out := filepath.Join(env.dir, "rec.wav")
	fb := NewFallback(Options{ArecordCommand: env.script, SampleRate: 16000, Channels: 1}, zap.NewNop().Sugar())

	require.NoError(t, fb.Start(context.Background(), out))
	assert.True(t, fb.IsRecording())
	assert.Equal(t, "fallback", fb.Name())
	require.NoError(t, fb.Stop())
	assert.False(t, fb.IsRecording())

	args := env.args(t)
	assert.Equal(t, "-q -f S16_LE -r 16000 -c 1 -t wav "+out, args[0])

	pcm, err := audio.ReadWAV16(out)
	require.NoError(t, err)
	assert.Equal(t, []int16{7, 8, 9}, pcm.Samples)

	err = fb.Stop()
	assert.True(t, errors.Is(err, errors.ErrNotRecording), "got %v", err)
}

func TestRecorderProcess_EarlyExit(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "dies")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho bad device >&2\nexit 3\n"), 0755))

	_, err := startRecorder("microphone", filepath.Join(dir, "x.wav"), script, nil, zap.NewNop().Sugar())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad device")
}

func TestRecorderProcess_KillsAfterTimeout(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "stubborn")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\ntrap '' INT\nwhile :; do sleep 0.05; done\n"), 0755))

	old := stopTimeout
	stopTimeout = 200 * time.Millisecond
	defer func() { stopTimeout = old }()

	proc, err := startRecorder("system", filepath.Join(dir, "x.wav"), script, nil, zap.NewNop().Sugar())
	require.NoError(t, err)
	assert.True(t, proc.Running())

	start := time.Now()
	assert.NoError(t, proc.Stop(), "a killed recorder is logged, not an error")
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.False(t, proc.Running())
}

func TestNew_Selection(t *testing.T) {
	old := lookPath
	defer func() { lookPath = old }()

	have := map[string]bool{}
	lookPath = func(file string) (string, error) {
		if have[file] {
			return "/usr/bin/" + file, nil
		}
		return "", stderrors.New("not found")
	}
	logger := zap.NewNop().Sugar()

	have["pw-record"], have["arecord"] = true, true
	b, err := New(Options{}, nil, logger)
	require.NoError(t, err)
	assert.Equal(t, "pipewire", b.Name())

	have["pw-record"] = false
	b, err = New(Options{Backend: config.BackendAuto}, nil, logger)
	require.NoError(t, err)
	assert.Equal(t, "fallback", b.Name())

	_, err = New(Options{Backend: config.BackendPipeWire}, nil, logger)
	assert.True(t, errors.Is(err, errors.ErrAudio), "got %v", err)

	have["arecord"] = false
	_, err = New(Options{}, nil, logger)
	assert.True(t, errors.Is(err, errors.ErrAudio), "got %v", err)

	_, err = New(Options{Backend: config.BackendFallback}, nil, logger)
	assert.True(t, errors.Is(err, errors.ErrAudio), "got %v", err)
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.DefaultConfig().Audio
	off := false
	cfg.CaptureMicrophone = &off

	opts := OptionsFromConfig(cfg)
	assert.True(t, opts.CaptureSystem)
	assert.False(t, opts.CaptureMicrophone)
	assert.Equal(t, 16000, opts.SampleRate)
	assert.InDelta(t, 1.2, opts.MicBoost, 1e-6)
}

func TestMicPath(t *testing.T) {
	assert.Equal(t, "/a/abc.mic.wav", MicPath("/a/abc.wav"))
}
