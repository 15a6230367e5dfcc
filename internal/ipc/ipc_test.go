package ipc

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hpungsan/minutes/internal/errors"
)

// socketPath returns a short path; t.TempDir can exceed the sun_path limit.
func socketPath(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "mipc")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "m.sock")
}

func echoHandler(calls *atomic.Int32) Handler {
	return HandlerFunc(func(_ context.Context, req Request) Response {
		calls.Add(1)
		switch req.Type {
		case ReqPing:
			return Pong()
		case ReqStartRecording:
			if req.Title == "busy" {
				return ErrorResponse(errors.NewAlreadyRecording("recording"))
			}
			return Started("abc123")
		case ReqGetStatus:
			return StatusResponse(Status{State: StateIdle})
		default:
			return OK()
		}
	})
}

func startServer(t *testing.T, h Handler) (*Server, context.CancelFunc) {
	t.Helper()
	srv, err := Listen(socketPath(t), h, zap.NewNop().Sugar())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("server did not stop")
		}
	})
	return srv, cancel
}

func dial(t *testing.T, path string) net.Conn {
	t.Helper()
	conn, err := net.Dial("unix", path)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	_ = conn.SetDeadline(time.Now().Add(2 * time.Second))
	return conn
}

func roundTrip(t *testing.T, conn net.Conn, v any) Response {
	t.Helper()
	require.NoError(t, WriteFrame(conn, v))
	body, err := ReadFrame(conn)
	require.NoError(t, err)
	var resp Response
	require.NoError(t, json.Unmarshal(body, &resp))
	return resp
}

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, Request{Type: ReqStartRecording, Title: "Standup"}))

	raw := buf.Bytes()
	n := binary.LittleEndian.Uint32(raw[:4])
	assert.Equal(t, int(n), len(raw)-4)
	assert.JSONEq(t, `{"type":"start_recording","title":"Standup"}`, string(raw[4:]))

	body, err := ReadFrame(&buf)
	require.NoError(t, err)
	var req Request
	require.NoError(t, json.Unmarshal(body, &req))
	assert.Equal(t, "Standup", req.Title)

	_, err = ReadFrame(&buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadFrame_Oversized(t *testing.T) {
	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], MaxFrameSize+1)
	r := &countingReader{r: bytes.NewReader(append(hdr[:], make([]byte, 64)...))}

	_, err := ReadFrame(r)
	assert.True(t, errors.Is(err, errors.ErrIPC), "got %v", err)
	assert.Equal(t, 4, r.n, "body must not be read")
}

func TestReadFrame_Truncated(t *testing.T) {
	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], 10)
	_, err := ReadFrame(bytes.NewReader(append(hdr[:], 'x')))
	assert.True(t, errors.Is(err, errors.ErrIPC), "got %v", err)
}

func TestWriteFrame_Oversized(t *testing.T) {
	big := Request{Type: ReqStartRecording, Title: strings.Repeat("a", MaxFrameSize)}
	err := WriteFrame(io.Discard, big)
	assert.True(t, errors.Is(err, errors.ErrIPC), "got %v", err)
}

type countingReader struct {
	r io.Reader
	n int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += n
	return n, err
}

func TestRequestValidate(t *testing.T) {
	assert.NoError(t, Request{Type: ReqPing}.Validate())
	assert.NoError(t, Request{Type: ReqTranscribe, ID: "ab"}.Validate())
	assert.True(t, errors.Is(Request{Type: ReqTranscribe}.Validate(), errors.ErrInvalidRequest))
	assert.True(t, errors.Is(Request{Type: "dance"}.Validate(), errors.ErrIPC))
	assert.True(t, errors.Is(Request{}.Validate(), errors.ErrIPC))
}

func TestResponseJSONShape(t *testing.T) {
	data, err := json.Marshal(Stopped("abc", 0))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"recording_stopped","id":"abc","duration_secs":0}`, string(data))

	data, err = json.Marshal(ErrorResponse(errors.NewNotRecording()))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"error","code":"NOT_RECORDING","message":"not recording"}`, string(data))
}

func TestResponseErr(t *testing.T) {
	assert.NoError(t, Pong().Err())
	assert.NoError(t, Started("abc").Err())

	err := ErrorResponse(errors.NewAlreadyRecording("recording")).Err()
	assert.True(t, errors.Is(err, errors.ErrAlreadyRecording), "got %v", err)

	resp := &Response{Type: RespError, Code: "NOT_RECORDING", Message: "not recording"}
	assert.True(t, errors.Is(resp.Err(), errors.ErrNotRecording))
}

func TestServer_MultipleRequestsPerConnection(t *testing.T) {
	var calls atomic.Int32
	srv, _ := startServer(t, echoHandler(&calls))
	conn := dial(t, srv.Path())

	assert.Equal(t, RespPong, roundTrip(t, conn, Request{Type: ReqPing}).Type)
	resp := roundTrip(t, conn, Request{Type: ReqStartRecording, Title: "Standup"})
	assert.Equal(t, RespRecordingStarted, resp.Type)
	assert.Equal(t, "abc123", resp.ID)
	resp = roundTrip(t, conn, Request{Type: ReqGetStatus})
	require.NotNil(t, resp.Status)
	assert.Equal(t, StateIdle, resp.Status.State)
	assert.Equal(t, int32(3), calls.Load())
}

func TestServer_MalformedJSONKeepsConnection(t *testing.T) {
	var calls atomic.Int32
	srv, _ := startServer(t, echoHandler(&calls))
	conn := dial(t, srv.Path())

	body := []byte("{not json")
	frame := make([]byte, 4+len(body))
	binary.LittleEndian.PutUint32(frame, uint32(len(body)))
	copy(frame[4:], body)
	_, err := conn.Write(frame)
	require.NoError(t, err)

	raw, err := ReadFrame(conn)
	require.NoError(t, err)
	var resp Response
	require.NoError(t, json.Unmarshal(raw, &resp))
	assert.Equal(t, RespError, resp.Type)
	assert.Equal(t, "IPC", resp.Code)

	assert.Equal(t, RespPong, roundTrip(t, conn, Request{Type: ReqPing}).Type)
	assert.Equal(t, int32(1), calls.Load())
}

func TestServer_UnknownTypeIsError(t *testing.T) {
	var calls atomic.Int32
	srv, _ := startServer(t, echoHandler(&calls))
	conn := dial(t, srv.Path())

	resp := roundTrip(t, conn, map[string]string{"type": "explode"})
	assert.Equal(t, RespError, resp.Type)
	assert.Equal(t, int32(0), calls.Load())
}

func TestServer_OversizedFrameDropsConnection(t *testing.T) {
	var calls atomic.Int32
	srv, _ := startServer(t, echoHandler(&calls))
	conn := dial(t, srv.Path())

	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], 2*MaxFrameSize)
	_, err := conn.Write(hdr[:])
	require.NoError(t, err)

	_, err = ReadFrame(conn)
	assert.Error(t, err, "server should close the connection")

	// Other clients are unaffected
	other := dial(t, srv.Path())
	assert.Equal(t, RespPong, roundTrip(t, other, Request{Type: ReqPing}).Type)
}

func TestServer_ShutdownClosesConnection(t *testing.T) {
	var calls atomic.Int32
	srv, _ := startServer(t, echoHandler(&calls))
	conn := dial(t, srv.Path())

	assert.Equal(t, RespOK, roundTrip(t, conn, Request{Type: ReqShutdown}).Type)
	_, err := ReadFrame(conn)
	assert.ErrorIs(t, err, io.EOF)
}

func TestServer_CloseWaitsForInFlightRequest(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	h := HandlerFunc(func(context.Context, Request) Response {
		close(entered)
		<-release
		return Pong()
	})
	srv, _ := startServer(t, h)
	conn := dial(t, srv.Path())

	require.NoError(t, WriteFrame(conn, Request{Type: ReqPing}))
	<-entered

	closed := make(chan error, 1)
	go func() { closed <- srv.Close() }()

	select {
	case <-closed:
		t.Fatal("Close returned while a request was in flight")
	case <-time.After(100 * time.Millisecond):
	}
	assert.FileExists(t, srv.Path())

	close(release)
	select {
	case err := <-closed:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}

	// The in-flight response still went out
	body, err := ReadFrame(conn)
	require.NoError(t, err)
	var resp Response
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.Equal(t, RespPong, resp.Type)
	assert.NoFileExists(t, srv.Path())
}

func TestListen_RemovesStaleSocket(t *testing.T) {
	path := socketPath(t)
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0600))

	srv, err := Listen(path, echoHandler(new(atomic.Int32)), zap.NewNop().Sugar())
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.ModeSocket, info.Mode().Type())

	require.NoError(t, srv.Close())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "socket should be unlinked on close")
	assert.NoError(t, srv.Close())
}

func TestServe_StopsOnCancel(t *testing.T) {
	srv, err := Listen(socketPath(t), echoHandler(new(atomic.Int32)), zap.NewNop().Sugar())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	// An idle open connection must not block shutdown
	conn := dial(t, srv.Path())
	_ = conn

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	_, err = os.Stat(srv.Path())
	assert.True(t, os.IsNotExist(err))
}

func TestClient(t *testing.T) {
	var calls atomic.Int32
	srv, _ := startServer(t, echoHandler(&calls))
	c := NewClient(srv.Path())
	ctx := context.Background()

	require.NoError(t, c.Ping(ctx))

	st, err := c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, st.State)

	resp, err := c.Call(ctx, Request{Type: ReqStartRecording, Title: "Standup"})
	require.NoError(t, err)
	assert.Equal(t, "abc123", resp.ID)

	_, err = c.Call(ctx, Request{Type: ReqStartRecording, Title: "busy"})
	assert.True(t, errors.Is(err, errors.ErrAlreadyRecording), "got %v", err)
	assert.Equal(t, "ALREADY_RECORDING: already recording", err.Error())

	raw, err := c.Send(ctx, Request{Type: ReqStartRecording, Title: "busy"})
	require.NoError(t, err)
	assert.Equal(t, RespError, raw.Type)
}

func TestClient_DaemonNotRunning(t *testing.T) {
	c := NewClient(socketPath(t))
	err := c.Ping(context.Background())
	assert.True(t, errors.Is(err, errors.ErrDaemonNotRunning), "got %v", err)

	// A leftover socket file with no listener behind it
	path := socketPath(t)
	ln, err := net.Listen("unix", path)
	require.NoError(t, err)
	ln.(*net.UnixListener).SetUnlinkOnClose(false)
	ln.Close()

	err = NewClient(path).Ping(context.Background())
	assert.True(t, errors.Is(err, errors.ErrDaemonNotRunning), "got %v", err)
}
