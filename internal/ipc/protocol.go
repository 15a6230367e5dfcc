// Package ipc implements the daemon's local command protocol: length-prefixed
// JSON frames over a unix socket.
package ipc

import (
	stderrors "errors"

	"github.com/hpungsan/minutes/internal/errors"
)

// RequestType tags a request.
type RequestType string

const (
	ReqStartRecording RequestType = "start_recording"
	ReqStopRecording  RequestType = "stop_recording"
	ReqGetStatus      RequestType = "get_status"
	ReqPing           RequestType = "ping"
	ReqShutdown       RequestType = "shutdown"
	ReqTranscribe     RequestType = "transcribe"
)

// Request is a client command.
type Request struct {
	Type RequestType `json:"type"`
	// Title names a new recording (start_recording).
	Title string `json:"title,omitempty"`
	// ID is a recording id or prefix (transcribe).
	ID string `json:"id,omitempty"`
}

// Validate checks the request shape before it reaches the handler.
func (r Request) Validate() error {
	switch r.Type {
	case ReqStartRecording, ReqStopRecording, ReqGetStatus, ReqPing, ReqShutdown:
		return nil
	case ReqTranscribe:
		if r.ID == "" {
			return errors.NewInvalidRequest("transcribe requires a recording id")
		}
		return nil
	case "":
		return errors.NewIPC("request has no type", nil)
	default:
		return errors.NewIPC("unknown request type: "+string(r.Type), nil)
	}
}

// ResponseType tags a response.
type ResponseType string

const (
	RespRecordingStarted ResponseType = "recording_started"
	RespRecordingStopped ResponseType = "recording_stopped"
	RespStatus           ResponseType = "status"
	RespPong             ResponseType = "pong"
	RespOK               ResponseType = "ok"
	RespError            ResponseType = "error"
)

// Response is the daemon's reply.
type Response struct {
	Type ResponseType `json:"type"`

	// recording_started, recording_stopped
	ID           string `json:"id,omitempty"`
	DurationSecs *int64 `json:"duration_secs,omitempty"`

	// status
	Status *Status `json:"status,omitempty"`

	// error
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// StateKind is the daemon state reported by status.
type StateKind string

const (
	StateIdle         StateKind = "idle"
	StateRecording    StateKind = "recording"
	StateTranscribing StateKind = "transcribing"
)

// Status is a snapshot of the daemon state.
type Status struct {
	State StateKind `json:"state"`

	// Recording and transcribing
	RecordingID string `json:"recording_id,omitempty"`

	// Recording
	Title      string  `json:"title,omitempty"`
	AudioPath  string  `json:"audio_path,omitempty"`
	StartedAt  int64   `json:"started_at,omitempty"`
	AudioLevel float32 `json:"audio_level"`
	Backend    string  `json:"backend,omitempty"`

	// Transcribing, 0.0 to 1.0
	Progress float32 `json:"progress"`
}

// Started builds a recording_started response.
func Started(id string) Response {
	return Response{Type: RespRecordingStarted, ID: id}
}

// Stopped builds a recording_stopped response.
func Stopped(id string, durationSecs int64) Response {
	return Response{Type: RespRecordingStopped, ID: id, DurationSecs: &durationSecs}
}

// StatusResponse wraps a status snapshot.
func StatusResponse(s Status) Response {
	return Response{Type: RespStatus, Status: &s}
}

// OK builds an ok response.
func OK() Response {
	return Response{Type: RespOK}
}

// Pong builds a pong response.
func Pong() Response {
	return Response{Type: RespPong}
}

// ErrorResponse converts err into an error response carrying its code.
func ErrorResponse(err error) Response {
	var mErr *errors.MinutesError
	if stderrors.As(err, &mErr) {
		return Response{Type: RespError, Code: string(mErr.Code), Message: mErr.Message}
	}
	return Response{Type: RespError, Code: string(errors.ErrInternal), Message: err.Error()}
}

// Err returns the error carried by an error response, or nil.
func (r Response) Err() error {
	if r.Type != RespError {
		return nil
	}
	return errors.FromWire(r.Code, r.Message)
}
