package daemon

import (
	"sync"
	"time"

	"github.com/hpungsan/minutes/internal/ipc"
	"github.com/hpungsan/minutes/internal/recording"
)

// State is the daemon state. Kind decides which of the other fields are set.
type State struct {
	Kind ipc.StateKind

	// Recording
	Recording  *recording.Recording
	AudioPath  string
	StartedAt  time.Time
	AudioLevel float32
	Backend    string

	// Transcribing
	TranscribingID string
	Progress       float32
}

func idle() State {
	return State{Kind: ipc.StateIdle}
}

// Status renders the state for the wire.
func (s State) Status() ipc.Status {
	st := ipc.Status{State: s.Kind}
	switch s.Kind {
	case ipc.StateRecording:
		if s.Recording != nil {
			st.RecordingID = s.Recording.ID
			st.Title = s.Recording.Title
		}
		st.AudioPath = s.AudioPath
		st.StartedAt = s.StartedAt.Unix()
		st.AudioLevel = s.AudioLevel
		st.Backend = s.Backend
	case ipc.StateTranscribing:
		st.RecordingID = s.TranscribingID
		st.Progress = s.Progress
	}
	return st
}

// stateStore holds the snapshot read by status queries. Only the command
// loop writes it.
type stateStore struct {
	mu sync.RWMutex
	s  State
}

func (st *stateStore) get() State {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.s
}

func (st *stateStore) set(s State) {
	st.mu.Lock()
	st.s = s
	st.mu.Unlock()
}

func (st *stateStore) update(fn func(*State)) {
	st.mu.Lock()
	fn(&st.s)
	st.mu.Unlock()
}
