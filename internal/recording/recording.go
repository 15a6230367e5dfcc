package recording

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle state of a recording session.
// Recording → Pending → Transcribing → Completed | Failed.
type State string

const (
	StateRecording    State = "recording"
	StatePending      State = "pending"
	StateTranscribing State = "transcribing"
	StateCompleted    State = "completed"
	StateFailed       State = "failed"
)

// ParseState converts a stored state string. Unknown values map to Pending
// so a bad row is retried instead of hidden.
func ParseState(s string) State {
	switch State(strings.ToLower(strings.TrimSpace(s))) {
	case StateRecording:
		return StateRecording
	case StatePending:
		return StatePending
	case StateTranscribing:
		return StateTranscribing
	case StateCompleted:
		return StateCompleted
	case StateFailed:
		return StateFailed
	default:
		return StatePending
	}
}

// Recording is one meeting recording session.
type Recording struct {
	// ID is a random UUID rendered as hex with dashes
	ID string `json:"id"`

	Title string `json:"title"`

	// AudioPath is the .wav (or .ogg after compression) file (nullable)
	AudioPath *string `json:"audio_path,omitempty"`

	// DurationSecs is set when the recording stops (nullable)
	DurationSecs *int64 `json:"duration_secs,omitempty"`

	State State `json:"state"`

	// CreatedAt is the Unix timestamp when the session started
	CreatedAt int64 `json:"created_at"`

	// UpdatedAt is the Unix timestamp of the last change
	UpdatedAt int64 `json:"updated_at"`

	// Notes holds the generated summary (nullable)
	Notes *string `json:"notes,omitempty"`

	Tags []string `json:"tags"`
}

// New creates a session in the Recording state with a fresh id.
func New(title string) *Recording {
	now := time.Now().Unix()
	return &Recording{
		ID:        uuid.NewString(),
		Title:     title,
		State:     StateRecording,
		CreatedAt: now,
		UpdatedAt: now,
		Tags:      []string{},
	}
}

// ShortID is the 8-character prefix shown in CLI output.
func (r *Recording) ShortID() string {
	return ShortID(r.ID)
}

// Duration returns the recorded duration, zero when unknown.
func (r *Recording) Duration() time.Duration {
	if r.DurationSecs == nil {
		return 0
	}
	return time.Duration(*r.DurationSecs) * time.Second
}

// ShortID truncates an id to 8 characters.
func ShortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

// Segment is one timed span of transcript text.
type Segment struct {
	ID          int64    `json:"id,omitempty"`
	RecordingID string   `json:"recording_id"`
	StartTime   float64  `json:"start_time"`
	EndTime     float64  `json:"end_time"`
	Text        string   `json:"text"`
	Speaker     *string  `json:"speaker,omitempty"`
	Confidence  *float64 `json:"confidence,omitempty"`
}

// FormatDuration renders seconds as m:ss or h:mm:ss.
func FormatDuration(secs int64) string {
	if secs < 0 {
		secs = 0
	}
	h := secs / 3600
	m := (secs % 3600) / 60
	s := secs % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// FormatTimestamp renders a transcript offset as mm:ss or hh:mm:ss.
func FormatTimestamp(secs float64) string {
	total := int64(secs)
	if total < 0 {
		total = 0
	}
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// FormatSRTTimestamp renders an offset as hh:mm:ss,mmm.
func FormatSRTTimestamp(secs float64) string {
	totalMs := int64(secs * 1000)
	if totalMs < 0 {
		totalMs = 0
	}
	h := totalMs / 3_600_000
	m := (totalMs % 3_600_000) / 60_000
	s := (totalMs % 60_000) / 1000
	ms := totalMs % 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// DefaultTitle names a recording started without a title.
func DefaultTitle(t time.Time) string {
	return "Meeting " + t.Format("2006-01-02 15:04")
}
