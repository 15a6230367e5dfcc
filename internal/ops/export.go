package ops

import (
	"bytes"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/hpungsan/minutes/internal/errors"
	"github.com/hpungsan/minutes/internal/recording"
)

// Export formats.
const (
	FormatText     = "txt"
	FormatJSON     = "json"
	FormatSRT      = "srt"
	FormatMarkdown = "md"
	FormatHTML     = "html"
)

// Formats lists the supported export formats.
var Formats = []string{FormatText, FormatJSON, FormatSRT, FormatMarkdown, FormatHTML}

// ExportInput contains parameters for the Export operation.
type ExportInput struct {
	ID     string // id or unique prefix
	Format string // default: txt
	// Path is an output file or existing directory. Empty returns the
	// rendered content instead of writing it.
	Path string
}

// ExportOutput contains the result of the Export operation.
type ExportOutput struct {
	ID      string `json:"id"`
	Format  string `json:"format"`
	Path    string `json:"path,omitempty"`
	Bytes   int    `json:"bytes"`
	Content string `json:"content,omitempty"`
}

// Export renders a recording's transcript and optionally writes it to disk.
func Export(database *sql.DB, input ExportInput) (*ExportOutput, error) {
	format := strings.ToLower(strings.TrimSpace(input.Format))
	if format == "" {
		format = FormatText
	}
	if !validFormat(format) {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("unknown export format %q (want one of %s)", format, strings.Join(Formats, ", ")))
	}

	doc, err := Show(database, input.ID)
	if err != nil {
		return nil, err
	}

	data, err := Render(format, doc)
	if err != nil {
		return nil, err
	}

	out := &ExportOutput{ID: doc.ID, Format: format, Bytes: len(data)}
	if input.Path == "" {
		out.Content = string(data)
		return out, nil
	}

	path, err := resolveExportPath(input.Path, doc, format)
	if err != nil {
		return nil, err
	}
	if err := writeFileAtomic(path, data); err != nil {
		return nil, err
	}
	out.Path = path
	return out, nil
}

func validFormat(f string) bool {
	for _, v := range Formats {
		if v == f {
			return true
		}
	}
	return false
}

// Render formats a recording and its transcript.
func Render(format string, doc *ShowOutput) ([]byte, error) {
	switch format {
	case FormatText:
		return renderText(doc), nil
	case FormatJSON:
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		return append(data, '\n'), nil
	case FormatSRT:
		return renderSRT(doc), nil
	case FormatMarkdown:
		return []byte(RenderMarkdown(doc)), nil
	case FormatHTML:
		return renderHTML(doc)
	default:
		return nil, errors.NewInvalidRequest("unknown export format: " + format)
	}
}

func header(doc *ShowOutput) (date, duration string) {
	date = time.Unix(doc.CreatedAt, 0).Format("2006-01-02 15:04")
	duration = "unknown"
	if doc.DurationSecs != nil {
		duration = recording.FormatDuration(*doc.DurationSecs)
	}
	return date, duration
}

func speakerPrefix(s recording.Segment) string {
	if s.Speaker == nil || *s.Speaker == "" {
		return ""
	}
	return *s.Speaker + ": "
}

func renderText(doc *ShowOutput) []byte {
	var b bytes.Buffer
	date, duration := header(doc)
	fmt.Fprintf(&b, "%s\n%s (%s)\n\n", doc.Title, date, duration)
	for _, s := range doc.Segments {
		fmt.Fprintf(&b, "[%s] %s%s\n", recording.FormatTimestamp(s.StartTime), speakerPrefix(s), s.Text)
	}
	return b.Bytes()
}

func renderSRT(doc *ShowOutput) []byte {
	var b bytes.Buffer
	for i, s := range doc.Segments {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s%s\n\n",
			i+1,
			recording.FormatSRTTimestamp(s.StartTime),
			recording.FormatSRTTimestamp(s.EndTime),
			speakerPrefix(s), s.Text)
	}
	return b.Bytes()
}

// RenderMarkdown renders the recording as a Markdown document with its notes
// and transcript.
func RenderMarkdown(doc *ShowOutput) string {
	var b strings.Builder
	date, duration := header(doc)
	fmt.Fprintf(&b, "# %s\n\n", doc.Title)
	fmt.Fprintf(&b, "- **Date:** %s\n- **Duration:** %s\n- **ID:** `%s`\n\n", date, duration, doc.ID)

	if doc.Notes != nil && strings.TrimSpace(*doc.Notes) != "" {
		b.WriteString("## Notes\n\n")
		b.WriteString(strings.TrimSpace(*doc.Notes))
		b.WriteString("\n\n")
	}

	b.WriteString("## Transcript\n\n")
	if len(doc.Segments) == 0 {
		b.WriteString("_No transcript yet._\n")
	}
	for _, s := range doc.Segments {
		fmt.Fprintf(&b, "**[%s]** %s%s\n\n", recording.FormatTimestamp(s.StartTime), speakerPrefix(s), s.Text)
	}
	return b.String()
}

func renderHTML(doc *ShowOutput) ([]byte, error) {
	var body bytes.Buffer
	if err := goldmark.Convert([]byte(RenderMarkdown(doc)), &body); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("render markdown: %w", err))
	}

	var b bytes.Buffer
	b.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&b, "<title>%s</title>\n", html.EscapeString(doc.Title))
	b.WriteString("</head>\n<body>\n")
	b.Write(body.Bytes())
	b.WriteString("</body>\n</html>\n")
	return b.Bytes(), nil
}

// resolveExportPath validates path; an existing directory gets a file name
// derived from the title.
func resolveExportPath(path string, doc *ShowOutput, format string) (string, error) {
	if containsTraversal(path) {
		return "", errors.NewInvalidRequest("path must not contain directory traversal (..)")
	}
	path = filepath.Clean(path)

	if info, err := os.Stat(path); err == nil && info.IsDir() {
		name := SanitizeForFilename(doc.Title) + "-" + recording.ShortID(doc.ID) + "." + format
		path = filepath.Join(path, name)
	}

	if info, err := os.Lstat(path); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return "", errors.NewInvalidRequest("path must not be a symlink")
	}
	if info, err := os.Lstat(filepath.Dir(path)); err != nil || !info.IsDir() {
		return "", errors.NewInvalidRequest("parent directory does not exist: " + filepath.Dir(path))
	}
	return path, nil
}

// writeFileAtomic writes to a temp file and renames it into place, so an
// existing file survives a failed export.
func writeFileAtomic(path string, data []byte) error {
	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := path + "." + hex.EncodeToString(randBytes) + ".tmp"

	file, err := openFileNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0600)
	if err != nil {
		return errors.NewInternal(fmt.Errorf("failed to create export file: %w", err))
	}

	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	if _, err := file.Write(data); err != nil {
		return errors.NewInternal(err)
	}
	if err := file.Sync(); err != nil {
		return errors.NewInternal(err)
	}
	if err := file.Close(); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to close export file: %w", err))
	}
	file = nil

	if err := os.Rename(tempPath, path); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to finalize export: %w", err))
	}
	success = true
	return nil
}
