package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/minutes/internal/ops"
)

var listToolDef = mcp.NewTool("recording_list",
	mcp.WithDescription("List recordings, newest first. Supports a title filter, a state filter and pagination."),
	mcp.WithString("search", mcp.Description("Case-insensitive substring of the title")),
	mcp.WithString("state",
		mcp.Description("Only recordings in this state"),
		mcp.Enum("recording", "pending", "transcribing", "completed", "failed"),
	),
	mcp.WithNumber("limit", mcp.Description("Page size (default 20, max 100)")),
	mcp.WithNumber("offset", mcp.Description("Rows to skip")),
	mcp.WithReadOnlyHintAnnotation(true),
)

var fetchToolDef = mcp.NewTool("recording_fetch",
	mcp.WithDescription("Fetch one recording with its transcript segments and notes."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Recording id or unique id prefix")),
	mcp.WithReadOnlyHintAnnotation(true),
)

var searchToolDef = mcp.NewTool("transcript_search",
	mcp.WithDescription("Full-text search across all transcripts. Returns matching segments with timestamps."),
	mcp.WithString("query", mcp.Required(), mcp.Description("Words to search for")),
	mcp.WithNumber("limit", mcp.Description("Maximum hits (default 20, max 100)")),
	mcp.WithReadOnlyHintAnnotation(true),
)

var exportToolDef = mcp.NewTool("recording_export",
	mcp.WithDescription("Render a recording's transcript. Without a path the rendered text is returned."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Recording id or unique id prefix")),
	mcp.WithString("format", mcp.Description("Output format (default txt)"), mcp.Enum(ops.Formats...)),
	mcp.WithString("path", mcp.Description("Output file or existing directory")),
)

var startToolDef = mcp.NewTool("recording_start",
	mcp.WithDescription("Start recording system audio and microphone. Requires the daemon."),
	mcp.WithString("title", mcp.Description("Meeting title (default: Meeting <date time>)")),
)

var stopToolDef = mcp.NewTool("recording_stop",
	mcp.WithDescription("Stop the active recording and queue it for transcription. Requires the daemon."),
)

var statusToolDef = mcp.NewTool("recording_status",
	mcp.WithDescription("Report whether the daemon is idle, recording or transcribing."),
	mcp.WithReadOnlyHintAnnotation(true),
)
