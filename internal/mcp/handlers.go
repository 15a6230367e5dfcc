package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/minutes/internal/config"
	"github.com/hpungsan/minutes/internal/errors"
	"github.com/hpungsan/minutes/internal/ipc"
	"github.com/hpungsan/minutes/internal/ops"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	db     *sql.DB
	cfg    *config.Config
	client *ipc.Client
}

// NewHandlers creates a new Handlers instance. client talks to the daemon
// for the start, stop and status tools.
func NewHandlers(db *sql.DB, cfg *config.Config, client *ipc.Client) *Handlers {
	return &Handlers{db: db, cfg: cfg, client: client}
}

// ListRequest represents the arguments for recording_list.
type ListRequest struct {
	Search string `json:"search,omitempty"`
	State  string `json:"state,omitempty"`
	Limit  int    `json:"limit,omitempty" validate:"gte=0"`
	Offset int    `json:"offset,omitempty" validate:"gte=0"`
}

// FetchRequest represents the arguments for recording_fetch.
type FetchRequest struct {
	ID string `json:"id" validate:"notblank"`
}

// SearchRequest represents the arguments for transcript_search.
type SearchRequest struct {
	Query string `json:"query" validate:"notblank"`
	Limit int    `json:"limit,omitempty" validate:"gte=0"`
}

// ExportRequest represents the arguments for recording_export.
type ExportRequest struct {
	ID     string `json:"id" validate:"notblank"`
	Format string `json:"format,omitempty"`
	Path   string `json:"path,omitempty"`
}

// StartRequest represents the arguments for recording_start.
type StartRequest struct {
	Title string `json:"title,omitempty"`
}

// StartResult is returned by recording_start.
type StartResult struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
}

// StopResult is returned by recording_stop.
type StopResult struct {
	ID           string `json:"id"`
	DurationSecs int64  `json:"duration_secs"`
}

// HandleList handles the recording_list tool call.
func (h *Handlers) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.List(h.db, ops.ListInput{
		Limit:  input.Limit,
		Offset: input.Offset,
		Search: input.Search,
		State:  input.State,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleFetch handles the recording_fetch tool call.
func (h *Handlers) HandleFetch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[FetchRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.Show(h.db, input.ID)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleSearch handles the transcript_search tool call.
func (h *Handlers) HandleSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SearchRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.Search(h.db, ops.SearchInput{
		Query: input.Query,
		Limit: input.Limit,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleExport handles the recording_export tool call.
func (h *Handlers) HandleExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ExportRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.Export(h.db, ops.ExportInput{
		ID:     input.ID,
		Format: input.Format,
		Path:   input.Path,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleStart handles the recording_start tool call.
func (h *Handlers) HandleStart(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[StartRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	resp, err := h.client.Call(ctx, ipc.Request{Type: ipc.ReqStartRecording, Title: strings.TrimSpace(input.Title)})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(StartResult{ID: resp.ID, Title: strings.TrimSpace(input.Title)})
}

// HandleStop handles the recording_stop tool call.
func (h *Handlers) HandleStop(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resp, err := h.client.Call(ctx, ipc.Request{Type: ipc.ReqStopRecording})
	if err != nil {
		return errorResult(err), nil
	}

	out := StopResult{ID: resp.ID}
	if resp.DurationSecs != nil {
		out.DurationSecs = *resp.DurationSecs
	}
	return successResult(out)
}

// HandleStatus handles the recording_status tool call.
func (h *Handlers) HandleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := h.client.Status(ctx)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(status)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Note: Internal error details are not exposed to prevent leaking sensitive info.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	var mErr *errors.MinutesError
	if stderrors.As(err, &mErr) && mErr.Code != errors.ErrInternal {
		// Keep wrapper context when the error was wrapped
		msg := mErr.Message
		if err != error(mErr) {
			msg = err.Error()
		}
		errorObj := map[string]any{
			"code":    mErr.Code,
			"message": msg,
			"status":  mErr.Status,
		}
		if mErr.Details != nil {
			errorObj["details"] = mErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    errors.ErrInternal,
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
