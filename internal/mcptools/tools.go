// Package mcptools exposes fact checking and transcript editing as MCP tools.
package mcptools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ppiankov/claimstream/internal/factcheck"
	"github.com/ppiankov/claimstream/internal/model"
	"github.com/ppiankov/claimstream/internal/pipeline"
)

// Service is the slice of the pipeline the tools call into
type Service interface {
	FactCheck(ctx context.Context, claim, speaker, source string) (*model.FactCheckResult, error)
	Sentences(ctx context.Context, recordingID string) ([]model.Sentence, error)
	RecentSentences(ctx context.Context, recordingID string, n int) ([]model.Sentence, error)
	CorrectSentence(ctx context.Context, recordingID string, number int, upd pipeline.SentenceUpdate) (*model.Sentence, error)
}

// NewServer builds an MCP server with the claimstream tools registered
func NewServer(svc Service, version string) *server.MCPServer {
	s := server.NewMCPServer("claimstream", version, server.WithToolCapabilities(false))
	h := &handlers{svc: svc}

	s.AddTool(mcp.NewTool("fact_check",
		mcp.WithDescription("Check a claim against the fact-check database, published fact checks and web evidence"),
		mcp.WithString("claim", mcp.Required(), mcp.Description("Claim text to check")),
		mcp.WithString("speaker", mcp.Description("Who made the claim")),
		mcp.WithString("service", mcp.Description("database, google, search, any or all")),
	), h.factCheck)

	s.AddTool(mcp.NewTool("list_sentences",
		mcp.WithDescription("List transcript sentences of a recording"),
		mcp.WithString("recording_id", mcp.Required(), mcp.Description("Recording identifier")),
		mcp.WithNumber("recent", mcp.Description("Only return the last N sentences")),
	), h.listSentences)

	s.AddTool(mcp.NewTool("correct_sentence",
		mcp.WithDescription("Correct the text, speaker or annotation of a sentence"),
		mcp.WithString("recording_id", mcp.Required(), mcp.Description("Recording identifier")),
		mcp.WithNumber("sentence_number", mcp.Required(), mcp.Description("1-based sentence number")),
		mcp.WithString("text", mcp.Description("Replacement text; claims are detected again")),
		mcp.WithString("speaker", mcp.Description("Speaker name")),
		mcp.WithString("annotation", mcp.Description("Editor note")),
	), h.correctSentence)

	return s
}

// ServeStdio serves the tools over stdin/stdout until the client disconnects
func ServeStdio(svc Service, version string) error {
	return server.ServeStdio(NewServer(svc, version))
}

type handlers struct {
	svc Service
}

func (h *handlers) factCheck(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	claim, err := req.RequireString("claim")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := h.svc.FactCheck(ctx, claim, req.GetString("speaker", ""), req.GetString("service", ""))
	if err != nil {
		return toolError(err)
	}
	return jsonResult(res)
}

func (h *handlers) listSentences(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("recording_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var sentences []model.Sentence
	if n := req.GetInt("recent", 0); n > 0 {
		sentences, err = h.svc.RecentSentences(ctx, id, n)
	} else {
		sentences, err = h.svc.Sentences(ctx, id)
	}
	if err != nil {
		return toolError(err)
	}
	return jsonResult(sentences)
}

func (h *handlers) correctSentence(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("recording_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	number, err := req.RequireInt("sentence_number")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var upd pipeline.SentenceUpdate
	args := req.GetArguments()
	if _, ok := args["text"]; ok {
		v := req.GetString("text", "")
		upd.Text = &v
	}
	if _, ok := args["speaker"]; ok {
		v := req.GetString("speaker", "")
		upd.Speaker = &v
	}
	if _, ok := args["annotation"]; ok {
		v := req.GetString("annotation", "")
		upd.Annotation = &v
	}

	sent, err := h.svc.CorrectSentence(ctx, id, number, upd)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(sent)
}

// toolError reports caller mistakes to the model and returns everything else
// as a protocol error
func toolError(err error) (*mcp.CallToolResult, error) {
	switch {
	case errors.Is(err, pipeline.ErrInvalidInput),
		errors.Is(err, pipeline.ErrNotFound),
		errors.Is(err, pipeline.ErrNotReady),
		errors.Is(err, pipeline.ErrUnavailable),
		errors.Is(err, factcheck.ErrUnknownSource):
		return mcp.NewToolResultError(err.Error()), nil
	}
	return nil, err
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
