package server

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	errx "github.com/aptify/knowledge-rag/internal/core/error"
)

// Version is set at build time via ldflags.
var Version = "dev"

const askToolName = "ask_knowledge_base"

// AskTool exposes question answering as an MCP tool.
type AskTool struct {
	asker Asker
}

func NewAskTool(asker Asker) *AskTool {
	return &AskTool{asker: asker}
}

func (t *AskTool) Definition() mcp.Tool {
	return mcp.NewTool(askToolName,
		mcp.WithDescription(
			"Answer a question from the indexed knowledge base, falling back to web search "+
				"for questions outside it. Returns the answer followed by its cited sources.",
		),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("The question to answer"),
		),
	)
}

func (t *AskTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question := strings.TrimSpace(req.GetString("question", ""))
	if question == "" {
		return mcp.NewToolResultError("'question' is required"), nil
	}

	answer, err := t.asker.Ask(ctx, question)
	if err != nil {
		msg := err.Error()
		var e *errx.Error
		if errors.As(err, &e) {
			msg = e.Message
		}
		return mcp.NewToolResultError(fmt.Sprintf("failed to answer: %s", msg)), nil
	}

	var b strings.Builder
	b.WriteString(answer.Answer)
	if answer.LowConfidence {
		b.WriteString("\n\n(low confidence: the answer could not be fully verified)")
	}
	if len(answer.Sources) > 0 {
		b.WriteString("\n\nSources:\n")
		for i, s := range answer.Sources {
			fmt.Fprintf(&b, "%d. %s\n", i+1, s.Source)
		}
	}
	return mcp.NewToolResultText(strings.TrimRight(b.String(), "\n")), nil
}

// NewMCPServer registers the knowledge tools on a new MCP server.
func NewMCPServer(asker Asker) *mcpserver.MCPServer {
	s := mcpserver.NewMCPServer(
		"knowledge-rag",
		Version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithRecovery(),
	)
	tool := NewAskTool(asker)
	s.AddTool(tool.Definition(), tool.Handle)
	return s
}

// ServeMCP serves the MCP server over stdio until stdin closes.
func ServeMCP(asker Asker) error {
	return mcpserver.ServeStdio(NewMCPServer(asker))
}
