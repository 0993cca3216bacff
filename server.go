package newsrag

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer registers the news tools on a new MCP server.
func NewMCPServer(c *Client) *server.MCPServer {
	s := server.NewMCPServer(
		"newsrag",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions("Korean news question answering with date-aware routing, cited sources and an execution trace"),
	)

	s.AddTool(
		mcp.NewTool("ask-news",
			mcp.WithDescription("Answer a news question with cited sources, routing by date expressions and query clarity"),
			mcp.WithString("query", mcp.Required(), mcp.Description("The question, e.g. '1년 전 삼성전자 실적'")),
			mcp.WithString("conversation_id", mcp.Description("Conversation to continue; a new one is created when empty")),
		),
		HandleAskNews(c),
	)
	s.AddTool(
		mcp.NewTool("analyze-query",
			mcp.WithDescription("Return the routing decision, query analysis and temporal intent without searching"),
			mcp.WithString("query", mcp.Required(), mcp.Description("The question to analyze")),
		),
		HandleAnalyzeQuery(c),
	)
	s.AddTool(
		mcp.NewTool("conversation-history",
			mcp.WithDescription("List the stored messages of a conversation"),
			mcp.WithString("conversation_id", mcp.Required(), mcp.Description("Conversation id")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of recent messages"), mcp.DefaultNumber(20), mcp.Min(1)),
		),
		HandleConversationHistory(c),
	)
	return s
}

// ServeStdio runs the MCP server on stdin/stdout.
func ServeStdio(c *Client) error {
	return server.ServeStdio(NewMCPServer(c))
}

func HandleAskNews(c *Client) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := request.RequireString("query")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid query: %v", err)), nil
		}
		resp, err := c.Handle(ctx, query, ConversationContext{ConversationID: request.GetString("conversation_id", "")})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(resp)
	}
}

func HandleAnalyzeQuery(c *Client) server.ToolHandlerFunc {
	return func(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := request.RequireString("query")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid query: %v", err)), nil
		}
		return jsonResult(c.Decide(query))
	}
}

func HandleConversationHistory(c *Client) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("conversation_id")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid conversation_id: %v", err)), nil
		}
		msgs, err := c.History(ctx, id, request.GetInt("limit", 20))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(map[string]interface{}{"conversation_id": id, "messages": msgs})
	}
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal tool result failed, err: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}
