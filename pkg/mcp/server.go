// Package mcp adapts the callstorm daemon to the Model Context Protocol so
// agents can drive load runs conversationally.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/callstorm/callstorm/pkg/api"
	"github.com/callstorm/callstorm/pkg/client"
)

// Server adapts callstorm-d to the Model Context Protocol.
type Server struct {
	mcpServer *server.MCPServer
	apiClient *client.Client
}

// NewServer creates a new MCP server instance.
func NewServer(apiURL string) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"callstorm",
			"1.0.0",
		),
		apiClient: client.NewClient(apiURL),
	}
	s.registerResources()
	s.registerTools()
	s.registerPrompts()
	return s
}

// Serve starts the MCP server on stdio.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcpServer)
}

// --- Resources ---

func (s *Server) registerResources() {
	// callstorm://status
	s.mcpServer.AddResource(mcp.NewResource(
		"callstorm://status",
		"Engine Status",
		mcp.WithResourceDescription("Live snapshot of the traffic engine: state, rates, session counts"),
		mcp.WithMIMEType("application/json"),
	), s.handleReadStatus)

	// callstorm://summary
	s.mcpServer.AddResource(mcp.NewResource(
		"callstorm://summary",
		"Call Detail Summary",
		mcp.WithResourceDescription("Aggregated call detail records for the current run"),
		mcp.WithMIMEType("application/json"),
	), s.handleReadSummary)
}

// --- Tools ---

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool(
		"get_status",
		mcp.WithDescription("Fetch the engine's live state, configured rates and session counts."),
	), s.handleGetStatus)

	s.mcpServer.AddTool(mcp.NewTool(
		"start_load",
		mcp.WithDescription("Arm the traffic generator with its current settings."),
	), s.handleStartLoad)

	s.mcpServer.AddTool(mcp.NewTool(
		"stop_load",
		mcp.WithDescription("Stop offering new calls; live sessions drain naturally."),
	), s.handleStopLoad)

	s.mcpServer.AddTool(mcp.NewTool(
		"hangup_all",
		mcp.WithDescription("Stop traffic and tear down sessions. Set everything=true to also kill sessions callstorm did not originate."),
		mcp.WithBoolean("everything", mcp.Description("Widen the hangup to foreign sessions (default false)")),
	), s.handleHangupAll)

	s.mcpServer.AddTool(mcp.NewTool(
		"configure_load",
		mcp.WithDescription("Adjust engine settings live. Omitted fields stay unchanged."),
		mcp.WithNumber("rate", mcp.Description("Offered calls per second")),
		mcp.WithNumber("limit", mcp.Description("Maximum concurrent sessions")),
		mcp.WithNumber("duration_s", mcp.Description("Per-call hold time in seconds")),
		mcp.WithNumber("max_offered", mcp.Description("Stop after this many total calls (0 = unbounded)")),
	), s.handleConfigureLoad)
}

// --- Prompts ---

func (s *Server) registerPrompts() {
	s.mcpServer.AddPrompt(mcp.NewPrompt(
		"callstorm-aware",
		mcp.WithPromptDescription("Provides context about callstorm concepts (rate, limit, behaviors)"),
	), s.handleGetPrompt)
}

// --- Handlers ---

func (s *Server) handleReadStatus(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	st, err := s.apiClient.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch status: %w", err)
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal status: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleReadSummary(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	sum, err := s.apiClient.Summary(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch summary: %w", err)
	}
	data, err := json.MarshalIndent(sum, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal summary: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := s.apiClient.Status(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshal error: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handleStartLoad(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.apiClient.Start(ctx); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}
	return mcp.NewToolResultText("Load generation started."), nil
}

func (s *Server) handleStopLoad(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.apiClient.Stop(ctx); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}
	return mcp.NewToolResultText("Load generation stopped; live sessions will drain."), nil
}

func (s *Server) handleHangupAll(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	everything := mcp.ParseBoolean(request, "everything", false)
	if err := s.apiClient.HupAll(ctx, everything); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}
	if everything {
		return mcp.NewToolResultText("All sessions on every switch hung up."), nil
	}
	return mcp.NewToolResultText("All callstorm-originated sessions hung up."), nil
}

func (s *Server) handleConfigureLoad(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var req api.ConfigRequest
	if v := mcp.ParseFloat64(request, "rate", -1); v >= 0 {
		req.Rate = &v
	}
	if v := mcp.ParseInt64(request, "limit", -1); v >= 0 {
		limit := int(v)
		req.Limit = &limit
	}
	if v := mcp.ParseFloat64(request, "duration_s", -1); v >= 0 {
		req.DurationS = &v
	}
	if v := mcp.ParseInt64(request, "max_offered", -1); v >= 0 {
		quota := uint64(v)
		req.MaxOffered = &quota
	}

	st, err := s.apiClient.Configure(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}
	resultMsg := fmt.Sprintf("Settings applied. rate=%.1f limit=%d duration=%.1fs max_offered=%d",
		st.Rate, st.Limit, st.DurationS, st.MaxOffered)
	return mcp.NewToolResultText(resultMsg), nil
}

func (s *Server) handleGetPrompt(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	name := request.Params.Name
	if name != "callstorm-aware" {
		return nil, fmt.Errorf("prompt not found: %s", name)
	}

	promptText := `You are interacting with callstorm, a telephony load-testing daemon.

Concepts:
- Rate: offered calls per second, hard-capped by the engine's max rate.
- Limit: maximum concurrent sessions; admission control never exceeds it.
- Duration: how long each call is held before automatic hangup. Under
  auto-duration it tracks limit/rate plus a fixed offset.
- Behavior: what each call does once connected (park, conversation, dtmf).
- Max offered: total call quota for a run; the engine stops itself there.

Use 'get_status' before changing anything. Use 'configure_load' for live
adjustments, 'start_load'/'stop_load' for the run lifecycle, and
'hangup_all' only when the user explicitly wants sessions torn down.
`

	return mcp.NewGetPromptResult(
		"callstorm-aware",
		[]mcp.PromptMessage{
			mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(promptText)),
		},
	), nil
}
