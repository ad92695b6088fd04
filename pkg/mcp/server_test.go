package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

func mockDaemon(t *testing.T) *httptest.Server {
	t.Helper()
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/status":
			w.Write([]byte(`{"state":"ORIGINATING","active_sessions":12,"total_originated":340,"rate":30,"effective_rate":30,"limit":50}`))
		case "/v1/start", "/v1/stop", "/v1/hupall", "/v1/shutdown":
			w.Write([]byte(`{"ok":true,"state":"STOPPED"}`))
		case "/v1/config":
			w.Write([]byte(`{"state":"ORIGINATING","rate":45,"limit":80,"duration_s":6.8,"max_offered":1000}`))
		case "/v1/summary":
			w.Write([]byte(`{"summary":{"total":340,"answered":335},"by_behavior":{"park":340}}`))
		default:
			http.NotFound(w, r)
		}
	})
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return ts
}

func TestMCPServer_ReadStatus(t *testing.T) {
	ts := mockDaemon(t)
	s := NewServer(ts.URL)

	req := mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: "callstorm://status",
		},
	}
	result, err := s.handleReadStatus(context.Background(), req)
	if err != nil {
		t.Fatalf("handleReadStatus failed: %v", err)
	}
	if len(result) != 1 {
		t.Fatalf("Expected 1 resource content, got %d", len(result))
	}
	content, ok := result[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("Expected TextResourceContents")
	}
	if content.MIMEType != "application/json" {
		t.Errorf("Expected application/json, got %s", content.MIMEType)
	}
	var st map[string]interface{}
	if err := json.Unmarshal([]byte(content.Text), &st); err != nil {
		t.Errorf("Failed to parse result JSON: %v", err)
	}
	if st["state"] != "ORIGINATING" {
		t.Errorf("Unexpected state: %v", st["state"])
	}
}

func TestMCPServer_StartLoad(t *testing.T) {
	ts := mockDaemon(t)
	s := NewServer(ts.URL)

	req := mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: "start_load"},
	}
	result, err := s.handleStartLoad(context.Background(), req)
	if err != nil {
		t.Fatalf("handleStartLoad failed: %v", err)
	}
	if result.IsError {
		t.Errorf("Expected success, got error")
	}
}

func TestMCPServer_ConfigureLoad(t *testing.T) {
	ts := mockDaemon(t)
	s := NewServer(ts.URL)

	req := mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name: "configure_load",
			Arguments: map[string]interface{}{
				"rate":  45.0,
				"limit": 80.0,
			},
		},
	}
	result, err := s.handleConfigureLoad(context.Background(), req)
	if err != nil {
		t.Fatalf("handleConfigureLoad failed: %v", err)
	}
	if result.IsError {
		t.Errorf("Expected success, got error")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok || !strings.Contains(text.Text, "rate=45.0") {
		t.Errorf("Unexpected result text: %+v", result.Content[0])
	}
}

func TestMCPServer_HangupAllEverything(t *testing.T) {
	ts := mockDaemon(t)
	s := NewServer(ts.URL)

	req := mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name: "hangup_all",
			Arguments: map[string]interface{}{
				"everything": true,
			},
		},
	}
	result, err := s.handleHangupAll(context.Background(), req)
	if err != nil {
		t.Fatalf("handleHangupAll failed: %v", err)
	}
	if result.IsError {
		t.Errorf("Expected success, got error")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok || !strings.Contains(text.Text, "every switch") {
		t.Errorf("Unexpected result text: %+v", result.Content[0])
	}
}

func TestMCPServer_APIDown(t *testing.T) {
	s := NewServer("http://127.0.0.1:1")
	req := mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: "get_status"},
	}
	result, err := s.handleGetStatus(context.Background(), req)
	if err != nil {
		t.Fatalf("handler returned transport error: %v", err)
	}
	if !result.IsError {
		t.Error("Expected tool error when daemon is unreachable")
	}
}
