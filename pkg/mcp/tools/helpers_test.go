package tools

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"

	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/require"
)

// toolReply is the slice of a JSON-RPC response the tool tests inspect.
type toolReply struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	IsError bool `json:"isError"`
	Tools   []struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	} `json:"tools"`
}

// Text returns the first content block.
func (r *toolReply) Text(t *testing.T) string {
	t.Helper()
	require.NotEmpty(t, r.Content, "reply has no content")
	return r.Content[0].Text
}

var rpcID atomic.Int64

// rpc sends method with params through s and decodes the result member.
func rpc(t *testing.T, s *server.MCPServer, method string, params any) *toolReply {
	t.Helper()
	msg := map[string]any{"jsonrpc": "2.0", "id": rpcID.Add(1), "method": method}
	if params != nil {
		msg["params"] = params
	}
	raw, err := json.Marshal(msg)
	require.NoError(t, err)

	out, err := json.Marshal(s.HandleMessage(context.Background(), raw))
	require.NoError(t, err)
	var resp struct {
		Result *toolReply `json:"result"`
	}
	require.NoError(t, json.Unmarshal(out, &resp))
	require.NotNil(t, resp.Result, "no result in %s", out)
	return resp.Result
}

func callTool(t *testing.T, s *server.MCPServer, name string, args map[string]any) *toolReply {
	t.Helper()
	params := map[string]any{"name": name}
	if args != nil {
		params["arguments"] = args
	}
	return rpc(t, s, "tools/call", params)
}

func listTools(t *testing.T, s *server.MCPServer) []string {
	t.Helper()
	var names []string
	for _, tool := range rpc(t, s, "tools/list", nil).Tools {
		names = append(names, tool.Name)
	}
	return names
}

func newTestMCPServer() *server.MCPServer {
	return server.NewMCPServer("test", "1.0.0", server.WithToolCapabilities(true))
}
