package mcpserver

import (
	"context"
	"testing"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/ethagent/internal/chain/chaintest"
	"github.com/mbd888/ethagent/internal/metrics"
	"github.com/mbd888/ethagent/internal/realtime"
)

func counterValue(t *testing.T, labels ...string) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, metrics.ToolCallsTotal.WithLabelValues(labels...).Write(&m))
	return m.GetCounter().GetValue()
}

func newInProcessClient(t *testing.T, h *Handlers) *client.Client {
	t.Helper()
	c, err := client.NewInProcessClient(NewMCPServer(h))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	ctx := context.Background()
	require.NoError(t, c.Start(ctx))

	init := mcp.InitializeRequest{}
	init.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	init.Params.ClientInfo = mcp.Implementation{Name: "ethagent-test", Version: "0.0.1"}
	res, err := c.Initialize(ctx, init)
	require.NoError(t, err)
	assert.Equal(t, ServerName, res.ServerInfo.Name)
	assert.Equal(t, Instructions, res.Instructions)
	return c
}

func TestNewMCPServer_ListsAllTools(t *testing.T) {
	s := newTestSetup(t, "", nil)
	c := newInProcessClient(t, s.h)

	tools, err := c.ListTools(context.Background(), mcp.ListToolsRequest{})
	require.NoError(t, err)

	var names []string
	for _, tool := range tools.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{
		"balance", "send_eth", "is_contract_deployed", "token_balance",
		"get_accounts", "get_private_keys", "get_default_addresses",
		"swap_tokens", "check_transaction_status",
		"web_search", "get_token_price", "get_contract_info", "handle_swap_intent",
	}, names)
}

func TestNewMCPServer_CallToolInstrumented(t *testing.T) {
	s := newTestSetup(t, "", nil)
	c := newInProcessClient(t, s.h)

	okBefore := counterValue(t, "balance", "ok")
	errBefore := counterValue(t, "balance", "error")

	req := mcp.CallToolRequest{}
	req.Params.Name = "balance"
	req.Params.Arguments = map[string]any{"who": "alice"}
	res, err := c.CallTool(context.Background(), req)
	require.NoError(t, err)
	assert.Contains(t, resultText(t, res), "resolved to "+chaintest.Alice.Hex())

	req.Params.Arguments = map[string]any{"who": "nobody"}
	res, err = c.CallTool(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.IsError)

	assert.Equal(t, okBefore+1, counterValue(t, "balance", "ok"))
	assert.Equal(t, errBefore+1, counterValue(t, "balance", "error"))

	var calls []string
	for _, e := range s.events.events {
		if e.Type == realtime.EventToolCall {
			calls = append(calls, e.Tool)
		}
	}
	assert.Equal(t, []string{"balance:ok", "balance:error"}, calls)
}
