// Package mcpserver exposes Ethereum and web search tools over the Model
// Context Protocol.
package mcpserver

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mbd888/ethagent/internal/metrics"
	"github.com/mbd888/ethagent/internal/traces"
)

const (
	ServerName    = "ethagent"
	ServerVersion = "1.0.0"

	Instructions = "Combined MCP server providing both blockchain operations and web search capabilities. " +
		"Includes Ethereum blockchain tools and Brave Search API integration."
)

// NewMCPServer creates an MCP server with every tool registered.
func NewMCPServer(h *Handlers) *server.MCPServer {
	s := server.NewMCPServer(ServerName, ServerVersion,
		server.WithToolCapabilities(true),
		server.WithInstructions(Instructions),
		server.WithRecovery(),
	)

	handlers := map[string]server.ToolHandlerFunc{
		ToolBalance.Name:                h.HandleBalance,
		ToolSendETH.Name:                h.HandleSendETH,
		ToolIsContractDeployed.Name:     h.HandleIsContractDeployed,
		ToolTokenBalance.Name:           h.HandleTokenBalance,
		ToolGetAccounts.Name:            h.HandleGetAccounts,
		ToolGetPrivateKeys.Name:         h.HandleGetPrivateKeys,
		ToolGetDefaultAddresses.Name:    h.HandleGetDefaultAddresses,
		ToolSwapTokens.Name:             h.HandleSwapTokens,
		ToolCheckTransactionStatus.Name: h.HandleCheckTransactionStatus,
		ToolWebSearch.Name:              h.HandleWebSearch,
		ToolGetTokenPrice.Name:          h.HandleGetTokenPrice,
		ToolGetContractInfo.Name:        h.HandleGetContractInfo,
		ToolHandleSwapIntent.Name:       h.HandleSwapIntent,
	}
	for _, tool := range AllTools {
		s.AddTool(tool, h.instrument(tool.Name, handlers[tool.Name]))
	}

	return s
}

// instrument wraps a handler with metrics, a span, a log line and a
// tool_call event.
func (h *Handlers) instrument(name string, next server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx, span := traces.StartSpan(ctx, "mcp."+name, traces.Tool(name))
		start := time.Now()

		res, err := next(ctx, req)

		took := time.Since(start)
		result := "ok"
		if err != nil || (res != nil && res.IsError) {
			result = "error"
		}
		metrics.ToolCallsTotal.WithLabelValues(name, result).Inc()
		metrics.ToolCallDuration.WithLabelValues(name).Observe(took.Seconds())
		traces.End(span, err)

		h.logger.Debug("tool call", "tool", name, "result", result, "took", took)
		h.events.PublishToolCall(name, result, took)
		return res, err
	}
}
