package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mbd888/ethagent/internal/search"
)

// HandleWebSearch runs a Brave web search.
func (h *Handlers) HandleWebSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if res := h.requireSearch(); res != nil {
		return res, nil
	}
	q := search.Query{
		Q:       req.GetString("query", ""),
		Count:   req.GetInt("count", 0),
		Country: req.GetString("country", ""),
		Lang:    req.GetString("search_lang", ""),
	}
	resp, err := h.search.Search(ctx, q)
	return jsonResult(resp, err)
}

// HandleGetTokenPrice searches for a token's current price.
func (h *Handlers) HandleGetTokenPrice(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if res := h.requireSearch(); res != nil {
		return res, nil
	}
	token := req.GetString("token", "")
	if token == "" {
		return mcp.NewToolResultError("token is required"), nil
	}
	resp, err := h.search.TokenPrice(ctx, token, req.GetString("base_currency", ""))
	return jsonResult(resp, err)
}

// HandleGetContractInfo searches for a contract's address and documentation.
func (h *Handlers) HandleGetContractInfo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if res := h.requireSearch(); res != nil {
		return res, nil
	}
	contract := req.GetString("contract", "")
	if contract == "" {
		return mcp.NewToolResultError("contract is required"), nil
	}
	resp, err := h.search.ContractInfo(ctx, contract, req.GetString("network", ""))
	return jsonResult(resp, err)
}

// HandleSwapIntent researches the router and price for a prospective swap.
func (h *Handlers) HandleSwapIntent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if res := h.requireSearch(); res != nil {
		return res, nil
	}
	from := req.GetString("from_token", "")
	to := req.GetString("to_token", "")
	amount := req.GetString("amount", "")
	if from == "" || to == "" || amount == "" {
		return mcp.NewToolResultError("from_token, to_token and amount are required"), nil
	}
	intent, err := h.search.SwapIntent(ctx, from, to, amount, req.GetString("dex", ""))
	return jsonResult(intent, err)
}

func (h *Handlers) requireSearch() *mcp.CallToolResult {
	if h.search == nil || !h.search.Enabled() {
		return mcp.NewToolResultError(search.ErrMissingAPIKey.Error())
	}
	return nil
}

func jsonResult(v any, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Search failed: %v", err)), nil
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to serialize response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}
