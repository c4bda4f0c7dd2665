package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// ClientName identifies this client to the MCP server.
const ClientName = "rig-blockchain-client"

// ClientVersion is reported during initialization.
const ClientVersion = "1.0.0"

// ConnectMCP opens a streamable HTTP session with the server at url and
// completes the initialize handshake.
func ConnectMCP(ctx context.Context, url string) (*client.Client, error) {
	c, err := client.NewStreamableHttpClient(url)
	if err != nil {
		return nil, newError(KindMCPConnection, fmt.Errorf("failed to create MCP client: %w", err))
	}
	if err := Initialize(ctx, c); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// Initialize starts c and performs the initialize handshake.
func Initialize(ctx context.Context, c *client.Client) error {
	if err := c.Start(ctx); err != nil {
		return newError(KindMCPConnection, fmt.Errorf("failed to start MCP client: %w", err))
	}

	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: ClientName, Version: ClientVersion}
	req.Params.Capabilities = mcp.ClientCapabilities{}

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := c.Initialize(initCtx, req); err != nil {
		return newError(KindMCPConnection, fmt.Errorf("failed to connect to MCP server: %w", err))
	}
	return nil
}
