// Package agent drives Claude with the MCP server's tools and augments
// Uniswap questions with retrieved documentation.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mbd888/ethagent/internal/embedding"
	"github.com/mbd888/ethagent/internal/ingest"
	"github.com/mbd888/ethagent/internal/llm"
	"github.com/mbd888/ethagent/internal/rag"
	"github.com/mbd888/ethagent/internal/traces"
)

const (
	// MaxToolRounds bounds tool-use round trips per command.
	MaxToolRounds = 5
	Temperature   = 0.1
	MaxTokens     = 4096
)

// RequiredTools must be served for the core commands to work.
var RequiredTools = []string{
	"send_eth", "token_balance", "is_contract_deployed",
	"get_accounts", "get_private_keys", "get_default_addresses",
}

// Model generates replies. *llm.Client implements it.
type Model interface {
	CreateMessage(ctx context.Context, req llm.MessageRequest) (*llm.MessageResponse, error)
}

// ToolClient lists and calls MCP tools. *client.Client implements it.
type ToolClient interface {
	ListTools(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// Agent is a Claude conversation step wired to MCP tools.
type Agent struct {
	model  Model
	tools  ToolClient
	defs   []llm.Tool
	name   string
	logger *slog.Logger

	engine   embedding.Engine
	store    ingest.Store
	docsPath string

	mu  sync.RWMutex
	rag *rag.System
}

// Option configures an Agent.
type Option func(*Agent)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(a *Agent) { a.logger = l } }

// WithModelName overrides the model sent with each request.
func WithModelName(name string) Option { return func(a *Agent) { a.name = name } }

// WithEmbedding sets the engine InitializeRAG indexes with.
func WithEmbedding(e embedding.Engine) Option { return func(a *Agent) { a.engine = e } }

// WithDocStore sets where InitializeRAG stores ingested documents.
func WithDocStore(s ingest.Store) Option { return func(a *Agent) { a.store = s } }

// WithDocsPath sets the directory InitializeRAG reads when given none.
func WithDocsPath(p string) Option { return func(a *Agent) { a.docsPath = p } }

// WithRAG installs an already loaded RAG system.
func WithRAG(s *rag.System) Option { return func(a *Agent) { a.rag = s } }

// New lists the server's tools and prepares them for the model. Missing
// required tools are logged, not fatal.
func New(ctx context.Context, model Model, tools ToolClient, opts ...Option) (*Agent, error) {
	a := &Agent{
		model:  model,
		tools:  tools,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.engine == nil {
		a.engine = embedding.NewHashEngine(0)
	}
	if a.store == nil {
		a.store = ingest.NewMemoryStore()
	}

	res, err := tools.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, newError(KindMCPConnection, fmt.Errorf("failed to fetch tools from MCP server: %w", err))
	}
	a.logger.Info("retrieved tools from MCP server", "count", len(res.Tools))

	available := make(map[string]bool, len(res.Tools))
	for _, t := range res.Tools {
		available[t.Name] = true
		def, err := toolDefinition(t)
		if err != nil {
			return nil, newError(KindMCPConnection, err)
		}
		a.defs = append(a.defs, def)
		a.logger.Debug("available tool", "tool", t.Name)
	}
	for _, name := range RequiredTools {
		if !available[name] {
			a.logger.Warn("required tool not found in MCP server", "tool", name)
		}
	}
	return a, nil
}

func toolDefinition(t mcp.Tool) (llm.Tool, error) {
	schema := t.RawInputSchema
	if len(schema) == 0 {
		b, err := json.Marshal(t.InputSchema)
		if err != nil {
			return llm.Tool{}, fmt.Errorf("marshal schema for %s: %w", t.Name, err)
		}
		schema = b
	}
	return llm.Tool{Name: t.Name, Description: t.Description, InputSchema: schema}, nil
}

// Tools returns the tool definitions offered to the model.
func (a *Agent) Tools() []llm.Tool {
	return append([]llm.Tool(nil), a.defs...)
}

// ProcessCommand answers one user request.
func (a *Agent) ProcessCommand(ctx context.Context, input string) (out string, err error) {
	ctx, span := traces.StartSpan(ctx, "agent.ProcessCommand")
	defer func() { traces.End(span, err) }()

	if IsGeneralQuestion(input) {
		a.logger.Debug("answering general question", "input", input)
		return GeneralAnswer(input), nil
	}

	prompt := input
	if IsDocumentationQuery(input) && a.ragSystem() != nil {
		enhanced, err := a.enhanceWithRAG(ctx, input)
		if err != nil {
			a.logger.Warn("failed to enhance query with RAG, using original query", "error", err)
		} else {
			prompt = enhanced
		}
	}

	out, err = a.run(ctx, prompt)
	if err != nil {
		return "", newError(KindClaudeAPI, fmt.Errorf("failed to process command with Claude: %w", err))
	}
	return out, nil
}

func (a *Agent) run(ctx context.Context, prompt string) (string, error) {
	messages := []llm.Message{llm.UserText(prompt)}
	var last string

	for round := 0; ; round++ {
		resp, err := a.model.CreateMessage(ctx, llm.MessageRequest{
			Model:       a.name,
			System:      SystemPrompt,
			Messages:    messages,
			Tools:       a.defs,
			MaxTokens:   MaxTokens,
			Temperature: llm.Float(Temperature),
		})
		if err != nil {
			return "", err
		}
		if text := resp.Text(); text != "" {
			last = text
		}

		uses := resp.ToolUses()
		if len(uses) == 0 {
			return last, nil
		}
		if round == MaxToolRounds {
			a.logger.Warn("tool round limit reached", "rounds", MaxToolRounds)
			return strings.TrimSpace(last + fmt.Sprintf("\n\n(Stopped after %d tool rounds.)", MaxToolRounds)), nil
		}

		messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: resp.Content})
		results := make([]llm.ContentBlock, 0, len(uses))
		for _, use := range uses {
			results = append(results, a.callTool(ctx, use))
		}
		messages = append(messages, llm.Message{Role: llm.RoleUser, Content: results})
	}
}

// callTool runs one tool_use through MCP. Failures are reported back to the
// model as error results.
func (a *Agent) callTool(ctx context.Context, use llm.ContentBlock) llm.ContentBlock {
	var args map[string]any
	if len(use.Input) > 0 {
		if err := json.Unmarshal(use.Input, &args); err != nil {
			return llm.ToolResultBlock(use.ID, "invalid tool input: "+err.Error(), true)
		}
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = use.Name
	req.Params.Arguments = args

	a.logger.Debug("calling MCP tool", "tool", use.Name)
	res, err := a.tools.CallTool(ctx, req)
	if err != nil {
		a.logger.Warn("MCP tool call failed", "tool", use.Name, "error", err)
		return llm.ToolResultBlock(use.ID, "tool call failed: "+err.Error(), true)
	}
	return llm.ToolResultBlock(use.ID, resultText(res), res.IsError)
}

func resultText(res *mcp.CallToolResult) string {
	var parts []string
	for _, c := range res.Content {
		switch tc := c.(type) {
		case mcp.TextContent:
			parts = append(parts, tc.Text)
		case *mcp.TextContent:
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// TestConnection runs a simple tool-backed command.
func (a *Agent) TestConnection(ctx context.Context) (string, error) {
	out, err := a.ProcessCommand(ctx, "Get the list of available accounts")
	if err != nil {
		return "", err
	}
	a.logger.Info("MCP connection test successful")
	return "Connection test successful. Available accounts:\n" + out, nil
}
