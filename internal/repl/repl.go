// Package repl is the interactive terminal front end of the agent.
package repl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mbd888/ethagent/internal/rag"
)

// Prompt is printed before each input line.
const Prompt = "🤖 > "

// searchResults is how many hits rag-search prints.
const searchResults = 3

const previewLen = 200

const rule = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"

// Agent is what the REPL drives. *agent.Agent implements it.
type Agent interface {
	ProcessCommand(ctx context.Context, input string) (string, error)
	TestConnection(ctx context.Context) (string, error)
	InitializeRAG(ctx context.Context, docsPath string) error
	SearchDocumentation(ctx context.Context, query string, limit int) ([]rag.Result, error)
	RAGStatus() (string, bool)
}

type styles struct {
	title  lipgloss.Style
	header lipgloss.Style
	ok     lipgloss.Style
	err    lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		title:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("#8BC34A")),
		header: r.NewStyle().Bold(true),
		ok:     r.NewStyle().Foreground(lipgloss.Color("#8BC34A")),
		err:    r.NewStyle().Foreground(lipgloss.Color("#e53935")),
	}
}

// REPL reads commands line by line and prints the agent's answers.
type REPL struct {
	agent  Agent
	in     io.Reader
	out    io.Writer
	logger *slog.Logger
	st     styles
}

// Option configures a REPL.
type Option func(*REPL)

// WithLogger sets the logger used for failures.
func WithLogger(l *slog.Logger) Option {
	return func(r *REPL) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a REPL over in and out. Styling is disabled when out is not
// a terminal.
func New(a Agent, in io.Reader, out io.Writer, opts ...Option) *REPL {
	r := &REPL{
		agent:  a,
		in:     in,
		out:    out,
		logger: slog.Default(),
		st:     newStyles(lipgloss.NewRenderer(out)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run prints the banner and serves commands until quit, EOF or ctx is done.
// Cancelling ctx returns even while a read is pending.
func (r *REPL) Run(ctx context.Context) error {
	r.banner()

	lines := make(chan string)
	errc := make(chan error, 1)
	stop := make(chan struct{})
	defer close(stop)
	go r.scan(lines, errc, stop)

	for {
		if ctx.Err() != nil {
			r.println("Goodbye!")
			return nil
		}
		fmt.Fprint(r.out, Prompt)

		var text string
		select {
		case <-ctx.Done():
			r.println("\nGoodbye!")
			return nil
		case t, ok := <-lines:
			if !ok {
				if err := <-errc; err != nil {
					return fmt.Errorf("read input: %w", err)
				}
				r.println("\nGoodbye!")
				return nil
			}
			text = t
		}

		input := strings.TrimSpace(text)
		if input == "" {
			continue
		}
		if !r.handle(ctx, input) {
			r.println("Goodbye!")
			return nil
		}
	}
}

// scan feeds input lines to lines until EOF or stop is closed. The scan
// error, possibly nil, is sent on errc before lines is closed.
func (r *REPL) scan(lines chan<- string, errc chan<- error, stop <-chan struct{}) {
	scanner := bufio.NewScanner(r.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		select {
		case lines <- scanner.Text():
		case <-stop:
			return
		}
	}
	errc <- scanner.Err()
	close(lines)
}

// handle runs one command. It returns false when the user asked to quit.
func (r *REPL) handle(ctx context.Context, input string) bool {
	lower := strings.ToLower(input)
	switch {
	case lower == "quit" || lower == "exit" || lower == "q":
		return false
	case lower == "help" || lower == "h":
		r.help()
	case lower == "test" || lower == "test-connection":
		r.testConnection(ctx)
	case strings.HasPrefix(lower, "rag-init"):
		r.ragInit(ctx, input)
	case strings.HasPrefix(lower, "rag-search"):
		r.ragSearch(ctx, input)
	case lower == "rag-status":
		r.ragStatus()
	default:
		r.process(ctx, input)
	}
	return true
}

func (r *REPL) testConnection(ctx context.Context) {
	out, err := r.agent.TestConnection(ctx)
	if err != nil {
		r.logger.Error("connection test failed", "error", err)
		r.println(r.st.err.Render("Connection test failed: "+err.Error()) + "\n")
		return
	}
	r.println(out + "\n")
}

func (r *REPL) ragInit(ctx context.Context, input string) {
	var path string
	if fields := strings.Fields(input); len(fields) > 1 {
		path = fields[1]
	}
	if err := r.agent.InitializeRAG(ctx, path); err != nil {
		r.logger.Error("RAG initialization failed", "error", err)
		r.println(r.st.err.Render("RAG initialization failed: "+err.Error()) + "\n")
		return
	}
	r.println(r.st.ok.Render("RAG system initialized successfully!") + "\n")
}

func (r *REPL) ragSearch(ctx context.Context, input string) {
	fields := strings.Fields(input)
	if len(fields) < 2 {
		r.println(r.st.err.Render("Usage: rag-search [query]") + "\n")
		return
	}
	query := strings.Join(fields[1:], " ")

	results, err := r.agent.SearchDocumentation(ctx, query, searchResults)
	if err != nil {
		r.logger.Error("RAG search failed", "error", err)
		r.println(r.st.err.Render("RAG search failed: "+err.Error()) + "\n")
		return
	}

	r.println(r.st.header.Render(fmt.Sprintf("Search results for '%s':", query)) + "\n")
	for _, res := range results {
		r.println(fmt.Sprintf("Score: %.3f | ID: %s", res.Score, res.ID))
		r.println("Title: " + res.Doc.Title)
		r.println("Tags: " + strings.Join(res.Doc.Metadata.Tags, ", "))
		r.println("Content preview: " + preview(res.Doc.Content))
		r.println(rule + "\n")
	}
}

func (r *REPL) ragStatus() {
	status, ok := r.agent.RAGStatus()
	if !ok {
		r.println(r.st.err.Render("RAG system not initialized. Use 'rag-init' to initialize.") + "\n")
		return
	}
	r.println(status + "\n")
}

func (r *REPL) process(ctx context.Context, input string) {
	resp, err := r.agent.ProcessCommand(ctx, input)
	if err != nil {
		r.logger.Error("error processing command", "error", err)
		r.println(r.st.err.Render("Sorry, I encountered an error: "+err.Error()) + "\n")
		return
	}
	fmt.Fprint(r.out, FormatResponse(resp))
}

func preview(s string) string {
	runes := []rune(s)
	if len(runes) <= previewLen {
		return s
	}
	return string(runes[:previewLen]) + "..."
}

// keyLines are followed by a blank line in formatted responses.
var keyLines = []string{
	"Transaction Hash:", "Status:", "Balance:", "Contract Deployment Check:", "Token Balance:",
}

// FormatResponse frames an agent answer between rules with each line
// indented by two spaces.
func FormatResponse(resp string) string {
	var b strings.Builder
	b.WriteString("Response:\n")
	b.WriteString(rule + "\n")

	lines := strings.Split(resp, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if i < len(lines)-1 {
				b.WriteString("\n")
			}
			continue
		}
		b.WriteString("  " + trimmed + "\n")
		for _, key := range keyLines {
			if strings.Contains(trimmed, key) {
				b.WriteString("\n")
				break
			}
		}
	}

	b.WriteString(rule + "\n")
	b.WriteString("\n")
	return b.String()
}

func (r *REPL) println(s string) {
	fmt.Fprintln(r.out, s)
}

func (r *REPL) banner() {
	r.println("")
	r.println(r.st.title.Render("Ethereum AI Agent Ready!"))
	r.println("Try these commands:")
	for _, ex := range examples {
		r.println("   • " + ex)
	}
	r.println("   • Type 'quit' or 'exit' to stop")
	r.println("")
	r.println(r.st.header.Render("RAG System Commands:"))
	r.println("   • rag-init [path] - Initialize RAG system with documentation")
	r.println("   • rag-search [query] - Search Uniswap documentation")
	r.println("   • rag-status - Show RAG system status")
	r.println("   • Type 'help' for more commands")
	r.println("")
}

var examples = []string{
	"send 1 ETH from Alice to Bob",
	"send 0.5 ETH to Bob",
	"How much USDC does Alice have?",
	"Is Uniswap V2 Router (0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D) deployed?",
}

const helpText = `  Core Operations:
    • send [amount] ETH from [sender] to [recipient]
    • send [amount] ETH to [recipient] (Alice is default sender)
    • How much [token] does [address] have?
    • Is [contract name] deployed?

  RAG System:
    • rag-init [path] - Initialize RAG system with documentation
    • rag-search [query] - Search Uniswap documentation
    • rag-status - Show RAG system status

  Additional Operations:
    • Get default addresses (Alice/Bob configuration)
    • Get list of available accounts
    • Check account private keys

  General:
    • help, h - Show this help
    • test, test-connection - Test MCP connection
    • quit, exit, q - Exit the program

  RAG Examples:
    • rag-init
    • rag-search How do I calculate slippage for Uniswap V3?
    • rag-search What's the difference between exactInput and exactOutput?
    • rag-search Show me the SwapRouter contract interface

  Default Addresses:
    • Alice: Account 0 from anvil (Default Sender)
    • Bob: Account 1 from anvil (Default Recipient)
`

func (r *REPL) help() {
	r.println("")
	r.println(r.st.header.Render("Available Commands:"))
	r.println(helpText)
}
