// Command resume extracts structured fields from a sample resume with Claude.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/mbd888/ethagent/internal/config"
	"github.com/mbd888/ethagent/internal/extract"
	"github.com/mbd888/ethagent/internal/llm"
	"github.com/mbd888/ethagent/internal/logging"
)

const sampleResume = `
	John Doe
	john@example.com

	Experience:
	- Senior Developer at Tech Corp
	- Software Engineer at Code Inc
	- Junior Developer at Startup Ltd

	Skills:
	- Go
	- TypeScript
	- Python
`

func main() {
	cfg := config.LoadAgent()
	logger := logging.NewWithWriter(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	client, err := llm.New(cfg.AnthropicAPIKey,
		llm.WithBaseURL(cfg.AnthropicBaseURL),
		llm.WithModel(cfg.Model),
		llm.WithLogger(logger),
	)
	if err != nil {
		logger.Error("failed to create client", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	r, err := extract.ExtractResume(ctx, client, sampleResume)
	if err != nil {
		logger.Error("extraction failed", "error", err)
		os.Exit(1)
	}

	fmt.Println("Extracted Resume Information:")
	fmt.Printf("Name: %s\n", r.Name)
	fmt.Printf("Email: %s\n", r.Email)
	fmt.Println("\nExperience:")
	for _, exp := range r.Experience {
		fmt.Printf("- %s\n", exp)
	}
	fmt.Println("\nSkills:")
	for _, skill := range r.Skills {
		fmt.Printf("- %s\n", skill)
	}
}
