package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsDocumentationQuery(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"How do I calculate slippage for Uniswap V3?", true},
		{"What's the difference between exactInput and exactOutput?", true},
		{"Show me the SwapRouter contract interface", true},
		{"How does Uniswap V2 work?", true},
		{"What is the Uniswap router?", true},
		{"Tell me about Uniswap slippage", true},
		{"Show me Uniswap V2 documentation", true},
		{"Calculate slippage for Uniswap V3", true},
		{"What is the difference between V2 and V3?", true},
		{"How to handle Uniswap errors?", true},

		{"send 1 ETH from Alice to Bob", false},
		{"How much USDC does Alice have?", false},
		{"Is Uniswap V2 Router (0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D) deployed?", false},
		{"Is contract 0x1234567890123456789012345678901234567890 deployed?", false},
		{"Get the list of available accounts", false},
		{"swap 1 ETH for USDC", false},
		{"swap tokens", false},
		{"How do I swap 1 ETH for USDC?", false},
		{"search for current Ethereum price", false},
		{"Uniswap V2", false},
		{"slippage calculation", false},
		{"SwapRouter contract", false},
		{"Uniswap router factory", false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, IsDocumentationQuery(tt.input))
		})
	}
}

func TestIsGeneralQuestion(t *testing.T) {
	for _, in := range []string{
		"What tools do you have?",
		"How do you work?",
		"what can you do",
		"Tell me about yourself",
		"What is MCP?",
		"What is RAG?",
		"Help",
		"Explain Uniswap V3 pools",
	} {
		assert.True(t, IsGeneralQuestion(in), in)
	}
	for _, in := range []string{
		"send 1 ETH to Bob",
		"How much USDC does Alice have?",
		"How do I calculate slippage for Uniswap V3?",
		"Get the list of available accounts",
	} {
		assert.False(t, IsGeneralQuestion(in), in)
	}
}

func TestGeneralAnswer(t *testing.T) {
	assert.Equal(t, toolsAnswer, GeneralAnswer("What tools do you have?"))
	assert.Equal(t, toolsAnswer, GeneralAnswer("what are your capabilities"))
	assert.Equal(t, architectureAnswer, GeneralAnswer("How do you work?"))
	assert.Equal(t, architectureAnswer, GeneralAnswer("what are you"))
	assert.Equal(t, mcpAnswer, GeneralAnswer("What is MCP?"))
	assert.Equal(t, ragAnswer, GeneralAnswer("what is rag"))
	assert.Equal(t, defaultAnswer, GeneralAnswer("help"))
}
