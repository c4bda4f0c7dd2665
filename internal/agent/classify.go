package agent

import "strings"

var generalPatterns = []string{
	"what tools do you have",
	"what can you do",
	"how do you work",
	"tell me about yourself",
	"what are your capabilities",
	"what are you",
	"who are you",
	"explain yourself",
	"help",
	"what is this",
	"how does this work",
	"what is mcp",
	"what is rag",
	"what is uniswap",
	"explain",
	"describe",
	"what does",
	"how to",
	"can you",
	"do you",
	"are you",
}

// IsGeneralQuestion reports whether input asks about the assistant itself
// and can be answered without tools.
func IsGeneralQuestion(input string) bool {
	lower := strings.ToLower(input)
	for _, p := range generalPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

var (
	docsKeywords  = []string{"docs", "documentation", "guide", "tutorial"}
	questionWords = []string{
		"how do i", "how to", "what is", "what's", "explain", "show me", "tell me",
		"describe", "what does", "difference between", "calculate", "compute",
	}
	uniswapTerms = []string{
		"uniswap", "slippage", "exactinput", "exactoutput", "router", "factory", "pair",
		"pool", "liquidity", "oracle", "flash", "callback", "multicall", "permit",
		"signature", "eip712", "deadline", "gas", "event", "error", "revert",
	}
	versionTerms = []string{"v2", "v3", "v4"}
)

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// IsDocumentationQuery reports whether input is a question about Uniswap
// that should be answered with retrieved documentation. Plain commands
// such as swaps, transfers and deployment checks are excluded.
func IsDocumentationQuery(input string) bool {
	lower := strings.ToLower(input)

	hasQuestionMark := strings.Contains(lower, "?")
	hasDocsKeyword := containsAny(lower, docsKeywords)
	hasQuestionWord := containsAny(lower, questionWords)

	questionFormat := hasQuestionMark || hasDocsKeyword || hasQuestionWord
	uniswapRelated := containsAny(lower, uniswapTerms) || containsAny(lower, versionTerms)

	simpleCommand := strings.Contains(lower, "swap") &&
		containsAny(lower, []string{"eth", "usdc", "token"}) &&
		!questionFormat
	deploymentCheck := strings.Contains(lower, "deployed") &&
		(strings.Contains(lower, "is") || strings.Contains(lower, "check")) &&
		!hasDocsKeyword && !hasQuestionWord
	simplePhrase := containsAny(lower, []string{"contract", "interface"}) &&
		!questionFormat &&
		len(strings.Fields(lower)) <= 3

	return questionFormat && uniswapRelated && !simpleCommand && !deploymentCheck && !simplePhrase
}
