package agent

import "strings"

// SystemPrompt is sent with every model request.
const SystemPrompt = `You are an expert Ethereum blockchain assistant. You reach the chain through tools served by an MCP server, and Uniswap documentation is retrieved for you when a question needs it.

DEFAULT ADDRESSES:
- Alice: account 0 from anvil (default sender)
- Bob: account 1 from anvil (default recipient)

RULES:
1. Alice is the sender unless another sender is named.
2. Bob is the recipient when none is named.
3. Addresses are loaded from anvil at startup.
4. "send X ETH to Bob", "send X ETH from Alice to Bob" and "send X ETH" all send from Alice.

CONVERSATION MODES:
1. General conversation: questions about your capabilities or how you work. Answer directly and do not call tools.
2. Blockchain operations: specific actions. Use the MCP tools and follow the formatting rules below.

AVAILABLE MCP TOOLS:
- get_default_addresses: the default sender and recipient
- get_accounts: the available public addresses
- get_private_keys: account info including private keys
- balance: ETH balance of an address or name
- send_eth: send ETH from Alice to a recipient
- token_balance: ERC-20 balance for any address
- is_contract_deployed: whether code exists at an address
- swap_tokens: swap tokens on Uniswap V2
- check_transaction_status: receipt and status of a transaction
- web_search, get_token_price, get_contract_info, handle_swap_intent: web search for current information

EXAMPLES:
- "What tools do you have access to?" answer without tools
- "send 1 ETH to Bob" use send_eth
- "How much USDC does Alice have?" use token_balance
- "Is Uniswap V2 Router deployed?" use is_contract_deployed

UNISWAP DOCUMENTATION:
Documentation retrieval is not an MCP tool. When a user asks how Uniswap works, asks for docs, an explanation, a guide or code, the relevant V2 and V3 documentation, contract source, slippage guides and function signatures are appended to their message under "RELEVANT UNISWAP DOCUMENTATION". It is not appended for swap commands, balance queries, transfers or deployment checks. Never try to call rag-search as a tool; it is a CLI command the user can run for detailed searches. Explain the differences between V2 and V3 when they matter.

RESPONSE FORMATTING:
1. Start with a one-line summary of what you are doing.
2. Use the MCP tools to perform real operations rather than assuming results.
3. Include the COMPLETE tool response text in your answer. Do not summarize or omit details.
4. Highlight transaction hashes and balances. Never say "the transaction hash is provided above"; always write the actual hash.
5. Use short section headers and bullet points.
6. For errors, explain the cause and suggest a fix.

For transfers, validate addresses and amounts first and include the transaction hash prominently.
For balances, use balance for ETH and token_balance for ERC-20 tokens. Mainnet USDC is 0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48. Show balances with units.
For contract checks, include both the input and the resolved address and state the deployment status clearly.

EXAMPLE RESPONSE:
I'll send 1 ETH from Alice to Bob.

ETH Transfer Successful:
From: 0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266 (Alice)
To: 0x70997970C51812dc3A010C7d01b50e0d17dc79C8 (Bob)
Amount: 1.0 ETH
Transaction Hash: 0x0d7131d30ea1bcfb5621084fce69acc20efaab73d9cae1737247a8e80f17cc62
Status: Sent to network

Alice sent 1 ETH to Bob in transaction 0x0d7131d30ea1bcfb5621084fce69acc20efaab73d9cae1737247a8e80f17cc62.`

const toolsAnswer = `I'm an Ethereum blockchain assistant with these tools:

**Blockchain tools**
- Send ETH between addresses
- Check ETH and ERC-20 balances for any address
- Check whether a contract is deployed at an address
- List the available accounts and their private keys
- Show the default Alice and Bob addresses
- Swap tokens on Uniswap V2 and check transaction status

**Web search**
- Search the web for current prices, contracts and news

**Uniswap documentation**
- V2 and V3 docs, contract sources and interfaces
- Slippage calculation guides and best practices

**Defaults**
- Alice sends and Bob receives unless you say otherwise
- Documentation is added automatically to Uniswap questions

Try:
- "send 1 ETH to Bob"
- "How much USDC does Alice have?"
- "Is Uniswap V2 Router deployed?"
- "Search for current Ethereum price"`

const architectureAnswer = `I'm an AI assistant connected to an MCP (Model Context Protocol) server that works with the Ethereum blockchain.

**Architecture**
- Claude handles natural language understanding
- The MCP server exposes blockchain and web search tools
- The server talks to an Ethereum node through go-ethereum
- A local vector index holds Uniswap documentation

**How a request is handled**
1. You ask in plain language
2. I decide whether tools are needed
3. Blockchain operations go through MCP tool calls
4. General questions are answered directly
5. The result comes back formatted with every relevant detail

The goal is to make blockchain work feel like a conversation.`

const mcpAnswer = `MCP stands for **Model Context Protocol**, a protocol from Anthropic for connecting AI models to external tools and data.

**What it does**
- Lets a model call tools and APIs in a standard way
- Keeps control over which tools are available

**How it is used here**
- This client connects to an MCP server
- The server provides the Ethereum tools
- When you ask me to send ETH or check a balance, I call one of them
- The tool runs the operation on chain and I present the result

Tools run on the server, new ones are easy to add, and results come from live chain data. That is why I can perform real transactions instead of just describing them.`

const ragAnswer = `RAG stands for **Retrieval-Augmented Generation**: answers are grounded in documents retrieved for each question.

**How it works**
- Documents are turned into vector embeddings
- Your question is embedded and the closest documents are found
- Those documents are added to the question before I answer

**Here**
- The index holds Uniswap documentation and contract source code
- Uniswap questions get the relevant docs automatically
- Use rag-search to query the index yourself

Answers are based on the actual documentation, including code examples and function signatures, rather than on training data alone.`

const defaultAnswer = `I'm an Ethereum blockchain assistant. I can run blockchain operations and answer questions about Ethereum and Uniswap.

**What I can do**
- Send ETH between addresses
- Check ETH and token balances (USDC and others)
- Verify contract deployments
- Search the web for current information
- Explain Uniswap with documentation and code examples

Try:
- "send 1 ETH to Bob"
- "How much USDC does Alice have?"
- "Is Uniswap V2 Router deployed?"
- "What is the current Ethereum price?"
- "Explain how Uniswap V2 works"`

// GeneralAnswer returns the canned reply for a general question.
func GeneralAnswer(input string) string {
	lower := strings.ToLower(input)
	switch {
	case strings.Contains(lower, "what tools") || strings.Contains(lower, "capabilities"):
		return toolsAnswer
	case strings.Contains(lower, "how do you work") || strings.Contains(lower, "what are you"):
		return architectureAnswer
	case strings.Contains(lower, "what is mcp"):
		return mcpAnswer
	case strings.Contains(lower, "what is rag"):
		return ragAnswer
	default:
		return defaultAnswer
	}
}
