package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Blockchain tools.

var ToolBalance = mcp.NewTool("balance",
	mcp.WithDescription("Get the ETH balance of an account. Accepts a hex address, an ENS name, alice, bob or account0-account9."),
	mcp.WithString("who",
		mcp.Required(),
		mcp.Description("Address, ENS name or account alias"),
	),
)

var ToolSendETH = mcp.NewTool("send_eth",
	mcp.WithDescription("Send ETH from Alice to another address - NOTE: Requires private key access"),
	mcp.WithString("to",
		mcp.Required(),
		mcp.Description("Recipient: hex address, ENS name, alice, bob or account0-account9"),
	),
	mcp.WithString("amount",
		mcp.Required(),
		mcp.Description("Amount in ETH, e.g. \"0.5\""),
	),
)

var ToolIsContractDeployed = mcp.NewTool("is_contract_deployed",
	mcp.WithDescription("Check if a contract is deployed at the specified address"),
	mcp.WithString("address",
		mcp.Required(),
		mcp.Description("Contract address or ENS name"),
	),
)

var ToolTokenBalance = mcp.NewTool("token_balance",
	mcp.WithDescription("Get ERC-20 token balance (e.g., USDC) for an account"),
	mcp.WithString("token_address",
		mcp.Required(),
		mcp.Description("Token contract address or a known symbol (WETH, USDC, USDT, DAI, LINK, UNI)"),
	),
	mcp.WithString("account_address",
		mcp.Required(),
		mcp.Description("Account to query: hex address, ENS name or account alias"),
	),
)

var ToolGetAccounts = mcp.NewTool("get_accounts",
	mcp.WithDescription("Get list of all available anvil accounts with their addresses"),
)

var ToolGetPrivateKeys = mcp.NewTool("get_private_keys",
	mcp.WithDescription("Get list of all available anvil accounts - Private keys loaded from environment"),
)

var ToolGetDefaultAddresses = mcp.NewTool("get_default_addresses",
	mcp.WithDescription("Get the default sender (Alice) and recipient (Bob) addresses"),
)

var ToolSwapTokens = mcp.NewTool("swap_tokens",
	mcp.WithDescription("Swap tokens using Uniswap V2 Router - integrates with search API to find contract addresses"),
	mcp.WithString("from_token",
		mcp.Required(),
		mcp.Description("Token to sell, normally ETH"),
	),
	mcp.WithString("to_token",
		mcp.Required(),
		mcp.Description("Token to buy, e.g. USDC"),
	),
	mcp.WithString("amount",
		mcp.Required(),
		mcp.Description("Amount of from_token to sell, e.g. \"1\""),
	),
	mcp.WithString("dex",
		mcp.Description("DEX name (default: Uniswap V2)"),
	),
	mcp.WithString("slippage",
		mcp.Description("Slippage tolerance in basis points, e.g. \"500\" for 5%"),
	),
)

var ToolCheckTransactionStatus = mcp.NewTool("check_transaction_status",
	mcp.WithDescription("Check the status of a transaction by hash - returns success/failure and receipt details"),
	mcp.WithString("tx_hash",
		mcp.Required(),
		mcp.Description("Transaction hash (0x + 64 hex characters)"),
	),
	mcp.WithNumber("timeout",
		mcp.Description("Seconds to wait for a pending transaction (default: 30)"),
	),
)

// Search tools.

var ToolWebSearch = mcp.NewTool("web_search",
	mcp.WithDescription("Search the web using Brave Search API"),
	mcp.WithString("query",
		mcp.Required(),
		mcp.Description("Search query"),
	),
	mcp.WithNumber("count",
		mcp.Description("Number of results (default: 10, max: 20)"),
	),
	mcp.WithString("country",
		mcp.Description("Country code (default: us)"),
	),
	mcp.WithString("search_lang",
		mcp.Description("Search language (default: en)"),
	),
)

var ToolGetTokenPrice = mcp.NewTool("get_token_price",
	mcp.WithDescription("Get current token price information"),
	mcp.WithString("token",
		mcp.Required(),
		mcp.Description("Token symbol or name"),
	),
	mcp.WithString("base_currency",
		mcp.Description("Quote currency (default: USD)"),
	),
)

var ToolGetContractInfo = mcp.NewTool("get_contract_info",
	mcp.WithDescription("Search for smart contract information"),
	mcp.WithString("contract",
		mcp.Required(),
		mcp.Description("Contract or protocol name, e.g. \"Uniswap V2 Router\""),
	),
	mcp.WithString("network",
		mcp.Description("Network (default: ethereum)"),
	),
)

var ToolHandleSwapIntent = mcp.NewTool("handle_swap_intent",
	mcp.WithDescription("Handle swap intent by searching for DEX contracts and token prices"),
	mcp.WithString("from_token",
		mcp.Required(),
		mcp.Description("Token to sell"),
	),
	mcp.WithString("to_token",
		mcp.Required(),
		mcp.Description("Token to buy"),
	),
	mcp.WithString("amount",
		mcp.Required(),
		mcp.Description("Amount to sell"),
	),
	mcp.WithString("dex",
		mcp.Description("DEX name (default: Uniswap V2)"),
	),
)

// AllTools lists every tool in registration order.
var AllTools = []mcp.Tool{
	ToolBalance,
	ToolSendETH,
	ToolIsContractDeployed,
	ToolTokenBalance,
	ToolGetAccounts,
	ToolGetPrivateKeys,
	ToolGetDefaultAddresses,
	ToolSwapTokens,
	ToolCheckTransactionStatus,
	ToolWebSearch,
	ToolGetTokenPrice,
	ToolGetContractInfo,
	ToolHandleSwapIntent,
}
