package rag

// sampleDocs is the built-in fallback corpus used when no documentation has
// been fetched.
func sampleDocs() []Document {
	return []Document{
		NewDocument("uniswap-v2-router-swaps", "Uniswap V2 Router Swap Functions", TypeContractCode, sampleV2RouterSwaps,
			NewMetadata("contracts/UniswapV2Router02.sol", "v2", []string{"v2", "router", "swap", "contract"})),
		NewDocument("uniswap-slippage", "Calculating Slippage for Uniswap Swaps", TypeGuide, sampleSlippage,
			NewMetadata("guides/slippage.md", "v3", []string{"v2", "v3", "slippage", "guide"})),
		NewDocument("uniswap-v3-concentrated-liquidity", "Uniswap V3 Concentrated Liquidity", TypeExplanation, sampleV3Liquidity,
			NewMetadata("concepts/concentrated-liquidity.md", "v3", []string{"v3", "liquidity", "pool", "concept"})),
		NewDocument("uniswap-v2-pair-factory", "Uniswap V2 Pair and Factory", TypeContractCode, sampleV2PairFactory,
			NewMetadata("contracts/UniswapV2Factory.sol", "v2", []string{"v2", "pair", "factory", "contract"})),
	}
}

const sampleV2RouterSwaps = "# Uniswap V2 Router Swap Functions\n" +
	"\n" +
	"UniswapV2Router02 is deployed at 0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D on mainnet. " +
	"It routes trades through one or more pairs given by the path array.\n" +
	"\n" +
	"## swapExactTokensForTokens\n" +
	"\n" +
	"Swaps an exact amount of input tokens for as many output tokens as possible. " +
	"The transaction reverts if the output is below amountOutMin.\n" +
	"\n" +
	"```solidity\n" +
	"function swapExactTokensForTokens(\n" +
	"    uint amountIn,\n" +
	"    uint amountOutMin,\n" +
	"    address[] calldata path,\n" +
	"    address to,\n" +
	"    uint deadline\n" +
	") external returns (uint[] memory amounts);\n" +
	"```\n" +
	"\n" +
	"## swapExactETHForTokens\n" +
	"\n" +
	"Swaps an exact amount of ETH, sent as msg.value, for tokens. path[0] must be WETH.\n" +
	"\n" +
	"```solidity\n" +
	"function swapExactETHForTokens(uint amountOutMin, address[] calldata path, address to, uint deadline)\n" +
	"    external payable returns (uint[] memory amounts);\n" +
	"```\n" +
	"\n" +
	"## swapTokensForExactTokens\n" +
	"\n" +
	"Receives an exact amount of output tokens for as few input tokens as possible. " +
	"The transaction reverts if more than amountInMax would be spent.\n" +
	"\n" +
	"```solidity\n" +
	"function swapTokensForExactTokens(\n" +
	"    uint amountOut,\n" +
	"    uint amountInMax,\n" +
	"    address[] calldata path,\n" +
	"    address to,\n" +
	"    uint deadline\n" +
	") external returns (uint[] memory amounts);\n" +
	"```\n" +
	"\n" +
	"## getAmountsOut\n" +
	"\n" +
	"Given an input amount and a path, returns the output amount at every hop. " +
	"Use it to quote a trade before sending it.\n"

const sampleSlippage = "# Calculating Slippage for Uniswap Swaps\n" +
	"\n" +
	"Slippage tolerance bounds how far the executed price may move from the quoted price " +
	"between submitting a swap and its inclusion in a block.\n" +
	"\n" +
	"## Exact input swaps\n" +
	"\n" +
	"Quote the expected output, then set the minimum acceptable output:\n" +
	"\n" +
	"amountOutMin = expectedOut * (10000 - slippageBps) / 10000\n" +
	"\n" +
	"With a 0.5% tolerance (50 bps) and a quote of 2000 USDC, amountOutMin is 1990 USDC.\n" +
	"\n" +
	"## Exact output swaps\n" +
	"\n" +
	"Quote the required input, then cap what may be spent:\n" +
	"\n" +
	"amountInMax = expectedIn * (10000 + slippageBps) / 10000\n" +
	"\n" +
	"## V3 exactInput and exactOutput\n" +
	"\n" +
	"On the V3 SwapRouter the bounds are passed as amountOutMinimum for exactInput and " +
	"amountInMaximum for exactOutput. sqrtPriceLimitX96 can additionally stop a single-pool " +
	"swap at a price.\n" +
	"\n" +
	"```solidity\n" +
	"ISwapRouter.ExactInputSingleParams memory params = ISwapRouter.ExactInputSingleParams({\n" +
	"    tokenIn: WETH9,\n" +
	"    tokenOut: USDC,\n" +
	"    fee: 3000,\n" +
	"    recipient: msg.sender,\n" +
	"    deadline: block.timestamp + 300,\n" +
	"    amountIn: amountIn,\n" +
	"    amountOutMinimum: amountOutMin,\n" +
	"    sqrtPriceLimitX96: 0\n" +
	"});\n" +
	"```\n" +
	"\n" +
	"Always pair a slippage bound with a deadline so a stale transaction cannot execute later.\n"

const sampleV3Liquidity = "# Uniswap V3 Concentrated Liquidity\n" +
	"\n" +
	"In V3, liquidity providers choose a price range [tickLower, tickUpper] for their capital. " +
	"Liquidity is only active, and only earns fees, while the pool price is inside that range.\n" +
	"\n" +
	"## Ticks\n" +
	"\n" +
	"Prices are discretized into ticks where price = 1.0001^tick. Each fee tier has a tick " +
	"spacing: 10 for 0.05%, 60 for 0.3% and 200 for 1%.\n" +
	"\n" +
	"## Positions\n" +
	"\n" +
	"Positions are non-fungible and are managed through the NonfungiblePositionManager.\n" +
	"\n" +
	"```solidity\n" +
	"function mint(MintParams calldata params)\n" +
	"    external payable returns (uint256 tokenId, uint128 liquidity, uint256 amount0, uint256 amount1);\n" +
	"```\n" +
	"\n" +
	"## Fee tiers\n" +
	"\n" +
	"Pools exist per token pair and fee tier (0.05%, 0.3%, 1%). The factory deploys one pool " +
	"for each combination.\n"

const sampleV2PairFactory = "# Uniswap V2 Pair and Factory\n" +
	"\n" +
	"The UniswapV2Factory deploys one UniswapV2Pair per token pair and keeps a registry of them. " +
	"The mainnet factory is 0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f.\n" +
	"\n" +
	"```solidity\n" +
	"function createPair(address tokenA, address tokenB) external returns (address pair);\n" +
	"function getPair(address tokenA, address tokenB) external view returns (address pair);\n" +
	"```\n" +
	"\n" +
	"## Pair reserves\n" +
	"\n" +
	"Each pair holds reserves of token0 and token1 and enforces the constant product x * y = k. " +
	"A 0.3% fee is charged on every swap and accrues to liquidity providers.\n" +
	"\n" +
	"```solidity\n" +
	"function getReserves() external view returns (uint112 reserve0, uint112 reserve1, uint32 blockTimestampLast);\n" +
	"function swap(uint amount0Out, uint amount1Out, address to, bytes calldata data) external;\n" +
	"```\n" +
	"\n" +
	"## Price oracle\n" +
	"\n" +
	"price0CumulativeLast and price1CumulativeLast accumulate prices each block and back a " +
	"time-weighted average price oracle.\n"
