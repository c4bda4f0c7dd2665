package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mbd888/ethagent/internal/metrics"
	"github.com/mbd888/ethagent/internal/traces"
	"github.com/mbd888/ethagent/internal/units"
)

// UniswapV2Router is the mainnet Router02 address.
var UniswapV2Router = common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D")

// SwapRequest asks for amount of FromToken (in ETH units) to be swapped.
type SwapRequest struct {
	FromToken   string
	ToToken     string
	Amount      string
	SlippageBps int64 // negative selects the service default
}

// SwapResult describes a broadcast swapExactETHForTokens call.
type SwapResult struct {
	Tx           *TxResult
	Router       common.Address
	Path         []common.Address
	AmountIn     *big.Int
	AmountOutMin *big.Int
	Quoted       bool // AmountOutMin derived from getAmountsOut
	Deadline     *big.Int
	SlippageBps  int64
}

// Swap sends ETH to the Uniswap V2 router for ToToken. The minimum output is
// the router quote less the slippage tolerance, or zero when the quote fails.
func (s *Service) Swap(ctx context.Context, req SwapRequest) (*SwapResult, error) {
	ctx, span := traces.StartSpan(ctx, "chain.Swap", traces.Amount(req.Amount))
	var err error
	defer func() { traces.End(span, err) }()

	if !s.HasPrivateKey() {
		err = ErrNoPrivateKey
		return nil, err
	}

	from, err := TokenAddress(req.FromToken)
	if err != nil {
		return nil, err
	}
	if from != knownTokens["WETH"] {
		err = fmt.Errorf("%w: swaps must start from ETH or WETH, got %s", ErrUnknownToken, req.FromToken)
		return nil, err
	}
	to, err := TokenAddress(req.ToToken)
	if err != nil {
		return nil, err
	}

	amountIn, perr := units.ParseEther(req.Amount)
	if perr != nil {
		err = fmt.Errorf("%w: %v", ErrInvalidAmount, perr)
		return nil, err
	}
	if amountIn.Sign() == 0 {
		err = fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
		return nil, err
	}

	bps := req.SlippageBps
	if bps < 0 {
		bps = s.slippageBps
	}

	path := []common.Address{from, to}
	res := &SwapResult{
		Router:       UniswapV2Router,
		Path:         path,
		AmountIn:     amountIn,
		AmountOutMin: new(big.Int),
		SlippageBps:  bps,
		Deadline:     big.NewInt(s.now().Unix() + s.deadlineSecs),
	}

	if quote, qerr := s.QuoteAmountsOut(ctx, amountIn, path); qerr == nil {
		res.AmountOutMin = units.BasisPoints(quote, bps)
		res.Quoted = true
	}

	data, err := s.router.Pack("swapExactETHForTokens", res.AmountOutMin, path, s.Alice(), res.Deadline)
	if err != nil {
		err = fmt.Errorf("failed to pack swap call: %w", err)
		return nil, err
	}

	res.Tx, err = s.sendTx(ctx, UniswapV2Router, amountIn, data, DefaultSwapGas)
	if err != nil {
		return nil, err
	}
	metrics.TransactionsSentTotal.WithLabelValues("swap").Inc()
	span.SetAttributes(traces.TxHash(res.Tx.Hash.Hex()))
	return res, nil
}

// QuoteAmountsOut returns the router's output amount for the last hop.
func (s *Service) QuoteAmountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) (*big.Int, error) {
	data, err := s.router.Pack("getAmountsOut", amountIn, path)
	if err != nil {
		return nil, err
	}
	out, err := s.call(ctx, UniswapV2Router, data)
	if err != nil {
		return nil, err
	}
	vals, err := s.router.Unpack("getAmountsOut", out)
	if err != nil {
		return nil, err
	}
	amounts, ok := vals[0].([]*big.Int)
	if !ok || len(amounts) == 0 {
		return nil, fmt.Errorf("unexpected getAmountsOut result")
	}
	return amounts[len(amounts)-1], nil
}
