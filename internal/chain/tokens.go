package chain

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mbd888/ethagent/internal/units"
)

// Mainnet token addresses. ETH maps to WETH for router paths.
var knownTokens = map[string]common.Address{
	"ETH":  common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"),
	"WETH": common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"),
	"USDC": common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"),
	"USDT": common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7"),
	"DAI":  common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F"),
	"LINK": common.HexToAddress("0x514910771AF9Ca656af840dff83E8264EcF986CA"),
	"UNI":  common.HexToAddress("0x1f9840a85d5aF5bf1D1762F925BDADdC4201F984"),
}

// SupportedTokens lists the symbols TokenAddress knows, in display order.
var SupportedTokens = []string{"ETH", "WETH", "USDC", "USDT", "DAI", "LINK", "UNI"}

// TokenAddress maps a known symbol (case-insensitive) or a hex address to
// a token contract address.
func TokenAddress(symbolOrAddress string) (common.Address, error) {
	in := strings.TrimSpace(symbolOrAddress)
	if addr, ok := knownTokens[strings.ToUpper(in)]; ok {
		return addr, nil
	}
	if common.IsHexAddress(in) {
		return common.HexToAddress(in), nil
	}
	return common.Address{}, fmt.Errorf("%w: %s. Supported tokens: %s",
		ErrUnknownToken, in, strings.Join(SupportedTokens, ", "))
}

// TokenSymbol returns the known symbol for addr, if any. WETH wins over ETH.
func TokenSymbol(addr common.Address) (string, bool) {
	var matches []string
	for sym, a := range knownTokens {
		if a == addr {
			matches = append(matches, sym)
		}
	}
	if len(matches) == 0 {
		return "", false
	}
	sort.Sort(sort.Reverse(sort.StringSlice(matches)))
	return matches[0], true
}

// TokenBalance is an ERC-20 balance with display metadata.
type TokenBalance struct {
	Token     common.Address
	Account   common.Address
	Raw       *big.Int
	Symbol    string
	Decimals  uint8
	Formatted string // "1.500000 USDC"
}

// TokenBalance reads balanceOf, symbol and decimals. Symbol falls back to
// UNKNOWN and decimals to 18 when the token does not answer.
func (s *Service) TokenBalance(ctx context.Context, token, account common.Address) (*TokenBalance, error) {
	data, err := s.erc20.Pack("balanceOf", account)
	if err != nil {
		return nil, fmt.Errorf("failed to pack balanceOf call: %w", err)
	}
	out, err := s.call(ctx, token, data)
	if err != nil {
		return nil, fmt.Errorf("failed to call token contract: %w", err)
	}

	raw := new(big.Int)
	if len(out) >= 32 {
		raw.SetBytes(out[len(out)-32:])
	}

	symbol, decimals := s.tokenInfo(ctx, token)

	formatted := raw.String() + " " + symbol
	if decimals > 0 {
		formatted = units.FormatUnits(raw, int(decimals)) + " " + symbol
	}

	return &TokenBalance{
		Token:     token,
		Account:   account,
		Raw:       raw,
		Symbol:    symbol,
		Decimals:  decimals,
		Formatted: formatted,
	}, nil
}

func (s *Service) tokenInfo(ctx context.Context, token common.Address) (string, uint8) {
	symbol := "UNKNOWN"
	if data, err := s.erc20.Pack("symbol"); err == nil {
		if out, err := s.call(ctx, token, data); err == nil {
			if vals, err := s.erc20.Unpack("symbol", out); err == nil && len(vals) == 1 {
				if v, ok := vals[0].(string); ok && v != "" {
					symbol = v
				}
			}
		}
	}

	decimals := uint8(18)
	if data, err := s.erc20.Pack("decimals"); err == nil {
		if out, err := s.call(ctx, token, data); err == nil {
			if vals, err := s.erc20.Unpack("decimals", out); err == nil && len(vals) == 1 {
				if v, ok := vals[0].(uint8); ok {
					decimals = v
				}
			}
		}
	}
	return symbol, decimals
}
