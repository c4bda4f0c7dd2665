package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/mbd888/ethagent/internal/metrics"
)

// TxState is the outcome reported by TxStatus.
type TxState string

const (
	TxSuccess  TxState = "SUCCESS"
	TxFailed   TxState = "FAILED"
	TxPending  TxState = "PENDING"
	TxNotFound TxState = "NOT FOUND"
)

// TxReport summarizes a transaction and, once mined, its receipt.
type TxReport struct {
	Hash              common.Hash
	State             TxState
	Waited            bool // receipt only appeared after polling
	BlockNumber       uint64
	GasUsed           uint64
	GasPrice          *big.Int
	TotalCost         *big.Int
	Type              uint8
	CumulativeGasUsed uint64
	ContractAddress   *common.Address
	Logs              int
}

// Mined reports whether the report carries receipt data.
func (r *TxReport) Mined() bool {
	return r.State == TxSuccess || r.State == TxFailed
}

// ReportFromReceipt builds a report from a mined receipt.
func ReportFromReceipt(hash common.Hash, receipt *types.Receipt) *TxReport {
	state := TxSuccess
	if receipt.Status == types.ReceiptStatusFailed {
		state = TxFailed
	}

	gasPrice := new(big.Int)
	if receipt.EffectiveGasPrice != nil {
		gasPrice.Set(receipt.EffectiveGasPrice)
	}
	total := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(receipt.GasUsed))

	r := &TxReport{
		Hash:              hash,
		State:             state,
		GasUsed:           receipt.GasUsed,
		GasPrice:          gasPrice,
		TotalCost:         total,
		Type:              receipt.Type,
		CumulativeGasUsed: receipt.CumulativeGasUsed,
		Logs:              len(receipt.Logs),
	}
	if receipt.BlockNumber != nil {
		r.BlockNumber = receipt.BlockNumber.Uint64()
	}
	if receipt.ContractAddress != (common.Address{}) {
		addr := receipt.ContractAddress
		r.ContractAddress = &addr
	}
	return r
}

// ParseTxHash validates a 0x-prefixed 32-byte hash.
func ParseTxHash(s string) (common.Hash, error) {
	s = strings.TrimSpace(s)
	raw := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(raw) != 64 || !isHex(raw) {
		return common.Hash{}, fmt.Errorf("%w: %q", ErrInvalidTxHash, s)
	}
	return common.HexToHash(raw), nil
}

func isHex(s string) bool {
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// WaitForReceipt polls until the transaction is mined or timeout elapses.
// A reverted transaction is returned as a receipt, not an error.
func (s *Service) WaitForReceipt(ctx context.Context, hash common.Hash, timeout time.Duration) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := s.client.TransactionReceipt(ctx, hash)
		observe("eth_getTransactionReceipt", err)
		if err == nil && receipt != nil {
			metrics.TransactionsConfirmedTotal.WithLabelValues(statusLabel(receipt)).Inc()
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: waiting for tx %s", ErrTimeout, hash.Hex())
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// TxStatus reports the transaction state. An unmined transaction is polled
// for up to timeout, then classified as pending or not found.
func (s *Service) TxStatus(ctx context.Context, hash common.Hash, timeout time.Duration) (*TxReport, error) {
	receipt, err := s.client.TransactionReceipt(ctx, hash)
	observe("eth_getTransactionReceipt", err)
	switch {
	case err == nil && receipt != nil:
		return ReportFromReceipt(hash, receipt), nil
	case err != nil && !errors.Is(err, ethereum.NotFound):
		return nil, fmt.Errorf("failed to get transaction receipt: %w", err)
	}

	if receipt, werr := s.WaitForReceipt(ctx, hash, timeout); werr == nil {
		r := ReportFromReceipt(hash, receipt)
		r.Waited = true
		return r, nil
	} else if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	_, _, err = s.client.TransactionByHash(ctx, hash)
	observe("eth_getTransactionByHash", err)
	switch {
	case err == nil:
		return &TxReport{Hash: hash, State: TxPending}, nil
	case errors.Is(err, ethereum.NotFound):
		return &TxReport{Hash: hash, State: TxNotFound}, nil
	default:
		return nil, fmt.Errorf("failed to check transaction status: %w", err)
	}
}

func statusLabel(r *types.Receipt) string {
	if r.Status == types.ReceiptStatusFailed {
		return "failed"
	}
	return "success"
}
