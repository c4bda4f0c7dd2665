package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/mbd888/ethagent/internal/metrics"
	"github.com/mbd888/ethagent/internal/traces"
	"github.com/mbd888/ethagent/internal/units"
)

// TxResult describes a broadcast transaction.
type TxResult struct {
	Hash     common.Hash
	From     common.Address
	To       common.Address
	Value    *big.Int
	Nonce    uint64
	GasLimit uint64
	GasPrice *big.Int
}

// SendETH transfers amountETH (a decimal string such as "1.5") from Alice.
func (s *Service) SendETH(ctx context.Context, to common.Address, amountETH string) (*TxResult, error) {
	ctx, span := traces.StartSpan(ctx, "chain.SendETH", traces.Address(to.Hex()), traces.Amount(amountETH))
	var err error
	defer func() { traces.End(span, err) }()

	if !s.HasPrivateKey() {
		err = ErrNoPrivateKey
		return nil, err
	}
	value, perr := units.ParseEther(amountETH)
	if perr != nil {
		err = fmt.Errorf("%w: %v", ErrInvalidAmount, perr)
		return nil, err
	}

	res, err := s.sendTx(ctx, to, value, nil, DefaultTransferGas)
	if err != nil {
		return nil, err
	}
	metrics.TransactionsSentTotal.WithLabelValues("transfer").Inc()
	span.SetAttributes(traces.TxHash(res.Hash.Hex()))
	return res, nil
}

// sendTx signs a legacy EIP-155 transaction from Alice and broadcasts it.
func (s *Service) sendTx(ctx context.Context, to common.Address, value *big.Int, data []byte, fallbackGas uint64) (*TxResult, error) {
	if !s.HasPrivateKey() {
		return nil, ErrNoPrivateKey
	}
	from := s.keyAddress

	unlock, err := s.senders.Lock(ctx, from.Hex())
	if err != nil {
		return nil, &TxError{Op: "nonce", Err: err}
	}
	defer unlock()

	nonce, err := s.client.PendingNonceAt(ctx, from)
	observe("eth_getTransactionCount", err)
	if err != nil {
		return nil, &TxError{Op: "nonce", Err: err}
	}

	gasPrice, err := s.client.SuggestGasPrice(ctx)
	observe("eth_gasPrice", err)
	if err != nil {
		return nil, &TxError{Op: "gas_price", Err: err}
	}

	gasLimit, err := s.client.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &to,
		Value: value,
		Data:  data,
	})
	observe("eth_estimateGas", err)
	if err != nil {
		gasLimit = fallbackGas
	}

	tx := types.NewTransaction(nonce, to, value, gasLimit, gasPrice, data)

	signed, err := types.SignTx(tx, types.NewEIP155Signer(s.chainID), s.privateKey)
	if err != nil {
		return nil, &TxError{Op: "sign", Err: err}
	}

	err = s.client.SendTransaction(ctx, signed)
	observe("eth_sendRawTransaction", err)
	if err != nil {
		return nil, &TxError{Op: "send", TxHash: signed.Hash().Hex(), Err: err}
	}

	return &TxResult{
		Hash:     signed.Hash(),
		From:     from,
		To:       to,
		Value:    value,
		Nonce:    nonce,
		GasLimit: gasLimit,
		GasPrice: gasPrice,
	}, nil
}
