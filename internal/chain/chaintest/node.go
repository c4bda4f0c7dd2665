// Package chaintest provides an in-memory Ethereum node for tests of
// packages built on chain.Service.
package chaintest

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// AnvilKey is the private key of anvil's default account 0.
const AnvilKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

// The first three anvil default accounts.
var (
	Alice = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	Bob   = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	Carol = common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
)

// Accounts returns Alice, Bob and Carol.
func Accounts() []common.Address {
	return []common.Address{Alice, Bob, Carol}
}

// ErrReverted is returned by CallContract when no responder matches.
var ErrReverted = errors.New("execution reverted")

// Node implements chain.EthClient in memory. With AutoMine set every sent
// transaction gets a successful receipt immediately; otherwise it stays
// pending until Mine is called.
type Node struct {
	mu       sync.Mutex
	balances map[common.Address]*big.Int
	code     map[common.Address][]byte
	receipts map[common.Hash]*types.Receipt
	pending  map[common.Hash]*types.Transaction
	sent     []*types.Transaction
	nonce    uint64
	block    int64

	AutoMine bool
	SendErr  error
	CallFn   func(msg ethereum.CallMsg) ([]byte, error)
}

// NewNode returns an empty node at block 100.
func NewNode() *Node {
	return &Node{
		balances: make(map[common.Address]*big.Int),
		code:     make(map[common.Address][]byte),
		receipts: make(map[common.Hash]*types.Receipt),
		pending:  make(map[common.Hash]*types.Transaction),
		block:    100,
	}
}

// SetBalance sets the wei balance of addr.
func (n *Node) SetBalance(addr common.Address, wei *big.Int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.balances[addr] = wei
}

// SetCode deploys code at addr.
func (n *Node) SetCode(addr common.Address, code []byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.code[addr] = code
}

// Sent returns the broadcast transactions in order.
func (n *Node) Sent() []*types.Transaction {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*types.Transaction(nil), n.sent...)
}

// Mine moves a pending transaction into a block with the given status.
func (n *Node) Mine(hash common.Hash, status uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.pending, hash)
	n.receipts[hash] = n.receiptLocked(status)
}

func (n *Node) receiptLocked(status uint64) *types.Receipt {
	n.block++
	return &types.Receipt{
		Type:              types.LegacyTxType,
		Status:            status,
		BlockNumber:       big.NewInt(n.block),
		GasUsed:           21000,
		CumulativeGasUsed: 21000,
		EffectiveGasPrice: big.NewInt(1_000_000_000),
	}
}

func (n *Node) ChainID(context.Context) (*big.Int, error) { return big.NewInt(31337), nil }

func (n *Node) BalanceAt(_ context.Context, a common.Address, _ *big.Int) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if b, ok := n.balances[a]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

func (n *Node) CodeAt(_ context.Context, a common.Address, _ *big.Int) ([]byte, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.code[a], nil
}

func (n *Node) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if n.CallFn == nil {
		return nil, ErrReverted
	}
	return n.CallFn(msg)
}

func (n *Node) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.nonce, nil
}

func (n *Node) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (n *Node) EstimateGas(_ context.Context, msg ethereum.CallMsg) (uint64, error) {
	if len(msg.Data) > 0 {
		return 150_000, nil
	}
	return 21000, nil
}

func (n *Node) SendTransaction(_ context.Context, tx *types.Transaction) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.SendErr != nil {
		return n.SendErr
	}
	n.sent = append(n.sent, tx)
	n.nonce++
	if n.AutoMine {
		n.receipts[tx.Hash()] = n.receiptLocked(types.ReceiptStatusSuccessful)
	} else {
		n.pending[tx.Hash()] = tx
	}
	return nil
}

func (n *Node) TransactionReceipt(_ context.Context, h common.Hash) (*types.Receipt, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if r, ok := n.receipts[h]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

func (n *Node) TransactionByHash(_ context.Context, h common.Hash) (*types.Transaction, bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if tx, ok := n.pending[h]; ok {
		return tx, true, nil
	}
	return nil, false, ethereum.NotFound
}

func (n *Node) Close() {}

const erc20Outputs = `[
	{"name":"balanceOf","type":"function","inputs":[{"name":"a","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"symbol","type":"function","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"name":"decimals","type":"function","inputs":[],"outputs":[{"name":"","type":"uint8"}]}
]`

var erc20 = func() abi.ABI {
	a, err := abi.JSON(strings.NewReader(erc20Outputs))
	if err != nil {
		panic(err)
	}
	return a
}()

// ERC20 returns a CallFn answering balanceOf, symbol and decimals for the
// token at addr. Calls to other contracts revert.
func ERC20(addr common.Address, symbol string, decimals uint8, balances map[common.Address]*big.Int) func(ethereum.CallMsg) ([]byte, error) {
	return func(msg ethereum.CallMsg) ([]byte, error) {
		if msg.To == nil || *msg.To != addr || len(msg.Data) < 4 {
			return nil, ErrReverted
		}
		sel := msg.Data[:4]
		switch {
		case bytes.Equal(sel, erc20.Methods["balanceOf"].ID):
			args, err := erc20.Methods["balanceOf"].Inputs.Unpack(msg.Data[4:])
			if err != nil {
				return nil, err
			}
			bal := balances[args[0].(common.Address)]
			if bal == nil {
				bal = new(big.Int)
			}
			return erc20.Methods["balanceOf"].Outputs.Pack(bal)
		case bytes.Equal(sel, erc20.Methods["symbol"].ID):
			return erc20.Methods["symbol"].Outputs.Pack(symbol)
		case bytes.Equal(sel, erc20.Methods["decimals"].ID):
			return erc20.Methods["decimals"].Outputs.Pack(decimals)
		}
		return nil, ErrReverted
	}
}
