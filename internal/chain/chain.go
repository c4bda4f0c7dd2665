// Package chain wraps an Ethereum JSON-RPC node (Anvil or a forked mainnet)
// for the MCP tools: account discovery, address resolution, ETH transfers,
// ERC-20 reads, Uniswap V2 swaps and receipt tracking.
//
// Alice (account 0) is always the sender. Bob is account 1. Only Alice's key
// is ever loaded, from the environment.
package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/mbd888/ethagent/internal/metrics"
	"github.com/mbd888/ethagent/internal/syncutil"
)

// EthClient abstracts the go-ethereum client for testing.
type EthClient interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (tx *types.Transaction, isPending bool, err error)
	Close()
}

// AccountLister returns the node's unlocked accounts (eth_accounts).
type AccountLister interface {
	Accounts(ctx context.Context) ([]common.Address, error)
}

type rpcAccounts struct {
	c *rpc.Client
}

func (r rpcAccounts) Accounts(ctx context.Context) ([]common.Address, error) {
	var addrs []common.Address
	if err := r.c.CallContext(ctx, &addrs, "eth_accounts"); err != nil {
		return nil, err
	}
	return addrs, nil
}

// StaticAccounts is a fixed account list, handy for tests.
type StaticAccounts []common.Address

func (s StaticAccounts) Accounts(context.Context) ([]common.Address, error) {
	return s, nil
}

const (
	// DefaultTransferGas is used when gas estimation fails for a plain transfer.
	DefaultTransferGas = uint64(21000)

	// DefaultSwapGas is used when gas estimation fails for a router call.
	DefaultSwapGas = uint64(300000)

	// DefaultConfirmationTimeout for waiting on transactions
	DefaultConfirmationTimeout = 30 * time.Second

	// ConfirmationPollInterval between receipt checks
	ConfirmationPollInterval = time.Second
)

// Config for creating a Service.
type Config struct {
	RPCURL       string
	PrivateKey   string // hex, optional, with or without 0x
	SlippageBps  int64
	DeadlineSecs int64
}

// Option configures the Service.
type Option func(*Service)

// WithClient sets a custom Ethereum client (useful for testing).
func WithClient(client EthClient) Option {
	return func(s *Service) {
		s.client = client
	}
}

// WithAccounts overrides the eth_accounts lookup.
func WithAccounts(lister AccountLister) Option {
	return func(s *Service) {
		s.lister = lister
	}
}

// WithPollInterval sets the receipt polling interval.
func WithPollInterval(d time.Duration) Option {
	return func(s *Service) {
		s.pollInterval = d
	}
}

// WithClock overrides time.Now, used for swap deadlines.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// Account is one node account. PrivateKey is only ever set to a masked
// prefix for display.
type Account struct {
	Index      int    `json:"index"`
	Address    string `json:"address"`
	PrivateKey string `json:"private_key,omitempty"`
}

// Service talks to the node on behalf of Alice.
type Service struct {
	client       EthClient
	lister       AccountLister
	accounts     []common.Address
	privateKey   *ecdsa.PrivateKey
	keyAddress   common.Address
	rawKey       string
	chainID      *big.Int
	slippageBps  int64
	deadlineSecs int64
	pollInterval time.Duration
	now          func() time.Time

	// senders serializes nonce selection and broadcast per signer.
	senders *syncutil.KeyedMutex

	erc20  abi.ABI
	router abi.ABI
	ens    abi.ABI
}

// New connects to the node, loads its accounts and parses Alice's key.
func New(ctx context.Context, cfg Config, opts ...Option) (*Service, error) {
	s := &Service{
		rawKey:       cfg.PrivateKey,
		slippageBps:  cfg.SlippageBps,
		deadlineSecs: cfg.DeadlineSecs,
		pollInterval: ConfirmationPollInterval,
		now:          time.Now,
		senders:      syncutil.NewKeyedMutex(),
	}
	if s.deadlineSecs <= 0 {
		s.deadlineSecs = 300
	}

	var err error
	if s.erc20, err = abi.JSON(strings.NewReader(erc20ABI)); err != nil {
		return nil, fmt.Errorf("failed to parse ERC20 ABI: %w", err)
	}
	if s.router, err = abi.JSON(strings.NewReader(routerABI)); err != nil {
		return nil, fmt.Errorf("failed to parse router ABI: %w", err)
	}
	if s.ens, err = abi.JSON(strings.NewReader(ensABI)); err != nil {
		return nil, fmt.Errorf("failed to parse ENS ABI: %w", err)
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.client == nil {
		if cfg.RPCURL == "" {
			return nil, fmt.Errorf("%w: RPC URL required", ErrRPCConnection)
		}
		rc, err := rpc.DialContext(ctx, cfg.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRPCConnection, err)
		}
		s.client = ethclient.NewClient(rc)
		if s.lister == nil {
			s.lister = rpcAccounts{c: rc}
		}
	}
	if s.lister == nil {
		return nil, fmt.Errorf("%w: no account source configured", ErrRPCConnection)
	}

	if cfg.PrivateKey != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
		}
		s.privateKey = key
		s.keyAddress = crypto.PubkeyToAddress(key.PublicKey)
	}

	if err := s.loadAccounts(ctx); err != nil {
		return nil, err
	}

	chainID, err := s.client.ChainID(ctx)
	observe("eth_chainId", err)
	if err != nil {
		return nil, fmt.Errorf("%w: chain id: %v", ErrRPCConnection, err)
	}
	s.chainID = chainID

	return s, nil
}

func (s *Service) loadAccounts(ctx context.Context) error {
	addrs, err := s.lister.Accounts(ctx)
	observe("eth_accounts", err)
	if err != nil {
		return fmt.Errorf("%w: failed to get accounts: %v", ErrRPCConnection, err)
	}
	switch {
	case len(addrs) == 0:
		return ErrNoAccounts
	case len(addrs) < 2:
		return ErrTooFewAccounts
	}
	s.accounts = addrs
	return nil
}

// ChainID returns the chain id reported by the node at startup.
func (s *Service) ChainID() *big.Int {
	return new(big.Int).Set(s.chainID)
}

// Ping checks that the node still answers.
func (s *Service) Ping(ctx context.Context) error {
	_, err := s.client.ChainID(ctx)
	observe("eth_chainId", err)
	return err
}

// KeyMatchesAlice reports whether the loaded key signs for account 0.
func (s *Service) KeyMatchesAlice() bool {
	return s.HasPrivateKey() && s.keyAddress == s.Alice()
}

// Alice returns account 0, the default sender.
func (s *Service) Alice() common.Address { return s.accounts[0] }

// Bob returns account 1, the default recipient.
func (s *Service) Bob() common.Address { return s.accounts[1] }

// AccountCount returns the number of node accounts.
func (s *Service) AccountCount() int { return len(s.accounts) }

// Accounts lists the node accounts without any key material.
func (s *Service) Accounts() []Account {
	out := make([]Account, len(s.accounts))
	for i, a := range s.accounts {
		out[i] = Account{Index: i, Address: a.Hex()}
	}
	return out
}

// AccountsWithKeys is Accounts with Alice's masked key attached when loaded.
func (s *Service) AccountsWithKeys() []Account {
	out := s.Accounts()
	if s.HasPrivateKey() {
		out[0].PrivateKey = s.MaskedKey()
	}
	return out
}

// HasPrivateKey reports whether Alice can sign.
func (s *Service) HasPrivateKey() bool { return s.privateKey != nil }

// MaskedKey returns the first 10 characters of the configured key.
func (s *Service) MaskedKey() string {
	if s.rawKey == "" {
		return ""
	}
	n := 10
	if len(s.rawKey) < n {
		n = len(s.rawKey)
	}
	return s.rawKey[:n] + "..."
}

// SlippageBps returns the default swap slippage tolerance.
func (s *Service) SlippageBps() int64 { return s.slippageBps }

// Balance returns the wei balance of the resolved address.
func (s *Service) Balance(ctx context.Context, addr common.Address) (*big.Int, error) {
	bal, err := s.client.BalanceAt(ctx, addr, nil)
	observe("eth_getBalance", err)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return bal, nil
}

// Code returns the deployed bytecode at addr. Empty means nothing deployed.
func (s *Service) Code(ctx context.Context, addr common.Address) ([]byte, error) {
	code, err := s.client.CodeAt(ctx, addr, nil)
	observe("eth_getCode", err)
	if err != nil {
		return nil, fmt.Errorf("failed to get code: %w", err)
	}
	return code, nil
}

// Close closes the client connection.
func (s *Service) Close() error {
	if s.client != nil {
		s.client.Close()
	}
	return nil
}

func (s *Service) call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	out, err := s.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	observe("eth_call", err)
	return out, err
}

func observe(method string, err error) {
	metrics.RPCCallsTotal.WithLabelValues(method, metrics.Result(err)).Inc()
}
