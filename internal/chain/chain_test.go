package chain

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Anvil's default account 0 key and the first three default addresses.
const anvilKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var (
	aliceAddr = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	bobAddr   = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	carolAddr = common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
)

// mockClient is an in-memory node.
type mockClient struct {
	mu          sync.Mutex
	balances    map[common.Address]*big.Int
	code        map[common.Address][]byte
	receipts    map[common.Hash]*types.Receipt
	pending     map[common.Hash]*types.Transaction
	sent        []*types.Transaction
	nonce       uint64
	estimateErr error
	sendErr     error
	callFn      func(msg ethereum.CallMsg) ([]byte, error)
	autoMine    bool
}

func newMockClient() *mockClient {
	return &mockClient{
		balances: make(map[common.Address]*big.Int),
		code:     make(map[common.Address][]byte),
		receipts: make(map[common.Hash]*types.Receipt),
		pending:  make(map[common.Hash]*types.Transaction),
	}
}

func (m *mockClient) ChainID(context.Context) (*big.Int, error) { return big.NewInt(31337), nil }

func (m *mockClient) BalanceAt(_ context.Context, a common.Address, _ *big.Int) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.balances[a]; ok {
		return b, nil
	}
	return big.NewInt(0), nil
}

func (m *mockClient) CodeAt(_ context.Context, a common.Address, _ *big.Int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.code[a], nil
}

func (m *mockClient) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if m.callFn == nil {
		return nil, errors.New("execution reverted")
	}
	return m.callFn(msg)
}

func (m *mockClient) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nonce, nil
}

func (m *mockClient) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(2_000_000_000), nil
}

func (m *mockClient) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	if m.estimateErr != nil {
		return 0, m.estimateErr
	}
	return 21000, nil
}

func (m *mockClient) SendTransaction(_ context.Context, tx *types.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, tx)
	m.nonce++
	if m.autoMine {
		m.receipts[tx.Hash()] = &types.Receipt{
			Status:            types.ReceiptStatusSuccessful,
			BlockNumber:       big.NewInt(100),
			GasUsed:           21000,
			CumulativeGasUsed: 21000,
			EffectiveGasPrice: big.NewInt(2_000_000_000),
		}
	} else {
		m.pending[tx.Hash()] = tx
	}
	return nil
}

func (m *mockClient) TransactionReceipt(_ context.Context, h common.Hash) (*types.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.receipts[h]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

func (m *mockClient) TransactionByHash(_ context.Context, h common.Hash) (*types.Transaction, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tx, ok := m.pending[h]; ok {
		return tx, true, nil
	}
	return nil, false, ethereum.NotFound
}

func (m *mockClient) Close() {}

var testNow = time.Unix(1_700_000_000, 0)

func newTestService(t *testing.T, mc *mockClient, key string) *Service {
	t.Helper()
	s, err := New(context.Background(), Config{PrivateKey: key, SlippageBps: 500, DeadlineSecs: 300},
		WithClient(mc),
		WithAccounts(StaticAccounts{aliceAddr, bobAddr, carolAddr}),
		WithPollInterval(5*time.Millisecond),
		WithClock(func() time.Time { return testNow }),
	)
	require.NoError(t, err)
	return s
}

func word(b []byte) []byte { return common.LeftPadBytes(b, 32) }

func TestNew_AccountRequirements(t *testing.T) {
	_, err := New(context.Background(), Config{}, WithClient(newMockClient()), WithAccounts(StaticAccounts{}))
	assert.ErrorIs(t, err, ErrNoAccounts)

	_, err = New(context.Background(), Config{}, WithClient(newMockClient()), WithAccounts(StaticAccounts{aliceAddr}))
	assert.ErrorIs(t, err, ErrTooFewAccounts)

	_, err = New(context.Background(), Config{PrivateKey: "zz"}, WithClient(newMockClient()),
		WithAccounts(StaticAccounts{aliceAddr, bobAddr}))
	assert.ErrorIs(t, err, ErrInvalidPrivateKey)
}

func TestService_Accounts(t *testing.T) {
	s := newTestService(t, newMockClient(), anvilKey)

	assert.Equal(t, aliceAddr, s.Alice())
	assert.Equal(t, bobAddr, s.Bob())
	assert.Equal(t, 3, s.AccountCount())
	assert.Equal(t, int64(31337), s.ChainID().Int64())
	assert.True(t, s.KeyMatchesAlice())

	accts := s.Accounts()
	require.Len(t, accts, 3)
	assert.Equal(t, Account{Index: 2, Address: carolAddr.Hex()}, accts[2])
	assert.Empty(t, accts[0].PrivateKey)

	withKeys := s.AccountsWithKeys()
	assert.Equal(t, "0xac0974be...", withKeys[0].PrivateKey)
	assert.Empty(t, withKeys[1].PrivateKey)

	noKey := newTestService(t, newMockClient(), "")
	assert.False(t, noKey.HasPrivateKey())
	assert.Empty(t, noKey.AccountsWithKeys()[0].PrivateKey)
	assert.Equal(t, "", noKey.MaskedKey())
}

func TestResolveAddress(t *testing.T) {
	s := newTestService(t, newMockClient(), "")
	ctx := context.Background()

	tests := []struct {
		in       string
		wantAddr common.Address
		wantType string
	}{
		{"0x70997970C51812dc3A010C7d01b50e0d17dc79C8", bobAddr, TypeHex},
		{"  0x70997970c51812dc3a010c7d01b50e0d17dc79c8 ", bobAddr, TypeHex},
		{"Alice", aliceAddr, TypeAlice},
		{"BOB", bobAddr, TypeBob},
		{"account2", carolAddr, "Anvil Account 2"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			v, err := s.ResolveAddress(ctx, tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.wantAddr, v.Address)
			assert.Equal(t, tt.wantType, v.Type)
		})
	}

	v, err := s.ResolveAddress(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, aliceAddr.Hex(), v.Input)

	for _, bad := range []string{"carol", "account9", "account", "0x1234", ""} {
		_, err := s.ResolveAddress(ctx, bad)
		assert.ErrorIs(t, err, ErrInvalidAddress, bad)
	}

	_, err = s.ResolveAddress(ctx, "charlie")
	var iae *InvalidAddressError
	require.ErrorAs(t, err, &iae)
	assert.Contains(t, err.Error(), "Invalid recipient address: 'charlie'")
	assert.Contains(t, err.Error(), "Known accounts: alice, bob, account0, account1, etc.")
}

func TestResolveAddress_ENS(t *testing.T) {
	resolver := common.HexToAddress("0x4976fb03C32e5B8cfe2b6cCB31c09Ba78EBaBa41")
	vitalik := common.HexToAddress("0xd8dA6BF26964aF9D7eEd9e03E53415D37aA96045")

	mc := newMockClient()
	mc.callFn = func(msg ethereum.CallMsg) ([]byte, error) {
		switch *msg.To {
		case ENSRegistry:
			return word(resolver.Bytes()), nil
		case resolver:
			node := Namehash("vitalik.eth")
			if !bytes.Equal(msg.Data[4:36], node[:]) {
				return word(nil), nil
			}
			return word(vitalik.Bytes()), nil
		}
		return nil, errors.New("unexpected call")
	}
	s := newTestService(t, mc, "")

	v, err := s.ResolveAddress(context.Background(), "vitalik.eth")
	require.NoError(t, err)
	assert.Equal(t, vitalik, v.Address)
	assert.Equal(t, TypeENS, v.Type)

	_, err = s.ResolveAddress(context.Background(), "nobody.eth")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrENSResolution)
	assert.Contains(t, err.Error(), "Failed to resolve ENS name 'nobody.eth'")
}

func TestNamehash(t *testing.T) {
	assert.Equal(t, [32]byte{}, Namehash(""))
	eth := Namehash("eth")
	assert.Equal(t, "93cdeb708b7545dc668eb9280176169d1c33cfd8ed6f04690a0bcc88a93fc4ae", hex.EncodeToString(eth[:]))
	assert.Equal(t, Namehash("Vitalik.ETH"), Namehash("vitalik.eth"))
}

func TestSendETH(t *testing.T) {
	mc := newMockClient()
	mc.estimateErr = errors.New("estimate unsupported")
	s := newTestService(t, mc, anvilKey)

	res, err := s.SendETH(context.Background(), bobAddr, "1.5")
	require.NoError(t, err)

	require.Len(t, mc.sent, 1)
	tx := mc.sent[0]
	assert.Equal(t, res.Hash, tx.Hash())
	assert.Equal(t, "1500000000000000000", tx.Value().String())
	assert.Equal(t, DefaultTransferGas, tx.Gas())
	assert.Equal(t, bobAddr, *tx.To())

	sender, err := types.Sender(types.NewEIP155Signer(big.NewInt(31337)), tx)
	require.NoError(t, err)
	assert.Equal(t, aliceAddr, sender)
	assert.Equal(t, aliceAddr, res.From)
}

func TestSendETH_ConcurrentNonces(t *testing.T) {
	mc := newMockClient()
	s := newTestService(t, mc, anvilKey)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.SendETH(context.Background(), bobAddr, "0.1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Len(t, mc.sent, 10)
	seen := map[uint64]bool{}
	for _, tx := range mc.sent {
		seen[tx.Nonce()] = true
	}
	assert.Len(t, seen, 10)
}

func TestSendETH_Errors(t *testing.T) {
	noKey := newTestService(t, newMockClient(), "")
	_, err := noKey.SendETH(context.Background(), bobAddr, "1")
	assert.ErrorIs(t, err, ErrNoPrivateKey)

	s := newTestService(t, newMockClient(), anvilKey)
	_, err = s.SendETH(context.Background(), bobAddr, "1.2.3")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	mc := newMockClient()
	mc.sendErr = errors.New("insufficient funds")
	s = newTestService(t, mc, anvilKey)
	_, err = s.SendETH(context.Background(), bobAddr, "1")
	var txErr *TxError
	require.ErrorAs(t, err, &txErr)
	assert.Equal(t, "send", txErr.Op)
	assert.NotEmpty(t, txErr.TxHash)
}

func TestSwap_QuotedSlippage(t *testing.T) {
	mc := newMockClient()
	s := newTestService(t, mc, anvilKey)

	quote := big.NewInt(2_000_000_000) // 2000 USDC
	getAmountsOut := s.router.Methods["getAmountsOut"]
	mc.callFn = func(msg ethereum.CallMsg) ([]byte, error) {
		require.Equal(t, UniswapV2Router, *msg.To)
		require.True(t, bytes.HasPrefix(msg.Data, getAmountsOut.ID))
		return getAmountsOut.Outputs.Pack([]*big.Int{big.NewInt(1), quote})
	}

	res, err := s.Swap(context.Background(), SwapRequest{FromToken: "ETH", ToToken: "usdc", Amount: "1", SlippageBps: -1})
	require.NoError(t, err)

	assert.True(t, res.Quoted)
	assert.Equal(t, int64(500), res.SlippageBps)
	assert.Equal(t, "1900000000", res.AmountOutMin.String())
	assert.Equal(t, testNow.Unix()+300, res.Deadline.Int64())
	assert.Equal(t, []common.Address{knownTokens["WETH"], knownTokens["USDC"]}, res.Path)

	require.Len(t, mc.sent, 1)
	tx := mc.sent[0]
	assert.Equal(t, UniswapV2Router, *tx.To())
	assert.Equal(t, "1000000000000000000", tx.Value().String())
	assert.Equal(t, "7ff36ab5", hex.EncodeToString(tx.Data()[:4]))

	args, err := s.router.Methods["swapExactETHForTokens"].Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	require.Len(t, args, 4)
	assert.Equal(t, "1900000000", args[0].(*big.Int).String())
	assert.Equal(t, res.Path, args[1].([]common.Address))
	assert.Equal(t, aliceAddr, args[2].(common.Address))
	assert.Equal(t, res.Deadline.String(), args[3].(*big.Int).String())
}

func TestSwap_QuoteFailureUsesZeroMinimum(t *testing.T) {
	mc := newMockClient()
	s := newTestService(t, mc, anvilKey)

	res, err := s.Swap(context.Background(), SwapRequest{FromToken: "ETH", ToToken: "DAI", Amount: "0.5", SlippageBps: 100})
	require.NoError(t, err)
	assert.False(t, res.Quoted)
	assert.Equal(t, 0, res.AmountOutMin.Sign())
	assert.Equal(t, int64(100), res.SlippageBps)
}

func TestSwap_Errors(t *testing.T) {
	mc := newMockClient()
	s := newTestService(t, mc, anvilKey)

	_, err := s.Swap(context.Background(), SwapRequest{FromToken: "ETH", ToToken: "DOGE", Amount: "1", SlippageBps: -1})
	assert.ErrorIs(t, err, ErrUnknownToken)
	assert.Contains(t, err.Error(), "Supported tokens: ETH, WETH, USDC, USDT, DAI, LINK, UNI")

	_, err = s.Swap(context.Background(), SwapRequest{FromToken: "USDC", ToToken: "DAI", Amount: "1", SlippageBps: -1})
	assert.ErrorIs(t, err, ErrUnknownToken)
	assert.Contains(t, err.Error(), "must start from ETH or WETH")

	_, err = s.Swap(context.Background(), SwapRequest{FromToken: "weth", ToToken: "USDC", Amount: "0", SlippageBps: -1})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = s.Swap(context.Background(), SwapRequest{FromToken: "ETH", ToToken: "USDC", Amount: "0", SlippageBps: -1})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	noKey := newTestService(t, newMockClient(), "")
	_, err = noKey.Swap(context.Background(), SwapRequest{FromToken: "ETH", ToToken: "USDC", Amount: "1", SlippageBps: -1})
	assert.ErrorIs(t, err, ErrNoPrivateKey)
	assert.Empty(t, mc.sent)
}

func TestTokenAddress(t *testing.T) {
	addr, err := TokenAddress("usdc")
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"), addr)

	addr, err = TokenAddress(carolAddr.Hex())
	require.NoError(t, err)
	assert.Equal(t, carolAddr, addr)

	_, err = TokenAddress("PEPE")
	assert.ErrorIs(t, err, ErrUnknownToken)

	sym, ok := TokenSymbol(knownTokens["ETH"])
	assert.True(t, ok)
	assert.Equal(t, "WETH", sym)
	_, ok = TokenSymbol(carolAddr)
	assert.False(t, ok)
}

func TestTokenBalance(t *testing.T) {
	mc := newMockClient()
	s := newTestService(t, mc, "")
	usdc := knownTokens["USDC"]

	mc.callFn = func(msg ethereum.CallMsg) ([]byte, error) {
		switch {
		case bytes.HasPrefix(msg.Data, s.erc20.Methods["balanceOf"].ID):
			return word(big.NewInt(1_500_000).Bytes()), nil
		case bytes.HasPrefix(msg.Data, s.erc20.Methods["symbol"].ID):
			return s.erc20.Methods["symbol"].Outputs.Pack("USDC")
		case bytes.HasPrefix(msg.Data, s.erc20.Methods["decimals"].ID):
			return s.erc20.Methods["decimals"].Outputs.Pack(uint8(6))
		}
		return nil, errors.New("unexpected selector")
	}

	bal, err := s.TokenBalance(context.Background(), usdc, aliceAddr)
	require.NoError(t, err)
	assert.Equal(t, "1500000", bal.Raw.String())
	assert.Equal(t, "USDC", bal.Symbol)
	assert.Equal(t, uint8(6), bal.Decimals)
	assert.Equal(t, "1.500000 USDC", bal.Formatted)
}

func TestTokenBalance_MetadataFallback(t *testing.T) {
	mc := newMockClient()
	s := newTestService(t, mc, "")
	mc.callFn = func(msg ethereum.CallMsg) ([]byte, error) {
		if bytes.HasPrefix(msg.Data, s.erc20.Methods["balanceOf"].ID) {
			return word(big.NewInt(7).Bytes()), nil
		}
		return nil, errors.New("execution reverted")
	}

	bal, err := s.TokenBalance(context.Background(), carolAddr, aliceAddr)
	require.NoError(t, err)
	assert.Equal(t, "UNKNOWN", bal.Symbol)
	assert.Equal(t, uint8(18), bal.Decimals)
	assert.Equal(t, "0.000000000000000007 UNKNOWN", bal.Formatted)
}

func TestBalanceAndCode(t *testing.T) {
	mc := newMockClient()
	mc.balances[aliceAddr] = new(big.Int).Mul(big.NewInt(10_000), big.NewInt(1e18))
	mc.code[carolAddr] = []byte{0x60, 0x80, 0x60, 0x40}
	s := newTestService(t, mc, "")

	bal, err := s.Balance(context.Background(), aliceAddr)
	require.NoError(t, err)
	assert.Equal(t, "10000000000000000000000", bal.String())

	code, err := s.Code(context.Background(), carolAddr)
	require.NoError(t, err)
	assert.Len(t, code, 4)

	code, err = s.Code(context.Background(), bobAddr)
	require.NoError(t, err)
	assert.Empty(t, code)
}

func TestTxStatus(t *testing.T) {
	mc := newMockClient()
	mc.autoMine = true
	s := newTestService(t, mc, anvilKey)

	res, err := s.SendETH(context.Background(), bobAddr, "1")
	require.NoError(t, err)

	report, err := s.TxStatus(context.Background(), res.Hash, time.Second)
	require.NoError(t, err)
	assert.Equal(t, TxSuccess, report.State)
	assert.False(t, report.Waited)
	assert.True(t, report.Mined())
	assert.Equal(t, uint64(100), report.BlockNumber)
	assert.Equal(t, "42000000000000", report.TotalCost.String())
	assert.Nil(t, report.ContractAddress)
}

func TestTxStatus_PendingAndNotFound(t *testing.T) {
	mc := newMockClient()
	s := newTestService(t, mc, anvilKey)

	res, err := s.SendETH(context.Background(), bobAddr, "1")
	require.NoError(t, err)

	report, err := s.TxStatus(context.Background(), res.Hash, 20*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, TxPending, report.State)
	assert.False(t, report.Mined())

	report, err = s.TxStatus(context.Background(), common.HexToHash("0xdead"), 20*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, TxNotFound, report.State)
}

func TestTxStatus_MinedWhileWaiting(t *testing.T) {
	mc := newMockClient()
	s := newTestService(t, mc, anvilKey)
	hash := common.HexToHash("0xbeef")

	go func() {
		time.Sleep(20 * time.Millisecond)
		mc.mu.Lock()
		mc.receipts[hash] = &types.Receipt{Status: types.ReceiptStatusFailed, BlockNumber: big.NewInt(7), GasUsed: 50_000}
		mc.mu.Unlock()
	}()

	report, err := s.TxStatus(context.Background(), hash, time.Second)
	require.NoError(t, err)
	assert.Equal(t, TxFailed, report.State)
	assert.True(t, report.Waited)
	assert.Equal(t, "0", report.TotalCost.String())
}

func TestWaitForReceipt_Timeout(t *testing.T) {
	s := newTestService(t, newMockClient(), "")
	_, err := s.WaitForReceipt(context.Background(), common.HexToHash("0x01"), 15*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestReportFromReceipt_ContractCreation(t *testing.T) {
	created := common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	r := ReportFromReceipt(common.HexToHash("0x02"), &types.Receipt{
		Status:            types.ReceiptStatusSuccessful,
		Type:              types.DynamicFeeTxType,
		ContractAddress:   created,
		EffectiveGasPrice: big.NewInt(10),
		GasUsed:           3,
		Logs:              []*types.Log{{}, {}},
	})
	require.NotNil(t, r.ContractAddress)
	assert.Equal(t, created, *r.ContractAddress)
	assert.Equal(t, uint8(2), r.Type)
	assert.Equal(t, 2, r.Logs)
	assert.Equal(t, "30", r.TotalCost.String())
}

func TestParseTxHash(t *testing.T) {
	good := "0x" + "ab" + string(bytes.Repeat([]byte("0"), 62))
	h, err := ParseTxHash(good)
	require.NoError(t, err)
	assert.Equal(t, good, h.Hex())

	for _, bad := range []string{"", "0x1234", "0x" + string(bytes.Repeat([]byte("z"), 64))} {
		_, err := ParseTxHash(bad)
		assert.ErrorIs(t, err, ErrInvalidTxHash, bad)
	}
}
