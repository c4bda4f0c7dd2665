package mcpserver

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/ethagent/internal/chain"
	"github.com/mbd888/ethagent/internal/chain/chaintest"
	"github.com/mbd888/ethagent/internal/logging"
	"github.com/mbd888/ethagent/internal/realtime"
	"github.com/mbd888/ethagent/internal/search"
)

// --- Test helpers ---

type recordedEvent struct {
	Type realtime.EventType
	Tx   realtime.Tx
	Tool string
}

type recorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recorder) PublishToolCall(tool, result string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{Type: realtime.EventToolCall, Tool: tool + ":" + result})
}

func (r *recorder) PublishTx(t realtime.EventType, tx realtime.Tx) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{Type: t, Tx: tx})
}

func (r *recorder) types() []realtime.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []realtime.EventType
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type testSetup struct {
	h      *Handlers
	node   *chaintest.Node
	events *recorder
}

func newTestSetup(t *testing.T, key string, brave http.Handler) *testSetup {
	t.Helper()
	node := chaintest.NewNode()
	svc, err := chain.New(context.Background(),
		chain.Config{PrivateKey: key, SlippageBps: 500, DeadlineSecs: 300},
		chain.WithClient(node),
		chain.WithAccounts(chain.StaticAccounts(chaintest.Accounts())),
		chain.WithPollInterval(5*time.Millisecond),
	)
	require.NoError(t, err)

	var sc *search.Client
	if brave != nil {
		ts := httptest.NewServer(brave)
		t.Cleanup(ts.Close)
		sc = search.New("test-key", search.WithBaseURL(ts.URL), search.WithRetry(1, time.Millisecond))
	}

	ev := &recorder{}
	h := NewHandlers(svc, sc,
		WithPublisher(ev),
		WithConfirmTimeout(50*time.Millisecond),
		WithHandlerLogger(logging.Discard()),
	)
	return &testSetup{h: h, node: node, events: ev}
}

func makeRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	if args == nil {
		args = map[string]any{}
	}
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content, "expected at least one content block")
	tc, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected TextContent, got %T", result.Content[0])
	return tc.Text
}

func eth(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

// ============================================================
// balance
// ============================================================

func TestHandleBalance(t *testing.T) {
	s := newTestSetup(t, "", nil)
	s.node.SetBalance(chaintest.Bob, new(big.Int).Add(eth(1), big.NewInt(5e17)))

	result, err := s.h.HandleBalance(context.Background(), makeRequest(map[string]any{"who": "bob"}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "ETH Balance Query:")
	assert.Contains(t, text, "Account: bob (resolved to "+chaintest.Bob.Hex()+")")
	assert.Contains(t, text, "Balance: 1.500000 ETH (1500000000000000000 wei)")
}

func TestHandleBalance_InvalidAddress(t *testing.T) {
	s := newTestSetup(t, "", nil)

	result, err := s.h.HandleBalance(context.Background(), makeRequest(map[string]any{"who": "charlie"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "Invalid recipient address: 'charlie'")
}

func TestHandleBalance_MissingArg(t *testing.T) {
	s := newTestSetup(t, "", nil)

	result, err := s.h.HandleBalance(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

// ============================================================
// send_eth
// ============================================================

func TestHandleSendETH_NoPrivateKey(t *testing.T) {
	s := newTestSetup(t, "", nil)

	result, err := s.h.HandleSendETH(context.Background(), makeRequest(map[string]any{"to": "bob", "amount": "1"}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	text := resultText(t, result)
	assert.True(t, strings.HasPrefix(text, "ERROR: Cannot send transaction - private key not available."))
	assert.Contains(t, text, "Validated recipient: "+chaintest.Bob.Hex()+" ("+chain.TypeBob+")")
	assert.Contains(t, text, "Requested transfer: 1 ETH")
	assert.Contains(t, text, `export ALICE_PRIVATE_KEY="0x..."`)
	assert.Empty(t, s.node.Sent())
}

func TestHandleSendETH_Confirmed(t *testing.T) {
	s := newTestSetup(t, chaintest.AnvilKey, nil)
	s.node.AutoMine = true

	result, err := s.h.HandleSendETH(context.Background(), makeRequest(map[string]any{"to": "bob", "amount": "0.5"}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	text := resultText(t, result)
	assert.Contains(t, text, "ETH Transfer:\nFrom: "+chaintest.Alice.Hex()+" (Alice)")
	assert.Contains(t, text, "To: "+chaintest.Bob.Hex()+" ("+chain.TypeBob+")")
	assert.Contains(t, text, "Amount: 0.5 ETH")
	assert.Contains(t, text, "Transaction Confirmed: SUCCESS")
	assert.Contains(t, text, "Gas Used: 21000")
	assert.Contains(t, text, "Total Cost: 21000000000000 wei (0.000021 ETH)")

	sent := s.node.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, big.NewInt(5e17), sent[0].Value())
	assert.Equal(t, chaintest.Bob, *sent[0].To())

	assert.Equal(t, []realtime.EventType{realtime.EventTxSent, realtime.EventTxConfirmed}, s.events.types())
	assert.Equal(t, "success", s.events.events[1].Tx.Status)
}

func TestHandleSendETH_ConfirmationTimeout(t *testing.T) {
	s := newTestSetup(t, chaintest.AnvilKey, nil)

	result, err := s.h.HandleSendETH(context.Background(), makeRequest(map[string]any{"to": "account2", "amount": "1"}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	sent := s.node.Sent()
	require.Len(t, sent, 1)

	text := resultText(t, result)
	assert.Contains(t, text, "ETH Transfer Sent:")
	assert.Contains(t, text, "(Anvil Account 2)")
	assert.Contains(t, text, "Transaction Hash: "+sent[0].Hash().Hex())
	assert.Contains(t, text, "Status: Sent to network (confirmation timeout)")
	assert.Contains(t, text, "Use check_transaction_status with hash "+sent[0].Hash().Hex())
	assert.Equal(t, []realtime.EventType{realtime.EventTxSent}, s.events.types())
}

func TestHandleSendETH_InvalidAmount(t *testing.T) {
	s := newTestSetup(t, chaintest.AnvilKey, nil)

	result, err := s.h.HandleSendETH(context.Background(), makeRequest(map[string]any{"to": "bob", "amount": "lots"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "invalid amount")
	assert.Empty(t, s.node.Sent())
}

// ============================================================
// is_contract_deployed
// ============================================================

func TestHandleIsContractDeployed(t *testing.T) {
	s := newTestSetup(t, "", nil)
	s.node.SetCode(chain.UniswapV2Router, []byte{0x60, 0x80, 0x60, 0x40})

	result, err := s.h.HandleIsContractDeployed(context.Background(),
		makeRequest(map[string]any{"address": chain.UniswapV2Router.Hex()}))
	require.NoError(t, err)
	text := resultText(t, result)
	assert.Contains(t, text, "Contract Deployment Check:")
	assert.Contains(t, text, "Status: DEPLOYED")
	assert.Contains(t, text, "Code Length: 4 bytes")

	result, err = s.h.HandleIsContractDeployed(context.Background(), makeRequest(map[string]any{"address": "alice"}))
	require.NoError(t, err)
	text = resultText(t, result)
	assert.Contains(t, text, "Status: NOT DEPLOYED")
	assert.Contains(t, text, "Code Length: 0 bytes")
}

// ============================================================
// token_balance
// ============================================================

func TestHandleTokenBalance(t *testing.T) {
	s := newTestSetup(t, "", nil)
	usdc, err := chain.TokenAddress("USDC")
	require.NoError(t, err)
	s.node.CallFn = chaintest.ERC20(usdc, "USDC", 6, map[common.Address]*big.Int{
		chaintest.Alice: big.NewInt(2_500_000),
	})

	result, err := s.h.HandleTokenBalance(context.Background(), makeRequest(map[string]any{
		"token_address":   "usdc",
		"account_address": "alice",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	text := resultText(t, result)
	assert.Contains(t, text, "Account: alice")
	assert.Contains(t, text, "Token: usdc (USDC)")
	assert.Contains(t, text, "Balance: 2.500000 USDC (raw: 2500000)")
}

func TestHandleTokenBalance_UnknownToken(t *testing.T) {
	s := newTestSetup(t, "", nil)

	result, err := s.h.HandleTokenBalance(context.Background(), makeRequest(map[string]any{
		"token_address":   "SHIB",
		"account_address": "alice",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "Supported tokens")
}

// ============================================================
// accounts
// ============================================================

func TestHandleGetAccounts(t *testing.T) {
	s := newTestSetup(t, chaintest.AnvilKey, nil)

	result, err := s.h.HandleGetAccounts(context.Background(), makeRequest(nil))
	require.NoError(t, err)

	var got accountList
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &got))
	assert.Equal(t, 3, got.Total)
	assert.Equal(t, chaintest.Carol.Hex(), got.Accounts[2].Address)
	assert.NotContains(t, resultText(t, result), "private_key")
}

func TestHandleGetPrivateKeys(t *testing.T) {
	s := newTestSetup(t, chaintest.AnvilKey, nil)

	result, err := s.h.HandleGetPrivateKeys(context.Background(), makeRequest(nil))
	require.NoError(t, err)

	text := resultText(t, result)
	jsonPart, note, ok := strings.Cut(text, "\n\nNOTE: ")
	require.True(t, ok)

	var got accountList
	require.NoError(t, json.Unmarshal([]byte(jsonPart), &got))
	assert.Equal(t, "0xac0974be...", got.Accounts[0].PrivateKey)
	assert.Empty(t, got.Accounts[1].PrivateKey)
	assert.Contains(t, note, "Private key available for transactions: YES")
	assert.NotContains(t, text, strings.TrimPrefix(chaintest.AnvilKey, "0x"))
}

func TestHandleGetDefaultAddresses(t *testing.T) {
	s := newTestSetup(t, "", nil)

	result, err := s.h.HandleGetDefaultAddresses(context.Background(), makeRequest(nil))
	require.NoError(t, err)

	text := resultText(t, result)
	assert.Contains(t, text, "Address: "+chaintest.Alice.Hex())
	assert.Contains(t, text, "Address: "+chaintest.Bob.Hex())
	assert.Contains(t, text, "Private Key: NOT SET")
	assert.Contains(t, text, "Transactions disabled")
	assert.Contains(t, text, "Anvil Accounts Loaded: 3")
}

// ============================================================
// swap_tokens
// ============================================================

func TestHandleSwapTokens_NoPrivateKey(t *testing.T) {
	s := newTestSetup(t, "", nil)

	result, err := s.h.HandleSwapTokens(context.Background(), makeRequest(map[string]any{
		"from_token": "ETH", "to_token": "USDC", "amount": "1",
	}))
	require.NoError(t, err)
	text := resultText(t, result)
	assert.True(t, strings.HasPrefix(text, "ERROR: Cannot execute swap - private key not available."))
	assert.Contains(t, text, "Requested swap: 1 ETH to USDC")
	assert.Contains(t, text, "DEX: Uniswap V2")
}

func TestHandleSwapTokens_Confirmed(t *testing.T) {
	s := newTestSetup(t, chaintest.AnvilKey, nil)
	s.node.AutoMine = true

	result, err := s.h.HandleSwapTokens(context.Background(), makeRequest(map[string]any{
		"from_token": "eth", "to_token": "usdc", "amount": "1", "slippage": "100",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	text := resultText(t, result)
	assert.True(t, strings.HasPrefix(text, "Token Swap:\n"))
	assert.Contains(t, text, "Swap: 1 ETH → USDC")
	assert.Contains(t, text, "Router: "+chain.UniswapV2Router.Hex())
	assert.Contains(t, text, "Amount: 1 ETH (1000000000000000000 wei)")
	assert.Contains(t, text, "Minimum Out: 0 (no quote available)")
	assert.Contains(t, text, "Slippage: 1%")
	assert.Contains(t, text, "Transaction Confirmed: SUCCESS")
	assert.Contains(t, text, "forked mainnet")

	sent := s.node.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, chain.UniswapV2Router, *sent[0].To())
	assert.Equal(t, []realtime.EventType{realtime.EventSwapSent, realtime.EventTxConfirmed}, s.events.types())
}

func TestHandleSwapTokens_BadInputs(t *testing.T) {
	s := newTestSetup(t, chaintest.AnvilKey, nil)

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"unknown token", map[string]any{"from_token": "ETH", "to_token": "PEPE", "amount": "1"}, "Supported tokens"},
		{"token to token", map[string]any{"from_token": "USDC", "to_token": "DAI", "amount": "1"}, "must start from ETH or WETH"},
		{"bad slippage", map[string]any{"from_token": "ETH", "to_token": "USDC", "amount": "1", "slippage": "5%"}, "Invalid slippage"},
		{"zero amount", map[string]any{"from_token": "ETH", "to_token": "USDC", "amount": "0"}, "invalid amount"},
		{"missing amount", map[string]any{"from_token": "ETH", "to_token": "USDC"}, "required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := s.h.HandleSwapTokens(context.Background(), makeRequest(tt.args))
			require.NoError(t, err)
			assert.True(t, result.IsError)
			assert.Contains(t, resultText(t, result), tt.want)
		})
	}
	assert.Empty(t, s.node.Sent())
}

// ============================================================
// check_transaction_status
// ============================================================

func TestHandleCheckTransactionStatus_Mined(t *testing.T) {
	s := newTestSetup(t, chaintest.AnvilKey, nil)
	s.node.AutoMine = true
	_, err := s.h.HandleSendETH(context.Background(), makeRequest(map[string]any{"to": "bob", "amount": "1"}))
	require.NoError(t, err)
	hash := s.node.Sent()[0].Hash()

	result, err := s.h.HandleCheckTransactionStatus(context.Background(),
		makeRequest(map[string]any{"tx_hash": hash.Hex()}))
	require.NoError(t, err)

	text := resultText(t, result)
	assert.True(t, strings.HasPrefix(text, "Transaction Status: SUCCESS\n"), text)
	assert.Contains(t, text, "Hash: "+hash.Hex())
	assert.Contains(t, text, "- Transaction Type: 0")
	assert.Contains(t, text, "- Contract Address: None")
	assert.Contains(t, text, "- Logs: 0")
}

func TestHandleCheckTransactionStatus_Pending(t *testing.T) {
	s := newTestSetup(t, chaintest.AnvilKey, nil)
	_, err := s.h.HandleSendETH(context.Background(), makeRequest(map[string]any{"to": "bob", "amount": "1"}))
	require.NoError(t, err)
	hash := s.node.Sent()[0].Hash()

	result, err := s.h.HandleCheckTransactionStatus(context.Background(),
		makeRequest(map[string]any{"tx_hash": hash.Hex(), "timeout": float64(0)}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "Transaction Status: PENDING")
}

func TestHandleCheckTransactionStatus_MinedWhileWaiting(t *testing.T) {
	s := newTestSetup(t, chaintest.AnvilKey, nil)
	_, err := s.h.HandleSendETH(context.Background(), makeRequest(map[string]any{"to": "bob", "amount": "1"}))
	require.NoError(t, err)
	hash := s.node.Sent()[0].Hash()

	go func() {
		time.Sleep(20 * time.Millisecond)
		s.node.Mine(hash, types.ReceiptStatusFailed)
	}()

	result, err := s.h.HandleCheckTransactionStatus(context.Background(),
		makeRequest(map[string]any{"tx_hash": hash.Hex(), "timeout": float64(5)}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "Transaction Status: FAILED (Waited for confirmation)")
}

func TestHandleCheckTransactionStatus_NotFoundAndInvalid(t *testing.T) {
	s := newTestSetup(t, "", nil)

	result, err := s.h.HandleCheckTransactionStatus(context.Background(), makeRequest(map[string]any{
		"tx_hash": "0x" + strings.Repeat("ab", 32), "timeout": float64(0),
	}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "Transaction Status: NOT FOUND")

	result, err = s.h.HandleCheckTransactionStatus(context.Background(), makeRequest(map[string]any{"tx_hash": "0x1234"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "Invalid transaction hash")
}

// ============================================================
// search tools
// ============================================================

func braveStub(t *testing.T, seen *[]string) http.Handler {
	var mu sync.Mutex
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		*seen = append(*seen, r.URL.Query().Get("q"))
		mu.Unlock()
		assert.Equal(t, "test-key", r.Header.Get("X-Subscription-Token"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"web": map[string]any{"results": []map[string]any{
				{"title": "Result for " + r.URL.Query().Get("q"), "url": "https://example.com", "description": "desc"},
			}},
		})
	})
}

func TestHandleWebSearch(t *testing.T) {
	var seen []string
	s := newTestSetup(t, "", braveStub(t, &seen))

	result, err := s.h.HandleWebSearch(context.Background(), makeRequest(map[string]any{
		"query": "uniswap v2 router", "count": float64(3),
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	var resp search.Response
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &resp))
	assert.Equal(t, "uniswap v2 router", resp.Query)
	assert.Equal(t, 1, resp.TotalResults)
	assert.Contains(t, resultText(t, result), "\n  \"query\"")
}

func TestHandleGetTokenPriceAndContractInfo(t *testing.T) {
	var seen []string
	s := newTestSetup(t, "", braveStub(t, &seen))

	_, err := s.h.HandleGetTokenPrice(context.Background(), makeRequest(map[string]any{"token": "ETH"}))
	require.NoError(t, err)
	_, err = s.h.HandleGetContractInfo(context.Background(), makeRequest(map[string]any{"contract": "USDC", "network": "polygon"}))
	require.NoError(t, err)

	assert.Equal(t, []string{"ETH USD price", "USDC polygon contract address"}, seen)
}

func TestHandleSwapIntent(t *testing.T) {
	var seen []string
	s := newTestSetup(t, "", braveStub(t, &seen))

	result, err := s.h.HandleSwapIntent(context.Background(), makeRequest(map[string]any{
		"from_token": "ETH", "to_token": "USDC", "amount": "1",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	var intent search.SwapIntent
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &intent))
	assert.Equal(t, "Uniswap V2", intent.DEX)
	require.NotNil(t, intent.RouterSearch)
	require.NotNil(t, intent.PriceSearch)
	assert.ElementsMatch(t, []string{"Uniswap V2 router ethereum contract address", "ETH USDC price"}, seen)
}

func TestSearchTools_NoAPIKey(t *testing.T) {
	s := newTestSetup(t, "", nil)

	for _, call := range []func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error){
		s.h.HandleWebSearch, s.h.HandleGetTokenPrice, s.h.HandleGetContractInfo, s.h.HandleSwapIntent,
	} {
		result, err := call(context.Background(), makeRequest(map[string]any{"query": "x", "token": "x"}))
		require.NoError(t, err)
		assert.True(t, result.IsError)
		assert.Contains(t, resultText(t, result), "BRAVE_SEARCH_API_KEY")
	}
}
