package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mbd888/ethagent/internal/chain"
	"github.com/mbd888/ethagent/internal/realtime"
	"github.com/mbd888/ethagent/internal/search"
	"github.com/mbd888/ethagent/internal/units"
)

// DefaultDEX is reported when a swap request names no DEX.
const DefaultDEX = "Uniswap V2"

// Publisher receives activity events. *realtime.Hub implements it.
type Publisher interface {
	PublishToolCall(tool, result string, took time.Duration)
	PublishTx(t realtime.EventType, tx realtime.Tx)
}

type nopPublisher struct{}

func (nopPublisher) PublishToolCall(string, string, time.Duration) {}
func (nopPublisher) PublishTx(realtime.EventType, realtime.Tx)      {}

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	chain          *chain.Service
	search         *search.Client
	events         Publisher
	logger         *slog.Logger
	confirmTimeout time.Duration
}

// HandlerOption configures Handlers.
type HandlerOption func(*Handlers)

// WithPublisher sends tool and transaction events to p.
func WithPublisher(p Publisher) HandlerOption {
	return func(h *Handlers) {
		if p != nil {
			h.events = p
		}
	}
}

// WithConfirmTimeout bounds how long send_eth and swap_tokens wait for a receipt.
func WithConfirmTimeout(d time.Duration) HandlerOption {
	return func(h *Handlers) { h.confirmTimeout = d }
}

// WithHandlerLogger sets the logger.
func WithHandlerLogger(l *slog.Logger) HandlerOption {
	return func(h *Handlers) { h.logger = l }
}

// NewHandlers creates a new Handlers instance. searchClient may be nil, in
// which case the search tools report a missing API key.
func NewHandlers(svc *chain.Service, searchClient *search.Client, opts ...HandlerOption) *Handlers {
	h := &Handlers{
		chain:          svc,
		search:         searchClient,
		events:         nopPublisher{},
		logger:         slog.Default(),
		confirmTimeout: chain.DefaultConfirmationTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleBalance returns the ETH balance of any resolvable account.
func (h *Handlers) HandleBalance(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	who := req.GetString("who", "")
	if who == "" {
		return mcp.NewToolResultError("who is required"), nil
	}

	addr, err := h.chain.ResolveAddress(ctx, who)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	bal, err := h.chain.Balance(ctx, addr.Address)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get balance: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf(
		"ETH Balance Query:\nAccount: %s (resolved to %s)\nBalance: %s ETH (%s wei)",
		who, addr.Address.Hex(), units.FormatEther(bal), bal)), nil
}

// HandleSendETH transfers ETH from Alice and waits for the receipt.
func (h *Handlers) HandleSendETH(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	to := req.GetString("to", "")
	amount := req.GetString("amount", "")
	if to == "" || amount == "" {
		return mcp.NewToolResultError("to and amount are required"), nil
	}

	recipient, err := h.chain.ResolveAddress(ctx, to)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	alice := h.chain.Alice().Hex()

	if !h.chain.HasPrivateKey() {
		return mcp.NewToolResultText(fmt.Sprintf(
			"ERROR: Cannot send transaction - private key not available.\n\n"+
				"Alice's address: %s\n"+
				"Validated recipient: %s (%s)\n"+
				"Requested transfer: %s ETH\n\n"+
				"%s\n\n"+
				"The private key should correspond to Alice's address (%s).\n"+
				"Accounts are loaded dynamically from anvil, but private keys must be\n"+
				"provided via environment variables for security.",
			alice, recipient.Address.Hex(), recipient.Type, amount, keySolution, alice)), nil
	}

	tx, err := h.chain.SendETH(ctx, recipient.Address, amount)
	if err != nil {
		if errors.Is(err, chain.ErrInvalidAmount) {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("Failed to send transaction: %v", err)), nil
	}
	h.logger.Info("transaction sent", "hash", tx.Hash.Hex(), "to", tx.To.Hex(), "wei", tx.Value)
	h.events.PublishTx(realtime.EventTxSent, txEvent(tx, ""))

	header := fmt.Sprintf("ETH Transfer:\nFrom: %s (Alice)\nTo: %s (%s)\nAmount: %s ETH\n",
		tx.From.Hex(), recipient.Address.Hex(), recipient.Type, amount)

	report, werr := h.confirm(ctx, tx)
	if werr != nil {
		h.logger.Warn("transaction confirmation timed out", "hash", tx.Hash.Hex(), "error", werr)
		return mcp.NewToolResultText(fmt.Sprintf(
			"ETH Transfer Sent:\nFrom: %s (Alice)\nTo: %s (%s)\nAmount: %s ETH\n"+
				"Transaction Hash: %s\n"+
				"Status: Sent to network (confirmation timeout)\n\n%s",
			tx.From.Hex(), recipient.Address.Hex(), recipient.Type, amount, tx.Hash.Hex(), timeoutHint(tx.Hash))), nil
	}

	return mcp.NewToolResultText(header + "\n" + confirmationText(report)), nil
}

// HandleIsContractDeployed reports whether code exists at an address.
func (h *Handlers) HandleIsContractDeployed(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input := req.GetString("address", "")
	if input == "" {
		return mcp.NewToolResultError("address is required"), nil
	}

	addr, err := h.chain.ResolveAddress(ctx, input)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	code, err := h.chain.Code(ctx, addr.Address)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get code: %v", err)), nil
	}

	status := "NOT DEPLOYED"
	if len(code) > 0 {
		status = "DEPLOYED"
	}

	return mcp.NewToolResultText(fmt.Sprintf(
		"Contract Deployment Check:\nInput: %s (%s)\nResolved Address: %s\nStatus: %s\nCode Length: %d bytes",
		addr.Input, addr.Type, addr.Address.Hex(), status, len(code))), nil
}

// HandleTokenBalance returns an ERC-20 balance with symbol and decimals.
func (h *Handlers) HandleTokenBalance(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tokenInput := req.GetString("token_address", "")
	accountInput := req.GetString("account_address", "")
	if tokenInput == "" || accountInput == "" {
		return mcp.NewToolResultError("token_address and account_address are required"), nil
	}

	token, err := chain.TokenAddress(tokenInput)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid token address: %v", err)), nil
	}
	account, err := h.chain.ResolveAddress(ctx, accountInput)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid account address: %v", err)), nil
	}

	bal, err := h.chain.TokenBalance(ctx, token, account.Address)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to call token contract: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf(
		"Token Balance:\nAccount: %s\nToken: %s (%s)\nBalance: %s (raw: %s)",
		accountInput, tokenInput, bal.Symbol, bal.Formatted, bal.Raw)), nil
}

type accountList struct {
	Accounts []chain.Account `json:"accounts"`
	Total    int             `json:"total"`
}

// HandleGetAccounts lists the node accounts without keys.
func (h *Handlers) HandleGetAccounts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	accts := h.chain.Accounts()
	out, err := json.MarshalIndent(accountList{Accounts: accts, Total: len(accts)}, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode accounts: %v", err)), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

// HandleGetPrivateKeys lists the accounts with Alice's masked key.
func (h *Handlers) HandleGetPrivateKeys(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	accts := h.chain.AccountsWithKeys()
	out, err := json.MarshalIndent(accountList{Accounts: accts, Total: len(accts)}, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode accounts: %v", err)), nil
	}

	available := "NO"
	if h.chain.HasPrivateKey() {
		available = "YES"
	}

	return mcp.NewToolResultText(fmt.Sprintf(
		"%s\n\nNOTE: Account addresses loaded dynamically from anvil via eth_accounts RPC.\n"+
			"Private key for Alice (account 0) loaded from environment variable.\n"+
			"Environment variables checked: ALICE_PRIVATE_KEY, PRIVATE_KEY\n"+
			"Private key available for transactions: %s\n\n"+
			"Other accounts would need their private keys provided via additional\n"+
			"environment variables to enable transactions from those addresses.",
		out, available)), nil
}

// HandleGetDefaultAddresses describes Alice and Bob.
func (h *Handlers) HandleGetDefaultAddresses(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	keyState, txState := "NOT SET", "Transactions disabled"
	if h.chain.HasPrivateKey() {
		keyState, txState = "SET", "Transactions enabled"
	}

	var b strings.Builder
	b.WriteString("Default Addresses:\n\n")
	fmt.Fprintf(&b, "Alice (Account 0 - Default Sender):\nAddress: %s\nPrivate Key: %s\nStatus: %s\n\n",
		h.chain.Alice().Hex(), keyState, txState)
	fmt.Fprintf(&b, "Bob (Account 1 - Default Recipient):\nAddress: %s\nPrivate Key: Not available (for security)\n\n",
		h.chain.Bob().Hex())
	b.WriteString("Usage:\n" +
		"- Alice (Account 0) is the default sender for all transactions\n" +
		"- Bob (Account 1) is the default recipient when not specified\n" +
		"- Addresses are loaded dynamically from anvil\n" +
		"- Alice's private key must be set in the environment for transactions\n\n")
	b.WriteString("Example Commands:\n" +
		"- \"send 1 ETH from Alice to Bob\"\n" +
		"- \"send 0.5 ETH to Bob\" (Alice is default sender)\n" +
		"- \"How much ETH does Alice have?\"\n\n")
	fmt.Fprintf(&b, "Anvil Accounts Loaded: %d", h.chain.AccountCount())
	if h.chain.HasPrivateKey() && !h.chain.KeyMatchesAlice() {
		b.WriteString("\n\nWARNING: the configured private key does not belong to account 0.")
	}

	return mcp.NewToolResultText(b.String()), nil
}

// HandleSwapTokens swaps ETH for a token through the Uniswap V2 router.
func (h *Handlers) HandleSwapTokens(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	from := req.GetString("from_token", "")
	to := req.GetString("to_token", "")
	amount := req.GetString("amount", "")
	if from == "" || to == "" || amount == "" {
		return mcp.NewToolResultError("from_token, to_token and amount are required"), nil
	}
	dex := req.GetString("dex", "")
	if dex == "" {
		dex = DefaultDEX
	}

	alice := h.chain.Alice().Hex()
	if !h.chain.HasPrivateKey() {
		return mcp.NewToolResultText(fmt.Sprintf(
			"ERROR: Cannot execute swap - private key not available.\n\n"+
				"Alice's address: %s\n"+
				"Requested swap: %s %s to %s\n"+
				"DEX: %s\n\n"+
				"%s\n\n"+
				"The private key should correspond to Alice's address (%s).",
			alice, amount, from, to, dex, keySolution, alice)), nil
	}

	bps := int64(-1)
	if s := req.GetString("slippage", ""); s != "" {
		v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil || v < 0 || v > 10_000 {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid slippage %q: want basis points between 0 and 10000", s)), nil
		}
		bps = v
	}

	res, err := h.chain.Swap(ctx, chain.SwapRequest{FromToken: from, ToToken: to, Amount: amount, SlippageBps: bps})
	if err != nil {
		if errors.Is(err, chain.ErrUnknownToken) || errors.Is(err, chain.ErrInvalidAmount) {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("Failed to send swap transaction: %v", err)), nil
	}
	h.logger.Info("swap sent", "hash", res.Tx.Hash.Hex(), "path", fmt.Sprintf("%s->%s", from, to), "min_out", res.AmountOutMin)
	h.events.PublishTx(realtime.EventSwapSent, txEvent(res.Tx, ""))

	minOut := res.AmountOutMin.String()
	if !res.Quoted {
		minOut += " (no quote available)"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s (Alice)\n", res.Tx.From.Hex())
	fmt.Fprintf(&b, "Swap: %s %s → %s\n", amount, strings.ToUpper(from), strings.ToUpper(to))
	fmt.Fprintf(&b, "DEX: %s\n", dex)
	fmt.Fprintf(&b, "Router: %s\n", res.Router.Hex())
	fmt.Fprintf(&b, "Amount: %s %s (%s wei)\n", amount, strings.ToUpper(from), res.AmountIn)
	fmt.Fprintf(&b, "Path: %s → %s\n", res.Path[0].Hex(), res.Path[1].Hex())
	fmt.Fprintf(&b, "Minimum Out: %s\n", minOut)
	fmt.Fprintf(&b, "Slippage: %s%%\n", strconv.FormatFloat(float64(res.SlippageBps)/100, 'f', -1, 64))
	fmt.Fprintf(&b, "Deadline: %s\n", res.Deadline)
	details := b.String()

	const note = "Note: This is a test transaction on forked mainnet.\n" +
		"The swap will execute using real Uniswap V2 contracts."

	report, werr := h.confirm(ctx, res.Tx)
	if werr != nil {
		return mcp.NewToolResultText(fmt.Sprintf(
			"Token Swap Sent:\n%sTransaction Hash: %s\nStatus: Sent to network (confirmation timeout)\n\n%s\n\n%s",
			details, res.Tx.Hash.Hex(), timeoutHint(res.Tx.Hash), note)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Token Swap:\n%s\n%s\n\n%s", details, confirmationText(report), note)), nil
}

// HandleCheckTransactionStatus reports a receipt, waiting up to timeout seconds.
func (h *Handlers) HandleCheckTransactionStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	hash, err := chain.ParseTxHash(req.GetString("tx_hash", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid transaction hash: %v", err)), nil
	}
	timeout := req.GetInt("timeout", int(chain.DefaultConfirmationTimeout/time.Second))
	if timeout < 0 {
		timeout = 0
	}

	report, err := h.chain.TxStatus(ctx, hash, time.Duration(timeout)*time.Second)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to check transaction status: %v", err)), nil
	}

	switch report.State {
	case chain.TxPending:
		return mcp.NewToolResultText(fmt.Sprintf(
			"Transaction Status: PENDING\nHash: %s\n"+
				"Status: Transaction is in mempool but not yet mined\n\n"+
				"The transaction was sent to the network and is waiting to be included in a block.\n"+
				"Try checking again in a few seconds, or increase the timeout parameter.\n\n"+
				"Tip: Use a longer timeout (e.g., 60 seconds) for slower networks.",
			hash.Hex())), nil
	case chain.TxNotFound:
		return mcp.NewToolResultText(fmt.Sprintf(
			"Transaction Status: NOT FOUND\nHash: %s\n"+
				"Status: Transaction not found in mempool or blockchain\n\n"+
				"This transaction hash was not found on the network.\n"+
				"Possible reasons:\n"+
				"- Transaction was never sent\n"+
				"- Transaction was dropped from mempool\n"+
				"- Invalid transaction hash\n"+
				"- Wrong network",
			hash.Hex())), nil
	}

	title := string(report.State)
	if report.Waited {
		title += " (Waited for confirmation)"
	}
	contract := "None"
	if report.ContractAddress != nil {
		contract = report.ContractAddress.Hex()
	}

	return mcp.NewToolResultText(fmt.Sprintf(
		"Transaction Status: %s\n%s\n\nReceipt Details:\n"+
			"- Transaction Type: %d\n"+
			"- Cumulative Gas Used: %d\n"+
			"- Contract Address: %s\n"+
			"- Logs: %d",
		title, receiptLines(report), report.Type, report.CumulativeGasUsed, contract, report.Logs)), nil
}

// confirm waits for tx to be mined and publishes the outcome.
func (h *Handlers) confirm(ctx context.Context, tx *chain.TxResult) (*chain.TxReport, error) {
	receipt, err := h.chain.WaitForReceipt(ctx, tx.Hash, h.confirmTimeout)
	if err != nil {
		return nil, err
	}
	report := chain.ReportFromReceipt(tx.Hash, receipt)
	ev := txEvent(tx, strings.ToLower(string(report.State)))
	ev.Block = report.BlockNumber
	h.events.PublishTx(realtime.EventTxConfirmed, ev)
	return report, nil
}

const keySolution = "SOLUTION: Set the private key in your environment:\n" +
	"export ALICE_PRIVATE_KEY=\"0x...\"\n" +
	"or\n" +
	"export PRIVATE_KEY=\"0x...\""

func timeoutHint(hash common.Hash) string {
	return "Transaction was sent but confirmation timed out.\n" +
		"Use check_transaction_status with hash " + hash.Hex() + " to check the final status."
}

func confirmationText(r *chain.TxReport) string {
	return fmt.Sprintf("Transaction Confirmed: %s\n%s", r.State, receiptLines(r))
}

func receiptLines(r *chain.TxReport) string {
	return fmt.Sprintf(
		"Hash: %s\nBlock Number: %d\nGas Used: %d\nGas Price: %s wei\nTotal Cost: %s wei (%s ETH)\nStatus: %s",
		r.Hash.Hex(), r.BlockNumber, r.GasUsed, r.GasPrice, r.TotalCost, units.FormatEther(r.TotalCost), r.State)
}

func txEvent(tx *chain.TxResult, status string) realtime.Tx {
	value := new(big.Int)
	if tx.Value != nil {
		value = tx.Value
	}
	return realtime.Tx{
		Hash:   tx.Hash.Hex(),
		From:   tx.From.Hex(),
		To:     tx.To.Hex(),
		Value:  value.String(),
		Status: status,
	}
}
