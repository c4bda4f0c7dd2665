package chain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidPrivateKey = errors.New("chain: invalid private key")
	ErrNoPrivateKey      = errors.New("chain: private key not available")
	ErrInvalidAddress    = errors.New("chain: invalid address")
	ErrInvalidAmount     = errors.New("chain: invalid amount")
	ErrInvalidTxHash     = errors.New("chain: invalid transaction hash")
	ErrUnknownToken      = errors.New("chain: unknown token")
	ErrNoAccounts        = errors.New("chain: no accounts available from node")
	ErrTooFewAccounts    = errors.New("chain: need at least 2 accounts for Alice and Bob")
	ErrENSResolution     = errors.New("chain: ENS resolution failed")
	ErrTimeout           = errors.New("chain: operation timed out")
	ErrRPCConnection     = errors.New("chain: RPC connection failed")
)

// TxError wraps transaction failures with the step and hash involved.
type TxError struct {
	Op     string // nonce, gas_price, sign, send, ...
	TxHash string
	Err    error
}

func (e *TxError) Error() string {
	if e.TxHash != "" {
		return fmt.Sprintf("chain: %s failed (tx: %s): %v", e.Op, e.TxHash, e.Err)
	}
	return fmt.Sprintf("chain: %s failed: %v", e.Op, e.Err)
}

func (e *TxError) Unwrap() error { return e.Err }

// InvalidAddressError carries the rejected input.
type InvalidAddressError struct {
	Input string
}

func (e *InvalidAddressError) Error() string {
	return fmt.Sprintf("Invalid recipient address: '%s'\n\n"+
		"Valid formats:\n"+
		"- Ethereum address: 0x742d35Cc6634C0532925a3b8D8C9C0C4e8C6C85b\n"+
		"- ENS name: vitalik.eth\n"+
		"- Known accounts: alice, bob, account0, account1, etc.\n\n"+
		"Please provide a valid recipient address.", e.Input)
}

func (e *InvalidAddressError) Unwrap() error { return ErrInvalidAddress }
