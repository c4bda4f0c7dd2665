package chain

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ENSRegistry is the mainnet ENS registry, present on forked nodes.
var ENSRegistry = common.HexToAddress("0x00000000000C2E074eC69A0dFb2997BA6C7d2e1e")

// Address type labels shown in tool output.
const (
	TypeHex   = "Ethereum Address"
	TypeENS   = "ENS Name (resolved)"
	TypeAlice = "Alice (Account 0 - Default Sender)"
	TypeBob   = "Bob (Account 1 - Default Recipient)"
)

// ValidatedAddress is a user-supplied recipient after resolution.
type ValidatedAddress struct {
	Input   string // what to display: the input, or the account address for names
	Address common.Address
	Type    string
}

// ResolveAddress turns a hex address, ENS name, "alice"/"bob" or
// "account0".."account9" into an address. Checks run in that order.
func (s *Service) ResolveAddress(ctx context.Context, input string) (*ValidatedAddress, error) {
	in := strings.TrimSpace(input)

	if common.IsHexAddress(in) {
		return &ValidatedAddress{Input: in, Address: common.HexToAddress(in), Type: TypeHex}, nil
	}

	if strings.Contains(in, ".") {
		addr, err := s.ResolveENS(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("Failed to resolve ENS name '%s': %w", in, err)
		}
		return &ValidatedAddress{Input: in, Address: addr, Type: TypeENS}, nil
	}

	switch lower := strings.ToLower(in); {
	case lower == "alice":
		return &ValidatedAddress{Input: s.Alice().Hex(), Address: s.Alice(), Type: TypeAlice}, nil
	case lower == "bob":
		return &ValidatedAddress{Input: s.Bob().Hex(), Address: s.Bob(), Type: TypeBob}, nil
	case len(lower) == len("account0") && strings.HasPrefix(lower, "account"):
		idx, err := strconv.Atoi(lower[len("account"):])
		if err == nil && idx < len(s.accounts) {
			a := s.accounts[idx]
			return &ValidatedAddress{Input: a.Hex(), Address: a, Type: fmt.Sprintf("Anvil Account %d", idx)}, nil
		}
	}

	return nil, &InvalidAddressError{Input: in}
}

// ResolveENS looks the name up through the registry and its resolver.
func (s *Service) ResolveENS(ctx context.Context, name string) (common.Address, error) {
	node := Namehash(name)

	resolver, err := s.ensAddress(ctx, ENSRegistry, "resolver", node)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: registry lookup: %v", ErrENSResolution, err)
	}
	if resolver == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: no resolver for %s", ErrENSResolution, name)
	}

	addr, err := s.ensAddress(ctx, resolver, "addr", node)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: resolver lookup: %v", ErrENSResolution, err)
	}
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: %s has no address record", ErrENSResolution, name)
	}
	return addr, nil
}

func (s *Service) ensAddress(ctx context.Context, contract common.Address, method string, node [32]byte) (common.Address, error) {
	data, err := s.ens.Pack(method, node)
	if err != nil {
		return common.Address{}, err
	}
	out, err := s.call(ctx, contract, data)
	if err != nil {
		return common.Address{}, err
	}
	if len(out) == 0 {
		return common.Address{}, nil
	}
	vals, err := s.ens.Unpack(method, out)
	if err != nil {
		return common.Address{}, err
	}
	addr, ok := vals[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("unexpected %s return type %T", method, vals[0])
	}
	return addr, nil
}

// Namehash implements the EIP-137 name hash. Labels are lowercased; full
// UTS-46 normalization is not applied.
func Namehash(name string) [32]byte {
	var node [32]byte
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return node
	}
	labels := strings.Split(name, ".")
	for i := len(labels) - 1; i >= 0; i-- {
		label := crypto.Keccak256([]byte(labels[i]))
		copy(node[:], crypto.Keccak256(node[:], label))
	}
	return node
}
