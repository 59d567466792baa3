package client

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/devblac/indexkit/internal/descriptor"
)

// ErrENSUnsupported is returned by GetEnsName off mainnet.
var ErrENSUnsupported = errors.New("ens reverse resolution is only available on mainnet")

const mainnetChainID = 1

var ensRegistry = common.HexToAddress("0x00000000000C2E074eC69A0dFb2997BA6C7d2e1e")

var (
	ensResolver = mustEntry("function resolver(bytes32 node) view returns (address)")
	ensName     = mustEntry("function name(bytes32 node) view returns (string)")
)

func (c *chainClient) GetEnsName(ctx context.Context, addr common.Address) (string, error) {
	if c.id != mainnetChainID {
		return "", ErrENSUnsupported
	}
	node := namehash(reverseName(addr))

	out, err := c.ReadContract(ctx, Call{Address: ensRegistry, Function: ensResolver, Args: []any{node}})
	if err != nil {
		return "", fmt.Errorf("ens resolver: %w", err)
	}
	resolver, _ := out[0].(common.Address)
	if resolver == (common.Address{}) {
		return "", nil
	}

	out, err = c.ReadContract(ctx, Call{Address: resolver, Function: ensName, Args: []any{node}})
	if err != nil {
		return "", fmt.Errorf("ens name: %w", err)
	}
	name, _ := out[0].(string)
	return name, nil
}

func reverseName(addr common.Address) string {
	return strings.ToLower(addr.Hex()[2:]) + ".addr.reverse"
}

// namehash implements EIP-137 name hashing.
func namehash(name string) [32]byte {
	var node [32]byte
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

func mustEntry(sig string) descriptor.Entry {
	e, ok, err := descriptor.ParseSignature(sig)
	if err != nil || !ok {
		panic(fmt.Sprintf("parse %q: ok=%v err=%v", sig, ok, err))
	}
	return e
}
