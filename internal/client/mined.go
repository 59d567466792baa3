package client

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Mined is a transaction included in a block, with its receipt and block header.
type Mined struct {
	Header  *types.Header
	Tx      *types.Transaction
	Receipt *types.Receipt
}

func (c *chainClient) Transaction(ctx context.Context, hash common.Hash) (*Mined, error) {
	key := "tx:" + hash.Hex()
	if v, ok := c.cached(key); ok {
		return v.(*Mined), nil
	}

	c.limiter.Take()
	tx, pending, err := c.eth.TransactionByHash(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("transaction %s: %w", hash.Hex(), err)
	}
	if pending {
		return nil, fmt.Errorf("transaction %s is pending", hash.Hex())
	}
	c.limiter.Take()
	receipt, err := c.eth.TransactionReceipt(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("receipt %s: %w", hash.Hex(), err)
	}
	c.limiter.Take()
	header, err := c.eth.HeaderByHash(ctx, receipt.BlockHash)
	if err != nil {
		return nil, fmt.Errorf("header %s: %w", receipt.BlockHash.Hex(), err)
	}

	m := &Mined{Header: header, Tx: tx, Receipt: receipt}
	n := header.Number.Uint64()
	c.store(key, &n, m)
	return m, nil
}

func (unavailable) Transaction(context.Context, common.Hash) (*Mined, error) {
	return nil, ErrNoEndpoint
}
