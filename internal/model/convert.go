package model

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// FromHeader converts a go-ethereum header.
func FromHeader(h *types.Header) Block {
	b := Block{
		Number:     h.Number.Uint64(),
		Hash:       h.Hash(),
		ParentHash: h.ParentHash,
		Timestamp:  h.Time,
		Miner:      h.Coinbase,
		GasLimit:   h.GasLimit,
		GasUsed:    h.GasUsed,
	}
	if h.BaseFee != nil {
		b.BaseFeePerGas = new(big.Int).Set(h.BaseFee)
	}
	return b
}

// FromTransaction converts a go-ethereum transaction, recovering the sender with signer.
func FromTransaction(tx *types.Transaction, index uint64, signer types.Signer) (Transaction, error) {
	from, err := types.Sender(signer, tx)
	if err != nil {
		return Transaction{}, fmt.Errorf("recover sender of %s: %w", tx.Hash().Hex(), err)
	}
	return Transaction{
		Hash:     tx.Hash(),
		Index:    index,
		From:     from,
		To:       tx.To(),
		Value:    tx.Value(),
		Input:    tx.Data(),
		Nonce:    tx.Nonce(),
		Gas:      tx.Gas(),
		GasPrice: tx.GasPrice(),
	}, nil
}

// FromLog converts a go-ethereum log.
func FromLog(l *types.Log) Log {
	return Log{
		Address:          l.Address,
		Topics:           append([]common.Hash(nil), l.Topics...),
		Data:             append([]byte(nil), l.Data...),
		Index:            uint64(l.Index),
		TransactionIndex: uint64(l.TxIndex),
		TransactionHash:  l.TxHash,
		BlockNumber:      l.BlockNumber,
		BlockHash:        l.BlockHash,
		Removed:          l.Removed,
	}
}

// FromReceipt converts a go-ethereum receipt.
func FromReceipt(r *types.Receipt) Receipt {
	out := Receipt{
		TransactionHash:   r.TxHash,
		Status:            r.Status,
		GasUsed:           r.GasUsed,
		CumulativeGasUsed: r.CumulativeGasUsed,
		EffectiveGasPrice: r.EffectiveGasPrice,
		Logs:              make([]Log, 0, len(r.Logs)),
	}
	if r.ContractAddress != (common.Address{}) {
		addr := r.ContractAddress
		out.ContractAddress = &addr
	}
	for _, l := range r.Logs {
		out.Logs = append(out.Logs, FromLog(l))
	}
	return out
}
