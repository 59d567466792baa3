package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Block is the block header delivered with every occurrence.
type Block struct {
	Number        uint64         `json:"number"`
	Hash          common.Hash    `json:"hash"`
	ParentHash    common.Hash    `json:"parentHash"`
	Timestamp     uint64         `json:"timestamp"`
	Miner         common.Address `json:"miner"`
	GasLimit      uint64         `json:"gasLimit"`
	GasUsed       uint64         `json:"gasUsed"`
	BaseFeePerGas *big.Int       `json:"baseFeePerGas,omitempty"`
}

// Transaction is a transaction with its position in the block.
type Transaction struct {
	Hash     common.Hash     `json:"hash"`
	Index    uint64          `json:"transactionIndex"`
	From     common.Address  `json:"from"`
	To       *common.Address `json:"to,omitempty"`
	Value    *big.Int        `json:"value"`
	Input    hexutil.Bytes   `json:"input"`
	Nonce    uint64          `json:"nonce"`
	Gas      uint64          `json:"gas"`
	GasPrice *big.Int        `json:"gasPrice,omitempty"`
}

// Receipt is a transaction receipt.
type Receipt struct {
	TransactionHash   common.Hash     `json:"transactionHash"`
	Status            uint64          `json:"status"`
	GasUsed           uint64          `json:"gasUsed"`
	CumulativeGasUsed uint64          `json:"cumulativeGasUsed"`
	EffectiveGasPrice *big.Int        `json:"effectiveGasPrice,omitempty"`
	ContractAddress   *common.Address `json:"contractAddress,omitempty"`
	Logs              []Log           `json:"logs"`
}

// Log is an emitted event log.
type Log struct {
	Address          common.Address `json:"address"`
	Topics           []common.Hash  `json:"topics"`
	Data             hexutil.Bytes  `json:"data"`
	Index            uint64         `json:"logIndex"`
	TransactionIndex uint64         `json:"transactionIndex"`
	TransactionHash  common.Hash    `json:"transactionHash"`
	BlockNumber      uint64         `json:"blockNumber"`
	BlockHash        common.Hash    `json:"blockHash"`
	Removed          bool           `json:"removed"`
}

// Trace is one call frame from a transaction trace.
type Trace struct {
	Type         string          `json:"type"`
	From         common.Address  `json:"from"`
	To           *common.Address `json:"to,omitempty"`
	Input        hexutil.Bytes   `json:"input"`
	Output       hexutil.Bytes   `json:"output,omitempty"`
	Value        *big.Int        `json:"value,omitempty"`
	Gas          uint64          `json:"gas"`
	GasUsed      uint64          `json:"gasUsed"`
	Error        string          `json:"error,omitempty"`
	TraceAddress []int           `json:"traceAddress"`
	// Position is the frame's index in the flattened trace of its transaction.
	Position uint64 `json:"position"`
}

// Occurrence is the raw data for one firing of a catalog name, as handed over by
// the sync driver. Which fields are required depends on the kind.
type Occurrence struct {
	ChainID     uint64       `json:"chainId"`
	Block       *Block       `json:"block,omitempty"`
	Transaction *Transaction `json:"transaction,omitempty"`
	Receipt     *Receipt     `json:"receipt,omitempty"`
	Log         *Log         `json:"log,omitempty"`
	Trace       *Trace       `json:"trace,omitempty"`
}
