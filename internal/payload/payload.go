// Package payload builds the per-occurrence event values handed to handlers.
package payload

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/devblac/indexkit/internal/catalog"
	"github.com/devblac/indexkit/internal/model"
)

var (
	ErrMissingBlock       = errors.New("missing block")
	ErrMissingTransaction = errors.New("missing transaction")
	ErrMissingReceipt     = errors.New("missing transaction receipt")
	ErrMissingLog         = errors.New("missing log")
	ErrMissingTrace       = errors.New("missing trace")
	ErrNotDeployed        = errors.New("source is not deployed on chain")
	ErrTracesDisabled     = errors.New("call traces are not enabled on chain")
	ErrDirection          = errors.New("occurrence does not match account direction")
	ErrSignature          = errors.New("occurrence does not match entry signature")
	ErrOutsideWindow      = errors.New("block outside source window")
)

// ConstructionError means the occurrence data does not satisfy what the entry requires.
type ConstructionError struct {
	Name string
	Kind catalog.Kind
	Err  error
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("payload %s (%s): %v", e.Name, e.Kind, e.Err)
}

func (e *ConstructionError) Unwrap() error { return e.Err }

// Event is the payload of one occurrence. The concrete type follows the entry kind.
type Event interface {
	Kind() catalog.Kind
	EventID() string
}

// Setup fires once per deployment chain before any other occurrence of a contract.
type Setup struct {
	ID string `json:"id"`
}

// Log is a decoded contract event.
type Log struct {
	ID                 string            `json:"id"`
	Args               *Args             `json:"args"`
	Log                model.Log         `json:"log"`
	Block              model.Block       `json:"block"`
	Transaction        model.Transaction `json:"transaction"`
	TransactionReceipt *model.Receipt    `json:"transactionReceipt,omitempty"`
}

// Call is a decoded contract function call from a trace.
type Call struct {
	ID          string            `json:"id"`
	Args        *Args             `json:"args,omitempty"`
	Result      *Result           `json:"result,omitempty"`
	Trace       model.Trace       `json:"trace"`
	Block       model.Block       `json:"block"`
	Transaction model.Transaction `json:"transaction"`
}

// HasResult reports whether the function declares outputs.
func (c *Call) HasResult() bool { return c.Result != nil }

// Value is a native value movement.
type Value struct {
	From  common.Address `json:"from"`
	To    common.Address `json:"to"`
	Value *big.Int       `json:"value"`
}

// Transfer is a native transfer into or out of an account.
type Transfer struct {
	ID          string            `json:"id"`
	Transfer    Value             `json:"transfer"`
	Block       model.Block       `json:"block"`
	Transaction model.Transaction `json:"transaction"`
	Trace       model.Trace       `json:"trace"`
}

// Transaction is a top-level transaction sent by or to an account.
type Transaction struct {
	ID                 string            `json:"id"`
	Block              model.Block       `json:"block"`
	Transaction        model.Transaction `json:"transaction"`
	TransactionReceipt model.Receipt     `json:"transactionReceipt"`
}

// Block is a periodic block tick.
type Block struct {
	ID    string      `json:"id"`
	Block model.Block `json:"block"`
}

func (*Setup) Kind() catalog.Kind       { return catalog.KindSetup }
func (*Log) Kind() catalog.Kind         { return catalog.KindLog }
func (*Call) Kind() catalog.Kind        { return catalog.KindFunctionCall }
func (*Transfer) Kind() catalog.Kind    { return catalog.KindAccountTransfer }
func (*Transaction) Kind() catalog.Kind { return catalog.KindAccountTransaction }
func (*Block) Kind() catalog.Kind       { return catalog.KindBlockTick }

func (e *Setup) EventID() string       { return e.ID }
func (e *Log) EventID() string         { return e.ID }
func (e *Call) EventID() string        { return e.ID }
func (e *Transfer) EventID() string    { return e.ID }
func (e *Transaction) EventID() string { return e.ID }
func (e *Block) EventID() string       { return e.ID }
