package payload

import (
	"encoding/json"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/devblac/indexkit/internal/catalog"
	"github.com/devblac/indexkit/internal/config"
	"github.com/devblac/indexkit/internal/model"
	"github.com/devblac/indexkit/internal/source"
)

const fixture = `
version: 1
chains:
  mainnet: {id: 1}
  optimism: {id: 10}
contracts:
  c1:
    abi:
      - "event Event0(bytes32 indexed arg, bytes32 indexed arg1)"
      - "event Deposit(address indexed who, uint256 amount)"
      - "event Tagged(bytes32 indexed arg1, bytes32 indexed)"
      - "function func0(address) returns (uint256)"
      - "function pair() returns (uint256, address)"
    chain: mainnet
    address: "0x0000000000000000000000000000000000000001"
    include_call_traces: true
  c2:
    abi:
      - "event Event1()"
      - "event Event1(bytes32)"
      - "function func1()"
      - "function func1(bytes32)"
    address: "0x0000000000000000000000000000000000000069"
    chain:
      mainnet: {start_block: 1, include_transaction_receipts: true, include_call_traces: true}
      optimism: {}
accounts:
  a1:
    address: "0x0000000000000000000000000000000000000abc"
    chain: mainnet
blocks:
  b1:
    interval: 2
    start_block: 1
    chain: mainnet
`

var (
	mainnet  = source.Chain{Name: "mainnet", ID: 1}
	optimism = source.Chain{Name: "optimism", ID: 10}
	account  = common.HexToAddress("0x0000000000000000000000000000000000000abc")
	other    = common.HexToAddress("0x0000000000000000000000000000000000000def")
)

type harness struct {
	cat     *catalog.Catalog
	builder *Builder
}

func newHarness(t *testing.T) harness {
	t.Helper()
	cfg, err := config.Parse([]byte(fixture))
	require.NoError(t, err)
	set, err := source.Normalize(cfg)
	require.NoError(t, err)
	cat, err := catalog.Build(set, zap.NewNop())
	require.NoError(t, err)
	b, err := NewBuilder(cat)
	require.NoError(t, err)
	return harness{cat: cat, builder: b}
}

func (h harness) build(t *testing.T, name string, chain source.Chain, occ model.Occurrence) (Event, error) {
	t.Helper()
	e, ok := h.cat.Lookup(name)
	require.True(t, ok, name)
	return h.builder.Build(e, chain, occ)
}

func (h harness) entry(t *testing.T, name string) *catalog.Entry {
	t.Helper()
	e, ok := h.cat.Lookup(name)
	require.True(t, ok, name)
	return e
}

func block(n uint64) *model.Block {
	return &model.Block{Number: n, Hash: common.BigToHash(big.NewInt(int64(n)))}
}

func tx(index uint64, from common.Address, to *common.Address) *model.Transaction {
	return &model.Transaction{Hash: common.BigToHash(big.NewInt(int64(1000 + index))), Index: index, From: from, To: to, Value: big.NewInt(0)}
}

func TestLogNamedArgsWithoutReceipt(t *testing.T) {
	h := newHarness(t)
	d := h.entry(t, "c1:Event0").Descriptor
	a, b := common.HexToHash("0xaa"), common.HexToHash("0xbb")

	ev, err := h.build(t, "c1:Event0", mainnet, model.Occurrence{
		Block:       block(10),
		Transaction: tx(2, other, nil),
		Receipt:     &model.Receipt{},
		Log:         &model.Log{Topics: []common.Hash{d.Topic(), a, b}, Index: 5, TransactionIndex: 2},
	})
	require.NoError(t, err)

	log, ok := ev.(*Log)
	require.True(t, ok)
	require.Equal(t, catalog.KindLog, log.Kind())
	require.True(t, log.Args.Named())
	got, ok := log.Args.Get("arg1")
	require.True(t, ok)
	require.Equal(t, [32]byte(b), got)
	require.Nil(t, log.TransactionReceipt, "receipts are not enabled for c1")

	raw, err := json.Marshal(log)
	require.NoError(t, err)
	require.NotContains(t, string(raw), "transactionReceipt")
	require.Contains(t, string(raw), `"arg":"`+a.Hex()+`"`)
}

func TestLogUnnamedParamBesideLookalikeName(t *testing.T) {
	h := newHarness(t)
	d := h.entry(t, "c1:Tagged").Descriptor
	a, b := common.HexToHash("0xaa"), common.HexToHash("0xbb")

	ev, err := h.build(t, "c1:Tagged", mainnet, model.Occurrence{
		Block:       block(10),
		Transaction: tx(1, other, nil),
		Log:         &model.Log{Topics: []common.Hash{d.Topic(), a, b}},
	})
	require.NoError(t, err)

	args := ev.(*Log).Args
	require.False(t, args.Named())
	first, _ := args.At(0)
	second, _ := args.At(1)
	require.Equal(t, [32]byte(a), first)
	require.Equal(t, [32]byte(b), second)
}

func TestLogMixedIndexedAndData(t *testing.T) {
	h := newHarness(t)
	d := h.entry(t, "c1:Deposit").Descriptor
	args, err := d.Inputs.Arguments()
	require.NoError(t, err)
	data, err := args.NonIndexed().Pack(big.NewInt(77))
	require.NoError(t, err)

	ev, err := h.build(t, "c1:Deposit", mainnet, model.Occurrence{
		Block:       block(10),
		Transaction: tx(0, other, nil),
		Log:         &model.Log{Topics: []common.Hash{d.Topic(), common.BytesToHash(account.Bytes())}, Data: data},
	})
	require.NoError(t, err)
	log := ev.(*Log)
	who, _ := log.Args.Get("who")
	amount, _ := log.Args.Get("amount")
	require.Equal(t, account, who)
	require.Equal(t, 0, big.NewInt(77).Cmp(amount.(*big.Int)))
}

func TestLogReceiptFollowsChainFlag(t *testing.T) {
	h := newHarness(t)
	occ := func(receipt *model.Receipt) model.Occurrence {
		return model.Occurrence{
			Block:       block(10),
			Transaction: tx(0, other, nil),
			Receipt:     receipt,
			Log:         &model.Log{Topics: []common.Hash{h.entry(t, "c2:Event1()").Descriptor.Topic()}},
		}
	}

	ev, err := h.build(t, "c2:Event1()", mainnet, occ(&model.Receipt{Status: 1}))
	require.NoError(t, err)
	require.NotNil(t, ev.(*Log).TransactionReceipt)
	require.False(t, ev.(*Log).Args.Named(), "overloaded entries use positional args")
	require.Equal(t, 0, ev.(*Log).Args.Len())

	ev, err = h.build(t, "c2:Event1()", optimism, occ(&model.Receipt{Status: 1}))
	require.NoError(t, err)
	require.Nil(t, ev.(*Log).TransactionReceipt)

	_, err = h.build(t, "c2:Event1()", mainnet, occ(nil))
	var cerr *ConstructionError
	require.ErrorAs(t, err, &cerr)
	require.ErrorIs(t, err, ErrMissingReceipt)
}

func TestLogOverloadPositionalArgs(t *testing.T) {
	h := newHarness(t)
	d := h.entry(t, "c2:Event1(bytes32)").Descriptor
	value := common.HexToHash("0x1234")

	ev, err := h.build(t, "c2:Event1(bytes32)", optimism, model.Occurrence{
		Block:       block(3),
		Transaction: tx(0, other, nil),
		Log:         &model.Log{Topics: []common.Hash{d.Topic()}, Data: value.Bytes()},
	})
	require.NoError(t, err)
	args := ev.(*Log).Args
	require.False(t, args.Named())
	v, ok := args.At(0)
	require.True(t, ok)
	require.Equal(t, [32]byte(value), v)

	raw, err := json.Marshal(args)
	require.NoError(t, err)
	require.JSONEq(t, `["`+value.Hex()+`"]`, string(raw))
}

func TestLogWrongTopicFails(t *testing.T) {
	h := newHarness(t)
	_, err := h.build(t, "c1:Event0", mainnet, model.Occurrence{
		Block:       block(1),
		Transaction: tx(0, other, nil),
		Log:         &model.Log{Topics: []common.Hash{common.HexToHash("0x01")}},
	})
	require.ErrorIs(t, err, ErrSignature)
}

func TestCallArgsAndResult(t *testing.T) {
	h := newHarness(t)
	d := h.entry(t, "c1.func0").Descriptor
	inputs, err := d.Inputs.Arguments()
	require.NoError(t, err)
	packed, err := inputs.Pack(account)
	require.NoError(t, err)
	outputs, err := d.Outputs.Arguments()
	require.NoError(t, err)
	out, err := outputs.Pack(big.NewInt(9))
	require.NoError(t, err)

	to := common.HexToAddress("0x01")
	ev, err := h.build(t, "c1.func0", mainnet, model.Occurrence{
		Block:       block(10),
		Transaction: tx(1, other, &to),
		Trace:       &model.Trace{Type: "CALL", From: other, To: &to, Input: append(d.Selector(), packed...), Output: out, Position: 3},
	})
	require.NoError(t, err)
	call := ev.(*Call)
	require.True(t, call.HasResult())
	require.Equal(t, 0, big.NewInt(9).Cmp(call.Result.Value.(*big.Int)))
	require.False(t, call.Args.Named(), "unnamed parameters are positional")
	v, _ := call.Args.At(0)
	require.Equal(t, account, v)
}

func TestCallMultipleOutputs(t *testing.T) {
	h := newHarness(t)
	d := h.entry(t, "c1.pair").Descriptor
	outputs, err := d.Outputs.Arguments()
	require.NoError(t, err)
	out, err := outputs.Pack(big.NewInt(1), account)
	require.NoError(t, err)

	ev, err := h.build(t, "c1.pair", mainnet, model.Occurrence{
		Block:       block(10),
		Transaction: tx(0, other, nil),
		Trace:       &model.Trace{Input: d.Selector(), Output: out},
	})
	require.NoError(t, err)
	call := ev.(*Call)
	require.Nil(t, call.Args, "zero-input functions have no args")
	values, ok := call.Result.Value.([]any)
	require.True(t, ok)
	require.Len(t, values, 2)
}

func TestCallWithoutInputsOrOutputs(t *testing.T) {
	h := newHarness(t)
	d := h.entry(t, "c2.func1()").Descriptor

	ev, err := h.build(t, "c2.func1()", mainnet, model.Occurrence{
		Block:       block(10),
		Transaction: tx(0, other, nil),
		Trace:       &model.Trace{Input: d.Selector()},
	})
	require.NoError(t, err)
	call := ev.(*Call)
	require.Nil(t, call.Args)
	require.False(t, call.HasResult())

	raw, err := json.Marshal(call)
	require.NoError(t, err)
	require.NotContains(t, string(raw), `"args"`)
	require.NotContains(t, string(raw), `"result"`)

	_, err = h.build(t, "c2.func1()", optimism, model.Occurrence{
		Block:       block(10),
		Transaction: tx(0, other, nil),
		Trace:       &model.Trace{Input: d.Selector()},
	})
	require.ErrorIs(t, err, ErrTracesDisabled)

	_, err = h.build(t, "c2.func1()", mainnet, model.Occurrence{Block: block(10), Transaction: tx(0, other, nil)})
	require.ErrorIs(t, err, ErrMissingTrace)
}

func TestAccountTransfer(t *testing.T) {
	h := newHarness(t)
	trace := &model.Trace{Type: "CALL", From: account, To: &other, Value: big.NewInt(5), Position: 1}

	ev, err := h.build(t, "a1:transfer:from", mainnet, model.Occurrence{Block: block(7), Transaction: tx(0, account, &other), Trace: trace})
	require.NoError(t, err)
	transfer := ev.(*Transfer)
	require.Equal(t, account, transfer.Transfer.From)
	require.Equal(t, other, transfer.Transfer.To)
	require.Equal(t, int64(5), transfer.Transfer.Value.Int64())

	_, err = h.build(t, "a1:transfer:to", mainnet, model.Occurrence{Block: block(7), Transaction: tx(0, account, &other), Trace: trace})
	require.ErrorIs(t, err, ErrDirection)
}

func TestAccountTransactionAlwaysHasReceipt(t *testing.T) {
	h := newHarness(t)
	receipt := &model.Receipt{Status: 1, GasUsed: 21000}

	ev, err := h.build(t, "a1:transaction:from", mainnet, model.Occurrence{Block: block(7), Transaction: tx(4, account, &other), Receipt: receipt})
	require.NoError(t, err)
	txEv := ev.(*Transaction)
	require.Equal(t, uint64(21000), txEv.TransactionReceipt.GasUsed)

	_, err = h.build(t, "a1:transaction:from", mainnet, model.Occurrence{Block: block(7), Transaction: tx(4, account, &other)})
	require.ErrorIs(t, err, ErrMissingReceipt)

	_, err = h.build(t, "a1:transaction:to", mainnet, model.Occurrence{Block: block(7), Transaction: tx(4, account, nil), Receipt: receipt})
	require.ErrorIs(t, err, ErrDirection)

	_, err = h.build(t, "a1:transaction:from", optimism, model.Occurrence{Block: block(7), Transaction: tx(4, account, &other), Receipt: receipt})
	require.ErrorIs(t, err, ErrNotDeployed)
}

func TestBlockTick(t *testing.T) {
	h := newHarness(t)

	ev, err := h.build(t, "b1:block", mainnet, model.Occurrence{Block: block(3)})
	require.NoError(t, err)
	raw, err := json.Marshal(ev)
	require.NoError(t, err)
	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	require.Len(t, fields, 2)
	require.Contains(t, fields, "id")
	require.Contains(t, fields, "block")

	_, err = h.build(t, "b1:block", mainnet, model.Occurrence{Block: block(2)})
	require.ErrorIs(t, err, ErrOutsideWindow)
	_, err = h.build(t, "b1:block", mainnet, model.Occurrence{})
	require.ErrorIs(t, err, ErrMissingBlock)
}

func TestSetupUsesDeploymentStartBlock(t *testing.T) {
	h := newHarness(t)
	a, err := h.build(t, "c2:setup", mainnet, model.Occurrence{})
	require.NoError(t, err)
	b, err := h.build(t, "c2:setup", optimism, model.Occurrence{})
	require.NoError(t, err)
	require.NotEqual(t, a.EventID(), b.EventID())
	require.Equal(t, catalog.KindSetup, a.Kind())
}

func TestIDsAreStableAndDistinct(t *testing.T) {
	h := newHarness(t)
	trace := &model.Trace{From: account, To: &account, Value: big.NewInt(1), Position: 2}
	occ := model.Occurrence{Block: block(9), Transaction: tx(1, account, &account), Trace: trace}

	from1, err := h.build(t, "a1:transfer:from", mainnet, occ)
	require.NoError(t, err)
	from2, err := h.build(t, "a1:transfer:from", mainnet, occ)
	require.NoError(t, err)
	to, err := h.build(t, "a1:transfer:to", mainnet, occ)
	require.NoError(t, err)

	require.Equal(t, from1.EventID(), from2.EventID())
	require.NotEqual(t, from1.EventID(), to.EventID())
	require.NotSame(t, from1, from2, "payloads are constructed per occurrence")
}

func TestConstructionErrorCarriesName(t *testing.T) {
	h := newHarness(t)
	_, err := h.build(t, "b1:block", mainnet, model.Occurrence{})
	var cerr *ConstructionError
	require.True(t, errors.As(err, &cerr))
	require.Equal(t, "b1:block", cerr.Name)
	require.Equal(t, catalog.KindBlockTick, cerr.Kind)
}
