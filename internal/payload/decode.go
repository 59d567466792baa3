package payload

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/devblac/indexkit/internal/catalog"
	"github.com/devblac/indexkit/internal/descriptor"
	"github.com/devblac/indexkit/internal/model"
)

// ErrReverted means a call frame failed and carries no decodable result.
var ErrReverted = errors.New("call reverted")

type decoder struct {
	entry    descriptor.Entry
	named    bool
	inputs   abi.Arguments
	outputs  abi.Arguments
	topic    common.Hash
	selector []byte
}

func newDecoder(e *catalog.Entry) (*decoder, error) {
	if e.Descriptor == nil {
		return nil, errors.New("entry has no descriptor")
	}
	d := &decoder{
		entry: *e.Descriptor,
		named: e.Descriptor.Inputs.AllNamed() && !e.Overloaded,
	}
	var err error
	if d.inputs, err = d.entry.Inputs.Arguments(); err != nil {
		return nil, err
	}
	if d.outputs, err = d.entry.Outputs.Arguments(); err != nil {
		return nil, err
	}
	if d.entry.Kind == descriptor.KindEvent {
		d.topic = d.entry.Topic()
	} else {
		d.selector = d.entry.Selector()
	}
	return d, nil
}

func (d *decoder) logArgs(l model.Log) (*Args, error) {
	topics := l.Topics
	if !d.entry.Anonymous {
		if len(topics) == 0 || topics[0] != d.topic {
			return nil, fmt.Errorf("%w: topic0 is not %s", ErrSignature, d.entry.Signature())
		}
		topics = topics[1:]
	}

	var indexed abi.Arguments
	for _, a := range d.inputs {
		if a.Indexed {
			indexed = append(indexed, a)
		}
	}
	topicValues := map[string]any{}
	if err := abi.ParseTopicsIntoMap(topicValues, indexed, topics); err != nil {
		return nil, fmt.Errorf("%w: parse topics: %v", ErrSignature, err)
	}
	dataValues, err := d.inputs.NonIndexed().Unpack(l.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: unpack data: %v", ErrSignature, err)
	}

	values := make([]any, len(d.inputs))
	next := 0
	for i, a := range d.inputs {
		if a.Indexed {
			values[i] = topicValues[descriptor.PositionKey(i)]
			continue
		}
		values[i] = dataValues[next]
		next++
	}
	return d.args(values), nil
}

func (d *decoder) callArgs(tr model.Trace) (*Args, error) {
	if len(tr.Input) < 4 || !bytes.Equal(tr.Input[:4], d.selector) {
		return nil, fmt.Errorf("%w: selector is not %s", ErrSignature, d.entry.Signature())
	}
	if len(d.inputs) == 0 {
		return nil, nil
	}
	values, err := d.inputs.Unpack(tr.Input[4:])
	if err != nil {
		return nil, fmt.Errorf("%w: unpack input: %v", ErrSignature, err)
	}
	return d.args(values), nil
}

func (d *decoder) callResult(tr model.Trace) (*Result, error) {
	if len(d.outputs) == 0 {
		return nil, nil
	}
	if tr.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrReverted, tr.Error)
	}
	values, err := d.outputs.Unpack(tr.Output)
	if err != nil {
		return nil, fmt.Errorf("%w: unpack output: %v", ErrSignature, err)
	}
	if len(values) == 1 {
		return &Result{Value: values[0]}, nil
	}
	return &Result{Value: values}, nil
}

func (d *decoder) args(values []any) *Args {
	if !d.named {
		return PositionalArgs(values)
	}
	keys := make([]string, len(d.entry.Inputs))
	for i, p := range d.entry.Inputs {
		keys[i] = p.Name
	}
	return NamedArgs(keys, values)
}
