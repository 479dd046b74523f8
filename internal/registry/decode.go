package registry

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Direction tells whether data decoded as a function's inputs or outputs.
type Direction string

const (
	DirectionInput  Direction = "input"
	DirectionOutput Direction = "output"
)

// DecodedCall is one successful decode of transaction data.
type DecodedCall struct {
	Method    string
	Signature string
	Direction Direction
	Args      map[string]interface{}
}

// Decode tries data against every function in contract, as call input
// (selector-matched) and as return data. Candidates that fail to decode are
// skipped. Results are ordered by method name, inputs before outputs.
func Decode(contract abi.ABI, data []byte) []DecodedCall {
	names := make([]string, 0, len(contract.Methods))
	for name := range contract.Methods {
		names = append(names, name)
	}
	sort.Strings(names)

	var calls []DecodedCall
	for _, name := range names {
		method := contract.Methods[name]
		if call, ok := decodeInput(method, data); ok {
			calls = append(calls, call)
		}
		if call, ok := decodeOutput(method, data); ok {
			calls = append(calls, call)
		}
	}
	return calls
}

func decodeInput(method abi.Method, data []byte) (DecodedCall, bool) {
	if len(data) < 4 || !bytes.Equal(method.ID, data[:4]) {
		return DecodedCall{}, false
	}
	values, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return DecodedCall{}, false
	}
	return DecodedCall{
		Method:    method.Name,
		Signature: method.Sig,
		Direction: DirectionInput,
		Args:      named(method.Inputs, values),
	}, true
}

func decodeOutput(method abi.Method, data []byte) (DecodedCall, bool) {
	if len(method.Outputs) == 0 || len(data) == 0 || len(data)%32 != 0 {
		return DecodedCall{}, false
	}
	values, err := method.Outputs.Unpack(data)
	if err != nil {
		return DecodedCall{}, false
	}
	return DecodedCall{
		Method:    method.Name,
		Signature: method.Sig,
		Direction: DirectionOutput,
		Args:      named(method.Outputs, values),
	}, true
}

func named(args abi.Arguments, values []interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(values))
	for i, v := range values {
		name := fmt.Sprintf("arg%d", i)
		if i < len(args) && args[i].Name != "" {
			name = args[i].Name
		}
		out[name] = v
	}
	return out
}
