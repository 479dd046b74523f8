package registry

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// InvalidAddressError reports a DEX definition address that is not a 20-byte hex string.
type InvalidAddressError struct {
	Dex   string
	Input string
}

func (e *InvalidAddressError) Error() string {
	return fmt.Sprintf("dex %q: invalid address: %q", e.Dex, e.Input)
}

func parseAddress(dex, input string) (common.Address, error) {
	input = strings.TrimSpace(input)
	if !common.IsHexAddress(input) {
		return common.Address{}, &InvalidAddressError{Dex: dex, Input: input}
	}
	return common.HexToAddress(input), nil
}

type parsedDefinition struct {
	def       Definition
	factory   common.Address
	addresses []common.Address
}

func parseDefinition(def Definition) (parsedDefinition, error) {
	factory, err := parseAddress(def.Name, def.Factory)
	if err != nil {
		return parsedDefinition{}, err
	}
	addresses := make([]common.Address, 0, len(def.Addresses))
	for _, input := range def.Addresses {
		addr, err := parseAddress(def.Name, input)
		if err != nil {
			return parsedDefinition{}, err
		}
		addresses = append(addresses, addr)
	}
	return parsedDefinition{def: def, factory: factory, addresses: addresses}, nil
}
