package classifier

import (
	"github.com/ethereum/go-ethereum/accounts/abi"
	"go.uber.org/zap"

	"dexwatch/internal/model"
	"dexwatch/internal/registry"
)

func (c *Classifier) decode(tx model.Transaction, matched model.ClassifiedTx, contract abi.ABI) {
	calls := registry.Decode(contract, tx.Input)
	if len(calls) == 0 {
		c.logger.Debug("no decodable call",
			zap.String("tx_hash", tx.Hash.Hex()),
			zap.String("dex", matched.Dex),
		)
		return
	}

	c.observer.Decoded(len(calls))
	for _, call := range calls {
		c.logger.Debug("decoded call",
			zap.String("tx_hash", tx.Hash.Hex()),
			zap.String("dex", matched.Dex),
			zap.Stringer("role", matched.Role),
			zap.String("direction", string(call.Direction)),
			zap.String("method", call.Signature),
			zap.Any("args", call.Args),
		)
	}
}
