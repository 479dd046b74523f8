package chain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"dexwatch/internal/model"
)

func buildTransaction(tx *types.Transaction) model.Transaction {
	out := model.Transaction{
		Hash:      tx.Hash(),
		To:        tx.To(),
		Input:     hexutil.Bytes(tx.Data()),
		Nonce:     tx.Nonce(),
		Value:     hexBig(tx.Value()),
		Gas:       tx.Gas(),
		GasPrice:  hexBig(tx.GasPrice()),
		GasTipCap: hexBig(tx.GasTipCap()),
		GasFeeCap: hexBig(tx.GasFeeCap()),
		Type:      tx.Type(),
		ChainID:   hexBig(tx.ChainId()),
	}
	if from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx); err == nil {
		out.From = from
	}
	return out
}

func buildBlock(block *types.Block) model.Block {
	hash := block.Hash()
	number := block.NumberU64()

	txs := make([]model.Transaction, 0, len(block.Transactions()))
	for i, tx := range block.Transactions() {
		record := buildTransaction(tx)
		index := uint64(i)
		blockNumber := number
		blockHash := hash
		record.BlockHash = &blockHash
		record.BlockNumber = &blockNumber
		record.TxIndex = &index
		txs = append(txs, record)
	}

	return model.Block{
		Number:       number,
		Hash:         hash,
		ParentHash:   block.ParentHash(),
		Timestamp:    block.Time(),
		Miner:        block.Coinbase(),
		GasLimit:     block.GasLimit(),
		GasUsed:      block.GasUsed(),
		BaseFee:      hexBig(block.BaseFee()),
		ExtraData:    hexutil.Bytes(block.Extra()),
		Transactions: txs,
	}
}

func hexBig(v *big.Int) *hexutil.Big {
	if v == nil {
		return nil
	}
	return (*hexutil.Big)(new(big.Int).Set(v))
}
