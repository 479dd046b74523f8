package model

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Block is a full block body as fetched after a new-head notification.
type Block struct {
	Number       uint64         `json:"number"`
	Hash         common.Hash    `json:"hash"`
	ParentHash   common.Hash    `json:"parent_hash"`
	Timestamp    uint64         `json:"timestamp"`
	Miner        common.Address `json:"miner"`
	GasLimit     uint64         `json:"gas_limit"`
	GasUsed      uint64         `json:"gas_used"`
	BaseFee      *hexutil.Big   `json:"base_fee,omitempty"`
	ExtraData    hexutil.Bytes  `json:"extra_data"`
	Transactions []Transaction  `json:"transactions"`
}

// TransactionHashes returns the hashes of the block's transactions in order.
func (b Block) TransactionHashes() []common.Hash {
	hashes := make([]common.Hash, 0, len(b.Transactions))
	for _, tx := range b.Transactions {
		hashes = append(hashes, tx.Hash)
	}
	return hashes
}
