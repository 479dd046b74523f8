package model

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Transaction is the normalized representation of a chain transaction.
// To is nil for contract-creation transactions.
type Transaction struct {
	Hash        common.Hash     `json:"hash"`
	From        common.Address  `json:"from"`
	To          *common.Address `json:"to"`
	Input       hexutil.Bytes   `json:"input"`
	Nonce       uint64          `json:"nonce"`
	Value       *hexutil.Big    `json:"value"`
	Gas         uint64          `json:"gas"`
	GasPrice    *hexutil.Big    `json:"gas_price,omitempty"`
	GasTipCap   *hexutil.Big    `json:"max_priority_fee_per_gas,omitempty"`
	GasFeeCap   *hexutil.Big    `json:"max_fee_per_gas,omitempty"`
	Type        uint8           `json:"type"`
	ChainID     *hexutil.Big    `json:"chain_id,omitempty"`
	BlockHash   *common.Hash    `json:"block_hash,omitempty"`
	BlockNumber *uint64         `json:"block_number,omitempty"`
	TxIndex     *uint64         `json:"transaction_index,omitempty"`
}

// IsContractCreation reports whether the transaction deploys a contract.
func (tx Transaction) IsContractCreation() bool {
	return tx.To == nil
}
