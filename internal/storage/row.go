package storage

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"dexwatch/internal/model"
)

// TxRow is the column layout shared by the SQL backends. Big integers are
// decimal strings; absent values are nil.
type TxRow struct {
	Hash        string
	From        string
	To          *string
	Input       []byte
	Nonce       int64
	Value       *string
	Gas         int64
	GasPrice    *string
	GasTipCap   *string
	GasFeeCap   *string
	Type        int16
	ChainID     *string
	Role        string
	Dex         *string
	DexVersion  *int32
	BlockNumber *int64
}

func NewTxRow(tx model.ClassifiedTx) TxRow {
	t := tx.Transaction
	row := TxRow{
		Hash:      t.Hash.Hex(),
		From:      t.From.Hex(),
		Input:     []byte(t.Input),
		Nonce:     int64(t.Nonce),
		Value:     decimal(t.Value),
		Gas:       int64(t.Gas),
		GasPrice:  decimal(t.GasPrice),
		GasTipCap: decimal(t.GasTipCap),
		GasFeeCap: decimal(t.GasFeeCap),
		Type:      int16(t.Type),
		ChainID:   decimal(t.ChainID),
		Role:      tx.Role.String(),
	}
	if t.To != nil {
		to := t.To.Hex()
		row.To = &to
	}
	if tx.Dex != "" {
		dex := tx.Dex
		version := int32(tx.DexVersion)
		row.Dex = &dex
		row.DexVersion = &version
	}
	if t.BlockNumber != nil {
		n := int64(*t.BlockNumber)
		row.BlockNumber = &n
	}
	return row
}

// BlockRow is the column layout for blocks.
type BlockRow struct {
	Number     int64
	Hash       string
	ParentHash string
	Timestamp  int64
	Miner      string
	GasLimit   int64
	GasUsed    int64
	BaseFee    *string
	TxCount    int32
}

func NewBlockRow(block model.Block) BlockRow {
	return BlockRow{
		Number:     int64(block.Number),
		Hash:       block.Hash.Hex(),
		ParentHash: block.ParentHash.Hex(),
		Timestamp:  int64(block.Timestamp),
		Miner:      block.Miner.Hex(),
		GasLimit:   int64(block.GasLimit),
		GasUsed:    int64(block.GasUsed),
		BaseFee:    decimal(block.BaseFee),
		TxCount:    int32(len(block.Transactions)),
	}
}

func decimal(v *hexutil.Big) *string {
	if v == nil {
		return nil
	}
	s := (*big.Int)(v).String()
	return &s
}
