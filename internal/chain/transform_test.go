package chain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

func TestBuildTransactionRecoversSender(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	chainID := big.NewInt(1)
	to := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")

	tx, err := types.SignNewTx(key, types.LatestSignerForChainID(chainID), &types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     7,
		GasTipCap: big.NewInt(2),
		GasFeeCap: big.NewInt(30),
		Gas:       21000,
		To:        &to,
		Value:     big.NewInt(5),
		Data:      []byte{0x12, 0x34, 0x56, 0x78},
	})
	if err != nil {
		t.Fatalf("sign tx: %v", err)
	}

	record := buildTransaction(tx)
	if record.From != crypto.PubkeyToAddress(key.PublicKey) {
		t.Fatalf("unexpected sender %s", record.From.Hex())
	}
	if record.To == nil || *record.To != to {
		t.Fatalf("unexpected recipient %v", record.To)
	}
	if record.Hash != tx.Hash() || record.Nonce != 7 || record.Type != types.DynamicFeeTxType {
		t.Fatalf("unexpected record %+v", record)
	}
	if record.Value.ToInt().Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("unexpected value %v", record.Value)
	}
	if record.BlockNumber != nil {
		t.Fatalf("pending transaction should have no block number")
	}
}

func TestBuildTransactionContractCreation(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tx, err := types.SignNewTx(key, types.HomesteadSigner{}, &types.LegacyTx{
		Nonce:    0,
		GasPrice: big.NewInt(1),
		Gas:      100000,
		Data:     []byte{0x60, 0x80, 0x60, 0x40},
	})
	if err != nil {
		t.Fatalf("sign tx: %v", err)
	}

	record := buildTransaction(tx)
	if !record.IsContractCreation() {
		t.Fatalf("expected contract creation")
	}
	if record.From != crypto.PubkeyToAddress(key.PublicKey) {
		t.Fatalf("unexpected sender %s", record.From.Hex())
	}
}

func TestBuildBlockAnnotatesTransactions(t *testing.T) {
	to := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	txs := []*types.Transaction{
		types.NewTx(&types.LegacyTx{Nonce: 1, To: &to, Gas: 21000, GasPrice: big.NewInt(1)}),
		types.NewTx(&types.LegacyTx{Nonce: 2, To: &to, Gas: 21000, GasPrice: big.NewInt(1)}),
	}
	header := &types.Header{Number: big.NewInt(100), Time: 1700000000, GasLimit: 30000000}
	block := types.NewBlockWithHeader(header).WithBody(txs, nil)

	record := buildBlock(block)
	if record.Number != 100 || record.Timestamp != 1700000000 || record.Hash != block.Hash() {
		t.Fatalf("unexpected block %+v", record)
	}
	if len(record.Transactions) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(record.Transactions))
	}
	second := record.Transactions[1]
	if second.TxIndex == nil || *second.TxIndex != 1 || *second.BlockNumber != 100 || *second.BlockHash != block.Hash() {
		t.Fatalf("transaction not annotated with block position: %+v", second)
	}
}
