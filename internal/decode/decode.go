// Package decode maps archive JSON blocks onto the typed data model and
// reconstructs the canonical per-block interleaved item order: logs
// joined to their enclosing transaction, followed by the transaction
// itself, ordered by (transactionIndex, logIndex) with logs sorting
// before the transaction that carries the same index.
package decode

import (
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/archivehq/evm-processor/internal/model"
)

// Block decodes one archive block into typed header + ordered items. Any
// failure is wrapped in a *BlockError carrying the height/hash context
// the caller needs to abort the batch.
func Block(raw json.RawMessage) (model.BlockData, error) {
	rb, err := unmarshalBlock(raw)
	if err != nil {
		return model.BlockData{}, &BlockError{Err: fmt.Errorf("unmarshal block: %w", err)}
	}

	header, err := decodeHeader(rb.Header)
	if err != nil {
		return model.BlockData{}, &BlockError{BlockHeight: rb.Header.Number, BlockHash: rb.Header.Hash, Err: err}
	}

	blockHashHex := header.Hash.Hex()
	wrapErr := func(err error) error {
		return &BlockError{BlockHeight: header.Number, BlockHash: blockHashHex, Err: err}
	}

	// Decoded logs are kept in archive order rather than keyed by log
	// index, since two transactions may each carry a log with index 0.
	logs := make([]*model.Log, 0, len(rb.Logs))
	for _, rl := range rb.Logs {
		l, err := decodeLog(rl, header.Number, blockHashHex)
		if err != nil {
			return model.BlockData{}, wrapErr(fmt.Errorf("log %d: %w", rl.Index, err))
		}
		logs = append(logs, l)
	}

	txByIndex := make(map[uint32]*model.Transaction, len(rb.Transactions))
	for _, rt := range rb.Transactions {
		t, err := decodeTransaction(rt, header.Number, blockHashHex)
		if err != nil {
			return model.BlockData{}, wrapErr(fmt.Errorf("transaction %d: %w", rt.Index, err))
		}
		txByIndex[rt.Index] = t
	}

	items := make([]model.Item, 0, len(logs)+len(txByIndex))
	for _, l := range logs {
		item := model.Item{Kind: model.ItemKindLog, Address: l.Address, Log: l}
		if tx, ok := txByIndex[l.TransactionIndex]; ok {
			item.Transaction = tx
		}
		items = append(items, item)
	}
	for _, rt := range rb.Transactions {
		t := txByIndex[rt.Index]
		items = append(items, model.Item{Kind: model.ItemKindTransaction, Address: transactionKey(t), Transaction: t})
	}

	sortItems(items)

	return model.BlockData{Header: header, Items: items}, nil
}

// transactionKey is the canonical filter key for a transaction item: its
// `to` address, falling back to `from` for contract creations.
func transactionKey(t *model.Transaction) common.Address {
	if t.To != nil {
		return *t.To
	}
	return t.From
}

// sortItems imposes the total order described in §4.E: within equal
// transaction-level index, logs sort before the transaction that carries
// the same index; among logs, ties break on log index.
func sortItems(items []model.Item) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		at, bt := txIndexOf(a), txIndexOf(b)
		if at != bt {
			return at < bt
		}
		aLog := a.Kind == model.ItemKindLog
		bLog := b.Kind == model.ItemKindLog
		if aLog && bLog {
			return a.Log.Index < b.Log.Index
		}
		if aLog != bLog {
			return aLog
		}
		return false
	})
}

func txIndexOf(item model.Item) uint32 {
	if item.Kind == model.ItemKindLog {
		return item.Log.TransactionIndex
	}
	return item.Transaction.Index
}

func decodeHeader(rh rawHeader) (model.BlockHeader, error) {
	hash := common.HexToHash(rh.Hash)
	nonce, err := decodeBig(rh.Nonce)
	if err != nil {
		return model.BlockHeader{}, fmt.Errorf("nonce: %w", err)
	}
	size, err := decodeBig(rh.Size)
	if err != nil {
		return model.BlockHeader{}, fmt.Errorf("size: %w", err)
	}
	gasLimit, err := decodeBig(rh.GasLimit)
	if err != nil {
		return model.BlockHeader{}, fmt.Errorf("gasLimit: %w", err)
	}
	gasUsed, err := decodeBig(rh.GasUsed)
	if err != nil {
		return model.BlockHeader{}, fmt.Errorf("gasUsed: %w", err)
	}

	return model.BlockHeader{
		ID:          fmt.Sprintf("%d-%s", rh.Number, shortHash(hash.Hex(), 3, 7)),
		Number:      rh.Number,
		Hash:        hash,
		ParentHash:  common.HexToHash(rh.ParentHash),
		TimestampMs: rh.Timestamp * 1000,
		GasLimit:    gasLimit,
		GasUsed:     gasUsed,
		Nonce:       nonce,
		Size:        size,
		ExtraHex:    rh.Extra,
	}, nil
}

func decodeLog(rl rawLog, height uint64, blockHashHex string) (*model.Log, error) {
	data, err := hexutil.Decode(orZero(rl.Data))
	if err != nil {
		return nil, fmt.Errorf("data: %w", err)
	}
	topics := make([]common.Hash, len(rl.Topics))
	for i, t := range rl.Topics {
		topics[i] = common.HexToHash(t)
	}
	return &model.Log{
		ID:               fmt.Sprintf("%d-%d-%s", height, rl.Index, shortHash(blockHashHex, 3, 11)),
		Address:          common.HexToAddress(strings.ToLower(rl.Address)),
		Index:            rl.Index,
		TransactionIndex: rl.TransactionIndex,
		Topics:           topics,
		Data:             data,
		Removed:          rl.Removed,
	}, nil
}

func decodeTransaction(rt rawTransaction, height uint64, blockHashHex string) (*model.Transaction, error) {
	value, err := decodeBig(rt.Value)
	if err != nil {
		return nil, fmt.Errorf("value: %w", err)
	}
	nonce, err := decodeBig(rt.Nonce)
	if err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	gas, err := decodeBig(rt.Gas)
	if err != nil {
		return nil, fmt.Errorf("gas: %w", err)
	}
	gasPrice, err := decodeBig(rt.GasPrice)
	if err != nil {
		return nil, fmt.Errorf("gasPrice: %w", err)
	}
	v, err := decodeBig(rt.V)
	if err != nil {
		return nil, fmt.Errorf("v: %w", err)
	}
	r, err := decodeBig(rt.R)
	if err != nil {
		return nil, fmt.Errorf("r: %w", err)
	}
	s, err := decodeBig(rt.S)
	if err != nil {
		return nil, fmt.Errorf("s: %w", err)
	}
	chainID, err := decodeBig(rt.ChainID)
	if err != nil {
		return nil, fmt.Errorf("chainId: %w", err)
	}
	input, err := hexutil.Decode(orZero(rt.Input))
	if err != nil {
		return nil, fmt.Errorf("input: %w", err)
	}

	var to *common.Address
	if rt.To != "" {
		addr := common.HexToAddress(rt.To)
		to = &addr
	}

	var sighash [4]byte
	if len(input) >= 4 {
		copy(sighash[:], input[:4])
	}

	kind, err := decodeKind(rt.Kind)
	if err != nil {
		return nil, fmt.Errorf("type: %w", err)
	}

	return &model.Transaction{
		ID:       fmt.Sprintf("%d-%d-%s", height, rt.Index, shortHash(blockHashHex, 3, 11)),
		Index:    rt.Index,
		From:     common.HexToAddress(rt.From),
		To:       to,
		Value:    value,
		Nonce:    nonce,
		Gas:      gas,
		GasPrice: gasPrice,
		Input:    input,
		Sighash:  sighash,
		V:        v,
		R:        r,
		S:        s,
		ChainID:  chainID,
		Kind:     kind,
	}, nil
}

func decodeKind(hex string) (model.TxKind, error) {
	if hex == "" {
		return 0, nil
	}
	v, err := decodeBig(hex)
	if err != nil {
		return 0, err
	}
	return model.TxKind(v.Uint64()), nil
}

// decodeBig decodes a hex-encoded integer into an arbitrary-precision
// big.Int: these fields must never be coerced into fixed-width types.
func decodeBig(hex string) (*big.Int, error) {
	if hex == "" {
		return big.NewInt(0), nil
	}
	b, err := hexutil.DecodeBig(hex)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func orZero(hex string) string {
	if hex == "" {
		return "0x"
	}
	return hex
}

// shortHash mirrors the JS-style slice(start, end) used by the archive
// the spec describes: out-of-range bounds clamp instead of panicking.
func shortHash(hex string, start, end int) string {
	if end > len(hex) {
		end = len(hex)
	}
	if start > end {
		start = end
	}
	if start < 0 {
		start = 0
	}
	return hex[start:end]
}
