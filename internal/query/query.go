// Package query translates a merged batch request into the archive's
// query DSL document: field selection, address/topic filters and the
// resolved [fromBlock, toBlock] window.
package query

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archivehq/evm-processor/internal/model"
)

// Document is the wire shape POSTed to {archiveURL}/query.
type Document struct {
	FromBlock        uint64       `json:"fromBlock"`
	ToBlock          uint64       `json:"toBlock"`
	Logs             []LogQuery   `json:"logs,omitempty"`
	Transactions     []TxQuery    `json:"transactions,omitempty"`
	IncludeAllBlocks bool         `json:"includeAllBlocks,omitempty"`
}

// LogQuery is one entry of Document.Logs.
type LogQuery struct {
	Address        []string       `json:"address"`
	Topics         [][]string     `json:"topics,omitempty"`
	FieldSelection fieldSelection `json:"fieldSelection"`
}

// TxQuery is one entry of Document.Transactions.
type TxQuery struct {
	Address        []string       `json:"address"`
	Sighash        []string       `json:"sighash,omitempty"`
	FieldSelection fieldSelection `json:"fieldSelection"`
}

type fieldSelection struct {
	Block       *blockFields `json:"block,omitempty"`
	Log         *logFields   `json:"log,omitempty"`
	Transaction *txFields    `json:"transaction,omitempty"`
}

type blockFields struct {
	ParentHash bool `json:"parentHash,omitempty"`
	Timestamp  bool `json:"timestamp,omitempty"`
	Nonce      bool `json:"nonce,omitempty"`
	Size       bool `json:"size,omitempty"`
	GasLimit   bool `json:"gasLimit,omitempty"`
	GasUsed    bool `json:"gasUsed,omitempty"`
}

type logFields struct {
	Topics  bool `json:"topics,omitempty"`
	Data    bool `json:"data,omitempty"`
	Removed bool `json:"removed,omitempty"`
}

type txFields struct {
	From     bool `json:"from,omitempty"`
	To       bool `json:"to,omitempty"`
	Value    bool `json:"value,omitempty"`
	Nonce    bool `json:"nonce,omitempty"`
	Gas      bool `json:"gas,omitempty"`
	GasPrice bool `json:"gasPrice,omitempty"`
	Input    bool `json:"input,omitempty"`
	Sighash  bool `json:"sighash,omitempty"`
	V        bool `json:"v,omitempty"`
	R        bool `json:"r,omitempty"`
	S        bool `json:"s,omitempty"`
	ChainID  bool `json:"chainId,omitempty"`
	Kind     bool `json:"type,omitempty"`
}

// Encode builds the query document for a batch bounded by the last
// observed archive height. toBlock = min(archiveHeight, end(range));
// archiveHeight < 0 ("no data yet") leaves the range's own end as the
// ceiling, which the caller is expected to never reach (the pipeline
// waits for height before fetching).
func Encode(b model.Batch, archiveHeight int64) (Document, error) {
	fromBlock := b.Range.From
	toBlock := b.Range.End()
	if archiveHeight >= 0 && uint64(archiveHeight) < toBlock {
		toBlock = uint64(archiveHeight)
	}
	if fromBlock > toBlock {
		return Document{}, fmt.Errorf("query: fromBlock %d exceeds toBlock %d", fromBlock, toBlock)
	}

	doc := Document{
		FromBlock:        fromBlock,
		ToBlock:          toBlock,
		IncludeAllBlocks: b.Request.IncludeAllBlocks,
	}

	for _, c := range b.Request.Logs {
		doc.Logs = append(doc.Logs, LogQuery{
			Address:        encodeAddresses(c.Address),
			Topics:         encodeTopics(c.Topics),
			FieldSelection: encodeFieldSelection(c.FieldSelection, true, c.FieldSelection.Log.Transaction),
		})
	}
	for _, c := range b.Request.Transactions {
		doc.Transactions = append(doc.Transactions, TxQuery{
			Address:        encodeAddresses(c.Address),
			Sighash:        encodeSighashes(c.Sighash),
			FieldSelection: encodeFieldSelection(c.FieldSelection, false, true),
		})
	}

	return doc, nil
}

// encodeFieldSelection assembles the per-clause field-selection document:
// starting from the default set, merging the caller's flags, and
// injecting the nested entity's default selection whenever the clause
// implies one (a log clause that wants its transaction joined gets a
// Transaction block even if it requested no extra transaction fields).
func encodeFieldSelection(fs model.FieldSelection, includeLog, includeTx bool) fieldSelection {
	merged := model.DefaultFieldSelection().Or(fs)

	out := fieldSelection{
		Block: &blockFields{
			ParentHash: merged.Block.ParentHash,
			Timestamp:  merged.Block.Timestamp,
			Nonce:      merged.Block.Nonce,
			Size:       merged.Block.Size,
			GasLimit:   merged.Block.GasLimit,
			GasUsed:    merged.Block.GasUsed,
		},
	}
	if includeLog {
		out.Log = &logFields{
			Topics:  merged.Log.Topics,
			Data:    merged.Log.Data,
			Removed: merged.Log.Removed,
		}
	}
	if includeTx {
		out.Transaction = &txFields{
			From:     merged.Transaction.From,
			To:       merged.Transaction.To,
			Value:    merged.Transaction.Value,
			Nonce:    merged.Transaction.Nonce,
			Gas:      merged.Transaction.Gas,
			GasPrice: merged.Transaction.GasPrice,
			Input:    merged.Transaction.Input,
			Sighash:  merged.Transaction.Sighash,
			V:        merged.Transaction.V,
			R:        merged.Transaction.R,
			S:        merged.Transaction.S,
			ChainID:  merged.Transaction.ChainID,
			Kind:     merged.Transaction.Kind,
		}
	}
	return out
}

// encodeAddresses lowercases every address for the wire; nil means "any
// address" and must round-trip as JSON null, not an empty array.
func encodeAddresses(addrs []common.Address) []string {
	if addrs == nil {
		return nil
	}
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = strings.ToLower(a.Hex())
	}
	return out
}

func encodeTopics(topics [][]common.Hash) [][]string {
	if topics == nil {
		return nil
	}
	out := make([][]string, len(topics))
	for i, set := range topics {
		row := make([]string, len(set))
		for j, h := range set {
			row[j] = strings.ToLower(h.Hex())
		}
		out[i] = row
	}
	return out
}

func encodeSighashes(sighashes [][4]byte) []string {
	if sighashes == nil {
		return nil
	}
	out := make([]string, len(sighashes))
	for i, sh := range sighashes {
		out[i] = fmt.Sprintf("0x%x", sh)
	}
	return out
}
