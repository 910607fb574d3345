package model

import "github.com/ethereum/go-ethereum/common"

// BlockFieldSelection lists which BlockHeader attributes a caller wants
// decoded. Identity attributes (Number, Hash) are always included
// regardless of this selection; see DefaultFieldSelection.
type BlockFieldSelection struct {
	ParentHash bool
	Timestamp  bool
	Nonce      bool
	Size       bool
	GasLimit   bool
	GasUsed    bool
}

// LogFieldSelection lists which Log attributes a caller wants decoded,
// plus whether the log's enclosing Transaction should be joined in.
type LogFieldSelection struct {
	Topics      bool
	Data        bool
	Removed     bool
	Transaction bool // inject the default TxFieldSelection when set
}

// TxFieldSelection lists which Transaction attributes a caller wants
// decoded.
type TxFieldSelection struct {
	From     bool
	To       bool
	Value    bool
	Nonce    bool
	Gas      bool
	GasPrice bool
	Input    bool
	Sighash  bool
	V, R, S  bool
	ChainID  bool
	Kind     bool
}

// FieldSelection is the union of per-entity selections attached to a
// single clause.
type FieldSelection struct {
	Block       BlockFieldSelection
	Log         LogFieldSelection
	Transaction TxFieldSelection
}

// Or merges b into a field-by-field, returning the boolean union. This is
// the "ORs boolean flags" step used while merging overlapping clauses.
func (a FieldSelection) Or(b FieldSelection) FieldSelection {
	return FieldSelection{
		Block: BlockFieldSelection{
			ParentHash: a.Block.ParentHash || b.Block.ParentHash,
			Timestamp:  a.Block.Timestamp || b.Block.Timestamp,
			Nonce:      a.Block.Nonce || b.Block.Nonce,
			Size:       a.Block.Size || b.Block.Size,
			GasLimit:   a.Block.GasLimit || b.Block.GasLimit,
			GasUsed:    a.Block.GasUsed || b.Block.GasUsed,
		},
		Log: LogFieldSelection{
			Topics:      a.Log.Topics || b.Log.Topics,
			Data:        a.Log.Data || b.Log.Data,
			Removed:     a.Log.Removed || b.Log.Removed,
			Transaction: a.Log.Transaction || b.Log.Transaction,
		},
		Transaction: TxFieldSelection{
			From:     a.Transaction.From || b.Transaction.From,
			To:       a.Transaction.To || b.Transaction.To,
			Value:    a.Transaction.Value || b.Transaction.Value,
			Nonce:    a.Transaction.Nonce || b.Transaction.Nonce,
			Gas:      a.Transaction.Gas || b.Transaction.Gas,
			GasPrice: a.Transaction.GasPrice || b.Transaction.GasPrice,
			Input:    a.Transaction.Input || b.Transaction.Input,
			Sighash:  a.Transaction.Sighash || b.Transaction.Sighash,
			V:        a.Transaction.V || b.Transaction.V,
			R:        a.Transaction.R || b.Transaction.R,
			S:        a.Transaction.S || b.Transaction.S,
			ChainID:  a.Transaction.ChainID || b.Transaction.ChainID,
			Kind:     a.Transaction.Kind || b.Transaction.Kind,
		},
	}
}

// DefaultFieldSelection returns the hard-coded default selection: identity
// attributes only. Block.Number/Hash and Log/Transaction indices and
// hashes are always present on decoded entities independent of selection,
// so they are not modeled as flags here.
func DefaultFieldSelection() FieldSelection {
	return FieldSelection{}
}

// LogClause is one OR-branch of a log filter: match logs emitted by any of
// Address (nil means "any address") whose topics satisfy the positional
// OR-sets in Topics.
type LogClause struct {
	Address        []common.Address // nil = any address
	Topics         [][]common.Hash  // positional; each inner slice is an OR-set
	FieldSelection FieldSelection
}

// TxClause is one OR-branch of a transaction filter.
type TxClause struct {
	Address        []common.Address // nil = any address
	Sighash        [][4]byte        // optional method-selector allow-list
	FieldSelection FieldSelection
}

// Request is a filter registration: a set of log clauses and transaction
// clauses to evaluate over some Range, plus request-level flags that are
// ORed (not concatenated) when requests merge.
type Request struct {
	Logs         []LogClause
	Transactions []TxClause
	// IncludeAllBlocks, when set by any merged request, makes the archive
	// client return a BlockData entry for every block in the queried
	// range even when it carries no matching items (useful for callers
	// that need contiguous per-block checkpoints).
	IncludeAllBlocks bool
}

// Merge concatenates r's clauses with other's (registration order
// preserved: r's clauses first) and ORs the request-level flags. It never
// mutates r or other.
func (r Request) Merge(other Request) Request {
	out := Request{
		Logs:             make([]LogClause, 0, len(r.Logs)+len(other.Logs)),
		Transactions:     make([]TxClause, 0, len(r.Transactions)+len(other.Transactions)),
		IncludeAllBlocks: r.IncludeAllBlocks || other.IncludeAllBlocks,
	}
	out.Logs = append(out.Logs, r.Logs...)
	out.Logs = append(out.Logs, other.Logs...)
	out.Transactions = append(out.Transactions, r.Transactions...)
	out.Transactions = append(out.Transactions, other.Transactions...)
	return out
}

// Batch pairs a Range with the Request that should be evaluated over it.
// It is the unit of work the planner produces and the pipeline consumes.
type Batch struct {
	Range   Range
	Request Request
}
