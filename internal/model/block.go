package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// BlockHeader is the decoded representation of one archived block.
type BlockHeader struct {
	ID         string
	Number     uint64
	Hash       common.Hash
	ParentHash common.Hash
	// TimestampMs is milliseconds since epoch: the archive delivers
	// seconds, decode.Block multiplies by 1000.
	TimestampMs uint64
	GasLimit    *big.Int
	GasUsed     *big.Int
	Nonce       *big.Int
	Size        *big.Int
	ExtraHex    string
}

// ItemKind tags the variant a decoded Item carries.
type ItemKind int

const (
	// ItemKindLog tags an Item carrying a Log (and possibly its enclosing Transaction).
	ItemKindLog ItemKind = iota
	// ItemKindTransaction tags an Item carrying a Transaction.
	ItemKindTransaction
)

func (k ItemKind) String() string {
	if k == ItemKindLog {
		return "evmLog"
	}
	return "transaction"
}

// Log is a decoded event log.
type Log struct {
	ID               string
	Address          common.Address // emitter address; Hex() renders it EIP-55 checksummed, not lowercase
	Index            uint32
	TransactionIndex uint32
	Topics           []common.Hash
	Data             []byte
	Removed          bool
}

// TxKind distinguishes transaction types the way the archive reports them
// (legacy, access-list, dynamic-fee, ...); kept as a raw uint8 matching the
// EIP-2718 type byte.
type TxKind uint8

// Transaction is a decoded transaction.
type Transaction struct {
	ID       string
	Index    uint32
	From     common.Address
	To       *common.Address // nil for contract creation
	Value    *big.Int
	Nonce    *big.Int
	Gas      *big.Int
	GasPrice *big.Int
	Input    []byte
	Sighash  [4]byte
	V, R, S  *big.Int
	ChainID  *big.Int
	Kind     TxKind
}

// Item is one unit delivered to the user handler: either an event log
// (optionally joined with its enclosing transaction) or a transaction.
// Address is the canonical filter key used to match clauses: the log's
// emitter address for log items, the transaction's To (falling back to
// From for contract creations) for transaction items.
type Item struct {
	Kind        ItemKind
	Address     common.Address
	Log         *Log         // set when Kind == ItemKindLog
	Transaction *Transaction // set when Kind == ItemKindTransaction, or joined onto a log item
}

// BlockData is one decoded block plus its ordered items, handed off from
// the decoder to the driver. Once yielded by the pipeline, the producer
// retains no further reference to it (single-consumer handoff).
type BlockData struct {
	Header BlockHeader
	Items  []Item
}

// ArchiveStatus reports how far the archive can answer queries. Observed
// values are monotonically non-decreasing.
type ArchiveStatus struct {
	ArchiveHeight int64 // -1 means "no data yet"
}
