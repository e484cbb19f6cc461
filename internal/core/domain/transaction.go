package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	Incoming TxDirection = "incoming"
	Outgoing TxDirection = "outgoing"
)

const (
	TxMint         TxType = "mint"
	TxMelt         TxType = "melt"
	TxEcashSend    TxType = "ecash_send"
	TxEcashReceive TxType = "ecash_receive"
)

type TxDirection string

type TxType string

// Transaction is an entry of the append-only ledger of a wallet instance.
type Transaction struct {
	ID        string
	Direction TxDirection
	Amount    uint64
	Fee       uint64
	Memo      string
	Timestamp int64
	MintURL   string
	Unit      string
	Type      TxType
	Metadata  map[string]string
}

func NewTransaction(
	key WalletKey, direction TxDirection, txType TxType,
	amount, fee uint64, memo string, metadata map[string]string,
) *Transaction {
	if metadata == nil {
		metadata = make(map[string]string)
	}
	return &Transaction{
		ID:        uuid.New().String(),
		Direction: direction,
		Amount:    amount,
		Fee:       fee,
		Memo:      memo,
		Timestamp: time.Now().UnixNano(),
		MintURL:   key.MintURL,
		Unit:      key.Unit,
		Type:      txType,
		Metadata:  metadata,
	}
}

func (t *Transaction) WalletKey() WalletKey {
	return WalletKey{MintURL: t.MintURL, Unit: t.Unit}
}
