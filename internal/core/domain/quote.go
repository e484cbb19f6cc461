package domain

import (
	"fmt"
	"time"
)

const (
	MintQuoteUnpaid MintQuoteState = iota
	MintQuotePaid
	MintQuoteIssued
)

const (
	MeltQuoteUnpaid MeltQuoteState = iota
	MeltQuotePending
	MeltQuotePaid
	MeltQuoteFailed
)

var (
	mintQuoteStateString = map[MintQuoteState]string{
		MintQuoteUnpaid: "UNPAID",
		MintQuotePaid:   "PAID",
		MintQuoteIssued: "ISSUED",
	}
	meltQuoteStateString = map[MeltQuoteState]string{
		MeltQuoteUnpaid:  "UNPAID",
		MeltQuotePending: "PENDING",
		MeltQuotePaid:    "PAID",
		MeltQuoteFailed:  "FAILED",
	}
)

type MintQuoteState int

func (s MintQuoteState) String() string {
	return mintQuoteStateString[s]
}

func ParseMintQuoteState(str string) (MintQuoteState, error) {
	for k, v := range mintQuoteStateString {
		if v == str {
			return k, nil
		}
	}
	return -1, ProtocolError(fmt.Sprintf("unknown mint quote state %q", str))
}

type MeltQuoteState int

func (s MeltQuoteState) String() string {
	return meltQuoteStateString[s]
}

func (s MeltQuoteState) IsFinal() bool {
	return s == MeltQuotePaid || s == MeltQuoteFailed
}

func ParseMeltQuoteState(str string) (MeltQuoteState, error) {
	for k, v := range meltQuoteStateString {
		if v == str {
			return k, nil
		}
	}
	return -1, ProtocolError(fmt.Sprintf("unknown melt quote state %q", str))
}

// MintQuote is a request to receive value through a lightning invoice in
// exchange for newly issued proofs.
type MintQuote struct {
	ID        string
	MintURL   string
	Unit      string
	Request   string
	Amount    uint64
	State     MintQuoteState
	Expiry    int64
	CreatedAt int64
	UpdatedAt int64
}

func (q *MintQuote) WalletKey() WalletKey {
	return WalletKey{MintURL: q.MintURL, Unit: q.Unit}
}

func (q *MintQuote) IsIssued() bool {
	return q.State == MintQuoteIssued
}

func (q *MintQuote) IsExpired(now time.Time) bool {
	return q.State == MintQuoteUnpaid && q.Expiry > 0 && now.Unix() > q.Expiry
}

// Observe records the state reported by the mint. States only move forward:
// reporting an older state is a no-op. Returns whether the quote changed.
func (q *MintQuote) Observe(state MintQuoteState) bool {
	if state <= q.State {
		return false
	}
	q.State = state
	q.UpdatedAt = time.Now().Unix()
	return true
}

// MarkIssued transitions a paid quote to issued. It's a no-op if the quote is
// already issued.
func (q *MintQuote) MarkIssued() error {
	switch q.State {
	case MintQuoteIssued:
		return nil
	case MintQuotePaid:
		q.State = MintQuoteIssued
		q.UpdatedAt = time.Now().Unix()
		return nil
	default:
		return ErrQuoteNotPaid
	}
}

// MeltQuote is a request to pay a lightning invoice by spending proofs.
type MeltQuote struct {
	ID             string
	MintURL        string
	Unit           string
	Request        string
	Amount         uint64
	FeeReserve     uint64
	FeePaid        uint64
	State          MeltQuoteState
	Preimage       string
	Expiry         int64
	PendingSecrets []string
	CreatedAt      int64
	UpdatedAt      int64
}

func (q *MeltQuote) WalletKey() WalletKey {
	return WalletKey{MintURL: q.MintURL, Unit: q.Unit}
}

// Total returns the amount of proofs required to execute the melt.
func (q *MeltQuote) Total() uint64 {
	return q.Amount + q.FeeReserve
}

func (q *MeltQuote) IsExpired(now time.Time) bool {
	return q.State == MeltQuoteUnpaid && q.Expiry > 0 && now.Unix() > q.Expiry
}

// Observe records the state reported by the mint. Final states never change
// and a pending quote reported unpaid again means the payment failed.
// Returns whether the quote changed.
func (q *MeltQuote) Observe(state MeltQuoteState) bool {
	if q.State.IsFinal() || state == q.State {
		return false
	}
	if state == MeltQuoteUnpaid {
		if q.State != MeltQuotePending {
			return false
		}
		state = MeltQuoteFailed
	}
	q.State = state
	q.UpdatedAt = time.Now().Unix()
	return true
}
