package httpmint

import "github.com/vulpemventures/cashew/internal/core/domain"

type errorResponse struct {
	Detail string `json:"detail"`
	Code   int    `json:"code"`
}

type keysetsResponse struct {
	Keysets []struct {
		ID          string `json:"id"`
		Unit        string `json:"unit"`
		Active      bool   `json:"active"`
		InputFeePpk uint64 `json:"input_fee_ppk"`
	} `json:"keysets"`
}

type keysResponse struct {
	Keysets []struct {
		ID   string            `json:"id"`
		Unit string            `json:"unit"`
		Keys map[uint64]string `json:"keys"`
	} `json:"keysets"`
}

type blindedMessage struct {
	Amount   uint64 `json:"amount"`
	KeysetID string `json:"id"`
	B_       string `json:"B_"`
}

type blindSignature struct {
	Amount   uint64            `json:"amount"`
	KeysetID string            `json:"id"`
	C_       string            `json:"C_"`
	DLEQ     *domain.DLEQProof `json:"dleq,omitempty"`
}

type swapRequest struct {
	Inputs  domain.Proofs    `json:"inputs"`
	Outputs []blindedMessage `json:"outputs"`
}

type signaturesResponse struct {
	Signatures []blindSignature `json:"signatures"`
}

type mintQuoteRequest struct {
	Amount uint64 `json:"amount"`
	Unit   string `json:"unit"`
}

type mintQuoteResponse struct {
	Quote   string `json:"quote"`
	Request string `json:"request"`
	Amount  uint64 `json:"amount,omitempty"`
	Unit    string `json:"unit,omitempty"`
	State   string `json:"state,omitempty"`
	// Paid is published by mints predating quote states.
	Paid   *bool `json:"paid,omitempty"`
	Expiry int64 `json:"expiry"`
}

type mintRequest struct {
	Quote   string           `json:"quote"`
	Outputs []blindedMessage `json:"outputs"`
}

type meltQuoteRequest struct {
	Request string `json:"request"`
	Unit    string `json:"unit"`
}

type meltQuoteResponse struct {
	Quote      string           `json:"quote"`
	Amount     uint64           `json:"amount"`
	FeeReserve uint64           `json:"fee_reserve"`
	Unit       string           `json:"unit,omitempty"`
	State      string           `json:"state,omitempty"`
	Paid       *bool            `json:"paid,omitempty"`
	Expiry     int64            `json:"expiry"`
	Preimage   string           `json:"payment_preimage,omitempty"`
	Change     []blindSignature `json:"change,omitempty"`
}

type meltRequest struct {
	Quote   string           `json:"quote"`
	Inputs  domain.Proofs    `json:"inputs"`
	Outputs []blindedMessage `json:"outputs,omitempty"`
}

type checkStateRequest struct {
	Ys []string `json:"Ys"`
}

type checkStateResponse struct {
	States []struct {
		Y       string `json:"Y"`
		State   string `json:"state"`
		Witness string `json:"witness,omitempty"`
	} `json:"states"`
}
