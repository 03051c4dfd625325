package core

import "time"

// Call describes a chain call without encoding it
type Call struct {
	Section string `json:"section"`
	Method  string `json:"method"`
	Args    any    `json:"args"`
}

// ForwardRequest is the input of the forward request builder
type ForwardRequest struct {
	NS        string
	SessionID string
	Owner     string
	Call      Call
	Nonce     int64
	ValidTill int64
}

// ForwardMetaTx is a forward request shaped for a trusted relayer.
// The relayer fills in Signature; this module never does.
type ForwardMetaTx struct {
	NS        string  `json:"ns"`
	SessionID string  `json:"sessionId,omitempty"`
	Owner     string  `json:"owner"`
	Call      Call    `json:"call"`
	Nonce     uint32  `json:"nonce"`
	ValidTill uint32  `json:"validTill"`
	Signature *string `json:"signature,omitempty"`
}

// RelayReceipt is the relayer answer to a forward request
type RelayReceipt struct {
	Status string `json:"status"`
	Hash   string `json:"hash,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// SignedCall is a call signed by the local key for direct submission
type SignedCall struct {
	Call      Call   `json:"call"`
	Signer    string `json:"signer"`
	Signature string `json:"signature"`
}

// TxRecord is a locally remembered submitted transaction
type TxRecord struct {
	ID        string    `json:"id"`
	Hash      string    `json:"hash"`
	Section   string    `json:"section"`
	Method    string    `json:"method"`
	Args      any       `json:"args,omitempty"`
	From      string    `json:"from"`
	Timestamp time.Time `json:"timestamp"`
}
