// Package wallet talks to a BRC-100 wallet over its HTTP JSON substrate.
// The service never holds keys; every derivation, signature and broadcast
// happens behind the Capability interface.
package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	CounterpartyAnyone = "anyone"
	CounterpartySelf   = "self"
)

const (
	SecurityLevelSilent      = 0
	SecurityLevelApp         = 1
	SecurityLevelCounterpart = 2
)

// Protocol identifies a key derivation protocol. On the wire it is the
// tuple [securityLevel, "name"].
type Protocol struct {
	SecurityLevel int
	Name          string
}

var (
	ProtocolTokenList = Protocol{SecurityLevel: SecurityLevelSilent, Name: "token list"}
	ProtocolBRC29     = Protocol{SecurityLevel: SecurityLevelCounterpart, Name: "3241645161d8"}
)

func (p Protocol) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{p.SecurityLevel, p.Name})
}

func (p *Protocol) UnmarshalJSON(b []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("protocol: %w", err)
	}
	if len(raw) != 2 {
		return fmt.Errorf("protocol: expected 2 elements, got %d", len(raw))
	}
	if err := json.Unmarshal(raw[0], &p.SecurityLevel); err != nil {
		return fmt.Errorf("protocol security level: %w", err)
	}
	if err := json.Unmarshal(raw[1], &p.Name); err != nil {
		return fmt.Errorf("protocol name: %w", err)
	}
	return nil
}

// Bytes is a byte slice encoded as a JSON array of numbers.
type Bytes []byte

func (b Bytes) MarshalJSON() ([]byte, error) {
	if b == nil {
		return []byte("[]"), nil
	}
	nums := make([]uint16, len(b))
	for i, v := range b {
		nums[i] = uint16(v)
	}
	return json.Marshal(nums)
}

func (b *Bytes) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*b = nil
		return nil
	}
	var nums []int
	if err := json.Unmarshal(data, &nums); err != nil {
		return fmt.Errorf("byte array: %w", err)
	}
	out := make([]byte, len(nums))
	for i, n := range nums {
		if n < 0 || n > 255 {
			return fmt.Errorf("byte array: value %d at index %d out of range", n, i)
		}
		out[i] = byte(n)
	}
	*b = out
	return nil
}

type KeyArgs struct {
	Protocol     Protocol
	KeyID        string
	Counterparty string
	ForSelf      bool
}

type Output struct {
	LockingScript     string   `json:"lockingScript"`
	Satoshis          uint64   `json:"satoshis"`
	Basket            string   `json:"basket,omitempty"`
	OutputDescription string   `json:"outputDescription"`
	Tags              []string `json:"tags,omitempty"`
}

type ActionOptions struct {
	RandomizeOutputs       *bool `json:"randomizeOutputs,omitempty"`
	AcceptDelayedBroadcast *bool `json:"acceptDelayedBroadcast,omitempty"`
	NoSend                 bool  `json:"noSend,omitempty"`
}

type CreateActionArgs struct {
	Description string        `json:"description"`
	Outputs     []Output      `json:"outputs"`
	Options     ActionOptions `json:"options"`
}

// ActionResult is what the wallet reports for a created transaction. Tx is
// the AtomicBEEF encoding.
type ActionResult struct {
	Txid string `json:"txid"`
	Tx   Bytes  `json:"tx,omitempty"`
}

type EncryptArgs struct {
	Plaintext    []byte
	Protocol     Protocol
	KeyID        string
	Counterparty string
}

type SignatureArgs struct {
	Data         []byte
	Protocol     Protocol
	KeyID        string
	Counterparty string
}

type LockTokenArgs struct {
	Fields       [][]byte
	Protocol     Protocol
	KeyID        string
	Counterparty string
}

type PaymentRemittance struct {
	DerivationPrefix  string `json:"derivationPrefix"`
	DerivationSuffix  string `json:"derivationSuffix"`
	SenderIdentityKey string `json:"senderIdentityKey"`
}

type InternalizeOutput struct {
	OutputIndex       uint32             `json:"outputIndex"`
	Protocol          string             `json:"protocol"`
	PaymentRemittance *PaymentRemittance `json:"paymentRemittance,omitempty"`
}

const ProtocolWalletPayment = "wallet payment"

type InternalizeArgs struct {
	Tx          Bytes               `json:"tx"`
	Outputs     []InternalizeOutput `json:"outputs"`
	Description string              `json:"description"`
}

// Capability is the set of wallet operations the service depends on.
type Capability interface {
	GetIdentity(ctx context.Context) (string, error)
	DerivePublicKey(ctx context.Context, args KeyArgs) (string, error)
	CreatePayment(ctx context.Context, args CreateActionArgs) (*ActionResult, error)
	Encrypt(ctx context.Context, args EncryptArgs) ([]byte, error)
	CreateSignature(ctx context.Context, args SignatureArgs) ([]byte, error)
	LockToken(ctx context.Context, args LockTokenArgs) ([]byte, error)
	InternalizeIncomingTransaction(ctx context.Context, args InternalizeArgs) error
}

// Error is a failure reported by the wallet itself.
type Error struct {
	Status      int    `json:"-"`
	Code        string `json:"code,omitempty"`
	Description string `json:"description,omitempty"`
	Method      string `json:"-"`
}

func (e *Error) Error() string {
	desc := e.Description
	if desc == "" {
		desc = "no description"
	}
	if e.Code != "" {
		return fmt.Sprintf("wallet %s: %s (%s, status %d)", e.Method, desc, e.Code, e.Status)
	}
	return fmt.Sprintf("wallet %s: %s (status %d)", e.Method, desc, e.Status)
}

func (e *Error) StatusCode() int { return e.Status }

var (
	ErrEmptyTxid    = errors.New("wallet returned no txid")
	ErrNotAccepted  = errors.New("wallet did not accept the transaction")
	ErrMissingField = errors.New("wallet response missing field")
)

func Bool(v bool) *bool { return &v }
