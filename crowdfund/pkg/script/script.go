// Package script builds the locking scripts the crowdfunding service hands to
// the wallet: OP_RETURN data anchors, PushDrop tokens and P2PKH payments.
package script

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

const CompressedPubKeyLen = 33

var (
	ErrInvalidPublicKey = errors.New("invalid public key")
	ErrNotPushDrop      = errors.New("script is not a pushdrop token")
)

// ParsePublicKey decodes a hex encoded 33-byte compressed secp256k1 key.
func ParsePublicKey(s string) (*btcec.PublicKey, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	if len(raw) != CompressedPubKeyLen {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidPublicKey, CompressedPubKeyLen, len(raw))
	}
	pk, err := btcec.ParsePubKey(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return pk, nil
}

// OpReturn returns OP_RETURN followed by a single push of data. The push uses
// the smallest encoding for its length, without small-integer opcodes.
func OpReturn(data []byte) []byte {
	out := make([]byte, 0, len(data)+6)
	out = append(out, txscript.OP_RETURN)
	return appendRawPush(out, data)
}

func appendRawPush(out, data []byte) []byte {
	n := len(data)
	switch {
	case n < txscript.OP_PUSHDATA1:
		out = append(out, byte(n))
	case n <= 0xff:
		out = append(out, txscript.OP_PUSHDATA1, byte(n))
	case n <= 0xffff:
		out = append(out, txscript.OP_PUSHDATA2, byte(n), byte(n>>8))
	default:
		out = append(out, txscript.OP_PUSHDATA4, byte(n), byte(n>>8), byte(n>>16), byte(n>>24))
	}
	return append(out, data...)
}

// PushDrop locks an output to pubKey and carries fields that are dropped
// before the signature check:
//
//	<pubkey> OP_CHECKSIG <field 1> ... <field n> OP_2DROP ... [OP_DROP]
func PushDrop(pubKey *btcec.PublicKey, fields [][]byte) ([]byte, error) {
	if pubKey == nil {
		return nil, ErrInvalidPublicKey
	}
	b := txscript.NewScriptBuilder()
	b.AddData(pubKey.SerializeCompressed())
	b.AddOp(txscript.OP_CHECKSIG)
	for _, f := range fields {
		b.AddFullData(f)
	}
	for remaining := len(fields); remaining > 0; remaining -= 2 {
		if remaining == 1 {
			b.AddOp(txscript.OP_DROP)
			break
		}
		b.AddOp(txscript.OP_2DROP)
	}
	s, err := b.Script()
	if err != nil {
		return nil, fmt.Errorf("build pushdrop script: %w", err)
	}
	return s, nil
}

// DecodePushDrop is the inverse of PushDrop.
func DecodePushDrop(s []byte) (*btcec.PublicKey, [][]byte, error) {
	tok := txscript.MakeScriptTokenizer(0, s)

	if !tok.Next() || len(tok.Data()) != CompressedPubKeyLen {
		return nil, nil, ErrNotPushDrop
	}
	pk, err := btcec.ParsePubKey(tok.Data())
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrNotPushDrop, err)
	}
	if !tok.Next() || tok.Opcode() != txscript.OP_CHECKSIG {
		return nil, nil, ErrNotPushDrop
	}

	var fields [][]byte
	dropped := 0
	for tok.Next() {
		op := tok.Opcode()
		switch {
		case op == txscript.OP_2DROP:
			dropped += 2
		case op == txscript.OP_DROP:
			dropped++
		case dropped > 0:
			return nil, nil, ErrNotPushDrop
		case op == txscript.OP_0:
			fields = append(fields, []byte{})
		case op == txscript.OP_1NEGATE:
			fields = append(fields, []byte{0x81})
		case op >= txscript.OP_1 && op <= txscript.OP_16:
			fields = append(fields, []byte{op - txscript.OP_1 + 1})
		case op <= txscript.OP_PUSHDATA4:
			fields = append(fields, tok.Data())
		default:
			return nil, nil, ErrNotPushDrop
		}
	}
	if err := tok.Err(); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrNotPushDrop, err)
	}
	if dropped != len(fields) {
		return nil, nil, ErrNotPushDrop
	}
	return pk, fields, nil
}

// P2PKH returns the pay-to-public-key-hash locking script for pubKey.
func P2PKH(pubKey *btcec.PublicKey) ([]byte, error) {
	if pubKey == nil {
		return nil, ErrInvalidPublicKey
	}
	addr, err := btcutil.NewAddressPubKeyHash(btcutil.Hash160(pubKey.SerializeCompressed()), &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("derive address: %w", err)
	}
	s, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, fmt.Errorf("build p2pkh script: %w", err)
	}
	return s, nil
}

// Address returns the base58 mainnet address for pubKey.
func Address(pubKey *btcec.PublicKey) (string, error) {
	addr, err := btcutil.NewAddressPubKeyHash(btcutil.Hash160(pubKey.SerializeCompressed()), &chaincfg.MainNetParams)
	if err != nil {
		return "", err
	}
	return addr.EncodeAddress(), nil
}
