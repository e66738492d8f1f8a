// Package wallettest provides an in-memory wallet.Capability for tests.
package wallettest

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/malbeclabs/solarfund/crowdfund/pkg/wallet"
)

const (
	MethodGetIdentity     = "getIdentity"
	MethodDerivePublicKey = "derivePublicKey"
	MethodCreatePayment   = "createPayment"
	MethodEncrypt         = "encrypt"
	MethodCreateSignature = "createSignature"
	MethodLockToken       = "lockToken"
	MethodInternalize     = "internalize"
)

// Wallet derives keys deterministically from a seed. Failures can be
// injected per method.
type Wallet struct {
	mu       sync.Mutex
	root     *btcec.PrivateKey
	failures map[string]error
	calls    map[string]int
	actions  []wallet.CreateActionArgs
	incoming []wallet.InternalizeArgs
	nextTx   uint64
}

var _ wallet.Capability = (*Wallet)(nil)

func New(seed string) *Wallet {
	sum := sha256.Sum256([]byte(seed))
	priv, _ := btcec.PrivKeyFromBytes(sum[:])
	return &Wallet{
		root:     priv,
		failures: map[string]error{},
		calls:    map[string]int{},
	}
}

// Fail makes every subsequent call to method return err. A nil err clears it.
func (w *Wallet) Fail(method string, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err == nil {
		delete(w.failures, method)
		return
	}
	w.failures[method] = err
}

func (w *Wallet) Calls(method string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls[method]
}

// Actions returns every createAction the wallet accepted.
func (w *Wallet) Actions() []wallet.CreateActionArgs {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]wallet.CreateActionArgs(nil), w.actions...)
}

func (w *Wallet) Internalized() []wallet.InternalizeArgs {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]wallet.InternalizeArgs(nil), w.incoming...)
}

func (w *Wallet) IdentityKey() string {
	return hex.EncodeToString(w.root.PubKey().SerializeCompressed())
}

func (w *Wallet) enter(method string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls[method]++
	return w.failures[method]
}

func (w *Wallet) GetIdentity(ctx context.Context) (string, error) {
	if err := w.enter(MethodGetIdentity); err != nil {
		return "", err
	}
	return w.IdentityKey(), ctx.Err()
}

func (w *Wallet) derive(p wallet.Protocol, keyID, counterparty string) *btcec.PrivateKey {
	sum := sha256.Sum256(fmt.Appendf(nil, "%x|%d|%s|%s|%s", w.root.Serialize(), p.SecurityLevel, p.Name, keyID, counterparty))
	priv, _ := btcec.PrivKeyFromBytes(sum[:])
	return priv
}

func (w *Wallet) DerivePublicKey(ctx context.Context, args wallet.KeyArgs) (string, error) {
	if err := w.enter(MethodDerivePublicKey); err != nil {
		return "", err
	}
	priv := w.derive(args.Protocol, args.KeyID, args.Counterparty)
	return hex.EncodeToString(priv.PubKey().SerializeCompressed()), ctx.Err()
}

func (w *Wallet) CreatePayment(ctx context.Context, args wallet.CreateActionArgs) (*wallet.ActionResult, error) {
	if err := w.enter(MethodCreatePayment); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nextTx++
	w.actions = append(w.actions, args)

	var n [8]byte
	binary.BigEndian.PutUint64(n[:], w.nextTx)
	txid := sha256.Sum256(append(w.root.PubKey().SerializeCompressed(), n[:]...))
	return &wallet.ActionResult{
		Txid: hex.EncodeToString(txid[:]),
		Tx:   wallet.Bytes(append([]byte{0x01, 0x01, 0x01, 0x01}, txid[:]...)),
	}, nil
}

// Encrypt returns a reversible encoding of plaintext so tests can inspect it.
func (w *Wallet) Encrypt(ctx context.Context, args wallet.EncryptArgs) ([]byte, error) {
	if err := w.enter(MethodEncrypt); err != nil {
		return nil, err
	}
	return Seal(args.Plaintext), ctx.Err()
}

func (w *Wallet) CreateSignature(ctx context.Context, args wallet.SignatureArgs) ([]byte, error) {
	if err := w.enter(MethodCreateSignature); err != nil {
		return nil, err
	}
	priv := w.derive(args.Protocol, args.KeyID, args.Counterparty)
	hash := sha256.Sum256(args.Data)
	return ecdsa.Sign(priv, hash[:]).Serialize(), ctx.Err()
}

func (w *Wallet) LockToken(ctx context.Context, args wallet.LockTokenArgs) ([]byte, error) {
	if err := w.enter(MethodLockToken); err != nil {
		return nil, err
	}
	return wallet.LockPushDrop(ctx, w, args)
}

func (w *Wallet) InternalizeIncomingTransaction(ctx context.Context, args wallet.InternalizeArgs) error {
	if err := w.enter(MethodInternalize); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.incoming = append(w.incoming, args)
	return nil
}

var sealPrefix = []byte("sealed:")

func Seal(plaintext []byte) []byte {
	return append(append([]byte{}, sealPrefix...), plaintext...)
}

func Open(ciphertext []byte) ([]byte, bool) {
	if len(ciphertext) < len(sealPrefix) || string(ciphertext[:len(sealPrefix)]) != string(sealPrefix) {
		return nil, false
	}
	return ciphertext[len(sealPrefix):], true
}
