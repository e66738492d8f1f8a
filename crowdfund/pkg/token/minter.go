// Package token mints single-satoshi PushDrop reward tokens through the
// operator's wallet.
package token

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/malbeclabs/solarfund/crowdfund/pkg/wallet"
)

const (
	DefaultBasket = "crowdfunding"
	DefaultKeyID  = "1"
	tokenSatoshis = 1
)

type Config struct {
	Logger *slog.Logger
	Wallet wallet.Capability
	Basket string
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Wallet == nil {
		return errors.New("wallet is required")
	}
	if cfg.Basket == "" {
		cfg.Basket = DefaultBasket
	}
	return nil
}

type Minter struct {
	log *slog.Logger
	cfg Config
}

func NewMinter(cfg Config) (*Minter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	return &Minter{log: cfg.Logger, cfg: cfg}, nil
}

// Request describes one token. Description is encrypted for anyone and
// carried as the token's only data field.
type Request struct {
	Recipient   string
	Description string
}

type Result struct {
	Txid string
	Tx   wallet.Bytes
}

// Mint encrypts the description, locks it to the recipient and creates the
// output. It makes exactly one attempt.
func (m *Minter) Mint(ctx context.Context, req Request) (*Result, error) {
	if req.Recipient == "" {
		return nil, errors.New("recipient is required")
	}

	ciphertext, err := m.cfg.Wallet.Encrypt(ctx, wallet.EncryptArgs{
		Plaintext:    []byte(req.Description),
		Protocol:     wallet.ProtocolTokenList,
		KeyID:        DefaultKeyID,
		Counterparty: wallet.CounterpartyAnyone,
	})
	if err != nil {
		return nil, fmt.Errorf("encrypt token description: %w", err)
	}

	lock, err := m.cfg.Wallet.LockToken(ctx, wallet.LockTokenArgs{
		Fields:       [][]byte{ciphertext},
		Protocol:     wallet.ProtocolTokenList,
		KeyID:        DefaultKeyID,
		Counterparty: req.Recipient,
	})
	if err != nil {
		return nil, fmt.Errorf("lock token: %w", err)
	}

	res, err := m.cfg.Wallet.CreatePayment(ctx, wallet.CreateActionArgs{
		Description: "Create token: " + req.Description,
		Outputs: []wallet.Output{{
			LockingScript:     hex.EncodeToString(lock),
			Satoshis:          tokenSatoshis,
			Basket:            m.cfg.Basket,
			OutputDescription: "Crowdfunding token",
		}},
		Options: wallet.ActionOptions{RandomizeOutputs: wallet.Bool(false)},
	})
	if err != nil {
		return nil, fmt.Errorf("create token output: %w", err)
	}
	if res.Txid == "" {
		return nil, wallet.ErrEmptyTxid
	}

	m.log.Info("token: minted", "recipient", req.Recipient, "txid", res.Txid, "basket", m.cfg.Basket)
	return &Result{Txid: res.Txid, Tx: res.Tx}, nil
}

// InvestorDescription is the plaintext carried by a crowdfunding token.
func InvestorDescription(amount int64) string {
	return fmt.Sprintf("Crowdfunding token for %d sats", amount)
}

// SensorDescription is the plaintext carried by a sensor reward token.
func SensorDescription(deviceID string) string {
	return fmt.Sprintf("Madrilito token to sensor %s", deviceID)
}
