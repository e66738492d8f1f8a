package admin

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/malbeclabs/solarfund/crowdfund/pkg/script"
	"github.com/malbeclabs/solarfund/crowdfund/pkg/wallet"
)

const DefaultFundAmount = 10000

// FundConfig moves satoshis from a funding wallet into the service wallet
// with a BRC-29 payment.
type FundConfig struct {
	Logger  *slog.Logger
	Funder  wallet.Capability
	Service wallet.Capability
	Amount  uint64

	// NewNonce defaults to a random UUID, base64 encoded.
	NewNonce func() string
}

func (cfg *FundConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Funder == nil {
		return errors.New("funder wallet is required")
	}
	if cfg.Service == nil {
		return errors.New("service wallet is required")
	}
	if cfg.Amount == 0 {
		cfg.Amount = DefaultFundAmount
	}
	if cfg.NewNonce == nil {
		cfg.NewNonce = func() string {
			id := uuid.New()
			return base64.StdEncoding.EncodeToString(id[:])
		}
	}
	return nil
}

type FundResult struct {
	Txid             string
	Amount           uint64
	ServiceIdentity  string
	FunderIdentity   string
	DerivationPrefix string
	DerivationSuffix string
}

// FundWallet pays cfg.Amount from the funder to a key derived for the
// service wallet and internalizes the output there.
func FundWallet(ctx context.Context, cfg FundConfig) (*FundResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	log := cfg.Logger

	serviceID, err := cfg.Service.GetIdentity(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get service identity: %w", err)
	}
	funderID, err := cfg.Funder.GetIdentity(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get funder identity: %w", err)
	}

	prefix, suffix := cfg.NewNonce(), cfg.NewNonce()
	derived, err := cfg.Funder.DerivePublicKey(ctx, wallet.KeyArgs{
		Protocol:     wallet.ProtocolBRC29,
		KeyID:        prefix + " " + suffix,
		Counterparty: serviceID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to derive payment key: %w", err)
	}
	pub, err := script.ParsePublicKey(derived)
	if err != nil {
		return nil, fmt.Errorf("wallet returned invalid payment key: %w", err)
	}
	lock, err := script.P2PKH(pub)
	if err != nil {
		return nil, err
	}

	action, err := cfg.Funder.CreatePayment(ctx, wallet.CreateActionArgs{
		Description: "Fund solarfund service wallet",
		Outputs: []wallet.Output{{
			LockingScript:     hex.EncodeToString(lock),
			Satoshis:          cfg.Amount,
			OutputDescription: "Solarfund service funding",
		}},
		Options: wallet.ActionOptions{RandomizeOutputs: wallet.Bool(false)},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create funding payment: %w", err)
	}
	if len(action.Tx) == 0 {
		return nil, errors.New("funder wallet returned no transaction")
	}
	log.Info("admin: funding payment created", "txid", action.Txid, "amount", cfg.Amount)

	err = cfg.Service.InternalizeIncomingTransaction(ctx, wallet.InternalizeArgs{
		Tx: action.Tx,
		Outputs: []wallet.InternalizeOutput{{
			OutputIndex: 0,
			Protocol:    wallet.ProtocolWalletPayment,
			PaymentRemittance: &wallet.PaymentRemittance{
				DerivationPrefix:  prefix,
				DerivationSuffix:  suffix,
				SenderIdentityKey: funderID,
			},
		}},
		Description: "Solarfund service funding",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to internalize funding payment (txid %s): %w", action.Txid, err)
	}
	log.Info("admin: service wallet funded", "txid", action.Txid, "identity", serviceID)

	return &FundResult{
		Txid:             action.Txid,
		Amount:           cfg.Amount,
		ServiceIdentity:  serviceID,
		FunderIdentity:   funderID,
		DerivationPrefix: prefix,
		DerivationSuffix: suffix,
	}, nil
}
