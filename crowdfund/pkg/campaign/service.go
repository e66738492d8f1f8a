package campaign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"
	"github.com/malbeclabs/solarfund/crowdfund/pkg/token"
)

// Store persists one campaign document per operator identity. Load never
// fails; a missing or unreadable document yields a fresh state.
type Store interface {
	Load(ctx context.Context, operator string) State
	Save(ctx context.Context, operator string, s State)
}

type IdentityProvider interface {
	GetIdentity(ctx context.Context) (string, error)
}

type TokenMinter interface {
	Mint(ctx context.Context, req token.Request) (*token.Result, error)
}

const (
	OutcomeRedeemed = "redeemed"
	OutcomeFailed   = "mint_failed"
)

type Config struct {
	Logger   *slog.Logger
	Store    Store
	Minter   TokenMinter
	Identity IdentityProvider
	Clock    clockwork.Clock

	// Optional hooks for metrics.
	OnContribution func(amount int64)
	OnRedemption   func(outcome string)
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Store == nil {
		return errors.New("store is required")
	}
	if cfg.Minter == nil {
		return errors.New("minter is required")
	}
	if cfg.Identity == nil {
		return errors.New("identity provider is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Service runs every load-mutate-save sequence under a per-operator lock.
// Reads go straight to the store.
type Service struct {
	log   *slog.Logger
	cfg   Config
	locks *keyedMutex
}

func NewService(cfg Config) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	return &Service{log: cfg.Logger, cfg: cfg, locks: newKeyedMutex()}, nil
}

type ContributionResult struct {
	Accepted    bool
	Amount      int64
	TotalRaised int64
}

type RedemptionResult struct {
	Txid          string
	Tx            []byte
	InvestorCount int
	AllRedeemed   bool
}

func (s *Service) operator(ctx context.Context) (string, error) {
	id, err := s.cfg.Identity.GetIdentity(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve operator identity: %w", err)
	}
	return id, nil
}

// Contribute records a verified payment from payer.
func (s *Service) Contribute(ctx context.Context, payer string, amount int64) (*ContributionResult, error) {
	if payer == "" || payer == UnknownIdentity {
		return nil, &ValidationError{Message: "Investor identity required"}
	}
	if amount <= 0 {
		return nil, &ValidationError{Message: "Invalid investment amount"}
	}

	operator, err := s.operator(ctx)
	if err != nil {
		return nil, err
	}
	unlock, err := s.locks.Lock(ctx, operator)
	if err != nil {
		return nil, err
	}
	defer unlock()

	state := s.cfg.Store.Load(ctx, operator)
	next, err := RecordContribution(state, payer, amount, s.cfg.Clock.Now())
	if err != nil {
		return nil, err
	}
	s.cfg.Store.Save(context.WithoutCancel(ctx), operator, next)

	inv, _ := next.Investor(payer)
	s.log.Info("campaign: contribution recorded",
		"investor", RedactIdentity(payer),
		"amount", amount,
		"investorTotal", inv.Amount,
		"raised", next.Raised,
		"investors", len(next.Investors))
	if s.cfg.OnContribution != nil {
		s.cfg.OnContribution(amount)
	}

	return &ContributionResult{Accepted: true, Amount: amount, TotalRaised: next.Raised}, nil
}

// Redeem mints the reward token for investor and marks them redeemed. The
// ledger changes only after the mint succeeds.
func (s *Service) Redeem(ctx context.Context, investor, paymentKey string) (*RedemptionResult, error) {
	if investor == "" {
		return nil, &ValidationError{Message: "Missing or invalid identityKey parameter"}
	}
	if paymentKey == "" {
		return nil, &ValidationError{Message: "Missing or invalid paymentKey parameter"}
	}

	operator, err := s.operator(ctx)
	if err != nil {
		return nil, err
	}
	unlock, err := s.locks.Lock(ctx, operator)
	if err != nil {
		return nil, err
	}
	defer unlock()

	state := s.cfg.Store.Load(ctx, operator)
	inv, err := CheckRedeemable(state, investor)
	if err != nil {
		s.observeRedemption(err)
		return nil, err
	}

	minted, err := s.cfg.Minter.Mint(ctx, token.Request{
		Recipient:   investor,
		Description: token.InvestorDescription(inv.Amount),
	})
	if err != nil {
		s.log.Error("campaign: token mint failed", "investor", RedactIdentity(investor), "error", err)
		s.observeRedemption(err)
		return nil, fmt.Errorf("mint token: %w", err)
	}

	// The token exists on chain now; record it even if the caller went away.
	saveCtx := context.WithoutCancel(ctx)
	next, allRedeemed := MarkRedeemed(state, investor)
	s.cfg.Store.Save(saveCtx, operator, next)
	if allRedeemed {
		next = Complete(next, minted.Txid)
		s.cfg.Store.Save(saveCtx, operator, next)
		s.log.Info("campaign: complete", "txid", minted.Txid, "raised", next.Raised, "investors", len(next.Investors))
	}

	s.log.Info("campaign: investor redeemed",
		"investor", RedactIdentity(investor),
		"paymentKey", paymentKey,
		"txid", minted.Txid,
		"allRedeemed", allRedeemed)
	s.observeRedemption(nil)

	return &RedemptionResult{
		Txid:          minted.Txid,
		Tx:            minted.Tx,
		InvestorCount: len(next.Investors),
		AllRedeemed:   allRedeemed,
	}, nil
}

func (s *Service) observeRedemption(err error) {
	if s.cfg.OnRedemption == nil {
		return
	}
	switch kind, ok := KindOf(err); {
	case err == nil:
		s.cfg.OnRedemption(OutcomeRedeemed)
	case ok:
		s.cfg.OnRedemption(string(kind))
	default:
		s.cfg.OnRedemption(OutcomeFailed)
	}
}

// Status reads the campaign without taking the operator lock.
func (s *Service) Status(ctx context.Context) (*Status, error) {
	operator, err := s.operator(ctx)
	if err != nil {
		return nil, err
	}
	state := s.cfg.Store.Load(ctx, operator)
	if state.Goal <= 0 {
		s.log.Warn("campaign: stored goal is not positive, reporting 0% funded", "goal", state.Goal)
	}
	st := BuildStatus(state)
	return &st, nil
}

// IsClosed reports whether the campaign has stopped accepting contributions.
func (s *Service) IsClosed(ctx context.Context) (bool, error) {
	operator, err := s.operator(ctx)
	if err != nil {
		return false, err
	}
	return s.cfg.Store.Load(ctx, operator).IsComplete, nil
}
