// Package ledger persists campaign state as one JSON document per operator
// identity. Persistence is best effort: failures are logged and counted but
// never returned to the caller.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/malbeclabs/solarfund/crowdfund/pkg/campaign"
)

const (
	OpLoad = "load"
	OpSave = "save"
)

// ErrNotFound is returned by a Backend when no document exists yet.
var ErrNotFound = errors.New("document not found")

// Backend stores raw documents keyed by operator identity. Backends that can
// only hold one document may ignore the key; Ledger checks the identity
// recorded inside the document.
type Backend interface {
	Read(ctx context.Context, operator string) ([]byte, error)
	Write(ctx context.Context, operator string, doc []byte) error
	Name() string
}

// Document is the persisted layout.
type Document struct {
	OperatorIdentity string         `json:"operatorIdentity"`
	Campaign         campaign.State `json:"campaign"`
}

type Config struct {
	Logger      *slog.Logger
	Backend     Backend
	DefaultGoal int64

	// OnFailure, when set, is called with OpLoad or OpSave.
	OnFailure func(op string)
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Backend == nil {
		return errors.New("backend is required")
	}
	if cfg.DefaultGoal == 0 {
		cfg.DefaultGoal = campaign.DefaultGoal
	}
	if cfg.DefaultGoal < 0 {
		return fmt.Errorf("default goal must be positive, got %d", cfg.DefaultGoal)
	}
	return nil
}

type Ledger struct {
	log *slog.Logger
	cfg Config
}

var _ campaign.Store = (*Ledger)(nil)

func New(cfg Config) (*Ledger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	return &Ledger{log: cfg.Logger, cfg: cfg}, nil
}

func (l *Ledger) fresh() campaign.State {
	return campaign.NewState(l.cfg.DefaultGoal)
}

// Load returns the stored campaign for operator, or a fresh one when nothing
// usable is stored.
func (l *Ledger) Load(ctx context.Context, operator string) campaign.State {
	raw, err := l.cfg.Backend.Read(ctx, operator)
	if errors.Is(err, ErrNotFound) {
		return l.fresh()
	}
	if err != nil {
		l.fail(OpLoad, "ledger: failed to read campaign document, starting fresh", "operator", operator, "error", err)
		return l.fresh()
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		l.fail(OpLoad, "ledger: failed to decode campaign document, starting fresh", "operator", operator, "error", err)
		return l.fresh()
	}
	if doc.OperatorIdentity != operator {
		l.log.Info("ledger: operator identity changed, starting fresh campaign",
			"previous", doc.OperatorIdentity, "current", operator)
		return l.fresh()
	}
	if doc.Campaign.Investors == nil {
		doc.Campaign.Investors = []campaign.Investor{}
	}
	if err := doc.Campaign.CheckInvariants(); err != nil {
		l.log.Warn("ledger: stored campaign violates invariants", "operator", operator, "error", err)
	}
	return doc.Campaign
}

// Save overwrites the document for operator.
func (l *Ledger) Save(ctx context.Context, operator string, s campaign.State) {
	raw, err := json.MarshalIndent(Document{OperatorIdentity: operator, Campaign: s}, "", "  ")
	if err != nil {
		l.fail(OpSave, "ledger: failed to encode campaign document", "operator", operator, "error", err)
		return
	}
	if err := l.cfg.Backend.Write(ctx, operator, raw); err != nil {
		l.fail(OpSave, "ledger: durability gap, campaign state not persisted",
			"operator", operator,
			"backend", l.cfg.Backend.Name(),
			"raised", s.Raised,
			"investors", len(s.Investors),
			"error", err)
		return
	}
	l.log.Debug("ledger: campaign saved", "operator", operator, "backend", l.cfg.Backend.Name(), "raised", s.Raised)
}

func (l *Ledger) fail(op, msg string, args ...any) {
	l.log.Warn(msg, args...)
	if l.cfg.OnFailure != nil {
		l.cfg.OnFailure(op)
	}
}
