package energy

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/malbeclabs/solarfund/crowdfund/pkg/ledger"
	"github.com/malbeclabs/solarfund/crowdfund/pkg/script"
	"github.com/malbeclabs/solarfund/crowdfund/pkg/token"
	"github.com/malbeclabs/solarfund/crowdfund/pkg/wallet"
)

const (
	DefaultRecordsFile = "solar-data.json"
	DefaultBadgesFile  = "sensor-badge-data.json"
	DefaultExplorerURL = "https://whatsonchain.com"

	// EnergyPerToken is the kWh a device must produce per reward token.
	EnergyPerToken = 100
	// TokensPerParkingHour converts a badge count into parking hours.
	TokensPerParkingHour = 10

	// RecordsKey and BadgesKey name the documents in shared backends.
	RecordsKey     = "energy-records"
	BadgesKey      = "sensor-badges"
	anchorSatoshis = 1
)

const (
	RewardGranted = "granted"
	RewardFailed  = "failed"
)

// Backend stores one opaque document per key.
type Backend interface {
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, doc []byte) error
	Name() string
}

// Anchorer is the wallet surface the service needs directly.
type Anchorer interface {
	GetIdentity(ctx context.Context) (string, error)
	CreatePayment(ctx context.Context, args wallet.CreateActionArgs) (*wallet.ActionResult, error)
}

type TokenMinter interface {
	Mint(ctx context.Context, req token.Request) (*token.Result, error)
}

type Config struct {
	Logger      *slog.Logger
	Wallet      Anchorer
	Minter      TokenMinter
	Records     Backend
	Badges      Backend
	ExplorerURL string
	Clock       clockwork.Clock

	// Optional hooks for metrics.
	OnAnchor func(deviceID string)
	OnReward func(outcome string)
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Wallet == nil {
		return errors.New("wallet is required")
	}
	if cfg.Minter == nil {
		return errors.New("minter is required")
	}
	if cfg.Records == nil {
		cfg.Records = ledger.NewFileBackend(DefaultRecordsFile)
	}
	if cfg.Badges == nil {
		cfg.Badges = ledger.NewFileBackend(DefaultBadgesFile)
	}
	if cfg.ExplorerURL == "" {
		cfg.ExplorerURL = DefaultExplorerURL
	}
	cfg.ExplorerURL = strings.TrimRight(cfg.ExplorerURL, "/")
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

type Badge struct {
	Madrilitos int64 `json:"madrilitos"`
}

// Service keeps the record list and badge counts in memory and writes both
// back after every change. Store calls are serialized.
type Service struct {
	log *slog.Logger
	cfg Config

	mu      sync.Mutex
	records []Record
	badges  map[string]Badge
}

// NewService loads any previously stored records and badges. Unreadable
// documents are logged and treated as empty.
func NewService(ctx context.Context, cfg Config) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	s := &Service{
		log:     cfg.Logger,
		cfg:     cfg,
		records: []Record{},
		badges:  map[string]Badge{},
	}
	s.load(ctx, cfg.Records, RecordsKey, &s.records)
	s.load(ctx, cfg.Badges, BadgesKey, &s.badges)
	if s.records == nil {
		s.records = []Record{}
	}
	if s.badges == nil {
		s.badges = map[string]Badge{}
	}
	s.log.Info("energy: loaded", "records", len(s.records), "devices", len(s.badges), "backend", cfg.Records.Name())
	return s, nil
}

func (s *Service) load(ctx context.Context, b Backend, key string, into any) {
	data, err := b.Read(ctx, key)
	if errors.Is(err, ledger.ErrNotFound) {
		return
	}
	if err != nil {
		s.log.Warn("energy: failed to read document", "key", key, "backend", b.Name(), "error", err)
		return
	}
	if err := json.Unmarshal(data, into); err != nil {
		s.log.Warn("energy: failed to decode document", "key", key, "backend", b.Name(), "error", err)
	}
}

func (s *Service) persist(ctx context.Context, b Backend, key string, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err == nil {
		err = b.Write(context.WithoutCancel(ctx), key, data)
	}
	if err != nil {
		s.log.Warn("energy: failed to persist document", "key", key, "backend", b.Name(), "error", err)
	}
}

type Reward struct {
	Granted bool
	Tokens  int64
	Txid    string
	Error   string
}

type StoreResult struct {
	Txid     string
	Data     Reading
	DataSize int
	// Links holds the anchor explorer link, followed by the reward token's
	// link when one was minted.
	Links    []string
	Reward   *Reward
	StoredAt time.Time
}

// Store anchors a reading on chain and grants any reward tokens the device
// has earned since its last reward.
func (s *Service) Store(ctx context.Context, raw []byte) (*StoreResult, error) {
	reading, err := Normalize(raw)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(reading)
	if err != nil {
		return nil, fmt.Errorf("encode reading: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.cfg.Wallet.CreatePayment(ctx, wallet.CreateActionArgs{
		Description: "Store energy data on BSV blockchain - Device: " + reading.DeviceID,
		Outputs: []wallet.Output{{
			LockingScript:     hex.EncodeToString(script.OpReturn(payload)),
			Satoshis:          anchorSatoshis,
			OutputDescription: fmt.Sprintf("Energy data: %s - %s kWh", reading.DeviceID, formatEnergy(reading.Energy)),
		}},
		Options: wallet.ActionOptions{
			RandomizeOutputs:       wallet.Bool(false),
			AcceptDelayedBroadcast: wallet.Bool(false),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anchor energy reading: %w", err)
	}
	if res.Txid == "" {
		return nil, wallet.ErrEmptyTxid
	}

	link := s.TxLink(res.Txid)
	s.records = append(s.records, Record{
		DeviceID:  reading.DeviceID,
		Energy:    reading.Energy,
		Timestamp: reading.Timestamp,
		TxLink:    link,
	})
	s.persist(ctx, s.cfg.Records, RecordsKey, s.records)
	if s.cfg.OnAnchor != nil {
		s.cfg.OnAnchor(reading.DeviceID)
	}
	s.log.Info("energy: reading anchored", "device", reading.DeviceID, "energy", reading.Energy, "txid", res.Txid, "size", len(payload))

	out := &StoreResult{
		Txid:     res.Txid,
		Data:     reading,
		DataSize: len(payload),
		Links:    []string{link},
		StoredAt: s.cfg.Clock.Now().UTC(),
	}
	if reward := s.reward(ctx, reading.DeviceID); reward != nil {
		out.Reward = reward
		if reward.Txid != "" {
			out.Links = append(out.Links, s.TxLink(reward.Txid))
		}
	}
	return out, nil
}

// reward mints a token when the device's earned count exceeds its badge. A
// device with no badge earns nothing before its first 100 kWh.
// Must be called with s.mu held.
func (s *Service) reward(ctx context.Context, deviceID string) *Reward {
	total := s.totalEnergy(deviceID)
	earned := int64(math.Floor(total / EnergyPerToken))
	badge := s.badges[deviceID]
	if earned <= badge.Madrilitos {
		return nil
	}

	fail := func(err error) *Reward {
		s.log.Error("energy: sensor reward failed", "device", deviceID, "earned", earned, "badge", badge.Madrilitos, "error", err)
		if s.cfg.OnReward != nil {
			s.cfg.OnReward(RewardFailed)
		}
		return &Reward{Tokens: badge.Madrilitos, Error: err.Error()}
	}

	operator, err := s.cfg.Wallet.GetIdentity(ctx)
	if err != nil {
		return fail(fmt.Errorf("resolve operator identity: %w", err))
	}
	minted, err := s.cfg.Minter.Mint(ctx, token.Request{
		Recipient:   operator,
		Description: token.SensorDescription(deviceID),
	})
	if err != nil {
		return fail(err)
	}

	s.badges[deviceID] = Badge{Madrilitos: earned}
	s.persist(ctx, s.cfg.Badges, BadgesKey, s.badges)
	if s.cfg.OnReward != nil {
		s.cfg.OnReward(RewardGranted)
	}
	s.log.Info("energy: sensor rewarded", "device", deviceID, "tokens", earned, "txid", minted.Txid)
	return &Reward{Granted: true, Tokens: earned, Txid: minted.Txid}
}

func (s *Service) totalEnergy(deviceID string) float64 {
	var total float64
	for _, r := range s.records {
		if r.DeviceID == deviceID {
			total += r.Energy
		}
	}
	return total
}

func (s *Service) TxLink(txid string) string {
	return s.cfg.ExplorerURL + "/tx/" + txid
}

type Filter struct {
	DeviceID string
	Offset   int
	// Limit <= 0 returns every remaining record.
	Limit int
}

// Records returns stored records in insertion order.
func (s *Service) Records(f Filter) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		if f.DeviceID == "" || r.DeviceID == f.DeviceID {
			out = append(out, r)
		}
	}
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return []Record{}
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out
}

type Summary struct {
	DeviceID      string  `json:"device_id"`
	TotalEnergy   float64 `json:"total_energy"`
	RecordCount   int     `json:"record_count"`
	AverageEnergy float64 `json:"average_energy"`
}

func (s *Service) Summary(deviceID string) Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		total float64
		count int
	)
	for _, r := range s.records {
		if r.DeviceID == deviceID {
			total += r.Energy
			count++
		}
	}
	var avg float64
	if count > 0 {
		avg = total / float64(count)
	}
	return Summary{
		DeviceID:      deviceID,
		TotalEnergy:   Round3(total),
		RecordCount:   count,
		AverageEnergy: Round3(avg),
	}
}

type SensorStatus struct {
	DeviceID        string `json:"device_id"`
	CommunityTokens int64  `json:"community_tokens"`
	Grants          string `json:"grants"`
}

func (s *Service) SensorStatus(deviceID string) SensorStatus {
	s.mu.Lock()
	tokens := s.badges[deviceID].Madrilitos
	s.mu.Unlock()

	return SensorStatus{
		DeviceID:        deviceID,
		CommunityTokens: tokens,
		Grants:          Grants(tokens),
	}
}

// Grants describes the parking benefit a badge count earns.
func Grants(tokens int64) string {
	hours := tokens / TokensPerParkingHour
	if hours <= 0 {
		return ""
	}
	return fmt.Sprintf("granted %d hours of free green zone parking", hours)
}

func formatEnergy(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
