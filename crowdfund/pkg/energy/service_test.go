package energy

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/malbeclabs/solarfund/crowdfund/pkg/ledger"
	"github.com/malbeclabs/solarfund/crowdfund/pkg/script"
	"github.com/malbeclabs/solarfund/crowdfund/pkg/token"
	"github.com/malbeclabs/solarfund/crowdfund/pkg/wallet/wallettest"
	solarfundtesting "github.com/malbeclabs/solarfund/utils/pkg/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 11, 30, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc    *Service
	wallet *wallettest.Wallet
	dir    string

	mu      sync.Mutex
	anchors []string
	rewards []string
}

func newFixture(t *testing.T, dir string) *fixture {
	t.Helper()
	log := solarfundtesting.NewLogger()
	f := &fixture{wallet: wallettest.New("operator"), dir: dir}
	minter, err := token.NewMinter(token.Config{Logger: log, Wallet: f.wallet})
	require.NoError(t, err)
	f.svc, err = NewService(context.Background(), Config{
		Logger:  log,
		Wallet:  f.wallet,
		Minter:  minter,
		Records: ledger.NewFileBackend(filepath.Join(dir, DefaultRecordsFile)),
		Badges:  ledger.NewFileBackend(filepath.Join(dir, DefaultBadgesFile)),
		Clock:   clockwork.NewFakeClockAt(t0),
		OnAnchor: func(device string) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.anchors = append(f.anchors, device)
		},
		OnReward: func(outcome string) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.rewards = append(f.rewards, outcome)
		},
	})
	require.NoError(t, err)
	return f
}

func reading(device string, energy float64) []byte {
	return []byte(fmt.Sprintf(`{"device_id":%q,"energy":%v,"timestamp":1764460076}`, device, energy))
}

func TestSolarfund_Energy_Config_Validate(t *testing.T) {
	t.Parallel()

	w := wallettest.New("x")
	minter, err := token.NewMinter(token.Config{Logger: solarfundtesting.NewLogger(), Wallet: w})
	require.NoError(t, err)

	_, err = NewService(context.Background(), Config{Wallet: w, Minter: minter})
	require.ErrorContains(t, err, "logger is required")
	_, err = NewService(context.Background(), Config{Logger: solarfundtesting.NewLogger(), Minter: minter})
	require.ErrorContains(t, err, "wallet is required")
	_, err = NewService(context.Background(), Config{Logger: solarfundtesting.NewLogger(), Wallet: w})
	require.ErrorContains(t, err, "minter is required")

	cfg := Config{
		Logger:      solarfundtesting.NewLogger(),
		Wallet:      w,
		Minter:      minter,
		ExplorerURL: "https://test.whatsonchain.com/",
	}
	require.NoError(t, cfg.Validate())
	require.Equal(t, "https://test.whatsonchain.com", cfg.ExplorerURL)
	require.NotNil(t, cfg.Records)
	require.NotNil(t, cfg.Badges)
}

func TestSolarfund_Energy_Store(t *testing.T) {
	t.Parallel()

	t.Run("anchors the normalized reading", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, t.TempDir())

		res, err := f.svc.Store(context.Background(), reading("sensor-001", 25.4531))
		require.NoError(t, err)
		require.NotEmpty(t, res.Txid)
		require.Nil(t, res.Reward)
		require.Equal(t, t0, res.StoredAt)
		require.Equal(t, []string{"https://whatsonchain.com/tx/" + res.Txid}, res.Links)

		payload := `{"device_id":"sensor-001","energy":25.453,"timestamp":1764460076}`
		require.Equal(t, len(payload), res.DataSize)

		actions := f.wallet.Actions()
		require.Len(t, actions, 1)
		a := actions[0]
		require.Equal(t, "Store energy data on BSV blockchain - Device: sensor-001", a.Description)
		require.Len(t, a.Outputs, 1)
		require.Equal(t, hex.EncodeToString(script.OpReturn([]byte(payload))), a.Outputs[0].LockingScript)
		require.EqualValues(t, 1, a.Outputs[0].Satoshis)
		require.Equal(t, "Energy data: sensor-001 - 25.453 kWh", a.Outputs[0].OutputDescription)
		require.False(t, *a.Options.RandomizeOutputs)
		require.False(t, *a.Options.AcceptDelayedBroadcast)

		records := f.svc.Records(Filter{})
		require.Len(t, records, 1)
		require.Equal(t, res.Links[0], records[0].TxLink)
		require.Equal(t, []string{"sensor-001"}, f.anchors)
	})

	t.Run("validation error does not touch the wallet", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, t.TempDir())

		_, err := f.svc.Store(context.Background(), []byte(`{"device_id":"","energy":1,"timestamp":1}`))
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		require.Zero(t, f.wallet.Calls(wallettest.MethodCreatePayment))
		require.Empty(t, f.svc.Records(Filter{}))
	})

	t.Run("wallet failure records nothing", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, t.TempDir())
		f.wallet.Fail(wallettest.MethodCreatePayment, errors.New("insufficient funds"))

		_, err := f.svc.Store(context.Background(), reading("sensor-001", 5))
		require.ErrorContains(t, err, "insufficient funds")
		require.Empty(t, f.svc.Records(Filter{}))
		require.Empty(t, f.anchors)
	})
}

func TestSolarfund_Energy_Rewards(t *testing.T) {
	t.Parallel()

	t.Run("mints when a device crosses a threshold", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, t.TempDir())
		ctx := context.Background()

		// No badge yet and under the first threshold: nothing minted.
		res, err := f.svc.Store(ctx, reading("sensor-001", 60))
		require.NoError(t, err)
		require.Nil(t, res.Reward)
		require.Len(t, f.wallet.Actions(), 1)

		res, err = f.svc.Store(ctx, reading("sensor-001", 45))
		require.NoError(t, err)
		require.NotNil(t, res.Reward)
		require.True(t, res.Reward.Granted)
		require.EqualValues(t, 1, res.Reward.Tokens)
		require.Len(t, res.Links, 2)
		require.Equal(t, f.svc.TxLink(res.Reward.Txid), res.Links[1])

		// Token is locked to the operator and labelled with the device.
		actions := f.wallet.Actions()
		require.Len(t, actions, 3)
		require.Equal(t, "Create token: Madrilito token to sensor sensor-001", actions[2].Description)

		// Below the next threshold nothing more is minted.
		res, err = f.svc.Store(ctx, reading("sensor-001", 10))
		require.NoError(t, err)
		require.Nil(t, res.Reward)

		status := f.svc.SensorStatus("sensor-001")
		require.EqualValues(t, 1, status.CommunityTokens)
		require.Equal(t, "", status.Grants)
		require.Equal(t, []string{RewardGranted}, f.rewards)
	})

	t.Run("badges are per device", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, t.TempDir())
		ctx := context.Background()

		_, err := f.svc.Store(ctx, reading("sensor-001", 150))
		require.NoError(t, err)
		res, err := f.svc.Store(ctx, reading("sensor-002", 99))
		require.NoError(t, err)
		require.Nil(t, res.Reward)

		require.EqualValues(t, 1, f.svc.SensorStatus("sensor-001").CommunityTokens)
		require.EqualValues(t, 0, f.svc.SensorStatus("sensor-002").CommunityTokens)
	})

	t.Run("mint failure keeps the anchor and retries later", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, t.TempDir())
		ctx := context.Background()
		f.wallet.Fail(wallettest.MethodLockToken, errors.New("wallet locked"))

		res, err := f.svc.Store(ctx, reading("sensor-001", 120))
		require.NoError(t, err)
		require.NotEmpty(t, res.Txid)
		require.NotNil(t, res.Reward)
		require.False(t, res.Reward.Granted)
		require.Contains(t, res.Reward.Error, "wallet locked")
		require.Len(t, f.svc.Records(Filter{}), 1)
		require.EqualValues(t, 0, f.svc.SensorStatus("sensor-001").CommunityTokens)

		f.wallet.Fail(wallettest.MethodLockToken, nil)
		res, err = f.svc.Store(ctx, reading("sensor-001", 1))
		require.NoError(t, err)
		require.NotNil(t, res.Reward)
		require.True(t, res.Reward.Granted)
		require.EqualValues(t, 1, f.svc.SensorStatus("sensor-001").CommunityTokens)
		require.Equal(t, []string{RewardFailed, RewardGranted}, f.rewards)
	})
}

func TestSolarfund_Energy_Persistence(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := context.Background()
	f := newFixture(t, dir)
	_, err := f.svc.Store(ctx, reading("sensor-001", 210))
	require.NoError(t, err)
	_, err = f.svc.Store(ctx, reading("sensor-002", 3))
	require.NoError(t, err)

	var onDisk []Record
	require.NoError(t, json.Unmarshal(solarfundtesting.ReadFile(t, filepath.Join(dir, DefaultRecordsFile)), &onDisk))
	require.Len(t, onDisk, 2)

	var badges map[string]Badge
	require.NoError(t, json.Unmarshal(solarfundtesting.ReadFile(t, filepath.Join(dir, DefaultBadgesFile)), &badges))
	require.EqualValues(t, 2, badges["sensor-001"].Madrilitos)

	reopened := newFixture(t, dir)
	require.Equal(t, f.svc.Records(Filter{}), reopened.svc.Records(Filter{}))
	require.EqualValues(t, 2, reopened.svc.SensorStatus("sensor-001").CommunityTokens)
}

func TestSolarfund_Energy_CorruptDocumentsStartEmpty(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultRecordsFile), []byte("{broken"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultBadgesFile), []byte("[]"), 0o644))

	f := newFixture(t, dir)
	require.Empty(t, f.svc.Records(Filter{}))
	require.EqualValues(t, 0, f.svc.SensorStatus("sensor-001").CommunityTokens)
}

func TestSolarfund_Energy_RecordsAndSummary(t *testing.T) {
	t.Parallel()

	f := newFixture(t, t.TempDir())
	ctx := context.Background()
	for _, r := range []struct {
		device string
		energy float64
	}{
		{"sensor-001", 10.1},
		{"sensor-002", 4},
		{"sensor-001", 20.2},
		{"sensor-001", 30.3},
	} {
		_, err := f.svc.Store(ctx, reading(r.device, r.energy))
		require.NoError(t, err)
	}

	tests := []struct {
		name   string
		filter Filter
		want   []float64
	}{
		{"all", Filter{}, []float64{10.1, 4, 20.2, 30.3}},
		{"device", Filter{DeviceID: "sensor-001"}, []float64{10.1, 20.2, 30.3}},
		{"limit", Filter{Limit: 2}, []float64{10.1, 4}},
		{"offset and limit", Filter{DeviceID: "sensor-001", Offset: 1, Limit: 1}, []float64{20.2}},
		{"offset past end", Filter{Offset: 10}, []float64{}},
		{"unknown device", Filter{DeviceID: "nope"}, []float64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := []float64{}
			for _, r := range f.svc.Records(tt.filter) {
				got = append(got, r.Energy)
			}
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("summary", func(t *testing.T) {
		t.Parallel()
		require.Equal(t, Summary{
			DeviceID:      "sensor-001",
			TotalEnergy:   60.6,
			RecordCount:   3,
			AverageEnergy: 20.2,
		}, f.svc.Summary("sensor-001"))
		require.Equal(t, Summary{DeviceID: "ghost"}, f.svc.Summary("ghost"))
	})
}
