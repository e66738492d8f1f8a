package token

import (
	"context"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/malbeclabs/solarfund/crowdfund/pkg/script"
	"github.com/malbeclabs/solarfund/crowdfund/pkg/wallet"
	"github.com/malbeclabs/solarfund/crowdfund/pkg/wallet/wallettest"
	solarfundtesting "github.com/malbeclabs/solarfund/utils/pkg/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMinter(t *testing.T, w wallet.Capability) *Minter {
	m, err := NewMinter(Config{Logger: solarfundtesting.NewLogger(), Wallet: w})
	require.NoError(t, err)
	return m
}

func TestSolarfund_Token_Config_Validate(t *testing.T) {
	t.Parallel()
	cfg := Config{}
	assert.EqualError(t, cfg.Validate(), "logger is required")
	cfg = Config{Logger: solarfundtesting.NewLogger()}
	assert.EqualError(t, cfg.Validate(), "wallet is required")
	cfg = Config{Logger: solarfundtesting.NewLogger(), Wallet: wallettest.New("x")}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultBasket, cfg.Basket)
}

func TestSolarfund_Token_Mint(t *testing.T) {
	t.Parallel()
	w := wallettest.New("operator")
	m := newMinter(t, w)

	res, err := m.Mint(context.Background(), Request{Recipient: "02investor", Description: InvestorDescription(60)})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Txid)
	assert.NotEmpty(t, res.Tx)

	actions := w.Actions()
	require.Len(t, actions, 1)
	a := actions[0]
	assert.Equal(t, "Create token: Crowdfunding token for 60 sats", a.Description)
	require.NotNil(t, a.Options.RandomizeOutputs)
	assert.False(t, *a.Options.RandomizeOutputs)
	require.Len(t, a.Outputs, 1)
	out := a.Outputs[0]
	assert.EqualValues(t, 1, out.Satoshis)
	assert.Equal(t, "crowdfunding", out.Basket)

	lock, err := hex.DecodeString(out.LockingScript)
	require.NoError(t, err)
	_, fields, err := script.DecodePushDrop(lock)
	require.NoError(t, err)
	require.Len(t, fields, 2)
	plain, ok := wallettest.Open(fields[0])
	require.True(t, ok)
	assert.Equal(t, "Crowdfunding token for 60 sats", string(plain))
}

func TestSolarfund_Token_Mint_Failures(t *testing.T) {
	t.Parallel()
	boom := errors.New("wallet offline")
	tests := []struct {
		name   string
		method string
	}{
		{"encrypt", wallettest.MethodEncrypt},
		{"lock", wallettest.MethodLockToken},
		{"create", wallettest.MethodCreatePayment},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			w := wallettest.New("operator")
			w.Fail(tt.method, boom)
			_, err := newMinter(t, w).Mint(context.Background(), Request{Recipient: "02ab", Description: "d"})
			assert.ErrorIs(t, err, boom)
			assert.Empty(t, w.Actions())
		})
	}

	t.Run("missing recipient", func(t *testing.T) {
		t.Parallel()
		w := wallettest.New("operator")
		_, err := newMinter(t, w).Mint(context.Background(), Request{Description: "d"})
		assert.Error(t, err)
		assert.Zero(t, w.Calls(wallettest.MethodEncrypt))
	})
}

func TestSolarfund_Token_Descriptions(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "Crowdfunding token for 100 sats", InvestorDescription(100))
	assert.Equal(t, "Madrilito token to sensor sensor-001", SensorDescription("sensor-001"))
}
