package ledger_test

import (
	"context"
	"sync"
	"testing"

	apitesting "github.com/malbeclabs/solarfund/api/testing"
	"github.com/malbeclabs/solarfund/crowdfund/pkg/campaign"
	"github.com/malbeclabs/solarfund/crowdfund/pkg/ledger"
	solarfundtesting "github.com/malbeclabs/solarfund/utils/pkg/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSolarfund_Ledger_PostgresBackend(t *testing.T) {
	t.Parallel()
	log := solarfundtesting.NewLogger()
	pool, db := apitesting.NewMigratedPool(t, log)
	ctx := context.Background()

	version, err := ledger.MigrationVersion(ctx, log, db.ConnStr())
	require.NoError(t, err)
	assert.EqualValues(t, 1, version)

	b := ledger.NewPostgresBackend(pool)
	_, err = b.Read(ctx, "02ab")
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	l, err := ledger.New(ledger.Config{Logger: log, Backend: b})
	require.NoError(t, err)

	st := campaign.State{Goal: 100, Raised: 40, Investors: []campaign.Investor{{IdentityKey: "A", Amount: 40, Timestamp: 3}}}
	l.Save(ctx, "02ab", st)
	assert.Equal(t, st, l.Load(ctx, "02ab"))

	st.Raised = 100
	st.Investors[0].Amount = 100
	l.Save(ctx, "02ab", st)
	assert.Equal(t, st, l.Load(ctx, "02ab"))

	assert.Equal(t, campaign.NewState(campaign.DefaultGoal), l.Load(ctx, "03cd"))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Save(ctx, "02ef", campaign.NewState(7))
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 7, l.Load(ctx, "02ef").Goal)

	require.NoError(t, b.Delete(ctx, "02ab"))
	_, err = b.Read(ctx, "02ab")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}
