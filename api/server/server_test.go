package server

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/malbeclabs/solarfund/api/handlers"
	"github.com/malbeclabs/solarfund/crowdfund/pkg/campaign"
	"github.com/malbeclabs/solarfund/crowdfund/pkg/energy"
	solarfundtesting "github.com/malbeclabs/solarfund/utils/pkg/testing"
	"github.com/stretchr/testify/require"
)

type stubCampaign struct{}

func (stubCampaign) Contribute(context.Context, string, int64) (*campaign.ContributionResult, error) {
	return nil, errors.New("not implemented")
}

func (stubCampaign) Redeem(context.Context, string, string) (*campaign.RedemptionResult, error) {
	return nil, errors.New("not implemented")
}

func (stubCampaign) Status(context.Context) (*campaign.Status, error) {
	st := campaign.BuildStatus(campaign.NewState(100))
	return &st, nil
}

func (stubCampaign) IsClosed(context.Context) (bool, error) { return false, nil }

type stubEnergy struct{}

func (stubEnergy) Store(context.Context, []byte) (*energy.StoreResult, error) {
	return nil, errors.New("not implemented")
}
func (stubEnergy) Records(energy.Filter) []energy.Record { return []energy.Record{} }
func (stubEnergy) Summary(id string) energy.Summary       { return energy.Summary{DeviceID: id} }
func (stubEnergy) SensorStatus(id string) energy.SensorStatus {
	return energy.SensorStatus{DeviceID: id}
}

type stubIdentity struct{}

func (stubIdentity) GetIdentity(context.Context) (string, error) { return "02abc", nil }

func newTestServer(t *testing.T, env handlers.Env) *Server {
	t.Helper()
	log := solarfundtesting.NewLogger()
	api, err := handlers.New(handlers.Config{
		Logger:      log,
		Campaign:    stubCampaign{},
		Energy:      stubEnergy{},
		Identity:    stubIdentity{},
		PaymentGate: func(next http.Handler) http.Handler { return next },
	})
	require.NoError(t, err)
	srv, err := New(Config{
		Logger:      log,
		ListenAddr:  "127.0.0.1:0",
		MetricsAddr: "127.0.0.1:0",
		Env:         env,
		API:         api,
	})
	require.NoError(t, err)
	return srv
}

func TestSolarfund_Server_Config_Validate(t *testing.T) {
	t.Parallel()

	_, err := New(Config{ListenAddr: ":0"})
	require.ErrorContains(t, err, "logger is required")
	_, err = New(Config{Logger: solarfundtesting.NewLogger()})
	require.ErrorContains(t, err, "listen addr is required")
	_, err = New(Config{Logger: solarfundtesting.NewLogger(), ListenAddr: ":0"})
	require.ErrorContains(t, err, "api is required")

	cfg := Config{Logger: solarfundtesting.NewLogger(), ListenAddr: ":0", API: &handlers.API{}}
	require.NoError(t, cfg.Validate())
	require.Equal(t, DefaultShutdownTimeout, cfg.ShutdownTimeout)
	require.Equal(t, handlers.EnvProduction, cfg.Env)
}

func TestSolarfund_Server_ServeAndShutdown(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, handlers.EnvProduction)
	apiLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	metricsLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, apiLn, metricsLn) }()

	base := "http://" + apiLn.Addr().String()
	resp, err := http.Get(base + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(base + "/api/status")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get("http://" + metricsLn.Addr().String() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	require.True(t, strings.Contains(string(body), "solarfund_api_http_requests_total"))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestSolarfund_Server_CORS(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		env    handlers.Env
		origin string
		want   string
	}{
		{"allowed origin", handlers.EnvProduction, "http://localhost:5173", "http://localhost:5173"},
		{"foreign origin in production", handlers.EnvProduction, "https://evil.example", ""},
		{"foreign origin in development", handlers.EnvDevelopment, "https://dev.example", "https://dev.example"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := newTestServer(t, tt.env)
			h := srv.Router()

			req, err := http.NewRequest(http.MethodOptions, "/api/invest", nil)
			require.NoError(t, err)
			req.Header.Set("Origin", tt.origin)
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			req.Header.Set("Access-Control-Request-Headers", "X-BSV-Payment")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			require.Equal(t, tt.want, rec.Header().Get("Access-Control-Allow-Origin"))
			if tt.want != "" {
				require.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
				require.Equal(t, "86400", rec.Header().Get("Access-Control-Max-Age"))
			}
		})
	}
}
