package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type statusErr struct{ code int }

func (e statusErr) Error() string   { return "status error" }
func (e statusErr) StatusCode() int { return e.code }

func TestSolarfund_Metrics_RecordWalletCall(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		method string
		err    error
		status string
	}{
		{name: "success", method: "test_success", status: "success"},
		{name: "plain error", method: "test_plain", err: errors.New("boom"), status: "error"},
		{name: "status error", method: "test_status", err: statusErr{code: 503}, status: "503"},
		{name: "wrapped status error", method: "test_wrapped", err: errors.Join(errors.New("ctx"), statusErr{code: 400}), status: "400"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			RecordWalletCall(tt.method, 10*time.Millisecond, tt.err)
			require.Equal(t, float64(1), testutil.ToFloat64(WalletCallsTotal.WithLabelValues(tt.method, tt.status)))
		})
	}
}

func TestSolarfund_Metrics_Middleware_UsesRoutePattern(t *testing.T) {
	t.Parallel()

	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/metrics-test/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	for _, id := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics-test/"+id, nil))
		require.Equal(t, http.StatusTeapot, rec.Code)
	}

	require.Equal(t, float64(2), testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/metrics-test/{id}", "418")))
}
