// Package handlers serves the crowdfunding and energy telemetry HTTP API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi/v5"
	"github.com/malbeclabs/solarfund/api/handlers/upstream"
	"github.com/malbeclabs/solarfund/crowdfund/pkg/campaign"
	"github.com/malbeclabs/solarfund/crowdfund/pkg/energy"
)

const (
	DefaultMaxBodyBytes = 1 << 20
	DefaultSensorID     = "sensor-001"

	readyTimeout = 5 * time.Second
)

type Campaign interface {
	Contribute(ctx context.Context, payer string, amount int64) (*campaign.ContributionResult, error)
	Redeem(ctx context.Context, investor, paymentKey string) (*campaign.RedemptionResult, error)
	Status(ctx context.Context) (*campaign.Status, error)
	IsClosed(ctx context.Context) (bool, error)
}

type Energy interface {
	Store(ctx context.Context, raw []byte) (*energy.StoreResult, error)
	Records(f energy.Filter) []energy.Record
	Summary(deviceID string) energy.Summary
	SensorStatus(deviceID string) energy.SensorStatus
}

type Identity interface {
	GetIdentity(ctx context.Context) (string, error)
}

type Config struct {
	Logger   *slog.Logger
	Campaign Campaign
	Energy   Energy
	Identity Identity
	// PaymentGate wraps the invest route.
	PaymentGate func(http.Handler) http.Handler
	// WriteLimiter, when set, rate limits the mutating routes per client IP.
	WriteLimiter *RateLimiter
	Version      VersionResponse
	MaxBodyBytes int64
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Campaign == nil {
		return errors.New("campaign is required")
	}
	if cfg.Energy == nil {
		return errors.New("energy is required")
	}
	if cfg.Identity == nil {
		return errors.New("identity is required")
	}
	if cfg.PaymentGate == nil {
		return errors.New("payment gate is required")
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return nil
}

type API struct {
	log *slog.Logger
	cfg Config
}

func New(cfg Config) (*API, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	return &API{log: cfg.Logger, cfg: cfg}, nil
}

// Mount registers every route on r.
func (a *API) Mount(r chi.Router) {
	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Readyz)
	r.Get("/version", GetVersion(a.cfg.Version))

	r.Route("/api", func(r chi.Router) {
		r.MethodNotAllowed(MethodNotAllowed)

		r.Group(func(r chi.Router) {
			if a.cfg.WriteLimiter != nil {
				r.Use(RateLimitMiddleware(a.cfg.WriteLimiter))
			}
			r.With(a.requireOpen, a.cfg.PaymentGate).Post("/invest", a.Invest)
			r.Post("/complete", a.Complete)
			r.Post("/store-json", a.StoreJSON)
		})

		r.Get("/status", a.Status)
		r.Get("/wallet-info", a.WalletInfo)
		r.Get("/read", a.Read)
		r.Get("/energy/summary", a.EnergySummary)
		r.Get("/sensor-status", a.SensorStatus)
	})
}

// ErrorResponse is the body of every non-2xx answer from the API routes.
type ErrorResponse struct {
	Error  string `json:"error"`
	Kind   string `json:"kind,omitempty"`
	Raised *int64 `json:"raised,omitempty"`
	Goal   *int64 `json:"goal,omitempty"`
}

func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "Method not allowed"})
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz reports ready once the operator identity resolves.
func (a *API) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()
	if _, err := a.cfg.Identity.GetIdentity(ctx); err != nil {
		a.log.Warn("api: not ready", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"error":  upstream.UserMessage(err),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func validationError(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: msg, Kind: string(campaign.KindValidation)})
}

// campaignError maps domain errors to 400 and everything else to 500.
func (a *API) campaignError(w http.ResponseWriter, r *http.Request, err error) {
	kind, ok := campaign.KindOf(err)
	if !ok {
		a.serverError(w, r, err)
		return
	}

	body := ErrorResponse{Kind: string(kind)}
	switch kind {
	case campaign.KindValidation:
		body.Error = err.Error()
	case campaign.KindCampaignClosed:
		body.Error = "Crowdfunding already complete"
	case campaign.KindInvestorNotFound:
		body.Error = "Investor not found"
	case campaign.KindAlreadyRedeemed:
		body.Error = "Investor already redeemed"
	case campaign.KindGoalNotReached:
		body.Error = "Goal not reached"
		var gnr *campaign.GoalNotReachedError
		if errors.As(err, &gnr) {
			body.Raised = &gnr.Raised
			body.Goal = &gnr.Goal
		}
	}
	writeJSON(w, http.StatusBadRequest, body)
}

// serverError logs err, reports it to Sentry and answers 500.
func (a *API) serverError(w http.ResponseWriter, r *http.Request, err error) {
	a.log.Error("api: request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"class", upstream.Classify(err).String(),
		"error", err)
	if hub := sentry.GetHubFromContext(r.Context()); hub != nil {
		hub.CaptureException(err)
	} else {
		sentry.CaptureException(err)
	}
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: upstream.UserMessage(err)})
}
