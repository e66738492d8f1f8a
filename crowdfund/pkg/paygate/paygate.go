// Package paygate is the HTTP payment gate in front of paid routes. It
// answers unpaid requests with a 402 challenge and hands verified payments
// to the wallet for internalization.
package paygate

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/malbeclabs/solarfund/crowdfund/pkg/wallet"
)

const (
	HeaderAuthIdentityKey         = "X-Bsv-Auth-Identity-Key"
	HeaderPayment                 = "X-Bsv-Payment"
	HeaderPaymentVersion          = "X-Bsv-Payment-Version"
	HeaderPaymentSatoshisRequired = "X-Bsv-Payment-Satoshis-Required"
	HeaderPaymentDerivationPrefix = "X-Bsv-Payment-Derivation-Prefix"

	PaymentVersion = "1.0"

	// UnknownIdentity marks a caller the auth layer could not identify.
	UnknownIdentity = "unknown"

	internalizeDescription = "Payment for request"
)

// Payment is what the gate attaches to a paid request.
type Payment struct {
	IdentityKey      string
	SatoshisPaid     int64
	Accepted         bool
	DerivationPrefix string
	DerivationSuffix string
	Tx               []byte
}

// Header is the JSON carried in X-Bsv-Payment.
type Header struct {
	DerivationPrefix  string `json:"derivationPrefix"`
	DerivationSuffix  string `json:"derivationSuffix"`
	Transaction       string `json:"transaction"`
	SenderIdentityKey string `json:"senderIdentityKey,omitempty"`

	// Amount is kept raw: any JSON value is accepted and only a positive
	// whole number is used as the price.
	Amount json.RawMessage `json:"amount,omitempty"`
}

// Price returns the declared amount when it is a positive whole number of
// satoshis, else 1.
func (h *Header) Price() int64 {
	if h == nil || len(h.Amount) == 0 {
		return 1
	}
	var n int64
	if err := json.Unmarshal(h.Amount, &n); err == nil {
		if n > 0 {
			return n
		}
		return 1
	}
	var f float64
	if err := json.Unmarshal(h.Amount, &f); err != nil {
		return 1
	}
	if f < 1 || f >= math.MaxInt64 || f != math.Trunc(f) {
		return 1
	}
	return int64(f)
}

type Internalizer interface {
	InternalizeIncomingTransaction(ctx context.Context, args wallet.InternalizeArgs) error
}

// PriceFunc returns the satoshis a request must pay.
type PriceFunc func(r *http.Request) int64

type Config struct {
	Logger *slog.Logger
	Wallet Internalizer
	Price  PriceFunc

	// NewPrefix defaults to a random UUID.
	NewPrefix func() string

	// OnPayment, when set, is called with "challenged", "accepted" or "failed".
	OnPayment func(outcome string)
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Wallet == nil {
		return errors.New("wallet is required")
	}
	if cfg.Price == nil {
		cfg.Price = InvestmentPrice
	}
	if cfg.NewPrefix == nil {
		cfg.NewPrefix = func() string { return uuid.NewString() }
	}
	return nil
}

type Gate struct {
	log *slog.Logger
	cfg Config
}

func New(cfg Config) (*Gate, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	return &Gate{log: cfg.Logger, cfg: cfg}, nil
}

type ctxKey struct{}

func FromContext(ctx context.Context) (*Payment, bool) {
	p, ok := ctx.Value(ctxKey{}).(*Payment)
	return p, ok
}

func WithPayment(ctx context.Context, p *Payment) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// AuthIdentity returns the identity a fronting auth layer attached to r.
func AuthIdentity(r *http.Request) string {
	if id := r.Header.Get(HeaderAuthIdentityKey); id != "" {
		return id
	}
	return UnknownIdentity
}

// ParseHeader decodes X-Bsv-Payment. It returns nil, nil when the header is
// absent.
func ParseHeader(r *http.Request) (*Header, error) {
	raw := r.Header.Get(HeaderPayment)
	if raw == "" {
		return nil, nil
	}
	var h Header
	if err := json.Unmarshal([]byte(raw), &h); err != nil {
		return nil, fmt.Errorf("decode payment header: %w", err)
	}
	return &h, nil
}

// InvestmentPrice charges the amount the payer declared in the payment
// header, or 1 satoshi to start the payment flow.
func InvestmentPrice(r *http.Request) int64 {
	h, err := ParseHeader(r)
	if err != nil {
		return 1
	}
	return h.Price()
}

func (g *Gate) observe(outcome string) {
	if g.cfg.OnPayment != nil {
		g.cfg.OnPayment(outcome)
	}
}

func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		price := g.cfg.Price(r)
		identity := AuthIdentity(r)

		if price <= 0 {
			next.ServeHTTP(w, r.WithContext(WithPayment(r.Context(), &Payment{IdentityKey: identity, Accepted: true})))
			return
		}

		h, err := ParseHeader(r)
		if err != nil {
			g.log.Debug("paygate: malformed payment header", "error", err)
			g.observe("failed")
			writeError(w, http.StatusBadRequest, errorBody{
				Error:       "Malformed payment header",
				Code:        "ERR_MALFORMED_PAYMENT",
				Description: "The X-BSV-Payment header is not valid JSON.",
			})
			return
		}
		if h == nil {
			prefix := g.cfg.NewPrefix()
			w.Header().Set(HeaderPaymentVersion, PaymentVersion)
			w.Header().Set(HeaderPaymentSatoshisRequired, strconv.FormatInt(price, 10))
			w.Header().Set(HeaderPaymentDerivationPrefix, prefix)
			g.observe("challenged")
			writeError(w, http.StatusPaymentRequired, errorBody{
				Error:            "Payment required",
				Code:             "ERR_PAYMENT_REQUIRED",
				SatoshisRequired: price,
				Description:      "A BSV payment is required to complete this request. Provide the X-BSV-Payment header.",
			})
			return
		}

		tx, err := base64.StdEncoding.DecodeString(h.Transaction)
		if err != nil || len(tx) == 0 || h.DerivationPrefix == "" || h.DerivationSuffix == "" {
			g.observe("failed")
			writeError(w, http.StatusBadRequest, errorBody{
				Error:       "Malformed payment header",
				Code:        "ERR_MALFORMED_PAYMENT",
				Description: "The payment header must carry derivationPrefix, derivationSuffix and a base64 transaction.",
			})
			return
		}

		// The payment's sender, when named, is the investor.
		if h.SenderIdentityKey != "" {
			identity = h.SenderIdentityKey
		}

		// A payment nobody can be credited for is refused before the wallet
		// takes it.
		if identity == UnknownIdentity {
			g.log.Debug("paygate: payment without payer identity refused")
			g.observe("failed")
			writeError(w, http.StatusBadRequest, errorBody{
				Error:       "Payer identity required",
				Code:        "ERR_IDENTITY_REQUIRED",
				Description: "Authenticate or name senderIdentityKey in the X-BSV-Payment header.",
			})
			return
		}

		err = g.cfg.Wallet.InternalizeIncomingTransaction(r.Context(), wallet.InternalizeArgs{
			Tx: tx,
			Outputs: []wallet.InternalizeOutput{{
				OutputIndex: 0,
				Protocol:    wallet.ProtocolWalletPayment,
				PaymentRemittance: &wallet.PaymentRemittance{
					DerivationPrefix:  h.DerivationPrefix,
					DerivationSuffix:  h.DerivationSuffix,
					SenderIdentityKey: identity,
				},
			}},
			Description: internalizeDescription,
		})
		if err != nil {
			g.log.Warn("paygate: payment internalization failed", "identity", identity, "satoshis", price, "error", err)
			g.observe("failed")
			writeError(w, http.StatusBadRequest, errorBody{
				Error:       "Payment failed",
				Code:        "ERR_PAYMENT_FAILED",
				Description: err.Error(),
			})
			return
		}

		g.log.Info("paygate: payment accepted", "identity", identity, "satoshis", price,
			"derivationPrefix", h.DerivationPrefix, "derivationSuffix", h.DerivationSuffix)
		g.observe("accepted")

		next.ServeHTTP(w, r.WithContext(WithPayment(r.Context(), &Payment{
			IdentityKey:      identity,
			SatoshisPaid:     price,
			Accepted:         true,
			DerivationPrefix: h.DerivationPrefix,
			DerivationSuffix: h.DerivationSuffix,
			Tx:               tx,
		})))
	})
}

type errorBody struct {
	Error            string `json:"error"`
	Code             string `json:"code"`
	SatoshisRequired int64  `json:"satoshisRequired,omitempty"`
	Description      string `json:"description,omitempty"`
}

func writeError(w http.ResponseWriter, status int, body errorBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
