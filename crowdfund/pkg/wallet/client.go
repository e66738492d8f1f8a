package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/malbeclabs/solarfund/utils/pkg/retry"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultBaseURL    = "http://localhost:3321"
	DefaultOriginator = "solarfund"
	defaultTimeout    = 30 * time.Second
	maxErrorBody      = 64 << 10
)

type Config struct {
	Logger     *slog.Logger
	BaseURL    string
	Originator string
	HTTPClient *http.Client

	// NoSend asks the wallet to build and sign actions without broadcasting.
	NoSend bool

	// Retry applies to identity lookup only.
	Retry retry.Config

	// Observe is called once per wallet call.
	Observe func(method string, duration time.Duration, err error)
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.BaseURL == "" {
		return errors.New("base url is required")
	}
	if !strings.HasPrefix(cfg.BaseURL, "http://") && !strings.HasPrefix(cfg.BaseURL, "https://") {
		return fmt.Errorf("base url %q must be http or https", cfg.BaseURL)
	}
	if cfg.Originator == "" {
		cfg.Originator = DefaultOriginator
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: defaultTimeout}
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	return nil
}

// Client implements Capability against a wallet's HTTP JSON substrate.
type Client struct {
	log *slog.Logger
	cfg Config

	mu       sync.Mutex
	identity string
	lookups  singleflight.Group
}

var _ Capability = (*Client)(nil)

func NewClient(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{log: cfg.Logger, cfg: cfg}, nil
}

type getPublicKeyRequest struct {
	IdentityKey  bool      `json:"identityKey,omitempty"`
	ProtocolID   *Protocol `json:"protocolID,omitempty"`
	KeyID        string    `json:"keyID,omitempty"`
	Counterparty string    `json:"counterparty,omitempty"`
	ForSelf      bool      `json:"forSelf,omitempty"`
}

type getPublicKeyResponse struct {
	PublicKey string `json:"publicKey"`
}

// GetIdentity returns the wallet identity key. The first successful answer
// is cached for the life of the client. Concurrent callers share one lookup
// and each stops waiting when its own ctx ends.
func (c *Client) GetIdentity(ctx context.Context) (string, error) {
	c.mu.Lock()
	id := c.identity
	c.mu.Unlock()
	if id != "" {
		return id, nil
	}

	ch := c.lookups.DoChan("identity", func() (any, error) {
		return c.lookupIdentity(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (c *Client) lookupIdentity(ctx context.Context) (string, error) {
	retryCfg := c.cfg.Retry
	retryCfg.OnRetry = func(attempt int, err error, wait time.Duration) {
		c.log.Warn("wallet: identity lookup failed, retrying", "attempt", attempt, "wait", wait, "error", err)
	}
	key, err := retry.DoValue(ctx, retryCfg, func() (string, error) {
		var resp getPublicKeyResponse
		if err := c.call(ctx, "getPublicKey", getPublicKeyRequest{IdentityKey: true}, &resp); err != nil {
			return "", err
		}
		if resp.PublicKey == "" {
			return "", fmt.Errorf("%w: publicKey", ErrMissingField)
		}
		return resp.PublicKey, nil
	})
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.identity = key
	c.mu.Unlock()
	c.log.Info("wallet: identity resolved", "identity", key)
	return key, nil
}

func (c *Client) DerivePublicKey(ctx context.Context, args KeyArgs) (string, error) {
	proto := args.Protocol
	var resp getPublicKeyResponse
	err := c.call(ctx, "getPublicKey", getPublicKeyRequest{
		ProtocolID:   &proto,
		KeyID:        args.KeyID,
		Counterparty: args.Counterparty,
		ForSelf:      args.ForSelf,
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.PublicKey == "" {
		return "", fmt.Errorf("%w: publicKey", ErrMissingField)
	}
	return resp.PublicKey, nil
}

func (c *Client) CreatePayment(ctx context.Context, args CreateActionArgs) (*ActionResult, error) {
	if c.cfg.NoSend {
		args.Options.NoSend = true
	}
	var resp ActionResult
	if err := c.call(ctx, "createAction", args, &resp); err != nil {
		return nil, err
	}
	if resp.Txid == "" {
		return nil, ErrEmptyTxid
	}
	return &resp, nil
}

type encryptRequest struct {
	Plaintext    Bytes    `json:"plaintext"`
	ProtocolID   Protocol `json:"protocolID"`
	KeyID        string   `json:"keyID"`
	Counterparty string   `json:"counterparty,omitempty"`
}

type encryptResponse struct {
	Ciphertext Bytes `json:"ciphertext"`
}

func (c *Client) Encrypt(ctx context.Context, args EncryptArgs) ([]byte, error) {
	var resp encryptResponse
	err := c.call(ctx, "encrypt", encryptRequest{
		Plaintext:    args.Plaintext,
		ProtocolID:   args.Protocol,
		KeyID:        args.KeyID,
		Counterparty: args.Counterparty,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Ciphertext) == 0 {
		return nil, fmt.Errorf("%w: ciphertext", ErrMissingField)
	}
	return resp.Ciphertext, nil
}

type createSignatureRequest struct {
	Data         Bytes    `json:"data"`
	ProtocolID   Protocol `json:"protocolID"`
	KeyID        string   `json:"keyID"`
	Counterparty string   `json:"counterparty,omitempty"`
}

type createSignatureResponse struct {
	Signature Bytes `json:"signature"`
}

func (c *Client) CreateSignature(ctx context.Context, args SignatureArgs) ([]byte, error) {
	var resp createSignatureResponse
	err := c.call(ctx, "createSignature", createSignatureRequest{
		Data:         args.Data,
		ProtocolID:   args.Protocol,
		KeyID:        args.KeyID,
		Counterparty: args.Counterparty,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Signature) == 0 {
		return nil, fmt.Errorf("%w: signature", ErrMissingField)
	}
	return resp.Signature, nil
}

func (c *Client) LockToken(ctx context.Context, args LockTokenArgs) ([]byte, error) {
	return LockPushDrop(ctx, c, args)
}

type internalizeResponse struct {
	Accepted bool `json:"accepted"`
}

func (c *Client) InternalizeIncomingTransaction(ctx context.Context, args InternalizeArgs) error {
	var resp internalizeResponse
	if err := c.call(ctx, "internalizeAction", args, &resp); err != nil {
		return err
	}
	if !resp.Accepted {
		return ErrNotAccepted
	}
	return nil
}

type errorBody struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Message     string `json:"message"`
}

func (c *Client) call(ctx context.Context, method string, req, resp any) (err error) {
	span := sentry.StartSpan(ctx, "wallet.call", sentry.WithDescription(method))
	span.SetTag("wallet.method", method)
	ctx = span.Context()
	defer span.Finish()

	start := time.Now()
	defer func() {
		if err != nil {
			span.Status = sentry.SpanStatusInternalError
		} else {
			span.Status = sentry.SpanStatusOK
		}
		if c.cfg.Observe != nil {
			c.cfg.Observe(method, time.Since(start), err)
		}
	}()

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("wallet %s: encode request: %w", method, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/"+method, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("wallet %s: %w", method, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Originator", c.cfg.Originator)

	httpResp, err := c.cfg.HTTPClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("wallet %s: %w", method, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(httpResp.Body, maxErrorBody))
		werr := &Error{Status: httpResp.StatusCode, Method: method}
		var eb errorBody
		if json.Unmarshal(raw, &eb) == nil {
			werr.Code = eb.Code
			werr.Description = eb.Description
			if werr.Description == "" {
				werr.Description = eb.Message
			}
		} else {
			werr.Description = strings.TrimSpace(string(raw))
		}
		c.log.Debug("wallet: call failed", "method", method, "status", httpResp.StatusCode, "code", werr.Code)
		return werr
	}

	if err := json.NewDecoder(httpResp.Body).Decode(resp); err != nil {
		return fmt.Errorf("wallet %s: decode response: %w", method, err)
	}
	return nil
}
