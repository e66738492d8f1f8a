package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/malbeclabs/solarfund/crowdfund/pkg/campaign"
	"github.com/malbeclabs/solarfund/crowdfund/pkg/paygate"
	"github.com/malbeclabs/solarfund/crowdfund/pkg/wallet"
)

type InvestResponse struct {
	Success     bool   `json:"success"`
	Amount      int64  `json:"amount"`
	TotalRaised int64  `json:"totalRaised"`
	Message     string `json:"message"`
}

type CompleteRequest struct {
	IdentityKey any `json:"identityKey"`
	PaymentKey  any `json:"paymentKey"`
}

type CompleteResponse struct {
	Success       bool         `json:"success"`
	Message       string       `json:"message"`
	Txid          string       `json:"txid"`
	Tx            wallet.Bytes `json:"tx"`
	InvestorCount int          `json:"investorCount"`
	AllRedeemed   bool         `json:"allRedeemed"`
}

type WalletInfoResponse struct {
	IdentityKey string `json:"identityKey"`
}

// requireOpen rejects investments before the payment gate once the campaign
// is complete, so no payment is taken for a closed campaign.
func (a *API) requireOpen(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		closed, err := a.cfg.Campaign.IsClosed(r.Context())
		if err != nil {
			a.serverError(w, r, err)
			return
		}
		if closed {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Crowdfunding already complete", Kind: string(campaign.KindCampaignClosed)})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Invest records the payment the gate verified.
func (a *API) Invest(w http.ResponseWriter, r *http.Request) {
	payment, ok := paygate.FromContext(r.Context())
	if !ok || !payment.Accepted {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Payment not accepted"})
		return
	}

	res, err := a.cfg.Campaign.Contribute(r.Context(), payment.IdentityKey, payment.SatoshisPaid)
	if err != nil {
		a.campaignError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, InvestResponse{
		Success:     true,
		Amount:      res.Amount,
		TotalRaised: res.TotalRaised,
		Message:     "Investment received! Tokens will be distributed when goal is reached.",
	})
}

// Complete redeems the caller's reward token.
func (a *API) Complete(w http.ResponseWriter, r *http.Request) {
	var req CompleteRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, a.cfg.MaxBodyBytes))
	if err != nil {
		validationError(w, "Unable to read request body")
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			validationError(w, "Invalid JSON body")
			return
		}
	}
	identityKey, _ := req.IdentityKey.(string)
	paymentKey, _ := req.PaymentKey.(string)

	res, err := a.cfg.Campaign.Redeem(r.Context(), identityKey, paymentKey)
	if err != nil {
		a.campaignError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, CompleteResponse{
		Success:       true,
		Message:       "Token distributed to investor!",
		Txid:          res.Txid,
		Tx:            wallet.Bytes(res.Tx),
		InvestorCount: res.InvestorCount,
		AllRedeemed:   res.AllRedeemed,
	})
}

func (a *API) Status(w http.ResponseWriter, r *http.Request) {
	status, err := a.cfg.Campaign.Status(r.Context())
	if err != nil {
		a.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (a *API) WalletInfo(w http.ResponseWriter, r *http.Request) {
	id, err := a.cfg.Identity.GetIdentity(r.Context())
	if err != nil {
		a.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, WalletInfoResponse{IdentityKey: id})
}
