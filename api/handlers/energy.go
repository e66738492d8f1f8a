package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/malbeclabs/solarfund/crowdfund/pkg/energy"
)

type RewardResponse struct {
	Granted bool   `json:"granted"`
	Tokens  int64  `json:"tokens"`
	Txid    string `json:"txid,omitempty"`
	Error   string `json:"error,omitempty"`
}

type StoreResponse struct {
	Success     bool            `json:"success"`
	Txid        string          `json:"txid"`
	Message     string          `json:"message"`
	Data        energy.Reading  `json:"data"`
	DataSize    int             `json:"dataSize"`
	ExplorerURL []string        `json:"explorerUrl"`
	Reward      *RewardResponse `json:"reward,omitempty"`
}

// StoreJSON anchors one energy reading on chain.
func (a *API) StoreJSON(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, a.cfg.MaxBodyBytes))
	if err != nil {
		validationError(w, "Unable to read request body")
		return
	}

	res, err := a.cfg.Energy.Store(r.Context(), body)
	if err != nil {
		var verr *energy.ValidationError
		if errors.As(err, &verr) {
			validationError(w, verr.Message)
			return
		}
		a.serverError(w, r, err)
		return
	}

	out := StoreResponse{
		Success:     true,
		Txid:        res.Txid,
		Message:     "Energy data successfully stored on BSV blockchain",
		Data:        res.Data,
		DataSize:    res.DataSize,
		ExplorerURL: res.Links,
	}
	if res.Reward != nil {
		out.Reward = &RewardResponse{
			Granted: res.Reward.Granted,
			Tokens:  res.Reward.Tokens,
			Txid:    res.Reward.Txid,
			Error:   res.Reward.Error,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// Read lists stored energy records, optionally for one device.
func (a *API) Read(w http.ResponseWriter, r *http.Request) {
	p := ParsePagination(r)
	records := a.cfg.Energy.Records(energy.Filter{
		DeviceID: r.URL.Query().Get("device_id"),
		Offset:   p.Offset,
		Limit:    p.Limit,
	})
	writeJSON(w, http.StatusOK, records)
}

func (a *API) EnergySummary(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device_id")
	if deviceID == "" {
		validationError(w, "Missing device_id query parameter")
		return
	}
	writeJSON(w, http.StatusOK, a.cfg.Energy.Summary(deviceID))
}

func (a *API) SensorStatus(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device_id")
	if deviceID == "" {
		deviceID = DefaultSensorID
	}
	writeJSON(w, http.StatusOK, a.cfg.Energy.SensorStatus(deviceID))
}
