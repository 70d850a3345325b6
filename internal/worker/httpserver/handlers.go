// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package httpserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/juju/cartd/core/cart"
)

// CartStatus is the JSON form of a tracked cart.
type CartStatus struct {
	MountPath       string     `json:"mount-path"`
	Device          string     `json:"device,omitempty"`
	State           string     `json:"state"`
	Reason          string     `json:"reason,omitempty"`
	Error           string     `json:"error,omitempty"`
	Signer          string     `json:"signer,omitempty"`
	Attempts        int        `json:"attempts"`
	ManifestVersion int        `json:"manifest-version,omitempty"`
	DetectedAt      time.Time  `json:"detected-at"`
	DecidedAt       *time.Time `json:"decided-at,omitempty"`
}

// TrustStatusResult is the JSON form of the trust store status.
type TrustStatusResult struct {
	Available  bool      `json:"available"`
	Identities int       `json:"identities"`
	Error      string    `json:"error,omitempty"`
	LoadedAt   time.Time `json:"loaded-at"`
}

type cartsHandler struct {
	source CartSource
	logger Logger
}

func (h *cartsHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	records := h.source.Records()
	result := make([]CartStatus, 0, len(records))
	for _, r := range records {
		result = append(result, cartStatus(r))
	}
	writeJSON(w, h.logger, result)
}

func cartStatus(r cart.Record) CartStatus {
	status := CartStatus{
		MountPath:  r.MountPath,
		Device:     r.Device,
		State:      r.State.String(),
		Reason:     string(r.Reason),
		Signer:     r.Signer,
		Attempts:   r.Attempts,
		DetectedAt: r.DetectedAt,
	}
	if r.Err != nil {
		status.Error = r.Err.Error()
	}
	if r.Manifest != nil {
		status.ManifestVersion = r.Manifest.Version
	}
	if !r.VerifiedAt.IsZero() {
		decided := r.VerifiedAt
		status.DecidedAt = &decided
	}
	return status
}

type trustHandler struct {
	status TrustStatus
	logger Logger
}

func (h *trustHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	result := TrustStatusResult{
		Available:  true,
		Identities: h.status.Len(),
		LoadedAt:   h.status.LoadedAt(),
	}
	if err := h.status.Err(); err != nil {
		result.Available = false
		result.Error = err.Error()
	}
	writeJSON(w, h.logger, result)
}

func writeJSON(w http.ResponseWriter, logger Logger, v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		logger.Errorf("encoding response: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(append(data, '\n'))
}
