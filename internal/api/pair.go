package api

import (
	"encoding/json"
	"net/http"

	qrcode "github.com/skip2/go-qrcode"
)

// PairingInfo is what a companion app needs to find and trust this
// daemon. The same document sits retained on the MQTT pairing topic.
type PairingInfo struct {
	InstanceID string `json:"instance_id"`
	DeviceName string `json:"device_name"`
	APIAddr    string `json:"api_addr"`
}

// handlePair renders the pairing document as a QR code PNG for the
// companion app to scan. ?format=json returns the raw document.
func (s *Server) handlePair(w http.ResponseWriter, r *http.Request) {
	if s.deps.Pairing == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "pairing not configured")
		return
	}

	payload, err := json.Marshal(s.deps.Pairing)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "encode pairing info")
		return
	}

	if r.URL.Query().Get("format") == "json" {
		w.Header().Set("Content-Type", "application/json")
		w.Write(payload)
		return
	}

	png, err := qrcode.Encode(string(payload), qrcode.Medium, 256)
	if err != nil {
		s.logger.Error("pairing QR encode failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "QR encode failed")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Write(png)
}
