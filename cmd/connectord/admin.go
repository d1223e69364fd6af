package main

import (
	"encoding/json"
	"net/http"

	"github.com/ilpfi/connectord/peerdiscovery"
	"github.com/ilpfi/connectord/settlement"
)

// registerAdminRoutes wires the small JSON admin API connectorctl talks
// to: status, the discovery directory, and per-peer channel mappings.
func registerAdminRoutes(mux *http.ServeMux, exec *settlement.Executor, disco *peerdiscovery.Service) {
	mux.HandleFunc("/admin/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"discoveryStatus": disco.Status().String(),
		})
	})

	mux.HandleFunc("/admin/peers", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, disco.Peers())
	})

	mux.HandleFunc("/admin/channels", func(w http.ResponseWriter, r *http.Request) {
		if exec == nil {
			writeJSON(w, map[string]string{})
			return
		}
		channels := exec.PeerChannels()
		out := make(map[string]string, len(channels))
		for peerID, id := range channels {
			out[peerID] = hexEncode(id[:])
		}
		writeJSON(w, out)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func hexEncode(b []byte) string {
	const hexDigits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hexDigits[c>>4]
		out[i*2+1] = hexDigits[c&0x0f]
	}
	return string(out)
}
