// Package health serves liveness and readiness probes.
package health

import (
	"encoding/json"
	"net/http"
)

func Liveness() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}

// Probe reports one dependency's readiness.
type Probe func() (name string, ready bool)

// Readiness returns 200 only when every probe reports ready, with a JSON body
// naming each probe's state.
func Readiness(probes ...Probe) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		states := map[string]bool{}
		allReady := true
		for _, p := range probes {
			name, ready := p()
			states[name] = ready
			if !ready {
				allReady = false
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if !allReady {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ready":  allReady,
			"checks": states,
		})
	}
}
