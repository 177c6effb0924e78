package handlers

import (
	"net/http"

	"studio/internal/infra/credentials"
)

// Health reports liveness plus whether a provider key is configured, which
// the UI uses to decide between the generator and the key prompt.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok"}
	if a.Credentials != nil {
		ok, err := credentials.HasKey(r.Context(), a.Credentials)
		if err != nil {
			a.Logger.Warn().Err(err).Msg("health: credential lookup failed")
			body["status"] = "degraded"
		}
		body["credential_configured"] = ok
	}
	a.json(w, http.StatusOK, body)
}
