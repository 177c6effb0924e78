package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"studio/internal/infra/credentials"
)

type credentialRequest struct {
	APIKey string `json:"api_key"`
}

// CredentialStatus never returns the key itself.
func (a *App) CredentialStatus(w http.ResponseWriter, r *http.Request) {
	ok, err := credentials.HasKey(r.Context(), a.Credentials)
	if err != nil {
		a.Logger.Error().Err(err).Msg("credentials: status lookup failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to read credential store")
		return
	}
	a.json(w, http.StatusOK, map[string]any{"provider": credentials.ProviderGemini, "configured": ok})
}

func (a *App) CredentialSet(w http.ResponseWriter, r *http.Request) {
	var req credentialRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 8<<10)).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if err := a.Credentials.Set(r.Context(), req.APIKey); err != nil {
		if errors.Is(err, credentials.ErrBlankKey) {
			a.error(w, http.StatusBadRequest, "validation_error", "Please enter a valid API key.")
			return
		}
		a.Logger.Error().Err(err).Msg("credentials: save failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to save api key")
		return
	}
	a.Logger.Info().Str("provider", credentials.ProviderGemini).Msg("credentials: api key saved")
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) CredentialClear(w http.ResponseWriter, r *http.Request) {
	if err := a.Credentials.Clear(r.Context()); err != nil {
		a.Logger.Error().Err(err).Msg("credentials: clear failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to clear api key")
		return
	}
	a.Logger.Info().Str("provider", credentials.ProviderGemini).Msg("credentials: api key cleared")
	w.WriteHeader(http.StatusNoContent)
}
