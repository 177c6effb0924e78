package handlers

import (
	"encoding/json"
	"net/http"

	"studio/internal/imagegen"
)

type imageGenerateRequest struct {
	Prompt string `json:"prompt"`
}

// ImagesGenerate runs a text-to-image request from a JSON body.
func (a *App) ImagesGenerate(w http.ResponseWriter, r *http.Request) {
	var req imageGenerateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	a.result(w, a.Pipeline.Run(r.Context(), imagegen.ModeText, req.Prompt, nil))
}

// ImagesEdit edits the single uploaded `image` following `prompt`.
func (a *App) ImagesEdit(w http.ResponseWriter, r *http.Request) {
	a.runMultipart(w, r, imagegen.ModeEdit, "image")
}

// ImagesCompose combines the uploaded `images` following `prompt`.
func (a *App) ImagesCompose(w http.ResponseWriter, r *http.Request) {
	a.runMultipart(w, r, imagegen.ModeCompose, "images", "image")
}

func (a *App) runMultipart(w http.ResponseWriter, r *http.Request, mode imagegen.Mode, fields ...string) {
	cleanup, err := a.parseMultipart(w, r)
	defer cleanup()
	if err != nil {
		a.uploadError(w, err)
		return
	}
	prompt := r.FormValue("prompt")
	attachments := formAttachments(r, fields...)
	a.result(w, a.Pipeline.Run(r.Context(), mode, prompt, attachments))
}
