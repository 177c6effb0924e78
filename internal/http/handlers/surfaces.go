package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"studio/internal/imagegen"
	"studio/internal/studio"
)

const downloadFilename = "generated-image.png"

type surfaceCreateRequest struct {
	Mode string `json:"mode"`
}

type surfacePromptRequest struct {
	Prompt string `json:"prompt"`
}

func (a *App) SurfaceCreate(w http.ResponseWriter, r *http.Request) {
	var req surfaceCreateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	mode, err := imagegen.ParseMode(req.Mode)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "mode must be one of text, edit, compose")
		return
	}
	surface, err := a.Sessions.Open(mode)
	if err != nil {
		a.surfaceError(w, err)
		return
	}
	a.json(w, http.StatusCreated, surface.View())
}

func (a *App) SurfaceGet(w http.ResponseWriter, r *http.Request) {
	surface, ok := a.loadSurface(w, r)
	if !ok {
		return
	}
	a.json(w, http.StatusOK, surface.View())
}

func (a *App) SurfaceClose(w http.ResponseWriter, r *http.Request) {
	if err := a.Sessions.Close(chi.URLParam(r, "id")); err != nil {
		a.surfaceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) SurfacePrompt(w http.ResponseWriter, r *http.Request) {
	surface, ok := a.loadSurface(w, r)
	if !ok {
		return
	}
	var req surfacePromptRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if err := surface.SetPrompt(req.Prompt); err != nil {
		a.surfaceError(w, err)
		return
	}
	a.json(w, http.StatusOK, surface.View())
}

func (a *App) SurfaceAttach(w http.ResponseWriter, r *http.Request) {
	surface, ok := a.loadSurface(w, r)
	if !ok {
		return
	}
	index, ok := a.slotIndex(w, r)
	if !ok {
		return
	}
	cleanup, err := a.parseMultipart(w, r)
	defer cleanup()
	if err != nil {
		a.uploadError(w, err)
		return
	}
	files := formAttachments(r, "image")
	if len(files) != 1 {
		a.error(w, http.StatusBadRequest, "bad_request", "exactly one image file is required")
		return
	}
	if err := surface.Attach(index, files[0]); err != nil {
		a.surfaceError(w, err)
		return
	}
	a.json(w, http.StatusOK, surface.View())
}

func (a *App) SurfaceDetach(w http.ResponseWriter, r *http.Request) {
	surface, ok := a.loadSurface(w, r)
	if !ok {
		return
	}
	index, ok := a.slotIndex(w, r)
	if !ok {
		return
	}
	if err := surface.Remove(index); err != nil {
		a.surfaceError(w, err)
		return
	}
	a.json(w, http.StatusOK, surface.View())
}

// SurfaceSubmit blocks until the generation finishes and returns the updated
// view; the outcome is carried in the view, not in the HTTP status.
func (a *App) SurfaceSubmit(w http.ResponseWriter, r *http.Request) {
	surface, ok := a.loadSurface(w, r)
	if !ok {
		return
	}
	view, err := surface.Submit(r.Context())
	if err != nil {
		a.surfaceError(w, err)
		return
	}
	a.json(w, http.StatusOK, view)
}

func (a *App) SurfaceReset(w http.ResponseWriter, r *http.Request) {
	surface, ok := a.loadSurface(w, r)
	if !ok {
		return
	}
	surface.Reset()
	a.json(w, http.StatusOK, surface.View())
}

// SurfaceImage serves the generated image as a file download.
func (a *App) SurfaceImage(w http.ResponseWriter, r *http.Request) {
	surface, ok := a.loadSurface(w, r)
	if !ok {
		return
	}
	uri, err := surface.Image()
	if err != nil {
		a.surfaceError(w, err)
		return
	}
	data, mimeType, err := imagegen.DecodeDataURI(uri)
	if err != nil {
		a.Logger.Error().Err(err).Str("surface", surface.ID()).Msg("surfaces: stored image is not decodable")
		a.error(w, http.StatusInternalServerError, "internal", "generated image could not be decoded")
		return
	}
	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if r.URL.Query().Get("inline") == "1" {
		w.Header().Set("Content-Disposition", "inline; filename="+downloadFilename)
	} else {
		w.Header().Set("Content-Disposition", "attachment; filename="+downloadFilename)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Preview serves an uploaded image by its preview handle.
func (a *App) Preview(w http.ResponseWriter, r *http.Request) {
	data, mimeType, ok := a.Sessions.Previews().Get(chi.URLParam(r, "handle"))
	if !ok {
		a.error(w, http.StatusNotFound, "not_found", "preview not found")
		return
	}
	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Cache-Control", "private, no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (a *App) loadSurface(w http.ResponseWriter, r *http.Request) (*studio.Surface, bool) {
	surface, err := a.Sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		a.surfaceError(w, err)
		return nil, false
	}
	return surface, true
}

func (a *App) slotIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	index, err := strconv.Atoi(chi.URLParam(r, "slot"))
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "slot must be an integer")
		return 0, false
	}
	return index, true
}

func (a *App) surfaceError(w http.ResponseWriter, err error) {
	if e, ok := imagegen.AsError(err); ok {
		a.failure(w, e)
		return
	}
	switch {
	case errors.Is(err, studio.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "surface not found")
	case errors.Is(err, studio.ErrBusy):
		a.error(w, http.StatusConflict, "busy", "A generation is already in progress. Please wait for it to finish.")
	case errors.Is(err, studio.ErrClosed):
		a.error(w, http.StatusGone, "closed", "surface is closed")
	case errors.Is(err, studio.ErrSlotRange), errors.Is(err, studio.ErrNoSlots):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, studio.ErrNoResult):
		a.error(w, http.StatusNotFound, "not_found", "no generated image available")
	case errors.Is(err, studio.ErrTooManyOpen):
		a.error(w, http.StatusServiceUnavailable, "unavailable", "too many open surfaces")
	default:
		a.Logger.Error().Err(err).Msg("surfaces: unexpected error")
		a.error(w, http.StatusInternalServerError, "internal", "unexpected error")
	}
}
