package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"studio/internal/imagegen"
	"studio/internal/infra"
	"studio/internal/infra/credentials"
	"studio/internal/metrics"
	"studio/internal/studio"
)

// Runner executes one generation request end to end.
type Runner interface {
	Run(ctx context.Context, mode imagegen.Mode, prompt string, attachments []imagegen.Attachment) imagegen.Result
}

// App carries the dependencies shared by every handler.
type App struct {
	Pipeline       Runner
	Credentials    credentials.Store
	Sessions       *studio.Sessions
	Metrics        *metrics.Collector
	Logger         infra.Logger
	MaxUploadBytes int64
}

func NewApp(pipeline Runner, store credentials.Store, sessions *studio.Sessions, collector *metrics.Collector, logger infra.Logger) *App {
	return &App{
		Pipeline:       pipeline,
		Credentials:    store,
		Sessions:       sessions,
		Metrics:        collector,
		Logger:         logger,
		MaxUploadBytes: 32 << 20,
	}
}

type errorBody struct {
	Kind    string `json:"kind"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

type failureResponse struct {
	Status string    `json:"status"`
	Error  errorBody `json:"error"`
}

type successResponse struct {
	Status string `json:"status"`
	Image  string `json:"image"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// error writes a failure envelope for conditions outside the generation
// taxonomy (routing, payload shape, storage).
func (a *App) error(w http.ResponseWriter, code int, kind, message string) {
	a.json(w, code, failureResponse{
		Status: "failed",
		Error:  errorBody{Kind: kind, Title: http.StatusText(code), Message: message},
	})
}

// result writes a generation outcome.
func (a *App) result(w http.ResponseWriter, res imagegen.Result) {
	if res.Err == nil {
		a.json(w, http.StatusOK, successResponse{Status: "succeeded", Image: res.DataURI})
		return
	}
	a.failure(w, res.Err)
}

func (a *App) failure(w http.ResponseWriter, e *imagegen.Error) {
	a.json(w, statusForKind(e.Kind), failureResponse{
		Status: "failed",
		Error:  errorBody{Kind: string(e.Kind), Title: e.Kind.Title(), Message: e.Message},
	})
}

// statusForKind picks the HTTP status a classified failure is served with.
func statusForKind(kind imagegen.Kind) int {
	switch kind {
	case imagegen.KindValidation:
		return http.StatusUnprocessableEntity
	case imagegen.KindMissingCredential:
		return http.StatusPreconditionFailed
	case imagegen.KindRateLimited:
		return http.StatusTooManyRequests
	case imagegen.KindUnavailable:
		return http.StatusServiceUnavailable
	case imagegen.KindNetwork:
		return http.StatusGatewayTimeout
	case imagegen.KindCanceled:
		return http.StatusRequestTimeout
	case imagegen.KindContentBlocked, imagegen.KindProviderRejected,
		imagegen.KindTextualRefusal, imagegen.KindNoImageProduced:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}
