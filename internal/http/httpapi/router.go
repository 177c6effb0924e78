package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"studio/internal/http/handlers"
	"studio/internal/middleware"
)

// Options tunes the cross-cutting middleware.
type Options struct {
	AllowedOrigins []string
	// TrustProxy rewrites RemoteAddr from X-Forwarded-For / X-Real-IP. Enable
	// only when a reverse proxy in front of the server sets those headers.
	TrustProxy bool
	// RateLimitPerMin bounds generation requests per client IP; zero disables.
	RateLimitPerMin int
}

// NewRouter wires every route onto app. ctx bounds background work owned by
// the router (rate limiter eviction).
func NewRouter(ctx context.Context, app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	var recorder middleware.RequestRecorder
	if app.Metrics != nil {
		recorder = app.Metrics
	}

	r.Use(middleware.RequestID)
	if opts.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(
		chimw.Recoverer,
		middleware.Logger(app.Logger, recorder),
		middleware.CORS(opts.AllowedOrigins, "/v1/credentials"),
	)

	generation := middleware.RateLimit(ctx, opts.RateLimitPerMin, time.Minute)

	r.Get("/metrics", app.ServeMetrics)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/healthz", app.Health)
		r.Get("/openapi.json", app.OpenAPIJSON)
		r.Get("/docs", app.OpenAPIDocs)

		r.Route("/images", func(r chi.Router) {
			r.Use(generation)
			r.Post("/generate", app.ImagesGenerate)
			r.Post("/edit", app.ImagesEdit)
			r.Post("/compose", app.ImagesCompose)
		})

		r.Route("/credentials/gemini", func(r chi.Router) {
			r.Get("/", app.CredentialStatus)
			r.Put("/", app.CredentialSet)
			r.Delete("/", app.CredentialClear)
		})

		r.Route("/surfaces", func(r chi.Router) {
			r.Post("/", app.SurfaceCreate)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", app.SurfaceGet)
				r.Delete("/", app.SurfaceClose)
				r.Put("/prompt", app.SurfacePrompt)
				r.Put("/slots/{slot}", app.SurfaceAttach)
				r.Delete("/slots/{slot}", app.SurfaceDetach)
				r.With(generation).Post("/submit", app.SurfaceSubmit)
				r.Post("/reset", app.SurfaceReset)
				r.Get("/image", app.SurfaceImage)
			})
		})

		r.Get("/previews/{handle}", app.Preview)
	})

	return r
}
