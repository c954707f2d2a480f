package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/this-4mirho3ein/turkiye-temp-sub001/internal/config"
	"github.com/this-4mirho3ein/turkiye-temp-sub001/internal/observability"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config       *config.Config
	Authenticate func(http.Handler) http.Handler
	Drafts       *DraftHandler
	Media        *MediaHandler
	Lookups      *LookupHandler
	Metrics      *observability.Metrics
	Health       *observability.HealthChecker
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness, metrics, and the public lookup
// endpoints bypass the authentication middleware.
func NewRouter(deps Dependencies) chi.Router {
	r := chi.NewRouter()

	// Global middleware: applied to all routes including health.
	r.Use(Recovery)
	r.Use(CORS(deps.Config.Server.CORS))
	r.Use(RequestID)
	r.Use(SecurityHeaders)
	if deps.Config.Observability.Tracing.Enabled {
		r.Use(observability.TracingMiddleware)
	}

	// Public routes — bypass authentication.
	if deps.Health != nil {
		r.Get("/health", deps.Health.Liveness)
		r.Get("/ready", deps.Health.Readiness)
	}
	if deps.Metrics != nil && deps.Config.Observability.Metrics.Enabled {
		r.Handle(deps.Config.Observability.Metrics.Path, deps.Metrics.Handler())
	}
	if deps.Lookups != nil {
		r.Get("/api/lookups/fields", deps.Lookups.FeatureFields)
		r.Get("/api/lookups/locations", deps.Lookups.Locations)
	}

	// Authenticated routes — full middleware chain.
	auth := deps.Authenticate
	if auth == nil {
		auth = func(next http.Handler) http.Handler { return next }
	}

	r.Group(func(r chi.Router) {
		r.Use(auth)
		r.Use(BuildRequestContext)
		r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))
		r.Use(RequestLogging)
		r.Use(MetricsRecording(deps.Metrics))

		r.Route("/api/drafts", func(r chi.Router) {
			r.Post("/", deps.Drafts.Create)
			r.Get("/", deps.Drafts.List)

			r.Route("/{draftID}", func(r chi.Router) {
				r.Get("/", deps.Drafts.Describe)
				r.Delete("/", deps.Drafts.Delete)

				r.Put("/phase1", deps.Drafts.SavePhase1)
				r.Post("/phase1", deps.Drafts.SubmitPhase1)

				r.Put("/attributes", deps.Drafts.SaveAttributes)
				r.Post("/phase2", deps.Drafts.SubmitPhase2)

				r.Put("/location", deps.Drafts.SelectLocation)
				r.Put("/address", deps.Drafts.SaveAddress)
				r.Get("/location/options", deps.Drafts.LocationOptions)
				r.Post("/phase3", deps.Drafts.SubmitPhase3)

				r.Post("/assets", deps.Media.AddAsset)
				r.Delete("/assets/{assetID}", deps.Media.RemoveAsset)
				r.Put("/assets/{assetID}/primary", deps.Media.SetPrimary)
				r.Get("/assets/{assetID}/session", deps.Media.UploadSession)
				r.Post("/phase4", deps.Media.SubmitPhase4)

				r.Post("/advance", deps.Drafts.Advance)
				r.Post("/retreat", deps.Drafts.Retreat)
			})
		})
	})

	return r
}
