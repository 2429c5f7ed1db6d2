package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/usablelab/instrueval/internal/config"
	"github.com/usablelab/instrueval/internal/participant"
	"github.com/usablelab/instrueval/internal/storage"
	"github.com/usablelab/instrueval/internal/survey"
)

// NewRouter mounts the whole evaluation flow surface.
func NewRouter(cfg config.Config, svc *survey.Service, ids *participant.Issuer, blobs storage.BlobStore) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		ExposedHeaders:   []string{"Content-Length", "Content-Range", "Accept-Ranges"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(participant.Middleware(ids))

	r.Get("/", HomeHandler(svc))
	r.Post("/start", StartHandler(svc))
	r.Get("/start", ResumeHandler(svc))
	r.Get("/evaluate/{step}", StepHandler(svc))
	r.Post("/evaluate/{step}", SubmitStepHandler(svc))
	r.Get("/done", SummaryHandler(svc))
	r.Post("/done", FinalizeHandler(svc))
	r.Get("/thanks", ThanksHandler())

	r.Get("/doc/{docID}/inline/", InlineDocHandler(svc, blobs))
	r.Get("/stream/video/{filename}", StreamVideoHandler(blobs))
	r.Post("/api/save/{sessionID}/{questionID}/", PartialSaveHandler(svc))

	return r
}
