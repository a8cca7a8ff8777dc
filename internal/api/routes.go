package api

import (
	"github.com/gorilla/mux"

	"github.com/blagoySimandov/certmapper/internal/auth"
)

func SetupRoutes(handler *MappingHandler, jwtVerifier *auth.JWTVerifier, corsOrigin string) *mux.Router {
	r := mux.NewRouter()

	r.Use(CORSMiddleware(corsOrigin))
	r.Use(LoggingMiddleware)
	r.Use(RecoveryMiddleware)
	r.Use(auth.Middleware(jwtVerifier))

	r.HandleFunc("/healthz", Healthz).Methods("GET")

	r.HandleFunc("/api/v1/workbooks", handler.UploadWorkbook).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/v1/jobs", handler.ListJobs).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/v1/jobs/{jobID}/start", handler.StartJob).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/v1/jobs/{jobID}/progress", handler.GetJobProgress).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/v1/jobs/{jobID}/cancel", handler.CancelJob).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/v1/jobs/{jobID}/results", handler.GetJobResults).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/v1/jobs/{jobID}/download", handler.DownloadJob).Methods("GET", "OPTIONS")

	return r
}
