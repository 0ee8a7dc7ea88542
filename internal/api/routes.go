// Package api provides HTTP handlers for the spatial dataset server.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/spatialdata-io/server/internal/jobstore"
	"github.com/spatialdata-io/server/internal/service"
)

// RouterConfig contains router configuration.
type RouterConfig struct {
	Registry    *DatasetRegistry
	CORSOrigins []string
	Ingest      *IngestManager
	// Metrics enables request metrics and GET /metrics when set.
	Metrics *Metrics
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cfg.Metrics.Middleware)
	r.Use(middleware.Compress(5))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	r.Get("/api/datasets", datasetsHandler(cfg.Registry))

	r.Route("/api/ingest", func(r chi.Router) {
		r.Post("/", ingestSubmitHandler(cfg.Ingest))
		r.Get("/", ingestListHandler(cfg.Ingest))
		r.Get("/{job_id}", ingestStatusHandler(cfg.Ingest))
		r.Delete("/{job_id}", ingestDeleteHandler(cfg.Ingest))
	})

	// Dataset-scoped routes: /d/{dataset}/...
	r.Route("/d/{dataset}", func(r chi.Router) {
		r.Use(datasetMiddleware(cfg.Registry))

		r.Get("/tiles/points/{layer}/{z}/{x}/{y}.png", pointsTileHandler)
		r.Get("/tiles/shapes/{layer}/{z}/{x}/{y}.png", shapesTileHandler)
		r.Get("/tiles/images/{layer}/{channel}/{z}/{x}/{y}.png", imageTileHandler)

		r.Route("/api", func(r chi.Router) {
			r.Get("/metadata", metadataHandler)
			r.Get("/genes", genesHandler)
			r.Get("/genes/{gene}/stats", geneStatsHandler)
			r.Get("/observations", observationsHandler)
		})
	})

	return r
}

// Context key for dataset service
type ctxKey string

const datasetServiceKey ctxKey = "datasetService"

// datasetMiddleware resolves the dataset from URL and injects its service into context.
func datasetMiddleware(registry *DatasetRegistry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			datasetID := chi.URLParam(r, "dataset")
			svc := registry.Get(datasetID)
			if svc == nil {
				http.Error(w, "dataset not found: "+datasetID, http.StatusNotFound)
				return
			}
			ctx := context.WithValue(r.Context(), datasetServiceKey, svc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func getDatasetService(r *http.Request) *service.DatasetService {
	if svc, ok := r.Context().Value(datasetServiceKey).(*service.DatasetService); ok {
		return svc
	}
	return nil
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrLayerNotFound), errors.Is(err, service.ErrGeneNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidTile):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// datasetsHandler returns the list of available datasets.
func datasetsHandler(registry *DatasetRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"default":  registry.DefaultDatasetID(),
			"datasets": registry.Datasets(),
			"title":    registry.Title(),
		})
	}
}

func metadataHandler(w http.ResponseWriter, r *http.Request) {
	svc := getDatasetService(r)
	if svc == nil {
		http.Error(w, "dataset service not found", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, svc.Metadata())
}

func genesHandler(w http.ResponseWriter, r *http.Request) {
	svc := getDatasetService(r)
	if svc == nil {
		http.Error(w, "dataset service not found", http.StatusInternalServerError)
		return
	}
	genes := svc.Genes()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"genes": genes,
		"total": len(genes),
	})
}

func geneStatsHandler(w http.ResponseWriter, r *http.Request) {
	svc := getDatasetService(r)
	if svc == nil {
		http.Error(w, "dataset service not found", http.StatusInternalServerError)
		return
	}
	stats, err := svc.GeneStats(chi.URLParam(r, "gene"))
	if err != nil {
		http.Error(w, err.Error(), errorStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// observationsHandler serves
// GET /api/observations?layer=cells&min_x=..&min_y=..&max_x=..&max_y=..[&gene=..][&limit=..][&seed=..]
func observationsHandler(w http.ResponseWriter, r *http.Request) {
	svc := getDatasetService(r)
	if svc == nil {
		http.Error(w, "dataset service not found", http.StatusInternalServerError)
		return
	}
	q := r.URL.Query()
	layer := strings.TrimSpace(q.Get("layer"))
	if layer == "" {
		http.Error(w, "missing required query param: layer", http.StatusBadRequest)
		return
	}

	var box [4]float64
	for i, name := range []string{"min_x", "min_y", "max_x", "max_y"} {
		v, err := strconv.ParseFloat(q.Get(name), 64)
		if err != nil {
			http.Error(w, "invalid "+name, http.StatusBadRequest)
			return
		}
		box[i] = v
	}
	if box[0] > box[2] || box[1] > box[3] {
		http.Error(w, "min must not exceed max", http.StatusBadRequest)
		return
	}

	limit := 0
	if s := q.Get("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = v
	}
	var seed int64
	if s := q.Get("seed"); s != "" {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			http.Error(w, "invalid seed", http.StatusBadRequest)
			return
		}
		seed = v
	}

	res, err := svc.ObservationsInBounds(layer, box[0], box[1], box[2], box[3], q.Get("gene"), limit, seed)
	if err != nil {
		http.Error(w, err.Error(), errorStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func tileCoords(r *http.Request) (z, x, y int, ok bool) {
	var err error
	if z, err = strconv.Atoi(chi.URLParam(r, "z")); err != nil {
		return 0, 0, 0, false
	}
	if x, err = strconv.Atoi(chi.URLParam(r, "x")); err != nil {
		return 0, 0, 0, false
	}
	if y, err = strconv.Atoi(chi.URLParam(r, "y")); err != nil {
		return 0, 0, 0, false
	}
	return z, x, y, true
}

// writeTile writes a PNG tile. Lookup and range errors map to status codes;
// render failures fall back to an empty tile.
func writeTile(w http.ResponseWriter, svc *service.DatasetService, data []byte, err error) {
	if err != nil {
		status := errorStatus(err)
		if status != http.StatusInternalServerError {
			http.Error(w, err.Error(), status)
			return
		}
		log.Printf("[api] %s: tile error: %v", svc.ID(), err)
		data, _ = svc.GetEmptyTile()
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(data)
}

func pointsTileHandler(w http.ResponseWriter, r *http.Request) {
	svc := getDatasetService(r)
	if svc == nil {
		http.Error(w, "dataset service not found", http.StatusInternalServerError)
		return
	}
	z, x, y, ok := tileCoords(r)
	if !ok {
		http.Error(w, "invalid tile coordinates", http.StatusBadRequest)
		return
	}
	data, err := svc.PointsTile(chi.URLParam(r, "layer"), z, x, y, r.URL.Query().Get("gene"))
	writeTile(w, svc, data, err)
}

func shapesTileHandler(w http.ResponseWriter, r *http.Request) {
	svc := getDatasetService(r)
	if svc == nil {
		http.Error(w, "dataset service not found", http.StatusInternalServerError)
		return
	}
	z, x, y, ok := tileCoords(r)
	if !ok {
		http.Error(w, "invalid tile coordinates", http.StatusBadRequest)
		return
	}
	data, err := svc.ShapesTile(chi.URLParam(r, "layer"), z, x, y)
	writeTile(w, svc, data, err)
}

func imageTileHandler(w http.ResponseWriter, r *http.Request) {
	svc := getDatasetService(r)
	if svc == nil {
		http.Error(w, "dataset service not found", http.StatusInternalServerError)
		return
	}
	z, x, y, ok := tileCoords(r)
	if !ok {
		http.Error(w, "invalid tile coordinates", http.StatusBadRequest)
		return
	}
	data, err := svc.ImageTile(
		chi.URLParam(r, "layer"),
		chi.URLParam(r, "channel"),
		z, x, y,
		r.URL.Query().Get("colormap"),
	)
	writeTile(w, svc, data, err)
}

// Ingest job handlers

func ingestSubmitHandler(m *IngestManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if m == nil {
			http.Error(w, "ingest not configured", http.StatusNotImplemented)
			return
		}

		var params jobstore.IngestParams
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}

		job, err := m.Submit(params)
		if err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, ErrQueueFull) {
				status = http.StatusServiceUnavailable
			}
			http.Error(w, err.Error(), status)
			return
		}

		writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"job_id":     job.ID,
			"dataset_id": job.DatasetID,
			"status":     job.Status,
		})
	}
}

func ingestListHandler(m *IngestManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if m == nil {
			http.Error(w, "ingest not configured", http.StatusNotImplemented)
			return
		}
		jobs, err := m.List()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if jobs == nil {
			jobs = []*jobstore.IngestJob{}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": jobs})
	}
}

func ingestStatusHandler(m *IngestManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if m == nil {
			http.Error(w, "ingest not configured", http.StatusNotImplemented)
			return
		}
		job := m.Get(chi.URLParam(r, "job_id"))
		if job == nil {
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, job)
	}
}

// ingestDeleteHandler cancels an active job and deletes a finished one.
func ingestDeleteHandler(m *IngestManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if m == nil {
			http.Error(w, "ingest not configured", http.StatusNotImplemented)
			return
		}
		jobID := chi.URLParam(r, "job_id")
		job := m.Get(jobID)
		if job == nil {
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}

		if !job.Status.Terminal() {
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"job_id":    jobID,
				"cancelled": m.Cancel(jobID),
			})
			return
		}

		if err := m.Delete(jobID); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"job_id":  jobID,
			"deleted": true,
		})
	}
}
