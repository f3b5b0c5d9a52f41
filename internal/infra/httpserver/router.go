package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	appjobs "github.com/veriscope/veriscope/internal/application/jobs"
	"github.com/veriscope/veriscope/internal/domain/catalog"
	domain "github.com/veriscope/veriscope/internal/domain/jobs"
	"github.com/veriscope/veriscope/internal/domain/llmconfig"
	"github.com/veriscope/veriscope/internal/middleware"
)

// configTypes maps URL slugs to llm_config type tags.
var configTypes = map[string]string{
	"system-prompt":      llmconfig.TypeSystemPrompt,
	"second-pass-prompt": llmconfig.TypeSecondPassPrompt,
	"model-id":           llmconfig.TypeModelID,
	"second-pass":        llmconfig.TypeSecondPass,
}

type Router struct {
	jobsSvc   *appjobs.Service
	configSvc llmconfig.Store
}

func NewRouter(jobsSvc *appjobs.Service, configSvc llmconfig.Store, logger *slog.Logger, health map[string]middleware.HealthChecker) http.Handler {
	r := &Router{jobsSvc: jobsSvc, configSvc: configSvc}
	mux := chi.NewRouter()

	mux.Use(middleware.LoggingMiddleware(logger))
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	mux.Get("/health", middleware.HealthHandler(health))
	mux.Get("/live", middleware.LivenessHandler)

	mux.Route("/v1", func(rt chi.Router) {
		rt.Post("/jobs", r.wrap(r.handleCreateJob))
		rt.Get("/jobs", r.wrap(r.handleListJobs))
		rt.Get("/jobs/{id}", r.wrap(r.handleGetJob))
		rt.Delete("/jobs/{id}", r.wrap(r.handleDeleteJob))
		rt.Post("/jobs/{id}/requeue", r.wrap(r.handleRequeueJob))
		rt.Get("/jobs/{id}/logs", r.wrap(r.handleJobLogs))
		rt.Get("/jobs/{id}/files/urls", r.wrap(r.handleFileURLs))
		rt.Get("/jobs/{id}/items/{itemInstanceID}/checks", r.wrap(r.handleFileChecks))

		rt.Get("/config/{type}", r.wrap(r.handleGetConfig))
		rt.Post("/config/{type}", r.wrap(r.handleSetConfig))
		rt.Get("/config/{type}/history", r.wrap(r.handleConfigHistory))

		rt.Post("/tests/label-detect", r.wrap(r.handleLabelDetect))
		rt.Post("/tests/description-prompt", r.wrap(r.handlePromptTest))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			switch {
			case errors.Is(err, domain.ErrNotFound),
				errors.Is(err, catalog.ErrNotFound),
				errors.Is(err, llmconfig.ErrNotSet):
				http.Error(w, err.Error(), http.StatusNotFound)
			case errors.Is(err, domain.ErrInvalidTransition):
				http.Error(w, err.Error(), http.StatusConflict)
			default:
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, v any) error {
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(v)
}

// POST /v1/jobs
// Body: {"collection_id": "<id>", "search_internet": false}
func (r *Router) handleCreateJob(w http.ResponseWriter, req *http.Request) error {
	var cmd appjobs.CreateJobCommand
	if err := json.NewDecoder(req.Body).Decode(&cmd); err != nil {
		return err
	}
	if cmd.CollectionID == "" {
		return fmt.Errorf("collection_id is required")
	}
	j, err := r.jobsSvc.CreateJob(req.Context(), cmd)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	return json.NewEncoder(w).Encode(j)
}

// GET /v1/jobs?page=&page_size=
func (r *Router) handleListJobs(w http.ResponseWriter, req *http.Request) error {
	page, _ := strconv.Atoi(req.URL.Query().Get("page"))
	size, _ := strconv.Atoi(req.URL.Query().Get("page_size"))
	list, err := r.jobsSvc.List(req.Context(), page, size)
	if err != nil {
		return err
	}
	return writeJSON(w, list)
}

func (r *Router) handleGetJob(w http.ResponseWriter, req *http.Request) error {
	j, err := r.jobsSvc.Get(req.Context(), domain.JobID(chi.URLParam(req, "id")))
	if err != nil {
		return err
	}
	return writeJSON(w, j)
}

func (r *Router) handleDeleteJob(w http.ResponseWriter, req *http.Request) error {
	if err := r.jobsSvc.Delete(req.Context(), domain.JobID(chi.URLParam(req, "id"))); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// POST /v1/jobs/{id}/requeue
func (r *Router) handleRequeueJob(w http.ResponseWriter, req *http.Request) error {
	j, err := r.jobsSvc.Requeue(req.Context(), domain.JobID(chi.URLParam(req, "id")))
	if err != nil {
		return err
	}
	return writeJSON(w, j)
}

// GET /v1/jobs/{id}/logs?level=&contains=&page_token=&page_size=
func (r *Router) handleJobLogs(w http.ResponseWriter, req *http.Request) error {
	q := req.URL.Query()
	size, _ := strconv.Atoi(q.Get("page_size"))
	page, err := r.jobsSvc.QueryLogs(req.Context(), domain.JobID(chi.URLParam(req, "id")), domain.LogQuery{
		Level:     q.Get("level"),
		Contains:  q.Get("contains"),
		PageToken: q.Get("page_token"),
		PageSize:  size,
	})
	if err != nil {
		return err
	}
	return writeJSON(w, page)
}

func (r *Router) handleFileURLs(w http.ResponseWriter, req *http.Request) error {
	urls, err := r.jobsSvc.FileURLs(req.Context(), domain.JobID(chi.URLParam(req, "id")))
	if err != nil {
		return err
	}
	return writeJSON(w, urls)
}

func (r *Router) handleFileChecks(w http.ResponseWriter, req *http.Request) error {
	checks, err := r.jobsSvc.FileChecks(req.Context(),
		domain.JobID(chi.URLParam(req, "id")), chi.URLParam(req, "itemInstanceID"))
	if err != nil {
		return err
	}
	return writeJSON(w, checks)
}

func (r *Router) configType(req *http.Request) (string, error) {
	slug := chi.URLParam(req, "type")
	t, ok := configTypes[slug]
	if !ok {
		return "", fmt.Errorf("unknown config type %q", slug)
	}
	return t, nil
}

// GET /v1/config/{type}
func (r *Router) handleGetConfig(w http.ResponseWriter, req *http.Request) error {
	t, err := r.configType(req)
	if err != nil {
		return err
	}
	value, err := r.configSvc.Active(req.Context(), t)
	if err != nil {
		return err
	}
	return writeJSON(w, map[string]string{"config_type": t, "value": value})
}

// POST /v1/config/{type}
// Body: {"value": "...", "description": "..."}
func (r *Router) handleSetConfig(w http.ResponseWriter, req *http.Request) error {
	t, err := r.configType(req)
	if err != nil {
		return err
	}
	var body struct {
		Value       string `json:"value"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return err
	}
	if body.Value == "" {
		return fmt.Errorf("value is required")
	}
	entry, err := r.configSvc.Save(req.Context(), llmconfig.Entry{
		Type:        t,
		Value:       body.Value,
		Description: body.Description,
	})
	if err != nil {
		return err
	}
	return writeJSON(w, entry)
}

// GET /v1/config/{type}/history?limit=
func (r *Router) handleConfigHistory(w http.ResponseWriter, req *http.Request) error {
	t, err := r.configType(req)
	if err != nil {
		return err
	}
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	history, err := r.configSvc.History(req.Context(), t, limit)
	if err != nil {
		return err
	}
	return writeJSON(w, history)
}

// POST /v1/tests/label-detect
// Body: {"storage_key": "<key>"}
func (r *Router) handleLabelDetect(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		StorageKey string `json:"storage_key"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return err
	}
	if body.StorageKey == "" {
		return fmt.Errorf("storage_key is required")
	}
	labels, err := r.jobsSvc.DetectLabels(req.Context(), body.StorageKey)
	if err != nil {
		return err
	}
	return writeJSON(w, labels)
}

// POST /v1/tests/description-prompt
func (r *Router) handlePromptTest(w http.ResponseWriter, req *http.Request) error {
	var cmd appjobs.PromptTestCommand
	if err := json.NewDecoder(req.Body).Decode(&cmd); err != nil {
		return err
	}
	if cmd.Description == "" {
		return fmt.Errorf("description is required")
	}
	result, err := r.jobsSvc.TestPrompt(req.Context(), cmd)
	if err != nil {
		return err
	}
	return writeJSON(w, result)
}
