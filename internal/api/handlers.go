package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Cembrun/Checkbell-V2/internal/archive"
	"github.com/Cembrun/Checkbell-V2/internal/dashboard"
	"github.com/Cembrun/Checkbell-V2/internal/httputil"
	"github.com/Cembrun/Checkbell-V2/internal/middleware"
	"github.com/Cembrun/Checkbell-V2/internal/recurring"
	"github.com/Cembrun/Checkbell-V2/internal/seed"
	"github.com/Cembrun/Checkbell-V2/internal/store"
	"github.com/Cembrun/Checkbell-V2/internal/task"
	"github.com/Cembrun/Checkbell-V2/internal/tracker"
)

// ActorHeader names the acting user on mutating requests.
const ActorHeader = "X-User"

type API struct {
	tracker     *tracker.Service
	templates   *recurring.Templates
	archive     *archive.Archive
	dashboard   *dashboard.Dashboard
	seeder      *seed.Seeder
	departments []string
	mux         *http.ServeMux
	handler     http.Handler
}

type Deps struct {
	Tracker   *tracker.Service
	Templates *recurring.Templates
	Archive   *archive.Archive
	Dashboard *dashboard.Dashboard
	// Seeder enables POST /api/seed; leave nil in production.
	Seeder      *seed.Seeder
	Departments []string
}

type CompleteRequest struct {
	Completed   *bool  `json:"completed"`
	CompletedBy string `json:"completedBy"`
}

type ForwardRequest struct {
	TargetDepartment string `json:"targetDepartment"`
}

type NoteRequest struct {
	Author string `json:"author"`
	Text   string `json:"text"`
}

type ForwardResponse struct {
	Message string    `json:"message"`
	Task    task.Task `json:"task"`
}

type MaterializeResponse struct {
	Department string `json:"department"`
	Created    int    `json:"created"`
	Forced     bool   `json:"forced"`
}

type SeedRequest struct {
	Reset bool `json:"reset"`
	Force bool `json:"force"`
}

type SeedResponse struct {
	OK      bool           `json:"ok"`
	Reset   bool           `json:"reset"`
	Force   bool           `json:"force"`
	Summary []seed.Summary `json:"summary"`
}

func NewAPI(d Deps) *API {
	api := &API{
		tracker:     d.Tracker,
		templates:   d.Templates,
		archive:     d.Archive,
		dashboard:   d.Dashboard,
		seeder:      d.Seeder,
		departments: d.Departments,
		mux:         http.NewServeMux(),
	}

	api.setupRoutes()
	api.handler = middleware.MetricsMiddleware(api.mux)
	return api
}

func (a *API) setupRoutes() {
	a.mux.HandleFunc("GET /api/health", a.health)
	a.mux.Handle("GET /metrics", promhttp.Handler())

	a.mux.HandleFunc("GET /api/{department}/recurring", a.listTemplates)
	a.mux.HandleFunc("POST /api/{department}/recurring", a.createTemplate)
	a.mux.HandleFunc("PUT /api/{department}/recurring/{id}", a.updateTemplate)
	a.mux.HandleFunc("DELETE /api/{department}/recurring/{id}", a.deleteTemplate)
	a.mux.HandleFunc("POST /api/{department}/recurring/materialize-now", a.materializeNow)

	a.mux.HandleFunc("GET /api/{department}/archive", a.listArchive)

	a.mux.HandleFunc("GET /api/{department}/{collection}", a.listItems)
	a.mux.HandleFunc("POST /api/{department}/{collection}", a.createItem)
	a.mux.HandleFunc("PUT /api/{department}/{collection}/{idOrIndex}", a.updateItem)
	a.mux.HandleFunc("DELETE /api/{department}/{collection}/{idOrIndex}", a.deleteItem)
	a.mux.HandleFunc("PATCH /api/{department}/{collection}/{idOrIndex}/complete", a.completeItem)
	a.mux.HandleFunc("PUT /api/{department}/{collection}/{idOrIndex}/forward", a.forwardItem)
	a.mux.HandleFunc("POST /api/{department}/{collection}/{idOrIndex}/notes", a.addNote)

	if a.dashboard != nil {
		a.mux.HandleFunc("GET /api/dashboard/{department}/stats", a.dashboard.GetStats)
		a.mux.HandleFunc("GET /api/dashboard/{department}/history", a.dashboard.GetHistory)
	}

	if a.seeder != nil {
		a.mux.HandleFunc("POST /api/seed", a.seed)
	} else {
		a.mux.HandleFunc("POST /api/seed", func(w http.ResponseWriter, _ *http.Request) {
			httputil.WriteJSONError(w, "seeding is disabled", http.StatusForbidden)
		})
	}
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.handler.ServeHTTP(w, r)
}

// writeError maps service errors onto status codes.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case task.IsValidation(err),
		errors.Is(err, task.ErrInvalidCollection),
		errors.Is(err, store.ErrInvalidKey):
		httputil.WriteJSONError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, task.ErrNotFound),
		errors.Is(err, recurring.ErrTemplateNotFound):
		httputil.WriteJSONError(w, err.Error(), http.StatusNotFound)
	default:
		log.Printf("request failed: %v", err)
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
	}
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return task.Invalid("body", "failed to read request body")
	}

	defer func() {
		if err := r.Body.Close(); err != nil {
			log.Printf("failed to close request body: %v", err)
		}
	}()

	if len(strings.TrimSpace(string(body))) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return task.Invalid("body", "invalid JSON")
	}
	return nil
}

func actor(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(ActorHeader))
}

func department(r *http.Request) (string, error) {
	dep := strings.TrimSpace(r.PathValue("department"))
	if dep == "" {
		return "", task.Invalid("department", "is required")
	}
	return dep, nil
}

func target(r *http.Request) (string, task.Collection, error) {
	dep, err := department(r)
	if err != nil {
		return "", "", err
	}

	c, err := task.ParseCollection(r.PathValue("collection"))
	if err != nil {
		return "", "", err
	}
	return dep, c, nil
}

func isTrue(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), "true")
}

func (a *API) health(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, map[string]bool{"ok": true}, http.StatusOK)
}
