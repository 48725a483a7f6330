package api

import (
	"net/http"

	"github.com/Cembrun/Checkbell-V2/internal/httputil"
	"github.com/Cembrun/Checkbell-V2/internal/recurring"
	"github.com/Cembrun/Checkbell-V2/internal/task"
)

func (a *API) listTemplates(w http.ResponseWriter, r *http.Request) {
	dep, err := department(r)
	if err != nil {
		writeError(w, err)
		return
	}

	list, err := a.templates.List(r.Context(), dep)
	if err != nil {
		writeError(w, err)
		return
	}

	httputil.WriteJSON(w, list, http.StatusOK)
}

func (a *API) createTemplate(w http.ResponseWriter, r *http.Request) {
	dep, err := department(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req recurring.Fields
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.CreatedBy == "" {
		req.CreatedBy = actor(r)
	}

	tpl, err := a.templates.Create(r.Context(), dep, req)
	if err != nil {
		writeError(w, err)
		return
	}

	httputil.WriteJSON(w, tpl, http.StatusCreated)
}

func (a *API) updateTemplate(w http.ResponseWriter, r *http.Request) {
	dep, err := department(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req recurring.Patch
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	tpl, err := a.templates.Update(r.Context(), dep, r.PathValue("id"), req)
	if err != nil {
		writeError(w, err)
		return
	}

	httputil.WriteJSON(w, tpl, http.StatusOK)
}

func (a *API) deleteTemplate(w http.ResponseWriter, r *http.Request) {
	dep, err := department(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := a.templates.Delete(r.Context(), dep, r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}

	httputil.WriteJSON(w, map[string]string{"message": "template deleted"}, http.StatusOK)
}

func (a *API) materializeNow(w http.ResponseWriter, r *http.Request) {
	dep, err := department(r)
	if err != nil {
		writeError(w, err)
		return
	}

	force := isTrue(r.URL.Query().Get("force"))
	created, err := a.tracker.Materialize(r.Context(), dep, force)
	if err != nil {
		writeError(w, err)
		return
	}

	httputil.WriteJSON(w, MaterializeResponse{Department: dep, Created: created, Forced: force}, http.StatusOK)
}

func (a *API) listArchive(w http.ResponseWriter, r *http.Request) {
	dep, err := department(r)
	if err != nil {
		writeError(w, err)
		return
	}

	records, err := a.archive.List(r.Context(), dep)
	if err != nil {
		writeError(w, err)
		return
	}
	if records == nil {
		records = []task.ArchiveRecord{}
	}

	httputil.WriteJSON(w, records, http.StatusOK)
}

// seed fills every configured department with demo data and then
// materializes recurring instances. reset and force come from the query
// string or the body.
func (a *API) seed(w http.ResponseWriter, r *http.Request) {
	var req SeedRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	q := r.URL.Query()
	reset := req.Reset || isTrue(q.Get("reset"))
	force := req.Force || isTrue(q.Get("force"))

	summary, err := a.seeder.All(r.Context(), a.departments, reset)
	if err != nil {
		writeError(w, err)
		return
	}

	for _, dep := range a.departments {
		if _, err := a.tracker.Materialize(r.Context(), dep, force); err != nil {
			writeError(w, err)
			return
		}
	}

	httputil.WriteJSON(w, SeedResponse{OK: true, Reset: reset, Force: force, Summary: summary}, http.StatusOK)
}
