package api

import (
	"net/http"

	"github.com/Cembrun/Checkbell-V2/internal/httputil"
	"github.com/Cembrun/Checkbell-V2/internal/tracker"
)

func (a *API) listItems(w http.ResponseWriter, r *http.Request) {
	dep, c, err := target(r)
	if err != nil {
		writeError(w, err)
		return
	}

	q := r.URL.Query()
	opts, err := tracker.ParseListOptions(q.Get("status"), q.Get("day"), q.Get("dateBy"), q.Get("sort"))
	if err != nil {
		writeError(w, err)
		return
	}

	items, err := a.tracker.List(r.Context(), dep, c, opts)
	if err != nil {
		writeError(w, err)
		return
	}

	httputil.WriteJSON(w, items, http.StatusOK)
}

func (a *API) createItem(w http.ResponseWriter, r *http.Request) {
	dep, c, err := target(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req tracker.NewItem
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.CreatedBy == "" {
		req.CreatedBy = actor(r)
	}

	created, err := a.tracker.Create(r.Context(), dep, c, req)
	if err != nil {
		writeError(w, err)
		return
	}

	httputil.WriteJSON(w, created, http.StatusCreated)
}

func (a *API) updateItem(w http.ResponseWriter, r *http.Request) {
	dep, c, err := target(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req tracker.ItemPatch
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	updated, err := a.tracker.Update(r.Context(), dep, c, r.PathValue("idOrIndex"), req)
	if err != nil {
		writeError(w, err)
		return
	}

	httputil.WriteJSON(w, updated, http.StatusOK)
}

func (a *API) deleteItem(w http.ResponseWriter, r *http.Request) {
	dep, c, err := target(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if _, err := a.tracker.Delete(r.Context(), dep, c, r.PathValue("idOrIndex")); err != nil {
		writeError(w, err)
		return
	}

	httputil.WriteJSON(w, map[string]string{"message": "item deleted"}, http.StatusOK)
}

// completeItem sets or toggles completion. The finisher is the body's
// completedBy, else the acting user.
func (a *API) completeItem(w http.ResponseWriter, r *http.Request) {
	dep, c, err := target(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req CompleteRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	by := req.CompletedBy
	if by == "" {
		by = actor(r)
	}

	updated, err := a.tracker.SetCompleted(r.Context(), dep, c, r.PathValue("idOrIndex"), req.Completed, by)
	if err != nil {
		writeError(w, err)
		return
	}

	httputil.WriteJSON(w, updated, http.StatusOK)
}

func (a *API) forwardItem(w http.ResponseWriter, r *http.Request) {
	dep, c, err := target(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req ForwardRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	fwd, err := a.tracker.Forward(r.Context(), dep, c, r.PathValue("idOrIndex"), req.TargetDepartment)
	if err != nil {
		writeError(w, err)
		return
	}

	httputil.WriteJSON(w, ForwardResponse{Message: "item forwarded", Task: fwd}, http.StatusOK)
}

func (a *API) addNote(w http.ResponseWriter, r *http.Request) {
	dep, c, err := target(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req NoteRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Author == "" {
		req.Author = actor(r)
	}

	updated, err := a.tracker.AddNote(r.Context(), dep, c, r.PathValue("idOrIndex"), req.Author, req.Text)
	if err != nil {
		writeError(w, err)
		return
	}

	httputil.WriteJSON(w, updated, http.StatusOK)
}
