package users

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"covoiturage/internal/authz"
	"covoiturage/pkg/httpx"
)

// Handler exposes user HTTP endpoints.
type Handler struct{ svc *Service }

// NewHandler wires a handler to the user service.
func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

// Routes returns a chi.Router with all user routes. Callers mount it behind
// the auth middleware.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/stats", h.Stats)
	r.Post("/change-password", h.ChangePassword)
	r.Get("/{id}", h.Show)
	r.Put("/{id}", h.Update)
	r.Patch("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
	return r
}

// Me writes the caller's own record without an envelope.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	id, err := authz.Require(r.Context())
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	u, err := h.svc.Get(r.Context(), id.UserID)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, u)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := h.svc.List(r.Context(), ListParams{
		Search:  q.Get("search"),
		Page:    intParam(q.Get("page"), 1),
		PerPage: intParam(q.Get("per_page"), DefaultPerPage),
	})
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.Success(w, http.StatusOK, httpx.M{"data": page.Items, "pagination": page.Pagination})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, r, err)
		return
	}
	u, err := h.svc.Create(r.Context(), req)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.Success(w, http.StatusCreated, httpx.M{"message": "User created successfully", "data": u})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	u, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.Success(w, http.StatusOK, httpx.M{"data": u})
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := authz.Require(r.Context())
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	var req UpdateRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, r, err)
		return
	}
	u, err := h.svc.Update(r.Context(), id, chi.URLParam(r, "id"), req)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.Success(w, http.StatusOK, httpx.M{"message": "User updated successfully", "data": u})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := authz.Require(r.Context())
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	if err := h.svc.Delete(r.Context(), id, chi.URLParam(r, "id")); err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.Success(w, http.StatusOK, httpx.M{"message": "User deleted successfully"})
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	id, err := authz.Require(r.Context())
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	var req ChangePasswordRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, r, err)
		return
	}
	if err := h.svc.ChangePassword(r.Context(), id, req); err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.Success(w, http.StatusOK, httpx.M{"message": "Password changed successfully"})
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	id, err := authz.Require(r.Context())
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	st, err := h.svc.Stats(r.Context(), id)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.Success(w, http.StatusOK, httpx.M{"data": st})
}


func intParam(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
