package auth

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"covoiturage/internal/authz"
	"covoiturage/internal/users"
	"covoiturage/pkg/httpx"
)

// Handler exposes the /auth endpoints.
type Handler struct {
	svc *Service
	mw  *Middleware
}

// NewHandler wires a handler to the auth service.
func NewHandler(svc *Service, mw *Middleware) *Handler { return &Handler{svc: svc, mw: mw} }

// Routes returns a chi.Router with all auth routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	// Public
	r.Post("/register", h.Register)
	r.Post("/login", h.Login)

	// Protected
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireAuth)
		r.Post("/logout", h.Logout)
		r.Get("/user-profile", h.Profile)
	})
	r.With(h.mw.RequireRefreshable).Post("/refresh", h.Refresh)

	return r
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req users.CreateRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, r, err)
		return
	}
	sess, err := h.svc.Register(r.Context(), req)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.Success(w, http.StatusCreated, httpx.M{
		"message": "User registered successfully",
		"user":    sess.User,
		"token":   sess.Token.Value,
	})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, r, err)
		return
	}
	sess, err := h.svc.Login(r.Context(), req)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	h.writeSession(w, sess)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	id, err := authz.Require(r.Context())
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	if err := h.svc.Logout(r.Context(), id); err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.Success(w, http.StatusOK, httpx.M{"message": "Successfully logged out"})
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	id, err := authz.Require(r.Context())
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	sess, err := h.svc.Refresh(r.Context(), id)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	h.writeSession(w, sess)
}

func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	id, err := authz.Require(r.Context())
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	u, err := h.svc.Profile(r.Context(), id)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.Success(w, http.StatusOK, httpx.M{"user": u})
}

func (h *Handler) writeSession(w http.ResponseWriter, sess *Session) {
	httpx.Success(w, http.StatusOK, httpx.M{
		"access_token": sess.Token.Value,
		"token_type":   "Bearer",
		"expires_in":   h.svc.TTL(),
		"user":         sess.User,
	})
}
