package users_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"covoiturage/internal/authz"
	"covoiturage/internal/users"
)

func newRouter(h *users.Handler, id *authz.Identity) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if id != nil {
				req = req.WithContext(authz.WithIdentity(req.Context(), *id))
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Get("/user", h.Me)
	r.Mount("/users", h.Routes())
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) (int, map[string]any) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("%s %s: decode %q: %v", method, path, rec.Body.String(), err)
	}
	return rec.Code, out
}

func TestHandlerCreateAndShow(t *testing.T) {
	svc, store := newService(t)
	admin := store.Put(users.User{Name: "Root", PhoneNumber: "+237600000000", Role: authz.RoleAdmin})
	h := newRouter(users.NewHandler(svc), &authz.Identity{UserID: admin.ID, Role: authz.RoleAdmin})

	code, body := do(t, h, http.MethodPost, "/users",
		`{"name":"Awa","username":"awa","phone_number":"690000001","password":"secret1","password_confirmation":"secret1","email":"awa@example.com"}`)
	if code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %v", code, body)
	}
	data := body["data"].(map[string]any)
	if data["phone_number"] != "+237690000001" || data["role"] != "passenger" {
		t.Errorf("created = %v", data)
	}
	if _, ok := data["password"]; ok {
		t.Error("password hash leaked in response")
	}

	code, body = do(t, h, http.MethodGet, "/users/"+data["id"].(string), "")
	if code != http.StatusOK || body["data"].(map[string]any)["name"] != "Awa" {
		t.Errorf("show = %d %v", code, body)
	}

	code, body = do(t, h, http.MethodGet, "/users/missing", "")
	if code != http.StatusNotFound || body["message"] != "User not found" {
		t.Errorf("show missing = %d %v", code, body)
	}
}

func TestHandlerValidationEnvelope(t *testing.T) {
	svc, _ := newService(t)
	h := newRouter(users.NewHandler(svc), &authz.Identity{UserID: "x", Role: authz.RoleAdmin})

	code, body := do(t, h, http.MethodPost, "/users", `{"name":42,"phone_number":"690000001"}`)
	if code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", code)
	}
	if body["success"] != false || body["message"] != "Validation errors" {
		t.Errorf("envelope = %v", body)
	}
	errs := body["errors"].(map[string]any)
	for _, field := range []string{"name", "username", "password"} {
		if _, ok := errs[field]; !ok {
			t.Errorf("missing error for %s: %v", field, errs)
		}
	}

	code, _ = do(t, h, http.MethodPost, "/users", `{"name":`)
	if code != http.StatusBadRequest {
		t.Errorf("malformed body status = %d, want 400", code)
	}
}

func TestHandlerListAndStats(t *testing.T) {
	svc, store := newService(t)
	admin := store.Put(users.User{Name: "Root", PhoneNumber: "+237600000000", Role: authz.RoleAdmin})
	store.Put(users.User{Name: "Awa", PhoneNumber: "+237690000001", Role: authz.RolePassenger})
	h := newRouter(users.NewHandler(svc), &authz.Identity{UserID: admin.ID, Role: authz.RoleAdmin})

	code, body := do(t, h, http.MethodGet, "/users?search=awa&per_page=1", "")
	if code != http.StatusOK {
		t.Fatalf("list status = %d", code)
	}
	if n := len(body["data"].([]any)); n != 1 {
		t.Errorf("items = %d, want 1", n)
	}
	p := body["pagination"].(map[string]any)
	if p["total"].(float64) != 1 || p["per_page"].(float64) != 1 || p["current_page"].(float64) != 1 {
		t.Errorf("pagination = %v", p)
	}

	code, body = do(t, h, http.MethodGet, "/users?page=92233720368547761&per_page=100", "")
	if code != http.StatusOK || len(body["data"].([]any)) != 0 {
		t.Errorf("far page = %d %v", code, body)
	}

	code, body = do(t, h, http.MethodGet, "/users/stats", "")
	if code != http.StatusOK || body["data"].(map[string]any)["total_users"].(float64) != 2 {
		t.Errorf("stats = %d %v", code, body)
	}
}

func TestHandlerPermissions(t *testing.T) {
	svc, store := newService(t)
	self := store.Put(users.User{Name: "Awa", PhoneNumber: "+237690000001", Role: authz.RolePassenger})
	other := store.Put(users.User{Name: "Ben", PhoneNumber: "+237690000002", Role: authz.RolePassenger})
	h := newRouter(users.NewHandler(svc), &authz.Identity{UserID: self.ID, Role: authz.RolePassenger})

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"update self", http.MethodPatch, "/users/" + self.ID, `{"name":"Awa B."}`, http.StatusOK},
		{"update other", http.MethodPut, "/users/" + other.ID, `{"name":"x"}`, http.StatusForbidden},
		{"self role change", http.MethodPatch, "/users/" + self.ID, `{"role":"admin"}`, http.StatusForbidden},
		{"delete as passenger", http.MethodDelete, "/users/" + other.ID, "", http.StatusForbidden},
		{"stats as passenger", http.MethodGet, "/users/stats", "", http.StatusForbidden},
		{"bool type mismatch", http.MethodPatch, "/users/" + self.ID, `{"isOnline":"yes"}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := do(t, h, tt.method, tt.path, tt.body)
			if code != tt.want {
				t.Errorf("status = %d, want %d (%v)", code, tt.want, body)
			}
		})
	}
}

func TestHandlerMeRequiresIdentity(t *testing.T) {
	svc, store := newService(t)
	u := store.Put(users.User{Name: "Awa", PhoneNumber: "+237690000001", Role: authz.RolePassenger})

	anon := newRouter(users.NewHandler(svc), nil)
	for _, rt := range []struct{ method, path string }{
		{http.MethodGet, "/user"},
		{http.MethodGet, "/users/stats"},
		{http.MethodDelete, "/users/" + u.ID},
		{http.MethodPost, "/users/change-password"},
	} {
		code, body := do(t, anon, rt.method, rt.path, "")
		if code != http.StatusUnauthorized || body["message"] != "Unauthenticated" {
			t.Errorf("anonymous %s %s = %d %v", rt.method, rt.path, code, body)
		}
	}

	code, body := do(t, newRouter(users.NewHandler(svc), &authz.Identity{UserID: u.ID, Role: u.Role}), http.MethodGet, "/user", "")
	if code != http.StatusOK || body["id"] != u.ID {
		t.Errorf("me = %d %v", code, body)
	}
	if _, ok := body["success"]; ok {
		t.Error("/user should not be wrapped in an envelope")
	}
}

func TestHandlerChangePassword(t *testing.T) {
	svc, _ := newService(t)
	u, err := svc.Register(context.Background(), registerReq("690000001"))
	if err != nil {
		t.Fatal(err)
	}
	h := newRouter(users.NewHandler(svc), &authz.Identity{UserID: u.ID, Role: u.Role})

	code, body := do(t, h, http.MethodPost, "/users/change-password",
		`{"current_password":"secret1","new_password":"brandnew","new_password_confirmation":"brandnew"}`)
	if code != http.StatusOK || body["message"] != "Password changed successfully" {
		t.Errorf("change password = %d %v", code, body)
	}
}

func TestHandlerRejectsOverlongPassword(t *testing.T) {
	svc, _ := newService(t)
	u, err := svc.Register(context.Background(), registerReq("690000001"))
	if err != nil {
		t.Fatal(err)
	}
	h := newRouter(users.NewHandler(svc), &authz.Identity{UserID: u.ID, Role: u.Role})
	long := strings.Repeat("p", 73)

	code, body := do(t, h, http.MethodPatch, "/users/"+u.ID,
		`{"password":"`+long+`","password_confirmation":"`+long+`"}`)
	if code != http.StatusUnprocessableEntity {
		t.Fatalf("update = %d %v", code, body)
	}
	if msgs := body["errors"].(map[string]any)["password"].([]any); msgs[0] != "The password must not be greater than 72 bytes." {
		t.Errorf("password errors = %v", msgs)
	}
}
